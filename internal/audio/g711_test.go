package audio

import "testing"

func TestUlawRoundTrip(t *testing.T) {
	cases := []int16{0, 1, -1, 100, -100, 5000, -5000, 32635, -32635, 16000, -16000}
	for _, want := range cases {
		b := EncodeUlaw([]int16{want})[0]
		got := DecodeUlawPCM16([]byte{b})[0]

		if (got < 0) != (want < 0) && want != 0 {
			t.Fatalf("sign flipped for %d: got %d", want, got)
		}

		diff := int(got) - int(want)
		if diff < 0 {
			diff = -diff
		}
		mag := int(want)
		if mag < 0 {
			mag = -mag
		}
		if mag > 0 {
			errPct := float64(diff) / float64(mag)
			if errPct > 0.023 {
				t.Fatalf("quantization error too large for %d: got %d (%.4f%%)", want, got, errPct*100)
			}
		}
	}
}

func TestEncodeUlawNotLogShortcut(t *testing.T) {
	// Spot check against the known-correct decode table: encoding then
	// decoding must preserve the sign of every sampled input.
	for s := int16(-32000); s < 32000; s += 137 {
		b := encodeUlawSample(s)
		got := ulawTable[b]
		if (got < 0) != (s < 0) && s != 0 {
			t.Fatalf("sign mismatch encoding %d -> decoded %d", s, got)
		}
	}
}
