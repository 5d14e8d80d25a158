package audio

import "encoding/binary"

// BytesToPCM16 interprets a little-endian byte buffer as 16-bit PCM samples.
func BytesToPCM16(data []byte) []int16 {
	n := len(data) / 2
	samples := make([]int16, n)
	for i := range n {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}

// PCM16ToBytes serializes 16-bit PCM samples to a little-endian byte buffer.
func PCM16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
