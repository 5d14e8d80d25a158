package audio

// Resample converts float32 samples from srcRate to dstRate using linear
// interpolation. Kept for contexts needing an arbitrary rate conversion.
// Returns the input unchanged if rates already match.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate == dstRate {
		return samples
	}

	ratio := float64(srcRate) / float64(dstRate)
	outLen := int(float64(len(samples)) / ratio)
	out := make([]float32, outLen)

	for i := range outLen {
		srcIdx := float64(i) * ratio
		idx := int(srcIdx)
		frac := float32(srcIdx - float64(idx))
		out[i] = interpolate(samples, idx, frac)
	}

	return out
}

func interpolate(samples []float32, idx int, frac float32) float32 {
	if idx+1 >= len(samples) {
		return samples[len(samples)-1]
	}
	return samples[idx]*(1-frac) + samples[idx+1]*frac
}

// DecodePathUpsample doubles an 8 kHz PCM16 stream to 16 kHz for the GPU
// inference service. Each decoded sample is followed by the arithmetic mean
// of it and its successor; the final sample is duplicated rather than
// averaged with a nonexistent successor. This is deliberately not generic
// linear interpolation — it's the exact rule the telephony decode path uses.
func DecodePathUpsample(samples8k []int16) []int16 {
	if len(samples8k) == 0 {
		return nil
	}
	out := make([]int16, 0, len(samples8k)*2)
	for i, s := range samples8k {
		out = append(out, s)
		if i+1 < len(samples8k) {
			out = append(out, meanInt16(s, samples8k[i+1]))
		} else {
			out = append(out, s)
		}
	}
	return out
}

func meanInt16(a, b int16) int16 {
	return int16((int32(a) + int32(b)) / 2)
}
