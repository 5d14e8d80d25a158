package audio

import "fmt"

// Codec identifies the wire encoding of a telephony audio frame.
type Codec string

const (
	CodecPCM      Codec = "pcm"
	CodecG711Ulaw Codec = "g711_ulaw"
	CodecG711Alaw Codec = "g711_alaw"
)

// Decode converts an encoded frame to 16-bit PCM samples and reports the
// sample rate of the result (telephony codecs are 8 kHz).
func Decode(data []byte, codec Codec) ([]int16, int, error) {
	switch codec {
	case CodecPCM:
		return BytesToPCM16(data), 16000, nil
	case CodecG711Ulaw:
		return DecodeUlawPCM16(data), 8000, nil
	case CodecG711Alaw:
		return DecodeAlawPCM16(data), 8000, nil
	default:
		return nil, 0, fmt.Errorf("unsupported codec: %s", codec)
	}
}

// UlawFrameToPCM16k decodes one telephony μ-law frame (8 kHz) and upsamples
// it to 16 kHz PCM16 for the GPU inference service, per the decode-path
// upsample rule in DecodePathUpsample.
func UlawFrameToPCM16k(frame []byte) []int16 {
	pcm8k := DecodeUlawPCM16(frame)
	return DecodePathUpsample(pcm8k)
}

// PCM8kToUlawFrame encodes 8 kHz PCM16 samples (already resampled by the
// GPU TTS service) to μ-law bytes. It never resamples or decimates — the
// caller is responsible for supplying 8 kHz input.
func PCM8kToUlawFrame(samples []int16) []byte {
	return EncodeUlaw(samples)
}
