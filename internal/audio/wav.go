package audio

import (
	"bytes"
	"encoding/binary"

	"github.com/go-audio/wav"
)

// EncodePCM16ToWAV prepends a canonical 44-byte RIFF/WAVE/fmt/data header
// (mono, 16-bit) to PCM16 samples at sampleRate.
func EncodePCM16ToWAV(samples []int16, sampleRate int) []byte {
	dataLen := len(samples) * 2
	totalLen := 44 + dataLen

	buf := make([]byte, totalLen)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(totalLen-8))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2)) // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], 2)                    // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16)                   // bits per sample
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))

	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[44+i*2:], uint16(s))
	}
	return buf
}

// ParseWAV extracts PCM16 samples and the sample rate from a WAV byte
// buffer. If RIFF magic is present, it walks the chunk list (via
// go-audio/wav, which respects even-byte chunk padding) to find the data
// chunk rather than assuming it starts at offset 44. If the magic is
// absent, data is treated as raw PCM16 starting at offset 44 for
// compatibility with senders that omit a proper header.
func ParseWAV(data []byte) ([]int16, int, error) {
	if len(data) < 4 || string(data[0:4]) != "RIFF" {
		if len(data) <= 44 {
			return nil, 0, nil
		}
		return BytesToPCM16(data[44:]), 16000, nil
	}

	dec := wav.NewDecoder(bytes.NewReader(data))
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		if len(data) <= 44 {
			return nil, 0, err
		}
		return BytesToPCM16(data[44:]), 16000, nil
	}

	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int16(v)
	}
	return samples, buf.Format.SampleRate, nil
}
