package pipeline

const (
	frameDurationMs = 20
	pcm16FrameBytes = 320 // 20ms of 8kHz PCM16 (160 samples * 2 bytes) from the GPU TTS stream
	ulawFrameBytes  = 160 // 20ms of 8kHz mu-law, one byte per sample, as the telephony protocol requires
)

// frameAssembler peels complete telephony frames off a growing list of
// inbound PCM16 chunks without ever concatenating the whole stream — doing
// that per chunk would be quadratic in stream length. Each inbound chunk is
// appended to a list; Drain walks the list taking exactly pcm16FrameBytes
// at a time, splitting a chunk across its boundary when necessary and
// leaving the remainder as the new head of the list.
type frameAssembler struct {
	chunks [][]byte
	total  int
}

func newFrameAssembler() *frameAssembler {
	return &frameAssembler{}
}

// Push appends one inbound PCM16 chunk from the GPU TTS stream.
func (f *frameAssembler) Push(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	f.chunks = append(f.chunks, chunk)
	f.total += len(chunk)
}

// Drain returns as many complete pcm16FrameBytes frames as are currently
// buffered, each ready for μ-law encoding.
func (f *frameAssembler) Drain() [][]byte {
	var frames [][]byte
	for f.total >= pcm16FrameBytes {
		frames = append(frames, f.take(pcm16FrameBytes))
	}
	return frames
}

// Remainder flushes whatever partial frame is left at stream end. The
// caller only emits it if it has at least 2 bytes (one PCM16 sample).
func (f *frameAssembler) Remainder() []byte {
	if f.total == 0 {
		return nil
	}
	return f.take(f.total)
}

// take removes exactly n bytes from the head of the chunk list, splitting
// the first chunk if n falls in its middle.
func (f *frameAssembler) take(n int) []byte {
	out := make([]byte, 0, n)
	for n > 0 && len(f.chunks) > 0 {
		head := f.chunks[0]
		if len(head) <= n {
			out = append(out, head...)
			n -= len(head)
			f.total -= len(head)
			f.chunks = f.chunks[1:]
			continue
		}
		out = append(out, head[:n]...)
		f.chunks[0] = head[n:]
		f.total -= n
		n = 0
	}
	return out
}
