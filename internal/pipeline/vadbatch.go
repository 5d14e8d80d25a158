package pipeline

import (
	"context"
	"encoding/base64"
	"log/slog"

	"github.com/hubenschmidt/voicebridge-gateway/internal/audio"
	"github.com/hubenschmidt/voicebridge-gateway/internal/gpuclient"
	"github.com/hubenschmidt/voicebridge-gateway/internal/metrics"
)

// vadOutcome is delivered from the VAD request goroutine back to the
// pipeline's event-processing goroutine.
type vadOutcome struct {
	result *gpuclient.VADResult
	batch  []int16
	err    error
}

// accumulateFrame decodes and upsamples one μ-law frame to 16kHz PCM16 and
// appends it to the session's VAD accumulator. Once 10 frames (200ms) have
// accumulated, the batch is spliced off and handed to processBatch.
func (p *Pipeline) accumulateFrame(ctx context.Context, ulawFrame []byte) error {
	pcm16k := audio.UlawFrameToPCM16k(ulawFrame)
	p.sess.VADAccumulator = append(p.sess.VADAccumulator, pcm16k...)

	if len(p.sess.VADAccumulator) < batchSamples16k {
		return nil
	}

	batch := make([]int16, batchSamples16k)
	copy(batch, p.sess.VADAccumulator[:batchSamples16k])
	p.sess.VADAccumulator = p.sess.VADAccumulator[batchSamples16k:]

	return p.processBatch(ctx, batch)
}

// processBatch implements the VAD-batching rules of the incoming-audio
// path: pre-roll maintenance, silence dropping, and the single-in-flight
// invariant.
func (p *Pipeline) processBatch(ctx context.Context, batch []int16) error {
	p.sess.PushPreRoll(batch)

	silent := audio.IsSilence(audio.PCM16ToBytes(batch))
	if silent && !p.sess.UserIsSpeaking && !p.sess.AwaitingTurnConfirmation {
		// Dropped without reaching the server VAD: pure silence outside any
		// turn advances nothing and costs nothing to skip. Silence DURING
		// an active turn must still reach the VAD below so its stop-frame
		// counter can advance toward speech_end.
		return nil
	}

	if p.sess.VADRequestInFlight {
		if p.sess.UserIsSpeaking {
			p.sess.SpeechBuffer = append(p.sess.SpeechBuffer, batch...)
		}
		return nil
	}

	p.sess.VADRequestInFlight = true
	metrics.VADRequestsInFlight.Inc()
	p.issueVADRequest(ctx, batch)
	return nil
}

func (p *Pipeline) issueVADRequest(ctx context.Context, batch []int16) {
	wavBytes := audio.EncodePCM16ToWAV(batch, 16000)
	wavB64 := base64.StdEncoding.EncodeToString(wavBytes)

	go func() {
		result, err := p.gpu.DetectVAD(ctx, p.sess.InternalID, wavB64, 16000)
		select {
		case p.vadResults <- vadOutcome{result: result, batch: batch, err: err}:
		case <-ctx.Done():
			slog.Debug("vad result dropped, call context done", "call_id", p.sess.CallID)
		}
	}()
}
