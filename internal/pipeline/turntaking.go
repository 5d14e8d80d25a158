package pipeline

import (
	"context"
	"encoding/base64"
	"log/slog"
	"time"

	"github.com/hubenschmidt/voicebridge-gateway/internal/audio"
	"github.com/hubenschmidt/voicebridge-gateway/internal/gpuclient"
	"github.com/hubenschmidt/voicebridge-gateway/internal/metrics"
)

// turnOutcome carries the joined result of the parallel smart-turn check
// and STT transcription issued at speech_end.
type turnOutcome struct {
	turn       *gpuclient.TurnResult
	turnErr    error
	stt        *gpuclient.STTResult
	sttErr     error
	bufferWAV  []int16 // the buffer these calls were issued against
	isContinuation bool
}

// handleVADEvent runs the fast-interrupt check and then the full
// speech_start / silence / speech_end state machine for one VAD reply.
func (p *Pipeline) handleVADEvent(ctx context.Context, result *gpuclient.VADResult, batch []int16) {
	p.applyFastInterrupt(ctx, result)

	switch result.Event {
	case gpuclient.EventSpeechStart:
		p.onSpeechStart(ctx, batch)
	case gpuclient.EventSilence:
		p.onSilence(ctx)
	case gpuclient.EventSpeechEnd:
		p.onSpeechEnd(ctx, batch)
	}
}

// applyFastInterrupt implements the probability-based bypass that lets the
// caller interrupt AI speech without waiting for a confirmed speech_start.
// It never returns early — the caller's audio must still be captured by
// the state machine below.
func (p *Pipeline) applyFastInterrupt(ctx context.Context, result *gpuclient.VADResult) {
	if p.sess.AIIsSpeaking && result.Probability >= fastInterruptProb {
		p.sess.FastInterruptCount++
		if p.sess.FastInterruptCount >= interruptThreshold {
			p.sess.FastInterruptCount = 0
			metrics.FastInterrupts.Inc()
			p.interrupt(ctx)
		}
		return
	}
	p.sess.FastInterruptCount = 0
}

func (p *Pipeline) onSpeechStart(ctx context.Context, batch []int16) {
	switch {
	case p.sess.AwaitingTurnConfirmation:
		p.sess.TurnSilenceMs = 0
		p.sess.UserIsSpeaking = true
		p.stopSilenceTimer()
		p.sess.SpeechBuffer = append(p.sess.SpeechBuffer, batch...)
	case !p.sess.UserIsSpeaking:
		p.sess.TurnStart = time.Now()
		p.stopSilenceTimer()
		p.sess.SpeechStartedDuringAI = p.sess.AIIsSpeaking
		p.sess.SpeechBuffer = p.sess.DrainPreRollInto(p.sess.SpeechBuffer)
		p.sess.SpeechBuffer = append(p.sess.SpeechBuffer, batch...)
		p.sess.UserIsSpeaking = true
		metrics.SpeechSegments.Inc()
	default:
		p.sess.SpeechBuffer = append(p.sess.SpeechBuffer, batch...)
	}

	p.sess.ConfirmedSpeechStarts++
	if p.sess.ConfirmedSpeechStarts >= interruptThreshold && p.sess.AIIsSpeaking {
		p.sess.SpeechStartedDuringAI = false
		p.interrupt(ctx)
	}

	if !p.sess.AwaitingTurnConfirmation && time.Since(p.sess.TurnStart) > maxSpeechDuration {
		p.forceTranscription(ctx)
	}
}

func (p *Pipeline) onSilence(ctx context.Context) {
	if !p.sess.AwaitingTurnConfirmation {
		p.sess.ConfirmedSpeechStarts = 0
		return
	}
	p.sess.TurnSilenceMs += batchMs
	if p.sess.TurnSilenceMs >= int(smartTurnFallback.Milliseconds()) {
		p.sess.AwaitingTurnConfirmation = false
		metrics.SmartTurnFallbacks.Inc()
		p.forceTranscription(ctx)
		p.restartSilenceTimer()
	}
}

func (p *Pipeline) onSpeechEnd(ctx context.Context, batch []int16) {
	isContinuation := p.sess.AwaitingTurnConfirmation
	turnDuration := time.Since(p.sess.TurnStart)

	p.sess.SpeechBuffer = append(p.sess.SpeechBuffer, batch...)
	p.sess.UserIsSpeaking = false
	p.sess.ConfirmedSpeechStarts = 0
	p.sess.TurnStart = time.Time{}

	if !isContinuation && turnDuration < minSpeechDuration {
		p.sess.SpeechBuffer = p.sess.SpeechBuffer[:0]
		p.restartSilenceTimer()
		return
	}
	if !isContinuation && p.sess.SpeechStartedDuringAI && p.sess.ConfirmedSpeechStarts < interruptThreshold {
		p.sess.SpeechBuffer = p.sess.SpeechBuffer[:0]
		p.restartSilenceTimer()
		return
	}
	if len(p.sess.SpeechBuffer) == 0 {
		p.sess.AwaitingTurnConfirmation = false
		p.restartSilenceTimer()
		return
	}

	p.issueTurnAndSTT(ctx, isContinuation)
}

// forceTranscription handles the max-speech and smart-turn-fallback cases:
// flush the buffer, reset turn flags, and transcribe without waiting for a
// smart-turn verdict.
func (p *Pipeline) forceTranscription(ctx context.Context) {
	buf := p.sess.SpeechBuffer
	p.sess.SpeechBuffer = nil
	p.sess.UserIsSpeaking = false
	p.sess.AwaitingTurnConfirmation = false
	p.sess.TurnStart = time.Time{}
	if len(buf) == 0 {
		return
	}
	p.sess.STTRequestInFlight = true
	go func() {
		wav := audio.EncodePCM16ToWAV(buf, 16000)
		result, err := p.gpu.Transcribe(ctx, base64.StdEncoding.EncodeToString(wav), p.sess.Cfg.LanguageCode)
		p.sess.STTRequestInFlight = false
		if err != nil {
			metrics.Errors.WithLabelValues("stt", "http").Inc()
			slog.Error("forced transcription failed", "call_id", p.sess.CallID, "error", err)
			return
		}
		if result.Text != "" {
			p.sess.AppendTranscript("user", result.Text, time.Since(p.sess.CreatedAt).Seconds())
			if err := p.llm.SendUserMessage(result.Text); err != nil {
				slog.Error("send user message", "call_id", p.sess.CallID, "error", err)
			}
		}
	}()
}

// issueTurnAndSTT runs the smart-turn classifier and STT concurrently
// against the same captured buffer, per the parallel speech_end rule.
func (p *Pipeline) issueTurnAndSTT(ctx context.Context, isContinuation bool) {
	buf := make([]int16, len(p.sess.SpeechBuffer))
	copy(buf, p.sess.SpeechBuffer)
	p.sess.SpeechBuffer = p.sess.SpeechBuffer[:0]

	wavB64 := base64.StdEncoding.EncodeToString(audio.EncodePCM16ToWAV(buf, 16000))
	p.sess.STTRequestInFlight = true

	var out turnOutcome
	out.bufferWAV = buf
	out.isContinuation = isContinuation

	done := make(chan struct{}, 2)
	go func() {
		out.turn, out.turnErr = p.gpu.CheckTurn(ctx, wavB64)
		done <- struct{}{}
	}()
	go func() {
		out.stt, out.sttErr = p.gpu.Transcribe(ctx, wavB64, p.sess.Cfg.LanguageCode)
		done <- struct{}{}
	}()

	go func() {
		<-done
		<-done
		p.sess.STTRequestInFlight = false
		select {
		case p.turnDone <- out:
		case <-ctx.Done():
		}
	}()
}

func (p *Pipeline) handleTurnSTTResult(ctx context.Context, out turnOutcome) {
	if out.turnErr != nil {
		metrics.Errors.WithLabelValues("turn", "http").Inc()
	}
	if out.turn == nil || !out.turn.Complete {
		p.sess.SpeechBuffer = append(p.sess.SpeechBuffer, out.bufferWAV...)
		p.sess.AwaitingTurnConfirmation = true
		p.sess.TurnSilenceMs = 0
		return
	}

	p.sess.AwaitingTurnConfirmation = false
	if out.sttErr != nil || out.stt == nil {
		metrics.Errors.WithLabelValues("stt", "http").Inc()
		p.retrySTT(ctx, out.bufferWAV)
		p.restartSilenceTimer()
		return
	}
	if out.stt.Text != "" {
		p.sess.AppendTranscript("user", out.stt.Text, time.Since(p.sess.CreatedAt).Seconds())
		if err := p.llm.SendUserMessage(out.stt.Text); err != nil {
			slog.Error("send user message", "call_id", p.sess.CallID, "error", err)
		}
	}
	p.restartSilenceTimer()
}

// retrySTT performs a sequential fallback transcription when the parallel
// STT call issued alongside the smart-turn check failed outright.
func (p *Pipeline) retrySTT(ctx context.Context, buf []int16) {
	wavB64 := base64.StdEncoding.EncodeToString(audio.EncodePCM16ToWAV(buf, 16000))
	result, err := p.gpu.Transcribe(ctx, wavB64, p.sess.Cfg.LanguageCode)
	if err != nil {
		metrics.Errors.WithLabelValues("stt", "retry_http").Inc()
		slog.Error("stt retry failed", "call_id", p.sess.CallID, "error", err)
		return
	}
	if result.Text != "" {
		p.sess.AppendTranscript("user", result.Text, time.Since(p.sess.CreatedAt).Seconds())
		if err := p.llm.SendUserMessage(result.Text); err != nil {
			slog.Error("send user message", "call_id", p.sess.CallID, "error", err)
		}
	}
}
