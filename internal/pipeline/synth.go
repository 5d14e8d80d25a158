package pipeline

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/hubenschmidt/voicebridge-gateway/internal/audio"
	"github.com/hubenschmidt/voicebridge-gateway/internal/metrics"
)

// synthesizeAndStream requests streaming TTS for one sentence and frames
// the resulting 8kHz PCM16 audio into 20ms μ-law telephony frames as it
// arrives. Runs synchronously within one TTS queue task, so the queue
// itself provides the total ordering guarantee across sentences.
func (p *Pipeline) synthesizeAndStream(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	p.stopSilenceTimer()
	p.sess.AIIsSpeaking = true

	startEpoch := p.ttsEpoch.Load()

	ctx := context.Background()
	stream, err := p.gpu.SynthesizeStream(ctx, text, p.sess.Cfg.LanguageCode, p.sess.Cfg.VoiceID)
	if err != nil {
		metrics.Errors.WithLabelValues("tts", "connect").Inc()
		slog.Error("tts stream connect failed", "call_id", p.sess.CallID, "error", err)
		p.finishSpeechTurn()
		return
	}
	defer stream.Close()

	frames := newFrameAssembler()
	buf := make([]byte, 4096)
	for {
		if p.sess.IsEnding() || p.ttsEpoch.Load() != startEpoch {
			break
		}
		n, readErr := stream.Read(buf)
		if n > 0 {
			frames.Push(append([]byte(nil), buf[:n]...))
			for _, pcmFrame := range frames.Drain() {
				p.emitUlawFrame(pcmFrame)
			}
		}
		if readErr != nil {
			if readErr != io.EOF {
				metrics.Errors.WithLabelValues("tts", "stream").Inc()
				slog.Error("tts stream read failed", "call_id", p.sess.CallID, "error", readErr)
			}
			break
		}
	}

	if remainder := frames.Remainder(); len(remainder) >= 2 {
		p.emitUlawFrame(remainder)
	}

	p.finishSpeechTurn()
}

func (p *Pipeline) emitUlawFrame(pcm16Bytes []byte) {
	samples := audio.BytesToPCM16(pcm16Bytes)
	ulaw := audio.PCM8kToUlawFrame(samples)
	if err := p.telephony.SendAudioFrame(ulaw); err != nil {
		slog.Error("send audio frame", "call_id", p.sess.CallID, "error", err)
	}
}

// finishSpeechTurn emits the end-of-speech mark. ai-is-speaking is cleared
// only once the mark echoes back (see HandleMarkEcho), not here.
func (p *Pipeline) finishSpeechTurn() {
	if err := p.telephony.SendMark("ai_speech_end"); err != nil {
		slog.Error("send mark", "call_id", p.sess.CallID, "error", err)
	}
}

// HandleMarkEcho processes a mark event echoed back by the telephony
// provider. Only the ai_speech_end mark is meaningful to the pipeline.
func (p *Pipeline) HandleMarkEcho(name string) {
	if name != "ai_speech_end" {
		return
	}
	p.sess.AIIsSpeaking = false
	p.restartSilenceTimer()
}
