package pipeline

import (
	"context"
	"log/slog"
)

// interrupt cancels in-flight AI speech: the LLM response, the provider's
// buffered audio, and the local TTS state. Not-yet-started sentences are
// discarded by resetting the TTS serial queue; a sentence already streaming
// when the interrupt fires is stopped by bumping ttsEpoch, which
// synthesizeAndStream checks on every read of the TTS stream.
func (p *Pipeline) interrupt(ctx context.Context) {
	if err := p.llm.CancelResponse(); err != nil {
		slog.Error("cancel llm response", "call_id", p.sess.CallID, "error", err)
	}
	if err := p.telephony.SendClear(); err != nil {
		slog.Error("send telephony clear", "call_id", p.sess.CallID, "error", err)
	}
	p.sess.AIIsSpeaking = false
	p.ttsText.Flush()
	p.sess.PreRoll = p.sess.PreRoll[:0]
	p.ttsEpoch.Add(1)
	p.sess.TTSQueue.Reset()
}
