package pipeline

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/hubenschmidt/voicebridge-gateway/internal/callsession"
	"github.com/hubenschmidt/voicebridge-gateway/internal/llmsession"
	"github.com/hubenschmidt/voicebridge-gateway/internal/metrics"
)

// handleLLMEvent dispatches one event from the LLM session to the
// sentence-chunking, tool-call, or error-handling logic.
func (p *Pipeline) handleLLMEvent(ctx context.Context, ev llmsession.Event) {
	switch ev.Type {
	case llmsession.EventTextDelta:
		p.onTextDelta(ev.Token)
	case llmsession.EventTextDone:
		p.onTextDone(ev.FullText)
	case llmsession.EventFunctionCall:
		p.onFunctionCall(ctx, ev.CallID, ev.Name, ev.Args)
	case llmsession.EventItemCreated:
		p.sess.RemoteItemIDs = append(p.sess.RemoteItemIDs, ev.ItemID)
		p.maybeSummarize(ctx)
	case llmsession.EventError:
		metrics.Errors.WithLabelValues("llm", "protocol").Inc()
		slog.Error("llm session error", "call_id", p.sess.CallID, "error", ev.Err)
	case llmsession.EventClosed:
		slog.Info("llm session closed", "call_id", p.sess.CallID, "error", ev.Err)
	}
}

// onTextDelta accumulates streamed tokens and enqueues each completed
// sentence onto the TTS queue as soon as a boundary is found.
func (p *Pipeline) onTextDelta(token string) {
	if sentence := p.ttsText.Add(token); sentence != "" {
		p.enqueueSpeech(sentence)
	}
}

// onTextDone flushes any non-empty remainder left in the sentence buffer.
func (p *Pipeline) onTextDone(fullText string) {
	if remainder := p.ttsText.Flush(); remainder != "" {
		p.enqueueSpeech(remainder)
	}
}

// enqueueSpeech pushes one sentence onto the per-call serial TTS queue.
// The task skips playback once the call is ending or ended. Sentences made
// obsolete by an interrupt are dropped by interrupt's TTSQueue.Reset, or,
// if already streaming, stopped by the ttsEpoch check.
func (p *Pipeline) enqueueSpeech(text string) {
	p.sess.TTSQueue.Enqueue(callsession.SynthesisTask{
		Text: text,
		Run: func() {
			if p.sess.IsEnding() {
				return
			}
			p.synthesizeAndStream(text)
		},
	})
}

// onFunctionCall handles a tool invocation: optionally speaks a filler
// phrase immediately (masking latency), then dispatches asynchronously and
// sends the result back once complete.
func (p *Pipeline) onFunctionCall(ctx context.Context, callID, name string, args []byte) {
	if p.sess.Cfg.FillerPhrases && !p.sess.AIIsSpeaking && len(p.fillers) > 0 {
		p.enqueueSpeech(p.fillers[rand.Intn(len(p.fillers))])
	}

	go func() {
		result := p.dispatchTool(ctx, name, args)
		if err := p.llm.SendFunctionResult(callID, result); err != nil {
			slog.Error("send function result", "call_id", p.sess.CallID, "tool", name, "error", err)
		}
	}()
}

// dispatchTool routes to the built-in action handler or the generic HTTP
// tool engine, applying whatever session-level effect a built-in produces
// (end call, transfer, language switch) before returning the LLM-facing
// result payload.
func (p *Pipeline) dispatchTool(ctx context.Context, name string, args []byte) any {
	start := time.Now()
	defer func() { metrics.ToolCallDuration.WithLabelValues(name).Observe(time.Since(start).Seconds()) }()

	if p.toolEng.IsBuiltin(name) {
		action, err := p.toolEng.DispatchBuiltin(name, args)
		if err != nil {
			return map[string]any{"success": false, "error": err.Error()}
		}
		p.applyBuiltinAction(ctx, action)
		return map[string]any{"success": true}
	}

	result, err := p.toolEng.DispatchHTTP(ctx, name, args, p.sess)
	if err != nil {
		return map[string]any{"success": false, "error": err.Error()}
	}
	return result
}
