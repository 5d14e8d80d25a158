package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/hubenschmidt/voicebridge-gateway/internal/callsession"
	"github.com/hubenschmidt/voicebridge-gateway/internal/metrics"
	"github.com/hubenschmidt/voicebridge-gateway/internal/tools"
)

// applyBuiltinAction applies the session-level effect of a dispatched
// built-in tool call.
func (p *Pipeline) applyBuiltinAction(ctx context.Context, action *tools.BuiltinAction) {
	switch action.Kind {
	case tools.BuiltinEndCall:
		p.EndCall(ctx, action.EndCallReason)
	case tools.BuiltinTransferNumber:
		p.TransferToNumber(ctx, action)
	case tools.BuiltinTransferAgent:
		p.TransferToAgent(ctx, action)
	case tools.BuiltinSwitchLanguage:
		p.sess.Cfg.LanguageCode = action.Language
		p.sess.Cfg.VoiceID = action.Voice
	}
}

// TransferToNumber optionally speaks a pre-transfer message, then issues a
// telephony call update with a TwiML <Dial><Number> or <Dial><Sip> body
// depending on transfer_type, and enters cleanup with reason=transferred.
func (p *Pipeline) TransferToNumber(ctx context.Context, action *tools.BuiltinAction) {
	if action.TransferMessage != "" {
		p.speakBlocking(action.TransferMessage)
	}

	twiml, err := buildTransferTwiML(action.TransferType, action.TransferNumber)
	outcome := "ok"
	if err != nil {
		slog.Error("build transfer twiml", "call_id", p.sess.CallID, "error", err)
		outcome = "error"
	} else if err := p.telephony.UpdateCall(twiml); err != nil {
		slog.Error("update call for number transfer", "call_id", p.sess.CallID, "error", err)
		outcome = "error"
	}
	metrics.TransfersTotal.WithLabelValues("number", outcome).Inc()

	p.Cleanup(ctx, "transferred")
}

// TransferToAgent optionally speaks a pre-transfer message, resolves the
// target webhook URL via the configuration service, and issues a telephony
// call update pointing at it.
func (p *Pipeline) TransferToAgent(ctx context.Context, action *tools.BuiltinAction) {
	if action.DelaySeconds > 0 {
		time.Sleep(time.Duration(action.DelaySeconds) * time.Second)
	}
	if action.TransferMessage != "" {
		p.speakBlocking(action.TransferMessage)
	}

	webhookURL, err := p.configSvc.ResolveAgentWebhook(ctx, action.AgentID)
	if err != nil {
		slog.Error("resolve agent webhook", "call_id", p.sess.CallID, "agent_id", action.AgentID, "error", err)
		metrics.TransfersTotal.WithLabelValues("agent", "error").Inc()
		p.Cleanup(ctx, "transfer_failed")
		return
	}

	outcome := "ok"
	if err := p.telephony.UpdateCall(webhookRedirectTwiML(webhookURL)); err != nil {
		slog.Error("update call for agent transfer", "call_id", p.sess.CallID, "error", err)
		outcome = "error"
	}
	metrics.TransfersTotal.WithLabelValues("agent", outcome).Inc()

	p.Cleanup(ctx, "transferred")
}

// EndCall is idempotent: if the call is already ending or ended, it is a
// no-op. Otherwise it marks the call ending, issues a telephony hangup,
// and always proceeds to cleanup regardless of the hangup's outcome.
func (p *Pipeline) EndCall(ctx context.Context, reason string) {
	if p.sess.IsEnding() {
		return
	}
	p.sess.SetStatus(callsession.StatusEnding)
	if err := p.telephony.Hangup(); err != nil {
		slog.Error("telephony hangup", "call_id", p.sess.CallID, "error", err)
	}
	p.Cleanup(ctx, reason)
}

// Cleanup is idempotent: sets status ended, clears all timers, disconnects
// the LLM socket, best-effort resets server-side VAD state, and POSTs a
// terminal completion payload. It does not touch the registry: the caller
// (the call's owning goroutine) is responsible for calling registry.Remove
// after Cleanup returns.
func (p *Pipeline) Cleanup(ctx context.Context, reason string) {
	if !p.cleanupOnce.CompareAndSwap(false, true) {
		return
	}

	p.sess.SetStatus(callsession.StatusEnded)
	p.stopAllTimers()

	// llm is nil if cleanup runs before AttachLLM (e.g. the LLM connect
	// itself failed).
	if p.llm != nil {
		if err := p.llm.Close(); err != nil {
			slog.Error("close llm session", "call_id", p.sess.CallID, "error", err)
		}
	}

	resetCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := p.gpu.ResetVAD(resetCtx, p.sess.InternalID); err != nil {
		slog.Warn("reset vad state", "call_id", p.sess.CallID, "error", err)
	}

	if p.configSvc != nil {
		report := CompletionReport{
			CallID:             p.sess.CallID,
			Transcript:         p.sess.Transcript,
			DurationSeconds:    time.Since(p.sess.CreatedAt).Seconds(),
			EndReason:          reason,
			ExtractedVariables: p.sess.ToolVariables,
		}
		if err := p.configSvc.Complete(ctx, report); err != nil {
			slog.Error("post completion report", "call_id", p.sess.CallID, "error", err)
		}
	}
}

// speakBlocking enqueues a message and waits for the TTS queue to drain it
// before returning, used for pre-transfer announcements that must finish
// before the call is handed off.
func (p *Pipeline) speakBlocking(text string) {
	done := make(chan struct{})
	p.sess.TTSQueue.Enqueue(callsession.SynthesisTask{
		Text: text,
		Run: func() {
			p.synthesizeAndStream(text)
			close(done)
		},
	})
	<-done
}

func buildTransferTwiML(transferType, number string) (string, error) {
	var verb string
	switch transferType {
	case "sip_refer":
		verb = "Sip"
	default:
		verb = "Number"
	}
	tmpl := template.Must(template.New("transfer").Parse(
		`<?xml version="1.0" encoding="UTF-8"?><Response><Dial><{{.Verb}}>{{.Target}}</{{.Verb}}></Dial></Response>`,
	))
	var b strings.Builder
	if err := tmpl.Execute(&b, struct{ Verb, Target string }{Verb: verb, Target: number}); err != nil {
		return "", fmt.Errorf("render transfer twiml: %w", err)
	}
	return b.String(), nil
}

func webhookRedirectTwiML(url string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?><Response><Redirect method="POST">%s</Redirect></Response>`, template.HTMLEscapeString(url))
}
