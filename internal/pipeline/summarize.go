package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/hubenschmidt/voicebridge-gateway/internal/metrics"
)

const summarizationWordThreshold = 1500

// maybeSummarize checks the running transcript's word count on every new
// conversation item and, when the assistant's context_summarization flag
// is enabled and the threshold is exceeded, replaces the transcript with a
// short summary injected as system context. Re-entrancy is guarded by
// SummarizationInFlight.
func (p *Pipeline) maybeSummarize(ctx context.Context) {
	if !p.sess.Cfg.ContextSummarizing || p.sess.SummarizationInFlight {
		return
	}
	if p.sess.TranscriptWordCount() <= summarizationWordThreshold {
		return
	}

	p.sess.SummarizationInFlight = true
	itemIDs := append([]string(nil), p.sess.RemoteItemIDs...)

	go func() {
		defer func() { p.sess.SummarizationInFlight = false }()

		summary, err := p.summarizeTranscript(ctx)
		if err != nil {
			metrics.Errors.WithLabelValues("summarize", "llm").Inc()
			slog.Error("summarization failed", "call_id", p.sess.CallID, "error", err)
			return
		}

		if err := p.llm.InjectContext(summary); err != nil {
			slog.Error("inject summary context", "call_id", p.sess.CallID, "error", err)
			return
		}
		for _, id := range itemIDs {
			if err := p.llm.DeleteItem(id); err != nil {
				slog.Error("delete summarized item", "call_id", p.sess.CallID, "item_id", id, "error", err)
			}
		}
		p.sess.ClearTranscript()
		metrics.SummarizationsTotal.Inc()
	}()
}

// summarizeTranscript produces a 2-4 sentence summary of the running
// transcript via an out-of-band chat completion. The realtime session
// protocol has no dedicated summarize verb and is mid-conversation, so this
// uses a plain one-shot chat completion against the same provider rather
// than routing through the realtime WebSocket.
func (p *Pipeline) summarizeTranscript(ctx context.Context) (string, error) {
	var b strings.Builder
	for _, entry := range p.sess.Transcript {
		b.WriteString(entry.Role)
		b.WriteString(": ")
		b.WriteString(entry.Text)
		b.WriteString("\n")
	}

	client := openai.NewClient(option.WithAPIKey(p.summarizerAPIKey))
	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModelGPT4oMini,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("Summarize the conversation below in 2 to 4 sentences, preserving any commitments made."),
			openai.UserMessage(b.String()),
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
