package pipeline

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/hubenschmidt/voicebridge-gateway/internal/callsession"
	"github.com/hubenschmidt/voicebridge-gateway/internal/tools"
)

func TestEndCallIsIdempotent(t *testing.T) {
	llm := newTestLLM(t)
	telephony := &fakeTelephony{}
	cfgSvc := &fakeConfigService{}
	gpu := newTestGPU(t, func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(204) })
	p, _ := newTestPipeline(t, gpu, llm, telephony, cfgSvc)

	p.EndCall(context.Background(), "user_requested")
	p.EndCall(context.Background(), "user_requested")

	if telephony.hangupCount() != 1 {
		t.Fatalf("expected exactly one hangup, got %d", telephony.hangupCount())
	}
	if cfgSvc.completeCount() != 1 {
		t.Fatalf("expected exactly one completion report, got %d", cfgSvc.completeCount())
	}
}

func TestCleanupIsIdempotentAcrossConcurrentCallers(t *testing.T) {
	llm := newTestLLM(t)
	telephony := &fakeTelephony{}
	cfgSvc := &fakeConfigService{}
	gpu := newTestGPU(t, func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(204) })
	p, sess := newTestPipeline(t, gpu, llm, telephony, cfgSvc)

	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		go func() {
			p.Cleanup(context.Background(), "transferred")
			done <- struct{}{}
		}()
	}
	for i := 0; i < 5; i++ {
		<-done
	}

	if cfgSvc.completeCount() != 1 {
		t.Fatalf("expected exactly one completion report across concurrent cleanups, got %d", cfgSvc.completeCount())
	}
	if sess.Status() != callsession.StatusEnded {
		t.Fatalf("status = %q, want ended", sess.Status())
	}
}

// TestCleanupToleratesNilLLM covers the bootstrap path where the LLM
// connect itself fails: Cleanup runs before AttachLLM ever assigns a
// session, so it must not dereference a nil llm.
func TestCleanupToleratesNilLLM(t *testing.T) {
	telephony := &fakeTelephony{}
	cfgSvc := &fakeConfigService{}
	gpu := newTestGPU(t, func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(204) })
	p, sess := newTestPipeline(t, gpu, nil, telephony, cfgSvc)

	p.Cleanup(context.Background(), "llm_connect_failed")

	if sess.Status() != callsession.StatusEnded {
		t.Fatalf("status = %q, want ended", sess.Status())
	}
	if cfgSvc.completeCount() != 1 {
		t.Fatalf("expected exactly one completion report, got %d", cfgSvc.completeCount())
	}
}

func TestTransferToNumberBuildsDialTwiML(t *testing.T) {
	llm := newTestLLM(t)
	telephony := &fakeTelephony{}
	cfgSvc := &fakeConfigService{}
	gpu := newTestGPU(t, func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(204) })
	p, _ := newTestPipeline(t, gpu, llm, telephony, cfgSvc)

	action := &tools.BuiltinAction{
		Kind:           tools.BuiltinTransferNumber,
		TransferNumber: "+15551234567",
		TransferType:   "conference",
	}
	p.TransferToNumber(context.Background(), action)

	if len(telephony.calls) != 1 {
		t.Fatalf("expected one UpdateCall invocation, got %d", len(telephony.calls))
	}
	if !strings.Contains(telephony.calls[0], "<Number>+15551234567</Number>") {
		t.Fatalf("unexpected twiml: %s", telephony.calls[0])
	}
}

func TestTransferToAgentFailsClosedWhenWebhookResolutionErrors(t *testing.T) {
	llm := newTestLLM(t)
	telephony := &fakeTelephony{}
	cfgSvc := &fakeConfigService{webhookErr: errTestWebhook}
	gpu := newTestGPU(t, func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(204) })
	p, sess := newTestPipeline(t, gpu, llm, telephony, cfgSvc)

	p.TransferToAgent(context.Background(), &tools.BuiltinAction{Kind: tools.BuiltinTransferAgent, AgentID: "agent-1"})

	if len(telephony.calls) != 0 {
		t.Fatal("expected no UpdateCall when webhook resolution fails")
	}
	if sess.Status() != callsession.StatusEnded {
		t.Fatalf("status = %q, want ended after failed transfer", sess.Status())
	}
}

var errTestWebhook = &testError{"webhook lookup failed"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
