package configsvc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hubenschmidt/voicebridge-gateway/internal/pipeline"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Internal-Secret") != "shh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL, "shh")
}

func TestResolveIncomingReturnsAssistant(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/calls/incoming" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(IncomingAssignment{AssistantID: "asst_1", OrganizationID: "org_1"})
	})

	got, err := c.ResolveIncoming(context.Background(), "CA123", "+15550001111", "+15559998888")
	if err != nil {
		t.Fatalf("ResolveIncoming: %v", err)
	}
	if got.AssistantID != "asst_1" || got.OrganizationID != "org_1" {
		t.Fatalf("unexpected assistant: %+v", got)
	}
}

func TestResolveIncomingReturnsNilWhenNoAssistant(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(IncomingAssignment{})
	})

	got, err := c.ResolveIncoming(context.Background(), "CA123", "", "")
	if err != nil {
		t.Fatalf("ResolveIncoming: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil assistant, got %+v", got)
	}
}

func TestGetConfigDecodesFullConfig(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/calls/CA123/config" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(FullConfig{
			SystemPrompt:       "be helpful",
			SilenceTimeoutMs:   1500,
			MaxCallDurationSec: 600,
		})
	})

	cfg, err := c.GetConfig(context.Background(), "CA123")
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	sessCfg := cfg.ToSessionConfig(30*time.Second, 30*time.Minute)
	if sessCfg.SilenceTimeout != 1500*time.Millisecond {
		t.Fatalf("SilenceTimeout = %v", sessCfg.SilenceTimeout)
	}
	if sessCfg.MaxCallDuration != 600*time.Second {
		t.Fatalf("MaxCallDuration = %v", sessCfg.MaxCallDuration)
	}
}

func TestGetConfigFallsBackToGatewayDefaultsWhenUnset(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(FullConfig{SystemPrompt: "be helpful"})
	})

	cfg, err := c.GetConfig(context.Background(), "CA123")
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	sessCfg := cfg.ToSessionConfig(30*time.Second, 30*time.Minute)
	if sessCfg.SilenceTimeout != 30*time.Second {
		t.Fatalf("SilenceTimeout = %v, want gateway default", sessCfg.SilenceTimeout)
	}
	if sessCfg.MaxCallDuration != 30*time.Minute {
		t.Fatalf("MaxCallDuration = %v, want gateway default", sessCfg.MaxCallDuration)
	}
}

func TestCompletePostsTranscriptAndReason(t *testing.T) {
	var captured completePayload
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/calls/CA123/complete" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&captured)
		w.WriteHeader(http.StatusOK)
	})

	err := c.Complete(context.Background(), pipeline.CompletionReport{
		CallID:    "CA123",
		EndReason: "user_requested",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if captured.EndReason != "user_requested" {
		t.Fatalf("unexpected payload: %+v", captured)
	}
}

func TestReportStatusPostsCallStatus(t *testing.T) {
	var captured map[string]any
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		w.WriteHeader(http.StatusOK)
	})

	if err := c.ReportStatus(context.Background(), "CA123", "completed", 42); err != nil {
		t.Fatalf("ReportStatus: %v", err)
	}
	if captured["call_status"] != "completed" {
		t.Fatalf("unexpected payload: %+v", captured)
	}
}

func TestResolveAgentWebhookReturnsTwiMLURL(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("agent_id") != "agent-1" {
			t.Errorf("missing agent_id query param: %s", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(transferAgentResponse{TwiMLURL: "https://example.com/twiml/agent-1"})
	})

	url, err := c.ResolveAgentWebhook(context.Background(), "agent-1")
	if err != nil {
		t.Fatalf("ResolveAgentWebhook: %v", err)
	}
	if url != "https://example.com/twiml/agent-1" {
		t.Fatalf("unexpected url: %s", url)
	}
}

func TestRequestFailsWhenSecretMismatched(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	c := New(srv.URL, "wrong")

	if _, err := c.ResolveIncoming(context.Background(), "CA123", "", ""); err == nil {
		t.Fatal("expected error on unauthorized response")
	}
}
