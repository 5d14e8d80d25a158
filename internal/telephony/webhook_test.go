package telephony

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type fakeResolver struct {
	assistant *IncomingAssistant
	err       error
}

func (f *fakeResolver) ResolveIncoming(ctx context.Context, callSID, from, to string) (*IncomingAssistant, error) {
	return f.assistant, f.err
}

type fakeStatusSink struct {
	mu       sync.Mutex
	reported []string
}

func (f *fakeStatusSink) ReportStatus(ctx context.Context, callSID, status string, durationSeconds int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reported = append(f.reported, callSID+":"+status)
	return nil
}

type fakeBootstrapper struct {
	mu          sync.Mutex
	bootstrapped []string
}

func (f *fakeBootstrapper) Bootstrap(ctx context.Context, callSID string, conn *websocket.Conn) {
	f.mu.Lock()
	f.bootstrapped = append(f.bootstrapped, callSID)
	f.mu.Unlock()
	conn.Close()
}

func TestHandleIncomingReturnsStreamTwiMLWhenAssistantResolves(t *testing.T) {
	h := &Handler{
		Resolver:         &fakeResolver{assistant: &IncomingAssistant{AssistantID: "asst_1", OrganizationID: "org_1"}},
		PublicWSBase:     "wss://gateway.example.com",
		StreamPathPrefix: "/voice/stream",
	}

	req := httptest.NewRequest(http.MethodPost, "/voice/incoming", strings.NewReader(url.Values{
		"CallSid": {"CA123"}, "From": {"+15550001111"}, "To": {"+15559998888"}, "CallStatus": {"ringing"},
	}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	h.HandleIncoming(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "wss://gateway.example.com/voice/stream/CA123") {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestHandleIncomingReturnsErrorTwiMLWhenNoAssistant(t *testing.T) {
	h := &Handler{
		Resolver:         &fakeResolver{assistant: &IncomingAssistant{}},
		PublicWSBase:     "wss://gateway.example.com",
		StreamPathPrefix: "/voice/stream",
	}
	req := httptest.NewRequest(http.MethodPost, "/voice/incoming", strings.NewReader(url.Values{"CallSid": {"CA123"}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	h.HandleIncoming(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "<Hangup/>") {
		t.Fatalf("expected error twiml, got: %s", rec.Body.String())
	}
}

func TestHandleIncomingRejectsBadSignature(t *testing.T) {
	h := &Handler{
		Resolver:           &fakeResolver{assistant: &IncomingAssistant{AssistantID: "asst_1", TwilioAuthToken: "tok"}},
		PublicWSBase:       "wss://gateway.example.com",
		StreamPathPrefix:   "/voice/stream",
		ValidateSignatures: true,
	}
	req := httptest.NewRequest(http.MethodPost, "/voice/incoming", strings.NewReader(url.Values{"CallSid": {"CA123"}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Twilio-Signature", "not-a-real-signature")
	rec := httptest.NewRecorder()

	h.HandleIncoming(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestHandleStatusReportsAndReturns200(t *testing.T) {
	sink := &fakeStatusSink{}
	h := &Handler{StatusSink: sink}

	req := httptest.NewRequest(http.MethodPost, "/voice/status", strings.NewReader(url.Values{
		"CallSid": {"CA123"}, "CallStatus": {"completed"}, "CallDuration": {"42"},
	}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	h.HandleStatus(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.reported) != 1 || sink.reported[0] != "CA123:completed" {
		t.Fatalf("unexpected reports: %v", sink.reported)
	}
}

func TestHandleStreamUpgradesAndBootstraps(t *testing.T) {
	boot := &fakeBootstrapper{}
	h := &Handler{Bootstrapper: boot}

	mux := http.NewServeMux()
	mux.HandleFunc("/voice/stream/{call_sid}", h.HandleStream)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	wsURL := "ws" + srv.URL[len("http"):] + "/voice/stream/CA456"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	waitForBootstrap(t, boot)
}

func waitForBootstrap(t *testing.T, boot *fakeBootstrapper) {
	t.Helper()
	for i := 0; i < 100; i++ {
		boot.mu.Lock()
		n := len(boot.bootstrapped)
		boot.mu.Unlock()
		if n == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("bootstrapper was never invoked")
}
