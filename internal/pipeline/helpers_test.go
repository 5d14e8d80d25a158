package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hubenschmidt/voicebridge-gateway/internal/callsession"
	"github.com/hubenschmidt/voicebridge-gateway/internal/gpuclient"
	"github.com/hubenschmidt/voicebridge-gateway/internal/llmsession"
	"github.com/hubenschmidt/voicebridge-gateway/internal/tools"
)

// fakeTelephony records every outbound telephony action a pipeline issues,
// standing in for internal/telephony's call adapter.
type fakeTelephony struct {
	mu     sync.Mutex
	frames int
	marks  []string
	clears int
	calls  []string // UpdateCall bodies
	hangups int
}

func (f *fakeTelephony) SendAudioFrame(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames++
	return nil
}

func (f *fakeTelephony) SendMark(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marks = append(f.marks, name)
	return nil
}

func (f *fakeTelephony) SendClear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
	return nil
}

func (f *fakeTelephony) UpdateCall(twiml string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, twiml)
	return nil
}

func (f *fakeTelephony) Hangup() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hangups++
	return nil
}

func (f *fakeTelephony) frameCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frames
}

func (f *fakeTelephony) markCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.marks {
		if m == name {
			n++
		}
	}
	return n
}

func (f *fakeTelephony) clearCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clears
}

func (f *fakeTelephony) hangupCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hangups
}

// fakeConfigService is a no-op ConfigService unless the test overrides its
// closures.
type fakeConfigService struct {
	mu            sync.Mutex
	webhookURL    string
	webhookErr    error
	completeCalls []CompletionReport
}

func (f *fakeConfigService) ResolveAgentWebhook(ctx context.Context, agentID string) (string, error) {
	return f.webhookURL, f.webhookErr
}

func (f *fakeConfigService) Complete(ctx context.Context, report CompletionReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completeCalls = append(f.completeCalls, report)
	return nil
}

func (f *fakeConfigService) completeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.completeCalls)
}

// newTestGPU builds a gpuclient.Client against an httptest server whose
// handler the test controls directly.
func newTestGPU(t *testing.T, handler http.HandlerFunc) *gpuclient.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return gpuclient.New(srv.URL, "test-key")
}

// newTestLLM dials a bare websocket test server that silently discards
// every message it receives, giving the pipeline a live Client whose
// writer-side calls (SendUserMessage, CancelResponse, ...) succeed without
// asserting anything about the realtime protocol itself.
func newTestLLM(t *testing.T) *llmsession.Client {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + srv.URL[len("http"):]
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client, err := llmsession.Connect(ctx, wsURL, "test-key", llmsession.SessionConfig{SystemPrompt: "test"})
	if err != nil {
		t.Fatalf("connect test llm: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func newTestSession() *callsession.Session {
	return callsession.NewSession("call-1", "internal-1", callsession.Config{
		LanguageCode:    "en",
		SilenceTimeout:  time.Hour,
		MaxCallDuration: time.Hour,
	}, callsession.Credentials{})
}

func newTestPipeline(t *testing.T, gpu *gpuclient.Client, llm *llmsession.Client, telephony *fakeTelephony, cfgSvc *fakeConfigService) (*Pipeline, *callsession.Session) {
	t.Helper()
	sess := newTestSession()
	eng := tools.New(tools.Config{})
	p := New(sess, gpu, llm, eng, telephony, cfgSvc, "")
	return p, sess
}
