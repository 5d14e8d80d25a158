package telephony

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/gorilla/websocket"
)

// IncomingResolver is the subset of the configuration service the incoming-
// call webhook needs: given the call's identity, it decides which assistant
// (if any) should answer.
type IncomingResolver interface {
	ResolveIncoming(ctx context.Context, callSID, from, to string) (*IncomingAssistant, error)
}

// IncomingAssistant is what the configuration service hands back for a
// newly-ringing call.
type IncomingAssistant struct {
	AssistantID     string
	OrganizationID  string
	TwilioAuthToken string
}

// StatusReporter forwards a provider status callback to the configuration
// service. It is a separate, narrower interface than IncomingResolver
// because the status callback carries no assistant-selection responsibility.
type StatusReporter interface {
	ReportStatus(ctx context.Context, callSID, status string, durationSeconds int) error
}

// CallBootstrapper is invoked once per upgraded audio WebSocket. It owns
// resolving the call's full configuration, building the session and
// pipeline, and running them to completion; Handler only owns the upgrade.
type CallBootstrapper interface {
	Bootstrap(ctx context.Context, callSID string, conn *websocket.Conn)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16384,
	WriteBufferSize: 16384,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler wires the three HTTP entry points a telephony provider calls into:
// the incoming-call webhook, the status callback, and the audio stream
// upgrade. StreamPathPrefix is the path segment preceding the call SID,
// e.g. "/voice/stream" for a stream URL of "/voice/stream/{CallSid}".
type Handler struct {
	Resolver         IncomingResolver
	StatusSink       StatusReporter
	Bootstrapper     CallBootstrapper
	PublicWSBase     string // e.g. "wss://gateway.example.com"
	StreamPathPrefix string
	ValidateSignatures bool
}

// HandleIncoming answers a new call. It resolves the assistant via the
// configuration service and, on success, redirects the call into the audio
// stream. When no assistant is configured it returns fixed error TwiML;
// when signature validation fails it responds 403 with no body. In neither
// case is a session started.
func (h *Handler) HandleIncoming(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	callSID := r.FormValue("CallSid")
	from := r.FormValue("From")
	to := r.FormValue("To")

	assistant, err := h.Resolver.ResolveIncoming(r.Context(), callSID, from, to)
	if err != nil || assistant == nil || assistant.AssistantID == "" {
		slog.Warn("telephony: no assistant for incoming call", "call_sid", callSID, "error", err)
		writeTwiML(w, ErrorTwiML())
		return
	}

	if h.ValidateSignatures && assistant.TwilioAuthToken != "" {
		if !h.validateRequest(r, assistant.TwilioAuthToken) {
			slog.Warn("telephony: signature validation failed", "call_sid", callSID)
			w.WriteHeader(http.StatusForbidden)
			return
		}
	}

	streamURL := h.PublicWSBase + h.StreamPathPrefix + "/" + callSID
	writeTwiML(w, StreamTwiML(streamURL))
}

// HandleStatus forwards a call-status callback to the configuration service
// and always returns 200 — the provider does not retry on a non-2xx, and a
// dropped status update is not worth re-ringing the caller over.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	callSID := r.FormValue("CallSid")
	status := r.FormValue("CallStatus")
	duration := atoiOrZero(r.FormValue("CallDuration"))

	if err := h.StatusSink.ReportStatus(r.Context(), callSID, status, duration); err != nil {
		slog.Error("telephony: report call status", "call_sid", callSID, "error", err)
	}
	w.WriteHeader(http.StatusOK)
}

// HandleStream upgrades the audio WebSocket and hands it to the
// bootstrapper, which owns the call for its entire lifetime.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	callSID := r.PathValue("call_sid")
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("telephony: upgrade stream socket", "call_sid", callSID, "error", err)
		return
	}
	h.Bootstrapper.Bootstrap(r.Context(), callSID, conn)
}

func (h *Handler) validateRequest(r *http.Request, authToken string) bool {
	signature := r.Header.Get("X-Twilio-Signature")
	if signature == "" {
		return false
	}
	fullURL := h.publicURLFor(r)
	return ValidateSignature(authToken, fullURL, r.Form, signature)
}

func (h *Handler) publicURLFor(r *http.Request) string {
	scheme := "https"
	if v := os.Getenv("TELEPHONY_PUBLIC_SCHEME"); v != "" {
		scheme = v
	}
	host := r.Host
	if v := os.Getenv("TELEPHONY_PUBLIC_HOST"); v != "" {
		host = v
	}
	return scheme + "://" + host + r.URL.Path
}

func writeTwiML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func atoiOrZero(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
