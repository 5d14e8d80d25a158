// Package telephony bridges a telephony provider's per-call audio
// WebSocket and inbound webhooks to the voice pipeline. It owns the wire
// protocol (JSON text frames carrying base64 mu-law media) and the
// provider's REST call-control API; everything downstream talks to it only
// through pipeline.TelephonySender.
package telephony

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// twilioAPIBase is a var, not a const, so tests can redirect call-control
// requests to a local httptest server.
var twilioAPIBase = "https://api.twilio.com/2010-04-01"

// CallAdapter is the live audio WebSocket for one call. All outbound writes
// are serialized through writeMu, since gorilla/websocket connections are
// not safe for concurrent writers.
type CallAdapter struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	sidMu     sync.Mutex
	streamSID string

	accountSID string
	authToken  string
	callSID    string
	rest       *http.Client
}

// NewCallAdapter wraps an already-upgraded audio WebSocket. accountSID and
// authToken are the provider credentials resolved for this call, used only
// for the REST call-control requests (UpdateCall, Hangup) — the media
// socket itself carries no auth beyond the upgrade.
func NewCallAdapter(conn *websocket.Conn, accountSID, authToken, callSID string) *CallAdapter {
	return &CallAdapter{
		conn:       conn,
		accountSID: accountSID,
		authToken:  authToken,
		callSID:    callSID,
		rest:       &http.Client{Timeout: 10 * time.Second},
	}
}

// StreamSID returns the stream identifier captured from the start event, or
// "" before it has arrived.
func (a *CallAdapter) StreamSID() string {
	a.sidMu.Lock()
	defer a.sidMu.Unlock()
	return a.streamSID
}

func (a *CallAdapter) setStreamSID(sid string) {
	a.sidMu.Lock()
	a.streamSID = sid
	a.sidMu.Unlock()
}

type inboundEvent struct {
	Event string `json:"event"`
	Start struct {
		StreamSID string `json:"streamSid"`
	} `json:"start"`
	Media struct {
		Payload string `json:"payload"`
	} `json:"media"`
	Mark struct {
		Name string `json:"name"`
	} `json:"mark"`
}

// MessageHandler receives decoded inbound telephony events. internal/
// pipeline's Pipeline satisfies the media/mark half directly; the bootstrap
// code that constructs a Pipeline supplies HandleStart to stamp the
// session's StreamSID once it is known.
type MessageHandler interface {
	HandleStart(streamSID string)
	HandleMediaFrame(ctx context.Context, ulawFrame []byte) error
	HandleMarkEcho(name string)
}

// Run reads the audio WebSocket until the stop event arrives or the
// connection drops, dispatching each decoded event to handler. It blocks
// until the call ends; callers run it in its own goroutine.
func (a *CallAdapter) Run(ctx context.Context, handler MessageHandler) error {
	for {
		_, data, err := a.conn.ReadMessage()
		if err != nil {
			return err
		}

		var ev inboundEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			slog.Warn("telephony: decode inbound event", "error", err)
			continue
		}

		switch ev.Event {
		case "start":
			a.setStreamSID(ev.Start.StreamSID)
			handler.HandleStart(ev.Start.StreamSID)
		case "media":
			raw, err := base64.StdEncoding.DecodeString(ev.Media.Payload)
			if err != nil {
				slog.Warn("telephony: decode media payload", "error", err)
				continue
			}
			if err := handler.HandleMediaFrame(ctx, raw); err != nil {
				slog.Error("telephony: handle media frame", "error", err)
			}
		case "mark":
			handler.HandleMarkEcho(ev.Mark.Name)
		case "stop":
			return nil
		default:
			slog.Warn("telephony: unknown event", "event", ev.Event)
		}
	}
}

type outboundEvent struct {
	Event     string         `json:"event"`
	StreamSID string         `json:"streamSid,omitempty"`
	Media     *outboundMedia `json:"media,omitempty"`
	Mark      *outboundMark  `json:"mark,omitempty"`
}

type outboundMedia struct {
	Payload string `json:"payload"`
}

type outboundMark struct {
	Name string `json:"name"`
}

func (a *CallAdapter) writeJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal telephony event: %w", err)
	}
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	return a.conn.WriteMessage(websocket.TextMessage, b)
}

// SendAudioFrame implements pipeline.TelephonySender, forwarding one
// outbound mu-law frame as a media event.
func (a *CallAdapter) SendAudioFrame(frame []byte) error {
	return a.writeJSON(outboundEvent{
		Event:     "media",
		StreamSID: a.StreamSID(),
		Media:     &outboundMedia{Payload: base64.StdEncoding.EncodeToString(frame)},
	})
}

// SendMark implements pipeline.TelephonySender.
func (a *CallAdapter) SendMark(name string) error {
	return a.writeJSON(outboundEvent{
		Event:     "mark",
		StreamSID: a.StreamSID(),
		Mark:      &outboundMark{Name: name},
	})
}

// SendClear implements pipeline.TelephonySender, discarding any audio the
// provider has buffered but not yet played — the interrupt fast path.
func (a *CallAdapter) SendClear() error {
	return a.writeJSON(outboundEvent{Event: "clear", StreamSID: a.StreamSID()})
}

// UpdateCall implements pipeline.TelephonySender by redirecting the live
// call to a new TwiML document via the provider's REST API, used for
// warm transfers.
func (a *CallAdapter) UpdateCall(twiml string) error {
	return a.callControl(url.Values{"Twiml": {twiml}})
}

// Hangup implements pipeline.TelephonySender by terminating the call
// through the provider's REST API.
func (a *CallAdapter) Hangup() error {
	return a.callControl(url.Values{"Status": {"completed"}})
}

func (a *CallAdapter) callControl(form url.Values) error {
	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls/%s.json", twilioAPIBase, a.accountSID, a.callSID)
	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return fmt.Errorf("build call control request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(a.accountSID, a.authToken)

	resp, err := a.rest.Do(req)
	if err != nil {
		return fmt.Errorf("call control request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("call control: unexpected status %d", resp.StatusCode)
	}
	return nil
}
