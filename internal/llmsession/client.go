package llmsession

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	connectTimeout = 15 * time.Second
	keepaliveEvery = 25 * time.Second
)

// Client is a long-lived WebSocket session to the remote LLM, configured
// once at open. Writes are serialized through a single mutex, matching the
// telephony socket's serialized-writer idiom — exactly one goroutine ever
// calls conn.WriteMessage at a time.
type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	events  chan Event

	toolCalls *toolCallAccumulator

	activeMu   sync.Mutex
	activeResp string

	closeOnce sync.Once
	done      chan struct{}
}

// Connect dials the LLM realtime endpoint, sends the session configuration
// as the first message, and starts the read loop and keepalive ping. A
// single settlement guard ensures open/error/the connect-timeout can each
// resolve the connect operation at most once.
func Connect(ctx context.Context, url, apiKey string, cfg SessionConfig) (*Client, error) {
	type settleResult struct {
		conn *websocket.Conn
		err  error
	}
	settled := make(chan settleResult, 1)
	var once sync.Once
	var abandoned atomic.Bool
	settle := func(r settleResult) {
		once.Do(func() { settled <- r })
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+apiKey)

	go func() {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
		if abandoned.Load() {
			// The connect operation already timed out; this result arrived
			// too late to use, so don't leak the socket.
			if conn != nil {
				conn.Close()
			}
			return
		}
		settle(settleResult{conn, err})
	}()

	timer := time.NewTimer(connectTimeout)
	defer timer.Stop()

	select {
	case <-timer.C:
		abandoned.Store(true)
		return nil, fmt.Errorf("llm session connect: timed out after %s", connectTimeout)
	case <-ctx.Done():
		abandoned.Store(true)
		return nil, ctx.Err()
	case r := <-settled:
		if r.err != nil {
			return nil, fmt.Errorf("llm session dial: %w", r.err)
		}
		return newClient(r.conn, cfg)
	}
}

func newClient(conn *websocket.Conn, cfg SessionConfig) (*Client, error) {
	c := &Client{
		conn:      conn,
		events:    make(chan Event, 64),
		toolCalls: newToolCallAccumulator(),
		done:      make(chan struct{}),
	}

	if err := c.writeJSON(buildSessionUpdate(cfg)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("llm session config: %w", err)
	}

	go c.readLoop()
	go c.keepaliveLoop()

	return c, nil
}

func (c *Client) writeJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

func (c *Client) readLoop() {
	defer close(c.events)
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.emit(Event{Type: EventClosed, Err: err})
			return
		}
		c.dispatch(raw)
	}
}

func (c *Client) keepaliveLoop() {
	ticker := time.NewTicker(keepaliveEvery)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *Client) emit(e Event) {
	select {
	case c.events <- e:
	case <-c.done:
	}
}

// Events returns the channel of events emitted to the pipeline.
func (c *Client) Events() <-chan Event { return c.events }

func (c *Client) setActiveResponse(id string) {
	c.activeMu.Lock()
	c.activeResp = id
	c.activeMu.Unlock()
}

func (c *Client) clearActiveResponse(id string) {
	c.activeMu.Lock()
	if c.activeResp == id {
		c.activeResp = ""
	}
	c.activeMu.Unlock()
}

// SendUserMessage appends a user message item and requests a response.
func (c *Client) SendUserMessage(text string) error {
	if err := c.writeJSON(itemCreate("user", text)); err != nil {
		return fmt.Errorf("send user message: %w", err)
	}
	return c.writeJSON(responseCreate())
}

// SendFunctionResult appends a function-call-output item and requests
// continuation.
func (c *Client) SendFunctionResult(callID string, result any) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal function result: %w", err)
	}
	if err := c.writeJSON(functionCallOutput(callID, string(payload))); err != nil {
		return fmt.Errorf("send function result: %w", err)
	}
	return c.writeJSON(responseCreate())
}

// InjectContext appends a system message without requesting a response,
// used for summarization.
func (c *Client) InjectContext(text string) error {
	if err := c.writeJSON(itemCreate("system", text)); err != nil {
		return fmt.Errorf("inject context: %w", err)
	}
	return nil
}

// DeleteItem removes a previously created conversation item.
func (c *Client) DeleteItem(itemID string) error {
	if err := c.writeJSON(struct {
		Type string `json:"type"`
		Item struct {
			ID string `json:"item_id"`
		} `json:"item"`
	}{Type: "conversation.item.delete", Item: struct {
		ID string `json:"item_id"`
	}{ID: itemID}}); err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

// CancelResponse cancels the currently in-flight response.
func (c *Client) CancelResponse() error {
	c.activeMu.Lock()
	id := c.activeResp
	c.activeMu.Unlock()
	if id == "" {
		return nil
	}
	c.toolCalls.reset()
	if err := c.writeJSON(struct {
		Type     string `json:"type"`
		Response struct {
			ID string `json:"id"`
		} `json:"response"`
	}{Type: "response.cancel", Response: struct {
		ID string `json:"id"`
	}{ID: id}}); err != nil {
		return fmt.Errorf("cancel response: %w", err)
	}
	return nil
}

// Close terminates the session. Idempotent.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

func itemCreate(role, text string) any {
	return struct {
		Type string `json:"type"`
		Item struct {
			Type    string `json:"type"`
			Role    string `json:"role"`
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"item"`
	}{
		Type: "conversation.item.create",
		Item: struct {
			Type    string `json:"type"`
			Role    string `json:"role"`
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		}{
			Type: "message",
			Role: role,
			Content: []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			}{{Type: "input_text", Text: text}},
		},
	}
}

func functionCallOutput(callID, output string) any {
	return struct {
		Type string `json:"type"`
		Item struct {
			Type   string `json:"type"`
			CallID string `json:"call_id"`
			Output string `json:"output"`
		} `json:"item"`
	}{
		Type: "conversation.item.create",
		Item: struct {
			Type   string `json:"type"`
			CallID string `json:"call_id"`
			Output string `json:"output"`
		}{Type: "function_call_output", CallID: callID, Output: output},
	}
}

func responseCreate() any {
	return struct {
		Type string `json:"type"`
	}{Type: "response.create"}
}
