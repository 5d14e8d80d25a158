package gpuclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SynthesizeStream opens a streaming TTS response: raw 8 kHz PCM16 bytes,
// chunked. The connect phase uses a 15 s timeout (enforced by ctx); once
// connected, each Read on the returned stream is subject to a 10 s idle
// timeout, reset on every successful read. On stall, the stream is
// destroyed (Close cancels the underlying request) and the caller should
// treat whatever was already read as a partial, acceptable result.
func (c *Client) SynthesizeStream(ctx context.Context, text, language, voice string) (io.ReadCloser, error) {
	body, _ := json.Marshal(struct {
		Text      string `json:"text"`
		Language  string `json:"language"`
		Voice     string `json:"voice,omitempty"`
		Streaming bool   `json:"streaming"`
	}{Text: text, Language: language, Voice: voice, Streaming: true})

	connectCtx, cancelConnect := context.WithTimeout(ctx, 15*time.Second)
	defer cancelConnect()

	streamCtx, cancelStream := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(streamCtx, http.MethodPost, c.baseURL+"/tts/synthesize", bytes.NewReader(body))
	if err != nil {
		cancelStream()
		return nil, fmt.Errorf("tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)

	type connResult struct {
		resp *http.Response
		err  error
	}
	done := make(chan connResult, 1)
	go func() {
		resp, err := c.ttsDC.Do(req)
		done <- connResult{resp, err}
	}()

	select {
	case <-connectCtx.Done():
		cancelStream()
		return nil, fmt.Errorf("tts connect: %w", connectCtx.Err())
	case r := <-done:
		if r.err != nil {
			cancelStream()
			return nil, fmt.Errorf("tts http: %w", r.err)
		}
		if r.resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(r.resp.Body)
			r.resp.Body.Close()
			cancelStream()
			return nil, fmt.Errorf("tts status %d: %s", r.resp.StatusCode, string(b))
		}
		return &idleTimeoutStream{
			body:   r.resp.Body,
			cancel: cancelStream,
			idle:   10 * time.Second,
		}, nil
	}
}

// idleTimeoutStream wraps an HTTP response body, killing the underlying
// request context if no data arrives within the idle window. The timeout
// resets on every successful Read.
type idleTimeoutStream struct {
	body   io.ReadCloser
	cancel context.CancelFunc
	idle   time.Duration
}

func (s *idleTimeoutStream) Read(p []byte) (int, error) {
	timer := time.AfterFunc(s.idle, s.cancel)
	n, err := s.body.Read(p)
	if !timer.Stop() {
		// The idle timer already fired and cancelled the stream context;
		// the read may still have returned partial data, which is fine —
		// the caller accepts partial audio on stall.
	}
	return n, err
}

func (s *idleTimeoutStream) Close() error {
	s.cancel()
	return s.body.Close()
}
