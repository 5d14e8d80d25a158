package gpuclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// VADEvent is the classification the server-side VAD assigns to one batch.
type VADEvent string

const (
	EventSpeechStart VADEvent = "speech_start"
	EventSilence     VADEvent = "silence"
	EventSpeechEnd   VADEvent = "speech_end"
)

// VADResult is the server's per-batch verdict. The VAD is session-stateful
// on the server side; session_id ties successive batches together.
type VADResult struct {
	Event       VADEvent `json:"event"`
	Probability float64  `json:"probability"`
}

// DetectVAD POSTs one base64 WAV batch to /vad/detect. On any failure the
// caller must log and drop the batch and release its in-flight guard —
// this function does not retry.
func (c *Client) DetectVAD(ctx context.Context, sessionID, wavBase64 string, sampleRate int) (*VADResult, error) {
	body, _ := json.Marshal(struct {
		Audio      string `json:"audio"`
		SampleRate int    `json:"sample_rate"`
		SessionID  string `json:"session_id"`
	}{Audio: wavBase64, SampleRate: sampleRate, SessionID: sessionID})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/vad/detect", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("vad request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)

	resp, err := c.vad.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vad http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("vad status %d: %s", resp.StatusCode, string(b))
	}

	var result VADResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("vad decode: %w", err)
	}
	return &result, nil
}

// ResetVAD clears server-side VAD state for a session. Failures are never
// fatal — log and continue.
func (c *Client) ResetVAD(ctx context.Context, sessionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/vad/reset?session_id="+sessionID, nil)
	if err != nil {
		return fmt.Errorf("vad reset request: %w", err)
	}
	c.setAuth(req)

	resp, err := c.reset.Do(req)
	if err != nil {
		return fmt.Errorf("vad reset http: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("vad reset status %d: %s", resp.StatusCode, string(b))
	}
	return nil
}
