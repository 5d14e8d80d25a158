package gpuclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// STTResult is a transcription response.
type STTResult struct {
	Text             string  `json:"text"`
	Language         string  `json:"language"`
	Confidence       float64 `json:"confidence"`
	ProcessingTimeMs float64 `json:"processing_time_ms"`
}

// Transcribe POSTs a captured turn to /stt/transcribe. VAD has already
// confirmed speech by the time this is called, so /process/audio (which
// re-runs VAD) is never used.
func (c *Client) Transcribe(ctx context.Context, wavBase64, language string) (*STTResult, error) {
	body, _ := json.Marshal(struct {
		Audio      string `json:"audio"`
		Language   string `json:"language"`
		SampleRate int    `json:"sample_rate"`
	}{Audio: wavBase64, Language: language, SampleRate: 16000})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/stt/transcribe", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("stt request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)

	resp, err := c.stt.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stt http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("stt status %d: %s", resp.StatusCode, string(b))
	}

	var result STTResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("stt decode: %w", err)
	}
	return &result, nil
}
