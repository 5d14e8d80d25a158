package gpuclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// TurnResult is the smart-turn classifier's verdict on a captured utterance.
type TurnResult struct {
	Complete   bool    `json:"complete"`
	Confidence float64 `json:"confidence"`
}

// CheckTurn POSTs the full captured utterance to /turn/check. On failure it
// returns complete=true with the error — the caller treats a failed
// smart-turn check as complete to avoid stalling the caller.
func (c *Client) CheckTurn(ctx context.Context, wavBase64 string) (*TurnResult, error) {
	body, _ := json.Marshal(struct {
		Audio string `json:"audio"`
	}{Audio: wavBase64})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/turn/check", bytes.NewReader(body))
	if err != nil {
		return &TurnResult{Complete: true}, fmt.Errorf("turn request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)

	resp, err := c.turn.Do(req)
	if err != nil {
		return &TurnResult{Complete: true}, fmt.Errorf("turn http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return &TurnResult{Complete: true}, fmt.Errorf("turn status %d: %s", resp.StatusCode, string(b))
	}

	var result TurnResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return &TurnResult{Complete: true}, fmt.Errorf("turn decode: %w", err)
	}
	return &result, nil
}
