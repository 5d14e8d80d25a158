package gpuclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// HealthResult is the GPU service's liveness and model-load report.
type HealthResult struct {
	Status       string `json:"status"`
	ModelsLoaded bool   `json:"models_loaded"`
}

// Health checks GPU service liveness. Used only by the operator health
// endpoint, never on the call hot path.
func (c *Client) Health(ctx context.Context) (*HealthResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("health request: %w", err)
	}
	c.setAuth(req)

	resp, err := c.health.Do(req)
	if err != nil {
		return nil, fmt.Errorf("health http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("health status %d", resp.StatusCode)
	}

	var result HealthResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("health decode: %w", err)
	}
	return &result, nil
}
