// Package gpuclient talks to the external GPU inference service: voice
// activity detection, smart-turn classification, speech-to-text, and
// streaming text-to-speech. Every operation carries its own timeout — a
// single shared timeout is unsafe because VAD sits on the hot audio path
// and must fail fast while STT can legitimately take several seconds.
package gpuclient

import (
	"net/http"
	"time"
)

const apiKeyHeader = "X-API-Key"

// Client wraps the GPU inference service's HTTP surface with one
// *http.Client per operation so each endpoint's timeout is independent.
type Client struct {
	baseURL string
	apiKey  string

	vad    *http.Client
	turn   *http.Client
	stt    *http.Client
	ttsDC  *http.Client // dial/connect phase only; body reads use an idle-deadline reader
	reset  *http.Client
	health *http.Client
}

// New builds a Client against baseURL, authenticating with apiKey.
func New(baseURL, apiKey string) *Client {
	newClient := func(timeout time.Duration) *http.Client {
		return &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:          32,
				IdleConnTimeout:       90 * time.Second,
				ForceAttemptHTTP2:     true,
				ExpectContinueTimeout: 1 * time.Second,
			},
		}
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		vad:     newClient(2 * time.Second),
		turn:    newClient(5 * time.Second),
		stt:     newClient(20 * time.Second),
		ttsDC:   newClient(0),
		reset:   newClient(5 * time.Second),
		health:  newClient(5 * time.Second),
	}
}

func (c *Client) setAuth(req *http.Request) {
	req.Header.Set(apiKeyHeader, c.apiKey)
}
