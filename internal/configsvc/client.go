// Package configsvc is a thin HTTP client for the control-plane
// configuration service: it resolves which assistant answers an incoming
// call, hands back that assistant's full tuning, and reports call-lifecycle
// events back upstream. It never makes a decision itself.
package configsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hubenschmidt/voicebridge-gateway/internal/callsession"
	"github.com/hubenschmidt/voicebridge-gateway/internal/pipeline"
	"github.com/hubenschmidt/voicebridge-gateway/internal/telephony"
	"github.com/hubenschmidt/voicebridge-gateway/internal/tools"
)

// Client calls the configuration service sidecar over plain HTTP,
// authenticating with a shared internal secret rather than per-call
// credentials — grounded on the teacher's ClassifyClient/ASRClient shape of
// one small typed client per sidecar.
type Client struct {
	baseURL        string
	internalSecret string
	http           *http.Client
}

// New builds a client against baseURL, attaching internalSecret as the
// X-Internal-Secret header on every request.
func New(baseURL, internalSecret string) *Client {
	return &Client{
		baseURL:        baseURL,
		internalSecret: internalSecret,
		http:           &http.Client{Timeout: 5 * time.Second},
	}
}

// IncomingAssignment is the configuration service's response to a new call.
type IncomingAssignment struct {
	AssistantID     string `json:"assistant_id"`
	OrganizationID  string `json:"organization_id"`
	TwilioAuthToken string `json:"twilio_auth_token"`
}

// ResolveIncoming implements telephony.IncomingResolver, POSTing the new
// call's identity so the configuration service can pick an assistant.
func (c *Client) ResolveIncoming(ctx context.Context, callSID, from, to string) (*telephony.IncomingAssistant, error) {
	var resp IncomingAssignment
	body := map[string]string{"call_sid": callSID, "from": from, "to": to}
	if err := c.do(ctx, http.MethodPost, "/calls/incoming", body, &resp); err != nil {
		return nil, err
	}
	if resp.AssistantID == "" {
		return nil, nil
	}
	return &telephony.IncomingAssistant{
		AssistantID:     resp.AssistantID,
		OrganizationID:  resp.OrganizationID,
		TwilioAuthToken: resp.TwilioAuthToken,
	}, nil
}

// FullConfig is the assistant tuning handed back once a call's audio stream
// is live, used to build the session and pipeline.
type FullConfig struct {
	AssistantID        string            `json:"assistant_id"`
	OrganizationID     string            `json:"organization_id"`
	SystemPrompt       string            `json:"system_prompt"`
	LanguageCode       string            `json:"language_code"`
	VoiceID            string            `json:"voice_id"`
	LanguageVoices     map[string]string `json:"language_voices"`
	SilenceTimeoutMs   int               `json:"silence_timeout_ms"`
	MaxCallDurationSec int               `json:"max_call_duration_seconds"`
	EndCallAllowed     bool              `json:"end_call_allowed"`
	TransferToNumber   bool              `json:"transfer_to_number"`
	TransferToAgent    bool              `json:"transfer_to_agent"`
	CustomToolsAllowed bool              `json:"custom_tools_allowed"`
	LanguageDetection  bool              `json:"language_detection"`
	VoicemailDetection bool              `json:"voicemail_detection"`
	FillerPhrases      bool              `json:"filler_phrases"`
	ContextSummarizing bool              `json:"context_summarizing"`
	FirstMessage       string            `json:"first_message"`
	VoicemailMessage   string            `json:"voicemail_message"`
	TwilioAccountSID   string            `json:"twilio_account_sid"`
	TwilioAuthToken    string            `json:"twilio_auth_token"`
	Tools              tools.Config      `json:"tools"`
}

// GetConfig fetches the full assistant tuning for a live call.
func (c *Client) GetConfig(ctx context.Context, callSID string) (*FullConfig, error) {
	var resp FullConfig
	if err := c.do(ctx, http.MethodGet, "/calls/"+url.PathEscape(callSID)+"/config", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Complete implements pipeline.ConfigService, reporting the terminal call
// outcome: transcript, duration, end reason, and any tool-extracted
// variables.
func (c *Client) Complete(ctx context.Context, report pipeline.CompletionReport) error {
	body := completePayload{
		DurationSeconds:    report.DurationSeconds,
		EndReason:          report.EndReason,
		ExtractedVariables: report.ExtractedVariables,
	}
	for _, entry := range report.Transcript {
		body.Transcript = append(body.Transcript, transcriptEntry{
			Role: entry.Role, Text: entry.Text, TSeconds: entry.TSeconds,
		})
	}
	return c.do(ctx, http.MethodPost, "/calls/"+url.PathEscape(report.CallID)+"/complete", body, nil)
}

type transcriptEntry struct {
	Role     string  `json:"role"`
	Text     string  `json:"text"`
	TSeconds float64 `json:"t_seconds"`
}

type completePayload struct {
	Transcript         []transcriptEntry `json:"transcript"`
	DurationSeconds    float64           `json:"duration_seconds"`
	EndReason          string            `json:"end_reason"`
	ExtractedVariables map[string]string `json:"extracted_variables"`
}

// ReportStatus implements telephony.StatusReporter, forwarding a provider
// status callback verbatim.
func (c *Client) ReportStatus(ctx context.Context, callSID, status string, durationSeconds int) error {
	body := map[string]any{"call_sid": callSID, "call_status": status, "call_duration": durationSeconds}
	return c.do(ctx, http.MethodPost, "/calls/status", body, nil)
}

type transferAgentResponse struct {
	TwiMLURL string `json:"twiml_url"`
}

// ResolveAgentWebhook implements pipeline.ConfigService, fetching the TwiML
// redirect URL for a warm transfer to a human or sub-agent.
func (c *Client) ResolveAgentWebhook(ctx context.Context, agentID string) (string, error) {
	var resp transferAgentResponse
	path := "/calls/" + url.PathEscape(agentID) + "/transfer-agent?agent_id=" + url.QueryEscape(agentID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return "", err
	}
	return resp.TwiMLURL, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("configsvc: marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("configsvc: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Internal-Secret", c.internalSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("configsvc: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("configsvc: %s %s: status %d: %s", method, path, resp.StatusCode, string(respBody))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("configsvc: decode response from %s: %w", path, err)
	}
	return nil
}

func msToDuration(ms int) time.Duration  { return time.Duration(ms) * time.Millisecond }
func secToDuration(sec int) time.Duration { return time.Duration(sec) * time.Second }

// ToSessionConfig converts the configuration service's wire shape into the
// session's own Config, resolving duration fields from milliseconds/seconds
// into time.Duration. When the assistant record leaves a timeout at zero,
// the gateway's own tuning defaults fill the gap rather than leaving the
// call with no silence or max-duration timer at all.
func (fc *FullConfig) ToSessionConfig(defaultSilence, defaultMaxCall time.Duration) callsession.Config {
	silence := msToDuration(fc.SilenceTimeoutMs)
	if silence <= 0 {
		silence = defaultSilence
	}
	maxCall := secToDuration(fc.MaxCallDurationSec)
	if maxCall <= 0 {
		maxCall = defaultMaxCall
	}
	return callsession.Config{
		SystemPrompt:       fc.SystemPrompt,
		LanguageCode:       fc.LanguageCode,
		VoiceID:            fc.VoiceID,
		LanguageVoices:     fc.LanguageVoices,
		SilenceTimeout:     silence,
		MaxCallDuration:    maxCall,
		EndCallAllowed:     fc.EndCallAllowed,
		TransferToNumber:   fc.TransferToNumber,
		TransferToAgent:    fc.TransferToAgent,
		CustomToolsAllowed: fc.CustomToolsAllowed,
		LanguageDetection:  fc.LanguageDetection,
		VoicemailDetection: fc.VoicemailDetection,
		FillerPhrases:      fc.FillerPhrases,
		ContextSummarizing: fc.ContextSummarizing,
		FirstMessage:       fc.FirstMessage,
		VoicemailMessage:   fc.VoicemailMessage,
		Tools:              fc.Tools,
	}
}
