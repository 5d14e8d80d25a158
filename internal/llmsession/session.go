package llmsession

import (
	"encoding/json"

	"github.com/openai/openai-go/v2/packages/param"
)

// ToolDescriptor is a tool definition sent in the session's tools array.
// internal/tools generates these via JSON Schema reflection; this package
// only needs the wire shape, keeping llmsession free of a dependency on the
// tool engine.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// SessionConfig is sent once, as the first message after handshake.
type SessionConfig struct {
	SystemPrompt          string
	Language              string
	Tools                 []ToolDescriptor
	Temperature           param.Opt[float64]
	MaxResponseOutputTokens param.Opt[int64]
}

const defaultTemperature = 0.8
const minMaxOutputTokens = 1024

func (c SessionConfig) temperature() float64 {
	if c.Temperature.Valid() {
		return c.Temperature.Value
	}
	return defaultTemperature
}

func (c SessionConfig) maxOutputTokens() int64 {
	if c.MaxResponseOutputTokens.Valid() && c.MaxResponseOutputTokens.Value >= minMaxOutputTokens {
		return c.MaxResponseOutputTokens.Value
	}
	return minMaxOutputTokens
}

// wireSessionUpdate is the first message sent after handshake: modalities
// are text-only because this system does its own TTS, and server-side turn
// detection is disabled because the turn-taking pipeline owns that
// decision.
type wireSessionUpdate struct {
	Type    string `json:"type"`
	Session struct {
		Modalities        []string         `json:"modalities"`
		Instructions      string           `json:"instructions"`
		Tools             []ToolDescriptor `json:"tools"`
		ToolChoice        string           `json:"tool_choice"`
		Temperature       float64          `json:"temperature"`
		MaxOutputTokens   int64            `json:"max_response_output_tokens"`
		TurnDetection     any              `json:"turn_detection"`
	} `json:"session"`
}

func buildSessionUpdate(cfg SessionConfig) wireSessionUpdate {
	var msg wireSessionUpdate
	msg.Type = "session.update"
	msg.Session.Modalities = []string{"text"}
	msg.Session.Instructions = cfg.SystemPrompt
	msg.Session.Tools = cfg.Tools
	msg.Session.ToolChoice = "auto"
	msg.Session.Temperature = cfg.temperature()
	msg.Session.MaxOutputTokens = cfg.maxOutputTokens()
	msg.Session.TurnDetection = nil
	return msg
}
