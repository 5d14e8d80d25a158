package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hubenschmidt/voicebridge-gateway/internal/llmsession"
)

// VariableStore is the per-call variable map a tool's response field
// extraction writes into. internal/callsession's Session satisfies this.
type VariableStore interface {
	SetVariable(name, value string)
}

// Result is returned to the LLM for a generic HTTP tool call.
type Result struct {
	Success    bool              `json:"success"`
	Status     int               `json:"status,omitempty"`
	Data       json.RawMessage   `json:"data,omitempty"`
	Extracted  map[string]string `json:"extracted,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Engine builds descriptors and dispatches tool calls for one call's
// configuration.
type Engine struct {
	cfg   Config
	http  *httpToolClient
	names *dispatcher[CustomToolDescriptor]
}

// New builds an Engine for the given per-call tool configuration.
func New(cfg Config) *Engine {
	byName := make(map[string]CustomToolDescriptor, len(cfg.CustomTools))
	for _, t := range cfg.CustomTools {
		byName[t.Name] = t
	}
	return &Engine{
		cfg:   cfg,
		http:  newHTTPToolClient(),
		names: newDispatcher(byName, ""),
	}
}

// Descriptors returns the tools array for this call's LLM session config.
func (e *Engine) Descriptors() []llmsession.ToolDescriptor {
	return BuildDescriptors(e.cfg)
}

// IsBuiltin reports whether name is one of the four built-in tools.
func (e *Engine) IsBuiltin(name string) bool {
	switch BuiltinKind(name) {
	case BuiltinEndCall, BuiltinTransferNumber, BuiltinTransferAgent, BuiltinSwitchLanguage:
		return true
	default:
		return false
	}
}

// DispatchBuiltin parses and validates built-in tool call arguments and
// returns the session-level action the pipeline must apply.
func (e *Engine) DispatchBuiltin(name string, args json.RawMessage) (*BuiltinAction, error) {
	switch BuiltinKind(name) {
	case BuiltinEndCall:
		if err := validateArgs(schemaFor(EndCallParams{}), args); err != nil {
			return nil, err
		}
		var p EndCallParams
		if err := json.Unmarshal(args, &p); err != nil {
			return nil, fmt.Errorf("end_call args: %w", err)
		}
		if !e.cfg.EndCallAllowed {
			return nil, fmt.Errorf("end_call is not enabled for this call")
		}
		return &BuiltinAction{Kind: BuiltinEndCall, EndCallReason: p.Reason}, nil

	case BuiltinTransferNumber:
		if err := validateArgs(schemaFor(TransferToNumberParams{}), args); err != nil {
			return nil, err
		}
		var p TransferToNumberParams
		if err := json.Unmarshal(args, &p); err != nil {
			return nil, fmt.Errorf("transfer_to_number args: %w", err)
		}
		if !e.cfg.TransferToNumberAllowed {
			return nil, fmt.Errorf("transfer_to_number is not enabled for this call")
		}
		rule, ok := matchTransferRule(e.cfg, p.PhoneNumber)
		if !ok {
			return nil, fmt.Errorf("no transfer rule for number %q", p.PhoneNumber)
		}
		return &BuiltinAction{
			Kind:                BuiltinTransferNumber,
			TransferNumber:      rule.PhoneNumber,
			TransferType:        rule.TransferType,
			TransferMessage:     rule.TransferMessage,
			EnableClientMessage: rule.EnableClientMessage,
		}, nil

	case BuiltinTransferAgent:
		if err := validateArgs(schemaFor(TransferToAgentParams{}), args); err != nil {
			return nil, err
		}
		var p TransferToAgentParams
		if err := json.Unmarshal(args, &p); err != nil {
			return nil, fmt.Errorf("transfer_to_agent args: %w", err)
		}
		if !e.cfg.TransferToAgentAllowed {
			return nil, fmt.Errorf("transfer_to_agent is not enabled for this call")
		}
		rule, ok := matchAgentRule(e.cfg, p.AgentID)
		if !ok {
			return nil, fmt.Errorf("no transfer rule for agent %q", p.AgentID)
		}
		return &BuiltinAction{
			Kind:            BuiltinTransferAgent,
			AgentID:         rule.AgentID,
			DelaySeconds:    rule.DelaySeconds,
			TransferMessage: rule.TransferMessage,
			FirstMessage:    rule.FirstMessage,
		}, nil

	case BuiltinSwitchLanguage:
		if err := validateArgs(schemaFor(SwitchLanguageParams{}), args); err != nil {
			return nil, err
		}
		var p SwitchLanguageParams
		if err := json.Unmarshal(args, &p); err != nil {
			return nil, fmt.Errorf("switch_language args: %w", err)
		}
		voice := e.cfg.LanguageVoices[p.Language] // "" => GPU default for that language
		return &BuiltinAction{Kind: BuiltinSwitchLanguage, Language: p.Language, Voice: voice}, nil

	default:
		return nil, fmt.Errorf("not a builtin: %q", name)
	}
}

// DispatchHTTP executes a generic HTTP tool call and extracts configured
// response fields into store. HTTP errors are returned as {success:false}
// results, never as a Go error — they are not retried and do not
// terminate the call.
func (e *Engine) DispatchHTTP(ctx context.Context, name string, args json.RawMessage, store VariableStore) (*Result, error) {
	if !e.cfg.CustomToolsAllowed {
		return nil, fmt.Errorf("custom tools are not enabled for this call")
	}
	t, err := e.names.route(name)
	if err != nil {
		return nil, err
	}
	if err := validateArgs(t.ParametersSchema, args); err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}
	return e.http.execute(ctx, t, args, store)
}
