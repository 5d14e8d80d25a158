package tools

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"

	"github.com/hubenschmidt/voicebridge-gateway/internal/llmsession"
)

var reflector = &jsonschema.Reflector{
	ExpandedStruct: true,
	DoNotReference: true,
}

func schemaFor(v any) json.RawMessage {
	s := reflector.Reflect(v)
	b, err := json.Marshal(s)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return b
}

// BuildDescriptors assembles the tools array sent to the LLM session:
// end_call and the two transfers when their config flags allow them,
// switch_language always, plus the configured generic HTTP tools when
// custom tools are allowed.
func BuildDescriptors(cfg Config) []llmsession.ToolDescriptor {
	var out []llmsession.ToolDescriptor

	if cfg.EndCallAllowed {
		out = append(out, llmsession.ToolDescriptor{
			Name:        string(BuiltinEndCall),
			Description: "End the call with a reason.",
			Parameters:  schemaFor(EndCallParams{}),
		})
	}
	if cfg.TransferToNumberAllowed {
		out = append(out, llmsession.ToolDescriptor{
			Name:        string(BuiltinTransferNumber),
			Description: "Transfer the call to a configured phone number.",
			Parameters:  schemaFor(TransferToNumberParams{}),
		})
	}
	if cfg.TransferToAgentAllowed {
		out = append(out, llmsession.ToolDescriptor{
			Name:        string(BuiltinTransferAgent),
			Description: "Transfer the call to a configured human or AI agent.",
			Parameters:  schemaFor(TransferToAgentParams{}),
		})
	}
	out = append(out, llmsession.ToolDescriptor{
		Name:        string(BuiltinSwitchLanguage),
		Description: "Switch the active conversation language.",
		Parameters:  schemaFor(SwitchLanguageParams{}),
	})

	if cfg.CustomToolsAllowed {
		for _, t := range cfg.CustomTools {
			params := t.ParametersSchema
			if len(params) == 0 {
				params = json.RawMessage(`{"type":"object"}`)
			}
			out = append(out, llmsession.ToolDescriptor{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			})
		}
	}
	return out
}

// validateArgs checks LLM-supplied tool call arguments against the tool's
// declared JSON Schema before dispatch. This is boundary validation of
// untrusted model output, not speculative internal validation.
func validateArgs(schema json.RawMessage, args json.RawMessage) error {
	if len(schema) == 0 {
		return nil
	}
	schemaLoader := gojsonschema.NewBytesLoader(schema)
	docLoader := gojsonschema.NewBytesLoader(args)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if !result.Valid() {
		if len(result.Errors()) > 0 {
			return fmt.Errorf("invalid tool arguments: %s", result.Errors()[0].String())
		}
		return fmt.Errorf("invalid tool arguments")
	}
	return nil
}
