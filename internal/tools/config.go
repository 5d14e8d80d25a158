// Package tools builds tool descriptors from a call's configuration and
// dispatches both built-in actions and generic HTTP tools.
package tools

// TransferRule describes one phone-number transfer target.
type TransferRule struct {
	PhoneNumber         string
	Condition           string
	TransferType        string // "conference" or "sip_refer"
	TransferMessage     string
	EnableClientMessage bool
}

// AgentTransferRule describes one agent-to-agent transfer target.
type AgentTransferRule struct {
	AgentID         string
	Condition       string
	DelaySeconds    int
	TransferMessage string
	FirstMessage    string
}

// Param is one substitutable path or query parameter on a custom tool.
type Param struct {
	Name string
	Type string
}

// QueryParam is a query-string parameter: either a fixed constant or a
// value the LLM supplies.
type QueryParam struct {
	Name     string
	Const    string
	FromLLM  bool
}

// Assignment maps a dot-notation JSON path in the tool's response to a
// named session variable.
type Assignment struct {
	JSONPath string
	Variable string
}

// CustomToolDescriptor is one generic HTTP tool declared by the
// configuration service.
type CustomToolDescriptor struct {
	Name                   string
	Description            string
	Method                 string
	URLTemplate            string
	PathParams             []Param
	QueryParams            []QueryParam
	Headers                map[string]string
	ResponseTimeoutSeconds int
	Assignments            []Assignment
	ParametersSchema       []byte // optional author-supplied JSON Schema fragment
}

// Config is the per-call tool configuration, a subset of the assistant
// configuration the configuration service returns.
type Config struct {
	EndCallAllowed          bool
	TransferToNumberAllowed bool
	TransferToAgentAllowed  bool
	CustomToolsAllowed      bool

	TransferRules      []TransferRule
	AgentTransferRules []AgentTransferRule
	CustomTools        []CustomToolDescriptor
	LanguageVoices     map[string]string
}
