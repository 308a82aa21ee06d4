package preamble

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"

	"github.com/born-ml/harmony/internal/harmony"
)

// Block kinds handled by Formatter.
const (
	KindSystem    harmony.ContentType = "system_content"
	KindDeveloper harmony.ContentType = "developer_content"
)

// FunctionsNamespace is the namespace of developer-declared function tools.
const FunctionsNamespace = "functions"

// Defaults applied when a SystemContent field is empty.
const (
	DefaultModelIdentity   = "You are ChatGPT, a large language model trained by OpenAI."
	DefaultKnowledgeCutoff = "2024-06"
)

// ErrUnknownKind is returned for blocks this package does not format.
var ErrUnknownKind = errors.New("preamble: unknown block kind")

// ReasoningEffort expresses the desired level of reasoning for the model.
type ReasoningEffort string

// Reasoning effort values.
const (
	ReasoningLow    ReasoningEffort = "low"
	ReasoningMedium ReasoningEffort = "medium"
	ReasoningHigh   ReasoningEffort = "high"
)

// ChannelConfig declares the valid channels and whether every message must
// name one.
type ChannelConfig struct {
	ValidChannels   []string `json:"valid_channels"`
	ChannelRequired bool     `json:"channel_required"`
}

// DefaultChannelConfig returns analysis, commentary and final, required.
func DefaultChannelConfig() *ChannelConfig {
	return &ChannelConfig{
		ValidChannels:   []string{harmony.ChannelAnalysis, harmony.ChannelCommentary, harmony.ChannelFinal},
		ChannelRequired: true,
	}
}

// ToolDescription describes one tool. Parameters is a JSON Schema object.
type ToolDescription struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolNamespaceConfig groups tools under a namespace such as "functions" or
// "browser".
type ToolNamespaceConfig struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Tools       []ToolDescription `json:"tools"`
}

// NewFunctions returns the functions namespace holding tools.
func NewFunctions(tools ...ToolDescription) ToolNamespaceConfig {
	return ToolNamespaceConfig{Name: FunctionsNamespace, Tools: tools}
}

// SystemContent is the system preamble. Empty fields take their defaults.
type SystemContent struct {
	ModelIdentity         string                         `json:"model_identity,omitempty"`
	ReasoningEffort       ReasoningEffort                `json:"reasoning_effort,omitempty"`
	Tools                 map[string]ToolNamespaceConfig `json:"tools,omitempty"`
	ConversationStartDate string                         `json:"conversation_start_date,omitempty"`
	KnowledgeCutoff       string                         `json:"knowledge_cutoff,omitempty"`
	ChannelConfig         *ChannelConfig                 `json:"channel_config,omitempty"`

	// ToolsSection is rendered tools text, used verbatim when Tools is
	// empty. ParseBlock fills it since schemas cannot be recovered.
	ToolsSection string `json:"tools_section,omitempty"`
}

// WithTools returns a copy of s with ns added.
func (s SystemContent) WithTools(ns ToolNamespaceConfig) SystemContent {
	s.Tools = withNamespace(s.Tools, ns)
	return s
}

// DeveloperContent carries developer instructions and tool declarations.
type DeveloperContent struct {
	Instructions string                         `json:"instructions,omitempty"`
	Tools        map[string]ToolNamespaceConfig `json:"tools,omitempty"`

	// ToolsSection is rendered tools text, used verbatim when Tools is empty.
	ToolsSection string `json:"tools_section,omitempty"`
}

// WithFunctionTools returns a copy of d declaring tools in the functions
// namespace.
func (d DeveloperContent) WithFunctionTools(tools ...ToolDescription) DeveloperContent {
	d.Tools = withNamespace(d.Tools, NewFunctions(tools...))
	return d
}

func withNamespace(tools map[string]ToolNamespaceConfig, ns ToolNamespaceConfig) map[string]ToolNamespaceConfig {
	out := maps.Clone(tools)
	if out == nil {
		out = make(map[string]ToolNamespaceConfig, 1)
	}
	out[ns.Name] = ns
	return out
}

// SystemMessage returns a system message holding s.
func SystemMessage(s SystemContent) harmony.Message {
	return harmony.Message{
		Author:  harmony.Author{Role: harmony.RoleSystem},
		Content: []harmony.Content{harmony.BlockContent(KindSystem, s)},
	}
}

// DeveloperMessage returns a developer message holding d.
func DeveloperMessage(d DeveloperContent) harmony.Message {
	return harmony.Message{
		Author:  harmony.Author{Role: harmony.RoleDeveloper},
		Content: []harmony.Content{harmony.BlockContent(KindDeveloper, d)},
	}
}

// SystemFrom extracts the system content of a block payload: a
// SystemContent, a pointer to one, or its JSON form.
func SystemFrom(data any) (SystemContent, error) {
	switch v := data.(type) {
	case SystemContent:
		return v, nil
	case *SystemContent:
		if v == nil {
			return SystemContent{}, errors.New("preamble: nil system content")
		}
		return *v, nil
	}
	var s SystemContent
	if err := decodeJSON(data, &s); err != nil {
		return SystemContent{}, fmt.Errorf("preamble: system content: %w", err)
	}
	return s, nil
}

// DeveloperFrom extracts the developer content of a block payload.
func DeveloperFrom(data any) (DeveloperContent, error) {
	switch v := data.(type) {
	case DeveloperContent:
		return v, nil
	case *DeveloperContent:
		if v == nil {
			return DeveloperContent{}, errors.New("preamble: nil developer content")
		}
		return *v, nil
	}
	var d DeveloperContent
	if err := decodeJSON(data, &d); err != nil {
		return DeveloperContent{}, fmt.Errorf("preamble: developer content: %w", err)
	}
	return d, nil
}

// decodeJSON decodes raw JSON payloads and round-trips anything else, such
// as maps read from YAML, through encoding/json.
func decodeJSON(data any, v any) error {
	var raw []byte
	switch d := data.(type) {
	case json.RawMessage:
		raw = d
	case []byte:
		raw = d
	case string:
		raw = []byte(d)
	default:
		b, err := json.Marshal(data)
		if err != nil {
			return err
		}
		raw = b
	}
	return json.Unmarshal(raw, v)
}
