package harmony

import "slices"

// DropScope selects which "final" message bounds the reasoning drop policy.
type DropScope int

const (
	// DropBeforeLastFinal elides analysis messages strictly before the
	// newest final message.
	DropBeforeLastFinal DropScope = iota

	// DropBeforeFirstFinal elides analysis messages strictly before the
	// earliest final message.
	DropBeforeFirstFinal
)

// String returns the configuration spelling of s.
func (s DropScope) String() string {
	switch s {
	case DropBeforeFirstFinal:
		return "first_final"
	default:
		return "last_final"
	}
}

// ParseDropScope parses "last_final" or "first_final". Empty input selects
// DropBeforeLastFinal.
func ParseDropScope(s string) (DropScope, bool) {
	switch s {
	case "", "last_final":
		return DropBeforeLastFinal, true
	case "first_final":
		return DropBeforeFirstFinal, true
	}
	return DropBeforeLastFinal, false
}

// ChannelPolicy constrains the channels a conversation may use.
type ChannelPolicy struct {
	// Valid lists the accepted channel names. Empty accepts any name.
	Valid []string

	// Required demands a channel on every assistant message.
	Required bool

	// MustAppear lists channels that must each occur at least once.
	MustAppear []string
}

// TurnPolicy reports whether next may speak after history. A nil policy
// permits every role.
type TurnPolicy func(history []Message, next Role) bool

// RoleTransitions builds a TurnPolicy from the role of the last message to
// the roles allowed to follow it. Roles missing from the table, and empty
// histories, are unconstrained.
func RoleTransitions(table map[Role][]Role) TurnPolicy {
	frozen := make(map[Role][]Role, len(table))
	for from, to := range table {
		frozen[from] = slices.Clone(to)
	}
	return func(history []Message, next Role) bool {
		if len(history) == 0 {
			return true
		}
		allowed, ok := frozen[history[len(history)-1].Author.Role]
		if !ok {
			return true
		}
		return slices.Contains(allowed, next)
	}
}

// HarmonyTurns routes an assistant tool call to the tool and a tool result
// back to the assistant.
func HarmonyTurns() TurnPolicy {
	return func(history []Message, next Role) bool {
		if len(history) == 0 {
			return true
		}
		last := history[len(history)-1]
		switch {
		case last.IsToolCall():
			return next == RoleTool
		case last.Author.Role == RoleTool:
			return next == RoleAssistant
		}
		return true
	}
}

// RenderConfig controls rendering. A nil *RenderConfig renders the
// conversation literally: nothing is dropped and no policy is checked.
type RenderConfig struct {
	// AutoDropPreviousReasoning elides analysis-channel messages that
	// precede the final message selected by DropScope.
	AutoDropPreviousReasoning bool

	DropScope DropScope

	// Channels, when set, is checked before rendering.
	Channels *ChannelPolicy

	// Turns, when set, gates the next role of a completion prompt.
	Turns TurnPolicy
}

// DefaultRenderConfig returns the gpt-oss conventions: reasoning before the
// last final answer is dropped, assistant messages carry one of the three
// standard channels and tool calls alternate with tool results.
func DefaultRenderConfig() *RenderConfig {
	return &RenderConfig{
		AutoDropPreviousReasoning: true,
		DropScope:                 DropBeforeLastFinal,
		Channels: &ChannelPolicy{
			Valid:    []string{ChannelAnalysis, ChannelCommentary, ChannelFinal},
			Required: true,
		},
		Turns: HarmonyTurns(),
	}
}

// ParseConfig controls batch and streaming parsing.
type ParseConfig struct {
	// Role is the author of the first message when its header omits the
	// author, as in completion tokens sampled after a
	// "<|start|>assistant" prompt suffix.
	Role Role

	// AllowPartial lets the batch parser accept input that ends inside a
	// message, finalizing it as the stream parser does on ProcessEOS.
	AllowPartial bool

	// Blocks maps author roles to the structured block kind their content
	// is decoded into by the encoding's BlockFormatter.
	Blocks map[Role]ContentType
}
