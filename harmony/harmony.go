// Package harmony renders conversations into Harmony token sequences and
// parses model completions back into structured messages.
//
// This package wraps the internal implementation and provides the public
// API. Example usage:
//
//	import "github.com/born-ml/harmony/harmony"
//
//	enc, err := harmony.LoadEncoding(harmony.HarmonyGptOss)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	conv := harmony.NewConversation(
//	    harmony.SystemMessage(harmony.SystemContent{ReasoningEffort: harmony.ReasoningHigh}),
//	    harmony.NewMessage(harmony.RoleUser, "What is 2+2?"),
//	)
//	prompt, err := enc.RenderConversationForCompletion(conv, harmony.RoleAssistant, harmony.DefaultRenderConfig())
//
//	// ... sample completion tokens from a model ...
//
//	msgs, err := enc.ParseMessagesFromCompletionTokens(completion, harmony.ParseConfig{Role: harmony.RoleAssistant})
package harmony

import (
	"fmt"

	"github.com/born-ml/harmony/internal/harmony"
	"github.com/born-ml/harmony/internal/preamble"
	"github.com/born-ml/harmony/internal/tokenizer"
)

// Codec types.
type (
	Encoding       = harmony.Encoding
	EncodingName   = harmony.EncodingName
	Option         = harmony.Option
	Vocabulary     = harmony.Vocabulary
	Block          = harmony.Block
	BlockFormatter = harmony.BlockFormatter
	StreamParser   = harmony.StreamParser
	State          = harmony.State
	Marker         = harmony.Marker
	Terminator     = harmony.Terminator
)

// Message model.
type (
	Role         = harmony.Role
	Author       = harmony.Author
	ContentType  = harmony.ContentType
	Content      = harmony.Content
	Message      = harmony.Message
	Conversation = harmony.Conversation
)

// Configuration.
type (
	RenderConfig  = harmony.RenderConfig
	ParseConfig   = harmony.ParseConfig
	ChannelPolicy = harmony.ChannelPolicy
	TurnPolicy    = harmony.TurnPolicy
	DropScope     = harmony.DropScope
)

// Errors carrying position details.
type (
	ValidationError          = harmony.ValidationError
	MalformedStreamError     = harmony.MalformedStreamError
	UnterminatedMessageError = harmony.UnterminatedMessageError
)

// Preamble blocks.
type (
	SystemContent       = preamble.SystemContent
	DeveloperContent    = preamble.DeveloperContent
	ToolNamespaceConfig = preamble.ToolNamespaceConfig
	ToolDescription     = preamble.ToolDescription
	ChannelConfig       = preamble.ChannelConfig
	ReasoningEffort     = preamble.ReasoningEffort
)

// Encoding names.
const (
	HarmonyGptOss = harmony.HarmonyGptOss

	// ByteLevel is an offline vocabulary with the Harmony special tokens
	// where every byte is its own token. Useful for tests and tooling.
	ByteLevel EncodingName = tokenizer.EncodingByteLevel
)

// Roles.
const (
	RoleSystem    = harmony.RoleSystem
	RoleDeveloper = harmony.RoleDeveloper
	RoleUser      = harmony.RoleUser
	RoleAssistant = harmony.RoleAssistant
	RoleTool      = harmony.RoleTool
)

// Channels.
const (
	ChannelAnalysis   = harmony.ChannelAnalysis
	ChannelCommentary = harmony.ChannelCommentary
	ChannelFinal      = harmony.ChannelFinal
)

// Terminators.
const (
	TerminatorNone   = harmony.TerminatorNone
	TerminatorEnd    = harmony.TerminatorEnd
	TerminatorCall   = harmony.TerminatorCall
	TerminatorReturn = harmony.TerminatorReturn
)

// Grammar markers.
const (
	MarkerStart     = harmony.MarkerStart
	MarkerChannel   = harmony.MarkerChannel
	MarkerConstrain = harmony.MarkerConstrain
	MarkerMessage   = harmony.MarkerMessage
	MarkerEnd       = harmony.MarkerEnd
	MarkerCall      = harmony.MarkerCall
	MarkerReturn    = harmony.MarkerReturn
)

// Stream parser states.
const (
	StateHeader  = harmony.StateHeader
	StateContent = harmony.StateContent
	StateEnded   = harmony.StateEnded
)

// Drop scopes.
const (
	DropBeforeLastFinal  = harmony.DropBeforeLastFinal
	DropBeforeFirstFinal = harmony.DropBeforeFirstFinal
)

// Preamble block kinds and reasoning efforts.
const (
	KindSystem    = preamble.KindSystem
	KindDeveloper = preamble.KindDeveloper

	ReasoningLow    = preamble.ReasoningLow
	ReasoningMedium = preamble.ReasoningMedium
	ReasoningHigh   = preamble.ReasoningHigh
)

// Sentinel errors.
var (
	ErrValidation          = harmony.ErrValidation
	ErrMalformedStream     = harmony.ErrMalformedStream
	ErrUnterminatedMessage = harmony.ErrUnterminatedMessage
	ErrStreamEnded         = harmony.ErrStreamEnded
	ErrNoFormatter         = harmony.ErrNoFormatter
)

// Encoding options.
var (
	WithName      = harmony.WithName
	WithFormatter = harmony.WithFormatter
	WithLogger    = harmony.WithLogger
	WithParallel  = harmony.WithParallel
)

// Constructors.
var (
	NewMessage          = harmony.NewMessage
	NewToolMessage      = harmony.NewToolMessage
	NewConversation     = harmony.NewConversation
	Text                = harmony.Text
	BlockContent        = harmony.BlockContent
	DefaultRenderConfig = harmony.DefaultRenderConfig
	HarmonyTurns        = harmony.HarmonyTurns
	RoleTransitions     = harmony.RoleTransitions
	ParseDropScope      = harmony.ParseDropScope
	SystemMessage       = preamble.SystemMessage
	DeveloperMessage    = preamble.DeveloperMessage
	NewFunctions        = preamble.NewFunctions
)

// NewEncoding builds an encoding over any vocabulary that defines the
// Harmony special tokens.
func NewEncoding(vocab Vocabulary, opts ...Option) (*Encoding, error) {
	return harmony.NewEncoding(vocab, opts...)
}

// NewPreambleFormatter returns the formatter for system and developer
// blocks.
func NewPreambleFormatter() BlockFormatter {
	return preamble.NewFormatter()
}

// LoadEncoding returns the named encoding with the preamble formatter
// installed. HarmonyGptOss reads o200k ranks from TIKTOKEN_ENCODINGS_BASE
// or downloads them once per process.
func LoadEncoding(name EncodingName, opts ...Option) (*Encoding, error) {
	return LoadEncodingFrom(name, "", opts...)
}

// LoadEncodingFrom is LoadEncoding with an explicit rank file location: a
// path, a directory holding o200k_base.tiktoken, or a URL.
func LoadEncodingFrom(name EncodingName, ranksSource string, opts ...Option) (*Encoding, error) {
	vocabName := string(name)
	if name == HarmonyGptOss {
		vocabName = tokenizer.EncodingO200kHarmony
	}
	vocab, err := tokenizer.Load(vocabName, ranksSource)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", name, err)
	}
	base := []Option{harmony.WithName(name), harmony.WithFormatter(preamble.NewFormatter())}
	return harmony.NewEncoding(vocab, append(base, opts...)...)
}
