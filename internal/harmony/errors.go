package harmony

import (
	"errors"
	"fmt"
)

// Sentinel errors. Use errors.Is to classify failures and errors.As to
// recover the typed error carrying position details.
var (
	// ErrValidation reports a conversation that violates a configured policy.
	ErrValidation = errors.New("harmony: conversation validation failed")

	// ErrMalformedStream reports a token that is invalid for the parser state.
	ErrMalformedStream = errors.New("harmony: malformed token stream")

	// ErrUnterminatedMessage reports input that ended inside a message.
	ErrUnterminatedMessage = errors.New("harmony: unterminated message")

	// ErrStreamEnded reports a Process call after ProcessEOS.
	ErrStreamEnded = errors.New("harmony: stream already ended")
)

// ValidationError describes a conversation rejected before rendering.
type ValidationError struct {
	// Index is the offending message, or -1 for conversation-level failures.
	Index  int
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%v: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%v: message %d: %s", ErrValidation, e.Index, e.Reason)
}

// Unwrap returns ErrValidation.
func (e *ValidationError) Unwrap() error { return ErrValidation }

func validationErrorf(index int, format string, args ...any) error {
	return &ValidationError{Index: index, Reason: fmt.Sprintf(format, args...)}
}

// MalformedStreamError describes a grammar violation in a token stream.
type MalformedStreamError struct {
	// Position is the zero-based offset of Token in the stream.
	Position int
	Token    int32
	State    State
	Reason   string
}

func (e *MalformedStreamError) Error() string {
	return fmt.Sprintf("%v: token %d at position %d (state %s): %s",
		ErrMalformedStream, e.Token, e.Position, e.State, e.Reason)
}

// Unwrap returns ErrMalformedStream.
func (e *MalformedStreamError) Unwrap() error { return ErrMalformedStream }

// UnterminatedMessageError describes input that ended mid-message.
type UnterminatedMessageError struct {
	// Position is the length of the consumed input.
	Position int
	State    State
}

func (e *UnterminatedMessageError) Error() string {
	return fmt.Sprintf("%v: input ended at position %d in state %s",
		ErrUnterminatedMessage, e.Position, e.State)
}

// Unwrap returns ErrUnterminatedMessage.
func (e *UnterminatedMessageError) Unwrap() error { return ErrUnterminatedMessage }
