// Package decode drives a Harmony stream parser from a live source of
// sampled tokens, turning them into content deltas and completed messages.
package decode

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/born-ml/harmony/internal/harmony"
)

// Stop reasons reported on the final event.
const (
	ReasonStopToken = "stop_token"
	ReasonMaxTokens = "max_tokens"
	ReasonEOS       = "eos"
	ReasonCanceled  = "canceled"
	ReasonError     = "error"
)

// ErrSessionDone is returned when a token is fed to a finished session.
var ErrSessionDone = errors.New("decode: session is done")

// Config configures a decode session.
type Config struct {
	// MaxTokens caps the number of tokens consumed. Zero means no limit.
	MaxTokens int

	// StopTokens end the session once parsed. Nil selects the encoding's
	// assistant action stop tokens (<|return|> and <|call|>).
	StopTokens []int32

	// Parse configures the underlying stream parser.
	Parse harmony.ParseConfig
}

// DefaultConfig returns a config for parsing an assistant completion.
func DefaultConfig() Config {
	return Config{
		Parse: harmony.ParseConfig{Role: harmony.RoleAssistant, AllowPartial: true},
	}
}

// Event is a single result of feeding a token.
type Event struct {
	TokenID int32  // token consumed; -1 on events not tied to a token
	Delta   string // newly completed message content

	// Message is set when the token completed a message.
	Message    *harmony.Message
	Terminator harmony.Terminator

	Done   bool   // session finished
	Reason string // stop reason, set when Done
	Err    error
}

// Session consumes sampled tokens one at a time.
type Session struct {
	id     uuid.UUID
	parser *harmony.StreamParser
	cfg    Config
	stop   map[int32]struct{}
	terms  map[int32]struct{}
	logger *zap.Logger

	consumed int
	done     bool
	reason   string
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSession starts a session over enc.
func NewSession(enc *harmony.Encoding, cfg Config, opts ...Option) *Session {
	stops := cfg.StopTokens
	if stops == nil {
		stops = enc.StopTokensForAssistantActions()
	}
	s := &Session{
		id:     uuid.New(),
		parser: enc.NewStreamParser(cfg.Parse),
		cfg:    cfg,
		stop:   make(map[int32]struct{}, len(stops)),
		terms:  make(map[int32]struct{}, 3),
		logger: zap.NewNop(),
	}
	for _, t := range stops {
		s.stop[t] = struct{}{}
	}
	for _, t := range enc.StopTokens() {
		s.terms[t] = struct{}{}
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("decode").With(zap.String("session", s.id.String()))
	s.logger.Debug("session started", zap.Int("max_tokens", cfg.MaxTokens), zap.Int("stop_tokens", len(stops)))
	return s
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id.String() }

// Parser returns the underlying stream parser for inspection.
func (s *Session) Parser() *harmony.StreamParser { return s.parser }

// Done reports whether the session has finished and why.
func (s *Session) Done() (bool, string) { return s.done, s.reason }

// Messages returns the messages completed so far.
func (s *Session) Messages() []harmony.Message { return s.parser.Messages() }

// Feed consumes one token. A parse error ends the session and is returned
// both directly and on the event. A stop token that is not a message
// terminator ends the session without reaching the parser.
func (s *Session) Feed(tok int32) (Event, error) {
	if s.done {
		return Event{}, ErrSessionDone
	}

	_, stop := s.stop[tok]
	if _, term := s.terms[tok]; stop && !term {
		s.consumed++
		return s.finish(Event{TokenID: tok}, ReasonStopToken)
	}

	wasContent := s.parser.State() == harmony.StateContent
	if err := s.parser.Process(tok); err != nil {
		s.end(ReasonError)
		return Event{TokenID: tok, Done: true, Reason: ReasonError, Err: err}, err
	}
	s.consumed++

	ev := Event{TokenID: tok, Delta: s.parser.LastContentDelta()}
	if wasContent && s.parser.State() == harmony.StateHeader {
		s.lastMessage(&ev)
	}

	if stop {
		return s.finish(ev, ReasonStopToken)
	}
	if s.cfg.MaxTokens > 0 && s.consumed >= s.cfg.MaxTokens {
		return s.finish(ev, ReasonMaxTokens)
	}
	return ev, nil
}

// Close ends the token source. A message still open is completed when
// partial output is allowed.
func (s *Session) Close() (Event, error) {
	if s.done {
		return Event{}, ErrSessionDone
	}
	return s.finish(Event{TokenID: -1}, ReasonEOS)
}

// finish ends the session, completing any open message into ev.
func (s *Session) finish(ev Event, reason string) (Event, error) {
	ev.Done = true
	ev.Reason = reason

	if s.parser.InProgress() && !s.cfg.Parse.AllowPartial && reason != ReasonStopToken {
		err := &harmony.UnterminatedMessageError{Position: len(s.parser.Tokens()), State: s.parser.State()}
		s.end(ReasonError)
		ev.Reason, ev.Err = ReasonError, err
		return ev, err
	}

	wasContent := s.parser.State() == harmony.StateContent
	if err := s.parser.ProcessEOS(); err != nil {
		s.end(ReasonError)
		ev.Reason, ev.Err = ReasonError, err
		return ev, err
	}
	if wasContent {
		s.lastMessage(&ev)
	}
	s.end(reason)
	return ev, nil
}

func (s *Session) lastMessage(ev *Event) {
	msgs := s.parser.Messages()
	terms := s.parser.Terminators()
	if len(msgs) == 0 {
		return
	}
	m := msgs[len(msgs)-1]
	ev.Message = &m
	ev.Terminator = terms[len(terms)-1]
}

func (s *Session) end(reason string) {
	s.done = true
	s.reason = reason
	s.logger.Debug("session finished",
		zap.String("reason", reason),
		zap.Int("tokens", s.consumed),
		zap.Int("messages", len(s.parser.Messages())))
}

// Stream feeds tokens from src until a stop condition, the end of src or
// cancellation of ctx, sending an event per token. The last event has Done
// set. The returned channel is closed afterwards.
func (s *Session) Stream(ctx context.Context, src <-chan int32) <-chan Event {
	out := make(chan Event, 1)

	go func() {
		defer close(out)

		send := func(ev Event) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if s.done {
			send(Event{TokenID: -1, Done: true, Reason: s.reason, Err: ErrSessionDone})
			return
		}

		for {
			select {
			case <-ctx.Done():
				s.end(ReasonCanceled)
				// Best effort; the receiver may be gone.
				select {
				case out <- Event{TokenID: -1, Done: true, Reason: ReasonCanceled, Err: ctx.Err()}:
				default:
				}
				return
			case tok, ok := <-src:
				var ev Event
				if ok {
					ev, _ = s.Feed(tok)
				} else {
					ev, _ = s.Close()
				}
				if !send(ev) {
					if !ev.Done {
						s.end(ReasonCanceled)
					}
					return
				}
				if ev.Done {
					return
				}
			}
		}
	}()

	return out
}

// Run feeds tokens until a stop condition and returns the parsed messages
// and the stop reason.
func Run(enc *harmony.Encoding, tokens []int32, cfg Config, opts ...Option) ([]harmony.Message, string, error) {
	s := NewSession(enc, cfg, opts...)
	for i, tok := range tokens {
		ev, err := s.Feed(tok)
		if err != nil {
			return s.Messages(), ReasonError, fmt.Errorf("decode: token %d: %w", i, err)
		}
		if ev.Done {
			return s.Messages(), ev.Reason, nil
		}
	}
	ev, err := s.Close()
	if err != nil {
		return s.Messages(), ReasonError, fmt.Errorf("decode: %w", err)
	}
	return s.Messages(), ev.Reason, nil
}
