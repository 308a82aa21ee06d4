package harmony

import (
	"encoding/json"
	"fmt"
	"slices"
	"unicode/utf8"

	"go.uber.org/zap"
)

// State is the phase of a StreamParser.
type State int

const (
	// StateHeader collects the author, channel, recipient and content type
	// up to the <|message|> marker.
	StateHeader State = iota

	// StateContent accumulates message content up to a terminator.
	StateContent

	// StateEnded is terminal; it is entered by ProcessEOS.
	StateEnded
)

// String returns the name of s.
func (s State) String() string {
	switch s {
	case StateHeader:
		return "Header"
	case StateContent:
		return "Content"
	case StateEnded:
		return "Ended"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StreamParser decodes a token stream one token at a time.
//
// A StreamParser is a single cursor over one stream and is not safe for
// concurrent use. A rejected token leaves the parser unchanged.
type StreamParser struct {
	enc  *Encoding
	cfg  ParseConfig
	hint Role

	state       State
	tokens      []int32
	messages    []Message
	terminators []Terminator

	// header phase
	header       []int32
	sawStart     bool
	sawChannel   bool
	sawConstrain bool

	// content phase
	current      Message
	content      []int32
	contentBytes []byte
	emitted      int
	delta        string
}

// NewStreamParser returns a parser positioned at the start of a header.
func (e *Encoding) NewStreamParser(cfg ParseConfig) *StreamParser {
	return &StreamParser{
		enc:   e,
		cfg:   cfg,
		hint:  cfg.Role,
		state: StateHeader,
	}
}

// Process advances the parser by one token.
func (p *StreamParser) Process(tok int32) error {
	pos := len(p.tokens)
	m := p.enc.grammar.marker(tok)

	var err error
	switch p.state {
	case StateEnded:
		return fmt.Errorf("%w: token %d at position %d", ErrStreamEnded, tok, pos)
	case StateHeader:
		err = p.processHeader(pos, tok, m)
	case StateContent:
		err = p.processContent(pos, tok, m)
	}
	if err != nil {
		return err
	}
	p.tokens = append(p.tokens, tok)
	return nil
}

func (p *StreamParser) processHeader(pos int, tok int32, m Marker) error {
	switch m {
	case MarkerStart:
		if p.sawStart || len(p.header) > 0 {
			return p.malformed(pos, tok, "start marker inside a header")
		}
		p.sawStart = true
		return nil
	case MarkerChannel:
		if p.sawChannel {
			return p.malformed(pos, tok, "duplicate channel marker")
		}
		p.sawChannel = true
	case MarkerConstrain:
		if p.sawConstrain {
			return p.malformed(pos, tok, "duplicate content type marker")
		}
		p.sawConstrain = true
	case MarkerEnd, MarkerCall, MarkerReturn:
		return p.malformed(pos, tok, fmt.Sprintf("%s before the message marker", m))
	case MarkerMessage:
		segs, err := p.enc.splitHeader(p.header)
		if err != nil {
			return p.malformed(pos, tok, err.Error())
		}
		h, err := parseHeader(segs, p.hint, false)
		if err != nil {
			return p.malformed(pos, tok, err.Error())
		}
		p.current = Message{
			Author:      h.author,
			Channel:     h.channel,
			Recipient:   h.recipient,
			ContentType: h.contentType,
		}
		p.resetHeader()
		p.state = StateContent
		return nil
	}
	p.header = append(p.header, tok)
	return nil
}

func (p *StreamParser) processContent(pos int, tok int32, m Marker) error {
	if term, ok := terminatorOf(m); ok {
		return p.finish(pos, term)
	}
	if m != MarkerNone {
		return p.malformed(pos, tok, fmt.Sprintf("%s inside message content", m))
	}

	piece, err := p.enc.vocab.Decode([]int32{tok})
	if err != nil {
		return fmt.Errorf("harmony: decode token %d at position %d: %w", tok, pos, err)
	}
	p.content = append(p.content, tok)
	p.contentBytes = append(p.contentBytes, piece...)
	end := completePrefix(p.contentBytes)
	if end < p.emitted {
		end = p.emitted
	}
	p.delta = string(p.contentBytes[p.emitted:end])
	p.emitted = end
	return nil
}

// finish closes the current message with term.
func (p *StreamParser) finish(pos int, term Terminator) error {
	text, err := p.enc.vocab.Decode(p.content)
	if err != nil {
		return fmt.Errorf("harmony: decode content ending at position %d: %w", pos, err)
	}

	content := Text(text)
	if kind, ok := p.cfg.Blocks[p.current.Author.Role]; ok && kind != "" && kind != ContentText {
		if p.enc.formatter == nil {
			return fmt.Errorf("%w: cannot parse %s block", ErrNoFormatter, kind)
		}
		block, err := p.enc.formatter.ParseBlock(kind, text)
		if err != nil {
			return fmt.Errorf("harmony: parse %s block ending at position %d: %w", kind, pos, err)
		}
		content = BlockContent(block.Kind, block.Data)
	}

	msg := p.current
	msg.Content = []Content{content}
	p.messages = append(p.messages, msg)
	p.terminators = append(p.terminators, term)

	p.current = Message{}
	p.content = p.content[:0]
	p.contentBytes = p.contentBytes[:0]
	p.emitted = 0
	p.delta = ""
	p.hint = ""
	p.state = StateHeader
	return nil
}

// ProcessEOS ends the stream. A message in progress is finalized as is with
// TerminatorNone; a partial header is discarded. If the final message cannot
// be decoded the stream still ends, without that message, and the error is
// returned. Calling it again is a no-op.
func (p *StreamParser) ProcessEOS() error {
	switch p.state {
	case StateEnded:
		return nil
	case StateContent:
		if err := p.finish(len(p.tokens), TerminatorNone); err != nil {
			p.state = StateEnded
			return err
		}
	case StateHeader:
		if len(p.header) > 0 || p.sawStart {
			p.enc.logger.Debug("discarding partial header at end of stream",
				zap.Int("position", len(p.tokens)),
				zap.Int("header_tokens", len(p.header)),
			)
		}
		p.resetHeader()
	}
	p.state = StateEnded
	return nil
}

func (p *StreamParser) resetHeader() {
	p.header = p.header[:0]
	p.sawStart = false
	p.sawChannel = false
	p.sawConstrain = false
}

func (p *StreamParser) malformed(pos int, tok int32, reason string) error {
	p.enc.logger.Debug("malformed token stream",
		zap.Int("position", pos),
		zap.Int32("token", tok),
		zap.Stringer("state", p.state),
		zap.String("reason", reason),
	)
	return &MalformedStreamError{Position: pos, Token: tok, State: p.state, Reason: reason}
}

// InProgress reports whether a message has been started but not finished.
func (p *StreamParser) InProgress() bool {
	switch p.state {
	case StateContent:
		return true
	case StateHeader:
		return p.sawStart || len(p.header) > 0
	}
	return false
}

// State returns the current phase.
func (p *StreamParser) State() State { return p.state }

// Messages returns a snapshot of the completed messages.
func (p *StreamParser) Messages() []Message { return slices.Clone(p.messages) }

// Terminators returns how each completed message ended, index-aligned with
// Messages.
func (p *StreamParser) Terminators() []Terminator { return slices.Clone(p.terminators) }

// Tokens returns every accepted token.
func (p *StreamParser) Tokens() []int32 { return slices.Clone(p.tokens) }

// fields returns the header fields of the message in progress. While still
// in the header, fields are read leniently from the tokens seen so far.
func (p *StreamParser) fields() (headerFields, bool) {
	switch p.state {
	case StateContent:
		return headerFields{
			author:      p.current.Author,
			hasAuthor:   true,
			channel:     p.current.Channel,
			recipient:   p.current.Recipient,
			contentType: p.current.ContentType,
		}, true
	case StateHeader:
		if !p.InProgress() {
			if p.hint == "" {
				return headerFields{}, false
			}
			return headerFields{author: Author{Role: p.hint}, hasAuthor: true}, true
		}
		segs, err := p.enc.splitHeader(p.header)
		if err != nil {
			return headerFields{}, false
		}
		h, _ := parseHeader(segs, p.hint, true)
		return h, true
	}
	return headerFields{}, false
}

// CurrentRole returns the author role of the message in progress.
func (p *StreamParser) CurrentRole() (Role, bool) {
	h, ok := p.fields()
	if !ok || !h.hasAuthor {
		return "", false
	}
	return h.author.Role, true
}

// CurrentAuthor returns the author of the message in progress.
func (p *StreamParser) CurrentAuthor() (Author, bool) {
	h, ok := p.fields()
	if !ok || !h.hasAuthor {
		return Author{}, false
	}
	return h.author, true
}

// CurrentChannel returns the channel of the message in progress, or "".
func (p *StreamParser) CurrentChannel() string {
	h, _ := p.fields()
	return h.channel
}

// CurrentRecipient returns the recipient of the message in progress, or "".
func (p *StreamParser) CurrentRecipient() string {
	h, _ := p.fields()
	return h.recipient
}

// CurrentContentType returns the content type of the message in progress,
// or "".
func (p *StreamParser) CurrentContentType() string {
	h, _ := p.fields()
	return h.contentType
}

// CurrentContent returns the content decoded so far, excluding a trailing
// incomplete UTF-8 sequence.
func (p *StreamParser) CurrentContent() string {
	return string(p.contentBytes[:p.emitted])
}

// LastContentDelta returns the text completed by the last content token.
// It is empty when that token ended inside a multi-byte character.
func (p *StreamParser) LastContentDelta() string { return p.delta }

// Partial returns the message in progress with the content decoded so far.
func (p *StreamParser) Partial() (Message, bool) {
	h, ok := p.fields()
	if !ok {
		return Message{}, false
	}
	return Message{
		Author:      h.author,
		Channel:     h.channel,
		Recipient:   h.recipient,
		ContentType: h.contentType,
		Content:     []Content{Text(p.CurrentContent())},
	}, true
}

type stateJSON struct {
	State              State        `json:"state"`
	CurrentRole        Role         `json:"current_role,omitempty"`
	CurrentChannel     string       `json:"current_channel,omitempty"`
	CurrentRecipient   string       `json:"current_recipient,omitempty"`
	CurrentContentType string       `json:"current_content_type,omitempty"`
	CurrentContent     string       `json:"current_content"`
	LastContentDelta   string       `json:"last_content_delta"`
	Messages           []Message    `json:"messages"`
	Terminators        []Terminator `json:"terminators"`
	Tokens             []int32      `json:"tokens"`
}

// StateJSON returns a JSON snapshot of the parser.
func (p *StreamParser) StateJSON() ([]byte, error) {
	h, _ := p.fields()
	snap := stateJSON{
		State:              p.state,
		CurrentRole:        h.author.Role,
		CurrentChannel:     h.channel,
		CurrentRecipient:   h.recipient,
		CurrentContentType: h.contentType,
		CurrentContent:     p.CurrentContent(),
		LastContentDelta:   p.delta,
		Messages:           p.messages,
		Terminators:        p.terminators,
		Tokens:             p.tokens,
	}
	if snap.Messages == nil {
		snap.Messages = []Message{}
	}
	if snap.Terminators == nil {
		snap.Terminators = []Terminator{}
	}
	if snap.Tokens == nil {
		snap.Tokens = []int32{}
	}
	return json.Marshal(snap)
}

// completePrefix returns the length of the longest prefix of b that does
// not end inside a multi-byte UTF-8 sequence.
func completePrefix(b []byte) int {
	for i := len(b) - 1; i >= 0 && i > len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if utf8.FullRune(b[i:]) {
				return len(b)
			}
			return i
		}
	}
	return len(b)
}
