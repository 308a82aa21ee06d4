package harmony

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role identifies the author class of a message.
type Role string

// Roles understood by the Harmony format.
const (
	RoleSystem    Role = "system"
	RoleDeveloper Role = "developer"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Well-known channel names.
const (
	ChannelAnalysis   = "analysis"
	ChannelCommentary = "commentary"
	ChannelFinal      = "final"
)

// recipientAll addresses every participant and renders as no recipient.
const recipientAll = "all"

// Valid reports whether r is one of the five Harmony roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleDeveloper, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// Author identifies who wrote a message.
//
// Name is required for RoleTool (the namespaced tool id, e.g.
// "functions.lookup_weather") and optional for other roles, where it renders
// as a "role:name" alias.
type Author struct {
	Role Role   `json:"role"`
	Name string `json:"name,omitempty"`
}

// ContentType tags a content item. ContentText is plain text; every other
// value names a structured block kind that is rendered and parsed by the
// encoding's BlockFormatter.
type ContentType string

// ContentText marks plain-text content.
const ContentText ContentType = "text"

// Content is a single content item: either plain text or an opaque
// structured block. The codec never inspects Data.
type Content struct {
	Type ContentType
	Text string
	Data any
}

// Text returns a plain-text content item.
func Text(s string) Content {
	return Content{Type: ContentText, Text: s}
}

// BlockContent returns a structured content item of the given kind.
func BlockContent(kind ContentType, data any) Content {
	return Content{Type: kind, Data: data}
}

// IsBlock reports whether c is a structured block.
func (c Content) IsBlock() bool {
	return c.Type != ContentText && c.Type != ""
}

// MarshalJSON encodes text as {"type":"text","text":...} and blocks as
// {"type":kind, kind: data}.
func (c Content) MarshalJSON() ([]byte, error) {
	if !c.IsBlock() {
		return json.Marshal(struct {
			Type ContentType `json:"type"`
			Text string      `json:"text"`
		}{ContentText, c.Text})
	}
	return json.Marshal(map[string]any{
		"type":         c.Type,
		string(c.Type): c.Data,
	})
}

// UnmarshalJSON accepts the shapes produced by MarshalJSON. Block payloads
// are kept as json.RawMessage for the formatter to interpret.
func (c *Content) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	var kind ContentType
	if t, ok := raw["type"]; ok {
		if err := json.Unmarshal(t, &kind); err != nil {
			return fmt.Errorf("content type: %w", err)
		}
	}
	if kind == "" || kind == ContentText {
		var text string
		if t, ok := raw["text"]; ok {
			if err := json.Unmarshal(t, &text); err != nil {
				return fmt.Errorf("content text: %w", err)
			}
		}
		*c = Text(text)
		return nil
	}
	*c = Content{Type: kind}
	if data, ok := raw[string(kind)]; ok {
		c.Data = data
	}
	return nil
}

// Message is one turn of a conversation.
//
// Recipient routes a tool invocation ("functions.lookup_weather") and
// ContentType constrains how its content is interpreted
// ("<|constrain|>json"). Both are empty for ordinary turns.
type Message struct {
	Author      Author
	Channel     string
	Recipient   string
	ContentType string
	Content     []Content
}

// NewMessage returns a text message from role.
func NewMessage(role Role, text string) Message {
	return Message{Author: Author{Role: role}, Content: []Content{Text(text)}}
}

// NewToolMessage returns a tool result authored by the namespaced tool name.
func NewToolMessage(name, text string) Message {
	return Message{Author: Author{Role: RoleTool, Name: name}, Content: []Content{Text(text)}}
}

// WithChannel returns a copy of m on channel.
func (m Message) WithChannel(channel string) Message {
	m.Channel = channel
	return m
}

// WithRecipient returns a copy of m addressed to recipient.
func (m Message) WithRecipient(recipient string) Message {
	m.Recipient = recipient
	return m
}

// WithContentType returns a copy of m with the given content type.
func (m Message) WithContentType(contentType string) Message {
	m.ContentType = contentType
	return m
}

// WithName returns a copy of m with the author name set.
func (m Message) WithName(name string) Message {
	m.Author.Name = name
	return m
}

// HasRecipient reports whether m is addressed to a specific participant.
func (m Message) HasRecipient() bool {
	return m.Recipient != "" && m.Recipient != recipientAll
}

// IsToolCall reports whether m is an assistant tool invocation, which is
// terminated by <|call|> rather than <|end|>.
func (m Message) IsToolCall() bool {
	return m.Author.Role == RoleAssistant && m.HasRecipient()
}

// Text concatenates the plain-text content of m.
func (m Message) Text() string {
	if len(m.Content) == 1 && !m.Content[0].IsBlock() {
		return m.Content[0].Text
	}
	var sb strings.Builder
	for _, c := range m.Content {
		if !c.IsBlock() {
			sb.WriteString(c.Text)
		}
	}
	return sb.String()
}

type messageJSON struct {
	Role        Role            `json:"role"`
	Name        string          `json:"name,omitempty"`
	Recipient   string          `json:"recipient,omitempty"`
	Content     json.RawMessage `json:"content"`
	Channel     string          `json:"channel,omitempty"`
	ContentType string          `json:"content_type,omitempty"`
}

// MarshalJSON flattens the author and writes content as a plain string when
// the message holds a single text item.
func (m Message) MarshalJSON() ([]byte, error) {
	var content any = m.Content
	if len(m.Content) == 1 && !m.Content[0].IsBlock() {
		content = m.Content[0].Text
	} else if m.Content == nil {
		content = []Content{}
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(messageJSON{
		Role:        m.Author.Role,
		Name:        m.Author.Name,
		Recipient:   m.Recipient,
		Content:     raw,
		Channel:     m.Channel,
		ContentType: m.ContentType,
	})
}

// UnmarshalJSON accepts content as a string or a list of content items.
func (m *Message) UnmarshalJSON(b []byte) error {
	var raw messageJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*m = Message{
		Author:      Author{Role: raw.Role, Name: raw.Name},
		Recipient:   raw.Recipient,
		Channel:     raw.Channel,
		ContentType: raw.ContentType,
	}
	if len(raw.Content) == 0 || string(raw.Content) == "null" {
		return nil
	}
	var text string
	if err := json.Unmarshal(raw.Content, &text); err == nil {
		m.Content = []Content{Text(text)}
		return nil
	}
	if err := json.Unmarshal(raw.Content, &m.Content); err != nil {
		return fmt.Errorf("message content: %w", err)
	}
	return nil
}

// Conversation is an ordered sequence of messages. Order is both dialogue
// order and serialization order.
type Conversation struct {
	Messages []Message `json:"messages"`
}

// NewConversation returns a conversation holding a copy of msgs.
func NewConversation(msgs ...Message) Conversation {
	return Conversation{Messages: append([]Message(nil), msgs...)}
}

// Len returns the number of messages.
func (c Conversation) Len() int {
	return len(c.Messages)
}

// Append returns a new conversation with msgs added; c is left unchanged.
func (c Conversation) Append(msgs ...Message) Conversation {
	out := make([]Message, 0, len(c.Messages)+len(msgs))
	out = append(out, c.Messages...)
	out = append(out, msgs...)
	return Conversation{Messages: out}
}

// Last returns the final message and false when the conversation is empty.
func (c Conversation) Last() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}
