package harmony

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

const (
	recipientPrefix = "to="
	constrainPrefix = "<|constrain|>"
)

// headerFields are the routing fields collected between <|start|> and
// <|message|>.
type headerFields struct {
	author      Author
	hasAuthor   bool
	channel     string
	recipient   string
	contentType string
}

// authorText is the author marker text: the namespaced name for tools,
// "role" or "role:name" otherwise.
func authorText(a Author) string {
	if a.Role == RoleTool {
		return a.Name
	}
	if a.Name == "" {
		return string(a.Role)
	}
	return string(a.Role) + ":" + a.Name
}

// appendHeader renders <|start|> through the content-type marker. The
// recipient and a plain content type trail the channel name, or the author
// when there is no channel.
func (e *Encoding) appendHeader(out []int32, msg Message) ([]int32, error) {
	out = append(out, e.grammar.id(MarkerStart))

	var trail strings.Builder
	if msg.HasRecipient() {
		trail.WriteString(" " + recipientPrefix)
		trail.WriteString(msg.Recipient)
	}
	constrained := strings.HasPrefix(msg.ContentType, constrainPrefix)
	if msg.ContentType != "" && !constrained {
		trail.WriteByte(' ')
		trail.WriteString(msg.ContentType)
	}

	var err error
	if msg.Channel == "" {
		if out, err = e.appendText(out, authorText(msg.Author)+trail.String()); err != nil {
			return nil, err
		}
	} else {
		if out, err = e.appendText(out, authorText(msg.Author)); err != nil {
			return nil, err
		}
		out = append(out, e.grammar.id(MarkerChannel))
		if out, err = e.appendText(out, msg.Channel+trail.String()); err != nil {
			return nil, err
		}
	}

	if constrained {
		if out, err = e.appendText(out, " "); err != nil {
			return nil, err
		}
		out = append(out, e.grammar.id(MarkerConstrain))
		if out, err = e.appendText(out, strings.TrimPrefix(msg.ContentType, constrainPrefix)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (e *Encoding) appendText(out []int32, text string) ([]int32, error) {
	if text == "" {
		return out, nil
	}
	toks, err := e.vocab.Encode(text)
	if err != nil {
		return nil, fmt.Errorf("harmony: encode text: %w", err)
	}
	return append(out, toks...), nil
}

// headerSegment is header text following a structural marker; the first
// segment carries MarkerNone.
type headerSegment struct {
	marker Marker
	text   string
}

func (e *Encoding) splitHeader(toks []int32) ([]headerSegment, error) {
	segs := []headerSegment{{marker: MarkerNone}}
	start := 0
	flush := func(end int) error {
		if end <= start {
			return nil
		}
		text, err := e.vocab.Decode(toks[start:end])
		if err != nil {
			return fmt.Errorf("decode header: %w", err)
		}
		segs[len(segs)-1].text = text
		return nil
	}
	for i, tok := range toks {
		m := e.grammar.marker(tok)
		if m != MarkerChannel && m != MarkerConstrain {
			continue
		}
		if err := flush(i); err != nil {
			return nil, err
		}
		segs = append(segs, headerSegment{marker: m})
		start = i + 1
	}
	if err := flush(len(toks)); err != nil {
		return nil, err
	}
	return segs, nil
}

// parseHeader extracts header fields. Channel, recipient and content type
// may appear in any order, each at most once. The first violation is
// returned, but parsing continues so that lenient callers still receive
// every field known so far. In lenient mode a trailing word that may still
// be growing is ignored.
func parseHeader(segs []headerSegment, hint Role, lenient bool) (headerFields, error) {
	var (
		h        headerFields
		firstErr error
	)
	fail := func(format string, args ...any) {
		if firstErr == nil {
			firstErr = fmt.Errorf(format, args...)
		}
	}

	for i, seg := range segs {
		words := strings.Fields(seg.text)
		if lenient && i == len(segs)-1 && len(words) > 0 && !endsWithSpace(seg.text) {
			words = words[:len(words)-1]
		}

		switch seg.marker {
		case MarkerNone:
			if len(words) > 0 && !strings.HasPrefix(words[0], recipientPrefix) {
				a, err := parseAuthor(words[0])
				if err != nil {
					fail("%v", err)
				} else {
					h.author, h.hasAuthor = a, true
				}
				words = words[1:]
			}
		case MarkerChannel:
			if len(words) == 0 {
				if !lenient {
					fail("empty channel name")
				}
				continue
			}
			if h.channel != "" {
				fail("duplicate channel %q", words[0])
			} else {
				h.channel = words[0]
			}
			words = words[1:]
		case MarkerConstrain:
			if len(words) == 0 {
				if !lenient {
					fail("empty constrained content type")
				}
				continue
			}
			if h.contentType != "" {
				fail("duplicate content type %q", constrainPrefix+words[0])
			} else {
				h.contentType = constrainPrefix + words[0]
			}
			words = words[1:]
		}

		for _, w := range words {
			if r, ok := strings.CutPrefix(w, recipientPrefix); ok {
				switch {
				case r == "":
					fail("empty recipient")
				case h.recipient != "":
					fail("duplicate recipient %q", r)
				default:
					h.recipient = r
				}
				continue
			}
			if h.contentType != "" {
				fail("duplicate content type %q", w)
				continue
			}
			h.contentType = w
		}
	}

	if !h.hasAuthor {
		switch {
		case hint == "":
			fail("header has no author")
		case hint == RoleTool:
			fail("tool header has no name")
		default:
			h.author = Author{Role: hint}
			h.hasAuthor = true
		}
	}
	return h, firstErr
}

// parseAuthor maps an author marker back to an Author. Unknown words are
// namespaced tool names.
func parseAuthor(word string) (Author, error) {
	role, name, _ := strings.Cut(word, ":")
	switch r := Role(role); r {
	case RoleSystem, RoleDeveloper, RoleUser, RoleAssistant:
		return Author{Role: r, Name: name}, nil
	case RoleTool:
		if name == "" {
			return Author{}, errors.New("tool author without name")
		}
		return Author{Role: RoleTool, Name: name}, nil
	}
	return Author{Role: RoleTool, Name: word}, nil
}

func endsWithSpace(s string) bool {
	if s == "" {
		return false
	}
	return unicode.IsSpace(rune(s[len(s)-1]))
}

func hasSpace(s string) bool {
	return strings.IndexFunc(s, unicode.IsSpace) >= 0
}
