package harmony

import "fmt"

// Marker is a structural element of the Harmony grammar. Each marker is
// backed by a named special token of the vocabulary.
type Marker int

// Grammar markers.
const (
	MarkerNone Marker = iota
	MarkerStart
	MarkerChannel
	MarkerConstrain
	MarkerMessage
	MarkerEnd
	MarkerCall
	MarkerReturn
	markerCount
)

var markerNames = [markerCount]string{
	MarkerNone:      "",
	MarkerStart:     "<|start|>",
	MarkerChannel:   "<|channel|>",
	MarkerConstrain: "<|constrain|>",
	MarkerMessage:   "<|message|>",
	MarkerEnd:       "<|end|>",
	MarkerCall:      "<|call|>",
	MarkerReturn:    "<|return|>",
}

// String returns the special-token spelling of m.
func (m Marker) String() string {
	if m < 0 || m >= markerCount {
		return fmt.Sprintf("Marker(%d)", int(m))
	}
	return markerNames[m]
}

// Terminator classifies how a parsed message ended.
type Terminator int

const (
	// TerminatorNone: the stream ended before any terminator.
	TerminatorNone Terminator = iota
	// TerminatorEnd: <|end|>, more messages may follow.
	TerminatorEnd
	// TerminatorCall: <|call|>, a tool invocation awaiting a tool response.
	TerminatorCall
	// TerminatorReturn: <|return|>, the final answer of a completion.
	TerminatorReturn
)

// String returns a short name for t.
func (t Terminator) String() string {
	switch t {
	case TerminatorEnd:
		return "end"
	case TerminatorCall:
		return "call"
	case TerminatorReturn:
		return "return"
	default:
		return "eos"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Terminator) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func terminatorOf(m Marker) (Terminator, bool) {
	switch m {
	case MarkerEnd:
		return TerminatorEnd, true
	case MarkerCall:
		return TerminatorCall, true
	case MarkerReturn:
		return TerminatorReturn, true
	}
	return TerminatorNone, false
}

// grammar holds marker token ids resolved once from a vocabulary.
type grammar struct {
	ids  [markerCount]int32
	byID map[int32]Marker
}

func newGrammar(vocab Vocabulary) (*grammar, error) {
	g := &grammar{byID: make(map[int32]Marker, markerCount)}
	for m := MarkerStart; m < markerCount; m++ {
		id, ok := vocab.SpecialTokenID(m.String())
		if !ok {
			return nil, fmt.Errorf("vocabulary has no special token %s", m)
		}
		if prev, dup := g.byID[id]; dup {
			return nil, fmt.Errorf("special tokens %s and %s share id %d", prev, m, id)
		}
		g.ids[m] = id
		g.byID[id] = m
	}
	return g, nil
}

func (g *grammar) id(m Marker) int32 {
	return g.ids[m]
}

// marker classifies tok; ordinary text tokens and unrelated specials map to
// MarkerNone.
func (g *grammar) marker(tok int32) Marker {
	return g.byID[tok]
}
