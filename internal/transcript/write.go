package transcript

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/harmony/internal/harmony"
)

// Output formats.
const (
	OutputJSON   = "json"
	OutputYAML   = "yaml"
	OutputCBOR   = "cbor"
	OutputPretty = "pretty"
)

// Result is the outcome of parsing or decoding tokens.
type Result struct {
	Messages    []harmony.Message    `json:"messages"`
	Terminators []harmony.Terminator `json:"terminators,omitempty"`
	Tokens      []int32              `json:"tokens,omitempty"`
	Reason      string               `json:"reason,omitempty"`
}

// SpecialNamer names special tokens for pretty output.
type SpecialNamer interface {
	SpecialTokenName(token int32) (string, bool)
}

// Writer writes results in one output format.
type Writer struct {
	out    io.Writer
	format string
	namer  SpecialNamer
}

// NewWriter returns a Writer for format. namer may be nil.
func NewWriter(out io.Writer, format string, namer SpecialNamer) (*Writer, error) {
	switch format {
	case OutputJSON, OutputYAML, OutputCBOR, OutputPretty:
	default:
		return nil, fmt.Errorf("transcript: unknown output format %q", format)
	}
	return &Writer{out: out, format: format, namer: namer}, nil
}

// WriteTokens writes a token array.
func (w *Writer) WriteTokens(tokens []int32) error {
	if tokens == nil {
		tokens = []int32{}
	}
	switch w.format {
	case OutputPretty:
		return w.prettyTokens(tokens)
	case OutputCBOR:
		return w.cbor(tokens)
	case OutputYAML:
		return w.yaml(tokens)
	default:
		return w.json(tokens)
	}
}

// WriteResult writes parsed messages with their terminators.
func (w *Writer) WriteResult(res Result) error {
	if res.Messages == nil {
		res.Messages = []harmony.Message{}
	}
	switch w.format {
	case OutputPretty:
		return w.prettyResult(res)
	case OutputCBOR:
		doc, err := toDocument(res)
		if err != nil {
			return err
		}
		return w.cbor(doc)
	case OutputYAML:
		generic, err := toGeneric(res)
		if err != nil {
			return err
		}
		return w.yaml(generic)
	default:
		return w.json(res)
	}
}

func (w *Writer) json(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("transcript: encode JSON: %w", err)
	}
	return nil
}

func (w *Writer) yaml(v any) error {
	enc := yaml.NewEncoder(w.out)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("transcript: encode YAML: %w", err)
	}
	return enc.Close()
}

func (w *Writer) cbor(v any) error {
	b, err := encMode.Marshal(v)
	if err != nil {
		return fmt.Errorf("transcript: encode CBOR: %w", err)
	}
	_, err = w.out.Write(b)
	return err
}

// toGeneric converts v to the maps and slices of its JSON form so YAML
// output matches the JSON shape.
func toGeneric(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("transcript: %w", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("transcript: %w", err)
	}
	return out, nil
}

var (
	roleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	channelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	metaStyle    = lipgloss.NewStyle().Faint(true)
	specialStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
)

func (w *Writer) prettyResult(res Result) error {
	var sb strings.Builder
	for i, msg := range res.Messages {
		if i > 0 {
			sb.WriteString("\n")
		}
		header := roleStyle.Render(string(msg.Author.Role))
		if msg.Author.Name != "" {
			header += metaStyle.Render(":" + msg.Author.Name)
		}
		if msg.Channel != "" {
			header += " " + channelStyle.Render("["+msg.Channel+"]")
		}
		if msg.Recipient != "" {
			header += " " + metaStyle.Render("to="+msg.Recipient)
		}
		if msg.ContentType != "" {
			header += " " + metaStyle.Render(msg.ContentType)
		}
		if i < len(res.Terminators) {
			header += " " + metaStyle.Render("("+res.Terminators[i].String()+")")
		}
		sb.WriteString(header)
		sb.WriteString("\n")

		for _, c := range msg.Content {
			body := c.Text
			if c.IsBlock() {
				b, err := json.MarshalIndent(c.Data, "", "  ")
				if err != nil {
					return fmt.Errorf("transcript: %s block: %w", c.Type, err)
				}
				body = metaStyle.Render(string(c.Type)+":") + "\n" + string(b)
			}
			for line := range strings.SplitSeq(body, "\n") {
				sb.WriteString("  ")
				sb.WriteString(line)
				sb.WriteString("\n")
			}
		}
	}
	if res.Reason != "" {
		sb.WriteString(metaStyle.Render("stop: " + res.Reason))
		sb.WriteString("\n")
	}
	_, err := io.WriteString(w.out, sb.String())
	return err
}

func (w *Writer) prettyTokens(tokens []int32) error {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		if w.namer != nil {
			if name, ok := w.namer.SpecialTokenName(t); ok {
				parts[i] = specialStyle.Render(name)
				continue
			}
		}
		parts[i] = strconv.Itoa(int(t))
	}
	_, err := io.WriteString(w.out, strings.Join(parts, " ")+"\n")
	return err
}

// encMode writes Core Deterministic CBOR: identical results always
// produce identical bytes.
var encMode = func() cbor.EncMode {
	opts := cbor.CoreDetEncOptions()
	opts.TextMarshaler = cbor.TextMarshalerTextString
	mode, err := opts.EncMode()
	if err != nil {
		panic("transcript: CBOR encoder initialization failed: " + err.Error())
	}
	return mode
}()

type resultDoc struct {
	Messages    []messageDoc         `cbor:"messages"`
	Terminators []harmony.Terminator `cbor:"terminators,omitempty"`
	Tokens      []int32              `cbor:"tokens,omitempty"`
	Reason      string               `cbor:"reason,omitempty"`
}

type messageDoc struct {
	Role        string       `cbor:"role"`
	Name        string       `cbor:"name,omitempty"`
	Channel     string       `cbor:"channel,omitempty"`
	Recipient   string       `cbor:"recipient,omitempty"`
	ContentType string       `cbor:"content_type,omitempty"`
	Content     []contentDoc `cbor:"content"`
}

type contentDoc struct {
	Type string `cbor:"type"`
	Text string `cbor:"text,omitempty"`
	Data any    `cbor:"data,omitempty"`
}

func toDocument(res Result) (resultDoc, error) {
	doc := resultDoc{
		Messages:    make([]messageDoc, len(res.Messages)),
		Terminators: res.Terminators,
		Tokens:      res.Tokens,
		Reason:      res.Reason,
	}
	for i, m := range res.Messages {
		md := messageDoc{
			Role:        string(m.Author.Role),
			Name:        m.Author.Name,
			Channel:     m.Channel,
			Recipient:   m.Recipient,
			ContentType: m.ContentType,
			Content:     make([]contentDoc, len(m.Content)),
		}
		for j, c := range m.Content {
			cd := contentDoc{Type: string(harmony.ContentText), Text: c.Text}
			if c.IsBlock() {
				data, err := toGeneric(c.Data)
				if err != nil {
					return resultDoc{}, err
				}
				cd = contentDoc{Type: string(c.Type), Data: data}
			}
			md.Content[j] = cd
		}
		doc.Messages[i] = md
	}
	return doc, nil
}
