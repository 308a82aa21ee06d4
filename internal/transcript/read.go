// Package transcript reads conversations and token arrays for the harmony
// CLI and writes results as JSON, YAML, CBOR or styled text.
package transcript

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/harmony/internal/harmony"
)

// Input formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// FormatFromPath picks the input format from a file extension: YAML for
// .yaml and .yml, JSON (comments allowed) otherwise.
func FormatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// ReadConversation reads a conversation: either {"messages": [...]} or a
// bare list of messages. JSON input may carry comments and trailing commas.
func ReadConversation(r io.Reader, format string) (harmony.Conversation, error) {
	raw, err := readJSON(r, format)
	if err != nil {
		return harmony.Conversation{}, err
	}

	var conv harmony.Conversation
	if bytes.HasPrefix(raw, []byte("[")) {
		err = json.Unmarshal(raw, &conv.Messages)
	} else {
		err = json.Unmarshal(raw, &conv)
	}
	if err != nil {
		return harmony.Conversation{}, fmt.Errorf("transcript: decode conversation: %w", err)
	}
	return conv, nil
}

// ReadMessage reads a single message document.
func ReadMessage(r io.Reader, format string) (harmony.Message, error) {
	raw, err := readJSON(r, format)
	if err != nil {
		return harmony.Message{}, err
	}
	var msg harmony.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return harmony.Message{}, fmt.Errorf("transcript: decode message: %w", err)
	}
	return msg, nil
}

// readJSON normalizes the input to compact JSON.
func readJSON(r io.Reader, format string) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("transcript: read: %w", err)
	}

	if format == FormatYAML {
		var v any
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("transcript: decode YAML: %w", err)
		}
		out, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("transcript: convert YAML: %w", err)
		}
		return out, nil
	}

	out := bytes.TrimSpace(jsonc.ToJSON(data))
	if len(out) == 0 {
		return nil, fmt.Errorf("transcript: empty input")
	}
	return out, nil
}

// ReadTokens reads token ids: a JSON array, a {"tokens": [...]} document,
// or integers separated by whitespace or commas.
func ReadTokens(r io.Reader) ([]int32, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("transcript: read: %w", err)
	}
	text := bytes.TrimSpace(jsonc.ToJSON(data))

	switch {
	case bytes.HasPrefix(text, []byte("[")):
		var toks []int32
		if err := json.Unmarshal(text, &toks); err != nil {
			return nil, fmt.Errorf("transcript: decode tokens: %w", err)
		}
		return toks, nil
	case bytes.HasPrefix(text, []byte("{")):
		var doc struct {
			Tokens []int32 `json:"tokens"`
		}
		if err := json.Unmarshal(text, &doc); err != nil {
			return nil, fmt.Errorf("transcript: decode tokens: %w", err)
		}
		return doc.Tokens, nil
	}

	fields := strings.FieldsFunc(string(text), func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t' || r == '\r'
	})
	toks := make([]int32, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.ParseInt(f, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("transcript: token %d: %w", len(toks), err)
		}
		toks = append(toks, int32(n))
	}
	return toks, nil
}
