package harmony

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/born-ml/harmony/internal/tokenizer"
)

const (
	tStart     = tokenizer.TokStart
	tChannel   = tokenizer.TokChannel
	tConstrain = tokenizer.TokConstrain
	tMessage   = tokenizer.TokMessage
	tEnd       = tokenizer.TokEnd
	tCall      = tokenizer.TokCall
	tReturn    = tokenizer.TokReturn
)

func newTestEncoding(t *testing.T, opts ...Option) *Encoding {
	t.Helper()
	enc, err := NewEncoding(tokenizer.NewByteLevel(), opts...)
	require.NoError(t, err)
	return enc
}

// seq builds a byte-level token stream from strings and special token ids.
func seq(parts ...any) []int32 {
	var out []int32
	for _, p := range parts {
		switch v := p.(type) {
		case string:
			for i := 0; i < len(v); i++ {
				out = append(out, int32(v[i]))
			}
		case int32:
			out = append(out, v)
		default:
			panic(fmt.Sprintf("seq: unsupported part %T", p))
		}
	}
	return out
}

// bracketFormatter renders blocks as "[kind:data/n]" where n is the number
// of blocks in the conversation.
type bracketFormatter struct{}

func (bracketFormatter) FormatBlock(block Block, conversation []Block) (string, error) {
	if s, ok := block.Data.(string); ok && s == "fail" {
		return "", fmt.Errorf("cannot format %q", s)
	}
	return fmt.Sprintf("[%s:%v/%d]", block.Kind, block.Data, len(conversation)), nil
}

func (bracketFormatter) ParseBlock(kind ContentType, text string) (Block, error) {
	inner, ok := strings.CutPrefix(text, "["+string(kind)+":")
	if !ok {
		return Block{}, fmt.Errorf("not a %s block: %q", kind, text)
	}
	data, _, _ := strings.Cut(inner, "/")
	return Block{Kind: kind, Data: data}, nil
}

func toolCall() Message {
	return NewMessage(RoleAssistant, `{"location": "San Francisco"}`).
		WithChannel(ChannelCommentary).
		WithRecipient("functions.lookup_weather").
		WithContentType("<|constrain|>json")
}

func weatherConversation() Conversation {
	return NewConversation(
		NewMessage(RoleSystem, "You are a helpful assistant."),
		NewMessage(RoleUser, "What is the weather in San Francisco?"),
		NewMessage(RoleAssistant, "Need to use the weather tool.").WithChannel(ChannelAnalysis),
		toolCall(),
		NewToolMessage("functions.lookup_weather", `{"temperature": 20, "sky": "sunny"}`).WithChannel(ChannelCommentary),
		NewMessage(RoleAssistant, "It is 20 degrees and sunny.").WithChannel(ChannelFinal),
	)
}
