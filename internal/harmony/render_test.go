package harmony

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/harmony/internal/parallel"
)

func TestRenderMessage(t *testing.T) {
	enc := newTestEncoding(t)

	tests := []struct {
		name string
		msg  Message
		want []int32
	}{
		{
			name: "user",
			msg:  NewMessage(RoleUser, "hi"),
			want: seq(tStart, "user", tMessage, "hi", tEnd),
		},
		{
			name: "assistant final",
			msg:  NewMessage(RoleAssistant, "Hello").WithChannel(ChannelFinal),
			want: seq(tStart, "assistant", tChannel, "final", tMessage, "Hello", tEnd),
		},
		{
			name: "named author",
			msg:  NewMessage(RoleUser, "hi").WithName("alice"),
			want: seq(tStart, "user:alice", tMessage, "hi", tEnd),
		},
		{
			name: "tool call",
			msg:  toolCall(),
			want: seq(tStart, "assistant", tChannel, "commentary to=functions.lookup_weather ",
				tConstrain, "json", tMessage, `{"location": "San Francisco"}`, tCall),
		},
		{
			name: "recipient without channel",
			msg:  NewMessage(RoleAssistant, "x").WithRecipient("browser.search").WithContentType("json"),
			want: seq(tStart, "assistant to=browser.search json", tMessage, "x", tCall),
		},
		{
			name: "recipient all",
			msg:  NewMessage(RoleAssistant, "x").WithChannel(ChannelFinal).WithRecipient("all"),
			want: seq(tStart, "assistant", tChannel, "final", tMessage, "x", tEnd),
		},
		{
			name: "tool result",
			msg:  NewToolMessage("functions.lookup_weather", "20C").WithChannel(ChannelCommentary),
			want: seq(tStart, "functions.lookup_weather", tChannel, "commentary", tMessage, "20C", tEnd),
		},
		{
			name: "user addressed to a tool",
			msg:  NewMessage(RoleUser, "ping").WithRecipient("functions.echo"),
			want: seq(tStart, "user to=functions.echo", tMessage, "ping", tEnd),
		},
		{
			name: "empty content",
			msg:  NewMessage(RoleUser, ""),
			want: seq(tStart, "user", tMessage, tEnd),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := enc.RenderMessage(tt.msg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderConversation_Deterministic(t *testing.T) {
	enc := newTestEncoding(t)
	conv := weatherConversation()

	first, err := enc.RenderConversation(conv, DefaultRenderConfig())
	require.NoError(t, err)
	for range 5 {
		again, err := enc.RenderConversation(conv, DefaultRenderConfig())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestRenderConversation_Concatenates(t *testing.T) {
	enc := newTestEncoding(t)
	conv := weatherConversation()

	var want []int32
	for _, msg := range conv.Messages {
		toks, err := enc.RenderMessage(msg)
		require.NoError(t, err)
		want = append(want, toks...)
	}

	got, err := enc.RenderConversation(conv, nil)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRenderConversation_DropPreviousReasoning(t *testing.T) {
	enc := newTestEncoding(t)
	conv := NewConversation(
		NewMessage(RoleUser, "What is 2+2?"),
		NewMessage(RoleAssistant, "first thought").WithChannel(ChannelAnalysis),
		NewMessage(RoleAssistant, "second thought").WithChannel(ChannelAnalysis),
		NewMessage(RoleAssistant, "4").WithChannel(ChannelFinal),
	)

	render := func(cfg *RenderConfig) string {
		t.Helper()
		toks, err := enc.RenderConversation(conv, cfg)
		require.NoError(t, err)
		text, err := enc.Decode(toks)
		require.NoError(t, err)
		return text
	}

	t.Run("dropped", func(t *testing.T) {
		text := render(DefaultRenderConfig())
		assert.NotContains(t, text, "first thought")
		assert.NotContains(t, text, "second thought")
		assert.Equal(t,
			"<|start|>user<|message|>What is 2+2?<|end|>"+
				"<|start|>assistant<|channel|>final<|message|>4<|end|>",
			text)
	})

	t.Run("nil config keeps all", func(t *testing.T) {
		text := render(nil)
		assert.Contains(t, text, "first thought")
		assert.Contains(t, text, "second thought")
		assert.Contains(t, text, "<|channel|>final<|message|>4")
	})

	t.Run("disabled keeps all", func(t *testing.T) {
		cfg := DefaultRenderConfig()
		cfg.AutoDropPreviousReasoning = false
		text := render(cfg)
		assert.Contains(t, text, "first thought")
		assert.Contains(t, text, "second thought")
	})
}

func TestRenderConversation_DropScope(t *testing.T) {
	enc := newTestEncoding(t)
	conv := NewConversation(
		NewMessage(RoleUser, "q1"),
		NewMessage(RoleAssistant, "a1").WithChannel(ChannelAnalysis),
		NewMessage(RoleAssistant, "f1").WithChannel(ChannelFinal),
		NewMessage(RoleUser, "q2"),
		NewMessage(RoleAssistant, "a2").WithChannel(ChannelAnalysis),
		NewMessage(RoleAssistant, "f2").WithChannel(ChannelFinal),
		NewMessage(RoleAssistant, "a3").WithChannel(ChannelAnalysis),
	)

	tests := []struct {
		name  string
		scope DropScope
		want  []string
	}{
		{"last final", DropBeforeLastFinal, []string{"q1", "f1", "q2", "f2", "a3"}},
		{"first final", DropBeforeFirstFinal, []string{"q1", "f1", "q2", "a2", "f2", "a3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &RenderConfig{AutoDropPreviousReasoning: true, DropScope: tt.scope}
			toks, err := enc.RenderConversation(conv, cfg)
			require.NoError(t, err)

			msgs, err := enc.ParseMessagesFromCompletionTokens(toks, ParseConfig{})
			require.NoError(t, err)
			var got []string
			for _, m := range msgs {
				got = append(got, m.Text())
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderConversation_NoFinalKeepsReasoning(t *testing.T) {
	enc := newTestEncoding(t)
	conv := NewConversation(
		NewMessage(RoleUser, "q"),
		NewMessage(RoleAssistant, "thinking").WithChannel(ChannelAnalysis),
	)

	withDrop, err := enc.RenderConversation(conv, DefaultRenderConfig())
	require.NoError(t, err)
	literal, err := enc.RenderConversation(conv, nil)
	require.NoError(t, err)
	assert.Equal(t, literal, withDrop)
}

func TestRenderConversation_Validation(t *testing.T) {
	enc := newTestEncoding(t)

	tests := []struct {
		name  string
		msgs  []Message
		cfg   *RenderConfig
		index int
	}{
		{
			name:  "unknown role",
			msgs:  []Message{NewMessage("robot", "x")},
			index: 0,
		},
		{
			name:  "tool without name",
			msgs:  []Message{NewMessage(RoleUser, "x"), NewMessage(RoleTool, "x")},
			index: 1,
		},
		{
			name:  "tool named like a role",
			msgs:  []Message{NewToolMessage("user", "x")},
			index: 0,
		},
		{
			name:  "tool name with role prefix",
			msgs:  []Message{NewToolMessage("tool:search", "x")},
			index: 0,
		},
		{
			name:  "whitespace in channel",
			msgs:  []Message{NewMessage(RoleAssistant, "x").WithChannel("fi nal")},
			index: 0,
		},
		{
			name:  "whitespace in recipient",
			msgs:  []Message{NewMessage(RoleAssistant, "x").WithRecipient("a b")},
			index: 0,
		},
		{
			name:  "content type looks like recipient",
			msgs:  []Message{NewMessage(RoleAssistant, "x").WithContentType("to=json")},
			index: 0,
		},
		{
			name:  "bare constrain",
			msgs:  []Message{NewMessage(RoleAssistant, "x").WithContentType("<|constrain|>")},
			index: 0,
		},
		{
			name:  "nil block",
			msgs:  []Message{{Author: Author{Role: RoleSystem}, Content: []Content{BlockContent("system_content", nil)}}},
			index: 0,
		},
		{
			name:  "missing channel",
			msgs:  []Message{NewMessage(RoleUser, "x"), NewMessage(RoleAssistant, "y")},
			cfg:   DefaultRenderConfig(),
			index: 1,
		},
		{
			name:  "invalid channel",
			msgs:  []Message{NewMessage(RoleAssistant, "y").WithChannel("scratchpad")},
			cfg:   DefaultRenderConfig(),
			index: 0,
		},
		{
			name: "required channel absent",
			msgs: []Message{NewMessage(RoleAssistant, "y").WithChannel(ChannelAnalysis)},
			cfg: &RenderConfig{Channels: &ChannelPolicy{
				MustAppear: []string{ChannelFinal},
			}},
			index: -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := enc.RenderConversation(NewConversation(tt.msgs...), tt.cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.index, verr.Index)
		})
	}
}

func TestRenderConversation_PolicyNeedsConfig(t *testing.T) {
	enc := newTestEncoding(t)
	conv := NewConversation(NewMessage(RoleAssistant, "no channel"))

	_, err := enc.RenderConversation(conv, nil)
	assert.NoError(t, err)

	_, err = enc.RenderConversation(conv, DefaultRenderConfig())
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRenderConversationForCompletion(t *testing.T) {
	enc := newTestEncoding(t)
	conv := NewConversation(
		NewMessage(RoleSystem, "sys"),
		NewMessage(RoleUser, "hi"),
	)

	t.Run("appends header", func(t *testing.T) {
		got, err := enc.RenderConversationForCompletion(conv, RoleAssistant, DefaultRenderConfig())
		require.NoError(t, err)

		base, err := enc.RenderConversation(conv, DefaultRenderConfig())
		require.NoError(t, err)
		assert.Equal(t, append(base, seq(tStart, "assistant")...), got)
	})

	t.Run("empty conversation", func(t *testing.T) {
		got, err := enc.RenderConversationForCompletion(Conversation{}, RoleAssistant, nil)
		require.NoError(t, err)
		assert.Equal(t, seq(tStart, "assistant"), got)
	})

	t.Run("unknown role", func(t *testing.T) {
		_, err := enc.RenderConversationForCompletion(conv, "robot", nil)
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestRenderConversationForCompletion_Turns(t *testing.T) {
	enc := newTestEncoding(t)
	afterCall := NewConversation(NewMessage(RoleUser, "weather?"), toolCall())
	afterTool := afterCall.Append(NewToolMessage("functions.lookup_weather", "20C").WithChannel(ChannelCommentary))

	tests := []struct {
		name    string
		conv    Conversation
		next    Role
		cfg     *RenderConfig
		wantErr bool
	}{
		{"tool after call", afterCall, RoleTool, DefaultRenderConfig(), false},
		{"user after call", afterCall, RoleUser, DefaultRenderConfig(), true},
		{"assistant after tool", afterTool, RoleAssistant, DefaultRenderConfig(), false},
		{"user after tool", afterTool, RoleUser, DefaultRenderConfig(), true},
		{"no policy", afterCall, RoleUser, &RenderConfig{}, false},
		{
			name: "custom table",
			conv: NewConversation(NewMessage(RoleUser, "x")),
			next: RoleUser,
			cfg: &RenderConfig{Turns: RoleTransitions(map[Role][]Role{
				RoleUser: {RoleAssistant},
			})},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := enc.RenderConversationForCompletion(tt.conv, tt.next, tt.cfg)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestRenderConversationForTraining(t *testing.T) {
	enc := newTestEncoding(t)

	t.Run("final answer returns", func(t *testing.T) {
		conv := NewConversation(
			NewMessage(RoleUser, "hi"),
			NewMessage(RoleAssistant, "hello").WithChannel(ChannelFinal),
		)
		got, err := enc.RenderConversationForTraining(conv, nil)
		require.NoError(t, err)
		assert.Equal(t, tReturn, got[len(got)-1])

		_, terms, err := enc.ParseCompletion(got, ParseConfig{})
		require.NoError(t, err)
		assert.Equal(t, []Terminator{TerminatorEnd, TerminatorReturn}, terms)
	})

	t.Run("other endings unchanged", func(t *testing.T) {
		for _, conv := range []Conversation{
			NewConversation(NewMessage(RoleUser, "hi")),
			NewConversation(NewMessage(RoleUser, "hi"), toolCall()),
			NewConversation(NewMessage(RoleAssistant, "x").WithChannel(ChannelAnalysis)),
		} {
			got, err := enc.RenderConversationForTraining(conv, nil)
			require.NoError(t, err)
			want, err := enc.RenderConversation(conv, nil)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	})

	t.Run("empty", func(t *testing.T) {
		got, err := enc.RenderConversationForTraining(Conversation{}, nil)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestRenderConversation_Blocks(t *testing.T) {
	conv := NewConversation(
		Message{Author: Author{Role: RoleSystem}, Content: []Content{BlockContent("sys", "cfg")}},
		Message{Author: Author{Role: RoleDeveloper}, Content: []Content{BlockContent("dev", "tools")}},
		NewMessage(RoleUser, "hi"),
	)

	t.Run("formatted", func(t *testing.T) {
		enc := newTestEncoding(t, WithFormatter(bracketFormatter{}))
		toks, err := enc.RenderConversation(conv, nil)
		require.NoError(t, err)
		text, err := enc.Decode(toks)
		require.NoError(t, err)
		assert.Equal(t,
			"<|start|>system<|message|>[sys:cfg/2]<|end|>"+
				"<|start|>developer<|message|>[dev:tools/2]<|end|>"+
				"<|start|>user<|message|>hi<|end|>",
			text)
	})

	t.Run("no formatter", func(t *testing.T) {
		enc := newTestEncoding(t)
		_, err := enc.RenderConversation(conv, nil)
		assert.ErrorIs(t, err, ErrNoFormatter)
	})

	t.Run("formatter error", func(t *testing.T) {
		enc := newTestEncoding(t, WithFormatter(bracketFormatter{}))
		bad := conv.Append(Message{Author: Author{Role: RoleDeveloper}, Content: []Content{BlockContent("dev", "fail")}})
		_, err := enc.RenderConversation(bad, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "message 3")
	})
}

func TestRenderConversation_Parallel(t *testing.T) {
	sequential := newTestEncoding(t, WithParallel(parallel.Config{Enabled: false}, 0))
	concurrent := newTestEncoding(t,
		WithFormatter(bracketFormatter{}),
		WithParallel(parallel.Config{Enabled: true, NumWorkers: 4, MinChunkSize: 1}, 0),
	)

	var msgs []Message
	for i := range 64 {
		msgs = append(msgs,
			NewMessage(RoleUser, fmt.Sprintf("question %d", i)),
			NewMessage(RoleAssistant, fmt.Sprintf("thinking %d", i)).WithChannel(ChannelAnalysis),
			NewMessage(RoleAssistant, fmt.Sprintf("answer %d", i)).WithChannel(ChannelFinal),
		)
	}
	conv := NewConversation(msgs...)

	for _, cfg := range []*RenderConfig{nil, DefaultRenderConfig()} {
		want, err := sequential.RenderConversation(conv, cfg)
		require.NoError(t, err)
		for range 10 {
			got, err := concurrent.RenderConversation(conv, cfg)
			require.NoError(t, err)
			require.Equal(t, want, got)
		}
	}

	t.Run("first error wins", func(t *testing.T) {
		bad := conv.Append(
			Message{Author: Author{Role: RoleDeveloper}, Content: []Content{BlockContent("dev", "fail")}},
			NewMessage(RoleUser, "between"),
			Message{Author: Author{Role: RoleDeveloper}, Content: []Content{BlockContent("dev", "fail")}},
		)
		_, err := concurrent.RenderConversation(bad, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), fmt.Sprintf("message %d:", len(msgs)))
	})
}

func TestRenderConversation_EncodeFailure(t *testing.T) {
	enc, err := NewEncoding(failingVocab{})
	require.NoError(t, err)

	_, err = enc.RenderMessage(NewMessage(RoleUser, "x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errEncode))
}

var errEncode = errors.New("encode failed")

// failingVocab resolves the grammar but cannot encode text.
type failingVocab struct{}

func (failingVocab) Encode(string) ([]int32, error) { return nil, errEncode }

func (failingVocab) Decode([]int32) (string, error) { return "", nil }

func (failingVocab) SpecialTokenName(int32) (string, bool) { return "", false }

func (failingVocab) SpecialTokenID(name string) (int32, bool) {
	for m := MarkerStart; m < markerCount; m++ {
		if m.String() == name {
			return int32(1000 + m), true
		}
	}
	return 0, false
}
