package harmony

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_JSON(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		json string
	}{
		{
			name: "text",
			msg:  NewMessage(RoleUser, "hi"),
			json: `{"role":"user","content":"hi"}`,
		},
		{
			name: "tool call",
			msg:  toolCall(),
			json: `{"role":"assistant","recipient":"functions.lookup_weather","content":"{\"location\": \"San Francisco\"}","channel":"commentary","content_type":"<|constrain|>json"}`,
		},
		{
			name: "tool result",
			msg:  NewToolMessage("functions.f", "ok"),
			json: `{"role":"tool","name":"functions.f","content":"ok"}`,
		},
		{
			name: "multiple items",
			msg:  Message{Author: Author{Role: RoleUser}, Content: []Content{Text("a"), Text("b")}},
			json: `{"role":"user","content":[{"type":"text","text":"a"},{"type":"text","text":"b"}]}`,
		},
		{
			name: "no content",
			msg:  Message{Author: Author{Role: RoleUser}},
			json: `{"role":"user","content":[]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.msg)
			require.NoError(t, err)
			assert.JSONEq(t, tt.json, string(b))
		})
	}
}

func TestMessage_UnmarshalJSON(t *testing.T) {
	t.Run("string content", func(t *testing.T) {
		var m Message
		require.NoError(t, json.Unmarshal([]byte(`{"role":"assistant","channel":"final","content":"hello"}`), &m))
		assert.Equal(t, NewMessage(RoleAssistant, "hello").WithChannel(ChannelFinal), m)
	})

	t.Run("block content", func(t *testing.T) {
		var m Message
		require.NoError(t, json.Unmarshal([]byte(
			`{"role":"system","content":[{"type":"system_content","system_content":{"model_identity":"x"}}]}`), &m))
		require.Len(t, m.Content, 1)
		assert.True(t, m.Content[0].IsBlock())
		assert.Equal(t, ContentType("system_content"), m.Content[0].Type)
		assert.JSONEq(t, `{"model_identity":"x"}`, string(m.Content[0].Data.(json.RawMessage)))
	})

	t.Run("null content", func(t *testing.T) {
		var m Message
		require.NoError(t, json.Unmarshal([]byte(`{"role":"user","content":null}`), &m))
		assert.Empty(t, m.Content)
	})

	t.Run("bad content", func(t *testing.T) {
		var m Message
		assert.Error(t, json.Unmarshal([]byte(`{"role":"user","content":42}`), &m))
	})
}

func TestConversation(t *testing.T) {
	msgs := []Message{NewMessage(RoleUser, "a")}
	conv := NewConversation(msgs...)
	msgs[0] = NewMessage(RoleUser, "changed")
	assert.Equal(t, "a", conv.Messages[0].Text())

	longer := conv.Append(NewMessage(RoleAssistant, "b"))
	assert.Equal(t, 1, conv.Len())
	assert.Equal(t, 2, longer.Len())

	last, ok := longer.Last()
	require.True(t, ok)
	assert.Equal(t, "b", last.Text())

	_, ok = Conversation{}.Last()
	assert.False(t, ok)

	b, err := json.Marshal(longer)
	require.NoError(t, err)
	var back Conversation
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, longer, back)
}

func TestMessage_Helpers(t *testing.T) {
	assert.True(t, toolCall().IsToolCall())
	assert.False(t, NewMessage(RoleAssistant, "x").WithRecipient("all").IsToolCall())
	assert.False(t, NewToolMessage("functions.f", "x").WithRecipient("assistant").IsToolCall())

	m := Message{Content: []Content{Text("a"), BlockContent("k", 1), Text("b")}}
	assert.Equal(t, "ab", m.Text())
}

func TestRole_Valid(t *testing.T) {
	for _, r := range []Role{RoleSystem, RoleDeveloper, RoleUser, RoleAssistant, RoleTool} {
		assert.True(t, r.Valid(), r)
	}
	assert.False(t, Role("robot").Valid())
	assert.False(t, Role("").Valid())
}
