package preamble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/harmony/internal/harmony"
)

func TestParseSystem(t *testing.T) {
	text := FormatSystem(SystemContent{
		ReasoningEffort:       ReasoningHigh,
		ConversationStartDate: "2025-06-28",
		Tools:                 map[string]ToolNamespaceConfig{"python": {Name: "python", Description: "Run code."}},
	}, true)

	got := ParseSystem(text)
	assert.Equal(t, SystemContent{
		ModelIdentity:         DefaultModelIdentity,
		ReasoningEffort:       ReasoningHigh,
		ConversationStartDate: "2025-06-28",
		KnowledgeCutoff:       DefaultKnowledgeCutoff,
		ChannelConfig:         DefaultChannelConfig(),
		ToolsSection:          "# Tools\n\n## python\n\nRun code.",
	}, got)
}

func TestParseDeveloper(t *testing.T) {
	tests := []struct {
		name string
		text string
		want DeveloperContent
	}{
		{"empty", "", DeveloperContent{}},
		{"instructions", "# Instructions\n\nBe brief.", DeveloperContent{Instructions: "Be brief."}},
		{"plain", "Be brief.", DeveloperContent{Instructions: "Be brief."}},
		{"tools only", "# Tools\n\n## functions", DeveloperContent{ToolsSection: "# Tools\n\n## functions"}},
		{
			"both",
			"# Instructions\n\nBe brief.\n\n# Tools\n\n## functions",
			DeveloperContent{Instructions: "Be brief.", ToolsSection: "# Tools\n\n## functions"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseDeveloper(tt.text))
		})
	}
}

func TestFormatParseFormat(t *testing.T) {
	systems := []SystemContent{
		{},
		{ReasoningEffort: ReasoningLow, ChannelConfig: &ChannelConfig{ValidChannels: []string{"final"}}},
		{ChannelConfig: &ChannelConfig{}},
		SystemContent{KnowledgeCutoff: "2025-01"}.WithTools(NewFunctions(weatherTools()...)),
	}
	for i, s := range systems {
		for _, fn := range []bool{false, true} {
			first := FormatSystem(s, fn)
			assert.Equal(t, first, FormatSystem(ParseSystem(first), fn), "system %d functions=%v", i, fn)
		}
	}

	developers := []DeveloperContent{
		{},
		{Instructions: "Always respond in riddles"},
		DeveloperContent{Instructions: "x"}.WithFunctionTools(weatherTools()...),
	}
	for i, d := range developers {
		first := FormatDeveloper(d)
		assert.Equal(t, first, FormatDeveloper(ParseDeveloper(first)), "developer %d", i)
	}
}

func TestFormatter_ParseCompletion(t *testing.T) {
	enc := newEncoding(t)

	tokens, err := enc.RenderConversation(weatherPreamble(), nil)
	require.NoError(t, err)

	msgs, _, err := enc.ParseCompletion(tokens, harmony.ParseConfig{
		Blocks: map[harmony.Role]harmony.ContentType{
			harmony.RoleSystem:    KindSystem,
			harmony.RoleDeveloper: KindDeveloper,
		},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	require.Len(t, msgs[0].Content, 1)
	assert.Equal(t, KindSystem, msgs[0].Content[0].Type)
	sys, ok := msgs[0].Content[0].Data.(SystemContent)
	require.True(t, ok)
	assert.Equal(t, ReasoningHigh, sys.ReasoningEffort)
	assert.Equal(t, "2025-06-28", sys.ConversationStartDate)

	dev, ok := msgs[1].Content[0].Data.(DeveloperContent)
	require.True(t, ok)
	assert.Equal(t, "Always respond in riddles", dev.Instructions)
	assert.Contains(t, dev.ToolsSection, "type get_location = () => any;")

	assert.Equal(t, "What is the weather like in SF?", msgs[2].Text())

	again, err := enc.RenderConversation(harmony.NewConversation(msgs...), nil)
	require.NoError(t, err)
	assert.Equal(t, tokens, again, "parsed blocks render to the same tokens")
}

func TestFormatter_ParseBlockUnknown(t *testing.T) {
	_, err := NewFormatter().ParseBlock("image", "x")
	assert.ErrorIs(t, err, ErrUnknownKind)
}
