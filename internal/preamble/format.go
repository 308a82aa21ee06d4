package preamble

import (
	"fmt"
	"slices"
	"strings"

	"github.com/born-ml/harmony/internal/harmony"
)

// Formatter renders and parses system and developer blocks. The zero value
// is ready to use.
type Formatter struct{}

var _ harmony.BlockFormatter = (*Formatter)(nil)

// NewFormatter returns a Formatter.
func NewFormatter() *Formatter {
	return &Formatter{}
}

// FormatBlock renders block. The system preamble names the functions
// namespace in its channel note when any developer block of conversation
// declares function tools.
func (f *Formatter) FormatBlock(block harmony.Block, conversation []harmony.Block) (string, error) {
	switch block.Kind {
	case KindSystem:
		s, err := SystemFrom(block.Data)
		if err != nil {
			return "", err
		}
		return FormatSystem(s, hasFunctionTools(conversation)), nil
	case KindDeveloper:
		d, err := DeveloperFrom(block.Data)
		if err != nil {
			return "", err
		}
		return FormatDeveloper(d), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, block.Kind)
	}
}

// hasFunctionTools reports whether a developer block declares at least one
// tool in the functions namespace, either structurally or as parsed-back
// tools text. Undecodable blocks are skipped; rendering them reports the
// error.
func hasFunctionTools(blocks []harmony.Block) bool {
	for _, b := range blocks {
		if b.Kind != KindDeveloper {
			continue
		}
		d, err := DeveloperFrom(b.Data)
		if err != nil {
			continue
		}
		if ns, ok := d.Tools[FunctionsNamespace]; ok && len(ns.Tools) > 0 {
			return true
		}
		if len(d.Tools) == 0 && strings.Contains(d.ToolsSection, "namespace "+FunctionsNamespace+" {") {
			return true
		}
	}
	return false
}

// FormatSystem renders the system preamble.
func FormatSystem(s SystemContent, functionTools bool) string {
	identity := s.ModelIdentity
	if identity == "" {
		identity = DefaultModelIdentity
	}
	cutoff := s.KnowledgeCutoff
	if cutoff == "" {
		cutoff = DefaultKnowledgeCutoff
	}

	var head strings.Builder
	head.WriteString(identity)
	head.WriteString("\nKnowledge cutoff: ")
	head.WriteString(cutoff)
	if s.ConversationStartDate != "" {
		head.WriteString("\nCurrent date: ")
		head.WriteString(s.ConversationStartDate)
	}

	effort := s.ReasoningEffort
	if effort == "" {
		effort = ReasoningMedium
	}

	sections := []string{head.String(), "Reasoning: " + strings.ToLower(string(effort))}

	if len(s.Tools) > 0 {
		sections = append(sections, FormatTools(s.Tools))
	} else if s.ToolsSection != "" {
		sections = append(sections, s.ToolsSection)
	}

	channels := s.ChannelConfig
	if channels == nil {
		channels = DefaultChannelConfig()
	}
	if len(channels.ValidChannels) > 0 {
		line := "# Valid channels: " + strings.Join(channels.ValidChannels, ", ") + "."
		if channels.ChannelRequired {
			line += " Channel must be included for every message."
		}
		if functionTools {
			line += "\nCalls to these tools must go to the commentary channel: '" + FunctionsNamespace + "'."
		}
		sections = append(sections, line)
	}

	return strings.Join(sections, "\n\n")
}

// FormatDeveloper renders the developer preamble.
func FormatDeveloper(d DeveloperContent) string {
	var sb strings.Builder
	if d.Instructions != "" {
		sb.WriteString("# Instructions\n\n")
		sb.WriteString(d.Instructions)
	}

	tools := d.ToolsSection
	if len(d.Tools) > 0 {
		tools = FormatTools(d.Tools)
	}
	if tools != "" {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(tools)
	}
	return sb.String()
}

// FormatTools renders the "# Tools" section, namespaces sorted by key.
func FormatTools(tools map[string]ToolNamespaceConfig) string {
	keys := make([]string, 0, len(tools))
	for k := range tools {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var sb strings.Builder
	sb.WriteString("# Tools")
	for _, k := range keys {
		ns := tools[k]
		if ns.Name == "" {
			ns.Name = k
		}
		sb.WriteString("\n\n")
		sb.WriteString(formatNamespace(ns))
	}
	return sb.String()
}

func formatNamespace(ns ToolNamespaceConfig) string {
	var sb strings.Builder
	sb.WriteString("## ")
	sb.WriteString(ns.Name)
	sb.WriteString("\n\n")

	if ns.Description != "" {
		if len(ns.Tools) > 0 {
			writeComment(&sb, "", ns.Description)
		} else {
			sb.WriteString(ns.Description)
			sb.WriteString("\n\n")
		}
	}

	if len(ns.Tools) > 0 {
		sb.WriteString("namespace ")
		sb.WriteString(ns.Name)
		sb.WriteString(" {\n\n")
		for _, tool := range ns.Tools {
			writeComment(&sb, "", tool.Description)
			sb.WriteString("type ")
			sb.WriteString(tool.Name)
			sb.WriteString(" = ")
			sb.WriteString(signature(tool.Parameters))
			sb.WriteString(";\n\n")
		}
		sb.WriteString("} // namespace ")
		sb.WriteString(ns.Name)
	}

	return strings.TrimRight(sb.String(), "\n")
}

// writeComment writes text as "// " lines, each prefixed by indent and
// followed by a newline. Empty text still writes one empty comment line.
func writeComment(sb *strings.Builder, indent, text string) {
	for line := range strings.SplitSeq(text, "\n") {
		sb.WriteString(indent)
		sb.WriteString("// ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
}
