package preamble

import (
	"fmt"
	"strings"

	"github.com/born-ml/harmony/internal/harmony"
)

const (
	toolsHeading     = "# Tools"
	channelsHeading  = "# Valid channels: "
	channelsRequired = " Channel must be included for every message."
	instructionsHead = "# Instructions\n\n"
)

// ParseBlock recovers a block from rendered text. Scalar fields are
// recovered exactly; tools come back as ToolsSection text since their
// schemas are not recoverable from the rendered declarations.
func (f *Formatter) ParseBlock(kind harmony.ContentType, text string) (harmony.Block, error) {
	switch kind {
	case KindSystem:
		return harmony.Block{Kind: kind, Data: ParseSystem(text)}, nil
	case KindDeveloper:
		return harmony.Block{Kind: kind, Data: ParseDeveloper(text)}, nil
	default:
		return harmony.Block{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// ParseSystem reads a rendered system preamble back into SystemContent.
func ParseSystem(text string) SystemContent {
	var s SystemContent

	rest := text
	if i := sectionIndex(text, toolsHeading); i >= 0 {
		end := len(text)
		if j := strings.Index(text[i:], "\n\n"+channelsHeading); j >= 0 {
			end = i + j
		}
		s.ToolsSection = text[i:end]
		rest = text[:i] + text[end:]
	}

	lines := strings.Split(rest, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "Knowledge cutoff: "):
			s.KnowledgeCutoff = strings.TrimPrefix(line, "Knowledge cutoff: ")
		case strings.HasPrefix(line, "Current date: "):
			s.ConversationStartDate = strings.TrimPrefix(line, "Current date: ")
		case strings.HasPrefix(line, "Reasoning: "):
			s.ReasoningEffort = ReasoningEffort(strings.TrimPrefix(line, "Reasoning: "))
		case strings.HasPrefix(line, channelsHeading):
			s.ChannelConfig = parseChannels(strings.TrimPrefix(line, channelsHeading))
		case i == 0:
			s.ModelIdentity = line
		}
	}
	if s.ChannelConfig == nil {
		s.ChannelConfig = &ChannelConfig{}
	}
	return s
}

func parseChannels(line string) *ChannelConfig {
	cfg := &ChannelConfig{}
	if strings.HasSuffix(line, channelsRequired) {
		cfg.ChannelRequired = true
		line = strings.TrimSuffix(line, channelsRequired)
	}
	line = strings.TrimSuffix(line, ".")
	for name := range strings.SplitSeq(line, ",") {
		if name = strings.TrimSpace(name); name != "" {
			cfg.ValidChannels = append(cfg.ValidChannels, name)
		}
	}
	return cfg
}

// ParseDeveloper reads a rendered developer preamble back into
// DeveloperContent. Text without the instructions heading is taken as
// instructions verbatim.
func ParseDeveloper(text string) DeveloperContent {
	var d DeveloperContent
	if i := sectionIndex(text, toolsHeading); i >= 0 {
		d.ToolsSection = text[i:]
		text = strings.TrimSuffix(text[:i], "\n\n")
	}
	d.Instructions = strings.TrimPrefix(text, instructionsHead)
	return d
}

// sectionIndex finds heading at the start of text or of a "\n\n"-separated
// section.
func sectionIndex(text, heading string) int {
	if strings.HasPrefix(text, heading) {
		return 0
	}
	if i := strings.Index(text, "\n\n"+heading); i >= 0 {
		return i + 2
	}
	return -1
}
