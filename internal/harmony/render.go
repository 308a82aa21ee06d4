package harmony

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/born-ml/harmony/internal/parallel"
)

// RenderMessage renders a single message, terminator included.
func (e *Encoding) RenderMessage(msg Message) ([]int32, error) {
	if err := validateMessage(0, msg); err != nil {
		return nil, err
	}
	msgs := []Message{msg}
	return e.appendMessage(nil, 0, msg, collectBlocks(msgs))
}

// RenderConversation renders every message in order, applying the drop
// policy of cfg. A nil cfg renders literally.
func (e *Encoding) RenderConversation(conv Conversation, cfg *RenderConfig) ([]int32, error) {
	if err := validateConversation(conv.Messages, cfg); err != nil {
		return nil, err
	}
	return e.render(conv.Messages, cfg)
}

// RenderConversationForCompletion renders conv followed by the opening
// header "<|start|>next" with no terminator, a prompt for a continuation
// authored by next.
func (e *Encoding) RenderConversationForCompletion(conv Conversation, next Role, cfg *RenderConfig) ([]int32, error) {
	if err := validateConversation(conv.Messages, cfg); err != nil {
		return nil, err
	}
	if err := validateNextRole(conv.Messages, next, cfg); err != nil {
		return nil, err
	}
	out, err := e.render(conv.Messages, cfg)
	if err != nil {
		return nil, err
	}
	out = append(out, e.grammar.id(MarkerStart))
	return e.appendText(out, string(next))
}

// RenderConversationForTraining renders conv and, when the last message is
// the assistant's final answer, replaces its <|end|> with <|return|> as the
// model emits it at inference time.
func (e *Encoding) RenderConversationForTraining(conv Conversation, cfg *RenderConfig) ([]int32, error) {
	out, err := e.RenderConversation(conv, cfg)
	if err != nil {
		return nil, err
	}
	last, ok := conv.Last()
	if !ok || len(out) == 0 {
		return out, nil
	}
	if last.Author.Role == RoleAssistant && last.Channel == ChannelFinal && out[len(out)-1] == e.grammar.id(MarkerEnd) {
		out[len(out)-1] = e.grammar.id(MarkerReturn)
	}
	return out, nil
}

func (e *Encoding) render(msgs []Message, cfg *RenderConfig) ([]int32, error) {
	keep := retained(msgs, cfg)
	if dropped := len(msgs) - len(keep); dropped > 0 {
		e.logger.Debug("dropped previous reasoning",
			zap.Int("dropped", dropped),
			zap.Int("messages", len(msgs)),
		)
	}
	if len(keep) == 0 {
		return []int32{}, nil
	}

	blocks := collectBlocks(msgs)
	size := 0
	for _, i := range keep {
		size += estimateSize(msgs[i])
	}

	if e.parallel.Enabled && len(keep) > 1 && size >= e.parallelMinBytes {
		parts := make([][]int32, len(keep))
		err := parallel.ForErr(len(keep), func(slot int) error {
			toks, err := e.appendMessage(nil, keep[slot], msgs[keep[slot]], blocks)
			if err != nil {
				return err
			}
			parts[slot] = toks
			return nil
		}, e.parallel)
		if err != nil {
			return nil, err
		}
		total := 0
		for _, p := range parts {
			total += len(p)
		}
		out := make([]int32, 0, total)
		for _, p := range parts {
			out = append(out, p...)
		}
		e.logger.Debug("rendered in parallel",
			zap.Int("messages", len(keep)),
			zap.Int("tokens", len(out)),
		)
		return out, nil
	}

	out := make([]int32, 0, size/3+16*len(keep))
	var err error
	for _, i := range keep {
		if out, err = e.appendMessage(out, i, msgs[i], blocks); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// appendMessage renders msg, the message at index in its conversation.
func (e *Encoding) appendMessage(out []int32, index int, msg Message, blocks []Block) ([]int32, error) {
	out, err := e.appendHeader(out, msg)
	if err != nil {
		return nil, err
	}
	out = append(out, e.grammar.id(MarkerMessage))

	for _, c := range msg.Content {
		text := c.Text
		if c.IsBlock() {
			if e.formatter == nil {
				return nil, fmt.Errorf("%w: message %d has a %s block", ErrNoFormatter, index, c.Type)
			}
			text, err = e.formatter.FormatBlock(Block{Kind: c.Type, Data: c.Data}, blocks)
			if err != nil {
				return nil, fmt.Errorf("harmony: message %d: format %s block: %w", index, c.Type, err)
			}
		}
		if out, err = e.appendText(out, text); err != nil {
			return nil, err
		}
	}

	if msg.IsToolCall() {
		return append(out, e.grammar.id(MarkerCall)), nil
	}
	return append(out, e.grammar.id(MarkerEnd)), nil
}

// retained returns the indices of msgs that survive the drop policy.
func retained(msgs []Message, cfg *RenderConfig) []int {
	bound := -1
	if cfg != nil && cfg.AutoDropPreviousReasoning {
		bound = finalIndex(msgs, cfg.DropScope)
	}
	keep := make([]int, 0, len(msgs))
	for i, m := range msgs {
		if i < bound && m.Channel == ChannelAnalysis {
			continue
		}
		keep = append(keep, i)
	}
	return keep
}

// finalIndex returns the index of the final message selected by scope, or
// -1 when there is none.
func finalIndex(msgs []Message, scope DropScope) int {
	if scope == DropBeforeFirstFinal {
		for i, m := range msgs {
			if m.Channel == ChannelFinal {
				return i
			}
		}
		return -1
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Channel == ChannelFinal {
			return i
		}
	}
	return -1
}

func collectBlocks(msgs []Message) []Block {
	var blocks []Block
	for _, m := range msgs {
		for _, c := range m.Content {
			if c.IsBlock() {
				blocks = append(blocks, Block{Kind: c.Type, Data: c.Data})
			}
		}
	}
	return blocks
}

// estimateSize approximates the rendered byte length of msg. Blocks are
// opaque, so each counts as a fixed preamble size.
func estimateSize(msg Message) int {
	const blockEstimate = 512
	n := len(msg.Author.Name) + len(msg.Channel) + len(msg.Recipient) + len(msg.ContentType)
	for _, c := range msg.Content {
		if c.IsBlock() {
			n += blockEstimate
			continue
		}
		n += len(c.Text)
	}
	return n
}
