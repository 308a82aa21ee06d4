package harmony

import (
	"slices"
	"strings"
)

// validateMessage checks the structural rules every rendered message must
// satisfy so that parsing it back reproduces the same header fields.
func validateMessage(i int, msg Message) error {
	if !msg.Author.Role.Valid() {
		return validationErrorf(i, "unknown role %q", msg.Author.Role)
	}
	if msg.Author.Role == RoleTool && msg.Author.Name == "" {
		return validationErrorf(i, "tool messages must have a name")
	}
	if hasSpace(msg.Author.Name) {
		return validationErrorf(i, "author name %q contains whitespace", msg.Author.Name)
	}
	if msg.Author.Role == RoleTool && strings.HasPrefix(msg.Author.Name, recipientPrefix) {
		return validationErrorf(i, "tool name %q starts with %q", msg.Author.Name, recipientPrefix)
	}
	if msg.Author.Role == RoleTool {
		if a, err := parseAuthor(msg.Author.Name); err != nil || a != msg.Author {
			return validationErrorf(i, "tool name %q reads back as a different author", msg.Author.Name)
		}
	}
	if hasSpace(msg.Channel) {
		return validationErrorf(i, "channel %q contains whitespace", msg.Channel)
	}
	if hasSpace(msg.Recipient) {
		return validationErrorf(i, "recipient %q contains whitespace", msg.Recipient)
	}
	if hasSpace(msg.ContentType) || strings.HasPrefix(msg.ContentType, recipientPrefix) || msg.ContentType == constrainPrefix {
		return validationErrorf(i, "invalid content type %q", msg.ContentType)
	}
	for j, c := range msg.Content {
		if c.IsBlock() && c.Data == nil {
			return validationErrorf(i, "content %d: nil %s block", j, c.Type)
		}
	}
	return nil
}

// validateConversation applies the per-message rules and, when cfg carries
// one, the channel policy.
func validateConversation(msgs []Message, cfg *RenderConfig) error {
	for i, msg := range msgs {
		if err := validateMessage(i, msg); err != nil {
			return err
		}
	}
	if cfg == nil || cfg.Channels == nil {
		return nil
	}
	policy := cfg.Channels

	for i, msg := range msgs {
		if msg.Channel == "" {
			if policy.Required && msg.Author.Role == RoleAssistant {
				return validationErrorf(i, "assistant message has no channel")
			}
			continue
		}
		if len(policy.Valid) > 0 && !slices.Contains(policy.Valid, msg.Channel) {
			return validationErrorf(i, "channel %q is not one of %v", msg.Channel, policy.Valid)
		}
	}
	for _, want := range policy.MustAppear {
		if !slices.ContainsFunc(msgs, func(m Message) bool { return m.Channel == want }) {
			return validationErrorf(-1, "required channel %q does not appear", want)
		}
	}
	return nil
}

// validateNextRole checks that next may speak after msgs.
func validateNextRole(msgs []Message, next Role, cfg *RenderConfig) error {
	if !next.Valid() {
		return validationErrorf(-1, "unknown next role %q", next)
	}
	if cfg == nil || cfg.Turns == nil {
		return nil
	}
	if !cfg.Turns(msgs, next) {
		after := "the start of the conversation"
		if len(msgs) > 0 {
			after = string(msgs[len(msgs)-1].Author.Role)
		}
		return validationErrorf(-1, "%s may not speak after %s", next, after)
	}
	return nil
}
