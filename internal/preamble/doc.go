// Package preamble formats the structured system and developer blocks of a
// Harmony conversation.
//
// A system block carries the model identity, knowledge cutoff, current
// date, reasoning effort, built-in tool namespaces and the valid-channel
// declaration. A developer block carries instructions and function tool
// declarations. Tools render as TypeScript-like type declarations derived
// from each tool's JSON Schema parameters, properties kept in the order the
// schema lists them.
//
// Formatter implements harmony.BlockFormatter:
//
//	enc, err := harmony.NewEncoding(vocab, harmony.WithFormatter(preamble.NewFormatter()))
//	conv := harmony.NewConversation(
//	    preamble.SystemMessage(preamble.SystemContent{ReasoningEffort: preamble.ReasoningHigh}),
//	    preamble.DeveloperMessage(preamble.DeveloperContent{Instructions: "Answer in riddles."}),
//	    harmony.NewMessage(harmony.RoleUser, "What is the weather?"),
//	)
package preamble
