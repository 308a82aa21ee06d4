// Package harmony implements the Harmony conversation codec.
//
// The codec maps structured, multi-participant conversations to the flat
// token sequences consumed by gpt-oss style completion APIs and back:
//
//	<|start|>author[<|channel|>channel][ to=recipient][ content-type]<|message|>content<|end|>
//
// Components:
//   - Message and Conversation: immutable values describing the dialogue
//   - Encoding: resolves the special-token grammar against a Vocabulary once
//   - Renderer: RenderConversation, RenderConversationForCompletion,
//     RenderConversationForTraining
//   - Batch parser: ParseMessagesFromCompletionTokens
//   - StreamParser: incremental token-by-token decoding with partial state
//
// Example usage:
//
//	enc, err := harmony.NewEncoding(vocab, harmony.WithFormatter(preamble.NewFormatter()))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	conv := harmony.NewConversation(
//	    harmony.NewMessage(harmony.RoleUser, "What is the weather in Tokyo?"),
//	)
//	prompt, err := enc.RenderConversationForCompletion(conv, harmony.RoleAssistant, nil)
//
//	parser := enc.NewStreamParser(harmony.ParseConfig{Role: harmony.RoleAssistant})
//	for _, tok := range completion {
//	    if err := parser.Process(tok); err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Print(parser.LastContentDelta())
//	}
//	_ = parser.ProcessEOS()
//
// Encodings, renderers and batch parsing are safe for concurrent use. A
// StreamParser owns its state and must be driven by a single goroutine.
package harmony
