// Package tokenizer provides the token vocabularies the Harmony codec runs on.
//
// Implementations:
//   - TikToken: OpenAI BPE tokenizers via tiktoken-go, including
//     o200k_harmony (o200k_base ranks plus the Harmony special tokens)
//   - ByteLevel: an offline vocabulary of raw bytes plus the Harmony
//     special tokens, for tests and hand-built token streams
//
// Every Tokenizer encodes special-token spellings as ordinary text and
// decodes special token IDs to their spelling, so the structural tokens of a
// Harmony stream can only be produced by the codec itself.
//
// Example usage:
//
//	tok, err := tokenizer.NewHarmonyTikToken("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	start, _ := tok.SpecialTokenID("<|start|>")
//	tokens, err := tok.Encode("Hello, world!")
//	if err != nil {
//	    log.Fatal(err)
//	}
package tokenizer
