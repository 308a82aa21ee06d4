// Package tokenizer provides the vocabularies behind Harmony encodings.
//
// Supported tokenizers:
//   - o200k_harmony: o200k_base ranks plus the Harmony special tokens (gpt-oss)
//   - standard tiktoken encodings (o200k_base, cl100k_base, p50k_base, r50k_base)
//   - byte_level: an offline vocabulary for tests and tooling
//
// Example usage:
//
//	import "github.com/born-ml/harmony/tokenizer"
//
//	tok, err := tokenizer.NewHarmonyTikToken("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	tokens, err := tok.Encode("Hello, world!")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	id, _ := tok.SpecialTokenID("<|start|>") // 200006
package tokenizer

import (
	"github.com/born-ml/harmony/internal/tokenizer"
)

// Tokenizer is the core interface for text tokenization.
type Tokenizer = tokenizer.Tokenizer

// TikToken is a tiktoken-backed tokenizer.
type TikToken = tokenizer.TikToken

// ByteLevel is the offline byte vocabulary.
type ByteLevel = tokenizer.ByteLevel

// Encoding names.
const (
	EncodingO200kHarmony = tokenizer.EncodingO200kHarmony
	EncodingByteLevel    = tokenizer.EncodingByteLevel
)

// EnvEncodingsBase names the environment variable pointing at a directory
// or URL prefix holding o200k_base.tiktoken.
const EnvEncodingsBase = tokenizer.EnvEncodingsBase

// Load returns the tokenizer for an encoding name. ranksSource locates the
// o200k rank file for o200k_harmony and is ignored otherwise.
func Load(name, ranksSource string) (Tokenizer, error) {
	return tokenizer.Load(name, ranksSource)
}

// NewTikToken creates a TikToken tokenizer for a standard encoding.
func NewTikToken(encodingName string) (*TikToken, error) {
	return tokenizer.NewTikToken(encodingName)
}

// NewTikTokenForModel creates a TikToken tokenizer for a model name such as
// "gpt-4o" or "gpt-oss-120b".
func NewTikTokenForModel(modelName string) (*TikToken, error) {
	return tokenizer.NewTikTokenForModel(modelName)
}

// NewHarmonyTikToken loads the o200k_harmony tokenizer from source: a rank
// file, a directory holding o200k_base.tiktoken, a URL, or "" for
// TIKTOKEN_ENCODINGS_BASE and then the public download.
func NewHarmonyTikToken(source string) (*TikToken, error) {
	return tokenizer.NewHarmonyTikToken(source)
}

// NewByteLevel returns the offline byte vocabulary.
func NewByteLevel() *ByteLevel {
	return tokenizer.NewByteLevel()
}

// HarmonySpecialTokens returns the Harmony special token table.
func HarmonySpecialTokens() map[string]int32 {
	return tokenizer.HarmonySpecialTokens()
}
