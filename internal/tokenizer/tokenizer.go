package tokenizer

import "fmt"

// Tokenizer is the core interface for text tokenization.
//
// All tokenizer implementations (tiktoken, byte-level) must implement this interface.
type Tokenizer interface {
	// Encode converts text to token IDs. Special-token spellings in text
	// are encoded as ordinary text.
	Encode(text string) ([]int32, error)

	// Decode converts token IDs back to text. Special tokens decode to
	// their spelling and IDs outside the vocabulary are an error.
	Decode(tokens []int32) (string, error)

	// SpecialTokenID resolves a special token spelling such as "<|start|>".
	SpecialTokenID(name string) (int32, bool)

	// SpecialTokenName returns the spelling of a special token ID.
	SpecialTokenName(token int32) (string, bool)
}

// Load returns the tokenizer for an encoding name.
//
// "byte_level" selects the offline ByteLevel vocabulary, "o200k_harmony"
// loads o200k ranks from ranksSource (a file, a directory holding
// o200k_base.tiktoken, a URL, or "" for the default location) and every
// other name is a standard tiktoken encoding.
func Load(name, ranksSource string) (Tokenizer, error) {
	switch name {
	case "":
		return nil, fmt.Errorf("empty encoding name")
	case EncodingByteLevel:
		return NewByteLevel(), nil
	case EncodingO200kHarmony:
		return NewHarmonyTikToken(ranksSource)
	}
	return NewTikToken(name)
}
