package tokenizer

import "fmt"

// EncodingByteLevel names the ByteLevel vocabulary.
const EncodingByteLevel = "byte_level"

// ByteLevel is an offline vocabulary: IDs 0-255 are raw bytes and the
// o200k_harmony special tokens keep their IDs. It needs no rank file, which
// makes token streams easy to build by hand.
type ByteLevel struct {
	specials *specialTable
}

// NewByteLevel creates a ByteLevel tokenizer.
func NewByteLevel() *ByteLevel {
	return &ByteLevel{specials: harmonySpecials()}
}

// Encode returns one token per byte of text.
func (b *ByteLevel) Encode(text string) ([]int32, error) {
	out := make([]int32, len(text))
	for i := 0; i < len(text); i++ {
		out[i] = int32(text[i])
	}
	return out, nil
}

// Decode converts token IDs back to text.
func (b *ByteLevel) Decode(tokens []int32) (string, error) {
	buf := make([]byte, 0, len(tokens))
	for i, tok := range tokens {
		if tok >= 0 && tok < 256 {
			buf = append(buf, byte(tok))
			continue
		}
		name, ok := b.specials.name(tok)
		if !ok {
			return "", fmt.Errorf("unknown token %d at index %d", tok, i)
		}
		buf = append(buf, name...)
	}
	return string(buf), nil
}

// SpecialTokenID resolves a special token spelling.
func (b *ByteLevel) SpecialTokenID(name string) (int32, bool) {
	return b.specials.id(name)
}

// SpecialTokenName returns the spelling of a special token ID.
func (b *ByteLevel) SpecialTokenName(token int32) (string, bool) {
	return b.specials.name(token)
}

// Name returns the tokenizer name.
func (b *ByteLevel) Name() string {
	return EncodingByteLevel
}
