package tokenizer

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const (
	// EncodingO200kHarmony is the gpt-oss encoding: o200k_base ranks plus the
	// Harmony special tokens.
	EncodingO200kHarmony = "o200k_harmony"

	// encodingO200kBase is the encoding name for GPT-4o.
	encodingO200kBase = "o200k_base"
	// encodingCL100kBase is the encoding name for GPT-4 and GPT-3.5-turbo.
	encodingCL100kBase = "cl100k_base"
	// encodingP50kBase is the encoding name for GPT-3.
	encodingP50kBase = "p50k_base"
	// encodingR50kBase is the encoding name for older GPT-3 models.
	encodingR50kBase = "r50k_base"
)

// O200kBaseURL is the default location of the o200k rank file.
const O200kBaseURL = "https://openaipublic.blob.core.windows.net/encodings/o200k_base.tiktoken"

// EnvEncodingsBase names a local directory holding o200k_base.tiktoken. It
// is consulted when no rank source is given.
const EnvEncodingsBase = "TIKTOKEN_ENCODINGS_BASE"

const o200kRankFile = "o200k_base.tiktoken"

// o200kPattern is the o200k pre-tokenization regex.
var o200kPattern = strings.Join([]string{
	`[^\r\n\p{L}\p{N}]?[\p{Lu}\p{Lt}\p{Lm}\p{Lo}\p{M}]*[\p{Ll}\p{Lm}\p{Lo}\p{M}]+(?i:'s|'t|'re|'ve|'m|'ll|'d)?`,
	`[^\r\n\p{L}\p{N}]?[\p{Lu}\p{Lt}\p{Lm}\p{Lo}\p{M}]+[\p{Ll}\p{Lm}\p{Lo}\p{M}]*(?i:'s|'t|'re|'ve|'m|'ll|'d)?`,
	`\p{N}{1,3}`,
	` ?[^\s\p{L}\p{N}]+[\r\n/]*`,
	`\s*[\r\n]+`,
	`\s+(?!\S)`,
	`\s+`,
}, "|")

// standardSpecials lists the special tokens tiktoken-go registers for each
// built-in encoding.
var standardSpecials = map[string]map[string]int32{
	encodingO200kBase: {
		"<|endoftext|>":   199999,
		"<|endofprompt|>": 200018,
	},
	encodingCL100kBase: {
		"<|endoftext|>":   100257,
		"<|fim_prefix|>":  100258,
		"<|fim_middle|>":  100259,
		"<|fim_suffix|>":  100260,
		"<|endofprompt|>": 100276,
	},
	encodingP50kBase: {
		"<|endoftext|>": 50256,
	},
	encodingR50kBase: {
		"<|endoftext|>": 50256,
	},
}

// TikToken wraps the pkoukk/tiktoken-go library for OpenAI tokenizers.
//
// Supported encodings:
//   - o200k_harmony: gpt-oss (Harmony chat format)
//   - o200k_base: GPT-4o, GPT-4.1
//   - cl100k_base: GPT-4, GPT-3.5-turbo, text-embedding-ada-002
//   - p50k_base: GPT-3, Codex
//   - r50k_base: GPT-3, davinci-002, babbage-002
type TikToken struct {
	encoding *tiktoken.Tiktoken
	name     string
	base     string
	specials *specialTable
}

// NewTikToken creates a new TikToken tokenizer with the specified encoding.
//
// "o200k_harmony" loads its ranks from the default location; use
// NewHarmonyTikToken to choose another.
func NewTikToken(encodingName string) (*TikToken, error) {
	if encodingName == EncodingO200kHarmony {
		return NewHarmonyTikToken("")
	}

	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding %q: %w", encodingName, err)
	}

	return &TikToken{
		encoding: encoding,
		name:     encodingName,
		base:     encodingName,
		specials: newSpecialTable(maps.Clone(standardSpecials[encodingName])),
	}, nil
}

// NewTikTokenForModel creates a TikToken tokenizer for a specific model.
//
// Example models: "gpt-oss-120b", "gpt-4o", "gpt-4", "gpt-3.5-turbo".
func NewTikTokenForModel(modelName string) (*TikToken, error) {
	base, ok := encodingForModel(modelName)
	if !ok {
		return nil, fmt.Errorf("failed to load tiktoken for model %q: no encoding for model", modelName)
	}

	tok, err := NewTikToken(base)
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken for model %q: %w", modelName, err)
	}
	tok.name = modelName
	return tok, nil
}

func encodingForModel(model string) (string, bool) {
	if strings.HasPrefix(model, "gpt-oss") {
		return EncodingO200kHarmony, true
	}
	if enc, ok := tiktoken.MODEL_TO_ENCODING[model]; ok {
		return enc, true
	}
	for prefix, enc := range tiktoken.MODEL_PREFIX_TO_ENCODING {
		if strings.HasPrefix(model, prefix) {
			return enc, true
		}
	}
	return "", false
}

var (
	harmonyMu    sync.Mutex
	harmonyCache = map[string]*tiktoken.Tiktoken{}
)

// NewHarmonyTikToken creates the o200k_harmony tokenizer.
//
// source is a rank file path, a directory containing o200k_base.tiktoken, or
// an http(s) URL. When empty, the directory in TIKTOKEN_ENCODINGS_BASE is
// used if set, otherwise O200kBaseURL. Downloads are cached by tiktoken-go
// under TIKTOKEN_CACHE_DIR. Loaded encodings are shared per source.
func NewHarmonyTikToken(source string) (*TikToken, error) {
	source = resolveRankSource(source)

	harmonyMu.Lock()
	defer harmonyMu.Unlock()

	encoding, ok := harmonyCache[source]
	if !ok {
		var err error
		if encoding, err = buildHarmony(source); err != nil {
			return nil, fmt.Errorf("failed to load tiktoken encoding %q: %w", EncodingO200kHarmony, err)
		}
		harmonyCache[source] = encoding
	}

	return &TikToken{
		encoding: encoding,
		name:     EncodingO200kHarmony,
		base:     EncodingO200kHarmony,
		specials: harmonySpecials(),
	}, nil
}

func resolveRankSource(source string) string {
	if source == "" {
		dir := strings.TrimSpace(os.Getenv(EnvEncodingsBase))
		if dir == "" {
			return O200kBaseURL
		}
		return filepath.Join(dir, o200kRankFile)
	}
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return source
	}
	if info, err := os.Stat(source); err == nil && info.IsDir() {
		return filepath.Join(source, o200kRankFile)
	}
	return source
}

func buildHarmony(source string) (*tiktoken.Tiktoken, error) {
	ranks, err := tiktoken.NewDefaultBpeLoader().LoadTiktokenBpe(source)
	if err != nil {
		return nil, fmt.Errorf("load ranks from %s: %w", source, err)
	}

	table := harmonySpecials()
	specials := make(map[string]int, len(table.byName))
	set := make(map[string]any, len(table.byName))
	for name, id := range table.byName {
		specials[name] = int(id)
		set[name] = true
	}

	bpe, err := tiktoken.NewCoreBPE(ranks, specials, o200kPattern)
	if err != nil {
		return nil, err
	}
	enc := &tiktoken.Encoding{
		Name:           EncodingO200kHarmony,
		PatStr:         o200kPattern,
		MergeableRanks: ranks,
		SpecialTokens:  specials,
		ExplicitNVocab: int(ReservedEnd) + 1,
	}
	return tiktoken.NewTiktoken(bpe, enc, set), nil
}

// Encode converts text to token IDs. Special-token spellings are encoded
// as ordinary text.
func (t *TikToken) Encode(text string) ([]int32, error) {
	tokens := t.encoding.EncodeOrdinary(text)

	// Convert []int to []int32.
	result := make([]int32, len(tokens))
	for i, tok := range tokens {
		result[i] = int32(tok) //nolint:gosec // G115: Token ID fits in int32 - vocab size < 2^31.
	}

	return result, nil
}

// Decode converts token IDs back to text. IDs outside the vocabulary are
// rejected rather than dropped.
func (t *TikToken) Decode(tokens []int32) (string, error) {
	size := t.VocabSize()
	intTokens := make([]int, len(tokens))
	for i, tok := range tokens {
		if _, special := t.specials.name(tok); !special && (tok < 0 || int(tok) >= size) {
			return "", fmt.Errorf("unknown token %d at index %d", tok, i)
		}
		intTokens[i] = int(tok)
	}

	return t.encoding.Decode(intTokens), nil
}

// VocabSize returns the size of the ordinary token ID space. For
// o200k_harmony it also covers the reserved range.
func (t *TikToken) VocabSize() int {
	// tiktoken-go doesn't expose vocab size directly.
	switch t.base {
	case EncodingO200kHarmony:
		return int(ReservedEnd) + 1
	case encodingO200kBase:
		return 200019
	case encodingCL100kBase:
		return 100256
	default:
		return 50257
	}
}

// SpecialTokenID resolves a special token spelling.
func (t *TikToken) SpecialTokenID(name string) (int32, bool) {
	return t.specials.id(name)
}

// SpecialTokenName returns the spelling of a special token ID.
func (t *TikToken) SpecialTokenName(token int32) (string, bool) {
	return t.specials.name(token)
}

// Name returns the tokenizer name.
func (t *TikToken) Name() string {
	return t.name
}

// Encoding returns the underlying encoding name.
func (t *TikToken) Encoding() string {
	return t.base
}
