package harmony

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/born-ml/harmony/internal/parallel"
)

// EncodingName identifies a Harmony encoding.
type EncodingName string

// HarmonyGptOss is the o200k_harmony encoding used by gpt-oss models.
const HarmonyGptOss EncodingName = "HarmonyGptOss"

// Vocabulary is the tokenizer service the codec depends on. Encode must
// treat special-token spellings as plain text.
type Vocabulary interface {
	Encode(text string) ([]int32, error)
	Decode(tokens []int32) (string, error)
	SpecialTokenID(name string) (int32, bool)
	SpecialTokenName(token int32) (string, bool)
}

// Block is a structured content item handed to a BlockFormatter.
type Block struct {
	Kind ContentType
	Data any
}

// BlockFormatter renders structured blocks to text and parses text back
// into blocks. FormatBlock receives every block of the conversation being
// rendered so a preamble can reflect declarations made elsewhere.
type BlockFormatter interface {
	FormatBlock(block Block, conversation []Block) (string, error)
	ParseBlock(kind ContentType, text string) (Block, error)
}

// ErrNoFormatter is returned when structured content is rendered or parsed
// by an encoding built without a BlockFormatter.
var ErrNoFormatter = errors.New("harmony: no block formatter configured")

const defaultParallelMinBytes = 8 << 10

// Encoding renders and parses Harmony token sequences for one vocabulary.
// It is immutable after construction and safe for concurrent use.
type Encoding struct {
	name      EncodingName
	vocab     Vocabulary
	grammar   *grammar
	formatter BlockFormatter
	logger    *zap.Logger

	parallel         parallel.Config
	parallelMinBytes int
}

// Option configures an Encoding.
type Option func(*encodingOptions)

type encodingOptions struct {
	name             EncodingName
	formatter        BlockFormatter
	logger           *zap.Logger
	parallel         parallel.Config
	parallelMinBytes int
}

// WithName sets the name reported by Encoding.Name.
func WithName(name EncodingName) Option {
	return func(o *encodingOptions) {
		o.name = name
	}
}

// WithFormatter sets the formatter for structured content blocks.
func WithFormatter(f BlockFormatter) Option {
	return func(o *encodingOptions) {
		o.formatter = f
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *encodingOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithParallel sets the fan-out used to render large conversations and the
// estimated conversation size, in bytes, at which it kicks in.
func WithParallel(cfg parallel.Config, minBytes int) Option {
	return func(o *encodingOptions) {
		o.parallel = cfg
		o.parallelMinBytes = minBytes
	}
}

// NewEncoding resolves the grammar's special tokens through vocab and
// returns an Encoding that caches them for its lifetime.
func NewEncoding(vocab Vocabulary, opts ...Option) (*Encoding, error) {
	if vocab == nil {
		return nil, errors.New("harmony: nil vocabulary")
	}
	options := &encodingOptions{
		name:             HarmonyGptOss,
		logger:           zap.NewNop(),
		parallel:         parallel.DefaultConfig(),
		parallelMinBytes: defaultParallelMinBytes,
	}
	for _, opt := range opts {
		opt(options)
	}

	g, err := newGrammar(vocab)
	if err != nil {
		return nil, fmt.Errorf("harmony: resolve grammar: %w", err)
	}

	return &Encoding{
		name:             options.name,
		vocab:            vocab,
		grammar:          g,
		formatter:        options.formatter,
		logger:           options.logger.Named("harmony"),
		parallel:         options.parallel,
		parallelMinBytes: options.parallelMinBytes,
	}, nil
}

// Name returns the encoding name.
func (e *Encoding) Name() EncodingName { return e.name }

// Vocabulary returns the underlying tokenizer service.
func (e *Encoding) Vocabulary() Vocabulary { return e.vocab }

// MarkerToken returns the token id of a grammar marker.
func (e *Encoding) MarkerToken(m Marker) int32 {
	if m <= MarkerNone || m >= markerCount {
		return -1
	}
	return e.grammar.id(m)
}

// StopTokens returns the tokens that terminate any message.
func (e *Encoding) StopTokens() []int32 {
	return []int32{
		e.grammar.id(MarkerReturn),
		e.grammar.id(MarkerCall),
		e.grammar.id(MarkerEnd),
	}
}

// StopTokensForAssistantActions returns the tokens that end an assistant
// turn: a tool call or the final answer.
func (e *Encoding) StopTokensForAssistantActions() []int32 {
	return []int32{
		e.grammar.id(MarkerReturn),
		e.grammar.id(MarkerCall),
	}
}

// EncodeText encodes text with special-token spellings treated literally.
func (e *Encoding) EncodeText(text string) ([]int32, error) {
	return e.vocab.Encode(text)
}

// Decode decodes tokens, special tokens included, to text.
func (e *Encoding) Decode(tokens []int32) (string, error) {
	return e.vocab.Decode(tokens)
}
