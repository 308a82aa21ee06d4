package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/born-ml/harmony/harmony"
	"github.com/born-ml/harmony/internal/config"
	"github.com/born-ml/harmony/internal/logger"
	"github.com/born-ml/harmony/internal/transcript"
)

// commonFlags are accepted by every command that touches an encoding.
type commonFlags struct {
	configPath  string
	encoding    string
	ranks       string
	output      string
	input       string
	inputFormat string
	logLevel    string
	logDev      bool
}

func (c *commonFlags) add(fs *pflag.FlagSet) {
	fs.StringVarP(&c.configPath, "config", "c", "", "configuration file (.yaml, .toml, .json or .jsonc)")
	fs.StringVar(&c.encoding, "encoding", "", "vocabulary: o200k_harmony, byte_level or a tiktoken encoding")
	fs.StringVar(&c.ranks, "ranks", "", "o200k rank file, directory or URL")
	fs.StringVarP(&c.output, "output", "o", "", "output format: json, yaml, cbor or pretty")
	fs.StringVarP(&c.input, "input", "i", "-", "input file, - for stdin")
	fs.StringVar(&c.inputFormat, "input-format", "", "input format: json or yaml (default from the file extension)")
	fs.StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn or error")
	fs.BoolVar(&c.logDev, "log-dev", false, "human-readable console logs")
}

// app is a configured command invocation.
type app struct {
	*env
	flags commonFlags
	cfg   *config.Config
	log   *zap.Logger
	enc   *harmony.Encoding
}

// parseFlags parses args into fs. A help request prints the flag usage
// and returns errHelp.
func parseFlags(e *env, fs *pflag.FlagSet, args []string) error {
	fs.SetOutput(e.stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return errHelp
		}
		return &usageError{msg: err.Error()}
	}
	if fs.NArg() > 0 {
		return usageErrorf("unexpected argument: %s", fs.Arg(0))
	}
	return nil
}

var errHelp = errors.New("help requested")

// setup loads configuration, applies flag overrides and builds the logger
// and encoding.
func (a *app) setup() error {
	cfg, err := config.Load(a.flags.configPath)
	if err != nil {
		return err
	}
	if a.flags.encoding != "" {
		cfg.Encoding = a.flags.encoding
	}
	if a.flags.ranks != "" {
		cfg.Ranks = a.flags.ranks
	}
	if a.flags.output != "" {
		cfg.Output = a.flags.output
	}
	if a.flags.logLevel != "" {
		cfg.Log.Level = a.flags.logLevel
	}
	if a.flags.logDev {
		cfg.Log.Development = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	a.log, err = logger.New(logger.Options{Level: cfg.Log.Level, Development: cfg.Log.Development})
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	pc, minBytes := cfg.ParallelConfig()
	a.enc, err = harmony.LoadEncodingFrom(harmony.EncodingName(cfg.Encoding), cfg.Ranks,
		harmony.WithLogger(a.log),
		harmony.WithParallel(pc, minBytes),
	)
	if err != nil {
		return err
	}
	a.log.Debug("encoding loaded", zap.String("encoding", cfg.Encoding))
	return nil
}

func (a *app) close() {
	if a.log != nil {
		_ = a.log.Sync()
	}
}

// open returns the input stream named by --input.
func (a *app) open() (io.ReadCloser, error) {
	if a.flags.input == "" || a.flags.input == "-" {
		return io.NopCloser(a.stdin), nil
	}
	f, err := os.Open(a.flags.input)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return f, nil
}

func (a *app) inputFormat() string {
	if a.flags.inputFormat != "" {
		return a.flags.inputFormat
	}
	return transcript.FormatFromPath(a.flags.input)
}

func (a *app) readConversation() (harmony.Conversation, error) {
	r, err := a.open()
	if err != nil {
		return harmony.Conversation{}, err
	}
	defer r.Close()
	return transcript.ReadConversation(r, a.inputFormat())
}

func (a *app) readTokens() ([]int32, error) {
	r, err := a.open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return transcript.ReadTokens(r)
}

func (a *app) writer() (*transcript.Writer, error) {
	return transcript.NewWriter(a.stdout, a.cfg.Output, a.enc.Vocabulary())
}

func (a *app) writeTokens(tokens []int32) error {
	w, err := a.writer()
	if err != nil {
		return err
	}
	return w.WriteTokens(tokens)
}
