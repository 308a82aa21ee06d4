// Package config loads harmony CLI configuration from YAML, TOML or JSONC
// files and HARMONY_* environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/harmony/internal/harmony"
	"github.com/born-ml/harmony/internal/parallel"
	"github.com/born-ml/harmony/internal/preamble"
)

// Output formats understood by the CLI.
const (
	OutputJSON   = "json"
	OutputYAML   = "yaml"
	OutputCBOR   = "cbor"
	OutputPretty = "pretty"
)

// Config is the complete CLI configuration.
type Config struct {
	// Encoding names the vocabulary: o200k_harmony, byte_level or a
	// standard tiktoken encoding.
	Encoding string `json:"encoding" yaml:"encoding" toml:"encoding"`

	// Ranks locates the o200k rank file: a path, a directory or a URL.
	// Empty uses TIKTOKEN_ENCODINGS_BASE or the public download.
	Ranks string `json:"ranks" yaml:"ranks" toml:"ranks"`

	Output   string   `json:"output" yaml:"output" toml:"output"`
	Render   Render   `json:"render" yaml:"render" toml:"render"`
	Parse    Parse    `json:"parse" yaml:"parse" toml:"parse"`
	Parallel Parallel `json:"parallel" yaml:"parallel" toml:"parallel"`
	Log      Log      `json:"log" yaml:"log" toml:"log"`
}

// Render configures conversation rendering.
type Render struct {
	// Literal renders conversations as given: no drop, no policy checks.
	Literal bool `json:"literal" yaml:"literal" toml:"literal"`

	DropReasoning   bool     `json:"drop_reasoning" yaml:"drop_reasoning" toml:"drop_reasoning"`
	DropScope       string   `json:"drop_scope" yaml:"drop_scope" toml:"drop_scope"`
	ValidChannels   []string `json:"valid_channels" yaml:"valid_channels" toml:"valid_channels"`
	ChannelRequired bool     `json:"channel_required" yaml:"channel_required" toml:"channel_required"`
	MustAppear      []string `json:"must_appear" yaml:"must_appear" toml:"must_appear"`
	EnforceTurns    bool     `json:"enforce_turns" yaml:"enforce_turns" toml:"enforce_turns"`
}

// Parse configures completion parsing.
type Parse struct {
	Role         string `json:"role" yaml:"role" toml:"role"`
	AllowPartial bool   `json:"allow_partial" yaml:"allow_partial" toml:"allow_partial"`

	// StructuredPreamble decodes system and developer messages into
	// preamble blocks instead of text.
	StructuredPreamble bool `json:"structured_preamble" yaml:"structured_preamble" toml:"structured_preamble"`
}

// Parallel configures parallel rendering.
type Parallel struct {
	Enabled  bool `json:"enabled" yaml:"enabled" toml:"enabled"`
	Workers  int  `json:"workers" yaml:"workers" toml:"workers"`
	MinChunk int  `json:"min_chunk" yaml:"min_chunk" toml:"min_chunk"`
	MinBytes int  `json:"min_bytes" yaml:"min_bytes" toml:"min_bytes"`
}

// Log configures the CLI logger.
type Log struct {
	Level       string `json:"level" yaml:"level" toml:"level"`
	Development bool   `json:"development" yaml:"development" toml:"development"`
}

// Default returns the gpt-oss conventions with JSON output.
func Default() *Config {
	pc := parallel.DefaultConfig()
	return &Config{
		Encoding: "o200k_harmony",
		Output:   OutputJSON,
		Render: Render{
			DropReasoning:   true,
			DropScope:       harmony.DropBeforeLastFinal.String(),
			ValidChannels:   []string{harmony.ChannelAnalysis, harmony.ChannelCommentary, harmony.ChannelFinal},
			ChannelRequired: true,
			EnforceTurns:    true,
		},
		Parallel: Parallel{
			Enabled:  pc.Enabled,
			Workers:  pc.NumWorkers,
			MinChunk: pc.MinChunkSize,
			MinBytes: 64 << 10,
		},
		Log: Log{Level: "warn"},
	}
}

// Load reads path over the defaults, picking the decoder from the file
// extension, then applies environment overrides and validates.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnvOverrides(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile decodes path into c. Keys missing from the file keep their
// current values.
func (c *Config) LoadFile(path string) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.DecodeFile(path, c); err != nil {
			return fmt.Errorf("config: decode TOML %s: %w", path, err)
		}
		return nil
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("config: decode YAML %s: %w", path, err)
		}
		return nil
	case ".json", ".jsonc":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if err := json.Unmarshal(jsonc.ToJSON(data), c); err != nil {
			return fmt.Errorf("config: decode JSON %s: %w", path, err)
		}
		return nil
	default:
		return fmt.Errorf("config: unsupported file type %q", ext)
	}
}

// ApplyEnvOverrides applies HARMONY_* variables found by lookup:
//
//	HARMONY_ENCODING, HARMONY_RANKS, HARMONY_OUTPUT
//	HARMONY_DROP_REASONING, HARMONY_DROP_SCOPE
//	HARMONY_PARALLEL, HARMONY_WORKERS
//	HARMONY_LOG_LEVEL, HARMONY_LOG_DEV
func (c *Config) ApplyEnvOverrides(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v == "1" || strings.EqualFold(v, "true")
		}
	}

	str("HARMONY_ENCODING", &c.Encoding)
	str("HARMONY_RANKS", &c.Ranks)
	str("HARMONY_OUTPUT", &c.Output)
	flag("HARMONY_DROP_REASONING", &c.Render.DropReasoning)
	str("HARMONY_DROP_SCOPE", &c.Render.DropScope)
	flag("HARMONY_PARALLEL", &c.Parallel.Enabled)
	if v, ok := lookup("HARMONY_WORKERS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.Parallel.Workers = n
		}
	}
	str("HARMONY_LOG_LEVEL", &c.Log.Level)
	flag("HARMONY_LOG_DEV", &c.Log.Development)
}

// ValidationError is a single invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors collects every invalid field.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return "config: " + strings.Join(msgs, "; ")
}

// Validate checks field values.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.Encoding == "" {
		errs = append(errs, ValidationError{"encoding", "must not be empty"})
	}
	switch c.Output {
	case OutputJSON, OutputYAML, OutputCBOR, OutputPretty:
	default:
		errs = append(errs, ValidationError{"output", fmt.Sprintf("invalid format %q, must be one of: json, yaml, cbor, pretty", c.Output)})
	}
	if _, ok := harmony.ParseDropScope(c.Render.DropScope); !ok {
		errs = append(errs, ValidationError{"render.drop_scope", fmt.Sprintf("invalid scope %q, must be last_final or first_final", c.Render.DropScope)})
	}
	if c.Parse.Role != "" && !harmony.Role(c.Parse.Role).Valid() {
		errs = append(errs, ValidationError{"parse.role", fmt.Sprintf("unknown role %q", c.Parse.Role)})
	}
	if c.Parallel.Workers < 0 {
		errs = append(errs, ValidationError{"parallel.workers", "must not be negative"})
	}
	if c.Parallel.MinBytes < 0 {
		errs = append(errs, ValidationError{"parallel.min_bytes", "must not be negative"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// RenderConfig returns the codec render configuration, nil when Literal.
func (c *Config) RenderConfig() *harmony.RenderConfig {
	if c.Render.Literal {
		return nil
	}
	scope, _ := harmony.ParseDropScope(c.Render.DropScope)
	rc := &harmony.RenderConfig{
		AutoDropPreviousReasoning: c.Render.DropReasoning,
		DropScope:                 scope,
	}
	if len(c.Render.ValidChannels) > 0 || c.Render.ChannelRequired || len(c.Render.MustAppear) > 0 {
		rc.Channels = &harmony.ChannelPolicy{
			Valid:      c.Render.ValidChannels,
			Required:   c.Render.ChannelRequired,
			MustAppear: c.Render.MustAppear,
		}
	}
	if c.Render.EnforceTurns {
		rc.Turns = harmony.HarmonyTurns()
	}
	return rc
}

// ParseConfig returns the codec parse configuration.
func (c *Config) ParseConfig() harmony.ParseConfig {
	pc := harmony.ParseConfig{
		Role:         harmony.Role(c.Parse.Role),
		AllowPartial: c.Parse.AllowPartial,
	}
	if c.Parse.StructuredPreamble {
		pc.Blocks = map[harmony.Role]harmony.ContentType{
			harmony.RoleSystem:    preamble.KindSystem,
			harmony.RoleDeveloper: preamble.KindDeveloper,
		}
	}
	return pc
}

// ParallelConfig returns the fan-out configuration and the rendered-size
// threshold below which rendering stays sequential.
func (c *Config) ParallelConfig() (parallel.Config, int) {
	pc := parallel.DefaultConfig()
	pc.Enabled = c.Parallel.Enabled
	if c.Parallel.Workers > 0 {
		pc.NumWorkers = c.Parallel.Workers
	}
	if c.Parallel.MinChunk > 0 {
		pc.MinChunkSize = c.Parallel.MinChunk
	}
	return pc, c.Parallel.MinBytes
}
