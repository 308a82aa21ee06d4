package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/harmony/internal/tokenizer"
)

// runCLI runs the command offline against the byte-level vocabulary.
func runCLI(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	if len(args) > 0 {
		args = append(args, "--encoding", "byte_level")
	}
	err := run(args, strings.NewReader(stdin), &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func bytesOf(s string) []int32 {
	out := make([]int32, len(s))
	for i := 0; i < len(s); i++ {
		out[i] = int32(s[i])
	}
	return out
}

func cat(parts ...[]int32) []int32 {
	var out []int32
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func one(id int32) []int32 { return []int32{id} }

func tokensJSON(t *testing.T, toks []int32) string {
	t.Helper()
	b, err := json.Marshal(toks)
	require.NoError(t, err)
	return string(b)
}

func decodeTokens(t *testing.T, out string) []int32 {
	t.Helper()
	var toks []int32
	require.NoError(t, json.Unmarshal([]byte(out), &toks))
	return toks
}

const userHi = `[{"role": "user", "content": "hi"}]`

func userHiTokens() []int32 {
	return cat(one(tokenizer.TokStart), bytesOf("user"), one(tokenizer.TokMessage), bytesOf("hi"), one(tokenizer.TokEnd))
}

func TestRun_Usage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.NoError(t, run(nil, strings.NewReader(""), &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Usage: harmony <command>")
	assert.Contains(t, stderr.String(), "render")

	err := run([]string{"frobnicate"}, strings.NewReader(""), &stdout, &stderr)
	require.Error(t, err)
	var coder interface{ ExitCode() int }
	require.True(t, errors.As(err, &coder))
	assert.Equal(t, 2, coder.ExitCode())
}

func TestRun_Version(t *testing.T) {
	var stdout bytes.Buffer
	require.NoError(t, run([]string{"version"}, nil, &stdout, &bytes.Buffer{}))
	assert.Equal(t, "harmony "+version+"\n", stdout.String())
}

func TestRun_Help(t *testing.T) {
	_, stderr, err := runCLI(t, "", "render", "--help")
	require.NoError(t, err)
	assert.Contains(t, stderr, "--literal")
}

func TestRun_BadFlag(t *testing.T) {
	_, _, err := runCLI(t, "", "render", "--no-such-flag")
	require.Error(t, err)
	var uerr *usageError
	assert.True(t, errors.As(err, &uerr))
}

func TestRun_Render(t *testing.T) {
	out, _, err := runCLI(t, userHi, "render")
	require.NoError(t, err)
	assert.Equal(t, userHiTokens(), decodeTokens(t, out))
}

func TestRun_RenderFromYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conv.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- role: user\n  content: hi\n"), 0o600))

	out, _, err := runCLI(t, "", "render", "--input", path)
	require.NoError(t, err)
	assert.Equal(t, userHiTokens(), decodeTokens(t, out))
}

func TestRun_RenderValidation(t *testing.T) {
	conv := `[{"role": "assistant", "content": "no channel"}]`

	_, _, err := runCLI(t, conv, "render")
	require.Error(t, err, "default config requires channels")

	_, _, err = runCLI(t, conv, "render", "--literal")
	require.NoError(t, err)
}

func TestRun_Complete(t *testing.T) {
	out, _, err := runCLI(t, userHi, "complete")
	require.NoError(t, err)
	want := cat(userHiTokens(), one(tokenizer.TokStart), bytesOf("assistant"))
	assert.Equal(t, want, decodeTokens(t, out))
}

func TestRun_Train(t *testing.T) {
	conv := `[{"role": "user", "content": "hi"}, {"role": "assistant", "channel": "final", "content": "yo"}]`
	out, _, err := runCLI(t, conv, "train")
	require.NoError(t, err)
	toks := decodeTokens(t, out)
	assert.Equal(t, tokenizer.TokReturn, toks[len(toks)-1])
}

func TestRun_Message(t *testing.T) {
	out, _, err := runCLI(t, `{"role": "user", "content": "hi"}`, "message")
	require.NoError(t, err)
	assert.Equal(t, userHiTokens(), decodeTokens(t, out))
}

func TestRun_Parse(t *testing.T) {
	out, _, err := runCLI(t, tokensJSON(t, userHiTokens()), "parse")
	require.NoError(t, err)
	assert.JSONEq(t, `{"messages": [{"role": "user", "content": "hi"}], "terminators": ["end"]}`, out)

	truncated := cat(one(tokenizer.TokStart), bytesOf("user"), one(tokenizer.TokMessage), bytesOf("h"))
	_, _, err = runCLI(t, tokensJSON(t, truncated), "parse")
	require.Error(t, err)

	out, _, err = runCLI(t, tokensJSON(t, truncated), "parse", "--partial")
	require.NoError(t, err)
	assert.JSONEq(t, `{"messages": [{"role": "user", "content": "h"}], "terminators": ["eos"]}`, out)
}

func TestRun_Stream(t *testing.T) {
	out, _, err := runCLI(t, tokensJSON(t, userHiTokens()), "stream")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, len(userHiTokens())+1)

	var last map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &last))
	assert.Equal(t, "Ended", last["state"])
	assert.Len(t, last["messages"], 1)

	var mid map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[6]), &mid))
	assert.Equal(t, "Content", mid["state"])
	assert.Equal(t, "h", mid["current_content"])
}

func TestRun_Decode(t *testing.T) {
	completion := cat(
		one(tokenizer.TokChannel), bytesOf("final"), one(tokenizer.TokMessage), bytesOf("4"), one(tokenizer.TokReturn),
		bytesOf("ignored"),
	)

	out, _, err := runCLI(t, tokensJSON(t, completion), "decode")
	require.NoError(t, err)

	var res struct {
		Messages []map[string]any `json:"messages"`
		Tokens   []int32          `json:"tokens"`
		Reason   string           `json:"reason"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "stop_token", res.Reason)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, "4", res.Messages[0]["content"])
	assert.Len(t, res.Tokens, 9, "tokens after the stop token are not consumed")

	out, _, err = runCLI(t, tokensJSON(t, completion), "decode", "--max-tokens", "3")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "max_tokens", res.Reason)
}

func TestRun_EncodeText(t *testing.T) {
	out, _, err := runCLI(t, "<|start|>", "encode")
	require.NoError(t, err)
	toks := decodeTokens(t, out)
	assert.Equal(t, bytesOf("<|start|>"), toks)

	out, _, err = runCLI(t, tokensJSON(t, userHiTokens()), "text")
	require.NoError(t, err)
	assert.Equal(t, "<|start|>user<|message|>hi<|end|>", out)
}

func TestRun_Stop(t *testing.T) {
	out, _, err := runCLI(t, "", "stop")
	require.NoError(t, err)
	assert.ElementsMatch(t, []int32{tokenizer.TokReturn, tokenizer.TokCall, tokenizer.TokEnd}, decodeTokens(t, out))

	out, _, err = runCLI(t, "", "stop", "--actions", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "- 200002")
	assert.Contains(t, out, "- 200012")
}
