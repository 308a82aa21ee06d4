// Command harmony renders conversations into Harmony tokens and parses
// completion tokens back into messages.
//
// Usage:
//
//	harmony <command> [flags]
//
// Conversations are read as JSON (comments allowed) or YAML; token arrays
// as JSON or whitespace-separated integers. Results are written as JSON,
// YAML, CBOR or styled text.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

const version = "v0.1.0"

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		var coder interface{ ExitCode() int }
		if errors.As(err, &coder) {
			os.Exit(coder.ExitCode())
		}
		os.Exit(1)
	}
}

// command is one CLI subcommand.
type command struct {
	summary string
	run     func(env *env, args []string) error
}

var commands = map[string]command{
	"render":   {"render a conversation to tokens", runRender},
	"complete": {"render a conversation as a completion prompt", runComplete},
	"train":    {"render a conversation as a training example", runTrain},
	"message":  {"render a single message", runMessage},
	"parse":    {"parse completion tokens into messages", runParse},
	"stream":   {"parse tokens one at a time, printing parser state as JSON lines", runStream},
	"decode":   {"run a decode session over sampled tokens", runDecode},
	"encode":   {"encode text as ordinary tokens", runEncode},
	"text":     {"decode tokens to text, special tokens included", runText},
	"stop":     {"print the stop tokens", runStop},
	"version":  {"print the version", runVersion},
}

// env carries the process streams.
type env struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	e := &env{stdin: stdin, stdout: stdout, stderr: stderr}
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printUsage(stderr)
		return nil
	}
	if args[0] == "--version" {
		return runVersion(e, nil)
	}
	cmd, ok := commands[args[0]]
	if !ok {
		printUsage(stderr)
		return usageErrorf("unknown command %q", args[0])
	}
	return cmd.run(e, args[1:])
}

func printUsage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("Usage: harmony <command> [flags]\n\nCommands:\n")
	for _, name := range names {
		fmt.Fprintf(&sb, "  %-9s %s\n", name, commands[name].summary)
	}
	sb.WriteString("\nRun 'harmony <command> --help' for command flags.\n")
	fmt.Fprint(w, sb.String())
}

// usageError is a bad invocation; it exits with status 2.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func (e *usageError) ExitCode() int { return 2 }

func usageErrorf(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}
