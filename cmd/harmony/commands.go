package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/born-ml/harmony/harmony"
	"github.com/born-ml/harmony/internal/decode"
	"github.com/born-ml/harmony/internal/transcript"
)

// start parses flags and sets up an app. extra registers command flags.
func start(e *env, name string, args []string, extra func(*pflag.FlagSet)) (*app, error) {
	a := &app{env: e}
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	a.flags.add(fs)
	if extra != nil {
		extra(fs)
	}
	if err := parseFlags(e, fs, args); err != nil {
		return nil, err
	}
	if err := a.setup(); err != nil {
		return nil, err
	}
	return a, nil
}

func ignoreHelp(err error) error {
	if errors.Is(err, errHelp) {
		return nil
	}
	return err
}

// renderFlags are shared by the conversation rendering commands.
type renderFlags struct {
	literal bool
}

func (r *renderFlags) add(fs *pflag.FlagSet) {
	fs.BoolVar(&r.literal, "literal", false, "render as given: no reasoning drop, no policy checks")
}

func (r *renderFlags) config(a *app) *harmony.RenderConfig {
	if r.literal {
		return nil
	}
	return a.cfg.RenderConfig()
}

func runRender(e *env, args []string) error {
	var rf renderFlags
	a, err := start(e, "render", args, rf.add)
	if err != nil {
		return ignoreHelp(err)
	}
	defer a.close()

	conv, err := a.readConversation()
	if err != nil {
		return err
	}
	tokens, err := a.enc.RenderConversation(conv, rf.config(a))
	if err != nil {
		return err
	}
	return a.writeTokens(tokens)
}

func runComplete(e *env, args []string) error {
	var (
		rf   renderFlags
		role string
	)
	a, err := start(e, "complete", args, func(fs *pflag.FlagSet) {
		rf.add(fs)
		fs.StringVar(&role, "role", string(harmony.RoleAssistant), "role of the next message")
	})
	if err != nil {
		return ignoreHelp(err)
	}
	defer a.close()

	conv, err := a.readConversation()
	if err != nil {
		return err
	}
	tokens, err := a.enc.RenderConversationForCompletion(conv, harmony.Role(role), rf.config(a))
	if err != nil {
		return err
	}
	return a.writeTokens(tokens)
}

func runTrain(e *env, args []string) error {
	var rf renderFlags
	a, err := start(e, "train", args, rf.add)
	if err != nil {
		return ignoreHelp(err)
	}
	defer a.close()

	conv, err := a.readConversation()
	if err != nil {
		return err
	}
	tokens, err := a.enc.RenderConversationForTraining(conv, rf.config(a))
	if err != nil {
		return err
	}
	return a.writeTokens(tokens)
}

func runMessage(e *env, args []string) error {
	a, err := start(e, "message", args, nil)
	if err != nil {
		return ignoreHelp(err)
	}
	defer a.close()

	r, err := a.open()
	if err != nil {
		return err
	}
	defer r.Close()
	msg, err := transcript.ReadMessage(r, a.inputFormat())
	if err != nil {
		return err
	}
	tokens, err := a.enc.RenderMessage(msg)
	if err != nil {
		return err
	}
	return a.writeTokens(tokens)
}

// parseOverrides override the configured parse settings.
type parseOverrides struct {
	role       string
	partial    bool
	structured bool
}

func (p *parseOverrides) add(fs *pflag.FlagSet) {
	fs.StringVar(&p.role, "role", "", "author of a first message whose header omits it")
	fs.BoolVar(&p.partial, "partial", false, "accept input that ends inside a message")
	fs.BoolVar(&p.structured, "structured", false, "decode system and developer messages into preamble blocks")
}

func (p *parseOverrides) config(a *app) harmony.ParseConfig {
	if p.role != "" {
		a.cfg.Parse.Role = p.role
	}
	if p.partial {
		a.cfg.Parse.AllowPartial = true
	}
	if p.structured {
		a.cfg.Parse.StructuredPreamble = true
	}
	return a.cfg.ParseConfig()
}

func runParse(e *env, args []string) error {
	var po parseOverrides
	a, err := start(e, "parse", args, po.add)
	if err != nil {
		return ignoreHelp(err)
	}
	defer a.close()

	tokens, err := a.readTokens()
	if err != nil {
		return err
	}
	msgs, terms, err := a.enc.ParseCompletion(tokens, po.config(a))
	if err != nil {
		return err
	}
	w, err := a.writer()
	if err != nil {
		return err
	}
	return w.WriteResult(transcript.Result{Messages: msgs, Terminators: terms})
}

func runStream(e *env, args []string) error {
	var po parseOverrides
	a, err := start(e, "stream", args, po.add)
	if err != nil {
		return ignoreHelp(err)
	}
	defer a.close()

	tokens, err := a.readTokens()
	if err != nil {
		return err
	}

	p := a.enc.NewStreamParser(po.config(a))
	emit := func() error {
		line, err := p.StateJSON()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(a.stdout, "%s\n", line)
		return err
	}
	for _, tok := range tokens {
		if err := p.Process(tok); err != nil {
			return err
		}
		if err := emit(); err != nil {
			return err
		}
	}
	if err := p.ProcessEOS(); err != nil {
		return err
	}
	return emit()
}

func runDecode(e *env, args []string) error {
	var (
		maxTokens int
		stops     []int32
		role      string
		strict    bool
	)
	a, err := start(e, "decode", args, func(fs *pflag.FlagSet) {
		fs.IntVar(&maxTokens, "max-tokens", 0, "stop after this many tokens (0 for no limit)")
		fs.Int32SliceVar(&stops, "stop", nil, "stop token ids (default <|return|> and <|call|>)")
		fs.StringVar(&role, "role", string(harmony.RoleAssistant), "role the completion was sampled for")
		fs.BoolVar(&strict, "strict", false, "fail when the tokens end inside a message")
	})
	if err != nil {
		return ignoreHelp(err)
	}
	defer a.close()

	tokens, err := a.readTokens()
	if err != nil {
		return err
	}

	cfg := decode.DefaultConfig()
	cfg.MaxTokens = maxTokens
	cfg.StopTokens = stops
	cfg.Parse = a.cfg.ParseConfig()
	cfg.Parse.Role = harmony.Role(role)
	cfg.Parse.AllowPartial = !strict

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	src := make(chan int32)
	go func() {
		defer close(src)
		for _, tok := range tokens {
			select {
			case src <- tok:
			case <-ctx.Done():
				return
			}
		}
	}()

	session := decode.NewSession(a.enc, cfg, decode.WithLogger(a.log))
	var last decode.Event
	for ev := range session.Stream(ctx, src) {
		last = ev
	}
	// Unblock the feeder when the session stopped early.
	cancel()

	if last.Err != nil {
		return last.Err
	}
	a.log.Debug("decode finished", zap.String("session", session.ID()), zap.String("reason", last.Reason))

	w, err := a.writer()
	if err != nil {
		return err
	}
	p := session.Parser()
	return w.WriteResult(transcript.Result{
		Messages:    p.Messages(),
		Terminators: p.Terminators(),
		Tokens:      p.Tokens(),
		Reason:      last.Reason,
	})
}

func runEncode(e *env, args []string) error {
	a, err := start(e, "encode", args, nil)
	if err != nil {
		return ignoreHelp(err)
	}
	defer a.close()

	r, err := a.open()
	if err != nil {
		return err
	}
	defer r.Close()
	text, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	tokens, err := a.enc.EncodeText(string(text))
	if err != nil {
		return err
	}
	return a.writeTokens(tokens)
}

func runText(e *env, args []string) error {
	a, err := start(e, "text", args, nil)
	if err != nil {
		return ignoreHelp(err)
	}
	defer a.close()

	tokens, err := a.readTokens()
	if err != nil {
		return err
	}
	text, err := a.enc.Decode(tokens)
	if err != nil {
		return err
	}
	_, err = io.WriteString(a.stdout, text)
	return err
}

func runStop(e *env, args []string) error {
	var actions bool
	a, err := start(e, "stop", args, func(fs *pflag.FlagSet) {
		fs.BoolVar(&actions, "actions", false, "only the tokens that end an assistant turn")
	})
	if err != nil {
		return ignoreHelp(err)
	}
	defer a.close()

	if actions {
		return a.writeTokens(a.enc.StopTokensForAssistantActions())
	}
	return a.writeTokens(a.enc.StopTokens())
}

func runVersion(e *env, _ []string) error {
	_, err := fmt.Fprintf(e.stdout, "harmony %s\n", version)
	return err
}
