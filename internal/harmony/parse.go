package harmony

// ParseMessagesFromCompletionTokens parses completion tokens into messages.
// See ParseCompletion.
func (e *Encoding) ParseMessagesFromCompletionTokens(tokens []int32, cfg ParseConfig) ([]Message, error) {
	msgs, _, err := e.ParseCompletion(tokens, cfg)
	return msgs, err
}

// ParseCompletion parses tokens into messages and the terminator that ended
// each one. It produces exactly what feeding tokens to a StreamParser
// followed by ProcessEOS produces. Input that ends inside a message fails
// with *UnterminatedMessageError unless cfg.AllowPartial is set.
func (e *Encoding) ParseCompletion(tokens []int32, cfg ParseConfig) ([]Message, []Terminator, error) {
	p := e.NewStreamParser(cfg)
	for _, tok := range tokens {
		if err := p.Process(tok); err != nil {
			return nil, nil, err
		}
	}
	if p.InProgress() && !cfg.AllowPartial {
		return nil, nil, &UnterminatedMessageError{Position: len(tokens), State: p.State()}
	}
	if err := p.ProcessEOS(); err != nil {
		return nil, nil, err
	}
	if p.messages == nil {
		return []Message{}, []Terminator{}, nil
	}
	return p.messages, p.terminators, nil
}
