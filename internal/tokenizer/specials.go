package tokenizer

import (
	"fmt"
	"maps"
	"sync"
)

// o200k_harmony special token IDs.
const (
	TokStartOfText int32 = 199998
	TokEndOfText   int32 = 199999
	TokReturn      int32 = 200002
	TokConstrain   int32 = 200003
	TokChannel     int32 = 200005
	TokStart       int32 = 200006
	TokEnd         int32 = 200007
	TokMessage     int32 = 200008
	TokCall        int32 = 200012
)

// Reserved o200k_harmony IDs, inclusive. Each is spelled <|reserved_ID|>.
const (
	ReservedStart int32 = 200014
	ReservedEnd   int32 = 201088
)

// specialTable maps special token spellings to IDs and back.
type specialTable struct {
	byName map[string]int32
	byID   map[int32]string
}

func newSpecialTable(byName map[string]int32) *specialTable {
	t := &specialTable{
		byName: byName,
		byID:   make(map[int32]string, len(byName)),
	}
	for name, id := range byName {
		t.byID[id] = name
	}
	return t
}

func (t *specialTable) id(name string) (int32, bool) {
	id, ok := t.byName[name]
	return id, ok
}

func (t *specialTable) name(id int32) (string, bool) {
	name, ok := t.byID[id]
	return name, ok
}

var harmonySpecials = sync.OnceValue(func() *specialTable {
	m := map[string]int32{
		"<|startoftext|>": TokStartOfText,
		"<|endoftext|>":   TokEndOfText,
		"<|return|>":      TokReturn,
		"<|constrain|>":   TokConstrain,
		"<|channel|>":     TokChannel,
		"<|start|>":       TokStart,
		"<|end|>":         TokEnd,
		"<|message|>":     TokMessage,
		"<|call|>":        TokCall,
	}
	for id := ReservedStart; id <= ReservedEnd; id++ {
		m[fmt.Sprintf("<|reserved_%d|>", id)] = id
	}
	return newSpecialTable(m)
})

// HarmonySpecialTokens returns a copy of the o200k_harmony special token
// table, reserved tokens included.
func HarmonySpecialTokens() map[string]int32 {
	return maps.Clone(harmonySpecials().byName)
}
