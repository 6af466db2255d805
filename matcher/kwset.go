package matcher

import (
	"github.com/coregx/ahocorasick"
)

// kwset is the keyword stage: an Aho-Corasick automaton over the literal
// strings any match must contain, with a content-to-index table so a hit
// can be mapped back to the entry that produced it.
type kwset struct {
	auto  *ahocorasick.Automaton
	index map[string]int
}

// newKwset builds the automaton. Entry order matters: exact entries come
// first so that index < exactCount identifies definitive hits. Duplicate
// literals keep their smallest (most exact) index.
func newKwset(lits []string) (*kwset, error) {
	builder := ahocorasick.NewBuilder()
	index := make(map[string]int, len(lits))
	for i, lit := range lits {
		builder.AddPattern([]byte(lit))
		if _, ok := index[lit]; !ok {
			index[lit] = i
		}
	}
	auto, err := builder.Build()
	if err != nil {
		return nil, err
	}
	return &kwset{auto: auto, index: index}, nil
}

// find returns the leftmost keyword hit at or after position at, along
// with the index of the matching entry, or idx == -1 on a miss.
func (k *kwset) find(buf []byte, at int) (start, end, idx int) {
	m := k.auto.Find(buf, at)
	if m == nil {
		return 0, 0, -1
	}
	return m.Start, m.End, k.index[string(buf[m.Start:m.End])]
}
