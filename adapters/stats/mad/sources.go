package mad

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"gooutlier/internal/distribution"
)

// sourceState holds the three windowed sketches kept per grouping key
type sourceState struct {
	value  *distribution.Context
	median *distribution.Context
	zscore *distribution.Context
}

func newSourceState(accuracy float64) *sourceState {
	return &sourceState{
		value:  distribution.NewContext(accuracy),
		median: distribution.NewContext(accuracy),
		zscore: distribution.NewContext(accuracy),
	}
}

// sourceTable creates state lazily on first lookup of a key
type sourceTable interface {
	get(key string) *sourceState
	peek(key string) (*sourceState, bool)
	len() int
}

// mapTable never forgets a key
type mapTable struct {
	accuracy float64
	states   map[string]*sourceState
}

func (t *mapTable) get(key string) *sourceState {
	s, ok := t.states[key]
	if !ok {
		s = newSourceState(t.accuracy)
		t.states[key] = s
	}
	return s
}

func (t *mapTable) peek(key string) (*sourceState, bool) {
	s, ok := t.states[key]
	return s, ok
}

func (t *mapTable) len() int { return len(t.states) }

// lruTable evicts the least recently seen key once full; an evicted source starts over
type lruTable struct {
	accuracy float64
	states   *lru.Cache[string, *sourceState]
}

func (t *lruTable) get(key string) *sourceState {
	if s, ok := t.states.Get(key); ok {
		return s
	}
	s := newSourceState(t.accuracy)
	t.states.Add(key, s)
	return s
}

func (t *lruTable) peek(key string) (*sourceState, bool) {
	return t.states.Peek(key)
}

func (t *lruTable) len() int { return t.states.Len() }

func newSourceTable(maxSources int, accuracy float64) (sourceTable, error) {
	if maxSources <= 0 {
		return &mapTable{accuracy: accuracy, states: make(map[string]*sourceState)}, nil
	}
	cache, err := lru.New[string, *sourceState](maxSources)
	if err != nil {
		return nil, err
	}
	return &lruTable{accuracy: accuracy, states: cache}, nil
}
