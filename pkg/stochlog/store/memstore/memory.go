package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/cognicore/stochlog/pkg/stochlog/store"
)

// Store is an in-memory implementation of store.Store for tests and
// in-process fact tables.
type Store struct {
	mu         sync.RWMutex
	facts      map[string][]store.Fact // signature → facts in insertion order
	index      map[string]int          // signature + args → position in facts
	groundings map[string][]store.Grounding
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		facts:      make(map[string][]store.Fact),
		index:      make(map[string]int),
		groundings: make(map[string][]store.Grounding),
	}
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

func factKey(f store.Fact) string {
	return f.Signature() + "\x00" + strings.Join(f.Args, "\x00")
}

// AddFact inserts a fact or replaces the weight of an existing one.
func (s *Store) AddFact(ctx context.Context, f store.Fact) error {
	if err := f.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f = copyFact(f)
	sig := f.Signature()
	key := factKey(f)
	if i, ok := s.index[key]; ok {
		s.facts[sig][i].Weight = f.Weight
		return nil
	}
	s.index[key] = len(s.facts[sig])
	s.facts[sig] = append(s.facts[sig], f)
	return nil
}

// FactsFor returns every fact of a predicate in insertion order.
func (s *Store) FactsFor(ctx context.Context, signature string) ([]store.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.facts[signature]
	out := make([]store.Fact, len(src))
	for i, f := range src {
		out[i] = copyFact(f)
	}
	return out, nil
}

// Lookup returns the facts of a predicate whose argument at position equals
// value.
func (s *Store) Lookup(ctx context.Context, signature string, position int, value string) ([]store.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.Fact
	for _, f := range s.facts[signature] {
		if position >= 0 && position < len(f.Args) && f.Args[position] == value {
			out = append(out, copyFact(f))
		}
	}
	return out, nil
}

// Signatures lists the stored predicates in lexical order.
func (s *Store) Signatures(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.facts))
	for sig := range s.facts {
		out = append(out, sig)
	}
	sort.Strings(out)
	return out, nil
}

// SaveGrounding archives one grounded line.
func (s *Store) SaveGrounding(ctx context.Context, g store.Grounding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groundings[g.RunID] = append(s.groundings[g.RunID], g)
	return nil
}

// Groundings returns a run's lines ordered by ID.
func (s *Store) Groundings(ctx context.Context, runID string) ([]store.Grounding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := append([]store.Grounding(nil), s.groundings[runID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func copyFact(f store.Fact) store.Fact {
	f.Args = append([]string(nil), f.Args...)
	return f
}
