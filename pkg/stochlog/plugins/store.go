package plugins

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cognicore/stochlog/pkg/stochlog/store"
	"github.com/cognicore/stochlog/pkg/stochlog/wam"
)

// DefaultStoreCacheSize bounds the number of cached lookups.
const DefaultStoreCacheSize = 4096

// StorePlugin serves the predicates held in a store.Store. Lookups are
// cached; the plugin is safe to share between workers.
type StorePlugin struct {
	name  string
	st    store.Store
	cache *lru.Cache[string, []tuple]

	mu     sync.RWMutex
	labels map[string]int // signature → arity
}

// NewStorePlugin claims every signature currently in st.
func NewStorePlugin(ctx context.Context, name string, st store.Store, cacheSize int) (*StorePlugin, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultStoreCacheSize
	}
	cache, err := lru.New[string, []tuple](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("store plugin cache: %w", err)
	}
	p := &StorePlugin{name: name, st: st, cache: cache}
	if err := p.Refresh(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// Refresh reloads the claimed signatures and drops cached lookups.
func (p *StorePlugin) Refresh(ctx context.Context) error {
	sigs, err := p.st.Signatures(ctx)
	if err != nil {
		return fmt.Errorf("list signatures: %w", err)
	}
	labels := make(map[string]int, len(sigs))
	for _, sig := range sigs {
		i := strings.LastIndexByte(sig, '/')
		arity, err := strconv.Atoi(sig[i+1:])
		if i < 0 || err != nil {
			return fmt.Errorf("malformed signature %q", sig)
		}
		labels[sig] = arity
	}
	p.mu.Lock()
	p.labels = labels
	p.mu.Unlock()
	p.cache.Purge()
	return nil
}

func (p *StorePlugin) Name() string { return p.name }

func (p *StorePlugin) Claim(label string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.labels[label]
	return ok
}

func (p *StorePlugin) Outlinks(s *wam.State, m *wam.Interpreter, computeFeatures bool) ([]wam.Outlink, error) {
	sig := s.JumpTo()
	p.mu.RLock()
	arity, ok := p.labels[sig]
	p.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	bound := boundArgs(m, s, arity)
	pos := -1
	for i := 0; i < arity; i++ {
		if _, ok := bound[i]; ok {
			pos = i
			break
		}
	}
	rows, err := p.lookup(sig, pos, bound[pos])
	if err != nil {
		return nil, err
	}
	var tuples []tuple
	for _, row := range rows {
		if matches(row.args, bound) {
			tuples = append(tuples, row)
		}
	}
	return outlinks(p.name, s, m, arity, tuples, computeFeatures)
}

// lookup fetches the facts with value at pos, or all facts when pos < 0.
func (p *StorePlugin) lookup(sig string, pos int, value string) ([]tuple, error) {
	key := sig + "\x00" + strconv.Itoa(pos) + "\x00" + value
	if rows, ok := p.cache.Get(key); ok {
		return rows, nil
	}

	ctx := context.Background()
	var (
		facts []store.Fact
		err   error
	)
	if pos < 0 {
		facts, err = p.st.FactsFor(ctx, sig)
	} else {
		facts, err = p.st.Lookup(ctx, sig, pos, value)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", sig, err)
	}
	rows := make([]tuple, len(facts))
	for i, f := range facts {
		rows[i] = tuple{args: f.Args, weight: f.EffectiveWeight()}
	}
	p.cache.Add(key, rows)
	return rows, nil
}
