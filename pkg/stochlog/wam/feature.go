package wam

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/cognicore/stochlog/pkg/stochlog/internalerr"
)

// Feature is the canonical text of a ground feature goal, e.g. "id(r,2,1)".
type Feature string

// NewFeature renders a ground goal as a Feature.
func NewFeature(functor string, args ...string) Feature {
	if len(args) == 0 {
		return Feature(functor)
	}
	return Feature(functor + "(" + strings.Join(args, ",") + ")")
}

// WeightedSuffix marks a feature functor whose last argument is a numeric
// weight rather than part of the feature's identity.
const WeightedSuffix = "#"

// FeatureDict maps features to their weights on one edge.
type FeatureDict map[Feature]float64

// Merge adds o's weights into d and returns d, allocating when d is nil.
func (d FeatureDict) Merge(o FeatureDict) FeatureDict {
	if len(o) == 0 {
		return d
	}
	if d == nil {
		d = make(FeatureDict, len(o))
	}
	for f, w := range o {
		d[f] += w
	}
	return d
}

// Clone returns an independent copy.
func (d FeatureDict) Clone() FeatureDict {
	if d == nil {
		return nil
	}
	out := make(FeatureDict, len(d))
	for f, w := range d {
		out[f] = w
	}
	return out
}

// Add accumulates w onto f.
func (d FeatureDict) Add(f Feature, w float64) { d[f] += w }

// Keys returns the features in lexical order.
func (d FeatureDict) Keys() []Feature {
	out := make([]Feature, 0, len(d))
	for f := range d {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// String renders f=w pairs in key order.
func (d FeatureDict) String() string {
	var b strings.Builder
	for i, f := range d.Keys() {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(string(f))
		b.WriteByte('=')
		b.WriteString(strconv.FormatFloat(d[f], 'g', -1, 64))
	}
	return b.String()
}

// featureBuilder accumulates a feature goal between fpushstart and freport.
type featureBuilder struct {
	functor string
	arity   int
	args    []string
}

func (fb *featureBuilder) build() (Feature, float64, error) {
	if len(fb.args) != fb.arity {
		return "", 0, fmt.Errorf("feature %s/%d built with %d arguments", fb.functor, fb.arity, len(fb.args))
	}
	name, weighted := strings.CutSuffix(fb.functor, WeightedSuffix)
	if !weighted {
		return NewFeature(fb.functor, fb.args...), 1, nil
	}
	if len(fb.args) == 0 {
		return "", 0, fmt.Errorf("%w: weighted feature %s has no weight argument", internalerr.ErrInvalidInput, fb.functor)
	}
	last := len(fb.args) - 1
	w, err := strconv.ParseFloat(fb.args[last], 64)
	if err != nil {
		return "", 0, fmt.Errorf("%w: weighted feature %s: %v", internalerr.ErrInvalidInput, fb.functor, err)
	}
	return NewFeature(name, fb.args[:last]...), w, nil
}

// FeatureTable interns features as dense ids starting at 1. It is safe for
// concurrent use.
type FeatureTable struct {
	mu    sync.RWMutex
	ids   map[Feature]int
	names []Feature
}

// NewFeatureTable returns an empty table.
func NewFeatureTable() *FeatureTable {
	return &FeatureTable{ids: make(map[Feature]int)}
}

// ID returns f's id, assigning the next one on first sight.
func (t *FeatureTable) ID(f Feature) int {
	t.mu.RLock()
	id, ok := t.ids[f]
	t.mu.RUnlock()
	if ok {
		return id
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.ids[f]; ok {
		return id
	}
	t.names = append(t.names, f)
	id = len(t.names)
	t.ids[f] = id
	return id
}

// Lookup returns f's id without assigning one.
func (t *FeatureTable) Lookup(f Feature) (int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.ids[f]
	return id, ok
}

// Feature returns the feature with the given id.
func (t *FeatureTable) Feature(id int) (Feature, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if id < 1 || id > len(t.names) {
		return "", false
	}
	return t.names[id-1], true
}

// Len is the number of interned features.
func (t *FeatureTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.names)
}

// Features lists the interned features in id order.
func (t *FeatureTable) Features() []Feature {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Feature(nil), t.names...)
}
