package weight

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/cognicore/stochlog/pkg/stochlog/internalerr"
	"github.com/cognicore/stochlog/pkg/stochlog/wam"
)

// ParamVector maps features to learned parameter values. It is safe for
// concurrent use.
type ParamVector struct {
	mu     sync.RWMutex
	values map[wam.Feature]float64
}

// NewParamVector returns an empty vector.
func NewParamVector() *ParamVector {
	return &ParamVector{values: make(map[wam.Feature]float64)}
}

// Get returns the value for f and whether it is set.
func (p *ParamVector) Get(f wam.Feature) (float64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.values[f]
	return v, ok
}

func (p *ParamVector) Set(f wam.Feature, v float64) {
	p.mu.Lock()
	p.values[f] = v
	p.mu.Unlock()
}

// Add increments f by delta, starting from base when unset.
func (p *ParamVector) Add(f wam.Feature, delta, base float64) {
	p.mu.Lock()
	v, ok := p.values[f]
	if !ok {
		v = base
	}
	p.values[f] = v + delta
	p.mu.Unlock()
}

func (p *ParamVector) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.values)
}

// Features returns the set features in lexical order.
func (p *ParamVector) Features() []wam.Feature {
	p.mu.RLock()
	out := make([]wam.Feature, 0, len(p.values))
	for f := range p.values {
		out = append(out, f)
	}
	p.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Save writes "feature\tvalue" lines in feature order.
func (p *ParamVector) Save(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, f := range p.Features() {
		v, _ := p.Get(f)
		fmt.Fprintf(bw, "%s\t%s\n", f, strconv.FormatFloat(v, 'g', -1, 64))
	}
	return bw.Flush()
}

// LoadParams reads a vector written by Save. Lines starting with '#' are
// skipped.
func LoadParams(r io.Reader) (*ParamVector, error) {
	p := NewParamVector()
	sc := bufio.NewScanner(r)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		f, v, ok := strings.Cut(line, "\t")
		if !ok {
			return nil, fmt.Errorf("%w: params line %d: missing tab", internalerr.ErrInvalidInput, lineNum)
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: params line %d: %v", internalerr.ErrInvalidInput, lineNum, err)
		}
		p.values[wam.Feature(f)] = x
	}
	return p, sc.Err()
}
