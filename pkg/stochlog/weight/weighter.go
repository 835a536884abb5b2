package weight

import (
	"sync"
	"sync/atomic"

	"github.com/cognicore/stochlog/pkg/stochlog/wam"
)

// Weighter scores an edge from its feature set.
type Weighter interface {
	W(fd wam.FeatureDict) float64
}

// FeatureWeighter computes
//
//	W(fd) = squash(Σ_f param(f) · fd[f])
//
// where unset parameters take the squashing function's default value.
type FeatureWeighter struct {
	params    *ParamVector
	squashing SquashingFunction
}

// NewFeatureWeighter builds a weighter. A nil params vector means every
// feature takes the default value.
func NewFeatureWeighter(params *ParamVector, squashing SquashingFunction) *FeatureWeighter {
	if params == nil {
		params = NewParamVector()
	}
	if squashing == nil {
		squashing = relu{}
	}
	return &FeatureWeighter{params: params, squashing: squashing}
}

func (w *FeatureWeighter) Params() *ParamVector         { return w.params }
func (w *FeatureWeighter) Squashing() SquashingFunction { return w.squashing }

func (w *FeatureWeighter) W(fd wam.FeatureDict) float64 {
	return w.squashing.Compute(w.score(fd))
}

// Derivative is d squash / d score at fd's score, for trainers.
func (w *FeatureWeighter) Derivative(fd wam.FeatureDict) float64 {
	return w.squashing.ComputeDerivative(w.score(fd))
}

func (w *FeatureWeighter) score(fd wam.FeatureDict) float64 {
	def := w.squashing.DefaultValue()
	var sum float64
	for _, f := range fd.Keys() {
		p, ok := w.params.Get(f)
		if !ok {
			p = def
		}
		sum += p * fd[f]
	}
	return sum
}

// LazyClock counts training steps and remembers, per feature, the step at
// which it was last brought up to date. Regularisers use Gap to apply the
// updates a feature missed while it was not touched.
type LazyClock struct {
	now  atomic.Int64
	last sync.Map // wam.Feature -> *atomic.Int64
}

// Tick advances the clock and returns the new time.
func (c *LazyClock) Tick() int64 { return c.now.Add(1) }

// Now returns the current time.
func (c *LazyClock) Now() int64 { return c.now.Load() }

// Touch records that f is up to date as of now.
func (c *LazyClock) Touch(f wam.Feature) {
	v, _ := c.last.LoadOrStore(f, new(atomic.Int64))
	v.(*atomic.Int64).Store(c.now.Load())
}

// Gap is the number of ticks since f was last touched. It is never
// negative; unseen features report the whole clock.
func (c *LazyClock) Gap(f wam.Feature) int64 {
	now := c.now.Load()
	v, ok := c.last.Load(f)
	if !ok {
		return now
	}
	if g := now - v.(*atomic.Int64).Load(); g > 0 {
		return g
	}
	return 0
}
