package prove

import (
	"math"

	"github.com/cognicore/stochlog/pkg/stochlog/proofgraph"
	"github.com/cognicore/stochlog/pkg/stochlog/weight"
)

// AlphaBuffer keeps the restart rescaling denominator positive when alpha
// is 1 or close to it.
const AlphaBuffer = 1e-16

// PowerIterationProver walks MaxDepth synchronous steps from the start
// node. At every node the restart edge's weight is rescaled so that the
// walk restarts with probability Alpha; the remaining mass follows the
// other edges by weight. Iteration stops early once the L1 change between
// steps drops below Epsilon. Alpha may be 1, in which case almost all mass
// returns to the start at every step.
type PowerIterationProver struct {
	w        weight.Weighter
	alpha    float64
	epsilon  float64
	maxDepth int
}

func NewPowerIterationProver(w weight.Weighter, alpha, epsilon float64, maxDepth int) *PowerIterationProver {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultAlpha
	}
	if epsilon <= 0 {
		epsilon = DefaultEpsilon
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &PowerIterationProver{w: w, alpha: alpha, epsilon: epsilon, maxDepth: maxDepth}
}

func (p *PowerIterationProver) Name() string { return "power" }

func (p *PowerIterationProver) Copy() Prover {
	c := *p
	return &c
}

func (p *PowerIterationProver) Prove(g proofgraph.Graph, status *StatusLogger) (Distribution, error) {
	status.Start()
	cur := NewFloatVector(g.NodeCount())
	cur.Set(g.StartID(), 1)

	converged := false
	for depth := 0; depth < p.maxDepth; depth++ {
		next := NewFloatVector(g.NodeCount())
		for u := 0; u < cur.Len(); u++ {
			mass := cur.Get(u)
			if mass == 0 {
				continue
			}
			if err := p.step(g, u, mass, next); err != nil {
				return nil, err
			}
		}

		delta := 0.0
		n := max(cur.Len(), next.Len())
		for u := 0; u < n; u++ {
			delta += math.Abs(next.Get(u) - cur.Get(u))
		}
		cur = next
		status.Progress(p.Name(), depth+1, g.NodeCount(), delta)
		if delta < p.epsilon {
			converged = true
			break
		}
	}
	if !converged {
		status.Bound(p.Name(), "max_depth", p.maxDepth)
	}
	return cur.Distribution().Normalize(), nil
}

// step spreads mass from u into next.
func (p *PowerIterationProver) step(g proofgraph.Graph, u int, mass float64, next *FloatVector) error {
	edges, err := g.Outlinks(u)
	if err != nil {
		return err
	}
	succ := successors(edges)
	if len(succ) == 0 {
		next.Add(g.StartID(), mass)
		return nil
	}
	ws, z := edgeWeights(p.w, succ)
	restart := p.alpha * z / math.Max(1-p.alpha, AlphaBuffer)
	total := z + restart
	next.Add(g.StartID(), mass*restart/total)
	for i, e := range succ {
		next.Add(e.To, mass*ws[i]/total)
	}
	return nil
}
