package prove

import (
	"github.com/cognicore/stochlog/pkg/stochlog/proofgraph"
	"github.com/cognicore/stochlog/pkg/stochlog/weight"
)

// PprOptions configures the push-based personalised PageRank prover.
type PprOptions struct {
	// Alpha is the restart probability; each push keeps Alpha of the
	// pushed residual at the node.
	Alpha float64
	// Epsilon is the per-unit-degree residual below which a node is not
	// pushed.
	Epsilon float64
	// MaxIterations bounds the number of pushes.
	MaxIterations int
	// MaxNodes stops expanding new nodes once the graph holds this many.
	MaxNodes int
}

const (
	DefaultAlpha         = 0.1
	DefaultEpsilon       = 1e-4
	DefaultMaxIterations = 100000
	DefaultMaxNodes      = 10000
)

// DefaultPprOptions returns the defaults.
func DefaultPprOptions() PprOptions {
	return PprOptions{
		Alpha:         DefaultAlpha,
		Epsilon:       DefaultEpsilon,
		MaxIterations: DefaultMaxIterations,
		MaxNodes:      DefaultMaxNodes,
	}
}

// Validate replaces out-of-range values with defaults.
func (o *PprOptions) Validate() {
	if o.Alpha <= 0 || o.Alpha >= 1 {
		o.Alpha = DefaultAlpha
	}
	if o.Epsilon <= 0 {
		o.Epsilon = DefaultEpsilon
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	if o.MaxNodes <= 0 {
		o.MaxNodes = DefaultMaxNodes
	}
}

// PprProver approximates personalised PageRank from the start node by
// local pushes. A node u is pushed while its residual exceeds
// Epsilon·degree(u): Alpha of the residual settles at u and the rest is
// split over u's successors by edge weight. A node with no successors, or
// one past the node bound, sends that share back to the start node.
type PprProver struct {
	w    weight.Weighter
	opts PprOptions
}

func NewPprProver(w weight.Weighter, opts PprOptions) *PprProver {
	opts.Validate()
	return &PprProver{w: w, opts: opts}
}

func (p *PprProver) Name() string { return "ppr" }

func (p *PprProver) Copy() Prover { return &PprProver{w: p.w, opts: p.opts} }

func (p *PprProver) Options() PprOptions { return p.opts }

func (p *PprProver) Prove(g proofgraph.Graph, status *StatusLogger) (Distribution, error) {
	status.Start()
	start := g.StartID()
	settled := NewFloatVector(g.NodeCount())
	residual := NewFloatVector(g.NodeCount())
	residual.Set(start, 1)

	queue := []int{start}
	queued := map[int]bool{start: true}
	enqueue := func(id int) {
		if !queued[id] {
			queued[id] = true
			queue = append(queue, id)
		}
	}

	pushes := 0
	nodeBound := false
	for len(queue) > 0 {
		if pushes >= p.opts.MaxIterations {
			status.Bound(p.Name(), "max_iterations", p.opts.MaxIterations)
			break
		}
		u := queue[0]
		queue = queue[1:]
		delete(queued, u)

		var edges []proofgraph.Edge
		if g.Expanded(u) || g.NodeCount() < p.opts.MaxNodes {
			all, err := g.Outlinks(u)
			if err != nil {
				return nil, err
			}
			edges = successors(all)
		} else {
			nodeBound = true
		}

		r := residual.Get(u)
		if r <= p.opts.Epsilon*float64(len(edges)+1) {
			continue
		}
		pushes++
		if status.Due() {
			status.Progress(p.Name(), pushes, g.NodeCount(), residual.Sum())
		}

		settled.Add(u, p.opts.Alpha*r)
		residual.Set(u, 0)
		spread := (1 - p.opts.Alpha) * r
		if len(edges) == 0 {
			residual.Add(start, spread)
			enqueue(start)
			continue
		}
		ws, total := edgeWeights(p.w, edges)
		for i, e := range edges {
			if ws[i] == 0 {
				continue
			}
			residual.Add(e.To, spread*ws[i]/total)
			enqueue(e.To)
		}
	}
	if nodeBound {
		status.Bound(p.Name(), "max_nodes", p.opts.MaxNodes)
	}

	d := settled.Distribution()
	if d.Total() == 0 {
		d = residual.Distribution()
	}
	return d.Normalize(), nil
}
