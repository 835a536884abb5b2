package prove

import (
	"github.com/cognicore/stochlog/pkg/stochlog/proofgraph"
	"github.com/cognicore/stochlog/pkg/stochlog/weight"
)

// DefaultMaxDepth bounds DFS recursion and power iterations.
const DefaultMaxDepth = 10

// DfsProver enumerates the graph depth first. Each node receives the
// product of normalised edge weights along every path reaching it; paths
// stop at completed states, at cycles and at MaxDepth.
type DfsProver struct {
	w        weight.Weighter
	maxDepth int
}

func NewDfsProver(w weight.Weighter, maxDepth int) *DfsProver {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &DfsProver{w: w, maxDepth: maxDepth}
}

func (p *DfsProver) Name() string { return "dfs" }

func (p *DfsProver) Copy() Prover { return &DfsProver{w: p.w, maxDepth: p.maxDepth} }

func (p *DfsProver) Prove(g proofgraph.Graph, status *StatusLogger) (Distribution, error) {
	status.Start()
	vec := NewFloatVector(g.NodeCount())
	onPath := make(map[int]bool)
	bounded := false
	visits := 0

	var walk func(id int, mass float64, depth int) error
	walk = func(id int, mass float64, depth int) error {
		vec.Add(id, mass)
		visits++
		status.Progress(p.Name(), visits, g.NodeCount(), 0)
		if g.State(id).IsCompleted() {
			return nil
		}
		if depth >= p.maxDepth {
			bounded = true
			return nil
		}
		edges, err := g.Outlinks(id)
		if err != nil {
			return err
		}
		edges = successors(edges)
		ws, total := edgeWeights(p.w, edges)
		onPath[id] = true
		defer delete(onPath, id)
		for i, e := range edges {
			if onPath[e.To] || ws[i] == 0 {
				continue
			}
			if err := walk(e.To, mass*ws[i]/total, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(g.StartID(), 1, 0); err != nil {
		return nil, err
	}
	if bounded {
		status.Bound(p.Name(), "max_depth", p.maxDepth)
	}
	return vec.Distribution().Normalize(), nil
}
