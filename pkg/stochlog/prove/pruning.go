package prove

import (
	"github.com/cognicore/stochlog/pkg/stochlog/proofgraph"
)

// PruningProver runs an inner prover and then moves the mass of states the
// filter hides onto visible ones, so the total is conserved.
//
// A node is hidden when the filter rejects its state or its parent in the
// breadth-first tree from the start node is hidden. The mass of a hidden
// node goes to its nearest visible ancestor in that tree, which passes it
// on to its own visible successors in proportion to their mass (evenly if
// they have none), or keeps it when it has no visible successors. The
// breadth-first parent is the first expanded node, in id order, with an
// edge to the node, so the ancestor is unique.
type PruningProver struct {
	inner  Prover
	filter proofgraph.VisibilityFilter
}

func NewPruningProver(inner Prover, filter proofgraph.VisibilityFilter) *PruningProver {
	return &PruningProver{inner: inner, filter: filter}
}

func (p *PruningProver) Name() string { return "pruning(" + p.inner.Name() + ")" }

func (p *PruningProver) Copy() Prover {
	return &PruningProver{inner: p.inner.Copy(), filter: p.filter}
}

func (p *PruningProver) Prove(g proofgraph.Graph, status *StatusLogger) (Distribution, error) {
	d, err := p.inner.Prove(g, status)
	if err != nil {
		return nil, err
	}
	parent, order, err := bfsTree(g)
	if err != nil {
		return nil, err
	}

	hidden := make(map[int]bool)
	for _, id := range order {
		if id == g.StartID() {
			continue
		}
		if hidden[parent[id]] || !p.filter.Visible(g.State(id)) {
			hidden[id] = true
		}
	}

	out := make(Distribution, len(d))
	moved := make(map[int]float64) // visible ancestor → mass to pass on
	for _, id := range d.IDs() {
		if !hidden[id] {
			out[id] += d[id]
			continue
		}
		a := parent[id]
		for hidden[a] {
			a = parent[a]
		}
		moved[a] += d[id]
	}

	for _, a := range Distribution(moved).IDs() {
		recipients, err := visibleSuccessors(g, a, hidden)
		if err != nil {
			return nil, err
		}
		if len(recipients) == 0 {
			out[a] += moved[a]
			continue
		}
		total := 0.0
		for _, r := range recipients {
			total += d[r]
		}
		for _, r := range recipients {
			share := 1 / float64(len(recipients))
			if total > 0 {
				share = d[r] / total
			}
			out[r] += moved[a] * share
		}
	}
	return out.Normalize(), nil
}

// bfsTree walks the expanded part of g from the start, ignoring restart
// edges, and returns each reached node's parent and the visit order.
func bfsTree(g proofgraph.Graph) (map[int]int, []int, error) {
	start := g.StartID()
	parent := map[int]int{start: start}
	order := []int{start}
	for i := 0; i < len(order); i++ {
		u := order[i]
		if !g.Expanded(u) {
			continue
		}
		edges, err := g.Outlinks(u)
		if err != nil {
			return nil, nil, err
		}
		for _, e := range edges {
			if e.Restart {
				continue
			}
			if _, seen := parent[e.To]; !seen {
				parent[e.To] = u
				order = append(order, e.To)
			}
		}
	}
	return parent, order, nil
}

func visibleSuccessors(g proofgraph.Graph, a int, hidden map[int]bool) ([]int, error) {
	edges, err := g.Outlinks(a)
	if err != nil {
		return nil, err
	}
	var out []int
	seen := make(map[int]bool)
	for _, e := range edges {
		if e.Restart || e.To == a || hidden[e.To] || seen[e.To] {
			continue
		}
		seen[e.To] = true
		out = append(out, e.To)
	}
	return out, nil
}
