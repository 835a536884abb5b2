// Package prove computes distributions over proof-graph nodes. Every prover
// returns mass normalised to sum to 1 over the nodes it visited. Reaching a
// depth, iteration or size bound is not an error: the distribution built so
// far is returned and the bound is logged at debug level.
package prove

import (
	"math"
	"sort"

	"github.com/cognicore/stochlog/pkg/stochlog/proofgraph"
	"github.com/cognicore/stochlog/pkg/stochlog/weight"
)

// Prover computes a distribution over the nodes of g.
type Prover interface {
	Prove(g proofgraph.Graph, status *StatusLogger) (Distribution, error)
	// Copy returns an independent prover for another goroutine. The
	// weighter is shared and must be safe for concurrent reads.
	Copy() Prover
	Name() string
}

// Distribution maps node ids to mass.
type Distribution map[int]float64

// Total is the sum of all mass, accumulated in id order.
func (d Distribution) Total() float64 {
	s := 0.0
	for _, id := range d.IDs() {
		s += d[id]
	}
	return s
}

// Normalize returns a copy scaled to sum to 1. An empty or zero-mass
// distribution normalises to an empty one.
func (d Distribution) Normalize() Distribution {
	total := d.Total()
	out := make(Distribution, len(d))
	if total <= 0 {
		return out
	}
	for id, x := range d {
		out[id] = x / total
	}
	return out
}

// IDs lists the ids in ascending order.
func (d Distribution) IDs() []int {
	ids := make([]int, 0, len(d))
	for id := range d {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Solutions restricts d to completed states and renormalises.
func Solutions(g proofgraph.Graph, d Distribution) Distribution {
	out := make(Distribution)
	for id, x := range d {
		if s := g.State(id); s != nil && s.IsCompleted() {
			out[id] = x
		}
	}
	return out.Normalize()
}

// SolvedQuery is one distinct answer with the mass of every completed state
// that fills the query the same way.
type SolvedQuery struct {
	Query string
	Mass  float64
	IDs   []int
}

// SolvedQueries groups the completed states of d by filled query, sorted by
// mass descending and then by query text.
func SolvedQueries(g proofgraph.Graph, d Distribution) []SolvedQuery {
	sol := Solutions(g, d)
	byQuery := make(map[string]*SolvedQuery)
	for _, id := range sol.IDs() {
		text := proofgraph.Fill(g, g.State(id)).String()
		sq, ok := byQuery[text]
		if !ok {
			sq = &SolvedQuery{Query: text}
			byQuery[text] = sq
		}
		sq.Mass += sol[id]
		sq.IDs = append(sq.IDs, id)
	}
	out := make([]SolvedQuery, 0, len(byQuery))
	for _, sq := range byQuery {
		out = append(out, *sq)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Mass != out[j].Mass {
			return out[i].Mass > out[j].Mass
		}
		return out[i].Query < out[j].Query
	})
	return out
}

// edgeWeights scores each edge with w. Negative and NaN scores count as 0;
// when every edge scores 0 the edges share the mass uniformly.
func edgeWeights(w weight.Weighter, edges []proofgraph.Edge) ([]float64, float64) {
	ws := make([]float64, len(edges))
	total := 0.0
	for i, e := range edges {
		x := w.W(e.Features)
		if x < 0 || math.IsNaN(x) {
			x = 0
		}
		ws[i] = x
		total += x
	}
	if total == 0 && len(edges) > 0 {
		for i := range ws {
			ws[i] = 1
		}
		total = float64(len(edges))
	}
	return ws, total
}

// successors drops the restart edge, which the walk provers model with
// alpha instead.
func successors(edges []proofgraph.Edge) []proofgraph.Edge {
	out := make([]proofgraph.Edge, 0, len(edges))
	for _, e := range edges {
		if !e.Restart {
			out = append(out, e)
		}
	}
	return out
}
