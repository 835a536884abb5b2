package proofgraph

import (
	"github.com/cognicore/stochlog/pkg/stochlog/term"
	"github.com/cognicore/stochlog/pkg/stochlog/wam"
)

// VisibilityFilter decides which states a pruned view may reach.
type VisibilityFilter interface {
	Visible(s *wam.State) bool
}

// PredicateFilter hides states suspended on a denied predicate label, or on
// any label outside Allow when Allow is non-empty. Completed and failed
// states are always visible.
type PredicateFilter struct {
	allow map[string]bool
	deny  map[string]bool
}

// NewPredicateFilter builds a filter from "functor/arity" labels.
func NewPredicateFilter(allow, deny []string) *PredicateFilter {
	f := &PredicateFilter{allow: make(map[string]bool), deny: make(map[string]bool)}
	for _, l := range allow {
		f.allow[l] = true
	}
	for _, l := range deny {
		f.deny[l] = true
	}
	return f
}

func (f *PredicateFilter) Visible(s *wam.State) bool {
	if s.IsCompleted() || s.IsFailed() {
		return true
	}
	label := s.JumpTo()
	if f.deny[label] {
		return false
	}
	return len(f.allow) == 0 || f.allow[label]
}

// PruningGraph is a view of another graph with the edges into invisible
// states removed. The provers renormalise over the remaining edges, so mass
// that would have flowed into a hidden state goes to its visible siblings.
// The start state is always visible.
//
// Over a *StateGraph the view expands nodes itself and hidden successors
// never get an id. Over any other graph the inner edges are computed first
// and filtered afterwards.
type PruningGraph struct {
	inner  Graph
	filter VisibilityFilter
	edges  map[int][]Edge
	nEdges int
}

// NewPruningGraph wraps inner.
func NewPruningGraph(inner Graph, filter VisibilityFilter) *PruningGraph {
	return &PruningGraph{inner: inner, filter: filter, edges: make(map[int][]Edge)}
}

func (g *PruningGraph) Outlinks(id int) ([]Edge, error) {
	if out, ok := g.edges[id]; ok {
		return out, nil
	}
	var out []Edge
	if sg, ok := g.inner.(*StateGraph); ok && !sg.Expanded(id) {
		var err error
		if out, err = sg.expand(id, g.filter); err != nil {
			return nil, err
		}
	} else {
		all, err := g.inner.Outlinks(id)
		if err != nil {
			return nil, err
		}
		out = make([]Edge, 0, len(all))
		for _, e := range all {
			if e.Restart || e.To == g.inner.StartID() || g.filter.Visible(g.inner.State(e.To)) {
				out = append(out, e)
			}
		}
	}
	g.edges[id] = out
	g.nEdges += len(out)
	return out, nil
}

func (g *PruningGraph) Degree(id int) (int, error) {
	out, err := g.Outlinks(id)
	return len(out), err
}

func (g *PruningGraph) Expanded(id int) bool {
	_, ok := g.edges[id]
	return ok
}

func (g *PruningGraph) EdgeCount() int { return g.nEdges }

func (g *PruningGraph) StartID() int                  { return g.inner.StartID() }
func (g *PruningGraph) StartState() *wam.State        { return g.inner.StartState() }
func (g *PruningGraph) State(id int) *wam.State       { return g.inner.State(id) }
func (g *PruningGraph) ID(s *wam.State) int           { return g.inner.ID(s) }
func (g *PruningGraph) NodeCount() int                { return g.inner.NodeCount() }
func (g *PruningGraph) Interpreter() *wam.Interpreter { return g.inner.Interpreter() }
func (g *PruningGraph) Query() *term.Query            { return g.inner.Query() }
