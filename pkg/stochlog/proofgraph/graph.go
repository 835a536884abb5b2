// Package proofgraph exposes the machine states reachable from a query as a
// lazily expanded directed graph. Nodes are structurally distinct states
// numbered densely in discovery order, starting with the query's start
// state at 0. Edges carry the feature dicts the provers weight.
package proofgraph

import (
	"fmt"
	"strings"

	"github.com/cognicore/stochlog/internal/telemetry"
	"github.com/cognicore/stochlog/pkg/stochlog/term"
	"github.com/cognicore/stochlog/pkg/stochlog/wam"
)

// Synthetic edge features.
var (
	RestartFeature  = wam.NewFeature(wam.IDFeature, "restart")
	TrueLoopFeature = wam.NewFeature(wam.IDFeature, "trueLoop")
)

// Edge is one outlink between node ids.
type Edge struct {
	To       int
	Features wam.FeatureDict
	Restart  bool
}

// Graph is the view the provers walk.
type Graph interface {
	StartID() int
	StartState() *wam.State
	State(id int) *wam.State
	ID(s *wam.State) int
	Outlinks(id int) ([]Edge, error)
	Degree(id int) (int, error)
	Expanded(id int) bool
	NodeCount() int
	EdgeCount() int
	Interpreter() *wam.Interpreter
	Query() *term.Query
}

// Options configures a StateGraph.
type Options struct {
	// TrueLoop adds a self edge to completed states, so that walks which
	// reach a solution stay there until they restart.
	TrueLoop bool
	Interp   wam.Options
	// Filter, when set, drops successors it hides before they are
	// numbered, so hidden states are never expanded. States that already
	// have an id, such as the start state, are kept.
	Filter VisibilityFilter
}

// DefaultOptions enables the true loop.
func DefaultOptions() Options {
	return Options{TrueLoop: true, Interp: wam.DefaultOptions()}
}

// StateGraph is the graph of one query. It owns its interpreter and query
// program and must not be shared between goroutines.
type StateGraph struct {
	opts   Options
	query  *term.Query
	qprog  *wam.QueryProgram
	interp *wam.Interpreter

	ids    map[wam.StateKey]int
	states []*wam.State
	edges  map[int][]Edge
	nEdges int
}

// New compiles q against prog and runs it to its first branch point. prog
// is sealed and may be shared by many graphs.
func New(prog *wam.Program, plugins []wam.Plugin, q *term.Query, opts Options) (*StateGraph, error) {
	qprog := wam.NewQueryProgram(prog)
	start, err := wam.NewCompiler().CompileQuery(q, qprog)
	if err != nil {
		return nil, fmt.Errorf("compile query %s: %w", q, err)
	}
	interp := wam.NewInterpreter(qprog, plugins, opts.Interp)
	s, err := interp.Start(start, true)
	if err != nil {
		return nil, fmt.Errorf("start query %s: %w", q, err)
	}
	g := &StateGraph{
		opts:   opts,
		query:  q,
		qprog:  qprog,
		interp: interp,
		ids:    make(map[wam.StateKey]int),
		edges:  make(map[int][]Edge),
	}
	g.ID(s)
	return g, nil
}

func (g *StateGraph) StartID() int { return 0 }

func (g *StateGraph) StartState() *wam.State { return g.states[0] }

// State returns the state of id, or nil for an unknown id.
func (g *StateGraph) State(id int) *wam.State {
	if id < 0 || id >= len(g.states) {
		return nil
	}
	return g.states[id]
}

// ID returns the id of s, assigning the next one on first sight.
func (g *StateGraph) ID(s *wam.State) int {
	if id, ok := g.ids[s.Key()]; ok {
		return id
	}
	id := len(g.states)
	g.ids[s.Key()] = id
	g.states = append(g.states, s)
	return id
}

// Outlinks computes and memoises the edges out of id. Successors come
// first, in interpreter order; the restart edge is always last.
func (g *StateGraph) Outlinks(id int) ([]Edge, error) {
	if out, ok := g.edges[id]; ok {
		return out, nil
	}
	out, err := g.expand(id, nil)
	if err != nil {
		return nil, err
	}
	g.edges[id] = out
	g.nEdges += len(out)
	return out, nil
}

// expand computes the edges out of id without memoising them. Successors
// hidden by the graph's filter or by extra are skipped before they get an
// id.
func (g *StateGraph) expand(id int, extra VisibilityFilter) ([]Edge, error) {
	s := g.State(id)
	if s == nil {
		return nil, fmt.Errorf("unknown node %d", id)
	}

	var out []Edge
	switch {
	case s.IsCompleted():
		if g.opts.TrueLoop {
			out = append(out, Edge{To: id, Features: wam.FeatureDict{TrueLoopFeature: 1}})
		}
	case s.IsFailed():
	default:
		links, err := g.interp.Outlinks(s, true)
		if err != nil {
			return nil, err
		}
		for _, l := range links {
			if g.hidden(l.State, extra) {
				continue
			}
			out = append(out, Edge{To: g.ID(l.State), Features: l.Features})
		}
	}
	out = append(out, Edge{To: g.StartID(), Features: wam.FeatureDict{RestartFeature: 1}, Restart: true})
	telemetry.NodeExpanded()
	return out, nil
}

func (g *StateGraph) hidden(s *wam.State, extra VisibilityFilter) bool {
	if g.opts.Filter == nil && extra == nil {
		return false
	}
	if _, ok := g.ids[s.Key()]; ok {
		return false
	}
	return (g.opts.Filter != nil && !g.opts.Filter.Visible(s)) || (extra != nil && !extra.Visible(s))
}

func (g *StateGraph) Degree(id int) (int, error) {
	out, err := g.Outlinks(id)
	return len(out), err
}

func (g *StateGraph) Expanded(id int) bool {
	_, ok := g.edges[id]
	return ok
}

func (g *StateGraph) NodeCount() int { return len(g.states) }
func (g *StateGraph) EdgeCount() int { return g.nEdges }

func (g *StateGraph) Interpreter() *wam.Interpreter { return g.interp }
func (g *StateGraph) Query() *term.Query            { return g.query }

// Release discards the query's instructions from the overlay program.
func (g *StateGraph) Release() { g.qprog.Revert() }

// Expand materialises the graph breadth first until every reachable node
// is expanded or maxNodes nodes exist (maxNodes <= 0 means no bound). It
// reports whether the graph is complete.
func (g *StateGraph) Expand(maxNodes int) (bool, error) {
	for id := 0; id < len(g.states); id++ {
		if maxNodes > 0 && len(g.states) >= maxNodes && !g.Expanded(id) {
			return false, nil
		}
		if _, err := g.Outlinks(id); err != nil {
			return false, err
		}
	}
	return true, nil
}

// AsDict returns the bindings of the query's named variables in s.
func AsDict(g Graph, s *wam.State) map[string]string {
	q := g.Query()
	bindings := s.Bindings(q.NVars())
	out := make(map[string]string, len(bindings))
	for i, v := range bindings {
		if v == "" || i >= len(q.VarNames) {
			continue
		}
		out[q.VarNames[i]] = v
	}
	return out
}

// Fill instantiates the query with the bindings in s.
func Fill(g Graph, s *wam.State) *term.Query {
	q := g.Query()
	return q.Fill(s.Bindings(q.NVars()))
}

// Tree renders the already expanded part of g as an indented tree down to
// depth, skipping restart edges and nodes already printed.
func Tree(g Graph, depth int) string {
	var b strings.Builder
	seen := make(map[int]bool)
	var walk func(id, level int, fd wam.FeatureDict)
	walk = func(id, level int, fd wam.FeatureDict) {
		b.WriteString(strings.Repeat("  ", level))
		fmt.Fprintf(&b, "%d %s", id, describe(g, id))
		if len(fd) > 0 {
			fmt.Fprintf(&b, " %s", fd)
		}
		if seen[id] {
			b.WriteString(" ...\n")
			return
		}
		b.WriteByte('\n')
		seen[id] = true
		if level >= depth || !g.Expanded(id) {
			return
		}
		out, _ := g.Outlinks(id)
		for _, e := range out {
			if e.Restart || e.To == id {
				continue
			}
			walk(e.To, level+1, e.Features)
		}
	}
	walk(g.StartID(), 0, nil)
	return b.String()
}

func describe(g Graph, id int) string {
	s := g.State(id)
	switch {
	case s.IsCompleted():
		return "[solution] " + Fill(g, s).String()
	case s.IsFailed():
		return "[failed]"
	default:
		return "call " + s.JumpTo()
	}
}

// CompletedIDs lists the completed nodes discovered so far, ascending.
func CompletedIDs(g Graph) []int {
	var out []int
	for id := 0; id < g.NodeCount(); id++ {
		if s := g.State(id); s != nil && s.IsCompleted() {
			out = append(out, id)
		}
	}
	return out
}
