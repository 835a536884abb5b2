// Package plugins serves predicates from extensional sources: fact tables,
// weighted graphs, a fact store and Datalog programs. Each plugin claims
// predicate labels and answers calls by binding the call's arguments
// against matching tuples.
package plugins

import (
	"fmt"

	"github.com/cognicore/stochlog/pkg/stochlog/wam"
)

// tuple is one candidate answer for a call.
type tuple struct {
	args   []string
	weight float64
}

// table holds the tuples of one predicate, indexed by every position.
type table struct {
	arity int
	rows  []tuple
	index []map[string][]int
}

func newTable(arity int) *table {
	t := &table{arity: arity, index: make([]map[string][]int, arity)}
	for i := range t.index {
		t.index[i] = make(map[string][]int)
	}
	return t
}

func (t *table) add(args []string, weight float64) error {
	if len(args) != t.arity {
		return fmt.Errorf("tuple %v has arity %d, table has %d", args, len(args), t.arity)
	}
	id := len(t.rows)
	t.rows = append(t.rows, tuple{args: append([]string(nil), args...), weight: weight})
	for i, v := range args {
		t.index[i][v] = append(t.index[i][v], id)
	}
	return nil
}

// candidates returns rows consistent with the bound positions, in
// insertion order.
func (t *table) candidates(bound map[int]string) []tuple {
	if len(bound) == 0 {
		return t.rows
	}
	best := -1
	for pos, v := range bound {
		if best < 0 || len(t.index[pos][v]) < len(t.index[best][bound[best]]) {
			best = pos
		}
	}
	var out []tuple
	for _, id := range t.index[best][bound[best]] {
		row := t.rows[id]
		if matches(row.args, bound) {
			out = append(out, row)
		}
	}
	return out
}

func matches(args []string, bound map[int]string) bool {
	for pos, v := range bound {
		if args[pos] != v {
			return false
		}
	}
	return true
}

// boundArgs restores state and reads the pending call's constant arguments.
func boundArgs(m *wam.Interpreter, s *wam.State, arity int) map[int]string {
	m.RestoreState(s)
	bound := make(map[int]string, arity)
	for i := 0; i < arity; i++ {
		if v, ok := m.ConstantArg(arity, i); ok {
			bound[i] = v
		}
	}
	return bound
}

// outlinks resumes s once per tuple: bind the call's arguments, return
// from the call, and run to the next branch point. Each successor's edge
// carries the feature db(name) weighted by the tuple.
func outlinks(name string, s *wam.State, m *wam.Interpreter, arity int, tuples []tuple, computeFeatures bool) ([]wam.Outlink, error) {
	feature := wam.NewFeature("db", name)
	out := make([]wam.Outlink, 0, len(tuples))
	for _, t := range tuples {
		m.RestoreState(s)
		ok := true
		for i, v := range t.args {
			if !m.SetArg(arity, i, v) {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		if err := m.ReturnP(); err != nil {
			return nil, err
		}
		if err := m.ExecuteWithoutBranching(computeFeatures); err != nil {
			return nil, err
		}
		if m.Failed() {
			continue
		}
		var fd wam.FeatureDict
		if computeFeatures {
			fd = wam.FeatureDict{feature: t.weight}
		}
		out = append(out, wam.Outlink{State: m.SaveState(), Features: fd})
	}
	return out, nil
}
