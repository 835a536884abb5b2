package wam

import (
	"bytes"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/stochlog/pkg/stochlog/internalerr"
	"github.com/cognicore/stochlog/pkg/stochlog/parse"
)

const simpleProgram = `
coworker(X,Y) :- employee(X,Z), employee(Y,Z).
employee(alice,ibm).
employee(bob,ibm).
employee(carol,acme).
`

func compileProgram(t *testing.T, src string) *Program {
	t.Helper()
	rules, err := parse.ParseRules(src)
	require.NoError(t, err)
	p := NewProgram()
	require.NoError(t, NewCompiler().CompileRules(rules, p))
	return p
}

// prepare compiles query against prog and runs it to its first branch point.
func prepare(t *testing.T, prog *Program, plugins []Plugin, query string) (*Interpreter, *State, func(*State) string) {
	t.Helper()
	q, err := parse.ParseQuery(query)
	require.NoError(t, err)
	qp := NewQueryProgram(prog)
	start, err := NewCompiler().CompileQuery(q, qp)
	require.NoError(t, err)
	m := NewInterpreter(qp, plugins, DefaultOptions())
	s, err := m.Start(start, true)
	require.NoError(t, err)
	fill := func(s *State) string { return q.Fill(s.Bindings(q.NVars())).String() }
	return m, s, fill
}

// solve enumerates the filled query of every completed state, depth first.
func solve(t *testing.T, prog *Program, plugins []Plugin, query string) []string {
	t.Helper()
	m, start, fill := prepare(t, prog, plugins, query)
	var out []string
	var walk func(s *State, depth int)
	walk = func(s *State, depth int) {
		if s.IsCompleted() {
			out = append(out, fill(s))
			return
		}
		require.Less(t, depth, 20)
		outs, err := m.Outlinks(s, true)
		require.NoError(t, err)
		for _, o := range outs {
			walk(o.State, depth+1)
		}
	}
	walk(start, 0)
	sort.Strings(out)
	return out
}

func TestCompileCoworkerAddresses(t *testing.T) {
	p := compileProgram(t, simpleProgram)

	assert.Equal(t, []int{1}, p.Addresses("coworker/2"))
	assert.Equal(t, []int{18, 28, 38}, p.Addresses("employee/2"))
	assert.Equal(t, 47, p.Size())
	assert.True(t, p.HasLabel("employee/2"))
	assert.False(t, p.HasLabel("employee/3"))

	want := []Instruction{
		Comment("coworker(X,Y) :- employee(X,Z),employee(Y,Z)."),
		Allocate(3, "X,Y,Z"),
		InitFreeVar(0, -2),
		InitFreeVar(1, -1),
		FClear(),
		FPushStart("id", 3),
		FPushConst("coworker"),
		FPushConst("2"),
		FPushConst("1"),
		FReport(),
		PushBoundVar(0),
		PushFreeVar(2),
		CallP("employee/2"),
		PushBoundVar(1),
		PushBoundVar(2),
		CallP("employee/2"),
		ReturnP(),
	}
	got := make([]Instruction, len(want))
	for i := range got {
		got[i] = p.Instruction(i)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("coworker code mismatch (-want +got):\n%s", diff)
	}
}

func TestSolveCoworker(t *testing.T) {
	p := compileProgram(t, simpleProgram)
	assert.Equal(t, []string{"coworker(alice,alice)", "coworker(alice,bob)"}, solve(t, p, nil, "coworker(alice,Y)"))
	assert.Equal(t, []string{"coworker(carol,carol)"}, solve(t, p, nil, "coworker(carol,Y)"))
	assert.Empty(t, solve(t, p, nil, "coworker(dave,Y)"))
}

func TestRepeatedSignatureBodyGoals(t *testing.T) {
	p := compileProgram(t, `
path(X,Y) :- edge(X,Z), edge(Z,Y).
edge(a,b).
edge(b,c).
edge(c,d).
`)
	assert.Equal(t, []string{"path(a,c)"}, solve(t, p, nil, "path(a,Y)"))
	assert.Equal(t, []string{"path(b,d)"}, solve(t, p, nil, "path(X,d)"))
	assert.Equal(t, []string{"path(a,c)", "path(b,d)"}, solve(t, p, nil, "path(X,Y)"))
}

func TestClauseFeatures(t *testing.T) {
	p := compileProgram(t, simpleProgram)
	m, start, _ := prepare(t, p, nil, "coworker(alice,Y)")

	assert.Equal(t, "coworker/2", start.JumpTo())
	outs, err := m.Outlinks(start, true)
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Equal(t, FeatureDict{"id(coworker,2,1)": 1}, outs[0].Features)

	outs, err = m.Outlinks(start, false)
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Nil(t, outs[0].Features)
}

func TestUnboundFeatureIsCompileError(t *testing.T) {
	rules, err := parse.ParseRules("p(X) :- q(X,Y) {f(Y)}.")
	require.NoError(t, err)

	err = NewCompiler().CompileRule(rules[0], NewProgram())
	require.Error(t, err)
	assert.True(t, errors.Is(err, internalerr.ErrUnboundFeature))
	assert.True(t, errors.Is(err, internalerr.ErrSyntax))

	var lpe *LogicProgramError
	require.True(t, errors.As(err, &lpe))
	assert.Equal(t, "p(X) :- q(X,Y) {f(Y)}.", lpe.Context)
}

func TestFindallFeatures(t *testing.T) {
	p := compileProgram(t, `
p(X) :- q(X) {f(W) : r(X,W)}.
q(a).
r(a,w1).
r(a,w2).
r(b,w3).
`)
	m, start, _ := prepare(t, p, nil, "p(a)")
	outs, err := m.Outlinks(start, true)
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Equal(t, FeatureDict{"f(w1)": 1, "f(w2)": 1}, outs[0].Features)

	// The sub-derivation leaves no trace on the resumed state.
	assert.Equal(t, "q/1", outs[0].State.JumpTo())
	assert.Equal(t, []string{"p(a)"}, solve(t, p, nil, "p(a)"))
}

func TestWeightedFeature(t *testing.T) {
	p := compileProgram(t, "w(X) :- {score#(X,0.5), plain(X)}.")
	m, start, _ := prepare(t, p, nil, "w(a)")
	outs, err := m.Outlinks(start, true)
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Equal(t, FeatureDict{"score(a)": 0.5, "plain(a)": 1}, outs[0].Features)
	assert.True(t, outs[0].State.IsCompleted())
}

func TestUnknownLabelHasNoOutlinks(t *testing.T) {
	p := compileProgram(t, simpleProgram)
	m, start, _ := prepare(t, p, nil, "missing(a)")
	assert.Equal(t, "missing/1", start.JumpTo())
	outs, err := m.Outlinks(start, true)
	require.NoError(t, err)
	assert.Empty(t, outs)
}

func TestRuntimeUnboundFeature(t *testing.T) {
	p := NewProgram()
	for _, ins := range []Instruction{
		Comment("bad(X)."),
		Allocate(1, "X"),
		PushFreeVar(0),
		FPushStart("f", 1),
		FPushBoundVar(0),
		FReport(),
		ReturnP(),
	} {
		_, err := p.Append(ins)
		require.NoError(t, err)
	}

	m := NewInterpreter(p, nil, DefaultOptions())
	_, err := m.Start(1, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, internalerr.ErrUnboundFeature))
	assert.True(t, errors.Is(err, internalerr.ErrMachine))
	var lpe *LogicProgramError
	require.True(t, errors.As(err, &lpe))
	assert.Contains(t, lpe.Context, "bad(X).")
	assert.Contains(t, lpe.Backtrace, "backtrace:")

	s, err := m.Start(1, false)
	require.NoError(t, err)
	assert.True(t, s.IsCompleted())
}

func TestProgramCounterOutOfRange(t *testing.T) {
	p := NewProgram()
	_, err := p.Append(Comment("only"))
	require.NoError(t, err)
	_, err = NewInterpreter(p, nil, DefaultOptions()).Start(0, true)
	assert.True(t, errors.Is(err, internalerr.ErrMachine))
}

func TestQueryProgramRevert(t *testing.T) {
	p := compileProgram(t, simpleProgram)
	qp := NewQueryProgram(p)
	assert.True(t, p.Sealed())

	q, err := parse.ParseQuery("coworker(alice,Y)")
	require.NoError(t, err)
	start, err := NewCompiler().CompileQuery(q, qp)
	require.NoError(t, err)
	assert.Equal(t, p.Size()+1, start)
	assert.Greater(t, qp.Size(), p.Size())
	assert.Equal(t, OpComment, qp.Instruction(p.Size()).Op)
	assert.Equal(t, p.Addresses("employee/2"), qp.Addresses("employee/2"))

	qp.Revert()
	assert.Equal(t, p.Size(), qp.Size())
	require.NoError(t, qp.InsertLabel("local/0"))
	assert.True(t, qp.HasLabel("local/0"))
	qp.Revert()
	assert.False(t, qp.HasLabel("local/0"))

	_, err = p.Append(ReturnP())
	assert.True(t, errors.Is(err, internalerr.ErrInvalidInput))
	assert.Error(t, qp.Patch(0, ReturnP()), "master code is not patchable through the overlay")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	p := compileProgram(t, simpleProgram+"p(X) :- q(X) {f(W) : r(X,W)}.\nw(X) :- {score#(X,0.5)}.\n")
	_, err := p.Append(CallP("odd|label"))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, p.Save(&buf))
	text := buf.String()

	loaded, err := Load(strings.NewReader("# saved program\n\n" + text))
	require.NoError(t, err)
	if diff := cmp.Diff(p.code, loaded.code); diff != "" {
		t.Fatalf("instructions differ (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(p.labels, loaded.labels); diff != "" {
		t.Fatalf("labels differ (-want +got):\n%s", diff)
	}

	var again bytes.Buffer
	require.NoError(t, loaded.Save(&again))
	assert.Equal(t, text, again.String())
	assert.Contains(t, text, "label:coworker/2\nallocate|3|X,Y,Z\n")
}

func TestSaveRejectsPipeInNonFinalOperand(t *testing.T) {
	p := NewProgram()
	_, err := p.Append(UnifyConst("a|b", -1))
	require.NoError(t, err)
	err = p.Save(&bytes.Buffer{})
	assert.True(t, errors.Is(err, internalerr.ErrInvalidInput))
}

func TestLoadRejectsMalformedLines(t *testing.T) {
	for _, src := range []string{
		"bogus|1\n",
		"allocate|x|X\n",
		"unifyconst|a\n",
		"returnp|extra\n",
	} {
		_, err := Load(strings.NewReader(src))
		assert.True(t, errors.Is(err, internalerr.ErrSyntax), src)
	}
}

func TestStateKeysAreStructural(t *testing.T) {
	p := compileProgram(t, simpleProgram)
	_, s1, _ := prepare(t, p, nil, "coworker(alice,Y)")
	_, s2, _ := prepare(t, p, nil, "coworker(alice,Y)")
	_, s3, _ := prepare(t, p, nil, "coworker(bob,Y)")

	assert.Equal(t, s1.Key(), s2.Key())
	assert.True(t, s1.Equal(s2))
	assert.NotEqual(t, s1.Key(), s3.Key())
	assert.Contains(t, s1.String(), "calling coworker/2")
}

// colorPlugin answers color/1 from a fixed list.
type colorPlugin struct{ colors []string }

func (colorPlugin) Name() string            { return "colors" }
func (colorPlugin) Claim(label string) bool { return label == "color/1" }
func (c colorPlugin) Outlinks(s *State, m *Interpreter, computeFeatures bool) ([]Outlink, error) {
	var out []Outlink
	for _, color := range c.colors {
		m.RestoreState(s)
		if !m.SetArg(1, 0, color) {
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
		out = append(out, Outlink{State: m.SaveState(), Features: FeatureDict{"db(colors)": 1}})
	}
	return out, nil
}

func TestPluginClaimsLabel(t *testing.T) {
	p := compileProgram(t, "bright(X) :- color(X), light(X).\nlight(red).\nlight(yellow).\n")
	plugins := []Plugin{colorPlugin{colors: []string{"red", "blue", "yellow"}}}

	assert.Equal(t, []string{"color(blue)", "color(red)", "color(yellow)"}, solve(t, p, plugins, "color(X)"))
	assert.Equal(t, []string{"bright(red)", "bright(yellow)"}, solve(t, p, plugins, "bright(X)"))
	assert.Equal(t, []string{"color(red)"}, solve(t, p, plugins, "color(red)"))
}

func TestFeatureTable(t *testing.T) {
	ft := NewFeatureTable()
	assert.Equal(t, 1, ft.ID("id(restart)"))
	assert.Equal(t, 2, ft.ID("f(a)"))
	assert.Equal(t, 1, ft.ID("id(restart)"))

	f, ok := ft.Feature(2)
	require.True(t, ok)
	assert.Equal(t, Feature("f(a)"), f)
	_, ok = ft.Feature(3)
	assert.False(t, ok)
	_, ok = ft.Lookup("g")
	assert.False(t, ok)
	assert.Equal(t, []Feature{"id(restart)", "f(a)"}, ft.Features())
	assert.Equal(t, "f(a)=1,g=0.5", FeatureDict{"g": 0.5, "f(a)": 1}.String())
}
