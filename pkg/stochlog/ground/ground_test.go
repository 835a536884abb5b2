package ground

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/cognicore/stochlog/pkg/stochlog/parse"
	"github.com/cognicore/stochlog/pkg/stochlog/proofgraph"
	"github.com/cognicore/stochlog/pkg/stochlog/prove"
	"github.com/cognicore/stochlog/pkg/stochlog/store/memstore"
	"github.com/cognicore/stochlog/pkg/stochlog/wam"
	"github.com/cognicore/stochlog/pkg/stochlog/weight"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const company = `
coworker(X,Y) :- employee(X,Z), employee(Y,Z).
employee(alice,ibm).
employee(bob,ibm).
employee(carol,acme).
`

func program(t *testing.T) *wam.Program {
	t.Helper()
	rules, err := parse.ParseRules(company)
	require.NoError(t, err)
	p := wam.NewProgram()
	require.NoError(t, wam.NewCompiler().CompileRules(rules, p))
	return p
}

func examples(t *testing.T, lines ...string) []*parse.Example {
	t.Helper()
	out := make([]*parse.Example, len(lines))
	for i, line := range lines {
		ex, err := parse.ParseExample(line)
		require.NoError(t, err)
		out[i] = ex
	}
	return out
}

func dfs() prove.Prover {
	return prove.NewDfsProver(weight.NewFeatureWeighter(nil, nil), 0)
}

type slowProver struct{ delay time.Duration }

func (p slowProver) Prove(g proofgraph.Graph, _ *prove.StatusLogger) (prove.Distribution, error) {
	time.Sleep(p.delay)
	return prove.Distribution{g.StartID(): 1}, nil
}
func (p slowProver) Copy() prove.Prover { return p }
func (p slowProver) Name() string       { return "slow" }

type failingProver struct{}

func (failingProver) Prove(proofgraph.Graph, *prove.StatusLogger) (prove.Distribution, error) {
	return nil, errors.New("boom")
}
func (p failingProver) Copy() prove.Prover { return p }
func (failingProver) Name() string         { return "failing" }

func TestGroundExampleLine(t *testing.T) {
	g := New(program(t), nil, dfs(), Options{Graph: proofgraph.DefaultOptions()})
	ex := examples(t, "coworker(alice,Y)\t+coworker(alice,bob)\t-coworker(alice,alice)")[0]

	line, err := g.GroundExample(ex)
	require.NoError(t, err)

	fields := strings.Split(line, "\t")
	require.GreaterOrEqual(t, len(fields), 5)
	assert.Equal(t, "coworker(alice,Y)", fields[0])
	assert.Equal(t, "1", fields[1])
	assert.NotEmpty(t, fields[2])
	assert.NotEmpty(t, fields[3])
	assert.NotContains(t, fields[2], ",")
	assert.NotEqual(t, fields[2], fields[3])

	lg, err := proofgraph.Parse(strings.Join(fields[4:], "\t"))
	require.NoError(t, err)
	assert.Greater(t, lg.NodeCount(), 1)
	assert.Greater(t, lg.EdgeCount(), 0)
}

func TestGroundExampleNoLabelledSolutions(t *testing.T) {
	g := New(program(t), nil, dfs(), Options{Graph: proofgraph.DefaultOptions()})
	ex := examples(t, "coworker(carol,Y)\t+coworker(carol,bob)")[0]

	_, err := g.GroundExample(ex)
	assert.ErrorIs(t, err, ErrNoLabelledSolutions)
}

func TestGroundKeepsInputOrder(t *testing.T) {
	g := New(program(t), nil, dfs(), Options{Threads: 4, Graph: proofgraph.DefaultOptions()})
	exs := examples(t,
		"coworker(bob,Y)\t+coworker(bob,alice)",
		"coworker(carol,Y)\t+coworker(carol,bob)",
		"coworker(alice,Y)\t+coworker(alice,bob)",
		"coworker(carol,Y)\t+coworker(carol,carol)",
	)

	var buf bytes.Buffer
	stats, err := g.Ground(context.Background(), exs, &buf)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "coworker(bob,Y)\t"))
	assert.True(t, strings.HasPrefix(lines[1], "coworker(alice,Y)\t"))
	assert.True(t, strings.HasPrefix(lines[2], "coworker(carol,Y)\t"))

	assert.Equal(t, 4, stats.Examples)
	assert.Equal(t, 3, stats.Grounded)
	assert.Equal(t, 1, stats.Skipped)
	assert.NotEmpty(t, stats.RunID)
}

func TestGroundTimeoutDoesNotAbortBatch(t *testing.T) {
	g := New(program(t), nil, slowProver{delay: 200 * time.Millisecond}, Options{
		Threads: 2,
		Timeout: 20 * time.Millisecond,
		Graph:   proofgraph.DefaultOptions(),
	})
	exs := examples(t, "coworker(alice,Y)\t+coworker(alice,bob)", "coworker(bob,Y)\t+coworker(bob,alice)")

	var buf bytes.Buffer
	stats, err := g.Ground(context.Background(), exs, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TimedOut)
	assert.Zero(t, stats.Grounded)
	assert.Empty(t, buf.String())
}

func TestGroundCountsFailures(t *testing.T) {
	g := New(program(t), nil, failingProver{}, Options{Graph: proofgraph.DefaultOptions()})
	exs := examples(t, "coworker(alice,Y)\t+coworker(alice,bob)")

	var buf bytes.Buffer
	stats, err := g.Ground(context.Background(), exs, &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Empty(t, buf.String())
}

func TestGroundCountsUnserializableFeatureAsFailure(t *testing.T) {
	rules, err := parse.ParseRules("p(X) :- q(X) {src(X)}.\nq('http://example.org').\n")
	require.NoError(t, err)
	prog := wam.NewProgram()
	require.NoError(t, wam.NewCompiler().CompileRules(rules, prog))

	g := New(prog, nil, dfs(), Options{Graph: proofgraph.DefaultOptions()})
	exs := examples(t, "p('http://example.org')\t+p('http://example.org')")

	var buf bytes.Buffer
	stats, err := g.Ground(context.Background(), exs, &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Zero(t, stats.Grounded)
	assert.Empty(t, buf.String())
}

func TestGroundCancelled(t *testing.T) {
	g := New(program(t), nil, dfs(), Options{Graph: proofgraph.DefaultOptions()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	_, err := g.Ground(ctx, examples(t, "coworker(alice,Y)\t+coworker(alice,bob)"), &buf)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGroundArchivesToStore(t *testing.T) {
	st := memstore.New()
	g := New(program(t), nil, dfs(), Options{
		Threads: 2,
		Graph:   proofgraph.DefaultOptions(),
		Store:   st,
		RunID:   "run-1",
	})
	exs := examples(t,
		"coworker(alice,Y)\t+coworker(alice,bob)",
		"coworker(bob,Y)\t+coworker(bob,alice)",
	)

	var buf bytes.Buffer
	stats, err := g.Ground(context.Background(), exs, &buf)
	require.NoError(t, err)
	assert.Equal(t, "run-1", stats.RunID)

	saved, err := st.Groundings(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.Equal(t, "coworker(alice,Y)", saved[0].Query)
	assert.Equal(t, "coworker(bob,Y)", saved[1].Query)
	assert.Len(t, saved[0].ID, 26)
	assert.Less(t, saved[0].ID, saved[1].ID)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, lines[0], saved[0].Line)
}
