// Package ground turns labelled examples into serialized proof graphs for
// training. Each example's query is proved, the reached solutions are
// matched against its positive and negative answers, and the explored
// graph is frozen into one tab-separated line.
package ground

import (
	"bufio"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/cognicore/stochlog/internal/telemetry"
	"github.com/cognicore/stochlog/internal/workers"
	"github.com/cognicore/stochlog/pkg/stochlog/parse"
	"github.com/cognicore/stochlog/pkg/stochlog/proofgraph"
	"github.com/cognicore/stochlog/pkg/stochlog/prove"
	"github.com/cognicore/stochlog/pkg/stochlog/store"
	"github.com/cognicore/stochlog/pkg/stochlog/term"
	"github.com/cognicore/stochlog/pkg/stochlog/wam"
)

// ErrNoLabelledSolutions marks an example none of whose labelled answers
// was reached.
var ErrNoLabelledSolutions = errors.New("no labelled solutions")

// Options configures a Grounder.
type Options struct {
	Threads        int
	Timeout        time.Duration
	Graph          proofgraph.Options
	StatusInterval time.Duration
	// Store, when set, archives every grounded line under RunID.
	Store  store.Store
	RunID  string
	Logger *zap.Logger
}

// Stats summarises one Ground call.
type Stats struct {
	RunID    string
	Examples int
	Grounded int
	Skipped  int
	Failed   int
	TimedOut int
}

// Grounder grounds examples against one sealed program. It is safe for
// concurrent use.
type Grounder struct {
	prog    *wam.Program
	plugins []wam.Plugin
	prover  prove.Prover
	opts    Options
	logger  *zap.Logger

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// New seals prog and returns a grounder.
func New(prog *wam.Program, plugins []wam.Plugin, prover prove.Prover, opts Options) *Grounder {
	prog.Seal()
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Grounder{
		prog:    prog,
		plugins: plugins,
		prover:  prover,
		opts:    opts,
		logger:  logger,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

func (g *Grounder) newID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Now(), g.entropy).String()
}

// Ground writes one line per grounded example to w, in input order.
// Examples that fail, time out or reach no labelled solution are logged,
// counted and left out; only cancellation of ctx or a write error aborts
// the batch.
func (g *Grounder) Ground(ctx context.Context, examples []*parse.Example, w io.Writer) (Stats, error) {
	stats := Stats{RunID: g.opts.RunID, Examples: len(examples)}
	if stats.RunID == "" {
		stats.RunID = g.newID()
	}

	pool := workers.Pool{Threads: g.opts.Threads, Timeout: g.opts.Timeout}
	results, runErr := workers.Run(ctx, pool, len(examples), func(ctx context.Context, i int) (string, error) {
		return g.groundTraced(ctx, examples[i])
	})

	bw := bufio.NewWriter(w)
	for i, r := range results {
		ex := examples[i]
		switch {
		case r.TimedOut:
			stats.TimedOut++
			telemetry.Example("ground", "timeout")
			g.logger.Warn("grounding timed out", zap.String("example", ex.String()), zap.Duration("timeout", g.opts.Timeout))
		case errors.Is(r.Err, ErrNoLabelledSolutions):
			stats.Skipped++
			telemetry.Example("ground", "skipped")
			g.logger.Debug("no labelled solutions", zap.String("example", ex.String()))
		case r.Err != nil:
			stats.Failed++
			telemetry.Example("ground", "error")
			g.logger.Warn("grounding failed", zap.String("example", ex.String()), zap.Error(r.Err))
		case r.Value != "":
			stats.Grounded++
			telemetry.Example("ground", "ok")
			if _, err := bw.WriteString(r.Value + "\n"); err != nil {
				return stats, fmt.Errorf("write grounded example: %w", err)
			}
			if err := g.archive(ctx, stats.RunID, ex, r.Value); err != nil {
				g.logger.Warn("archive grounding failed", zap.String("example", ex.String()), zap.Error(err))
			}
		}
	}
	if err := bw.Flush(); err != nil {
		return stats, fmt.Errorf("write grounded examples: %w", err)
	}
	g.logger.Info("grounding finished",
		zap.String("run_id", stats.RunID),
		zap.Int("examples", stats.Examples),
		zap.Int("grounded", stats.Grounded),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
		zap.Int("timed_out", stats.TimedOut))
	return stats, runErr
}

func (g *Grounder) archive(ctx context.Context, runID string, ex *parse.Example, line string) error {
	if g.opts.Store == nil {
		return nil
	}
	return g.opts.Store.SaveGrounding(ctx, store.Grounding{
		ID:        g.newID(),
		RunID:     runID,
		Query:     ex.Query.String(),
		Line:      line,
		CreatedAt: time.Now().UTC(),
	})
}

func (g *Grounder) groundTraced(ctx context.Context, ex *parse.Example) (string, error) {
	_, span := telemetry.Tracer.Start(ctx, "ground.example",
		trace.WithAttributes(attribute.String("query", ex.Query.String())))
	defer span.End()

	line, err := g.GroundExample(ex)
	if err != nil && !errors.Is(err, ErrNoLabelledSolutions) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return line, err
}

// GroundExample proves one example with a private copy of the prover and
// returns its serialized line:
//
//	query	queryIds	posIds	negIds	<ground graph>
//
// Node ids are 1-based, matching the graph encoding.
func (g *Grounder) GroundExample(ex *parse.Example) (string, error) {
	started := time.Now()
	prover := g.prover.Copy()
	graph, err := proofgraph.New(g.prog, g.plugins, ex.Query, g.opts.Graph)
	if err != nil {
		telemetry.ObserveProof(prover.Name(), started, err)
		return "", err
	}
	defer graph.Release()

	status := prove.NewStatusLogger(g.logger, g.opts.StatusInterval)
	d, err := prover.Prove(graph, status)
	telemetry.ObserveProof(prover.Name(), started, err)
	if err != nil {
		return "", err
	}

	pos := queryTexts(ex.Positive)
	neg := queryTexts(ex.Negative)
	var posIDs, negIDs []int
	for _, id := range prove.Solutions(graph, d).IDs() {
		text := proofgraph.Fill(graph, graph.State(id)).String()
		switch {
		case pos[text]:
			posIDs = append(posIDs, id+1)
		case neg[text]:
			negIDs = append(negIDs, id+1)
		}
	}
	if len(posIDs) == 0 && len(negIDs) == 0 {
		return "", ErrNoLabelledSolutions
	}

	lg, err := proofgraph.Freeze(graph, nil)
	if err != nil {
		return "", err
	}
	return strings.Join([]string{
		ex.Query.String(),
		joinIDs([]int{graph.StartID() + 1}),
		joinIDs(posIDs),
		joinIDs(negIDs),
		lg.Serialize(),
	}, "\t"), nil
}

func queryTexts(qs []*term.Query) map[string]bool {
	out := make(map[string]bool, len(qs))
	for _, q := range qs {
		out[q.String()] = true
	}
	return out
}

func joinIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}
