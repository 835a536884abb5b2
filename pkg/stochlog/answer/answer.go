// Package answer proves batches of queries and writes their ranked
// solutions.
package answer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/cognicore/stochlog/internal/telemetry"
	"github.com/cognicore/stochlog/internal/workers"
	"github.com/cognicore/stochlog/pkg/stochlog/proofgraph"
	"github.com/cognicore/stochlog/pkg/stochlog/prove"
	"github.com/cognicore/stochlog/pkg/stochlog/term"
	"github.com/cognicore/stochlog/pkg/stochlog/wam"
)

// Options configures an Answerer.
type Options struct {
	Threads        int
	Timeout        time.Duration
	Graph          proofgraph.Options
	StatusInterval time.Duration
	Logger         *zap.Logger
}

// Stats summarises one Answer call.
type Stats struct {
	Queries  int
	Answered int
	Empty    int
	Failed   int
	TimedOut int
}

// Answerer proves queries against one sealed program.
type Answerer struct {
	prog    *wam.Program
	plugins []wam.Plugin
	prover  prove.Prover
	opts    Options
	logger  *zap.Logger
}

// New seals prog and returns an answerer.
func New(prog *wam.Program, plugins []wam.Plugin, prover prove.Prover, opts Options) *Answerer {
	prog.Seal()
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Answerer{prog: prog, plugins: plugins, prover: prover, opts: opts, logger: logger}
}

// Solve proves one query with a private copy of the prover and returns its
// distinct solutions, most probable first.
func (a *Answerer) Solve(q *term.Query) ([]prove.SolvedQuery, error) {
	started := time.Now()
	prover := a.prover.Copy()
	g, err := proofgraph.New(a.prog, a.plugins, q, a.opts.Graph)
	if err != nil {
		telemetry.ObserveProof(prover.Name(), started, err)
		return nil, err
	}
	defer g.Release()

	d, err := prover.Prove(g, prove.NewStatusLogger(a.logger, a.opts.StatusInterval))
	telemetry.ObserveProof(prover.Name(), started, err)
	if err != nil {
		return nil, err
	}
	return prove.SolvedQueries(g, d), nil
}

type solved struct {
	solutions []prove.SolvedQuery
	elapsed   time.Duration
}

// Answer writes, for the n-th query (1-based),
//
//	# proved	n	query	msec msec
//	rank	prob	solution
//
// in input order. A query that fails or times out gets its header line and
// no solutions.
func (a *Answerer) Answer(ctx context.Context, queries []*term.Query, w io.Writer) (Stats, error) {
	stats := Stats{Queries: len(queries)}
	pool := workers.Pool{Threads: a.opts.Threads, Timeout: a.opts.Timeout}
	results, runErr := workers.Run(ctx, pool, len(queries), func(ctx context.Context, i int) (solved, error) {
		return a.solveTraced(ctx, queries[i])
	})
	if runErr != nil {
		return stats, runErr
	}

	bw := bufio.NewWriter(w)
	for i, r := range results {
		q := queries[i]
		switch {
		case r.TimedOut:
			stats.TimedOut++
			telemetry.Example("answer", "timeout")
			a.logger.Warn("answering timed out", zap.String("query", q.String()), zap.Duration("timeout", a.opts.Timeout))
		case r.Err != nil:
			stats.Failed++
			telemetry.Example("answer", "error")
			a.logger.Warn("answering failed", zap.String("query", q.String()), zap.Error(r.Err))
		case len(r.Value.solutions) == 0:
			stats.Empty++
			telemetry.Example("answer", "empty")
		default:
			stats.Answered++
			telemetry.Example("answer", "ok")
		}

		elapsed := r.Elapsed
		if r.Err == nil {
			elapsed = r.Value.elapsed
		}
		fmt.Fprintf(bw, "# proved\t%d\t%s\t%d msec\n", i+1, q, elapsed.Milliseconds())
		for rank, sq := range r.Value.solutions {
			fmt.Fprintf(bw, "%d\t%s\t%s\n", rank+1, strconv.FormatFloat(sq.Mass, 'g', 6, 64), sq.Query)
		}
	}
	if err := bw.Flush(); err != nil {
		return stats, fmt.Errorf("write answers: %w", err)
	}
	a.logger.Info("answering finished",
		zap.Int("queries", stats.Queries),
		zap.Int("answered", stats.Answered),
		zap.Int("empty", stats.Empty),
		zap.Int("failed", stats.Failed),
		zap.Int("timed_out", stats.TimedOut))
	return stats, nil
}

func (a *Answerer) solveTraced(ctx context.Context, q *term.Query) (solved, error) {
	_, span := telemetry.Tracer.Start(ctx, "answer.query",
		trace.WithAttributes(attribute.String("query", q.String())))
	defer span.End()

	started := time.Now()
	sols, err := a.Solve(q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return solved{}, err
	}
	span.SetAttributes(attribute.Int("solutions", len(sols)))
	return solved{solutions: sols, elapsed: time.Since(started)}, nil
}
