// Package stochlog is the facade over the compiler, proof graph and provers.
// An Engine holds one sealed program with its fact plugins and a prover, and
// answers single queries or batches of queries and labelled examples.
package stochlog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/cognicore/stochlog/pkg/stochlog/answer"
	"github.com/cognicore/stochlog/pkg/stochlog/config"
	"github.com/cognicore/stochlog/pkg/stochlog/ground"
	"github.com/cognicore/stochlog/pkg/stochlog/parse"
	"github.com/cognicore/stochlog/pkg/stochlog/proofgraph"
	"github.com/cognicore/stochlog/pkg/stochlog/prove"
	"github.com/cognicore/stochlog/pkg/stochlog/store"
	"github.com/cognicore/stochlog/pkg/stochlog/term"
	"github.com/cognicore/stochlog/pkg/stochlog/wam"
	"github.com/cognicore/stochlog/pkg/stochlog/weight"
)

// Solution is one distinct answer to a query with its probability.
type Solution = prove.SolvedQuery

// Engine is the main inference facade.
type Engine struct {
	prog     *wam.Program
	plugins  []wam.Plugin
	weighter weight.Weighter
	prover   prove.Prover
	graph    proofgraph.Options
	answerer *answer.Answerer
	grounder *ground.Grounder
	logger   *zap.Logger
	closers  []io.Closer
}

// Options configures an Engine. Only Program is needed; a nil Prover means
// a PPR prover with default settings over Weighter, a nil Weighter means
// unit feature weights and a nil Graph means proofgraph.DefaultOptions.
type Options struct {
	Program  *wam.Program
	Plugins  []wam.Plugin
	Weighter weight.Weighter
	Prover   prove.Prover
	Graph    *proofgraph.Options

	Threads        int
	Timeout        time.Duration
	StatusInterval time.Duration

	// Archive receives grounded lines under RunID.
	Archive store.Store
	RunID   string

	Logger *zap.Logger
	// Closers are released by Close, in order.
	Closers []io.Closer
}

// New creates an Engine from already built components. The program is
// sealed.
func New(opts Options) (*Engine, error) {
	if opts.Program == nil {
		return nil, errors.New("stochlog: no program")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	w := opts.Weighter
	if w == nil {
		w = weight.NewFeatureWeighter(nil, nil)
	}
	prover := opts.Prover
	if prover == nil {
		prover = prove.NewPprProver(w, prove.DefaultPprOptions())
	}
	graph := proofgraph.DefaultOptions()
	if opts.Graph != nil {
		graph = *opts.Graph
	}
	opts.Program.Seal()

	return &Engine{
		prog:     opts.Program,
		plugins:  opts.Plugins,
		weighter: w,
		prover:   prover,
		graph:    graph,
		answerer: answer.New(opts.Program, opts.Plugins, prover, answer.Options{
			Threads:        opts.Threads,
			Timeout:        opts.Timeout,
			Graph:          graph,
			StatusInterval: opts.StatusInterval,
			Logger:         logger.Named("answer"),
		}),
		grounder: ground.New(opts.Program, opts.Plugins, prover, ground.Options{
			Threads:        opts.Threads,
			Timeout:        opts.Timeout,
			Graph:          graph,
			StatusInterval: opts.StatusInterval,
			Store:          opts.Archive,
			RunID:          opts.RunID,
			Logger:         logger.Named("ground"),
		}),
		logger:  logger,
		closers: opts.Closers,
	}, nil
}

// Open loads every component cfg describes, relative to baseDir, and
// builds an Engine from them. The logger, archive, run id and closers of
// extra are kept; the loaded components replace the rest.
func Open(ctx context.Context, cfg *config.Config, baseDir string, extra Options) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	loader := config.Loader{Config: cfg, BaseDir: baseDir}
	comp, err := loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	if extra.Logger != nil {
		extra.Logger.Debug("program loaded",
			zap.Strings("rules", comp.RuleFiles),
			zap.Strings("facts", comp.FactFiles),
			zap.Int("instructions", comp.Program.Size()),
			zap.String("prover", comp.Prover.Name()))
	}
	graph := cfg.GraphOptions()
	return New(Options{
		Program:        comp.Program,
		Plugins:        comp.Plugins,
		Weighter:       comp.Weighter,
		Prover:         comp.Prover,
		Graph:          &graph,
		Threads:        cfg.Grounding.Threads,
		Timeout:        cfg.Grounding.Timeout,
		StatusInterval: cfg.Prover.StatusInterval,
		Archive:        extra.Archive,
		RunID:          extra.RunID,
		Logger:         extra.Logger,
		Closers:        append([]io.Closer{comp}, extra.Closers...),
	})
}

// Close releases the closers handed to New.
func (e *Engine) Close() error {
	var errs []error
	for _, c := range e.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Program returns the sealed program.
func (e *Engine) Program() *wam.Program { return e.prog }

// Weighter returns the feature weighter the prover scores edges with.
func (e *Engine) Weighter() weight.Weighter { return e.weighter }

// Prover returns the configured prover.
func (e *Engine) Prover() prove.Prover { return e.prover }

// Prove parses and proves one query and returns its distinct solutions,
// most probable first.
func (e *Engine) Prove(query string) ([]Solution, error) {
	q, err := parse.ParseQuery(query)
	if err != nil {
		return nil, err
	}
	return e.answerer.Solve(q)
}

// Explain proves query and renders the explored proof graph to depth.
func (e *Engine) Explain(query string, depth int) (string, []Solution, error) {
	q, err := parse.ParseQuery(query)
	if err != nil {
		return "", nil, err
	}
	g, err := proofgraph.New(e.prog, e.plugins, q, e.graph)
	if err != nil {
		return "", nil, err
	}
	defer g.Release()

	d, err := e.prover.Copy().Prove(g, prove.NewStatusLogger(e.logger, 0))
	if err != nil {
		return "", nil, fmt.Errorf("prove %s: %w", query, err)
	}
	return proofgraph.Tree(g, depth), prove.SolvedQueries(g, d), nil
}

// Answer proves queries in parallel and writes the ranked solutions to w.
func (e *Engine) Answer(ctx context.Context, queries []*term.Query, w io.Writer) (answer.Stats, error) {
	return e.answerer.Answer(ctx, queries, w)
}

// Ground grounds labelled examples in parallel and writes one line per
// grounded example to w.
func (e *Engine) Ground(ctx context.Context, examples []*parse.Example, w io.Writer) (ground.Stats, error) {
	return e.grounder.Ground(ctx, examples, w)
}
