// Package config loads the YAML configuration of a proving run and builds
// the program, plugins, weighter and prover it describes.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/cognicore/stochlog/pkg/stochlog/internalerr"
	"github.com/cognicore/stochlog/pkg/stochlog/proofgraph"
	"github.com/cognicore/stochlog/pkg/stochlog/prove"
	"github.com/cognicore/stochlog/pkg/stochlog/wam"
	"github.com/cognicore/stochlog/pkg/stochlog/weight"
)

// Config is the whole run configuration.
type Config struct {
	Program   Program   `yaml:"program"`
	Prover    Prover    `yaml:"prover"`
	Graph     Graph     `yaml:"graph"`
	Weighting Weighting `yaml:"weighting"`
	Grounding Grounding `yaml:"grounding"`
}

// Program names the rule files and fact sources. Paths and globs are
// relative to the configuration file's directory.
type Program struct {
	// Rules are doublestar globs of .ppr rule files or .wam compiled
	// programs.
	Rules []string `yaml:"rules"`
	// Facts are globs of .facts tables, .graph edge lists and .mg Datalog
	// programs.
	Facts []string `yaml:"facts"`
	// Store is an optional sqlite database served as a fact source.
	Store          string `yaml:"store"`
	StoreCacheSize int    `yaml:"store_cache_size" validate:"gte=0"`
}

// Prover selects and tunes the prover.
type Prover struct {
	Kind           string        `yaml:"kind" validate:"oneof=dfs ppr power"`
	Alpha          float64       `yaml:"alpha" validate:"gt=0,lt=1"`
	Epsilon        float64       `yaml:"epsilon" validate:"gt=0"`
	MaxDepth       int           `yaml:"max_depth" validate:"gte=1"`
	MaxIterations  int           `yaml:"max_iterations" validate:"gte=1"`
	MaxNodes       int           `yaml:"max_nodes" validate:"gte=1"`
	StatusInterval time.Duration `yaml:"status_interval" validate:"gte=0"`
	// Allow and Deny hide predicate labels such as "edge/2". With Prune
	// "redistribute" the prover is wrapped in a pruning prover that moves
	// the mass of hidden states onto visible ones; with "expand" hidden
	// states are dropped while the graph is expanded.
	Allow []string `yaml:"allow"`
	Deny  []string `yaml:"deny"`
	Prune string   `yaml:"prune" validate:"oneof=redistribute expand"`
}

func (p Prover) filter() *proofgraph.PredicateFilter {
	if len(p.Allow) == 0 && len(p.Deny) == 0 {
		return nil
	}
	return proofgraph.NewPredicateFilter(p.Allow, p.Deny)
}

// Graph tunes proof-graph expansion.
type Graph struct {
	TrueLoop            bool `yaml:"true_loop"`
	MaxFindallDepth     int  `yaml:"max_findall_depth" validate:"gte=1"`
	MaxFindallSolutions int  `yaml:"max_findall_solutions" validate:"gte=1"`
}

// Weighting selects the squashing function and an optional parameter file.
type Weighting struct {
	Squashing string `yaml:"squashing" validate:"oneof=linear exp relu leaky_relu sigmoid tanh clipped_exp"`
	Params    string `yaml:"params"`
}

// Grounding tunes the worker pool used for grounding and answering.
type Grounding struct {
	Threads int           `yaml:"threads" validate:"gte=1"`
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
}

// Default returns a usable configuration with no program.
func Default() *Config {
	ppr := prove.DefaultPprOptions()
	interp := wam.DefaultOptions()
	return &Config{
		Prover: Prover{
			Kind:           "ppr",
			Alpha:          ppr.Alpha,
			Epsilon:        ppr.Epsilon,
			MaxDepth:       prove.DefaultMaxDepth,
			MaxIterations:  ppr.MaxIterations,
			MaxNodes:       ppr.MaxNodes,
			StatusInterval: prove.DefaultStatusInterval,
			Prune:          "redistribute",
		},
		Graph: Graph{
			TrueLoop:            true,
			MaxFindallDepth:     interp.MaxFindallDepth,
			MaxFindallSolutions: interp.MaxFindallSolutions,
		},
		Weighting: Weighting{Squashing: weight.DefaultSquashing},
		Grounding: Grounding{Threads: 1, Timeout: time.Minute},
	}
}

var validate = validator.New()

// Validate checks the struct constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			v := verrs[0]
			return fmt.Errorf("%w: %s fails %q (value %v)", internalerr.ErrInvalidConfig, v.Namespace(), v.Tag(), v.Value())
		}
		return fmt.Errorf("%w: %v", internalerr.ErrInvalidConfig, err)
	}
	return nil
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", internalerr.ErrInvalidConfig, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// GraphOptions converts the graph section. The prover's allow and deny
// lists become the graph filter when pruning happens during expansion.
func (c *Config) GraphOptions() proofgraph.Options {
	opts := proofgraph.Options{
		TrueLoop: c.Graph.TrueLoop,
		Interp: wam.Options{
			MaxFindallDepth:     c.Graph.MaxFindallDepth,
			MaxFindallSolutions: c.Graph.MaxFindallSolutions,
		},
	}
	if f := c.Prover.filter(); f != nil && c.Prover.Prune == "expand" {
		opts.Filter = f
	}
	return opts
}

// BuildProver constructs the configured prover around w.
func (p Prover) BuildProver(w weight.Weighter) (prove.Prover, error) {
	var pr prove.Prover
	switch p.Kind {
	case "dfs":
		pr = prove.NewDfsProver(w, p.MaxDepth)
	case "ppr":
		pr = prove.NewPprProver(w, prove.PprOptions{
			Alpha:         p.Alpha,
			Epsilon:       p.Epsilon,
			MaxIterations: p.MaxIterations,
			MaxNodes:      p.MaxNodes,
		})
	case "power":
		pr = prove.NewPowerIterationProver(w, p.Alpha, p.Epsilon, p.MaxDepth)
	default:
		return nil, fmt.Errorf("%w: unknown prover %q", internalerr.ErrInvalidConfig, p.Kind)
	}
	if f := p.filter(); f != nil && p.Prune != "expand" {
		pr = prove.NewPruningProver(pr, f)
	}
	return pr, nil
}
