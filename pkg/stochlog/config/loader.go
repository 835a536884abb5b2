package config

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/cognicore/stochlog/pkg/stochlog/internalerr"
	"github.com/cognicore/stochlog/pkg/stochlog/parse"
	"github.com/cognicore/stochlog/pkg/stochlog/plugins"
	"github.com/cognicore/stochlog/pkg/stochlog/prove"
	"github.com/cognicore/stochlog/pkg/stochlog/store"
	"github.com/cognicore/stochlog/pkg/stochlog/store/sqlite"
	"github.com/cognicore/stochlog/pkg/stochlog/wam"
	"github.com/cognicore/stochlog/pkg/stochlog/weight"
)

// Loader builds the components a configuration describes.
type Loader struct {
	Config *Config
	// BaseDir anchors relative paths and globs; empty means the working
	// directory.
	BaseDir string
}

// Components holds everything needed to prove queries.
type Components struct {
	Program  *wam.Program // sealed
	Plugins  []wam.Plugin
	Weighter *weight.FeatureWeighter
	Prover   prove.Prover
	// Store is the opened fact store, if one is configured. The caller
	// closes it.
	Store     store.Store
	RuleFiles []string
	FactFiles []string
}

// Close releases the fact store.
func (c *Components) Close() error {
	if c.Store == nil {
		return nil
	}
	return c.Store.Close()
}

// Load compiles the rules, loads the fact sources and builds the weighter
// and prover.
func (l *Loader) Load(ctx context.Context) (*Components, error) {
	cfg := l.Config
	if cfg == nil {
		cfg = Default()
	}
	comp := &Components{}

	// Rules
	rules, err := l.expand(cfg.Program.Rules)
	if err != nil {
		return nil, fmt.Errorf("rule globs: %w", err)
	}
	prog, err := CompileFiles(rules)
	if err != nil {
		return nil, err
	}
	prog.Seal()
	comp.Program = prog
	comp.RuleFiles = rules

	// Fact sources
	facts, err := l.expand(cfg.Program.Facts)
	if err != nil {
		return nil, fmt.Errorf("fact globs: %w", err)
	}
	for _, path := range facts {
		p, err := loadFactSource(path)
		if err != nil {
			return nil, err
		}
		comp.Plugins = append(comp.Plugins, p)
	}
	comp.FactFiles = facts

	if cfg.Program.Store != "" {
		st, err := sqlite.OpenSQLite(ctx, l.path(cfg.Program.Store))
		if err != nil {
			return nil, fmt.Errorf("open fact store: %w", err)
		}
		sp, err := plugins.NewStorePlugin(ctx, "store", st, cfg.Program.StoreCacheSize)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("fact store plugin: %w", err)
		}
		comp.Store = st
		comp.Plugins = append(comp.Plugins, sp)
	}

	// Weighting
	squash, err := weight.Squashing(cfg.Weighting.Squashing)
	if err != nil {
		comp.Close()
		return nil, err
	}
	var params *weight.ParamVector
	if cfg.Weighting.Params != "" {
		f, err := os.Open(l.path(cfg.Weighting.Params))
		if err != nil {
			comp.Close()
			return nil, fmt.Errorf("load params: %w", err)
		}
		params, err = weight.LoadParams(f)
		f.Close()
		if err != nil {
			comp.Close()
			return nil, fmt.Errorf("load params: %w", err)
		}
	}
	comp.Weighter = weight.NewFeatureWeighter(params, squash)

	comp.Prover, err = cfg.Prover.BuildProver(comp.Weighter)
	if err != nil {
		comp.Close()
		return nil, err
	}
	return comp, nil
}

func (l *Loader) path(p string) string {
	if filepath.IsAbs(p) || l.BaseDir == "" {
		return p
	}
	return filepath.Join(l.BaseDir, p)
}

// expand resolves globs in order, dropping duplicates. A pattern without
// glob characters must name an existing file.
func (l *Loader) expand(patterns []string) ([]string, error) {
	base := l.BaseDir
	if base == "" {
		base = "."
	}
	fsys := os.DirFS(base)
	seen := make(map[string]bool)
	var out []string
	for _, pattern := range patterns {
		var matches []string
		if filepath.IsAbs(pattern) {
			m, err := doublestar.FilepathGlob(pattern)
			if err != nil {
				return nil, fmt.Errorf("%w: pattern %q: %v", internalerr.ErrInvalidConfig, pattern, err)
			}
			matches = m
		} else {
			m, err := doublestar.Glob(fsys, filepath.ToSlash(pattern))
			if err != nil {
				return nil, fmt.Errorf("%w: pattern %q: %v", internalerr.ErrInvalidConfig, pattern, err)
			}
			for _, rel := range m {
				matches = append(matches, l.path(filepath.FromSlash(rel)))
			}
		}
		if len(matches) == 0 && !strings.ContainsAny(pattern, "*?[{") {
			return nil, fmt.Errorf("%w: %s", internalerr.ErrNotFound, pattern)
		}
		sort.Strings(matches)
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	return out, nil
}

// CompileFiles compiles .ppr rule files, and appends .wam program files,
// into one program in the given order.
func CompileFiles(paths []string) (*wam.Program, error) {
	prog := wam.NewProgram()
	comp := wam.NewCompiler()
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read rules: %w", err)
		}
		if filepath.Ext(path) == ".wam" {
			loaded, err := wam.Load(bytes.NewReader(data))
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			if err := appendProgram(prog, loaded); err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			continue
		}
		rules, err := parse.ParseRules(string(data))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if err := comp.CompileRules(rules, prog); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return prog, nil
}

// appendProgram copies src onto the end of dst. Findall targets are the
// only absolute addresses in clause code and are shifted; synthesized id
// features keep the address they were compiled at.
func appendProgram(dst, src *wam.Program) error {
	offset := dst.Size()
	for addr := 0; addr <= src.Size(); addr++ {
		for _, label := range src.LabelsAt(addr) {
			if err := dst.InsertLabel(label); err != nil {
				return err
			}
		}
		if addr == src.Size() {
			break
		}
		ins := src.Instruction(addr)
		if ins.Op == wam.OpFFindall && ins.Num >= 0 {
			ins = wam.FFindall(ins.Num + offset)
		}
		if _, err := dst.Append(ins); err != nil {
			return err
		}
	}
	return nil
}

func loadFactSource(path string) (wam.Plugin, error) {
	switch filepath.Ext(path) {
	case ".facts", ".cfacts":
		return plugins.LoadFactsFile(path)
	case ".graph":
		return plugins.LoadGraphFile(path)
	case ".mg":
		return plugins.LoadDatalogFile(path)
	default:
		return nil, fmt.Errorf("%w: unknown fact source type %s", internalerr.ErrInvalidConfig, path)
	}
}
