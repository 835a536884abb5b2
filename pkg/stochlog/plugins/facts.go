package plugins

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cognicore/stochlog/pkg/stochlog/internalerr"
	"github.com/cognicore/stochlog/pkg/stochlog/term"
	"github.com/cognicore/stochlog/pkg/stochlog/wam"
)

// FactsPlugin serves unit-weight facts from tab-separated tables:
//
//	functor	arg1	arg2	...
type FactsPlugin struct {
	name   string
	tables map[string]*table
}

// NewFactsPlugin returns an empty plugin. name appears in edge features as
// db(name).
func NewFactsPlugin(name string) *FactsPlugin {
	return &FactsPlugin{name: name, tables: make(map[string]*table)}
}

// LoadFactsFile reads a .facts file into a plugin named after the file.
func LoadFactsFile(path string) (*FactsPlugin, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open facts: %w", err)
	}
	defer f.Close()

	p := NewFactsPlugin(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	if err := p.Load(f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Load adds every fact line in r.
func (p *FactsPlugin) Load(r io.Reader) error {
	sc := bufio.NewScanner(r)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if err := p.AddFact(fields[0], fields[1:]...); err != nil {
			return fmt.Errorf("line %d: %w", lineNum, err)
		}
	}
	return sc.Err()
}

// AddFact adds one ground tuple.
func (p *FactsPlugin) AddFact(functor string, args ...string) error {
	if functor == "" {
		return fmt.Errorf("%w: fact has no functor", internalerr.ErrInvalidInput)
	}
	sig := term.Signature(functor, len(args))
	t, ok := p.tables[sig]
	if !ok {
		t = newTable(len(args))
		p.tables[sig] = t
	}
	return t.add(args, 1)
}

// Labels lists the claimed predicate labels.
func (p *FactsPlugin) Labels() []string {
	out := make([]string, 0, len(p.tables))
	for l := range p.tables {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

func (p *FactsPlugin) Name() string { return p.name }

func (p *FactsPlugin) Claim(label string) bool {
	_, ok := p.tables[label]
	return ok
}

func (p *FactsPlugin) Outlinks(s *wam.State, m *wam.Interpreter, computeFeatures bool) ([]wam.Outlink, error) {
	t := p.tables[s.JumpTo()]
	if t == nil {
		return nil, nil
	}
	return outlinks(p.name, s, m, t.arity, t.candidates(boundArgs(m, s, t.arity)), computeFeatures)
}
