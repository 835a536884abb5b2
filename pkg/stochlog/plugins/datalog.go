package plugins

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	mengine "github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"

	"github.com/cognicore/stochlog/pkg/stochlog/internalerr"
	"github.com/cognicore/stochlog/pkg/stochlog/term"
	"github.com/cognicore/stochlog/pkg/stochlog/wam"
)

// DatalogPlugin evaluates a Mangle Datalog program to fixpoint once and
// serves every derived predicate as a unit-weight fact table. Name
// constants such as /alice are exposed without their leading slash.
type DatalogPlugin struct {
	name   string
	tables map[string]*table
	facts  int
}

// NewDatalogPlugin parses, analyses and evaluates src.
func NewDatalogPlugin(name string, src io.Reader) (*DatalogPlugin, error) {
	unit, err := parse.Unit(src)
	if err != nil {
		return nil, fmt.Errorf("%w: datalog: %v", internalerr.ErrSyntax, err)
	}
	programInfo, err := analysis.AnalyzeOneUnit(unit, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: datalog analysis: %v", internalerr.ErrInvalidInput, err)
	}
	store := factstore.NewSimpleInMemoryStore()
	if _, err := mengine.EvalProgramWithStats(programInfo, store); err != nil {
		return nil, fmt.Errorf("datalog evaluation: %w", err)
	}

	p := &DatalogPlugin{name: name, tables: make(map[string]*table)}
	for _, sym := range store.ListPredicates() {
		t := newTable(sym.Arity)
		err := store.GetFacts(ast.NewQuery(sym), func(atom ast.Atom) error {
			args := make([]string, len(atom.Args))
			for i, a := range atom.Args {
				c, ok := a.(ast.Constant)
				if !ok {
					return fmt.Errorf("non-constant argument %v in %s", a, sym.Symbol)
				}
				args[i] = constantText(c)
			}
			p.facts++
			return t.add(args, 1)
		})
		if err != nil {
			return nil, fmt.Errorf("datalog facts for %s: %w", sym.Symbol, err)
		}
		p.tables[term.Signature(sym.Symbol, sym.Arity)] = t
	}
	return p, nil
}

// LoadDatalogFile evaluates a .mg file into a plugin named after the file.
func LoadDatalogFile(path string) (*DatalogPlugin, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read datalog: %w", err)
	}
	p, err := NewDatalogPlugin(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

func constantText(c ast.Constant) string {
	switch c.Type {
	case ast.NameType:
		return strings.TrimPrefix(c.Symbol, "/")
	case ast.NumberType:
		return strconv.FormatInt(c.NumValue, 10)
	case ast.Float64Type:
		return strconv.FormatFloat(math.Float64frombits(uint64(c.NumValue)), 'g', -1, 64)
	case ast.StringType, ast.BytesType:
		return c.Symbol
	default:
		return c.String()
	}
}

// FactCount is the number of derived facts served.
func (p *DatalogPlugin) FactCount() int { return p.facts }

// Labels lists the claimed predicate labels.
func (p *DatalogPlugin) Labels() []string {
	out := make([]string, 0, len(p.tables))
	for l := range p.tables {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

func (p *DatalogPlugin) Name() string { return p.name }

func (p *DatalogPlugin) Claim(label string) bool {
	_, ok := p.tables[label]
	return ok
}

func (p *DatalogPlugin) Outlinks(s *wam.State, m *wam.Interpreter, computeFeatures bool) ([]wam.Outlink, error) {
	t := p.tables[s.JumpTo()]
	if t == nil {
		return nil, nil
	}
	return outlinks(p.name, s, m, t.arity, t.candidates(boundArgs(m, s, t.arity)), computeFeatures)
}
