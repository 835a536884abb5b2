package plugins

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cognicore/stochlog/pkg/stochlog/internalerr"
	"github.com/cognicore/stochlog/pkg/stochlog/term"
	"github.com/cognicore/stochlog/pkg/stochlog/wam"
)

// GraphPlugin serves binary predicates from labelled, optionally weighted
// edges:
//
//	label	src	dst[	weight]
//
// A call label(src,dst) is answered from the forward index when src is
// bound and from the reverse index when only dst is.
type GraphPlugin struct {
	name  string
	edges map[string]*table // "label/2" → edges
}

// NewGraphPlugin returns an empty graph plugin.
func NewGraphPlugin(name string) *GraphPlugin {
	return &GraphPlugin{name: name, edges: make(map[string]*table)}
}

// LoadGraphFile reads a .graph file into a plugin named after the file.
func LoadGraphFile(path string) (*GraphPlugin, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open graph: %w", err)
	}
	defer f.Close()

	g := NewGraphPlugin(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	if err := g.Load(f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

// Load adds every edge line in r.
func (g *GraphPlugin) Load(r io.Reader) error {
	sc := bufio.NewScanner(r)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 3 && len(fields) != 4 {
			return fmt.Errorf("%w: line %d: expected label, src, dst and optional weight", internalerr.ErrInvalidInput, lineNum)
		}
		w := 1.0
		if len(fields) == 4 {
			var err error
			if w, err = strconv.ParseFloat(fields[3], 64); err != nil {
				return fmt.Errorf("%w: line %d: weight: %v", internalerr.ErrInvalidInput, lineNum, err)
			}
		}
		g.AddEdge(fields[0], fields[1], fields[2], w)
	}
	return sc.Err()
}

// AddEdge adds label(src,dst) with weight w.
func (g *GraphPlugin) AddEdge(label, src, dst string, w float64) {
	sig := term.Signature(label, 2)
	t, ok := g.edges[sig]
	if !ok {
		t = newTable(2)
		g.edges[sig] = t
	}
	_ = t.add([]string{src, dst}, w)
}

// Labels lists the claimed predicate labels.
func (g *GraphPlugin) Labels() []string {
	out := make([]string, 0, len(g.edges))
	for l := range g.edges {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Neighbors returns the destinations of label edges out of src.
func (g *GraphPlugin) Neighbors(label, src string) []string {
	t := g.edges[term.Signature(label, 2)]
	if t == nil {
		return nil
	}
	var out []string
	for _, row := range t.candidates(map[int]string{0: src}) {
		out = append(out, row.args[1])
	}
	return out
}

func (g *GraphPlugin) Name() string { return g.name }

func (g *GraphPlugin) Claim(label string) bool {
	_, ok := g.edges[label]
	return ok
}

func (g *GraphPlugin) Outlinks(s *wam.State, m *wam.Interpreter, computeFeatures bool) ([]wam.Outlink, error) {
	t := g.edges[s.JumpTo()]
	if t == nil {
		return nil, nil
	}
	return outlinks(g.name, s, m, 2, t.candidates(boundArgs(m, s, 2)), computeFeatures)
}
