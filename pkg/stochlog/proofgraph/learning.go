package proofgraph

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cognicore/stochlog/pkg/stochlog/internalerr"
	"github.com/cognicore/stochlog/pkg/stochlog/wam"
)

// LearningGraph is the frozen, array-encoded form of a proof graph handed
// to training. Node and feature ids are 1-based; index 0 of the per-node
// arrays is unused.
//
// The edges out of node u are edgeDest[nodeNearLo[u]:nodeNearHi[u]], and
// the features on edge e are the label slots edgeLabelsLo[e]:edgeLabelsHi[e]
// of labelFeatureID and labelWeight.
type LearningGraph struct {
	NodeNearLo     []int
	NodeNearHi     []int
	EdgeDest       []int
	EdgeLabelsLo   []int
	EdgeLabelsHi   []int
	LabelFeatureID []int
	LabelWeight    []float64
	Features       []wam.Feature // Features[i-1] has id i
}

// NodeCount excludes the unused slot 0.
func (lg *LearningGraph) NodeCount() int {
	if len(lg.NodeNearLo) == 0 {
		return 0
	}
	return len(lg.NodeNearLo) - 1
}

func (lg *LearningGraph) EdgeCount() int { return len(lg.EdgeDest) }

// LabelDependencyCount is the number of (edge, feature) pairs.
func (lg *LearningGraph) LabelDependencyCount() int { return len(lg.LabelFeatureID) }

// Freeze encodes the expanded part of g. Graph node id i becomes i+1;
// edges keep their order, features on an edge are sorted by feature.
// Features whose text would break the serialized form are rejected with
// internalerr.ErrInvalidInput.
func Freeze(g Graph, table *wam.FeatureTable) (*LearningGraph, error) {
	if table == nil {
		table = wam.NewFeatureTable()
	}
	n := g.NodeCount()
	lg := &LearningGraph{
		NodeNearLo: make([]int, n+1),
		NodeNearHi: make([]int, n+1),
	}
	for id := 0; id < n; id++ {
		lg.NodeNearLo[id+1] = len(lg.EdgeDest)
		if g.Expanded(id) {
			out, err := g.Outlinks(id)
			if err != nil {
				return nil, err
			}
			for _, e := range out {
				lg.EdgeLabelsLo = append(lg.EdgeLabelsLo, len(lg.LabelFeatureID))
				for _, f := range e.Features.Keys() {
					if strings.ContainsAny(string(f), featureSeparators) {
						return nil, fmt.Errorf("%w: feature %q cannot be serialized", internalerr.ErrInvalidInput, f)
					}
					lg.LabelFeatureID = append(lg.LabelFeatureID, table.ID(f))
					lg.LabelWeight = append(lg.LabelWeight, e.Features[f])
				}
				lg.EdgeLabelsHi = append(lg.EdgeLabelsHi, len(lg.LabelFeatureID))
				lg.EdgeDest = append(lg.EdgeDest, e.To+1)
			}
		}
		lg.NodeNearHi[id+1] = len(lg.EdgeDest)
	}
	lg.Features = table.Features()
	return lg, nil
}

// featureSeparators delimit the feature list and the fields of the
// serialized form.
const featureSeparators = ":\t\r\n"

// Serialize renders the tab-delimited ground form:
//
//	nodes	edges	labelDeps	f1:f2:...	src->dst:fid=w,fid=w	...
func (lg *LearningGraph) Serialize() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d\t%d\t%d\t", lg.NodeCount(), lg.EdgeCount(), lg.LabelDependencyCount())
	for i, f := range lg.Features {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(string(f))
	}
	for u := 1; u < len(lg.NodeNearLo); u++ {
		for e := lg.NodeNearLo[u]; e < lg.NodeNearHi[u]; e++ {
			fmt.Fprintf(&b, "\t%d->%d:", u, lg.EdgeDest[e])
			for l := lg.EdgeLabelsLo[e]; l < lg.EdgeLabelsHi[e]; l++ {
				if l > lg.EdgeLabelsLo[e] {
					b.WriteByte(',')
				}
				b.WriteString(strconv.Itoa(lg.LabelFeatureID[l]))
				b.WriteByte('=')
				b.WriteString(strconv.FormatFloat(lg.LabelWeight[l], 'g', -1, 64))
			}
		}
	}
	return b.String()
}

// Parse reads the output of Serialize. Edges must be grouped by source in
// ascending order, as Serialize writes them.
func Parse(line string) (*LearningGraph, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 4 {
		return nil, fmt.Errorf("%w: ground graph has %d fields, want at least 4", internalerr.ErrSyntax, len(fields))
	}
	var counts [3]int
	for i := range counts {
		v, err := strconv.Atoi(fields[i])
		if err != nil || v < 0 {
			return nil, fmt.Errorf("%w: ground graph count %q", internalerr.ErrSyntax, fields[i])
		}
		counts[i] = v
	}
	nodes, edges, deps := counts[0], counts[1], counts[2]
	if len(fields)-4 != edges {
		return nil, fmt.Errorf("%w: ground graph declares %d edges, has %d", internalerr.ErrSyntax, edges, len(fields)-4)
	}

	lg := &LearningGraph{
		NodeNearLo: make([]int, nodes+1),
		NodeNearHi: make([]int, nodes+1),
	}
	if fields[3] != "" {
		for _, f := range strings.Split(fields[3], ":") {
			lg.Features = append(lg.Features, wam.Feature(f))
		}
	}

	prev := 0
	for i, field := range fields[4:] {
		arrow := strings.Index(field, "->")
		colon := strings.IndexByte(field, ':')
		if arrow < 0 || colon < arrow {
			return nil, fmt.Errorf("%w: edge %q", internalerr.ErrSyntax, field)
		}
		src, err1 := strconv.Atoi(field[:arrow])
		dst, err2 := strconv.Atoi(field[arrow+2 : colon])
		if err1 != nil || err2 != nil || src < 1 || src > nodes || dst < 1 || dst > nodes {
			return nil, fmt.Errorf("%w: edge endpoints %q", internalerr.ErrSyntax, field)
		}
		if src < prev {
			return nil, fmt.Errorf("%w: edge %q out of source order", internalerr.ErrSyntax, field)
		}
		for u := prev + 1; u <= src; u++ {
			lg.NodeNearLo[u] = i
			lg.NodeNearHi[u] = i
		}
		prev = src
		lg.NodeNearHi[src] = i + 1

		lg.EdgeLabelsLo = append(lg.EdgeLabelsLo, len(lg.LabelFeatureID))
		if labels := field[colon+1:]; labels != "" {
			for _, lab := range strings.Split(labels, ",") {
				fid, w, ok := strings.Cut(lab, "=")
				if !ok {
					return nil, fmt.Errorf("%w: label %q", internalerr.ErrSyntax, lab)
				}
				id, err := strconv.Atoi(fid)
				if err != nil || id < 1 || id > len(lg.Features) {
					return nil, fmt.Errorf("%w: feature id %q", internalerr.ErrSyntax, fid)
				}
				v, err := strconv.ParseFloat(w, 64)
				if err != nil {
					return nil, fmt.Errorf("%w: label weight %q", internalerr.ErrSyntax, w)
				}
				lg.LabelFeatureID = append(lg.LabelFeatureID, id)
				lg.LabelWeight = append(lg.LabelWeight, v)
			}
		}
		lg.EdgeLabelsHi = append(lg.EdgeLabelsHi, len(lg.LabelFeatureID))
		lg.EdgeDest = append(lg.EdgeDest, dst)
	}
	for u := prev + 1; u <= nodes; u++ {
		lg.NodeNearLo[u] = edges
		lg.NodeNearHi[u] = edges
	}
	if len(lg.LabelFeatureID) != deps {
		return nil, fmt.Errorf("%w: ground graph declares %d label dependencies, has %d", internalerr.ErrSyntax, deps, len(lg.LabelFeatureID))
	}
	return lg, nil
}
