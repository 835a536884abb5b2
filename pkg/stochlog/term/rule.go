package term

import "strings"

// Rule is a Horn clause. Head is nil for headless rules (compiled queries).
// Findall holds generator goals for features that must be computed by a
// sub-derivation.
type Rule struct {
	Head     *Goal
	Body     []Goal
	Features []Goal
	Findall  []Goal
	VarNames []string
}

// goals returns every goal of the rule in variable-numbering order.
func (r *Rule) goals() [][]Goal {
	var head []Goal
	if r.Head != nil {
		head = []Goal{*r.Head}
	}
	return [][]Goal{head, r.Body, r.Features, r.Findall}
}

// Variables returns the distinct variable indices in order of first
// appearance.
func (r *Rule) Variables() []int {
	seen := make(map[int]bool)
	var out []int
	for _, section := range r.goals() {
		for _, g := range section {
			for _, a := range g.Args {
				if a.isVar && !seen[a.index] {
					seen[a.index] = true
					out = append(out, a.index)
				}
			}
		}
	}
	return out
}

// NVars is the number of distinct variables.
func (r *Rule) NVars() int { return len(r.Variables()) }

// Variabilize returns a copy of r whose variables are renumbered densely
// from zero in order of first appearance. Variable names follow.
func (r *Rule) Variabilize() *Rule {
	order := r.Variables()
	remap := make(map[int]int, len(order))
	names := make([]string, len(order))
	for i, v := range order {
		remap[v] = i
		if v >= 0 && v < len(r.VarNames) {
			names[i] = r.VarNames[v]
		}
	}
	renumber := func(goals []Goal) []Goal {
		if goals == nil {
			return nil
		}
		out := make([]Goal, len(goals))
		for i, g := range goals {
			args := make([]Argument, len(g.Args))
			for j, a := range g.Args {
				if a.isVar {
					a = Variable(remap[a.index])
				}
				args[j] = a
			}
			out[i] = Goal{Functor: g.Functor, Args: args}
		}
		return out
	}
	out := &Rule{
		Body:     renumber(r.Body),
		Features: renumber(r.Features),
		Findall:  renumber(r.Findall),
		VarNames: names,
	}
	if r.Head != nil {
		h := renumber([]Goal{*r.Head})[0]
		out.Head = &h
	}
	return out
}

// String renders the rule in clause syntax.
func (r *Rule) String() string {
	var b strings.Builder
	if r.Head != nil {
		b.WriteString(r.Head.render(r.VarNames))
	}
	if len(r.Body) > 0 {
		if r.Head != nil {
			b.WriteString(" ")
		}
		b.WriteString(":- ")
		b.WriteString(renderGoals(r.Body, r.VarNames))
	}
	if len(r.Features) > 0 || len(r.Findall) > 0 {
		b.WriteString(" {")
		b.WriteString(renderGoals(r.Features, r.VarNames))
		if len(r.Findall) > 0 {
			b.WriteString(" : ")
			b.WriteString(renderGoals(r.Findall, r.VarNames))
		}
		b.WriteString("}")
	}
	b.WriteString(".")
	return b.String()
}

// Query is a conjunction of goals whose free variables are to be bound.
type Query struct {
	Body     []Goal
	VarNames []string
}

// NewQuery builds a query over the given goals.
func NewQuery(names []string, goals ...Goal) *Query {
	return &Query{Body: goals, VarNames: names}
}

// Rule returns the headless rule the query compiles to.
func (q *Query) Rule() *Rule {
	return &Rule{Body: q.Body, VarNames: q.VarNames}
}

// Variabilize renumbers variables densely from zero.
func (q *Query) Variabilize() *Query {
	r := q.Rule().Variabilize()
	return &Query{Body: r.Body, VarNames: r.VarNames}
}

// NVars is the number of distinct variables.
func (q *Query) NVars() int { return q.Rule().NVars() }

// Fill instantiates variables from bindings indexed by register. Unbound
// entries ("") leave the variable in place.
func (q *Query) Fill(bindings []string) *Query {
	body := make([]Goal, len(q.Body))
	for i, g := range q.Body {
		args := make([]Argument, len(g.Args))
		for j, a := range g.Args {
			if a.isVar && a.index < len(bindings) && bindings[a.index] != "" {
				a = Constant(bindings[a.index])
			}
			args[j] = a
		}
		body[i] = Goal{Functor: g.Functor, Args: args}
	}
	return &Query{Body: body, VarNames: q.VarNames}
}

// String renders the goals joined by commas.
func (q *Query) String() string {
	return renderGoals(q.Body, q.VarNames)
}
