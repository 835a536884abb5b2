// Package parse reads the clause syntax of stochlog rule files:
//
//	# comment
//	coworker(X,Y) :- employee(X,Z), employee(Y,Z).
//	employee(alice, ibm).
//	p(X) :- q(X) {f(X)}.
//	p(X) :- q(X) {f(W) : r(X,W)}.
//
// Identifiers starting with an uppercase letter or '_' are variables; a
// lone '_' is anonymous. Quoted text is always a constant.
package parse

import (
	"fmt"
	"os"

	"github.com/cognicore/stochlog/pkg/stochlog/internalerr"
	"github.com/cognicore/stochlog/pkg/stochlog/term"
)

type parser struct {
	toks []token
	pos  int

	// per-clause variable numbering
	vars  map[string]int
	names []string
}

func newParser(src string) (*parser, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrSyntax, err)
	}
	return &parser{toks: toks}, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) accept(k tokenKind) bool {
	if p.peek().kind == k {
		p.next()
		return true
	}
	return false
}

func (p *parser) expect(k tokenKind) (token, error) {
	t := p.next()
	if t.kind != k {
		return t, p.errorf(t, "expected %s, found %s", k, describe(t))
	}
	return t, nil
}

func (p *parser) errorf(t token, format string, args ...any) error {
	return fmt.Errorf("%w: line %d: %s", internalerr.ErrSyntax, t.line, fmt.Sprintf(format, args...))
}

func describe(t token) string {
	if t.text == "" {
		return t.kind.String()
	}
	return fmt.Sprintf("%s %q", t.kind, t.text)
}

func (p *parser) resetVars() {
	p.vars = make(map[string]int)
	p.names = nil
}

func (p *parser) variable(name string) term.Argument {
	if name == "_" {
		p.names = append(p.names, "_")
		return term.Variable(len(p.names) - 1)
	}
	if i, ok := p.vars[name]; ok {
		return term.Variable(i)
	}
	i := len(p.names)
	p.vars[name] = i
	p.names = append(p.names, name)
	return term.Variable(i)
}

func (p *parser) goal() (term.Goal, error) {
	t := p.next()
	if t.kind != tokAtom && t.kind != tokQuoted {
		return term.Goal{}, p.errorf(t, "expected a goal, found %s", describe(t))
	}
	g := term.Goal{Functor: t.text}
	if !p.accept(tokLParen) {
		return g, nil
	}
	for {
		a := p.next()
		switch a.kind {
		case tokVar:
			g.Args = append(g.Args, p.variable(a.text))
		case tokAtom, tokQuoted:
			g.Args = append(g.Args, term.Constant(a.text))
		default:
			return term.Goal{}, p.errorf(a, "expected an argument, found %s", describe(a))
		}
		if p.accept(tokComma) {
			continue
		}
		if _, err := p.expect(tokRParen); err != nil {
			return term.Goal{}, err
		}
		return g, nil
	}
}

// goals parses a comma-separated goal list ending before any token in stop.
func (p *parser) goals(stop ...tokenKind) ([]term.Goal, error) {
	var out []term.Goal
	for {
		for _, k := range stop {
			if p.peek().kind == k {
				return out, nil
			}
		}
		g, err := p.goal()
		if err != nil {
			return nil, err
		}
		out = append(out, g)
		if !p.accept(tokComma) {
			return out, nil
		}
	}
}

func (p *parser) rule() (*term.Rule, error) {
	p.resetVars()
	head, err := p.goal()
	if err != nil {
		return nil, err
	}
	r := &term.Rule{Head: &head}
	if p.accept(tokNeck) {
		if r.Body, err = p.goals(tokLBrace, tokDot); err != nil {
			return nil, err
		}
	}
	if p.accept(tokLBrace) {
		if r.Features, err = p.goals(tokColon, tokRBrace); err != nil {
			return nil, err
		}
		if p.accept(tokColon) {
			if r.Findall, err = p.goals(tokRBrace); err != nil {
				return nil, err
			}
			if len(r.Findall) == 0 {
				return nil, p.errorf(p.peek(), "empty generator list in %s", head.Functor)
			}
		}
		if _, err := p.expect(tokRBrace); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(tokDot); err != nil {
		return nil, err
	}
	r.VarNames = p.names
	return r, nil
}

// ParseRules parses every clause in src.
func ParseRules(src string) ([]*term.Rule, error) {
	p, err := newParser(src)
	if err != nil {
		return nil, err
	}
	var rules []*term.Rule
	for p.peek().kind != tokEOF {
		r, err := p.rule()
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// ParseFile reads and parses a rule file.
func ParseFile(path string) ([]*term.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	rules, err := ParseRules(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rules, nil
}

// ParseQuery parses a conjunction of goals with an optional trailing '.'.
func ParseQuery(src string) (*term.Query, error) {
	p, err := newParser(src)
	if err != nil {
		return nil, err
	}
	p.resetVars()
	goals, err := p.goals(tokDot, tokEOF)
	if err != nil {
		return nil, err
	}
	if len(goals) == 0 {
		return nil, p.errorf(p.peek(), "empty query")
	}
	p.accept(tokDot)
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errorf(t, "unexpected %s after query", describe(t))
	}
	return term.NewQuery(p.names, goals...), nil
}
