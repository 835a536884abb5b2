package wam

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cognicore/stochlog/pkg/stochlog/internalerr"
	"github.com/cognicore/stochlog/pkg/stochlog/term"
)

// IDFeature is the functor of the feature synthesized for rules that
// declare none: id(functor,arity,address).
const IDFeature = "id"

// Compiler turns rules into instructions. It holds no state between rules.
type Compiler struct{}

// NewCompiler returns a compiler.
func NewCompiler() *Compiler { return &Compiler{} }

// CompileRule appends the code for one rule. A rule with a head is entered
// at its predicate label; a headless rule is not labelled.
func (c *Compiler) CompileRule(rule *term.Rule, prog Target) error {
	_, err := c.compile(rule, prog)
	return err
}

// CompileRules compiles rules in order into prog.
func (c *Compiler) CompileRules(rules []*term.Rule, prog Target) error {
	for _, r := range rules {
		if err := c.CompileRule(r, prog); err != nil {
			return err
		}
	}
	return nil
}

// CompileQuery appends the query as a headless rule and returns its entry
// address.
func (c *Compiler) CompileQuery(q *term.Query, prog Target) (int, error) {
	return c.compile(q.Rule(), prog)
}

func (c *Compiler) compile(rule *term.Rule, prog Target) (int, error) {
	r := rule.Variabilize()
	text := r.String()
	emit := func(ins Instruction) error {
		_, err := prog.Append(ins)
		return err
	}

	if err := emit(Comment(text)); err != nil {
		return 0, err
	}
	if r.Head != nil {
		if err := prog.InsertLabel(r.Head.Signature()); err != nil {
			return 0, err
		}
	}
	start := prog.Size()

	if n := r.NVars(); n > 0 {
		if err := emit(Allocate(n, strings.Join(r.VarNames, ","))); err != nil {
			return 0, err
		}
	}

	seen := make(map[int]bool)
	if r.Head != nil {
		n := r.Head.Arity()
		for i, a := range r.Head.Args {
			rel := i - n
			var ins Instruction
			switch {
			case a.IsConstant():
				ins = UnifyConst(a.Name(), rel)
			case seen[a.Index()]:
				ins = UnifyBoundVar(a.Index(), rel)
			default:
				ins = InitFreeVar(a.Index(), rel)
				seen[a.Index()] = true
			}
			if err := emit(ins); err != nil {
				return 0, err
			}
		}
	}
	headSeen := make(map[int]bool, len(seen))
	for v := range seen {
		headSeen[v] = true
	}

	features := r.Features
	if r.Head != nil && len(features) == 0 && len(r.Findall) == 0 {
		features = []term.Goal{term.NewGoal(IDFeature,
			term.Constant(r.Head.Functor),
			term.Constant(strconv.Itoa(r.Head.Arity())),
			term.Constant(strconv.Itoa(start)),
		)}
	}

	findallAt := -1
	if len(features) > 0 || len(r.Findall) > 0 {
		if err := emit(FClear()); err != nil {
			return 0, err
		}
		if len(r.Findall) > 0 {
			addr, err := prog.Append(FFindall(-1))
			if err != nil {
				return 0, err
			}
			findallAt = addr
		} else if err := c.compileFeatures(features, seen, prog, r); err != nil {
			return 0, err
		}
		if err := emit(FReport()); err != nil {
			return 0, err
		}
	}

	for _, g := range r.Body {
		if err := c.compileGoal(g, seen, prog); err != nil {
			return 0, err
		}
	}
	if err := emit(ReturnP()); err != nil {
		return 0, err
	}

	if findallAt >= 0 {
		if err := prog.Patch(findallAt, FFindall(prog.Size())); err != nil {
			return 0, err
		}
		for _, g := range r.Findall {
			if err := c.compileGoal(g, headSeen, prog); err != nil {
				return 0, err
			}
		}
		if err := emit(FClear()); err != nil {
			return 0, err
		}
		if err := c.compileFeatures(r.Features, headSeen, prog, r); err != nil {
			return 0, err
		}
		if err := emit(ReturnP()); err != nil {
			return 0, err
		}
	}
	return start, nil
}

// compileGoal pushes the goal's arguments and calls its predicate.
func (c *Compiler) compileGoal(g term.Goal, seen map[int]bool, prog Target) error {
	for _, a := range g.Args {
		var ins Instruction
		switch {
		case a.IsConstant():
			ins = PushConst(a.Name())
		case seen[a.Index()]:
			ins = PushBoundVar(a.Index())
		default:
			ins = PushFreeVar(a.Index())
			seen[a.Index()] = true
		}
		if _, err := prog.Append(ins); err != nil {
			return err
		}
	}
	_, err := prog.Append(CallP(g.Signature()))
	return err
}

// compileFeatures emits feature construction. Every variable in a feature
// must already be bound.
func (c *Compiler) compileFeatures(features []term.Goal, seen map[int]bool, prog Target, r *term.Rule) error {
	for _, f := range features {
		if _, err := prog.Append(FPushStart(f.Functor, f.Arity())); err != nil {
			return err
		}
		for _, a := range f.Args {
			var ins Instruction
			switch {
			case a.IsConstant():
				ins = FPushConst(a.Name())
			case seen[a.Index()]:
				ins = FPushBoundVar(a.Index())
			default:
				name := a.String()
				if v := a.Index(); v < len(r.VarNames) && r.VarNames[v] != "" {
					name = r.VarNames[v]
				}
				return &LogicProgramError{
					Context: r.String(),
					Err:     fmt.Errorf("%w: %w: %s in %s", internalerr.ErrSyntax, internalerr.ErrUnboundFeature, name, f.Functor),
				}
			}
			if _, err := prog.Append(ins); err != nil {
				return err
			}
		}
	}
	return nil
}
