// Package term holds the logic-program data model shared by the parser,
// the compiler and the provers: arguments, goals, rules and queries.
package term

import (
	"strconv"
	"strings"
	"unicode"
)

// Argument is either a constant (by name) or a variable (by register index).
// Arguments are immutable values.
type Argument struct {
	name  string
	index int
	isVar bool
}

// Constant builds a constant argument.
func Constant(name string) Argument {
	return Argument{name: name}
}

// Variable builds a variable argument with the given register index.
func Variable(index int) Argument {
	return Argument{index: index, isVar: true}
}

// IsVariable reports whether a is a variable.
func (a Argument) IsVariable() bool { return a.isVar }

// IsConstant reports whether a is a constant.
func (a Argument) IsConstant() bool { return !a.isVar }

// Name returns the constant's name, or "" for variables.
func (a Argument) Name() string { return a.name }

// Index returns the variable's register index, or -1 for constants.
func (a Argument) Index() int {
	if !a.isVar {
		return -1
	}
	return a.index
}

// Equal compares constants by name and variables by index.
func (a Argument) Equal(b Argument) bool {
	return a.Compare(b) == 0
}

// Compare orders constants before variables, constants by name and
// variables by index.
func (a Argument) Compare(b Argument) int {
	switch {
	case !a.isVar && b.isVar:
		return -1
	case a.isVar && !b.isVar:
		return 1
	case a.isVar:
		return a.index - b.index
	default:
		return strings.Compare(a.name, b.name)
	}
}

// String renders variables as _<index> and constants as they would be
// written in a program, quoting any name that would not read back as the
// same constant.
func (a Argument) String() string {
	if a.isVar {
		return "_" + strconv.Itoa(a.index)
	}
	return Quote(a.name)
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// Quote returns name unchanged when it reads back as a bare atom, and
// single-quoted with backslash escapes otherwise.
func Quote(name string) string {
	if isBareAtom(name) {
		return name
	}
	return "'" + quoteEscaper.Replace(name) + "'"
}

func isBareAtom(name string) bool {
	rs := []rune(name)
	if len(rs) == 0 || unicode.IsUpper(rs[0]) || rs[0] == '_' {
		return false
	}
	for j, r := range rs {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), strings.ContainsRune("_-+#@/$*<>=!?~^&", r):
		case r == '.' && j > 0 && j+1 < len(rs) && unicode.IsDigit(rs[j-1]) && unicode.IsDigit(rs[j+1]):
		default:
			return false
		}
	}
	return true
}

// render prints a using names for variables when available.
func (a Argument) render(names []string) string {
	if a.isVar && a.index >= 0 && a.index < len(names) && names[a.index] != "" {
		return names[a.index]
	}
	return a.String()
}

// Goal is a functor applied to an ordered list of arguments. It is used
// both for body literals and for feature templates.
type Goal struct {
	Functor string
	Args    []Argument
}

// NewGoal builds a goal.
func NewGoal(functor string, args ...Argument) Goal {
	return Goal{Functor: functor, Args: args}
}

// Arity is the number of arguments.
func (g Goal) Arity() int { return len(g.Args) }

// Signature returns the predicate label "functor/arity".
func (g Goal) Signature() string {
	return Signature(g.Functor, len(g.Args))
}

// Signature formats a predicate label.
func Signature(functor string, arity int) string {
	return functor + "/" + strconv.Itoa(arity)
}

// Compare orders goals by functor, then arguments lexicographically.
func (g Goal) Compare(o Goal) int {
	if c := strings.Compare(g.Functor, o.Functor); c != 0 {
		return c
	}
	for i := 0; i < len(g.Args) && i < len(o.Args); i++ {
		if c := g.Args[i].Compare(o.Args[i]); c != 0 {
			return c
		}
	}
	return len(g.Args) - len(o.Args)
}

// Equal reports structural equality.
func (g Goal) Equal(o Goal) bool { return g.Compare(o) == 0 }

// Key is a hashable identity for the goal.
func (g Goal) Key() string { return g.String() }

// String renders the goal with anonymous variable names.
func (g Goal) String() string { return g.render(nil) }

func (g Goal) render(names []string) string {
	if len(g.Args) == 0 {
		return Quote(g.Functor)
	}
	var b strings.Builder
	b.WriteString(Quote(g.Functor))
	b.WriteByte('(')
	for i, a := range g.Args {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(a.render(names))
	}
	b.WriteByte(')')
	return b.String()
}

// HasVariables reports whether any argument is a variable.
func (g Goal) HasVariables() bool {
	for _, a := range g.Args {
		if a.isVar {
			return true
		}
	}
	return false
}

func renderGoals(goals []Goal, names []string) string {
	parts := make([]string, len(goals))
	for i, g := range goals {
		parts[i] = g.render(names)
	}
	return strings.Join(parts, ",")
}
