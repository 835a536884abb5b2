package term

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgumentOrdering(t *testing.T) {
	a, b := Constant("a"), Constant("b")
	x, y := Variable(0), Variable(1)

	assert.Negative(t, a.Compare(b))
	assert.Negative(t, b.Compare(x), "constants sort before variables")
	assert.Negative(t, x.Compare(y))
	assert.True(t, x.Equal(Variable(0)))
	assert.False(t, a.Equal(x))
	assert.Equal(t, -1, a.Index())
	assert.Equal(t, "_1", y.String())
}

func TestConstantQuoting(t *testing.T) {
	for name, want := range map[string]string{
		"alice":        "alice",
		"0.5":          "0.5",
		"/pam":         "/pam",
		"score#":       "score#",
		"Bob":          "'Bob'",
		"_x":           "'_x'",
		"":             "''",
		"New York":     "'New York'",
		"http://x.org": "'http://x.org'",
		"it's":         `'it\'s'`,
		`a\b`:          `'a\\b'`,
		"a.b":          "'a.b'",
	} {
		assert.Equal(t, want, Constant(name).String(), name)
	}
	assert.Equal(t, "'Knows'(bob,'Bob')", NewGoal("Knows", Constant("bob"), Constant("Bob")).String())
}

func TestGoalCompareAndSignature(t *testing.T) {
	g1 := NewGoal("edge", Constant("a"), Variable(0))
	g2 := NewGoal("edge", Constant("b"), Variable(0))
	g3 := NewGoal("edge", Constant("a"))

	assert.Equal(t, "edge/2", g1.Signature())
	assert.Negative(t, g1.Compare(g2))
	assert.Positive(t, g1.Compare(g3))
	assert.True(t, g1.Equal(NewGoal("edge", Constant("a"), Variable(0))))
	assert.Equal(t, "edge(a,_0)", g1.Key())
	assert.True(t, g1.HasVariables())
	assert.Equal(t, "nullary", NewGoal("nullary").String())
}

func TestRuleVariabilize(t *testing.T) {
	head := NewGoal("p", Variable(7), Variable(3))
	r := &Rule{
		Head:     &head,
		Body:     []Goal{NewGoal("q", Variable(3), Variable(9))},
		Features: []Goal{NewGoal("f", Variable(7))},
		VarNames: []string{3: "Y", 7: "X", 9: "Z"},
	}

	v := r.Variabilize()
	require.Equal(t, []int{0, 1, 2}, v.Variables())
	assert.Equal(t, []string{"X", "Y", "Z"}, v.VarNames)
	assert.Equal(t, "p(X,Y) :- q(Y,Z) {f(X)}.", v.String())

	// The receiver is untouched.
	assert.Equal(t, 7, r.Head.Args[0].Index())
}

func TestRuleStringWithFindall(t *testing.T) {
	head := NewGoal("p", Variable(0))
	r := &Rule{
		Head:     &head,
		Body:     []Goal{NewGoal("q", Variable(0))},
		Features: []Goal{NewGoal("f", Variable(1))},
		Findall:  []Goal{NewGoal("g", Variable(0), Variable(1))},
		VarNames: []string{"X", "W"},
	}
	assert.Equal(t, "p(X) :- q(X) {f(W) : g(X,W)}.", r.String())
	assert.Equal(t, 2, r.NVars())
}

func TestQueryFill(t *testing.T) {
	q := NewQuery([]string{"X"}, NewGoal("child", Constant("pam"), Variable(0)))
	assert.Equal(t, "child(pam,X)", q.String())

	filled := q.Fill([]string{"bob"})
	assert.Equal(t, "child(pam,bob)", filled.String())

	partial := q.Fill([]string{""})
	assert.Equal(t, "child(pam,X)", partial.String())
	assert.Nil(t, q.Rule().Head)
}
