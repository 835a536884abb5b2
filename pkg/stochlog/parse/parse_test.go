package parse

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/stochlog/pkg/stochlog/internalerr"
)

func TestParseRules(t *testing.T) {
	src := `
# family
coworker(X,Y) :- employee(X,Z), employee(Y,Z).
employee(alice, ibm).
p(X) :- q(X) {f(X), g}.
r(X) :- s(X) {f(W) : t(X,W)}.
w(X) :- {score#(X,0.5)}.
`
	rules, err := ParseRules(src)
	require.NoError(t, err)
	require.Len(t, rules, 5)

	assert.Equal(t, "coworker(X,Y) :- employee(X,Z),employee(Y,Z).", rules[0].String())
	assert.Equal(t, "employee(alice,ibm).", rules[1].String())
	assert.Empty(t, rules[1].Body)
	assert.Equal(t, "p(X) :- q(X) {f(X),g}.", rules[2].String())
	assert.Equal(t, "r(X) :- s(X) {f(W) : t(X,W)}.", rules[3].String())
	assert.Len(t, rules[3].Findall, 1)
	assert.Equal(t, "0.5", rules[4].Features[0].Args[1].Name())
}

func TestParseQuotedAndAnonymous(t *testing.T) {
	rules, err := ParseRules(`name(X, "New York") :- at(X, _), at(_, X).`)
	require.NoError(t, err)
	r := rules[0]
	assert.True(t, r.Head.Args[1].IsConstant())
	assert.Equal(t, "New York", r.Head.Args[1].Name())
	// Each anonymous variable is distinct.
	assert.NotEqual(t, r.Body[0].Args[1].Index(), r.Body[1].Args[0].Index())
}

func TestQueryStringReadsBack(t *testing.T) {
	for _, src := range []string{
		`knows('Bob', "New York", X)`,
		`link('http://x.org/a', 'it\'s', '')`,
		`w('_x', 0.5, 'a\\b')`,
	} {
		q, err := ParseQuery(src)
		require.NoError(t, err, src)
		back, err := ParseQuery(q.String())
		require.NoError(t, err, q.String())
		assert.Equal(t, q.String(), back.String())
		for i, a := range q.Body[0].Args {
			b := back.Body[0].Args[i]
			assert.Equal(t, a.IsConstant(), b.IsConstant(), "%s arg %d", src, i)
			assert.Equal(t, a.Name(), b.Name(), "%s arg %d", src, i)
		}
	}
}

func TestParseErrors(t *testing.T) {
	for _, src := range []string{
		"p(X",
		"p(X) :- q(X)",
		"p(X) {f : }.",
		"p(X) :- 'open.",
		"p(X) :- q(X) {f(X)",
		":- q.",
	} {
		_, err := ParseRules(src)
		require.Error(t, err, src)
		assert.True(t, errors.Is(err, internalerr.ErrSyntax), src)
	}
}

func TestParseQuery(t *testing.T) {
	q, err := ParseQuery("child(pam, X).")
	require.NoError(t, err)
	assert.Equal(t, "child(pam,X)", q.String())
	assert.Equal(t, 1, q.NVars())

	_, err = ParseQuery("")
	assert.Error(t, err)
	_, err = ParseQuery("a. b")
	assert.Error(t, err)
}

func TestParseExample(t *testing.T) {
	ex, err := ParseExample("child(pam,X)\t+child(pam,bob)\t-child(pam,liz)\t+child(pam,ann)")
	require.NoError(t, err)
	assert.Equal(t, "child(pam,X)", ex.Query.String())
	require.Len(t, ex.Positive, 2)
	require.Len(t, ex.Negative, 1)
	assert.Equal(t, "child(pam,liz)", ex.Negative[0].String())
	assert.Equal(t, "child(pam,X)\t+child(pam,bob)\t+child(pam,ann)\t-child(pam,liz)", ex.String())

	_, err = ParseExample("child(pam,X)\tchild(pam,bob)")
	assert.Error(t, err)
}

func TestReadExamplesAndParseFile(t *testing.T) {
	exs, err := ReadExamples(strings.NewReader("# header\n\nchild(pam,X)\t+child(pam,bob)\nchild(tom,X)\n"))
	require.NoError(t, err)
	assert.Len(t, exs, 2)

	path := filepath.Join(t.TempDir(), "family.ppr")
	require.NoError(t, os.WriteFile(path, []byte("parent(X,Y) :- child(Y,X).\n"), 0o644))
	rules, err := ParseFile(path)
	require.NoError(t, err)
	assert.Len(t, rules, 1)

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.ppr"))
	assert.Error(t, err)
}

func TestReadQueries(t *testing.T) {
	qs, err := ReadQueries(strings.NewReader("# queries\nchild(pam,X)\n\nchild(tom,X)\t+child(tom,bob)\n"))
	require.NoError(t, err)
	require.Len(t, qs, 2)
	assert.Equal(t, "child(pam,X)", qs[0].String())
	assert.Equal(t, "child(tom,X)", qs[1].String())

	_, err = ReadQueries(strings.NewReader("child(pam,X\n"))
	assert.ErrorIs(t, err, internalerr.ErrSyntax)
}
