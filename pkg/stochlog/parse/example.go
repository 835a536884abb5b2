package parse

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/cognicore/stochlog/pkg/stochlog/internalerr"
	"github.com/cognicore/stochlog/pkg/stochlog/term"
)

// Example is a query with labelled ground solutions.
type Example struct {
	Query    *term.Query
	Positive []*term.Query
	Negative []*term.Query
}

// String renders the example in its tab-separated line form.
func (e *Example) String() string {
	var b strings.Builder
	b.WriteString(e.Query.String())
	for _, q := range e.Positive {
		b.WriteString("\t+")
		b.WriteString(q.String())
	}
	for _, q := range e.Negative {
		b.WriteString("\t-")
		b.WriteString(q.String())
	}
	return b.String()
}

// ParseExample parses "query\t+solution\t-solution...".
func ParseExample(line string) (*Example, error) {
	fields := strings.Split(strings.TrimRight(line, "\r\n"), "\t")
	q, err := ParseQuery(fields[0])
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	ex := &Example{Query: q}
	for _, f := range fields[1:] {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		sign, text := f[0], f[1:]
		if sign != '+' && sign != '-' {
			return nil, fmt.Errorf("%w: solution %q must start with '+' or '-'", internalerr.ErrSyntax, f)
		}
		sol, err := ParseQuery(text)
		if err != nil {
			return nil, fmt.Errorf("solution %q: %w", text, err)
		}
		if sign == '+' {
			ex.Positive = append(ex.Positive, sol)
		} else {
			ex.Negative = append(ex.Negative, sol)
		}
	}
	return ex, nil
}

// ReadExamples parses one example per non-blank, non-comment line.
func ReadExamples(r io.Reader) ([]*Example, error) {
	var out []*Example
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ex, err := ParseExample(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		out = append(out, ex)
	}
	return out, sc.Err()
}

// ReadQueries parses one query per non-blank, non-comment line. Anything
// after the first tab is ignored, so example files can be read as queries.
func ReadQueries(r io.Reader) ([]*term.Query, error) {
	var out []*term.Query
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		text, _, _ := strings.Cut(line, "\t")
		q, err := ParseQuery(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		out = append(out, q)
	}
	return out, sc.Err()
}
