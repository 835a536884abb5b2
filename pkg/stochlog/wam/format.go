package wam

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/cognicore/stochlog/pkg/stochlog/internalerr"
)

const labelPrefix = "label:"

// Save writes the program in line-oriented text form. Labels precede the
// instruction they point at, in insertion order.
func (p *Program) Save(w io.Writer) error {
	bw := bufio.NewWriter(w)
	writeLabels := func(addr int) {
		for _, l := range p.LabelsAt(addr) {
			bw.WriteString(labelPrefix)
			bw.WriteString(l)
			bw.WriteByte('\n')
		}
	}
	for addr, ins := range p.code {
		if err := ins.validate(); err != nil {
			return fmt.Errorf("%w: instruction %d: %v", internalerr.ErrInvalidInput, addr, err)
		}
		writeLabels(addr)
		bw.WriteString(ins.String())
		bw.WriteByte('\n')
	}
	writeLabels(len(p.code))
	return bw.Flush()
}

// Load reads a program written by Save. Blank lines and lines starting with
// '#' are skipped. The returned program is not sealed.
func Load(r io.Reader) (*Program, error) {
	p := NewProgram()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if label, ok := strings.CutPrefix(line, labelPrefix); ok {
			if err := p.InsertLabel(label); err != nil {
				return nil, err
			}
			continue
		}
		ins, err := parseInstruction(line)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", internalerr.ErrSyntax, lineNo, err)
		}
		if _, err := p.Append(ins); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read program: %w", err)
	}
	return p, nil
}
