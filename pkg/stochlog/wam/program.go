package wam

import (
	"fmt"
	"sync/atomic"

	"github.com/cognicore/stochlog/pkg/stochlog/internalerr"
)

// Code is the read side of a compiled program, as seen by the interpreter.
type Code interface {
	Size() int
	Instruction(addr int) Instruction
	// Addresses returns the clause entry points for a label in insertion
	// order. The slice must not be modified.
	Addresses(label string) []int
	HasLabel(label string) bool
}

// Target is the write side the compiler emits into.
type Target interface {
	Size() int
	Append(ins Instruction) (int, error)
	InsertLabel(label string) error
	Patch(addr int, ins Instruction) error
}

// Program is a master program: an instruction array plus a multimap from
// predicate labels to clause entry addresses. Once sealed it is immutable
// and safe for concurrent readers.
type Program struct {
	code     []Instruction
	labels   map[string][]int
	labelsAt map[int][]string
	sealed   atomic.Bool
}

// NewProgram returns an empty, writable program.
func NewProgram() *Program {
	return &Program{
		labels:   make(map[string][]int),
		labelsAt: make(map[int][]string),
	}
}

func (p *Program) Size() int { return len(p.code) }

func (p *Program) Instruction(addr int) Instruction { return p.code[addr] }

func (p *Program) Addresses(label string) []int { return p.labels[label] }

// LabelsAt returns the labels pointing at addr in insertion order. addr may
// equal Size for labels recorded after the last instruction.
func (p *Program) LabelsAt(addr int) []string {
	return append([]string(nil), p.labelsAt[addr]...)
}

func (p *Program) HasLabel(label string) bool {
	_, ok := p.labels[label]
	return ok
}

// Labels returns every label in the program.
func (p *Program) Labels() []string {
	out := make([]string, 0, len(p.labels))
	for l := range p.labels {
		out = append(out, l)
	}
	return out
}

// Seal freezes the program. Further writes fail.
func (p *Program) Seal() { p.sealed.Store(true) }

// Sealed reports whether the program is frozen.
func (p *Program) Sealed() bool { return p.sealed.Load() }

func (p *Program) Append(ins Instruction) (int, error) {
	if p.Sealed() {
		return 0, fmt.Errorf("%w: program is sealed", internalerr.ErrInvalidInput)
	}
	p.code = append(p.code, ins)
	return len(p.code) - 1, nil
}

// InsertLabel records the next instruction address as an entry point for
// label.
func (p *Program) InsertLabel(label string) error {
	if p.Sealed() {
		return fmt.Errorf("%w: program is sealed", internalerr.ErrInvalidInput)
	}
	addr := len(p.code)
	p.labels[label] = append(p.labels[label], addr)
	p.labelsAt[addr] = append(p.labelsAt[addr], label)
	return nil
}

func (p *Program) Patch(addr int, ins Instruction) error {
	if p.Sealed() {
		return fmt.Errorf("%w: program is sealed", internalerr.ErrInvalidInput)
	}
	if addr < 0 || addr >= len(p.code) {
		return fmt.Errorf("%w: patch address %d out of range", internalerr.ErrInvalidInput, addr)
	}
	p.code[addr] = ins
	return nil
}

// QueryProgram overlays a sealed master program with per-query code
// appended after the master's last address. Each worker owns one and
// calls Revert between queries.
type QueryProgram struct {
	master *Program
	code   []Instruction
	labels map[string][]int
}

// NewQueryProgram seals master and returns an empty overlay on it.
func NewQueryProgram(master *Program) *QueryProgram {
	master.Seal()
	return &QueryProgram{master: master, labels: make(map[string][]int)}
}

// Master returns the underlying program.
func (q *QueryProgram) Master() *Program { return q.master }

func (q *QueryProgram) Size() int { return q.master.Size() + len(q.code) }

func (q *QueryProgram) Instruction(addr int) Instruction {
	if n := q.master.Size(); addr >= n {
		return q.code[addr-n]
	}
	return q.master.code[addr]
}

func (q *QueryProgram) Addresses(label string) []int {
	local, ok := q.labels[label]
	if !ok {
		return q.master.Addresses(label)
	}
	base := q.master.Addresses(label)
	out := make([]int, 0, len(base)+len(local))
	return append(append(out, base...), local...)
}

func (q *QueryProgram) HasLabel(label string) bool {
	if _, ok := q.labels[label]; ok {
		return true
	}
	return q.master.HasLabel(label)
}

func (q *QueryProgram) Append(ins Instruction) (int, error) {
	q.code = append(q.code, ins)
	return q.Size() - 1, nil
}

func (q *QueryProgram) InsertLabel(label string) error {
	q.labels[label] = append(q.labels[label], q.Size())
	return nil
}

func (q *QueryProgram) Patch(addr int, ins Instruction) error {
	n := q.master.Size()
	if addr < n || addr >= q.Size() {
		return fmt.Errorf("%w: patch address %d outside query code", internalerr.ErrInvalidInput, addr)
	}
	q.code[addr-n] = ins
	return nil
}

// Revert discards all query code and labels.
func (q *QueryProgram) Revert() {
	q.code = q.code[:0]
	clear(q.labels)
}
