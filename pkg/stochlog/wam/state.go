package wam

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"
)

type cellKind uint8

const (
	constCell cellKind = iota
	varCell
)

// cell is one heap slot: a constant, or a variable whose ref points at
// itself while unbound.
type cell struct {
	kind  cellKind
	value string
	ref   int
}

func constant(v string) cell { return cell{kind: constCell, value: v} }

func variable(ref int) cell { return cell{kind: varCell, ref: ref} }

// deref follows variable bindings from i to a constant or unbound root.
func deref(heap []cell, i int) int {
	for heap[i].kind == varCell && heap[i].ref != i {
		i = heap[i].ref
	}
	return i
}

// CallStackFrame records where to resume after a predicate call returns.
type CallStackFrame struct {
	HeapPointer     int
	RegisterPointer int
	ProgramCounter  int
	JumpTo          string
}

// StateKey identifies a machine state by content.
type StateKey [32]byte

func (k StateKey) String() string { return hex.EncodeToString(k[:8]) }

// State is an immutable snapshot of the machine, taken at a branch point or
// on completion. Two states with equal keys are the same proof-graph node.
type State struct {
	heap      []cell
	registers []int
	calls     []CallStackFrame
	pc        int
	jumpTo    string
	completed bool
	failed    bool
	key       StateKey
}

func newState(heap []cell, registers []int, calls []CallStackFrame, pc int, jumpTo string, completed, failed bool) *State {
	s := &State{
		heap:      append([]cell(nil), heap...),
		registers: append([]int(nil), registers...),
		calls:     append([]CallStackFrame(nil), calls...),
		pc:        pc,
		jumpTo:    jumpTo,
		completed: completed,
		failed:    failed,
	}
	s.key = s.hash()
	return s
}

// hash digests the canonical encoding of every field.
func (s *State) hash() StateKey {
	h := blake3.New(32, nil)
	buf := make([]byte, 0, 64)
	putInt := func(v int) { buf = binary.AppendVarint(buf, int64(v)) }
	putStr := func(v string) {
		putInt(len(v))
		buf = append(buf, v...)
	}
	flush := func() {
		h.Write(buf)
		buf = buf[:0]
	}

	putInt(s.pc)
	putStr(s.jumpTo)
	var flags byte
	if s.completed {
		flags |= 1
	}
	if s.failed {
		flags |= 2
	}
	buf = append(buf, flags)
	putInt(len(s.heap))
	for _, c := range s.heap {
		buf = append(buf, byte(c.kind))
		if c.kind == constCell {
			putStr(c.value)
		} else {
			putInt(c.ref)
		}
		if len(buf) > 4096 {
			flush()
		}
	}
	putInt(len(s.registers))
	for _, r := range s.registers {
		putInt(r)
	}
	putInt(len(s.calls))
	for _, f := range s.calls {
		putInt(f.HeapPointer)
		putInt(f.RegisterPointer)
		putInt(f.ProgramCounter)
		putStr(f.JumpTo)
	}
	flush()

	var k StateKey
	copy(k[:], h.Sum(nil))
	return k
}

// Key identifies the state by content.
func (s *State) Key() StateKey { return s.key }

// Equal compares states by content.
func (s *State) Equal(o *State) bool { return o != nil && s.key == o.key }

func (s *State) IsCompleted() bool { return s.completed }
func (s *State) IsFailed() bool    { return s.failed }

// JumpTo is the label awaiting expansion, or "" when the state is not a
// branch point.
func (s *State) JumpTo() string { return s.jumpTo }

func (s *State) ProgramCounter() int { return s.pc }
func (s *State) HeapSize() int       { return len(s.heap) }
func (s *State) RegisterCount() int  { return len(s.registers) }

// Calls returns a copy of the call stack, outermost frame first.
func (s *State) Calls() []CallStackFrame {
	return append([]CallStackFrame(nil), s.calls...)
}

// Binding returns the constant bound to top-level register v, if any.
func (s *State) Binding(v int) (string, bool) {
	if v < 0 || v >= len(s.registers) || s.registers[v] < 0 || s.registers[v] >= len(s.heap) {
		return "", false
	}
	r := deref(s.heap, s.registers[v])
	if s.heap[r].kind != constCell {
		return "", false
	}
	return s.heap[r].value, true
}

// Bindings returns the constants bound to registers 0..n-1, with "" for
// unbound registers.
func (s *State) Bindings(n int) []string {
	out := make([]string, n)
	for v := 0; v < n; v++ {
		out[v], _ = s.Binding(v)
	}
	return out
}

func (s *State) String() string {
	status := "pending"
	switch {
	case s.failed:
		status = "failed"
	case s.completed:
		status = "completed"
	case s.jumpTo != "":
		status = "calling " + s.jumpTo
	}
	return fmt.Sprintf("state{%s pc=%d heap=%d regs=%d calls=%d %s}",
		s.key, s.pc, len(s.heap), len(s.registers), len(s.calls), status)
}
