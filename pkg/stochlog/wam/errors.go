package wam

import (
	"errors"
	"fmt"
	"strings"
)

// LogicProgramError is raised by the compiler for malformed rules and by
// the interpreter for machine faults. Context holds the offending rule text
// or machine position; Backtrace, when set, renders the active expansions.
type LogicProgramError struct {
	Context   string
	Backtrace string
	Err       error
}

func (e *LogicProgramError) Error() string {
	var b strings.Builder
	b.WriteString(e.Err.Error())
	if e.Context != "" {
		b.WriteString(" in ")
		b.WriteString(e.Context)
	}
	if e.Backtrace != "" {
		b.WriteString("\n")
		b.WriteString(e.Backtrace)
	}
	return b.String()
}

func (e *LogicProgramError) Unwrap() error { return e.Err }

// IsLogicProgramError reports whether err carries a LogicProgramError.
func IsLogicProgramError(err error) bool {
	var lpe *LogicProgramError
	return errors.As(err, &lpe)
}

// Backtrace tracks the labels currently being expanded, outermost first.
type Backtrace struct {
	labels []string
}

func (b *Backtrace) push(label string) { b.labels = append(b.labels, label) }

func (b *Backtrace) pop() {
	if len(b.labels) > 0 {
		b.labels = b.labels[:len(b.labels)-1]
	}
}

func (b *Backtrace) reset() { b.labels = b.labels[:0] }

// Render prints the expansion chain followed by the call stack, innermost
// first.
func (b *Backtrace) Render(calls []CallStackFrame) string {
	var sb strings.Builder
	sb.WriteString("backtrace:")
	for i := len(b.labels) - 1; i >= 0; i-- {
		fmt.Fprintf(&sb, "\n  expanding %s", b.labels[i])
	}
	for i := len(calls) - 1; i >= 0; i-- {
		f := calls[i]
		fmt.Fprintf(&sb, "\n  frame %d: return to %d (heap %d, registers %d)", i, f.ProgramCounter, f.HeapPointer, f.RegisterPointer)
		if f.JumpTo != "" {
			fmt.Fprintf(&sb, " resuming %s", f.JumpTo)
		}
	}
	return sb.String()
}
