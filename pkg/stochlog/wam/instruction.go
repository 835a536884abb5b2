// Package wam implements the abstract machine at the heart of stochlog:
// the instruction set, compiled programs, the clause compiler and the
// resumable interpreter whose suspended states form the proof graph.
package wam

import (
	"fmt"
	"strconv"
	"strings"
)

// Opcode identifies a machine instruction.
type Opcode uint8

// The instruction set.
const (
	OpComment Opcode = iota
	OpAllocate
	OpCallP
	OpReturnP
	OpPushConst
	OpPushFreeVar
	OpPushBoundVar
	OpUnifyConst
	OpInitFreeVar
	OpUnifyBoundVar
	OpFClear
	OpFPushStart
	OpFPushConst
	OpFPushBoundVar
	OpFReport
	OpFFindall
)

var opcodeNames = [...]string{
	OpComment:       "comment",
	OpAllocate:      "allocate",
	OpCallP:         "callp",
	OpReturnP:       "returnp",
	OpPushConst:     "pushconst",
	OpPushFreeVar:   "pushfreevar",
	OpPushBoundVar:  "pushboundvar",
	OpUnifyConst:    "unifyconst",
	OpInitFreeVar:   "initfreevar",
	OpUnifyBoundVar: "unifyboundvar",
	OpFClear:        "fclear",
	OpFPushStart:    "fpushstart",
	OpFPushConst:    "fpushconst",
	OpFPushBoundVar: "fpushboundvar",
	OpFReport:       "freport",
	OpFFindall:      "ffindall",
}

func (o Opcode) String() string {
	if int(o) < len(opcodeNames) {
		return opcodeNames[o]
	}
	return "op(" + strconv.Itoa(int(o)) + ")"
}

// ParseOpcode maps an opcode name back to its Opcode.
func ParseOpcode(name string) (Opcode, error) {
	for i, n := range opcodeNames {
		if n == name {
			return Opcode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown opcode %q", name)
}

// operand kinds, in serialization order per opcode
type operand uint8

const (
	operandStr operand = iota
	operandNum
	operandOff
)

var layouts = [...][]operand{
	OpComment:       {operandStr},
	OpAllocate:      {operandNum, operandStr},
	OpCallP:         {operandStr},
	OpReturnP:       nil,
	OpPushConst:     {operandStr},
	OpPushFreeVar:   {operandNum},
	OpPushBoundVar:  {operandNum},
	OpUnifyConst:    {operandStr, operandOff},
	OpInitFreeVar:   {operandNum, operandOff},
	OpUnifyBoundVar: {operandNum, operandOff},
	OpFClear:        nil,
	OpFPushStart:    {operandStr, operandNum},
	OpFPushConst:    {operandStr},
	OpFPushBoundVar: {operandNum},
	OpFReport:       nil,
	OpFFindall:      {operandNum},
}

// Instruction is one opcode with up to two operands. Str carries
// constants, labels and comment text; Num carries register indices,
// counts, arities and addresses; Off carries relative heap offsets.
type Instruction struct {
	Op  Opcode
	Str string
	Num int
	Off int
}

// Constructors, one per opcode.

func Comment(text string) Instruction          { return Instruction{Op: OpComment, Str: text} }
func Allocate(n int, names string) Instruction { return Instruction{Op: OpAllocate, Num: n, Str: names} }
func CallP(label string) Instruction           { return Instruction{Op: OpCallP, Str: label} }
func ReturnP() Instruction                     { return Instruction{Op: OpReturnP} }
func PushConst(c string) Instruction           { return Instruction{Op: OpPushConst, Str: c} }
func PushFreeVar(v int) Instruction            { return Instruction{Op: OpPushFreeVar, Num: v} }
func PushBoundVar(v int) Instruction           { return Instruction{Op: OpPushBoundVar, Num: v} }
func UnifyConst(c string, rel int) Instruction { return Instruction{Op: OpUnifyConst, Str: c, Off: rel} }
func InitFreeVar(v, rel int) Instruction       { return Instruction{Op: OpInitFreeVar, Num: v, Off: rel} }
func UnifyBoundVar(v, rel int) Instruction     { return Instruction{Op: OpUnifyBoundVar, Num: v, Off: rel} }
func FClear() Instruction                      { return Instruction{Op: OpFClear} }
func FPushStart(functor string, arity int) Instruction {
	return Instruction{Op: OpFPushStart, Str: functor, Num: arity}
}
func FPushConst(c string) Instruction  { return Instruction{Op: OpFPushConst, Str: c} }
func FPushBoundVar(v int) Instruction  { return Instruction{Op: OpFPushBoundVar, Num: v} }
func FReport() Instruction             { return Instruction{Op: OpFReport} }
func FFindall(address int) Instruction { return Instruction{Op: OpFFindall, Num: address} }

// String returns the instruction in program text form: opcode|op1|op2.
func (i Instruction) String() string {
	var b strings.Builder
	b.WriteString(i.Op.String())
	if int(i.Op) >= len(layouts) {
		return b.String()
	}
	for _, k := range layouts[i.Op] {
		b.WriteByte('|')
		switch k {
		case operandStr:
			b.WriteString(i.Str)
		case operandNum:
			b.WriteString(strconv.Itoa(i.Num))
		case operandOff:
			b.WriteString(strconv.Itoa(i.Off))
		}
	}
	return b.String()
}

// validate reports operands that cannot be written losslessly.
func (i Instruction) validate() error {
	if int(i.Op) >= len(layouts) {
		return fmt.Errorf("unknown opcode %d", i.Op)
	}
	layout := layouts[i.Op]
	for n, k := range layout {
		if k != operandStr {
			continue
		}
		if strings.ContainsAny(i.Str, "\r\n") {
			return fmt.Errorf("%s: operand contains a line break", i.Op)
		}
		if n < len(layout)-1 && strings.Contains(i.Str, "|") {
			return fmt.Errorf("%s: operand %q contains '|'", i.Op, i.Str)
		}
	}
	return nil
}

// parseInstruction reads one opcode|op1|op2 line.
func parseInstruction(line string) (Instruction, error) {
	name, rest, hasOperands := strings.Cut(line, "|")
	op, err := ParseOpcode(name)
	if err != nil {
		return Instruction{}, err
	}
	layout := layouts[op]
	var fields []string
	if hasOperands {
		if len(layout) == 0 {
			return Instruction{}, fmt.Errorf("%s takes no operands", op)
		}
		fields = strings.SplitN(rest, "|", len(layout))
	}
	if len(fields) != len(layout) {
		return Instruction{}, fmt.Errorf("%s: expected %d operands, got %d", op, len(layout), len(fields))
	}
	ins := Instruction{Op: op}
	for n, k := range layout {
		switch k {
		case operandStr:
			ins.Str = fields[n]
		case operandNum:
			if ins.Num, err = strconv.Atoi(fields[n]); err != nil {
				return Instruction{}, fmt.Errorf("%s: operand %d: %w", op, n+1, err)
			}
		case operandOff:
			if ins.Off, err = strconv.Atoi(fields[n]); err != nil {
				return Instruction{}, fmt.Errorf("%s: operand %d: %w", op, n+1, err)
			}
		}
	}
	return ins, nil
}
