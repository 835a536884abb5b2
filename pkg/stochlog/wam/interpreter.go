package wam

import (
	"errors"
	"fmt"

	"github.com/cognicore/stochlog/pkg/stochlog/internalerr"
)

// findallReturn marks the frame that ends a findall sub-derivation.
const findallReturn = "@findall"

// Options bounds the findall sub-derivations run while computing features.
type Options struct {
	MaxFindallDepth     int
	MaxFindallSolutions int
}

// DefaultOptions returns the interpreter defaults.
func DefaultOptions() Options {
	return Options{MaxFindallDepth: 10, MaxFindallSolutions: 1000}
}

type findallCollector struct {
	features  FeatureDict
	solutions int
}

// Interpreter executes compiled code until it reaches a branch point (a
// predicate call), completes, or fails. An Interpreter is not safe for
// concurrent use; each worker owns one.
type Interpreter struct {
	code    Code
	plugins []Plugin
	opts    Options

	heap      []cell
	registers []int
	calls     []CallStackFrame
	pc        int
	jumpTo    string
	completed bool
	failed    bool

	featureStack []featureBuilder
	generated    FeatureDict
	reported     FeatureDict
	collectors   []*findallCollector
	bt           Backtrace
}

// NewInterpreter returns an interpreter over code. Plugins are consulted in
// order before compiled clauses.
func NewInterpreter(code Code, plugins []Plugin, opts Options) *Interpreter {
	def := DefaultOptions()
	if opts.MaxFindallDepth <= 0 {
		opts.MaxFindallDepth = def.MaxFindallDepth
	}
	if opts.MaxFindallSolutions <= 0 {
		opts.MaxFindallSolutions = def.MaxFindallSolutions
	}
	return &Interpreter{code: code, plugins: plugins, opts: opts}
}

func (m *Interpreter) Code() Code          { return m.code }
func (m *Interpreter) Plugins() []Plugin   { return m.plugins }
func (m *Interpreter) Options() Options    { return m.opts }
func (m *Interpreter) Completed() bool     { return m.completed }
func (m *Interpreter) Failed() bool        { return m.failed }
func (m *Interpreter) ProgramCounter() int { return m.pc }

// Reset clears all machine state.
func (m *Interpreter) Reset() {
	m.heap = m.heap[:0]
	m.registers = m.registers[:0]
	m.calls = m.calls[:0]
	m.pc = 0
	m.jumpTo = ""
	m.completed = false
	m.failed = false
	m.resetFeatures()
	m.collectors = m.collectors[:0]
	m.bt.reset()
}

func (m *Interpreter) resetFeatures() {
	m.featureStack = m.featureStack[:0]
	m.generated = nil
	m.reported = nil
}

// Start runs from addr on a fresh machine and returns the first suspended
// state.
func (m *Interpreter) Start(addr int, computeFeatures bool) (*State, error) {
	m.Reset()
	m.pc = addr
	if err := m.ExecuteWithoutBranching(computeFeatures); err != nil {
		return nil, err
	}
	return m.SaveState(), nil
}

// SaveState snapshots the machine.
func (m *Interpreter) SaveState() *State {
	return newState(m.heap, m.registers, m.calls, m.pc, m.jumpTo, m.completed, m.failed)
}

// RestoreState loads a snapshot into the machine. The snapshot is copied;
// later execution never mutates it.
func (m *Interpreter) RestoreState(s *State) {
	m.heap = append(m.heap[:0], s.heap...)
	m.registers = append(m.registers[:0], s.registers...)
	m.calls = append(m.calls[:0], s.calls...)
	m.pc = s.pc
	m.jumpTo = s.jumpTo
	m.completed = s.completed
	m.failed = s.failed
}

// Features returns the features reported since the last reset.
func (m *Interpreter) Features() FeatureDict { return m.reported }

func (m *Interpreter) takeReported() FeatureDict {
	fd := m.reported
	m.reported = nil
	return fd
}

// ExecuteWithoutBranching steps until the machine completes, fails, or
// sets a jump target.
func (m *Interpreter) ExecuteWithoutBranching(computeFeatures bool) error {
	for !m.completed && !m.failed && m.jumpTo == "" {
		if m.pc < 0 || m.pc >= m.code.Size() {
			return m.fault(fmt.Errorf("program counter %d outside program of size %d", m.pc, m.code.Size()))
		}
		if err := m.step(m.code.Instruction(m.pc), computeFeatures); err != nil {
			return err
		}
	}
	return nil
}

// Outlinks expands a branch-point state into its successors. Failed
// successors are dropped. A label with no clauses and no plugin yields no
// successors.
func (m *Interpreter) Outlinks(s *State, computeFeatures bool) ([]Outlink, error) {
	if s.completed || s.failed || s.jumpTo == "" {
		return nil, nil
	}
	label := s.jumpTo
	m.bt.push(label)
	defer m.bt.pop()

	for _, p := range m.plugins {
		if !p.Claim(label) {
			continue
		}
		m.resetFeatures()
		outs, err := p.Outlinks(s, m, computeFeatures)
		if err != nil {
			if IsLogicProgramError(err) {
				return nil, err
			}
			return nil, m.fault(fmt.Errorf("plugin %s: %w", p.Name(), err))
		}
		return outs, nil
	}

	addrs := m.code.Addresses(label)
	out := make([]Outlink, 0, len(addrs))
	for _, addr := range addrs {
		m.RestoreState(s)
		m.pc = addr
		m.jumpTo = ""
		m.resetFeatures()
		if err := m.ExecuteWithoutBranching(computeFeatures); err != nil {
			return nil, err
		}
		if m.failed {
			continue
		}
		out = append(out, Outlink{State: m.SaveState(), Features: m.takeReported()})
	}
	return out, nil
}

func (m *Interpreter) step(ins Instruction, computeFeatures bool) error {
	switch ins.Op {
	case OpComment:
		m.pc++
	case OpAllocate:
		for i := 0; i < ins.Num; i++ {
			m.registers = append(m.registers, -1)
		}
		m.pc++
	case OpCallP:
		m.calls = append(m.calls, CallStackFrame{
			HeapPointer:     len(m.heap),
			RegisterPointer: len(m.registers),
			ProgramCounter:  m.pc + 1,
		})
		m.jumpTo = ins.Str
	case OpReturnP:
		return m.returnp()
	case OpPushConst:
		m.heap = append(m.heap, constant(ins.Str))
		m.pc++
	case OpPushFreeVar:
		idx := len(m.heap)
		m.heap = append(m.heap, variable(idx))
		if err := m.setRegister(ins.Num, idx); err != nil {
			return err
		}
		m.pc++
	case OpPushBoundVar:
		r, err := m.register(ins.Num)
		if err != nil {
			return err
		}
		root := deref(m.heap, r)
		if m.heap[root].kind == constCell {
			m.heap = append(m.heap, m.heap[root])
		} else {
			m.heap = append(m.heap, variable(root))
		}
		m.pc++
	case OpUnifyConst:
		idx, err := m.relative(ins.Off)
		if err != nil {
			return err
		}
		root := deref(m.heap, idx)
		if m.heap[root].kind == constCell {
			if m.heap[root].value != ins.Str {
				m.failed = true
				return nil
			}
		} else {
			m.heap[root] = constant(ins.Str)
		}
		m.pc++
	case OpInitFreeVar:
		idx, err := m.relative(ins.Off)
		if err != nil {
			return err
		}
		if err := m.setRegister(ins.Num, idx); err != nil {
			return err
		}
		m.pc++
	case OpUnifyBoundVar:
		idx, err := m.relative(ins.Off)
		if err != nil {
			return err
		}
		r, err := m.register(ins.Num)
		if err != nil {
			return err
		}
		if !m.unify(r, idx) {
			m.failed = true
			return nil
		}
		m.pc++
	case OpFClear:
		if computeFeatures {
			m.featureStack = m.featureStack[:0]
			m.generated = nil
		}
		m.pc++
	case OpFPushStart:
		if computeFeatures {
			m.featureStack = append(m.featureStack, featureBuilder{
				functor: ins.Str,
				arity:   ins.Num,
				args:    make([]string, 0, ins.Num),
			})
		}
		m.pc++
	case OpFPushConst:
		if computeFeatures {
			if err := m.pushFeatureArg(ins.Str); err != nil {
				return err
			}
		}
		m.pc++
	case OpFPushBoundVar:
		if computeFeatures {
			r, err := m.register(ins.Num)
			if err != nil {
				return err
			}
			root := deref(m.heap, r)
			if m.heap[root].kind != constCell {
				return m.fault(fmt.Errorf("%w: register %d", internalerr.ErrUnboundFeature, ins.Num))
			}
			if err := m.pushFeatureArg(m.heap[root].value); err != nil {
				return err
			}
		}
		m.pc++
	case OpFReport:
		if computeFeatures {
			if err := m.report(); err != nil {
				return err
			}
		}
		m.pc++
	case OpFFindall:
		if computeFeatures {
			return m.findall(ins.Num)
		}
		m.pc++
	default:
		return m.fault(fmt.Errorf("unknown opcode %d", ins.Op))
	}
	return nil
}

// base is the first register of the executing clause's window.
func (m *Interpreter) base() int {
	if n := len(m.calls); n > 0 {
		return m.calls[n-1].RegisterPointer
	}
	return 0
}

func (m *Interpreter) register(v int) (int, error) {
	i := m.base() + v
	if v < 0 || i >= len(m.registers) {
		return 0, m.fault(fmt.Errorf("register %d outside window of size %d", v, len(m.registers)-m.base()))
	}
	if m.registers[i] < 0 {
		return 0, m.fault(fmt.Errorf("register %d read before it was set", v))
	}
	return m.registers[i], nil
}

func (m *Interpreter) setRegister(v, heapIdx int) error {
	i := m.base() + v
	if v < 0 || i >= len(m.registers) {
		return m.fault(fmt.Errorf("register %d outside window of size %d", v, len(m.registers)-m.base()))
	}
	m.registers[i] = heapIdx
	return nil
}

// relative resolves a negative offset from the heap top.
func (m *Interpreter) relative(off int) (int, error) {
	idx := len(m.heap) + off
	if idx < 0 || idx >= len(m.heap) {
		return 0, m.fault(fmt.Errorf("heap offset %d outside heap of size %d", off, len(m.heap)))
	}
	return idx, nil
}

// unify binds two heap cells. The younger unbound root is bound to the
// older one.
func (m *Interpreter) unify(i, j int) bool {
	a, b := deref(m.heap, i), deref(m.heap, j)
	if a == b {
		return true
	}
	ca, cb := m.heap[a], m.heap[b]
	switch {
	case ca.kind == constCell && cb.kind == constCell:
		return ca.value == cb.value
	case ca.kind == varCell && cb.kind == varCell:
		if a < b {
			a, b = b, a
		}
		m.heap[a].ref = b
	case ca.kind == varCell:
		m.heap[a].ref = b
	default:
		m.heap[b].ref = a
	}
	return true
}

func (m *Interpreter) returnp() error {
	n := len(m.calls)
	if n == 0 {
		m.completed = true
		return nil
	}
	f := m.calls[n-1]
	m.calls = m.calls[:n-1]
	m.registers = m.registers[:f.RegisterPointer]
	m.pc = f.ProgramCounter
	m.jumpTo = f.JumpTo
	if f.JumpTo == findallReturn {
		return m.harvest()
	}
	return nil
}

// ReturnP returns from the pending call. Plugins use it after binding the
// call's arguments.
func (m *Interpreter) ReturnP() error { return m.returnp() }

// argIndex locates argument i of the pending call on the heap.
func (m *Interpreter) argIndex(arity, i int) (int, bool) {
	hp := len(m.heap)
	if n := len(m.calls); n > 0 {
		hp = m.calls[n-1].HeapPointer
	}
	idx := hp - arity + i
	if i < 0 || i >= arity || idx < 0 || idx >= len(m.heap) {
		return 0, false
	}
	return idx, true
}

// ConstantArg returns argument i of the pending call when it is bound.
func (m *Interpreter) ConstantArg(arity, i int) (string, bool) {
	idx, ok := m.argIndex(arity, i)
	if !ok {
		return "", false
	}
	c := m.heap[deref(m.heap, idx)]
	if c.kind != constCell {
		return "", false
	}
	return c.value, true
}

// SetArg binds argument i of the pending call to value. It reports false
// when the argument is already bound to something else.
func (m *Interpreter) SetArg(arity, i int, value string) bool {
	idx, ok := m.argIndex(arity, i)
	if !ok {
		return false
	}
	root := deref(m.heap, idx)
	if m.heap[root].kind == constCell {
		return m.heap[root].value == value
	}
	m.heap[root] = constant(value)
	return true
}

func (m *Interpreter) pushFeatureArg(v string) error {
	n := len(m.featureStack)
	if n == 0 {
		return m.fault(errors.New("feature argument pushed with no feature started"))
	}
	m.featureStack[n-1].args = append(m.featureStack[n-1].args, v)
	return nil
}

func (m *Interpreter) report() error {
	fd := make(FeatureDict, len(m.featureStack)+len(m.generated))
	for i := range m.featureStack {
		f, w, err := m.featureStack[i].build()
		if err != nil {
			return m.fault(err)
		}
		fd.Add(f, w)
	}
	fd.Merge(m.generated)
	if m.reported == nil {
		m.reported = fd
	} else {
		m.reported.Merge(fd)
	}
	m.featureStack = m.featureStack[:0]
	m.generated = nil
	return nil
}

// findall runs the generator at addr to exhaustion, collecting the
// features reported at each solution, then resumes after the instruction
// with the machine as it was.
func (m *Interpreter) findall(addr int) error {
	if len(m.collectors) >= m.opts.MaxFindallDepth {
		m.pc++
		return nil
	}
	saved := m.SaveState()
	stack := append([]featureBuilder(nil), m.featureStack...)
	reported, generated := m.reported, m.generated

	c := &findallCollector{features: make(FeatureDict)}
	m.collectors = append(m.collectors, c)
	m.calls = append(m.calls, CallStackFrame{
		HeapPointer:     len(m.heap),
		RegisterPointer: m.base(),
		ProgramCounter:  m.pc + 1,
		JumpTo:          findallReturn,
	})
	m.pc = addr
	err := m.ExecuteWithoutBranching(true)
	if err == nil {
		err = m.findallSearch(m.SaveState(), 0, c)
	}
	m.collectors = m.collectors[:len(m.collectors)-1]

	m.RestoreState(saved)
	m.featureStack = append(m.featureStack[:0], stack...)
	m.reported = reported
	m.generated = generated.Merge(c.features)
	m.pc = saved.pc + 1
	return err
}

func (m *Interpreter) findallSearch(s *State, depth int, c *findallCollector) error {
	if s.failed || s.completed || s.jumpTo == "" || s.jumpTo == findallReturn {
		return nil
	}
	if depth >= m.opts.MaxFindallDepth || c.solutions >= m.opts.MaxFindallSolutions {
		return nil
	}
	outs, err := m.Outlinks(s, true)
	if err != nil {
		return err
	}
	for _, o := range outs {
		if err := m.findallSearch(o.State, depth+1, c); err != nil {
			return err
		}
	}
	return nil
}

// harvest records the generator's features for one findall solution.
func (m *Interpreter) harvest() error {
	n := len(m.collectors)
	if n == 0 {
		return nil
	}
	c := m.collectors[n-1]
	if c.solutions < m.opts.MaxFindallSolutions {
		for i := range m.featureStack {
			f, w, err := m.featureStack[i].build()
			if err != nil {
				return m.fault(err)
			}
			c.features.Add(f, w)
		}
	}
	c.solutions++
	m.featureStack = m.featureStack[:0]
	return nil
}

// fault wraps err with the machine position and backtrace.
func (m *Interpreter) fault(err error) error {
	return &LogicProgramError{
		Context:   m.position(),
		Backtrace: m.bt.Render(m.calls),
		Err:       fmt.Errorf("%w: %w", internalerr.ErrMachine, err),
	}
}

// position names the instruction address and the clause it belongs to.
func (m *Interpreter) position() string {
	if m.pc < 0 || m.pc >= m.code.Size() {
		return fmt.Sprintf("address %d", m.pc)
	}
	for a := m.pc; a >= 0; a-- {
		if ins := m.code.Instruction(a); ins.Op == OpComment {
			return fmt.Sprintf("address %d of %s", m.pc, ins.Str)
		}
	}
	return fmt.Sprintf("address %d", m.pc)
}
