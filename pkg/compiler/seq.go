package compiler

import (
	"fmt"

	"ice9c/pkg/tm"
)

// Label names an instruction position that jumps may refer to before the
// position is known.
type Label int

type fixup struct {
	at    int // index into Code
	label Label
}

type callFixup struct {
	at   int
	name string
	line int
}

// Seq is a relocatable run of generated code. Jumps are emitted with a zero
// offset and a fixup naming their target label; calls are emitted as
// placeholders. Link resolves both once the whole program is laid out.
type Seq struct {
	Code []tm.Instr

	n      int           // executable length
	labels map[Label]int // executable position of each bound label
	fixups []fixup
	calls  []callFixup
}

// Len is the number of instruction slots in s.
func (s *Seq) Len() int { return s.n }

// Emit appends instructions.
func (s *Seq) Emit(code ...tm.Instr) {
	s.Code = append(s.Code, code...)
	s.n += tm.CodeLength(code)
}

// Append moves o's code and tables to the end of s.
func (s *Seq) Append(o *Seq) {
	if o == nil {
		return
	}
	base, pos := len(s.Code), s.n
	s.Code = append(s.Code, o.Code...)
	for l, p := range o.labels {
		s.bindAt(l, p+pos)
	}
	for _, f := range o.fixups {
		s.fixups = append(s.fixups, fixup{at: f.at + base, label: f.label})
	}
	for _, c := range o.calls {
		s.calls = append(s.calls, callFixup{at: c.at + base, name: c.name, line: c.line})
	}
	s.n += o.n
}

// Bind attaches l to the next instruction emitted into s.
func (s *Seq) Bind(l Label) {
	s.bindAt(l, s.n)
}

func (s *Seq) bindAt(l Label, pos int) {
	if s.labels == nil {
		s.labels = make(map[Label]int)
	}
	if _, dup := s.labels[l]; dup {
		panic(fmt.Sprintf("label %d bound twice", l))
	}
	s.labels[l] = pos
}

// Jump emits a PC-relative jump on reg to l.
func (s *Seq) Jump(op tm.Opcode, reg int, l Label, comment string) {
	s.Emit(tm.New(op, reg, 0, tm.PC, comment))
	s.fixups = append(s.fixups, fixup{at: len(s.Code) - 1, label: l})
}

// Call emits a call placeholder for proc.
func (s *Seq) Call(proc string, line int) {
	s.Emit(tm.Call(proc))
	s.calls = append(s.calls, callFixup{at: len(s.Code) - 1, name: proc, line: line})
}

// Link resolves every jump to a PC-relative offset and every call to an
// absolute load into PC using the procedure entry table.
func (s *Seq) Link(procs map[string]int) ([]tm.Instr, error) {
	code := make([]tm.Instr, len(s.Code))
	copy(code, s.Code)

	pos := make([]int, len(code))
	n := 0
	for i, in := range code {
		pos[i] = n
		if in.Executable() {
			n++
		}
	}

	for _, f := range s.fixups {
		target, ok := s.labels[f.label]
		if !ok {
			return nil, fmt.Errorf("jump at %d to unbound label %d", pos[f.at], f.label)
		}
		code[f.at].S = target - pos[f.at] - 1
	}
	for _, c := range s.calls {
		entry, ok := procs[c.name]
		if !ok {
			return nil, errorf(c.line, "unknown proc %s", c.name)
		}
		code[c.at] = tm.New(tm.OpLDC, tm.PC, entry, tm.ZERO, "call "+c.name)
	}
	return code, nil
}
