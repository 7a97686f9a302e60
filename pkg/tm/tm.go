// Package tm models the instruction set of the TM register machine: opcodes,
// the fixed register file, and the five-field instruction record shared by
// the code generator, the optimizer, the listing assembler and the VM.
package tm

import (
	"fmt"
	"strconv"
)

// Opcode identifies a TM operation or one of the compiler's pseudo-ops.
type Opcode uint8

const (
	// Pseudo-ops. Comment, Data and String never occupy an instruction slot.
	OpComment Opcode = iota // annotation only
	OpData                  // one initialised data word: R = value, S = address
	OpString                // NUL terminated string: S = address, Sym = text
	OpCall                  // call placeholder: Sym = procedure, rewritten by the linker

	// Register-only instructions: r = s op t.
	OpHALT
	OpIN
	OpOUT
	OpOUTC
	OpOUTNL
	OpADD
	OpSUB
	OpMUL
	OpDIV

	// Register-memory instructions: address = s + reg[t].
	OpLD
	OpST

	// Register-address instructions.
	OpLDA
	OpLDC
	OpJEQ
	OpJNE
	OpJLT
	OpJLE
	OpJGT
	OpJGE
)

var opNames = [...]string{
	OpComment: "comment",
	OpData:    "data",
	OpString:  "string",
	OpCall:    "call",
	OpHALT:    "HALT",
	OpIN:      "IN",
	OpOUT:     "OUT",
	OpOUTC:    "OUTC",
	OpOUTNL:   "OUTNL",
	OpADD:     "ADD",
	OpSUB:     "SUB",
	OpMUL:     "MUL",
	OpDIV:     "DIV",
	OpLD:      "LD",
	OpST:      "ST",
	OpLDA:     "LDA",
	OpLDC:     "LDC",
	OpJEQ:     "JEQ",
	OpJNE:     "JNE",
	OpJLT:     "JLT",
	OpJLE:     "JLE",
	OpJGT:     "JGT",
	OpJGE:     "JGE",
}

var opByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opNames))
	for op, name := range opNames {
		m[name] = Opcode(op)
	}
	return m
}()

func (op Opcode) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return fmt.Sprintf("Opcode(%d)", int(op))
}

// ParseOpcode maps a mnemonic back to its Opcode.
func ParseOpcode(name string) (Opcode, bool) {
	op, ok := opByName[name]
	return op, ok
}

// IsRegisterOnly reports whether op uses the r,s,t register form.
func (op Opcode) IsRegisterOnly() bool {
	return op >= OpHALT && op <= OpDIV
}

// IsBranch reports whether op is one of the six conditional jumps.
func (op Opcode) IsBranch() bool {
	return op >= OpJEQ && op <= OpJGE
}

// Taken evaluates the branch predicate of op against v.
func (op Opcode) Taken(v int) bool {
	switch op {
	case OpJEQ:
		return v == 0
	case OpJNE:
		return v != 0
	case OpJLT:
		return v < 0
	case OpJLE:
		return v <= 0
	case OpJGT:
		return v > 0
	case OpJGE:
		return v >= 0
	}
	return false
}

// Invert returns the branch whose predicate is the negation of op's.
func (op Opcode) Invert() Opcode {
	switch op {
	case OpJEQ:
		return OpJNE
	case OpJNE:
		return OpJEQ
	case OpJLT:
		return OpJGE
	case OpJGE:
		return OpJLT
	case OpJLE:
		return OpJGT
	case OpJGT:
		return OpJLE
	}
	return op
}

// Register file.
const (
	ZERO = 0 // hard-wired zero
	AC1  = 1 // expression result
	AC2  = 2 // scratch / right operand
	AC3  = 3 // counted loop induction variable
	AC4  = 4 // array addressing
	FP   = 5
	SP   = 6
	PC   = 7

	NumRegs = 8
)

var regNames = [NumRegs]string{"ZERO", "AC1", "AC2", "AC3", "AC4", "FP", "SP", "PC"}

// RegName returns the symbolic name of register r.
func RegName(r int) string {
	if r >= 0 && r < NumRegs {
		return regNames[r]
	}
	return "R" + strconv.Itoa(r)
}

// Instr is one TM quintuple plus the symbolic payload some pseudo-ops need.
type Instr struct {
	Op      Opcode
	R, S, T int
	Comment string
	Sym     string
}

// New builds an executable instruction.
func New(op Opcode, r, s, t int, comment string) Instr {
	return Instr{Op: op, R: r, S: s, T: t, Comment: comment}
}

// Note builds a comment pseudo-op.
func Note(text string) Instr {
	return Instr{Op: OpComment, Comment: text}
}

// Data builds a data word placed at addr.
func Data(addr, value int, comment string) Instr {
	return Instr{Op: OpData, R: value, S: addr, Comment: comment}
}

// StringData builds a NUL terminated string placed at addr.
func StringData(addr int, text string) Instr {
	return Instr{Op: OpString, S: addr, Sym: text}
}

// Call builds a call placeholder for proc.
func Call(proc string) Instr {
	return Instr{Op: OpCall, Sym: proc, Comment: "call " + proc}
}

// Push stores reg on top of the stack.
func Push(reg int, comment string) []Instr {
	return []Instr{
		New(OpLDA, SP, -1, SP, comment),
		New(OpST, reg, 0, SP, comment),
	}
}

// Pop loads the top of the stack into reg.
func Pop(reg int, comment string) []Instr {
	return []Instr{
		New(OpLD, reg, 0, SP, comment),
		New(OpLDA, SP, 1, SP, comment),
	}
}

// IsPseudo reports whether in never occupies an instruction slot.
func (in Instr) IsPseudo() bool {
	return in.Op == OpComment || in.Op == OpData || in.Op == OpString
}

// Executable reports whether in occupies an instruction slot. Call
// placeholders count: they are replaced one for one by the linker.
func (in Instr) Executable() bool {
	return !in.IsPseudo()
}

// IsBranch reports whether in is a conditional jump.
func (in Instr) IsBranch() bool {
	return in.Op.IsBranch()
}

// LoadsPC reports whether in writes the program counter through a load.
func (in Instr) LoadsPC() bool {
	return (in.Op == OpLD || in.Op == OpLDA || in.Op == OpLDC) && in.R == PC
}

// TakesAddress reports whether in computes a code address into a general
// register, e.g. the return address of a call.
func (in Instr) TakesAddress() bool {
	return in.Op == OpLDA && in.T == PC && in.R != PC
}

// Unconditional reports whether control never falls through in.
func (in Instr) Unconditional() bool {
	switch {
	case in.Op == OpHALT, in.LoadsPC():
		return true
	case in.R == ZERO && (in.Op == OpJEQ || in.Op == OpJLE || in.Op == OpJGE):
		return true
	}
	return false
}

// FallsThrough reports whether control may continue with the next
// instruction after in.
func (in Instr) FallsThrough() bool {
	return !in.Unconditional()
}

// NeverTaken reports whether in is a branch that can never jump.
func (in Instr) NeverTaken() bool {
	return in.R == ZERO && (in.Op == OpJNE || in.Op == OpJLT || in.Op == OpJGT)
}

// Reads reports whether executing in reads register reg.
func (in Instr) Reads(reg int) bool {
	switch in.Op {
	case OpADD, OpSUB, OpMUL, OpDIV:
		return in.S == reg || in.T == reg
	case OpOUT, OpOUTC:
		return in.R == reg
	case OpLD, OpLDA:
		return in.T == reg
	case OpST:
		return in.R == reg || in.T == reg
	case OpJEQ, OpJNE, OpJLT, OpJLE, OpJGT, OpJGE:
		return in.R == reg || in.T == reg
	}
	return false
}

// Writes reports whether executing in writes register reg.
func (in Instr) Writes(reg int) bool {
	switch in.Op {
	case OpADD, OpSUB, OpMUL, OpDIV, OpIN, OpLD, OpLDA, OpLDC:
		return in.R == reg
	}
	return false
}

func (in Instr) String() string {
	switch {
	case in.Op == OpComment:
		return "* " + in.Comment
	case in.Op == OpData:
		return fmt.Sprintf(".DATA %d", in.R)
	case in.Op == OpString:
		return fmt.Sprintf(".SDATA %q", in.Sym)
	case in.Op == OpCall:
		return "call " + in.Sym
	case in.Op.IsRegisterOnly():
		return fmt.Sprintf("%s %d,%d,%d", in.Op, in.R, in.S, in.T)
	}
	return fmt.Sprintf("%s %d,%d(%d)", in.Op, in.R, in.S, in.T)
}

// CodeLength counts the instruction slots occupied by code.
func CodeLength(code []Instr) int {
	n := 0
	for _, in := range code {
		if in.Executable() {
			n++
		}
	}
	return n
}
