package cpu

import (
	"errors"
	"fmt"
	"os"

	"ice9c/pkg/tm"
)

const (
	IAddrSize = 10000
	DAddrSize = 10000

	// DefaultMaxSteps bounds Run when MaxSteps is zero.
	DefaultMaxSteps = 5_000_000
)

var (
	ErrIMem         = errors.New("instruction memory fault")
	ErrDMem         = errors.New("data memory fault")
	ErrZeroDivide   = errors.New("division by zero")
	ErrStepLimit    = errors.New("step limit exceeded")
	ErrInput        = errors.New("illegal input")
	ErrInputPending = errors.New("input pending")
	ErrUnlinked     = errors.New("unlinked call placeholder")
)

// CPU is a TM machine: eight registers, an instruction memory holding
// decoded quintuples and a word addressed data memory.
type CPU struct {
	Regs [tm.NumRegs]int
	IMem []tm.Instr
	DMem []int

	Halted bool
	// Waiting is set while an IN instruction waits for the console.
	Waiting bool

	Steps    int
	MaxSteps int

	Console Console
}

// NewCPU returns a reset machine. A nil console reads stdin and writes stdout.
func NewCPU(console Console) *CPU {
	if console == nil {
		console = NewStreamConsole(os.Stdin, os.Stdout)
	}
	c := &CPU{
		DMem:    make([]int, DAddrSize),
		Console: console,
	}
	c.Reset()
	return c
}

// Reset clears registers and data memory and stores the top data address
// in word 0, where the program prologue picks up its stack pointer.
func (c *CPU) Reset() {
	c.Regs = [tm.NumRegs]int{}
	clear(c.DMem)
	c.DMem[0] = DAddrSize - 1
	c.Halted = false
	c.Waiting = false
	c.Steps = 0
}

// Load places the executable instructions of code in instruction memory in
// order and the data and string pseudo-ops at their data addresses.
func (c *CPU) Load(code []tm.Instr) error {
	c.Reset()
	c.IMem = c.IMem[:0]
	for _, in := range code {
		switch in.Op {
		case tm.OpComment:
		case tm.OpData:
			if err := c.poke(in.S, in.R); err != nil {
				return err
			}
		case tm.OpString:
			for i, ch := range []byte(in.Sym) {
				if err := c.poke(in.S+i, int(ch)); err != nil {
					return err
				}
			}
			if err := c.poke(in.S+len(in.Sym), 0); err != nil {
				return err
			}
		case tm.OpCall:
			return fmt.Errorf("%w: %s", ErrUnlinked, in.Sym)
		default:
			c.IMem = append(c.IMem, in)
		}
	}
	if len(c.IMem) > IAddrSize {
		return fmt.Errorf("program too large for instruction memory: %d > %d", len(c.IMem), IAddrSize)
	}
	return nil
}

func (c *CPU) poke(addr, v int) error {
	if addr < 0 || addr >= len(c.DMem) {
		return fmt.Errorf("%w: data address %d", ErrDMem, addr)
	}
	c.DMem[addr] = v
	return nil
}

func validReg(r int) bool {
	return r >= 0 && r < tm.NumRegs
}

func (c *CPU) setReg(r, v int) {
	if r != tm.ZERO {
		c.Regs[r] = v
	}
}

// Step executes one instruction. The program counter is incremented before
// the instruction runs, so PC-relative operands are relative to the next one.
func (c *CPU) Step() error {
	if c.Halted {
		return nil
	}
	pc := c.Regs[tm.PC]
	if pc < 0 || pc >= len(c.IMem) {
		return fmt.Errorf("%w: pc %d", ErrIMem, pc)
	}
	in := c.IMem[pc]
	c.Regs[tm.PC] = pc + 1
	c.Steps++

	if !validReg(in.R) || !validReg(in.T) || (in.Op.IsRegisterOnly() && !validReg(in.S)) {
		return fmt.Errorf("%w: bad register in %v at %d", ErrIMem, in, pc)
	}
	r := c.Regs[in.R]
	t := c.Regs[in.T]
	var s int
	if in.Op.IsRegisterOnly() {
		s = c.Regs[in.S]
	}

	switch in.Op {
	case tm.OpHALT:
		c.Halted = true
	case tm.OpIN:
		v, err := c.Console.ReadInt()
		if errors.Is(err, ErrInputPending) {
			c.Regs[tm.PC] = pc
			c.Waiting = true
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w at %d: %v", ErrInput, pc, err)
		}
		c.Waiting = false
		c.setReg(in.R, v)
	case tm.OpOUT:
		c.Console.WriteInt(r)
	case tm.OpOUTC:
		c.Console.WriteChar(r)
	case tm.OpOUTNL:
		c.Console.WriteNewline()
	case tm.OpADD:
		c.setReg(in.R, s+t)
	case tm.OpSUB:
		c.setReg(in.R, s-t)
	case tm.OpMUL:
		c.setReg(in.R, s*t)
	case tm.OpDIV:
		if t == 0 {
			return fmt.Errorf("%w at %d", ErrZeroDivide, pc)
		}
		c.setReg(in.R, s/t)
	case tm.OpLD:
		addr := in.S + t
		if addr < 0 || addr >= len(c.DMem) {
			return fmt.Errorf("%w: load from %d at %d", ErrDMem, addr, pc)
		}
		c.setReg(in.R, c.DMem[addr])
	case tm.OpST:
		addr := in.S + t
		if addr < 0 || addr >= len(c.DMem) {
			return fmt.Errorf("%w: store to %d at %d", ErrDMem, addr, pc)
		}
		c.DMem[addr] = r
	case tm.OpLDA:
		c.setReg(in.R, in.S+t)
	case tm.OpLDC:
		c.setReg(in.R, in.S)
	case tm.OpJEQ, tm.OpJNE, tm.OpJLT, tm.OpJLE, tm.OpJGT, tm.OpJGE:
		if in.Op.Taken(r) {
			c.Regs[tm.PC] = in.S + t
		}
	default:
		return fmt.Errorf("%w: illegal opcode %s at %d", ErrIMem, in.Op, pc)
	}
	return nil
}

// Run steps until HALT, an error, or the step limit.
func (c *CPU) Run() error {
	limit := c.MaxSteps
	if limit <= 0 {
		limit = DefaultMaxSteps
	}
	for !c.Halted {
		if c.Steps >= limit {
			return fmt.Errorf("%w (%d)", ErrStepLimit, limit)
		}
		if err := c.Step(); err != nil {
			return err
		}
		if c.Waiting {
			return ErrInputPending
		}
	}
	return nil
}
