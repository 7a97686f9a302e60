package compiler

import (
	"fmt"

	"ice9c/pkg/asm"
	"ice9c/pkg/tm"
)

// CodeGen walks a checked AST and emits TM instructions.
//
// Program layout:
//
//	0      LD  SP,0(ZERO)       stack starts at the top of data memory
//	1      JEQ ZERO,n(PC)       skip the procedure bodies (only with procs)
//	2..    procedure bodies
//	..     main body
//	last   HALT
//
// Static data (globals, string literals, spill slots) is emitted as pseudo-ops
// ahead of the code and does not occupy instruction slots.
type CodeGen struct {
	out       *Seq
	nextLabel Label
	procs     map[string]int // entry points, filled while laying out
	data      []tm.Instr
	nextData  int
	strs      map[string]int // string literal -> data address

	proc      *ProcDecl // procedure being generated, nil in the main body
	retLabel  Label
	haltLabel Label
	loopStack []Label // break targets

	// Counted loops keep their induction variable in AC3. An inner loop
	// spills the enclosing one and redirects its symbol to the spill slot.
	faStack   []*Symbol
	overrides map[*Symbol]Storage
	spills    int
}

func newCodeGen(dataStart int) *CodeGen {
	return &CodeGen{
		out:       &Seq{},
		procs:     make(map[string]int),
		nextData:  dataStart,
		strs:      make(map[string]int),
		overrides: make(map[*Symbol]Storage),
	}
}

func (cg *CodeGen) newLabel() Label {
	l := cg.nextLabel
	cg.nextLabel++
	return l
}

func (cg *CodeGen) emit(op tm.Opcode, r, s, t int, comment string) {
	cg.out.Emit(tm.New(op, r, s, t, comment))
}

func (cg *CodeGen) comment(format string, args ...any) {
	cg.out.Emit(tm.Note(fmt.Sprintf(format, args...)))
}

func (cg *CodeGen) jump(op tm.Opcode, reg int, l Label, comment string) {
	cg.out.Jump(op, reg, l, comment)
}

func (cg *CodeGen) push(reg int, comment string) {
	cg.out.Emit(tm.Push(reg, comment)...)
}

func (cg *CodeGen) pop(reg int, comment string) {
	cg.out.Emit(tm.Pop(reg, comment)...)
}

// allocData reserves n zeroed data words and returns the first address.
func (cg *CodeGen) allocData(n int, comment string) int {
	addr := cg.nextData
	for i := 0; i < n; i++ {
		c := ""
		if i == 0 {
			c = comment
		}
		cg.data = append(cg.data, tm.Data(addr+i, 0, c))
	}
	cg.nextData += n
	return addr
}

// stringAddr places s in static data once and returns its address.
func (cg *CodeGen) stringAddr(s string) int {
	if addr, ok := cg.strs[s]; ok {
		return addr
	}
	addr := cg.nextData
	cg.data = append(cg.data, tm.StringData(addr, s))
	cg.nextData += len(s) + 1
	cg.strs[s] = addr
	return addr
}

// storage is where sym lives right now, taking counted loop spills into
// account.
func (cg *CodeGen) storage(sym *Symbol) Storage {
	if st, ok := cg.overrides[sym]; ok {
		return st
	}
	return sym.Storage
}

// Generate lowers a checked program to linked TM code. The returned slice
// starts with the static data pseudo-ops.
func Generate(prog *Program) ([]tm.Instr, error) {
	cg := newCodeGen(asm.DataBase + prog.GlobalSize)
	for _, sym := range prog.Globals {
		cg.data = append(cg.data, tm.Data(sym.Storage.Offset, 0, sym.Name))
		for i := 1; i < sym.Type.Size(); i++ {
			cg.data = append(cg.data, tm.Data(sym.Storage.Offset+i, 0, ""))
		}
	}
	cg.haltLabel = cg.newLabel()

	main := cg.out
	cg.emit(tm.OpLD, tm.SP, 0, tm.ZERO, "init stack")

	if len(prog.Procs) > 0 {
		bodies := &Seq{}
		for _, p := range prog.Procs {
			cg.procs[p.Name] = 2 + bodies.Len()
			s, err := cg.genProc(p)
			if err != nil {
				return nil, err
			}
			bodies.Append(s)
		}
		skip := cg.newLabel()
		main.Jump(tm.OpJEQ, tm.ZERO, skip, "skip procs")
		main.Append(bodies)
		main.Bind(skip)
	}

	cg.out = main
	cg.comment("main")
	if err := cg.genStmts(prog.Body); err != nil {
		return nil, err
	}
	main.Bind(cg.haltLabel)
	cg.emit(tm.OpHALT, 0, 0, 0, "end of program")

	code, err := main.Link(cg.procs)
	if err != nil {
		return nil, err
	}
	return append(cg.data, code...), nil
}

// genProc emits one procedure. On entry the return address is on top of
// the stack with the arguments above it.
//
//	FP+n+1  saved FP of the caller
//	FP+1..  arguments, first argument nearest FP
//	FP      return address
//	FP-1    result slot (functions only)
//	FP-k    locals
func (cg *CodeGen) genProc(p *ProcDecl) (*Seq, error) {
	cg.out = &Seq{}
	cg.proc = p
	cg.retLabel = cg.newLabel()
	cg.spills = 0
	defer func() { cg.proc = nil }()

	cg.comment("proc %s", p.Name)
	cg.emit(tm.OpLDA, tm.FP, 0, tm.SP, "set frame")
	if p.FrameSize > 0 {
		cg.emit(tm.OpLDA, tm.SP, -p.FrameSize, tm.SP, "reserve locals")
	}
	if err := cg.genStmts(p.Body); err != nil {
		return nil, err
	}
	cg.out.Bind(cg.retLabel)
	if p.ResultSym != nil {
		cg.emit(tm.OpLD, tm.AC1, p.ResultSym.Storage.Offset, tm.FP, "load result")
	}
	cg.emit(tm.OpLDA, tm.SP, len(p.ParamSyms)+1, tm.FP, "pop frame")
	cg.emit(tm.OpLD, tm.PC, 0, tm.FP, "return")
	return cg.out, nil
}

func (cg *CodeGen) genStmts(stmts []Stmt) error {
	for _, s := range stmts {
		if err := cg.genStmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (cg *CodeGen) genStmt(s Stmt) error {
	switch n := s.(type) {

	case *AssignStmt:
		cg.comment("line %d: %s", n.Line, n)
		if err := cg.genExpr(n.Value); err != nil {
			return err
		}
		cg.push(tm.AC1, "save value")
		switch t := n.Target.(type) {
		case *IndexExpr:
			if err := cg.genAddress(t); err != nil {
				return err
			}
			cg.pop(tm.AC1, "restore value")
			cg.emit(tm.OpST, tm.AC1, 0, tm.AC4, "store "+t.Name)
		case *VarRef:
			cg.pop(tm.AC1, "restore value")
			st := cg.storage(t.Sym)
			cg.emit(tm.OpST, tm.AC1, st.Offset, st.Base(), "store "+t.Name)
		default:
			return errorf(n.Line, "cannot assign to %s", n.Target)
		}

	case *WriteStmt:
		cg.comment("line %d: %s", n.Line, n)
		if err := cg.genExpr(n.Value); err != nil {
			return err
		}
		if n.Value.Type() == StrType {
			cg.writeString()
		} else {
			cg.emit(tm.OpOUT, tm.AC1, 0, 0, "write int")
		}
		if n.Newline {
			cg.emit(tm.OpOUTNL, 0, 0, 0, "newline")
		}

	case *IfStmt:
		cg.comment("line %d: if", n.Line)
		end := cg.newLabel()
		for _, g := range n.Guards {
			next := cg.newLabel()
			if err := cg.genExpr(g.Cond); err != nil {
				return err
			}
			cg.jump(tm.OpJEQ, tm.AC1, next, "guard false")
			if err := cg.genStmts(g.Body); err != nil {
				return err
			}
			cg.jump(tm.OpJEQ, tm.ZERO, end, "jump to fi")
			cg.out.Bind(next)
		}
		if err := cg.genStmts(n.Else); err != nil {
			return err
		}
		cg.out.Bind(end)

	case *DoStmt:
		cg.comment("line %d: do", n.Line)
		top, end := cg.newLabel(), cg.newLabel()
		cg.out.Bind(top)
		if err := cg.genExpr(n.Cond); err != nil {
			return err
		}
		cg.jump(tm.OpJEQ, tm.AC1, end, "leave do")
		cg.loopStack = append(cg.loopStack, end)
		err := cg.genStmts(n.Body)
		cg.loopStack = cg.loopStack[:len(cg.loopStack)-1]
		if err != nil {
			return err
		}
		cg.jump(tm.OpJEQ, tm.ZERO, top, "repeat do")
		cg.out.Bind(end)

	case *FaStmt:
		return cg.genFa(n)

	case *BreakStmt:
		if len(cg.loopStack) == 0 {
			return errorf(n.Line, "breaks may only appear within a loop")
		}
		cg.jump(tm.OpJEQ, tm.ZERO, cg.loopStack[len(cg.loopStack)-1], "break")

	case *ExitStmt:
		cg.jump(tm.OpJEQ, tm.ZERO, cg.haltLabel, "exit")

	case *ReturnStmt:
		if cg.proc == nil {
			cg.jump(tm.OpJEQ, tm.ZERO, cg.haltLabel, "return from main")
		} else {
			cg.jump(tm.OpJEQ, tm.ZERO, cg.retLabel, "return")
		}

	case *ExprStmt:
		cg.comment("line %d: %s", n.Line, n)
		return cg.genExpr(n.Expr)

	default:
		return fmt.Errorf("codegen: unsupported statement %T", s)
	}
	return nil
}

// genFa emits a counted loop. The induction variable lives in AC3 and the
// upper bound is evaluated before every iteration.
//
//	    lower -> AC3
//	    jump check
//	body:
//	    ...
//	    AC3 += 1
//	check:
//	    upper -> AC1
//	    AC1 = AC3 - AC1
//	    JLE AC1, body
//	end:
func (cg *CodeGen) genFa(n *FaStmt) error {
	cg.comment("line %d: fa %s", n.Line, n.Var)

	var outer *Symbol
	var prev Storage
	var hadPrev bool
	if len(cg.faStack) > 0 {
		outer = cg.faStack[len(cg.faStack)-1]
		prev, hadPrev = cg.overrides[outer]
		if cg.proc == nil {
			addr := cg.allocData(1, "spill "+outer.Name)
			cg.emit(tm.OpST, tm.AC3, addr, tm.ZERO, "spill "+outer.Name)
			cg.overrides[outer] = Storage{Class: StorageGlobal, Offset: addr}
		} else {
			cg.spills++
			cg.push(tm.AC3, "spill "+outer.Name)
			cg.overrides[outer] = Storage{Class: StorageLocal, Offset: -(cg.proc.FrameSize + cg.spills)}
		}
	}

	if err := cg.genExpr(n.Lower); err != nil {
		return err
	}
	cg.emit(tm.OpLDA, tm.AC3, 0, tm.AC1, "init "+n.Var)

	body, check, end := cg.newLabel(), cg.newLabel(), cg.newLabel()
	cg.jump(tm.OpJEQ, tm.ZERO, check, "test bound first")
	cg.out.Bind(body)

	cg.faStack = append(cg.faStack, n.Sym)
	cg.loopStack = append(cg.loopStack, end)
	err := cg.genStmts(n.Body)
	cg.loopStack = cg.loopStack[:len(cg.loopStack)-1]
	cg.faStack = cg.faStack[:len(cg.faStack)-1]
	if err != nil {
		return err
	}

	cg.emit(tm.OpLDA, tm.AC3, 1, tm.AC3, "step "+n.Var)
	cg.out.Bind(check)
	if err := cg.genExpr(n.Upper); err != nil {
		return err
	}
	cg.emit(tm.OpSUB, tm.AC1, tm.AC3, tm.AC1, n.Var+" - upper")
	cg.jump(tm.OpJLE, tm.AC1, body, "next iteration")
	cg.out.Bind(end)

	if outer != nil {
		if cg.proc == nil {
			cg.emit(tm.OpLD, tm.AC3, cg.overrides[outer].Offset, tm.ZERO, "restore "+outer.Name)
		} else {
			cg.pop(tm.AC3, "restore "+outer.Name)
			cg.spills--
		}
		if hadPrev {
			cg.overrides[outer] = prev
		} else {
			delete(cg.overrides, outer)
		}
	}
	return nil
}
