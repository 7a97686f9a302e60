package compiler

import (
	"fmt"

	"ice9c/pkg/tm"
)

// boundsMessage is printed before halting on an out of range array index.
const boundsMessage = "Arrays bounds violation"

var arithOps = map[TokenType]tm.Opcode{
	PLUS:  tm.OpADD,
	MINUS: tm.OpSUB,
	STAR:  tm.OpMUL,
	SLASH: tm.OpDIV,
}

// compareJumps maps a comparison to the jump taken when left-right
// satisfies it.
var compareJumps = map[TokenType]tm.Opcode{
	EQUALS:     tm.OpJEQ,
	NOT_EQ:     tm.OpJNE,
	LESS:       tm.OpJLT,
	LESS_EQ:    tm.OpJLE,
	GREATER:    tm.OpJGT,
	GREATER_EQ: tm.OpJGE,
}

// genExpr leaves the value of e in AC1.
func (cg *CodeGen) genExpr(e Expr) error {
	switch n := e.(type) {

	case *Literal:
		cg.emit(tm.OpLDC, tm.AC1, n.Value, 0, "literal "+n.String())

	case *StringLiteral:
		addr := cg.stringAddr(n.Value)
		cg.emit(tm.OpLDC, tm.AC1, addr, 0, "string "+n.String())

	case *ReadExpr:
		cg.emit(tm.OpIN, tm.AC1, 0, 0, "read")

	case *VarRef:
		return cg.genLoad(n)

	case *IndexExpr:
		if err := cg.genAddress(n); err != nil {
			return err
		}
		cg.emit(tm.OpLD, tm.AC1, 0, tm.AC4, "load "+n.Name)

	case *UnaryExpr:
		if err := cg.genExpr(n.Right); err != nil {
			return err
		}
		if n.Op == MINUS {
			cg.emit(tm.OpLDC, tm.AC2, -1, 0, "negate")
			cg.emit(tm.OpMUL, tm.AC1, tm.AC1, tm.AC2, "negate")
			if n.Right.Type() == BoolType {
				cg.emit(tm.OpLDA, tm.AC1, 1, tm.AC1, "not")
			}
		}
		// ? reinterprets a bool as an int; nothing to emit.

	case *BinaryExpr:
		return cg.genBinary(n)

	case *CallExpr:
		if n.Proc == nil && n.Name == builtinInt {
			return cg.genStrToInt(n)
		}
		return cg.genCall(n)

	default:
		return fmt.Errorf("codegen: unsupported expression %T", e)
	}
	return nil
}

func (cg *CodeGen) genLoad(v *VarRef) error {
	st := cg.storage(v.Sym)
	if v.Sym.Type.Kind == KindArray {
		// Arrays are passed by reference.
		if st.Class == StorageParam {
			cg.emit(tm.OpLD, tm.AC1, st.Offset, tm.FP, "address of "+v.Name)
		} else {
			cg.emit(tm.OpLDA, tm.AC1, st.Offset, st.Base(), "address of "+v.Name)
		}
		return nil
	}
	if st.Class == StorageInduction {
		cg.emit(tm.OpLDA, tm.AC1, 0, tm.AC3, "load "+v.Name)
		return nil
	}
	cg.emit(tm.OpLD, tm.AC1, st.Offset, st.Base(), "load "+v.Name)
	return nil
}

func (cg *CodeGen) genBinary(n *BinaryExpr) error {
	if n.Left.Type() == BoolType && (n.Op == PLUS || n.Op == STAR) {
		return cg.genShortCircuit(n)
	}
	if n.Op == SLASH || n.Op == PERCENT {
		// Only a zero written as such is an error; folded zeros fault at run
		// time in both modes.
		if lit, ok := n.Right.(*Literal); ok && lit.Value == 0 && !lit.Folded {
			return errorf(n.Line, "division by zero")
		}
	}

	if err := cg.genExpr(n.Left); err != nil {
		return err
	}
	cg.push(tm.AC1, "save left")
	if err := cg.genExpr(n.Right); err != nil {
		return err
	}
	cg.pop(tm.AC2, "restore left")

	if op, ok := arithOps[n.Op]; ok {
		cg.emit(op, tm.AC1, tm.AC2, tm.AC1, opText(n.Op))
		return nil
	}
	if n.Op == PERCENT {
		cg.push(tm.AC4, "save AC4")
		cg.emit(tm.OpDIV, tm.AC4, tm.AC2, tm.AC1, "mod: quotient")
		cg.emit(tm.OpMUL, tm.AC4, tm.AC1, tm.AC4, "mod: quotient * right")
		cg.emit(tm.OpSUB, tm.AC1, tm.AC2, tm.AC4, "mod: remainder")
		cg.pop(tm.AC4, "restore AC4")
		return nil
	}
	jump, ok := compareJumps[n.Op]
	if !ok {
		return errorf(n.Line, "unsupported operator %s", opText(n.Op))
	}
	// The optimizer recognizes this exact five instruction shape.
	isTrue, done := cg.newLabel(), cg.newLabel()
	cg.emit(tm.OpSUB, tm.AC1, tm.AC2, tm.AC1, "compare "+opText(n.Op))
	cg.jump(jump, tm.AC1, isTrue, "")
	cg.emit(tm.OpLDC, tm.AC1, 0, 0, "false")
	cg.jump(tm.OpJEQ, tm.ZERO, done, "")
	cg.out.Bind(isTrue)
	cg.emit(tm.OpLDC, tm.AC1, 1, 0, "true")
	cg.out.Bind(done)
	return nil
}

// genShortCircuit emits bool + (or) and bool * (and). The right operand
// is skipped once the left one decides the result.
func (cg *CodeGen) genShortCircuit(n *BinaryExpr) error {
	if err := cg.genExpr(n.Left); err != nil {
		return err
	}
	done := cg.newLabel()
	if n.Op == PLUS {
		cg.jump(tm.OpJNE, tm.AC1, done, "or: left true")
	} else {
		cg.jump(tm.OpJEQ, tm.AC1, done, "and: left false")
	}
	if err := cg.genExpr(n.Right); err != nil {
		return err
	}
	cg.out.Bind(done)
	return nil
}

// writeString prints the NUL terminated string whose address is in AC1.
func (cg *CodeGen) writeString() {
	cg.push(tm.AC2, "save AC2")
	top, done := cg.newLabel(), cg.newLabel()
	cg.out.Bind(top)
	cg.emit(tm.OpLD, tm.AC2, 0, tm.AC1, "next char")
	cg.jump(tm.OpJEQ, tm.AC2, done, "end of string")
	cg.emit(tm.OpOUTC, tm.AC2, 0, 0, "")
	cg.emit(tm.OpLDA, tm.AC1, 1, tm.AC1, "")
	cg.jump(tm.OpJEQ, tm.ZERO, top, "")
	cg.out.Bind(done)
	cg.pop(tm.AC2, "restore AC2")
}

// genStrToInt parses the decimal digits of a string into AC1. Parsing
// stops at the terminator; other characters are not checked.
func (cg *CodeGen) genStrToInt(n *CallExpr) error {
	if err := cg.genExpr(n.Args[0]); err != nil {
		return err
	}
	cg.push(tm.AC2, "save AC2")
	cg.push(tm.AC4, "save AC4")
	cg.emit(tm.OpLDC, tm.AC4, 0, 0, "int(): total")
	top, done := cg.newLabel(), cg.newLabel()
	cg.out.Bind(top)
	cg.emit(tm.OpLD, tm.AC2, 0, tm.AC1, "int(): next digit")
	cg.jump(tm.OpJEQ, tm.AC2, done, "int(): end of string")
	cg.emit(tm.OpLDA, tm.AC2, -'0', tm.AC2, "int(): digit value")
	cg.push(tm.AC2, "")
	cg.emit(tm.OpLDC, tm.AC2, 10, 0, "")
	cg.emit(tm.OpMUL, tm.AC4, tm.AC4, tm.AC2, "int(): total * 10")
	cg.pop(tm.AC2, "")
	cg.emit(tm.OpADD, tm.AC4, tm.AC4, tm.AC2, "int(): add digit")
	cg.emit(tm.OpLDA, tm.AC1, 1, tm.AC1, "")
	cg.jump(tm.OpJEQ, tm.ZERO, top, "")
	cg.out.Bind(done)
	cg.emit(tm.OpLDA, tm.AC1, 0, tm.AC4, "int(): result")
	cg.pop(tm.AC4, "restore AC4")
	cg.pop(tm.AC2, "restore AC2")
	return nil
}

// genCall saves the scratch registers and FP, pushes the arguments last
// first so the first one ends up nearest the callee's FP, then the return
// address. The callee pops everything up to the saved FP.
func (cg *CodeGen) genCall(n *CallExpr) error {
	cg.comment("call %s", n.Name)
	for _, r := range []int{tm.AC2, tm.AC3, tm.AC4, tm.FP} {
		cg.push(r, "save "+tm.RegName(r))
	}
	for i := len(n.Args) - 1; i >= 0; i-- {
		if err := cg.genExpr(n.Args[i]); err != nil {
			return err
		}
		cg.push(tm.AC1, fmt.Sprintf("argument %d", i+1))
	}
	cg.emit(tm.OpLDA, tm.AC2, 3, tm.PC, "return address")
	cg.push(tm.AC2, "")
	cg.out.Call(n.Name, n.Line)
	for _, r := range []int{tm.FP, tm.AC4, tm.AC3, tm.AC2} {
		cg.pop(r, "restore "+tm.RegName(r))
	}
	return nil
}

// genAddress leaves the address of an array element in AC4. Every index is
// checked against its dimension; a violation prints a message and halts.
func (cg *CodeGen) genAddress(n *IndexExpr) error {
	fail, start := cg.newLabel(), cg.newLabel()
	cg.jump(tm.OpJEQ, tm.ZERO, start, "skip bounds failure")
	cg.out.Bind(fail)
	cg.emit(tm.OpLDC, tm.AC1, cg.stringAddr(boundsMessage), 0, "bounds message")
	cg.writeString()
	cg.emit(tm.OpOUTNL, 0, 0, 0, "")
	cg.emit(tm.OpHALT, 0, 0, 0, "bounds violation")
	cg.out.Bind(start)

	st := cg.storage(n.Sym)
	if st.Class == StorageParam {
		cg.emit(tm.OpLD, tm.AC4, st.Offset, tm.FP, "base of "+n.Name)
	} else {
		cg.emit(tm.OpLDA, tm.AC4, st.Offset, st.Base(), "base of "+n.Name)
	}

	dims := n.Sym.Type.Dims()
	for i, ix := range n.Indices {
		stride := 1
		for _, d := range dims[i+1:] {
			stride *= d
		}
		cg.push(tm.AC4, "save address")
		if err := cg.genExpr(ix); err != nil {
			return err
		}
		cg.pop(tm.AC4, "restore address")
		cg.jump(tm.OpJLT, tm.AC1, fail, "index below 0")
		cg.emit(tm.OpLDA, tm.AC1, -dims[i], tm.AC1, "")
		cg.jump(tm.OpJGE, tm.AC1, fail, fmt.Sprintf("index not below %d", dims[i]))
		cg.emit(tm.OpLDA, tm.AC1, dims[i], tm.AC1, "")
		cg.emit(tm.OpLDC, tm.AC2, stride, 0, "stride")
		cg.emit(tm.OpMUL, tm.AC2, tm.AC2, tm.AC1, "")
		cg.emit(tm.OpADD, tm.AC4, tm.AC4, tm.AC2, "")
	}
	return nil
}
