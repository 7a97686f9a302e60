package compiler

import "ice9c/pkg/asm"

// Checker type checks a Program and resolves every name to a Symbol with
// a concrete Storage.
//
// Layout:
//   - globals get consecutive data addresses from asm.DataBase in
//     declaration order;
//   - parameters live at FP+1, FP+2, ... in declaration order;
//   - a procedure's result lives at FP-1 under the procedure's own name;
//   - locals follow below the result slot.
type Checker struct {
	syms       *SymbolTable
	proc       *ProcDecl // procedure being checked, nil in the main body
	loops      int
	nextGlobal int
	frame      int
}

// Check annotates prog in place.
func Check(prog *Program) error {
	c := &Checker{syms: NewSymbolTable(), nextGlobal: asm.DataBase}
	return c.checkProgram(prog)
}

func (c *Checker) checkProgram(prog *Program) error {
	for _, d := range prog.Decls {
		switch d := d.(type) {
		case *TypeDecl:
			if err := c.checkTypeDecl(d); err != nil {
				return err
			}
		case *VarDecl:
			if err := c.checkVarDecl(d); err != nil {
				return err
			}
			prog.Globals = append(prog.Globals, d.Syms...)
		case *ProcDecl:
			if err := c.checkProc(d); err != nil {
				return err
			}
			if !d.Forward {
				prog.Procs = append(prog.Procs, d)
			}
		}
	}
	if fwd := c.syms.Forwards(); len(fwd) > 0 {
		return errorf(fwd[0].Line, "forward declaration of %s has no body", fwd[0].Name)
	}
	prog.GlobalSize = c.nextGlobal - asm.DataBase
	return c.checkStmts(prog.Body)
}

// resolveType turns int[3][2] into array 3 of array 2 of int.
func (c *Checker) resolveType(te TypeExpr) (*Type, error) {
	base, ok := c.syms.LookupType(te.Name)
	if !ok {
		return nil, errorf(te.Line, "unknown type: %s", te.Name)
	}
	t := base
	for i := len(te.Dims) - 1; i >= 0; i-- {
		if te.Dims[i] <= 0 {
			return nil, errorf(te.Line, "array dimensions must be greater than zero")
		}
		t = ArrayOf(t, te.Dims[i])
	}
	return t, nil
}

func (c *Checker) checkTypeDecl(d *TypeDecl) error {
	t, err := c.resolveType(d.Type)
	if err != nil {
		return err
	}
	if !c.syms.DeclareType(d.Name, t) {
		return errorf(d.Line, "type %s already defined", d.Name)
	}
	return nil
}

func (c *Checker) checkVarDecl(d *VarDecl) error {
	t, err := c.resolveType(d.Type)
	if err != nil {
		return err
	}
	d.Syms = d.Syms[:0]
	for _, name := range d.Names {
		sym := &Symbol{Name: name, Type: t}
		if c.syms.Scope() == ScopeGlobal {
			sym.Storage = Storage{Class: StorageGlobal, Offset: c.nextGlobal}
			c.nextGlobal += t.Size()
		} else {
			c.frame += t.Size()
			sym.Storage = Storage{Class: StorageLocal, Offset: -c.frame}
		}
		if !c.syms.DeclareVar(sym) {
			return errorf(d.Line, "variable %s already defined", name)
		}
		d.Syms = append(d.Syms, sym)
	}
	return nil
}

func (c *Checker) signature(p *ProcDecl) (*Type, error) {
	sig := &Type{Kind: KindProc, Name: p.Name}
	for _, g := range p.Params {
		t, err := c.resolveType(g.Type)
		if err != nil {
			return nil, err
		}
		for range g.Names {
			sig.Params = append(sig.Params, t)
		}
	}
	if p.Result != nil {
		t, err := c.resolveType(*p.Result)
		if err != nil {
			return nil, err
		}
		sig.Result = t
	}
	return sig, nil
}

func (c *Checker) checkProc(p *ProcDecl) error {
	sig, err := c.signature(p)
	if err != nil {
		return err
	}
	p.Sig = sig

	prev, declared := c.syms.LookupProc(p.Name)
	switch {
	case declared && p.Forward:
		return errorf(p.Line, "proc %s already declared", p.Name)
	case declared && !prev.Forward:
		return errorf(p.Line, "proc %s already defined", p.Name)
	case declared && !prev.Sig.Equal(sig):
		return errorf(p.Line, "definition of %s does not match its forward declaration", p.Name)
	}
	c.syms.DeclareProc(p)
	if p.Forward {
		return nil
	}

	c.syms.EnterScope()
	defer c.syms.ExitScope()
	c.proc = p
	defer func() { c.proc = nil }()

	i := 0
	for _, g := range p.Params {
		for _, name := range g.Names {
			sym := &Symbol{Name: name, Type: sig.Params[i], Storage: Storage{Class: StorageParam, Offset: i + 1}}
			if !c.syms.DeclareVar(sym) {
				return errorf(p.Line, "parameter %s already defined", name)
			}
			p.ParamSyms = append(p.ParamSyms, sym)
			i++
		}
	}

	c.syms.EnterScope()
	defer c.syms.ExitScope()
	c.frame = 0
	if sig.Result != nil {
		c.frame = 1
		p.ResultSym = &Symbol{Name: p.Name, Type: sig.Result, Storage: Storage{Class: StorageLocal, Offset: -1}}
		c.syms.DeclareVar(p.ResultSym)
	}
	for _, d := range p.Decls {
		switch d := d.(type) {
		case *TypeDecl:
			if err := c.checkTypeDecl(d); err != nil {
				return err
			}
		case *VarDecl:
			if err := c.checkVarDecl(d); err != nil {
				return err
			}
			p.LocalSyms = append(p.LocalSyms, d.Syms...)
		}
	}
	p.FrameSize = c.frame
	return c.checkStmts(p.Body)
}

func (c *Checker) checkStmts(stmts []Stmt) error {
	for _, s := range stmts {
		if err := c.checkStmt(s); err != nil {
			return err
		}
	}
	return nil
}

func isScalar(t *Type) bool {
	return t == IntType || t == BoolType || t == StrType
}

func (c *Checker) checkStmt(s Stmt) error {
	switch s := s.(type) {
	case *AssignStmt:
		lt, err := c.checkExpr(s.Target)
		if err != nil {
			return err
		}
		rt, err := c.checkExpr(s.Value)
		if err != nil {
			return err
		}
		if v, ok := s.Target.(*VarRef); ok && v.Sym.ReadOnly {
			return errorf(s.Line, "the fa variable (%s) cannot be written to in the loop body", v.Name)
		}
		if !lt.Equal(rt) {
			return errorf(s.Line, "incompatible types to binary operator :=")
		}
		if !isScalar(lt) {
			return errorf(s.Line, "binary operator := only defined for int, bool and str")
		}
	case *WriteStmt:
		t, err := c.checkExpr(s.Value)
		if err != nil {
			return err
		}
		if t != IntType && t != StrType {
			name := "writes"
			if s.Newline {
				name = "write"
			}
			return errorf(s.Line, "incompatible argument type to %s", name)
		}
	case *IfStmt:
		for _, g := range s.Guards {
			if err := c.checkCond(g.Cond); err != nil {
				return err
			}
			if err := c.checkStmts(g.Body); err != nil {
				return err
			}
		}
		return c.checkStmts(s.Else)
	case *DoStmt:
		if err := c.checkCond(s.Cond); err != nil {
			return err
		}
		c.loops++
		defer func() { c.loops-- }()
		return c.checkStmts(s.Body)
	case *FaStmt:
		for _, e := range []Expr{s.Lower, s.Upper} {
			t, err := c.checkExpr(e)
			if err != nil {
				return err
			}
			if t != IntType {
				return errorf(e.Pos(), "fa bounds must be ints")
			}
		}
		c.syms.EnterScope()
		defer c.syms.ExitScope()
		s.Sym = &Symbol{Name: s.Var, Type: IntType, Storage: Storage{Class: StorageInduction}, ReadOnly: true}
		c.syms.DeclareVar(s.Sym)
		c.loops++
		defer func() { c.loops-- }()
		return c.checkStmts(s.Body)
	case *BreakStmt:
		if c.loops == 0 {
			return errorf(s.Line, "breaks may only appear within a loop")
		}
	case *ExitStmt, *ReturnStmt:
	case *ExprStmt:
		_, err := c.checkExpr(s.Expr)
		return err
	}
	return nil
}

func (c *Checker) checkCond(e Expr) error {
	t, err := c.checkExpr(e)
	if err != nil {
		return err
	}
	if t != BoolType {
		return errorf(e.Pos(), "if and do tests must evaluate to a boolean")
	}
	return nil
}

func (c *Checker) checkExpr(e Expr) (*Type, error) {
	t, err := c.exprType(e)
	if err != nil {
		return nil, err
	}
	e.setType(t)
	return t, nil
}

func (c *Checker) exprType(e Expr) (*Type, error) {
	switch e := e.(type) {
	case *Literal, *StringLiteral, *ReadExpr:
		return e.Type(), nil
	case *VarRef:
		sym, ok := c.syms.LookupVar(e.Name)
		if !ok {
			return nil, errorf(e.Line, "undeclared variable: %s", e.Name)
		}
		e.Sym = sym
		return sym.Type, nil
	case *IndexExpr:
		sym, ok := c.syms.LookupVar(e.Name)
		if !ok {
			return nil, errorf(e.Line, "undeclared variable: %s", e.Name)
		}
		e.Sym = sym
		t := sym.Type
		for _, ix := range e.Indices {
			it, err := c.checkExpr(ix)
			if err != nil {
				return nil, err
			}
			if it != IntType {
				return nil, errorf(ix.Pos(), "expressions for array dereference must evaluate to ints")
			}
			if t.Kind != KindArray {
				return nil, errorf(e.Line, "too many array dereferences in l-value")
			}
			t = t.Elem
		}
		if t.Kind == KindArray {
			return nil, errorf(e.Line, "array %s must be fully indexed", e.Name)
		}
		return t, nil
	case *UnaryExpr:
		rt, err := c.checkExpr(e.Right)
		if err != nil {
			return nil, err
		}
		switch {
		case e.Op == MINUS && (rt == IntType || rt == BoolType):
			return rt, nil
		case e.Op == QUESTION && rt == BoolType:
			return IntType, nil
		}
		return nil, errorf(e.Line, "incompatible type to unary operator %s", opText(e.Op))
	case *BinaryExpr:
		lt, err := c.checkExpr(e.Left)
		if err != nil {
			return nil, err
		}
		rt, err := c.checkExpr(e.Right)
		if err != nil {
			return nil, err
		}
		bad := errorf(e.Line, "incompatible types to binary operator %s", opText(e.Op))
		switch e.Op {
		case LESS, LESS_EQ, GREATER, GREATER_EQ:
			if lt != IntType || rt != IntType {
				return nil, bad
			}
			return BoolType, nil
		case SLASH, PERCENT:
			if lt != IntType || rt != IntType {
				return nil, bad
			}
			return IntType, nil
		default: // = != + - *
			if (lt != IntType && lt != BoolType) || lt != rt {
				return nil, bad
			}
			if e.Op == EQUALS || e.Op == NOT_EQ {
				return BoolType, nil
			}
			return lt, nil
		}
	case *CallExpr:
		return c.checkCall(e)
	}
	return nil, errorf(e.Pos(), "unexpected expression %s", e)
}

func (c *Checker) checkCall(e *CallExpr) (*Type, error) {
	argTypes := make([]*Type, len(e.Args))
	for i, a := range e.Args {
		t, err := c.checkExpr(a)
		if err != nil {
			return nil, err
		}
		argTypes[i] = t
	}

	proc, ok := c.syms.LookupProc(e.Name)
	if !ok {
		if e.Name == builtinInt {
			if len(argTypes) != 1 || argTypes[0] != StrType {
				return nil, errorf(e.Line, "int() takes one str parameter")
			}
			return IntType, nil
		}
		return nil, errorf(e.Line, "unknown proc %s", e.Name)
	}
	e.Proc = proc
	if len(argTypes) != len(proc.Sig.Params) {
		return nil, errorf(e.Line, "%s takes %d parameters, got %d", e.Name, len(proc.Sig.Params), len(argTypes))
	}
	for i, want := range proc.Sig.Params {
		if !argTypes[i].Equal(want) {
			return nil, errorf(e.Args[i].Pos(), "parameter %d of %s must be %s", i+1, e.Name, want)
		}
	}
	if proc.Sig.Result == nil {
		return NilType, nil
	}
	return proc.Sig.Result, nil
}

// builtinInt converts a decimal string to an int.
const builtinInt = "int"

var opTexts = map[TokenType]string{
	PLUS: "+", MINUS: "-", STAR: "*", SLASH: "/", PERCENT: "%", QUESTION: "?",
	EQUALS: "=", NOT_EQ: "!=", LESS: "<", LESS_EQ: "<=", GREATER: ">", GREATER_EQ: ">=",
}

func opText(op TokenType) string {
	if s, ok := opTexts[op]; ok {
		return s
	}
	return op.String()
}
