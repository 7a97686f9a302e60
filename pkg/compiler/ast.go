package compiler

import (
	"fmt"
	"strings"
)

//  Expression nodes

// Expr is implemented by every node that produces a value.
// genExpr always leaves the result in AC1.
type Expr interface {
	exprNode()
	String() string
	Pos() int
	Type() *Type
	setType(t *Type)
}

// typed carries the source line and the type the checker assigned.
type typed struct {
	Line int
	T    *Type
}

func (e *typed) Pos() int    { return e.Line }
func (e *typed) Type() *Type { return e.T }

func (e *typed) setType(t *Type) { e.T = t }

// Literal is an int or bool constant. Bools are 0 / 1.
//
//	x := 10;
//	     ^^  Literal{Value: 10}
type Literal struct {
	typed
	Value int
	// Folded is set on literals produced by OptimizeAST rather than written
	// in the source.
	Folded bool
}

func (*Literal) exprNode() {}
func (l *Literal) String() string {
	if l.T == BoolType {
		return fmt.Sprintf("%t", l.Value != 0)
	}
	return fmt.Sprintf("%d", l.Value)
}

// StringLiteral is a string constant "..."
type StringLiteral struct {
	typed
	Value string
}

func (*StringLiteral) exprNode()        {}
func (s *StringLiteral) String() string { return fmt.Sprintf("%q", s.Value) }

// VarRef is a read of a named variable. Sym is resolved by the checker.
type VarRef struct {
	typed
	Name string
	Sym  *Symbol
}

func (*VarRef) exprNode()        {}
func (v *VarRef) String() string { return v.Name }

// IndexExpr is an array element a[i][j].
type IndexExpr struct {
	typed
	Name    string
	Indices []Expr
	Sym     *Symbol
}

func (*IndexExpr) exprNode() {}
func (ix *IndexExpr) String() string {
	var sb strings.Builder
	sb.WriteString(ix.Name)
	for _, e := range ix.Indices {
		fmt.Fprintf(&sb, "[%s]", e)
	}
	return sb.String()
}

// BinaryExpr represents a binary operation: Left Op Right.
// On bools + is a short-circuit or, * a short-circuit and.
type BinaryExpr struct {
	typed
	Op    TokenType
	Left  Expr
	Right Expr
}

func (*BinaryExpr) exprNode() {}
func (b *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left, opText(b.Op), b.Right)
}

// UnaryExpr is - (negation / not) or ? (bool to int).
type UnaryExpr struct {
	typed
	Op    TokenType
	Right Expr
}

func (*UnaryExpr) exprNode()        {}
func (u *UnaryExpr) String() string { return fmt.Sprintf("(%s%s)", opText(u.Op), u.Right) }

// CallExpr invokes a procedure. Proc is nil for the builtin int().
type CallExpr struct {
	typed
	Name string
	Args []Expr
	Proc *ProcDecl
}

func (*CallExpr) exprNode() {}
func (c *CallExpr) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", c.Name, strings.Join(args, ", "))
}

// ReadExpr reads one integer from the console.
type ReadExpr struct {
	typed
}

func (*ReadExpr) exprNode()      {}
func (*ReadExpr) String() string { return "read" }

//  Statement nodes

// Stmt is implemented by every statement node.
type Stmt interface {
	stmtNode()
	String() string
	Pos() int
}

type stmtPos struct {
	Line int
}

func (s *stmtPos) Pos() int { return s.Line }

// AssignStmt stores Value into a variable or array element.
type AssignStmt struct {
	stmtPos
	Target Expr // *VarRef or *IndexExpr
	Value  Expr
}

func (*AssignStmt) stmtNode()        {}
func (a *AssignStmt) String() string { return fmt.Sprintf("%s := %s", a.Target, a.Value) }

// WriteStmt is write (Newline) or writes.
type WriteStmt struct {
	stmtPos
	Value   Expr
	Newline bool
}

func (*WriteStmt) stmtNode() {}
func (w *WriteStmt) String() string {
	if w.Newline {
		return fmt.Sprintf("write %s", w.Value)
	}
	return fmt.Sprintf("writes %s", w.Value)
}

// Guard is one `cond -> stms` arm of an if.
type Guard struct {
	Cond Expr
	Body []Stmt
}

// IfStmt runs the body of the first guard whose condition holds, or Else.
type IfStmt struct {
	stmtPos
	Guards  []Guard
	Else    []Stmt
	HasElse bool
}

func (*IfStmt) stmtNode() {}
func (s *IfStmt) String() string {
	parts := make([]string, 0, len(s.Guards)+1)
	for _, g := range s.Guards {
		parts = append(parts, fmt.Sprintf("%s -> %d stms", g.Cond, len(g.Body)))
	}
	if s.HasElse {
		parts = append(parts, fmt.Sprintf("else -> %d stms", len(s.Else)))
	}
	return "if " + strings.Join(parts, " [] ") + " fi"
}

// DoStmt loops while Cond holds.
type DoStmt struct {
	stmtPos
	Cond Expr
	Body []Stmt
}

func (*DoStmt) stmtNode()        {}
func (d *DoStmt) String() string { return fmt.Sprintf("do %s -> %d stms od", d.Cond, len(d.Body)) }

// FaStmt is the counted loop fa Var := Lower to Upper -> Body af.
type FaStmt struct {
	stmtPos
	Var   string
	Sym   *Symbol
	Lower Expr
	Upper Expr
	Body  []Stmt
}

func (*FaStmt) stmtNode() {}
func (f *FaStmt) String() string {
	return fmt.Sprintf("fa %s := %s to %s -> %d stms af", f.Var, f.Lower, f.Upper, len(f.Body))
}

// BreakStmt leaves the innermost loop.
type BreakStmt struct{ stmtPos }

func (*BreakStmt) stmtNode()      {}
func (*BreakStmt) String() string { return "break" }

// ExitStmt stops the program.
type ExitStmt struct{ stmtPos }

func (*ExitStmt) stmtNode()      {}
func (*ExitStmt) String() string { return "exit" }

// ReturnStmt leaves the current procedure (or the program at top level).
type ReturnStmt struct{ stmtPos }

func (*ReturnStmt) stmtNode()      {}
func (*ReturnStmt) String() string { return "return" }

// ExprStmt evaluates an expression for its side effects.
type ExprStmt struct {
	stmtPos
	Expr Expr
}

func (*ExprStmt) stmtNode()        {}
func (e *ExprStmt) String() string { return e.Expr.String() }

//  Declarations

// Decl is a top level or procedure level declaration.
type Decl interface {
	declNode()
	Pos() int
}

// TypeExpr names a type with optional array dimensions: int[3][2].
type TypeExpr struct {
	Name string
	Dims []int
	Line int
}

func (t TypeExpr) String() string {
	var sb strings.Builder
	sb.WriteString(t.Name)
	for _, d := range t.Dims {
		fmt.Fprintf(&sb, "[%d]", d)
	}
	return sb.String()
}

// VarDecl declares Names with one type. Syms is filled in by the checker.
type VarDecl struct {
	stmtPos
	Names []string
	Type  TypeExpr
	Syms  []*Symbol
}

func (*VarDecl) declNode() {}

// TypeDecl introduces a named type.
type TypeDecl struct {
	stmtPos
	Name string
	Type TypeExpr
}

func (*TypeDecl) declNode() {}

// ParamGroup is `a, b : int` in a parameter list.
type ParamGroup struct {
	Names []string
	Type  TypeExpr
}

// ProcDecl is a procedure definition or a forward declaration.
type ProcDecl struct {
	stmtPos
	Name    string
	Params  []ParamGroup
	Result  *TypeExpr
	Decls   []Decl
	Body    []Stmt
	Forward bool

	// Resolved by the checker.
	Sig       *Type
	ParamSyms []*Symbol
	LocalSyms []*Symbol
	ResultSym *Symbol // return slot, nil for procedures without a result
	FrameSize int     // words reserved below FP, return slot included
}

func (*ProcDecl) declNode() {}

// Program is the root of the tree.
type Program struct {
	Decls []Decl
	Body  []Stmt

	// Resolved by the checker.
	Globals    []*Symbol
	GlobalSize int
	Procs      []*ProcDecl // bodies only, in declaration order
}
