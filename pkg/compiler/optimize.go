package compiler

import (
	"strconv"
)

// OptimizeAST rewrites a checked program in place: constant folding,
// compile time int("digits"), removal of if guards whose condition is a
// literal, and removal of procedures that are never called.
func OptimizeAST(prog *Program) {
	prog.Body = foldStmts(prog.Body)
	for _, p := range prog.Procs {
		p.Body = foldStmts(p.Body)
	}
	eliminateDeadProcs(prog)
}

func boolLit(line int, v bool) *Literal {
	l := &Literal{Value: 0, Folded: true}
	if v {
		l.Value = 1
	}
	l.Line, l.T = line, BoolType
	return l
}

func intLit(line, v int) *Literal {
	l := &Literal{Value: v, Folded: true}
	l.Line, l.T = line, IntType
	return l
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// foldExpr returns e with every constant subexpression replaced by a literal.
func foldExpr(e Expr) Expr {
	switch n := e.(type) {
	case *IndexExpr:
		for i, ix := range n.Indices {
			n.Indices[i] = foldExpr(ix)
		}
	case *CallExpr:
		for i, a := range n.Args {
			n.Args[i] = foldExpr(a)
		}
		if n.Proc == nil && n.Name == builtinInt {
			if s, ok := n.Args[0].(*StringLiteral); ok && isDigits(s.Value) {
				if v, err := strconv.Atoi(s.Value); err == nil {
					return intLit(n.Line, v)
				}
			}
		}
	case *UnaryExpr:
		n.Right = foldExpr(n.Right)
		lit, ok := n.Right.(*Literal)
		if !ok {
			return n
		}
		switch {
		case n.Op == QUESTION:
			return intLit(n.Line, lit.Value)
		case n.T == BoolType:
			return boolLit(n.Line, lit.Value == 0)
		default:
			return intLit(n.Line, -lit.Value)
		}
	case *BinaryExpr:
		n.Left = foldExpr(n.Left)
		n.Right = foldExpr(n.Right)
		l, lok := n.Left.(*Literal)
		r, rok := n.Right.(*Literal)
		if !lok || !rok {
			return n
		}
		if v, ok := foldBinary(n, l.Value, r.Value); ok {
			return v
		}
	}
	return e
}

func foldBinary(n *BinaryExpr, a, b int) (*Literal, bool) {
	if n.T == BoolType {
		switch n.Op {
		case EQUALS:
			return boolLit(n.Line, a == b), true
		case NOT_EQ:
			return boolLit(n.Line, a != b), true
		case LESS:
			return boolLit(n.Line, a < b), true
		case LESS_EQ:
			return boolLit(n.Line, a <= b), true
		case GREATER:
			return boolLit(n.Line, a > b), true
		case GREATER_EQ:
			return boolLit(n.Line, a >= b), true
		case PLUS:
			return boolLit(n.Line, a != 0 || b != 0), true
		case STAR:
			return boolLit(n.Line, a != 0 && b != 0), true
		}
		return nil, false
	}
	switch n.Op {
	case PLUS:
		return intLit(n.Line, a+b), true
	case MINUS:
		return intLit(n.Line, a-b), true
	case STAR:
		return intLit(n.Line, a*b), true
	case SLASH:
		if b != 0 {
			return intLit(n.Line, a/b), true
		}
	case PERCENT:
		if b != 0 {
			return intLit(n.Line, a%b), true
		}
	}
	// Not folded: a zero written in the source is rejected by the code
	// generator, a computed one faults at run time.
	return nil, false
}

func literalValue(e Expr) (int, bool) {
	if l, ok := e.(*Literal); ok {
		return l.Value, true
	}
	return 0, false
}

func foldStmts(stmts []Stmt) []Stmt {
	out := stmts[:0:0]
	for _, s := range stmts {
		out = append(out, foldStmt(s)...)
	}
	return out
}

// foldStmt folds the expressions of s. Statements that fold away entirely
// return nil; an if that always takes one arm returns that arm's body.
func foldStmt(s Stmt) []Stmt {
	switch n := s.(type) {
	case *AssignStmt:
		if ix, ok := n.Target.(*IndexExpr); ok {
			foldExpr(ix)
		}
		n.Value = foldExpr(n.Value)
	case *WriteStmt:
		n.Value = foldExpr(n.Value)
	case *ExprStmt:
		n.Expr = foldExpr(n.Expr)
	case *DoStmt:
		n.Cond = foldExpr(n.Cond)
		if v, ok := literalValue(n.Cond); ok && v == 0 {
			return nil
		}
		n.Body = foldStmts(n.Body)
	case *FaStmt:
		n.Lower = foldExpr(n.Lower)
		n.Upper = foldExpr(n.Upper)
		n.Body = foldStmts(n.Body)
	case *IfStmt:
		return foldIf(n)
	}
	return []Stmt{s}
}

func foldIf(n *IfStmt) []Stmt {
	var guards []Guard
	for _, g := range n.Guards {
		g.Cond = foldExpr(g.Cond)
		g.Body = foldStmts(g.Body)
		v, ok := literalValue(g.Cond)
		if !ok {
			guards = append(guards, g)
			continue
		}
		if v == 0 {
			continue
		}
		// Always taken: it becomes the else arm and later guards are dead.
		n.Guards, n.Else, n.HasElse = guards, g.Body, true
		if len(guards) == 0 {
			return n.Else
		}
		return []Stmt{n}
	}
	n.Guards = guards
	n.Else = foldStmts(n.Else)
	if len(guards) == 0 {
		return n.Else
	}
	return []Stmt{n}
}

// eliminateDeadProcs drops procedures that cannot be reached from the main
// body.
func eliminateDeadProcs(prog *Program) {
	procs := make(map[string]*ProcDecl)
	for _, p := range prog.Procs {
		procs[p.Name] = p
	}

	reachable := make(map[string]bool)
	var worklist []string

	addReachable := func(name string) {
		if !reachable[name] {
			reachable[name] = true
			worklist = append(worklist, name)
		}
	}

	calls := make(map[string]bool)
	findCallsStmts(prog.Body, calls)
	for call := range calls {
		addReachable(call)
	}

	for len(worklist) > 0 {
		curr := worklist[0]
		worklist = worklist[1:]

		p, exists := procs[curr]
		if !exists {
			// builtin int()
			continue
		}
		calls := make(map[string]bool)
		findCallsStmts(p.Body, calls)
		for call := range calls {
			addReachable(call)
		}
	}

	live := prog.Procs[:0]
	for _, p := range prog.Procs {
		if reachable[p.Name] {
			live = append(live, p)
		}
	}
	prog.Procs = live
}

// findCallsExpr records the names of procedures called from e.
func findCallsExpr(e Expr, calls map[string]bool) {
	switch n := e.(type) {
	case *CallExpr:
		calls[n.Name] = true
		for _, arg := range n.Args {
			findCallsExpr(arg, calls)
		}
	case *BinaryExpr:
		findCallsExpr(n.Left, calls)
		findCallsExpr(n.Right, calls)
	case *UnaryExpr:
		findCallsExpr(n.Right, calls)
	case *IndexExpr:
		for _, idx := range n.Indices {
			findCallsExpr(idx, calls)
		}
	}
}

func findCallsStmts(stmts []Stmt, calls map[string]bool) {
	for _, s := range stmts {
		findCallsStmt(s, calls)
	}
}

// findCallsStmt records the names of procedures called from s.
func findCallsStmt(s Stmt, calls map[string]bool) {
	switch n := s.(type) {
	case *AssignStmt:
		findCallsExpr(n.Target, calls)
		findCallsExpr(n.Value, calls)
	case *WriteStmt:
		findCallsExpr(n.Value, calls)
	case *ExprStmt:
		findCallsExpr(n.Expr, calls)
	case *IfStmt:
		for _, g := range n.Guards {
			findCallsExpr(g.Cond, calls)
			findCallsStmts(g.Body, calls)
		}
		findCallsStmts(n.Else, calls)
	case *DoStmt:
		findCallsExpr(n.Cond, calls)
		findCallsStmts(n.Body, calls)
	case *FaStmt:
		findCallsExpr(n.Lower, calls)
		findCallsExpr(n.Upper, calls)
		findCallsStmts(n.Body, calls)
	}
}
