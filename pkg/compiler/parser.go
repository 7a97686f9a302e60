package compiler

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Parser consumes the flat token slice produced by the Lexer and builds an AST.
//
// Grammar:
//
//	program  = { var | type | forward | proc } { stm }
//	var      = "var" varlist { "," varlist } ";"
//	varlist  = idlist ":" typeexpr
//	typeexpr = IDENTIFIER { "[" INTEGER "]" }
//	type     = "type" IDENTIFIER "=" typeexpr ";"
//	forward  = "forward" header ";"
//	proc     = "proc" header { type | var } { stm } "end"
//	header   = IDENTIFIER "(" [ idlist ":" IDENTIFIER { "," idlist ":" IDENTIFIER } ] ")" [ ":" IDENTIFIER ]
//	stm      = if | do | fa | "break" ";" | "exit" ";" | "return" ";"
//	         | "write" exp ";" | "writes" exp ";" | lvalue ":=" exp ";" | exp ";" | ";"
//	if       = "if" exp "->" { stm } { "[]" exp "->" { stm } } [ "[]" "else" "->" { stm } ] "fi"
//	do       = "do" exp "->" { stm } "od"
//	fa       = "fa" IDENTIFIER ":=" exp "to" exp "->" { stm } "af"
//	exp      = low [ ("=" | "!=" | "<" | "<=" | ">" | ">=") low ]
//	low      = med { ("+" | "-") med }
//	med      = high { ("*" | "/" | "%") high }
//	high     = ("-" | "?") high | end
//	end      = "(" exp ")" | INTEGER | STRING | "true" | "false" | "read"
//	         | IDENTIFIER "(" [ exp { "," exp } ] ")" | IDENTIFIER { "[" exp "]" }
type Parser struct {
	tokens      []Token
	pos         int
	sourceLines []string
}

func NewParser(tokens []Token, rawSource string) *Parser {
	return &Parser{tokens: tokens, sourceLines: strings.Split(rawSource, "\n")}
}

// Parse builds the Program for tokens. rawSource is only used to quote the
// offending line in error messages.
func Parse(tokens []Token, rawSource string) (*Program, error) {
	return NewParser(tokens, rawSource).parseProgram()
}

// fmtError wraps an error message with the source line where the token appears.
func (p *Parser) fmtError(tok Token, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	lineIdx := tok.Line - 1 // Lines are 1-based

	snippet := "<source unavailable>"
	if lineIdx >= 0 && lineIdx < len(p.sourceLines) {
		snippet = strings.TrimSpace(p.sourceLines[lineIdx])
	}

	return &Error{Line: tok.Line, Msg: fmt.Sprintf("%s\n  |> %s", msg, snippet)}
}

// peek returns the current token without consuming it.
func (p *Parser) peek() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: EOF}
	}
	return p.tokens[p.pos]
}

// advance consumes and returns the current token.
func (p *Parser) advance() Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

// accept consumes the current token when it has type tt.
func (p *Parser) accept(tt TokenType) bool {
	if p.peek().Type == tt {
		p.advance()
		return true
	}
	return false
}

// expect consumes the current token if it matches tt, otherwise returns an error.
func (p *Parser) expect(tt TokenType) (Token, error) {
	tok := p.advance()
	if tok.Type != tt {
		return tok, p.fmtError(tok, "syntax error near %q: expected %s", tok.Lexeme, tt)
	}
	return tok, nil
}

func (p *Parser) parseProgram() (*Program, error) {
	prog := &Program{}
	for {
		var decls []Decl
		var err error
		switch p.peek().Type {
		case VAR:
			decls, err = p.parseVar()
		case TYPE:
			var d *TypeDecl
			d, err = p.parseTypeDecl()
			decls = []Decl{d}
		case FORWARD:
			var d *ProcDecl
			d, err = p.parseForward()
			decls = []Decl{d}
		case PROC:
			var d *ProcDecl
			d, err = p.parseProc()
			decls = []Decl{d}
		default:
			body, err := p.parseStmts(EOF)
			if err != nil {
				return nil, err
			}
			prog.Body = body
			return prog, nil
		}
		if err != nil {
			return nil, err
		}
		prog.Decls = append(prog.Decls, decls...)
	}
}

func (p *Parser) parseIdList() ([]string, error) {
	var names []string
	for {
		tok, err := p.expect(IDENTIFIER)
		if err != nil {
			return nil, err
		}
		names = append(names, tok.Lexeme)
		if p.peek().Type != COMMA {
			return names, nil
		}
		p.advance()
	}
}

func (p *Parser) parseTypeExpr() (TypeExpr, error) {
	tok, err := p.expect(IDENTIFIER)
	if err != nil {
		return TypeExpr{}, err
	}
	te := TypeExpr{Name: tok.Lexeme, Line: tok.Line}
	for p.accept(LBRACKET) {
		size, err := p.expect(INTEGER)
		if err != nil {
			return TypeExpr{}, err
		}
		n, err := strconv.Atoi(size.Lexeme)
		if err != nil {
			return TypeExpr{}, p.fmtError(size, "bad array size %s", size.Lexeme)
		}
		te.Dims = append(te.Dims, n)
		if _, err := p.expect(RBRACKET); err != nil {
			return TypeExpr{}, err
		}
	}
	return te, nil
}

// parseVar handles: var a, b : int[3], c : bool;
func (p *Parser) parseVar() ([]Decl, error) {
	p.advance() // var
	var decls []Decl
	for {
		line := p.peek().Line
		names, err := p.parseIdList()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(COLON); err != nil {
			return nil, err
		}
		te, err := p.parseTypeExpr()
		if err != nil {
			return nil, err
		}
		decls = append(decls, &VarDecl{stmtPos: stmtPos{line}, Names: names, Type: te})
		if !p.accept(COMMA) {
			break
		}
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return decls, nil
}

func (p *Parser) parseTypeDecl() (*TypeDecl, error) {
	kw := p.advance() // type
	name, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(EQUALS); err != nil {
		return nil, err
	}
	te, err := p.parseTypeExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return &TypeDecl{stmtPos: stmtPos{kw.Line}, Name: name.Lexeme, Type: te}, nil
}

func (p *Parser) parseProcHeader() (*ProcDecl, error) {
	name, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	proc := &ProcDecl{stmtPos: stmtPos{name.Line}, Name: name.Lexeme}
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	if p.peek().Type != RPAREN {
		for {
			names, err := p.parseIdList()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(COLON); err != nil {
				return nil, err
			}
			typ, err := p.expect(IDENTIFIER)
			if err != nil {
				return nil, err
			}
			proc.Params = append(proc.Params, ParamGroup{Names: names, Type: TypeExpr{Name: typ.Lexeme, Line: typ.Line}})
			if !p.accept(COMMA) {
				break
			}
		}
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	if p.accept(COLON) {
		typ, err := p.expect(IDENTIFIER)
		if err != nil {
			return nil, err
		}
		proc.Result = &TypeExpr{Name: typ.Lexeme, Line: typ.Line}
	}
	return proc, nil
}

func (p *Parser) parseForward() (*ProcDecl, error) {
	p.advance() // forward
	proc, err := p.parseProcHeader()
	if err != nil {
		return nil, err
	}
	proc.Forward = true
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return proc, nil
}

func (p *Parser) parseProc() (*ProcDecl, error) {
	p.advance() // proc
	proc, err := p.parseProcHeader()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().Type {
		case VAR:
			decls, err := p.parseVar()
			if err != nil {
				return nil, err
			}
			proc.Decls = append(proc.Decls, decls...)
			continue
		case TYPE:
			d, err := p.parseTypeDecl()
			if err != nil {
				return nil, err
			}
			proc.Decls = append(proc.Decls, d)
			continue
		}
		break
	}
	proc.Body, err = p.parseStmts(END)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(END); err != nil {
		return nil, err
	}
	return proc, nil
}

// parseStmts parses statements until one of the terminators is next. The
// terminator itself is left for the caller.
func (p *Parser) parseStmts(terminators ...TokenType) ([]Stmt, error) {
	var stmts []Stmt
	for !slices.Contains(terminators, p.peek().Type) {
		if p.peek().Type == EOF {
			tok := p.peek()
			return nil, p.fmtError(tok, "syntax error near end of input: expected %s", terminators[0])
		}
		s, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		if s != nil {
			stmts = append(stmts, s)
		}
	}
	return stmts, nil
}

func (p *Parser) endStmt() error {
	_, err := p.expect(SEMICOLON)
	return err
}

func (p *Parser) parseStmt() (Stmt, error) {
	tok := p.peek()
	pos := stmtPos{tok.Line}
	switch tok.Type {
	case SEMICOLON:
		p.advance()
		return nil, nil
	case IF:
		return p.parseIf()
	case DO:
		return p.parseDo()
	case FA:
		return p.parseFa()
	case BREAK:
		p.advance()
		return &BreakStmt{pos}, p.endStmt()
	case EXIT:
		p.advance()
		return &ExitStmt{pos}, p.endStmt()
	case RETURN:
		p.advance()
		return &ReturnStmt{pos}, p.endStmt()
	case WRITE, WRITES:
		p.advance()
		e, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		return &WriteStmt{stmtPos: pos, Value: e, Newline: tok.Type == WRITE}, p.endStmt()
	}

	e, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if p.peek().Type == ASSIGN {
		assign := p.advance()
		switch e.(type) {
		case *VarRef, *IndexExpr:
		default:
			return nil, p.fmtError(assign, "cannot assign to %s", e)
		}
		value, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		return &AssignStmt{stmtPos: pos, Target: e, Value: value}, p.endStmt()
	}
	return &ExprStmt{stmtPos: pos, Expr: e}, p.endStmt()
}

// parseGuard handles `exp -> stms` inside if.
func (p *Parser) parseGuard() (Guard, error) {
	cond, err := p.parseExpression()
	if err != nil {
		return Guard{}, err
	}
	if _, err := p.expect(ARROW); err != nil {
		return Guard{}, err
	}
	body, err := p.parseStmts(BOX, FI)
	if err != nil {
		return Guard{}, err
	}
	return Guard{Cond: cond, Body: body}, nil
}

func (p *Parser) parseIf() (Stmt, error) {
	kw := p.advance() // if
	s := &IfStmt{stmtPos: stmtPos{kw.Line}}
	g, err := p.parseGuard()
	if err != nil {
		return nil, err
	}
	s.Guards = append(s.Guards, g)
	for p.accept(BOX) {
		if p.accept(ELSE) {
			if _, err := p.expect(ARROW); err != nil {
				return nil, err
			}
			s.Else, err = p.parseStmts(FI)
			if err != nil {
				return nil, err
			}
			s.HasElse = true
			break
		}
		g, err := p.parseGuard()
		if err != nil {
			return nil, err
		}
		s.Guards = append(s.Guards, g)
	}
	if _, err := p.expect(FI); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *Parser) parseDo() (Stmt, error) {
	kw := p.advance() // do
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(ARROW); err != nil {
		return nil, err
	}
	body, err := p.parseStmts(OD)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(OD); err != nil {
		return nil, err
	}
	return &DoStmt{stmtPos: stmtPos{kw.Line}, Cond: cond, Body: body}, nil
}

func (p *Parser) parseFa() (Stmt, error) {
	kw := p.advance() // fa
	name, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(ASSIGN); err != nil {
		return nil, err
	}
	lower, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TO); err != nil {
		return nil, err
	}
	upper, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(ARROW); err != nil {
		return nil, err
	}
	body, err := p.parseStmts(AF)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(AF); err != nil {
		return nil, err
	}
	return &FaStmt{stmtPos: stmtPos{kw.Line}, Var: name.Lexeme, Lower: lower, Upper: upper, Body: body}, nil
}

// parseExpression is the entry point for expression parsing. Comparisons
// do not associate: a < b < c is a syntax error.
func (p *Parser) parseExpression() (Expr, error) {
	left, err := p.parseLow()
	if err != nil {
		return nil, err
	}
	if op := p.peek(); op.Type.IsComparison() {
		p.advance()
		right, err := p.parseLow()
		if err != nil {
			return nil, err
		}
		return &BinaryExpr{typed: typed{Line: op.Line}, Op: op.Type, Left: left, Right: right}, nil
	}
	return left, nil
}

// parseLow handles + and -
func (p *Parser) parseLow() (Expr, error) {
	expr, err := p.parseMed()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == PLUS || p.peek().Type == MINUS {
		op := p.advance()
		right, err := p.parseMed()
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{typed: typed{Line: op.Line}, Op: op.Type, Left: expr, Right: right}
	}
	return expr, nil
}

// parseMed handles *, / and %
func (p *Parser) parseMed() (Expr, error) {
	expr, err := p.parseHigh()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == STAR || p.peek().Type == SLASH || p.peek().Type == PERCENT {
		op := p.advance()
		right, err := p.parseHigh()
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{typed: typed{Line: op.Line}, Op: op.Type, Left: expr, Right: right}
	}
	return expr, nil
}

// parseHigh handles the prefix operators - and ?
func (p *Parser) parseHigh() (Expr, error) {
	if p.peek().Type == MINUS || p.peek().Type == QUESTION {
		op := p.advance()
		right, err := p.parseHigh()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{typed: typed{Line: op.Line}, Op: op.Type, Right: right}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (Expr, error) {
	tok := p.advance()
	at := typed{Line: tok.Line}
	switch tok.Type {
	case LPAREN:
		e, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		return e, nil
	case INTEGER:
		v, err := strconv.Atoi(tok.Lexeme)
		if err != nil {
			return nil, p.fmtError(tok, "integer literal %s out of range", tok.Lexeme)
		}
		at.T = IntType
		return &Literal{typed: at, Value: v}, nil
	case TRUE, FALSE:
		at.T = BoolType
		v := 0
		if tok.Type == TRUE {
			v = 1
		}
		return &Literal{typed: at, Value: v}, nil
	case STRING:
		at.T = StrType
		return &StringLiteral{typed: at, Value: tok.Lexeme}, nil
	case READ:
		at.T = IntType
		return &ReadExpr{typed: at}, nil
	case IDENTIFIER:
		if p.accept(LPAREN) {
			return p.parseCall(tok)
		}
		if p.peek().Type != LBRACKET {
			return &VarRef{typed: at, Name: tok.Lexeme}, nil
		}
		ix := &IndexExpr{typed: at, Name: tok.Lexeme}
		for p.accept(LBRACKET) {
			e, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(RBRACKET); err != nil {
				return nil, err
			}
			ix.Indices = append(ix.Indices, e)
		}
		return ix, nil
	}
	return nil, p.fmtError(tok, "syntax error near %q: expected an expression", tok.Lexeme)
}

// parseCall parses the argument list; the opening parenthesis is consumed.
func (p *Parser) parseCall(name Token) (Expr, error) {
	call := &CallExpr{typed: typed{Line: name.Line}, Name: name.Lexeme}
	if !p.accept(RPAREN) {
		for {
			arg, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, arg)
			if !p.accept(COMMA) {
				break
			}
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
	}
	return call, nil
}
