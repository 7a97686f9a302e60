package compiler

import (
	"unicode"
)

// keywords maps source text to its keyword TokenType.
var keywords = map[string]TokenType{
	"if":      IF,
	"fi":      FI,
	"else":    ELSE,
	"do":      DO,
	"od":      OD,
	"fa":      FA,
	"af":      AF,
	"to":      TO,
	"proc":    PROC,
	"end":     END,
	"var":     VAR,
	"type":    TYPE,
	"break":   BREAK,
	"exit":    EXIT,
	"forward": FORWARD,
	"writes":  WRITES,
	"write":   WRITE,
	"read":    READ,
	"return":  RETURN,
	"true":    TRUE,
	"false":   FALSE,
}

// Lexer holds all mutable state for a single scanning pass over src.
type Lexer struct {
	src  []rune
	pos  int // index of the next rune to consume
	line int // current 1-based source line
}

func newLexer(src string) *Lexer {
	return &Lexer{src: []rune(src), pos: 0, line: 1}
}

// peek returns the rune at the current position without advancing.
func (l *Lexer) peek() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

// advance consumes one rune and returns it.
func (l *Lexer) advance() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	r := l.src[l.pos]
	l.pos++
	if r == '\n' {
		l.line++
	}
	return r
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.src) && unicode.IsSpace(l.peek()) {
		l.advance()
	}
}

// skipComment discards a '#' comment up to end-of-line.
func (l *Lexer) skipComment() {
	for l.pos < len(l.src) && l.peek() != '\n' {
		l.advance()
	}
}

// scanIdent collects a full identifier or keyword token.
// The first character (a letter) must still be at l.peek().
func (l *Lexer) scanIdent() Token {
	line := l.line
	start := l.pos
	for l.pos < len(l.src) {
		r := l.peek()
		if !isIdentRune(r) {
			break
		}
		l.advance()
	}
	lexeme := string(l.src[start:l.pos])
	tt := IDENTIFIER
	if kw, ok := keywords[lexeme]; ok {
		tt = kw
	}
	return Token{Type: tt, Lexeme: lexeme, Line: line}
}

func isIdentRune(r rune) bool {
	return r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
}

// scanInt collects a decimal integer literal.
func (l *Lexer) scanInt() Token {
	line := l.line
	start := l.pos
	for l.pos < len(l.src) && unicode.IsDigit(l.peek()) {
		l.advance()
	}
	return Token{Type: INTEGER, Lexeme: string(l.src[start:l.pos]), Line: line}
}

// scanString collects a string delimited by the quote at l.peek(). Strings
// may not span lines and have no escapes.
func (l *Lexer) scanString() (Token, error) {
	line := l.line
	quote := l.advance()
	start := l.pos
	for l.pos < len(l.src) && l.peek() != quote {
		if l.peek() == '\n' {
			return Token{}, errorf(line, "unterminated string literal")
		}
		l.advance()
	}
	if l.pos >= len(l.src) {
		return Token{}, errorf(line, "unterminated string literal")
	}
	val := string(l.src[start:l.pos])
	l.advance() // closing quote
	return Token{Type: STRING, Lexeme: val, Line: line}, nil
}

// nextToken skips whitespace/comments and returns the next Token.
func (l *Lexer) nextToken() (Token, error) {
	for {
		l.skipWhitespace()
		if l.pos >= len(l.src) {
			return Token{Type: EOF, Lexeme: "", Line: l.line}, nil
		}
		if l.peek() == '#' {
			l.skipComment()
			continue
		}
		break
	}

	ch := l.peek()
	line := l.line

	if ch < unicode.MaxASCII && unicode.IsLetter(ch) {
		return l.scanIdent(), nil
	}
	if unicode.IsDigit(ch) {
		return l.scanInt(), nil
	}
	if ch == '"' || ch == '\'' {
		return l.scanString()
	}

	l.advance() // consume the character before the switch
	switch ch {
	case '(':
		return Token{LPAREN, "(", line}, nil
	case ')':
		return Token{RPAREN, ")", line}, nil
	case '[':
		if l.peek() == ']' {
			l.advance()
			return Token{BOX, "[]", line}, nil
		}
		return Token{LBRACKET, "[", line}, nil
	case ']':
		return Token{RBRACKET, "]", line}, nil
	case ';':
		return Token{SEMICOLON, ";", line}, nil
	case ',':
		return Token{COMMA, ",", line}, nil
	case ':':
		if l.peek() == '=' {
			l.advance()
			return Token{ASSIGN, ":=", line}, nil
		}
		return Token{COLON, ":", line}, nil
	case '+':
		return Token{PLUS, "+", line}, nil
	case '-':
		if l.peek() == '>' {
			l.advance()
			return Token{ARROW, "->", line}, nil
		}
		return Token{MINUS, "-", line}, nil
	case '*':
		return Token{STAR, "*", line}, nil
	case '/':
		return Token{SLASH, "/", line}, nil
	case '%':
		return Token{PERCENT, "%", line}, nil
	case '?':
		return Token{QUESTION, "?", line}, nil
	case '=':
		return Token{EQUALS, "=", line}, nil
	case '!':
		if l.peek() == '=' {
			l.advance()
			return Token{NOT_EQ, "!=", line}, nil
		}
	case '<':
		if l.peek() == '=' {
			l.advance()
			return Token{LESS_EQ, "<=", line}, nil
		}
		return Token{LESS, "<", line}, nil
	case '>':
		if l.peek() == '=' {
			l.advance()
			return Token{GREATER_EQ, ">=", line}, nil
		}
		return Token{GREATER, ">", line}, nil
	}
	return Token{}, errorf(line, "illegal character (%c)", ch)
}

// Lex tokenises src and returns all tokens including the final EOF token.
// It returns a non-nil error on the first illegal character or unterminated string.
func Lex(src string) ([]Token, error) {
	l := newLexer(src)
	var tokens []Token
	for {
		tok, err := l.nextToken()
		if err != nil {
			return tokens, err
		}
		tokens = append(tokens, tok)
		if tok.Type == EOF {
			return tokens, nil
		}
	}
}
