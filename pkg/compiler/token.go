package compiler

import "fmt"

// TokenType identifies the category of a lexed token.
type TokenType int

const (
	EOF TokenType = iota // sentinel: end of input

	// Literals
	IDENTIFIER // variable / procedure / type name
	INTEGER    // decimal integer literal
	STRING     // string literal "..." or '...'

	// Keywords
	IF      // "if"
	FI      // "fi"
	ELSE    // "else"
	DO      // "do"
	OD      // "od"
	FA      // "fa"
	AF      // "af"
	TO      // "to"
	PROC    // "proc"
	END     // "end"
	VAR     // "var"
	TYPE    // "type"
	BREAK   // "break"
	EXIT    // "exit"
	FORWARD // "forward"
	WRITES  // "writes"
	WRITE   // "write"
	READ    // "read"
	RETURN  // "return"
	TRUE    // "true"
	FALSE   // "false"

	// Paired delimiters
	LPAREN   // (
	RPAREN   // )
	LBRACKET // [
	RBRACKET // ]
	BOX      // [] (guard separator)

	// Punctuation
	SEMICOLON // ;
	COLON     // :
	COMMA     // ,
	ARROW     // ->
	ASSIGN    // :=

	// Operators
	PLUS     // +
	MINUS    // -
	STAR     // *
	SLASH    // /
	PERCENT  // %
	QUESTION // ?

	EQUALS     // =
	NOT_EQ     // !=
	LESS       // <
	LESS_EQ    // <=
	GREATER    // >
	GREATER_EQ // >=
)

var tokenNames = [...]string{
	EOF:        "EOF",
	IDENTIFIER: "IDENTIFIER",
	INTEGER:    "INTEGER",
	STRING:     "STRING",
	IF:         "IF",
	FI:         "FI",
	ELSE:       "ELSE",
	DO:         "DO",
	OD:         "OD",
	FA:         "FA",
	AF:         "AF",
	TO:         "TO",
	PROC:       "PROC",
	END:        "END",
	VAR:        "VAR",
	TYPE:       "TYPE",
	BREAK:      "BREAK",
	EXIT:       "EXIT",
	FORWARD:    "FORWARD",
	WRITES:     "WRITES",
	WRITE:      "WRITE",
	READ:       "READ",
	RETURN:     "RETURN",
	TRUE:       "TRUE",
	FALSE:      "FALSE",
	LPAREN:     "LPAREN",
	RPAREN:     "RPAREN",
	LBRACKET:   "LBRACKET",
	RBRACKET:   "RBRACKET",
	BOX:        "BOX",
	SEMICOLON:  "SEMICOLON",
	COLON:      "COLON",
	COMMA:      "COMMA",
	ARROW:      "ARROW",
	ASSIGN:     "ASSIGN",
	PLUS:       "PLUS",
	MINUS:      "MINUS",
	STAR:       "STAR",
	SLASH:      "SLASH",
	PERCENT:    "PERCENT",
	QUESTION:   "QUESTION",
	EQUALS:     "EQUALS",
	NOT_EQ:     "NOT_EQ",
	LESS:       "LESS",
	LESS_EQ:    "LESS_EQ",
	GREATER:    "GREATER",
	GREATER_EQ: "GREATER_EQ",
}

func (tt TokenType) String() string {
	if int(tt) >= 0 && int(tt) < len(tokenNames) {
		return tokenNames[tt]
	}
	return fmt.Sprintf("TokenType(%d)", int(tt))
}

// IsComparison reports whether tt is one of the relational operators.
func (tt TokenType) IsComparison() bool {
	return tt >= EQUALS && tt <= GREATER_EQ
}

// Token is a single lexical unit produced by the Lexer.
type Token struct {
	Type   TokenType
	Lexeme string // the exact source text that was matched
	Line   int    // 1-based source line
}

func (t Token) String() string {
	return fmt.Sprintf("%-10s %-14q  line %d", t.Type, t.Lexeme, t.Line)
}
