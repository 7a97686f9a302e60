package compiler

import "fmt"

// Error is a positional diagnostic. Every phase of the pipeline reports
// failures through it so callers can recover the offending line.
type Error struct {
	Line int
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

func errorf(line int, format string, args ...any) error {
	return &Error{Line: line, Msg: fmt.Sprintf(format, args...)}
}
