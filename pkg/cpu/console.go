package cpu

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Console is the machine's view of the terminal.
type Console interface {
	// ReadInt returns the next integer typed by the user. Implementations
	// that cannot block return ErrInputPending and are asked again later.
	ReadInt() (int, error)
	WriteInt(v int)
	WriteChar(c int)
	WriteNewline()
}

// StreamConsole reads whitespace separated integers from a reader and
// writes output the way TM does: integers followed by a space.
type StreamConsole struct {
	in  *bufio.Reader
	out io.Writer
}

func NewStreamConsole(in io.Reader, out io.Writer) *StreamConsole {
	return &StreamConsole{in: bufio.NewReader(in), out: out}
}

// ReadInt flushes buffered output first so prompts are visible.
func (s *StreamConsole) ReadInt() (int, error) {
	if f, ok := s.out.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return 0, err
		}
	}
	var v int
	if _, err := fmt.Fscan(s.in, &v); err != nil {
		return 0, err
	}
	return v, nil
}

func (s *StreamConsole) WriteInt(v int) {
	fmt.Fprintf(s.out, "%d ", v)
}

func (s *StreamConsole) WriteChar(c int) {
	fmt.Fprintf(s.out, "%c", rune(c))
}

func (s *StreamConsole) WriteNewline() {
	fmt.Fprintln(s.out)
}

// BufferConsole collects output in memory and serves queued input. The
// desktop runner and tests drive programs through it.
type BufferConsole struct {
	Input  []int
	Output strings.Builder
}

func (b *BufferConsole) ReadInt() (int, error) {
	if len(b.Input) == 0 {
		return 0, ErrInputPending
	}
	v := b.Input[0]
	b.Input = b.Input[1:]
	return v, nil
}

func (b *BufferConsole) WriteInt(v int) {
	fmt.Fprintf(&b.Output, "%d ", v)
}

func (b *BufferConsole) WriteChar(c int) {
	b.Output.WriteRune(rune(c))
}

func (b *BufferConsole) WriteNewline() {
	b.Output.WriteByte('\n')
}

// String returns everything written so far.
func (b *BufferConsole) String() string {
	return b.Output.String()
}
