// Package asm renders TM instruction streams as listings and reads
// listings back into instruction streams.
package asm

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"ice9c/pkg/tm"
)

// DataBase is the address loaded by the first data directive.
const DataBase = 1

// Format renders code as a TM listing: data directives first, in address
// order starting at DataBase, then one numbered line per instruction.
func Format(code []tm.Instr) string {
	var sb strings.Builder
	writeData(&sb, code)

	n := 0
	for _, in := range code {
		switch {
		case in.Op == tm.OpComment:
			fmt.Fprintf(&sb, "* %s\n", in.Comment)
			continue
		case in.IsPseudo():
			continue
		}
		sb.WriteString(formatInstr(n, in))
		sb.WriteByte('\n')
		n++
	}
	return sb.String()
}

func formatInstr(n int, in tm.Instr) string {
	var body string
	switch {
	case in.Op == tm.OpCall:
		body = fmt.Sprintf("%5d: %-5s %s", n, "call", in.Sym)
	case in.Op.IsRegisterOnly():
		body = fmt.Sprintf("%5d: %-5s %d,%d,%d", n, in.Op, in.R, in.S, in.T)
	default:
		body = fmt.Sprintf("%5d: %-5s %d,%d(%d)", n, in.Op, in.R, in.S, in.T)
	}
	if in.Comment != "" && in.Op != tm.OpCall {
		body = fmt.Sprintf("%-24s* %s", body, in.Comment)
	}
	return body
}

type word struct {
	value int
	str   *tm.Instr // set on the first word of a string
}

func writeData(sb *strings.Builder, code []tm.Instr) {
	words := make(map[int]word)
	top := DataBase - 1
	for i := range code {
		in := &code[i]
		switch in.Op {
		case tm.OpData:
			words[in.S] = word{value: in.R}
			top = max(top, in.S)
		case tm.OpString:
			if in.Sym != "" {
				words[in.S] = word{str: in}
			}
			end := in.S + len(in.Sym)
			words[end] = word{}
			top = max(top, end)
		}
	}

	for a := DataBase; a <= top; a++ {
		w, ok := words[a]
		switch {
		case !ok:
			sb.WriteString(".DATA 0\n")
		case w.str != nil:
			fmt.Fprintf(sb, ".SDATA %s\n", strconv.Quote(w.str.Sym))
			a += len(w.str.Sym) - 1
		default:
			fmt.Fprintf(sb, ".DATA %d\n", w.value)
		}
	}
}

var (
	instrLine = regexp.MustCompile(`^(\d+):\s*([A-Za-z]+)\s+(-?\d+)\s*,\s*(-?\d+)\s*(?:\(\s*(-?\d+)\s*\)|,\s*(-?\d+))\s*(?:\*\s?(.*))?$`)
	callLine  = regexp.MustCompile(`^(\d+):\s*call\s+(\S+)\s*$`)
)

type parsedLine struct {
	lineNo int
	text   string
}

// Parse reads a listing produced by Format (or by hand) back into code.
// The first pass lays out data directives from DataBase; the second
// decodes numbered instructions, which must be numbered consecutively.
func Parse(listing string) ([]tm.Instr, error) {
	var lines []parsedLine
	for i, raw := range strings.Split(listing, "\n") {
		text := strings.TrimSpace(raw)
		if text != "" {
			lines = append(lines, parsedLine{lineNo: i + 1, text: text})
		}
	}
	data, err := pass1(lines)
	if err != nil {
		return nil, err
	}
	code, err := pass2(lines)
	if err != nil {
		return nil, err
	}
	return append(data, code...), nil
}

func pass1(lines []parsedLine) ([]tm.Instr, error) {
	var data []tm.Instr
	addr := DataBase
	for _, p := range lines {
		directive, arg, _ := strings.Cut(p.text, " ")
		arg = strings.TrimSpace(arg)
		switch strings.ToUpper(directive) {
		case ".DATA":
			v, err := strconv.Atoi(arg)
			if err != nil {
				return nil, fmt.Errorf("bad .DATA value %q on line %d", arg, p.lineNo)
			}
			data = append(data, tm.Data(addr, v, ""))
			addr++
		case ".SDATA":
			s, err := strconv.Unquote(arg)
			if err != nil {
				return nil, fmt.Errorf("bad .SDATA string %s on line %d", arg, p.lineNo)
			}
			data = append(data, tm.StringData(addr, s))
			addr += len(s)
		}
	}
	return data, nil
}

func pass2(lines []parsedLine) ([]tm.Instr, error) {
	var code []tm.Instr
	next := 0
	for _, p := range lines {
		switch {
		case strings.HasPrefix(p.text, "."):
			continue
		case strings.HasPrefix(p.text, "*"):
			code = append(code, tm.Note(strings.TrimSpace(strings.TrimPrefix(p.text, "*"))))
			continue
		}

		in, n, err := parseInstr(p)
		if err != nil {
			return nil, err
		}
		if n != next {
			return nil, fmt.Errorf("instruction %d out of sequence on line %d (expected %d)", n, p.lineNo, next)
		}
		code = append(code, in)
		next++
	}
	return code, nil
}

func parseInstr(p parsedLine) (tm.Instr, int, error) {
	if m := callLine.FindStringSubmatch(p.text); m != nil {
		n, _ := strconv.Atoi(m[1])
		return tm.Call(m[2]), n, nil
	}
	m := instrLine.FindStringSubmatch(p.text)
	if m == nil {
		return tm.Instr{}, 0, fmt.Errorf("syntax error on line %d: %q", p.lineNo, p.text)
	}
	op, ok := tm.ParseOpcode(strings.ToUpper(m[2]))
	if !ok || op < tm.OpHALT {
		return tm.Instr{}, 0, fmt.Errorf("unknown instruction %q on line %d", m[2], p.lineNo)
	}
	rr := m[6] != ""
	if rr != op.IsRegisterOnly() {
		return tm.Instr{}, 0, fmt.Errorf("wrong operand form for %s on line %d", op, p.lineNo)
	}

	n, _ := strconv.Atoi(m[1])
	r, _ := strconv.Atoi(m[3])
	s, _ := strconv.Atoi(m[4])
	tField := m[5]
	if rr {
		tField = m[6]
	}
	t, _ := strconv.Atoi(tField)
	for _, reg := range []int{r, t} {
		if reg < 0 || reg >= tm.NumRegs {
			return tm.Instr{}, 0, fmt.Errorf("bad register %d on line %d", reg, p.lineNo)
		}
	}
	if rr && (s < 0 || s >= tm.NumRegs) {
		return tm.Instr{}, 0, fmt.Errorf("bad register %d on line %d", s, p.lineNo)
	}
	return tm.New(op, r, s, t, strings.TrimSpace(m[7])), n, nil
}
