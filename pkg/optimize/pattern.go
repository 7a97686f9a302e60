package optimize

import (
	"regexp"
	"strconv"

	"ice9c/pkg/tm"
)

// Slot indexes the binding table of a Match.
type Slot int

const (
	SlotA Slot = iota
	SlotB
	SlotC
	SlotK
	SlotN
	SlotM
	SlotX

	numSlots
)

type fieldKind uint8

const (
	fieldAny fieldKind = iota
	fieldLit
	fieldBind
	fieldPred
	fieldMatch
)

// OpField matches an opcode.
type OpField struct {
	any bool
	ops []tm.Opcode
	re  *regexp.Regexp
}

// AnyOp matches every opcode.
func AnyOp() OpField { return OpField{any: true} }

// Op matches any of ops.
func Op(ops ...tm.Opcode) OpField { return OpField{ops: ops} }

// OpMatch matches opcodes whose mnemonic matches expr in full.
func OpMatch(expr string) OpField {
	return OpField{re: regexp.MustCompile("^(?:" + expr + ")$")}
}

func (f OpField) match(op tm.Opcode) bool {
	switch {
	case f.any:
		return true
	case f.re != nil:
		return f.re.MatchString(op.String())
	}
	for _, o := range f.ops {
		if o == op {
			return true
		}
	}
	return false
}

// Field matches one operand.
type Field struct {
	kind fieldKind
	lit  int
	slot Slot
	pred func(int) bool
	re   *regexp.Regexp
}

// Any matches every operand value.
func Any() Field { return Field{kind: fieldAny} }

// Lit matches exactly v.
func Lit(v int) Field { return Field{kind: fieldLit, lit: v} }

// Bind stores the operand in slot s. A slot bound twice in one window
// must see the same value both times.
func Bind(s Slot) Field { return Field{kind: fieldBind, slot: s} }

// Pred matches operands for which fn holds.
func Pred(fn func(int) bool) Field { return Field{kind: fieldPred, pred: fn} }

// Regexp matches operands whose decimal form matches expr in full.
func Regexp(expr string) Field {
	return Field{kind: fieldMatch, re: regexp.MustCompile("^(?:" + expr + ")$")}
}

// InstrPattern matches one instruction.
type InstrPattern struct {
	Op      OpField
	R, S, T Field
}

// I builds an InstrPattern.
func I(op OpField, r, s, t Field) InstrPattern {
	return InstrPattern{Op: op, R: r, S: s, T: t}
}

// Pattern matches a window of consecutive instructions.
type Pattern []InstrPattern

// Bindings is the fixed size table filled by a successful match.
type Bindings struct {
	vals [numSlots]int
	set  [numSlots]bool
}

// Get returns the value bound to s.
func (b *Bindings) Get(s Slot) int { return b.vals[s] }

// Bound reports whether s was bound.
func (b *Bindings) Bound(s Slot) bool { return b.set[s] }

func (b *Bindings) unify(f Field, v int) bool {
	switch f.kind {
	case fieldLit:
		return v == f.lit
	case fieldBind:
		if b.set[f.slot] {
			return b.vals[f.slot] == v
		}
		b.vals[f.slot], b.set[f.slot] = v, true
	case fieldPred:
		return f.pred(v)
	case fieldMatch:
		return f.re.MatchString(strconv.Itoa(v))
	}
	return true
}

// Match is a window of nodes that satisfied a pattern.
type Match struct {
	Nodes []NodeID
	Bindings
}

// Inst returns the instruction of the i-th node of the window.
func (m *Match) Inst(g *Graph, i int) tm.Instr { return g.Inst(m.Nodes[i]) }

// matchAt tries p against nodes[i:].
func matchAt(g *Graph, nodes []NodeID, i int, p Pattern) (Match, bool) {
	if i+len(p) > len(nodes) {
		return Match{}, false
	}
	m := Match{Nodes: nodes[i : i+len(p)]}
	for j, ip := range p {
		in := g.Inst(m.Nodes[j])
		if !ip.Op.match(in.Op) {
			return Match{}, false
		}
		if !m.unify(ip.R, in.R) || !m.unify(ip.S, in.S) || !m.unify(ip.T, in.T) {
			return Match{}, false
		}
	}
	if !closed(g, m.Nodes) {
		return Match{}, false
	}
	return m, true
}

// closed reports whether control enters the window only at its first node
// and leaves it only from its last node.
func closed(g *Graph, window []NodeID) bool {
	inside := make(map[NodeID]bool, len(window))
	for _, id := range window {
		inside[id] = true
	}
	for j, id := range window {
		if j > 0 {
			for _, src := range g.Inlinks(id) {
				if !inside[src] {
					return false
				}
			}
		}
		if j < len(window)-1 {
			if out := g.Outlink(id); out != None && !inside[out] {
				return false
			}
			if g.Indirect(id) || g.Inst(id).Op == tm.OpHALT {
				return false
			}
		}
	}
	return true
}

// MatchWindow returns the first closed window of nodes matching p.
func MatchWindow(g *Graph, nodes []NodeID, p Pattern) (Match, bool) {
	for i := range nodes {
		if m, ok := matchAt(g, nodes, i, p); ok {
			return m, true
		}
	}
	return Match{}, false
}
