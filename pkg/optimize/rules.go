package optimize

import "ice9c/pkg/tm"

// Rule is one peephole rewrite.
type Rule struct {
	Name    string
	Pattern Pattern
	// Region rules may match across block boundaries. The window must
	// still be closed.
	Region  bool
	Guard   func(g *Graph, m *Match) bool
	Rewrite func(g *Graph, m *Match)
}

const jumpOps = "JEQ|JNE|JLT|JLE|JGT|JGE"

func lda(r, s, t int) tm.Instr { return tm.New(tm.OpLDA, r, s, t, "") }

func push(a Slot) []InstrPattern {
	return []InstrPattern{
		I(Op(tm.OpLDA), Lit(tm.SP), Lit(-1), Lit(tm.SP)),
		I(Op(tm.OpST), Bind(a), Lit(0), Lit(tm.SP)),
	}
}

func pop(b Slot) []InstrPattern {
	return []InstrPattern{
		I(Op(tm.OpLD), Bind(b), Lit(0), Lit(tm.SP)),
		I(Op(tm.OpLDA), Lit(tm.SP), Lit(1), Lit(tm.SP)),
	}
}

func seq(parts ...[]InstrPattern) Pattern {
	var p Pattern
	for _, part := range parts {
		p = append(p, part...)
	}
	return p
}

func one(ip InstrPattern) []InstrPattern { return []InstrPattern{ip} }

// removeFrom removes the window's nodes from index i on.
func removeFrom(g *Graph, m *Match, i int) {
	for _, id := range m.Nodes[i:] {
		g.Remove(id)
	}
}

func notSP(slots ...Slot) func(g *Graph, m *Match) bool {
	return func(g *Graph, m *Match) bool {
		for _, s := range slots {
			if v := m.Get(s); v == tm.SP || v == tm.PC {
				return false
			}
		}
		return true
	}
}

// chase follows a chain of unconditional jumps from id and returns the
// first node that is not one. It fails on a cycle.
func chase(g *Graph, id NodeID) (NodeID, bool) {
	seen := map[NodeID]bool{}
	for {
		in := g.Inst(id)
		if !in.IsBranch() || !in.Unconditional() || g.Outlink(id) == None {
			return id, true
		}
		if seen[id] {
			return None, false
		}
		seen[id] = true
		id = g.Outlink(id)
	}
}

// DefaultRules returns the rewrite rules in priority order.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:    "jump-to-next",
			Pattern: Pattern{I(OpMatch(jumpOps), Any(), Lit(0), Lit(tm.PC))},
			Rewrite: func(g *Graph, m *Match) { g.Remove(m.Nodes[0]) },
		},
		{
			Name:    "noop-lda",
			Pattern: Pattern{I(Op(tm.OpLDA), Bind(SlotA), Lit(0), Bind(SlotA))},
			Rewrite: func(g *Graph, m *Match) { g.Remove(m.Nodes[0]) },
		},
		{
			Name:    "thread-jumps",
			Pattern: Pattern{I(OpMatch(jumpOps), Any(), Any(), Any())},
			Guard: func(g *Graph, m *Match) bool {
				id := m.Nodes[0]
				out := g.Outlink(id)
				if out == None || out == id {
					return false
				}
				t := g.Inst(out)
				if !t.IsBranch() || !t.Unconditional() {
					return false
				}
				final, ok := chase(g, out)
				return ok && final != out && final != id
			},
			Rewrite: func(g *Graph, m *Match) {
				final, _ := chase(g, g.Outlink(m.Nodes[0]))
				g.Retarget(m.Nodes[0], final)
			},
		},
		{
			Name:    "push-pop",
			Pattern: seq(push(SlotA), pop(SlotB)),
			Guard:   notSP(SlotA, SlotB),
			Rewrite: func(g *Graph, m *Match) {
				a, b := m.Get(SlotA), m.Get(SlotB)
				if a == b {
					removeFrom(g, m, 0)
					return
				}
				g.SetInst(m.Nodes[0], lda(b, 0, a))
				removeFrom(g, m, 1)
			},
		},
		{
			Name: "store-load",
			Pattern: Pattern{
				I(Op(tm.OpST), Bind(SlotA), Bind(SlotK), Bind(SlotX)),
				I(Op(tm.OpLD), Bind(SlotC), Bind(SlotK), Bind(SlotX)),
			},
			Guard: func(g *Graph, m *Match) bool {
				return m.Get(SlotX) != tm.PC && m.Get(SlotC) != tm.PC
			},
			Rewrite: func(g *Graph, m *Match) {
				a, c := m.Get(SlotA), m.Get(SlotC)
				if a == c {
					g.Remove(m.Nodes[1])
					return
				}
				g.SetInst(m.Nodes[1], lda(c, 0, a))
			},
		},
		{
			Name: "negate",
			Pattern: Pattern{
				I(Op(tm.OpLDC), Lit(tm.AC2), Lit(-1), Any()),
				I(Op(tm.OpMUL), Bind(SlotA), Bind(SlotA), Lit(tm.AC2)),
			},
			Guard: func(g *Graph, m *Match) bool { return m.Get(SlotA) != tm.AC2 },
			Rewrite: func(g *Graph, m *Match) {
				a := m.Get(SlotA)
				g.SetInst(m.Nodes[0], tm.New(tm.OpSUB, a, tm.ZERO, a, "negate"))
				g.Remove(m.Nodes[1])
			},
		},
		{
			Name: "double",
			Pattern: seq(
				push(SlotA),
				one(I(Op(tm.OpLDC), Bind(SlotA), Lit(2), Any())),
				pop(SlotB),
				one(I(Op(tm.OpMUL), Bind(SlotA), Bind(SlotB), Bind(SlotA))),
			),
			Guard: func(g *Graph, m *Match) bool {
				return notSP(SlotA, SlotB)(g, m) && m.Get(SlotA) != m.Get(SlotB)
			},
			Rewrite: func(g *Graph, m *Match) {
				a := m.Get(SlotA)
				g.SetInst(m.Nodes[0], tm.New(tm.OpADD, a, a, a, "times 2"))
				removeFrom(g, m, 1)
			},
		},
		{
			Name: "fold-immediate",
			Pattern: seq(
				push(SlotA),
				one(I(Op(tm.OpLDC), Bind(SlotA), Bind(SlotK), Any())),
				pop(SlotB),
				one(I(Op(tm.OpADD, tm.OpSUB, tm.OpMUL, tm.OpDIV), Bind(SlotA), Bind(SlotB), Bind(SlotA))),
			),
			Guard: func(g *Graph, m *Match) bool {
				if !notSP(SlotA, SlotB)(g, m) || m.Get(SlotA) == m.Get(SlotB) {
					return false
				}
				return m.Inst(g, 5).Op != tm.OpDIV || m.Get(SlotK) != 0
			},
			Rewrite: func(g *Graph, m *Match) {
				a, b, k := m.Get(SlotA), m.Get(SlotB), m.Get(SlotK)
				switch op := m.Inst(g, 5).Op; op {
				case tm.OpADD:
					g.SetInst(m.Nodes[0], lda(a, k, a))
					removeFrom(g, m, 1)
				case tm.OpSUB:
					g.SetInst(m.Nodes[0], lda(a, -k, a))
					removeFrom(g, m, 1)
				default:
					g.SetInst(m.Nodes[0], tm.New(tm.OpLDC, b, k, 0, "immediate"))
					g.SetInst(m.Nodes[1], tm.New(op, a, a, b, ""))
					removeFrom(g, m, 2)
				}
			},
		},
		{
			Name: "fuse-push",
			Pattern: Pattern{
				I(Op(tm.OpLDA), Lit(tm.SP), Bind(SlotN), Lit(tm.SP)),
				I(Op(tm.OpST), Bind(SlotA), Bind(SlotK), Lit(tm.SP)),
				I(Op(tm.OpLDA), Lit(tm.SP), Bind(SlotM), Lit(tm.SP)),
			},
			Guard: func(g *Graph, m *Match) bool {
				return m.Get(SlotN) < 0 && m.Get(SlotM) < 0 && notSP(SlotA)(g, m)
			},
			Rewrite: func(g *Graph, m *Match) {
				n, mm, a, k := m.Get(SlotN), m.Get(SlotM), m.Get(SlotA), m.Get(SlotK)
				g.SetInst(m.Nodes[0], lda(tm.SP, n+mm, tm.SP))
				g.SetInst(m.Nodes[1], tm.New(tm.OpST, a, k-mm, tm.SP, ""))
				g.Remove(m.Nodes[2])
			},
		},
		{
			Name: "fuse-pop",
			Pattern: Pattern{
				I(Op(tm.OpLDA), Lit(tm.SP), Bind(SlotN), Lit(tm.SP)),
				I(Op(tm.OpLD), Bind(SlotB), Bind(SlotK), Lit(tm.SP)),
				I(Op(tm.OpLDA), Lit(tm.SP), Bind(SlotM), Lit(tm.SP)),
			},
			Guard: func(g *Graph, m *Match) bool {
				return m.Get(SlotN) > 0 && m.Get(SlotM) > 0 && notSP(SlotB)(g, m)
			},
			Rewrite: func(g *Graph, m *Match) {
				n, mm, b, k := m.Get(SlotN), m.Get(SlotM), m.Get(SlotB), m.Get(SlotK)
				g.SetInst(m.Nodes[0], tm.New(tm.OpLD, b, n+k, tm.SP, ""))
				g.SetInst(m.Nodes[1], lda(tm.SP, n+mm, tm.SP))
				g.Remove(m.Nodes[2])
			},
		},
		{
			// Jcc AC1,2(PC); LDC AC1,0; JEQ ZERO,1(PC); LDC AC1,1; JEQ|JNE AC1,x
			Name:   "collapse-compare",
			Region: true,
			Pattern: Pattern{
				I(OpMatch(jumpOps), Lit(tm.AC1), Lit(2), Lit(tm.PC)),
				I(Op(tm.OpLDC), Lit(tm.AC1), Lit(0), Any()),
				I(Op(tm.OpJEQ), Lit(tm.ZERO), Lit(1), Lit(tm.PC)),
				I(Op(tm.OpLDC), Lit(tm.AC1), Lit(1), Any()),
				I(Op(tm.OpJEQ, tm.OpJNE), Lit(tm.AC1), Any(), Lit(tm.PC)),
			},
			Guard: func(g *Graph, m *Match) bool {
				last := m.Nodes[4]
				target := g.Outlink(last)
				if target == None {
					return false
				}
				for _, id := range m.Nodes {
					if id == target {
						return false
					}
				}
				return deadAt(g, target, tm.AC1) && deadAt(g, g.Next(last), tm.AC1)
			},
			Rewrite: func(g *Graph, m *Match) {
				op := m.Inst(g, 0).Op
				if m.Inst(g, 4).Op == tm.OpJEQ {
					op = op.Invert()
				}
				target := g.Outlink(m.Nodes[4])
				g.SetInst(m.Nodes[0], tm.New(op, tm.AC1, 0, tm.PC, "compare and branch"))
				g.Retarget(m.Nodes[0], target)
				removeFrom(g, m, 1)
			},
		},
	}
}
