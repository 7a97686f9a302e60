package optimize

import (
	"fmt"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Stats describes one Optimize run.
type Stats struct {
	Before      int // instructions after Build
	After       int
	Passes      int
	DeadRemoved int
	Rules       map[string]int // applied rewrites per rule
}

func newStats() *Stats {
	return &Stats{Rules: make(map[string]int)}
}

// Rewrites is the total number of applied rewrites.
func (s *Stats) Rewrites() int {
	n := 0
	for _, c := range s.Rules {
		n += c
	}
	return n
}

// Table renders the statistics.
func (s *Stats) Table() string {
	t := table.NewWriter()
	t.SetTitle("Optimizer")
	t.AppendHeader(table.Row{"Rule", "Rewrites"})

	names := make([]string, 0, len(s.Rules))
	for name := range s.Rules {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		t.AppendRow(table.Row{name, s.Rules[name]})
	}
	t.AppendRow(table.Row{"unreachable", s.DeadRemoved})
	t.AppendFooter(table.Row{"instructions", fmt.Sprintf("%d -> %d in %d passes", s.Before, s.After, s.Passes)})
	return t.Render()
}

// DumpBlocks renders the instructions of g grouped by block, with the
// control edges of every node.
func DumpBlocks(g *Graph) string {
	t := table.NewWriter()
	t.SetTitle("Blocks")
	t.AppendHeader(table.Row{"Block", "Pos", "Instruction", "Out", "In"})

	pos := make(map[NodeID]int, g.Len())
	for i, id := range g.Nodes() {
		pos[id] = i
	}
	b := 0
	for block := range g.Blocks() {
		for _, id := range block {
			out := ""
			if o := g.Outlink(id); o != None {
				out = fmt.Sprint(pos[o])
			} else if g.Indirect(id) {
				out = "*"
			}
			var in []int
			for _, src := range g.Inlinks(id) {
				in = append(in, pos[src])
			}
			sort.Ints(in)
			inText := ""
			if len(in) > 0 {
				inText = fmt.Sprint(in)
			}
			t.AppendRow(table.Row{b, pos[id], g.Inst(id).String(), out, inText})
		}
		t.AppendSeparator()
		b++
	}
	return t.Render()
}
