// Package optimize is a peephole optimizer for linked TM code.
//
// The code is lifted into a Graph whose nodes know their control-flow
// neighbours, partitioned into blocks, and rewritten by pattern rules until
// nothing changes. Every rewrite is followed by FixJumps so the jump
// offsets always describe the current layout.
package optimize

import (
	"fmt"
	"log/slog"
	"slices"

	"ice9c/pkg/tm"
)

// DefaultMaxPasses bounds the number of whole-program passes.
const DefaultMaxPasses = 16

// Options configures New. Zero values select the defaults.
type Options struct {
	MaxPasses int
	Disabled  []string // rule names
	Logger    *slog.Logger
}

// Optimizer runs the rewrite rules. It holds no per-program state and can
// be reused.
type Optimizer struct {
	rules     []Rule
	maxPasses int
	log       *slog.Logger
}

// New returns an optimizer with DefaultRules minus the disabled ones.
func New(opts Options) (*Optimizer, error) {
	o := &Optimizer{maxPasses: opts.MaxPasses, log: opts.Logger}
	if o.maxPasses <= 0 {
		o.maxPasses = DefaultMaxPasses
	}
	if o.log == nil {
		o.log = slog.Default()
	}

	all := DefaultRules()
	for _, name := range opts.Disabled {
		if !slices.ContainsFunc(all, func(r Rule) bool { return r.Name == name }) {
			return nil, fmt.Errorf("unknown rule %q", name)
		}
	}
	for _, r := range all {
		if !slices.Contains(opts.Disabled, r.Name) {
			o.rules = append(o.rules, r)
		}
	}
	return o, nil
}

// RuleNames lists the enabled rules in priority order.
func (o *Optimizer) RuleNames() []string {
	names := make([]string, len(o.rules))
	for i, r := range o.rules {
		names[i] = r.Name
	}
	return names
}

// Optimize returns an equivalent, usually shorter, program.
func (o *Optimizer) Optimize(code []tm.Instr) ([]tm.Instr, *Stats, error) {
	g, err := Build(code)
	if err != nil {
		return nil, nil, err
	}
	st := newStats()
	st.Before = g.Len()

	if n := RemoveDeadCode(g); n > 0 {
		st.DeadRemoved += n
		FixJumps(g)
	}

	for pass := 1; pass <= o.maxPasses; pass++ {
		st.Passes = pass
		changed := o.blockPass(g, st)
		if o.regionPass(g, st) {
			changed = true
		}
		if n := RemoveDeadCode(g); n > 0 {
			st.DeadRemoved += n
			FixJumps(g)
			changed = true
		}
		o.log.Debug("optimizer pass", "pass", pass, "instructions", g.Len(), "changed", changed)
		if !changed {
			break
		}
	}
	st.After = g.Len()
	return g.Flatten(), st, nil
}

// find returns the first window of nodes accepted by r.
func find(g *Graph, nodes []NodeID, r *Rule) (Match, bool) {
	for i := range nodes {
		m, ok := matchAt(g, nodes, i, r.Pattern)
		if ok && (r.Guard == nil || r.Guard(g, &m)) {
			return m, true
		}
	}
	return Match{}, false
}

func (o *Optimizer) apply(g *Graph, r *Rule, m *Match, st *Stats) {
	o.trace("rewrite", "rule", r.Name, "at", g.Inst(m.Nodes[0]).String(), "len", len(m.Nodes))
	r.Rewrite(g, m)
	FixJumps(g)
	st.Rules[r.Name]++
}

// blockPass rewrites every block to a fixed point.
func (o *Optimizer) blockPass(g *Graph, st *Stats) bool {
	changed := false
	for cur := g.Head(); cur != None; {
		block := g.BlockFrom(cur)
		for len(block) > 0 {
			anchor := g.Prev(block[0])
			r, m, ok := o.firstMatch(g, block)
			if !ok {
				break
			}
			o.apply(g, r, &m, st)
			changed = true

			// The anchor is outside the block, so the rewrite kept it.
			start := g.Head()
			if anchor != None {
				start = g.Next(anchor)
			}
			block = g.BlockFrom(start)
		}
		if len(block) == 0 {
			break
		}
		cur = g.Next(block[len(block)-1])
	}
	return changed
}

func (o *Optimizer) firstMatch(g *Graph, block []NodeID) (*Rule, Match, bool) {
	for i := range o.rules {
		r := &o.rules[i]
		if r.Region {
			continue
		}
		if m, ok := find(g, block, r); ok {
			return r, m, true
		}
	}
	return nil, Match{}, false
}

// regionPass applies the region rules over the whole program.
func (o *Optimizer) regionPass(g *Graph, st *Stats) bool {
	changed := false
	for i := range o.rules {
		r := &o.rules[i]
		if !r.Region {
			continue
		}
		for {
			m, ok := find(g, g.Nodes(), r)
			if !ok {
				break
			}
			o.apply(g, r, &m, st)
			changed = true
		}
	}
	return changed
}
