package optimize

import (
	"errors"
	"fmt"
	"sort"

	"ice9c/pkg/tm"
)

var (
	// ErrUnsupportedAddressing is returned for a control transfer whose
	// target is not relative to PC or absolute.
	ErrUnsupportedAddressing = errors.New("unsupported addressing mode")
	// ErrBadTarget is returned for a control transfer outside the program.
	ErrBadTarget = errors.New("jump target out of range")
)

// NodeID is a handle into a Graph's node arena.
type NodeID int32

// None is the absent node.
const None NodeID = -1

type node struct {
	inst     tm.Instr
	next     NodeID
	prev     NodeID
	outlink  NodeID
	inlinks  map[NodeID]struct{}
	indirect bool // LD PC: target only known at run time
	removed  bool
}

// Graph is a doubly linked instruction list with explicit control edges.
// A node's outlink is the static target of its jump, PC load or code
// address; inlinks is the inverse relation.
type Graph struct {
	nodes []node
	head  NodeID
	tail  NodeID
	size  int
	data  []tm.Instr
}

// Build links code into a Graph. Comments are dropped and data pseudo-ops
// are kept aside as the data prefix.
func Build(code []tm.Instr) (*Graph, error) {
	g := &Graph{head: None, tail: None}
	for _, in := range code {
		switch in.Op {
		case tm.OpComment:
		case tm.OpData, tm.OpString:
			g.data = append(g.data, in)
		case tm.OpCall:
			return nil, fmt.Errorf("%w: unlinked call to %s", ErrUnsupportedAddressing, in.Sym)
		default:
			g.InsertAfter(g.tail, in)
		}
	}

	ids := g.Nodes()
	for i, id := range ids {
		in := g.nodes[id].inst
		target, ok, err := staticTarget(in, i)
		if err != nil {
			return nil, fmt.Errorf("instruction %d (%s): %w", i, in, err)
		}
		if in.Op == tm.OpLD && in.R == tm.PC {
			g.nodes[id].indirect = true
		}
		if !ok {
			continue
		}
		if target < 0 || target >= len(ids) {
			return nil, fmt.Errorf("instruction %d (%s) targets %d: %w", i, in, target, ErrBadTarget)
		}
		g.Retarget(id, ids[target])
	}
	return g, nil
}

// staticTarget resolves the position a control transfer at pos refers to.
func staticTarget(in tm.Instr, pos int) (int, bool, error) {
	switch {
	case in.Op.IsBranch(), in.Op == tm.OpLDA && in.R == tm.PC:
		switch in.T {
		case tm.PC:
			return pos + in.S + 1, true, nil
		case tm.ZERO:
			return in.S, true, nil
		}
		return 0, false, ErrUnsupportedAddressing
	case in.Op == tm.OpLDC && in.R == tm.PC:
		return in.S, true, nil
	case in.TakesAddress():
		return pos + in.S + 1, true, nil
	}
	return 0, false, nil
}

// relative reports whether in encodes its target relative to PC.
func relative(in tm.Instr) bool {
	return (in.Op.IsBranch() || in.Op == tm.OpLDA) && in.T == tm.PC
}

func (g *Graph) Head() NodeID { return g.head }
func (g *Graph) Tail() NodeID { return g.tail }

// Len is the number of instructions in the list.
func (g *Graph) Len() int { return g.size }

func (g *Graph) Next(id NodeID) NodeID    { return g.nodes[id].next }
func (g *Graph) Prev(id NodeID) NodeID    { return g.nodes[id].prev }
func (g *Graph) Outlink(id NodeID) NodeID { return g.nodes[id].outlink }
func (g *Graph) Inst(id NodeID) tm.Instr  { return g.nodes[id].inst }

// Indirect reports whether id transfers control through memory.
func (g *Graph) Indirect(id NodeID) bool { return g.nodes[id].indirect }

// Live reports whether id is still in the list.
func (g *Graph) Live(id NodeID) bool {
	return id >= 0 && int(id) < len(g.nodes) && !g.nodes[id].removed
}

func (g *Graph) HasInlinks(id NodeID) bool { return len(g.nodes[id].inlinks) > 0 }

// Inlinks lists the nodes targeting id in arena order.
func (g *Graph) Inlinks(id NodeID) []NodeID {
	out := make([]NodeID, 0, len(g.nodes[id].inlinks))
	for src := range g.nodes[id].inlinks {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Nodes lists the live nodes in program order.
func (g *Graph) Nodes() []NodeID {
	out := make([]NodeID, 0, g.size)
	for id := g.head; id != None; id = g.nodes[id].next {
		out = append(out, id)
	}
	return out
}

// Data is the data segment prefix.
func (g *Graph) Data() []tm.Instr { return g.data }

// InsertAfter adds inst after id, or at the head when id is None.
func (g *Graph) InsertAfter(id NodeID, inst tm.Instr) NodeID {
	nid := NodeID(len(g.nodes))
	n := node{inst: inst, next: None, prev: id, outlink: None}
	if id == None {
		n.next = g.head
	} else {
		n.next = g.nodes[id].next
	}
	g.nodes = append(g.nodes, n)

	if n.prev == None {
		g.head = nid
	} else {
		g.nodes[n.prev].next = nid
	}
	if n.next == None {
		g.tail = nid
	} else {
		g.nodes[n.next].prev = nid
	}
	g.size++
	return nid
}

// Retarget points id's outlink at target, or clears it when target is None.
func (g *Graph) Retarget(id, target NodeID) {
	n := &g.nodes[id]
	if n.outlink != None {
		delete(g.nodes[n.outlink].inlinks, id)
	}
	n.outlink = target
	if target == None {
		return
	}
	t := &g.nodes[target]
	if t.inlinks == nil {
		t.inlinks = make(map[NodeID]struct{})
	}
	t.inlinks[id] = struct{}{}
}

// SetInst replaces the instruction of id, keeping its links.
func (g *Graph) SetInst(id NodeID, inst tm.Instr) {
	g.nodes[id].inst = inst
}

// Remove unlinks id. Control that targeted id is redirected to the next
// node, or to the previous one when id was the tail. A jump that was the
// tail's predecessor then targets itself. Only RemoveDeadCode removes the
// tail, and then every source of its inlinks is dead too.
func (g *Graph) Remove(id NodeID) {
	n := &g.nodes[id]
	if n.removed {
		return
	}
	g.Retarget(id, None)

	succ := n.next
	if succ == None {
		succ = n.prev
	}
	for _, src := range g.Inlinks(id) {
		if src == id {
			continue
		}
		g.Retarget(src, succ)
	}
	n.inlinks = nil

	if n.prev == None {
		g.head = n.next
	} else {
		g.nodes[n.prev].next = n.next
	}
	if n.next == None {
		g.tail = n.prev
	} else {
		g.nodes[n.next].prev = n.prev
	}
	n.next, n.prev = None, None
	n.removed = true
	g.size--
}

// Flatten returns the data prefix followed by the instructions in order.
func (g *Graph) Flatten() []tm.Instr {
	out := make([]tm.Instr, 0, len(g.data)+g.size)
	out = append(out, g.data...)
	for id := g.head; id != None; id = g.nodes[id].next {
		out = append(out, g.nodes[id].inst)
	}
	return out
}

// Verify checks the list and edge invariants and reports the first
// violation.
func (g *Graph) Verify() error {
	count := 0
	prev := None
	for id := g.head; id != None; id = g.nodes[id].next {
		n := &g.nodes[id]
		if n.removed {
			return fmt.Errorf("node %d: removed node still linked", id)
		}
		if n.prev != prev {
			return fmt.Errorf("node %d: prev is %d, want %d", id, n.prev, prev)
		}
		if n.outlink != None {
			if !g.Live(n.outlink) {
				return fmt.Errorf("node %d: outlink %d is not live", id, n.outlink)
			}
			if _, ok := g.nodes[n.outlink].inlinks[id]; !ok {
				return fmt.Errorf("node %d: missing from inlinks of %d", id, n.outlink)
			}
		}
		for src := range n.inlinks {
			if !g.Live(src) || g.nodes[src].outlink != id {
				return fmt.Errorf("node %d: stale inlink from %d", id, src)
			}
		}
		prev = id
		count++
		if count > len(g.nodes) {
			return errors.New("cycle in instruction list")
		}
	}
	if prev != g.tail {
		return fmt.Errorf("tail is %d, want %d", g.tail, prev)
	}
	if count != g.size {
		return fmt.Errorf("size is %d, list holds %d", g.size, count)
	}
	return nil
}
