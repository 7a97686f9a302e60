package optimize

import "iter"

// endsBlock reports whether control may leave the straight line after id.
func (g *Graph) endsBlock(id NodeID) bool {
	n := &g.nodes[id]
	return n.outlink != None || n.indirect || n.inst.Unconditional()
}

// BlockFrom returns the block that starts at id. Only its first node may
// have inlinks and only its last node may transfer control, so any window
// inside it can be rewritten without touching other blocks.
func (g *Graph) BlockFrom(id NodeID) []NodeID {
	if id == None {
		return nil
	}
	block := []NodeID{id}
	if g.endsBlock(id) {
		return block
	}
	for cur := g.nodes[id].next; cur != None && !g.HasInlinks(cur); cur = g.nodes[cur].next {
		block = append(block, cur)
		if g.endsBlock(cur) {
			break
		}
	}
	return block
}

// Blocks yields the blocks of g in program order. Each block is computed
// when it is reached, so the sequence follows the current list.
func (g *Graph) Blocks() iter.Seq[[]NodeID] {
	return func(yield func([]NodeID) bool) {
		for cur := g.head; cur != None; {
			block := g.BlockFrom(cur)
			if !yield(block) {
				return
			}
			cur = g.nodes[block[len(block)-1]].next
		}
	}
}
