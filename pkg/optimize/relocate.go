package optimize

// FixJumps rewrites the offset of every node with an outlink from the
// current instruction positions, keeping each node's encoding: PC-relative
// nodes get target-source-1, absolute ones the target position. Inlink sets
// are rebuilt from the outlinks.
func FixJumps(g *Graph) {
	pos := make(map[NodeID]int, g.size)
	i := 0
	for id := g.head; id != None; id = g.nodes[id].next {
		pos[id] = i
		g.nodes[id].inlinks = nil
		i++
	}
	for id := g.head; id != None; id = g.nodes[id].next {
		n := &g.nodes[id]
		if n.outlink == None {
			continue
		}
		if relative(n.inst) {
			n.inst.S = pos[n.outlink] - pos[id] - 1
		} else {
			n.inst.S = pos[n.outlink]
		}
		t := &g.nodes[n.outlink]
		if t.inlinks == nil {
			t.inlinks = make(map[NodeID]struct{})
		}
		t.inlinks[id] = struct{}{}
	}
}
