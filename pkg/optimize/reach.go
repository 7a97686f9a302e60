package optimize

// RemoveDeadCode deletes every node that cannot be reached from the head
// and returns how many were removed. Offsets are not touched; run FixJumps
// afterwards.
func RemoveDeadCode(g *Graph) int {
	if g.head == None {
		return 0
	}
	marked := make([]bool, len(g.nodes))
	work := []NodeID{g.head}
	for len(work) > 0 {
		id := work[len(work)-1]
		work = work[:len(work)-1]
		if id == None || marked[id] {
			continue
		}
		marked[id] = true

		n := &g.nodes[id]
		if n.inst.FallsThrough() {
			work = append(work, n.next)
		}
		if n.outlink != None && !n.inst.NeverTaken() {
			work = append(work, n.outlink)
		}
	}

	var dead []NodeID
	for id := g.head; id != None; id = g.nodes[id].next {
		if !marked[id] {
			dead = append(dead, id)
		}
	}
	for _, id := range dead {
		g.Retarget(id, None)
	}
	for _, id := range dead {
		g.Remove(id)
	}
	return len(dead)
}
