package optimize

import "ice9c/pkg/tm"

// livenessLimit bounds the nodes deadAt visits before giving up.
const livenessLimit = 256

// deadAt reports whether reg is overwritten before it is read on every
// path starting at id. Paths through a return or too long to follow count
// as reads.
func deadAt(g *Graph, id NodeID, reg int) bool {
	seen := map[NodeID]bool{}
	work := []NodeID{id}
	for len(work) > 0 {
		cur := work[len(work)-1]
		work = work[:len(work)-1]
		if cur == None || seen[cur] {
			continue
		}
		seen[cur] = true
		if len(seen) > livenessLimit {
			return false
		}

		in := g.Inst(cur)
		switch {
		case in.Reads(reg), g.Indirect(cur):
			return false
		case in.Writes(reg), in.Op == tm.OpHALT:
			continue
		}
		if out := g.Outlink(cur); out != None && !in.NeverTaken() && !in.TakesAddress() {
			work = append(work, out)
		}
		if in.FallsThrough() {
			work = append(work, g.Next(cur))
		}
	}
	return true
}
