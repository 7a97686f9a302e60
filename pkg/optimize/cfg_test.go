package optimize

import (
	"slices"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"ice9c/pkg/tm"
)

func mustBuild(code []tm.Instr) *Graph {
	GinkgoHelper()
	g, err := Build(code)
	Expect(err).NotTo(HaveOccurred())
	Expect(g.Verify()).To(Succeed())
	return g
}

var _ = Describe("Graph", func() {
	halt := ins(tm.OpHALT, 0, 0, 0)

	Describe("Build", func() {
		It("links relative, absolute and address-taking transfers", func() {
			g := mustBuild(program(
				tm.Note("entry"),
				ins(tm.OpJEQ, tm.ZERO, 1, tm.PC),
				ins(tm.OpLDA, tm.AC2, 1, tm.PC),
				ins(tm.OpLDC, tm.PC, 0, tm.ZERO),
				ins(tm.OpLD, tm.PC, 0, tm.FP),
				halt,
			))
			ids := g.Nodes()
			Expect(ids).To(HaveLen(5))
			Expect(g.Outlink(ids[0])).To(Equal(ids[2]))
			Expect(g.Outlink(ids[1])).To(Equal(ids[3]))
			Expect(g.Outlink(ids[2])).To(Equal(ids[0]))
			Expect(g.Outlink(ids[3])).To(Equal(None))
			Expect(g.Indirect(ids[3])).To(BeTrue())
			Expect(g.Inlinks(ids[0])).To(Equal([]NodeID{ids[2]}))
		})

		It("keeps data pseudo-ops aside", func() {
			g := mustBuild(program(tm.Data(1, 7, ""), tm.StringData(2, "ab"), halt))
			Expect(g.Len()).To(Equal(1))
			Expect(g.Data()).To(HaveLen(2))
			Expect(g.Flatten()).To(HaveLen(3))
		})

		DescribeTable("rejects",
			func(code []tm.Instr, want error) {
				_, err := Build(code)
				Expect(err).To(MatchError(want))
			},
			Entry("an unlinked call", program(tm.Call("p"), halt), ErrUnsupportedAddressing),
			Entry("a register-relative jump", program(ins(tm.OpJEQ, tm.AC1, 0, tm.AC2), halt), ErrUnsupportedAddressing),
			Entry("a jump past the end", program(ins(tm.OpJEQ, tm.ZERO, 5, tm.PC), halt), ErrBadTarget),
			Entry("a jump before the start", program(ins(tm.OpJNE, tm.AC1, -3, tm.PC), halt), ErrBadTarget),
		)
	})

	Describe("Remove", func() {
		It("redirects inlinks to the next node", func() {
			g := mustBuild(program(
				ins(tm.OpJEQ, tm.ZERO, 0, tm.PC),
				ins(tm.OpOUT, tm.AC1, 0, 0),
				halt,
			))
			ids := g.Nodes()
			g.Remove(ids[1])
			Expect(g.Verify()).To(Succeed())
			Expect(g.Outlink(ids[0])).To(Equal(ids[2]))
			Expect(g.Live(ids[1])).To(BeFalse())
			Expect(g.Len()).To(Equal(2))
		})

		It("redirects inlinks of the tail to the previous node, even when that is the jump", func() {
			g := mustBuild(program(
				ins(tm.OpLDC, tm.AC1, 0, 0),
				ins(tm.OpJEQ, tm.AC1, 0, tm.PC),
				halt,
			))
			ids := g.Nodes()
			g.Remove(ids[2])
			Expect(g.Outlink(ids[1])).To(Equal(ids[1]))
			Expect(g.Tail()).To(Equal(ids[1]))
		})
	})

	Describe("FixJumps", func() {
		It("recomputes offsets after an insertion", func() {
			g := mustBuild(program(
				ins(tm.OpLDC, tm.AC1, 1, 0),
				ins(tm.OpJNE, tm.AC1, 1, tm.PC),
				ins(tm.OpOUT, tm.AC1, 0, 0),
				ins(tm.OpLDC, tm.PC, 0, tm.ZERO),
			))
			ids := g.Nodes()
			g.InsertAfter(ids[1], ins(tm.OpOUT, tm.AC1, 0, 0))
			FixJumps(g)
			Expect(g.Verify()).To(Succeed())
			code := g.Flatten()
			Expect(code[1].S).To(Equal(2))
			Expect(code[4].S).To(Equal(0))
		})

		It("keeps every jump on its target", func() {
			g := mustBuild(program(
				ins(tm.OpLDC, tm.AC1, 1, 0),
				ins(tm.OpJNE, tm.AC1, 2, tm.PC),
				ins(tm.OpOUT, tm.AC1, 0, 0),
				ins(tm.OpOUT, tm.AC1, 0, 0),
				ins(tm.OpOUT, tm.AC1, 0, 0),
				ins(tm.OpJLT, tm.AC1, -4, tm.PC),
				halt,
			))
			ids := g.Nodes()
			g.Remove(ids[2])
			g.Remove(ids[3])
			FixJumps(g)
			code, ids := g.Flatten(), g.Nodes()
			for pos, id := range ids {
				if out := g.Outlink(id); out != None {
					Expect(pos + code[pos].S + 1).To(Equal(slices.Index(ids, out)))
				}
			}
		})
	})

	Describe("RemoveDeadCode", func() {
		code := program(
			ins(tm.OpLDA, tm.AC2, 2, tm.PC),
			ins(tm.OpJEQ, tm.ZERO, 2, tm.PC),
			ins(tm.OpOUT, tm.AC1, 0, 0),
			ins(tm.OpOUT, tm.AC1, 0, 0),
			ins(tm.OpJNE, tm.ZERO, 1, tm.PC),
			halt,
			ins(tm.OpOUT, tm.AC1, 0, 0),
		)

		It("keeps return points and removes the rest", func() {
			g := mustBuild(code)
			Expect(RemoveDeadCode(g)).To(Equal(2))
			FixJumps(g)
			Expect(g.Verify()).To(Succeed())
			Expect(shape(g.Flatten())).To(Equal(program(
				ins(tm.OpLDA, tm.AC2, 1, tm.PC),
				ins(tm.OpJEQ, tm.ZERO, 1, tm.PC),
				ins(tm.OpOUT, tm.AC1, 0, 0),
				ins(tm.OpJNE, tm.ZERO, 0, tm.PC),
				halt,
			)))
		})

		It("is idempotent", func() {
			g := mustBuild(code)
			RemoveDeadCode(g)
			FixJumps(g)
			Expect(RemoveDeadCode(g)).To(BeZero())
		})
	})

	Describe("Blocks", func() {
		It("starts a block at every inlink and ends it at every transfer", func() {
			g := mustBuild(program(
				ins(tm.OpLDC, tm.AC1, 1, 0),
				ins(tm.OpLDC, tm.AC2, 2, 0),
				ins(tm.OpJEQ, tm.AC1, 1, tm.PC),
				ins(tm.OpOUT, tm.AC1, 0, 0),
				ins(tm.OpOUT, tm.AC2, 0, 0),
				ins(tm.OpLD, tm.PC, 0, tm.FP),
				halt,
			))
			var sizes []int
			for block := range g.Blocks() {
				for j, id := range block {
					if j > 0 {
						Expect(g.HasInlinks(id)).To(BeFalse())
					}
					if j < len(block)-1 {
						Expect(g.endsBlock(id)).To(BeFalse())
					}
				}
				sizes = append(sizes, len(block))
			}
			Expect(sizes).To(Equal([]int{3, 1, 2, 1}))
		})

		It("renders a dump of every node", func() {
			g := mustBuild(program(
				ins(tm.OpLDC, tm.AC1, 1, 0),
				ins(tm.OpJEQ, tm.AC1, 0, tm.PC),
				halt,
			))
			dump := DumpBlocks(g)
			Expect(dump).To(ContainSubstring("JEQ 1,0(7)"))
			Expect(dump).To(ContainSubstring("[1]"))
		})
	})
})
