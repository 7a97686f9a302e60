package optimize

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"ice9c/pkg/tm"
)

var _ = Describe("Pattern", func() {
	straight := program(
		ins(tm.OpLDC, tm.AC1, 12, 0),
		ins(tm.OpST, tm.AC1, 3, tm.FP),
		ins(tm.OpLD, tm.AC2, 3, tm.FP),
		ins(tm.OpHALT, 0, 0, 0),
	)

	It("unifies a slot bound twice", func() {
		g := mustBuild(straight)
		p := Pattern{
			I(Op(tm.OpST), Bind(SlotA), Bind(SlotK), Bind(SlotX)),
			I(Op(tm.OpLD), Bind(SlotC), Bind(SlotK), Bind(SlotX)),
		}
		m, ok := MatchWindow(g, g.Nodes(), p)
		Expect(ok).To(BeTrue())
		Expect(m.Nodes).To(HaveLen(2))
		Expect(m.Get(SlotA)).To(Equal(tm.AC1))
		Expect(m.Get(SlotC)).To(Equal(tm.AC2))
		Expect(m.Get(SlotK)).To(Equal(3))
		Expect(m.Bound(SlotN)).To(BeFalse())

		p[1] = I(Op(tm.OpLD), Bind(SlotA), Any(), Any())
		_, ok = MatchWindow(g, g.Nodes(), p)
		Expect(ok).To(BeFalse())
	})

	DescribeTable("operand matchers",
		func(f Field, want bool) {
			g := mustBuild(straight)
			_, ok := MatchWindow(g, g.Nodes(), Pattern{I(Op(tm.OpLDC), Any(), f, Any())})
			Expect(ok).To(Equal(want))
		},
		Entry("literal", Lit(12), true),
		Entry("wrong literal", Lit(13), false),
		Entry("predicate", Pred(func(v int) bool { return v%4 == 0 }), true),
		Entry("failing predicate", Pred(func(v int) bool { return v < 0 }), false),
		Entry("regexp", Regexp(`1\d`), true),
		Entry("regexp matches in full", Regexp(`1`), false),
	)

	DescribeTable("opcode matchers",
		func(f OpField, want bool) {
			g := mustBuild(straight)
			_, ok := MatchWindow(g, g.Nodes(), Pattern{I(f, Lit(tm.AC2), Any(), Any())})
			Expect(ok).To(Equal(want))
		},
		Entry("any", AnyOp(), true),
		Entry("set", Op(tm.OpST, tm.OpLD), true),
		Entry("mnemonic", OpMatch("LD|LDA"), true),
		Entry("mnemonic prefix only", OpMatch("L"), false),
	)

	It("rejects a window entered in the middle", func() {
		g := mustBuild(program(
			ins(tm.OpJEQ, tm.ZERO, 1, tm.PC),
			ins(tm.OpLDC, tm.AC1, 1, 0),
			ins(tm.OpOUT, tm.AC1, 0, 0),
			ins(tm.OpHALT, 0, 0, 0),
		))
		p := Pattern{I(Op(tm.OpLDC), Any(), Any(), Any()), I(Op(tm.OpOUT), Any(), Any(), Any())}
		_, ok := MatchWindow(g, g.Nodes(), p)
		Expect(ok).To(BeFalse())
	})

	It("rejects a window left in the middle", func() {
		g := mustBuild(program(
			ins(tm.OpLDC, tm.AC1, 1, 0),
			ins(tm.OpJNE, tm.AC1, 1, tm.PC),
			ins(tm.OpOUT, tm.AC1, 0, 0),
			ins(tm.OpHALT, 0, 0, 0),
		))
		p := Pattern{I(AnyOp(), Any(), Any(), Any()), I(Op(tm.OpOUT), Any(), Any(), Any())}
		_, ok := MatchWindow(g, g.Nodes(), p)
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("deadAt", func() {
	It("follows both edges of a branch", func() {
		g := mustBuild(program(
			ins(tm.OpJEQ, tm.AC2, 2, tm.PC),
			ins(tm.OpLDC, tm.AC1, 0, 0),
			ins(tm.OpHALT, 0, 0, 0),
			ins(tm.OpOUT, tm.AC1, 0, 0),
			ins(tm.OpHALT, 0, 0, 0),
		))
		ids := g.Nodes()
		Expect(deadAt(g, ids[0], tm.AC1)).To(BeFalse())
		Expect(deadAt(g, ids[1], tm.AC1)).To(BeTrue())
		Expect(deadAt(g, ids[0], tm.AC3)).To(BeTrue())
	})

	It("treats a return as a read", func() {
		g := mustBuild(program(
			ins(tm.OpLDA, tm.SP, 1, tm.FP),
			ins(tm.OpLD, tm.PC, 0, tm.FP),
		))
		Expect(deadAt(g, g.Head(), tm.AC1)).To(BeFalse())
	})

	It("terminates on loops", func() {
		g := mustBuild(program(
			ins(tm.OpLDA, tm.AC2, 1, tm.AC2),
			ins(tm.OpJNE, tm.AC2, -2, tm.PC),
			ins(tm.OpHALT, 0, 0, 0),
		))
		Expect(deadAt(g, g.Head(), tm.AC1)).To(BeTrue())
	})
})
