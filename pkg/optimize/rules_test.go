package optimize

import (
	"bytes"
	"log/slog"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"ice9c/pkg/tm"
)

var _ = Describe("Rules", func() {
	initSP := ins(tm.OpLD, tm.SP, 0, tm.ZERO)

	Describe("jump-to-next", func() {
		It("removes a jump to the following instruction", func() {
			out, st := optimizeAndCompare(program(
				ins(tm.OpLDC, tm.AC1, 5, 0),
				ins(tm.OpJEQ, tm.AC1, 0, tm.PC),
				ins(tm.OpOUT, tm.AC1, 0, 0),
				ins(tm.OpHALT, 0, 0, 0),
			), Options{})
			Expect(out).To(Equal(program(
				ins(tm.OpLDC, tm.AC1, 5, 0),
				ins(tm.OpOUT, tm.AC1, 0, 0),
				ins(tm.OpHALT, 0, 0, 0),
			)))
			Expect(st.Rules["jump-to-next"]).To(Equal(1))
		})
	})

	Describe("noop-lda", func() {
		It("removes LDA r,0(r)", func() {
			out, _ := optimizeAndCompare(program(
				ins(tm.OpLDC, tm.AC1, 5, 0),
				ins(tm.OpLDA, tm.AC1, 0, tm.AC1),
				ins(tm.OpOUT, tm.AC1, 0, 0),
				ins(tm.OpHALT, 0, 0, 0),
			), Options{})
			Expect(out).To(HaveLen(3))
		})
	})

	Describe("thread-jumps", func() {
		It("retargets a jump whose target is an unconditional jump", func() {
			out, st := optimizeAndCompare(program(
				ins(tm.OpLDC, tm.AC1, 1, 0),
				ins(tm.OpJNE, tm.AC1, 2, tm.PC),
				ins(tm.OpOUT, tm.AC1, 0, 0),
				ins(tm.OpHALT, 0, 0, 0),
				ins(tm.OpJEQ, tm.ZERO, 1, tm.PC),
				ins(tm.OpHALT, 0, 0, 0),
				ins(tm.OpLDC, tm.AC1, 9, 0),
				ins(tm.OpOUT, tm.AC1, 0, 0),
				ins(tm.OpHALT, 0, 0, 0),
			), Options{})
			Expect(st.Rules["thread-jumps"]).To(Equal(1))
			Expect(out).To(Equal(program(
				ins(tm.OpLDC, tm.AC1, 1, 0),
				ins(tm.OpJNE, tm.AC1, 2, tm.PC),
				ins(tm.OpOUT, tm.AC1, 0, 0),
				ins(tm.OpHALT, 0, 0, 0),
				ins(tm.OpLDC, tm.AC1, 9, 0),
				ins(tm.OpOUT, tm.AC1, 0, 0),
				ins(tm.OpHALT, 0, 0, 0),
			)))
		})

		It("terminates on a cycle of jumps", func() {
			o, err := New(Options{})
			Expect(err).NotTo(HaveOccurred())
			_, st, err := o.Optimize(program(
				ins(tm.OpLDC, tm.AC1, 1, 0),
				ins(tm.OpJNE, tm.AC1, 1, tm.PC),
				ins(tm.OpHALT, 0, 0, 0),
				ins(tm.OpJEQ, tm.ZERO, 1, tm.PC),
				ins(tm.OpHALT, 0, 0, 0),
				ins(tm.OpJEQ, tm.ZERO, -3, tm.PC),
			))
			Expect(err).NotTo(HaveOccurred())
			Expect(st.Rules["thread-jumps"]).To(BeZero())
			Expect(st.Passes).To(BeNumerically("<", DefaultMaxPasses))
		})
	})

	Describe("push-pop", func() {
		It("drops a push immediately popped into the same register", func() {
			out, st := optimizeAndCompare(program(
				initSP,
				ins(tm.OpLDC, tm.AC1, 4, 0),
				pushIns(tm.AC1),
				popIns(tm.AC1),
				ins(tm.OpOUT, tm.AC1, 0, 0),
				ins(tm.OpHALT, 0, 0, 0),
			), Options{})
			Expect(out).To(Equal(program(
				initSP,
				ins(tm.OpLDC, tm.AC1, 4, 0),
				ins(tm.OpOUT, tm.AC1, 0, 0),
				ins(tm.OpHALT, 0, 0, 0),
			)))
			Expect(st.Rules["push-pop"]).To(Equal(1))
		})

		It("turns a push popped into another register into a move", func() {
			out, _ := optimizeAndCompare(program(
				initSP,
				ins(tm.OpLDC, tm.AC1, 4, 0),
				pushIns(tm.AC1),
				popIns(tm.AC2),
				ins(tm.OpOUT, tm.AC2, 0, 0),
				ins(tm.OpHALT, 0, 0, 0),
			), Options{})
			Expect(out).To(Equal(program(
				initSP,
				ins(tm.OpLDC, tm.AC1, 4, 0),
				ins(tm.OpLDA, tm.AC2, 0, tm.AC1),
				ins(tm.OpOUT, tm.AC2, 0, 0),
				ins(tm.OpHALT, 0, 0, 0),
			)))
		})

		It("shrinks the offsets of jumps around it", func() {
			out, _ := optimizeAndCompare(program(
				initSP,
				ins(tm.OpLDC, tm.AC1, 7, 0),
				ins(tm.OpJNE, tm.AC1, 5, tm.PC),
				pushIns(tm.AC1),
				popIns(tm.AC1),
				ins(tm.OpOUT, tm.AC1, 0, 0),
				ins(tm.OpOUT, tm.AC1, 0, 0),
				ins(tm.OpJLT, tm.AC1, -9, tm.PC),
				ins(tm.OpHALT, 0, 0, 0),
			), Options{})
			Expect(out).To(Equal(program(
				initSP,
				ins(tm.OpLDC, tm.AC1, 7, 0),
				ins(tm.OpJNE, tm.AC1, 1, tm.PC),
				ins(tm.OpOUT, tm.AC1, 0, 0),
				ins(tm.OpOUT, tm.AC1, 0, 0),
				ins(tm.OpJLT, tm.AC1, -5, tm.PC),
				ins(tm.OpHALT, 0, 0, 0),
			)))
		})

		It("leaves a window entered from outside alone", func() {
			o, err := New(Options{})
			Expect(err).NotTo(HaveOccurred())
			code := program(
				initSP,
				ins(tm.OpLDC, tm.AC1, 4, 0),
				ins(tm.OpJNE, tm.AC1, 2, tm.PC),
				pushIns(tm.AC1),
				popIns(tm.AC2),
				ins(tm.OpOUT, tm.AC2, 0, 0),
				ins(tm.OpHALT, 0, 0, 0),
			)
			_, st, err := o.Optimize(code)
			Expect(err).NotTo(HaveOccurred())
			Expect(st.Rules["push-pop"]).To(BeZero())
		})
	})

	Describe("store-load", func() {
		It("forwards a stored register to the following load", func() {
			out, _ := optimizeAndCompare(program(
				ins(tm.OpLDC, tm.AC1, 3, 0),
				ins(tm.OpST, tm.AC1, 5, tm.ZERO),
				ins(tm.OpLD, tm.AC2, 5, tm.ZERO),
				ins(tm.OpOUT, tm.AC2, 0, 0),
				ins(tm.OpHALT, 0, 0, 0),
			), Options{})
			Expect(out[2]).To(Equal(ins(tm.OpLDA, tm.AC2, 0, tm.AC1)))
		})

		It("drops a reload into the stored register", func() {
			out, _ := optimizeAndCompare(program(
				ins(tm.OpLDC, tm.AC1, 3, 0),
				ins(tm.OpST, tm.AC1, 5, tm.ZERO),
				ins(tm.OpLD, tm.AC1, 5, tm.ZERO),
				ins(tm.OpOUT, tm.AC1, 0, 0),
				ins(tm.OpHALT, 0, 0, 0),
			), Options{})
			Expect(out).To(HaveLen(4))
		})
	})

	Describe("negate", func() {
		It("replaces a multiply by -1 with a subtraction from zero", func() {
			out, _ := optimizeAndCompare(program(
				ins(tm.OpLDC, tm.AC1, 5, 0),
				ins(tm.OpLDC, tm.AC2, -1, 0),
				ins(tm.OpMUL, tm.AC1, tm.AC1, tm.AC2),
				ins(tm.OpOUT, tm.AC1, 0, 0),
				ins(tm.OpHALT, 0, 0, 0),
			), Options{})
			Expect(out).To(Equal(program(
				ins(tm.OpLDC, tm.AC1, 5, 0),
				ins(tm.OpSUB, tm.AC1, tm.ZERO, tm.AC1),
				ins(tm.OpOUT, tm.AC1, 0, 0),
				ins(tm.OpHALT, 0, 0, 0),
			)))
		})
	})

	Describe("double", func() {
		It("replaces a multiply by the literal 2 with an add", func() {
			out, st := optimizeAndCompare(program(
				initSP,
				ins(tm.OpLDC, tm.AC1, 21, 0),
				pushIns(tm.AC1),
				ins(tm.OpLDC, tm.AC1, 2, 0),
				popIns(tm.AC2),
				ins(tm.OpMUL, tm.AC1, tm.AC2, tm.AC1),
				ins(tm.OpOUT, tm.AC1, 0, 0),
				ins(tm.OpHALT, 0, 0, 0),
			), Options{})
			Expect(out).To(Equal(program(
				initSP,
				ins(tm.OpLDC, tm.AC1, 21, 0),
				ins(tm.OpADD, tm.AC1, tm.AC1, tm.AC1),
				ins(tm.OpOUT, tm.AC1, 0, 0),
				ins(tm.OpHALT, 0, 0, 0),
			)))
			Expect(st.Rules["double"]).To(Equal(1))
			Expect(st.Rules["fold-immediate"]).To(BeZero())
		})
	})

	Describe("fold-immediate", func() {
		binary := func(op tm.Opcode, k int) []tm.Instr {
			return program(
				initSP,
				ins(tm.OpLDC, tm.AC1, 40, 0),
				pushIns(tm.AC1),
				ins(tm.OpLDC, tm.AC1, k, 0),
				popIns(tm.AC2),
				ins(op, tm.AC1, tm.AC2, tm.AC1),
				ins(tm.OpOUT, tm.AC1, 0, 0),
				ins(tm.OpHALT, 0, 0, 0),
			)
		}

		DescribeTable("folds a literal right operand",
			func(op tm.Opcode, k int, folded []tm.Instr) {
				out, st := optimizeAndCompare(binary(op, k), Options{})
				Expect(st.Rules["fold-immediate"]).To(Equal(1))
				want := program(initSP, ins(tm.OpLDC, tm.AC1, 40, 0), folded,
					ins(tm.OpOUT, tm.AC1, 0, 0), ins(tm.OpHALT, 0, 0, 0))
				Expect(out).To(Equal(want))
			},
			Entry("ADD", tm.OpADD, 2, []tm.Instr{ins(tm.OpLDA, tm.AC1, 2, tm.AC1)}),
			Entry("SUB", tm.OpSUB, 2, []tm.Instr{ins(tm.OpLDA, tm.AC1, -2, tm.AC1)}),
			Entry("MUL", tm.OpMUL, 3, []tm.Instr{
				ins(tm.OpLDC, tm.AC2, 3, 0),
				ins(tm.OpMUL, tm.AC1, tm.AC1, tm.AC2),
			}),
			Entry("DIV", tm.OpDIV, 4, []tm.Instr{
				ins(tm.OpLDC, tm.AC2, 4, 0),
				ins(tm.OpDIV, tm.AC1, tm.AC1, tm.AC2),
			}),
		)

		It("does not fold a division by zero", func() {
			o, err := New(Options{})
			Expect(err).NotTo(HaveOccurred())
			code := binary(tm.OpDIV, 0)
			out, st, err := o.Optimize(code)
			Expect(err).NotTo(HaveOccurred())
			Expect(st.Rules["fold-immediate"]).To(BeZero())
			Expect(shape(out)).To(Equal(code))
		})
	})

	Describe("fuse-push", func() {
		It("merges consecutive stack pointer decrements", func() {
			out, st := optimizeAndCompare(program(
				initSP,
				ins(tm.OpLDC, tm.AC1, 1, 0),
				ins(tm.OpLDC, tm.AC2, 2, 0),
				pushIns(tm.AC1),
				pushIns(tm.AC2),
				ins(tm.OpLD, tm.AC3, 1, tm.SP),
				ins(tm.OpLD, tm.AC4, 0, tm.SP),
				ins(tm.OpOUT, tm.AC3, 0, 0),
				ins(tm.OpOUT, tm.AC4, 0, 0),
				ins(tm.OpHALT, 0, 0, 0),
			), Options{})
			Expect(st.Rules["fuse-push"]).To(Equal(1))
			Expect(out[3:6]).To(Equal(program(
				ins(tm.OpLDA, tm.SP, -2, tm.SP),
				ins(tm.OpST, tm.AC1, 1, tm.SP),
				ins(tm.OpST, tm.AC2, 0, tm.SP),
			)))
		})
	})

	Describe("fuse-pop", func() {
		It("merges consecutive stack pointer increments", func() {
			out, st := optimizeAndCompare(program(
				initSP,
				ins(tm.OpLDC, tm.AC1, 1, 0),
				ins(tm.OpLDC, tm.AC2, 2, 0),
				ins(tm.OpLDA, tm.SP, -2, tm.SP),
				ins(tm.OpST, tm.AC1, 1, tm.SP),
				ins(tm.OpST, tm.AC2, 0, tm.SP),
				popIns(tm.AC3),
				popIns(tm.AC4),
				ins(tm.OpOUT, tm.AC3, 0, 0),
				ins(tm.OpOUT, tm.AC4, 0, 0),
				ins(tm.OpHALT, 0, 0, 0),
			), Options{})
			Expect(st.Rules["fuse-pop"]).To(Equal(1))
			Expect(out[7:9]).To(Equal(program(
				ins(tm.OpLD, tm.AC4, 1, tm.SP),
				ins(tm.OpLDA, tm.SP, 2, tm.SP),
			)))
		})
	})

	Describe("collapse-compare", func() {
		compare := func(after tm.Instr) []tm.Instr {
			return program(
				ins(tm.OpLDC, tm.AC1, 3, 0),
				ins(tm.OpJLT, tm.AC1, 2, tm.PC),
				ins(tm.OpLDC, tm.AC1, 0, 0),
				ins(tm.OpJEQ, tm.ZERO, 1, tm.PC),
				ins(tm.OpLDC, tm.AC1, 1, 0),
				ins(tm.OpJEQ, tm.AC1, 3, tm.PC),
				after,
				ins(tm.OpOUT, tm.AC1, 0, 0),
				ins(tm.OpHALT, 0, 0, 0),
				ins(tm.OpLDC, tm.AC1, 0, 0),
				ins(tm.OpOUT, tm.AC1, 0, 0),
				ins(tm.OpHALT, 0, 0, 0),
			)
		}

		It("branches on the comparison directly", func() {
			out, st := optimizeAndCompare(compare(ins(tm.OpLDC, tm.AC1, 1, 0)), Options{})
			Expect(st.Rules["collapse-compare"]).To(Equal(1))
			Expect(out).To(Equal(program(
				ins(tm.OpLDC, tm.AC1, 3, 0),
				ins(tm.OpJGE, tm.AC1, 3, tm.PC),
				ins(tm.OpLDC, tm.AC1, 1, 0),
				ins(tm.OpOUT, tm.AC1, 0, 0),
				ins(tm.OpHALT, 0, 0, 0),
				ins(tm.OpLDC, tm.AC1, 0, 0),
				ins(tm.OpOUT, tm.AC1, 0, 0),
				ins(tm.OpHALT, 0, 0, 0),
			)))
		})

		It("keeps the boolean when it is still read", func() {
			_, st := optimizeAndCompare(compare(ins(tm.OpOUT, tm.AC1, 0, 0)), Options{})
			Expect(st.Rules["collapse-compare"]).To(BeZero())
		})
	})
})

var _ = Describe("Optimizer", func() {
	pushPop := program(
		ins(tm.OpLD, tm.SP, 0, tm.ZERO),
		ins(tm.OpLDC, tm.AC1, 4, 0),
		pushIns(tm.AC1),
		popIns(tm.AC2),
		ins(tm.OpOUT, tm.AC2, 0, 0),
		ins(tm.OpHALT, 0, 0, 0),
	)

	It("lists the rules in priority order", func() {
		o, err := New(Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(o.RuleNames()).To(Equal([]string{
			"jump-to-next", "noop-lda", "thread-jumps", "push-pop", "store-load",
			"negate", "double", "fold-immediate", "fuse-push", "fuse-pop",
			"collapse-compare",
		}))
	})

	It("rejects an unknown rule name", func() {
		_, err := New(Options{Disabled: []string{"no-such-rule"}})
		Expect(err).To(MatchError(ContainSubstring("no-such-rule")))
	})

	It("skips disabled rules", func() {
		_, st := optimizeAndCompare(pushPop, Options{Disabled: []string{"push-pop"}})
		Expect(st.Rules["push-pop"]).To(BeZero())
	})

	It("stops after MaxPasses", func() {
		_, st := optimizeAndCompare(pushPop, Options{MaxPasses: 1})
		Expect(st.Passes).To(Equal(1))
	})

	It("keeps the data prefix", func() {
		code := program(tm.Data(1, 42, "x"), ins(tm.OpLD, tm.AC1, 1, tm.ZERO), ins(tm.OpOUT, tm.AC1, 0, 0), ins(tm.OpHALT, 0, 0, 0))
		out, _ := optimizeAndCompare(code, Options{})
		Expect(out[0].Op).To(Equal(tm.OpData))
		Expect(out[0].R).To(Equal(42))
	})

	It("traces every rewrite", func() {
		var buf bytes.Buffer
		log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: LevelTrace}))
		optimizeAndCompare(pushPop, Options{Logger: log})
		Expect(buf.String()).To(ContainSubstring("rule=push-pop"))
	})

	It("reports statistics", func() {
		_, st := optimizeAndCompare(pushPop, Options{})
		Expect(st.Before).To(Equal(8))
		Expect(st.After).To(Equal(5))
		Expect(st.Rewrites()).To(Equal(1))
		table := st.Table()
		Expect(table).To(ContainSubstring("push-pop"))
		Expect(table).To(ContainSubstring("unreachable"))
		Expect(strings.Count(table, "\n")).To(BeNumerically(">", 3))
	})
})
