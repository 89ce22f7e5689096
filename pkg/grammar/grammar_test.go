package grammar_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/loomcomputeco/loom/pkg/grammar"
)

const answerGrammar = `root ::= "{" ws "\"answer\"" ws ":" ws string ws "}"
string ::= "\"" char* "\""
char ::= [^"\\] | "\\" ["\\nrt]
ws ::= [ \t\n\r]*`

var _ = Describe("Compile", func() {
	It("rejects an empty schema", func() {
		_, err := grammar.Compile("")
		Expect(err).To(HaveOccurred())
	})

	It("rejects references to undefined rules", func() {
		_, err := grammar.Compile(`root ::= missing`)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("undefined rule"))
	})

	It("rejects duplicate rules", func() {
		_, err := grammar.Compile("root ::= \"a\"\nroot ::= \"b\"")
		Expect(err).To(HaveOccurred())
	})

	It("prefers the rule named root as start symbol", func() {
		g, err := grammar.Compile("other ::= \"x\"\nroot ::= \"y\"")
		Expect(err).NotTo(HaveOccurred())
		Expect(g.Root()).To(Equal("root"))
	})

	It("falls back to the first rule without a root", func() {
		g, err := grammar.Compile(`start ::= "x"`)
		Expect(err).NotTo(HaveOccurred())
		Expect(g.Root()).To(Equal("start"))
	})
})

var _ = Describe("Matcher", func() {
	Context("with a literal grammar", func() {
		var g *grammar.Grammar

		BeforeEach(func() {
			var err error
			g, err = grammar.Compile(`root ::= "hello"`)
			Expect(err).NotTo(HaveOccurred())
		})

		It("accepts the exact literal", func() {
			m := g.NewMatcher()
			Expect(m.Feed("hello")).To(Equal(5))
			Expect(m.Complete()).To(BeTrue())
		})

		It("stays viable on a strict prefix", func() {
			m := g.NewMatcher()
			Expect(m.Feed("hel")).To(Equal(3))
			Expect(m.Viable()).To(BeTrue())
			Expect(m.Complete()).To(BeFalse())
		})

		It("dies on the first inconsistent byte", func() {
			m := g.NewMatcher()
			Expect(m.Feed("help")).To(Equal(3))
			Expect(m.Viable()).To(BeFalse())
		})
	})

	Context("with alternation and repetition", func() {
		It("matches either branch", func() {
			g, err := grammar.Compile(`root ::= "yes" | "no"`)
			Expect(err).NotTo(HaveOccurred())

			m := g.NewMatcher()
			Expect(m.Feed("no")).To(Equal(2))
			Expect(m.Complete()).To(BeTrue())
		})

		It("handles star repetition", func() {
			g, err := grammar.Compile(`root ::= "a" [b]* "c"`)
			Expect(err).NotTo(HaveOccurred())

			m := g.NewMatcher()
			Expect(m.Feed("abbbbc")).To(Equal(6))
			Expect(m.Complete()).To(BeTrue())

			m = g.NewMatcher()
			Expect(m.Feed("ac")).To(Equal(2))
			Expect(m.Complete()).To(BeTrue())
		})

		It("requires at least one byte for plus", func() {
			g, err := grammar.Compile(`root ::= [0-9]+`)
			Expect(err).NotTo(HaveOccurred())

			m := g.NewMatcher()
			Expect(m.Complete()).To(BeFalse())
			Expect(m.Feed("42")).To(Equal(2))
			Expect(m.Complete()).To(BeTrue())
		})

		It("treats optional terms as skippable", func() {
			g, err := grammar.Compile(`root ::= "-"? [0-9]+`)
			Expect(err).NotTo(HaveOccurred())

			m := g.NewMatcher()
			Expect(m.Feed("-7")).To(Equal(2))
			Expect(m.Complete()).To(BeTrue())

			m = g.NewMatcher()
			Expect(m.Feed("7")).To(Equal(1))
			Expect(m.Complete()).To(BeTrue())
		})
	})

	Context("with nested rules", func() {
		It("follows rule references recursively", func() {
			g, err := grammar.Compile("root ::= \"(\" inner \")\"\ninner ::= [a-z]+ | \"(\" inner \")\"")
			Expect(err).NotTo(HaveOccurred())

			m := g.NewMatcher()
			Expect(m.Feed("((abc))")).To(Equal(7))
			Expect(m.Complete()).To(BeTrue())
		})
	})

	Context("with the answer-object grammar", func() {
		var g *grammar.Grammar

		BeforeEach(func() {
			var err error
			g, err = grammar.Compile(answerGrammar)
			Expect(err).NotTo(HaveOccurred())
		})

		It("accepts a well-formed object", func() {
			m := g.NewMatcher()
			input := `{"answer": "forty-two"}`
			Expect(m.Feed(input)).To(Equal(len(input)))
			Expect(m.Complete()).To(BeTrue())
		})

		It("rejects a wrong key mid-stream", func() {
			m := g.NewMatcher()
			accepted := m.Feed(`{"question": "x"}`)
			Expect(accepted).To(BeNumerically("<", len(`{"question": "x"}`)))
			Expect(m.Viable()).To(BeFalse())
		})

		It("handles escapes inside the string value", func() {
			m := g.NewMatcher()
			input := `{"answer": "line\none"}`
			Expect(m.Feed(input)).To(Equal(len(input)))
			Expect(m.Complete()).To(BeTrue())
		})

		It("is incremental across arbitrary chunk boundaries", func() {
			m := g.NewMatcher()
			input := `{"answer": "ok"}`
			for i := 0; i < len(input); i++ {
				Expect(m.Feed(input[i : i+1])).To(Equal(1))
			}
			Expect(m.Complete()).To(BeTrue())
		})
	})

	Context("with a negated class", func() {
		It("excludes the listed bytes", func() {
			g, err := grammar.Compile(`root ::= [^xyz]+`)
			Expect(err).NotTo(HaveOccurred())

			m := g.NewMatcher()
			Expect(m.Feed("abc")).To(Equal(3))
			Expect(m.Complete()).To(BeTrue())

			m = g.NewMatcher()
			Expect(m.Feed("ax")).To(Equal(1))
			Expect(m.Viable()).To(BeFalse())
		})
	})
})
