package builtin_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/loomcomputeco/loom/pkg/agent"
	"github.com/loomcomputeco/loom/pkg/agent/builtin"
	"github.com/loomcomputeco/loom/pkg/grammar"
)

var _ = Describe("Builtin agents", func() {
	It("compile cleanly into runtime agents", func() {
		for _, cfg := range []agent.Config{builtin.Chat(), builtin.MemoryExtractor(), builtin.Summarizer()} {
			_, err := agent.New(cfg)
			Expect(err).NotTo(HaveOccurred(), "agent %s", cfg.Name)
		}
	})

	It("marks only the chat agent as persistent", func() {
		Expect(builtin.Chat().SaveConversations).To(BeTrue())
		Expect(builtin.MemoryExtractor().SaveConversations).To(BeFalse())
		Expect(builtin.Summarizer().SaveConversations).To(BeFalse())
	})

	It("enables memory retrieval only for chat", func() {
		Expect(builtin.Chat().Memory.Enabled).To(BeTrue())
		Expect(builtin.MemoryExtractor().Memory.Enabled).To(BeFalse())
		Expect(builtin.Summarizer().Memory.Enabled).To(BeFalse())
	})
})

var _ = Describe("JSONObjectGrammar", func() {
	var g *grammar.Grammar

	BeforeEach(func() {
		var err error
		g, err = grammar.Compile(builtin.JSONObjectGrammar)
		Expect(err).NotTo(HaveOccurred())
	})

	match := func(input string) bool {
		m := g.NewMatcher()
		return m.Feed(input) == len(input) && m.Complete()
	}

	It("accepts a realistic extractor payload", func() {
		payload := `{
  "importance": 7,
  "summary": "User introduced themselves.",
  "events": [{"role": "user", "text": "The user's name is Alice.", "importance": 8, "keywords": ["Alice"]}],
  "entities": [{"name": "Alice", "type": "person"}, {"name": "Rust", "type": "technology"}],
  "relations": [{"source": "Alice", "label": "likes", "target": "Rust", "weight": 0.8}],
  "profile": [{"key": "favorite_language", "value": "Rust", "importance": 7}]
}`
		Expect(match(payload)).To(BeTrue())
	})

	It("accepts an empty object", func() {
		Expect(match(`{}`)).To(BeTrue())
	})

	It("accepts nested arrays and escaped strings", func() {
		Expect(match(`{"a": [1, -2.5, "x\ny", {"b": []}], "c": null}`)).To(BeTrue())
	})

	It("rejects bare arrays", func() {
		m := g.NewMatcher()
		m.Feed(`[1, 2]`)
		Expect(m.Viable()).To(BeFalse())
	})

	It("rejects trailing garbage after the object", func() {
		m := g.NewMatcher()
		input := `{} extra`
		accepted := m.Feed(input)
		Expect(accepted < len(input) || !m.Complete()).To(BeTrue())
	})
})
