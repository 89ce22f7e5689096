package memory_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/loomcomputeco/loom/pkg/memory"
)

var _ = Describe("ParseExtraction", func() {
	It("decodes a full extractor payload", func() {
		raw := `{
			"importance": 7,
			"summary": "intro",
			"events": [{"role": "user", "text": "name is Alice", "importance": 8, "keywords": ["Alice"]}],
			"entities": [{"name": "Alice", "type": "person"}],
			"relations": [{"source": "Alice", "label": "likes", "target": "Rust", "weight": 0.5}],
			"profile": [{"key": "lang", "value": "Rust", "importance": 6}]
		}`
		ext, err := memory.ParseExtraction(raw)
		Expect(err).NotTo(HaveOccurred())
		Expect(ext.Importance).To(Equal(7))
		Expect(ext.Events).To(HaveLen(1))
		Expect(ext.Events[0].Keywords).To(Equal([]string{"Alice"}))
		Expect(ext.Entities[0].Name).To(Equal("Alice"))
		Expect(ext.Relations[0].Label).To(Equal("likes"))
		Expect(ext.Profile[0].Key).To(Equal("lang"))
	})

	It("tolerates a fenced block and surrounding prose", func() {
		raw := "Here you go:\n```json\n{\"importance\": 4, \"summary\": \"s\"}\n```\ndone"
		ext, err := memory.ParseExtraction(raw)
		Expect(err).NotTo(HaveOccurred())
		Expect(ext.Importance).To(Equal(4))
	})

	It("ignores braces inside string values while scanning", func() {
		raw := `{"summary": "uses {braces} inside", "importance": 5}`
		ext, err := memory.ParseExtraction(raw)
		Expect(err).NotTo(HaveOccurred())
		Expect(ext.Summary).To(Equal("uses {braces} inside"))
	})

	It("clamps importance into [1, 10]", func() {
		ext, err := memory.ParseExtraction(`{"importance": 0}`)
		Expect(err).NotTo(HaveOccurred())
		Expect(ext.Importance).To(Equal(1))

		ext, err = memory.ParseExtraction(`{"importance": 42}`)
		Expect(err).NotTo(HaveOccurred())
		Expect(ext.Importance).To(Equal(10))
	})

	It("fails when no object is present", func() {
		_, err := memory.ParseExtraction("no json here")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("ParseChunkSummary", func() {
	It("decodes a summarizer payload", func() {
		cs, err := memory.ParseChunkSummary(`{"title": "intro", "summary": "they met", "importance": 6}`)
		Expect(err).NotTo(HaveOccurred())
		Expect(cs.Title).To(Equal("intro"))
		Expect(cs.Summary).To(Equal("they met"))
		Expect(cs.Importance).To(Equal(6))
	})

	It("rejects an empty summary", func() {
		_, err := memory.ParseChunkSummary(`{"title": "x", "summary": ""}`)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("StripThink", func() {
	It("keeps only content after the final closing tag", func() {
		Expect(memory.StripThink("<think>hmm</think>answer")).To(Equal("answer"))
		Expect(memory.StripThink("<think>a</think>mid<think>b</think>final")).To(Equal("final"))
	})

	It("drops everything after an unclosed opening tag", func() {
		Expect(memory.StripThink("prefix<think>never closed")).To(Equal("prefix"))
	})

	It("passes plain text through trimmed", func() {
		Expect(memory.StripThink("  plain  ")).To(Equal("plain"))
	})
})
