package hashemb_test

import (
	"context"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/loomcomputeco/loom/pkg/embeddings"
	"github.com/loomcomputeco/loom/pkg/embeddings/hashemb"
)

var _ = Describe("Embedder", func() {
	var e *hashemb.Embedder
	ctx := context.Background()

	BeforeEach(func() {
		e = hashemb.New(64)
	})

	It("advertises its dimension", func() {
		Expect(e.Dim()).To(Equal(64))
		Expect(hashemb.New(0).Dim()).To(Equal(hashemb.DefaultDimensions))
	})

	It("produces unit-length vectors", func() {
		vec, err := e.Embed(ctx, "the quick brown fox")
		Expect(err).NotTo(HaveOccurred())
		Expect(vec).To(HaveLen(64))

		var sum float64
		for _, x := range vec {
			sum += float64(x) * float64(x)
		}
		Expect(math.Sqrt(sum)).To(BeNumerically("~", 1.0, 1e-5))
	})

	It("is deterministic for equal inputs", func() {
		a, err := e.Embed(ctx, "hello world")
		Expect(err).NotTo(HaveOccurred())
		b, err := e.Embed(ctx, "hello world")
		Expect(err).NotTo(HaveOccurred())
		Expect(a).To(Equal(b))
	})

	It("returns the zero vector for empty text", func() {
		vec, err := e.Embed(ctx, "")
		Expect(err).NotTo(HaveOccurred())
		for _, x := range vec {
			Expect(x).To(BeZero())
		}
	})

	It("scores overlapping texts above disjoint ones", func() {
		base, _ := e.Embed(ctx, "my name is alice and i like rust")
		near, _ := e.Embed(ctx, "what is my name alice")
		far, _ := e.Embed(ctx, "kubernetes cluster networking latency")

		Expect(embeddings.Cosine(base, near)).To(BeNumerically(">", embeddings.Cosine(base, far)))
	})

	It("embeds batches all-or-nothing with one vector per input", func() {
		vecs, err := e.EmbedBatch(ctx, []string{"a", "b", "c"})
		Expect(err).NotTo(HaveOccurred())
		Expect(vecs).To(HaveLen(3))
	})
})

var _ = Describe("Cosine", func() {
	It("is 1 for identical directions and 0 for orthogonal", func() {
		a := []float32{1, 0}
		b := []float32{1, 0}
		c := []float32{0, 1}
		Expect(embeddings.Cosine(a, b)).To(BeNumerically("~", 1.0, 1e-6))
		Expect(embeddings.Cosine(a, c)).To(BeNumerically("~", 0.0, 1e-6))
	})

	It("is 0 for zero vectors and mismatched dimensions", func() {
		Expect(embeddings.Cosine([]float32{0, 0}, []float32{1, 0})).To(BeZero())
		Expect(embeddings.Cosine([]float32{1}, []float32{1, 0})).To(BeZero())
	})
})
