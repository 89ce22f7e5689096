package fault_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/loomcomputeco/loom/pkg/fault"
)

var _ = Describe("Error", func() {
	It("carries its kind through wrapping", func() {
		cause := errors.New("disk full")
		err := fault.Wrap(fault.KindStoreFailed, cause, "inserting event")

		Expect(fault.KindOf(err)).To(Equal(fault.KindStoreFailed))
		Expect(errors.Is(err, cause)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("store_failed"))
		Expect(err.Error()).To(ContainSubstring("disk full"))
	})

	It("matches same-kind errors with errors.Is", func() {
		a := fault.New(fault.KindOverloaded, "queue full")
		b := fault.New(fault.KindOverloaded, "different message")
		Expect(errors.Is(a, b)).To(BeTrue())
	})

	It("extracts the kind through fmt wrapping", func() {
		err := fmt.Errorf("outer: %w", fault.New(fault.KindTimedOut, "deadline"))
		Expect(fault.KindOf(err)).To(Equal(fault.KindTimedOut))
	})

	It("classifies transient kinds as retryable", func() {
		Expect(fault.Retryable(fault.New(fault.KindModelFailed, "x"))).To(BeTrue())
		Expect(fault.Retryable(fault.New(fault.KindEmbeddingFailed, "x"))).To(BeTrue())
		Expect(fault.Retryable(fault.New(fault.KindStoreFailed, "x"))).To(BeTrue())
		Expect(fault.Retryable(fault.New(fault.KindUnknownAgent, "x"))).To(BeFalse())
		Expect(fault.Retryable(fault.New(fault.KindCorruptEmbedding, "x"))).To(BeFalse())
		Expect(fault.Retryable(fault.New(fault.KindCancelled, "x"))).To(BeFalse())
	})
})

var _ = Describe("Handler", func() {
	newHandler := func(threshold int) *fault.Handler {
		return fault.NewHandler(fault.HandlerConfig{
			MaxRetries:        3,
			RetryDelay:        time.Millisecond,
			BackoffMultiplier: 2.0,
			MaxRetryDelay:     10 * time.Millisecond,
			BreakerThreshold:  threshold,
			BreakerCooldown:   25 * time.Millisecond,
		}, nil)
	}

	Describe("Execute", func() {
		It("retries transient failures until success", func() {
			h := newHandler(0)
			calls := 0
			err := h.Execute(context.Background(), "op", func(context.Context) error {
				calls++
				if calls < 3 {
					return fault.New(fault.KindModelFailed, "flaky")
				}
				return nil
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(calls).To(Equal(3))
		})

		It("gives up after the retry budget", func() {
			h := newHandler(0)
			calls := 0
			err := h.Execute(context.Background(), "op", func(context.Context) error {
				calls++
				return fault.New(fault.KindModelFailed, "always down")
			})
			Expect(err).To(HaveOccurred())
			Expect(calls).To(Equal(4)) // first attempt + 3 retries
		})

		It("does not retry configuration errors", func() {
			h := newHandler(0)
			calls := 0
			err := h.Execute(context.Background(), "op", func(context.Context) error {
				calls++
				return fault.New(fault.KindUnknownAgent, "nope")
			})
			Expect(err).To(HaveOccurred())
			Expect(calls).To(Equal(1))
		})

		It("stops retrying when the context is cancelled", func() {
			h := newHandler(0)
			ctx, cancel := context.WithCancel(context.Background())
			calls := 0
			err := h.Execute(ctx, "op", func(context.Context) error {
				calls++
				cancel()
				return fault.New(fault.KindModelFailed, "flaky")
			})
			Expect(err).To(HaveOccurred())
			Expect(fault.KindOf(err)).To(Equal(fault.KindCancelled))
			Expect(calls).To(Equal(1))
		})
	})

	Describe("circuit breaker", func() {
		It("trips after the failure threshold and short-circuits with Overloaded", func() {
			h := newHandler(3)
			for i := 0; i < 3; i++ {
				Expect(h.Allow()).To(Succeed())
				h.Record(fault.New(fault.KindModelFailed, "down"))
			}

			err := h.Allow()
			Expect(err).To(HaveOccurred())
			Expect(fault.KindOf(err)).To(Equal(fault.KindOverloaded))
		})

		It("admits a probe after the cooldown and closes on success", func() {
			h := newHandler(2)
			h.Record(fault.New(fault.KindModelFailed, "down"))
			h.Record(fault.New(fault.KindModelFailed, "down"))
			Expect(h.Allow()).NotTo(Succeed())

			Eventually(h.Allow, "200ms", "5ms").Should(Succeed())

			h.Record(nil)
			Expect(h.Allow()).To(Succeed())
		})

		It("ignores non-model failures", func() {
			h := newHandler(1)
			h.Record(fault.New(fault.KindStoreFailed, "disk"))
			Expect(h.Allow()).To(Succeed())
		})
	})
})
