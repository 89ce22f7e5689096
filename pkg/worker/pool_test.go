package worker

import (
	"context"
	"sync"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Pool", func() {
	It("runs every job when the queue has capacity", func() {
		pool := NewPool(Config{NumWorkers: 2, QueueSize: 16})
		var ran atomic.Int64

		for i := 0; i < 10; i++ {
			ok := pool.Enqueue(Job{Name: "count", Run: func(context.Context) {
				ran.Add(1)
			}})
			Expect(ok).To(BeTrue())
		}

		pool.Close()
		Expect(ran.Load()).To(Equal(int64(10)))
	})

	It("drops the oldest queued job on overflow", func() {
		// One worker blocked on the gate keeps the queue from draining
		// while overflow jobs arrive.
		gate := make(chan struct{})
		pool := NewPool(Config{NumWorkers: 1, QueueSize: 1})

		var mu sync.Mutex
		var ran []string

		record := func(name string) Job {
			return Job{Name: name, Run: func(context.Context) {
				mu.Lock()
				ran = append(ran, name)
				mu.Unlock()
			}}
		}

		blockStarted := make(chan struct{})
		pool.Enqueue(Job{Name: "block", Run: func(context.Context) {
			close(blockStarted)
			<-gate
		}})
		<-blockStarted

		pool.Enqueue(record("first"))  // fills the queue
		pool.Enqueue(record("second")) // drops "first"

		close(gate)
		pool.Close()

		mu.Lock()
		defer mu.Unlock()
		Expect(ran).To(Equal([]string{"second"}))
	})

	It("refuses jobs after Close", func() {
		pool := NewPool(Config{NumWorkers: 1, QueueSize: 4})
		pool.Close()
		Expect(pool.Enqueue(Job{Name: "late", Run: func(context.Context) {}})).To(BeFalse())
	})

	It("cancels the job context on Shutdown", func() {
		pool := NewPool(Config{NumWorkers: 1, QueueSize: 4})
		started := make(chan struct{})
		cancelled := make(chan struct{})

		pool.Enqueue(Job{Name: "long", Run: func(ctx context.Context) {
			close(started)
			<-ctx.Done()
			close(cancelled)
		}})

		<-started
		pool.Shutdown()
		Eventually(cancelled).Should(BeClosed())
	})
})
