package cqueue_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/nvaistore-labs/rpcflow/pkg/cqueue"
)

var _ = Describe("Queue", func() {
	It("delivers posted events in FIFO order", func() {
		q := cqueue.New()
		q.Post("tag-a", true)
		q.Post("tag-b", false)

		ctx := context.Background()
		ev, ok, closed := q.Wait(ctx)
		Expect(ok).To(BeTrue())
		Expect(closed).To(BeFalse())
		Expect(ev.Tag).To(Equal(cqueue.Tag("tag-a")))
		Expect(ev.Ok).To(BeTrue())

		ev, ok, closed = q.Wait(ctx)
		Expect(ok).To(BeTrue())
		Expect(ev.Tag).To(Equal(cqueue.Tag("tag-b")))
		Expect(ev.Ok).To(BeFalse())
	})

	It("times out without closing when nothing is posted", func() {
		q := cqueue.New()
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, ok, closed := q.Wait(ctx)
		Expect(ok).To(BeFalse())
		Expect(closed).To(BeFalse())
	})

	It("drains remaining events then reports closed", func() {
		q := cqueue.New()
		q.Post("tag-a", true)
		q.Shutdown()

		ctx := context.Background()
		ev, ok, closed := q.Wait(ctx)
		Expect(ok).To(BeTrue())
		Expect(closed).To(BeFalse())
		Expect(ev.Tag).To(Equal(cqueue.Tag("tag-a")))

		_, ok, closed = q.Wait(ctx)
		Expect(ok).To(BeFalse())
		Expect(closed).To(BeTrue())
	})

	It("unblocks a waiting consumer when posted from another goroutine", func() {
		q := cqueue.New()
		go func() {
			time.Sleep(20 * time.Millisecond)
			q.Post("late", true)
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		ev, ok, _ := q.Wait(ctx)
		Expect(ok).To(BeTrue())
		Expect(ev.Tag).To(Equal(cqueue.Tag("late")))
	})
})
