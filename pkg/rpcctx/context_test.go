package rpcctx_test

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/nvaistore-labs/rpcflow/pkg/rpcctx"
	"github.com/nvaistore-labs/rpcflow/pkg/status"
)

var _ = Describe("UnaryContext", func() {
	It("defaults to OK and ignores SetStatus after Finish", func() {
		var md rpcctx.Metadata
		md.Add("sessionid", "42")
		ctx := rpcctx.NewUnaryContext("ipv4:1.2.3.4:5555", md, time.Time{}, false)
		Expect(ctx.Status().OK()).To(BeTrue())

		ctx.SetStatus(status.Internal, "boom")
		Expect(ctx.Status().Code).To(Equal(status.Internal))

		ctx.SetStatus(status.OK, "ignored")
		Expect(ctx.Status().OK()).To(BeTrue())
		Expect(ctx.Status().Message).To(BeEmpty())

		ctx.Finish()
		ctx.SetStatus(status.DataLoss, "too late")
		Expect(ctx.Status().OK()).To(BeTrue(), "status set after Finish must be ignored")
	})

	It("exposes read-only client metadata and append-only trailing metadata", func() {
		var md rpcctx.Metadata
		md.Add("requestid", "7")
		ctx := rpcctx.NewUnaryContext("unix:/tmp/s", md, time.Time{}, false)

		v, ok := ctx.GetClientMetadata("requestid")
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal("7"))

		ctx.AddTrailingMetadata("x-served-by", "worker-1")
		ctx.AddTrailingMetadata("x-served-by", "worker-2")
		Expect(ctx.TrailingMetadata().Values("x-served-by")).To(Equal([]string{"worker-1", "worker-2"}))
	})
})

var _ = Describe("ServerStreamContext", func() {
	It("starts STREAMING and defers streamStatus writes to the framework", func() {
		ctx := rpcctx.NewServerStreamContext("ipv4:127.0.0.1:1", rpcctx.Metadata{}, time.Time{}, false)
		Expect(ctx.StreamStatus()).To(Equal(rpcctx.Streaming))

		ctx.SetHasMore(true)
		Expect(ctx.HasMore()).To(BeTrue())

		ctx.FrameworkSetStreamStatus(rpcctx.Success)
		Expect(ctx.StreamStatus()).To(Equal(rpcctx.Success))
	})

	It("round-trips an owned user slot across re-entries", func() {
		ctx := rpcctx.NewServerStreamContext("ipv4:127.0.0.1:1", rpcctx.Metadata{}, time.Time{}, false)
		Expect(ctx.UserSlot()).To(BeNil())

		type cursor struct{ next int }
		ctx.SetUserSlot(&cursor{next: 1})
		c, ok := ctx.UserSlot().(*cursor)
		Expect(ok).To(BeTrue())
		Expect(c.next).To(Equal(1))
		c.next++
		Expect(ctx.UserSlot().(*cursor).next).To(Equal(2))
	})
})

var _ = Describe("ClientStreamContext", func() {
	It("starts with hasMore true and flips false only via the framework setter", func() {
		ctx := rpcctx.NewClientStreamContext("ipv6:[::1]:1", rpcctx.Metadata{}, time.Time{}, false)
		Expect(ctx.HasMore()).To(BeTrue())
		ctx.FrameworkSetHasMore(false)
		Expect(ctx.HasMore()).To(BeFalse())
	})
})
