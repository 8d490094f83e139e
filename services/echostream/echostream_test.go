package echostream_test

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/nvaistore-labs/rpcflow/pkg/registry"
	"github.com/nvaistore-labs/rpcflow/pkg/rpcctx"
	"github.com/nvaistore-labs/rpcflow/pkg/slot"
	"github.com/nvaistore-labs/rpcflow/pkg/status"
	"github.com/nvaistore-labs/rpcflow/proto/echo"
	"github.com/nvaistore-labs/rpcflow/services/echostream"
)

// driveServerStream re-enters a ServerStreamFn-shaped handler the way
// slot.Slot's state machine does: first call carries the request, every
// later call carries nil, stopping once HasMore is false.
func driveServerStream(ctx *rpcctx.ServerStreamContext, first *slot.Envelope, fn slot.ServerStreamProcessFn) []echo.EchoResponse {
	var got []echo.EchoResponse
	req := first
	for {
		resp := fn(ctx, req)
		req = nil
		if resp != nil {
			var out echo.EchoResponse
			Expect(echo.Unmarshal(resp, &out)).To(Succeed())
			got = append(got, out)
		}
		if !ctx.HasMore() {
			break
		}
	}
	return got
}

var _ = Describe("echostream.Service", func() {
	var binding *slot.Binding

	BeforeEach(func() {
		reg := registry.New()
		Expect(reg.AddService(echostream.Service{})).To(Succeed())
		var ok bool
		binding, ok = reg.Lookup("echostream/Stream")
		Expect(ok).To(BeTrue())
	})

	It("streams the requested count of numbered copies", func() {
		ctx := rpcctx.NewServerStreamContext("test-peer", rpcctx.Metadata{}, time.Time{}, false)
		req, _ := echo.Marshal(&echo.EchoRequest{Msg: "hi", Count: 3})
		got := driveServerStream(ctx, req, binding.ServerStreamFn)

		Expect(got).To(HaveLen(3))
		Expect(got[0]).To(Equal(echo.EchoResponse{Msg: "hi", Seq: 0}))
		Expect(got[1]).To(Equal(echo.EchoResponse{Msg: "hi", Seq: 1}))
		Expect(got[2]).To(Equal(echo.EchoResponse{Msg: "hi", Seq: 2}))
		Expect(ctx.Status().Code).To(Equal(status.OK))
	})

	It("streams nothing for a zero count", func() {
		ctx := rpcctx.NewServerStreamContext("test-peer", rpcctx.Metadata{}, time.Time{}, false)
		req, _ := echo.Marshal(&echo.EchoRequest{Msg: "hi", Count: 0})
		got := driveServerStream(ctx, req, binding.ServerStreamFn)

		Expect(got).To(BeEmpty())
		Expect(ctx.Status().Code).To(Equal(status.OK))
	})

	It("rejects a negative count", func() {
		ctx := rpcctx.NewServerStreamContext("test-peer", rpcctx.Metadata{}, time.Time{}, false)
		req, _ := echo.Marshal(&echo.EchoRequest{Msg: "hi", Count: -1})
		got := driveServerStream(ctx, req, binding.ServerStreamFn)

		Expect(got).To(BeEmpty())
		Expect(ctx.Status().Code).To(Equal(status.InvalidArgument))
	})

	It("releases iteration state on a framework cleanup re-entry", func() {
		ctx := rpcctx.NewServerStreamContext("test-peer", rpcctx.Metadata{}, time.Time{}, false)
		req, _ := echo.Marshal(&echo.EchoRequest{Msg: "hi", Count: 5})
		ctx.FrameworkSetStreamStatus(rpcctx.Error)
		resp := binding.ServerStreamFn(ctx, req)
		Expect(resp).To(BeNil())
		Expect(ctx.UserSlot()).To(BeNil())
	})
})
