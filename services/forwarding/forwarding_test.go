package forwarding_test

import (
	"context"
	"net"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/nvaistore-labs/rpcflow/internal/grpctransport"
	"github.com/nvaistore-labs/rpcflow/pkg/dispatch"
	"github.com/nvaistore-labs/rpcflow/pkg/registry"
	"github.com/nvaistore-labs/rpcflow/pkg/router"
	"github.com/nvaistore-labs/rpcflow/pkg/rpcclient"
	"github.com/nvaistore-labs/rpcflow/pkg/slot"
	"github.com/nvaistore-labs/rpcflow/services/forwarding"
	"github.com/nvaistore-labs/rpcflow/services/ping"
)

func listenAndServe(reg *registry.Registry) (lis *bufconn.Listener, cleanup func()) {
	lis = bufconn.Listen(1024 * 1024)
	alloc := &grpctransport.Allocator{}
	opts, queues, err := alloc.Options(reg, 2)
	Expect(err).NotTo(HaveOccurred())
	srv := grpc.NewServer(opts...)
	pool := dispatch.NewPool(queues)
	pool.Start()
	go srv.Serve(lis)
	return lis, func() {
		srv.Stop()
		pool.Stop()
	}
}

func bufconnDialer(lis *bufconn.Listener) func(context.Context, string) (net.Conn, error) {
	return func(context.Context, string) (net.Conn, error) { return lis.Dial() }
}

var _ = Describe("forwarding.Service", func() {
	It("forwards a unary call end to end through a real Router", func() {
		downstreamReg := registry.New()
		Expect(downstreamReg.AddService(ping.Service{})).To(Succeed())
		downstreamLis, downstreamCleanup := listenAndServe(downstreamReg)
		defer downstreamCleanup()

		stub := rpcclient.New("bufnet-downstream", grpc.WithContextDialer(bufconnDialer(downstreamLis)), grpc.WithBlock())
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		Expect(stub.Init(ctx)).To(Succeed())

		r := router.New(stub, 2*time.Second)

		upstreamReg := registry.New()
		Expect(upstreamReg.AddService(forwarding.Service{
			ServiceName: "ping",
			Router:      r,
			Methods:     []forwarding.MethodSpec{{Method: "Ping", Shape: slot.Unary}},
		})).To(Succeed())
		upstreamLis, upstreamCleanup := listenAndServe(upstreamReg)
		defer upstreamCleanup()

		clientCtx, clientCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer clientCancel()
		cc, err := grpc.DialContext(clientCtx, "bufnet-upstream",
			grpc.WithContextDialer(bufconnDialer(upstreamLis)),
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithBlock())
		Expect(err).NotTo(HaveOccurred())
		defer cc.Close()

		req := &grpctransport.RawMessage{}
		resp := &grpctransport.RawMessage{}
		Expect(cc.Invoke(clientCtx, "/ping/Ping", req, resp)).To(Succeed())
		Expect(string(resp.Data)).To(ContainSubstring("Pong"))
	})

	It("refuses to register a client-stream forwarding binding", func() {
		reg := registry.New()
		r := router.New(rpcclient.New("unused"), time.Second)
		err := reg.AddService(forwarding.Service{
			ServiceName: "x",
			Router:      r,
			Methods:     []forwarding.MethodSpec{{Method: "Sum", Shape: slot.ClientStream}},
		})
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("not implemented"))
	})
})
