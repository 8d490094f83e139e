package grpctransport

import (
	"context"
	"strings"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"

	"github.com/nvaistore-labs/rpcflow/pkg/cqueue"
	"github.com/nvaistore-labs/rpcflow/pkg/registry"
	"github.com/nvaistore-labs/rpcflow/pkg/rpcctx"
	"github.com/nvaistore-labs/rpcflow/pkg/slot"
	"github.com/nvaistore-labs/rpcflow/pkg/status"
)

// Allocator implements server.SlotAllocator: it registers the single
// catch-all stream handler and hands back the completion queues that
// server.Core's dispatch.Pool drains. Unlike the pre-armed-acceptor model
// a native completion-queue transport uses, grpc-go invokes our handler
// fresh for every incoming call; Allocator bridges that by giving each
// call its own slot.Slot, fanned out round-robin across a fixed pool of
// shared queues so the same dispatch.Worker goroutines that would drain
// pre-armed acceptors in the native model end up draining these
// per-call slots instead.
type Allocator struct {
	next uint64

	// Interceptors run, in order, once per incoming call, right after
	// its method/peer/metadata are resolved and before the call is
	// handed to a worker queue. Grounded on
	// examples/server_complete/interceptor.hpp's Intercept hook at
	// POST_RECV_INITIAL_METADATA: the original always calls Proceed()
	// afterwards regardless of what the hook observed, so Interceptor
	// likewise cannot reject or alter the call — it only observes.
	Interceptors []Interceptor
}

// Interceptor observes one call's method name, peer string and client
// metadata before dispatch.
type Interceptor func(method, peer string, md rpcctx.Metadata)

// Options returns the single grpc.UnknownServiceHandler ServerOption that
// routes every call through this allocator's callHandler, plus `workers`
// fresh completion queues for server.Core to start a dispatch.Pool on.
// Must be called, and its result passed to grpc.NewServer, before any
// call arrives — grpc-go only accepts UnknownServiceHandler at
// construction time.
func (a *Allocator) Options(reg *registry.Registry, workers int) ([]grpc.ServerOption, []*cqueue.Queue, error) {
	if workers <= 0 {
		workers = 1
	}
	queues := make([]*cqueue.Queue, workers)
	for i := range queues {
		queues[i] = cqueue.New()
	}

	handler := &callHandler{reg: reg, queues: queues, alloc: a}
	return []grpc.ServerOption{grpc.UnknownServiceHandler(handler.handle)}, queues, nil
}

type callHandler struct {
	reg    *registry.Registry
	queues []*cqueue.Queue
	alloc  *Allocator
}

func (h *callHandler) pickQueue() *cqueue.Queue {
	n := atomic.AddUint64(&h.alloc.next, 1)
	return h.queues[int(n)%len(h.queues)]
}

// handle is the single grpc.StreamHandler registered for every method
// this server exposes. It resolves the binding from the incoming call's
// full method name, builds a slot.Conn over the live stream, and blocks
// until the slot's state machine reaches Done.
func (h *callHandler) handle(srv any, stream grpc.ServerStream) error {
	fqn, ok := grpc.MethodFromServerStream(stream)
	if !ok {
		return grpcErr(status.New(status.Internal, "no method name on stream"))
	}
	fqn = strings.TrimPrefix(fqn, "/")

	binding, ok := h.reg.Lookup(fqn)
	if !ok {
		return grpcErr(status.New(status.Unimplemented, "unknown method "+fqn))
	}

	conn := &streamConn{
		stream:   stream,
		peer:     peerString(stream.Context()),
		metadata: incomingMetadata(stream.Context()),
	}
	if dl, hasDL := stream.Context().Deadline(); hasDL {
		conn.deadline, conn.hasDL = dl, true
	}

	for _, ic := range h.alloc.Interceptors {
		ic(fqn, conn.peer, conn.metadata)
	}

	q := h.pickQueue()
	done := make(chan struct{})

	s := slot.New(binding, conn, q, func() { close(done) })

	// Unary and server-stream shapes read their one request before the
	// state machine's first transition; client-stream reads lazily, one
	// message at a time, driven entirely by Advance.
	switch binding.Shape {
	case slot.Unary, slot.ServerStream:
		msg := &RawMessage{}
		if err := stream.RecvMsg(msg); err != nil {
			q.Post(s, false)
		} else {
			conn.lastRead = &slot.Envelope{Body: msg.Data}
			q.Post(s, true)
		}
	case slot.ClientStream:
		q.Post(s, true)
	}

	<-done
	return grpcErr(conn.finalStatus)
}

func peerString(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return "unix:unknown"
	}
	return formatPeer(p.Addr)
}

func incomingMetadata(ctx context.Context) rpcctx.Metadata {
	md, ok := metadata.FromIncomingContext(ctx)
	out := rpcctx.Metadata{}
	if !ok {
		return out
	}
	for k, vs := range md {
		for _, v := range vs {
			out.Add(k, v)
		}
	}
	return out
}
