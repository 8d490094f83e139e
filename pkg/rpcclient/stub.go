// Package rpcclient implements Stub, a thin wrapper around a
// grpc.ClientConn that calls unary, server-stream and client-stream
// methods against a rpcflow server using the same slot.Envelope payload
// shape the server side deals in.
//
// Grounded on original_source/async_server/grpcClient.hpp's GrpcClient:
// one stub per downstream address, a single Init/Reset pair guarding the
// underlying connection, and pull/push callback-driven stream helpers
// instead of grpc-go's raw ClientStream interface. The max-message-size
// override (INT_MAX on both send and receive) carries over unchanged, as
// does the PreFork/PostForkParent reset-and-reinit sequence grpcFork
// drives around a fork() call.
package rpcclient

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/nvaistore-labs/rpcflow/internal/grpctransport"
	"github.com/nvaistore-labs/rpcflow/pkg/rpcctx"
	"github.com/nvaistore-labs/rpcflow/pkg/slot"
	"github.com/nvaistore-labs/rpcflow/pkg/status"
)

// RespFn is called once per message read from a server-stream call. A
// false return cancels the call, mirroring RespCallbackFunctor's
// operator() driving grpc::ClientContext::TryCancel in the original.
type RespFn func(resp *slot.Envelope) bool

// ReqFn supplies the next message to write on a client-stream call. It
// returns (nil, false) once there is nothing left to send, mirroring
// ReqCallbackFunctor's operator() returning false to end the loop.
type ReqFn func() (req *slot.Envelope, more bool)

// Stub is one connection to one downstream address. It is safe for
// concurrent use: every Call/CallStream/CallClientStream may run from a
// different goroutine against the same Stub, matching the *MT methods
// in the original (the single-threaded Call/CallStream/CallClientStream
// convenience wrappers that stash the error on the receiver do not carry
// over, since Go callers already get an explicit error return).
type Stub struct {
	addr     string
	dialOpts []grpc.DialOption

	mu sync.Mutex
	cc *grpc.ClientConn
}

// New builds a Stub for addr, not yet connected; call Init before using
// it. extraOpts are appended after the stub's own defaults (insecure
// transport credentials and INT_MAX-equivalent message size limits), so
// callers can override either by passing their own grpc.WithTransportCredentials
// or grpc.WithDefaultCallOptions.
func New(addr string, extraOpts ...grpc.DialOption) *Stub {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallSendMsgSize(math.MaxInt32),
			grpc.MaxCallRecvMsgSize(math.MaxInt32),
		),
	}
	opts = append(opts, extraOpts...)
	return &Stub{addr: addr, dialOpts: opts}
}

// Init dials addr. Calling Init on an already-valid Stub replaces the
// existing connection.
func (s *Stub) Init(ctx context.Context) error {
	cc, err := grpc.DialContext(ctx, s.addr, s.dialOpts...)
	if err != nil {
		return status.Errorf(status.Unavailable, "rpcclient: dial %s: %v", s.addr, err)
	}
	s.mu.Lock()
	old := s.cc
	s.cc = cc
	s.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return nil
}

// Reset terminates the underlying connection, if any, and returns the
// Stub to its just-constructed state.
func (s *Stub) Reset() {
	s.mu.Lock()
	cc := s.cc
	s.cc = nil
	s.mu.Unlock()
	if cc != nil {
		_ = cc.Close()
	}
}

// IsValid reports whether Init has succeeded and Reset has not since
// been called.
func (s *Stub) IsValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cc != nil
}

// Addr returns the address this Stub dials.
func (s *Stub) Addr() string { return s.addr }

// PreFork tears down the live connection so a child process forked from
// this one does not inherit a half-shared grpc.ClientConn. Mirrors
// grpcFork's Reset() call before fork() in the original; the Go
// equivalent caller is a supervisor that spawns workers with
// syscall.ForkExec or os/exec rather than a raw POSIX fork, since a
// grpc.ClientConn's background goroutines do not survive fork() at all.
func (s *Stub) PreFork() { s.Reset() }

// PostForkParent re-establishes the connection in the parent process
// after spawning a worker. Mirrors grpcFork's InitFromAddressUri call
// after fork() in the original. The child process is not a continuation
// of this Stub: it must construct and Init its own Stub independently.
func (s *Stub) PostForkParent(ctx context.Context) error { return s.Init(ctx) }

func (s *Stub) conn() (*grpc.ClientConn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cc == nil {
		return nil, status.Errorf(status.Unavailable, "rpcclient: stub for %s is not initialized", s.addr)
	}
	return s.cc, nil
}

// wrapErr formats err the way the original's GrpcClient::SetError does:
// "<op>: addressUri='<addr>', err='<message or stringified status>'". The
// returned error still carries err's status.Code, so callers can recover
// it with status.FromError.
func (s *Stub) wrapErr(op string, err error) error {
	st := grpctransport.StatusFromError(err)
	return status.New(st.Code, fmt.Sprintf("%s: addressUri='%s', err='%s'", op, s.addr, st.String())).Err()
}

// Call makes one unary RPC against fqn ("service/method", no leading
// slash), attaching md as outgoing metadata.
func (s *Stub) Call(ctx context.Context, fqn string, req *slot.Envelope, md rpcctx.Metadata) (*slot.Envelope, error) {
	cc, err := s.conn()
	if err != nil {
		return nil, err
	}
	ctx = attachMetadata(ctx, md)

	in := &grpctransport.RawMessage{Data: req.Body}
	out := &grpctransport.RawMessage{}
	if err := cc.Invoke(ctx, "/"+fqn, in, out); err != nil {
		return nil, s.wrapErr("Failed to make unary call", err)
	}
	return &slot.Envelope{Body: out.Data}, nil
}

// CallStream makes one server-stream RPC: it sends req once, then
// invokes onResp for every response the server sends until the stream
// ends or onResp returns false. A false return cancels ctx, which
// grpc-go propagates to the server as a Cancelled status.
func (s *Stub) CallStream(ctx context.Context, fqn string, req *slot.Envelope, md rpcctx.Metadata, onResp RespFn) error {
	cc, err := s.conn()
	if err != nil {
		return err
	}
	ctx = attachMetadata(ctx, md)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	desc := &grpc.StreamDesc{ServerStreams: true}
	stream, err := cc.NewStream(ctx, desc, "/"+fqn)
	if err != nil {
		return s.wrapErr("Failed to make server-side stream call", err)
	}
	if err := stream.SendMsg(&grpctransport.RawMessage{Data: req.Body}); err != nil {
		return s.wrapErr("Failed to make server-side stream call", err)
	}

	for {
		msg := &grpctransport.RawMessage{}
		if err := stream.RecvMsg(msg); err != nil {
			if err == io.EOF {
				return nil
			}
			return s.wrapErr("Failed to make server-side stream call", err)
		}
		if !onResp(&slot.Envelope{Body: msg.Data}) {
			cancel()
		}
	}
}

// CallClientStream makes one client-stream RPC: it repeatedly calls next
// for the next request message, sending each one, until next reports
// more == false, then half-closes the stream and returns the server's
// single response.
func (s *Stub) CallClientStream(ctx context.Context, fqn string, md rpcctx.Metadata, next ReqFn) (*slot.Envelope, error) {
	cc, err := s.conn()
	if err != nil {
		return nil, err
	}
	ctx = attachMetadata(ctx, md)

	desc := &grpc.StreamDesc{ClientStreams: true}
	stream, err := cc.NewStream(ctx, desc, "/"+fqn)
	if err != nil {
		return nil, s.wrapErr("Failed to make client-side stream call", err)
	}

	for {
		req, more := next()
		if !more {
			break
		}
		if err := stream.SendMsg(&grpctransport.RawMessage{Data: req.Body}); err != nil {
			return nil, s.wrapErr("Failed to make client-side stream call", err)
		}
	}
	if err := stream.CloseSend(); err != nil {
		return nil, s.wrapErr("Failed to make client-side stream call", err)
	}

	out := &grpctransport.RawMessage{}
	if err := stream.RecvMsg(out); err != nil {
		return nil, s.wrapErr("Failed to make client-side stream call", err)
	}
	return &slot.Envelope{Body: out.Data}, nil
}

func attachMetadata(ctx context.Context, md rpcctx.Metadata) context.Context {
	if md.Len() == 0 {
		return ctx
	}
	pairs := make([]string, 0, md.Len()*2)
	for _, kv := range md.All() {
		pairs = append(pairs, kv.Key, kv.Value)
	}
	return metadata.AppendToOutgoingContext(ctx, pairs...)
}
