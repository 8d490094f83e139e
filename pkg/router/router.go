// Package router implements the forwarding layer that bridges an
// upstream request slot to a downstream ClientStub: it owns one
// rpcclient.Stub aimed at a downstream target and adapts each of the
// three call shapes to it.
//
// Grounded on ais/prxtxn.go (proxy-to-target transaction forwarding:
// gather upstream context, call downstream, translate the result back,
// reset the channel on failure) and ais/tgtcp.go (target-to-target
// control-plane forwarding) — both are "receive upstream, call
// downstream, translate the result" shapes; Router generalizes that
// shape instead of AIS's bucket-transaction specifics.
package router

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/nvaistore-labs/rpcflow/internal/grpctransport"
	"github.com/nvaistore-labs/rpcflow/pkg/asyncreader"
	"github.com/nvaistore-labs/rpcflow/pkg/rpcclient"
	"github.com/nvaistore-labs/rpcflow/pkg/rpcctx"
	"github.com/nvaistore-labs/rpcflow/pkg/slot"
	"github.com/nvaistore-labs/rpcflow/pkg/status"
	"github.com/nvaistore-labs/rpcflow/pkg/xlog"
)

// BridgeMode selects how Router.ForwardServerStream couples the upstream
// and downstream streams.
type BridgeMode int

const (
	// BridgeSync reads downstream one message per upstream handler
	// re-entry, on the upstream worker itself. Minimizes threads, blocks
	// the worker on the downstream read.
	BridgeSync BridgeMode = iota
	// BridgeAsync runs an asyncreader.Reader producing into a bounded
	// pipe on its own goroutine, decoupling the upstream worker from
	// downstream latency at the cost of one goroutine per active call.
	BridgeAsync
)

// CallHooks are run around every forwarded call (unary or per-stream),
// independent of the shape; onCallBegin's return value is threaded
// through to the matching onCallEnd. Either may be nil.
type CallHooks struct {
	OnCallBegin func(peer string) any
	OnCallEnd   func(peer string, userParam any)
}

// Router forwards calls from one upstream service to one downstream
// ClientStub.
type Router struct {
	stub         *rpcclient.Stub
	unaryTimeout time.Duration
	bridgeMode   BridgeMode
	pipeCapacity int
	hooks        CallHooks
}

// Option configures a Router at construction time.
type Option func(*Router)

// WithBridgeMode overrides the default BridgeSync mode for
// ForwardServerStream.
func WithBridgeMode(m BridgeMode) Option { return func(r *Router) { r.bridgeMode = m } }

// WithPipeCapacity overrides asyncreader.DefaultCapacity for BridgeAsync.
func WithPipeCapacity(n int) Option { return func(r *Router) { r.pipeCapacity = n } }

// WithCallHooks installs onCallBegin/onCallEnd hooks run around every
// forwarded call.
func WithCallHooks(h CallHooks) Option { return func(r *Router) { r.hooks = h } }

// New builds a Router forwarding through stub.
func New(stub *rpcclient.Stub, unaryTimeout time.Duration, opts ...Option) *Router {
	r := &Router{
		stub:         stub,
		unaryTimeout: unaryTimeout,
		bridgeMode:   BridgeSync,
		pipeCapacity: asyncreader.DefaultCapacity,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// callContext is the narrow slice of rpcctx.UnaryContext/ServerStreamContext
// Router needs: both satisfy it via their shared base.
type callContext interface {
	GetPeer() string
	ClientMetadata() rpcctx.Metadata
	Deadline() (time.Time, bool)
}

// effectiveTimeout clamps r.unaryTimeout to the upstream call's own
// remaining deadline, failing fast if that deadline has already passed.
func (r *Router) effectiveTimeout(ctx callContext) (time.Duration, status.Status) {
	timeout := r.unaryTimeout
	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		return timeout, status.Status{Code: status.OK}
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return 0, status.New(status.DeadlineExceeded, "upstream deadline already expired")
	}
	if remaining < timeout {
		timeout = remaining
	}
	return timeout, status.Status{Code: status.OK}
}

func (r *Router) runHooks(peer string) func() {
	var userParam any
	if r.hooks.OnCallBegin != nil {
		userParam = r.hooks.OnCallBegin(peer)
	}
	return func() {
		if r.hooks.OnCallEnd != nil {
			r.hooks.OnCallEnd(peer, userParam)
		}
	}
}

// resetDownstream recycles the stub's connection after a downstream
// failure, mirroring the original's "reset the downstream channel" step
// on any non-OK unary response.
func (r *Router) resetDownstream() {
	r.stub.Reset()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.stub.Init(ctx); err != nil {
		xlog.Warningf("router: failed to reinit downstream stub after reset: %v", err)
	}
}

// ForwardUnary forwards one unary call downstream to fqn. On success it
// returns the downstream response; on failure it calls ctx.SetStatus
// with INTERNAL (or DEADLINE_EXCEEDED if the upstream deadline had
// already expired) and returns nil.
func (r *Router) ForwardUnary(ctx *slot.UnaryHandle, fqn string, req *slot.Envelope) *slot.Envelope {
	timeout, st := r.effectiveTimeout(ctx)
	if !st.OK() {
		ctx.SetStatus(st.Code, st.Message)
		return nil
	}

	done := r.runHooks(ctx.GetPeer())
	defer done()

	callCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	resp, err := r.stub.Call(callCtx, fqn, req, ctx.ClientMetadata())
	if err != nil {
		downstream := status.FromError(err)
		r.resetDownstream()
		ctx.SetStatus(status.Internal, fmt.Sprintf("forward %s: downstream %s", fqn, downstream))
		return nil
	}
	return resp
}

// asyncBridgeState is stashed in ctx.UserSlot() across re-entries of a
// BridgeAsync-forwarded server-stream call.
type asyncBridgeState struct {
	reader *asyncreader.Reader
	done   func()
}

// syncBridgeState is the BridgeSync equivalent.
type syncBridgeState struct {
	cursor *rpcclient.ServerStreamCursor
	done   func()
}

// ForwardServerStream forwards one server-stream call downstream to fqn,
// using whichever BridgeMode the Router was configured with. It is meant
// to be called, with the same fqn, from every re-entry of a
// server-stream binding's ServerStreamFn.
func (r *Router) ForwardServerStream(ctx *slot.ServerStreamHandle, fqn string, req *slot.Envelope) *slot.Envelope {
	if r.bridgeMode == BridgeAsync {
		return r.forwardServerStreamAsync(ctx, fqn, req)
	}
	return r.forwardServerStreamSync(ctx, fqn, req)
}

func (r *Router) forwardServerStreamSync(ctx *slot.ServerStreamHandle, fqn string, req *slot.Envelope) *slot.Envelope {
	state, _ := ctx.UserSlot().(*syncBridgeState)

	// The framework re-enters the handler one last time with
	// streamStatus == Error after a failed upstream write, purely so the
	// handler can release resources; there is nothing to deliver.
	if ctx.StreamStatus() == rpcctx.Error {
		if state != nil {
			state.cursor.Cancel()
			state.done()
			ctx.SetUserSlot(nil)
		}
		return nil
	}

	if state == nil {
		done := r.runHooks(ctx.GetPeer())
		cursor, err := r.stub.OpenServerStream(context.Background(), fqn, req, ctx.ClientMetadata())
		if err != nil {
			done()
			ctx.SetStatus(status.Internal, fmt.Sprintf("forward %s: downstream %s", fqn, status.FromError(err)))
			ctx.SetHasMore(false)
			return nil
		}
		state = &syncBridgeState{cursor: cursor, done: done}
		ctx.SetUserSlot(state)
	}

	msg, err := state.cursor.Recv()
	if err == nil {
		ctx.SetHasMore(true)
		return msg
	}

	state.done()
	ctx.SetUserSlot(nil)
	ctx.SetHasMore(false)
	if err == io.EOF {
		return nil
	}
	downstream := grpctransport.StatusFromError(err)
	ctx.SetStatus(status.Internal, fmt.Sprintf("forward %s: downstream %s", fqn, downstream))
	return nil
}

func (r *Router) forwardServerStreamAsync(ctx *slot.ServerStreamHandle, fqn string, req *slot.Envelope) *slot.Envelope {
	state, _ := ctx.UserSlot().(*asyncBridgeState)

	if ctx.StreamStatus() == rpcctx.Error {
		if state != nil {
			state.reader.Stop()
			state.done()
			ctx.SetUserSlot(nil)
		}
		return nil
	}

	if state == nil {
		done := r.runHooks(ctx.GetPeer())
		reader := asyncreader.New(r.stub, fqn, req, ctx.ClientMetadata(), r.pipeCapacity)
		reader.Start(context.Background())
		state = &asyncBridgeState{reader: reader, done: done}
		ctx.SetUserSlot(state)
	}

	msg, ok := state.reader.Pop()
	if ok {
		ctx.SetHasMore(true)
		return msg
	}

	final := state.reader.FinalStatus()
	state.done()
	ctx.SetUserSlot(nil)
	ctx.SetHasMore(false)
	if final.Code != status.OK {
		ctx.SetStatus(status.Internal, fmt.Sprintf("forward %s: downstream %s", fqn, final))
	}
	return nil
}

// ForwardClientStream is declared for symmetry but not implemented: the
// registry already refuses to register any binding with
// Shape == slot.ClientStream and Forwarding == true, so this is only
// reachable if a binding calls it directly without going through
// registry.AddService.
func (r *Router) ForwardClientStream(ctx *slot.ClientStreamHandle, fqn string, req *slot.Envelope) *slot.Envelope {
	ctx.SetStatus(status.Internal, "Not Implemented Yet")
	return nil
}

// TraceID returns a fresh per-forward correlation ID for logging around
// a forwarded call.
func TraceID() string { return uuid.NewString() }
