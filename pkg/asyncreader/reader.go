// Package asyncreader implements the receive-side mirror of a
// stream-sender goroutine: one goroutine drains a downstream
// server-stream RPC into a bounded pipe so a worker can re-enter an
// upstream handler and pop one message at a time without blocking on the
// downstream call itself.
//
// Grounded on transport/bundle/stream_bundle.go's per-destination sender
// goroutine (one goroutine pushing onto the wire, joined on teardown);
// Reader is that same shape run in reverse, pulling off the wire instead
// of pushing onto it.
package asyncreader

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/nvaistore-labs/rpcflow/pkg/pipe"
	"github.com/nvaistore-labs/rpcflow/pkg/rpcclient"
	"github.com/nvaistore-labs/rpcflow/pkg/rpcctx"
	"github.com/nvaistore-labs/rpcflow/pkg/slot"
	"github.com/nvaistore-labs/rpcflow/pkg/status"
)

// DefaultCapacity is the pipe depth used when a Router doesn't configure
// one explicitly.
const DefaultCapacity = 5

// Reader pulls one downstream server-stream call into a BoundedPipe on
// its own goroutine. The zero value is not usable; construct with New.
type Reader struct {
	stub *rpcclient.Stub
	fqn  string
	req  *slot.Envelope
	md   rpcctx.Metadata

	pipe    *pipe.BoundedPipe[*slot.Envelope]
	cancel  context.CancelFunc
	stopped atomic.Bool
	done    chan struct{}

	mu          sync.Mutex
	finalStatus status.Status
}

// New builds a Reader for one downstream call. capacity <= 0 uses
// DefaultCapacity.
func New(stub *rpcclient.Stub, fqn string, req *slot.Envelope, md rpcctx.Metadata, capacity int) *Reader {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Reader{
		stub: stub,
		fqn:  fqn,
		req:  req,
		md:   md,
		pipe: pipe.New[*slot.Envelope](capacity),
		done: make(chan struct{}),
	}
}

// Start launches the producer goroutine. Must be called exactly once.
func (r *Reader) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	go r.run(ctx)
}

func (r *Reader) run(ctx context.Context) {
	defer close(r.done)

	err := r.stub.CallStream(ctx, r.fqn, r.req, r.md, func(resp *slot.Envelope) bool {
		if r.stopped.Load() {
			return false
		}
		return r.pipe.Push(resp)
	})

	st := status.Status{Code: status.OK}
	if err != nil {
		st = status.FromError(err)
	}
	r.mu.Lock()
	r.finalStatus = st
	r.mu.Unlock()

	// No more items, ever. Whatever is already buffered stays poppable;
	// Pop reports false only once the pipe drains empty.
	r.pipe.SetOpen(false)
}

// Pop returns the next buffered response, or (nil, false) once the
// downstream call has ended and the pipe has drained.
func (r *Reader) Pop() (*slot.Envelope, bool) { return r.pipe.Pop() }

// FinalStatus is valid once Pop has returned ok == false: OK if the
// downstream stream ended cleanly, otherwise the downstream's terminal
// status.
func (r *Reader) FinalStatus() status.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finalStatus
}

// Stop requests early termination: the producer's next push observes
// the stop flag and returns from the callback, cancelling the
// downstream call; Clear additionally wakes a producer already blocked
// on a full pipe. Stop joins the producer goroutine before returning, so
// by the time it returns no reader goroutine is left running.
func (r *Reader) Stop() {
	r.stopped.Store(true)
	r.pipe.SetOpen(false)
	r.pipe.Clear()
	if r.cancel != nil {
		r.cancel()
	}
	<-r.done
}
