// Package dispatch implements CompletionDispatcher: one goroutine per
// completion queue, draining events and driving the owning slot's state
// machine. Grounded on transport/bundle/stream_bundle.go's
// goroutine-per-stream worker lifecycle (start, run loop bounded by a
// stop flag, join on shutdown).
package dispatch

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/nvaistore-labs/rpcflow/pkg/cqueue"
	"github.com/nvaistore-labs/rpcflow/pkg/metrics"
	"github.com/nvaistore-labs/rpcflow/pkg/slot"
)

// pollInterval bounds how long Worker.run blocks in Queue.Wait between
// checks of its own stop flag.
const pollInterval = 200 * time.Millisecond

// Slotter resolves the completion tag most recently posted on a queue
// back to the Slot that owns it. *slot.Slot already satisfies this by
// virtue of being its own tag (see cqueue.Tag's doc comment), so in
// practice the tag IS the slot; Slotter exists so tests can substitute a
// tag type that needs translation.
type Slotter interface {
	Advance(ok bool)
}

// Worker drains one Queue, advancing whatever Slot each event's tag
// identifies.
type Worker struct {
	name  string
	queue *cqueue.Queue

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewWorker constructs a Worker for queue, identified by name for metrics
// labeling.
func NewWorker(name string, queue *cqueue.Queue) *Worker {
	return &Worker{
		name:   name,
		queue:  queue,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the worker's run loop in a new goroutine.
func (w *Worker) Start() {
	go w.run()
}

func (w *Worker) run() {
	defer close(w.done)
	for {
		select {
		case <-w.stopCh:
			w.drainToTerminal()
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), pollInterval)
		ev, ok, closed := w.queue.Wait(ctx)
		cancel()
		if closed {
			return
		}
		if !ok {
			continue // poll timeout; re-check stop flag
		}
		w.advance(ev)
	}
}

func (w *Worker) advance(ev cqueue.Event) {
	s, isSlot := ev.Tag.(Slotter)
	if !isSlot {
		return
	}
	s.Advance(ev.Ok)
	metrics.DispatchedEvents.WithLabelValues(w.name, strconv.FormatBool(ev.Ok)).Inc()
}

// Stop requests the worker loop exit after draining any events already
// posted to its queue, then blocks until it has exited. Safe to call
// more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.done
}

// drainToTerminal pops every remaining posted event and advances it,
// giving in-flight calls a chance to reach a terminal state before the
// worker exits, matching the drain-then-exit behaviour required of
// dispatcher shutdown.
func (w *Worker) drainToTerminal() {
	for _, ev := range w.queue.Drain() {
		w.advance(ev)
	}
}

// Pool owns a fixed set of Workers, one per queue, and coordinates
// start/stop across all of them.
type Pool struct {
	workers []*Worker
}

// NewPool constructs a Pool with one Worker per entry in queues, named
// "worker-<n>".
func NewPool(queues []*cqueue.Queue) *Pool {
	p := &Pool{workers: make([]*Worker, len(queues))}
	for i, q := range queues {
		p.workers[i] = NewWorker("worker-"+strconv.Itoa(i), q)
	}
	return p
}

// Start launches every worker in the pool.
func (p *Pool) Start() {
	for _, w := range p.workers {
		w.Start()
	}
}

// Stop stops every worker in the pool, waiting for each to drain and
// exit before returning.
func (p *Pool) Stop() {
	var wg sync.WaitGroup
	for _, w := range p.workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			w.Stop()
		}(w)
	}
	wg.Wait()
}

// Workers exposes the pool's workers, primarily for tests.
func (p *Pool) Workers() []*Worker { return p.workers }
