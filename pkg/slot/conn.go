package slot

import (
	"time"

	"github.com/nvaistore-labs/rpcflow/pkg/cqueue"
	"github.com/nvaistore-labs/rpcflow/pkg/rpcctx"
	"github.com/nvaistore-labs/rpcflow/pkg/status"
)

// Conn is the narrow interface a Slot needs from the transport to drive
// one call. Every Issue* call is asynchronous: the implementation spawns
// whatever background work is needed to perform the operation, and posts
// exactly one completion event for tag on queue when it finishes. Conn
// implementations must never call back into the Slot directly — only the
// dispatcher goroutine that pops the posted event may do that — which is
// what keeps "at most one outstanding transport op per slot"
// and "each RequestSlot accessed only by its owning worker"
// true without any locking inside Slot itself.
type Conn interface {
	// IssueRead arranges to read the next client message. On completion
	// LastRead reflects the decoded message (ok) or is unspecified
	// (!ok, e.g. client half-closed or the stream errored).
	IssueRead(tag cqueue.Tag, q *cqueue.Queue)
	// LastRead returns the message most recently completed by IssueRead.
	LastRead() *Envelope
	// IssueWrite sends resp to the client.
	IssueWrite(resp *Envelope, tag cqueue.Tag, q *cqueue.Queue)
	// IssueFinish finishes the call with an optional final response and
	// a terminal status.
	IssueFinish(resp *Envelope, st status.Status, tag cqueue.Tag, q *cqueue.Queue)

	Peer() string
	ClientMetadata() rpcctx.Metadata
	Deadline() (time.Time, bool)
}

// State is one of the six states in transition table.
type State int

const (
	Accept State = iota
	Read
	ReadEnd
	Write
	Finish
	Done
)

func (s State) String() string {
	switch s {
	case Accept:
		return "ACCEPT"
	case Read:
		return "READ"
	case ReadEnd:
		return "READ_END"
	case Write:
		return "WRITE"
	case Finish:
		return "FINISH"
	case Done:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// Slot is one pre-armed acceptor for one (service, method, shape) triple,
// driving a single in-flight call through Accept→Read(s)→Write(s)→Finish
// →Done. A Slot's address is its own completion-queue tag.
type Slot struct {
	binding *Binding
	conn    Conn
	queue   *cqueue.Queue
	state   State

	unaryCtx  *rpcctx.UnaryContext
	serverCtx *rpcctx.ServerStreamContext
	clientCtx *rpcctx.ClientStreamContext

	// onRearm is invoked exactly once, when the slot reaches Done,
	// giving the owner (dispatcher/registry) a chance to re-arm a fresh
	// acceptor on the same queue before any further event on this queue
	// is processed.
	onRearm func()

	// req is the request most recently handed to this slot's
	// process-fn when the shape needs to hold onto it across a
	// re-entry (server-stream's first call only reads once).
	req *Envelope
}

// New constructs a fresh Slot in the ACCEPT state for binding, driven
// over conn and posting completion events to q. onRearm is called once,
// when the call reaches Done.
func New(binding *Binding, conn Conn, q *cqueue.Queue, onRearm func()) *Slot {
	return &Slot{binding: binding, conn: conn, queue: q, state: Accept, onRearm: onRearm}
}

// Binding exposes the (service, method, shape) this slot was bound to.
func (s *Slot) Binding() *Binding { return s.binding }

// State reports the slot's current position in the state machine.
// Intended for tests/metrics.
func (s *Slot) State() State { return s.state }

// Advance drives the state machine by one transition in response to a
// completion event with success flag ok (transition table).
// Advance must only ever be called by the worker goroutine that owns
// this slot's queue.
func (s *Slot) Advance(ok bool) {
	switch s.binding.Shape {
	case Unary:
		s.advanceUnary(ok)
	case ServerStream:
		s.advanceServerStream(ok)
	case ClientStream:
		s.advanceClientStream(ok)
	}
}

func (s *Slot) deadline() (time.Time, bool) { return s.conn.Deadline() }

// ---- Unary ----

func (s *Slot) advanceUnary(ok bool) {
	switch s.state {
	case Accept:
		if !ok {
			s.toDone()
			return
		}
		dl, hasDL := s.deadline()
		s.unaryCtx = rpcctx.NewUnaryContext(s.conn.Peer(), s.conn.ClientMetadata(), dl, hasDL)
		req := s.conn.LastRead()
		resp := s.binding.UnaryFn(s.unaryCtx, req)
		st := s.unaryCtx.Status()
		s.unaryCtx.Finish()
		s.state = Finish
		s.conn.IssueFinish(resp, st, s, s.queue)
	case Finish:
		s.rearmSelf()
	}
}

// ---- Server-stream ----

func (s *Slot) advanceServerStream(ok bool) {
	switch s.state {
	case Accept:
		if !ok {
			s.toDone()
			return
		}
		dl, hasDL := s.deadline()
		s.serverCtx = rpcctx.NewServerStreamContext(s.conn.Peer(), s.conn.ClientMetadata(), dl, hasDL)
		s.req = s.conn.LastRead()
		s.state = Write
		s.runServerStreamHandler()
	case Write:
		if !ok {
			// WRITE/!ok: treat as error, give the handler one last
			// chance to clean up, then finish.
			s.serverCtx.FrameworkSetStreamStatus(rpcctx.Error)
			s.binding.ServerStreamFn(s.serverCtx, nil)
			st := status.New(status.Internal, "write failed")
			s.state = Finish
			s.conn.IssueFinish(nil, st, s, s.queue)
			return
		}
		s.runServerStreamHandler()
	case Finish:
		if ok {
			s.serverCtx.FrameworkSetStreamStatus(rpcctx.Success)
		} else {
			s.serverCtx.FrameworkSetStreamStatus(rpcctx.Error)
		}
		s.binding.ServerStreamFn(s.serverCtx, nil)
		s.rearmSelf()
	}
}

// runServerStreamHandler invokes the process-fn once and issues the next
// transport op based on ctx.HasMore(), matching both the ACCEPT/ok and
// WRITE/ok branches (they are identical after the first
// read).
func (s *Slot) runServerStreamHandler() {
	req := s.req
	s.req = nil // only the very first invocation sees the original request
	resp := s.binding.ServerStreamFn(s.serverCtx, req)
	if s.serverCtx.HasMore() {
		s.conn.IssueWrite(resp, s, s.queue)
		return
	}
	st := s.serverCtx.Status()
	s.state = Finish
	s.conn.IssueFinish(nil, st, s, s.queue)
}

// ---- Client-stream ----

func (s *Slot) advanceClientStream(ok bool) {
	switch s.state {
	case Accept:
		if !ok {
			s.toDone()
			return
		}
		dl, hasDL := s.deadline()
		s.clientCtx = rpcctx.NewClientStreamContext(s.conn.Peer(), s.conn.ClientMetadata(), dl, hasDL)
		s.state = Read
		s.conn.IssueRead(s, s.queue)
	case Read:
		if !ok {
			s.clientCtx.FrameworkSetHasMore(false)
			s.state = ReadEnd
			resp := s.binding.ClientStreamFn(s.clientCtx, nil)
			st := s.clientCtx.Status()
			s.state = Finish
			s.conn.IssueFinish(resp, st, s, s.queue)
			return
		}
		req := s.conn.LastRead()
		s.binding.ClientStreamFn(s.clientCtx, req)
		if !s.clientCtx.Status().OK() {
			st := s.clientCtx.Status()
			s.state = Finish
			s.conn.IssueFinish(nil, st, s, s.queue)
			return
		}
		s.conn.IssueRead(s, s.queue)
	case Finish:
		s.rearmSelf()
	}
}

// ---- shared terminal transitions ----

func (s *Slot) rearmSelf() {
	s.state = Done
	if s.onRearm != nil {
		s.onRearm()
	}
}

func (s *Slot) toDone() {
	s.state = Done
	if s.onRearm != nil {
		s.onRearm()
	}
}
