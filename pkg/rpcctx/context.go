// Package rpcctx implements the RpcContext family handed to handlers:
// UnaryContext, ServerStreamContext and ClientStreamContext, sharing a
// common base. Grounded on
// original_source/async_server/grpcContext.h's RpcContext/RpcStreamContext
// split, adapted as a Go tagged variant rather than C++-style
// inheritance.
package rpcctx

import (
	"time"

	"github.com/nvaistore-labs/rpcflow/pkg/status"
)

// StreamStatus mirrors grpcContext.h's StreamStatus enum.
type StreamStatus int

const (
	Streaming StreamStatus = iota + 1
	Success
	Error
)

// base carries the fields common to every call shape: peer, metadata,
// deadline, and final status. Unexported — callers only ever see one of
// the three exported context types.
type base struct {
	peer           string
	clientMetadata Metadata
	trailing       Metadata
	deadline       time.Time
	hasDeadline    bool
	st             status.Status
	finished       bool
}

func newBase(peer string, md Metadata, deadline time.Time, hasDeadline bool) base {
	return base{peer: peer, clientMetadata: md, deadline: deadline, hasDeadline: hasDeadline}
}

// GetPeer returns the URI-like peer string.
func (b *base) GetPeer() string { return b.peer }

// GetClientMetadata looks up a key in the read-only client metadata.
func (b *base) GetClientMetadata(key string) (string, bool) {
	return b.clientMetadata.Get(key)
}

// ClientMetadata returns the full read-only client metadata set, used by
// the router to propagate it unchanged onto a forwarded downstream call.
func (b *base) ClientMetadata() Metadata { return b.clientMetadata }

// AddTrailingMetadata appends to the (append-only) trailing metadata set
// by the server.
func (b *base) AddTrailingMetadata(key, value string) {
	b.trailing.Add(key, value)
}

// TrailingMetadata exposes what was accumulated via AddTrailingMetadata,
// for the transport adapter to attach to the outgoing Finish.
func (b *base) TrailingMetadata() Metadata { return b.trailing }

// SetStatus sets the final status. Setting OK clears any error text;
// setting a non-OK status always wins over a previous OK; once the call
// has finished, further SetStatus calls are ignored.
func (b *base) SetStatus(code status.Code, msg string) {
	if b.finished {
		return
	}
	b.st = status.New(code, msg)
}

// Status returns the status currently recorded on the context.
func (b *base) Status() status.Status { return b.st }

// FrameworkFinish marks the context terminal; subsequent SetStatus calls
// are ignored per the invariant above. Called only by the owning slot.
func (b *base) FrameworkFinish() { b.finished = true }

// Deadline reports the call's deadline, if the client set one.
func (b *base) Deadline() (time.Time, bool) { return b.deadline, b.hasDeadline }

// UnaryContext is handed to unary handlers.
type UnaryContext struct {
	base
}

// NewUnaryContext constructs a UnaryContext for a fresh ACCEPT.
func NewUnaryContext(peer string, md Metadata, deadline time.Time, hasDeadline bool) *UnaryContext {
	return &UnaryContext{base: newBase(peer, md, deadline, hasDeadline)}
}

// Finish is called by the slot once the unary call's Finish transport op
// has completed (terminal for this call).
func (c *UnaryContext) Finish() { c.FrameworkFinish() }

// ServerStreamContext is handed to server-stream handlers. hasMore is
// write-only by the handler; userSlot is read/write by the handler;
// streamStatus is written by the framework on terminal transitions.
type ServerStreamContext struct {
	base
	hasMore      bool
	streamStatus StreamStatus
	userSlot     any
}

// NewServerStreamContext constructs a ServerStreamContext for a fresh
// ACCEPT; streamStatus starts STREAMING.
func NewServerStreamContext(peer string, md Metadata, deadline time.Time, hasDeadline bool) *ServerStreamContext {
	return &ServerStreamContext{
		base:         newBase(peer, md, deadline, hasDeadline),
		streamStatus: Streaming,
	}
}

// SetHasMore records whether the handler wants another Write issued.
func (c *ServerStreamContext) SetHasMore(more bool) { c.hasMore = more }

// HasMore reports the value last set by SetHasMore; consulted by the slot
// after each handler invocation.
func (c *ServerStreamContext) HasMore() bool { return c.hasMore }

// StreamStatus reports the terminal disposition the framework recorded;
// read-only from the handler's perspective.
func (c *ServerStreamContext) StreamStatus() StreamStatus { return c.streamStatus }

// FrameworkSetStreamStatus is called only by the slot's state machine to
// record the terminal disposition of the stream; handlers must not call
// this themselves.
func (c *ServerStreamContext) FrameworkSetStreamStatus(s StreamStatus) { c.streamStatus = s }

// SetUserSlot stores handler-owned, per-call state that survives across
// re-entries of this same call, but never across a re-arm.
// The framework never frees this value; the handler must release it on a
// terminal transition (streamStatus != Streaming).
func (c *ServerStreamContext) SetUserSlot(v any) { c.userSlot = v }

// UserSlot returns whatever was last stored with SetUserSlot.
func (c *ServerStreamContext) UserSlot() any { return c.userSlot }

// ClientStreamContext is handed to client-stream handlers. hasMore is
// read-only here: true while more client messages are expected, false
// once the client has half-closed.
type ClientStreamContext struct {
	base
	hasMore  bool
	userSlot any
}

// NewClientStreamContext constructs a ClientStreamContext for a fresh
// ACCEPT; hasMore starts true.
func NewClientStreamContext(peer string, md Metadata, deadline time.Time, hasDeadline bool) *ClientStreamContext {
	return &ClientStreamContext{base: newBase(peer, md, deadline, hasDeadline), hasMore: true}
}

// HasMore reports whether another client message is still expected.
func (c *ClientStreamContext) HasMore() bool { return c.hasMore }

// FrameworkSetHasMore is called only by the slot's state machine, on
// READ/!ok, to flip hasMore false once the client half-closes.
func (c *ClientStreamContext) FrameworkSetHasMore(more bool) { c.hasMore = more }

// SetUserSlot / UserSlot mirror ServerStreamContext's ownership contract.
func (c *ClientStreamContext) SetUserSlot(v any) { c.userSlot = v }
func (c *ClientStreamContext) UserSlot() any     { return c.userSlot }
