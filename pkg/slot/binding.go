package slot

import "github.com/nvaistore-labs/rpcflow/pkg/rpcctx"

// UnaryHandle, ServerStreamHandle and ClientStreamHandle are the three
// RpcContext variants, reused here under shape-specific names
// so binding signatures read naturally.
type (
	UnaryHandle        = rpcctx.UnaryContext
	ServerStreamHandle = rpcctx.ServerStreamContext
	ClientStreamHandle = rpcctx.ClientStreamContext
)

// Envelope is the wire-agnostic payload the core passes around. Message
// (de)serialization is explicitly out of scope; the transport
// adapter is the only place that knows how to turn raw wire bytes into an
// Envelope and back.
type Envelope struct {
	Body []byte
}

// Shape is one of the three call shapes a binding can take.
type Shape int

const (
	Unary Shape = iota
	ServerStream
	ClientStream
)

func (s Shape) String() string {
	switch s {
	case Unary:
		return "unary"
	case ServerStream:
		return "server-stream"
	case ClientStream:
		return "client-stream"
	default:
		return "unknown-shape"
	}
}

// AcceptFn decodes the first request message off the wire into a fresh
// Envelope-shaped value. It exists so bindings can pair an accept step
// with a process step; the reference transport
// treats it as an identity function since Envelope already carries raw
// bytes, but application codecs may hang allocation-pooling logic here.
type AcceptFn func() *Envelope

// UnaryProcessFn handles one unary call: given the request, return the
// response. The framework issues Finish(resp, ctx.Status()) afterwards.
type UnaryProcessFn func(ctx *UnaryHandle, req *Envelope) *Envelope

// ServerStreamProcessFn is invoked once per re-entry of a server-stream
// call. On the first call req is the client's request; on every
// subsequent call req is nil (there is nothing more to read — this shape
// only ever reads once). The handler consults/sets ctx.HasMore and
// returns the next response (ignored if HasMore is false).
type ServerStreamProcessFn func(ctx *ServerStreamHandle, req *Envelope) *Envelope

// ClientStreamProcessFn is invoked once per client message as it arrives,
// and once more on half-close (req == nil) to produce the final response.
type ClientStreamProcessFn func(ctx *ClientStreamHandle, req *Envelope) *Envelope

// Binding pairs an accept-fn and a process-fn for one (service, method,
// shape) triple, plus optional user configuration. Exactly one
// of the three ProcessFn fields is set, matching Shape.
type Binding struct {
	Service string
	Method  string
	Shape   Shape
	Accept  AcceptFn

	UnaryFn        UnaryProcessFn
	ServerStreamFn ServerStreamProcessFn
	ClientStreamFn ClientStreamProcessFn

	UserConfig any

	// Forwarding marks a binding whose handler forwards the call to a
	// downstream peer rather than answering it locally. Client-stream
	// forwarding is not implemented (see pkg/router), so the registry
	// refuses to register any binding with Shape == ClientStream and
	// Forwarding == true.
	Forwarding bool
}

// FQN is the fully-qualified method name, "service/method", used as the
// transport's routing key and as the registry's lookup key.
func (b *Binding) FQN() string { return b.Service + "/" + b.Method }
