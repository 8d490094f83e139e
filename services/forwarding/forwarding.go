// Package forwarding implements a generic registry.Service that binds a
// fixed set of methods, each forwarding straight through to a
// pkg/router.Router rather than answering locally.
//
// Grounded on original_source/examples/router/helloServiceRouter.hpp's
// HelloService: one binding per method, each handler a one-line call
// into the router's Forward (here, Router.ForwardUnary /
// Router.ForwardServerStream). Client-stream forwarding is omitted
// entirely, matching pkg/router's documented non-implementation —
// registry.AddService already refuses any Forwarding binding of that
// shape, so Spec would reject a MethodSpec carrying it regardless.
package forwarding

import (
	"github.com/nvaistore-labs/rpcflow/pkg/registry"
	"github.com/nvaistore-labs/rpcflow/pkg/router"
	"github.com/nvaistore-labs/rpcflow/pkg/slot"
)

// MethodSpec names one method this service forwards, and the shape it
// is bound under.
type MethodSpec struct {
	Method string
	Shape  slot.Shape
}

// Service forwards every method in Methods to Router, under
// ServiceName.
type Service struct {
	ServiceName string
	Router      *router.Router
	Methods     []MethodSpec
}

func (s Service) Name() string { return s.ServiceName }

func (s Service) OnInit(b *registry.Binder) {
	for _, m := range s.Methods {
		fqn := s.ServiceName + "/" + m.Method
		switch m.Shape {
		case slot.Unary:
			b.Bind(&slot.Binding{
				Method:     m.Method,
				Shape:      slot.Unary,
				Forwarding: true,
				UnaryFn: func(ctx *slot.UnaryHandle, req *slot.Envelope) *slot.Envelope {
					return s.Router.ForwardUnary(ctx, fqn, req)
				},
			})
		case slot.ServerStream:
			b.Bind(&slot.Binding{
				Method:     m.Method,
				Shape:      slot.ServerStream,
				Forwarding: true,
				ServerStreamFn: func(ctx *slot.ServerStreamHandle, req *slot.Envelope) *slot.Envelope {
					return s.Router.ForwardServerStream(ctx, fqn, req)
				},
			})
		case slot.ClientStream:
			b.Bind(&slot.Binding{
				Method:     m.Method,
				Shape:      slot.ClientStream,
				Forwarding: true,
				ClientStreamFn: func(ctx *slot.ClientStreamHandle, req *slot.Envelope) *slot.Envelope {
					return s.Router.ForwardClientStream(ctx, fqn, req)
				},
			})
		}
	}
}
