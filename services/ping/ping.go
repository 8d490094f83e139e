// Package ping implements the simplest possible illustrative service: a
// single unary method that echoes a greeting back to the caller,
// logging the caller's peer string.
//
// Grounded on original_source/examples/basic/helloService.hpp's Ping
// handler.
package ping

import (
	"github.com/nvaistore-labs/rpcflow/pkg/registry"
	"github.com/nvaistore-labs/rpcflow/pkg/slot"
	"github.com/nvaistore-labs/rpcflow/pkg/status"
	"github.com/nvaistore-labs/rpcflow/pkg/xlog"
	"github.com/nvaistore-labs/rpcflow/proto/echo"
)

// Service implements registry.Service, binding Ping.
type Service struct{}

func (Service) Name() string { return "ping" }

func (Service) OnInit(b *registry.Binder) {
	b.Bind(&slot.Binding{
		Method: "Ping",
		Shape:  slot.Unary,
		UnaryFn: func(ctx *slot.UnaryHandle, req *slot.Envelope) *slot.Envelope {
			xlog.Infof("ping: from %s", ctx.GetPeer())
			resp, err := echo.Marshal(&echo.PingResponse{Msg: "Pong"})
			if err != nil {
				ctx.SetStatus(status.Internal, "ping: "+err.Error())
				return nil
			}
			return resp
		},
	})
}
