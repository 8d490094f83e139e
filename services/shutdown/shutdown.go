// Package shutdown implements the illustrative graceful-shutdown
// service: a unary method that shuts the server down for local callers
// and politely refuses remote ones, in both cases replying with status
// OK.
//
// Grounded on original_source/example/helloService.cpp's Shutdown
// handler: a local peer gets Result:true, Shutdown() is called; a
// remote peer gets Result:false and an explanatory Msg — never an
// RPC-level error status.
package shutdown

import (
	"github.com/nvaistore-labs/rpcflow/internal/grpctransport"
	"github.com/nvaistore-labs/rpcflow/pkg/registry"
	"github.com/nvaistore-labs/rpcflow/pkg/slot"
	"github.com/nvaistore-labs/rpcflow/pkg/status"
	"github.com/nvaistore-labs/rpcflow/pkg/xlog"
	"github.com/nvaistore-labs/rpcflow/proto/echo"
)

// Stopper is the narrow capability this service needs from the running
// server; pkg/server.Core satisfies it.
type Stopper interface {
	Stop()
}

// Service implements registry.Service, binding Shutdown. Only callers
// connecting over loopback or a unix domain socket may actually shut the
// server down; remote callers get a soft OK-status denial, matching the
// original's behavior of never surfacing this as an RPC error.
type Service struct {
	Core Stopper
}

func (Service) Name() string { return "shutdown" }

func (s Service) OnInit(b *registry.Binder) {
	b.Bind(&slot.Binding{
		Method: "Shutdown",
		Shape:  slot.Unary,
		UnaryFn: func(ctx *slot.UnaryHandle, req *slot.Envelope) *slot.Envelope {
			peer := ctx.GetPeer()

			var in echo.ShutdownRequest
			if err := echo.Unmarshal(req, &in); err != nil {
				ctx.SetStatus(status.InvalidArgument, "shutdown: "+err.Error())
				return nil
			}

			if !grpctransport.IsLocalPeer(peer) {
				xlog.Infof("shutdown: from the remote client %s: remote shutdown is not allowed", peer)
				resp, err := echo.Marshal(&echo.ShutdownResponse{
					Result: false,
					Msg:    "Shutdown from a remote client is not allowed",
				})
				if err != nil {
					ctx.SetStatus(status.Internal, "shutdown: "+err.Error())
					return nil
				}
				return resp
			}

			xlog.Infof("shutdown: from the local client %s, reason: %s", peer, in.Reason)
			resp, err := echo.Marshal(&echo.ShutdownResponse{Result: true, Msg: "Goodbye"})
			if err != nil {
				ctx.SetStatus(status.Internal, "shutdown: "+err.Error())
				return nil
			}

			if s.Core != nil {
				s.Core.Stop()
			}
			return resp
		},
	})
}
