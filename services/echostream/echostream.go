// Package echostream implements an illustrative server-stream service:
// given a message and a count, it streams that many numbered copies
// back to the caller, one per re-entry.
//
// Grounded on pkg/slot's documented ServerStreamProcessFn re-entry
// contract (request arrives once, nil on every subsequent call) and,
// for the pattern of stashing per-call iteration state on
// ctx.UserSlot(), pkg/router's bridge state handling.
package echostream

import (
	"github.com/nvaistore-labs/rpcflow/pkg/registry"
	"github.com/nvaistore-labs/rpcflow/pkg/rpcctx"
	"github.com/nvaistore-labs/rpcflow/pkg/slot"
	"github.com/nvaistore-labs/rpcflow/pkg/status"
	"github.com/nvaistore-labs/rpcflow/proto/echo"
)

// Service implements registry.Service, binding Stream.
type Service struct{}

func (Service) Name() string { return "echostream" }

type iterState struct {
	msg  string
	seq  int
	left int
}

func (Service) OnInit(b *registry.Binder) {
	b.Bind(&slot.Binding{
		Method: "Stream",
		Shape:  slot.ServerStream,
		ServerStreamFn: func(ctx *slot.ServerStreamHandle, req *slot.Envelope) *slot.Envelope {
			if ctx.StreamStatus() == rpcctx.Error {
				ctx.SetUserSlot(nil)
				return nil
			}

			st, _ := ctx.UserSlot().(*iterState)
			if st == nil {
				var in echo.EchoRequest
				if err := echo.Unmarshal(req, &in); err != nil {
					ctx.SetStatus(status.InvalidArgument, "echostream: "+err.Error())
					ctx.SetHasMore(false)
					return nil
				}
				if in.Count < 0 {
					ctx.SetStatus(status.InvalidArgument, "echostream: count must be >= 0")
					ctx.SetHasMore(false)
					return nil
				}
				st = &iterState{msg: in.Msg, left: in.Count}
				ctx.SetUserSlot(st)
			}

			if st.left == 0 {
				ctx.SetHasMore(false)
				ctx.SetUserSlot(nil)
				return nil
			}

			resp, err := echo.Marshal(&echo.EchoResponse{Msg: st.msg, Seq: st.seq})
			if err != nil {
				ctx.SetStatus(status.Internal, "echostream: "+err.Error())
				ctx.SetHasMore(false)
				ctx.SetUserSlot(nil)
				return nil
			}
			st.seq++
			st.left--
			// This response still needs writing, so HasMore stays true
			// even when it is the last one; st.left == 0 is only
			// discovered (and HasMore set false) on the next re-entry.
			ctx.SetHasMore(true)
			return resp
		},
	})
}
