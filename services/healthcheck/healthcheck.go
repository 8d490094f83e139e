// Package healthcheck implements the illustrative health check service:
// a unary method reporting either overall server health or the health
// of one named registered service.
//
// Grounded on original_source/example/healthService.cpp's Check
// handler: an empty service name reports overall serving status; a
// named, unknown service is NOT_FOUND; a named, known service reports
// its ServiceEntry.IsServing() result.
package healthcheck

import (
	"github.com/nvaistore-labs/rpcflow/pkg/registry"
	"github.com/nvaistore-labs/rpcflow/pkg/slot"
	"github.com/nvaistore-labs/rpcflow/pkg/status"
	"github.com/nvaistore-labs/rpcflow/proto/echo"
)

// Service implements registry.Service, binding Check. Reg is consulted
// at call time, so registering health checking itself and later adding
// more services to the same Reg is safe.
type Service struct {
	Reg *registry.Registry
}

func (Service) Name() string { return "health" }

func (s Service) OnInit(b *registry.Binder) {
	b.Bind(&slot.Binding{
		Method: "Check",
		Shape:  slot.Unary,
		UnaryFn: func(ctx *slot.UnaryHandle, req *slot.Envelope) *slot.Envelope {
			var in echo.HealthCheckRequest
			if err := echo.Unmarshal(req, &in); err != nil {
				ctx.SetStatus(status.InvalidArgument, "health: "+err.Error())
				return nil
			}

			result := echo.Serving
			if in.Service != "" {
				entry, ok := s.Reg.GetService(in.Service)
				if !ok {
					ctx.SetStatus(status.NotFound, "health: service "+in.Service+" is unknown")
					return nil
				}
				if !entry.IsServing() {
					result = echo.NotServing
				}
			}

			resp, err := echo.Marshal(&echo.HealthCheckResponse{Status: result})
			if err != nil {
				ctx.SetStatus(status.Internal, "health: "+err.Error())
				return nil
			}
			return resp
		},
	})
}
