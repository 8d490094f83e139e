package grpctransport

import (
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/nvaistore-labs/rpcflow/pkg/status"
)

// toGRPC and toCore translate between the core status taxonomy and
// grpc-go's codes.Code by name, not by numeric value: the two enums list
// Unauthenticated at different positions (the core taxonomy groups it
// next to PermissionDenied; codes.Code appends it last, for
// backward-compatibility reasons specific to the grpc-go history), so a
// direct int cast would silently swap ResourceExhausted and
// Unauthenticated.
var toGRPC = map[status.Code]codes.Code{
	status.OK:                  codes.OK,
	status.Cancelled:           codes.Canceled,
	status.Unknown:             codes.Unknown,
	status.InvalidArgument:     codes.InvalidArgument,
	status.DeadlineExceeded:    codes.DeadlineExceeded,
	status.NotFound:            codes.NotFound,
	status.AlreadyExists:       codes.AlreadyExists,
	status.PermissionDenied:    codes.PermissionDenied,
	status.Unauthenticated:     codes.Unauthenticated,
	status.ResourceExhausted:   codes.ResourceExhausted,
	status.FailedPrecondition:  codes.FailedPrecondition,
	status.Aborted:             codes.Aborted,
	status.OutOfRange:          codes.OutOfRange,
	status.Unimplemented:       codes.Unimplemented,
	status.Internal:            codes.Internal,
	status.Unavailable:         codes.Unavailable,
	status.DataLoss:            codes.DataLoss,
}

var toCore map[codes.Code]status.Code

func init() {
	toCore = make(map[codes.Code]status.Code, len(toGRPC))
	for core, g := range toGRPC {
		toCore[g] = core
	}
}

// grpccode converts a core status code to its grpc-go equivalent.
func grpccode(c status.Code) codes.Code {
	if g, ok := toGRPC[c]; ok {
		return g
	}
	return codes.Unknown
}

// coreCode converts a grpc-go code back to the core status taxonomy,
// used when translating a downstream peer's grpc error into a core
// status.
func coreCode(c codes.Code) status.Code {
	if core, ok := toCore[c]; ok {
		return core
	}
	return status.Unknown
}

// StatusFromError recovers the core status.Status carried by an error
// coming back from a grpc-go call (ClientConn.Invoke, a stream's
// RecvMsg/SendMsg, ...), translating its code by name via coreCode. Used
// by pkg/rpcclient and pkg/router, the two packages that sit on the
// calling side of a gRPC connection, to report failures in the same
// taxonomy the serving side uses. A nil err maps to OK; an err that
// carries no grpc status maps to Unknown.
func StatusFromError(err error) status.Status {
	if err == nil {
		return status.Status{Code: status.OK}
	}
	if s, ok := grpcstatus.FromError(err); ok {
		return status.New(coreCode(s.Code()), s.Message())
	}
	return status.New(status.Unknown, err.Error())
}
