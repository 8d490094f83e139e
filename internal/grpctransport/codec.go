// Package grpctransport is the one generic gRPC adapter: a single
// UnknownServiceHandler stream handler that looks up the incoming call's
// binding in a registry.Registry and drives a slot.Slot by translating
// grpc-go's blocking ServerStream.RecvMsg/SendMsg calls into background
// goroutines that post completion events onto a shared cqueue.Queue. This
// is the Go realization of draining a completion queue of I/O-done
// events: Go has no native completion-queue transport API the way the
// underlying C core does, so one is synthesized on top of grpc-go's
// synchronous stream calls.
package grpctransport

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// rawCodecName overrides grpc-go's built-in "proto" codec registration so
// that every call on this server, none of which carries real protobuf
// messages, is encoded as a length-prefixed raw byte string instead.
// Message (de)serialization is explicitly out of scope for the core
// engine; the wire format here is the transport adapter's own concern,
// grounded on encoding.Codec's Marshal/Unmarshal/Name interface from
// google.golang.org/grpc/encoding.
const rawCodecName = "proto"

// RawMessage is the only message type this transport ever marshals: it
// carries an already-encoded payload straight through, verbatim.
type RawMessage struct {
	Data []byte
}

type rawCodec struct{}

func (rawCodec) Name() string { return rawCodecName }

func (rawCodec) Marshal(v any) ([]byte, error) {
	m, ok := v.(*RawMessage)
	if !ok {
		return nil, fmt.Errorf("grpctransport: cannot marshal %T, want *RawMessage", v)
	}
	return m.Data, nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	m, ok := v.(*RawMessage)
	if !ok {
		return fmt.Errorf("grpctransport: cannot unmarshal into %T, want *RawMessage", v)
	}
	m.Data = append([]byte(nil), data...)
	return nil
}

func init() {
	encoding.RegisterCodec(rawCodec{})
}
