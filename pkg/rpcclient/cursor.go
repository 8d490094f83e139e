package rpcclient

import (
	"context"

	"google.golang.org/grpc"

	"github.com/nvaistore-labs/rpcflow/internal/grpctransport"
	"github.com/nvaistore-labs/rpcflow/pkg/rpcctx"
	"github.com/nvaistore-labs/rpcflow/pkg/slot"
)

// ServerStreamCursor pulls one message at a time off a downstream
// server-stream call. It exists alongside CallStream for callers that
// cannot hand over a callback loop for the whole call's lifetime — a
// re-entrant handler (pkg/router's SyncBridge) needs to return control
// between messages and resume later on the same cursor.
type ServerStreamCursor struct {
	stream grpc.ClientStream
	cancel context.CancelFunc
}

// OpenServerStream sends req and returns a cursor positioned to read the
// first response. Unlike CallStream, the caller drives when each Recv
// happens.
func (s *Stub) OpenServerStream(ctx context.Context, fqn string, req *slot.Envelope, md rpcctx.Metadata) (*ServerStreamCursor, error) {
	cc, err := s.conn()
	if err != nil {
		return nil, err
	}
	ctx = attachMetadata(ctx, md)
	ctx, cancel := context.WithCancel(ctx)

	desc := &grpc.StreamDesc{ServerStreams: true}
	stream, err := cc.NewStream(ctx, desc, "/"+fqn)
	if err != nil {
		cancel()
		return nil, grpctransport.StatusFromError(err).Err()
	}
	if err := stream.SendMsg(&grpctransport.RawMessage{Data: req.Body}); err != nil {
		cancel()
		return nil, grpctransport.StatusFromError(err).Err()
	}
	return &ServerStreamCursor{stream: stream, cancel: cancel}, nil
}

// Recv reads the next response. It returns io.EOF, unchanged, once the
// downstream call has ended cleanly, so callers can tell "done" apart
// from "failed" the same way grpc-go's own ClientStream.RecvMsg does.
func (c *ServerStreamCursor) Recv() (*slot.Envelope, error) {
	msg := &grpctransport.RawMessage{}
	if err := c.stream.RecvMsg(msg); err != nil {
		return nil, err
	}
	return &slot.Envelope{Body: msg.Data}, nil
}

// Cancel tears down the downstream call. Safe to call more than once and
// safe to call after the stream has already ended on its own.
func (c *ServerStreamCursor) Cancel() { c.cancel() }
