package grpctransport

import (
	"time"

	"google.golang.org/grpc"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/nvaistore-labs/rpcflow/pkg/cqueue"
	"github.com/nvaistore-labs/rpcflow/pkg/rpcctx"
	"github.com/nvaistore-labs/rpcflow/pkg/slot"
	"github.com/nvaistore-labs/rpcflow/pkg/status"
)

// streamConn implements slot.Conn over one grpc.ServerStream. Every
// Issue* call spawns a background goroutine doing the matching blocking
// RecvMsg/SendMsg and posts exactly one completion event when it's done;
// it never calls back into the Slot directly. The happens-before
// relationship the Slot depends on (e.g. IssueRead's goroutine writing
// lastRead before the Slot reads it back) is established entirely by
// cqueue.Queue's internal mutex: the state machine never issues a second
// op on the same Conn until it has consumed the event from the first.
type streamConn struct {
	stream grpc.ServerStream

	peer     string
	metadata rpcctx.Metadata
	deadline time.Time
	hasDL    bool

	lastRead *slot.Envelope

	// finalStatus is set by IssueFinish and read by the handler after
	// the Slot reaches Done, to produce the grpc-level error the stream
	// handler function returns.
	finalStatus status.Status
}

func (c *streamConn) IssueRead(tag cqueue.Tag, q *cqueue.Queue) {
	go func() {
		msg := &RawMessage{}
		if err := c.stream.RecvMsg(msg); err != nil {
			c.lastRead = nil
			q.Post(tag, false)
			return
		}
		c.lastRead = &slot.Envelope{Body: msg.Data}
		q.Post(tag, true)
	}()
}

func (c *streamConn) LastRead() *slot.Envelope { return c.lastRead }

func (c *streamConn) IssueWrite(resp *slot.Envelope, tag cqueue.Tag, q *cqueue.Queue) {
	go func() {
		err := c.stream.SendMsg(&RawMessage{Data: resp.Body})
		q.Post(tag, err == nil)
	}()
}

func (c *streamConn) IssueFinish(resp *slot.Envelope, st status.Status, tag cqueue.Tag, q *cqueue.Queue) {
	go func() {
		if resp != nil {
			_ = c.stream.SendMsg(&RawMessage{Data: resp.Body})
		}
		c.finalStatus = st
		q.Post(tag, true)
	}()
}

func (c *streamConn) Peer() string                   { return c.peer }
func (c *streamConn) ClientMetadata() rpcctx.Metadata { return c.metadata }
func (c *streamConn) Deadline() (time.Time, bool)    { return c.deadline, c.hasDL }

// grpcErr converts a core status.Status into the *grpcstatus.Status error
// grpc-go expects a stream handler to return.
func grpcErr(st status.Status) error {
	return grpcstatus.New(grpccode(st.Code), st.Message).Err()
}
