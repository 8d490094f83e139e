package slot_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/nvaistore-labs/rpcflow/pkg/cqueue"
	"github.com/nvaistore-labs/rpcflow/pkg/rpcctx"
	"github.com/nvaistore-labs/rpcflow/pkg/slot"
	"github.com/nvaistore-labs/rpcflow/pkg/status"
)

func backgroundCtx() context.Context { return context.Background() }

// fakeConn is a synchronous, single-threaded double of slot.Conn: every
// Issue* call immediately posts the configured completion rather than
// spawning a goroutine, which keeps these state-machine tests
// deterministic without needing a real transport.
type fakeConn struct {
	reads      []*slot.Envelope // queued incoming messages
	readIdx    int
	lastRead   *slot.Envelope
	writes     []*slot.Envelope
	finishes   []finishCall
	nextWriteOK   bool
	nextFinishOK  bool
	nextReadOK    bool
	writeOKSeq    []bool
}

type finishCall struct {
	resp *slot.Envelope
	st   status.Status
}

func newFakeConn() *fakeConn {
	// nextReadOK defaults false: once the preloaded reads are exhausted,
	// the next IssueRead naturally reports "no more" (half-close/error)
	// unless a test overrides it.
	return &fakeConn{nextWriteOK: true, nextFinishOK: true, nextReadOK: false}
}

func (c *fakeConn) IssueRead(tag cqueue.Tag, q *cqueue.Queue) {
	if c.readIdx < len(c.reads) {
		c.lastRead = c.reads[c.readIdx]
		c.readIdx++
		q.Post(tag, true)
		return
	}
	c.lastRead = nil
	q.Post(tag, c.nextReadOK)
}

func (c *fakeConn) LastRead() *slot.Envelope { return c.lastRead }

func (c *fakeConn) IssueWrite(resp *slot.Envelope, tag cqueue.Tag, q *cqueue.Queue) {
	c.writes = append(c.writes, resp)
	ok := c.nextWriteOK
	if len(c.writeOKSeq) > 0 {
		ok = c.writeOKSeq[0]
		c.writeOKSeq = c.writeOKSeq[1:]
	}
	q.Post(tag, ok)
}

func (c *fakeConn) IssueFinish(resp *slot.Envelope, st status.Status, tag cqueue.Tag, q *cqueue.Queue) {
	c.finishes = append(c.finishes, finishCall{resp, st})
	q.Post(tag, c.nextFinishOK)
}

func (c *fakeConn) Peer() string                        { return "ipv4:127.0.0.1:9" }
func (c *fakeConn) ClientMetadata() rpcctx.Metadata      { return rpcctx.Metadata{} }
func (c *fakeConn) Deadline() (time.Time, bool)          { return time.Time{}, false }

var _ = Describe("Slot unary", func() {
	It("processes accept then finish then re-arms (L1 unary echo)", func() {
		var seen *slot.Envelope
		b := &slot.Binding{Shape: slot.Unary, UnaryFn: func(ctx *slot.UnaryHandle, req *slot.Envelope) *slot.Envelope {
			seen = req
			return req
		}}
		q := cqueue.New()
		conn := newFakeConn()
		conn.reads = []*slot.Envelope{{Body: []byte("ping")}}
		conn.lastRead = conn.reads[0]

		rearmed := false
		s := slot.New(b, conn, q, func() { rearmed = true })
		q.Post(s, true) // synthetic ACCEPT/ok

		ev, _, _ := q.Wait(backgroundCtx())
		s.Advance(ev.Ok) // ACCEPT/ok -> FINISH
		Expect(s.State()).To(Equal(slot.Finish))
		Expect(seen.Body).To(Equal([]byte("ping")))
		Expect(conn.finishes).To(HaveLen(1))
		Expect(conn.finishes[0].resp.Body).To(Equal([]byte("ping")))

		ev, _, _ = q.Wait(backgroundCtx())
		s.Advance(ev.Ok) // FINISH -> re-arm (Done)
		Expect(s.State()).To(Equal(slot.Done))
		Expect(rearmed).To(BeTrue())
	})

	It("goes straight to DONE on ACCEPT/!ok (shutdown)", func() {
		b := &slot.Binding{Shape: slot.Unary, UnaryFn: func(*slot.UnaryHandle, *slot.Envelope) *slot.Envelope { return nil }}
		q := cqueue.New()
		conn := newFakeConn()
		rearmed := false
		s := slot.New(b, conn, q, func() { rearmed = true })
		s.Advance(false)
		Expect(s.State()).To(Equal(slot.Done))
		Expect(rearmed).To(BeTrue())
	})
})

var _ = Describe("Slot server-stream", func() {
	It("delivers N responses in order then finishes successfully (L2, scenario 2)", func() {
		const n = 10
		count := 0
		b := &slot.Binding{Shape: slot.ServerStream, ServerStreamFn: func(ctx *slot.ServerStreamHandle, req *slot.Envelope) *slot.Envelope {
			if ctx.StreamStatus() != rpcctx.Streaming {
				return nil // cleanup call after terminal transition
			}
			count++
			if count > n {
				ctx.SetHasMore(false)
				return nil
			}
			ctx.SetHasMore(true)
			return &slot.Envelope{Body: []byte{byte(count)}}
		}}
		q := cqueue.New()
		conn := newFakeConn()
		s := slot.New(b, conn, q, nil)

		s.Advance(true) // ACCEPT/ok
		Expect(s.State()).To(Equal(slot.Write))

		for i := 0; i < n-1; i++ {
			ev, _, _ := q.Wait(backgroundCtx())
			s.Advance(ev.Ok)
		}
		Expect(s.State()).To(Equal(slot.Write))
		Expect(conn.writes).To(HaveLen(n))

		// final write completion -> handler sees hasMore=false -> FINISH
		ev, _, _ := q.Wait(backgroundCtx())
		s.Advance(ev.Ok)
		Expect(s.State()).To(Equal(slot.Finish))

		ev, _, _ = q.Wait(backgroundCtx())
		s.Advance(ev.Ok) // FINISH/ok -> success cleanup -> re-arm
		Expect(s.State()).To(Equal(slot.Done))

		for i, w := range conn.writes {
			Expect(w.Body).To(Equal([]byte{byte(i + 1)}))
		}
	})

	It("marks the stream ERROR on WRITE/!ok and still finishes (B3-shaped)", func() {
		calls := 0
		b := &slot.Binding{Shape: slot.ServerStream, ServerStreamFn: func(ctx *slot.ServerStreamHandle, req *slot.Envelope) *slot.Envelope {
			calls++
			if ctx.StreamStatus() == rpcctx.Error {
				return nil
			}
			ctx.SetHasMore(true)
			return &slot.Envelope{Body: []byte("x")}
		}}
		q := cqueue.New()
		conn := newFakeConn()
		conn.nextWriteOK = false
		s := slot.New(b, conn, q, nil)

		s.Advance(true) // ACCEPT/ok -> issues a write
		ev, _, _ := q.Wait(backgroundCtx())
		Expect(ev.Ok).To(BeFalse())
		s.Advance(ev.Ok) // WRITE/!ok
		Expect(s.State()).To(Equal(slot.Finish))
		Expect(calls).To(Equal(2)) // one normal + one cleanup call
	})
})

var _ = Describe("Slot client-stream", func() {
	It("accumulates N requests then answers on half-close (scenario 3)", func() {
		var received []string
		b := &slot.Binding{Shape: slot.ClientStream, ClientStreamFn: func(ctx *slot.ClientStreamHandle, req *slot.Envelope) *slot.Envelope {
			if req == nil {
				return &slot.Envelope{Body: []byte("true")}
			}
			received = append(received, string(req.Body))
			return nil
		}}
		q := cqueue.New()
		conn := newFakeConn()
		for i := 1; i <= 20; i++ {
			conn.reads = append(conn.reads, &slot.Envelope{Body: []byte{byte(i)}})
		}
		s := slot.New(b, conn, q, nil)

		s.Advance(true) // ACCEPT/ok -> issues Read
		for i := 0; i < 20; i++ {
			ev, _, _ := q.Wait(backgroundCtx())
			s.Advance(ev.Ok)
		}
		Expect(received).To(HaveLen(20))

		// 21st read fails == half-close
		ev, _, _ := q.Wait(backgroundCtx())
		Expect(ev.Ok).To(BeFalse())
		s.Advance(ev.Ok)
		Expect(s.State()).To(Equal(slot.Finish))
		Expect(conn.finishes).To(HaveLen(1))
		Expect(conn.finishes[0].resp.Body).To(Equal([]byte("true")))
	})
})
