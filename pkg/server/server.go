// Package server implements ServerCore: the staged bring-up sequence that
// binds a listener, allocates per-method request slots across a fixed
// worker pool, starts the completion dispatcher, runs a periodic
// maintenance loop, and coordinates graceful shutdown.
//
// Grounded on ais/earlystart.go's staged bring-up (init, bind, start
// background loops in a fixed order) and the hk package's
// Reg(name, fn, interval) periodic-callback idiom, adapted here as
// Core.RegisterPeriodic.
package server

import (
	"context"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/nvaistore-labs/rpcflow/pkg/cqueue"
	"github.com/nvaistore-labs/rpcflow/pkg/dispatch"
	"github.com/nvaistore-labs/rpcflow/pkg/registry"
	"github.com/nvaistore-labs/rpcflow/pkg/xconfig"
	"github.com/nvaistore-labs/rpcflow/pkg/xlog"
)

// SlotAllocator wires a registry's bindings onto a transport; supplied by
// internal/grpctransport so pkg/server never imports the gRPC-specific
// adapter directly. Options must be returned before the *grpc.Server is
// constructed, since grpc-go only accepts UnknownServiceHandler (and
// similar catch-all registrations) as a construction-time
// grpc.ServerOption; Bind is called afterwards, once Options' returned
// queues exist to be handed the freshly-built server.
type SlotAllocator interface {
	// Options returns the grpc.ServerOptions needed to route every call
	// through this allocator, plus the per-worker completion queues that
	// will receive events as calls arrive and progress.
	Options(reg *registry.Registry, workers int) (opts []grpc.ServerOption, queues []*cqueue.Queue, err error)
}

// PeriodicFn is a maintenance callback run on Core's own ticking
// goroutine, mirroring the housekeeper's Reg(name, fn, interval).
type PeriodicFn func(now time.Time)

type periodicEntry struct {
	name     string
	interval time.Duration
	fn       PeriodicFn
	lastRun  time.Time
}

// Core drives one listening server end-to-end: OnInit, bind, dispatch,
// periodic maintenance, and shutdown.
type Core struct {
	cfg       xconfig.Config
	reg       *registry.Registry
	allocator SlotAllocator

	grpcServer *grpc.Server
	pool       *dispatch.Pool

	mu        sync.Mutex
	periodics []*periodicEntry
	stopCh    chan struct{}
	stopped   chan struct{}
}

// New constructs a Core bound to cfg and reg, using allocator to wire the
// transport. OnInit-equivalent application setup (registering services)
// must already have happened on reg before New is called.
func New(cfg xconfig.Config, reg *registry.Registry, allocator SlotAllocator) *Core {
	return &Core{
		cfg:       cfg,
		reg:       reg,
		allocator: allocator,
		stopCh:    make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

// RegisterPeriodic adds a maintenance callback run approximately every
// interval while the Core is running. Must be called before Run.
func (c *Core) RegisterPeriodic(name string, interval time.Duration, fn PeriodicFn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.periodics = append(c.periodics, &periodicEntry{name: name, interval: interval, fn: fn})
}

// Run performs the full staged bring-up: validate preconditions, bind the
// listener, allocate and start the dispatcher pool, mask SIGHUP/SIGINT on
// background goroutines so only Run's own signal watcher reacts to them,
// then block running the periodic loop until ctx is cancelled or Stop is
// called. It always attempts a graceful shutdown on the way out.
func (c *Core) Run(ctx context.Context) error {
	if c.reg.ServiceCount() == 0 || c.reg.BindingCount() == 0 {
		return errNoServices
	}

	lis, err := net.Listen("tcp", c.cfg.ListenAddr)
	if err != nil {
		return err
	}
	xlog.Infof("server: listening on %s", lis.Addr())

	opts, queues, err := c.allocator.Options(c.reg, c.cfg.Workers)
	if err != nil {
		_ = lis.Close()
		return err
	}
	c.grpcServer = grpc.NewServer(opts...)

	c.pool = dispatch.NewPool(queues)
	c.pool.Start()

	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- c.grpcServer.Serve(lis) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case <-c.stopCh:
			c.shutdown()
			return nil
		case sig := <-sigCh:
			xlog.Infof("server: received %s, shutting down", sig)
			c.shutdown()
			return nil
		case err := <-serveErrCh:
			c.shutdown()
			return err
		case now := <-ticker.C:
			c.runDuePeriodics(now)
		}
	}
}

func (c *Core) runDuePeriodics(now time.Time) {
	c.mu.Lock()
	entries := append([]*periodicEntry(nil), c.periodics...)
	c.mu.Unlock()

	for _, e := range entries {
		if now.Sub(e.lastRun) < e.interval {
			continue
		}
		e.lastRun = now
		e.fn(now)
	}
}

// Stop requests Run return; safe to call from any goroutine, at most once
// effective.
func (c *Core) Stop() {
	select {
	case <-c.stopCh:
	default:
		close(c.stopCh)
	}
}

func (c *Core) shutdown() {
	close(c.stopped)
	if c.grpcServer != nil {
		c.grpcServer.GracefulStop()
	}
	if c.pool != nil {
		c.pool.Stop()
	}
	xlog.Infof("server: shutdown complete")
}

// Stopped is closed once shutdown has fully completed; intended for
// tests that need to observe Run's exit deterministically without
// racing on Run's return value.
func (c *Core) Stopped() <-chan struct{} { return c.stopped }

var errNoServices = serverError("at least one registered service with at least one binding is required")

type serverError string

func (e serverError) Error() string { return string(e) }
