// Command rpcflow-server wires the illustrative services (ping,
// shutdown, healthcheck, echostream) onto a pkg/server.Core and runs
// until terminated.
//
// Grounded on original_source/examples/server_complete/server.hpp's
// MyServer (AddService per service, a logging interceptor, periodic
// OnRun) and rclone-rclone's cobra-based CLI entrypoint shape.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/nvaistore-labs/rpcflow/internal/grpctransport"
	"github.com/nvaistore-labs/rpcflow/pkg/registry"
	"github.com/nvaistore-labs/rpcflow/pkg/rpcctx"
	"github.com/nvaistore-labs/rpcflow/pkg/server"
	"github.com/nvaistore-labs/rpcflow/pkg/xconfig"
	"github.com/nvaistore-labs/rpcflow/pkg/xlog"
	"github.com/nvaistore-labs/rpcflow/services/echostream"
	"github.com/nvaistore-labs/rpcflow/services/healthcheck"
	"github.com/nvaistore-labs/rpcflow/services/ping"
	"github.com/nvaistore-labs/rpcflow/services/shutdown"
)

func loggingInterceptor(method, peer string, md rpcctx.Metadata) {
	sessionID, _ := md.Get("sessionid")
	requestID, _ := md.Get("requestid")
	xlog.Infof("method=%q peer=%q sessionId=%q requestId=%q", method, peer, sessionID, requestID)
}

func main() {
	xlog.SetTitle("rpcflow-server")
	defer xlog.Flush()

	var cfgFile string
	cfg := xconfig.Default()

	root := &cobra.Command{
		Use:   "rpcflow-server",
		Short: "Run the illustrative rpcflow server",
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := xconfig.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			cfg = mergeFlags(loaded, cmd.Flags(), cfg)
			return runServer(cfg)
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "optional JSON config file")
	xconfig.BindFlags(root.Flags(), &cfg)

	if err := root.Execute(); err != nil {
		xlog.Errorf("rpcflow-server: %v", err)
		xlog.Flush()
		os.Exit(1)
	}
}

// mergeFlags keeps whichever of loaded (file) vs flagged (CLI,
// already parsed into flagged by cobra before RunE runs) values the
// flag layer actually set, so an unset flag doesn't clobber the file's
// value with a default.
func mergeFlags(loaded xconfig.Config, flags *pflag.FlagSet, flagged xconfig.Config) xconfig.Config {
	out := loaded
	if flags.Changed("listen") {
		out.ListenAddr = flagged.ListenAddr
	}
	if flags.Changed("workers") {
		out.Workers = flagged.Workers
	}
	if flags.Changed("unary-timeout-ms") {
		out.UnaryTimeoutMs = flagged.UnaryTimeoutMs
	}
	if flags.Changed("downstream") {
		out.DownstreamAddr = flagged.DownstreamAddr
	}
	return out
}

// coreStopper defers to a *server.Core set only after Run's
// registration-complete precondition is satisfied: server.New requires
// every service already registered on reg, but services.shutdown needs
// a Stopper at registration time to bind its handler, before a Core
// exists to hand it. coreStopper breaks that cycle.
type coreStopper struct{ core *server.Core }

func (c *coreStopper) Stop() {
	if c.core != nil {
		c.core.Stop()
	}
}

func runServer(cfg xconfig.Config) error {
	reg := registry.New()
	if err := reg.AddService(ping.Service{}); err != nil {
		return err
	}
	if err := reg.AddService(echostream.Service{}); err != nil {
		return err
	}
	if err := reg.AddService(healthcheck.Service{Reg: reg}); err != nil {
		return err
	}
	stopper := &coreStopper{}
	if err := reg.AddService(shutdown.Service{Core: stopper}); err != nil {
		return err
	}

	alloc := &grpctransport.Allocator{Interceptors: []grpctransport.Interceptor{loggingInterceptor}}
	core := server.New(cfg, reg, alloc)
	stopper.core = core

	core.RegisterPeriodic("heartbeat", 30*time.Second, func(time.Time) {
		xlog.Infof("rpcflow-server: alive")
	})

	xlog.Infof("rpcflow-server: starting on %s with %d workers", cfg.ListenAddr, cfg.Workers)
	return core.Run(context.Background())
}
