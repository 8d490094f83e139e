// Command rpcflow-router fronts a downstream rpcflow server, forwarding
// ping/echostream calls to it while answering shutdown/health locally.
//
// Grounded on original_source/examples/router/router.cpp's MyRouter
// (AddService<HelloService>(targetHost, targetPort), AddService<ControlService>())
// and rclone-rclone's cobra-based CLI entrypoint shape.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvaistore-labs/rpcflow/internal/grpctransport"
	"github.com/nvaistore-labs/rpcflow/pkg/registry"
	"github.com/nvaistore-labs/rpcflow/pkg/router"
	"github.com/nvaistore-labs/rpcflow/pkg/rpcclient"
	"github.com/nvaistore-labs/rpcflow/pkg/server"
	"github.com/nvaistore-labs/rpcflow/pkg/slot"
	"github.com/nvaistore-labs/rpcflow/pkg/xconfig"
	"github.com/nvaistore-labs/rpcflow/pkg/xlog"
	"github.com/nvaistore-labs/rpcflow/services/forwarding"
	"github.com/nvaistore-labs/rpcflow/services/healthcheck"
	"github.com/nvaistore-labs/rpcflow/services/shutdown"
)

func main() {
	xlog.SetTitle("rpcflow-router")
	defer xlog.Flush()

	var cfgFile string
	var async bool
	cfg := xconfig.Default()
	cfg.ListenAddr = "0.0.0.0:50056"

	root := &cobra.Command{
		Use:   "rpcflow-router",
		Short: "Forward calls to a downstream rpcflow server",
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := xconfig.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if cmd.Flags().Changed("listen") {
				loaded.ListenAddr = cfg.ListenAddr
			}
			if cmd.Flags().Changed("downstream") {
				loaded.DownstreamAddr = cfg.DownstreamAddr
			}
			if cmd.Flags().Changed("unary-timeout-ms") {
				loaded.UnaryTimeoutMs = cfg.UnaryTimeoutMs
			}
			if loaded.DownstreamAddr == "" {
				return fmt.Errorf("--downstream is required")
			}
			return runRouter(loaded, async)
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "optional JSON config file")
	root.Flags().StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "address to listen on")
	root.Flags().StringVar(&cfg.DownstreamAddr, "downstream", cfg.DownstreamAddr, "downstream rpcflow server address")
	root.Flags().IntVar(&cfg.UnaryTimeoutMs, "unary-timeout-ms", cfg.UnaryTimeoutMs, "forwarded unary call timeout, in milliseconds")
	root.Flags().BoolVar(&async, "async-bridge", false, "use the async (decoupled-goroutine) server-stream bridge instead of sync")

	if err := root.Execute(); err != nil {
		xlog.Errorf("rpcflow-router: %v", err)
		xlog.Flush()
		os.Exit(1)
	}
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

func runRouter(cfg xconfig.Config, async bool) error {
	stub := rpcclient.New(cfg.DownstreamAddr)
	dialCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := stub.Init(dialCtx); err != nil {
		return fmt.Errorf("dialing downstream %s: %w", cfg.DownstreamAddr, err)
	}

	bridgeMode := router.BridgeSync
	if async {
		bridgeMode = router.BridgeAsync
	}
	r := router.New(stub, time.Duration(cfg.UnaryTimeoutMs)*time.Millisecond,
		router.WithBridgeMode(bridgeMode),
		router.WithCallHooks(router.CallHooks{
			OnCallBegin: func(peer string) any {
				trace := router.TraceID()
				xlog.Infof("forward: trace=%s peer=%s begin", trace, peer)
				return trace
			},
			OnCallEnd: func(peer string, userParam any) {
				xlog.Infof("forward: trace=%v peer=%s end", userParam, peer)
			},
		}),
	)

	reg := registry.New()
	if err := reg.AddService(forwarding.Service{
		ServiceName: "ping",
		Router:      r,
		Methods:     []forwarding.MethodSpec{{Method: "Ping", Shape: slot.Unary}},
	}); err != nil {
		return err
	}
	if err := reg.AddService(forwarding.Service{
		ServiceName: "echostream",
		Router:      r,
		Methods:     []forwarding.MethodSpec{{Method: "Stream", Shape: slot.ServerStream}},
	}); err != nil {
		return err
	}
	if err := reg.AddService(healthcheck.Service{Reg: reg}); err != nil {
		return err
	}
	stopper := &coreStopper{}
	if err := reg.AddService(shutdown.Service{Core: stopper}); err != nil {
		return err
	}

	alloc := &grpctransport.Allocator{}
	core := server.New(cfg, reg, alloc)
	stopper.core = core

	xlog.Infof("rpcflow-router: forwarding %s -> %s", cfg.ListenAddr, cfg.DownstreamAddr)
	return core.Run(context.Background())
}
