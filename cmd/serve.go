package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abhisek/gradewise/internal/app"
	"github.com/abhisek/gradewise/internal/metrics"
	"github.com/abhisek/gradewise/internal/observability"
	"github.com/abhisek/gradewise/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		cmd.SetContext(ctx)

		m := metrics.New()
		rt, err := openEngine(cmd, app.WithMetrics(m))
		if err != nil {
			return err
		}
		defer rt.Close()

		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			rt.cfg.Server.Addr = addr
		}

		shutdownTracing, err := observability.Init(ctx, rt.cfg.Tracing, version, rt.log)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer func() {
			if err := shutdownTracing(context.WithoutCancel(ctx)); err != nil {
				rt.log.Warn("flushing traces", zap.Error(err))
			}
		}()

		opts := server.Options{Metrics: m, Log: rt.log}
		if rt.cfg.Tracing.Enabled {
			opts.TraceService = rt.cfg.Tracing.ServiceName
		}
		srv := server.New(rt.engine, rt.cfg.Server, opts)

		go rt.engine.RunExpiry(ctx, rt.cfg.Server.ExpirySweep)
		return srv.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides server.addr)")
}
