package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rmax-ai/sirsim/pkg/api"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve POST /v1/simulations, the run history and /metrics.

Runs are stored when store.path is set and summaries are cached when
redis.addr is set. Artifacts are written under <output.dir>/artifacts.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := newLogger(cfg)
			logger.Info("system_started", "version", version)

			d, err := buildDeps(ctx, cfg, logger, true)
			if err != nil {
				return err
			}
			defer d.Close()

			srv := api.NewServer(d.service, cfg.Server.Addr, logger)
			srv.SetArtifacts(d.blobs)
			srv.SetToken(cfg.Server.Token)
			srv.SetTLS(cfg.Server.TLSCert, cfg.Server.TLSKey)

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				logger.Info("shutdown_initiated")
			}

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if err := srv.Stop(shutdownCtx); err != nil {
				logger.Error("server_shutdown_failed", "error", err)
				return err
			}
			logger.Info("shutdown_complete")
			return nil
		},
	}
	cmd.Flags().String("config", "", "Path to YAML or JSON config file")
	cmd.Flags().String("addr", "", "Listen address (overrides server.addr)")
	return cmd
}
