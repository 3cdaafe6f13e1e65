package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sitewatch/visitorfn/internal/server"
)

func newServeCmd() *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the function's routes over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}
			s := sessionFrom(cmd)

			cfg := server.DefaultConfig()
			cfg.Address = s.config.Server.Address
			cfg.ReadTimeout = s.config.Server.ReadTimeout
			cfg.WriteTimeout = s.config.Server.WriteTimeout
			cfg.EnableMetrics = s.config.Server.EnableMetrics
			if address != "" {
				cfg.Address = address
			}

			srv := server.New(cfg, app, app.Metrics(), s.logger.Named("server"))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			s.logger.Info("shutdown signal received")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("graceful shutdown failed", zap.Error(err))
				return err
			}
			return <-errCh
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "listen address, overrides server.address")
	return cmd
}
