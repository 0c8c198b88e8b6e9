package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yungbote/avatarworld/internal/app"
)

func newServeCmd(configPath *string) *cobra.Command {
	var shutdownTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log, err := newLogger()
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			a, err := app.NewWithLogger(ctx, log, *configPath)
			if err != nil {
				return err
			}
			if err := a.Start(); err != nil {
				_ = a.Shutdown(context.Background())
				return err
			}

			runErr := a.Run(ctx)
			log.Info("Shutting down", "timeout", shutdownTimeout.String())
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := a.Shutdown(shutdownCtx); err != nil {
				log.Warn("Shutdown incomplete", "error", err)
			}
			return runErr
		},
	}
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 30*time.Second, "how long to wait for in-flight work on exit")
	return cmd
}
