package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/elon-ai/dialogue-gateway/internal/gateway"
	"github.com/elon-ai/dialogue-gateway/internal/thinking"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway (default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

// runServe runs the gateway and, when configured, the prompt watcher until
// SIGINT/SIGTERM or the first component failure.
func runServe(ctx context.Context, opts *rootOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if err := setupLogging(cfg.LogLevel(), cfg.Monitoring.LogFormat, os.Stderr); err != nil {
		return err
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("init gateway: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(gw.Start)

	eg.Go(func() error {
		<-egCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return gw.Shutdown(shutdownCtx)
	})

	if cfg.Prompts.Watch && cfg.Prompts.Dir != "" {
		w, err := thinking.NewWatcher(cfg.Prompts.Dir, gw.Composer())
		if err != nil {
			log.Warn().Err(err).Msg("prompt hot reload disabled")
		} else {
			eg.Go(func() error { return w.Run(egCtx) })
		}
	}

	if err := eg.Wait(); err != nil {
		log.Error().Err(err).Msg("gateway exited with error")
		return err
	}
	return nil
}
