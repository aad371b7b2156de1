package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackmichael/bluesky-thread2page/internal/firehose"
	"github.com/blackmichael/bluesky-thread2page/internal/httpserver"
)

func init() {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Answer mentions as they arrive",
		Long:  "Watch the Jetstream firehose for mentions of the bot, serve the HTTP endpoints and forget old processed mentions, until interrupted.",
		Args:  cobra.NoArgs,
		RunE:  runWatch,
	}

	cmd.Flags().Duration("poll", 0, "Also poll notifications at this interval (0 disables)")

	RootCmd.AddCommand(cmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	logger := newLogger(os.Stdout)
	poll, _ := cmd.Flags().GetDuration("poll")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	subscriber := firehose.NewSubscriber(cfg.FirehoseURL, a.network.DID(), a.service, a.repo, logger)
	go func() {
		if err := subscriber.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Error("firehose subscriber exited with error", "error", err)
		}
	}()

	go a.service.StartCleanupJob(ctx, time.Hour, cfg.ProcessedRetention)

	if poll > 0 {
		go pollLoop(ctx, a, poll, logger)
	}

	server := httpserver.NewServer(cfg.Port, a.comp, logger)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server exited with error", "error", err)
		}
	}()

	logger.Info("watching for mentions", "port", cfg.Port, "did", a.network.DID(), "dry_run", cfg.DryRun)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig)
	case <-ctx.Done():
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down http server", "error", err)
	}

	return nil
}

// pollLoop catches mentions the firehose missed, e.g. while disconnected.
func pollLoop(ctx context.Context, a *app, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.service.ProcessNotifications(ctx); err != nil && ctx.Err() == nil {
				logger.Error("notification poll failed", "error", err)
			}
		}
	}
}
