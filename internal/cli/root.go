// Package cli implements the thread2page commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/blackmichael/bluesky-thread2page/internal/bluesky"
	"github.com/blackmichael/bluesky-thread2page/internal/bot"
	"github.com/blackmichael/bluesky-thread2page/internal/compiler"
	"github.com/blackmichael/bluesky-thread2page/internal/config"
	"github.com/blackmichael/bluesky-thread2page/internal/rehost"
	"github.com/blackmichael/bluesky-thread2page/internal/sqlite"
	"github.com/blackmichael/bluesky-thread2page/internal/telegraph"
)

var (
	configPath string
	dryRun     bool
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:          "thread2page",
	Short:        "Compile Bluesky threads into Telegraph pages",
	Long:         "A Bluesky bot that answers mentions with a Telegraph page holding the whole thread.",
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("THREAD2PAGE_CONFIG"), "YAML config file (environment variables override it)")
	RootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "Compile and log without publishing or replying")
}

func newLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dryRun {
		cfg.DryRun = true
	}
	return cfg, nil
}

// app is the wired bot with the resources it owns.
type app struct {
	service *bot.Service
	network *bluesky.Client
	repo    *sqlite.Repository
	cache   *rehost.RedisCache
	comp    *compiler.Compiler
}

func (a *app) Close() {
	if a.cache != nil {
		a.cache.Close()
	}
	a.repo.Close()
}

// newApp logs in to the network and wires the bot's collaborators.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	if err := cfg.RequireCredentials(); err != nil {
		return nil, err
	}

	repo, err := sqlite.NewRepository(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("create repository: %w", err)
	}
	a := &app{repo: repo}

	a.network = bluesky.NewClient(cfg.BlueskyAPIURL)
	if err := a.network.Login(ctx, cfg.Identifier, cfg.Password); err != nil {
		a.Close()
		return nil, fmt.Errorf("login: %w", err)
	}
	logger.Info("logged in", "did", a.network.DID(), "handle", a.network.Handle())

	publisher := telegraph.NewClient(cfg.TelegraphAPIURL, cfg.TelegraphUploadURL)

	var cache rehost.Cache
	if cfg.RedisURL != "" {
		a.cache, err = rehost.NewRedisCache(cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		cache = a.cache
		logger.Info("image rehost cache enabled")
	}
	rehoster := rehost.New(publisher, cache, logger)

	a.comp = compiler.New(cfg.Compiler)
	a.service, err = bot.NewService(a.network, publisher, rehoster, a.comp, repo, repo, cfg.BotOptions(), logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create bot service: %w", err)
	}

	return a, nil
}
