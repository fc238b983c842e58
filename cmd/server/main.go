package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/pflag"

	"github.com/rpggio/triagewatch/internal/backend"
	"github.com/rpggio/triagewatch/internal/cache"
	"github.com/rpggio/triagewatch/internal/config"
	"github.com/rpggio/triagewatch/internal/domain/activity"
	"github.com/rpggio/triagewatch/internal/domain/finding"
	"github.com/rpggio/triagewatch/internal/domain/triage"
	"github.com/rpggio/triagewatch/internal/feed"
	"github.com/rpggio/triagewatch/internal/mcp"
	"github.com/rpggio/triagewatch/internal/sqlite"
	"github.com/rpggio/triagewatch/internal/stream"
	"github.com/rpggio/triagewatch/internal/transport"
)

var version = "dev"

func main() {
	configPath := pflag.StringP("config", "c", "", "path to a YAML config file")
	transportMode := pflag.StringP("transport", "t", "", "transport mode: stdio or http (overrides config)")
	showVersion := pflag.Bool("version", false, "print the version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if *transportMode != "" {
		cfg.Transport.Mode = *transportMode
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "config error: %v\n", err)
			os.Exit(1)
		}
	}

	logger, closeLog := newLogger(cfg)
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	store, closeStore, err := openCacheStore(ctx, cfg.Cache, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	sharedCache := cache.New(store, cache.Options{TTL: cfg.Cache.TTL, Logger: logger})

	client, err := backend.NewClient(backend.Config{
		BaseURL:       cfg.Backend.BaseURL,
		Token:         cfg.Backend.Token,
		Timeout:       cfg.Backend.Timeout,
		RetryAttempts: cfg.Backend.RetryAttempts,
		RetryDelay:    cfg.Backend.RetryDelay,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating backend client: %w", err)
	}

	activitySvc := activity.NewService(client, logger)
	findingSvc := finding.NewService(client, sharedCache, logger)
	triageSvc := triage.NewService(client, sharedCache, logger)

	feeds := feed.NewRegistry(feed.Deps{
		Activities: activitySvc,
		Findings:   findingSvc,
		Triage:     triageSvc,
		Cache:      sharedCache,
		Dialer:     client,
		Stream: stream.Options{
			InitialBackoff: cfg.Stream.InitialBackoff,
			MaxBackoff:     cfg.Stream.MaxBackoff,
		},
		PageSize: cfg.Backend.PageSize,
		Logger:   logger,
	})
	defer feeds.Close()

	tokens := transport.StaticTokens(cfg.Auth.Tokens)
	mcpServer := mcp.NewServer(mcp.Config{
		Services: mcp.Services{
			Feeds:    feeds,
			Findings: findingSvc,
			Triage:   triageSvc,
		},
		Resolver:      tokens,
		AuthEnabled:   cfg.Auth.Enabled,
		TransportMode: cfg.Transport.Mode,
		Version:       version,
		Logger:        logger,
	})

	if cfg.Transport.Mode == config.TransportStdio {
		return runStdioMode(ctx, logger, mcpServer)
	}

	var auth func(http.Handler) http.Handler
	if cfg.Auth.Enabled {
		auth = transport.AuthMiddleware(tokens)
	}
	return runHTTPMode(ctx, logger, mcpServer, feeds, auth, cfg.Addr())
}

func runStdioMode(ctx context.Context, logger *slog.Logger, mcpServer *sdkmcp.Server) error {
	logger.Info("starting stdio transport", "auth", "disabled")

	// Run blocks until stdin closes or the context is canceled.
	if err := mcpServer.Run(ctx, &sdkmcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stdio server: %w", err)
	}
	logger.Info("shutting down")
	return nil
}

func runHTTPMode(ctx context.Context, logger *slog.Logger, mcpServer *sdkmcp.Server, feeds *feed.Registry, auth func(http.Handler) http.Handler, addr string) error {
	mcpHandler := sdkmcp.NewStreamableHTTPHandler(
		func(r *http.Request) *sdkmcp.Server { return mcpServer },
		&sdkmcp.StreamableHTTPOptions{
			Stateless:      false,
			SessionTimeout: 30 * time.Minute,
		},
	)

	httpServer := &http.Server{
		Addr: addr,
		Handler: transport.NewServer(transport.Config{
			Feeds:  feeds,
			MCP:    mcpHandler,
			Auth:   auth,
			Logger: logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr, "auth", auth != nil)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger.Info("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// openCacheStore returns the in-memory store, or a SQLite store when a file
// path is configured. The SQLite store is purged of expired entries in the
// background until ctx ends.
func openCacheStore(ctx context.Context, cfg config.CacheConfig, logger *slog.Logger) (cache.Backend, func(), error) {
	if cfg.Path == "" || cfg.Path == ":memory:" {
		return cache.NewMemory(), func() {}, nil
	}

	if err := ensureDir(cfg.Path); err != nil {
		return nil, nil, fmt.Errorf("preparing cache path: %w", err)
	}
	db, err := sqlite.New(cfg.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening cache database: %w", err)
	}
	if err := db.RunMigrations(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrating cache database: %w", err)
	}

	repo := sqlite.NewCacheRepository(db)
	purgeCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		purgeExpired(purgeCtx, repo, cfg.TTL, logger)
	}()

	return repo, func() {
		cancel()
		<-done
		db.Close()
	}, nil
}

func purgeExpired(ctx context.Context, repo *sqlite.CacheRepository, ttl time.Duration, logger *slog.Logger) {
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := repo.Purge(ctx, now.Add(-ttl))
			if err != nil {
				logger.Warn("cache purge failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("purged expired cache entries", "count", n)
			}
		}
	}
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
