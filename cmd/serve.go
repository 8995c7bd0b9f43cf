package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/claude-relay/internal/anthropic"
	"github.com/nextlevelbuilder/claude-relay/internal/config"
	"github.com/nextlevelbuilder/claude-relay/internal/httpapi"
	"github.com/nextlevelbuilder/claude-relay/internal/kvstore"
	"github.com/nextlevelbuilder/claude-relay/internal/oauth"
	"github.com/nextlevelbuilder/claude-relay/internal/pipeline"
	"github.com/nextlevelbuilder/claude-relay/internal/telemetry"
	"github.com/nextlevelbuilder/claude-relay/internal/thinkingcache"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP proxy surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLogging(cfg.Debug)

	shutdownTelemetry, err := telemetry.Setup(context.Background(), cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry setup: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			slog.Warn("telemetry.shutdown_failed", "error", err)
		}
	}()

	credStore, cacheTier, err := buildStorage(cfg)
	if err != nil {
		return fmt.Errorf("build storage: %w", err)
	}

	oauthMgr := oauth.New(credStore, cfg.OAuthClientID)
	cancelScheduler := oauthMgr.StartRefreshScheduler(context.Background(), time.Duration(cfg.RefreshSchedulerIntervalSeconds)*time.Second)
	defer cancelScheduler()

	cache := thinkingcache.New(
		cfg.ThinkingCacheLocalCap,
		time.Duration(cfg.ThinkingCacheTTLDays)*24*time.Hour,
		cacheTier,
	)

	pl := &pipeline.Pipeline{
		OAuth:    oauthMgr,
		Cache:    cache,
		Upstream: anthropic.NewClient(),
		APIKey:   cfg.APIKey,
	}

	server := &httpapi.Server{
		Pipeline: pl,
		OAuth:    oauthMgr,
		Cache:    cache,
		APIKey:   cfg.APIKey,
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      server.BuildMux(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming responses run open-ended
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server.listening", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		slog.Info("server.shutting_down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(ctx)
	}
}

func buildStorage(cfg *config.Config) (oauth.Store, thinkingcache.RemoteTier, error) {
	if !cfg.UpstashConfigured() {
		return oauth.NewFileStore(".auth_data.json"), nil, nil
	}

	kv := kvstore.New(cfg.Upstash.URL, cfg.Upstash.Token)
	return oauth.NewRemoteStore(kv), thinkingcache.NewUpstashTier(kv), nil
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
