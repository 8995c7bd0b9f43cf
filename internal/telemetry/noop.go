//go:build !otel

package telemetry

import (
	"context"
	"log/slog"

	"github.com/nextlevelbuilder/claude-relay/internal/config"
)

func setup(ctx context.Context, cfg config.TelemetryConfig) (Shutdown, error) {
	if cfg.Enabled {
		slog.Warn("telemetry.disabled_at_build", "reason", "binary built without -tags otel")
	}
	return func(context.Context) error { return nil }, nil
}
