// Package telemetry installs a global tracer provider that exports to
// an OTLP collector; it creates no spans of its own. The
// exporter itself is compiled only with '-tags otel' (see otel.go);
// the default build links noop.go instead, so a plain build never
// pulls in the gRPC/HTTP exporter dependency tree.
package telemetry

import (
	"context"

	"github.com/nextlevelbuilder/claude-relay/internal/config"
)

// Shutdown flushes and tears down the tracer provider, if one is active.
type Shutdown func(ctx context.Context) error

// Setup starts the tracer provider described by cfg, returning
// a Shutdown to call on exit. When cfg.Enabled is false, or
// this binary was built without '-tags otel', Setup is a no-op.
var Setup func(ctx context.Context, cfg config.TelemetryConfig) (Shutdown, error) = setup
