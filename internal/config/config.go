// Package config loads and holds the gateway's runtime configuration:
// an optional JSON5 file overlaid with environment variables, env always
// winning, following the same load shape as the provider credentials
// configs this proxy's teacher codebase uses.
package config

import (
	"os"
	"strconv"
)

// Config is the root configuration for the Claude Relay gateway.
type Config struct {
	Port   int    `json:"port"`
	Debug  bool   `json:"debug"`
	APIKey string `json:"-"` // inbound bearer gate; env only, never persisted to disk

	OAuthClientID string `json:"oauth_client_id,omitempty"`

	Upstash UpstashConfig `json:"upstash,omitempty"`

	ThinkingCacheTTLDays  int `json:"thinking_cache_ttl_days"`
	ThinkingCacheLocalCap int `json:"thinking_cache_local_cap"`

	RefreshSchedulerIntervalSeconds int `json:"refresh_scheduler_interval_seconds"`

	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
}

// UpstashConfig configures the remote REST key-value tier shared by the
// credential store and the thinking-block cache's persistent tier.
type UpstashConfig struct {
	URL   string `json:"-"` // env UPSTASH_REDIS_REST_URL only, never persisted
	Token string `json:"-"` // env UPSTASH_REDIS_REST_TOKEN only, never persisted
}

// TelemetryConfig configures the optional OpenTelemetry tracer, compiled
// only when built with '-tags otel'.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled,omitempty"`
	Endpoint    string `json:"endpoint,omitempty"`
	ServiceName string `json:"service_name,omitempty"`
	Insecure    bool   `json:"insecure,omitempty"`
}

const (
	placeholderUpstashURL   = "your-upstash-url"
	placeholderUpstashToken = "your-upstash-token"
)

// UpstashConfigured reports whether a usable (non-placeholder) remote
// key-value tier is configured.
func (c *Config) UpstashConfigured() bool {
	return c.Upstash.URL != "" && c.Upstash.URL != placeholderUpstashURL &&
		c.Upstash.Token != "" && c.Upstash.Token != placeholderUpstashToken
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Port:                            9095,
		ThinkingCacheTTLDays:            10,
		ThinkingCacheLocalCap:           100,
		RefreshSchedulerIntervalSeconds: 60,
		Telemetry: TelemetryConfig{
			ServiceName: "claude-relay",
		},
	}
}

// ApplyEnvOverrides overlays environment variables onto the config. Env
// vars always take precedence over file values, matching the teacher's
// config_load.go convention.
func (c *Config) ApplyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	envStr("ANTHROPIC_OAUTH_CLIENT_ID", &c.OAuthClientID)
	envStr("UPSTASH_REDIS_REST_URL", &c.Upstash.URL)
	envStr("UPSTASH_REDIS_REST_TOKEN", &c.Upstash.Token)
	envStr("API_KEY", &c.APIKey)

	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Port = port
		}
	}
	if v := os.Getenv("THINKING_CACHE_TTL_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days > 0 {
			c.ThinkingCacheTTLDays = days
		}
	}
	if v := os.Getenv("DEBUG"); v != "" {
		c.Debug = v == "true" || v == "1"
	}

	envStr("OTEL_SERVICE_NAME", &c.Telemetry.ServiceName)
	envStr("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Telemetry.Endpoint)
	if v := os.Getenv("OTEL_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}
}
