package thinkingcache

import (
	"context"

	"github.com/nextlevelbuilder/claude-relay/internal/kvstore"
)

// remoteKeyPrefix namespaces thinking-cache entries within the shared
// Upstash instance, away from credential-store keys.
const remoteKeyPrefix = "thinking:"

// UpstashTier adapts a kvstore.Client to the Cache's RemoteTier
// interface.
type UpstashTier struct {
	kv *kvstore.Client
}

// NewUpstashTier wraps an already-configured kvstore.Client.
func NewUpstashTier(kv *kvstore.Client) *UpstashTier {
	return &UpstashTier{kv: kv}
}

func (t *UpstashTier) Get(ctx context.Context, key string) (string, bool, error) {
	return t.kv.Get(ctx, remoteKeyPrefix+key)
}

func (t *UpstashTier) SetEx(ctx context.Context, key, value string, ttlSeconds int) error {
	return t.kv.SetEx(ctx, remoteKeyPrefix+key, value, ttlSeconds)
}
