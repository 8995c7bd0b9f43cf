package oauth

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nextlevelbuilder/claude-relay/internal/kvstore"
)

// remoteKeyPrefix namespaces credential-store keys within the shared
// Upstash instance, away from thinking-cache entries.
const remoteKeyPrefix = "oauth:"

// RemoteStore persists credentials to a remote REST key-value service
// (Upstash Redis REST). Each identity is one key; no size cap or TTL
// applies here, unlike the thinking cache's persistent tier.
type RemoteStore struct {
	kv *kvstore.Client
}

// NewRemoteStore wraps an already-configured kvstore.Client.
func NewRemoteStore(kv *kvstore.Client) *RemoteStore {
	return &RemoteStore{kv: kv}
}

func (r *RemoteStore) Get(ctx context.Context, key string) (*Credential, error) {
	raw, ok, err := r.kv.Get(ctx, remoteKeyPrefix+key)
	if err != nil || !ok {
		return nil, nil // read errors return "not found", per spec
	}
	var cred Credential
	if err := json.Unmarshal([]byte(raw), &cred); err != nil {
		return nil, nil
	}
	return &cred, nil
}

func (r *RemoteStore) Set(ctx context.Context, key string, cred *Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("oauth: marshal credential: %w", err)
	}
	return r.kv.Set(ctx, remoteKeyPrefix+key, string(data))
}

func (r *RemoteStore) Remove(ctx context.Context, key string) error {
	return r.kv.Del(ctx, remoteKeyPrefix+key)
}

// GetAll is not efficiently supported by the Upstash REST key-value
// surface (no key-scan call is wired here); the proxy only ever looks up
// a single well-known key, so this returns just that entry when present.
func (r *RemoteStore) GetAll(ctx context.Context) (map[string]*Credential, error) {
	cred, err := r.Get(ctx, DefaultKey)
	if err != nil || cred == nil {
		return map[string]*Credential{}, nil
	}
	return map[string]*Credential{DefaultKey: cred}, nil
}
