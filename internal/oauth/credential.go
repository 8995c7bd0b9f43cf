// Package oauth manages the single OAuth credential the proxy holds for
// its Anthropic developer-console identity: loading it, refreshing it
// when near or past expiry, and persisting it through a pluggable store.
package oauth

import "context"

// Credential is the persisted OAuth record. All fields are non-empty
// when the credential is present; Expires is an absolute instant
// (milliseconds since epoch), never a duration.
type Credential struct {
	Type         string `json:"type"` // always "oauth"
	RefreshToken string `json:"refresh_token"`
	AccessToken  string `json:"access_token"`
	Expires      int64  `json:"expires"` // ms since epoch
}

// IsOAuth reports whether this credential is a well-formed oauth record.
func (c *Credential) IsOAuth() bool {
	return c != nil && c.Type == "oauth" && c.AccessToken != ""
}

// Store is the pluggable backend for credential persistence. Selection
// between backends happens once at startup; there is no runtime
// rebinding. The store is the single source of truth — callers must not
// cache a decoded credential across calls, re-reading before every use
// so refreshes elsewhere are observed immediately.
type Store interface {
	Get(ctx context.Context, key string) (*Credential, error) // nil, nil if absent
	Set(ctx context.Context, key string, cred *Credential) error
	Remove(ctx context.Context, key string) error
	GetAll(ctx context.Context) (map[string]*Credential, error)
}

// DefaultKey is the credential-store key this proxy always uses: it
// holds exactly one identity.
const DefaultKey = "anthropic"
