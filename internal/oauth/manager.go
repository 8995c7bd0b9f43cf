package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// defaultClientID is the compile-time constant, overridable by
// ANTHROPIC_OAUTH_CLIENT_ID, identifying this proxy to the token
// endpoint. It is not a secret — OAuth public clients use PKCE instead.
const defaultClientID = "9d1c250a-e61b-44d9-88ed-5944d1962f5e"

const tokenEndpoint = "https://console.anthropic.com/v1/oauth/token"

// Manager loads the stored credential, refreshes it when expired, and
// exposes the current access token. It never caches a decoded credential
// across calls — it re-reads the store every time, accepting the
// negligible cost to avoid refresh races, per spec.
type Manager struct {
	store    Store
	clientID string
	http     *http.Client
}

// New creates a Manager over store. clientID overrides the compile-time
// default when non-empty.
func New(store Store, clientID string) *Manager {
	if clientID == "" {
		clientID = defaultClientID
	}
	return &Manager{
		store:    store,
		clientID: clientID,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

// AccessToken returns the current usable access token, refreshing it if
// necessary. The second return value is false if no usable token is
// available (no credential, wrong type, or refresh failed/impossible).
func (m *Manager) AccessToken(ctx context.Context) (string, bool) {
	cred, err := m.store.Get(ctx, DefaultKey)
	if err != nil || !cred.IsOAuth() {
		return "", false
	}

	if cred.Expires > nowMillis() {
		return cred.AccessToken, true
	}

	if cred.RefreshToken == "" {
		return "", false
	}

	refreshed, err := m.refresh(ctx, cred.RefreshToken)
	if err != nil {
		slog.Warn("oauth.refresh_failed", "error", err)
		return "", false
	}
	return refreshed.AccessToken, true
}

type refreshRequest struct {
	GrantType    string `json:"grant_type"`
	RefreshToken string `json:"refresh_token"`
	ClientID     string `json:"client_id"`
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"` // seconds
}

// refresh exchanges refreshToken for a new access token and persists the
// result. Concurrent callers may both observe an expired token and both
// refresh — tolerated per spec; the store's last writer wins.
func (m *Manager) refresh(ctx context.Context, refreshToken string) (*Credential, error) {
	body, err := json.Marshal(refreshRequest{
		GrantType:    "refresh_token",
		RefreshToken: refreshToken,
		ClientID:     m.clientID,
	})
	if err != nil {
		return nil, fmt.Errorf("oauth: marshal refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("oauth: build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oauth: refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("oauth: read refresh response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("oauth: refresh rejected (%d): %s", resp.StatusCode, string(respBody))
	}

	var parsed refreshResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("oauth: decode refresh response: %w", err)
	}

	newRefresh := parsed.RefreshToken
	if newRefresh == "" {
		newRefresh = refreshToken // some refreshes omit a rotated refresh token
	}

	cred := &Credential{
		Type:         "oauth",
		RefreshToken: newRefresh,
		AccessToken:  parsed.AccessToken,
		Expires:      nowMillis() + parsed.ExpiresIn*1000,
	}

	if err := m.store.Set(ctx, DefaultKey, cred); err != nil {
		slog.Warn("oauth.store_write_failed", "error", err)
	}

	return cred, nil
}

// DefaultClientID returns the compile-time client id this proxy
// identifies itself with, absent an ANTHROPIC_OAUTH_CLIENT_ID override.
func DefaultClientID() string {
	return defaultClientID
}

type exchangeRequest struct {
	GrantType    string `json:"grant_type"`
	Code         string `json:"code"`
	ClientID     string `json:"client_id"`
	CodeVerifier string `json:"code_verifier,omitempty"`
}

// ExchangeCode trades an authorization code (plus its PKCE verifier,
// when the flow used one) for the first credential, persisting it.
// This is the callback half of the browser-driven authorize flow; the
// PKCE dance itself already happened in the operator's browser.
func (m *Manager) ExchangeCode(ctx context.Context, code, verifier string) error {
	body, err := json.Marshal(exchangeRequest{
		GrantType:    "authorization_code",
		Code:         code,
		ClientID:     m.clientID,
		CodeVerifier: verifier,
	})
	if err != nil {
		return fmt.Errorf("oauth: marshal exchange request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenEndpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("oauth: build exchange request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		return fmt.Errorf("oauth: exchange request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("oauth: read exchange response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("oauth: exchange rejected (%d): %s", resp.StatusCode, string(respBody))
	}

	var parsed refreshResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return fmt.Errorf("oauth: decode exchange response: %w", err)
	}

	cred := &Credential{
		Type:         "oauth",
		RefreshToken: parsed.RefreshToken,
		AccessToken:  parsed.AccessToken,
		Expires:      nowMillis() + parsed.ExpiresIn*1000,
	}
	return m.store.Set(ctx, DefaultKey, cred)
}

// Logout removes the stored credential.
func (m *Manager) Logout(ctx context.Context) error {
	return m.store.Remove(ctx, DefaultKey)
}

// Status reports whether a usable access token is currently available,
// without mutating state beyond the lazy refresh AccessToken may perform.
func (m *Manager) Status(ctx context.Context) bool {
	_, ok := m.AccessToken(ctx)
	return ok
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
