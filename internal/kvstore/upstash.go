// Package kvstore implements a minimal client for the Upstash Redis REST
// API: plain HTTP GET calls over a bearer-authenticated REST
// endpoint rather than the RESP protocol. It backs both the OAuth
// credential store's remote tier and the thinking-block cache's
// persistent tier — the same Upstash instance, partitioned by key
// prefix, the way the teacher's provider clients each wrap one REST
// base URL behind a small typed client (internal/providers/anthropic.go,
// internal/providers/openai.go).
package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to an Upstash Redis REST endpoint.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a client for the given Upstash REST base URL and token.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type upstashResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

func (c *Client) do(ctx context.Context, path string) (*upstashResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("kvstore: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kvstore: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("kvstore: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("kvstore: upstash returned %d: %s", resp.StatusCode, string(body))
	}

	var out upstashResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("kvstore: decode response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("kvstore: upstash error: %s", out.Error)
	}
	return &out, nil
}

// Get returns the raw string value for key, or ("", false, nil) if absent.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	out, err := c.do(ctx, "/get/"+pathEscape(key))
	if err != nil {
		return "", false, err
	}
	if out.Result == nil || string(out.Result) == "null" {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(out.Result, &s); err != nil {
		return "", false, fmt.Errorf("kvstore: non-string value for %q", key)
	}
	return s, true, nil
}

// Set writes key=value with no expiry.
func (c *Client) Set(ctx context.Context, key, value string) error {
	_, err := c.do(ctx, "/set/"+pathEscape(key)+"/"+pathEscape(value))
	return err
}

// SetEx writes key=value with a TTL in seconds.
func (c *Client) SetEx(ctx context.Context, key, value string, ttlSeconds int) error {
	_, err := c.do(ctx, fmt.Sprintf("/set/%s/%s?EX=%d", pathEscape(key), pathEscape(value), ttlSeconds))
	return err
}

// Del removes key.
func (c *Client) Del(ctx context.Context, key string) error {
	_, err := c.do(ctx, "/del/"+pathEscape(key))
	return err
}

func pathEscape(s string) string {
	// Upstash's REST path form accepts URL-safe segments. Space, slash,
	// '#', '?' and '&' are percent-escaped here; no other character is
	// altered.
	r := strings.NewReplacer(" ", "%20", "/", "%2F", "#", "%23", "?", "%3F", "&", "%26")
	return r.Replace(s)
}
