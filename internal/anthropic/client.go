package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.anthropic.com/v1"
	apiVersion     = "2023-06-01"

	// baselineBetas are sent on every call. oauth-2025-04-20 is required
	// for Anthropic to accept an OAuth bearer token at all;
	// fine-grained-tool-streaming and prompt-caching are always safe to
	// request and match what the OAuth-based clients in the wild send.
	baselineBetas           = "oauth-2025-04-20,fine-grained-tool-streaming-2025-05-14,prompt-caching-2024-07-31"
	interleavedThinkingBeta = "interleaved-thinking-2025-05-14"

	// clientApp and userAgent identify this proxy's upstream calls the
	// way every OAuth-bearer client in the ecosystem does, since Anthropic
	// correlates OAuth traffic by client fingerprint.
	clientApp = "cli"
	userAgent = "claude-relay/1.0 (external, cli)"
)

// StatusError is returned when the upstream responds with a non-2xx
// status; the handler maps it back into an OpenAI-shaped error body.
type StatusError struct {
	Status int
	Body   ErrorBody
	Raw    []byte
}

func (e *StatusError) Error() string {
	if e.Body.Error.Message != "" {
		return fmt.Sprintf("anthropic: %d %s: %s", e.Status, e.Body.Error.Type, e.Body.Error.Message)
	}
	return fmt.Sprintf("anthropic: %d: %s", e.Status, string(e.Raw))
}

// Client dispatches requests to the Messages API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client against the default Anthropic base URL.
func NewClient() *Client {
	return &Client{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 10 * time.Minute},
	}
}

// WithBaseURL overrides the upstream base URL, used by tests against a
// local httptest server.
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = baseURL
	return c
}

// Dispatch POSTs body to /messages with the given bearer token and
// returns the raw response body stream along with the upstream response
// headers, so the caller can forward them per spec. Callers are
// responsible for closing the body. stream controls both the request's
// "stream" field (set by the caller inside body) and the Accept header
// sent here.
func (c *Client) Dispatch(ctx context.Context, accessToken string, body map[string]interface{}, stream bool) (io.ReadCloser, http.Header, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, nil, fmt.Errorf("anthropic: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("anthropic: build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("anthropic-version", apiVersion)
	req.Header.Set("anthropic-beta", betaHeader(body))
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("x-app", clientApp)
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("anthropic: request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		var eb ErrorBody
		_ = json.Unmarshal(raw, &eb)
		return nil, nil, &StatusError{Status: resp.StatusCode, Body: eb, Raw: raw}
	}

	return resp.Body, resp.Header, nil
}

// ForwardableHeaders copies h into dst, excluding the hop-by-hop and
// framing headers the proxy's own response writer controls: the upstream
// response was decoded (content-length/encoding no longer apply) and the
// transport sets its own transfer-encoding.
func ForwardableHeaders(dst http.Header, h http.Header) {
	for name, values := range h {
		switch strings.ToLower(name) {
		case "content-encoding", "content-length", "transfer-encoding":
			continue
		}
		for _, v := range values {
			dst.Add(name, v)
		}
	}
}

// betaHeader builds the anthropic-beta header value: the baseline list
// required on every OAuth-bearer call, plus interleaved thinking
// whenever the outgoing body enables extended thinking.
func betaHeader(body map[string]interface{}) string {
	if _, hasThinking := body["thinking"]; hasThinking {
		return baselineBetas + "," + interleavedThinkingBeta
	}
	return baselineBetas
}
