package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/claude-relay/internal/anthropic"
	"github.com/nextlevelbuilder/claude-relay/internal/oauth"
	"github.com/nextlevelbuilder/claude-relay/internal/pipeline"
	"github.com/nextlevelbuilder/claude-relay/internal/thinkingcache"
)

type memStore struct{ cred *oauth.Credential }

func (m *memStore) Get(ctx context.Context, key string) (*oauth.Credential, error) { return m.cred, nil }
func (m *memStore) Set(ctx context.Context, key string, cred *oauth.Credential) error {
	m.cred = cred
	return nil
}
func (m *memStore) Remove(ctx context.Context, key string) error { m.cred = nil; return nil }
func (m *memStore) GetAll(ctx context.Context) (map[string]*oauth.Credential, error) {
	return map[string]*oauth.Credential{}, nil
}

func TestHandleChatCompletions_RejectsMismatchedAPIKey(t *testing.T) {
	s := &Server{
		Pipeline: &pipeline.Pipeline{APIKey: "expected-key"},
		Cache:    thinkingcache.New(1, time.Hour, nil),
	}
	mux := s.BuildMux()

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer wrong-key")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestHandleChatCompletions_MalformedJSONReturns400(t *testing.T) {
	s := &Server{
		Pipeline: &pipeline.Pipeline{},
		Cache:    thinkingcache.New(1, time.Hour, nil),
	}
	mux := s.BuildMux()

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`not json`))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestToolCount(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"absent", "", 0},
		{"empty array", `[]`, 0},
		{"two tools", `[{"name":"get_weather"},{"name":"get_time"}]`, 2},
		{"malformed", `not json`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := toolCount([]byte(tt.raw)); got != tt.want {
				t.Errorf("toolCount(%q) = %d, want %d", tt.raw, got, tt.want)
			}
		})
	}
}

func TestHandleChatCompletions_FullRoundTrip(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"msg_77","model":"claude-3-5-sonnet-20241022","stop_reason":"end_turn","content":[{"type":"text","text":"hi"}],"usage":{"input_tokens":4,"output_tokens":2}}`))
	}))
	defer upstream.Close()

	store := &memStore{cred: &oauth.Credential{Type: "oauth", AccessToken: "tok", Expires: time.Now().Add(time.Hour).UnixMilli()}}
	s := &Server{
		Pipeline: &pipeline.Pipeline{
			OAuth:    oauth.New(store, ""),
			Cache:    thinkingcache.New(10, time.Hour, nil),
			Upstream: anthropic.NewClient().WithBaseURL(upstream.URL),
		},
		Cache: thinkingcache.New(10, time.Hour, nil),
	}
	mux := s.BuildMux()

	body := `{"model":"claude-3-5-sonnet","max_tokens":100,"messages":[{"role":"user","content":"hello, a real question"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"hi"`) {
		t.Errorf("expected translated completion content in body, got %s", w.Body.String())
	}
}
