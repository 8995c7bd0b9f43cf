// Package httpapi wires the proxy's HTTP surface: the chat-completions
// translation path, the auth endpoints, the model catalogue, and the
// status/health probes.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nextlevelbuilder/claude-relay/internal/oauth"
	"github.com/nextlevelbuilder/claude-relay/internal/pipeline"
	"github.com/nextlevelbuilder/claude-relay/internal/thinkingcache"
)

// Server holds the shared dependencies every handler needs and caches
// the built mux, mirroring the teacher's BuildMux pattern.
type Server struct {
	Pipeline     *pipeline.Pipeline
	OAuth        *oauth.Manager
	Cache        *thinkingcache.Cache
	APIKey       string
	AllowOrigins []string

	handler http.Handler
}

// BuildMux constructs (once) and returns the server's routed handler,
// with a permissive CORS-preflight responder wrapping every path.
func (s *Server) BuildMux() http.Handler {
	if s.handler != nil {
		return s.handler
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleLoginUI)
	mux.HandleFunc("GET /index.html", s.handleLoginUI)

	mux.HandleFunc("POST /auth/oauth/start", s.handleOAuthStart)
	mux.HandleFunc("POST /auth/oauth/callback", s.handleOAuthCallback)
	mux.HandleFunc("POST /auth/login/start", s.handleLoginStart)
	mux.HandleFunc("GET /auth/logout", s.handleLogout)
	mux.HandleFunc("GET /auth/status", s.handleAuthStatus)

	mux.HandleFunc("GET /v1", s.handleStatus)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/models", s.handleModels)

	mux.HandleFunc("POST /v1/chat/completions", s.withCORS(s.handleChatCompletions))
	mux.HandleFunc("POST /v1/messages", s.withCORS(s.handleChatCompletions))
	mux.HandleFunc("GET /v1/chat/completions", methodNotAllowed)
	mux.HandleFunc("GET /v1/messages", methodNotAllowed)

	mux.HandleFunc("/", s.handleNotFound) // catches any method/path not matched above

	s.handler = s.corsPreflight(mux)
	return s.handler
}

// corsPreflight intercepts OPTIONS requests to any path before they
// reach the underlying mux's routing.
func (s *Server) corsPreflight(mux *http.ServeMux) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			s.writeCORSHeaders(w, r)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		mux.ServeHTTP(w, r)
	}
}

func (s *Server) withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeCORSHeaders(w, r)
		next(w, r)
	}
}

func (s *Server) writeCORSHeaders(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	if !s.originAllowed(origin) {
		slog.Warn("security.cors_rejected", "origin", origin)
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
}

func (s *Server) originAllowed(origin string) bool {
	if len(s.AllowOrigins) == 0 {
		return true // permissive by default, matching the spec's "permissive preflight"
	}
	for _, a := range s.AllowOrigins {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]interface{}{
		"error": map[string]interface{}{
			"message": "unknown endpoint",
			"type":    "invalid_request_error",
		},
		"available_endpoints": []string{
			"/", "/auth/oauth/start", "/auth/oauth/callback", "/auth/login/start",
			"/auth/logout", "/auth/status", "/v1", "/v1/models", "/v1/chat/completions", "/v1/messages",
		},
	})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]interface{}{
		"error": map[string]interface{}{
			"message": "use POST for this endpoint",
			"type":    "invalid_request_error",
		},
	})
}

func extractBearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	return strings.TrimPrefix(h, "Bearer ")
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
