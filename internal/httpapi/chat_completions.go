package httpapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/claude-relay/internal/contextusage"
	"github.com/nextlevelbuilder/claude-relay/internal/pipeline"
)

// handleChatCompletions serves both /v1/chat/completions and
// /v1/messages: format detection decides whether the upstream response
// is translated to OpenAI shape or passed through.
func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	correlationID := uuid.NewString()

	if authErr := s.Pipeline.Authorize(extractBearerToken(r)); authErr != nil {
		writeJSON(w, authErr.Status, map[string]interface{}{
			"error": map[string]interface{}{"message": authErr.Message, "type": "invalid_request_error"},
		})
		return
	}

	body, err := readBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": map[string]interface{}{"message": "could not read request body", "type": "invalid_request_error"},
		})
		return
	}

	var req pipeline.InboundRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": map[string]interface{}{"message": "malformed JSON body", "type": "invalid_request_error"},
		})
		return
	}

	openAIFormat := r.URL.Path == "/v1/chat/completions" || req.HasEmbeddedSystemMessages()

	logRequestSummary(&req, correlationID)

	now := time.Now().UnixMilli()
	s.Pipeline.Handle(r.Context(), w, &req, openAIFormat, correlationID, now)
}

func logRequestSummary(req *pipeline.InboundRequest, correlationID string) {
	var texts []string
	for _, m := range req.Messages {
		var s string
		if json.Unmarshal(m.Content, &s) == nil {
			texts = append(texts, s)
		}
	}
	summary := contextusage.Extract(texts, toolCount(req.Tools), len(req.Messages))
	slog.Info("proxy.request",
		"id", correlationID,
		"model", req.Model,
		"stream", req.Stream,
		"estimated_tokens", summary.EstimatedTokens,
		"message_count", summary.MessageCount,
		"tool_count", summary.ToolCount,
		"file_references", len(summary.FileReferences),
	)
}

// toolCount reports how many tool definitions the request carries, for the
// request-summary log line. raw is the request's top-level "tools" array,
// absent when the client sent none.
func toolCount(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var tools []json.RawMessage
	if err := json.Unmarshal(raw, &tools); err != nil {
		return 0
	}
	return len(tools)
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}
