package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/nextlevelbuilder/claude-relay/internal/anthropic"
	"github.com/nextlevelbuilder/claude-relay/internal/modelvariant"
	"github.com/nextlevelbuilder/claude-relay/internal/oauth"
	"github.com/nextlevelbuilder/claude-relay/internal/openaiwire"
	"github.com/nextlevelbuilder/claude-relay/internal/thinkingcache"
)

// Pipeline wires together the components a single request needs. One
// Pipeline is shared across all requests; it holds no per-request
// state.
type Pipeline struct {
	OAuth       *oauth.Manager
	Cache       *thinkingcache.Cache
	Upstream    *anthropic.Client
	APIKey      string // inbound bearer gate; empty disables the check
}

// Authorize implements step 1: if an API key is configured, a
// mismatching bearer is rejected.
func (p *Pipeline) Authorize(bearer string) *Error {
	if p.APIKey == "" {
		return nil
	}
	if bearer != p.APIKey {
		return authMissingErr("unauthorized")
	}
	return nil
}

// Handle runs the full 9-step pipeline for one request and writes the
// response (streaming or not) directly to w. correlationID is a
// per-request id used only for log correlation.
func (p *Pipeline) Handle(ctx context.Context, w http.ResponseWriter, req *InboundRequest, openAIFormat bool, correlationID string, now int64) {
	// Step 2: resolve variant, selective gateway, BYOK bypass.
	if SelectiveGatewayRejects(req) {
		writeJSONError(w, 404, ModelNotSupportedBody())
		return
	}
	if IsBYOKProbe(req) {
		if req.Stream {
			writeSSEChunks(w, CannedBypassStream(req.Model, now))
			return
		}
		writeJSON(w, 200, CannedBypassNonStream(req.Model, now))
		return
	}
	variant := modelvariant.Resolve(req.Model)

	// Step 3: rewrite body (system lift + persona + normalize).
	rewrite := RewriteBody(req)

	// Step 4: acquire token.
	token, ok := p.OAuth.AccessToken(ctx)
	if !ok {
		writeError(w, authMissingErr("no usable access token; run `claude-relay login`"))
		return
	}

	// Step 5 & 6: build upstream body, inject cached thinking w/ downgrade.
	build, err := BuildUpstreamBody(ctx, req, rewrite, variant, p.Cache)
	if err != nil {
		writeError(w, proxyErr(err))
		return
	}
	if build.Downgraded {
		slog.Warn("pipeline.thinking_downgraded", "correlation_id", correlationID)
	}

	// Step 7: dispatch.
	respBody, upstreamHeaders, dispatchErr := p.Upstream.Dispatch(ctx, token, build.Body, req.Stream)
	if dispatchErr != nil {
		writeError(w, classifyDispatchError(dispatchErr))
		return
	}
	defer respBody.Close()
	anthropic.ForwardableHeaders(w.Header(), upstreamHeaders)

	// Step 8 & 9: handle response, post-stream caching.
	if req.Stream {
		p.handleStreamingResponse(ctx, w, respBody, req.Model, openAIFormat, now, correlationID)
		return
	}
	p.handleNonStreamingResponse(ctx, w, respBody, req.Model, openAIFormat, now)
}

func (p *Pipeline) handleStreamingResponse(ctx context.Context, w http.ResponseWriter, upstream io.Reader, clientModel string, openAIFormat bool, now int64, correlationID string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, _ := w.(http.Flusher)

	if !openAIFormat {
		// Pass the upstream SSE bytes through unchanged.
		_, _ = io.Copy(w, upstream)
		if flusher != nil {
			flusher.Flush()
		}
		return
	}

	state := anthropic.NewStreamConverterState(clientModel, now)
	reachedMessageStop := false

	err := anthropic.Translate(upstream, state, func(chunk *openaiwire.Chunk) {
		if chunk == nil {
			// message_stop reached cleanly: write the terminal marker.
			reachedMessageStop = true
			fmt.Fprint(w, "data: [DONE]\n\n")
			if flusher != nil {
				flusher.Flush()
			}
			return
		}
		data, err := json.Marshal(chunk)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		if flusher != nil {
			flusher.Flush()
		}
	})
	if err != nil {
		slog.Warn("pipeline.stream_translate_error", "correlation_id", correlationID, "error", err)
		return
	}
	if !reachedMessageStop {
		// Upstream stream ended (e.g. truncated mid content_block) without
		// a message_stop event: end the stream without a [DONE] marker and
		// without caching a half-formed thinking block.
		slog.Warn("pipeline.stream_truncated", "correlation_id", correlationID)
		return
	}

	p.writeBackThinking(ctx, state, correlationID)
}

func (p *Pipeline) handleNonStreamingResponse(ctx context.Context, w http.ResponseWriter, upstream io.Reader, clientModel string, openAIFormat bool, now int64) {
	raw, err := io.ReadAll(upstream)
	if err != nil {
		writeError(w, proxyErr(err))
		return
	}

	if !openAIFormat {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(200)
		w.Write(raw)
		return
	}

	var resp anthropic.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		writeError(w, proxyErr(err))
		return
	}

	completion := anthropic.ConvertNonStream(&resp, clientModel, now)
	writeJSON(w, 200, completion)

	if blockType, text, sig, data, ok := anthropic.CapturedThinking(&resp); ok {
		go p.writeBackThinkingNonStream(context.Background(), &resp, blockType, text, sig, data)
	}
}

func classifyDispatchError(err error) *Error {
	if se, ok := err.(*anthropic.StatusError); ok {
		if se.Status == 401 {
			return authRejectedErr()
		}
		return upstreamErr(se.Status, string(se.Raw))
	}
	return proxyErr(err)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeJSONError(w http.ResponseWriter, status int, body map[string]interface{}) {
	writeJSON(w, status, body)
}

// writeSSEChunks writes a fixed, pre-built sequence of chunks as an SSE
// response followed by the terminal [DONE] marker, the same framing
// Translate's emit callback produces for a real upstream stream.
func writeSSEChunks(w http.ResponseWriter, chunks []openaiwire.Chunk) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, _ := w.(http.Flusher)

	for _, c := range chunks {
		data, err := json.Marshal(c)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		if flusher != nil {
			flusher.Flush()
		}
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}

func writeError(w http.ResponseWriter, e *Error) {
	switch e.Kind {
	case KindUpstreamError:
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(e.Status)
		_, _ = w.Write([]byte(e.RawUpstream))
	default:
		writeJSON(w, e.Status, map[string]interface{}{
			"error": map[string]interface{}{
				"message": e.Message,
				"type":    "invalid_request_error",
			},
		})
	}
}

// writeBackThinking fires the post-stream cache write, cancellation-safe
// against the original request context by using a fresh background
// context with its own short deadline.
func (p *Pipeline) writeBackThinking(_ context.Context, state *anthropic.StreamConverterState, correlationID string) {
	blockType, text, sig, data, ok := state.CapturedThinking()
	if !ok {
		return
	}
	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		content := state.CanonicalAssistantContent()
		if len(content) == 0 {
			return
		}
		p.Cache.WriteForMessage(bgCtx, content, thinkingcache.ThinkingBlock{Type: blockType, Thinking: text, Signature: sig, Data: data})
		slog.Debug("pipeline.thinking_cached", "correlation_id", correlationID)
	}()
}

func (p *Pipeline) writeBackThinkingNonStream(ctx context.Context, resp *anthropic.Response, blockType, text, sig, data string) {
	bgCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var blocks []anthropic.ContentBlock
	for _, b := range resp.Content {
		if b.Type == "thinking" || b.Type == "redacted_thinking" {
			continue
		}
		blocks = append(blocks, b)
	}
	content, err := json.Marshal(blocks)
	if err != nil || len(blocks) == 0 {
		return
	}
	p.Cache.WriteForMessage(bgCtx, content, thinkingcache.ThinkingBlock{Type: blockType, Thinking: text, Signature: sig, Data: data})
}
