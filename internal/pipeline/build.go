package pipeline

import (
	"context"
	"encoding/json"

	"github.com/nextlevelbuilder/claude-relay/internal/modelvariant"
	"github.com/nextlevelbuilder/claude-relay/internal/thinkingcache"
)

// UpstreamBuild is the outcome of building the upstream request body:
// the body itself plus whether the thinking beta header should be set.
type UpstreamBuild struct {
	Body             map[string]interface{}
	ThinkingBetaOn   bool
	Downgraded       bool // thinking was requested but removed for missing cache coverage
}

// BuildUpstreamBody applies the field whitelist, sets model/system/max_tokens
// from the resolved variant, enables thinking when the variant calls for
// it, injects cached thinking blocks into prior assistant turns, and
// silently downgrades (strips thinking) when injection cannot cover every
// assistant message. On downgrade the client's req.Temperature is
// restored; when it is nil the temperature field is left out.
func BuildUpstreamBody(ctx context.Context, req *InboundRequest, rewrite RewriteResult, variant modelvariant.Variant, cache *thinkingcache.Cache) (UpstreamBuild, error) {
	messages, err := toUpstreamMessages(rewrite.Messages)
	if err != nil {
		return UpstreamBuild{}, err
	}

	maxTokens := variant.MaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	if maxTokens == 0 {
		maxTokens = 4096
	}

	body := map[string]interface{}{
		"model":      variant.UpstreamModel,
		"messages":   messages,
		"system":     rewrite.System,
		"max_tokens": maxTokens,
	}
	if req.Stream {
		body["stream"] = true
	}
	if stop := req.stopSequences(); len(stop) > 0 {
		body["stop_sequences"] = stop
	}
	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		body["top_p"] = *req.TopP
	}
	if req.TopK != nil {
		body["top_k"] = *req.TopK
	}
	if len(req.Metadata) > 0 {
		body["metadata"] = req.Metadata
	}
	if len(req.Tools) > 0 {
		body["tools"] = req.Tools
	}
	if len(req.ToolChoice) > 0 {
		body["tool_choice"] = req.ToolChoice
	}

	result := UpstreamBuild{Body: body}

	if variant.Thinking == nil {
		return result, nil
	}

	body["thinking"] = map[string]interface{}{
		"type":          "enabled",
		"budget_tokens": variant.Thinking.BudgetTokens,
	}
	body["temperature"] = 1
	result.ThinkingBetaOn = true

	cacheMessages := toCacheMessages(rewrite.Messages)
	injectResult := cache.Inject(ctx, cacheMessages)
	if !injectResult.CanUseThinking {
		delete(body, "thinking")
		result.ThinkingBetaOn = false
		result.Downgraded = true
		if req.Temperature != nil {
			body["temperature"] = *req.Temperature
		} else {
			delete(body, "temperature")
		}
		return result, nil
	}

	rebuilt, err := injectedMessagesToUpstream(cacheMessages)
	if err != nil {
		return UpstreamBuild{}, err
	}
	body["messages"] = rebuilt

	return result, nil
}

func toUpstreamMessages(messages []InboundMessage) ([]map[string]interface{}, error) {
	out := make([]map[string]interface{}, 0, len(messages))
	for _, m := range messages {
		var content interface{}
		if err := json.Unmarshal(m.Content, &content); err != nil {
			return nil, err
		}
		out = append(out, map[string]interface{}{
			"role":    m.Role,
			"content": content,
		})
	}
	return out, nil
}

func toCacheMessages(messages []InboundMessage) []*thinkingcache.Message {
	out := make([]*thinkingcache.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, &thinkingcache.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

func injectedMessagesToUpstream(messages []*thinkingcache.Message) ([]map[string]interface{}, error) {
	out := make([]map[string]interface{}, 0, len(messages))
	for _, m := range messages {
		var content interface{}
		if err := json.Unmarshal(m.Content, &content); err != nil {
			return nil, err
		}
		out = append(out, map[string]interface{}{
			"role":    m.Role,
			"content": content,
		})
	}
	return out, nil
}
