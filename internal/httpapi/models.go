package httpapi

import (
	"net/http"
	"sort"
	"sync"
	"time"
)

type modelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// staticModelFallback is the whole catalogue /v1/models serves; no
// upstream catalogue is fetched. It lists the four base aliases of the
// model-variant resolver's table, not their -thinking variants.
var staticModelFallback = []modelEntry{
	{ID: "claude-4-opus", Object: "model", Created: 1735689600, OwnedBy: "anthropic"},
	{ID: "claude-4-sonnet", Object: "model", Created: 1735689600, OwnedBy: "anthropic"},
	{ID: "claude-3-5-sonnet", Object: "model", Created: 1729555200, OwnedBy: "anthropic"},
	{ID: "claude-3-5-haiku", Object: "model", Created: 1729555200, OwnedBy: "anthropic"},
}

const modelCacheTTL = 5 * time.Minute

var (
	modelCacheMu      sync.Mutex
	modelCacheEntries []modelEntry
	modelCacheAt      time.Time
)

// handleModels serves /v1/models: a TTL-cached copy of the static
// table, sorted by created descending as OpenAI-compatible clients
// expect.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	entries := cachedModelList()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"object": "list",
		"data":   entries,
	})
}

func cachedModelList() []modelEntry {
	modelCacheMu.Lock()
	defer modelCacheMu.Unlock()

	if time.Since(modelCacheAt) < modelCacheTTL && modelCacheEntries != nil {
		return modelCacheEntries
	}

	entries := make([]modelEntry, len(staticModelFallback))
	copy(entries, staticModelFallback)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Created > entries[j].Created })

	modelCacheEntries = entries
	modelCacheAt = time.Now()
	return entries
}
