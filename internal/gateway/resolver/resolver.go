// Package resolver implements ModelResolver (C2): override table ->
// static default table -> passthrough.
package resolver

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/openaicompat/bedrock-gateway/internal/store"
)

// defaults is the gateway's own static table shipped with the binary,
// keyed by the client-facing OpenAI model id.
var defaults = map[string]string{
	"gpt-4":              "global.anthropic.claude-sonnet-4-5-20250929-v1:0",
	"gpt-4-turbo":        "global.anthropic.claude-sonnet-4-5-20250929-v1:0",
	"gpt-4o":             "global.anthropic.claude-sonnet-4-5-20250929-v1:0",
	"gpt-4o-mini":        "global.anthropic.claude-haiku-4-5-20251001-v1:0",
	"gpt-3.5-turbo":       "global.anthropic.claude-haiku-4-5-20251001-v1:0",
	"claude-sonnet-4-5-20250929": "global.anthropic.claude-sonnet-4-5-20250929-v1:0",
	"claude-haiku-4-5-20251001":  "global.anthropic.claude-haiku-4-5-20251001-v1:0",
	"claude-opus-4-1-20250805":   "global.anthropic.claude-opus-4-1-20250805-v1:0",
}

// Resolver resolves client model ids to upstream model ids, reading a
// cached snapshot of the KeyStore override table refreshed at most once
// per refreshInterval.
type Resolver struct {
	store store.ModelMappingRepository

	mu       sync.RWMutex
	override map[string]string
	loadedAt time.Time

	refreshInterval time.Duration
}

func New(s store.ModelMappingRepository, refreshInterval time.Duration) *Resolver {
	return &Resolver{store: s, refreshInterval: refreshInterval, override: map[string]string{}}
}

// Resolve maps openAIModelID to the id the upstream expects: override
// table, then static default, then passthrough.
func (r *Resolver) Resolve(ctx context.Context, openAIModelID string) (string, error) {
	r.ensureFresh(ctx)

	r.mu.RLock()
	if v, ok := r.override[openAIModelID]; ok {
		r.mu.RUnlock()
		return v, nil
	}
	r.mu.RUnlock()

	if v, ok := defaults[openAIModelID]; ok {
		return v, nil
	}
	return openAIModelID, nil
}

func (r *Resolver) ensureFresh(ctx context.Context) {
	r.mu.RLock()
	fresh := time.Since(r.loadedAt) < r.refreshInterval
	r.mu.RUnlock()
	if fresh {
		return
	}

	rows, err := r.store.List(ctx)
	if err != nil {
		// keep serving the stale snapshot on a transient store error
		return
	}

	next := make(map[string]string, len(rows))
	for _, row := range rows {
		next[row.OpenAIModelID] = row.UpstreamModelID
	}

	r.mu.Lock()
	r.override = next
	r.loadedAt = time.Now()
	r.mu.Unlock()
}

// ListKnownIDs returns the union of default and override model ids,
// sorted lexicographically, for GET /v1/models.
func (r *Resolver) ListKnownIDs(ctx context.Context) []string {
	r.ensureFresh(ctx)

	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{}, len(defaults)+len(r.override))
	for id := range defaults {
		seen[id] = struct{}{}
	}
	for id := range r.override {
		seen[id] = struct{}{}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
