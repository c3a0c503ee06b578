package query

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/mnemora/mnemora/engine/knowledge"
	"github.com/mnemora/mnemora/pkg/logger"
)

const hydeSystemPrompt = "You write hypothetical document excerpts for a " +
	"search engine. Given a user query, reply with a short passage of 2-3 " +
	"sentences written as if excerpted from a real document that answers the " +
	"query. Reply with the passage only, no preamble."

const (
	// hydeMinWords gates expansion: short, specific queries skip it.
	hydeMinWords = 4

	defaultHydeTimeout   = 5 * time.Second
	defaultHydeCacheSize = 256
	hydeTemperature      = 0.1
	hydeMaxTokens        = 150
)

type expansionEntry struct {
	passage string
	at      time.Time
}

// Expander generates hypothetical matching passages for long-enough queries.
// Any provider error or timeout degrades silently to the literal query; an
// expansion failure must never fail the surrounding search.
type Expander struct {
	model      llms.Model
	timeout    time.Duration
	maxEntries int
	now        func() time.Time

	mu    sync.Mutex
	cache map[string]expansionEntry
}

// ExpanderOption configures an Expander.
type ExpanderOption func(*Expander)

// WithTimeout bounds one expansion call.
func WithTimeout(d time.Duration) ExpanderOption {
	return func(e *Expander) { e.timeout = d }
}

// WithCacheSize caps the expansion cache entry count.
func WithCacheSize(size int) ExpanderOption {
	return func(e *Expander) { e.maxEntries = size }
}

// WithClock injects the cache timestamp source.
func WithClock(now func() time.Time) ExpanderOption {
	return func(e *Expander) { e.now = now }
}

// NewExpander builds an expander over the given chat model. Construct one per
// process at startup; the cache is process-wide.
func NewExpander(model llms.Model, opts ...ExpanderOption) *Expander {
	e := &Expander{
		model:      model,
		timeout:    defaultHydeTimeout,
		maxEntries: defaultHydeCacheSize,
		now:        time.Now,
		cache:      make(map[string]expansionEntry),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand returns the literal query plus an optional hypothetical passage. The
// passage is empty when the query is too short, the provider fails, or the
// call times out.
func (e *Expander) Expand(ctx context.Context, query string) (literal, passage string) {
	literal = strings.TrimSpace(query)
	if len(strings.Fields(literal)) < hydeMinWords {
		knowledge.RecordQueryExpansion(ctx, "skipped")
		return literal, ""
	}
	key := normalizeQuery(literal)
	if cached, ok := e.lookup(key); ok {
		knowledge.RecordQueryExpansion(ctx, "cached")
		return literal, cached
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	response, err := e.model.GenerateContent(callCtx,
		[]llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeSystem, hydeSystemPrompt),
			llms.TextParts(llms.ChatMessageTypeHuman, literal),
		},
		llms.WithTemperature(hydeTemperature),
		llms.WithMaxTokens(hydeMaxTokens),
	)
	if err != nil || len(response.Choices) == 0 {
		logger.FromContext(ctx).Debug("query expansion degraded", "error", err)
		knowledge.RecordQueryExpansion(ctx, "degraded")
		return literal, ""
	}
	passage = strings.TrimSpace(response.Choices[0].Content)
	if passage == "" {
		knowledge.RecordQueryExpansion(ctx, "degraded")
		return literal, ""
	}
	e.store(key, passage)
	knowledge.RecordQueryExpansion(ctx, "expanded")
	return literal, passage
}

// Clear empties the cache. Intended for tests.
func (e *Expander) Clear() {
	e.mu.Lock()
	e.cache = make(map[string]expansionEntry)
	e.mu.Unlock()
}

func (e *Expander) lookup(key string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.cache[key]
	return entry.passage, ok
}

func (e *Expander) store(key, passage string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.cache) >= e.maxEntries {
		e.evictOldestHalf()
	}
	e.cache[key] = expansionEntry{passage: passage, at: e.now()}
}

// evictOldestHalf drops the oldest half of the cache in one pass. Deliberately
// simpler than strict LRU; the cache is small and expansion calls are cheap to
// redo.
func (e *Expander) evictOldestHalf() {
	type keyed struct {
		key string
		at  time.Time
	}
	entries := make([]keyed, 0, len(e.cache))
	for key, entry := range e.cache {
		entries = append(entries, keyed{key: key, at: entry.at})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].at.Before(entries[j].at) })
	for _, entry := range entries[:(len(entries)+1)/2] {
		delete(e.cache, entry.key)
	}
}

// normalizeQuery lowercases and collapses whitespace so trivially different
// spellings share a cache slot.
func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}
