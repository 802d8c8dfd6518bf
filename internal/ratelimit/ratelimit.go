package ratelimit

import (
	"log/slog"
	"sync"
)

// Request kinds with their own quota.
const (
	PageFetch = "page"
	Gemini    = "gemini"
)

// Budget caps how many outbound requests of each kind one run may make.
// A limit of zero or less means unlimited.
type Budget struct {
	mu     sync.Mutex
	limits map[string]int
	used   map[string]int
	denied map[string]int
	log    *slog.Logger
}

// NewBudget creates a budget with the given per-kind limits.
func NewBudget(limits map[string]int, log *slog.Logger) *Budget {
	b := &Budget{
		limits: make(map[string]int, len(limits)),
		used:   make(map[string]int),
		denied: make(map[string]int),
		log:    log,
	}
	for k, v := range limits {
		b.limits[k] = v
	}
	return b
}

// Allow consumes one unit of kind and reports whether the request may go
// ahead. A nil Budget allows everything.
func (b *Budget) Allow(kind string) bool {
	if b == nil {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	limit := b.limits[kind]
	if limit > 0 && b.used[kind] >= limit {
		b.denied[kind]++
		if b.denied[kind] == 1 && b.log != nil {
			b.log.Warn("request budget exhausted", "kind", kind, "limit", limit)
		}
		return false
	}
	b.used[kind]++
	return true
}

// Reset zeroes the counters, used between scheduled runs.
func (b *Budget) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.used = make(map[string]int)
	b.denied = make(map[string]int)
}

// Stats returns used/limit/denied per known kind.
func (b *Budget) Stats() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]interface{})
	kinds := make(map[string]struct{})
	for k := range b.limits {
		kinds[k] = struct{}{}
	}
	for k := range b.used {
		kinds[k] = struct{}{}
	}
	for k := range kinds {
		out[k+"_used"] = b.used[k]
		out[k+"_limit"] = b.limits[k]
		out[k+"_denied"] = b.denied[k]
	}
	return out
}
