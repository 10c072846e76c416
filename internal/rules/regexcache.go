package rules

import (
	"log/slog"
	"regexp"
	"sync"
)

// DefaultRegexCacheSize bounds the shared compiled-pattern cache.
const DefaultRegexCacheSize = 1000

// RegexCache is a bounded, thread-safe cache of compiled patterns shared
// across all matching calls. It is an explicit, injected instance rather
// than package-level state so tests and tenants can isolate it. Failed
// compilations are cached as nil so a bad pattern is compiled (and logged)
// once, then treated as never-matching.
type RegexCache struct {
	entries map[string]*regexp.Regexp
	order   []string
	max     int
	mu      sync.RWMutex
}

// NewRegexCache creates a cache holding at most max compiled patterns.
// Non-positive max falls back to DefaultRegexCacheSize.
func NewRegexCache(max int) *RegexCache {
	if max <= 0 {
		max = DefaultRegexCacheSize
	}
	return &RegexCache{
		entries: make(map[string]*regexp.Regexp, max),
		order:   make([]string, 0, max),
		max:     max,
	}
}

// Get returns the compiled regex for pattern, compiling and caching it on
// first use. A nil result means the pattern does not compile; callers must
// treat that as "never matches".
func (c *RegexCache) Get(pattern string) *regexp.Regexp {
	c.mu.RLock()
	re, ok := c.entries[pattern]
	c.mu.RUnlock()
	if ok {
		return re
	}

	compiled, err := regexp.Compile(pattern)
	if err != nil {
		slog.Warn("invalid rule pattern, caching as never-match",
			"pattern", pattern, "error", err)
		compiled = nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another goroutine may have won the race.
	if re, ok := c.entries[pattern]; ok {
		return re
	}
	if len(c.order) >= c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[pattern] = compiled
	c.order = append(c.order, pattern)
	return compiled
}

// Size returns the number of cached patterns.
func (c *RegexCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
