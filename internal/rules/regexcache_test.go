package rules

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegexCacheCompilesAndCaches(t *testing.T) {
	cache := NewRegexCache(10)

	re := cache.Get(`(?i)\bswiggy\b`)
	require.NotNil(t, re)
	assert.True(t, re.MatchString("UPI SWIGGY order"))

	// Second lookup returns the same compiled instance.
	assert.Same(t, re, cache.Get(`(?i)\bswiggy\b`))
	assert.Equal(t, 1, cache.Size())
}

func TestRegexCacheInvalidPatternNeverMatches(t *testing.T) {
	cache := NewRegexCache(10)

	assert.Nil(t, cache.Get(`[unclosed`))
	// The failure is cached, not retried.
	assert.Nil(t, cache.Get(`[unclosed`))
	assert.Equal(t, 1, cache.Size())
}

func TestRegexCacheBounded(t *testing.T) {
	cache := NewRegexCache(1000)

	for i := 0; i < 1000; i++ {
		cache.Get(fmt.Sprintf("pattern%d", i))
	}
	assert.Equal(t, 1000, cache.Size())

	// The 1001st distinct pattern evicts exactly one entry, the oldest.
	cache.Get("pattern1000")
	assert.Equal(t, 1000, cache.Size())

	// pattern0 was evicted; re-fetching it works and evicts again.
	cache.Get("pattern0")
	assert.Equal(t, 1000, cache.Size())
}

func TestRegexCacheConcurrentAccess(t *testing.T) {
	cache := NewRegexCache(50)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				cache.Get(fmt.Sprintf("worker%d", i%100))
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, cache.Size(), 50)
}

func TestRegexCacheDefaultSize(t *testing.T) {
	cache := NewRegexCache(0)
	assert.Equal(t, 0, cache.Size())
	cache.Get("a")
	assert.Equal(t, 1, cache.Size())
}
