package proxyrun

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/viant/ultra-lean-mcp-proxy/internal/config"
)

func TestCacheEligibleRespectsMutationDefault(t *testing.T) {
	s := testSession(t, nil)
	assert.True(t, s.cacheEligible("read_file"))
	assert.False(t, s.cacheEligible("delete_file"))
}

func TestCacheEligibleMutatingToolCanOptIn(t *testing.T) {
	s := testSession(t, func(c *config.Config) { c.CacheMutatingTools = true })
	assert.True(t, s.cacheEligible("delete_file"))
}

func TestCacheEligibleFalseWhenCachingDisabled(t *testing.T) {
	s := testSession(t, func(c *config.Config) { c.CachingEnabled = false })
	assert.False(t, s.cacheEligible("read_file"))
}

func TestAdaptiveTTLWidensOnStableResult(t *testing.T) {
	s := testSession(t, func(c *config.Config) {
		c.CacheAdaptiveTTL = true
		c.CacheTTLSeconds = 100
		c.CacheTTLMaxSeconds = 1000
	})
	raw := toolResult("stable")
	first := s.adaptiveTTL("read_file", "key1", raw)
	assert.Equal(t, 100, first)

	second := s.adaptiveTTL("read_file", "key1", raw)
	assert.Greater(t, second, 100)
}

func TestAdaptiveTTLNarrowsOnChangingResult(t *testing.T) {
	s := testSession(t, func(c *config.Config) {
		c.CacheAdaptiveTTL = true
		c.CacheTTLSeconds = 100
		c.CacheTTLMinSeconds = 10
	})
	s.adaptiveTTL("read_file", "key1", toolResult("v1"))
	second := s.adaptiveTTL("read_file", "key1", toolResult("v2"))
	assert.Less(t, second, 100)
}

func TestAdaptiveTTLDisabledReturnsBase(t *testing.T) {
	s := testSession(t, func(c *config.Config) {
		c.CacheAdaptiveTTL = false
		c.CacheTTLSeconds = 250
	})
	got := s.adaptiveTTL("read_file", "key1", toolResult("anything"))
	assert.Equal(t, 250, got)
}
