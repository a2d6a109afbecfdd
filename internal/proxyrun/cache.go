package proxyrun

import (
	"math"

	"github.com/viant/ultra-lean-mcp-proxy/internal/jsonval"
	"github.com/viant/ultra-lean-mcp-proxy/internal/state"
)

// cacheEligible reports whether toolName's results are candidates for the
// response cache (SPEC_FULL.md §4.7): caching must be on globally and for
// the tool, and a mutating-verb tool name must be explicitly opted back
// in via cache_mutating_tools.
func (s *Session) cacheEligible(toolName string) bool {
	if !s.cfg.CachingEnabled {
		return false
	}
	if !s.cfg.FeatureEnabledForTool(toolName, "caching", true) {
		return false
	}
	if state.IsMutatingToolName(toolName) && !s.cfg.CacheMutatingTools {
		return false
	}
	return true
}

// adaptiveTTL widens or narrows a tool's base TTL depending on whether
// the raw upstream payload changed since the last write to this key,
// tracked in a "cache_raw:" history namespace distinct from the delta
// baseline history (SPEC_FULL.md §4.7).
func (s *Session) adaptiveTTL(toolName, cacheKey string, rawResult jsonval.Value) int {
	base := s.cfg.CacheTTLForTool(toolName)
	ttl := base
	rawKey := "cache_raw:" + cacheKey
	if s.cfg.CacheAdaptiveTTL {
		if prevRaw, had := s.state.HistoryGet(rawKey); had {
			if jsonval.Equal(prevRaw, rawResult) {
				ttl = int(math.Min(float64(s.cfg.CacheTTLMaxSeconds), math.Floor(float64(base)*1.5)))
			} else {
				ttl = int(math.Max(float64(s.cfg.CacheTTLMinSeconds), math.Floor(float64(base)*0.5)))
			}
		}
	}
	s.state.HistorySet(rawKey, rawResult)
	if ttl < s.cfg.CacheTTLMinSeconds {
		ttl = s.cfg.CacheTTLMinSeconds
	}
	if ttl > s.cfg.CacheTTLMaxSeconds {
		ttl = s.cfg.CacheTTLMaxSeconds
	}
	return ttl
}
