package proxyrun

import (
	"github.com/viant/ultra-lean-mcp-proxy/internal/jsonval"
	"github.com/viant/ultra-lean-mcp-proxy/internal/rpc"
	"github.com/viant/ultra-lean-mcp-proxy/internal/state"
)

// toolCallDecision is what handleToolsCallRequest hands back to the
// dispatcher: either an immediate response (search meta-tool, cache hit)
// or a pendingRequest to record before forwarding upstream.
type toolCallDecision struct {
	Response     jsonval.Value
	ShortCircuit bool
	Pending      pendingRequest
}

// handleToolsCallRequest implements SPEC_FULL.md §4.10's tools/call
// request handling: the search meta-tool is always answered locally, a
// cache hit bypasses the upstream (still passing through the delta
// engine), and everything else is forwarded with pending bookkeeping.
func (s *Session) handleToolsCallRequest(request jsonval.Value) toolCallDecision {
	params := rpc.Params(request)
	toolName, _ := params.Field("name").AsString()
	arguments := params.Field("arguments")

	if toolName == searchToolName {
		result := s.handleSearchTool(arguments)
		resp := rpc.NewResponse(rpc.JSONRPCVersion(request), rpc.ID(request), result)
		return toolCallDecision{Response: resp, ShortCircuit: true}
	}

	eligible := s.cacheEligible(toolName)
	cacheKey := ""
	if eligible {
		cacheKey = state.MakeCacheKey(s.cfg.SessionID, s.cfg.ServerName, toolName, arguments)
	}
	historyKey := cacheKey
	if historyKey == "" {
		historyKey = s.cfg.SessionID + ":" + s.cfg.ServerName + ":" + toolName + ":" + state.ArgsHash(arguments)
	}

	if eligible {
		if cached, ok := s.state.CacheGet(cacheKey); ok {
			s.addMetrics(func(m *Metrics) { m.CacheHits++ })
			delivered := s.applyDelta(historyKey, toolName, cached)
			s.state.HistorySet(historyKey, cached)
			resp := rpc.NewResponse(rpc.JSONRPCVersion(request), rpc.ID(request), delivered)
			return toolCallDecision{Response: resp, ShortCircuit: true}
		}
		s.addMetrics(func(m *Metrics) { m.CacheMisses++ })
	}

	return toolCallDecision{Pending: pendingRequest{
		method:        "tools/call",
		toolName:      toolName,
		arguments:     arguments,
		cacheKey:      cacheKey,
		historyKey:    historyKey,
		cacheEligible: eligible,
	}}
}

// handleToolsCallResponse implements the response half of §4.10: capture
// a raw copy for adaptive-TTL, compress, invalidate on mutation, cache,
// delta-wrap, and forward. Upstream error responses are forwarded
// untouched and never populate the cache or delta history (§7).
func (s *Session) handleToolsCallResponse(response jsonval.Value, pending pendingRequest) jsonval.Value {
	if rpc.HasError(response) {
		return response
	}
	result := rpc.Result(response)
	if isErr, ok := result.Field("isError").AsBool(); ok && isErr {
		return response
	}

	rawResult := jsonval.Clone(result)
	toolName := pending.toolName

	if state.IsMutatingToolName(toolName) && s.cfg.CachingEnabled {
		s.state.CacheInvalidatePrefix(s.cachePrefix())
		s.state.HistoryInvalidatePrefix(s.cachePrefix())
	}

	finalResult := s.applyResultCompression(toolName, rawResult)

	if pending.cacheEligible && pending.cacheKey != "" {
		ttl := s.adaptiveTTL(toolName, pending.cacheKey, rawResult)
		s.state.CacheSet(pending.cacheKey, finalResult, ttl)
	}

	delivered := s.applyDelta(pending.historyKey, toolName, finalResult)
	s.state.HistorySet(pending.historyKey, finalResult)

	return rpc.NewResponse(rpc.JSONRPCVersion(response), rpc.ID(response), delivered)
}
