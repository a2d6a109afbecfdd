package proxyrun

import "github.com/viant/ultra-lean-mcp-proxy/internal/jsonval"

// attachRuntimeMetrics stamps a `_ultra_lean_mcp_proxy.runtime_metrics`
// snapshot onto response's result when --stats is set (SPEC_FULL.md
// §4.10). It is applied last, after every other extension field, so the
// snapshot always reflects counts current as of this exact response.
func (s *Session) attachRuntimeMetrics(response jsonval.Value) jsonval.Value {
	if !s.cfg.Stats {
		return response
	}
	if !hasShippableResult(response) {
		return response
	}
	resp := response
	ext := extensionContainer(&resp, "result")
	ext.Set("runtime_metrics", s.metricsSnapshot().ToValue())
	return resp
}

func hasShippableResult(v jsonval.Value) bool {
	obj, ok := v.AsObject()
	if !ok {
		return false
	}
	result, present := obj.Get("result")
	if !present {
		return false
	}
	_, isObj := result.AsObject()
	return isObj
}
