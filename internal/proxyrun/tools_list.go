package proxyrun

import (
	"github.com/viant/ultra-lean-mcp-proxy/internal/jsonval"
	"github.com/viant/ultra-lean-mcp-proxy/internal/rpc"
	"github.com/viant/ultra-lean-mcp-proxy/internal/toolshash"
)

// handleToolsListRequest inspects a tools/list request for a
// tools-hash-sync conditional and, when it matches the last hash shipped
// for this scope, answers with a not-modified response instead of
// forwarding upstream (SPEC_FULL.md §4.5). shortCircuit is false when the
// request should still go to the upstream. ifNoneMatch/ifNoneMatchValid
// are returned regardless of shortCircuit so the caller can carry them
// into the pendingRequest for the response-side recheck.
func (s *Session) handleToolsListRequest(request jsonval.Value) (response jsonval.Value, shortCircuit bool, ifNoneMatch string, ifNoneMatchValid bool) {
	if !s.cfg.ToolsHashSyncEnabled || !s.isNegotiated() {
		return jsonval.Value{}, false, "", false
	}
	params := rpc.Params(request)
	ext := params.Field("_ultra_lean_mcp_proxy").Field("tools_hash_sync")
	ifNoneMatch, ifNoneMatchValid = toolshash.ParseIfNoneMatch(ext.Field("if_none_match"), s.cfg.ToolsHashSyncAlgorithm)
	if !ifNoneMatchValid {
		return jsonval.Value{}, false, ifNoneMatch, ifNoneMatchValid
	}

	entry, ok := s.state.ToolsHashGet(s.scopeKey())
	if !ok || entry.LastHash != ifNoneMatch {
		return jsonval.Value{}, false, ifNoneMatch, ifNoneMatchValid
	}

	forceRefresh := s.cfg.ToolsHashSyncRefreshInterval > 0 &&
		s.state.ToolsHashRecordHit(s.scopeKey()) >= s.cfg.ToolsHashSyncRefreshInterval
	if forceRefresh {
		s.state.ToolsHashResetHits(s.scopeKey())
		return jsonval.Value{}, false, ifNoneMatch, ifNoneMatchValid
	}

	result := jsonval.NewObject()
	result.Set("tools", jsonval.Array())
	resp := rpc.NewResponse(rpc.JSONRPCVersion(request), rpc.ID(request), jsonval.Obj(result))

	toolsHashObj := jsonval.NewObject()
	toolsHashObj.Set("not_modified", jsonval.Bool(true))
	toolsHashObj.Set("tools_hash", jsonval.String(entry.LastHash))
	ext2 := extensionContainer(&resp, "result")
	ext2.Set("tools_hash_sync", jsonval.Obj(toolsHashObj))

	return resp, true, ifNoneMatch, ifNoneMatchValid
}

// handleToolsListResponse rewrites an upstream tools/list response per
// the active definition-compression and lazy-visibility settings, and
// (re)computes the tools-hash-sync fingerprint for this scope. When
// pending carries a valid if_none_match that matches the freshly
// computed hash, the response is emptied and flagged not_modified even
// though the request itself went all the way to the upstream (a forced
// refresh interval, or no cached hash to short-circuit against yet).
func (s *Session) handleToolsListResponse(response jsonval.Value, pending pendingRequest) jsonval.Value {
	result := rpc.Result(response)
	tools, _ := result.Field("tools").AsArray()

	if s.cfg.DefinitionCompressionEnabled {
		tools = compressCatalog(tools)
	}

	fullCatalogHash := ""
	notModified := false
	if s.cfg.ToolsHashSyncEnabled && s.isNegotiated() {
		payload := jsonval.Value{Kind: jsonval.KindArray, Arr: tools}
		if h, err := toolshash.Compute(payload, s.cfg.ToolsHashSyncAlgorithm, s.cfg.ToolsHashSyncIncludeServerFingerprint, s.profileFingerprint); err == nil {
			fullCatalogHash = h
			s.state.ToolsHashSetLast(s.scopeKey(), h)
			notModified = pending.toolsIfNoneMatchValid && pending.toolsIfNoneMatch == fullCatalogHash
		}
	}

	s.state.SetTools(tools)

	visible := tools
	switch {
	case notModified:
		visible = nil
	case s.cfg.LazyLoadingEnabled && s.cfg.LazyMode != "off" &&
		lazyActive(tools, s.cfg.LazyMinTools, s.cfg.LazyMinTokens, s.tokens):
		visible = buildVisibleTools(tools, s.cfg.LazyMode)
	}

	out := jsonval.NewObject()
	if resultObj, ok := result.AsObject(); ok {
		resultObj.Range(func(k string, v jsonval.Value) {
			if k == "tools" {
				return
			}
			out.Set(k, v)
		})
	}
	out.Set("tools", jsonval.Value{Kind: jsonval.KindArray, Arr: visible})

	resp := rpc.NewResponse(rpc.JSONRPCVersion(response), rpc.ID(response), jsonval.Obj(out))

	if s.cfg.ToolsHashSyncEnabled && s.isNegotiated() && fullCatalogHash != "" {
		ext := extensionContainer(&resp, "result")
		hashObj := jsonval.NewObject()
		hashObj.Set("tools_hash", jsonval.String(fullCatalogHash))
		hashObj.Set("not_modified", jsonval.Bool(notModified))
		ext.Set("tools_hash_sync", jsonval.Obj(hashObj))
	}

	return resp
}
