package proxyrun

import (
	"github.com/viant/ultra-lean-mcp-proxy/internal/jsonval"
	"github.com/viant/ultra-lean-mcp-proxy/internal/rpc"
)

// clientNegotiatedExtension reports whether an initialize request's
// capabilities advertise the extension version this proxy speaks
// (SPEC_FULL.md §4.10, §9).
func clientNegotiatedExtension(request jsonval.Value) bool {
	version := rpc.Params(request).
		Field("capabilities").
		Field("experimental").
		Field("ultra_lean_mcp_proxy").
		Field("tools_hash_sync").
		Field("version")
	n, ok := version.AsInt()
	return ok && n == 1
}

// handleInitializeResponse mirrors the negotiated extension marker back
// into the upstream's initialize result, or strips any such marker the
// upstream may have emitted on its own when the client never asked for
// it, and records the session's negotiated state either way.
func (s *Session) handleInitializeResponse(response jsonval.Value, negotiated bool) jsonval.Value {
	s.setNegotiated(negotiated)

	resp := response
	capsPath := []string{"result", "capabilities", "experimental", "ultra_lean_mcp_proxy"}
	if negotiated {
		container := descend(&resp, capsPath)
		toolsHashSync := jsonval.NewObject()
		toolsHashSync.Set("version", jsonval.Int(1))
		container.Set("tools_hash_sync", jsonval.Obj(toolsHashSync))
		return resp
	}

	removeAt(&resp, capsPath, "tools_hash_sync")
	return resp
}

// descend walks/creates a chain of object fields under root and returns
// the object at the end of the chain.
func descend(root *jsonval.Value, path []string) *jsonval.Object {
	obj := jsonval.EnsureObject(root)
	for _, field := range path {
		child, _ := obj.Get(field)
		childObj := jsonval.EnsureObject(&child)
		obj.Set(field, jsonval.Obj(childObj))
		obj = childObj
	}
	return obj
}

// removeAt deletes key from the object reached by path under root, if
// that path exists; a missing path is a no-op.
func removeAt(root *jsonval.Value, path []string, key string) {
	cur := *root
	for _, field := range path {
		cur = cur.Field(field)
		if cur.IsNull() {
			return
		}
	}
	if obj, ok := cur.AsObject(); ok {
		obj.Delete(key)
	}
}
