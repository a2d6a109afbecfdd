package proxyrun

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/viant/ultra-lean-mcp-proxy/internal/jsonval"
	"github.com/viant/ultra-lean-mcp-proxy/internal/rpc"
)

func initializeRequest(withExtension bool) jsonval.Value {
	req := jsonval.NewObject()
	req.Set("jsonrpc", jsonval.String("2.0"))
	req.Set("id", jsonval.Int(1))
	req.Set("method", jsonval.String("initialize"))
	if withExtension {
		version := jsonval.NewObject()
		version.Set("version", jsonval.Int(1))
		ultraLean := jsonval.NewObject()
		ultraLean.Set("tools_hash_sync", jsonval.Obj(version))
		experimental := jsonval.NewObject()
		experimental.Set("ultra_lean_mcp_proxy", jsonval.Obj(ultraLean))
		capsObj := jsonval.NewObject()
		capsObj.Set("experimental", jsonval.Obj(experimental))
		params := jsonval.NewObject()
		params.Set("capabilities", jsonval.Obj(capsObj))
		req.Set("params", jsonval.Obj(params))
	}
	return jsonval.Obj(req)
}

func TestClientNegotiatedExtensionDetectsVersion(t *testing.T) {
	assert.True(t, clientNegotiatedExtension(initializeRequest(true)))
	assert.False(t, clientNegotiatedExtension(initializeRequest(false)))
}

func TestHandleInitializeResponseMirrorsExtensionWhenNegotiated(t *testing.T) {
	s := testSession(t, nil)
	result := jsonval.NewObject()
	resp := rpc.NewResponse("2.0", jsonval.Int(1), jsonval.Obj(result))

	out := s.handleInitializeResponse(resp, true)
	version, ok := out.Field("result").Field("capabilities").Field("experimental").
		Field("ultra_lean_mcp_proxy").Field("tools_hash_sync").Field("version").AsInt()
	assert.True(t, ok)
	assert.Equal(t, 1, version)
	assert.True(t, s.isNegotiated())
}

func TestHandleInitializeResponseStripsUpstreamMarkerWhenNotNegotiated(t *testing.T) {
	s := testSession(t, nil)
	upstreamExt := jsonval.NewObject()
	upstreamExt.Set("tools_hash_sync", jsonval.Bool(true))
	experimental := jsonval.NewObject()
	experimental.Set("ultra_lean_mcp_proxy", jsonval.Obj(upstreamExt))
	caps := jsonval.NewObject()
	caps.Set("experimental", jsonval.Obj(experimental))
	result := jsonval.NewObject()
	result.Set("capabilities", jsonval.Obj(caps))
	resp := rpc.NewResponse("2.0", jsonval.Int(1), jsonval.Obj(result))

	out := s.handleInitializeResponse(resp, false)
	marker := out.Field("result").Field("capabilities").Field("experimental").
		Field("ultra_lean_mcp_proxy").Field("tools_hash_sync")
	assert.True(t, marker.IsNull())
	assert.False(t, s.isNegotiated())
}
