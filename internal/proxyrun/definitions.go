package proxyrun

import (
	"github.com/viant/ultra-lean-mcp-proxy/internal/jsonval"
	"github.com/viant/ultra-lean-mcp-proxy/internal/textrules"
)

// compressToolDefinition rewrites a tool's description and, recursively,
// every description reachable through its input schema (SPEC_FULL.md
// §4.4): the schema's own description, each property's description, and
// the description of an array schema's items.
func compressToolDefinition(tool jsonval.Value) jsonval.Value {
	obj, ok := tool.AsObject()
	if !ok {
		return tool
	}
	out := jsonval.NewObject()
	obj.Range(func(key string, value jsonval.Value) {
		switch key {
		case "description":
			if s, isStr := value.AsString(); isStr {
				out.Set(key, jsonval.String(textrules.CompressDescription(s)))
				return
			}
		case "inputSchema", "input_schema":
			out.Set(key, compressSchema(value))
			return
		}
		out.Set(key, value)
	})
	return jsonval.Obj(out)
}

func compressSchema(schema jsonval.Value) jsonval.Value {
	obj, ok := schema.AsObject()
	if !ok {
		return schema
	}
	out := jsonval.NewObject()
	obj.Range(func(key string, value jsonval.Value) {
		switch key {
		case "description":
			if s, isStr := value.AsString(); isStr {
				out.Set(key, jsonval.String(textrules.CompressDescription(s)))
				return
			}
		case "properties":
			if propsObj, isObj := value.AsObject(); isObj {
				compressed := jsonval.NewObject()
				propsObj.Range(func(propName string, propSchema jsonval.Value) {
					compressed.Set(propName, compressSchema(propSchema))
				})
				out.Set(key, jsonval.Obj(compressed))
				return
			}
		case "items":
			out.Set(key, compressSchema(value))
			return
		}
		out.Set(key, value)
	})
	return jsonval.Obj(out)
}

func compressCatalog(tools []jsonval.Value) []jsonval.Value {
	out := make([]jsonval.Value, len(tools))
	for i, t := range tools {
		out[i] = compressToolDefinition(t)
	}
	return out
}
