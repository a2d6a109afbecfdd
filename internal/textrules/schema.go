package textrules

import "github.com/viant/ultra-lean-mcp-proxy/internal/jsonval"

// CompressSchema walks a JSON-schema-shaped value in place, compressing
// its own description, then each properties.* description, then a
// nested items schema's description. Non-object input passes through.
func CompressSchema(schema jsonval.Value) jsonval.Value {
	obj, ok := schema.AsObject()
	if !ok {
		return schema
	}
	if desc, ok := obj.Get("description"); ok {
		if s, isStr := desc.AsString(); isStr {
			obj.Set("description", jsonval.String(CompressDescription(s)))
		}
	}
	if props, ok := obj.Get("properties"); ok {
		if propsObj, isObj := props.AsObject(); isObj {
			propsObj.Range(func(name string, propSchema jsonval.Value) {
				CompressSchema(propSchema)
			})
		}
	}
	if items, ok := obj.Get("items"); ok {
		if _, isObj := items.AsObject(); isObj {
			CompressSchema(items)
		}
	}
	return schema
}

// CompressTool returns a deep clone of tool with its description and
// input schema descriptions compressed.
func CompressTool(tool jsonval.Value) jsonval.Value {
	clone := jsonval.Clone(tool)
	obj, ok := clone.AsObject()
	if !ok {
		return clone
	}
	if desc, ok := obj.Get("description"); ok {
		if s, isStr := desc.AsString(); isStr {
			obj.Set("description", jsonval.String(CompressDescription(s)))
		}
	}
	schema, hasSchema := obj.Get("inputSchema")
	if !hasSchema {
		schema, hasSchema = obj.Get("input_schema")
	}
	if hasSchema {
		if _, isObj := schema.AsObject(); isObj {
			CompressSchema(schema)
		}
	}
	return clone
}

// CompressTools applies CompressTool to every element of tools.
func CompressTools(tools []jsonval.Value) []jsonval.Value {
	out := make([]jsonval.Value, len(tools))
	for i, t := range tools {
		out[i] = CompressTool(t)
	}
	return out
}
