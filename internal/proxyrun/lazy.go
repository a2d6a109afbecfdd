package proxyrun

import (
	"strings"

	"github.com/viant/ultra-lean-mcp-proxy/internal/jsonval"
	"github.com/viant/ultra-lean-mcp-proxy/internal/resultcompress"
)

// lazyActive reports whether the size gate of SPEC_FULL.md §4.6 is met:
// lazy loading is only worth its cost once the catalog is big enough to
// benefit from shrinking.
func lazyActive(tools []jsonval.Value, minTools, minTokens int, counter resultcompress.TokenCounter) bool {
	if len(tools) >= minTools {
		return true
	}
	total := 0
	for _, t := range tools {
		total += counter.Count(t)
	}
	return total >= minTokens
}

// buildVisibleTools reduces the full catalog per mode and appends the
// search meta-tool. mode "off" is never passed here; callers gate on
// lazyActive and cfg.LazyMode != "off" first.
func buildVisibleTools(tools []jsonval.Value, mode string) []jsonval.Value {
	var visible []jsonval.Value
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		name, _ := t.Field("name").AsString()
		names = append(names, name)
	}

	switch mode {
	case "minimal":
		visible = make([]jsonval.Value, len(tools))
		for i, t := range tools {
			visible[i] = minimizeTool(t)
		}
	case "catalog":
		visible = make([]jsonval.Value, len(tools))
		for i, t := range tools {
			visible[i] = catalogTool(t)
		}
	case "search_only":
		visible = nil
	default:
		visible = tools
	}

	return append(visible, searchMetaTool(mode, names))
}

func minimizeTool(tool jsonval.Value) jsonval.Value {
	name, _ := tool.Field("name").AsString()
	desc, _ := tool.Field("description").AsString()
	schema := tool.Field("inputSchema")
	if schema.IsNull() {
		schema = tool.Field("input_schema")
	}
	props := jsonval.NewObject()
	if propsObj, ok := schema.Field("properties").AsObject(); ok {
		propsObj.Range(func(propName string, propSchema jsonval.Value) {
			propType, _ := propSchema.Field("type").AsString()
			p := jsonval.NewObject()
			if propType != "" {
				p.Set("type", jsonval.String(propType))
			}
			props.Set(propName, jsonval.Obj(p))
		})
	}
	inputSchema := jsonval.NewObject()
	inputSchema.Set("type", jsonval.String("object"))
	inputSchema.Set("properties", jsonval.Obj(props))

	out := jsonval.NewObject()
	out.Set("name", jsonval.String(name))
	out.Set("description", jsonval.String(desc))
	out.Set("inputSchema", jsonval.Obj(inputSchema))
	return jsonval.Obj(out)
}

func catalogTool(tool jsonval.Value) jsonval.Value {
	name, _ := tool.Field("name").AsString()
	inputSchema := jsonval.NewObject()
	inputSchema.Set("type", jsonval.String("object"))
	out := jsonval.NewObject()
	out.Set("name", jsonval.String(name))
	out.Set("inputSchema", jsonval.Obj(inputSchema))
	return jsonval.Obj(out)
}

func searchMetaTool(mode string, names []string) jsonval.Value {
	desc := "Search available tools by keyword or intent; returns the best-matching tool names and schemas."
	if mode == "catalog" && len(names) > 0 {
		desc += " Catalog: " + strings.Join(names, ", ") + "."
	}

	props := jsonval.NewObject()
	queryProp := jsonval.NewObject()
	queryProp.Set("type", jsonval.String("string"))
	props.Set("query", jsonval.Obj(queryProp))
	serverProp := jsonval.NewObject()
	serverProp.Set("type", jsonval.String("string"))
	props.Set("server", jsonval.Obj(serverProp))
	topKProp := jsonval.NewObject()
	topKProp.Set("type", jsonval.String("integer"))
	props.Set("top_k", jsonval.Obj(topKProp))
	includeSchemasProp := jsonval.NewObject()
	includeSchemasProp.Set("type", jsonval.String("boolean"))
	props.Set("include_schemas", jsonval.Obj(includeSchemasProp))

	schema := jsonval.NewObject()
	schema.Set("type", jsonval.String("object"))
	schema.Set("properties", jsonval.Obj(props))
	schema.Set("required", jsonval.Array(jsonval.String("query")))

	out := jsonval.NewObject()
	out.Set("name", jsonval.String(searchToolName))
	out.Set("description", jsonval.String(desc))
	out.Set("inputSchema", jsonval.Obj(schema))
	return jsonval.Obj(out)
}
