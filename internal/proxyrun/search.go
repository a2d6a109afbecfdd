package proxyrun

import (
	"github.com/viant/ultra-lean-mcp-proxy/internal/jsonval"
	"github.com/viant/ultra-lean-mcp-proxy/internal/state"
)

// handleSearchTool answers a tools/call to the synthetic search meta-tool
// locally, never forwarding it upstream (SPEC_FULL.md §4.6).
func (s *Session) handleSearchTool(arguments jsonval.Value) jsonval.Value {
	query, _ := arguments.Field("query").AsString()
	topK := s.cfg.LazyTopK
	if n, ok := arguments.Field("top_k").AsInt(); ok && n > 0 {
		topK = n
	}
	includeSchemas, _ := arguments.Field("include_schemas").AsBool()

	results := s.state.SearchTools(query, topK, includeSchemas)

	matches := make([]jsonval.Value, len(results))
	bestScore := 0.0
	for i, r := range results {
		if r.Score > bestScore {
			bestScore = r.Score
		}
		matches[i] = searchResultToValue(r)
	}

	structured := jsonval.NewObject()
	structured.Set("matches", jsonval.Value{Kind: jsonval.KindArray, Arr: matches})
	if bestScore < s.cfg.LazyMinConfidenceScore && s.cfg.LazyFallbackFullOnLowConfidence {
		full := s.state.GetTools()
		structured.Set("tools", jsonval.Value{Kind: jsonval.KindArray, Arr: full})
	}
	structuredValue := jsonval.Obj(structured)

	text, _ := jsonval.MarshalString(structuredValue)
	contentItem := jsonval.NewObject()
	contentItem.Set("type", jsonval.String("text"))
	contentItem.Set("text", jsonval.String(text))

	result := jsonval.NewObject()
	result.Set("structuredContent", structuredValue)
	result.Set("content", jsonval.Array(jsonval.Obj(contentItem)))
	return jsonval.Obj(result)
}

func searchResultToValue(r state.SearchResult) jsonval.Value {
	obj := jsonval.NewObject()
	obj.Set("name", jsonval.String(r.Name))
	obj.Set("score", jsonval.Float(r.Score))
	obj.Set("description", jsonval.String(r.Description))
	if r.HasSchema {
		obj.Set("inputSchema", r.InputSchema)
	}
	return jsonval.Obj(obj)
}
