package proxyrun

import (
	"github.com/viant/ultra-lean-mcp-proxy/internal/health"
	"github.com/viant/ultra-lean-mcp-proxy/internal/jsonval"
	"github.com/viant/ultra-lean-mcp-proxy/internal/resultcompress"
)

// applyResultCompression runs a tool result through the structural
// compressor, gated first on estimated compressibility and then on
// realized token savings (SPEC_FULL.md §4.8). The outcome feeds the
// auto-disable health tracker for this feature and tool.
func (s *Session) applyResultCompression(toolName string, result jsonval.Value) jsonval.Value {
	if !s.cfg.ResultCompressionEnabled || !s.health.Active("result_compression", toolName) {
		return result
	}
	if !s.cfg.FeatureEnabledForTool(toolName, "result_compression", true) {
		return result
	}
	if resultcompress.EstimateCompressibility(result) < s.cfg.ResultMinCompressibility {
		return result
	}

	opts := resultcompress.Options{
		Mode:              s.cfg.ResultCompressionMode,
		StripNulls:        s.cfg.ResultStripNulls,
		StripDefaults:     s.cfg.ResultStripDefaults,
		MinPayloadBytes:   s.cfg.ResultMinPayloadBytes,
		EnableColumnar:    true,
		ColumnarMinRows:   8,
		ColumnarMinFields: 2,
	}
	envelope := resultcompress.Compress(result, opts, s.registry, s.cfg.ResultSharedKeyRegistry, s.cfg.ResultKeyBootstrapInterval)
	if !envelope.Compressed {
		s.health.RecordOutcome("result_compression", toolName, health.Neutral)
		return result
	}

	wrapped := compressedResultEnvelope(result, envelope, s.cfg.ResultMinifyRedundantText)
	savings := resultcompress.TokenSavings(result, wrapped, s.tokens)
	if savings < 0 {
		s.health.RecordOutcome("result_compression", toolName, health.Hurt)
		return result
	}
	origTokens := s.tokens.Count(result)
	ratio := 0.0
	if origTokens > 0 {
		ratio = float64(savings) / float64(origTokens)
	}
	if savings < s.cfg.ResultMinTokenSavingsAbs || ratio < s.cfg.ResultMinTokenSavingsRatio {
		s.health.RecordOutcome("result_compression", toolName, health.Neutral)
		return result
	}

	s.health.RecordOutcome("result_compression", toolName, health.Success)
	s.addMetrics(func(m *Metrics) { m.ResultsCompressed++ })

	ext := extensionRoot(&wrapped)
	savedObj := jsonval.NewObject()
	savedObj.Set("saved_bytes", jsonval.Int(envelope.SavedBytes))
	savedObj.Set("saved_ratio", jsonval.Float(envelope.SavedRatio))
	savedObj.Set("saved_tokens", jsonval.Int(savings))
	ext.Set("result_compression", jsonval.Obj(savedObj))

	return wrapped
}

// compressedResultEnvelope replaces a result's structuredContent with the
// compression envelope and drops any content[] text item that merely
// re-serializes the result's original structuredContent, since that
// duplication is exactly what compression is meant to avoid shipping
// twice. If every content item turns out redundant, a single placeholder
// stands in for the (now empty) content list.
func compressedResultEnvelope(original jsonval.Value, envelope *resultcompress.Envelope, minifyRedundantText bool) jsonval.Value {
	out := jsonval.NewObject()
	if obj, ok := original.AsObject(); ok {
		obj.Range(func(key string, value jsonval.Value) {
			if key == "structuredContent" || key == "content" {
				return
			}
			out.Set(key, value)
		})
	}
	out.Set("structuredContent", envelope.ToValue())
	content := original.Field("content")
	if minifyRedundantText {
		content = jsonval.Value{Kind: jsonval.KindArray, Arr: dropRedundantContent(content, original.Field("structuredContent"))}
	}
	out.Set("content", content)
	return jsonval.Obj(out)
}

func dropRedundantContent(content, structured jsonval.Value) []jsonval.Value {
	items, _ := content.AsArray()
	structuredCanon := jsonval.Canonicalize(structured)
	kept := make([]jsonval.Value, 0, len(items))
	for _, item := range items {
		typ, _ := item.Field("type").AsString()
		text, isText := item.Field("text").AsString()
		if typ == "text" && isText {
			if parsed, err := jsonval.Parse([]byte(text)); err == nil {
				if jsonval.Equal(jsonval.Canonicalize(parsed), structuredCanon) {
					continue
				}
			}
		}
		kept = append(kept, item)
	}
	if len(kept) == 0 {
		placeholder := jsonval.NewObject()
		placeholder.Set("type", jsonval.String("text"))
		placeholder.Set("text", jsonval.String("result compressed; see structuredContent"))
		kept = append(kept, jsonval.Obj(placeholder))
	}
	return kept
}
