package proxyrun

import (
	"github.com/viant/ultra-lean-mcp-proxy/internal/delta"
	"github.com/viant/ultra-lean-mcp-proxy/internal/jsonval"
)

// applyDelta compares finalResult against the last-seen value at
// historyKey and, when a delta or unchanged envelope would cost fewer
// estimated tokens than the full result, wraps it for transmission
// (SPEC_FULL.md §4.9). It never mutates history; the caller updates
// history with finalResult itself once delivery is decided.
func (s *Session) applyDelta(historyKey, toolName string, finalResult jsonval.Value) jsonval.Value {
	if !s.cfg.DeltaResponsesEnabled || !s.health.Active("delta_responses", toolName) {
		return finalResult
	}
	if !s.cfg.FeatureEnabledForTool(toolName, "delta_responses", true) {
		return finalResult
	}
	previousFinal, hadPrevious := s.state.HistoryGet(historyKey)
	if !hadPrevious {
		return finalResult
	}

	forceSnapshot := s.snapshotDue(historyKey)

	if jsonval.Equal(previousFinal, finalResult) {
		if forceSnapshot {
			return finalResult
		}
		envelope := delta.UnchangedEnvelope(finalResult)
		wrapped := wrapDeltaEnvelope(finalResult, envelope)
		if s.tokens.Count(wrapped) >= s.tokens.Count(finalResult) {
			return finalResult
		}
		s.recordDeltaEmitted(historyKey)
		return wrapped
	}

	if forceSnapshot {
		return finalResult
	}

	d, ok := delta.CreateDelta(previousFinal, finalResult, s.cfg.DeltaMinSavingsRatio, s.cfg.DeltaMaxPatchBytes)
	if !ok {
		return finalResult
	}
	if d.FullBytes > 0 && float64(d.PatchBytes)/float64(d.FullBytes) > s.cfg.DeltaMaxPatchRatio {
		return finalResult
	}

	envelopeValue := d.ToValue()
	wrapped := wrapDeltaEnvelope(finalResult, envelopeValue)
	if s.tokens.Count(wrapped) >= s.tokens.Count(finalResult) {
		return finalResult
	}
	s.recordDeltaEmitted(historyKey)
	s.addMetrics(func(m *Metrics) { m.DeltasEmitted++ })
	return wrapped
}

func wrapDeltaEnvelope(original, envelope jsonval.Value) jsonval.Value {
	structured := jsonval.NewObject()
	structured.Set("delta", envelope)
	structuredValue := jsonval.Obj(structured)
	text, _ := jsonval.MarshalString(structuredValue)
	contentItem := jsonval.NewObject()
	contentItem.Set("type", jsonval.String("text"))
	contentItem.Set("text", jsonval.String(text))

	out := jsonval.NewObject()
	if obj, ok := original.AsObject(); ok {
		obj.Range(func(k string, v jsonval.Value) {
			if k == "structuredContent" || k == "content" {
				return
			}
			out.Set(k, v)
		})
	}
	out.Set("structuredContent", structuredValue)
	out.Set("content", jsonval.Array(jsonval.Obj(contentItem)))
	return jsonval.Obj(out)
}
