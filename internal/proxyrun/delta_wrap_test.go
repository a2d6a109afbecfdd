package proxyrun

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/ultra-lean-mcp-proxy/internal/config"
	"github.com/viant/ultra-lean-mcp-proxy/internal/jsonval"
)

func TestApplyDeltaFirstCallReturnsFullResult(t *testing.T) {
	s := testSession(t, func(c *config.Config) { c.DeltaResponsesEnabled = true })
	result := toolResult("first")
	out := s.applyDelta("k1", "read_file", result)
	assert.True(t, jsonval.Equal(out, result))
}

func TestApplyDeltaUnchangedProducesEnvelope(t *testing.T) {
	s := testSession(t, func(c *config.Config) { c.DeltaResponsesEnabled = true })
	result := withStatus("same")
	s.applyDelta("k1", "read_file", result)
	s.state.HistorySet("k1", result)

	out := s.applyDelta("k1", "read_file", result)
	structured := out.Field("structuredContent").Field("delta")
	require.False(t, structured.IsNull())
}

func withStatus(status string) jsonval.Value {
	bigStatic := ""
	for i := 0; i < 40; i++ {
		bigStatic += "static payload that never changes between calls, "
	}
	content := jsonval.NewObject()
	content.Set("type", jsonval.String("text"))
	content.Set("text", jsonval.String(bigStatic))
	result := jsonval.NewObject()
	result.Set("content", jsonval.Array(jsonval.Obj(content)))
	result.Set("status", jsonval.String(status))
	return jsonval.Obj(result)
}

func TestApplyDeltaChangedProducesPatchWhenSmaller(t *testing.T) {
	s := testSession(t, func(c *config.Config) {
		c.DeltaResponsesEnabled = true
		c.DeltaMinSavingsRatio = 0
		c.DeltaMaxPatchBytes = 1 << 20
		c.DeltaMaxPatchRatio = 1
	})
	before := withStatus("ok")
	s.state.HistorySet("k1", before)

	after := withStatus("done")
	out := s.applyDelta("k1", "read_file", after)
	delta := out.Field("structuredContent").Field("delta")
	require.False(t, delta.IsNull())
	assert.Equal(t, 1, s.metricsSnapshot().DeltasEmitted)
}

func TestApplyDeltaDisabledIsNoop(t *testing.T) {
	s := testSession(t, func(c *config.Config) { c.DeltaResponsesEnabled = false })
	result := toolResult("anything")
	s.state.HistorySet("k1", result)
	out := s.applyDelta("k1", "read_file", toolResult("something else entirely different"))
	assert.True(t, jsonval.Equal(out, toolResult("something else entirely different")))
}

func TestApplyDeltaHonorsPerToolOverride(t *testing.T) {
	s := testSession(t, func(c *config.Config) {
		c.DeltaResponsesEnabled = true
		override := jsonval.NewObject()
		override.Set("delta_responses", jsonval.Bool(false))
		c.ToolOverrides = map[string]jsonval.Value{"read_file": jsonval.Obj(override)}
	})
	result := withStatus("same")
	s.state.HistorySet("k1", result)

	out := s.applyDelta("k1", "read_file", result)
	assert.True(t, jsonval.Equal(out, result), "per-tool override must disable delta responses even though the feature is on globally")
}

func TestApplyDeltaSnapshotBudgetAppliesToUnchangedResults(t *testing.T) {
	s := testSession(t, func(c *config.Config) {
		c.DeltaResponsesEnabled = true
		c.DeltaSnapshotInterval = 2
	})
	result := withStatus("same")
	s.state.HistorySet("k1", result)

	forcedFull := false
	for i := 0; i < 4; i++ {
		out := s.applyDelta("k1", "read_file", result)
		if jsonval.Equal(out, result) {
			forcedFull = true
			break
		}
	}
	assert.True(t, forcedFull, "repeated identical results must still eventually force a full snapshot")
}
