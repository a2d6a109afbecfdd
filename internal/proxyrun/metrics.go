package proxyrun

import "github.com/viant/ultra-lean-mcp-proxy/internal/jsonval"

// Metrics accumulates the counters exposed in the stats snapshot attached
// to every response when --stats is set (SPEC_FULL.md §4.10).
type Metrics struct {
	RequestsToUpstream     int
	ResponsesFromUpstream  int
	BytesSentUpstream      int
	BytesReceivedUpstream  int
	CacheHits              int
	CacheMisses            int
	DeltasEmitted          int
	ResultsCompressed      int
}

// ToValue renders the snapshot under result._ultra_lean_mcp_proxy.runtime_metrics.
func (m Metrics) ToValue() jsonval.Value {
	obj := jsonval.NewObject()
	obj.Set("requests_to_upstream", jsonval.Int(m.RequestsToUpstream))
	obj.Set("responses_from_upstream", jsonval.Int(m.ResponsesFromUpstream))
	obj.Set("bytes_sent_upstream", jsonval.Int(m.BytesSentUpstream))
	obj.Set("bytes_received_upstream", jsonval.Int(m.BytesReceivedUpstream))
	obj.Set("cache_hits", jsonval.Int(m.CacheHits))
	obj.Set("cache_misses", jsonval.Int(m.CacheMisses))
	obj.Set("deltas_emitted", jsonval.Int(m.DeltasEmitted))
	obj.Set("results_compressed", jsonval.Int(m.ResultsCompressed))
	return jsonval.Obj(obj)
}
