// Package proxyrun wires the definition-compression, tools-hash-sync,
// lazy-visibility, response-cache, result-compression, and delta engines
// together into the method-aware interception pipeline described in
// SPEC_FULL.md §4.10, on top of the byte-transparent framing in
// internal/rpc. It is new code rather than adapted teacher code: the
// teacher's own session/transport types (viant/jsonrpc, viant/mcp-protocol)
// are built around a strictly typed, participating MCP endpoint and
// cannot relay a line they fail to fully parse, which this proxy must do
// (see DESIGN.md).
package proxyrun

import (
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/viant/ultra-lean-mcp-proxy/internal/collection"
	"github.com/viant/ultra-lean-mcp-proxy/internal/config"
	"github.com/viant/ultra-lean-mcp-proxy/internal/health"
	"github.com/viant/ultra-lean-mcp-proxy/internal/jsonval"
	"github.com/viant/ultra-lean-mcp-proxy/internal/resultcompress"
	"github.com/viant/ultra-lean-mcp-proxy/internal/state"
)

const searchToolName = "ultra_lean_mcp_proxy.search_tools"

// pendingRequest is recorded when a client request flows toward the
// upstream and consulted once the matching response arrives.
type pendingRequest struct {
	method        string
	negotiated    bool // set for "initialize"
	toolName      string
	arguments     jsonval.Value
	cacheKey      string
	historyKey    string
	cacheEligible bool

	// toolsIfNoneMatch and toolsIfNoneMatchValid carry a "tools/list"
	// request's tools-hash-sync conditional forward to the matching
	// response, since the response-side not_modified recheck runs
	// against the freshly computed hash, not the last-cached one.
	toolsIfNoneMatch      string
	toolsIfNoneMatchValid bool
}

// Session holds everything a single client<->upstream conversation needs
// across both relay directions (SPEC_FULL.md §3, §5). All mutable fields
// are guarded by mu; state.State and health.Tracker guard themselves.
type Session struct {
	cfg    config.Config
	logger *log.Logger
	trace  *log.Logger // nil when --trace-rpc is not set

	state    *state.State
	health   *health.Tracker
	registry *resultcompress.Registry
	tokens   resultcompress.TokenCounter

	profileFingerprint string

	pending *collection.SyncMap[string, pendingRequest]

	mu               sync.Mutex
	negotiated       bool
	snapshotCounters map[string]int
	metrics          Metrics
}

// New builds a Session from resolved config. logger is the ambient
// diagnostic sink (SPEC_FULL.md §10); trace is non-nil only when
// --trace-rpc is set.
func New(cfg config.Config, logger *log.Logger, trace *log.Logger) *Session {
	if cfg.SessionID == "" || cfg.SessionID == "default" {
		cfg.SessionID = uuid.NewString()
	}
	s := &Session{
		cfg:              cfg,
		logger:           logger,
		trace:            trace,
		state:            state.New(cfg.CacheMaxEntries),
		health:           health.NewTracker(cfg.AutoDisableEnabled, cfg.AutoDisableThreshold, cfg.AutoDisableCooldownRequests),
		registry:         resultcompress.NewRegistry(),
		pending:          collection.NewSyncMap[string, pendingRequest](),
		snapshotCounters: map[string]int{},
	}
	s.profileFingerprint = state.StableHash(fingerprintSeed(cfg))
	return s
}

func fingerprintSeed(cfg config.Config) jsonval.Value {
	obj := jsonval.NewObject()
	obj.Set("server", jsonval.String(cfg.ServerName))
	obj.Set("definition_mode", jsonval.String(cfg.DefinitionMode))
	obj.Set("lazy_mode", jsonval.String(cfg.LazyMode))
	obj.Set("lazy_top_k", jsonval.Int(cfg.LazyTopK))
	return jsonval.Obj(obj)
}

// scopeKey identifies the tools-hash-sync scope for this session
// (SPEC_FULL.md §3, §4.5). One proxy process serves exactly one session,
// so this value never changes after construction.
func (s *Session) scopeKey() string {
	return s.cfg.SessionID + ":" + s.cfg.ServerName + ":" + s.profileFingerprint
}

// cachePrefix scopes cache/history invalidation to this session+server.
func (s *Session) cachePrefix() string {
	return s.cfg.SessionID + ":" + s.cfg.ServerName + ":"
}

func (s *Session) setPending(id string, p pendingRequest) {
	s.pending.Put(id, p)
}

func (s *Session) takePending(id string) (pendingRequest, bool) {
	p, ok := s.pending.Get(id)
	if ok {
		s.pending.Delete(id)
	}
	return p, ok
}

func (s *Session) setNegotiated(v bool) {
	s.mu.Lock()
	s.negotiated = v
	s.mu.Unlock()
}

func (s *Session) isNegotiated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.negotiated
}

// snapshotDue reports whether key has exhausted its delta snapshot
// budget, resetting the counter when it has (a forced full snapshot
// always restarts the budget). recordDeltaEmitted bumps the counter
// after a delta or an "unchanged" envelope is shipped.
func (s *Session) snapshotDue(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	due := s.snapshotCounters[key] >= s.cfg.DeltaSnapshotInterval
	if due {
		s.snapshotCounters[key] = 0
	}
	return due
}

func (s *Session) recordDeltaEmitted(key string) {
	s.mu.Lock()
	s.snapshotCounters[key]++
	s.mu.Unlock()
}

func (s *Session) addMetrics(fn func(*Metrics)) {
	s.mu.Lock()
	fn(&s.metrics)
	s.mu.Unlock()
}

func (s *Session) metricsSnapshot() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

// extensionContainer returns the mutable `_ultra_lean_mcp_proxy` object
// nested under result (or params), creating the path if absent.
func extensionContainer(root *jsonval.Value, field string) *jsonval.Object {
	rootObj := jsonval.EnsureObject(root)
	child, _ := rootObj.Get(field)
	childObj := jsonval.EnsureObject(&child)
	ext, _ := childObj.Get("_ultra_lean_mcp_proxy")
	extObj := jsonval.EnsureObject(&ext)
	childObj.Set("_ultra_lean_mcp_proxy", jsonval.Obj(extObj))
	rootObj.Set(field, jsonval.Obj(childObj))
	return extObj
}

// extensionRoot returns the mutable `_ultra_lean_mcp_proxy` object
// nested directly under root, creating it if absent. Unlike
// extensionContainer, which nests under a further envelope field
// ("result" or "params"), this is for values that are themselves the
// object to annotate, such as a tool-call result.
func extensionRoot(root *jsonval.Value) *jsonval.Object {
	rootObj := jsonval.EnsureObject(root)
	ext, _ := rootObj.Get("_ultra_lean_mcp_proxy")
	extObj := jsonval.EnsureObject(&ext)
	rootObj.Set("_ultra_lean_mcp_proxy", jsonval.Obj(extObj))
	return extObj
}

func trace(t *log.Logger, direction, method, idKey string) {
	if t == nil {
		return
	}
	t.Printf("%s method=%q id=%s", direction, method, idKey)
}
