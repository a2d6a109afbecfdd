// Package state holds the in-memory session state a single proxy
// process accumulates: the response cache, the delta-history baseline
// store, the last-seen tool catalog, and tools-hash-sync bookkeeping
// (SPEC_FULL.md §3, §4.7). All mutation goes through a single mutex
// owned by the State value.
package state

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/viant/ultra-lean-mcp-proxy/internal/jsonval"
)

// StableHash hashes the canonical-JSON form of v as plain hex, matching
// the delta package's wire format (the two packages intentionally share
// this exact hashing rule rather than a common helper, since each
// documents its own wire contract independently).
func StableHash(v jsonval.Value) string {
	text, _ := jsonval.MarshalString(jsonval.Canonicalize(v))
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// ArgsHash hashes tool-call arguments for cache-key construction.
func ArgsHash(arguments jsonval.Value) string {
	if arguments.IsNull() {
		return StableHash(jsonval.Obj(jsonval.NewObject()))
	}
	return StableHash(arguments)
}

var mutatingVerbs = []string{
	"create", "update", "delete", "remove", "set", "write", "insert",
	"patch", "post", "put", "merge", "upload", "commit",
	"navigate", "open", "close", "click", "type", "press", "select",
	"hover", "drag", "drop", "scroll", "evaluate", "execute", "goto",
	"reload", "back", "forward",
}

// IsMutatingToolName reports whether toolName's lowercase form contains
// any of a hardcoded set of verbs associated with state-changing
// operations. Used to decide whether a tool's results are safe to cache
// or should invalidate cached reads by default.
func IsMutatingToolName(toolName string) bool {
	lower := strings.ToLower(toolName)
	for _, verb := range mutatingVerbs {
		if strings.Contains(lower, verb) {
			return true
		}
	}
	return false
}

// MakeCacheKey builds the cache/history key scoping a tool result to a
// session, upstream server, tool name, and argument hash.
func MakeCacheKey(sessionID, serverName, toolName string, arguments jsonval.Value) string {
	return sessionID + ":" + serverName + ":" + toolName + ":" + ArgsHash(arguments)
}

type cacheEntry struct {
	value     jsonval.Value
	expiresAt time.Time
	createdAt time.Time
	hits      int
}

type toolsHashEntry struct {
	lastHash        string
	conditionalHits int
	updatedAt       time.Time
}

// ToolsHashEntry is a read-only snapshot returned by ToolsHashGet.
type ToolsHashEntry struct {
	LastHash        string
	ConditionalHits int
	UpdatedAt       time.Time
}

// State is the mutex-guarded in-memory state for one proxy process.
type State struct {
	mu             sync.Mutex
	maxCacheEntries int
	cache          map[string]*cacheEntry
	history        map[string]jsonval.Value
	historyOrder   []string
	tools          []jsonval.Value
	toolsHash      map[string]*toolsHashEntry
}

func New(maxCacheEntries int) *State {
	if maxCacheEntries < 1 {
		maxCacheEntries = 1
	}
	return &State{
		maxCacheEntries: maxCacheEntries,
		cache:           map[string]*cacheEntry{},
		history:         map[string]jsonval.Value{},
		toolsHash:       map[string]*toolsHashEntry{},
	}
}

// Cache

func (s *State) CacheGet(key string) (jsonval.Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cache[key]
	if !ok {
		return jsonval.Value{}, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.cache, key)
		return jsonval.Value{}, false
	}
	entry.hits++
	return jsonval.Clone(entry.value), true
}

func (s *State) CacheSet(key string, value jsonval.Value, ttlSeconds int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ttlSeconds < 0 {
		ttlSeconds = 0
	}
	now := time.Now()
	s.cache[key] = &cacheEntry{
		value:     jsonval.Clone(value),
		createdAt: now,
		expiresAt: now.Add(time.Duration(ttlSeconds) * time.Second),
	}
	s.evictCacheIfNeeded()
}

func (s *State) CacheInvalidatePrefix(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key := range s.cache {
		if strings.HasPrefix(key, prefix) {
			delete(s.cache, key)
			removed++
		}
	}
	return removed
}

func (s *State) evictCacheIfNeeded() {
	if len(s.cache) <= s.maxCacheEntries {
		return
	}
	type ranked struct {
		key   string
		hits  int
		since time.Time
	}
	ordered := make([]ranked, 0, len(s.cache))
	for key, entry := range s.cache {
		ordered = append(ordered, ranked{key, entry.hits, entry.createdAt})
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].hits != ordered[j].hits {
			return ordered[i].hits < ordered[j].hits
		}
		return ordered[i].since.Before(ordered[j].since)
	})
	overflow := len(s.cache) - s.maxCacheEntries
	for i := 0; i < overflow; i++ {
		delete(s.cache, ordered[i].key)
	}
}

// Delta history

func (s *State) HistoryGet(key string) (jsonval.Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.history[key]
	if !ok {
		return jsonval.Value{}, false
	}
	return jsonval.Clone(v), true
}

func (s *State) HistorySet(key string, value jsonval.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.history[key]; !exists {
		s.historyOrder = append(s.historyOrder, key)
	}
	s.history[key] = jsonval.Clone(value)
	if len(s.history) > s.maxCacheEntries*2 && len(s.historyOrder) > 0 {
		oldest := s.historyOrder[0]
		s.historyOrder = s.historyOrder[1:]
		delete(s.history, oldest)
	}
}

func (s *State) HistoryInvalidatePrefix(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key := range s.history {
		if strings.HasPrefix(key, prefix) {
			delete(s.history, key)
			removed++
		}
	}
	if removed > 0 {
		kept := s.historyOrder[:0]
		for _, k := range s.historyOrder {
			if _, still := s.history[k]; still {
				kept = append(kept, k)
			}
		}
		s.historyOrder = kept
	}
	return removed
}

// Tools index

func (s *State) SetTools(tools []jsonval.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cloned := make([]jsonval.Value, len(tools))
	for i, t := range tools {
		cloned[i] = jsonval.Clone(t)
	}
	s.tools = cloned
}

func (s *State) GetTools() []jsonval.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]jsonval.Value, len(s.tools))
	for i, t := range s.tools {
		out[i] = jsonval.Clone(t)
	}
	return out
}

// SearchResult is one ranked hit from SearchTools.
type SearchResult struct {
	Name        string
	Score       float64
	Description string
	InputSchema jsonval.Value
	HasSchema   bool
}

var termPattern = regexp.MustCompile(`[a-zA-Z0-9_]+`)

// SearchTools ranks the tool catalog against query using substring and
// term-overlap scoring across name, description, and input-schema
// property names. When no tool scores above zero, every tool is
// returned at a nominal score so search never reports a hard miss.
func (s *State) SearchTools(query string, topK int, includeSchemas bool) []SearchResult {
	s.mu.Lock()
	tools := make([]jsonval.Value, len(s.tools))
	for i, t := range s.tools {
		tools[i] = jsonval.Clone(t)
	}
	s.mu.Unlock()

	if len(tools) == 0 {
		return nil
	}
	if topK < 1 {
		topK = 1
	}

	lowerQuery := strings.ToLower(query)
	terms := termPattern.FindAllString(lowerQuery, -1)

	type scored struct {
		score float64
		tool  jsonval.Value
	}
	var ranked []scored
	for _, tool := range tools {
		name, _ := tool.Field("name").AsString()
		desc, _ := tool.Field("description").AsString()
		schema := tool.Field("inputSchema")
		if schema.IsNull() {
			schema = tool.Field("input_schema")
		}
		var propNames []string
		if propsObj, ok := schema.Field("properties").AsObject(); ok {
			propNames = propsObj.Keys()
		}
		paramText := strings.Join(propNames, " ")
		lowerName := strings.ToLower(name)
		lowerDesc := strings.ToLower(desc)
		lowerParams := strings.ToLower(paramText)
		haystack := strings.ToLower(name + " " + desc + " " + paramText)

		var score float64
		if lowerQuery != "" && strings.Contains(lowerName, lowerQuery) {
			score += 4.0
		}
		for _, term := range terms {
			if strings.Contains(lowerName, term) {
				score += 2.0
			}
			if strings.Contains(lowerDesc, term) {
				score += 1.0
			}
			if strings.Contains(lowerParams, term) {
				score += 1.25
			}
			if strings.Contains(haystack, term) {
				score += 0.2
			}
		}
		if score <= 0 {
			continue
		}
		ranked = append(ranked, scored{score, tool})
	}

	if len(ranked) == 0 {
		for _, tool := range tools {
			ranked = append(ranked, scored{0.01, tool})
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	results := make([]SearchResult, len(ranked))
	for i, r := range ranked {
		name, _ := r.tool.Field("name").AsString()
		desc, _ := r.tool.Field("description").AsString()
		result := SearchResult{Name: name, Score: roundScore(r.score), Description: desc}
		if includeSchemas {
			schema := r.tool.Field("inputSchema")
			if schema.IsNull() {
				schema = r.tool.Field("input_schema")
			}
			if !schema.IsNull() {
				result.InputSchema = jsonval.Clone(schema)
				result.HasSchema = true
			}
		}
		results[i] = result
	}
	return results
}

func roundScore(score float64) float64 {
	return float64(int(score*1000+0.5)) / 1000
}

// tools_hash_sync scope state

func (s *State) ToolsHashGet(key string) (ToolsHashEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.toolsHash[key]
	if !ok {
		return ToolsHashEntry{}, false
	}
	return ToolsHashEntry{LastHash: entry.lastHash, ConditionalHits: entry.conditionalHits, UpdatedAt: entry.updatedAt}, true
}

func (s *State) toolsHashEntryFor(key string) *toolsHashEntry {
	entry, ok := s.toolsHash[key]
	if !ok {
		entry = &toolsHashEntry{}
		s.toolsHash[key] = entry
	}
	return entry
}

func (s *State) ToolsHashSetLast(key, toolsHash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.toolsHashEntryFor(key)
	if entry.lastHash != toolsHash {
		entry.conditionalHits = 0
	}
	entry.lastHash = toolsHash
	entry.updatedAt = time.Now()
}

func (s *State) ToolsHashRecordHit(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.toolsHashEntryFor(key)
	entry.conditionalHits++
	entry.updatedAt = time.Now()
	return entry.conditionalHits
}

func (s *State) ToolsHashResetHits(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.toolsHashEntryFor(key)
	entry.conditionalHits = 0
	entry.updatedAt = time.Now()
}
