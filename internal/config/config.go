// Package config resolves proxy runtime configuration by layering
// defaults, an optional config file (JSON/JSONC or YAML), environment
// variables, and CLI flags, in that order (SPEC_FULL.md §4.3). Each
// layer only overrides fields it actually sets, so an unset field falls
// through to whatever the previous layer produced.
package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tidwall/jsonc"

	"github.com/viant/ultra-lean-mcp-proxy/internal/jsonval"
)

// Config is the fully resolved proxy configuration.
type Config struct {
	Stats        bool
	Verbose      bool
	SessionID    string
	StrictConfig bool

	DefinitionCompressionEnabled bool
	DefinitionMode               string

	ResultCompressionEnabled   bool
	ResultCompressionMode      string
	ResultMinPayloadBytes      int
	ResultStripNulls           bool
	ResultStripDefaults        bool
	ResultMinTokenSavingsAbs   int
	ResultMinTokenSavingsRatio float64
	ResultMinCompressibility   float64
	ResultSharedKeyRegistry    bool
	ResultKeyBootstrapInterval int
	ResultMinifyRedundantText  bool

	DeltaResponsesEnabled bool
	DeltaMinSavingsRatio  float64
	DeltaMaxPatchBytes    int
	DeltaMaxPatchRatio    float64
	DeltaSnapshotInterval int

	LazyLoadingEnabled                bool
	LazyMode                          string
	LazyTopK                          int
	LazySemantic                      bool
	LazyMinTools                      int
	LazyMinTokens                     int
	LazyMinConfidenceScore            float64
	LazyFallbackFullOnLowConfidence   bool

	ToolsHashSyncEnabled                    bool
	ToolsHashSyncAlgorithm                  string
	ToolsHashSyncRefreshInterval            int
	ToolsHashSyncIncludeServerFingerprint   bool

	CachingEnabled     bool
	CacheTTLSeconds    int
	CacheMaxEntries    int
	CacheErrors        bool
	CacheMutatingTools bool
	CacheAdaptiveTTL   bool
	CacheTTLMinSeconds int
	CacheTTLMaxSeconds int

	AutoDisableEnabled          bool
	AutoDisableThreshold        int
	AutoDisableCooldownRequests int

	ServerName    string
	ToolOverrides map[string]jsonval.Value // tool name -> feature-config object
	SourcePath    string

	TraceRPC bool // Go-port-only CLI convenience (spec.md §6); not present in the source's config layer.
}

// LazyModes are the valid values of LazyMode. This proxy's mode set adds
// "catalog" to the source implementation's {off, minimal, search_only}.
var LazyModes = map[string]bool{"off": true, "minimal": true, "catalog": true, "search_only": true}

var resultCompressionModes = map[string]bool{"off": true, "balanced": true, "aggressive": true}

// Defaults returns the built-in configuration before any file, env, or
// CLI layer is applied.
func Defaults() Config {
	return Config{
		SessionID: "default",

		DefinitionCompressionEnabled: true,
		DefinitionMode:               "balanced",

		ResultCompressionMode:      "balanced",
		ResultMinPayloadBytes:      512,
		ResultMinTokenSavingsAbs:   100,
		ResultMinTokenSavingsRatio: 0.05,
		ResultMinCompressibility:   0.2,
		ResultSharedKeyRegistry:    true,
		ResultKeyBootstrapInterval: 8,
		ResultMinifyRedundantText:  true,

		DeltaMinSavingsRatio:  0.15,
		DeltaMaxPatchBytes:    65536,
		DeltaMaxPatchRatio:    0.8,
		DeltaSnapshotInterval: 5,

		LazyMode:                        "off",
		LazyTopK:                        8,
		LazyMinTools:                    30,
		LazyMinTokens:                   8000,
		LazyMinConfidenceScore:          2.0,
		LazyFallbackFullOnLowConfidence: true,

		ToolsHashSyncAlgorithm:                "sha256",
		ToolsHashSyncRefreshInterval:          50,
		ToolsHashSyncIncludeServerFingerprint: true,

		CacheTTLSeconds:    300,
		CacheMaxEntries:    5000,
		CacheAdaptiveTTL:   true,
		CacheTTLMinSeconds: 30,
		CacheTTLMaxSeconds: 1800,

		AutoDisableEnabled:          true,
		AutoDisableThreshold:        3,
		AutoDisableCooldownRequests: 20,

		ServerName:    "default",
		ToolOverrides: map[string]jsonval.Value{},
	}
}

// FeatureEnabledForTool applies a per-tool override for feature_name if
// one is present in tool_overrides, else returns defaultValue.
func (c *Config) FeatureEnabledForTool(toolName, featureName string, defaultValue bool) bool {
	if toolName == "" {
		return defaultValue
	}
	toolCfg, ok := c.ToolOverrides[toolName]
	if !ok {
		return defaultValue
	}
	featureCfg := toolCfg.Field(featureName)
	if b, ok := parseBool(featureCfg); ok {
		return b
	}
	if obj, ok := featureCfg.AsObject(); ok {
		if enabled, present := obj.Get("enabled"); present {
			if parsed, ok := parseBool(enabled); ok {
				return parsed
			}
		}
	}
	return defaultValue
}

// CacheTTLForTool returns a per-tool cache TTL override, else the
// global default.
func (c *Config) CacheTTLForTool(toolName string) int {
	if toolName == "" {
		return c.CacheTTLSeconds
	}
	toolCfg, ok := c.ToolOverrides[toolName]
	if !ok {
		return c.CacheTTLSeconds
	}
	cachingCfg, ok := toolCfg.Field("caching").AsObject()
	if !ok {
		return c.CacheTTLSeconds
	}
	if ttlVal, present := cachingCfg.Get("ttl_seconds"); present {
		if ttl, ok := ttlVal.AsInt(); ok && ttl >= 0 {
			return ttl
		}
	}
	return c.CacheTTLSeconds
}

// parseBool mirrors the source's tolerant boolean coercion: numbers are
// truthy/falsy by value, and strings accept a small set of synonyms
// including "y"/"n" beyond the more common true/false/yes/no/on/off.
func parseBool(v jsonval.Value) (bool, bool) {
	switch v.Kind {
	case jsonval.KindBool:
		b, _ := v.AsBool()
		return b, true
	case jsonval.KindNumber:
		f, _ := v.AsFloat()
		return f != 0, true
	case jsonval.KindString:
		s, _ := v.AsString()
		text := strings.ToLower(strings.TrimSpace(s))
		switch text {
		case "1", "true", "yes", "y", "on":
			return true, true
		case "0", "false", "no", "n", "off":
			return false, true
		}
	}
	return false, false
}

// ReadConfigFile loads raw config file bytes and parses them per
// extension: .json/.jsonc through a comment-tolerant JSON parser,
// .yml/.yaml through a YAML parser, anything else defaults to JSON.
func ReadConfigFile(path string, data []byte) (jsonval.Value, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yml", ".yaml":
		var generic interface{}
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return jsonval.Value{}, fmt.Errorf("config: parsing YAML %s: %w", path, err)
		}
		return jsonval.FromAny(normalizeYAML(generic)), nil
	default:
		clean := jsonc.ToJSON(data)
		v, err := jsonval.Parse(clean)
		if err != nil {
			return jsonval.Value{}, fmt.Errorf("config: parsing JSON %s: %w", path, err)
		}
		return v, nil
	}
}

// normalizeYAML converts map[interface{}]interface{} nodes (as older
// YAML decoders can produce, and which yaml.v3 avoids but callers of
// FromAny do not otherwise handle) into map[string]interface{}.
func normalizeYAML(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = normalizeYAML(val)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = normalizeYAML(item)
		}
		return out
	default:
		return t
	}
}

func deepMergeObject(base, override *jsonval.Object) *jsonval.Object {
	merged := jsonval.NewObject()
	base.Range(func(k string, v jsonval.Value) { merged.Set(k, v) })
	override.Range(func(k string, overrideVal jsonval.Value) {
		if baseVal, ok := merged.Get(k); ok {
			baseObj, baseIsObj := baseVal.AsObject()
			overrideObj, overrideIsObj := overrideVal.AsObject()
			if baseIsObj && overrideIsObj {
				merged.Set(k, jsonval.Obj(deepMergeObject(baseObj, overrideObj)))
				return
			}
		}
		merged.Set(k, overrideVal)
	})
	return merged
}

// ExtractServerProfile picks the server profile matching upstreamCommand
// by substring test against the joined command text, deep-merged onto
// the "default" profile. Only the first matching non-default profile
// (in the key order of the parsed servers object: document order for
// JSON, sorted by name for YAML) is applied.
func ExtractServerProfile(configData jsonval.Value, upstreamCommand []string) (string, jsonval.Value) {
	serversVal := configData.Field("servers")
	serversObj, ok := serversVal.AsObject()
	if !ok {
		return "default", jsonval.Value{}
	}

	commandText := strings.Join(upstreamCommand, " ")
	selectedName := "default"
	var selectedProfile *jsonval.Object

	if defaultProfile, ok := serversObj.Get("default"); ok {
		if obj, isObj := defaultProfile.AsObject(); isObj {
			selectedProfile = cloneObject(obj)
		}
	}
	if selectedProfile == nil {
		selectedProfile = jsonval.NewObject()
	}

	for _, name := range serversObj.Keys() {
		if name == "default" {
			continue
		}
		profileVal, _ := serversObj.Get(name)
		profileObj, isObj := profileVal.AsObject()
		if !isObj {
			continue
		}
		matchObj, isMatchObj := profileObj.Field("match").AsObject()
		if !isMatchObj {
			continue
		}
		containsVal, present := matchObj.Get("command_contains")
		containsStr, isStr := containsVal.AsString()
		if !present || !isStr {
			continue
		}
		if strings.Contains(commandText, containsStr) {
			selectedName = name
			selectedProfile = deepMergeObject(selectedProfile, profileObj)
			break
		}
	}
	return selectedName, jsonval.Obj(selectedProfile)
}

func cloneObject(o *jsonval.Object) *jsonval.Object {
	clone, _ := jsonval.Clone(jsonval.Obj(o)).AsObject()
	return clone
}

// ApplyGlobalConfig layers configData's proxy/optimizations sections
// onto cfg, then (unless applyServerProfiles is false, used to avoid
// infinite recursion while re-applying a matched profile's own
// proxy/optimizations) resolves and applies exactly one server profile.
func ApplyGlobalConfig(cfg Config, configData jsonval.Value, upstreamCommand []string, applyServerProfiles bool) Config {
	if proxyObj, ok := configData.Field("proxy").AsObject(); ok {
		if b, present := parseBool(proxyObj.Field("stats")); present {
			cfg.Stats = b
		}
		if b, present := parseBool(proxyObj.Field("verbose")); present {
			cfg.Verbose = b
		}
		if s, ok := proxyObj.Field("session_id").AsString(); ok && s != "" {
			cfg.SessionID = s
		}
		if n, ok := proxyObj.Field("max_sessions").AsInt(); ok && n > 0 {
			cfg.CacheMaxEntries = n * 10
		}
		if b, ok := parseBool(proxyObj.Field("strict_config")); ok {
			cfg.StrictConfig = b
		}
	}

	if opts, ok := configData.Field("optimizations").AsObject(); ok {
		applyDefinitionCompression(&cfg, opts.Field("definition_compression"))
		applyResultCompression(&cfg, opts.Field("result_compression"))
		applyDeltaResponses(&cfg, opts.Field("delta_responses"))
		applyLazyLoading(&cfg, opts.Field("lazy_loading"))
		applyToolsHashSync(&cfg, opts.Field("tools_hash_sync"))
		applyCaching(&cfg, opts.Field("caching"))
		applyAutoDisable(&cfg, opts.Field("auto_disable"))
	}

	if applyServerProfiles {
		name, profile := ExtractServerProfile(configData, upstreamCommand)
		cfg.ServerName = name
		if profileObj, ok := profile.AsObject(); ok && profileObj.Len() > 0 {
			profileOpts := jsonval.NewObject()
			hasProxy := false
			hasOpts := false
			if proxyVal, ok := profileObj.Get("proxy"); ok {
				if _, isObj := proxyVal.AsObject(); isObj {
					profileOpts.Set("proxy", proxyVal)
					hasProxy = true
				}
			}
			if optsVal, ok := profileObj.Get("optimizations"); ok {
				if _, isObj := optsVal.AsObject(); isObj {
					profileOpts.Set("optimizations", optsVal)
					hasOpts = true
				}
			}
			if hasProxy || hasOpts {
				cfg = ApplyGlobalConfig(cfg, jsonval.Obj(profileOpts), upstreamCommand, false)
			}
			if toolsVal, ok := profileObj.Get("tools"); ok {
				if toolsObj, isObj := toolsVal.AsObject(); isObj {
					cfg.ToolOverrides = mergeToolOverrides(cfg.ToolOverrides, toolsObj)
				}
			}
		}
	}

	return cfg
}

func mergeToolOverrides(base map[string]jsonval.Value, override *jsonval.Object) map[string]jsonval.Value {
	merged := map[string]jsonval.Value{}
	for k, v := range base {
		merged[k] = v
	}
	override.Range(func(toolName string, overrideVal jsonval.Value) {
		if existing, ok := merged[toolName]; ok {
			if existingObj, isObj1 := existing.AsObject(); isObj1 {
				if overrideObj, isObj2 := overrideVal.AsObject(); isObj2 {
					merged[toolName] = jsonval.Obj(deepMergeObject(existingObj, overrideObj))
					return
				}
			}
		}
		merged[toolName] = overrideVal
	})
	return merged
}

func applyDefinitionCompression(cfg *Config, section jsonval.Value) {
	obj, ok := section.AsObject()
	if !ok {
		return
	}
	if b, present := parseBool(obj.Field("enabled")); present {
		cfg.DefinitionCompressionEnabled = b
	}
	if s, ok := obj.Field("mode").AsString(); ok {
		cfg.DefinitionMode = s
	}
}

func applyResultCompression(cfg *Config, section jsonval.Value) {
	obj, ok := section.AsObject()
	if !ok {
		return
	}
	if b, present := parseBool(obj.Field("enabled")); present {
		cfg.ResultCompressionEnabled = b
	}
	if s, ok := obj.Field("mode").AsString(); ok {
		cfg.ResultCompressionMode = s
	}
	if n, ok := obj.Field("min_payload_bytes").AsInt(); ok {
		cfg.ResultMinPayloadBytes = maxInt(0, n)
	}
	if n, ok := obj.Field("min_token_savings_abs").AsInt(); ok {
		cfg.ResultMinTokenSavingsAbs = maxInt(0, n)
	}
	if f, ok := obj.Field("min_token_savings_ratio").AsFloat(); ok {
		cfg.ResultMinTokenSavingsRatio = clamp01(f)
	}
	if f, ok := obj.Field("min_compressibility").AsFloat(); ok {
		cfg.ResultMinCompressibility = clamp01(f)
	}
	if b, present := parseBool(obj.Field("shared_key_registry")); present {
		cfg.ResultSharedKeyRegistry = b
	}
	if n, ok := obj.Field("key_bootstrap_interval").AsInt(); ok {
		cfg.ResultKeyBootstrapInterval = maxInt(0, n)
	}
	if b, present := parseBool(obj.Field("minify_redundant_text")); present {
		cfg.ResultMinifyRedundantText = b
	}
	if b, present := parseBool(obj.Field("strip_nulls")); present {
		cfg.ResultStripNulls = b
	}
	if b, present := parseBool(obj.Field("strip_defaults")); present {
		cfg.ResultStripDefaults = b
	}
}

func applyDeltaResponses(cfg *Config, section jsonval.Value) {
	obj, ok := section.AsObject()
	if !ok {
		return
	}
	if b, present := parseBool(obj.Field("enabled")); present {
		cfg.DeltaResponsesEnabled = b
	}
	if f, ok := obj.Field("min_savings_ratio").AsFloat(); ok {
		cfg.DeltaMinSavingsRatio = clamp01(f)
	}
	if n, ok := obj.Field("max_patch_bytes").AsInt(); ok {
		cfg.DeltaMaxPatchBytes = maxInt(0, n)
	}
	if f, ok := obj.Field("max_patch_ratio").AsFloat(); ok {
		cfg.DeltaMaxPatchRatio = clamp01(f)
	}
	if n, ok := obj.Field("snapshot_interval").AsInt(); ok {
		cfg.DeltaSnapshotInterval = maxInt(1, n)
	}
}

func applyLazyLoading(cfg *Config, section jsonval.Value) {
	obj, ok := section.AsObject()
	if !ok {
		return
	}
	if b, present := parseBool(obj.Field("enabled")); present {
		cfg.LazyLoadingEnabled = b
	}
	if s, ok := obj.Field("mode").AsString(); ok {
		cfg.LazyMode = s
	}
	if n, ok := obj.Field("top_k").AsInt(); ok {
		cfg.LazyTopK = maxInt(1, n)
	}
	if n, ok := obj.Field("min_tools").AsInt(); ok {
		cfg.LazyMinTools = maxInt(0, n)
	}
	if n, ok := obj.Field("min_tokens").AsInt(); ok {
		cfg.LazyMinTokens = maxInt(0, n)
	}
	if f, ok := obj.Field("min_confidence_score").AsFloat(); ok {
		cfg.LazyMinConfidenceScore = f
	}
	if b, present := parseBool(obj.Field("fallback_full_on_low_confidence")); present {
		cfg.LazyFallbackFullOnLowConfidence = b
	}
	if b, present := parseBool(obj.Field("semantic")); present {
		cfg.LazySemantic = b
	}
}

func applyToolsHashSync(cfg *Config, section jsonval.Value) {
	obj, ok := section.AsObject()
	if !ok {
		return
	}
	if b, present := parseBool(obj.Field("enabled")); present {
		cfg.ToolsHashSyncEnabled = b
	}
	if s, ok := obj.Field("algorithm").AsString(); ok {
		cfg.ToolsHashSyncAlgorithm = strings.ToLower(strings.TrimSpace(s))
	}
	if n, ok := obj.Field("refresh_interval").AsInt(); ok {
		cfg.ToolsHashSyncRefreshInterval = maxInt(1, n)
	}
	if b, present := parseBool(obj.Field("include_server_fingerprint")); present {
		cfg.ToolsHashSyncIncludeServerFingerprint = b
	}
}

func applyCaching(cfg *Config, section jsonval.Value) {
	obj, ok := section.AsObject()
	if !ok {
		return
	}
	if b, present := parseBool(obj.Field("enabled")); present {
		cfg.CachingEnabled = b
	}
	if n, ok := obj.Field("default_ttl_seconds").AsInt(); ok {
		cfg.CacheTTLSeconds = maxInt(0, n)
	}
	if n, ok := obj.Field("max_entries").AsInt(); ok {
		cfg.CacheMaxEntries = maxInt(1, n)
	}
	if b, present := parseBool(obj.Field("cache_errors")); present {
		cfg.CacheErrors = b
	}
	if b, present := parseBool(obj.Field("cache_mutating_tools")); present {
		cfg.CacheMutatingTools = b
	}
	if b, present := parseBool(obj.Field("adaptive_ttl")); present {
		cfg.CacheAdaptiveTTL = b
	}
	if n, ok := obj.Field("ttl_min_seconds").AsInt(); ok {
		cfg.CacheTTLMinSeconds = maxInt(0, n)
	}
	if n, ok := obj.Field("ttl_max_seconds").AsInt(); ok {
		cfg.CacheTTLMaxSeconds = maxInt(0, n)
	}
}

func applyAutoDisable(cfg *Config, section jsonval.Value) {
	obj, ok := section.AsObject()
	if !ok {
		return
	}
	if b, present := parseBool(obj.Field("enabled")); present {
		cfg.AutoDisableEnabled = b
	}
	if n, ok := obj.Field("threshold").AsInt(); ok {
		cfg.AutoDisableThreshold = maxInt(1, n)
	}
	if n, ok := obj.Field("cooldown_requests").AsInt(); ok {
		cfg.AutoDisableCooldownRequests = maxInt(1, n)
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// EnvLookup abstracts environment access so tests can inject a fixed
// map instead of the process environment.
type EnvLookup func(key string) (string, bool)

// ApplyEnv layers the curated ULTRA_LEAN_MCP_PROXY_* environment
// variables onto cfg. Unparseable numeric/float values are ignored
// rather than rejected, matching the source's per-field try/except
// skip behavior — a struct-decode library cannot express this
// per-field silent-skip-on-parse-error semantics, hence the hand
// rolled lookups here (see DESIGN.md).
func ApplyEnv(cfg Config, lookup EnvLookup) Config {
	if b, present := parseBoolEnv(lookup, "ULTRA_LEAN_MCP_PROXY_STATS"); present {
		cfg.Stats = b
	}
	if b, present := parseBoolEnv(lookup, "ULTRA_LEAN_MCP_PROXY_VERBOSE"); present {
		cfg.Verbose = b
	}
	if s, ok := lookup("ULTRA_LEAN_MCP_PROXY_SESSION_ID"); ok && s != "" {
		cfg.SessionID = s
	}

	if b, present := parseBoolEnv(lookup, "ULTRA_LEAN_MCP_PROXY_RESULT_COMPRESSION"); present {
		cfg.ResultCompressionEnabled = b
	}
	if s, ok := lookup("ULTRA_LEAN_MCP_PROXY_RESULT_COMPRESSION_MODE"); ok && s != "" {
		cfg.ResultCompressionMode = s
	}
	if n, ok := parseIntEnv(lookup, "ULTRA_LEAN_MCP_PROXY_RESULT_MIN_TOKEN_SAVINGS_ABS"); ok {
		cfg.ResultMinTokenSavingsAbs = maxInt(0, n)
	}
	if f, ok := parseFloatEnv(lookup, "ULTRA_LEAN_MCP_PROXY_RESULT_MIN_TOKEN_SAVINGS_RATIO"); ok {
		cfg.ResultMinTokenSavingsRatio = clamp01(f)
	}
	if b, present := parseBoolEnv(lookup, "ULTRA_LEAN_MCP_PROXY_RESULT_SHARED_KEY_REGISTRY"); present {
		cfg.ResultSharedKeyRegistry = b
	}
	if n, ok := parseIntEnv(lookup, "ULTRA_LEAN_MCP_PROXY_RESULT_KEY_BOOTSTRAP_INTERVAL"); ok {
		cfg.ResultKeyBootstrapInterval = maxInt(0, n)
	}
	if b, present := parseBoolEnv(lookup, "ULTRA_LEAN_MCP_PROXY_RESULT_MINIFY_REDUNDANT_TEXT"); present {
		cfg.ResultMinifyRedundantText = b
	}

	if b, present := parseBoolEnv(lookup, "ULTRA_LEAN_MCP_PROXY_DELTA_RESPONSES"); present {
		cfg.DeltaResponsesEnabled = b
	}
	if f, ok := parseFloatEnv(lookup, "ULTRA_LEAN_MCP_PROXY_DELTA_MIN_SAVINGS"); ok {
		cfg.DeltaMinSavingsRatio = clamp01(f)
	}
	if f, ok := parseFloatEnv(lookup, "ULTRA_LEAN_MCP_PROXY_DELTA_MAX_PATCH_RATIO"); ok {
		cfg.DeltaMaxPatchRatio = clamp01(f)
	}

	if b, present := parseBoolEnv(lookup, "ULTRA_LEAN_MCP_PROXY_LAZY_LOADING"); present {
		cfg.LazyLoadingEnabled = b
	}
	if s, ok := lookup("ULTRA_LEAN_MCP_PROXY_LAZY_MODE"); ok && s != "" {
		cfg.LazyMode = s
	}
	if n, ok := parseIntEnv(lookup, "ULTRA_LEAN_MCP_PROXY_SEARCH_TOP_K"); ok {
		cfg.LazyTopK = maxInt(1, n)
	}
	if n, ok := parseIntEnv(lookup, "ULTRA_LEAN_MCP_PROXY_LAZY_MIN_TOOLS"); ok {
		cfg.LazyMinTools = maxInt(0, n)
	}
	if n, ok := parseIntEnv(lookup, "ULTRA_LEAN_MCP_PROXY_LAZY_MIN_TOKENS"); ok {
		cfg.LazyMinTokens = maxInt(0, n)
	}
	if f, ok := parseFloatEnv(lookup, "ULTRA_LEAN_MCP_PROXY_LAZY_MIN_CONFIDENCE"); ok {
		cfg.LazyMinConfidenceScore = f
	}

	if b, present := parseBoolEnv(lookup, "ULTRA_LEAN_MCP_PROXY_TOOLS_HASH_SYNC"); present {
		cfg.ToolsHashSyncEnabled = b
	}
	if n, ok := parseIntEnv(lookup, "ULTRA_LEAN_MCP_PROXY_TOOLS_HASH_REFRESH_INTERVAL"); ok {
		cfg.ToolsHashSyncRefreshInterval = maxInt(1, n)
	}

	if b, present := parseBoolEnv(lookup, "ULTRA_LEAN_MCP_PROXY_CACHING"); present {
		cfg.CachingEnabled = b
	}
	if n, ok := parseIntEnv(lookup, "ULTRA_LEAN_MCP_PROXY_CACHE_TTL_SECONDS"); ok {
		cfg.CacheTTLSeconds = maxInt(0, n)
	}
	if b, present := parseBoolEnv(lookup, "ULTRA_LEAN_MCP_PROXY_CACHE_ADAPTIVE_TTL"); present {
		cfg.CacheAdaptiveTTL = b
	}

	return cfg
}

func parseBoolEnv(lookup EnvLookup, name string) (bool, bool) {
	s, ok := lookup(name)
	if !ok {
		return false, false
	}
	return parseBool(jsonval.String(s))
}

func parseIntEnv(lookup EnvLookup, name string) (int, bool) {
	s, ok := lookup(name)
	if !ok || s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseFloatEnv(lookup EnvLookup, name string) (float64, bool) {
	s, ok := lookup(name)
	if !ok || s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// CLIOverrides is the curated subset of resolved CLI flags that can
// override config layers beneath them. Pointer fields distinguish
// "flag not passed" from a zero value.
type CLIOverrides struct {
	Stats                   *bool
	Verbose                 *bool
	ResultCompression       *bool
	DeltaResponses          *bool
	LazyLoading             *bool
	ToolsHashSync           *bool
	Caching                 *bool
	SessionID               *string
	StrictConfig            *bool
	CacheTTL                *int
	DeltaMinSavings         *float64
	LazyMode                *string
	SearchTopK              *int
	ResultCompressionMode   *string
	ToolsHashRefreshInterval *int
	TraceRPC                *bool
	ConfigPath              *string
}

// ApplyCLI layers CLI flag overrides onto cfg; these win over every
// other layer.
func ApplyCLI(cfg Config, cli CLIOverrides) Config {
	if cli.Stats != nil {
		cfg.Stats = *cli.Stats
	}
	if cli.Verbose != nil {
		cfg.Verbose = *cli.Verbose
	}
	if cli.ResultCompression != nil {
		cfg.ResultCompressionEnabled = *cli.ResultCompression
	}
	if cli.DeltaResponses != nil {
		cfg.DeltaResponsesEnabled = *cli.DeltaResponses
	}
	if cli.LazyLoading != nil {
		cfg.LazyLoadingEnabled = *cli.LazyLoading
	}
	if cli.ToolsHashSync != nil {
		cfg.ToolsHashSyncEnabled = *cli.ToolsHashSync
	}
	if cli.Caching != nil {
		cfg.CachingEnabled = *cli.Caching
	}
	if cli.SessionID != nil && *cli.SessionID != "" {
		cfg.SessionID = *cli.SessionID
	}
	if cli.StrictConfig != nil {
		cfg.StrictConfig = *cli.StrictConfig
	}
	if cli.CacheTTL != nil {
		cfg.CacheTTLSeconds = maxInt(0, *cli.CacheTTL)
	}
	if cli.DeltaMinSavings != nil {
		cfg.DeltaMinSavingsRatio = clamp01(*cli.DeltaMinSavings)
	}
	if cli.LazyMode != nil && *cli.LazyMode != "" {
		cfg.LazyMode = *cli.LazyMode
	}
	if cli.SearchTopK != nil {
		cfg.LazyTopK = maxInt(1, *cli.SearchTopK)
	}
	if cli.ResultCompressionMode != nil && *cli.ResultCompressionMode != "" {
		cfg.ResultCompressionMode = *cli.ResultCompressionMode
	}
	if cli.ToolsHashRefreshInterval != nil {
		cfg.ToolsHashSyncRefreshInterval = maxInt(1, *cli.ToolsHashRefreshInterval)
	}
	if cli.TraceRPC != nil {
		cfg.TraceRPC = *cli.TraceRPC
	}
	return cfg
}

// Validate checks the resolved config and applies the source's final
// auto-corrections. It returns an error for genuinely invalid values
// (unlike the auto-corrected TTL ordering case, which is silently
// fixed rather than rejected).
func Validate(cfg Config) (Config, error) {
	if !LazyModes[cfg.LazyMode] {
		return cfg, fmt.Errorf("config: invalid lazy mode %q", cfg.LazyMode)
	}
	if !resultCompressionModes[cfg.ResultCompressionMode] {
		return cfg, fmt.Errorf("config: invalid result compression mode %q", cfg.ResultCompressionMode)
	}
	if cfg.ToolsHashSyncAlgorithm != "sha256" {
		return cfg, fmt.Errorf("config: invalid tools hash sync algorithm %q", cfg.ToolsHashSyncAlgorithm)
	}
	if cfg.CacheTTLMaxSeconds < cfg.CacheTTLMinSeconds {
		cfg.CacheTTLMaxSeconds = cfg.CacheTTLMinSeconds
	}
	if cfg.LazyMode != "off" {
		cfg.LazyLoadingEnabled = true
	}
	if cfg.ResultCompressionMode == "off" {
		cfg.ResultCompressionEnabled = false
	}
	return cfg, nil
}

// Load resolves the full config layering: defaults, then an optional
// config file, then environment, then CLI. configPath resolution
// precedence is: explicit configPath argument, then cli.ConfigPath,
// then the ULTRA_LEAN_MCP_PROXY_CONFIG environment variable.
func Load(upstreamCommand []string, configPath string, cli CLIOverrides, envLookup EnvLookup, readFile func(path string) ([]byte, error)) (Config, error) {
	cfg := Defaults()

	resolvedPath := configPath
	if resolvedPath == "" && cli.ConfigPath != nil {
		resolvedPath = *cli.ConfigPath
	}
	if resolvedPath == "" {
		if v, ok := envLookup("ULTRA_LEAN_MCP_PROXY_CONFIG"); ok {
			resolvedPath = v
		}
	}

	if resolvedPath != "" {
		data, err := readFile(resolvedPath)
		if err != nil {
			return cfg, fmt.Errorf("config: reading %s: %w", resolvedPath, err)
		}
		configData, err := ReadConfigFile(resolvedPath, data)
		if err != nil {
			return cfg, err
		}
		cfg = ApplyGlobalConfig(cfg, configData, upstreamCommand, true)
		cfg.SourcePath = resolvedPath
	}

	cfg = ApplyEnv(cfg, envLookup)
	cfg = ApplyCLI(cfg, cli)

	return Validate(cfg)
}
