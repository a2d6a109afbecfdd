package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/ultra-lean-mcp-proxy/internal/jsonval"
)

func TestDefaultsMatchDocumentedBaseline(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, "default", cfg.SessionID)
	assert.True(t, cfg.DefinitionCompressionEnabled)
	assert.Equal(t, "balanced", cfg.ResultCompressionMode)
	assert.Equal(t, "off", cfg.LazyMode)
	assert.Equal(t, 5000, cfg.CacheMaxEntries)
	assert.True(t, cfg.AutoDisableEnabled)
}

func TestParseBoolAcceptsYAndNSynonyms(t *testing.T) {
	b, ok := parseBool(jsonval.String("y"))
	assert.True(t, ok)
	assert.True(t, b)

	b, ok = parseBool(jsonval.String("n"))
	assert.True(t, ok)
	assert.False(t, b)

	_, ok = parseBool(jsonval.String("maybe"))
	assert.False(t, ok)
}

func TestReadConfigFileParsesJSONC(t *testing.T) {
	data := []byte(`{
		// a comment
		"proxy": {"stats": true},
	}`)
	v, err := ReadConfigFile("cfg.jsonc", data)
	require.NoError(t, err)
	stats, _ := v.Field("proxy").Field("stats").AsBool()
	assert.True(t, stats)
}

func TestReadConfigFileParsesYAML(t *testing.T) {
	data := []byte("proxy:\n  stats: true\n  session_id: from-yaml\n")
	v, err := ReadConfigFile("cfg.yaml", data)
	require.NoError(t, err)
	sessionID, _ := v.Field("proxy").Field("session_id").AsString()
	assert.Equal(t, "from-yaml", sessionID)
}

func serverProfileConfig() jsonval.Value {
	root := jsonval.NewObject()
	servers := jsonval.NewObject()

	defaultProfile := jsonval.NewObject()
	defaultOpts := jsonval.NewObject()
	defaultCaching := jsonval.NewObject()
	defaultCaching.Set("enabled", jsonval.Bool(false))
	defaultOpts.Set("caching", jsonval.Obj(defaultCaching))
	defaultProfile.Set("optimizations", jsonval.Obj(defaultOpts))
	servers.Set("default", jsonval.Obj(defaultProfile))

	githubProfile := jsonval.NewObject()
	match := jsonval.NewObject()
	match.Set("command_contains", jsonval.String("github-mcp-server"))
	githubProfile.Set("match", jsonval.Obj(match))
	githubOpts := jsonval.NewObject()
	githubCaching := jsonval.NewObject()
	githubCaching.Set("enabled", jsonval.Bool(true))
	githubOpts.Set("caching", jsonval.Obj(githubCaching))
	githubProfile.Set("optimizations", jsonval.Obj(githubOpts))
	tools := jsonval.NewObject()
	toolCfg := jsonval.NewObject()
	toolCfg.Set("caching", jsonval.Bool(false))
	tools.Set("delete_repo", jsonval.Obj(toolCfg))
	githubProfile.Set("tools", jsonval.Obj(tools))
	servers.Set("github", jsonval.Obj(githubProfile))

	root.Set("servers", jsonval.Obj(servers))
	return jsonval.Obj(root)
}

func TestExtractServerProfileMatchesOnCommandSubstring(t *testing.T) {
	data := serverProfileConfig()
	name, profile := ExtractServerProfile(data, []string{"/usr/bin/github-mcp-server", "stdio"})
	assert.Equal(t, "github", name)
	enabled, _ := profile.Field("optimizations").Field("caching").Field("enabled").AsBool()
	assert.True(t, enabled)
}

func TestExtractServerProfileFallsBackToDefaultOnNoMatch(t *testing.T) {
	data := serverProfileConfig()
	name, profile := ExtractServerProfile(data, []string{"/usr/bin/other-server"})
	assert.Equal(t, "default", name)
	enabled, _ := profile.Field("optimizations").Field("caching").Field("enabled").AsBool()
	assert.False(t, enabled)
}

func TestApplyGlobalConfigWiresMatchedProfileIntoToolOverrides(t *testing.T) {
	cfg := Defaults()
	data := serverProfileConfig()
	cfg = ApplyGlobalConfig(cfg, data, []string{"github-mcp-server"}, true)
	assert.Equal(t, "github", cfg.ServerName)
	assert.True(t, cfg.CachingEnabled)
	assert.Contains(t, cfg.ToolOverrides, "delete_repo")
}

func TestApplyEnvIgnoresUnparseableNumericValueButKeepsOtherFields(t *testing.T) {
	env := map[string]string{
		"ULTRA_LEAN_MCP_PROXY_CACHE_TTL_SECONDS": "not-a-number",
		"ULTRA_LEAN_MCP_PROXY_CACHING":           "on",
	}
	cfg := ApplyEnv(Defaults(), func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	assert.Equal(t, 300, cfg.CacheTTLSeconds, "unparseable override should be silently skipped")
	assert.True(t, cfg.CachingEnabled)
}

func TestValidateRejectsUnknownLazyMode(t *testing.T) {
	cfg := Defaults()
	cfg.LazyMode = "bogus"
	_, err := Validate(cfg)
	assert.Error(t, err)
}

func TestValidateAutoCorrectsInvertedTTLBounds(t *testing.T) {
	cfg := Defaults()
	cfg.CacheTTLMinSeconds = 100
	cfg.CacheTTLMaxSeconds = 10
	corrected, err := Validate(cfg)
	require.NoError(t, err)
	assert.Equal(t, 100, corrected.CacheTTLMaxSeconds)
}

func TestValidateForcesLazyLoadingEnabledWhenModeNotOff(t *testing.T) {
	cfg := Defaults()
	cfg.LazyMode = "minimal"
	corrected, err := Validate(cfg)
	require.NoError(t, err)
	assert.True(t, corrected.LazyLoadingEnabled)
}

func TestValidateForcesResultCompressionDisabledWhenModeOff(t *testing.T) {
	cfg := Defaults()
	cfg.ResultCompressionEnabled = true
	cfg.ResultCompressionMode = "off"
	corrected, err := Validate(cfg)
	require.NoError(t, err)
	assert.False(t, corrected.ResultCompressionEnabled)
}

func TestCLIOverridesWinOverEverythingElse(t *testing.T) {
	cfg := Defaults()
	cfg.CacheTTLSeconds = 300
	ttl := 42
	cfg = ApplyCLI(cfg, CLIOverrides{CacheTTL: &ttl})
	assert.Equal(t, 42, cfg.CacheTTLSeconds)
}

func TestFeatureEnabledForToolPrefersOverrideThenFallsBackToDefault(t *testing.T) {
	cfg := Defaults()
	toolCfg := jsonval.NewObject()
	toolCfg.Set("caching", jsonval.Bool(true))
	cfg.ToolOverrides = map[string]jsonval.Value{"read_file": jsonval.Obj(toolCfg)}

	assert.True(t, cfg.FeatureEnabledForTool("read_file", "caching", false))
	assert.False(t, cfg.FeatureEnabledForTool("other_tool", "caching", false))
}

func TestCacheTTLForToolUsesPerToolOverride(t *testing.T) {
	cfg := Defaults()
	cachingCfg := jsonval.NewObject()
	cachingCfg.Set("ttl_seconds", jsonval.Int(15))
	toolCfg := jsonval.NewObject()
	toolCfg.Set("caching", jsonval.Obj(cachingCfg))
	cfg.ToolOverrides = map[string]jsonval.Value{"read_file": jsonval.Obj(toolCfg)}

	assert.Equal(t, 15, cfg.CacheTTLForTool("read_file"))
	assert.Equal(t, cfg.CacheTTLSeconds, cfg.CacheTTLForTool("other_tool"))
}
