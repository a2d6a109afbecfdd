package cliopts

import (
	"testing"

	"github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseForTest(t *testing.T, args []string) (*Flags, *flags.Parser) {
	f := &Flags{}
	parser := flags.NewParser(f, flags.Default)
	_, err := parser.ParseArgs(args)
	require.NoError(t, err)
	return f, parser
}

func TestParseSplitsUpstreamCommandAfterSeparator(t *testing.T) {
	_, _, upstream, err := Parse([]string{"--stats", "--", "npx", "some-server"})
	require.NoError(t, err)
	assert.Equal(t, []string{"npx", "some-server"}, upstream)
}

func TestParseRejectsMissingUpstreamSeparator(t *testing.T) {
	_, _, _, err := Parse([]string{"--stats"})
	assert.Error(t, err)
}

func TestToCLIOverridesLeavesUnsetFlagsNil(t *testing.T) {
	f, parser := parseForTest(t, []string{})
	overrides := ToCLIOverrides(parser, f)
	assert.Nil(t, overrides.Stats)
	assert.Nil(t, overrides.CacheTTL)
	assert.Nil(t, overrides.ResultCompression)
}

func TestToCLIOverridesDistinguishesZeroFromAbsent(t *testing.T) {
	f, parser := parseForTest(t, []string{"--search-top-k", "0"})
	overrides := ToCLIOverrides(parser, f)
	require.NotNil(t, overrides.SearchTopK)
	assert.Equal(t, 0, *overrides.SearchTopK)
}

func TestToCLIOverridesEnableDisablePairResolvesToPointer(t *testing.T) {
	f, parser := parseForTest(t, []string{"--enable-caching"})
	overrides := ToCLIOverrides(parser, f)
	require.NotNil(t, overrides.Caching)
	assert.True(t, *overrides.Caching)

	f2, parser2 := parseForTest(t, []string{"--disable-caching"})
	overrides2 := ToCLIOverrides(parser2, f2)
	require.NotNil(t, overrides2.Caching)
	assert.False(t, *overrides2.Caching)
}

func TestToCLIOverridesDisableWinsWhenBothPassed(t *testing.T) {
	f, parser := parseForTest(t, []string{"--enable-caching", "--disable-caching"})
	overrides := ToCLIOverrides(parser, f)
	require.NotNil(t, overrides.Caching)
	assert.False(t, *overrides.Caching)
}

func TestToCLIOverridesCarriesLazyModeAndResultCompressionModeStrings(t *testing.T) {
	f, parser := parseForTest(t, []string{"--lazy-mode", "minimal", "--result-compression-mode", "aggressive"})
	overrides := ToCLIOverrides(parser, f)
	require.NotNil(t, overrides.LazyMode)
	assert.Equal(t, "minimal", *overrides.LazyMode)
	require.NotNil(t, overrides.ResultCompressionMode)
	assert.Equal(t, "aggressive", *overrides.ResultCompressionMode)
}
