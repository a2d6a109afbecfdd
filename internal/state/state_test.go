package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/ultra-lean-mcp-proxy/internal/jsonval"
)

func TestIsMutatingToolNameMatchesSubstringCaseInsensitively(t *testing.T) {
	assert.True(t, IsMutatingToolName("Create_Issue"))
	assert.True(t, IsMutatingToolName("browser_click"))
	assert.False(t, IsMutatingToolName("list_repos"))
	assert.False(t, IsMutatingToolName("search_tools"))
}

func TestMakeCacheKeyIsStableForEquivalentArguments(t *testing.T) {
	a := jsonval.NewObject()
	a.Set("x", jsonval.Int(1))
	a.Set("y", jsonval.Int(2))
	b := jsonval.NewObject()
	b.Set("y", jsonval.Int(2))
	b.Set("x", jsonval.Int(1))

	k1 := MakeCacheKey("s1", "srv", "read", jsonval.Obj(a))
	k2 := MakeCacheKey("s1", "srv", "read", jsonval.Obj(b))
	assert.Equal(t, k1, k2)
}

func TestCacheSetGetRoundTripsAndClones(t *testing.T) {
	s := New(10)
	val := jsonval.NewObject()
	val.Set("a", jsonval.Int(1))
	s.CacheSet("k", jsonval.Obj(val), 60)

	got, ok := s.CacheGet("k")
	require.True(t, ok)
	gotObj, _ := got.AsObject()
	gotObj.Set("a", jsonval.Int(999))

	got2, ok := s.CacheGet("k")
	require.True(t, ok)
	n, _ := got2.Field("a").AsInt()
	assert.Equal(t, 1, n, "mutating a returned clone must not affect stored state")
}

func TestCacheGetExpiresEntry(t *testing.T) {
	s := New(10)
	s.CacheSet("k", jsonval.String("v"), 0)
	time.Sleep(5 * time.Millisecond)
	_, ok := s.CacheGet("k")
	assert.False(t, ok)
}

func TestCacheEvictsLowestHitsThenOldestWhenOverCapacity(t *testing.T) {
	s := New(2)
	s.CacheSet("a", jsonval.String("1"), 60)
	s.CacheSet("b", jsonval.String("2"), 60)
	// touch "a" so it accrues a hit and outlives untouched "b".
	_, _ = s.CacheGet("a")
	s.CacheSet("c", jsonval.String("3"), 60)

	_, hasA := s.CacheGet("a")
	_, hasC := s.CacheGet("c")
	assert.True(t, hasA)
	assert.True(t, hasC)
}

func TestCacheInvalidatePrefixRemovesMatchingKeysOnly(t *testing.T) {
	s := New(10)
	s.CacheSet("sess:tool:1", jsonval.String("a"), 60)
	s.CacheSet("sess:tool:2", jsonval.String("b"), 60)
	s.CacheSet("other:tool:1", jsonval.String("c"), 60)

	removed := s.CacheInvalidatePrefix("sess:tool:")
	assert.Equal(t, 2, removed)
	_, ok := s.CacheGet("other:tool:1")
	assert.True(t, ok)
}

func TestHistorySetTrimsOldestOnOverflow(t *testing.T) {
	s := New(1) // max_cache_entries*2 == 2
	s.HistorySet("k1", jsonval.String("a"))
	s.HistorySet("k2", jsonval.String("b"))
	s.HistorySet("k3", jsonval.String("c"))

	_, ok := s.HistoryGet("k1")
	assert.False(t, ok, "oldest insertion should be trimmed once over 2x max_cache_entries")
	_, ok = s.HistoryGet("k3")
	assert.True(t, ok)
}

func TestSearchToolsFallsBackToFullCatalogOnZeroMatches(t *testing.T) {
	s := New(10)
	tool := jsonval.NewObject()
	tool.Set("name", jsonval.String("alpha"))
	tool.Set("description", jsonval.String("does nothing related"))
	s.SetTools([]jsonval.Value{jsonval.Obj(tool)})

	results := s.SearchTools("zzz_no_match_zzz", 8, true)
	require.Len(t, results, 1)
	assert.Equal(t, 0.01, results[0].Score)
}

func TestSearchToolsRanksNameMatchAboveDescriptionOnlyMatch(t *testing.T) {
	s := New(10)
	nameMatch := jsonval.NewObject()
	nameMatch.Set("name", jsonval.String("search_repo"))
	nameMatch.Set("description", jsonval.String("does something else"))
	descMatch := jsonval.NewObject()
	descMatch.Set("name", jsonval.String("other_tool"))
	descMatch.Set("description", jsonval.String("used to search repo contents"))
	s.SetTools([]jsonval.Value{jsonval.Obj(descMatch), jsonval.Obj(nameMatch)})

	results := s.SearchTools("search repo", 8, false)
	require.Len(t, results, 2)
	assert.Equal(t, "search_repo", results[0].Name)
}

func TestToolsHashResetsConditionalHitsOnHashChange(t *testing.T) {
	s := New(10)
	s.ToolsHashSetLast("scope", "sha256:aaa")
	s.ToolsHashRecordHit("scope")
	s.ToolsHashRecordHit("scope")
	entry, ok := s.ToolsHashGet("scope")
	require.True(t, ok)
	assert.Equal(t, 2, entry.ConditionalHits)

	s.ToolsHashSetLast("scope", "sha256:bbb")
	entry, ok = s.ToolsHashGet("scope")
	require.True(t, ok)
	assert.Equal(t, 0, entry.ConditionalHits)
}
