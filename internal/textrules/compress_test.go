package textrules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompressDescriptionShortStringsPassThrough(t *testing.T) {
	assert.Equal(t, "short", CompressDescription("short"))
	assert.Equal(t, "", CompressDescription(""))
}

func TestCompressDescriptionAppliesFillerAndShortening(t *testing.T) {
	in := "This tool enables you to retrieve repository configuration information from the database."
	out := CompressDescription(in)
	assert.NotContains(t, out, "This tool enables")
	assert.Contains(t, out, "repo")
	assert.Contains(t, out, "config")
	assert.Contains(t, out, "info")
	assert.Contains(t, out, "DB")
	assert.Contains(t, out, "Get")
}

func TestCompressDescriptionIsIdempotentOnShortStrings(t *testing.T) {
	for _, s := range []string{"", "a", "short desc under 20"} {
		assert.Equal(t, CompressDescription(s), CompressDescription(CompressDescription(s)))
	}
}

func TestCompressDescriptionIsDeterministic(t *testing.T) {
	in := "This operation will fetch configuration parameters in order to generate a report, as well as documentation."
	a := CompressDescription(in)
	b := CompressDescription(in)
	assert.Equal(t, a, b)
}

func TestCompressDescriptionRecapitalizesAfterSentenceBoundary(t *testing.T) {
	in := "Very long description text here. this second sentence starts lowercase after filler removal happens here."
	out := CompressDescription(in)
	assert.Contains(t, out, ". This")
}
