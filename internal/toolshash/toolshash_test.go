package toolshash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/ultra-lean-mcp-proxy/internal/jsonval"
)

func sampleTools() jsonval.Value {
	o := jsonval.NewObject()
	o.Set("tools", jsonval.Array(
		func() jsonval.Value {
			t := jsonval.NewObject()
			t.Set("name", jsonval.String("search"))
			return jsonval.Obj(t)
		}(),
	))
	return jsonval.Obj(o)
}

func TestComputeIsDeterministicAndOrderInsensitive(t *testing.T) {
	a := jsonval.NewObject()
	a.Set("x", jsonval.Int(1))
	a.Set("y", jsonval.Int(2))
	b := jsonval.NewObject()
	b.Set("y", jsonval.Int(2))
	b.Set("x", jsonval.Int(1))

	h1, err := Compute(jsonval.Obj(a), "sha256", false, "")
	require.NoError(t, err)
	h2, err := Compute(jsonval.Obj(b), "sha256", false, "")
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Regexp(t, `^sha256:[0-9a-f]{64}$`, h1)
}

func TestComputeRejectsNonSHA256Algorithm(t *testing.T) {
	_, err := Compute(sampleTools(), "md5", false, "")
	assert.Error(t, err)
}

func TestComputeChangesWithServerFingerprint(t *testing.T) {
	tools := sampleTools()
	withoutFP, _ := Compute(tools, "sha256", false, "")
	withFP, _ := Compute(tools, "sha256", true, "server-a")
	otherFP, _ := Compute(tools, "sha256", true, "server-b")
	assert.NotEqual(t, withoutFP, withFP)
	assert.NotEqual(t, withFP, otherFP)
}

func TestComputeBindsFingerprintFieldEvenWhenEmpty(t *testing.T) {
	tools := sampleTools()
	fingerprintOff, _ := Compute(tools, "sha256", false, "")
	fingerprintOnEmpty, _ := Compute(tools, "sha256", true, "")
	assert.NotEqual(t, fingerprintOff, fingerprintOnEmpty, "the server_fingerprint field must be part of the preimage even when empty")
}

func TestParseIfNoneMatchAcceptsValidWireValue(t *testing.T) {
	hash, err := Compute(sampleTools(), "sha256", false, "")
	require.NoError(t, err)
	got, ok := ParseIfNoneMatch(jsonval.String(hash), "sha256")
	assert.True(t, ok)
	assert.Equal(t, hash, got)
}

func TestParseIfNoneMatchTreatsWrongAlgorithmPrefixAsAbsent(t *testing.T) {
	_, ok := ParseIfNoneMatch(jsonval.String("md5:"+"0000000000000000000000000000000000000000000000000000000000000000"[:64]), "sha256")
	assert.False(t, ok)
}

func TestParseIfNoneMatchTreatsNonHexBodyAsAbsent(t *testing.T) {
	_, ok := ParseIfNoneMatch(jsonval.String("sha256:not-hex"), "sha256")
	assert.False(t, ok)
}

func TestParseIfNoneMatchTreatsNonStringAsAbsent(t *testing.T) {
	_, ok := ParseIfNoneMatch(jsonval.Null(), "sha256")
	assert.False(t, ok)
	_, ok = ParseIfNoneMatch(jsonval.Int(1), "sha256")
	assert.False(t, ok)
}

func TestParseIfNoneMatchIsCaseInsensitive(t *testing.T) {
	hash, _ := Compute(sampleTools(), "sha256", false, "")
	upper := "SHA256:" + hash[len("sha256:"):]
	got, ok := ParseIfNoneMatch(jsonval.String(upper), "sha256")
	assert.True(t, ok)
	assert.Equal(t, hash, got)
}
