package delta

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/ultra-lean-mcp-proxy/internal/jsonval"
)

func obj(pairs ...interface{}) jsonval.Value {
	o := jsonval.NewObject()
	for i := 0; i < len(pairs); i += 2 {
		o.Set(pairs[i].(string), pairs[i+1].(jsonval.Value))
	}
	return jsonval.Obj(o)
}

// padding is an unchanged field shared by previous and current so the
// full payload outweighs the patch and the savings-ratio gate accepts it.
var padding = jsonval.String(strings.Repeat("x", 200))

func TestCreateDeltaReturnsNilOnEqualValues(t *testing.T) {
	a := obj("name", jsonval.String("x"), "count", jsonval.Int(1))
	b := obj("count", jsonval.Int(1), "name", jsonval.String("x"))
	d, ok := CreateDelta(a, b, 0.15, 65536)
	assert.False(t, ok)
	assert.Nil(t, d)
}

func TestCreateDeltaProducesSetOpForChangedScalarField(t *testing.T) {
	prev := obj("name", jsonval.String("x"), "items", jsonval.Array(jsonval.Int(1), jsonval.Int(2), jsonval.Int(3)), "blob", padding)
	cur := obj("name", jsonval.String("y"), "items", jsonval.Array(jsonval.Int(1), jsonval.Int(2), jsonval.Int(3)), "blob", padding)
	d, ok := CreateDelta(prev, cur, 0.0, 65536)
	require.True(t, ok)
	require.Len(t, d.Ops, 1)
	assert.Equal(t, "set", d.Ops[0].Op)
	assert.Equal(t, []Segment{KeySeg("name")}, d.Ops[0].Path)
}

func TestCreateDeltaWholeArraySetOnLengthMismatch(t *testing.T) {
	prev := obj("items", jsonval.Array(jsonval.Int(1), jsonval.Int(2)), "blob", padding)
	cur := obj("items", jsonval.Array(jsonval.Int(1), jsonval.Int(2), jsonval.Int(3)), "blob", padding)
	d, ok := CreateDelta(prev, cur, 0.0, 65536)
	require.True(t, ok)
	require.Len(t, d.Ops, 1)
	assert.Equal(t, []Segment{KeySeg("items")}, d.Ops[0].Path)
}

func TestCreateDeltaRejectsWhenPatchExceedsMaxBytes(t *testing.T) {
	prev := obj("a", jsonval.String("x"))
	cur := obj("a", jsonval.String("y"))
	_, ok := CreateDelta(prev, cur, 0.0, 1)
	assert.False(t, ok)
}

func TestCreateDeltaRejectsWhenSavingsRatioTooLow(t *testing.T) {
	prev := obj("a", jsonval.String("x"))
	cur := obj("a", jsonval.String("y"))
	_, ok := CreateDelta(prev, cur, 0.99, 65536)
	assert.False(t, ok)
}

func TestApplyDeltaReconstructsCurrentFromPreviousAndOps(t *testing.T) {
	prev := obj(
		"name", jsonval.String("x"),
		"nested", obj("a", jsonval.Int(1), "b", jsonval.Int(2)),
		"blob", padding,
	)
	cur := obj(
		"name", jsonval.String("y"),
		"nested", obj("a", jsonval.Int(1), "b", jsonval.Int(3)),
		"blob", padding,
	)
	d, ok := CreateDelta(prev, cur, 0.0, 65536)
	require.True(t, ok)

	applied, err := ApplyDelta(jsonval.Canonicalize(prev), d)
	require.NoError(t, err)
	assert.True(t, jsonval.Equal(applied, jsonval.Canonicalize(cur)))
}

func TestApplyDeltaHandlesDeleteOp(t *testing.T) {
	prev := obj("a", jsonval.Int(1), "b", jsonval.Int(2), "blob", padding)
	cur := obj("a", jsonval.Int(1), "blob", padding)
	d, ok := CreateDelta(prev, cur, 0.0, 65536)
	require.True(t, ok)
	require.Len(t, d.Ops, 1)
	assert.Equal(t, "delete", d.Ops[0].Op)

	applied, err := ApplyDelta(jsonval.Canonicalize(prev), d)
	require.NoError(t, err)
	assert.True(t, jsonval.Equal(applied, jsonval.Canonicalize(cur)))
}

func TestStableHashIsOrderInsensitive(t *testing.T) {
	a := obj("x", jsonval.Int(1), "y", jsonval.Int(2))
	b := obj("y", jsonval.Int(2), "x", jsonval.Int(1))
	assert.Equal(t, StableHash(jsonval.Canonicalize(a)), StableHash(jsonval.Canonicalize(b)))
}

func TestUnchangedEnvelopeCarriesCurrentHash(t *testing.T) {
	v := obj("a", jsonval.Int(1))
	env := UnchangedEnvelope(v)
	assert.Equal(t, jsonval.String(Encoding), env.Field("encoding"))
	b, _ := env.Field("unchanged").AsBool()
	assert.True(t, b)
	hash, _ := env.Field("currentHash").AsString()
	assert.Equal(t, StableHash(jsonval.Canonicalize(v)), hash)
}
