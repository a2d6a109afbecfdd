// Package delta implements the structural JSON diff/patch engine used
// to shrink repeated tool-call responses (SPEC_FULL.md §4.9). The wire
// format ("lapc-delta-v1") is a flat list of path-addressed set/delete
// operations between the canonicalized previous and current payloads.
package delta

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/viant/ultra-lean-mcp-proxy/internal/jsonval"
)

const Encoding = "lapc-delta-v1"

// Segment addresses one step into a JSON tree: either an object key or
// an array index.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

func KeySeg(k string) Segment { return Segment{Key: k} }
func IndexSeg(i int) Segment  { return Segment{Index: i, IsIndex: true} }

type Op struct {
	Op    string // "set" | "delete"
	Path  []Segment
	Value jsonval.Value // meaningful only for "set"
}

type Delta struct {
	BaselineHash string
	CurrentHash  string
	Ops          []Op
	PatchBytes   int
	FullBytes    int
	SavedBytes   int
	SavedRatio   float64
}

// StableHash hashes the canonical-JSON form of v. This is the plain hex
// digest used for baselineHash/currentHash — a distinct wire format from
// the "sha256:"-prefixed hash used by the tools-hash-sync feature.
func StableHash(v jsonval.Value) string {
	text, _ := jsonval.MarshalString(jsonval.Canonicalize(v))
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// CreateDelta computes a structural diff envelope from previous to
// current. It returns (nil, false) when the values are equal, the diff
// is empty, or either accept-gate (max patch size, min savings ratio)
// fails — in every such case the caller must ship the
// full payload instead.
func CreateDelta(previous, current jsonval.Value, minSavingsRatio float64, maxPatchBytes int) (*Delta, bool) {
	canonPrev := jsonval.Canonicalize(previous)
	canonCur := jsonval.Canonicalize(current)
	if jsonval.Equal(canonPrev, canonCur) {
		return nil, false
	}

	var ops []Op
	diffValues(canonPrev, canonCur, nil, &ops)
	if len(ops) == 0 {
		return nil, false
	}

	patchBytes := jsonval.ByteSize(OpsToValue(ops))
	fullBytes := jsonval.ByteSize(canonCur)
	if patchBytes > maxPatchBytes {
		return nil, false
	}

	var savingsRatio float64
	if fullBytes > 0 {
		savingsRatio = float64(fullBytes-patchBytes) / float64(fullBytes)
	}
	if savingsRatio < minSavingsRatio {
		return nil, false
	}

	return &Delta{
		BaselineHash: StableHash(canonPrev),
		CurrentHash:  StableHash(canonCur),
		Ops:          ops,
		PatchBytes:   patchBytes,
		FullBytes:    fullBytes,
		SavedBytes:   fullBytes - patchBytes,
		SavedRatio:   savingsRatio,
	}, true
}

func diffValues(previous, current jsonval.Value, path []Segment, ops *[]Op) {
	if jsonval.Equal(previous, current) {
		return
	}

	prevArr, prevIsArr := previous.AsArray()
	curArr, curIsArr := current.AsArray()
	if prevIsArr && curIsArr {
		if len(prevArr) != len(curArr) {
			*ops = append(*ops, Op{Op: "set", Path: clonePath(path), Value: jsonval.Clone(current)})
			return
		}
		for i := range curArr {
			diffValues(prevArr[i], curArr[i], append(clonePath(path), IndexSeg(i)), ops)
		}
		return
	}

	prevObj, prevIsObj := previous.AsObject()
	curObj, curIsObj := current.AsObject()
	if prevIsObj && curIsObj {
		for _, key := range unionSortedKeys(prevObj, curObj) {
			curVal, inCur := curObj.Get(key)
			if !inCur {
				*ops = append(*ops, Op{Op: "delete", Path: append(clonePath(path), KeySeg(key))})
				continue
			}
			prevVal, inPrev := prevObj.Get(key)
			if !inPrev {
				*ops = append(*ops, Op{Op: "set", Path: append(clonePath(path), KeySeg(key)), Value: jsonval.Clone(curVal)})
				continue
			}
			diffValues(prevVal, curVal, append(clonePath(path), KeySeg(key)), ops)
		}
		return
	}

	*ops = append(*ops, Op{Op: "set", Path: clonePath(path), Value: jsonval.Clone(current)})
}

func clonePath(path []Segment) []Segment {
	out := make([]Segment, len(path))
	copy(out, path)
	return out
}

func unionSortedKeys(a, b *jsonval.Object) []string {
	seen := map[string]bool{}
	var keys []string
	for _, k := range a.Keys() {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for _, k := range b.Keys() {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sortStrings(keys)
	return keys
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// ApplyDelta applies d's ops to a clone of previous and returns the
// reconstructed value. Errors indicate an unsupported op kind.
func ApplyDelta(previous jsonval.Value, d *Delta) (jsonval.Value, error) {
	output := jsonval.Clone(previous)
	for _, op := range d.Ops {
		switch op.Op {
		case "set":
			setRec(&output, op.Path, jsonval.Clone(op.Value))
		case "delete":
			deleteRec(&output, op.Path)
		default:
			return jsonval.Value{}, fmt.Errorf("delta: unsupported op %q", op.Op)
		}
	}
	return output, nil
}

// setRec auto-vivifies missing containers along path and writes value at
// the addressed location. Object recursion always writes the mutated
// child back into the parent map, since map values are not addressable.
func setRec(cursor *jsonval.Value, path []Segment, value jsonval.Value) {
	if len(path) == 0 {
		*cursor = value
		return
	}
	seg, rest := path[0], path[1:]
	if seg.IsIndex {
		if cursor.Kind != jsonval.KindArray {
			*cursor = jsonval.Value{Kind: jsonval.KindArray}
		}
		for len(cursor.Arr) <= seg.Index {
			cursor.Arr = append(cursor.Arr, jsonval.Null())
		}
		setRec(&cursor.Arr[seg.Index], rest, value)
		return
	}
	obj := jsonval.EnsureObject(cursor)
	child, _ := obj.Get(seg.Key)
	setRec(&child, rest, value)
	obj.Set(seg.Key, child)
}

func deleteRec(cursor *jsonval.Value, path []Segment) {
	if len(path) == 0 {
		return
	}
	seg, rest := path[0], path[1:]
	if len(rest) == 0 {
		if seg.IsIndex {
			if cursor.Kind == jsonval.KindArray && seg.Index >= 0 && seg.Index < len(cursor.Arr) {
				cursor.Arr = append(cursor.Arr[:seg.Index], cursor.Arr[seg.Index+1:]...)
			}
			return
		}
		if obj, ok := cursor.AsObject(); ok {
			obj.Delete(seg.Key)
		}
		return
	}
	if seg.IsIndex {
		if cursor.Kind != jsonval.KindArray || seg.Index < 0 || seg.Index >= len(cursor.Arr) {
			return
		}
		deleteRec(&cursor.Arr[seg.Index], rest)
		return
	}
	obj, ok := cursor.AsObject()
	if !ok {
		return
	}
	child, ok := obj.Get(seg.Key)
	if !ok {
		return
	}
	deleteRec(&child, rest)
	obj.Set(seg.Key, child)
}

// OpsToValue and OpToValue serialize ops for wire transmission and byte
// accounting.

func OpsToValue(ops []Op) jsonval.Value {
	items := make([]jsonval.Value, len(ops))
	for i, op := range ops {
		items[i] = OpToValue(op)
	}
	return jsonval.Value{Kind: jsonval.KindArray, Arr: items}
}

func OpToValue(op Op) jsonval.Value {
	obj := jsonval.NewObject()
	obj.Set("op", jsonval.String(op.Op))
	obj.Set("path", segmentsToValue(op.Path))
	if op.Op == "set" {
		obj.Set("value", op.Value)
	}
	return jsonval.Obj(obj)
}

func segmentsToValue(path []Segment) jsonval.Value {
	items := make([]jsonval.Value, len(path))
	for i, seg := range path {
		if seg.IsIndex {
			items[i] = jsonval.Int(seg.Index)
		} else {
			items[i] = jsonval.String(seg.Key)
		}
	}
	return jsonval.Value{Kind: jsonval.KindArray, Arr: items}
}

// ToValue renders the full delta envelope as it appears on the wire.
func (d *Delta) ToValue() jsonval.Value {
	obj := jsonval.NewObject()
	obj.Set("encoding", jsonval.String(Encoding))
	obj.Set("baselineHash", jsonval.String(d.BaselineHash))
	obj.Set("currentHash", jsonval.String(d.CurrentHash))
	obj.Set("ops", OpsToValue(d.Ops))
	obj.Set("patchBytes", jsonval.Int(d.PatchBytes))
	obj.Set("fullBytes", jsonval.Int(d.FullBytes))
	obj.Set("savedBytes", jsonval.Int(d.SavedBytes))
	obj.Set("savedRatio", jsonval.Float(d.SavedRatio))
	return jsonval.Obj(obj)
}

// UnchangedEnvelope builds the `{encoding, unchanged: true, currentHash}`
// wire form emitted by the caller when previous and current are equal.
func UnchangedEnvelope(current jsonval.Value) jsonval.Value {
	obj := jsonval.NewObject()
	obj.Set("encoding", jsonval.String(Encoding))
	obj.Set("unchanged", jsonval.Bool(true))
	obj.Set("currentHash", jsonval.String(StableHash(jsonval.Canonicalize(current))))
	return jsonval.Obj(obj)
}
