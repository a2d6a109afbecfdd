// Package jsonval models the heterogeneous JSON tree the proxy relays,
// caches, diffs, and rewrites. encoding/json's map[string]interface{}
// sorts keys on marshal and cannot preserve source order, which breaks
// fidelity for pass-through payloads; Value keeps object keys in
// insertion order and exposes a separate Canonicalize for hashing.
package jsonval

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// Value is a sum type over the JSON data model. Only the field matching
// Kind is meaningful.
type Value struct {
	Kind Kind
	Bool bool
	Num  json.Number
	Str  string
	Arr  []Value
	Obj  *Object
}

// Object is an insertion-ordered string-keyed map of Value.
type Object struct {
	keys []string
	vals map[string]Value
}

func NewObject() *Object {
	return &Object{vals: map[string]Value{}}
}

func (o *Object) Get(key string) (Value, bool) {
	if o == nil {
		return Value{}, false
	}
	v, ok := o.vals[key]
	return v, ok
}

func (o *Object) Set(key string, v Value) {
	if _, exists := o.vals[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.vals[key] = v
}

func (o *Object) Delete(key string) {
	if _, exists := o.vals[key]; !exists {
		return
	}
	delete(o.vals, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
}

func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Field looks up key on o, returning Null when o is nil or the key is
// absent. Mirrors Value.Field for callers already holding an *Object.
func (o *Object) Field(key string) Value {
	val, ok := o.Get(key)
	if !ok {
		return Null()
	}
	return val
}

func (o *Object) Range(fn func(key string, v Value)) {
	if o == nil {
		return
	}
	for _, k := range o.keys {
		fn(k, o.vals[k])
	}
}

// Constructors.

func Null() Value              { return Value{Kind: KindNull} }
func Bool(b bool) Value        { return Value{Kind: KindBool, Bool: b} }
func String(s string) Value    { return Value{Kind: KindString, Str: s} }
func Int(i int) Value          { return Value{Kind: KindNumber, Num: json.Number(fmt.Sprintf("%d", i))} }
func Float(f float64) Value    { return Value{Kind: KindNumber, Num: json.Number(fmt.Sprintf("%g", f))} }
func Array(items ...Value) Value {
	return Value{Kind: KindArray, Arr: items}
}
func ObjectOf() Value { return Value{Kind: KindObject, Obj: NewObject()} }

// Accessors.

func (v Value) IsNull() bool { return v.Kind == KindNull }

func (v Value) AsString() (string, bool) {
	if v.Kind != KindString {
		return "", false
	}
	return v.Str, true
}

func (v Value) AsBool() (bool, bool) {
	if v.Kind != KindBool {
		return false, false
	}
	return v.Bool, true
}

func (v Value) AsInt() (int, bool) {
	if v.Kind != KindNumber {
		return 0, false
	}
	i, err := v.Num.Int64()
	if err != nil {
		f, ferr := v.Num.Float64()
		if ferr != nil {
			return 0, false
		}
		return int(f), true
	}
	return int(i), true
}

func (v Value) AsFloat() (float64, bool) {
	if v.Kind != KindNumber {
		return 0, false
	}
	f, err := v.Num.Float64()
	if err != nil {
		return 0, false
	}
	return f, true
}

func (v Value) AsArray() ([]Value, bool) {
	if v.Kind != KindArray {
		return nil, false
	}
	return v.Arr, true
}

func (v Value) AsObject() (*Object, bool) {
	if v.Kind != KindObject {
		return nil, false
	}
	return v.Obj, true
}

// Field returns a single-level (undotted) object field, returning Null
// when the receiver is not an object or the key is absent.
func (v Value) Field(key string) Value {
	obj, ok := v.AsObject()
	if !ok {
		return Null()
	}
	val, ok := obj.Get(key)
	if !ok {
		return Null()
	}
	return val
}

// Clone performs a deep, by-value copy so callers never alias interior
// mutable state (object/array backing storage).
func Clone(v Value) Value {
	switch v.Kind {
	case KindArray:
		out := make([]Value, len(v.Arr))
		for i, item := range v.Arr {
			out[i] = Clone(item)
		}
		return Value{Kind: KindArray, Arr: out}
	case KindObject:
		out := NewObject()
		v.Obj.Range(func(k string, item Value) {
			out.Set(k, Clone(item))
		})
		return Value{Kind: KindObject, Obj: out}
	default:
		return v
	}
}

// Canonicalize returns a value with every object's keys sorted
// recursively; used as the preimage for hashing and equality, never for
// wire output shown to clients.
func Canonicalize(v Value) Value {
	switch v.Kind {
	case KindArray:
		out := make([]Value, len(v.Arr))
		for i, item := range v.Arr {
			out[i] = Canonicalize(item)
		}
		return Value{Kind: KindArray, Arr: out}
	case KindObject:
		keys := v.Obj.Keys()
		sort.Strings(keys)
		out := NewObject()
		for _, k := range keys {
			val, _ := v.Obj.Get(k)
			out.Set(k, Canonicalize(val))
		}
		return Value{Kind: KindObject, Obj: out}
	default:
		return v
	}
}

// Equal compares two values structurally, ignoring source object-key
// order (equivalent to comparing their canonical forms).
func Equal(a, b Value) bool {
	sa, err := MarshalString(Canonicalize(a))
	if err != nil {
		return false
	}
	sb, err := MarshalString(Canonicalize(b))
	if err != nil {
		return false
	}
	return sa == sb
}

// Marshaling.

func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeValue(buf *bytes.Buffer, v Value) error {
	switch v.Kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		if v.Bool {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case KindNumber:
		if v.Num == "" {
			buf.WriteString("0")
		} else {
			buf.WriteString(string(v.Num))
		}
	case KindString:
		data, err := json.Marshal(v.Str)
		if err != nil {
			return err
		}
		buf.Write(data)
	case KindArray:
		buf.WriteByte('[')
		for i, item := range v.Arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeValue(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		buf.WriteByte('{')
		first := true
		v.Obj.Range(func(k string, item Value) {
			if !first {
				buf.WriteByte(',')
			}
			first = false
			keyData, _ := json.Marshal(k)
			buf.Write(keyData)
			buf.WriteByte(':')
			_ = writeValue(buf, item)
		})
		buf.WriteByte('}')
	}
	return nil
}

// MarshalString renders v as compact, deterministic JSON text (no
// inserted whitespace); used for hashing and byte-size accounting.
func MarshalString(v Value) (string, error) {
	data, err := v.MarshalJSON()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	val, err := decodeValue(dec)
	if err != nil {
		return err
	}
	*v = val
	return nil
}

// Parse decodes a single JSON text into a Value, preserving object key
// order.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, err
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	return decodeToken(dec, tok)
}

func decodeToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := NewObject()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("jsonval: expected object key, got %v", keyTok)
				}
				valTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				val, err := decodeToken(dec, valTok)
				if err != nil {
					return Value{}, err
				}
				obj.Set(key, val)
			}
			// consume closing '}'
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return Value{Kind: KindObject, Obj: obj}, nil
		case '[':
			var items []Value
			for dec.More() {
				itemTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				item, err := decodeToken(dec, itemTok)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return Value{Kind: KindArray, Arr: items}, nil
		default:
			return Value{}, fmt.Errorf("jsonval: unexpected delimiter %v", t)
		}
	case json.Number:
		return Value{Kind: KindNumber, Num: t}, nil
	case string:
		return Value{Kind: KindString, Str: t}, nil
	case bool:
		return Value{Kind: KindBool, Bool: t}, nil
	case nil:
		return Value{Kind: KindNull}, nil
	default:
		return Value{}, fmt.Errorf("jsonval: unsupported token %T", tok)
	}
}

// FromAny converts a plain Go value tree (as produced by encoding/json
// unmarshaling into interface{}, or by hand-built map/slice literals in
// tests) into a Value. Object key order for map[string]interface{} input
// is not preserved (Go maps have none); prefer Parse for wire input.
func FromAny(v interface{}) Value {
	switch t := v.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case string:
		return String(t)
	case json.Number:
		return Value{Kind: KindNumber, Num: t}
	case float64:
		return Value{Kind: KindNumber, Num: json.Number(trimFloat(t))}
	case int:
		return Int(t)
	case []interface{}:
		out := make([]Value, len(t))
		for i, item := range t {
			out[i] = FromAny(item)
		}
		return Value{Kind: KindArray, Arr: out}
	case []Value:
		return Value{Kind: KindArray, Arr: t}
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := NewObject()
		for _, k := range keys {
			obj.Set(k, FromAny(t[k]))
		}
		return Value{Kind: KindObject, Obj: obj}
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return Null()
		}
		val, err := Parse(data)
		if err != nil {
			return Null()
		}
		return val
	}
}

func trimFloat(f float64) string {
	return fmt.Sprintf("%g", f)
}

// Obj wraps an *Object as a Value.
func Obj(o *Object) Value {
	if o == nil {
		o = NewObject()
	}
	return Value{Kind: KindObject, Obj: o}
}

// EnsureObject returns v's Object if v is one, else replaces *v with a
// fresh empty object and returns that. Used by extension-injection code
// that needs a mutable object at a known path regardless of what was
// there before.
func EnsureObject(v *Value) *Object {
	if v.Kind == KindObject && v.Obj != nil {
		return v.Obj
	}
	obj := NewObject()
	*v = Value{Kind: KindObject, Obj: obj}
	return obj
}

// ByteSize returns the compact-JSON byte length of v.
func ByteSize(v Value) int {
	s, err := MarshalString(v)
	if err != nil {
		return 0
	}
	return len(s)
}
