// Package resultcompress implements generic, reversible structural JSON
// compression for tool-call results (SPEC_FULL.md §4.8): key aliasing
// plus columnar packing of homogeneous object arrays, wrapped in a
// "lapc-json-v1" envelope. Compression is opportunistic — both a
// byte-savings gate here and a token-savings gate at the caller must
// pass, or the original payload ships unchanged.
package resultcompress

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/viant/ultra-lean-mcp-proxy/internal/jsonval"
)

const Encoding = "lapc-json-v1"

type Options struct {
	Mode              string // off | balanced | aggressive
	StripNulls        bool
	StripDefaults     bool
	MinPayloadBytes   int
	EnableColumnar    bool
	ColumnarMinRows   int
	ColumnarMinFields int
}

func DefaultOptions() Options {
	return Options{
		Mode:              "balanced",
		MinPayloadBytes:   512,
		EnableColumnar:    true,
		ColumnarMinRows:   8,
		ColumnarMinFields: 2,
	}
}

// TokenCounter estimates token counts. Only the deterministic heuristic
// backend is implemented: a tiktoken-equivalent tokenizer has no
// portable Go analogue in this stack, and spec.md itself sanctions
// max(1, len/4) as an acceptable implementation.
type TokenCounter struct{}

func (TokenCounter) Count(v jsonval.Value) int {
	text, _ := jsonval.MarshalString(v)
	n := len(text) / 4
	if n < 1 {
		n = 1
	}
	return n
}

// Envelope mirrors the wire shape of a compress_result result.
type Envelope struct {
	Compressed     bool
	Mode           string
	OriginalBytes  int
	CompressedBytes int
	SavedBytes     int
	SavedRatio     float64
	Data           jsonval.Value
	Keys           map[string]string // alias -> original key
	KeysRef        string
	HasKeysRef     bool
}

func (e *Envelope) ToValue() jsonval.Value {
	obj := jsonval.NewObject()
	obj.Set("encoding", jsonval.String(Encoding))
	obj.Set("compressed", jsonval.Bool(e.Compressed))
	if e.Compressed {
		obj.Set("mode", jsonval.String(e.Mode))
	}
	obj.Set("originalBytes", jsonval.Int(e.OriginalBytes))
	obj.Set("data", e.Data)
	if e.HasKeysRef {
		obj.Set("keysRef", jsonval.String(e.KeysRef))
	}
	if e.Keys != nil {
		obj.Set("keys", keysToValue(e.Keys))
	}
	obj.Set("compressedBytes", jsonval.Int(e.CompressedBytes))
	obj.Set("savedBytes", jsonval.Int(e.SavedBytes))
	obj.Set("savedRatio", jsonval.Float(e.SavedRatio))
	return jsonval.Obj(obj)
}

func keysToValue(keys map[string]string) jsonval.Value {
	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	sort.Strings(names)
	obj := jsonval.NewObject()
	for _, k := range names {
		obj.Set(k, jsonval.String(keys[k]))
	}
	return jsonval.Obj(obj)
}

// Registry is the shared key-dictionary state threaded across calls so
// repeated response shapes can omit their key map and instead reference
// a previously shipped one by keysRef.
type Registry struct {
	dicts   map[string]map[string]string // ref -> alias->key
	reuses  map[string]int
}

func NewRegistry() *Registry {
	return &Registry{dicts: map[string]map[string]string{}, reuses: map[string]int{}}
}

func (r *Registry) Get(ref string) (map[string]string, bool) {
	d, ok := r.dicts[ref]
	return d, ok
}

// keyFrequency walks the tree counting object-key occurrences.
func keyFrequency(v jsonval.Value, counter map[string]int) {
	switch v.Kind {
	case jsonval.KindObject:
		obj, _ := v.AsObject()
		obj.Range(func(key string, val jsonval.Value) {
			counter[key]++
			keyFrequency(val, counter)
		})
	case jsonval.KindArray:
		arr, _ := v.AsArray()
		for _, item := range arr {
			keyFrequency(item, counter)
		}
	}
}

func buildKeyAliases(counter map[string]int, mode string) map[string]string {
	if mode == "off" {
		return map[string]string{}
	}
	minFreq := 2
	if mode == "aggressive" {
		minFreq = 1
	}
	type candidate struct {
		key  string
		freq int
	}
	var candidates []candidate
	for key, freq := range counter {
		if freq >= minFreq && len(key) > 2 {
			candidates = append(candidates, candidate{key, freq})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].freq != candidates[j].freq {
			return candidates[i].freq > candidates[j].freq
		}
		if len(candidates[i].key) != len(candidates[j].key) {
			return len(candidates[i].key) > len(candidates[j].key)
		}
		return candidates[i].key < candidates[j].key
	})

	aliases := map[string]string{}
	for idx, c := range candidates {
		alias := aliasName(idx)
		if len(alias) < len(c.key) {
			aliases[c.key] = alias
		}
	}
	return aliases
}

func aliasName(idx int) string {
	digits := "0123456789"
	if idx < 10 {
		return "k" + string(digits[idx])
	}
	// Fall back to decimal rendering for larger indices; still shorter
	// than any key long enough to be worth aliasing in practice.
	var buf []byte
	n := idx
	for n > 0 {
		buf = append([]byte{digits[n%10]}, buf...)
		n /= 10
	}
	return "k" + string(buf)
}

func isDefaultish(v jsonval.Value) bool {
	switch v.Kind {
	case jsonval.KindNull:
		return true
	case jsonval.KindBool:
		b, _ := v.AsBool()
		return !b
	case jsonval.KindNumber:
		f, _ := v.AsFloat()
		return f == 0
	case jsonval.KindString:
		s, _ := v.AsString()
		return s == ""
	case jsonval.KindArray:
		arr, _ := v.AsArray()
		return len(arr) == 0
	case jsonval.KindObject:
		obj, _ := v.AsObject()
		return obj.Len() == 0
	}
	return false
}

func canColumnar(items []jsonval.Value, opts Options) (bool, []string) {
	if !opts.EnableColumnar {
		return false, nil
	}
	if len(items) < opts.ColumnarMinRows {
		return false, nil
	}
	for _, item := range items {
		if _, ok := item.AsObject(); !ok {
			return false, nil
		}
	}
	firstObj, _ := items[0].AsObject()
	firstKeys := firstObj.Keys()
	if len(firstKeys) < opts.ColumnarMinFields {
		return false, nil
	}
	firstSet := map[string]bool{}
	for _, k := range firstKeys {
		firstSet[k] = true
	}
	for _, item := range items[1:] {
		obj, _ := item.AsObject()
		keys := obj.Keys()
		if len(keys) != len(firstSet) {
			return false, nil
		}
		for _, k := range keys {
			if !firstSet[k] {
				return false, nil
			}
		}
	}
	return true, firstKeys
}

func encode(node jsonval.Value, keyAlias map[string]string, opts Options) jsonval.Value {
	switch node.Kind {
	case jsonval.KindObject:
		obj, _ := node.AsObject()
		out := jsonval.NewObject()
		obj.Range(func(key string, value jsonval.Value) {
			if opts.StripNulls && value.IsNull() {
				return
			}
			if opts.StripDefaults && isDefaultKeyName(key) && isDefaultish(value) {
				return
			}
			encodedKey := key
			if a, ok := keyAlias[key]; ok {
				encodedKey = a
			}
			out.Set(encodedKey, encode(value, keyAlias, opts))
		})
		return jsonval.Obj(out)
	case jsonval.KindArray:
		arr, _ := node.AsArray()
		if canCol, columns := canColumnar(arr, opts); canCol {
			encodedColumns := make([]jsonval.Value, len(columns))
			for i, col := range columns {
				name := col
				if a, ok := keyAlias[col]; ok {
					name = a
				}
				encodedColumns[i] = jsonval.String(name)
			}
			rows := make([]jsonval.Value, len(arr))
			for i, item := range arr {
				itemObj, _ := item.AsObject()
				row := make([]jsonval.Value, len(columns))
				for j, col := range columns {
					val, _ := itemObj.Get(col)
					row[j] = encode(val, keyAlias, opts)
				}
				rows[i] = jsonval.Value{Kind: jsonval.KindArray, Arr: row}
			}
			meta := jsonval.NewObject()
			meta.Set("c", jsonval.Value{Kind: jsonval.KindArray, Arr: encodedColumns})
			meta.Set("r", jsonval.Value{Kind: jsonval.KindArray, Arr: rows})
			wrapper := jsonval.NewObject()
			wrapper.Set("~t", jsonval.Obj(meta))
			return jsonval.Obj(wrapper)
		}
		out := make([]jsonval.Value, len(arr))
		for i, item := range arr {
			out[i] = encode(item, keyAlias, opts)
		}
		return jsonval.Value{Kind: jsonval.KindArray, Arr: out}
	default:
		return node
	}
}

func isDefaultKeyName(key string) bool {
	lower := lowerASCII(key)
	return lower == "default" || lower == "defaults"
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 32
		}
	}
	return string(b)
}

func decode(node jsonval.Value, aliasToKey map[string]string) jsonval.Value {
	switch node.Kind {
	case jsonval.KindObject:
		obj, _ := node.AsObject()
		if tv, ok := obj.Get("~t"); ok {
			if meta, isObj := tv.AsObject(); isObj && obj.Len() == 1 {
				colsVal, hasCols := meta.Get("c")
				rowsVal, hasRows := meta.Get("r")
				if hasCols && hasRows {
					cols, colsOK := colsVal.AsArray()
					rows, rowsOK := rowsVal.AsArray()
					if colsOK && rowsOK {
						decodedCols := make([]string, len(cols))
						for i, c := range cols {
							s, _ := c.AsString()
							if k, ok := aliasToKey[s]; ok {
								decodedCols[i] = k
							} else {
								decodedCols[i] = s
							}
						}
						items := make([]jsonval.Value, 0, len(rows))
						for _, r := range rows {
							rowArr, ok := r.AsArray()
							if !ok {
								continue
							}
							rowObj := jsonval.NewObject()
							for idx, col := range decodedCols {
								if idx < len(rowArr) {
									rowObj.Set(col, decode(rowArr[idx], aliasToKey))
								}
							}
							items = append(items, jsonval.Obj(rowObj))
						}
						return jsonval.Value{Kind: jsonval.KindArray, Arr: items}
					}
				}
			}
		}
		out := jsonval.NewObject()
		obj.Range(func(key string, value jsonval.Value) {
			decodedKey := key
			if k, ok := aliasToKey[key]; ok {
				decodedKey = k
			}
			out.Set(decodedKey, decode(value, aliasToKey))
		})
		return jsonval.Obj(out)
	case jsonval.KindArray:
		arr, _ := node.AsArray()
		out := make([]jsonval.Value, len(arr))
		for i, item := range arr {
			out[i] = decode(item, aliasToKey)
		}
		return jsonval.Value{Kind: jsonval.KindArray, Arr: out}
	default:
		return node
	}
}

func keyRef(aliasToKey map[string]string) string {
	names := make([]string, 0, len(aliasToKey))
	for k := range aliasToKey {
		names = append(names, k)
	}
	sort.Strings(names)
	obj := jsonval.NewObject()
	for _, k := range names {
		obj.Set(k, jsonval.String(aliasToKey[k]))
	}
	text, _ := jsonval.MarshalString(jsonval.Obj(obj))
	sum := sha256.Sum256([]byte(text))
	return "kdict-" + hex.EncodeToString(sum[:])[:12]
}

// Compress produces a lapc-json-v1 envelope for inputData. registry may
// be nil to disable shared key-dictionary reuse; keyBootstrapInterval
// controls how often a reused dictionary is re-shipped in full.
func Compress(inputData jsonval.Value, opts Options, registry *Registry, reuseKeys bool, keyBootstrapInterval int) *Envelope {
	originalBytes := jsonval.ByteSize(inputData)
	if originalBytes < opts.MinPayloadBytes {
		return &Envelope{
			Compressed:      false,
			OriginalBytes:   originalBytes,
			CompressedBytes: originalBytes,
			Data:            inputData,
		}
	}

	counter := map[string]int{}
	keyFrequency(inputData, counter)
	keyAlias := buildKeyAliases(counter, opts.Mode)
	encoded := encode(inputData, keyAlias, opts)
	aliasToKey := map[string]string{}
	for key, alias := range keyAlias {
		aliasToKey[alias] = key
	}

	env := &Envelope{
		Compressed:    true,
		Mode:          opts.Mode,
		OriginalBytes: originalBytes,
		Data:          encoded,
		Keys:          aliasToKey,
	}

	if reuseKeys && registry != nil {
		ref := keyRef(aliasToKey)
		includeKeys := true
		if previous, ok := registry.dicts[ref]; ok && sameKeyMap(previous, aliasToKey) {
			includeKeys = false
			count := registry.reuses[ref] + 1
			registry.reuses[ref] = count
			if keyBootstrapInterval > 0 && count%keyBootstrapInterval == 0 {
				includeKeys = true
			}
		} else {
			registry.dicts[ref] = cloneKeyMap(aliasToKey)
			registry.reuses[ref] = 0
		}
		env.KeysRef = ref
		env.HasKeysRef = true
		if !includeKeys {
			env.Keys = nil
		}
	}

	compressedBytes := jsonval.ByteSize(env.ToValue())
	saved := originalBytes - compressedBytes
	env.CompressedBytes = compressedBytes
	env.SavedBytes = saved
	if originalBytes > 0 {
		env.SavedRatio = float64(saved) / float64(originalBytes)
	}

	if saved <= 0 {
		env.Compressed = false
		env.Data = inputData
		env.Keys = nil
		env.HasKeysRef = false
		env.KeysRef = ""
		env.CompressedBytes = originalBytes
		env.SavedBytes = 0
		env.SavedRatio = 0
	}
	return env
}

func sameKeyMap(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

func cloneKeyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Decompress reverses Compress. registry supplies the key dictionary
// when the envelope references one by keysRef instead of embedding it.
func Decompress(envelopeValue jsonval.Value, registry *Registry) (jsonval.Value, error) {
	obj, ok := envelopeValue.AsObject()
	if !ok {
		return jsonval.Value{}, errInvalidEnvelope
	}
	encodingVal, _ := obj.Get("encoding")
	encStr, _ := encodingVal.AsString()
	if encStr != Encoding {
		return jsonval.Value{}, errInvalidEnvelope
	}
	data, _ := obj.Get("data")
	compressedVal, _ := obj.Get("compressed")
	compressed, _ := compressedVal.AsBool()
	if !compressed {
		return data, nil
	}

	var keys map[string]string
	if keysVal, ok := obj.Get("keys"); ok {
		if keysObj, isObj := keysVal.AsObject(); isObj {
			keys = map[string]string{}
			keysObj.Range(func(k string, v jsonval.Value) {
				s, _ := v.AsString()
				keys[k] = s
			})
		}
	}
	if keys == nil {
		if refVal, ok := obj.Get("keysRef"); ok {
			if ref, isStr := refVal.AsString(); isStr && registry != nil {
				if d, found := registry.Get(ref); found {
					keys = d
				}
			}
		}
	}
	if keys == nil {
		return jsonval.Value{}, errMissingKeyDict
	}
	return decode(data, keys), nil
}

type compressError string

func (e compressError) Error() string { return string(e) }

const (
	errInvalidEnvelope = compressError("resultcompress: unsupported compression envelope")
	errMissingKeyDict  = compressError("resultcompress: invalid or missing key dictionary")
)

// TokenSavings returns a positive value when candidate uses fewer
// estimated tokens than original.
func TokenSavings(original, candidate jsonval.Value, counter TokenCounter) int {
	return counter.Count(original) - counter.Count(candidate)
}

// EstimateCompressibility scores [0,1] how likely value is to benefit
// from structural compression, combining key repetition, duplicate
// scalar values, and homogeneous list-of-object shapes.
func EstimateCompressibility(value jsonval.Value) float64 {
	keyCounter := map[string]int{}
	scalarCounter := map[string]int{}
	homogeneousLists := 0
	totalLists := 0

	var walk func(node jsonval.Value)
	walk = func(node jsonval.Value) {
		switch node.Kind {
		case jsonval.KindObject:
			obj, _ := node.AsObject()
			obj.Range(func(key string, child jsonval.Value) {
				keyCounter[key]++
				walk(child)
			})
		case jsonval.KindArray:
			arr, _ := node.AsArray()
			totalLists++
			if len(arr) > 0 {
				allObjects := true
				keysets := map[string]bool{}
				for _, item := range arr {
					obj, ok := item.AsObject()
					if !ok {
						allObjects = false
						break
					}
					keys := obj.Keys()
					sort.Strings(keys)
					keysets[joinKeys(keys)] = true
				}
				if allObjects && len(keysets) == 1 {
					homogeneousLists++
				}
			}
			for _, item := range arr {
				walk(item)
			}
		default:
			marker, _ := jsonval.MarshalString(node)
			scalarCounter[marker]++
		}
	}
	walk(value)

	totalKeys := 0
	for _, n := range keyCounter {
		totalKeys += n
	}
	duplicateKeys := totalKeys - len(keyCounter)
	if duplicateKeys < 0 {
		duplicateKeys = 0
	}
	var keyRepeatRatio float64
	if totalKeys > 0 {
		keyRepeatRatio = float64(duplicateKeys) / float64(totalKeys)
	}

	totalScalars := 0
	for _, n := range scalarCounter {
		totalScalars += n
	}
	duplicateScalars := totalScalars - len(scalarCounter)
	if duplicateScalars < 0 {
		duplicateScalars = 0
	}
	var scalarRepeatRatio float64
	if totalScalars > 0 {
		scalarRepeatRatio = float64(duplicateScalars) / float64(totalScalars)
	}

	var homogeneousRatio float64
	if totalLists > 0 {
		homogeneousRatio = float64(homogeneousLists) / float64(totalLists)
	}

	score := 0.5*keyRepeatRatio + 0.25*scalarRepeatRatio + 0.25*homogeneousRatio
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func joinKeys(keys []string) string {
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += "\x00"
		}
		out += k
	}
	return out
}
