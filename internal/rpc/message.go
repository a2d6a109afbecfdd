// Package rpc reads and writes the newline-delimited JSON-RPC 2.0
// messages exchanged with the client and the upstream MCP server. It is
// deliberately not built on a typed JSON-RPC session library: this
// proxy must relay lines it does not or cannot fully parse byte-for-byte
// (see SPEC_FULL.md §4.1, §7), which a strict typed envelope would
// reject rather than pass through.
package rpc

import (
	"bufio"
	"io"

	"github.com/viant/ultra-lean-mcp-proxy/internal/jsonval"
)

// MaxLineBytes bounds a single JSON-RPC line; large tool results can
// legitimately approach a few megabytes.
const MaxLineBytes = 8 * 1024 * 1024

// Line is one line read from a duplex stream: either a successfully
// parsed JSON-RPC object, or raw bytes that failed to parse and must be
// forwarded verbatim per the fail-open transparency principle.
type Line struct {
	Raw    []byte
	Value  jsonval.Value
	Parsed bool
}

// Reader yields successive non-blank lines from a stream.
type Reader struct {
	scanner *bufio.Scanner
}

func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineBytes)
	return &Reader{scanner: scanner}
}

// ReadLine returns the next non-blank line, or io.EOF when the stream
// ends.
func (r *Reader) ReadLine() (Line, error) {
	for r.scanner.Scan() {
		raw := r.scanner.Bytes()
		trimmed := trimSpace(raw)
		if len(trimmed) == 0 {
			continue
		}
		cp := make([]byte, len(trimmed))
		copy(cp, trimmed)
		val, err := jsonval.Parse(cp)
		if err != nil {
			return Line{Raw: cp, Parsed: false}, nil
		}
		return Line{Raw: cp, Value: val, Parsed: true}, nil
	}
	if err := r.scanner.Err(); err != nil {
		return Line{}, err
	}
	return Line{}, io.EOF
}

func trimSpace(b []byte) []byte {
	start, end := 0, len(b)
	for start < end && isSpace(b[start]) {
		start++
	}
	for end > start && isSpace(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}

// Writer serializes JSON-RPC messages, one compact JSON object per line.
type Writer struct {
	w io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) WriteValue(v jsonval.Value) error {
	data, err := jsonval.MarshalString(v)
	if err != nil {
		return err
	}
	_, err = w.w.Write(append([]byte(data), '\n'))
	return err
}

func (w *Writer) WriteRaw(raw []byte) error {
	_, err := w.w.Write(append(append([]byte{}, raw...), '\n'))
	return err
}

// Accessors over a parsed message, since jsonrpc envelopes are just
// Values with well-known top-level fields.

func Method(v jsonval.Value) (string, bool) {
	return v.Field("method").AsString()
}

func HasID(v jsonval.Value) bool {
	obj, ok := v.AsObject()
	if !ok {
		return false
	}
	_, present := obj.Get("id")
	return present
}

func ID(v jsonval.Value) jsonval.Value {
	return v.Field("id")
}

func HasResult(v jsonval.Value) bool {
	obj, ok := v.AsObject()
	if !ok {
		return false
	}
	_, present := obj.Get("result")
	return present
}

func HasError(v jsonval.Value) bool {
	obj, ok := v.AsObject()
	if !ok {
		return false
	}
	_, present := obj.Get("error")
	return present
}

func Result(v jsonval.Value) jsonval.Value {
	return v.Field("result")
}

func Params(v jsonval.Value) jsonval.Value {
	return v.Field("params")
}

// IDKey renders an id Value into a comparable map key. JSON-RPC ids are
// strings, numbers, or null; render numbers using their lexical form so
// 1 and 1.0 are treated as distinct wire identities, matching strict
// JSON-RPC correlation.
func IDKey(id jsonval.Value) string {
	switch id.Kind {
	case jsonval.KindString:
		return "s:" + id.Str
	case jsonval.KindNumber:
		return "n:" + string(id.Num)
	case jsonval.KindNull:
		return "null"
	default:
		s, _ := jsonval.MarshalString(id)
		return "x:" + s
	}
}

// NewResponse builds a minimal `{jsonrpc, id, result}` envelope for
// proxy-originated (short-circuited) responses.
func NewResponse(jsonrpcVersion string, id jsonval.Value, result jsonval.Value) jsonval.Value {
	obj := jsonval.NewObject()
	if jsonrpcVersion == "" {
		jsonrpcVersion = "2.0"
	}
	obj.Set("jsonrpc", jsonval.String(jsonrpcVersion))
	obj.Set("id", id)
	obj.Set("result", result)
	return jsonval.Obj(obj)
}

// JSONRPCVersion returns the message's jsonrpc field, defaulting to
// "2.0" when absent so proxy-originated replies always carry one.
func JSONRPCVersion(v jsonval.Value) string {
	if s, ok := v.Field("jsonrpc").AsString(); ok && s != "" {
		return s
	}
	return "2.0"
}
