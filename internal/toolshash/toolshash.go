// Package toolshash computes and validates the "sha256:<hex>" tools-hash
// used by the tools-hash-sync engine (SPEC_FULL.md §4.5) to let a client
// skip re-fetching an unchanged tool catalog. This is a distinct wire
// format from delta's plain-hex StableHash: it always carries an
// algorithm prefix so a client can detect an algorithm it does not
// support instead of silently comparing incompatible hashes.
package toolshash

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/viant/ultra-lean-mcp-proxy/internal/jsonval"
)

// wireFormat matches "<algorithm>:<64 lowercase hex chars>".
var wireFormat = regexp.MustCompile(`^([a-z0-9_]+):([0-9a-f]{64})$`)

// Compute hashes the canonical-JSON form of toolsPayload, optionally
// mixing in a server fingerprint so two upstreams that happen to expose
// identical tool catalogs still produce distinct hashes. algorithm must
// be "sha256"; anything else is a config error the caller should have
// already rejected during validation.
func Compute(toolsPayload jsonval.Value, algorithm string, includeServerFingerprint bool, serverFingerprint string) (string, error) {
	if algorithm != "sha256" {
		return "", errUnsupportedAlgorithm(algorithm)
	}
	preimage := toolsPayload
	if includeServerFingerprint {
		bound := jsonval.NewObject()
		bound.Set("tools", toolsPayload)
		bound.Set("server_fingerprint", jsonval.String(serverFingerprint))
		preimage = jsonval.Obj(bound)
	}
	text, err := jsonval.MarshalString(jsonval.Canonicalize(preimage))
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(text))
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

type errUnsupportedAlgorithm string

func (e errUnsupportedAlgorithm) Error() string {
	return "toolshash: unsupported algorithm " + string(e)
}

// ParseIfNoneMatch validates an incoming `if_none_match` value against
// the wire format and the server's configured algorithm. A mismatched
// algorithm prefix, malformed hex body, or algorithm the server does not
// speak is treated as absent (ok=false) rather than an error: the proxy
// fails open and simply re-sends the full catalog.
func ParseIfNoneMatch(value jsonval.Value, expectedAlgorithm string) (string, bool) {
	s, isStr := value.AsString()
	if !isStr || s == "" {
		return "", false
	}
	s = strings.ToLower(strings.TrimSpace(s))
	m := wireFormat.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	if m[1] != strings.ToLower(expectedAlgorithm) {
		return "", false
	}
	return s, true
}
