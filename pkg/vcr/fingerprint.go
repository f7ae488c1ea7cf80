package vcr

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// MatchMode controls which request fields the fingerprint commits to.
type MatchMode string

const (
	// MatchFuzzy fingerprints the conversational payload only. Requests
	// that differ in sampling parameters (temperature, max_tokens, ...)
	// map to the same cassette.
	MatchFuzzy MatchMode = "fuzzy"

	// MatchExact additionally commits to the sampling parameters, so any
	// change to them produces a distinct fingerprint.
	MatchExact MatchMode = "exact"
)

// ParseMatchMode validates a match mode string. Empty input selects
// MatchFuzzy.
func ParseMatchMode(s string) (MatchMode, error) {
	switch MatchMode(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return MatchFuzzy, nil
	case MatchFuzzy:
		return MatchFuzzy, nil
	case MatchExact:
		return MatchExact, nil
	default:
		return "", NewInvalidCassetteError("", "unknown match mode "+s, nil)
	}
}

// samplingFields are the request fields committed to only in exact mode,
// in the order they join the fingerprint input.
var samplingFields = []string{
	"temperature",
	"max_tokens",
	"top_p",
	"frequency_penalty",
	"presence_penalty",
	"stop",
}

// Fingerprint computes the deterministic SHA-256 digest that addresses a
// cassette. The digest is taken over a canonical serialization of
// (provider, model, messages|prompt|input, tools?). In exact mode the
// sampling parameters present in the body are appended as well.
//
// The function is pure: identical inputs always produce identical output,
// and the body is never modified. JSON fragments are canonicalized (keys
// sorted, insignificant whitespace removed) before hashing so that
// formatting differences do not change the fingerprint.
func Fingerprint(provider string, body []byte, match MatchMode) string {
	var b strings.Builder
	b.WriteString(provider)
	b.WriteByte('|')
	b.WriteString(gjson.GetBytes(body, "model").String())
	b.WriteByte('|')
	b.WriteString(canonicalPayload(body))

	if tools := gjson.GetBytes(body, "tools"); tools.Exists() {
		b.WriteString("|tools:")
		b.WriteString(canonicalJSON([]byte(tools.Raw)))
	}

	if match == MatchExact {
		for _, field := range samplingFields {
			if v := gjson.GetBytes(body, field); v.Exists() {
				b.WriteByte('|')
				b.WriteString(field)
				b.WriteByte(':')
				b.WriteString(canonicalJSON([]byte(v.Raw)))
			}
		}
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// canonicalPayload extracts the conversational content of the request:
// chat messages, a completion prompt, or an embeddings input, in that
// order of preference.
func canonicalPayload(body []byte) string {
	for _, field := range []string{"messages", "prompt", "input"} {
		if v := gjson.GetBytes(body, field); v.Exists() {
			return canonicalJSON([]byte(v.Raw))
		}
	}
	return ""
}

// canonicalJSON re-encodes a JSON fragment with sorted object keys and no
// insignificant whitespace. Invalid JSON is returned unchanged so the
// fingerprint still commits to the bytes.
func canonicalJSON(raw []byte) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return string(raw)
	}
	return string(out)
}
