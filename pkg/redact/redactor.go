package redact

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// DefaultPlaceholder replaces redacted values when no placeholder is configured.
const DefaultPlaceholder = "[REDACTED]"

// Redaction types recorded in the audit trail.
const (
	RedactionField   = "field"
	RedactionPattern = "pattern"
	RedactionHeader  = "header"
)

// defaultSensitiveFields are matched case-insensitively as substrings of
// object keys. The value under a matching key is replaced wholesale.
var defaultSensitiveFields = []string{
	"api_key", "apikey", "api-key",
	"authorization", "auth_token",
	"password", "passwd", "pwd",
	"secret", "token",
	"access_token", "refresh_token",
	"private_key", "privatekey",
	"credit_card", "creditcard",
	"ssn", "social_security",
	"session_key", "cookie",
}

// defaultSensitiveHeaders are matched case-insensitively as substrings of
// HTTP header names.
var defaultSensitiveHeaders = []string{
	"authorization",
	"proxy-authorization",
	"x-api-key",
	"api-key",
	"x-auth-token",
	"x-goog-api-key",
	"cookie",
	"set-cookie",
}

// pattern pairs a compiled secret-shape regex with its substitution text.
// Substitutions are chosen so that re-scanning the output never matches
// again; that property is what makes the redactor idempotent.
type pattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// Pattern names for the built-in secret shapes.
const (
	PatternAPIKey      = "api_key"
	PatternBearerToken = "bearer_token"
	PatternJWT         = "jwt"
	PatternEmail       = "email"
	PatternSSN         = "ssn"
	PatternCreditCard  = "credit_card"
	PatternPhone       = "phone"
)

// defaultPatterns are applied in declaration order so the transform is
// deterministic regardless of how the redactor was constructed.
var defaultPatterns = []*pattern{
	{
		name:        PatternBearerToken,
		regex:       regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9\-._~+/]+=*`),
		replacement: "Bearer " + DefaultPlaceholder,
	},
	{
		name:        PatternJWT,
		regex:       regexp.MustCompile(`\beyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]*`),
		replacement: "[JWT]",
	},
	{
		name:        PatternAPIKey,
		regex:       regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{8,}`),
		replacement: "sk-***",
	},
	{
		name:        PatternEmail,
		regex:       regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
		replacement: "[EMAIL]",
	},
	{
		name:        PatternSSN,
		regex:       regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		replacement: "***-**-****",
	},
	{
		name:        PatternCreditCard,
		regex:       regexp.MustCompile(`\b\d{4}[ -]?\d{4}[ -]?\d{4}[ -]?\d{1,4}\b`),
		replacement: "****-****-****-****",
	},
	{
		name:        PatternPhone,
		regex:       regexp.MustCompile(`\b\+?\d{1,2}[-.\s]?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`),
		replacement: "***-***-****",
	},
}

// Config controls redactor behavior.
type Config struct {
	// Placeholder replaces values under sensitive keys and headers.
	// Default: "[REDACTED]"
	Placeholder string

	// ExtraFields extends the built-in sensitive-field set. Matching is
	// case-insensitive and substring-based.
	ExtraFields []string

	// ExtraHeaders extends the built-in sensitive-header set.
	ExtraHeaders []string

	// ScanPatterns enables secret-shape scanning of string values. Field
	// scrubbing runs regardless of this setting.
	// Default: true
	ScanPatterns bool
}

// DefaultConfig returns the default redactor configuration.
func DefaultConfig() Config {
	return Config{
		Placeholder:  DefaultPlaceholder,
		ScanPatterns: true,
	}
}

// Redaction describes one substitution performed on a document. The original
// value is never retained, only its SHA-256 digest.
type Redaction struct {
	// Path is the dotted JSON path of the redacted value.
	Path string `json:"field_path"`

	// ValueHash is the hex SHA-256 of the original raw value.
	ValueHash string `json:"value_hash"`

	// Type is one of the Redaction* constants.
	Type string `json:"redaction_type"`
}

// Redactor performs deterministic scrubbing of JSON documents, strings, and
// header maps. It is safe for concurrent use; all state is immutable after
// construction.
type Redactor struct {
	placeholder  string
	fields       []string
	headers      []string
	patterns     []*pattern
	scanPatterns bool
}

// New creates a Redactor from the given configuration.
func New(cfg Config) *Redactor {
	placeholder := cfg.Placeholder
	if placeholder == "" {
		placeholder = DefaultPlaceholder
	}

	fields := make([]string, 0, len(defaultSensitiveFields)+len(cfg.ExtraFields))
	for _, f := range defaultSensitiveFields {
		fields = append(fields, strings.ToLower(f))
	}
	for _, f := range cfg.ExtraFields {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			fields = append(fields, f)
		}
	}

	headers := make([]string, 0, len(defaultSensitiveHeaders)+len(cfg.ExtraHeaders))
	for _, h := range defaultSensitiveHeaders {
		headers = append(headers, strings.ToLower(h))
	}
	for _, h := range cfg.ExtraHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			headers = append(headers, h)
		}
	}

	return &Redactor{
		placeholder:  placeholder,
		fields:       fields,
		headers:      headers,
		patterns:     defaultPatterns,
		scanPatterns: cfg.ScanPatterns,
	}
}

// Placeholder returns the literal substituted for sensitive values.
func (r *Redactor) Placeholder() string {
	return r.placeholder
}

// IsSensitiveKey reports whether an object key names sensitive data.
func (r *Redactor) IsSensitiveKey(key string) bool {
	return matchesAny(key, r.fields)
}

// IsSensitiveHeader reports whether an HTTP header name carries credentials.
func (r *Redactor) IsSensitiveHeader(name string) bool {
	return matchesAny(name, r.headers)
}

func matchesAny(s string, set []string) bool {
	lower := strings.ToLower(s)
	for _, candidate := range set {
		if strings.Contains(lower, candidate) {
			return true
		}
	}
	return false
}

// RedactString substitutes every secret-shape match in s. Returns s
// unchanged when pattern scanning is disabled.
func (r *Redactor) RedactString(s string) string {
	if !r.scanPatterns || s == "" {
		return s
	}
	for _, p := range r.patterns {
		s = p.regex.ReplaceAllString(s, p.replacement)
	}
	return s
}

// RedactHeaders returns a scrubbed copy of the header map. Sensitive header
// names have their values replaced by the placeholder; all other values are
// pattern-scanned.
func (r *Redactor) RedactHeaders(headers map[string]string) map[string]string {
	if headers == nil {
		return nil
	}
	out := make(map[string]string, len(headers))
	for name, value := range headers {
		if r.IsSensitiveHeader(name) {
			out[name] = r.placeholder
			continue
		}
		out[name] = r.RedactString(value)
	}
	return out
}

// RedactJSON returns a scrubbed copy of the JSON document. Invalid or empty
// documents are returned as an unmodified copy.
func (r *Redactor) RedactJSON(doc []byte) []byte {
	out, _ := r.RedactJSONAudited(doc)
	return out
}

// RedactJSONAudited is RedactJSON plus the list of substitutions performed,
// for backends that keep a redaction audit trail.
func (r *Redactor) RedactJSONAudited(doc []byte) ([]byte, []Redaction) {
	out := make([]byte, len(doc))
	copy(out, doc)
	if len(doc) == 0 || !gjson.ValidBytes(doc) {
		return out, nil
	}

	root := gjson.ParseBytes(doc)

	// A bare string root cannot be addressed by path; handle it directly.
	if root.Type == gjson.String && !root.IsObject() && !root.IsArray() {
		scrubbed := r.RedactString(root.String())
		if scrubbed == root.String() {
			return out, nil
		}
		encoded, err := json.Marshal(scrubbed)
		if err != nil {
			return out, nil
		}
		return encoded, []Redaction{{Path: "", ValueHash: hashRaw(root.Raw), Type: RedactionPattern}}
	}

	var audit []Redaction
	var walk func(prefix string, v gjson.Result)
	walk = func(prefix string, v gjson.Result) {
		switch {
		case v.IsObject():
			v.ForEach(func(k, cv gjson.Result) bool {
				key := k.String()
				path := joinPath(prefix, escapeSegment(key))
				if r.IsSensitiveKey(key) {
					updated, err := sjson.SetBytes(out, path, r.placeholder)
					if err == nil {
						out = updated
						audit = append(audit, Redaction{Path: path, ValueHash: hashRaw(cv.Raw), Type: RedactionField})
					}
					// Never descend into a value that was just replaced.
					return true
				}
				walk(path, cv)
				return true
			})
		case v.IsArray():
			i := 0
			v.ForEach(func(_, cv gjson.Result) bool {
				walk(joinPath(prefix, strconv.Itoa(i)), cv)
				i++
				return true
			})
		case v.Type == gjson.String:
			if !r.scanPatterns {
				return
			}
			s := v.String()
			scrubbed := r.RedactString(s)
			if scrubbed != s {
				updated, err := sjson.SetBytes(out, prefix, scrubbed)
				if err == nil {
					out = updated
					audit = append(audit, Redaction{Path: prefix, ValueHash: hashRaw(v.Raw), Type: RedactionPattern})
				}
			}
		}
	}
	walk("", root)

	return out, audit
}

func joinPath(prefix, segment string) string {
	if prefix == "" {
		return segment
	}
	return prefix + "." + segment
}

// escapeSegment escapes the characters gjson/sjson treat as path syntax so
// literal keys round-trip through SetBytes.
func escapeSegment(key string) string {
	if !strings.ContainsAny(key, `\.*?|#@`) {
		return key
	}
	var b strings.Builder
	b.Grow(len(key) + 4)
	for _, c := range key {
		switch c {
		case '\\', '.', '*', '?', '|', '#', '@':
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}

func hashRaw(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
