package vcr

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// CassetteVersion is the current cassette format version.
const CassetteVersion = "1.0"

// Cassette is a signed, immutable record of one upstream interaction,
// addressed by the fingerprint of the request that produced it.
type Cassette struct {
	CassetteVersion string           `json:"cassette_version"`
	Provider        string           `json:"provider"`
	Request         json.RawMessage  `json:"request"`
	Response        CassetteResponse `json:"response"`
	RecordedAt      time.Time        `json:"recorded_at"`
	Signature       string           `json:"signature,omitempty"`
}

// CassetteResponse captures the upstream response verbatim: HTTP status,
// selected headers, and the normalized body (or an error payload).
type CassetteResponse struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body"`
}

// Sign computes the HMAC-SHA-256 signature of the cassette under secret.
// The signature covers the canonical JSON of every field except the
// signature itself. Field order is fixed by the struct definition and
// embedded JSON fragments are compacted during marshaling, so the payload
// is deterministic regardless of how the cassette was stored.
func Sign(c *Cassette, secret string) (string, error) {
	unsigned := *c
	unsigned.Signature = ""
	payload, err := json.Marshal(&unsigned)
	if err != nil {
		return "", fmt.Errorf("marshal cassette for signing: %w", err)
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify reports whether the cassette's signature matches the one computed
// under secret. A cassette with no signature never verifies.
func Verify(c *Cassette, secret string) bool {
	if c.Signature == "" {
		return false
	}
	want, err := Sign(c, secret)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(want), []byte(c.Signature))
}

// ProviderStats is the cassette count for one provider directory.
type ProviderStats struct {
	Provider string `json:"provider"`
	Count    int    `json:"count"`
}

// StoreConfig configures a cassette store.
type StoreConfig struct {
	// Root is the directory holding per-provider cassette subdirectories.
	// Default: ".cassettes"
	Root string

	// Secret signs cassettes on save and verifies signatures on load.
	// When empty, cassettes are written unsigned and signatures are not
	// checked.
	Secret string

	// Logger for store operations. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultStoreConfig returns a StoreConfig with default values.
func DefaultStoreConfig() *StoreConfig {
	return &StoreConfig{
		Root: ".cassettes",
	}
}

// Store persists cassettes as pretty-printed JSON files laid out as
// <root>/<provider>/<fingerprint>.json. Writes go through a temp file and
// an atomic rename so readers never observe a partial cassette.
type Store struct {
	root   string
	secret string
	logger *slog.Logger
}

// NewStore creates a cassette store rooted at config.Root.
func NewStore(config *StoreConfig) *Store {
	if config == nil {
		config = DefaultStoreConfig()
	}
	root := config.Root
	if root == "" {
		root = ".cassettes"
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		root:   root,
		secret: config.Secret,
		logger: logger.With("component", "cassette_store"),
	}
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// Find loads the cassette addressed by (provider, fingerprint). A missing
// file returns (nil, nil). A file that exists but cannot be parsed returns
// an InvalidCassetteError, and a signature that fails verification returns
// a TamperError; neither is ever reported as a miss.
func (s *Store) Find(provider, fingerprint string) (*Cassette, error) {
	path := s.path(provider, fingerprint)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, NewInvalidCassetteError(path, "read failed", err)
	}

	var c Cassette
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, NewInvalidCassetteError(path, "malformed JSON", err)
	}
	if c.CassetteVersion == "" {
		return nil, NewInvalidCassetteError(path, "missing cassette_version", nil)
	}

	if c.Signature != "" && s.secret != "" {
		if !Verify(&c, s.secret) {
			s.logger.Error("cassette signature verification failed",
				"provider", provider,
				"fingerprint", fingerprint,
				"path", path)
			return nil, NewTamperError(provider, fingerprint, path)
		}
	}
	return &c, nil
}

// Save writes the cassette for (provider, fingerprint), replacing any
// existing one atomically. The version, provider, and recording timestamp
// are filled in when absent, and the cassette is signed when the store has
// a secret.
func (s *Store) Save(provider, fingerprint string, c *Cassette) error {
	if c == nil {
		return NewInvalidCassetteError(s.path(provider, fingerprint), "nil cassette", nil)
	}
	if c.CassetteVersion == "" {
		c.CassetteVersion = CassetteVersion
	}
	if c.Provider == "" {
		c.Provider = provider
	}
	if c.RecordedAt.IsZero() {
		c.RecordedAt = time.Now().UTC()
	}

	if s.secret != "" {
		sig, err := Sign(c, s.secret)
		if err != nil {
			return err
		}
		c.Signature = sig
	}

	dir := filepath.Join(s.root, provider)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create cassette directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cassette: %w", err)
	}

	path := s.path(provider, fingerprint)
	if err := writeCassetteAtomic(path, data); err != nil {
		return fmt.Errorf("write cassette %s: %w", path, err)
	}
	return nil
}

// Stats counts cassettes per provider by scanning the root directory.
// Results are sorted by provider name. A missing root yields an empty
// slice.
func (s *Store) Stats() ([]ProviderStats, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []ProviderStats{}, nil
		}
		return nil, fmt.Errorf("read cassette root %s: %w", s.root, err)
	}

	stats := make([]ProviderStats, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(s.root, entry.Name()))
		if err != nil {
			continue
		}
		count := 0
		for _, f := range files {
			if !f.IsDir() && strings.HasSuffix(f.Name(), ".json") {
				count++
			}
		}
		stats = append(stats, ProviderStats{Provider: entry.Name(), Count: count})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Provider < stats[j].Provider })
	return stats, nil
}

func (s *Store) path(provider, fingerprint string) string {
	return filepath.Join(s.root, provider, fingerprint+".json")
}

// writeCassetteAtomic writes data to a temp file in the target directory
// and renames it into place. Rename within one directory is atomic on the
// local filesystems the store supports.
func writeCassetteAtomic(path string, data []byte) error {
	tmp := fmt.Sprintf("%s.tmp.%s", path, cassetteNonce())
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func cassetteNonce() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}
