package vcr

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testFingerprint = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

func newTestStore(t *testing.T, secret string) *Store {
	t.Helper()
	return NewStore(&StoreConfig{Root: t.TempDir(), Secret: secret})
}

func testCassette() *Cassette {
	return &Cassette{
		Request: json.RawMessage(`{"model":"gpt-4","messages":[{"role":"user","content":"Hi"}]}`),
		Response: CassetteResponse{
			Status:  200,
			Headers: map[string]string{"Content-Type": "application/json"},
			Body:    json.RawMessage(`{"choices":[{"message":{"role":"assistant","content":"Hello"}}]}`),
		},
	}
}

func TestStore_SaveAndFind(t *testing.T) {
	s := newTestStore(t, "topsecret")

	if err := s.Save("openai", testFingerprint, testCassette()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	path := filepath.Join(s.Root(), "openai", testFingerprint+".json")
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("cassette file not written: %v", err)
	}
	if !strings.Contains(string(raw), "\n  \"cassette_version\"") {
		t.Error("cassette should be pretty-printed")
	}

	c, err := s.Find("openai", testFingerprint)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if c == nil {
		t.Fatal("Find() returned nil for existing cassette")
	}
	if c.CassetteVersion != CassetteVersion {
		t.Errorf("CassetteVersion = %q, want %q", c.CassetteVersion, CassetteVersion)
	}
	if c.Provider != "openai" {
		t.Errorf("Provider = %q, want openai", c.Provider)
	}
	if c.RecordedAt.IsZero() {
		t.Error("RecordedAt should be filled on save")
	}
	if c.Signature == "" {
		t.Error("cassette should be signed when the store has a secret")
	}
	if !Verify(c, "topsecret") {
		t.Error("signature should verify under the signing secret")
	}
	if c.Response.Status != 200 {
		t.Errorf("Response.Status = %d, want 200", c.Response.Status)
	}
}

func TestStore_FindMissingReturnsNil(t *testing.T) {
	s := newTestStore(t, "")

	c, err := s.Find("openai", testFingerprint)
	if err != nil {
		t.Fatalf("Find() on missing cassette error = %v", err)
	}
	if c != nil {
		t.Fatal("Find() on missing cassette should return nil")
	}
}

func TestStore_UnsignedCassetteAccepted(t *testing.T) {
	unsigned := newTestStore(t, "")
	if err := unsigned.Save("openai", testFingerprint, testCassette()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// A verifying store still accepts cassettes that carry no signature.
	verifying := NewStore(&StoreConfig{Root: unsigned.Root(), Secret: "topsecret"})
	c, err := verifying.Find("openai", testFingerprint)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if c == nil {
		t.Fatal("unsigned cassette should be accepted")
	}
	if c.Signature != "" {
		t.Errorf("Signature = %q, want empty", c.Signature)
	}
}

func TestStore_TamperedCassetteFailsHard(t *testing.T) {
	s := newTestStore(t, "topsecret")
	if err := s.Save("openai", testFingerprint, testCassette()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// Rewrite the recorded response without re-signing.
	path := filepath.Join(s.Root(), "openai", testFingerprint+".json")
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	tampered := strings.Replace(string(raw), "Hello", "Goodbye", 1)
	if tampered == string(raw) {
		t.Fatal("test did not modify the cassette")
	}
	if err := os.WriteFile(path, []byte(tampered), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := s.Find("openai", testFingerprint)
	if err == nil {
		t.Fatal("Find() should fail for a tampered cassette")
	}
	if c != nil {
		t.Fatal("tampered cassette must not be returned")
	}
	if !IsTamper(err) {
		t.Fatalf("error = %v, want TamperError", err)
	}
	var te *TamperError
	if !errors.As(err, &te) {
		t.Fatalf("error %v should unwrap to *TamperError", err)
	}
	if te.Fingerprint != testFingerprint {
		t.Errorf("TamperError.Fingerprint = %q, want %q", te.Fingerprint, testFingerprint)
	}
}

func TestStore_WrongSecretFailsHard(t *testing.T) {
	signer := newTestStore(t, "secret-one")
	if err := signer.Save("openai", testFingerprint, testCassette()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	verifier := NewStore(&StoreConfig{Root: signer.Root(), Secret: "secret-two"})
	if _, err := verifier.Find("openai", testFingerprint); !IsTamper(err) {
		t.Fatalf("error = %v, want TamperError for mismatched secret", err)
	}
}

func TestStore_MalformedCassette(t *testing.T) {
	s := newTestStore(t, "")
	dir := filepath.Join(s.Root(), "openai")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		content string
	}{
		{"not json", `{this is not json`},
		{"missing version", `{"provider":"openai","request":{},"response":{"status":200,"body":{}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, testFingerprint+".json")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}

			_, err := s.Find("openai", testFingerprint)
			var ice *InvalidCassetteError
			if !errors.As(err, &ice) {
				t.Fatalf("error = %v, want InvalidCassetteError", err)
			}
		})
	}
}

func TestStore_SaveReplacesAtomically(t *testing.T) {
	s := newTestStore(t, "")

	first := testCassette()
	if err := s.Save("openai", testFingerprint, first); err != nil {
		t.Fatal(err)
	}
	second := testCassette()
	second.Response.Body = json.RawMessage(`{"choices":[{"message":{"role":"assistant","content":"Re-recorded"}}]}`)
	if err := s.Save("openai", testFingerprint, second); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(filepath.Join(s.Root(), "openai"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("provider dir holds %d files, want 1 (no temp files, no duplicates)", len(entries))
	}

	c, err := s.Find("openai", testFingerprint)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(c.Response.Body), "Re-recorded") {
		t.Error("re-recording should replace the cassette body")
	}
}

func TestStore_Stats(t *testing.T) {
	s := newTestStore(t, "")
	for i, provider := range []string{"openai", "openai", "anthropic"} {
		fp := strings.Repeat("0", 63) + string(rune('a'+i))
		if err := s.Save(provider, fp, testCassette()); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	want := []ProviderStats{{Provider: "anthropic", Count: 1}, {Provider: "openai", Count: 2}}
	if len(stats) != len(want) {
		t.Fatalf("Stats() returned %d providers, want %d", len(stats), len(want))
	}
	for i := range want {
		if stats[i] != want[i] {
			t.Errorf("Stats()[%d] = %+v, want %+v", i, stats[i], want[i])
		}
	}
}

func TestStore_StatsMissingRoot(t *testing.T) {
	s := NewStore(&StoreConfig{Root: filepath.Join(t.TempDir(), "nowhere")})

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if len(stats) != 0 {
		t.Fatalf("Stats() = %v, want empty", stats)
	}
}

func TestSignVerify(t *testing.T) {
	c := testCassette()
	c.CassetteVersion = CassetteVersion
	c.Provider = "openai"

	sig, err := Sign(c, "s")
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	c.Signature = sig

	if !Verify(c, "s") {
		t.Error("Verify() should succeed with the signing secret")
	}
	if Verify(c, "other") {
		t.Error("Verify() should fail with a different secret")
	}

	c.Response.Status = 500
	if Verify(c, "s") {
		t.Error("Verify() should fail after the cassette changed")
	}
}

func TestVerify_NoSignature(t *testing.T) {
	c := testCassette()
	if Verify(c, "s") {
		t.Error("Verify() should fail for an unsigned cassette")
	}
}
