package keyring

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
)

func genKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	pk, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	return pk
}

func writePEM(t *testing.T, dir, name string, pub *rsa.PublicKey) {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	raw := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	if err := os.WriteFile(filepath.Join(dir, name), raw, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestStore_Lookup(t *testing.T) {
	pk := genKey(t)
	s := NewStore(Entry{Kid: "k1", Alg: "RS256", Key: &pk.PublicKey})

	e, ok := s.Lookup("k1")
	if !ok {
		t.Fatal("want hit for k1")
	}
	if e.Alg != "RS256" {
		t.Fatalf("want RS256, got %s", e.Alg)
	}

	if _, ok := s.Lookup("nope"); ok {
		t.Fatal("missing kid must report absent, not error")
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	k1 := genKey(t)
	k2 := genKey(t)
	writePEM(t, dir, "k1.pem", &k1.PublicKey)
	writePEM(t, dir, "signer.PS256.pem", &k2.PublicKey)
	// Ignored: not a .pem file.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	s, err := LoadDir(dir, "RS256")
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if s.Len() != 2 {
		t.Fatalf("want 2 keys, got %d", s.Len())
	}

	e, ok := s.Lookup("k1")
	if !ok || e.Alg != "RS256" {
		t.Fatalf("k1: ok=%v alg=%s", ok, e.Alg)
	}
	e, ok = s.Lookup("signer")
	if !ok || e.Alg != "PS256" {
		t.Fatalf("signer: ok=%v alg=%s", ok, e.Alg)
	}
}

func TestReloadDir(t *testing.T) {
	dir := t.TempDir()
	k1 := genKey(t)
	writePEM(t, dir, "k1.pem", &k1.PublicKey)

	s, err := LoadDir(dir, "RS256")
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}

	// New key provisioned, old one rotated out.
	k2 := genKey(t)
	writePEM(t, dir, "k2.pem", &k2.PublicKey)
	if err := os.Remove(filepath.Join(dir, "k1.pem")); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if err := s.ReloadDir(dir, "RS256"); err != nil {
		t.Fatalf("ReloadDir: %v", err)
	}
	if _, ok := s.Lookup("k1"); ok {
		t.Fatal("rotated-out key still present")
	}
	if _, ok := s.Lookup("k2"); !ok {
		t.Fatal("provisioned key missing after reload")
	}
}

func TestSplitKeyFileName(t *testing.T) {
	cases := []struct {
		name    string
		kid     string
		alg     string
	}{
		{"k1.pem", "k1", "RS256"},
		{"signer.ES256.pem", "signer", "ES256"},
		{"api.v2.pem", "api.v2", "RS256"}, // dotted kid, suffix is not an alg
	}
	for _, c := range cases {
		kid, alg := splitKeyFileName(c.name, "RS256")
		if kid != c.kid || alg != c.alg {
			t.Fatalf("%s: got (%s,%s) want (%s,%s)", c.name, kid, alg, c.kid, c.alg)
		}
	}
}

func TestParsePublicKeyPEM_Rejects(t *testing.T) {
	if _, err := ParsePublicKeyPEM([]byte("not pem at all")); err == nil {
		t.Fatal("want error for non-PEM input")
	}
	raw := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: []byte{1, 2, 3}})
	if _, err := ParsePublicKeyPEM(raw); err == nil {
		t.Fatal("want error for unsupported block type")
	}
}
