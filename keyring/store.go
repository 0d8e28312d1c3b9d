package keyring

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Entry pairs a key ID with public key material and the algorithm the key is
// valid for. Signature verification must use Entry.Alg, never the algorithm a
// token header declares on its own.
type Entry struct {
	Kid string
	Alg string
	Key crypto.PublicKey
}

// Store is the local kid -> public key mapping. Entries are provisioned
// out-of-band (deployment time) and are read-only from the caller's view;
// ReloadDir swaps the whole map atomically when keys rotate on disk.
type Store struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewStore builds a Store from explicit entries.
func NewStore(entries ...Entry) *Store {
	m := make(map[string]Entry, len(entries))
	for _, e := range entries {
		m[e.Kid] = e
	}
	return &Store{entries: m}
}

// Lookup returns the entry for kid. Absence is a normal outcome that triggers
// JWKS fallback in the resolver; it is not an error.
func (s *Store) Lookup(kid string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[kid]
	return e, ok
}

// Len reports the number of provisioned keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// LoadDir builds a Store from the PEM files in dir. Each file named
// "<kid>.pem" contributes one entry using defaultAlg; "<kid>.<ALG>.pem" pins
// the algorithm explicitly. Non-PEM files are ignored.
func LoadDir(dir string, defaultAlg string) (*Store, error) {
	s := NewStore()
	if err := s.ReloadDir(dir, defaultAlg); err != nil {
		return nil, err
	}
	return s, nil
}

// ReloadDir re-reads dir and replaces the store contents. Used by the
// directory watcher so keys provisioned at deploy time land without a
// process restart.
func (s *Store) ReloadDir(dir string, defaultAlg string) error {
	names, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("keyring: read key dir: %w", err)
	}
	m := make(map[string]Entry)
	for _, de := range names {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".pem") {
			continue
		}
		kid, alg := splitKeyFileName(de.Name(), defaultAlg)
		raw, err := os.ReadFile(filepath.Join(dir, de.Name()))
		if err != nil {
			return fmt.Errorf("keyring: read %s: %w", de.Name(), err)
		}
		key, err := ParsePublicKeyPEM(raw)
		if err != nil {
			return fmt.Errorf("keyring: parse %s: %w", de.Name(), err)
		}
		m[kid] = Entry{Kid: kid, Alg: alg, Key: key}
	}
	s.mu.Lock()
	s.entries = m
	s.mu.Unlock()
	return nil
}

// splitKeyFileName maps "k1.pem" -> ("k1", defaultAlg) and
// "k1.ES256.pem" -> ("k1", "ES256").
func splitKeyFileName(name string, defaultAlg string) (kid, alg string) {
	base := strings.TrimSuffix(name, ".pem")
	if i := strings.LastIndex(base, "."); i > 0 {
		if cand := base[i+1:]; knownAlg(cand) {
			return base[:i], cand
		}
	}
	return base, defaultAlg
}

func knownAlg(alg string) bool {
	switch alg {
	case "RS256", "RS384", "RS512", "PS256", "PS384", "PS512",
		"ES256", "ES384", "ES512", "EdDSA":
		return true
	}
	return false
}

// ParsePublicKeyPEM parses PKIX, PKCS#1 or certificate-wrapped public keys.
func ParsePublicKeyPEM(raw []byte) (crypto.PublicKey, error) {
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	switch block.Type {
	case "PUBLIC KEY":
		return x509.ParsePKIXPublicKey(block.Bytes)
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	case "CERTIFICATE":
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, err
		}
		return cert.PublicKey, nil
	}
	return nil, fmt.Errorf("unsupported PEM block %q", block.Type)
}
