package keyring

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v4"
)

// Fetcher retrieves the key entry for kid from an authority's JWKS endpoint.
// Implementations must be safe for concurrent use.
type Fetcher interface {
	Fetch(ctx context.Context, authorityURL string, kid string) (Entry, error)
}

const maxJWKSBytes = 1 << 20

// HTTPFetcher fetches and parses a remote JWKS document over HTTP.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher builds a fetcher whose requests are bounded by timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}}
}

// Fetch retrieves authorityURL and selects the signature key matching kid.
// Network failure, a malformed document and a set without kid are all plain
// errors; the resolver collapses them into ErrKeyUnresolvable before they
// reach a verifier.
func (f *HTTPFetcher) Fetch(ctx context.Context, authorityURL string, kid string) (Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, authorityURL, nil)
	if err != nil {
		return Entry{}, fmt.Errorf("build jwks request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return Entry{}, fmt.Errorf("jwks fetch: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return Entry{}, fmt.Errorf("jwks fetch: unexpected status %d", resp.StatusCode)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJWKSBytes)).Decode(&set); err != nil {
		return Entry{}, fmt.Errorf("jwks parse: %w", err)
	}

	for _, k := range set.Key(kid) {
		if k.Use != "" && k.Use != "sig" {
			continue
		}
		if !k.Valid() || !k.IsPublic() {
			continue
		}
		alg := k.Algorithm
		if alg == "" {
			alg = inferAlg(k.Key)
		}
		if alg == "" {
			continue
		}
		return Entry{Kid: kid, Alg: alg, Key: k.Key}, nil
	}
	return Entry{}, fmt.Errorf("jwks: no usable key for kid %q", kid)
}

// inferAlg picks the conventional algorithm for key material whose JWK omits
// the "alg" member. Unknown key types yield "" and the key is skipped.
func inferAlg(key any) string {
	switch k := key.(type) {
	case *rsa.PublicKey:
		return "RS256"
	case *ecdsa.PublicKey:
		switch k.Curve {
		case elliptic.P256():
			return "ES256"
		case elliptic.P384():
			return "ES384"
		case elliptic.P521():
			return "ES512"
		}
		return ""
	case ed25519.PublicKey:
		return "EdDSA"
	}
	return ""
}

// Cache holds JWKS-fetched entries keyed by kid for the life of the process.
// It is shared across concurrent verifications; concurrent misses for the
// same kid may each fetch, and writes are last-write-wins. An optional TTL
// bounds rotation lag: entries older than the TTL are treated as stale and
// re-fetched on next use, with the stale entry kept as a fallback when the
// refresh fails.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cachedEntry
}

type cachedEntry struct {
	entry   Entry
	fetched time.Time
}

// NewCache builds a cache. ttl <= 0 keeps entries for the process lifetime.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl, entries: make(map[string]cachedEntry)}
}

// get returns the cached entry for kid and whether it is still fresh.
func (c *Cache) get(kid string, now time.Time) (Entry, bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ce, ok := c.entries[kid]
	if !ok {
		return Entry{}, false, false
	}
	fresh := c.ttl <= 0 || now.Sub(ce.fetched) < c.ttl
	return ce.entry, true, fresh
}

func (c *Cache) put(e Entry, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[e.Kid] = cachedEntry{entry: e, fetched: now}
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
