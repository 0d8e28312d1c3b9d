package jwtauth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	jose "github.com/go-jose/go-jose/v4"
)

type mockOIDC struct {
	srv      *httptest.Server
	issuer   string
	jwksPath string
}

func newMockOIDC(t *testing.T, keysJSON []byte) *mockOIDC {
	t.Helper()
	m := &mockOIDC{jwksPath: "/keys"}
	handler := http.NewServeMux()
	handler.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":   m.issuer,
			"jwks_uri": m.issuer + m.jwksPath,
		})
	})
	handler.HandleFunc(m.jwksPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(keysJSON)
	})
	m.srv = httptest.NewServer(handler)
	m.issuer = m.srv.URL
	return m
}

func (m *mockOIDC) Close() { m.srv.Close() }

func marshalJWKS(t *testing.T, pub *rsa.PublicKey, kid string) []byte {
	t.Helper()
	set := struct {
		Keys []jose.JSONWebKey `json:"keys"`
	}{Keys: []jose.JSONWebKey{{Key: pub, KeyID: kid, Algorithm: "RS256", Use: "sig"}}}
	b, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}
	return b
}

func TestDiscovery_HappyPath(t *testing.T) {
	pk := genRSA(t)
	oidcSrv := newMockOIDC(t, marshalJWKS(t, &pk.PublicKey, "disc-key"))
	defer oidcSrv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := baseConfig(oidcSrv.issuer, "svc-api")
	v, err := NewFromDiscovery(ctx, cfg)
	if err != nil {
		t.Fatalf("NewFromDiscovery: %v", err)
	}

	claims := baseClaims(oidcSrv.issuer, "svc-api")
	got, err := v.Verify(ctx, signToken(t, pk, "disc-key", claims))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.Subject() != "user-123" {
		t.Fatalf("want sub user-123, got %q", got.Subject())
	}
}

func TestDiscovery_UnknownKid(t *testing.T) {
	pk := genRSA(t)
	oidcSrv := newMockOIDC(t, marshalJWKS(t, &pk.PublicKey, "disc-key"))
	defer oidcSrv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := baseConfig(oidcSrv.issuer, "svc-api")
	v, err := NewFromDiscovery(ctx, cfg)
	if err != nil {
		t.Fatalf("NewFromDiscovery: %v", err)
	}

	claims := baseClaims(oidcSrv.issuer, "svc-api")
	_, verr := v.Verify(ctx, signToken(t, pk, "rotated-away", claims))
	wantKind(t, verr, KindKeyUnresolvable)
}

func TestDiscovery_MissingJWKSURI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"issuer": "placeholder"})
	}))
	defer srv.Close()

	// Discovery rejects the document before any JWKS init: issuer mismatch
	// or missing jwks_uri both fail construction.
	cfg := baseConfig(srv.URL, "svc-api")
	if _, err := NewFromDiscovery(context.Background(), cfg); err == nil {
		t.Fatal("want error for incomplete discovery document")
	}
}
