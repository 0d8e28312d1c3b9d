package jwtauth

import (
	"context"
	"errors"
	"fmt"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// NewFromDiscovery performs OIDC discovery against cfg.Issuer to locate the
// issuer's jwks_uri and constructs a Verifier whose keys auto-refresh from
// that endpoint. This path suits services that trust a public identity
// provider and never provision keys locally; deployments with a local key
// store use New with a keyring.Resolver instead.
func NewFromDiscovery(ctx context.Context, cfg *Config) (*Verifier, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery failed: %w", err)
	}
	var meta struct {
		JwksURI string `json:"jwks_uri"`
	}
	if err := provider.Claims(&meta); err != nil {
		return nil, fmt.Errorf("invalid discovery metadata: %w", err)
	}
	if meta.JwksURI == "" {
		return nil, errors.New("discovery incomplete: missing jwks_uri")
	}

	// Auto-refreshing JWKS.
	kf, err := keyfunc.NewDefaultCtx(ctx, []string{meta.JwksURI})
	if err != nil {
		return nil, fmt.Errorf("jwks init failed: %w", err)
	}

	resolve := func(ctx context.Context, t *jwt.Token) (any, error) {
		// keyfunc matches the token's kid against the refreshed key set; any
		// failure here is a key-resolution failure by definition.
		return kf.Keyfunc(t)
	}
	return &Verifier{cfg: cfg, resolve: resolve}, nil
}
