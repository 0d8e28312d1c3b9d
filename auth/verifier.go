package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/opteryx-app/worker-go/internal/jwtauth"
	"github.com/opteryx-app/worker-go/keyring"
)

// Option configures optional aspects of token verification (algorithms,
// leeway, JWKS fetch behavior). Issuer and audience are required formal
// arguments to the constructors.
type Option func(*options)

type options struct {
	cfg          *jwtauth.Config
	fetchTimeout time.Duration
	cacheTTL     time.Duration
	log          *slog.Logger
}

// WithAllowedAlgs restricts allowed JWS algorithms. Symmetric algorithms and
// "none" are never allowed. Defaults to ["RS256"].
func WithAllowedAlgs(algs ...string) Option {
	return func(o *options) {
		o.cfg.AllowedAlgs = append([]string(nil), algs...)
	}
}

// WithLeeway sets clock skew tolerance for time-based claims.
func WithLeeway(d time.Duration) Option {
	return func(o *options) { o.cfg.Leeway = d }
}

// WithExtraAudiences accepts additional audiences beyond the primary one,
// primarily for local or testing scenarios where the served endpoint URL
// differs from the production audience.
func WithExtraAudiences(auds ...string) Option {
	return func(o *options) {
		o.cfg.ExpectedAudiences = append(o.cfg.ExpectedAudiences, auds...)
	}
}

// WithFetchTimeout bounds each JWKS fetch (default 5s).
func WithFetchTimeout(d time.Duration) Option {
	return func(o *options) { o.fetchTimeout = d }
}

// WithCacheTTL bounds how long a JWKS-fetched key is served before a
// refresh is attempted. Zero keeps entries for the process lifetime;
// default 10m.
func WithCacheTTL(d time.Duration) Option {
	return func(o *options) { o.cacheTTL = d }
}

// WithLogger routes key-resolution events to log.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.log = log }
}

func buildOptions(issuer, audience string, opts []Option) (*options, error) {
	if audience == "" {
		return nil, errors.New("audience is required")
	}
	o := &options{
		cfg:          jwtauth.DefaultConfig(),
		fetchTimeout: 5 * time.Second,
		cacheTTL:     10 * time.Minute,
	}
	o.cfg.Issuer = issuer
	o.cfg.ExpectedAudiences = []string{audience}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// New returns an Authenticator verifying bearer JWTs against a local key
// store, falling back to the JWKS document at authorityURL for key IDs the
// store does not know. authorityURL may be empty for store-only deployments;
// store may be nil for JWKS-only deployments.
func New(issuer string, audience string, store *keyring.Store, authorityURL string, opts ...Option) (Authenticator, error) {
	o, err := buildOptions(issuer, audience, opts)
	if err != nil {
		return nil, err
	}
	if store == nil && authorityURL == "" {
		return nil, errors.New("a key store or an authority URL is required")
	}

	var (
		fetcher keyring.Fetcher
		cache   *keyring.Cache
	)
	if authorityURL != "" {
		fetcher = keyring.NewHTTPFetcher(o.fetchTimeout)
		cache = keyring.NewCache(o.cacheTTL)
	}
	var ropts []keyring.ResolverOption
	if o.log != nil {
		ropts = append(ropts, keyring.WithLogger(o.log))
	}
	resolver := keyring.NewResolver(store, fetcher, cache, authorityURL, ropts...)

	v, err := jwtauth.New(o.cfg, resolver)
	if err != nil {
		return nil, err
	}
	return &authenticator{v: v}, nil
}

// NewResolver returns an Authenticator backed by a caller-assembled key
// resolver. Services that share one JWKS cache across several verifiers, or
// that stub fetching in tests, wire the resolver themselves.
func NewResolver(issuer string, audience string, resolver jwtauth.KeyResolver, opts ...Option) (Authenticator, error) {
	o, err := buildOptions(issuer, audience, opts)
	if err != nil {
		return nil, err
	}
	v, err := jwtauth.New(o.cfg, resolver)
	if err != nil {
		return nil, err
	}
	return &authenticator{v: v}, nil
}

// NewFromDiscovery returns an Authenticator that locates the issuer's JWKS
// via OpenID Connect discovery and auto-refreshes it. Use this when the
// issuer is a public identity provider and no keys are provisioned locally.
func NewFromDiscovery(ctx context.Context, issuer string, audience string, opts ...Option) (Authenticator, error) {
	o, err := buildOptions(issuer, audience, opts)
	if err != nil {
		return nil, err
	}
	v, err := jwtauth.NewFromDiscovery(ctx, o.cfg)
	if err != nil {
		return nil, err
	}
	return &authenticator{v: v}, nil
}

// authenticator adapts the internal verifier to the public interface.
type authenticator struct {
	v *jwtauth.Verifier
}

func (a *authenticator) CheckAuthentication(ctx context.Context, tok string) (UserInfo, error) {
	claims, err := a.v.Verify(ctx, tok)
	if err != nil {
		// Preserve the internal rejection in the chain (the HTTP guard logs
		// its kind) while callers match the public sentinel.
		return nil, errors.Join(ErrUnauthorized, err)
	}
	return &userInfo{claims: claims}, nil
}

type userInfo struct {
	claims jwtauth.Claims
}

func (u *userInfo) UserID() string       { return u.claims.Subject() }
func (u *userInfo) Claims(ref any) error { return u.claims.Decode(ref) }
