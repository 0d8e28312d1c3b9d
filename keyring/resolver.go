package keyring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrKeyUnresolvable indicates neither the local store nor the JWKS fallback
// produced a key for the requested kid. It deliberately covers local miss,
// network failure, remote miss and malformed JWKS documents alike; the policy
// is fail-closed and cause-opaque.
var ErrKeyUnresolvable = errors.New("keyring: key unresolvable")

// Resolver orchestrates key resolution: local Store first, then the JWKS
// fetcher against the configured authority URL, with successful remote
// lookups cached per kid.
type Resolver struct {
	store        *Store
	fetcher      Fetcher
	cache        *Cache
	authorityURL string
	log          *slog.Logger
	now          func() time.Time
}

// ResolverOption configures optional resolver behavior.
type ResolverOption func(*Resolver)

// WithLogger routes resolver events to log instead of slog.Default().
func WithLogger(log *slog.Logger) ResolverOption {
	return func(r *Resolver) { r.log = log }
}

// withClock overrides the time source. Test hook.
func withClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

// NewResolver wires the resolution chain. store may be nil (JWKS-only
// deployments); fetcher and cache may be nil together with an empty
// authorityURL for store-only deployments.
func NewResolver(store *Store, fetcher Fetcher, cache *Cache, authorityURL string, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:        store,
		fetcher:      fetcher,
		cache:        cache,
		authorityURL: authorityURL,
		log:          slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the verification key for kid. The local store wins when it
// knows the kid: it is lower latency, has no external dependency and works
// offline. JWKS fallback handles keys provisioned by a remote issuer.
func (r *Resolver) Resolve(ctx context.Context, kid string) (Entry, error) {
	if kid == "" {
		return Entry{}, fmt.Errorf("%w: empty kid", ErrKeyUnresolvable)
	}
	if r.store != nil {
		if e, ok := r.store.Lookup(kid); ok {
			return e, nil
		}
	}
	if r.fetcher == nil || r.cache == nil || r.authorityURL == "" {
		return Entry{}, fmt.Errorf("%w: kid %q not provisioned and no authority configured", ErrKeyUnresolvable, kid)
	}

	now := r.now()
	cached, ok, fresh := r.cache.get(kid, now)
	if ok && fresh {
		return cached, nil
	}

	e, err := r.fetcher.Fetch(ctx, r.authorityURL, kid)
	if err != nil {
		if ok {
			// Stale entry beats failing closed on a transient refresh error.
			r.log.WarnContext(ctx, "jwks.refresh.fail",
				slog.String("kid", kid), slog.String("err", err.Error()))
			return cached, nil
		}
		r.log.InfoContext(ctx, "jwks.fetch.fail",
			slog.String("kid", kid), slog.String("err", err.Error()))
		return Entry{}, fmt.Errorf("%w: %v", ErrKeyUnresolvable, err)
	}
	r.cache.put(e, now)
	r.log.DebugContext(ctx, "jwks.fetch.ok", slog.String("kid", kid), slog.String("alg", e.Alg))
	return e, nil
}
