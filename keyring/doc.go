// Package keyring resolves the public key material used to verify bearer
// tokens. Resolution follows a fixed precedence: a local Store of keys the
// service provisions itself is consulted first, then a remote JWKS endpoint
// published by the token issuer, with successful remote lookups cached per
// key ID.
//
// The local Store is authoritative for the keys it knows and never performs
// network I/O. The JWKS path exists for cross-service trust, where the
// verifying service does not control key provisioning for the issuer.
//
// All resolution failures (local miss plus network error, malformed JWKS
// document, or a key set without the requested key ID) collapse into
// ErrKeyUnresolvable. Callers are deliberately unable to distinguish these
// causes; exposing which leg failed would leak infrastructure state.
//
// Example:
//
//	store := keyring.NewStore(keyring.Entry{Kid: "k1", Alg: "RS256", Key: pub})
//	cache := keyring.NewCache(10 * time.Minute)
//	fetcher := keyring.NewHTTPFetcher(5 * time.Second)
//	resolver := keyring.NewResolver(store, fetcher, cache, "https://issuer.example/jwks")
//
//	entry, err := resolver.Resolve(ctx, kid)
package keyring
