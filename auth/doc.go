// Package auth provides the bearer token (JWT) verification surface shared
// by the worker constellation's HTTP services. One service issues and
// anchors tokens; the others verify them against a shared audience
// convention using this package.
//
// The public surface intentionally stays small: an Authenticator validates
// an incoming bearer token string and returns a UserInfo (or an error). The
// HTTP layer is responsible for extracting the token from the request and
// mapping failures onto 401 responses; see the guard package.
//
// # Key resolution
//
// New verifies against a local keyring.Store first and falls back to the
// issuer's JWKS endpoint for unknown key IDs, caching remote keys per kid.
// The local store is authoritative for keys the service provisions itself;
// JWKS fallback supports cross-service trust where the verifier does not
// control provisioning for the issuer.
//
// NewFromDiscovery instead bootstraps from the issuer's OpenID Connect
// discovery document and auto-refreshes its JWKS; use it against public
// identity providers.
//
// Example:
//
//	store, err := keyring.LoadDir("/etc/worker/keys", "RS256")
//	if err != nil { log.Fatal(err) }
//	authn, err := auth.New("https://accounts.example.com", "opteryx-api",
//	    store, "https://accounts.example.com/jwks",
//	    auth.WithLeeway(30*time.Second),
//	)
//	if err != nil { log.Fatal(err) }
//
//	// Later inside request handling (pseudocode):
//	ui, err := authn.CheckAuthentication(r.Context(), bearerToken)
//	if errors.Is(err, auth.ErrUnauthorized) { /* map to 401 */ }
//	userID := ui.UserID()
//
// # Errors
//
// Any verification failure (malformed token, disallowed algorithm,
// unresolvable key, bad signature, expired, wrong issuer or audience)
// unwraps to ErrUnauthorized. The finer-grained classification exists for
// logging inside this module and is deliberately not part of the HTTP
// response surface.
package auth
