// Package guard adapts the auth verification core to HTTP. It extracts the
// bearer token from incoming requests, invokes the configured
// auth.Authenticator, and maps the outcome to an accept/reject decision:
// verified claims land on the request context, every rejection becomes a 401
// with an RFC 6750 WWW-Authenticate challenge and no claim-level detail.
//
// The package also carries the service's ordinary HTTP plumbing: the health
// endpoint, the guarded statement-submission endpoint, and the request audit
// middleware.
package guard
