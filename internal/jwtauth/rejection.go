package jwtauth

import (
	"errors"
	"fmt"
)

// RejectionKind classifies why a token failed verification. The set is
// deliberately coarse on the key-resolution path: every flavor of resolution
// failure reports KindKeyUnresolvable so callers cannot probe which leg of
// the key infrastructure failed.
type RejectionKind string

const (
	// KindMalformed: the token does not split into three segments, or a
	// segment is not valid base64url-encoded JSON, or a required claim is
	// structurally absent.
	KindMalformed RejectionKind = "malformed"
	// KindUnsupportedAlgorithm: the declared algorithm is not on the
	// asymmetric allow-list, or does not match the algorithm provisioned
	// with the resolved key.
	KindUnsupportedAlgorithm RejectionKind = "unsupported_algorithm"
	// KindKeyUnresolvable: no verification key could be produced for the
	// token's kid.
	KindKeyUnresolvable RejectionKind = "key_unresolvable"
	// KindInvalidSignature: the signature does not verify against the
	// resolved key.
	KindInvalidSignature RejectionKind = "invalid_signature"
	// KindExpired / KindNotYetValid: temporal claim checks failed.
	KindExpired     RejectionKind = "expired"
	KindNotYetValid RejectionKind = "not_yet_valid"
	// KindIssuerMismatch / KindAudienceMismatch: identity claim checks failed.
	KindIssuerMismatch   RejectionKind = "issuer_mismatch"
	KindAudienceMismatch RejectionKind = "audience_mismatch"
)

// ErrUnauthorized is the sentinel all rejections unwrap to. Callers that do
// not care about the kind can use errors.Is(err, ErrUnauthorized).
var ErrUnauthorized = errors.New("jwtauth: unauthorized")

// Rejection is the typed verification failure. It is returned as an ordinary
// error value; verification never panics for expected rejection conditions.
type Rejection struct {
	Kind  RejectionKind
	cause error
}

func (r *Rejection) Error() string {
	if r.cause != nil {
		return fmt.Sprintf("jwtauth: %s: %v", r.Kind, r.cause)
	}
	return "jwtauth: " + string(r.Kind)
}

func (r *Rejection) Unwrap() []error {
	if r.cause != nil {
		return []error{ErrUnauthorized, r.cause}
	}
	return []error{ErrUnauthorized}
}

func reject(kind RejectionKind, cause error) *Rejection {
	return &Rejection{Kind: kind, cause: cause}
}

// KindOf extracts the rejection kind from an error returned by Verify.
// The second return is false for non-rejection errors.
func KindOf(err error) (RejectionKind, bool) {
	var rj *Rejection
	if errors.As(err, &rj) {
		return rj.Kind, true
	}
	return "", false
}
