// Package authtest provides test doubles for the auth package.
package authtest

import (
	"context"
	"encoding/json"

	"github.com/opteryx-app/worker-go/auth"
)

// Static is a test authenticator that accepts exactly one token string and
// returns a fixed subject for it; every other token is rejected with
// auth.ErrUnauthorized. Used to exercise HTTP guards without signing real
// tokens.
type Static struct {
	// Token is the sole accepted bearer token. Empty accepts nothing.
	Token string
	// Subject returned for the accepted token; defaults to "test-user".
	Subject string
	// ClaimSet is surfaced through UserInfo.Claims for the accepted token.
	ClaimSet map[string]any
}

// NewStatic creates a Static authenticator accepting token with the given
// subject.
func NewStatic(token, subject string) *Static {
	if subject == "" {
		subject = "test-user"
	}
	return &Static{Token: token, Subject: subject}
}

// CheckAuthentication implements auth.Authenticator.
func (s *Static) CheckAuthentication(ctx context.Context, tok string) (auth.UserInfo, error) {
	if s.Token == "" || tok != s.Token {
		return nil, auth.ErrUnauthorized
	}
	return &staticUserInfo{subject: s.Subject, claims: s.ClaimSet}, nil
}

type staticUserInfo struct {
	subject string
	claims  map[string]any
}

func (u *staticUserInfo) UserID() string { return u.subject }

func (u *staticUserInfo) Claims(ref any) error {
	if u.claims == nil {
		return nil
	}
	b, err := json.Marshal(u.claims)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, ref)
}
