package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/opteryx-app/worker-go/auth"
	"github.com/opteryx-app/worker-go/internal/jwtauth"
	"github.com/opteryx-app/worker-go/internal/logctx"
)

const (
	authorizationHeader   = "Authorization"
	wwwAuthenticateHeader = "WWW-Authenticate"
)

// Guard protects HTTP endpoints with bearer token verification. It extracts
// the Authorization header, invokes the Authenticator, and maps the outcome
// to an accept/reject decision: success stores the authenticated principal
// on the request context; any rejection yields a 401 with an RFC 6750
// challenge and no claim-level detail in the body.
type Guard struct {
	auth            auth.Authenticator
	realm           string
	expectedSubject string
	log             *slog.Logger
}

// Option configures the Guard.
type Option func(*Guard)

// WithRealm sets the HTTP authentication realm advertised in
// WWW-Authenticate challenges.
func WithRealm(realm string) Option {
	return func(g *Guard) { g.realm = strings.TrimSpace(realm) }
}

// WithExpectedSubject rejects authenticated tokens whose sub claim differs
// from subject. Used when an endpoint serves exactly one trusted principal.
func WithExpectedSubject(subject string) Option {
	return func(g *Guard) { g.expectedSubject = subject }
}

// WithLogger routes guard events to log instead of slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(g *Guard) { g.log = log }
}

// New builds a Guard around authn.
func New(authn auth.Authenticator, opts ...Option) *Guard {
	g := &Guard{auth: authn, realm: "worker", log: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type userInfoKey struct{}

// UserFrom returns the authenticated principal stored by Require, if any.
func UserFrom(ctx context.Context) (auth.UserInfo, bool) {
	ui, ok := ctx.Value(userInfoKey{}).(auth.UserInfo)
	return ui, ok
}

// Require wraps next so it only runs for requests carrying a verified bearer
// token. The response body never distinguishes why a token was rejected; the
// classification is logged server-side only, to avoid aiding forgery probing.
func (g *Guard) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		authHeader := r.Header.Get(authorizationHeader)
		if authHeader == "" {
			// RFC 6750 §3.1: no authentication information means a bare
			// challenge without an error code.
			g.log.InfoContext(ctx, "auth.check.missing")
			w.Header().Add(wwwAuthenticateHeader, buildBearerChallenge(g.realm, nil))
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) || len(authHeader) <= len(bearerPrefix) {
			g.log.InfoContext(ctx, "auth.check.invalid", slog.String("err", "malformed bearer authorization header"))
			w.Header().Add(wwwAuthenticateHeader, buildBearerChallenge(g.realm, map[string]string{
				"error": "invalid_request", "error_description": "malformed bearer authorization header",
			}))
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		tok := strings.TrimSpace(authHeader[len(bearerPrefix):])
		if tok == "" {
			g.log.InfoContext(ctx, "auth.check.invalid", slog.String("err", "empty bearer token"))
			w.Header().Add(wwwAuthenticateHeader, buildBearerChallenge(g.realm, map[string]string{
				"error": "invalid_request", "error_description": "empty bearer token",
			}))
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		ui, err := g.auth.CheckAuthentication(ctx, tok)
		if err != nil {
			if errors.Is(err, auth.ErrUnauthorized) {
				// The rejection kind stays server-side; clients only see a
				// generic invalid_token challenge.
				if kind, ok := jwtauth.KindOf(err); ok {
					g.log.InfoContext(ctx, "auth.check.fail", slog.String("kind", string(kind)))
				} else {
					g.log.InfoContext(ctx, "auth.check.fail", slog.String("err", err.Error()))
				}
				g.rejectToken(w)
				return
			}
			g.log.ErrorContext(ctx, "auth.check.err", slog.String("err", err.Error()))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		if g.expectedSubject != "" && ui.UserID() != g.expectedSubject {
			g.log.InfoContext(ctx, "auth.check.fail", slog.String("kind", "subject_mismatch"))
			g.rejectToken(w)
			return
		}

		ctx = context.WithValue(ctx, userInfoKey{}, ui)
		ctx = logctx.WithAuthData(ctx, &logctx.AuthData{Subject: ui.UserID()})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (g *Guard) rejectToken(w http.ResponseWriter) {
	w.Header().Add(wwwAuthenticateHeader, buildBearerChallenge(g.realm, map[string]string{
		"error": "invalid_token", "error_description": "token verification failed",
	}))
	w.WriteHeader(http.StatusUnauthorized)
}

// buildBearerChallenge builds a standardized Bearer challenge header value:
//
//	Bearer realm="<realm>", error="...", error_description="..."
//
// Realm is omitted if empty. Go map iteration is randomized, so pieces are
// appended in the order we care about explicitly.
func buildBearerChallenge(realm string, params map[string]string) string {
	pieces := make([]string, 0, 1+len(params))
	esc := func(v string) string { return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(v) }
	if realm != "" {
		pieces = append(pieces, fmt.Sprintf(`realm="%s"`, esc(realm)))
	}
	if params != nil {
		if v, ok := params["error"]; ok {
			pieces = append(pieces, fmt.Sprintf(`error="%s"`, esc(v)))
		}
		if v, ok := params["error_description"]; ok {
			pieces = append(pieces, fmt.Sprintf(`error_description="%s"`, esc(v)))
		}
	}
	if len(pieces) == 0 {
		return "Bearer"
	}
	return "Bearer " + strings.Join(pieces, ", ")
}
