package guard

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opteryx-app/worker-go/internal/logctx"
)

// Audit wraps next with a per-request audit log line: request ID, method,
// path, status, duration and caller address. A bearer token's sub claim is
// included best-effort from the unverified payload; auditing must not
// require a key fetch, and the value is labelled accordingly.
func Audit(log *slog.Logger, next http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := logctx.WithRequestData(r.Context(), &logctx.RequestData{
			RequestID:  uuid.NewString(),
			Method:     r.Method,
			UserAgent:  r.UserAgent(),
			RemoteAddr: remoteAddr(r),
			Path:       r.URL.Path,
		})

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r.WithContext(ctx))

		attrs := []any{
			slog.Int("status", sw.status),
			slog.Duration("dur", time.Since(start)),
		}
		if sub := unverifiedSubject(r.Header.Get(authorizationHeader)); sub != "" {
			attrs = append(attrs, slog.String("jwt_sub_unverified", sub))
		}
		log.InfoContext(ctx, "http.request", attrs...)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func remoteAddr(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	return r.RemoteAddr
}

// unverifiedSubject pulls the sub claim out of a bearer token payload
// without any verification. Audit-only; never used for authorization.
func unverifiedSubject(authHeader string) string {
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return ""
	}
	parts := strings.Split(strings.TrimSpace(authHeader[len(bearerPrefix):]), ".")
	if len(parts) != 3 {
		return ""
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return ""
	}
	var claims struct {
		Sub string `json:"sub"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return ""
	}
	return claims.Sub
}
