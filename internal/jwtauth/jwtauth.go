package jwtauth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/opteryx-app/worker-go/keyring"
)

// Config is the per-verifier validation context: expected issuer, expected
// audience(s), clock-skew tolerance and the algorithm allow-list. It is
// supplied by the embedding service and never mutated during verification.
type Config struct {
	Issuer string
	// ExpectedAudiences contains the primary audience (index 0) followed by
	// any additional accepted audiences. A token passes if its aud claim
	// contains (or equals, when single-valued) any expected audience.
	ExpectedAudiences []string
	// AllowedAlgs restricts accepted signing algorithms. Only asymmetric
	// algorithms are permitted; HMAC-family entries are a configuration
	// error, closing off algorithm-confusion attacks where a public key is
	// misused as a symmetric secret. Defaults to ["RS256"].
	AllowedAlgs []string
	// Leeway is the clock skew tolerance for exp/nbf checks (default 60s).
	Leeway time.Duration
}

// DefaultConfig returns a Config with safe algorithm and leeway defaults.
func DefaultConfig() *Config {
	return &Config{
		AllowedAlgs: []string{"RS256"},
		Leeway:      60 * time.Second,
	}
}

func (c *Config) validate() error {
	if c.Issuer == "" {
		return errors.New("issuer is required")
	}
	if len(c.ExpectedAudiences) == 0 {
		return errors.New("at least one expected audience required")
	}
	for _, a := range c.ExpectedAudiences {
		if a == "" {
			return errors.New("empty audience entry")
		}
	}
	if len(c.AllowedAlgs) == 0 {
		c.AllowedAlgs = []string{"RS256"}
	}
	for _, alg := range c.AllowedAlgs {
		if !asymmetricAlg(alg) {
			return fmt.Errorf("algorithm %q is not an allowed asymmetric signing algorithm", alg)
		}
	}
	if c.Leeway == 0 {
		c.Leeway = 60 * time.Second
	}
	return nil
}

func asymmetricAlg(alg string) bool {
	switch alg {
	case "RS256", "RS384", "RS512", "PS256", "PS384", "PS512",
		"ES256", "ES384", "ES512", "EdDSA":
		return true
	}
	return false
}

// Claims is the validated claim set of a token. A Claims value only exists
// after the signature verified against the key matching the token's kid and
// every claim check passed; there is no partial-success state.
type Claims map[string]any

// Subject returns the sub claim.
func (c Claims) Subject() string {
	s, _ := c["sub"].(string)
	return s
}

// Decode unmarshals the claim set into the provided struct reference,
// tolerating service-specific extra fields.
func (c Claims) Decode(ref any) error {
	b, err := json.Marshal(map[string]any(c))
	if err != nil {
		return err
	}
	return json.Unmarshal(b, ref)
}

// KeyResolver produces the verification key for a kid. The keyring.Resolver
// is the production implementation; tests substitute fakes.
type KeyResolver interface {
	Resolve(ctx context.Context, kid string) (keyring.Entry, error)
}

// Verifier validates bearer JWTs: structure, header policy, key resolution,
// signature, and the standard claim checks. It is a pure function of the
// token plus its configuration and is safe for concurrent use.
type Verifier struct {
	cfg     *Config
	resolve func(ctx context.Context, t *jwt.Token) (any, error)
}

// New builds a Verifier that resolves keys through resolver.
func New(cfg *Config, resolver KeyResolver) (*Verifier, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if resolver == nil {
		return nil, errors.New("key resolver is required")
	}
	resolve := func(ctx context.Context, t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		entry, err := resolver.Resolve(ctx, kid)
		if err != nil {
			return nil, err
		}
		// Verification uses the algorithm paired with the resolved key, never
		// the header's declaration alone. A mismatch is an algorithm
		// substitution attempt, not a signature failure.
		if entry.Alg != t.Method.Alg() {
			return nil, reject(KindUnsupportedAlgorithm,
				fmt.Errorf("token alg %s does not match alg %s provisioned for kid %s", t.Method.Alg(), entry.Alg, kid))
		}
		return entry.Key, nil
	}
	return &Verifier{cfg: cfg, resolve: resolve}, nil
}

// Verify parses and validates tok, returning the claim set on success or a
// *Rejection classifying the failure. All rejection paths are error values;
// unexpected faults on the key path collapse to KindKeyUnresolvable.
func (v *Verifier) Verify(ctx context.Context, tok string) (Claims, error) {
	if tok == "" {
		return nil, reject(KindMalformed, errors.New("empty token"))
	}
	parts := strings.Split(tok, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return nil, reject(KindMalformed, errors.New("token must have three non-empty segments"))
	}

	// Header policy runs before any key resolution so a disallowed algorithm
	// never triggers network I/O.
	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, reject(KindMalformed, fmt.Errorf("decode header: %v", err))
	}
	var hdr struct {
		Alg string `json:"alg"`
		Kid string `json:"kid"`
	}
	if err := json.Unmarshal(headerJSON, &hdr); err != nil {
		return nil, reject(KindMalformed, fmt.Errorf("parse header: %v", err))
	}
	if hdr.Alg == "" {
		return nil, reject(KindMalformed, errors.New("missing alg header"))
	}
	if hdr.Kid == "" {
		return nil, reject(KindMalformed, errors.New("missing kid header"))
	}
	if !algAllowed(hdr.Alg, v.cfg.AllowedAlgs) {
		return nil, reject(KindUnsupportedAlgorithm, fmt.Errorf("alg %s is not on the allow-list", hdr.Alg))
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(v.cfg.AllowedAlgs),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(v.cfg.Issuer),
		jwt.WithLeeway(v.cfg.Leeway),
	}
	if len(v.cfg.ExpectedAudiences) == 1 {
		opts = append(opts, jwt.WithAudience(v.cfg.ExpectedAudiences[0]))
	}
	parser := jwt.NewParser(opts...)

	// The keyfunc closure carries the request context into key resolution so
	// an aborted request abandons an in-flight JWKS fetch.
	var keyErr *Rejection
	kf := func(t *jwt.Token) (any, error) {
		key, err := v.resolve(ctx, t)
		if err != nil {
			var rj *Rejection
			if errors.As(err, &rj) {
				keyErr = rj
			} else {
				keyErr = reject(KindKeyUnresolvable, err)
			}
			return nil, keyErr
		}
		return key, nil
	}

	parsed, err := parser.Parse(tok, kf)
	if err != nil {
		if keyErr != nil {
			return nil, keyErr
		}
		return nil, classifyParseError(err)
	}

	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, reject(KindMalformed, errors.New("unexpected claims type"))
	}
	if len(v.cfg.ExpectedAudiences) > 1 {
		if !audIntersects(mc["aud"], v.cfg.ExpectedAudiences) {
			return nil, reject(KindAudienceMismatch, errors.New("audience mismatch"))
		}
	}
	if sub, _ := mc["sub"].(string); sub == "" {
		return nil, reject(KindMalformed, errors.New("missing sub claim"))
	}
	return Claims(mc), nil
}

func algAllowed(alg string, allowed []string) bool {
	for _, a := range allowed {
		if alg == a {
			return true
		}
	}
	return false
}

// classifyParseError maps golang-jwt sentinel errors onto the rejection
// taxonomy. The check order fixes which kind is reported when a token fails
// multiple claim checks at once.
func classifyParseError(err error) *Rejection {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return reject(KindMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return reject(KindInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return reject(KindExpired, err)
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return reject(KindNotYetValid, err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return reject(KindIssuerMismatch, err)
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return reject(KindAudienceMismatch, err)
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return reject(KindMalformed, err)
	}
	return reject(KindMalformed, err)
}

func audIntersects(aud any, wants []string) bool {
	wantSet := map[string]struct{}{}
	for _, w := range wants {
		wantSet[w] = struct{}{}
	}
	switch v := aud.(type) {
	case string:
		_, ok := wantSet[v]
		return ok
	case []any:
		for _, e := range v {
			if s, ok := e.(string); ok {
				if _, ok2 := wantSet[s]; ok2 {
					return true
				}
			}
		}
	case []string:
		for _, s := range v {
			if _, ok := wantSet[s]; ok {
				return true
			}
		}
	}
	return false
}
