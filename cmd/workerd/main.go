// Command workerd runs the statement worker service: a guarded job
// submission endpoint plus a health probe, verifying bearer tokens against
// locally provisioned keys with JWKS fallback to the configured issuer.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joeshaw/envdecode"

	"github.com/opteryx-app/worker-go/auth"
	"github.com/opteryx-app/worker-go/guard"
	"github.com/opteryx-app/worker-go/internal/jobstore"
	"github.com/opteryx-app/worker-go/internal/logctx"
	"github.com/opteryx-app/worker-go/keyring"
)

type config struct {
	ListenAddr string `env:"LISTEN_ADDR,default=:8080"`

	Issuer   string `env:"ISSUER,default=https://accounts.example.com"`
	Audience string `env:"AUDIENCE,default=opteryx-api"`
	// JWKSURL is the authority endpoint consulted for key IDs absent from
	// the local key directory. Empty disables remote fallback.
	JWKSURL string `env:"JWKS_URL,default="`
	// KeysDir holds PEM public keys provisioned at deploy time. Empty
	// disables the local store.
	KeysDir         string        `env:"KEYS_DIR,default="`
	DefaultKeyAlg   string        `env:"DEFAULT_KEY_ALG,default=RS256"`
	Leeway          time.Duration `env:"CLOCK_SKEW_TOLERANCE,default=60s"`
	ExpectedSubject string        `env:"EXPECTED_SUBJECT,default="`

	DataServiceURL string        `env:"DATA_SERVICE_URL,default=http://localhost:8081"`
	QueryTimeout   time.Duration `env:"QUERY_TIMEOUT,default=60s"`
}

func main() {
	log := slog.New(logctx.Handler{Handler: slog.NewJSONHandler(os.Stderr, nil)})
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("workerd.fatal", slog.String("err", err.Error()))
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg config
	if err := envdecode.Decode(&cfg); err != nil {
		return err
	}
	if cfg.KeysDir == "" && cfg.JWKSURL == "" {
		return errors.New("at least one of KEYS_DIR and JWKS_URL must be set")
	}

	var store *keyring.Store
	if cfg.KeysDir != "" {
		s, err := keyring.LoadDir(cfg.KeysDir, cfg.DefaultKeyAlg)
		if err != nil {
			return err
		}
		store = s
		go store.Watch(ctx, cfg.KeysDir, cfg.DefaultKeyAlg, log)
		log.Info("keyring.loaded", slog.Int("keys", store.Len()))
	}

	authn, err := auth.New(cfg.Issuer, cfg.Audience, store, cfg.JWKSURL,
		auth.WithLeeway(cfg.Leeway),
		auth.WithLogger(log),
	)
	if err != nil {
		return err
	}

	jobs, err := jobstore.NewFromEnv()
	if err != nil {
		return err
	}
	defer func() {
		_ = jobs.Close()
	}()

	proc := jobstore.NewProcessor(jobs, jobstore.NewHTTPExecutor(cfg.DataServiceURL, cfg.QueryTimeout), log)

	gopts := []guard.Option{guard.WithRealm("worker"), guard.WithLogger(log)}
	if cfg.ExpectedSubject != "" {
		gopts = append(gopts, guard.WithExpectedSubject(cfg.ExpectedSubject))
	}
	g := guard.New(authn, gopts...)

	mux := http.NewServeMux()
	mux.Handle("GET /health", guard.HealthHandler())
	mux.Handle("POST /api/v1/submit", g.Require(guard.SubmitHandler(jobs, proc, log)))

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           guard.Audit(log, mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("workerd.listen", slog.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("workerd.shutdown")
	return srv.Shutdown(shutdownCtx)
}
