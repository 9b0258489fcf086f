package service

import (
	"context"
	"errors"
	"net/http"

	"github.com/andrebq/sealgate/auth"
	"github.com/andrebq/sealgate/auth/api"
	"github.com/andrebq/sealgate/credstore"
	"github.com/andrebq/sealgate/internal/config"
	"github.com/andrebq/sealgate/internal/httpserver"
	"github.com/andrebq/sealgate/internal/logutil"
	"github.com/andrebq/sealgate/internal/lua/policy"
	"github.com/andrebq/sealgate/internal/metrics"
	"github.com/julienschmidt/httprouter"
)

type (
	// Service holds every component of a running sealgate process.
	Service struct {
		Config   *config.Config
		Store    *credstore.Store
		Program  *auth.Program
		Resolver *auth.Resolver
		Guard    *auth.Guard
		Realm    *api.Realm
		Metrics  *metrics.Metrics

		throttle *auth.Throttle
	}
)

// Open wires the components described by cfg. keys may be nil for tools
// that never issue sessions, an ephemeral keyring is used in that case.
func Open(ctx context.Context, cfg *config.Config, keys *auth.Keyring) (*Service, error) {
	log := logutil.GetOrDefault(ctx)
	if keys == nil {
		var err error
		keys, err = auth.NewKeyring(nil, nil, false)
		if err != nil {
			return nil, err
		}
	} else if keys.Ephemeral() {
		log.Warn().Msg("No session secret configured, sessions will not survive a restart")
	}
	store, err := credstore.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	throttle, err := auth.NewThrottle(cfg.LoginMaxFailures, cfg.LoginLockout)
	if err != nil {
		store.Close()
		return nil, err
	}
	opts := auth.Options{
		RegistrationOpen: cfg.RegistrationOpen,
		Throttle:         throttle,
	}
	if cfg.PolicyScript != "" {
		script, err := policy.Load(cfg.PolicyScript)
		if err != nil {
			throttle.Close()
			store.Close()
			return nil, err
		}
		opts.Policy = script.Func()
		log.Info().Str("policy", cfg.PolicyScript).Msg("Registration policy loaded")
	}

	var m *metrics.Metrics
	if cfg.Metrics {
		m = metrics.New()
	}
	sealer := auth.NewSealer(keys, cfg.SessionMaxAge)
	s := &Service{
		Config:   cfg,
		Store:    store,
		Program:  auth.NewProgram(store, auth.NewHasher(cfg.BcryptCost), sealer, opts),
		Resolver: auth.NewResolver(sealer, store),
		Guard:    auth.NewGuard(cfg.LoginPath),
		Metrics:  m,
		throttle: throttle,
	}
	s.Realm = api.NewRealm(s.Program, s.Resolver, s.Guard, api.Options{
		SecureCookie: cfg.SecureCookies,
		Observer:     m,
	})
	return s, nil
}

// Handler returns the HTTP surface with logging and security headers.
func (s *Service) Handler(ctx context.Context) http.Handler {
	router := httprouter.New()
	s.Realm.Mount(router)
	if s.Metrics != nil {
		router.Handler(http.MethodGet, "/metrics", s.Metrics.Handler())
	}
	return httpserver.Harden(
		httpserver.WithRequestLog(logutil.GetOrDefault(ctx), s.Realm.Middleware(router)),
		s.Config.IsProduction())
}

func (s *Service) Close() error {
	return errors.Join(s.throttle.Close(), s.Store.Close())
}
