package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"session-marketplace/internal/api"
	"session-marketplace/internal/booking"
	"session-marketplace/internal/config"
	"session-marketplace/internal/credential"
	"session-marketplace/internal/dashboard"
	"session-marketplace/internal/event"
	"session-marketplace/internal/gateway"
	"session-marketplace/internal/middleware"
	"session-marketplace/internal/oauth"
	"session-marketplace/internal/session"
)

type App struct {
	cfg *config.Config
	in  *bufio.Reader
	out io.Writer

	bus        *event.InMemoryBus
	store      credential.Store
	registry   *prometheus.Registry
	gateway    *gateway.Gateway
	api        *api.Client
	session    *session.Context
	negotiator *oauth.Negotiator
	bookings   *booking.Manager
	overview   *dashboard.View[overview]

	metricsServer *http.Server
	cleanupFuncs  []func()
}

type settings struct {
	in         io.Reader
	out        io.Writer
	httpClient *http.Client
	store      credential.Store
	opener     oauth.SurfaceOpener
	tokens     oauth.TokenSource
}

type Option func(*settings)

func WithIO(in io.Reader, out io.Writer) Option {
	return func(s *settings) {
		s.in = in
		s.out = out
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(s *settings) {
		s.httpClient = client
	}
}

// WithStore replaces the configured credential backend.
func WithStore(store credential.Store) Option {
	return func(s *settings) {
		s.store = store
	}
}

func WithSurfaceOpener(opener oauth.SurfaceOpener) Option {
	return func(s *settings) {
		s.opener = opener
	}
}

func WithTokenSource(tokens oauth.TokenSource) Option {
	return func(s *settings) {
		s.tokens = tokens
	}
}

func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	s := settings{in: os.Stdin, out: os.Stdout}
	for _, opt := range opts {
		opt(&s)
	}

	a := &App{
		cfg:      cfg,
		in:       bufio.NewReader(s.in),
		out:      s.out,
		bus:      event.NewBus(),
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(collectors.NewGoCollector())

	store := s.store
	if store == nil {
		var err error
		store, err = a.openStore(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to open credential store: %w", err)
		}
	}
	a.store = store

	httpClient := s.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}

	gw, err := gateway.New(cfg.APIURL, store,
		gateway.WithHTTPClient(httpClient),
		gateway.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		gateway.WithMetrics(gateway.NewMetrics(a.registry)),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize gateway: %w", err)
	}
	a.gateway = gw
	a.api = api.NewClient(gw)

	a.session = session.New(store, a.api, a.bus)
	gw.OnSessionTerminated(a.session.Terminate)

	opener := s.opener
	if opener == nil {
		loopback, err := oauth.NewLoopbackOpener(cfg.OAuthRedirectURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize oauth redirect: %w", err)
		}
		opener = loopback
	}

	tokens := s.tokens
	if tokens == nil && cfg.GoogleClientID != "" {
		consent, err := oauth.NewConsentTokenSource(&oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.OAuthRedirectURL,
			Scopes:       []string{"email", "profile"},
			Endpoint:     endpoints.Google,
		}, opener, cfg.OAuthPollInterval)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize google sign-in: %w", err)
		}
		tokens = consent
	}

	negotiator, err := oauth.NewNegotiator(oauth.Config{
		GitHubClientID: cfg.GitHubClientID,
		RedirectURL:    cfg.OAuthRedirectURL,
		PollInterval:   cfg.OAuthPollInterval,
		Timeout:        cfg.OAuthTimeout,
	}, a.api, a.session, opener, tokens)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize oauth: %w", err)
	}
	a.negotiator = negotiator

	a.bookings = booking.NewManager(a.api, a.session, &linePrompter{in: a.in, out: a.out}, a.bus)
	a.overview = dashboard.NewView(a.fetchOverview, nil)

	if cfg.MetricsAddr != "" {
		a.startMetrics()
	}

	return a, nil
}

func (a *App) openStore(ctx context.Context) (credential.Store, error) {
	switch a.cfg.CredentialBackend {
	case config.BackendMemory:
		return credential.NewMemoryStore(), nil
	case config.BackendSQLite, config.BackendPostgres:
		store, err := credential.OpenSQLStore(ctx, a.cfg.CredentialBackend, a.cfg.CredentialDSN)
		if err != nil {
			return nil, err
		}
		a.cleanupFuncs = append(a.cleanupFuncs, func() { _ = store.Close() })
		return store, nil
	default:
		return credential.NewFileStore(a.cfg.CredentialFile, a.cfg.CredentialPassphrase)
	}
}

func (a *App) startMetrics() {
	r := chi.NewRouter()
	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	a.metricsServer = &http.Server{
		Addr:              a.cfg.MetricsAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("metrics listening", "addr", a.metricsServer.Addr)
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("metrics server failed", "error", err)
		}
	}()
}

func (a *App) Close() {
	if a.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = a.metricsServer.Shutdown(ctx)
		cancel()
	}

	// Run cleanup functions
	for _, cleanup := range a.cleanupFuncs {
		cleanup()
	}
	a.cleanupFuncs = nil
	a.bus.Close()
}
