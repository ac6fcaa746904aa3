// Package app wires the todolist server runtime: config, logging, stores,
// HTTP routes and the change stream.
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"todolist/cmd/identity"
	authapi "todolist/cmd/internal/auth/api"
	"todolist/cmd/internal/auth/session"
	"todolist/cmd/internal/cards"
	cardsapi "todolist/cmd/internal/cards/api"
	"todolist/cmd/internal/realtime"
	"todolist/cmd/security/password"
)

// App owns the stores, the change hub and the HTTP handler tree.
type App struct {
	cfg Config
	log Logger

	backends *backends
	hub      *realtime.Hub
	sessions *session.Manager
	handler  http.Handler
}

type options struct {
	passwords *password.Config
	registry  *prometheus.Registry
}

type Option func(*options)

// WithPasswordConfig replaces the password hashing config read from the
// environment.
func WithPasswordConfig(c password.Config) Option {
	return func(o *options) { o.passwords = &c }
}

// WithRegistry collects metrics into reg instead of a fresh registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// New opens the configured backends and builds the handler tree. Close
// releases what New opened.
func New(ctx context.Context, cfg Config, log Logger, opts ...Option) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	reg := o.registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	pw := o.passwords
	if pw == nil {
		c, err := password.FromEnv()
		if err != nil {
			return nil, err
		}
		pw = &c
	}
	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}

	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a, err := build(cfg, log, b, *pw, sessCfg, reg)
	if err != nil {
		b.Close()
		return nil, err
	}
	return a, nil
}

func build(cfg Config, log Logger, b *backends, pw password.Config, sessCfg session.Config, reg *prometheus.Registry) (*App, error) {
	users, err := identity.NewService(b.users, pw)
	if err != nil {
		return nil, err
	}
	sessions := session.NewManager(sessCfg, b.sessions, log, session.WithMetrics(session.NewMetrics(reg)))

	hubMetrics := realtime.NewMetrics(reg)
	hub := realtime.NewHub(log,
		realtime.WithQueueSize(cfg.HubQueueSize),
		realtime.WithRepeatDelay(cfg.HubRepeatDelay),
		realtime.WithMetrics(hubMetrics),
	)

	cardSvc, err := cards.NewService(b.cards,
		cards.WithNotifier(hub),
		cards.WithLocation(cfg.deadlineLocation()),
		cards.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	authCfg := authapi.LoadConfigFromEnv()
	authH, err := authapi.NewHandler(log, authCfg, users, sessions)
	if err != nil {
		return nil, err
	}
	cardsH, err := cardsapi.NewHandler(log, cardSvc)
	if err != nil {
		return nil, err
	}

	streamOpts := realtime.StreamOptions{
		Heartbeat: cfg.StreamHeartbeat,
		User:      authapi.UserID,
		Metrics:   hubMetrics,
	}

	handler := newRouter(routes{
		cfg:      cfg,
		log:      log,
		ready:    b.ready,
		gate:     authapi.NewGate(log, sessions, authCfg, authapi.WithExemptPaths(opsPaths...)),
		auth:     authH,
		cards:    cardsH,
		stream:   realtime.NewStreamHandler(log, hub, streamOpts),
		ws:       realtime.NewWSGateway(log, hub, realtime.WSConfigFromEnv(), streamOpts),
		metrics:  newHTTPMetrics(reg),
		registry: reg,
	})

	return &App{
		cfg:      cfg,
		log:      log,
		backends: b,
		hub:      hub,
		sessions: sessions,
		handler:  handler,
	}, nil
}

// Handler is the full HTTP handler tree, middleware included.
func (a *App) Handler() http.Handler { return a.handler }

// Run serves HTTP and sweeps expired sessions until ctx is done, then shuts
// down gracefully. Open change streams are ended by closing the hub.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}
	srv.RegisterOnShutdown(a.hub.Close)

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go a.sessions.RunSweeper(sweepCtx, a.sessions.Config().SweepInterval)

	a.log.Info("server.start", startAttrs(a.cfg)...)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}
	a.log.Info("server.stopped")
	return nil
}

// Close ends the change stream and releases the backends.
func (a *App) Close() {
	a.hub.Close()
	a.backends.Close()
}

// startAttrs describes where a local client reaches the server.
func startAttrs(cfg Config) []any {
	base := runtimeBaseURL(cfg.HTTPAddr)
	return []any{
		"addr", cfg.HTTPAddr,
		"url", base,
		"stream_url", base + routeCardsStream,
		"ws_url", wsBaseURL(base) + routeCardsWS,
		"store", cfg.StoreBackend,
		"sessions", cfg.SessionBackend,
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// runtimeBaseURL is the URL a local client reaches addr at. Wildcard binds
// map to loopback.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return "http://" + addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func wsBaseURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return "ws://" + base
	}
}
