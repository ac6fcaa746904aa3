package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	authapi "todolist/cmd/internal/auth/api"
	cardsapi "todolist/cmd/internal/cards/api"
)

const (
	routeCardsStream = "/api/cards/stream"
	routeCardsWS     = "/api/cards/ws"
)

// opsPaths bypass the session gate.
var opsPaths = []string{"/healthz", "/readyz", "/metrics"}

type routes struct {
	cfg      Config
	log      *slog.Logger
	ready    func(context.Context) error
	gate     *authapi.Gate
	auth     *authapi.Handler
	cards    *cardsapi.Handler
	stream   http.Handler
	ws       http.Handler
	metrics  *httpMetrics
	registry *prometheus.Registry
}

func newRouter(rt routes) http.Handler {
	r := chi.NewRouter()
	if rt.metrics != nil {
		r.Use(rt.metrics.middleware)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if rt.cfg.ReadinessRequireDB && rt.cfg.StoreBackend != BackendPostgres && rt.cfg.SessionBackend != BackendPostgres {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}
		if rt.ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := rt.ready(ctx); err != nil {
				rt.log.Info("readyz.not_ready", "err", err)
				http.Error(w, "not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	if rt.cfg.MetricsEnabled && rt.registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{}))
	}

	if rt.cfg.StaticDir != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(rt.cfg.StaticDir))))
	}

	r.Group(func(r chi.Router) {
		r.Use(rt.gate.Middleware)
		rt.auth.Mount(r)
		rt.cards.Mount(r)
		r.Method(http.MethodGet, routeCardsStream, rt.stream)
		r.Method(http.MethodGet, routeCardsWS, rt.ws)
	})

	var h http.Handler = r
	h = WithCORS(h, rt.cfg, rt.log)
	h = WithSecurityHeaders(h)
	h = WithRecover(h, rt.log)
	h = WithRequestLogging(h, rt.log)
	h = WithRequestID(h)
	return h
}
