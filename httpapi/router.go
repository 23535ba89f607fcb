// Package httpapi exposes the bulk edit engine over HTTP.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goliatone/go-bulkedit/command"
	"github.com/goliatone/go-bulkedit/core"
	"github.com/goliatone/go-bulkedit/query"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ShopQueryParam = "shop"
	ShopHeader     = "X-Shop"

	defaultRequestTimeout = 5 * time.Minute
)

// Engine is the engine surface the HTTP handlers dispatch to.
type Engine interface {
	command.MutatingEngine
	query.PreviewReader
	query.RunReader
}

type Option func(*routerConfig)

type routerConfig struct {
	logger   core.Logger
	gatherer prometheus.Gatherer
	timeout  time.Duration
}

func WithLogger(logger core.Logger) Option {
	return func(cfg *routerConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithMetrics mounts a Prometheus scrape endpoint at /metrics.
func WithMetrics(gatherer prometheus.Gatherer) Option {
	return func(cfg *routerConfig) {
		cfg.gatherer = gatherer
	}
}

func WithRequestTimeout(timeout time.Duration) Option {
	return func(cfg *routerConfig) {
		if timeout > 0 {
			cfg.timeout = timeout
		}
	}
}

func NewRouter(engine Engine, opts ...Option) *chi.Mux {
	cfg := routerConfig{
		logger:  glog.Nop(),
		timeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	handler := NewHandler(engine, cfg.logger)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(cfg.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(cfg.timeout))

	if cfg.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", handler.Health)
		r.Route("/bulk", func(r chi.Router) {
			r.Post("/preview", handler.Preview)
			r.Post("/apply", handler.Apply)
			r.Post("/rollback", handler.Rollback)
			r.Get("/runs/latest", handler.LatestRun)
		})
	})
	return r
}

func requestLogger(logger core.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			startedAt := time.Now()
			next.ServeHTTP(ww, r)
			logger.WithContext(r.Context()).Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(startedAt).Milliseconds(),
			)
		})
	}
}
