package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kaigo-note/api/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type routerConfig struct {
	basePath    string
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers

	imports  RouteRegistrar
	visits   RouteRegistrar
	patterns RouteRegistrar
	names    RouteRegistrar

	importMiddlewares []func(http.Handler) http.Handler
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const (
	defaultAPIPrefix  = "/api/v1"
	defaultTimeout    = 60 * time.Second
	errorNotFoundCode = "route_not_found"
)

// NewRouter constructs the chi router with shared middleware and route groups.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		basePath: defaultAPIPrefix,
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(defaultTimeout),
		},
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()

	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(cfg.basePath, func(api chi.Router) {
		mount := func(registrar RouteRegistrar, groupMW []func(http.Handler) http.Handler) {
			if registrar == nil {
				return
			}
			api.Group(func(group chi.Router) {
				for _, mw := range groupMW {
					if mw != nil {
						group.Use(mw)
					}
				}
				registrar(group)
			})
		}

		mount(cfg.imports, cfg.importMiddlewares)
		mount(cfg.visits, nil)
		mount(cfg.patterns, nil)
		mount(cfg.names, nil)
	})

	return r
}

// WithMiddlewares appends additional global middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers overrides the handlers used for /healthz and /readyz.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithImportRoutes configures the registrar responsible for import endpoints.
func WithImportRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.imports = reg
	}
}

// WithImportMiddlewares configures middlewares applied to the import group.
func WithImportMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.importMiddlewares = append(cfg.importMiddlewares, mw...)
	}
}

// WithVisitRoutes configures the registrar responsible for visit endpoints.
func WithVisitRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.visits = reg
	}
}

// WithPatternRoutes configures the registrar responsible for pattern endpoints.
func WithPatternRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.patterns = reg
	}
}

// WithNameRoutes configures the registrar responsible for matcher diagnostics.
func WithNameRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.names = reg
	}
}
