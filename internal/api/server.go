package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/fuzzyprice/internal/appraisal"
	"github.com/opensource-finance/fuzzyprice/internal/domain"
	"github.com/opensource-finance/fuzzyprice/internal/metrics"
	"github.com/opensource-finance/fuzzyprice/internal/rules"
)

// Server serves the pricing API.
type Server struct {
	router *chi.Mux
	http   *http.Server
}

// NewServer wires the handler and routes. Nothing listens until Start.
func NewServer(cfg *domain.Config, repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, processor *appraisal.Processor, version string) *Server {
	h := NewHandler(cfg.Engine, repo, cache, bus, engine, processor, version)
	router := routes(h, cfg.Metrics)

	return &Server{
		router: router,
		http: &http.Server{
			Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       time.Duration(cfg.Server.ReadTimeout) * time.Second,
			WriteTimeout:      time.Duration(cfg.Server.WriteTimeout) * time.Second,
			IdleTimeout:       2 * time.Minute,
		},
	}
}

func routes(h *Handler, mc domain.MetricsConfig) *chi.Mux {
	r := chi.NewRouter()
	r.Use(
		CORSMiddleware,
		RecoverMiddleware,
		TracingMiddleware,
		LoggingMiddleware,
		middleware.RealIP,
		middleware.Compress(5),
		BodyLimitMiddleware,
	)

	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
	if mc.Enabled {
		path := mc.Path
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(TenantMiddleware)

		r.Route("/estimate", func(r chi.Router) {
			r.Post("/", h.Estimate)
			r.Post("/batch", h.EstimateBatch)
			r.Post("/async", h.EstimateAsync)
		})
		r.Get("/estimates", h.ListEstimates)
		r.Get("/estimates/{id}", h.GetEstimate)

		r.Route("/model", func(r chi.Router) {
			r.Get("/", h.GetModel)
			r.Post("/", h.CreateModel)
			r.Post("/reload", h.ReloadModel)
			r.Get("/variables", h.ListVariables)
			r.Get("/variables/{name}/samples", h.SampleCategory)
		})
	})
	return r
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	return s.http.ListenAndServe()
}

// Shutdown stops accepting connections and waits for active requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Router exposes the routes for in-process testing.
func (s *Server) Router() http.Handler {
	return s.router
}
