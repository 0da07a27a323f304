package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odvcencio/gatepass/pkg/cache"
	"github.com/odvcencio/gatepass/pkg/config"
	"github.com/odvcencio/gatepass/pkg/orchestrator"
	"github.com/odvcencio/gatepass/pkg/pool"
	"github.com/odvcencio/gatepass/pkg/proxy"
	"github.com/odvcencio/gatepass/pkg/storage"
)

// Solver handles clearance requests. Satisfied by *orchestrator.Orchestrator.
type Solver interface {
	Solve(ctx context.Context, req orchestrator.Request) (*orchestrator.Result, error)
	Stats() orchestrator.Stats
}

// Server exposes the clearance service over HTTP.
type Server struct {
	cfg        *config.Config
	solver     Solver
	cache      *cache.Cache
	pool       *pool.Pool
	store      *storage.Store
	rotator    *proxy.Rotator
	logger     *log.Logger
	httpServer *http.Server
	startedAt  time.Time
}

// NewServer constructs a server bound to the provided components. The store
// and rotator may be nil; the corresponding features degrade gracefully.
func NewServer(cfg *config.Config, solver Solver, c *cache.Cache, p *pool.Pool, store *storage.Store, rotator *proxy.Rotator) *Server {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Server{
		cfg:       cfg,
		solver:    solver,
		cache:     c,
		pool:      p,
		store:     store,
		rotator:   rotator,
		logger:    log.New(os.Stdout, "[api] ", log.LstdFlags),
		startedAt: time.Now(),
	}
}

// Handler builds the route tree. Exposed for tests.
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(s.loggingMiddleware)

	// Public endpoints (pre-auth)
	router.Get("/healthz", s.handleHealthz)
	router.Get("/metrics", s.handleMetrics)

	api := chi.NewRouter()
	api.Use(s.apiKeyMiddleware)
	api.Get("/challenge", s.handleChallenge)
	api.Get("/stats", s.handleStats)
	api.Get("/queue", s.handleQueue)
	api.Post("/cache/clear", s.handleCacheClear)
	api.Get("/requests", s.handleListRequests)
	router.Mount("/v1", api)

	return router
}

// Start runs the HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    1 << 20,
	}

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Printf("serving on %s", s.cfg.Server.Address)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}
