// Package server exposes the twin's diagnostics HTTP surface: health,
// readiness, metrics, and read-only views of the anchor graph, UI
// state registry, and viewpoint. The rendering host never talks to
// this API; it exists for operators and dashboards.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/atriumlabs/twinctl/internal/inspect"
	"github.com/atriumlabs/twinctl/internal/observability"
)

var ErrInvalidServer = errors.New("server: invalid configuration")

// Config holds the HTTP listener settings.
type Config struct {
	Name        string
	Addr        string
	CorsOrigins []string
}

// Server wraps the gin router and the inspection service it reports on.
type Server struct {
	cfg      Config
	svc      *inspect.Service
	router   *gin.Engine
	appeared time.Time
}

func NewServer(cfg Config, svc *inspect.Service) (*Server, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("%w: missing addr", ErrInvalidServer)
	}
	if svc == nil {
		return nil, fmt.Errorf("%w: missing inspect service", ErrInvalidServer)
	}
	if cfg.Name == "" {
		cfg.Name = "twinctl"
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(observability.RequestLogger(log.Logger))
	router.Use(observability.RequestMetricsMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CorsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	s := &Server{
		cfg:      cfg,
		svc:      svc,
		router:   router,
		appeared: time.Now(),
	}
	s.registerRoutes()
	return s, nil
}

// Router exposes the configured engine, mainly for httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.cfg.Addr).Str("component", s.cfg.Name).Msg("server.listen")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		log.Info().Msg("server.shutdown")
		return nil
	case err := <-errCh:
		return err
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
