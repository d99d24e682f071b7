package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/mileslinfeng/MilesRI/internal/app"
	"github.com/mileslinfeng/MilesRI/internal/common"
)

// Server serves the earnings API on top of an initialised App.
type Server struct {
	app    *app.App
	server *http.Server
	logger *common.Logger
}

// NewServer builds the router, wraps it in middleware and binds it to the
// configured address. Nothing listens until Start.
func NewServer(a *app.App) *Server {
	s := &Server{
		app:    a,
		logger: a.Logger.WithComponent("http"),
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.server = &http.Server{
		Addr:              a.Config.Server.Address(),
		Handler:           applyMiddleware(mux, a.Logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      a.Config.Server.GetWriteTimeout(),
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// Handler exposes the middleware-wrapped router.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Addr() string {
	return s.server.Addr
}

// Start blocks serving requests. It returns nil once Shutdown has been called.
func (s *Server) Start() error {
	s.logger.Info().
		Str("addr", s.server.Addr).
		Dur("write_timeout", s.server.WriteTimeout).
		Msg("Earnings API listening")
	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx expires. Reconciliations already running keep going and still
// write the cache.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Draining HTTP connections")
	return s.server.Shutdown(ctx)
}
