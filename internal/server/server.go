package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"terrainroute/internal/config"
	"terrainroute/internal/pathfinding"
	"terrainroute/internal/planner"
	"terrainroute/internal/store"
)

// History is the read side of the route store.
type History interface {
	Recent(ctx context.Context, limit int) ([]store.Record, error)
	Route(ctx context.Context, id string) (store.Record, error)
	Counts(ctx context.Context) (map[pathfinding.Status]int, error)
}

type Server struct {
	cfg      config.ServerConfig
	planner  *planner.Planner
	history  History
	schemas  *schemas
	upgrader websocket.Upgrader
	httpSrv  *http.Server
	logger   *slog.Logger
}

// New wires the HTTP and websocket front end to p. history may be nil when
// route recording is disabled.
func New(cfg config.ServerConfig, p *planner.Planner, history History, logger *slog.Logger) (*Server, error) {
	if p == nil {
		return nil, errors.New("server: nil planner")
	}
	if logger == nil {
		logger = slog.Default()
	}
	loaded, err := loadSchemas()
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:     cfg,
		planner: p,
		history: history,
		schemas: loaded,
		logger:  logger.With("component", "server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}, nil
}

// Handler returns the request multiplexer.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /route", s.handleRoute)
	mux.HandleFunc("GET /routes", s.handleRecentRoutes)
	mux.HandleFunc("GET /routes/{id}", s.handleStoredRoute)
	mux.HandleFunc("POST /terrain/rebuild", s.handleRebuild)
	mux.HandleFunc("GET /ws", s.handleWebsocket)
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.ListenAddress, strconv.Itoa(s.cfg.HTTPPort))
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		timeout := s.cfg.ShutdownTimeout.Duration()
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}
