// Package server exposes the studio over HTTP for the canvas UI.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	serverconfig "github.com/crystaldolphin/canvasagent/internal/config/server"
	"github.com/crystaldolphin/canvasagent/internal/studio"
)

const shutdownTimeout = 10 * time.Second

// Server is the HTTP API.
type Server struct {
	cfg       serverconfig.Config
	studio    *studio.Service
	uploadDir string
	upgrader  websocket.Upgrader
	handler   http.Handler
}

// New builds the router. uploadDir is created if missing.
func New(cfg serverconfig.Config, svc *studio.Service, uploadDir string) (*Server, error) {
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	s := &Server{
		cfg:       cfg,
		studio:    svc,
		uploadDir: uploadDir,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.handler = s.routes()
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)

	r.Group(func(api chi.Router) {
		if s.cfg.RateLimit > 0 {
			api.Use(newIPLimiter(s.cfg.RateLimit, s.cfg.RateBurst).Middleware)
		}
		if s.cfg.APIKey != "" {
			api.Use(requireAPIKey(s.cfg.APIKey))
		}

		api.Post("/chat", s.handleChat)
		api.Route("/tools", func(r chi.Router) {
			r.Get("/", s.handleListTools)
			r.Post("/", s.handleCallTool)
		})
		api.Post("/upload", s.handleUpload)
		api.Get("/uploads/*", s.handleServeUpload)
		api.Get("/gallery", s.handleGallery)
		api.Get("/events", s.handleEvents)
	})
	return r
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.handler }

// Run serves on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server: listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	slog.Info("server: shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
