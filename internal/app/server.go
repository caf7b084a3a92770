package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/api/handlers"
	appMiddleware "github.com/Guntherdrb30/TrendsTech.com-sub000/internal/api/middlewares"
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/services"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// RouterDeps are the services the HTTP surface exposes.
type RouterDeps struct {
	Sources   *services.SourceService
	Retrieval *services.RetrievalService
	DB        handlers.Pinger
	JWTSecret []byte
	Origins   []string
}

// NewRouter builds and wires all routes.
func NewRouter(deps RouterDeps) http.Handler {
	sourceHandler := handlers.NewSourceHandler(deps.Sources)
	searchHandler := handlers.NewSearchHandler(deps.Retrieval)

	origins := deps.Origins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", handlers.Health(deps.DB))

	r.Route("/api", func(api chi.Router) {
		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.JWTMiddleware(deps.JWTSecret))
			protected.Post("/sources", sourceHandler.CreateSource)
			protected.Get("/sources", sourceHandler.ListSources)
			protected.Get("/sources/{id}", sourceHandler.GetSource)
			protected.Post("/sources/{id}/reindex", sourceHandler.Reindex)
			protected.Get("/sources/{id}/logs", sourceHandler.Logs)
			protected.Post("/search", searchHandler.Search)
		})
	})
	return r
}

func NewServer(addr string, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// HTTPServer wires the router over the app's services.
func (a *App) HTTPServer() *Server {
	h := NewRouter(RouterDeps{
		Sources:   a.Sources,
		Retrieval: a.Retrieval,
		DB:        a.DBClient,
		JWTSecret: []byte(a.Config.JWTSecret),
	})
	return NewServer(":"+a.Config.Port, h, a.Logger)
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
