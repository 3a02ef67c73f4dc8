package api

import (
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/epubmaker/internal/config"
	"github.com/dgallion1/epubmaker/internal/pipeline"
)

// Server is the HTTP API for serve mode: it exposes the packaged book and
// lets clients queue rebuilds.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(orch *pipeline.Orchestrator, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: orch,
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(AccessLog(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)
	ops := http.Dir(filepath.Join(s.cfg.OutputRoot, "OPS"))
	r.Handle("/book/*", http.StripPrefix("/book/", http.FileServer(ops)))

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(RequireAPIKey(s.cfg.APIKey, s.log))

		r.Post("/api/builds", s.handleCreateBuild)
		r.Get("/api/builds/{buildID}", s.handleBuildStatus)
		r.Get("/api/stats", s.handleStats)

		r.Get("/api/book/manifest", s.handleManifest)
		r.Get("/api/book/toc", s.handleTOC)
		r.Get("/api/book/epub", s.handleArchive)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
