package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/sluice/pkg/domain"
	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Engine is the part of the sluice engine exposed over HTTP.
type Engine interface {
	Graph() *domain.Graph
	Run(ctx context.Context, names ...string) (*domain.RunRecord, error)
	History(ctx context.Context) ([]string, error)
	LoadRun(ctx context.Context, id string) (*domain.RunRecord, error)
}

// Server serves the JSON API under /api.
type Server struct {
	Engine   Engine
	Version  string
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithVersion sets the version reported by /api/info.
func WithVersion(v string) Option {
	return func(s *Server) { s.Version = strings.TrimSpace(v) }
}

// WithGatherer exposes the given registry on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.Gatherer = g }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.Logger = l }
}

// NewServer creates a Server for engine.
func NewServer(engine Engine, opts ...Option) *Server {
	s := &Server{Engine: engine, Version: "dev", Logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewHandler creates the HTTP handler for the engine API.
func NewHandler(engine Engine, opts ...Option) http.Handler {
	r := chi.NewRouter()
	NewServer(engine, opts...).Mount(r)
	return enableCORS(r)
}

// Mount registers the API routes on r.
func (s *Server) Mount(r chi.Router) {
	r.Get("/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		_, _ = w.Write(rawSpec)
	})
	r.Get("/swagger", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(swaggerHTML))
	})
	if s.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.GetHealth)
		r.Get("/info", s.GetInfo)
		r.Get("/graph", s.GetGraph)
		r.Get("/runs", s.ListRuns)
		r.Post("/runs", s.CreateRun)
		r.Get("/runs/{id}", s.GetRun)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth handles GET /api/health.
func (s *Server) GetHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /api/info.
func (s *Server) GetInfo(w http.ResponseWriter, _ *http.Request) {
	apiVersion := "unknown"
	if doc, err := GetSwagger(); err == nil && doc.Info != nil {
		apiVersion = doc.Info.Version
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":         "sluice",
		"version":     s.Version,
		"api_version": apiVersion,
	})
}

// GetGraph handles GET /api/graph.
func (s *Server) GetGraph(w http.ResponseWriter, _ *http.Request) {
	g := s.Engine.Graph()
	if g == nil {
		s.writeJSON(w, http.StatusOK, []domain.Task{})
		return
	}
	s.writeJSON(w, http.StatusOK, g.Tasks())
}

// ListRuns handles GET /api/runs.
func (s *Server) ListRuns(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Engine.History(r.Context())
	if err != nil {
		s.fail(w, http.StatusInternalServerError, "history failed", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	s.writeJSON(w, http.StatusOK, ids)
}

// GetRun handles GET /api/runs/{id}.
func (s *Server) GetRun(w http.ResponseWriter, r *http.Request) {
	var id string
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		s.fail(w, http.StatusBadRequest, "invalid id", err)
		return
	}

	run, err := s.Engine.LoadRun(r.Context(), id)
	if errors.Is(err, domain.ErrRunNotFound) {
		s.fail(w, http.StatusNotFound, "run not found", err)
		return
	}
	if err != nil {
		s.fail(w, http.StatusInternalServerError, "load run failed", err)
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

// CreateRun handles POST /api/runs?tasks=a,b. It answers once the run is over;
// a failed run is still a 200 carrying status "failed".
func (s *Server) CreateRun(w http.ResponseWriter, r *http.Request) {
	var tasks []string
	if err := runtime.BindQueryParameter("form", false, true, "tasks", r.URL.Query(), &tasks); err != nil {
		s.fail(w, http.StatusBadRequest, "tasks query parameter is required", err)
		return
	}

	run, err := s.Engine.Run(r.Context(), tasks...)
	switch {
	case run != nil:
		s.writeJSON(w, http.StatusOK, run)
	case errors.Is(err, domain.ErrUnknownTask):
		s.fail(w, http.StatusNotFound, "unknown task", err)
	case err != nil:
		s.fail(w, http.StatusInternalServerError, "run failed", err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Error("Response encode failed", "error", err)
	}
}

func (s *Server) fail(w http.ResponseWriter, status int, msg string, err error) {
	if status >= http.StatusInternalServerError {
		s.Logger.Error(msg, "error", err)
	} else {
		s.Logger.Warn(msg, "error", err)
	}
	http.Error(w, msg+": "+err.Error(), status)
}
