// Package dashboard serves a JSON monitoring API over the run history and
// the broker's live position view.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/algotrading-io/callwheel/internal/broker"
	"github.com/algotrading-io/callwheel/internal/storage"
)

// Config contains dashboard server settings.
type Config struct {
	Addr      string // host:port to listen on
	AuthToken string // optional; empty disables auth
}

// Server is the monitoring HTTP server.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	store     storage.Interface
	broker    broker.Broker
	logger    *logrus.Logger
	addr      string
	authToken string
}

// RunView is one run with its attempts and outcomes inlined.
type RunView struct {
	storage.Run
	Attempts []storage.Attempt `json:"attempts"`
	Outcomes []storage.Outcome `json:"outcomes"`
}

// NewServer creates a dashboard server. The broker may be nil, in which
// case the positions endpoint reports unavailable.
func NewServer(cfg Config, store storage.Interface, b broker.Broker, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Server{
		router:    chi.NewRouter(),
		store:     store,
		broker:    b,
		logger:    logger,
		addr:      cfg.Addr,
		authToken: cfg.AuthToken,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/runs", s.handleListRuns)
	s.router.Get("/api/runs/{id}", s.handleGetRun)
	s.router.Get("/api/stats", s.handleGetStats)
	s.router.Get("/api/positions", s.handleGetPositions)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if token != s.authToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("Starting dashboard server on %s", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := s.store.ListRuns(limit)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list runs")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []storage.Run{}
	}
	s.writeJSON(w, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := s.store.GetRun(id)
	if errors.Is(err, storage.ErrRunNotFound) {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.WithError(err).Error("Failed to load run")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	attempts, err := s.store.ListAttempts(id)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load attempts")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	outcomes, err := s.store.ListOutcomes(id)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load outcomes")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, RunView{Run: *run, Attempts: attempts, Outcomes: outcomes})
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetStatistics()
	if err != nil {
		s.logger.WithError(err).Error("Failed to calculate statistics")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, stats)
}

func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	if s.broker == nil {
		http.Error(w, "broker unavailable", http.StatusServiceUnavailable)
		return
	}

	positions, err := s.broker.GetAggregateOpenPositions()
	if err != nil {
		s.logger.WithError(err).Error("Failed to fetch positions")
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}
	if positions == nil {
		positions = []broker.AggregatePosition{}
	}
	s.writeJSON(w, positions)
}
