package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/tokenwatch/tokenwatch/internal/domain"
	"github.com/tokenwatch/tokenwatch/internal/observability"
	"github.com/tokenwatch/tokenwatch/internal/storage"
)

// ---------------------------------------------------------------------------
// Operator API — read access to tracked tokens plus manual deny-list control
// ---------------------------------------------------------------------------

// Server exposes the operator HTTP surface.
type Server struct {
	addr      string
	snapshots storage.SnapshotStore
	denyList  storage.DenyListStore
	registry  *observability.Registry
	health    *observability.HealthMonitor

	httpServer *http.Server
}

// NewServer creates the operator API server.
func NewServer(
	addr string,
	snapshots storage.SnapshotStore,
	denyList storage.DenyListStore,
	registry *observability.Registry,
	health *observability.HealthMonitor,
) *Server {
	s := &Server{
		addr:      addr,
		snapshots: snapshots,
		denyList:  denyList,
		registry:  registry,
		health:    health,
	}

	router := mux.NewRouter()
	router.Use(s.logRequests)

	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.NewPrometheusExporter(registry)).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/tokens", s.handleListTokens).Methods(http.MethodGet)
	api.HandleFunc("/tokens/{pair}", s.handleGetToken).Methods(http.MethodGet)
	api.HandleFunc("/denylist", s.handleListDenyList).Methods(http.MethodGet)
	api.HandleFunc("/denylist", s.handleAddDenyList).Methods(http.MethodPost)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

// Handler returns the configured HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		log.Info().Str("addr", s.addr).Msg("api: listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("api: serve: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("api: shutdown: %w", err)
		}
		log.Info().Msg("api: stopped")
		return nil
	}
}

// -----------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status == observability.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.snapshots.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list tokens")
		log.Error().Err(err).Msg("api: list tokens failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tokens": snaps, "count": len(snaps)})
}

func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	pair := mux.Vars(r)["pair"]

	snap, err := s.snapshots.Get(r.Context(), pair)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown pair address")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load token")
		log.Error().Err(err).Str("pair", pair).Msg("api: get token failed")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleListDenyList(w http.ResponseWriter, r *http.Request) {
	category := domain.Category(r.URL.Query().Get("category"))
	if category == "" {
		category = domain.CategoryToken
	}
	if !category.Valid() {
		writeError(w, http.StatusBadRequest, "category must be token or developer")
		return
	}

	entries, err := s.denyList.List(r.Context(), category)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list deny list")
		log.Error().Err(err).Msg("api: list deny list failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

type addDenyListRequest struct {
	Address  string `json:"address"`
	Category string `json:"category"`
	Reason   string `json:"reason"`
}

func (s *Server) handleAddDenyList(w http.ResponseWriter, r *http.Request) {
	var req addDenyListRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.Address == "" {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}
	category := domain.Category(req.Category)
	if !category.Valid() {
		writeError(w, http.StatusBadRequest, "category must be token or developer")
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = "manually blacklisted"
	}

	entry := &domain.DenyListEntry{
		Address:  req.Address,
		Category: category,
		Reason:   reason,
	}
	if err := s.denyList.Upsert(r.Context(), entry); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store entry")
		log.Error().Err(err).Str("address", req.Address).Msg("api: deny list upsert failed")
		return
	}

	log.Info().
		Str("address", entry.Address).
		Str("category", string(entry.Category)).
		Str("reason", entry.Reason).
		Msg("api: address added to deny list")

	writeJSON(w, http.StatusCreated, entry)
}

// -----------------------------------------------------------------------
// Middleware and helpers
// -----------------------------------------------------------------------

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("api: request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("api: response encode failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
