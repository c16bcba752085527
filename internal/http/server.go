// Package http serves the party-facing JSON API, the host OAuth connect
// flow and Prometheus metrics.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/alexlhtam/vibeq/internal/core"
	"github.com/alexlhtam/vibeq/internal/filter"
	"github.com/alexlhtam/vibeq/internal/queue"
	"github.com/alexlhtam/vibeq/internal/suggest"
	"github.com/alexlhtam/vibeq/internal/token"
)

type Server struct {
	config   *core.ServerConfig
	logger   *zap.Logger
	server   *http.Server
	metrics  *Metrics
	registry *prometheus.Registry

	party     core.PartyID
	engine    *queue.Engine
	catalog   core.CatalogClient
	filter    *filter.Filter
	suggester *suggest.Generator
	tokens    *token.Manager
	settings  core.SettingsStore

	// authState is written by /auth/login and consumed by /auth/callback;
	// handlers run concurrently, so access goes through authMu.
	authMu    sync.Mutex
	authState string
}

type Metrics struct {
	SubmissionsTotal *prometheus.CounterVec
	ApprovalsTotal   prometheus.Counter
	TokenRefreshes   *prometheus.CounterVec
	CatalogErrors    prometheus.Counter
	SuggestionRuns   prometheus.Counter
	QueueSize        prometheus.Gauge
}

func newMetrics(registry *prometheus.Registry) *Metrics {
	metrics := &Metrics{
		SubmissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vibeq_submissions_total",
				Help: "Total number of guest song submissions",
			},
			[]string{"result"},
		),
		ApprovalsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "vibeq_approvals_total",
				Help: "Total number of host approvals",
			},
		),
		TokenRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vibeq_token_refreshes_total",
				Help: "Total number of access token refresh attempts",
			},
			[]string{"result"},
		),
		CatalogErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "vibeq_catalog_errors_total",
				Help: "Total number of failed catalog calls",
			},
		),
		SuggestionRuns: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "vibeq_suggestion_runs_total",
				Help: "Total number of suggestion generator runs",
			},
		),
		QueueSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "vibeq_queue_size",
				Help: "Current number of visible requests in the queue",
			},
		),
	}

	registry.MustRegister(
		metrics.SubmissionsTotal,
		metrics.ApprovalsTotal,
		metrics.TokenRefreshes,
		metrics.CatalogErrors,
		metrics.SuggestionRuns,
		metrics.QueueSize,
	)
	return metrics
}

func NewServer(
	config *core.ServerConfig,
	party core.PartyID,
	engine *queue.Engine,
	catalog core.CatalogClient,
	contentFilter *filter.Filter,
	suggester *suggest.Generator,
	tokens *token.Manager,
	settings core.SettingsStore,
	logger *zap.Logger,
) *Server {
	registry := prometheus.NewRegistry()

	s := &Server{
		config:    config,
		logger:    logger,
		metrics:   newMetrics(registry),
		registry:  registry,
		party:     party,
		engine:    engine,
		catalog:   catalog,
		filter:    contentFilter,
		suggester: suggester,
		tokens:    tokens,
		settings:  settings,
	}

	tokens.OnRefresh(func(success bool) {
		result := "success"
		if !success {
			result = "failure"
		}
		s.metrics.TokenRefreshes.WithLabelValues(result).Inc()
	})

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "vibeq"})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "service": "vibeq"})
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /search", s.handleSearch)
	mux.HandleFunc("POST /request", s.handleSubmit)
	mux.HandleFunc("GET /queue", s.handleQueue)
	mux.HandleFunc("POST /queue/clear", s.handleClear)
	mux.HandleFunc("POST /queue/reorder", s.handleReorder)
	mux.HandleFunc("POST /queue/shuffle", s.handleShuffle)
	mux.HandleFunc("POST /request/{id}/approve", s.handleApprove)
	mux.HandleFunc("POST /request/{id}/deny", s.handleDeny)
	mux.HandleFunc("POST /request/{id}/played", s.handlePlayed)
	mux.HandleFunc("DELETE /request/{id}", s.handleRemove)
	mux.HandleFunc("GET /suggestions", s.handleSuggestions)
	mux.HandleFunc("GET /settings/{key}", s.handleGetSetting)
	mux.HandleFunc("PUT /settings/{key}", s.handlePutSetting)
	mux.HandleFunc("GET /auth/login", s.handleAuthLogin)
	mux.HandleFunc("GET /auth/callback", s.handleAuthCallback)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      mux,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return s
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.server.Addr))

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shutdown HTTP server gracefully", zap.Error(err))
		}
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// SetQueueSize updates the queue size gauge; called periodically from main.
func (s *Server) SetQueueSize(size int) {
	s.metrics.QueueSize.Set(float64(size))
}

type trackList struct {
	Tracks []core.Track `json:"tracks"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")

	tracks, err := s.catalog.Search(r.Context(), query)
	if err != nil {
		// The queue stays usable when the catalog is down: degrade to an
		// empty result.
		s.metrics.CatalogErrors.Inc()
		s.logger.Warn("Search degraded to empty result", zap.Error(err))
		writeJSON(w, http.StatusOK, trackList{Tracks: []core.Track{}})
		return
	}

	annotated := s.filter.Annotate(r.Context(), tracks)
	if annotated == nil {
		annotated = []core.Track{}
	}
	writeJSON(w, http.StatusOK, trackList{Tracks: annotated})
}

type submitRequest struct {
	TrackID    string `json:"track_id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	ArtworkURL string `json:"artwork_url"`
	DurationMS int    `json:"duration_ms"`
	Explicit   bool   `json:"explicit"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var body submitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.TrackID == "" {
		writeError(w, http.StatusBadRequest, "track_id is required")
		return
	}

	req, err := s.engine.Enqueue(r.Context(), s.party, core.Track{
		ID:         body.TrackID,
		Title:      body.Title,
		Artist:     body.Artist,
		ArtworkURL: body.ArtworkURL,
		DurationMS: body.DurationMS,
		Explicit:   body.Explicit,
	})
	if errors.Is(err, core.ErrExplicitBlocked) {
		s.metrics.SubmissionsTotal.WithLabelValues("blocked").Inc()
		writeError(w, http.StatusForbidden, "explicit tracks are blocked at this party")
		return
	}
	if err != nil {
		s.logger.Error("Failed to enqueue request", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not store request")
		return
	}

	s.metrics.SubmissionsTotal.WithLabelValues("accepted").Inc()
	writeJSON(w, http.StatusCreated, req)
}

type queueItem struct {
	ID         int64              `json:"id"`
	TrackID    string             `json:"track_id"`
	Title      string             `json:"title"`
	Artist     string             `json:"artist"`
	ArtworkURL string             `json:"artwork_url"`
	Status     core.RequestStatus `json:"status"`
	Explicit   bool               `json:"explicit"`
	Blocked    bool               `json:"blocked"`
	Position   int                `json:"position"`
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	visible, err := s.engine.Visible(r.Context(), s.party)
	if err != nil {
		s.logger.Error("Failed to load queue", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load queue")
		return
	}

	blockExplicit, err := s.settings.GetBool(r.Context(), core.SettingBlockExplicit)
	if err != nil {
		blockExplicit = false
	}

	items := make([]queueItem, 0, len(visible))
	for _, req := range visible {
		items = append(items, queueItem{
			ID:         req.ID,
			TrackID:    req.TrackID,
			Title:      req.Title,
			Artist:     req.Artist,
			ArtworkURL: req.ArtworkURL,
			Status:     req.Status,
			Explicit:   req.Explicit,
			Blocked:    blockExplicit && req.Explicit,
			Position:   req.Position,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"queue": items})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Clear(r.Context(), s.party); err != nil {
		s.logger.Error("Failed to clear queue", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not clear queue")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

type reorderRequest struct {
	Order []int64 `json:"order"`
}

func (s *Server) handleReorder(w http.ResponseWriter, r *http.Request) {
	var body reorderRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.engine.Reorder(r.Context(), s.party, body.Order); err != nil {
		s.logger.Error("Failed to reorder queue", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not reorder queue")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reordered"})
}

func (s *Server) handleShuffle(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Shuffle(r.Context(), s.party); err != nil {
		s.logger.Error("Failed to shuffle queue", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not shuffle queue")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "shuffled"})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	id, ok := requestID(w, r)
	if !ok {
		return
	}
	if err := s.engine.Approve(r.Context(), s.party, id); err != nil {
		s.logger.Error("Failed to approve request", zap.Int64("requestID", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not approve request")
		return
	}
	s.metrics.ApprovalsTotal.Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": string(core.StatusApproved)})
}

func (s *Server) handleDeny(w http.ResponseWriter, r *http.Request) {
	id, ok := requestID(w, r)
	if !ok {
		return
	}
	if err := s.engine.Reject(r.Context(), s.party, id); err != nil {
		s.logger.Error("Failed to reject request", zap.Int64("requestID", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not reject request")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(core.StatusRejected)})
}

func (s *Server) handlePlayed(w http.ResponseWriter, r *http.Request) {
	id, ok := requestID(w, r)
	if !ok {
		return
	}
	if err := s.engine.Complete(r.Context(), s.party, id); err != nil {
		s.logger.Error("Failed to complete request", zap.Int64("requestID", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not complete request")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(core.StatusCompleted)})
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	id, ok := requestID(w, r)
	if !ok {
		return
	}
	err := s.engine.Remove(r.Context(), s.party, id)
	if errors.Is(err, core.ErrNotFound) {
		writeError(w, http.StatusNotFound, "request not found")
		return
	}
	if err != nil {
		s.logger.Error("Failed to remove request", zap.Int64("requestID", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not remove request")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	s.metrics.SuggestionRuns.Inc()

	tracks, err := s.suggester.Suggest(r.Context(), s.party)
	if err != nil {
		s.logger.Error("Failed to generate suggestions", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not generate suggestions")
		return
	}
	if tracks == nil {
		tracks = []core.Track{}
	}
	writeJSON(w, http.StatusOK, trackList{Tracks: tracks})
}

func (s *Server) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	value, err := s.settings.Get(r.Context(), key)
	if err != nil {
		s.logger.Error("Failed to read setting", zap.String("key", key), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not read setting")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": value})
}

type settingRequest struct {
	Value string `json:"value"`
}

func (s *Server) handlePutSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	var body settingRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.settings.Set(r.Context(), key, body.Value); err != nil {
		s.logger.Error("Failed to write setting", zap.String("key", key), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not write setting")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": body.Value})
}

func (s *Server) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		writeError(w, http.StatusInternalServerError, "could not start auth flow")
		return
	}
	state := hex.EncodeToString(buf)

	s.authMu.Lock()
	s.authState = state
	s.authMu.Unlock()

	http.Redirect(w, r, s.tokens.AuthURL(state), http.StatusFound)
}

func (s *Server) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	s.authMu.Lock()
	pending := s.authState
	s.authMu.Unlock()

	if state := r.URL.Query().Get("state"); pending == "" || state != pending {
		writeError(w, http.StatusBadRequest, "state mismatch")
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing authorization code")
		return
	}

	if err := s.tokens.Authorize(r.Context(), code); err != nil {
		s.logger.Error("Host authorization failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "authorization failed")
		return
	}

	s.authMu.Lock()
	s.authState = ""
	s.authMu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "connected"})
}

func requestID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// Connection gone; nothing useful left to do.
		_ = err
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
