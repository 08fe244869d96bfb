// Package server exposes pipeline artifacts over a read-only HTTP API for
// the dashboard layer: run history, the prediction and feature tables, the
// dataset summary, model metadata, Prometheus metrics and a websocket
// stream of artifact change events.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"healthcast/internal/metrics"
	"healthcast/internal/storage"
)

const shutdownTimeout = 5 * time.Second

// Artifact names used in events and the cache.
const (
	ArtifactFeatures    = "features"
	ArtifactPredictions = "predictions"
	ArtifactSummary     = "summary"
	ArtifactModel       = "model"
)

// Config locates the artifacts served by the API.
type Config struct {
	Port            int
	FeaturesPath    string
	PredictionsPath string
	SummaryPath     string
	ModelPath       string
	CacheSize       int
}

// Server is the artifact API.
type Server struct {
	cfg      Config
	store    *storage.Store
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	cache    *tableCache
	hub      *Hub
	router   *mux.Router
	server   *http.Server
}

// New builds the API. store and m may be nil; gatherer defaults to the
// Prometheus default gatherer.
func New(cfg Config, store *storage.Store, m *metrics.Metrics, gatherer prometheus.Gatherer) (*Server, error) {
	cache, err := newTableCache(cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		cfg:      cfg,
		store:    store,
		metrics:  m,
		gatherer: gatherer,
		cache:    cache,
		hub:      NewHub(m),
	}

	r := mux.NewRouter()
	r.Use(s.instrument)
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
	r.HandleFunc("/api/runs", s.handleRuns).Methods("GET")
	r.HandleFunc("/api/predictions", s.tableHandler(ArtifactPredictions, cfg.PredictionsPath)).Methods("GET")
	r.HandleFunc("/api/features", s.tableHandler(ArtifactFeatures, cfg.FeaturesPath)).Methods("GET")
	r.HandleFunc("/api/summary", s.handleSummary).Methods("GET")
	r.HandleFunc("/api/model", s.handleModel).Methods("GET")
	r.HandleFunc("/api/events", s.hub.ServeWS).Methods("GET")
	s.router = r

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.router }

// Hub returns the event hub.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) artifacts() map[string]string {
	return map[string]string{
		ArtifactFeatures:    s.cfg.FeaturesPath,
		ArtifactPredictions: s.cfg.PredictionsPath,
		ArtifactSummary:     s.cfg.SummaryPath,
		ArtifactModel:       s.cfg.ModelPath,
	}
}

// onArtifactChange drops stale cache entries and forwards the event.
func (s *Server) onArtifactChange(ev Event) {
	if n := s.cache.Purge(ev.Path); n > 0 {
		log.Debug().Str("path", ev.Path).Int("entries", n).Msg("Purged cached table")
	}
	log.Info().Str("artifact", ev.Artifact).Str("op", ev.Op).Msg("Artifact changed")
	s.hub.Broadcast(ev)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.hub.Run(ctx)
	if err := watchArtifacts(ctx, s.artifacts(), s.onArtifactChange); err != nil {
		log.Warn().Err(err).Msg("Artifact watcher disabled")
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("address", s.server.Addr).Msg("Starting API server")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("API server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown API server")
		return err
	}
	log.Info().Msg("API server stopped")
	return nil
}

// instrument counts requests by route template and status code.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if s.metrics == nil {
			return
		}
		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
