package server

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"healthcast/internal/common"
	"healthcast/internal/ml"
)

const (
	defaultLimit = 100
	maxLimit     = 10000
)

// TableResponse is a filtered page of an artifact table.
type TableResponse struct {
	Artifact string              `json:"artifact"`
	Columns  []string            `json:"columns"`
	Total    int                 `json:"total"`
	Rows     []map[string]string `json:"rows"`
}

// ModelResponse describes the active model.
type ModelResponse struct {
	TrainedAt    string            `json:"trained_at"`
	FeatureNames []string          `json:"feature_names"`
	Params       ml.Params         `json:"params"`
	Rounds       int               `json:"rounds"`
	Importance   []ml.FeatureStats `json:"importance,omitempty"`
	Versions     []ml.ModelVersion `json:"versions,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseLimit reads ?limit=, defaulting to def and capping at maxLimit.
func parseLimit(r *http.Request, def int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	if n > maxLimit {
		n = maxLimit
	}
	return n, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":     "ok",
		"ws_clients": s.hub.Clients(),
		"artifacts":  s.artifactStatus(),
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) artifactStatus() map[string]bool {
	out := make(map[string]bool)
	for name, path := range s.artifacts() {
		if path == "" {
			continue
		}
		_, err := os.Stat(path)
		out[name] = err == nil
	}
	return out
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "run ledger not available")
		return
	}
	limit, ok := parseLimit(r, 50)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	runs, err := s.store.ListRuns(r.URL.Query().Get("kind"), limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list runs")
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// tableHandler serves a CSV artifact filtered by ?district= and paged by
// ?limit=.
func (s *Server) tableHandler(artifact, path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := parseLimit(r, defaultLimit)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		f, err := s.cache.Load(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				writeError(w, http.StatusNotFound, artifact+" not available")
				return
			}
			log.Error().Err(err).Str("artifact", artifact).Msg("Failed to load table")
			writeError(w, http.StatusInternalServerError, "failed to load "+artifact)
			return
		}

		district := strings.TrimSpace(r.URL.Query().Get("district"))
		col := f.Index(common.ColDistrict)
		resp := TableResponse{Artifact: artifact, Columns: f.Header, Rows: []map[string]string{}}
		for i, row := range f.Rows {
			if district != "" && (col < 0 || !strings.EqualFold(f.Cell(i, common.ColDistrict), district)) {
				continue
			}
			resp.Total++
			if len(resp.Rows) >= limit {
				continue
			}
			rec := make(map[string]string, len(f.Header))
			for c, name := range f.Header {
				if c < len(row) {
					rec[name] = row[c]
				}
			}
			resp.Rows = append(resp.Rows, rec)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	data, err := os.ReadFile(s.cfg.SummaryPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeError(w, http.StatusNotFound, "summary not available")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to read summary")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	a, err := ml.LoadArtifact(s.cfg.ModelPath)
	if err != nil {
		if errors.Is(err, ml.ErrModelMissing) {
			writeError(w, http.StatusNotFound, "model not trained")
			return
		}
		log.Error().Err(err).Msg("Failed to load model artifact")
		writeError(w, http.StatusInternalServerError, "failed to load model")
		return
	}

	resp := ModelResponse{
		TrainedAt:    a.TrainedAt.Format("2006-01-02T15:04:05Z07:00"),
		FeatureNames: a.FeatureNames,
		Params:       a.Params,
		Rounds:       len(a.Booster.Trees),
		Importance:   a.Importance,
	}
	if mm, err := ml.NewModelManager(s.cfg.ModelPath); err == nil {
		resp.Versions = mm.ListVersions()
	}
	writeJSON(w, http.StatusOK, resp)
}
