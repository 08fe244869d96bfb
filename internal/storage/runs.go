package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

// Run kinds
const (
	KindClean    = "clean"
	KindFeatures = "features"
	KindTrain    = "train"
	KindPredict  = "predict"
	KindSummary  = "summary"
)

// Run statuses
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("storage: store is closed")

// TrainingSummary is the evaluation outcome of a training run.
type TrainingSummary struct {
	Rounds        int     `json:"rounds"`
	EarlyStopped  bool    `json:"early_stopped"`
	TrainRows     int     `json:"train_rows"`
	ValidRows     int     `json:"valid_rows"`
	PositiveRatio float64 `json:"positive_ratio"`
	Accuracy      float64 `json:"accuracy"`
	OutbreakF1    float64 `json:"outbreak_f1"`
	ModelVersion  string  `json:"model_version,omitempty"`
}

// Run is one pipeline stage execution.
type Run struct {
	ID          string           `json:"id"`
	Kind        string           `json:"kind"`
	StartedAt   time.Time        `json:"started_at"`
	FinishedAt  time.Time        `json:"finished_at"`
	Status      string           `json:"status"`
	Error       string           `json:"error,omitempty"`
	Inputs      []string         `json:"inputs,omitempty"`
	Output      string           `json:"output,omitempty"`
	Rows        int              `json:"rows"`
	Columns     int              `json:"columns,omitempty"`
	Skipped     map[string]int   `json:"skipped,omitempty"`
	Training    *TrainingSummary `json:"training,omitempty"`
	Predictions map[string]int   `json:"predictions,omitempty"`
}

// Duration is the wall time of the run.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// RecordRun stores a run keyed "kind_<unixnano of StartedAt>".
// A missing ID or start time is filled in and the stored run is returned.
func (s *Store) RecordRun(run Run) (Run, error) {
	if s.db == nil {
		return run, ErrClosed
	}
	if run.Kind == "" {
		return run, errors.New("storage: run kind is required")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(runsBucket))

		data, err := json.Marshal(run)
		if err != nil {
			return fmt.Errorf("marshal run: %w", err)
		}
		return b.Put(runKey(run.Kind, run.StartedAt), data)
	})
	return run, err
}

// ListRuns returns runs of kind, newest first. An empty kind lists all
// kinds; limit <= 0 returns everything.
func (s *Store) ListRuns(kind string, limit int) ([]Run, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	var runs []Run

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(runsBucket)).Cursor()

		var prefix []byte
		if kind != "" {
			prefix = []byte(kind + "_")
		}
		k, v := c.First()
		if prefix != nil {
			k, v = c.Seek(prefix)
		}
		for ; k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var run Run
			if err := json.Unmarshal(v, &run); err != nil {
				continue // Skip malformed records
			}
			runs = append(runs, run)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// LatestRun returns the newest run of kind, or false when none exists.
func (s *Store) LatestRun(kind string) (Run, bool, error) {
	runs, err := s.ListRuns(kind, 1)
	if err != nil || len(runs) == 0 {
		return Run{}, false, err
	}
	return runs[0], true, nil
}

// RunsBetween returns runs of kind started within [start, end], oldest
// first.
func (s *Store) RunsBetween(kind string, start, end time.Time) ([]Run, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	var runs []Run

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(runsBucket)).Cursor()

		prefix := []byte(kind + "_")
		startKey := runKey(kind, start)
		endKey := runKey(kind, end)

		for k, v := c.Seek(startKey); k != nil && compareKeys(k, endKey) <= 0; k, v = c.Next() {
			if !hasPrefix(k, prefix) {
				continue
			}
			var run Run
			if err := json.Unmarshal(v, &run); err != nil {
				continue
			}
			runs = append(runs, run)
		}
		return nil
	})
	return runs, err
}
