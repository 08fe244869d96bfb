// Package storage keeps the run ledger of the forecasting pipeline.
// It uses BoltDB as the underlying storage engine: every stage run (cleaning,
// feature building, training, prediction, summary) is recorded with its
// inputs, outputs and outcome so the API server and operators can inspect
// pipeline history without re-reading artifacts.
package storage

import (
	"bytes"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const (
	dbFile     = "healthcast.db"
	runsBucket = "runs" // Bucket name for stage run records
)

// Store provides persistent storage for pipeline runs using BoltDB.
type Store struct {
	db *bbolt.DB // BoltDB database instance
}

// New opens the ledger in dataPath and creates the runs bucket.
// The directory must already exist.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, dbFile)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(runsBucket)); err != nil {
			return fmt.Errorf("create runs bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	if s.db == nil {
		return ""
	}
	return s.db.Path()
}

// Close closes the database. Closing twice is a no-op.
func (s *Store) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

func runKey(kind string, ts time.Time) []byte {
	return []byte(fmt.Sprintf("%s_%019d", kind, ts.UnixNano()))
}

func hasPrefix(data, prefix []byte) bool {
	return bytes.HasPrefix(data, prefix)
}

func compareKeys(a, b []byte) int {
	return bytes.Compare(a, b)
}
