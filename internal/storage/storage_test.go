package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNew(t *testing.T) {
	tempDir := t.TempDir()

	store, err := New(tempDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	if store.db == nil {
		t.Error("Store database is nil")
	}

	dbPath := filepath.Join(tempDir, "healthcast.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
	assert.Equal(t, dbPath, store.Path())
}

func TestNew_InvalidPath(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing", "dir"))
	if err == nil {
		t.Error("Expected error for invalid path, got nil")
	}
}

func TestStore_Close(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Errorf("Error closing store: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("Error closing already closed store: %v", err)
	}

	_, err = store.RecordRun(Run{Kind: KindTrain})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = store.ListRuns("", 0)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRecordRun_FillsDefaults(t *testing.T) {
	store := newStore(t)

	run, err := store.RecordRun(Run{Kind: KindClean, Status: StatusSucceeded, Rows: 10})
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.False(t, run.StartedAt.IsZero())

	latest, ok, err := store.LatestRun(KindClean)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, run.ID, latest.ID)
	assert.Equal(t, 10, latest.Rows)

	_, err = store.RecordRun(Run{})
	assert.Error(t, err)
}

func TestListRuns(t *testing.T) {
	store := newStore(t)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	records := []Run{
		{Kind: KindTrain, StartedAt: base, Status: StatusSucceeded},
		{Kind: KindPredict, StartedAt: base.Add(time.Minute), Status: StatusSucceeded,
			Predictions: map[string]int{"Outbreak": 3, "No outbreak": 7}},
		{Kind: KindTrain, StartedAt: base.Add(2 * time.Minute), Status: StatusFailed, Error: "boom",
			Training: &TrainingSummary{Rounds: 12, Accuracy: 0.9}},
	}
	for _, r := range records {
		_, err := store.RecordRun(r)
		require.NoError(t, err)
	}

	t.Run("by kind newest first", func(t *testing.T) {
		runs, err := store.ListRuns(KindTrain, 0)
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, StatusFailed, runs[0].Status)
		assert.Equal(t, 12, runs[0].Training.Rounds)
		assert.Equal(t, StatusSucceeded, runs[1].Status)
	})

	t.Run("all kinds", func(t *testing.T) {
		runs, err := store.ListRuns("", 0)
		require.NoError(t, err)
		require.Len(t, runs, 3)
		assert.Equal(t, KindTrain, runs[0].Kind)
		assert.Equal(t, KindPredict, runs[1].Kind)
		assert.Equal(t, 3, runs[1].Predictions["Outbreak"])
	})

	t.Run("limit", func(t *testing.T) {
		runs, err := store.ListRuns("", 1)
		require.NoError(t, err)
		assert.Len(t, runs, 1)
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, ok, err := store.LatestRun(KindSummary)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestRunsBetween(t *testing.T) {
	store := newStore(t)
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_, err := store.RecordRun(Run{Kind: KindFeatures, StartedAt: base.Add(time.Duration(i) * time.Hour), Rows: i})
		require.NoError(t, err)
	}
	_, err := store.RecordRun(Run{Kind: "featuresx", StartedAt: base.Add(time.Hour)})
	require.NoError(t, err)

	runs, err := store.RunsBetween(KindFeatures, base.Add(time.Hour), base.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, 1, runs[0].Rows)
	assert.Equal(t, 3, runs[2].Rows)
}

func TestRun_Duration(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Duration(0), Run{StartedAt: start}.Duration())
	assert.Equal(t, 3*time.Second, Run{StartedAt: start, FinishedAt: start.Add(3 * time.Second)}.Duration())
}
