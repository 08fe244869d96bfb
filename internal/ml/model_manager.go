package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"healthcast/internal/fsutil"
)

// ModelVersion is one archived training run.
type ModelVersion struct {
	Version   string       `json:"version"`
	Path      string       `json:"path"`
	CreatedAt time.Time    `json:"created_at"`
	Metrics   ModelMetrics `json:"metrics"`
	IsActive  bool         `json:"is_active"`
}

// ModelMetrics contains validation metrics of a model version.
type ModelMetrics struct {
	Accuracy        float64 `json:"accuracy"`
	F1Score         float64 `json:"f1_score"`
	Precision       float64 `json:"precision"`
	Recall          float64 `json:"recall"`
	PositiveRate    float64 `json:"positive_rate"`
	TrainingSamples int     `json:"training_samples"`
	Rounds          int     `json:"rounds"`
}

// DefaultMaxVersions bounds the archive size.
const DefaultMaxVersions = 10

const versionLayout = "20060102-150405.000000"

// ModelManager archives every trained artifact next to the active model
// and can restore an earlier one over it. The history is kept newest
// first in versions/model_versions.json.
type ModelManager struct {
	modelPath    string
	versionsDir  string
	versionsFile string
	maxVersions  int
	versions     []ModelVersion
	active       int // index into versions, -1 when none
}

// NewModelManager manages the history of the artifact at modelPath. An
// unreadable history is logged and replaced on the next write.
func NewModelManager(modelPath string) (*ModelManager, error) {
	dir := filepath.Join(filepath.Dir(modelPath), "versions")
	mm := &ModelManager{
		modelPath:    modelPath,
		versionsDir:  dir,
		versionsFile: filepath.Join(dir, "model_versions.json"),
		maxVersions:  DefaultMaxVersions,
		active:       -1,
	}
	if err := mm.load(); err != nil {
		log.Warn().Err(err).Str("file", mm.versionsFile).Msg("Failed to load model versions, starting fresh")
		mm.versions = nil
		mm.active = -1
	}
	return mm, nil
}

// SetMaxVersions changes how many archived artifacts are retained. Values
// below 2 keep rollback possible and are raised to 2.
func (mm *ModelManager) SetMaxVersions(n int) {
	if n < 2 {
		n = 2
	}
	mm.maxVersions = n
}

// AddVersion archives the artifact currently at the model path, makes the
// archive the active version and prunes the oldest archives beyond the
// retention limit.
func (mm *ModelManager) AddVersion(metrics ModelMetrics) (*ModelVersion, error) {
	now := time.Now().UTC()
	v := ModelVersion{
		Version:   now.Format(versionLayout),
		Path:      filepath.Join(mm.versionsDir, "model_"+now.Format(versionLayout)+".json"),
		CreatedAt: now,
		Metrics:   metrics,
	}
	if err := copyFile(mm.modelPath, v.Path); err != nil {
		return nil, fmt.Errorf("archive model: %w", err)
	}

	mm.versions = append([]ModelVersion{v}, mm.versions...)
	mm.setActive(0)
	mm.prune()
	if err := mm.save(); err != nil {
		return nil, err
	}
	return mm.GetCurrentVersion(), nil
}

// ActivateVersion validates an archived artifact and copies it over the
// active model.
func (mm *ModelManager) ActivateVersion(version string) error {
	idx := mm.indexOf(version)
	if idx < 0 {
		return fmt.Errorf("version %s not found", version)
	}
	archived := mm.versions[idx].Path
	if _, err := LoadArtifact(archived); err != nil {
		return fmt.Errorf("archived version %s is unusable: %w", version, err)
	}
	if err := copyFile(archived, mm.modelPath); err != nil {
		return fmt.Errorf("restore version %s: %w", version, err)
	}

	mm.setActive(idx)
	log.Info().Str("version", version).Str("file", mm.modelPath).Msg("Model version activated")
	return mm.save()
}

// Rollback activates the version trained just before the active one.
func (mm *ModelManager) Rollback() error {
	if mm.active < 0 {
		return errors.New("no active model version")
	}
	if mm.active+1 >= len(mm.versions) {
		return errors.New("no previous model version available for rollback")
	}
	return mm.ActivateVersion(mm.versions[mm.active+1].Version)
}

// GetCurrentVersion returns the active version, or nil.
func (mm *ModelManager) GetCurrentVersion() *ModelVersion {
	if mm.active < 0 {
		return nil
	}
	v := mm.versions[mm.active]
	return &v
}

// ListVersions returns all versions, newest first.
func (mm *ModelManager) ListVersions() []ModelVersion {
	return append([]ModelVersion(nil), mm.versions...)
}

// BestVersion returns the version with the highest outbreak-class F1, or
// nil when the history is empty.
func (mm *ModelManager) BestVersion() *ModelVersion {
	best := -1
	for i, v := range mm.versions {
		if best < 0 || v.Metrics.F1Score > mm.versions[best].Metrics.F1Score {
			best = i
		}
	}
	if best < 0 {
		return nil
	}
	v := mm.versions[best]
	return &v
}

func (mm *ModelManager) indexOf(version string) int {
	for i := range mm.versions {
		if mm.versions[i].Version == version {
			return i
		}
	}
	return -1
}

func (mm *ModelManager) setActive(idx int) {
	mm.active = idx
	for i := range mm.versions {
		mm.versions[i].IsActive = i == idx
	}
}

// prune drops the oldest inactive archives beyond maxVersions.
func (mm *ModelManager) prune() {
	for len(mm.versions) > mm.maxVersions {
		last := len(mm.versions) - 1
		if last == mm.active {
			return
		}
		if err := os.Remove(mm.versions[last].Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Warn().Err(err).Str("file", mm.versions[last].Path).Msg("Failed to remove archived model")
		}
		mm.versions = mm.versions[:last]
	}
}

func (mm *ModelManager) load() error {
	data, err := os.ReadFile(mm.versionsFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := json.Unmarshal(data, &mm.versions); err != nil {
		return err
	}

	sort.SliceStable(mm.versions, func(i, j int) bool {
		return mm.versions[i].CreatedAt.After(mm.versions[j].CreatedAt)
	})
	for i := range mm.versions {
		if mm.versions[i].IsActive {
			mm.active = i
			break
		}
	}
	return nil
}

func (mm *ModelManager) save() error {
	return fsutil.WriteAtomic(mm.versionsFile, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(mm.versions)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	return fsutil.WriteAtomic(dst, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	})
}
