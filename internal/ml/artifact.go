package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"healthcast/internal/fsutil"
)

// FormatVersion is bumped whenever the artifact layout changes.
const FormatVersion = 1

// ErrModelMissing means prediction was attempted before any training run.
var ErrModelMissing = errors.New("model artifact not found: train the model first")

// Artifact is the persisted classifier together with its input schema.
// FeatureNames is the column order the booster was fitted on.
type Artifact struct {
	FormatVersion int                            `json:"format_version"`
	TrainedAt     time.Time                      `json:"trained_at"`
	FeatureNames  []string                       `json:"feature_names"`
	Params        Params                         `json:"params"`
	Importance    []FeatureStats                 `json:"importance,omitempty"`
	Baseline      map[string]FeatureDistribution `json:"baseline,omitempty"`
	Booster       *Booster                       `json:"booster"`
}

// SaveArtifact replaces the artifact at path atomically.
func SaveArtifact(path string, a *Artifact) error {
	if a.Booster == nil {
		return errors.New("artifact has no booster")
	}
	return fsutil.WriteAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(a)
	})
}

// LoadArtifact reads and validates an artifact. A missing file yields an
// error wrapping ErrModelMissing.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w (%s)", ErrModelMissing, path)
		}
		return nil, fmt.Errorf("read model artifact: %w", err)
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode model artifact %s: %w", path, err)
	}
	if a.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("model artifact %s has format version %d, want %d", path, a.FormatVersion, FormatVersion)
	}
	if a.Booster == nil {
		return nil, fmt.Errorf("model artifact %s has no booster", path)
	}
	if len(a.FeatureNames) != a.Booster.NumFeatures {
		return nil, fmt.Errorf("model artifact %s lists %d features for a %d-feature booster",
			path, len(a.FeatureNames), a.Booster.NumFeatures)
	}
	return &a, nil
}
