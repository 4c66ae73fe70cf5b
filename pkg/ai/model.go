package ai

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
)

// Token weight map bounds. Prune keeps the largest-magnitude entries.
const (
	DefaultMaxTokenWeights = 4096
	minTokenWeights        = 256
	maxTokenWeights        = 20_000
)

// DenseHead is the funnel-only scoring head. Missing weights fall back to
// the main dense weights at snapshot build time.
type DenseHead struct {
	Intercept           float64            `json:"intercept"`
	DenseFeatureWeights map[string]float64 `json:"dense_feature_weights"`
}

// ModelWeights is the on-disk model artifact.
type ModelWeights struct {
	Version             int                `json:"version"`
	Intercept           float64            `json:"intercept"`
	DenseFeatureWeights map[string]float64 `json:"dense_feature_weights"`
	TokenWeights        map[string]float64 `json:"token_weights"`
	MaxTokenWeights     int                `json:"max_token_weights"`
	FunnelHead          *DenseHead         `json:"funnel_head,omitempty"`
}

// DefaultModelWeights is the shipped starting model.
func DefaultModelWeights() ModelWeights {
	return ModelWeights{
		Version:             1,
		Intercept:           -2.10,
		DenseFeatureWeights: DefaultDenseWeights(),
		TokenWeights:        map[string]float64{},
		MaxTokenWeights:     DefaultMaxTokenWeights,
	}
}

// NormalizeMaxTokenWeights clamps the token map cap into its valid range.
func NormalizeMaxTokenWeights(value int) int {
	if value <= 0 {
		return DefaultMaxTokenWeights
	}
	if value < minTokenWeights {
		return minTokenWeights
	}
	if value > maxTokenWeights {
		return maxTokenWeights
	}
	return value
}

// PruneTokenWeights keeps the maxSize largest-magnitude token weights.
func PruneTokenWeights(weights map[string]float64, maxSize int) map[string]float64 {
	if len(weights) == 0 {
		return map[string]float64{}
	}
	if len(weights) <= maxSize {
		out := make(map[string]float64, len(weights))
		for token, weight := range weights {
			out[token] = weight
		}
		return out
	}

	type entry struct {
		token  string
		weight float64
	}
	ranked := make([]entry, 0, len(weights))
	for token, weight := range weights {
		ranked = append(ranked, entry{token: token, weight: weight})
	}
	sort.Slice(ranked, func(i, j int) bool {
		ai, aj := math.Abs(ranked[i].weight), math.Abs(ranked[j].weight)
		if ai != aj {
			return ai > aj
		}
		return ranked[i].token < ranked[j].token
	})
	out := make(map[string]float64, maxSize)
	for _, e := range ranked[:maxSize] {
		out[e.token] = e.weight
	}
	return out
}

// ModelStore loads and persists model artifacts.
type ModelStore interface {
	Load() (ModelWeights, error)
	Save(ModelWeights) error
}

// FileModelStore keeps the model as a JSON file. A missing file loads the
// defaults and writes them back so operators have something to edit.
type FileModelStore struct {
	Path string
}

var _ ModelStore = (*FileModelStore)(nil)

// Load reads the model file, creating it with defaults when absent.
func (s *FileModelStore) Load() (ModelWeights, error) {
	data, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		defaults := DefaultModelWeights()
		if saveErr := s.Save(defaults); saveErr != nil {
			return defaults, fmt.Errorf("seed model %s: %w", s.Path, saveErr)
		}
		return defaults, nil
	}
	if err != nil {
		return ModelWeights{}, fmt.Errorf("read model %s: %w", s.Path, err)
	}

	var model ModelWeights
	if err := json.Unmarshal(data, &model); err != nil {
		return ModelWeights{}, fmt.Errorf("parse model %s: %w", s.Path, err)
	}
	if model.TokenWeights == nil {
		model.TokenWeights = map[string]float64{}
	}
	return model, nil
}

// Save writes the model file, creating parent directories as needed.
func (s *FileModelStore) Save(model ModelWeights) error {
	data, err := json.MarshalIndent(model, "", "  ")
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	if dir := filepath.Dir(s.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create model dir %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(s.Path, data, 0o644); err != nil {
		return fmt.Errorf("write model %s: %w", s.Path, err)
	}
	return nil
}

// snapshot is the compiled, immutable form the scorer reads. Dense
// defaults and funnel-head fallbacks are resolved once here.
type snapshot struct {
	intercept     float64
	denseWeights  map[string]float64
	tokenWeights  map[string]float64
	headIntercept float64
	headWeights   map[string]float64
}

func compileSnapshot(model ModelWeights) *snapshot {
	dense := model.DenseFeatureWeights
	if dense == nil {
		dense = DefaultDenseWeights()
	}
	tokens := PruneTokenWeights(model.TokenWeights, NormalizeMaxTokenWeights(model.MaxTokenWeights))

	headIntercept := model.Intercept
	headWeights := DefaultFunnelDenseWeights()
	if head := model.FunnelHead; head != nil {
		if !math.IsNaN(head.Intercept) && !math.IsInf(head.Intercept, 0) {
			headIntercept = head.Intercept
		}
		for name, weight := range head.DenseFeatureWeights {
			if IsFunnelDenseFeature(name) {
				headWeights[name] = weight
			}
		}
	}
	for _, name := range FunnelDenseFeatureNames {
		if _, ok := headWeights[name]; !ok {
			headWeights[name] = dense[name]
		}
	}

	return &snapshot{
		intercept:     model.Intercept,
		denseWeights:  dense,
		tokenWeights:  tokens,
		headIntercept: headIntercept,
		headWeights:   headWeights,
	}
}
