package ai

import (
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestNormalizeMaxTokenWeights(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, DefaultMaxTokenWeights},
		{-5, DefaultMaxTokenWeights},
		{100, 256},
		{1_000, 1_000},
		{50_000, 20_000},
	}
	for _, tt := range tests {
		if got := NormalizeMaxTokenWeights(tt.in); got != tt.want {
			t.Errorf("NormalizeMaxTokenWeights(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestPruneTokenWeights(t *testing.T) {
	weights := map[string]float64{"a": 1, "b": -2, "c": 3, "d": 0.5, "e": -3}

	pruned := PruneTokenWeights(weights, 3)
	want := map[string]float64{"b": -2, "c": 3, "e": -3}
	if !reflect.DeepEqual(pruned, want) {
		t.Fatalf("pruned = %v, want %v", pruned, want)
	}

	// Under the cap the map is copied, not shared.
	copied := PruneTokenWeights(weights, 10)
	copied["a"] = 99
	if weights["a"] != 1 {
		t.Fatalf("prune must not alias the input map")
	}

	if got := PruneTokenWeights(nil, 3); len(got) != 0 || got == nil {
		t.Fatalf("nil input should yield an empty map, got %v", got)
	}
}

func TestFileModelStoreSeedsMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	store := &FileModelStore{Path: path}

	model, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	defaults := DefaultModelWeights()
	if model.Intercept != defaults.Intercept || model.Version != defaults.Version {
		t.Fatalf("missing file should load defaults, got %+v", model)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("defaults should be written back: %v", err)
	}
}

func TestFileModelStoreRoundTrip(t *testing.T) {
	store := &FileModelStore{Path: filepath.Join(t.TempDir(), "sub", "model.json")}
	in := ModelWeights{
		Version:             4,
		Intercept:           -1.5,
		DenseFeatureWeights: map[string]float64{"kw_account": 2.0},
		TokenWeights:        map[string]float64{"kw:free": 0.9},
		MaxTokenWeights:     512,
	}
	if err := store.Save(in); err != nil {
		t.Fatalf("save: %v", err)
	}
	out, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip mismatch: %+v vs %+v", in, out)
	}
}

func TestFileModelStoreRejectsBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	store := &FileModelStore{Path: path}
	if _, err := store.Load(); err == nil {
		t.Fatalf("corrupt file should fail to load")
	}
}

func TestCompileSnapshotDenseFallback(t *testing.T) {
	snap := compileSnapshot(ModelWeights{Intercept: -2.0})
	if snap.denseWeights["kw_account"] != 1.1 {
		t.Fatalf("nil dense weights should fall back to defaults, got %v", snap.denseWeights["kw_account"])
	}
	if snap.headIntercept != -2.0 {
		t.Fatalf("without a funnel head the main intercept applies, got %v", snap.headIntercept)
	}
}

func TestCompileSnapshotFunnelHead(t *testing.T) {
	model := ModelWeights{
		Intercept:           -2.0,
		DenseFeatureWeights: map[string]float64{},
		FunnelHead: &DenseHead{
			Intercept: math.NaN(),
			DenseFeatureWeights: map[string]float64{
				"funnel_full_chain": 3.0,
				"kw_account":        9.9,
			},
		},
	}
	snap := compileSnapshot(model)

	if snap.headIntercept != -2.0 {
		t.Errorf("NaN head intercept should fall back to the main intercept, got %v", snap.headIntercept)
	}
	if snap.headWeights["funnel_full_chain"] != 3.0 {
		t.Errorf("head override lost: %v", snap.headWeights["funnel_full_chain"])
	}
	if _, ok := snap.headWeights["kw_account"]; ok {
		t.Errorf("non-funnel features must not enter the head")
	}
	if snap.headWeights["funnel_partial_chain"] != 0.45 {
		t.Errorf("unset head weights keep the shipped defaults, got %v", snap.headWeights["funnel_partial_chain"])
	}
}
