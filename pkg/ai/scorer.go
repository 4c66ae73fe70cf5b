package ai

import (
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"sync/atomic"
)

// Result is one scoring outcome. Score is zero when the probability stayed
// below the trigger threshold.
type Result struct {
	Score       int
	Probability float64
	Triggered   bool
	Explanation string
}

// Scorer evaluates the linear model. The compiled weight snapshot sits
// behind an atomic pointer so ReloadModel swaps it without blocking
// concurrent scoring.
type Scorer struct {
	store ModelStore
	snap  atomic.Pointer[snapshot]
}

// NewScorer builds a scorer around a model store. A failing load degrades
// to the default model rather than erroring out.
func NewScorer(store ModelStore) *Scorer {
	s := &Scorer{store: store}
	s.ReloadModel()
	return s
}

// ReloadModel re-reads the store and swaps the snapshot. On load failure
// the previous snapshot stays; with no previous snapshot the defaults
// apply.
func (s *Scorer) ReloadModel() {
	model, err := s.store.Load()
	if err != nil {
		log.Printf("model load failed, keeping previous weights: %v", err)
		if s.snap.Load() == nil {
			s.snap.Store(compileSnapshot(DefaultModelWeights()))
		}
		return
	}
	s.snap.Store(compileSnapshot(model))
}

// Score runs the main head over the full feature vector.
func (s *Scorer) Score(context BehaviorContext, maxScore int, triggerProbability float64) Result {
	dense := ExtractDenseFeatures(context)
	w := s.snap.Load()

	linear := w.intercept
	for _, name := range DenseFeatureNames {
		if weight, ok := w.denseWeights[name]; ok {
			linear += dense[name] * weight
		}
	}
	for _, token := range ExtractFeatureTokens(context.Message) {
		if weight, ok := lookupTokenWeight(w.tokenWeights, token); ok {
			linear += weight
		}
	}

	probability := sigmoid(linear)
	triggered := probability >= clampProbability(triggerProbability)
	score := 0
	if triggered {
		score = int(math.Round(probability * float64(clampScore(maxScore))))
	}
	return Result{
		Score:       score,
		Probability: probability,
		Triggered:   triggered,
		Explanation: buildExplanation(context.Message, dense, w.denseWeights, w.tokenWeights, nil),
	}
}

// ScoreFunnelOnly runs the funnel head over its feature subset. Token
// features do not participate.
func (s *Scorer) ScoreFunnelOnly(context BehaviorContext, maxScore int, triggerProbability float64) Result {
	dense := ExtractDenseFeatures(context)
	w := s.snap.Load()

	linear := w.headIntercept
	for _, name := range FunnelDenseFeatureNames {
		if weight, ok := w.headWeights[name]; ok {
			linear += dense[name] * weight
		}
	}

	probability := sigmoid(linear)
	triggered := probability >= clampProbability(triggerProbability)
	score := 0
	if triggered {
		score = int(math.Round(probability * float64(clampScore(maxScore))))
	}
	return Result{
		Score:       score,
		Probability: probability,
		Triggered:   triggered,
		Explanation: buildExplanation(context.Message, dense, w.headWeights, nil, funnelDenseFeatureSet),
	}
}

func sigmoid(x float64) float64 {
	clamped := math.Max(-30.0, math.Min(30.0, x))
	return 1.0 / (1.0 + math.Exp(-clamped))
}

func clampScore(value int) int {
	return max(0, min(100, value))
}

func clampProbability(value float64) float64 {
	return math.Max(0.0, math.Min(1.0, value))
}

type contribution struct {
	label string
	value float64
}

// buildExplanation lists the top four contributions by magnitude. Dense
// entries only count when the feature fired; token entries contribute
// their raw weight.
func buildExplanation(
	message string,
	dense map[string]float64,
	denseWeights map[string]float64,
	tokenWeights map[string]float64,
	allowedDense map[string]struct{},
) string {
	var contributions []contribution
	for _, name := range DenseFeatureNames {
		if allowedDense != nil {
			if _, ok := allowedDense[name]; !ok {
				continue
			}
		}
		weight, ok := denseWeights[name]
		if !ok {
			continue
		}
		value := dense[name]
		if value <= 0 {
			continue
		}
		contributions = append(contributions, contribution{label: "dense " + name, value: value * weight})
	}

	if len(tokenWeights) > 0 {
		for _, token := range ExtractFeatureTokens(message) {
			if weight, ok := lookupTokenWeight(tokenWeights, token); ok {
				contributions = append(contributions, contribution{label: "token " + token, value: weight})
			}
		}
	}

	if len(contributions) == 0 {
		return "Top model factors: none"
	}

	sort.SliceStable(contributions, func(i, j int) bool {
		return math.Abs(contributions[i].value) > math.Abs(contributions[j].value)
	})
	limit := min(4, len(contributions))
	var text strings.Builder
	text.WriteString("Top model factors:")
	for _, c := range contributions[:limit] {
		fmt.Fprintf(&text, "\n- %s (%+.3f)", c.label, c.value)
	}
	return text.String()
}
