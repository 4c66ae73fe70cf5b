package detect

import (
	"context"
	"fmt"
	"log"

	"github.com/tango-sec/scamscreener/pkg/rules"
	"github.com/tango-sec/scamscreener/pkg/similarity"
)

// SimilaritySignalStage emits a signal when the message confirms against
// the known-scam-line corpus. A nil detector disables the stage.
type SimilaritySignalStage struct {
	ruleConfig rules.Config
	detector   *similarity.Detector
}

// NewSimilaritySignalStage creates the stage.
func NewSimilaritySignalStage(ruleConfig rules.Config, detector *similarity.Detector) *SimilaritySignalStage {
	return &SimilaritySignalStage{ruleConfig: ruleConfig, detector: detector}
}

// CollectSignals looks the message up in the corpus. Lookup failures are
// logged and swallowed so a broken corpus never blocks the pipeline.
func (s *SimilaritySignalStage) CollectSignals(ctx context.Context, event MessageEvent) []Signal {
	if s.detector == nil || !s.ruleConfig.IsEnabled(rules.RuleSimilarityMatch) {
		return nil
	}
	match, found, err := s.detector.Match(ctx, event.RawMessage)
	if err != nil {
		log.Printf("similarity lookup failed: %v", err)
		return nil
	}
	if !found {
		return nil
	}
	evidence := fmt.Sprintf("Known scam line match ratio=%.2f, category=%s: %q (+%d)",
		match.Ratio, match.Category, match.KnownLine, rules.WeightSimilarityMatch)
	return []Signal{NewSignal(SourceSimilarity, float64(rules.WeightSimilarityMatch), evidence, rules.RuleSimilarityMatch, nil)}
}
