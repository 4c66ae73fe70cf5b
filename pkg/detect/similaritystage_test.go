package detect

import (
	"context"
	"strings"
	"testing"

	"github.com/tango-sec/scamscreener/pkg/rules"
	"github.com/tango-sec/scamscreener/pkg/similarity"
)

func TestSimilarityStageMatchesCorpusLine(t *testing.T) {
	detector, err := similarity.NewDetector(0.82)
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}
	if err := detector.LoadCorpus(context.Background(), nil); err != nil {
		t.Fatalf("load corpus: %v", err)
	}
	stage := NewSimilaritySignalStage(newTestView(nil), detector)

	event := NewMessageEvent("Copycat", "pay first and then ill give you the item i promise", 1_000, ChannelPM)
	signals := stage.CollectSignals(context.Background(), event)
	if len(signals) != 1 {
		t.Fatalf("expected one similarity signal, got %v", signals)
	}
	signal := signals[0]
	if signal.Source != SourceSimilarity || signal.RuleID != rules.RuleSimilarityMatch {
		t.Fatalf("signal = %+v", signal)
	}
	if signal.Weight != float64(rules.WeightSimilarityMatch) {
		t.Fatalf("weight = %v, want %d", signal.Weight, rules.WeightSimilarityMatch)
	}
	if !strings.Contains(signal.Evidence, "category=upfront_payment") {
		t.Fatalf("evidence = %q", signal.Evidence)
	}

	benign := NewMessageEvent("Friendly", "anyone want to run the new dungeon floor", 2_000, ChannelPublic)
	if got := stage.CollectSignals(context.Background(), benign); got != nil {
		t.Fatalf("benign chatter must not match, got %v", got)
	}
}

func TestSimilarityStageNilDetector(t *testing.T) {
	stage := NewSimilaritySignalStage(newTestView(nil), nil)
	event := NewMessageEvent("Anyone", "pay first and then ill give you the item", 1_000, ChannelPM)
	if got := stage.CollectSignals(context.Background(), event); got != nil {
		t.Fatalf("nil detector disables the stage, got %v", got)
	}
}
