package detect

import (
	"testing"

	"github.com/tango-sec/scamscreener/pkg/config"
	"github.com/tango-sec/scamscreener/pkg/rules"
)

func TestBehaviorStageFlagMapping(t *testing.T) {
	stage := NewBehaviorSignalStage(newTestView(nil))

	analysis := BehaviorAnalysis{
		PushesExternalPlatform:      true,
		DemandsUpfrontPayment:       true,
		RequestsSensitiveData:       true,
		ClaimsMiddlemanWithoutProof: true,
		RepeatedContactCount:        1,
	}
	signals := stage.CollectSignals(analysis, false)
	if len(signals) != 4 {
		t.Fatalf("expected 4 signals, got %d: %v", len(signals), signals)
	}

	wantWeights := map[rules.RuleID]float64{
		rules.RuleExternalPlatform:   15,
		rules.RuleUpfrontPayment:     25,
		rules.RuleAccountDataRequest: 35,
		rules.RuleFakeMiddleman:      20,
	}
	for ruleID, weight := range wantWeights {
		signal, ok := findSignal(signals, ruleID)
		if !ok {
			t.Errorf("missing %s signal", ruleID)
			continue
		}
		if signal.Weight != weight || signal.Source != SourceBehavior {
			t.Errorf("%s: weight=%v source=%s", ruleID, signal.Weight, signal.Source)
		}
	}
}

func TestBehaviorStageSkipExternalPlatform(t *testing.T) {
	stage := NewBehaviorSignalStage(newTestView(nil))
	analysis := BehaviorAnalysis{PushesExternalPlatform: true}

	if signals := stage.CollectSignals(analysis, true); len(signals) != 0 {
		t.Fatalf("platform flag should be suppressed, got %v", signals)
	}
	if signals := stage.CollectSignals(analysis, false); len(signals) != 1 {
		t.Fatalf("platform flag should emit when not suppressed, got %v", signals)
	}
}

func TestBehaviorStageSpammyContactThreshold(t *testing.T) {
	stage := NewBehaviorSignalStage(newTestView(nil))

	streak := []string{"one", "two", "three"}
	analysis := BehaviorAnalysis{RepeatedContactCount: 2, StreakMessages: streak[:2]}
	if signals := stage.CollectSignals(analysis, false); len(signals) != 0 {
		t.Fatalf("streak of 2 should stay quiet, got %v", signals)
	}

	analysis = BehaviorAnalysis{RepeatedContactCount: 3, StreakMessages: streak}
	signals := stage.CollectSignals(analysis, false)
	signal, ok := findSignal(signals, rules.RuleSpammyContact)
	if !ok {
		t.Fatalf("streak of 3 should trigger, got %v", signals)
	}
	if signal.Weight != 10 {
		t.Errorf("weight = %v, want 10", signal.Weight)
	}
	if len(signal.RelatedMessages) != 3 {
		t.Errorf("streak messages should travel as evidence, got %v", signal.RelatedMessages)
	}
}

func TestBehaviorStageDisabledRules(t *testing.T) {
	stage := NewBehaviorSignalStage(newTestView(&config.Config{
		DisabledRules: []string{"UPFRONT_PAYMENT", "ACCOUNT_DATA_REQUEST"},
	}))
	analysis := BehaviorAnalysis{DemandsUpfrontPayment: true, RequestsSensitiveData: true}
	if signals := stage.CollectSignals(analysis, false); len(signals) != 0 {
		t.Fatalf("disabled rules should emit nothing, got %v", signals)
	}
}
