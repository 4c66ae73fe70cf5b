package detect

import (
	"testing"

	"github.com/tango-sec/scamscreener/pkg/config"
	"github.com/tango-sec/scamscreener/pkg/rules"
)

func resultWithScore(score float64) DetectionResult {
	return DetectionResult{
		TotalScore: score,
		Level:      rules.MapLevel(score),
		Signals:    []Signal{NewSignal(SourceRule, score, "e", rules.RuleSuspiciousLink, nil)},
	}
}

func TestDecisionStageThresholds(t *testing.T) {
	stage := NewDecisionStage(newTestView(nil), NewWarningDeduplicator())
	event := NewMessageEvent("Sender", "msg", 1_000, ChannelPublic)

	if stage.Decide(event, resultWithScore(0)).ShouldWarn {
		t.Fatalf("zero score never warns")
	}
	if stage.Decide(event, resultWithScore(25)).ShouldWarn {
		t.Fatalf("MEDIUM is below the default HIGH alert level")
	}
	if !stage.Decide(event, resultWithScore(45)).ShouldWarn {
		t.Fatalf("HIGH result should warn")
	}

	noRules := DetectionResult{
		TotalScore: 50,
		Level:      rules.LevelHigh,
		Signals:    []Signal{NewSignal(SourceAI, 50, "", "", nil)},
	}
	if stage.Decide(event, noRules).ShouldWarn {
		t.Fatalf("a result without triggered rules never warns")
	}
}

func TestDecisionStageDeduplication(t *testing.T) {
	stage := NewDecisionStage(newTestView(&config.Config{MinAlertLevel: "MEDIUM"}), NewWarningDeduplicator())
	event := NewMessageEvent("Repeat", "msg", 1_000, ChannelPublic)

	if !stage.Decide(event, resultWithScore(25)).ShouldWarn {
		t.Fatalf("first MEDIUM should warn")
	}
	if stage.Decide(event, resultWithScore(25)).ShouldWarn {
		t.Fatalf("repeat MEDIUM for the same sender should be suppressed")
	}
	if !stage.Decide(event, resultWithScore(45)).ShouldWarn {
		t.Fatalf("escalation to HIGH should warn again")
	}
	if stage.Decide(event, resultWithScore(50)).ShouldWarn {
		t.Fatalf("repeat HIGH should be suppressed")
	}

	other := NewMessageEvent("Someone", "msg", 2_000, ChannelPublic)
	if !stage.Decide(other, resultWithScore(25)).ShouldWarn {
		t.Fatalf("another sender tracks its own pairs")
	}

	stage.Reset()
	if !stage.Decide(event, resultWithScore(25)).ShouldWarn {
		t.Fatalf("reset should forget warned pairs")
	}
}

func TestDecisionStageBlankSender(t *testing.T) {
	stage := NewDecisionStage(newTestView(&config.Config{MinAlertLevel: "MEDIUM"}), NewWarningDeduplicator())
	anonymous := NewMessageEvent("", "msg", 1_000, ChannelPublic)
	if stage.Decide(anonymous, resultWithScore(80)).ShouldWarn {
		t.Fatalf("blank sender never warns")
	}
}
