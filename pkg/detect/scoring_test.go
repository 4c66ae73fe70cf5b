package detect

import (
	"reflect"
	"testing"

	"github.com/tango-sec/scamscreener/pkg/config"
	"github.com/tango-sec/scamscreener/pkg/rules"
)

func TestScoringStageSumsAndLevels(t *testing.T) {
	stage := NewScoringStage(newTestView(nil))
	event := NewMessageEvent("Sender", "message", 1_000, ChannelPublic)

	signals := []Signal{
		NewSignal(SourceRule, 20, "a", rules.RuleSuspiciousLink, nil),
		NewSignal(SourceBehavior, 25, "b", rules.RuleUpfrontPayment, nil),
	}
	result := stage.Score(event, signals)
	if result.TotalScore != 45 {
		t.Fatalf("total = %v, want 45", result.TotalScore)
	}
	if result.Level != rules.LevelHigh {
		t.Fatalf("level = %v, want HIGH", result.Level)
	}
}

func TestScoringStageTrendCap(t *testing.T) {
	stage := NewScoringStage(newTestView(nil))
	event := NewMessageEvent("Sender", "message", 1_000, ChannelPublic)

	withTrend := []Signal{
		NewSignal(SourceRule, 50, "a", rules.RuleAccountDataRequest, nil),
		NewSignal(SourceRule, 40, "b", rules.RuleDiscordHandle, nil),
		NewSignal(SourceTrend, 20, "c", rules.RuleMultiMessageTrend, nil),
	}
	if got := stage.Score(event, withTrend).TotalScore; got != 100 {
		t.Fatalf("trend bonus should cap the total at 100, got %v", got)
	}

	withoutTrend := []Signal{
		NewSignal(SourceRule, 50, "a", rules.RuleAccountDataRequest, nil),
		NewSignal(SourceRule, 40, "b", rules.RuleDiscordHandle, nil),
		NewSignal(SourceSimilarity, 30, "c", rules.RuleSimilarityMatch, nil),
	}
	if got := stage.Score(event, withoutTrend).TotalScore; got != 120 {
		t.Fatalf("without a trend signal the total is uncapped, got %v", got)
	}
}

func TestScoringStageMergesRuleDetails(t *testing.T) {
	stage := NewScoringStage(newTestView(nil))
	event := NewMessageEvent("Sender", "message", 1_000, ChannelPublic)

	signals := []Signal{
		NewSignal(SourceRule, 25, "pattern match", rules.RuleUpfrontPayment, nil),
		NewSignal(SourceBehavior, 25, "behavior flag", rules.RuleUpfrontPayment, nil),
		NewSignal(SourceRule, -3, "", "", nil),
	}
	result := stage.Score(event, signals)

	if got := result.RuleDetails[rules.RuleUpfrontPayment]; got != "pattern match\nbehavior flag" {
		t.Fatalf("merged detail = %q", got)
	}
	if len(result.RuleDetails) != 1 {
		t.Fatalf("anonymous signals should not appear in details: %v", result.RuleDetails)
	}
	if result.TotalScore != 47 {
		t.Fatalf("negative weights should subtract, got %v", result.TotalScore)
	}
}

func TestScoringStageEvaluatedMessages(t *testing.T) {
	stage := NewScoringStage(newTestView(nil))
	event := NewMessageEvent("Sender", "the raw line", 1_000, ChannelPublic)

	related := NewSignal(SourceTrend, 20, "d", rules.RuleMultiMessageTrend, []string{"m1", "m2"})
	result := stage.Score(event, []Signal{related})
	if len(result.EvaluatedMessages) != 2 {
		t.Fatalf("expected related messages, got %v", result.EvaluatedMessages)
	}

	plain := NewSignal(SourceRule, 20, "e", rules.RuleSuspiciousLink, nil)
	result = stage.Score(event, []Signal{plain})
	if len(result.EvaluatedMessages) != 1 || result.EvaluatedMessages[0] != "the raw line" {
		t.Fatalf("expected raw-message fallback, got %v", result.EvaluatedMessages)
	}
}

func TestScoringStageAutoCapture(t *testing.T) {
	event := NewMessageEvent("Sender", "message", 1_000, ChannelPublic)
	ruleSig := func(w float64) []Signal {
		return []Signal{NewSignal(SourceRule, w, "a", rules.RuleSuspiciousLink, nil)}
	}

	stage := NewScoringStage(newTestView(nil))
	if !stage.Score(event, ruleSig(45)).ShouldAutoCapture {
		t.Fatalf("HIGH result with rules should capture")
	}
	if stage.Score(event, ruleSig(25)).ShouldAutoCapture {
		t.Fatalf("MEDIUM is below the default HIGH capture level")
	}
	anonymous := []Signal{NewSignal(SourceAI, 45, "", "", nil)}
	if stage.Score(event, anonymous).ShouldAutoCapture {
		t.Fatalf("no triggered rules means no capture")
	}

	off := NewScoringStage(newTestView(&config.Config{AutoCaptureLevel: "OFF"}))
	if off.Score(event, ruleSig(90)).ShouldAutoCapture {
		t.Fatalf("capture OFF should win over any score")
	}

	medium := NewScoringStage(newTestView(&config.Config{AutoCaptureLevel: "MEDIUM"}))
	if !medium.Score(event, ruleSig(25)).ShouldAutoCapture {
		t.Fatalf("MEDIUM capture level should accept a MEDIUM result")
	}
}

func TestScoringStageDeduplicatesEvaluatedMessages(t *testing.T) {
	stage := NewScoringStage(newTestView(nil))
	event := NewMessageEvent("Sender", "raw line", 1_000, ChannelPublic)

	signals := []Signal{
		NewSignal(SourceTrend, 20, "a", rules.RuleMultiMessageTrend, []string{"m1", "m2", "m1"}),
		NewSignal(SourceFunnel, 14, "b", rules.RuleFunnelSequence, []string{"m2", "m3"}),
	}
	result := stage.Score(event, signals)

	want := []string{"m1", "m2", "m3"}
	if !reflect.DeepEqual(result.EvaluatedMessages, want) {
		t.Fatalf("evaluated messages = %v, want %v", result.EvaluatedMessages, want)
	}
}
