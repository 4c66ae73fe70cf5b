package ai

import (
	"math"
	"testing"
)

func TestExtractDenseFeatures(t *testing.T) {
	context := BehaviorContext{
		Message:               "pay now on www.site.com!!!",
		Channel:               "pm",
		DeltaMs:               60_000,
		RequestsSensitiveData: true,
		FunnelStepIndex:       2,
		RuleHits:              5,
	}
	dense := ExtractDenseFeatures(context)

	checks := map[string]float64{
		"kw_payment":                  1.0,
		"kw_urgency":                  1.0,
		"kw_account":                  0.0,
		"has_link":                    1.0,
		"has_suspicious_punctuation":  1.0,
		"ctx_requests_sensitive_data": 1.0,
		"channel_pm":                  1.0,
		"channel_public":              0.0,
		"funnel_step_norm":            0.5,
		"rapid_followup":              0.5,
		"rule_hits_norm":              1.0,
	}
	for name, want := range checks {
		if got := dense[name]; math.Abs(got-want) > 1e-9 {
			t.Errorf("%s = %v, want %v", name, got, want)
		}
	}
}

func TestExtractDenseFeaturesNoTimingSignal(t *testing.T) {
	dense := ExtractDenseFeatures(BehaviorContext{Message: "hello"})
	if dense["rapid_followup"] != 0.0 {
		t.Fatalf("zero delta means no followup signal, got %v", dense["rapid_followup"])
	}
}

func TestRepeatedContactThreshold(t *testing.T) {
	two := ExtractDenseFeatures(BehaviorContext{RepeatedContactAttempts: 2})
	three := ExtractDenseFeatures(BehaviorContext{RepeatedContactAttempts: 3})
	if two["ctx_repeated_contact_3plus"] != 0.0 || three["ctx_repeated_contact_3plus"] != 1.0 {
		t.Fatalf("repeated contact fires at 3, got %v / %v",
			two["ctx_repeated_contact_3plus"], three["ctx_repeated_contact_3plus"])
	}
}

func TestDefaultFunnelDenseWeights(t *testing.T) {
	head := DefaultFunnelDenseWeights()
	if len(head) != len(FunnelDenseFeatureNames) {
		t.Fatalf("head should cover exactly the funnel subset, got %d entries", len(head))
	}
	defaults := DefaultDenseWeights()
	for _, name := range FunnelDenseFeatureNames {
		if head[name] != defaults[name] {
			t.Errorf("%s = %v, want %v", name, head[name], defaults[name])
		}
	}
	if _, ok := head["kw_account"]; ok {
		t.Fatalf("main-head features must not leak into the funnel head")
	}
}

func TestIsFunnelDenseFeature(t *testing.T) {
	if !IsFunnelDenseFeature("funnel_full_chain") {
		t.Fatalf("funnel_full_chain belongs to the head")
	}
	if IsFunnelDenseFeature("kw_account") {
		t.Fatalf("kw_account does not belong to the head")
	}
}
