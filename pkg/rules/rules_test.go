package rules

import "testing"

func TestParseRuleID(t *testing.T) {
	testCases := []struct {
		input string
		want  RuleID
		ok    bool
	}{
		{"SUSPICIOUS_LINK", RuleSuspiciousLink, true},
		{"suspicious_link", RuleSuspiciousLink, true},
		{"  Upfront_Payment ", RuleUpfrontPayment, true},
		{"local_ai_funnel_signal", RuleLocalAiFunnel, true},
		{"NOT_A_RULE", "", false},
		{"", "", false},
	}
	for _, tc := range testCases {
		got, ok := ParseRuleID(tc.input)
		if got != tc.want || ok != tc.ok {
			t.Errorf("ParseRuleID(%q) = (%q, %v), want (%q, %v)", tc.input, got, ok, tc.want, tc.ok)
		}
	}
}

func TestMapLevelBoundaries(t *testing.T) {
	testCases := []struct {
		score float64
		want  RiskLevel
	}{
		{0, LevelLow},
		{19, LevelLow},
		{20, LevelMedium},
		{39, LevelMedium},
		{40, LevelHigh},
		{69, LevelHigh},
		{70, LevelCritical},
		{150, LevelCritical},
	}
	for _, tc := range testCases {
		if got := MapLevel(tc.score); got != tc.want {
			t.Errorf("MapLevel(%v) = %v, want %v", tc.score, got, tc.want)
		}
	}
}

func TestParseRiskLevel(t *testing.T) {
	if got := ParseRiskLevel("critical", LevelLow); got != LevelCritical {
		t.Fatalf("expected CRITICAL, got %v", got)
	}
	if got := ParseRiskLevel(" medium ", LevelLow); got != LevelMedium {
		t.Fatalf("expected MEDIUM, got %v", got)
	}
	if got := ParseRiskLevel("bogus", LevelHigh); got != LevelHigh {
		t.Fatalf("expected fallback HIGH, got %v", got)
	}
	if got := ParseRiskLevel("", LevelMedium); got != LevelMedium {
		t.Fatalf("expected fallback MEDIUM, got %v", got)
	}
}

func TestRiskLevelString(t *testing.T) {
	names := map[RiskLevel]string{
		LevelLow:      "LOW",
		LevelMedium:   "MEDIUM",
		LevelHigh:     "HIGH",
		LevelCritical: "CRITICAL",
	}
	for level, want := range names {
		if got := level.String(); got != want {
			t.Errorf("RiskLevel(%d).String() = %q, want %q", level, got, want)
		}
		if ParseRiskLevel(want, LevelLow) != level {
			t.Errorf("ParseRiskLevel(%q) did not round-trip", want)
		}
	}
}

func TestDefaultPatternSetMatches(t *testing.T) {
	patterns := DefaultPatternSet()
	if !patterns.Link.MatchString("check www.freestuff.com out") {
		t.Fatalf("link pattern should match www. URLs")
	}
	if !patterns.Link.MatchString("join discord.gg/abc") {
		t.Fatalf("link pattern should match discord invites")
	}
	if !patterns.PaymentFirst.MatchString("you pay first then item") {
		t.Fatalf("payment-first pattern should match")
	}
	if !patterns.AccountData.MatchString("give me the code please") {
		t.Fatalf("account pattern should match give..code phrasing")
	}
	if patterns.AccountData.MatchString("nice encode there") {
		t.Fatalf("account pattern should not match inside words")
	}
}

func TestCompilePatternSetFallback(t *testing.T) {
	patterns := CompilePatternSet("(", "", "", "", "", "")
	if !patterns.Link.MatchString("https://example.com") {
		t.Fatalf("bad link override should fall back to the default pattern")
	}
}
