// Package rules defines the closed set of detection rules, their default
// regex patterns and weights, and the read-only configuration capability
// the pipeline stages consult on every event.
package rules

import "strings"

// RuleID names one independently toggleable detection category. One or more
// stages can emit signals carrying the same RuleID; scoring merges their
// evidence into a single entry.
type RuleID string

const (
	RuleSuspiciousLink     RuleID = "SUSPICIOUS_LINK"
	RulePressureUrgency    RuleID = "PRESSURE_AND_URGENCY"
	RuleUpfrontPayment     RuleID = "UPFRONT_PAYMENT"
	RuleAccountDataRequest RuleID = "ACCOUNT_DATA_REQUEST"
	RuleExternalPlatform   RuleID = "EXTERNAL_PLATFORM_PUSH"
	RuleFakeMiddleman      RuleID = "FAKE_MIDDLEMAN_CLAIM"
	RuleTooGoodToBeTrue    RuleID = "TOO_GOOD_TO_BE_TRUE"
	RuleTrustManipulation  RuleID = "TRUST_MANIPULATION"
	RuleSpammyContact      RuleID = "SPAMMY_CONTACT_PATTERN"
	RuleMultiMessageTrend  RuleID = "MULTI_MESSAGE_PATTERN"
	RuleFunnelSequence     RuleID = "FUNNEL_SEQUENCE_PATTERN"
	RuleDiscordHandle      RuleID = "DISCORD_HANDLE"
	RuleSimilarityMatch    RuleID = "SIMILARITY_MATCH"
	RuleLocalAiRisk        RuleID = "LOCAL_AI_RISK_SIGNAL"
	RuleLocalAiFunnel      RuleID = "LOCAL_AI_FUNNEL_SIGNAL"
)

// AllRules lists every rule in declaration order.
var AllRules = []RuleID{
	RuleSuspiciousLink,
	RulePressureUrgency,
	RuleUpfrontPayment,
	RuleAccountDataRequest,
	RuleExternalPlatform,
	RuleFakeMiddleman,
	RuleTooGoodToBeTrue,
	RuleTrustManipulation,
	RuleSpammyContact,
	RuleMultiMessageTrend,
	RuleFunnelSequence,
	RuleDiscordHandle,
	RuleSimilarityMatch,
	RuleLocalAiRisk,
	RuleLocalAiFunnel,
}

// ParseRuleID resolves a case-insensitive rule name. Returns false for
// unknown names so stale config entries are ignored rather than fatal.
func ParseRuleID(raw string) (RuleID, bool) {
	candidate := RuleID(strings.ToUpper(strings.TrimSpace(raw)))
	for _, id := range AllRules {
		if id == candidate {
			return id, true
		}
	}
	return "", false
}

// Fixed per-rule score contributions.
const (
	WeightSuspiciousLink     = 20
	WeightPressureUrgency    = 15
	WeightUpfrontPayment     = 25
	WeightAccountDataRequest = 35
	WeightExternalPlatform   = 15
	WeightFakeMiddleman      = 20
	WeightTooGoodToBeTrue    = 15
	WeightTrustManipulation  = 10
	WeightSpammyContact      = 10
	WeightMultiMessageTrend  = 20
	WeightDiscordHandle      = 50
	WeightSimilarityMatch    = 30
)

// RiskLevel is the discrete classification of a total score.
type RiskLevel int

const (
	LevelLow RiskLevel = iota
	LevelMedium
	LevelHigh
	LevelCritical
)

func (l RiskLevel) String() string {
	switch l {
	case LevelCritical:
		return "CRITICAL"
	case LevelHigh:
		return "HIGH"
	case LevelMedium:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// ParseRiskLevel returns the level for a case-insensitive name, or the
// fallback when the name is unknown.
func ParseRiskLevel(raw string, fallback RiskLevel) RiskLevel {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "LOW":
		return LevelLow
	case "MEDIUM":
		return LevelMedium
	case "HIGH":
		return LevelHigh
	case "CRITICAL":
		return LevelCritical
	default:
		return fallback
	}
}

// MapLevel converts a total score to its risk level.
func MapLevel(score float64) RiskLevel {
	switch {
	case score >= 70:
		return LevelCritical
	case score >= 40:
		return LevelHigh
	case score >= 20:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Config is the read-only capability handed to every stage. Implementations
// are consulted per event, so toggling a rule takes effect on the very next
// message without a pipeline restart.
type Config interface {
	Patterns() *PatternSet
	BehaviorPatterns() *BehaviorPatternSet
	FunnelConfig() FunnelConfig
	IsEnabled(rule RuleID) bool
	// EntropyBonusWeight is negative when the high-entropy dampener is
	// active, zero when off.
	EntropyBonusWeight() int
}
