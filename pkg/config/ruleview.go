package config

import (
	"sync/atomic"

	"github.com/tango-sec/scamscreener/pkg/rules"
)

// RuleView is the read-only capability the pipeline stages consult on every
// event. It compiles the raw Config once into an immutable snapshot held
// behind an atomic pointer; Reload swaps in a fresh snapshot so a toggle
// takes effect on the very next message with no locking on the read path.
type RuleView struct {
	snap atomic.Pointer[ruleSnapshot]
}

type ruleSnapshot struct {
	patterns         *rules.PatternSet
	behaviorPatterns *rules.BehaviorPatternSet
	funnel           rules.FunnelConfig
	disabled         map[rules.RuleID]struct{}
	entropyBonus     int

	localAiEnabled              bool
	localAiMaxScore             int
	localAiTriggerProbability   float64
	localAiFunnelMaxScore       int
	localAiFunnelThresholdBonus float64

	minAlertLevel       rules.RiskLevel
	autoCaptureOff      bool
	autoCaptureMinLevel rules.RiskLevel
	showWarnings        bool
}

var _ rules.Config = (*RuleView)(nil)

// NewRuleView compiles cfg into a fresh view. cfg is clamped via Validate
// first so the snapshot only ever holds sane values.
func NewRuleView(cfg *Config) *RuleView {
	v := &RuleView{}
	v.Reload(cfg)
	return v
}

// Reload atomically replaces the compiled snapshot.
func (v *RuleView) Reload(cfg *Config) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	cfg.Validate()

	disabled := make(map[rules.RuleID]struct{}, len(cfg.DisabledRules))
	for _, raw := range cfg.DisabledRules {
		if id, ok := rules.ParseRuleID(raw); ok {
			disabled[id] = struct{}{}
		}
	}

	funnel := rules.DefaultFunnelConfig()
	funnel.WindowSize = cfg.FunnelWindowSize
	funnel.WindowMillis = cfg.FunnelWindowMillis
	funnel.ContextTTLMillis = cfg.FunnelContextTTLMillis
	funnel.FullSequenceWeight = cfg.FunnelFullSequenceWeight
	funnel.PartialSequenceWeight = cfg.FunnelPartialSequenceWeight

	v.snap.Store(&ruleSnapshot{
		patterns: rules.CompilePatternSet(
			cfg.LinkPattern, cfg.UrgencyPattern, cfg.PaymentFirstPattern,
			cfg.AccountDataPattern, cfg.TooGoodPattern, cfg.TrustBaitPattern,
		),
		behaviorPatterns: rules.CompileBehaviorPatternSet(
			cfg.ExternalPlatformPattern, cfg.UpfrontPaymentPattern,
			cfg.AccountDataBehaviorPattern, cfg.MiddlemanPattern,
		),
		funnel:       funnel,
		disabled:     disabled,
		entropyBonus: cfg.EntropyBonusWeight,

		localAiEnabled:              cfg.LocalAiEnabled,
		localAiMaxScore:             cfg.LocalAiMaxScore,
		localAiTriggerProbability:   cfg.LocalAiTriggerProbability,
		localAiFunnelMaxScore:       cfg.LocalAiFunnelMaxScore,
		localAiFunnelThresholdBonus: cfg.LocalAiFunnelThresholdBonus,

		minAlertLevel:       cfg.MinAlertRiskLevel(),
		autoCaptureOff:      cfg.AutoCaptureOff(),
		autoCaptureMinLevel: cfg.AutoCaptureMinLevel(),
		showWarnings:        cfg.ShowWarningMessages,
	})
}

func (v *RuleView) current() *ruleSnapshot {
	return v.snap.Load()
}

// Patterns returns the compiled core rule patterns.
func (v *RuleView) Patterns() *rules.PatternSet { return v.current().patterns }

// BehaviorPatterns returns the compiled behavior-flag patterns.
func (v *RuleView) BehaviorPatterns() *rules.BehaviorPatternSet {
	return v.current().behaviorPatterns
}

// FunnelConfig returns the funnel tuning and intent patterns.
func (v *RuleView) FunnelConfig() rules.FunnelConfig { return v.current().funnel }

// IsEnabled reports whether a rule is currently switched on.
func (v *RuleView) IsEnabled(rule rules.RuleID) bool {
	_, off := v.current().disabled[rule]
	return !off
}

// EntropyBonusWeight returns the high-entropy dampener weight (<= 0).
func (v *RuleView) EntropyBonusWeight() int { return v.current().entropyBonus }

func (v *RuleView) LocalAiEnabled() bool               { return v.current().localAiEnabled }
func (v *RuleView) LocalAiMaxScore() int               { return v.current().localAiMaxScore }
func (v *RuleView) LocalAiTriggerProbability() float64 { return v.current().localAiTriggerProbability }
func (v *RuleView) LocalAiFunnelMaxScore() int         { return v.current().localAiFunnelMaxScore }
func (v *RuleView) LocalAiFunnelThresholdBonus() float64 {
	return v.current().localAiFunnelThresholdBonus
}

func (v *RuleView) MinAlertRiskLevel() rules.RiskLevel   { return v.current().minAlertLevel }
func (v *RuleView) AutoCaptureOff() bool                 { return v.current().autoCaptureOff }
func (v *RuleView) AutoCaptureMinLevel() rules.RiskLevel { return v.current().autoCaptureMinLevel }
func (v *RuleView) ShowWarningMessages() bool            { return v.current().showWarnings }
