package detect

import (
	"fmt"
	"strings"

	"github.com/tango-sec/scamscreener/pkg/rules"
)

// WarningDeduplicator suppresses repeat warnings for the same sender at
// the same level. An escalation to a higher level warns again.
type WarningDeduplicator struct {
	seen map[string]struct{}
}

// NewWarningDeduplicator creates an empty deduplicator.
func NewWarningDeduplicator() *WarningDeduplicator {
	return &WarningDeduplicator{seen: make(map[string]struct{})}
}

// ShouldWarn reports whether this (sender, level) pair is new. Blank
// senders never warn.
func (d *WarningDeduplicator) ShouldWarn(event MessageEvent, level rules.RiskLevel) bool {
	if strings.TrimSpace(event.SenderName) == "" {
		return false
	}
	key := fmt.Sprintf("%s|%s", event.SenderKey(), level)
	if _, dup := d.seen[key]; dup {
		return false
	}
	d.seen[key] = struct{}{}
	return true
}

// Reset forgets all previously warned pairs.
func (d *WarningDeduplicator) Reset() {
	d.seen = make(map[string]struct{})
}

// DecisionStage applies the minimum alert threshold and de-duplication.
type DecisionStage struct {
	settings     AlertSettings
	deduplicator *WarningDeduplicator
}

// NewDecisionStage creates the stage.
func NewDecisionStage(settings AlertSettings, deduplicator *WarningDeduplicator) *DecisionStage {
	return &DecisionStage{settings: settings, deduplicator: deduplicator}
}

// Decide returns the warn/no-warn outcome for one scored event.
func (s *DecisionStage) Decide(event MessageEvent, result DetectionResult) Decision {
	if result.TotalScore <= 0 || !result.HasTriggeredRules() {
		return Decision{}
	}
	if result.Level < s.settings.MinAlertRiskLevel() {
		return Decision{}
	}
	if s.deduplicator == nil {
		return Decision{ShouldWarn: true}
	}
	return Decision{ShouldWarn: s.deduplicator.ShouldWarn(event, result.Level)}
}

// Reset clears de-duplication state.
func (s *DecisionStage) Reset() {
	if s.deduplicator != nil {
		s.deduplicator.Reset()
	}
}
