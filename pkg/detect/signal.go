package detect

import (
	"github.com/google/uuid"

	"github.com/tango-sec/scamscreener/pkg/rules"
)

// SignalSource identifies which detection layer produced a signal.
type SignalSource string

const (
	SourceRule       SignalSource = "RULE"
	SourceBehavior   SignalSource = "BEHAVIOR"
	SourceSimilarity SignalSource = "SIMILARITY"
	SourceAI         SignalSource = "AI"
	SourceTrend      SignalSource = "TREND"
	SourceFunnel     SignalSource = "FUNNEL"
)

// Signal is one weighted piece of evidence produced by a single stage for
// one message event. A fresh list is built per event and discarded after
// scoring.
type Signal struct {
	ID              string       `json:"id"`
	Source          SignalSource `json:"source"`
	Weight          float64      `json:"weight"`
	Evidence        string       `json:"evidence"`
	RuleID          rules.RuleID `json:"rule_id,omitempty"`
	RelatedMessages []string     `json:"related_messages,omitempty"`
}

// NewSignal builds a signal with a fresh unique id.
func NewSignal(source SignalSource, weight float64, evidence string, ruleID rules.RuleID, related []string) Signal {
	return Signal{
		ID:              uuid.NewString(),
		Source:          source,
		Weight:          weight,
		Evidence:        evidence,
		RuleID:          ruleID,
		RelatedMessages: related,
	}
}

// HasRule reports whether the signal is attributed to a named rule.
func (s Signal) HasRule() bool { return s.RuleID != "" }

// DetectionResult is the scored outcome for one event, produced by the
// scoring stage and consumed by decision/output. Immutable once built.
type DetectionResult struct {
	TotalScore        float64                 `json:"total_score"`
	Level             rules.RiskLevel         `json:"level"`
	Signals           []Signal                `json:"signals"`
	RuleDetails       map[rules.RuleID]string `json:"rule_details"`
	ShouldAutoCapture bool                    `json:"should_auto_capture"`
	EvaluatedMessages []string                `json:"evaluated_messages"`
}

// TriggeredRules returns the distinct rules present across all signals, in
// first-appearance order.
func (r DetectionResult) TriggeredRules() []rules.RuleID {
	seen := make(map[rules.RuleID]struct{}, len(r.Signals))
	var out []rules.RuleID
	for _, sig := range r.Signals {
		if !sig.HasRule() {
			continue
		}
		if _, dup := seen[sig.RuleID]; dup {
			continue
		}
		seen[sig.RuleID] = struct{}{}
		out = append(out, sig.RuleID)
	}
	return out
}

// HasTriggeredRules reports whether at least one signal names a rule.
func (r DetectionResult) HasTriggeredRules() bool {
	for _, sig := range r.Signals {
		if sig.HasRule() {
			return true
		}
	}
	return false
}

// Decision is the warn/no-warn outcome for one scored event.
type Decision struct {
	ShouldWarn bool `json:"should_warn"`
}

// Evaluation bundles everything the pipeline knows about one processed
// event, for telemetry collaborators.
type Evaluation struct {
	Event    MessageEvent    `json:"event"`
	Result   DetectionResult `json:"result"`
	Decision Decision        `json:"decision"`
}
