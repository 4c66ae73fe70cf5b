package detect

import (
	"github.com/tango-sec/scamscreener/pkg/rules"
)

// AlertSettings is the slice of configuration the scoring and decision
// stages need. config.RuleView satisfies it.
type AlertSettings interface {
	MinAlertRiskLevel() rules.RiskLevel
	AutoCaptureOff() bool
	AutoCaptureMinLevel() rules.RiskLevel
}

// ScoringStage sums signal weights into a total, maps the risk level and
// merges per-rule evidence.
type ScoringStage struct {
	settings AlertSettings
}

// NewScoringStage creates the stage.
func NewScoringStage(settings AlertSettings) *ScoringStage {
	return &ScoringStage{settings: settings}
}

// Score builds the detection result for one event. A trend bonus caps the
// total at 100; other combinations may exceed it.
func (s *ScoringStage) Score(event MessageEvent, signals []Signal) DetectionResult {
	total := 0.0
	hasTrendBonus := false
	for _, signal := range signals {
		total += signal.Weight
		if signal.RuleID == rules.RuleMultiMessageTrend {
			hasTrendBonus = true
		}
	}
	if hasTrendBonus && total > 100 {
		total = 100
	}

	level := rules.MapLevel(total)
	ruleDetails := make(map[rules.RuleID]string)
	var evaluatedMessages []string
	seenMessages := make(map[string]struct{})
	hasRules := false

	for _, signal := range signals {
		if signal.HasRule() {
			hasRules = true
			if signal.Evidence != "" {
				if existing, ok := ruleDetails[signal.RuleID]; ok {
					ruleDetails[signal.RuleID] = existing + "\n" + signal.Evidence
				} else {
					ruleDetails[signal.RuleID] = signal.Evidence
				}
			}
		}
		for _, message := range signal.RelatedMessages {
			if _, dup := seenMessages[message]; dup {
				continue
			}
			seenMessages[message] = struct{}{}
			evaluatedMessages = append(evaluatedMessages, message)
		}
	}

	if len(evaluatedMessages) == 0 && event.RawMessage != "" {
		evaluatedMessages = append(evaluatedMessages, event.RawMessage)
	}

	return DetectionResult{
		TotalScore:        total,
		Level:             level,
		Signals:           signals,
		RuleDetails:       ruleDetails,
		ShouldAutoCapture: s.shouldAutoCapture(level, total, hasRules),
		EvaluatedMessages: evaluatedMessages,
	}
}

func (s *ScoringStage) shouldAutoCapture(level rules.RiskLevel, total float64, hasRules bool) bool {
	if total <= 0 || !hasRules {
		return false
	}
	if s.settings.AutoCaptureOff() {
		return false
	}
	return level >= s.settings.AutoCaptureMinLevel()
}
