package detect

import (
	"fmt"

	"github.com/tango-sec/scamscreener/pkg/rules"
)

// Streak length at which repeated contact becomes a signal.
const spammyContactThreshold = 3

// BehaviorSignalStage converts behavior-analysis flags into weighted
// signals. The streak messages travel along as related evidence.
type BehaviorSignalStage struct {
	ruleConfig rules.Config
}

// NewBehaviorSignalStage creates the stage.
func NewBehaviorSignalStage(ruleConfig rules.Config) *BehaviorSignalStage {
	return &BehaviorSignalStage{ruleConfig: ruleConfig}
}

// CollectSignals returns one signal per enabled, raised behavior flag.
// skipExternalPlatform suppresses the platform-push flag when a more
// specific rule already covered it this event.
func (s *BehaviorSignalStage) CollectSignals(analysis BehaviorAnalysis, skipExternalPlatform bool) []Signal {
	var signals []Signal

	if analysis.PushesExternalPlatform && !skipExternalPlatform && s.ruleConfig.IsEnabled(rules.RuleExternalPlatform) {
		signals = append(signals, NewSignal(
			SourceBehavior, rules.WeightExternalPlatform,
			fmt.Sprintf("Behavior flag pushesExternalPlatform=true (+%d)", rules.WeightExternalPlatform),
			rules.RuleExternalPlatform, nil,
		))
	}

	if analysis.DemandsUpfrontPayment && s.ruleConfig.IsEnabled(rules.RuleUpfrontPayment) {
		signals = append(signals, NewSignal(
			SourceBehavior, rules.WeightUpfrontPayment,
			fmt.Sprintf("Behavior flag demandsUpfrontPayment=true (+%d)", rules.WeightUpfrontPayment),
			rules.RuleUpfrontPayment, nil,
		))
	}

	if analysis.RequestsSensitiveData && s.ruleConfig.IsEnabled(rules.RuleAccountDataRequest) {
		signals = append(signals, NewSignal(
			SourceBehavior, rules.WeightAccountDataRequest,
			fmt.Sprintf("Behavior flag requestsSensitiveData=true (+%d)", rules.WeightAccountDataRequest),
			rules.RuleAccountDataRequest, nil,
		))
	}

	if analysis.ClaimsMiddlemanWithoutProof && s.ruleConfig.IsEnabled(rules.RuleFakeMiddleman) {
		signals = append(signals, NewSignal(
			SourceBehavior, rules.WeightFakeMiddleman,
			fmt.Sprintf("Behavior flag claimsTrustedMiddlemanWithoutProof=true (+%d)", rules.WeightFakeMiddleman),
			rules.RuleFakeMiddleman, nil,
		))
	}

	if analysis.RepeatedContactCount >= spammyContactThreshold && s.ruleConfig.IsEnabled(rules.RuleSpammyContact) {
		signals = append(signals, NewSignal(
			SourceBehavior, rules.WeightSpammyContact,
			fmt.Sprintf("Repeated contact attempts=%d (threshold: %d, +%d)",
				analysis.RepeatedContactCount, spammyContactThreshold, rules.WeightSpammyContact),
			rules.RuleSpammyContact, analysis.StreakMessages,
		))
	}

	return signals
}
