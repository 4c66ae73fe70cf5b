package detect

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tango-sec/scamscreener/pkg/rules"
	"github.com/tango-sec/scamscreener/pkg/textutil"
)

// Phrase-scoring and entropy gates for the rule stage.
const (
	urgencyScoreThreshold = 2
	trustScoreThreshold   = 2
	entropyMinTokens      = 4
	entropyMinLength      = 20
	entropyThreshold      = 2.5
)

// RuleSignalStage turns regex matches over the normalized message into
// weighted signals. Stateless; all tuning comes from the rule config at
// call time.
type RuleSignalStage struct {
	ruleConfig rules.Config
}

// NewRuleSignalStage creates the stage.
func NewRuleSignalStage(ruleConfig rules.Config) *RuleSignalStage {
	return &RuleSignalStage{ruleConfig: ruleConfig}
}

// CollectSignals returns one signal per triggered rule, empty when nothing
// matches or the message is blank.
func (s *RuleSignalStage) CollectSignals(event MessageEvent) []Signal {
	message := event.Normalized
	if strings.TrimSpace(message) == "" {
		return nil
	}

	patterns := s.ruleConfig.Patterns()
	behaviorPatterns := s.ruleConfig.BehaviorPatterns()
	var signals []Signal

	if match, ok := firstMatch(patterns.Link, message); ok && s.ruleConfig.IsEnabled(rules.RuleSuspiciousLink) {
		signals = append(signals, NewSignal(
			SourceRule, rules.WeightSuspiciousLink,
			fmt.Sprintf("Matched link pattern: %q (+%d)", match, rules.WeightSuspiciousLink),
			rules.RuleSuspiciousLink, nil,
		))
	}

	if s.ruleConfig.IsEnabled(rules.RulePressureUrgency) {
		urgency := scorePhrase(message, rules.UrgencyKeywords, rules.UrgencyPhrases)
		suspicious := hasSuspiciousContext(message, patterns, behaviorPatterns)
		allowlisted := (rules.UrgencyAllowlist.MatchString(message) && !suspicious) ||
			(rules.TradeContextAllowlist.MatchString(message) && !suspicious)
		if match, ok := customPatternMatch(patterns.Urgency, rules.DefaultUrgencyPattern, message); ok && !allowlisted {
			signals = append(signals, NewSignal(
				SourceRule, rules.WeightPressureUrgency,
				fmt.Sprintf("Matched urgency pattern: %q (+%d)", match, rules.WeightPressureUrgency),
				rules.RulePressureUrgency, nil,
			))
		} else if urgency.score >= urgencyScoreThreshold && !allowlisted {
			signals = append(signals, NewSignal(
				SourceRule, rules.WeightPressureUrgency,
				fmt.Sprintf("Urgency phrase score=%d (keywords=%d, phrases=%d, threshold=%d)%s (+%d)",
					urgency.score, urgency.keywordHits, urgency.phraseHits,
					urgencyScoreThreshold, matchEvidence(urgency.match), rules.WeightPressureUrgency),
				rules.RulePressureUrgency, nil,
			))
		}
	}

	if match, ok := firstMatch(patterns.PaymentFirst, message); ok && s.ruleConfig.IsEnabled(rules.RuleUpfrontPayment) {
		signals = append(signals, NewSignal(
			SourceRule, rules.WeightUpfrontPayment,
			fmt.Sprintf("Matched payment-first wording: %q (+%d)", match, rules.WeightUpfrontPayment),
			rules.RuleUpfrontPayment, nil,
		))
	}

	if match, ok := firstMatch(patterns.AccountData, message); ok && s.ruleConfig.IsEnabled(rules.RuleAccountDataRequest) {
		signals = append(signals, NewSignal(
			SourceRule, rules.WeightAccountDataRequest,
			fmt.Sprintf("Matched sensitive-account wording: %q (+%d)", match, rules.WeightAccountDataRequest),
			rules.RuleAccountDataRequest, nil,
		))
	}

	if match, ok := firstMatch(patterns.TooGood, message); ok && s.ruleConfig.IsEnabled(rules.RuleTooGoodToBeTrue) {
		signals = append(signals, NewSignal(
			SourceRule, rules.WeightTooGoodToBeTrue,
			fmt.Sprintf("Matched unrealistic-promise wording: %q (+%d)", match, rules.WeightTooGoodToBeTrue),
			rules.RuleTooGoodToBeTrue, nil,
		))
	}

	if s.ruleConfig.IsEnabled(rules.RuleTrustManipulation) {
		trust := scorePhrase(message, rules.TrustKeywords, rules.TrustPhrases)
		if match, ok := customPatternMatch(patterns.TrustBait, rules.DefaultTrustBaitPattern, message); ok {
			signals = append(signals, NewSignal(
				SourceRule, rules.WeightTrustManipulation,
				fmt.Sprintf("Matched trust-bait pattern: %q (+%d)", match, rules.WeightTrustManipulation),
				rules.RuleTrustManipulation, nil,
			))
		} else if trust.score >= trustScoreThreshold {
			signals = append(signals, NewSignal(
				SourceRule, rules.WeightTrustManipulation,
				fmt.Sprintf("Trust phrase score=%d (keywords=%d, phrases=%d, threshold=%d)%s (+%d)",
					trust.score, trust.keywordHits, trust.phraseHits,
					trustScoreThreshold, matchEvidence(trust.match), rules.WeightTrustManipulation),
				rules.RuleTrustManipulation, nil,
			))
		}
	}

	if bonus := s.ruleConfig.EntropyBonusWeight(); bonus < 0 {
		words := wordTokens(message)
		if len(words) >= entropyMinTokens && len(message) >= entropyMinLength &&
			textutil.TokenEntropy(words) >= entropyThreshold {
			signals = append(signals, NewSignal(SourceRule, float64(bonus), "", "", nil))
		}
	}

	if s.ruleConfig.IsEnabled(rules.RuleDiscordHandle) {
		if rules.DiscordWordPattern.MatchString(message) {
			if handle := rules.DiscordHandlePattern.FindString(message); handle != "" {
				signals = append(signals, NewSignal(
					SourceRule, rules.WeightDiscordHandle,
					fmt.Sprintf("Discord handle with platform mention: %q (+%d). External platform behavior skipped.",
						handle, rules.WeightDiscordHandle),
					rules.RuleDiscordHandle, nil,
				))
			}
		}
	}

	return signals
}

func hasSuspiciousContext(message string, patterns *rules.PatternSet, behavior *rules.BehaviorPatternSet) bool {
	return matchFound(patterns.Link, message) ||
		matchFound(patterns.PaymentFirst, message) ||
		matchFound(patterns.AccountData, message) ||
		matchFound(patterns.TooGood, message) ||
		matchFound(behavior.ExternalPlatform, message) ||
		matchFound(behavior.UpfrontPayment, message) ||
		matchFound(behavior.AccountData, message) ||
		matchFound(behavior.MiddlemanClaim, message)
}

// customPatternMatch matches only operator-supplied pattern overrides; the
// built-in defaults for urgency and trust defer to phrase scoring instead.
func customPatternMatch(pattern *regexp.Regexp, defaultSource, message string) (string, bool) {
	if pattern == nil || pattern.String() == defaultSource {
		return "", false
	}
	return firstMatch(pattern, message)
}

func firstMatch(pattern *regexp.Regexp, message string) (string, bool) {
	if pattern == nil {
		return "", false
	}
	loc := pattern.FindStringIndex(message)
	if loc == nil {
		return "", false
	}
	return message[loc[0]:loc[1]], true
}

type phraseScore struct {
	score       int
	keywordHits int
	phraseHits  int
	match       string
}

// scorePhrase counts exact keyword token hits (capped at 4) plus double
// weighted phrase hits over the space-joined token form.
func scorePhrase(message string, keywords, phrases []string) phraseScore {
	words := wordTokens(message)
	if len(words) == 0 {
		return phraseScore{}
	}
	normalized := strings.Join(words, " ")
	keywordHits := countKeywordHits(words, keywords)
	phraseHits := countPhraseHits(normalized, phrases)

	match := firstPhraseMatch(normalized, phrases)
	if match == "" {
		match = firstKeywordMatch(words, keywords)
	}
	return phraseScore{
		score:       keywordHits + phraseHits*2,
		keywordHits: keywordHits,
		phraseHits:  phraseHits,
		match:       match,
	}
}

func wordTokens(message string) []string {
	return strings.Fields(textutil.NormalizeForMatch(message))
}

func countKeywordHits(words, keywords []string) int {
	hits := 0
	for _, word := range words {
		for _, keyword := range keywords {
			if word == keyword {
				hits++
				if hits >= 4 {
					return hits
				}
			}
		}
	}
	return hits
}

func countPhraseHits(normalized string, phrases []string) int {
	hits := 0
	padded := " " + normalized + " "
	for _, phrase := range phrases {
		if strings.Contains(padded, " "+phrase+" ") {
			hits++
		}
	}
	return hits
}

func firstPhraseMatch(normalized string, phrases []string) string {
	padded := " " + normalized + " "
	for _, phrase := range phrases {
		if strings.Contains(padded, " "+phrase+" ") {
			return phrase
		}
	}
	return ""
}

func firstKeywordMatch(words, keywords []string) string {
	for _, word := range words {
		for _, keyword := range keywords {
			if word == keyword {
				return word
			}
		}
	}
	return ""
}

func matchEvidence(match string) string {
	if match == "" {
		return ""
	}
	return fmt.Sprintf(" Match: %q", match)
}
