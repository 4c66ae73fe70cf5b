package detect

import (
	"regexp"

	"github.com/tango-sec/scamscreener/pkg/rules"
)

// BehaviorAnalysis is the per-event behavioral snapshot. Rebuilt on every
// call; the streak fields reflect consecutive messages from the same sender.
type BehaviorAnalysis struct {
	RawMessage string
	Normalized string

	PushesExternalPlatform      bool
	DemandsUpfrontPayment       bool
	RequestsSensitiveData       bool
	ClaimsMiddlemanWithoutProof bool

	// RepeatedContactCount is the length of the current consecutive
	// same-sender streak, including this message. Resets when another
	// sender speaks.
	RepeatedContactCount int
	StreakMessages       []string
}

// BehaviorAnalyzer classifies behavior flags from each chat line and tracks
// the consecutive-message streak per sender. Not safe for concurrent use;
// the pipeline calls it from a single goroutine.
type BehaviorAnalyzer struct {
	ruleConfig rules.Config

	lastSenderKey  string
	streakCount    int
	streakMessages []string
}

// NewBehaviorAnalyzer creates an analyzer reading behavior patterns from
// the rule config on every call.
func NewBehaviorAnalyzer(ruleConfig rules.Config) *BehaviorAnalyzer {
	return &BehaviorAnalyzer{ruleConfig: ruleConfig}
}

// Analyze builds the behavioral snapshot for one event. A blank sender
// yields an empty analysis and resets the streak so an anonymous line can
// never extend another sender's run.
func (a *BehaviorAnalyzer) Analyze(event MessageEvent) BehaviorAnalysis {
	if event.SenderName == "" || event.Normalized == "" {
		a.resetStreak()
		return BehaviorAnalysis{RawMessage: event.RawMessage, Normalized: event.Normalized}
	}

	key := event.SenderKey()
	if key != a.lastSenderKey {
		a.lastSenderKey = key
		a.streakCount = 0
		a.streakMessages = a.streakMessages[:0]
	}
	a.streakCount++
	a.streakMessages = append(a.streakMessages, event.RawMessage)
	if len(a.streakMessages) > 8 {
		a.streakMessages = a.streakMessages[len(a.streakMessages)-8:]
	}

	patterns := a.ruleConfig.BehaviorPatterns()
	streak := make([]string, len(a.streakMessages))
	copy(streak, a.streakMessages)

	return BehaviorAnalysis{
		RawMessage:                  event.RawMessage,
		Normalized:                  event.Normalized,
		PushesExternalPlatform:      matchFound(patterns.ExternalPlatform, event.Normalized),
		DemandsUpfrontPayment:       matchFound(patterns.UpfrontPayment, event.Normalized),
		RequestsSensitiveData:       matchFound(patterns.AccountData, event.Normalized),
		ClaimsMiddlemanWithoutProof: matchFound(patterns.MiddlemanClaim, event.Normalized),
		RepeatedContactCount:        a.streakCount,
		StreakMessages:              streak,
	}
}

// Reset clears streak state at session boundaries.
func (a *BehaviorAnalyzer) Reset() {
	a.resetStreak()
}

func (a *BehaviorAnalyzer) resetStreak() {
	a.lastSenderKey = ""
	a.streakCount = 0
	a.streakMessages = nil
}

func matchFound(pattern *regexp.Regexp, text string) bool {
	if pattern == nil || text == "" {
		return false
	}
	return pattern.MatchString(text)
}
