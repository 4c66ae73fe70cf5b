package detect

import (
	"regexp"
	"strings"

	"github.com/tango-sec/scamscreener/pkg/rules"
	"github.com/tango-sec/scamscreener/pkg/textutil"
)

// IntentTag is a coarse classification of what a message is trying to do.
// Tags feed the funnel store and the model's context features.
type IntentTag string

const (
	TagServiceOffer         IntentTag = "SERVICE_OFFER"
	TagFreeOffer            IntentTag = "FREE_OFFER"
	TagRepRequest           IntentTag = "REP_REQUEST"
	TagPlatformRedirect     IntentTag = "PLATFORM_REDIRECT"
	TagInstructionInjection IntentTag = "INSTRUCTION_INJECTION"
	TagPaymentUpfront       IntentTag = "PAYMENT_UPFRONT"
	TagCommunityAnchor      IntentTag = "COMMUNITY_ANCHOR"
)

// TagSet is an order-independent set of intent tags.
type TagSet map[IntentTag]struct{}

func (s TagSet) Has(tag IntentTag) bool {
	_, ok := s[tag]
	return ok
}

func (s TagSet) add(tag IntentTag) { s[tag] = struct{}{} }

// TaggingResult carries the tags plus whether the message looked like a
// benign context (guild recruiting and the like) that disarms offer tags.
type TaggingResult struct {
	Tags            TagSet
	NegativeContext bool
}

// EmptyTaggingResult is the zero outcome for blank or unparseable text.
func EmptyTaggingResult() TaggingResult {
	return TaggingResult{Tags: TagSet{}}
}

// IntentTagger derives intent tags from already-collected signals plus
// light text checks of its own, including a leet-folded pass that catches
// obfuscated platform mentions.
type IntentTagger struct {
	ruleConfig rules.Config
}

// NewIntentTagger creates the tagger.
func NewIntentTagger(ruleConfig rules.Config) *IntentTagger {
	return &IntentTagger{ruleConfig: ruleConfig}
}

// Tag classifies one event given the signals collected so far.
func (t *IntentTagger) Tag(event MessageEvent, existingSignals []Signal) TaggingResult {
	normalized := textutil.NormalizeForMatch(event.RawMessage)
	if normalized == "" {
		normalized = textutil.NormalizeForMatch(event.Normalized)
	}
	if normalized == "" {
		return EmptyTaggingResult()
	}

	funnel := t.ruleConfig.FunnelConfig()
	tags := TagSet{}

	hasLinkSignal := false
	for _, signal := range existingSignals {
		switch signal.RuleID {
		case rules.RuleUpfrontPayment:
			tags.add(TagPaymentUpfront)
		case rules.RuleExternalPlatform, rules.RuleDiscordHandle:
			tags.add(TagPlatformRedirect)
		case rules.RuleTooGoodToBeTrue:
			tags.add(TagFreeOffer)
		case rules.RuleSuspiciousLink:
			hasLinkSignal = true
		}
	}

	if tagMatch(funnel.ServiceOffer, normalized) {
		tags.add(TagServiceOffer)
	}
	if tagMatch(funnel.FreeOffer, normalized) {
		tags.add(TagFreeOffer)
	}
	if tagMatch(funnel.RepRequest, normalized) {
		tags.add(TagRepRequest)
	}
	if tagMatch(funnel.InstructionInjection, normalized) {
		tags.add(TagInstructionInjection)
	}
	if tagMatch(funnel.CommunityAnchor, normalized) {
		tags.add(TagCommunityAnchor)
	}
	if tagMatch(t.ruleConfig.BehaviorPatterns().UpfrontPayment, normalized) || containsAny(normalized, rules.UpfrontPaymentHints) {
		tags.add(TagPaymentUpfront)
	}
	if tagMatch(funnel.PlatformRedirect, normalized) {
		tags.add(TagPlatformRedirect)
	}
	if tagMatch(rules.ChannelRedirectPattern, normalized) {
		tags.add(TagPlatformRedirect)
	}

	compact := textutil.FoldCompact(normalized)
	if containsAny(compact, rules.FoldedPlatformHints) {
		tags.add(TagPlatformRedirect)
	}
	if hasLinkSignal && (containsAny(compact, rules.LinkSignalPlatformHints) || containsAny(normalized, rules.LinkRedirectHints)) {
		tags.add(TagPlatformRedirect)
	}

	negativeContext := tagMatch(funnel.NegativeContext, normalized)
	if negativeContext {
		delete(tags, TagServiceOffer)
		delete(tags, TagFreeOffer)
	}

	return TaggingResult{Tags: tags, NegativeContext: negativeContext}
}

func tagMatch(pattern *regexp.Regexp, text string) bool {
	if pattern == nil || text == "" {
		return false
	}
	return pattern.MatchString(text)
}

func containsAny(text string, hints []string) bool {
	if text == "" {
		return false
	}
	for _, hint := range hints {
		if strings.Contains(text, hint) {
			return true
		}
	}
	return false
}
