// Package ai implements the local linear risk model: dense and token
// feature extraction, scoring with an atomically reloadable weight
// snapshot, the funnel head, and SGD training over captured samples.
package ai

import (
	"strings"

	"github.com/tango-sec/scamscreener/pkg/rules"
)

// Keyword categories for the dense features. Entries prefixed "re:" are
// regexes; everything else is substring containment.
var (
	paymentWords = rules.ParseKeywords([]string{"pay", "payment", "vorkasse", "coins", "money", "btc", "crypto"})
	accountWords = rules.ParseKeywords([]string{
		"password", "passwort", "2fa",
		`re:\b(?:give|gimme)\b.*\bcode\b|\bcode\b.*\b(?:give|gimme)\b`,
		"email", "login",
	})
	urgencyWords  = rules.ParseKeywords([]string{"now", "quick", "fast", "urgent", "sofort", "jetzt"})
	trustWords    = rules.ParseKeywords([]string{"trust", "legit", "safe", "trusted", "middleman"})
	tooGoodWords  = rules.ParseKeywords([]string{"free", "100%", "guaranteed", "garantiert", "dupe", "rank"})
	platformWords = rules.ParseKeywords([]string{
		"discord", "telegram", "t.me",
		`re:\b(?:join|come on)\b.*\bserver\b`,
		"dm", "vc", "voice",
	})
)

// DenseFeatureNames is the full ordered dense feature vector.
var DenseFeatureNames = []string{
	"kw_payment",
	"kw_account",
	"kw_urgency",
	"kw_trust",
	"kw_too_good",
	"kw_platform",
	"has_link",
	"has_suspicious_punctuation",
	"ctx_pushes_external_platform",
	"ctx_demands_upfront_payment",
	"ctx_requests_sensitive_data",
	"ctx_claims_middleman_without_proof",
	"ctx_too_good_to_be_true",
	"ctx_repeated_contact_3plus",
	"ctx_is_spam",
	"ctx_asks_for_stuff",
	"ctx_advertising",
	"intent_offer",
	"intent_rep",
	"intent_redirect",
	"intent_instruction",
	"intent_payment",
	"intent_anchor",
	"funnel_step_norm",
	"funnel_sequence_norm",
	"funnel_full_chain",
	"funnel_partial_chain",
	"rapid_followup",
	"channel_pm",
	"channel_party",
	"channel_public",
	"rule_hits_norm",
	"similarity_hits_norm",
	"behavior_hits_norm",
	"trend_hits_norm",
	"funnel_hits_norm",
}

// FunnelDenseFeatureNames is the subset the funnel head scores on.
var FunnelDenseFeatureNames = []string{
	"ctx_pushes_external_platform",
	"ctx_repeated_contact_3plus",
	"intent_offer",
	"intent_rep",
	"intent_redirect",
	"intent_instruction",
	"intent_payment",
	"intent_anchor",
	"funnel_step_norm",
	"funnel_sequence_norm",
	"funnel_full_chain",
	"funnel_partial_chain",
	"rapid_followup",
	"funnel_hits_norm",
}

var funnelDenseFeatureSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(FunnelDenseFeatureNames))
	for _, name := range FunnelDenseFeatureNames {
		set[name] = struct{}{}
	}
	return set
}()

// IsFunnelDenseFeature reports whether name belongs to the funnel head.
func IsFunnelDenseFeature(name string) bool {
	_, ok := funnelDenseFeatureSet[name]
	return ok
}

// BehaviorContext is everything the model sees about one message: the
// text, channel, behavior flags, intent booleans, funnel snapshot and
// per-source signal counts.
type BehaviorContext struct {
	Message string
	Channel string
	DeltaMs int64

	PushesExternalPlatform      bool
	DemandsUpfrontPayment       bool
	RequestsSensitiveData       bool
	ClaimsMiddlemanWithoutProof bool
	RepeatedContactAttempts     int

	TooGoodToBeTrue bool
	IsSpam          bool
	AsksForStuff    bool
	Advertising     bool

	IntentOffer           bool
	IntentRep             bool
	IntentRedirect        bool
	IntentInstruction     bool
	IntentPaymentUpfront  bool
	IntentCommunityAnchor bool

	FunnelStepIndex     int
	FunnelSequenceScore float64
	FunnelFullChain     bool
	FunnelPartialChain  bool

	RuleHits       int
	SimilarityHits int
	BehaviorHits   int
	TrendHits      int
	FunnelHits     int
}

// ExtractDenseFeatures maps the context to the named dense feature values,
// in DenseFeatureNames order.
func ExtractDenseFeatures(context BehaviorContext) map[string]float64 {
	message := strings.ToLower(context.Message)
	rapidFollowup := 0.0
	if context.DeltaMs > 0 {
		rapidFollowup = 1.0 - clamp01(float64(context.DeltaMs)/120_000.0)
	}

	out := make(map[string]float64, len(DenseFeatureNames))
	out["kw_payment"] = boolFeature(rules.AnyMatch(paymentWords, message))
	out["kw_account"] = boolFeature(rules.AnyMatch(accountWords, message))
	out["kw_urgency"] = boolFeature(rules.AnyMatch(urgencyWords, message))
	out["kw_trust"] = boolFeature(rules.AnyMatch(trustWords, message))
	out["kw_too_good"] = boolFeature(rules.AnyMatch(tooGoodWords, message))
	out["kw_platform"] = boolFeature(rules.AnyMatch(platformWords, message))
	out["has_link"] = boolFeature(hasLink(message))
	out["has_suspicious_punctuation"] = boolFeature(hasSuspiciousPunctuation(message))
	out["ctx_pushes_external_platform"] = boolFeature(context.PushesExternalPlatform)
	out["ctx_demands_upfront_payment"] = boolFeature(context.DemandsUpfrontPayment)
	out["ctx_requests_sensitive_data"] = boolFeature(context.RequestsSensitiveData)
	out["ctx_claims_middleman_without_proof"] = boolFeature(context.ClaimsMiddlemanWithoutProof)
	out["ctx_too_good_to_be_true"] = boolFeature(context.TooGoodToBeTrue)
	out["ctx_repeated_contact_3plus"] = boolFeature(context.RepeatedContactAttempts >= 3)
	out["ctx_is_spam"] = boolFeature(context.IsSpam)
	out["ctx_asks_for_stuff"] = boolFeature(context.AsksForStuff)
	out["ctx_advertising"] = boolFeature(context.Advertising)
	out["intent_offer"] = boolFeature(context.IntentOffer)
	out["intent_rep"] = boolFeature(context.IntentRep)
	out["intent_redirect"] = boolFeature(context.IntentRedirect)
	out["intent_instruction"] = boolFeature(context.IntentInstruction)
	out["intent_payment"] = boolFeature(context.IntentPaymentUpfront)
	out["intent_anchor"] = boolFeature(context.IntentCommunityAnchor)
	out["funnel_step_norm"] = clamp01(float64(context.FunnelStepIndex) / 4.0)
	out["funnel_sequence_norm"] = clamp01(context.FunnelSequenceScore / 40.0)
	out["funnel_full_chain"] = boolFeature(context.FunnelFullChain)
	out["funnel_partial_chain"] = boolFeature(context.FunnelPartialChain)
	out["rapid_followup"] = rapidFollowup
	out["channel_pm"] = boolFeature(strings.EqualFold(context.Channel, "pm"))
	out["channel_party"] = boolFeature(strings.EqualFold(context.Channel, "party"))
	out["channel_public"] = boolFeature(strings.EqualFold(context.Channel, "public"))
	out["rule_hits_norm"] = clamp01(float64(context.RuleHits) / 3.0)
	out["similarity_hits_norm"] = clamp01(float64(context.SimilarityHits) / 2.0)
	out["behavior_hits_norm"] = clamp01(float64(context.BehaviorHits) / 3.0)
	out["trend_hits_norm"] = clamp01(float64(context.TrendHits) / 2.0)
	out["funnel_hits_norm"] = clamp01(float64(context.FunnelHits) / 2.0)
	return out
}

// DefaultDenseWeights is the hand-tuned starting point shipped with the
// screener: heavy on account/payment wording, lighter on funnel shape.
func DefaultDenseWeights() map[string]float64 {
	defaults := make(map[string]float64, len(DenseFeatureNames))
	for _, name := range DenseFeatureNames {
		defaults[name] = 0.0
	}
	defaults["kw_account"] = 1.1
	defaults["kw_payment"] = 0.7
	defaults["kw_platform"] = 0.4
	defaults["ctx_requests_sensitive_data"] = 1.2
	defaults["ctx_demands_upfront_payment"] = 0.75
	defaults["intent_redirect"] = 0.45
	defaults["intent_instruction"] = 0.5
	defaults["funnel_full_chain"] = 0.9
	defaults["funnel_partial_chain"] = 0.45
	defaults["funnel_sequence_norm"] = 0.55
	defaults["rule_hits_norm"] = 0.35
	defaults["funnel_hits_norm"] = 0.4
	defaults["rapid_followup"] = 0.25
	return defaults
}

// DefaultFunnelDenseWeights projects the default dense weights onto the
// funnel head subset.
func DefaultFunnelDenseWeights() map[string]float64 {
	defaults := DefaultDenseWeights()
	out := make(map[string]float64, len(FunnelDenseFeatureNames))
	for _, name := range FunnelDenseFeatureNames {
		out[name] = defaults[name]
	}
	return out
}

func hasLink(text string) bool {
	return strings.Contains(text, "http://") || strings.Contains(text, "https://") || strings.Contains(text, "www.")
}

func hasSuspiciousPunctuation(text string) bool {
	return strings.Contains(text, "!!!") || strings.Contains(text, "??") || strings.Contains(text, "$$")
}

func boolFeature(value bool) float64 {
	if value {
		return 1.0
	}
	return 0.0
}

func clamp01(value float64) float64 {
	if value != value || value <= 0.0 {
		return 0.0
	}
	if value >= 1.0 {
		return 1.0
	}
	return value
}
