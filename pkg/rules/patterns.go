package rules

import (
	"regexp"

	"github.com/tango-sec/scamscreener/pkg/textutil"
)

// Default regex sources for the six core rule categories plus the funnel
// intent patterns. User config may override any of these; a pattern that
// fails to compile falls back to its default here.
const (
	DefaultLinkPattern         = `(https?://|www\.|discord\.gg/|t\.me/)`
	DefaultUrgencyPattern      = `\b(now|quick|fast|urgent|sofort|jetzt)\b`
	DefaultPaymentFirstPattern = `\b(pay first|first payment|vorkasse|send first)\b`
	DefaultAccountDataPattern  = `(\b(password|passwort|2fa|email login)\b|\b(give|gimme)\b.*\bcode\b|\bcode\b.*\b(give|gimme)\b)`
	DefaultTooGoodPattern      = `\b(free coins|free rank|dupe|100% safe|garantiert)\b`
	DefaultTrustBaitPattern    = `\b(trust me|vertrau mir|legit)\b`

	DefaultExternalPlatformPattern = `\b(discord|telegram|t\.me|dm me|add me|vc|voice chat|voice channel|call)\b`
	DefaultMiddlemanPattern        = `\b(trusted middleman|legit middleman|middleman)\b`

	channelRedirectFragment = `(go to|join) [a-z0-9 ]{2,40} channel`

	DefaultFunnelServiceOfferPattern      = `\b(carry|service|offer|offering|sell|selling|helping)\b`
	DefaultFunnelFreeOfferPattern         = `\b(free|for free|giveaway|free carry)\b`
	DefaultFunnelRepRequestPattern        = `\b(rep|reputation|vouch|voucher|feedback|rep me|vouch me)\b`
	DefaultFunnelPlatformRedirectPattern  = `\b(discord|telegram|t\.me|vc|voice chat|voice channel|call|join vc|` + channelRedirectFragment + `)\b`
	DefaultFunnelInstructionPattern       = `\b(go to|type|do rep|copy this|run this|use command|join and)\b`
	DefaultFunnelCommunityAnchorPattern   = `\b(sbz|hsb|sbm|skyblockz|hypixel skyblock)\b`
	DefaultFunnelNegativeContextPattern   = `\b(guild recruit|guild req|guild only|looking for members|lf members|recruiting)\b`
	DefaultDiscordHandlePattern           = `@[a-z0-9._-]{2,32}`
	DefaultChannelRedirectInstructionText = `\b` + channelRedirectFragment + `\b`
)

// Allowlists and auxiliary patterns used by the rule stage and the intent
// tagger. Compiled once at package load.
var (
	UrgencyAllowlist       = regexp.MustCompile(`\b(auction|ah|flip|bin|bid|bidding)\b`)
	TradeContextAllowlist  = regexp.MustCompile(`\b(sell|selling|buy|buying|trade|trading|price|coins?|payment|pay|lf|lb)\b`)
	DiscordHandlePattern   = regexp.MustCompile(DefaultDiscordHandlePattern)
	DiscordWordPattern     = regexp.MustCompile(`\bdiscord\b`)
	ChannelRedirectPattern = regexp.MustCompile(DefaultChannelRedirectInstructionText)
)

// Urgency and trust phrase-scoring word lists. Score is keyword hits plus
// twice the phrase hits; a score of 2 triggers the rule.
var (
	UrgencyKeywords = []string{"now", "quick", "fast", "urgent", "asap", "immediately", "right", "sofort", "jetzt"}
	UrgencyPhrases  = []string{
		"right now", "right away", "as soon as possible", "need it now",
		"need this now", "need this right now", "fast fast", "quick payment",
	}
	TrustKeywords = []string{"trust", "trusted", "legit", "safe", "verified", "vouched", "reputable", "middleman"}
	TrustPhrases  = []string{
		"trust me", "i am legit", "its legit", "it's legit",
		"safe trade", "trusted middleman", "legit middleman",
	}
)

// Substring hints consumed by the intent tagger after leet-folding.
var (
	FoldedPlatformHints     = []string{"discord", "telegram", "teamspeak", "voicechat", "discgg"}
	LinkSignalPlatformHints = []string{"discord", "telegram"}
	LinkRedirectHints       = []string{"discord gg", "discord com invite", "t me"}
	UpfrontPaymentHints     = []string{
		"pay first", "send first", "you give me", "give me first",
		"before i give", "before i send",
	}
)

// PatternSet holds the compiled per-category patterns for the rule stage.
type PatternSet struct {
	Link         *regexp.Regexp
	Urgency      *regexp.Regexp
	PaymentFirst *regexp.Regexp
	AccountData  *regexp.Regexp
	TooGood      *regexp.Regexp
	TrustBait    *regexp.Regexp
}

// BehaviorPatternSet holds the compiled patterns backing the four behavior
// flags.
type BehaviorPatternSet struct {
	ExternalPlatform *regexp.Regexp
	UpfrontPayment   *regexp.Regexp
	AccountData      *regexp.Regexp
	MiddlemanClaim   *regexp.Regexp
}

// FunnelConfig carries the funnel store tuning plus its compiled intent
// patterns. Values arrive pre-clamped from the config layer.
type FunnelConfig struct {
	WindowSize            int
	WindowMillis          int64
	ContextTTLMillis      int64
	FullSequenceWeight    int
	PartialSequenceWeight int

	ServiceOffer         *regexp.Regexp
	FreeOffer            *regexp.Regexp
	RepRequest           *regexp.Regexp
	PlatformRedirect     *regexp.Regexp
	InstructionInjection *regexp.Regexp
	CommunityAnchor      *regexp.Regexp
	NegativeContext      *regexp.Regexp
}

// DefaultPatternSet compiles the default core patterns.
func DefaultPatternSet() *PatternSet {
	return &PatternSet{
		Link:         regexp.MustCompile(DefaultLinkPattern),
		Urgency:      regexp.MustCompile(DefaultUrgencyPattern),
		PaymentFirst: regexp.MustCompile(DefaultPaymentFirstPattern),
		AccountData:  regexp.MustCompile(DefaultAccountDataPattern),
		TooGood:      regexp.MustCompile(DefaultTooGoodPattern),
		TrustBait:    regexp.MustCompile(DefaultTrustBaitPattern),
	}
}

// DefaultBehaviorPatternSet compiles the default behavior-flag patterns.
func DefaultBehaviorPatternSet() *BehaviorPatternSet {
	return &BehaviorPatternSet{
		ExternalPlatform: regexp.MustCompile(DefaultExternalPlatformPattern),
		UpfrontPayment:   regexp.MustCompile(DefaultPaymentFirstPattern),
		AccountData:      regexp.MustCompile(DefaultAccountDataPattern),
		MiddlemanClaim:   regexp.MustCompile(DefaultMiddlemanPattern),
	}
}

// Funnel store bounds. User values outside these ranges are clamped back to
// the defaults' neighborhood rather than rejected.
const (
	DefaultFunnelWindowSize            = 20
	DefaultFunnelWindowMillis          = 180_000
	DefaultFunnelContextTTLMillis      = 600_000
	DefaultFunnelFullSequenceWeight    = 28
	DefaultFunnelPartialSequenceWeight = 14

	MinFunnelWindowSize       = 5
	MaxFunnelWindowSize       = 60
	MinFunnelWindowMillis     = 15_000
	MaxFunnelWindowMillis     = 900_000
	MinFunnelContextTTLMillis = 60_000
	MaxFunnelContextTTLMillis = 7_200_000
)

// DefaultFunnelConfig compiles the default funnel configuration.
func DefaultFunnelConfig() FunnelConfig {
	return FunnelConfig{
		WindowSize:            DefaultFunnelWindowSize,
		WindowMillis:          DefaultFunnelWindowMillis,
		ContextTTLMillis:      DefaultFunnelContextTTLMillis,
		FullSequenceWeight:    DefaultFunnelFullSequenceWeight,
		PartialSequenceWeight: DefaultFunnelPartialSequenceWeight,
		ServiceOffer:          regexp.MustCompile(DefaultFunnelServiceOfferPattern),
		FreeOffer:             regexp.MustCompile(DefaultFunnelFreeOfferPattern),
		RepRequest:            regexp.MustCompile(DefaultFunnelRepRequestPattern),
		PlatformRedirect:      regexp.MustCompile(DefaultFunnelPlatformRedirectPattern),
		InstructionInjection:  regexp.MustCompile(DefaultFunnelInstructionPattern),
		CommunityAnchor:       regexp.MustCompile(DefaultFunnelCommunityAnchorPattern),
		NegativeContext:       regexp.MustCompile(DefaultFunnelNegativeContextPattern),
	}
}

// CompilePatternSet builds a PatternSet from raw sources, falling back to
// the defaults for any entry that does not compile.
func CompilePatternSet(link, urgency, paymentFirst, accountData, tooGood, trustBait string) *PatternSet {
	return &PatternSet{
		Link:         textutil.CompileOrDefault(link, DefaultLinkPattern),
		Urgency:      textutil.CompileOrDefault(urgency, DefaultUrgencyPattern),
		PaymentFirst: textutil.CompileOrDefault(paymentFirst, DefaultPaymentFirstPattern),
		AccountData:  textutil.CompileOrDefault(accountData, DefaultAccountDataPattern),
		TooGood:      textutil.CompileOrDefault(tooGood, DefaultTooGoodPattern),
		TrustBait:    textutil.CompileOrDefault(trustBait, DefaultTrustBaitPattern),
	}
}

// CompileBehaviorPatternSet builds a BehaviorPatternSet from raw sources
// with the same fallback discipline.
func CompileBehaviorPatternSet(externalPlatform, upfrontPayment, accountData, middleman string) *BehaviorPatternSet {
	return &BehaviorPatternSet{
		ExternalPlatform: textutil.CompileOrDefault(externalPlatform, DefaultExternalPlatformPattern),
		UpfrontPayment:   textutil.CompileOrDefault(upfrontPayment, DefaultPaymentFirstPattern),
		AccountData:      textutil.CompileOrDefault(accountData, DefaultAccountDataPattern),
		MiddlemanClaim:   textutil.CompileOrDefault(middleman, DefaultMiddlemanPattern),
	}
}
