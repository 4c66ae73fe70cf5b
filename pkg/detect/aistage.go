package detect

import (
	"fmt"
	"math"

	"github.com/tango-sec/scamscreener/pkg/ai"
	"github.com/tango-sec/scamscreener/pkg/rules"
)

// Funnel step depth at which the funnel head becomes worth evaluating.
const minFunnelStepForModel = 2

// Substring cues for the model's coarse context booleans, checked against
// the normalized message.
var (
	tooGoodCues      = []string{"free", "100 safe", "guaranteed", "garantiert", "dupe"}
	spamCues         = []string{"spam", "last chance", "cheap", "buy now", "limited"}
	asksForStuffCues = []string{"borrow", "lend me", "give me", "can i have"}
	advertisingCues  = []string{"/visit", "join my", "shop", "selling", "carry"}
)

// ModelSettings is the slice of configuration the AI stage reads per
// event. config.RuleView satisfies it.
type ModelSettings interface {
	LocalAiEnabled() bool
	LocalAiMaxScore() int
	LocalAiTriggerProbability() float64
	LocalAiFunnelMaxScore() int
	LocalAiFunnelThresholdBonus() float64
}

// intentRecord is one tagged message in the model's funnel context.
type intentRecord struct {
	timestampMs   int64
	tags          TagSet
	negativeOffer bool
}

// funnelSnapshot summarizes how deep into the funnel a sender currently
// is, for the model's context features.
type funnelSnapshot struct {
	stepIndex    int
	score        float64
	fullChain    bool
	partialChain bool
}

// funnelContextTracker keeps the model's own per-sender intent history,
// separate from the funnel store so the signal and the feature cannot
// feed back into each other.
type funnelContextTracker struct {
	ruleConfig      rules.Config
	historyBySender map[string][]intentRecord
}

func newFunnelContextTracker(ruleConfig rules.Config) *funnelContextTracker {
	return &funnelContextTracker{
		ruleConfig:      ruleConfig,
		historyBySender: make(map[string][]intentRecord),
	}
}

func (t *funnelContextTracker) update(senderKey string, timestampMs int64, tagging TaggingResult) funnelSnapshot {
	if senderKey == "" {
		return funnelSnapshot{}
	}

	cfg := t.ruleConfig.FunnelConfig()
	history := t.historyBySender[senderKey]

	idx := 0
	for idx < len(history) && timestampMs-history[idx].timestampMs > cfg.WindowMillis {
		idx++
	}
	history = history[idx:]
	history = append(history, intentRecord{
		timestampMs:   timestampMs,
		tags:          tagging.Tags,
		negativeOffer: tagging.NegativeContext,
	})
	if len(history) > cfg.WindowSize {
		history = history[len(history)-cfg.WindowSize:]
	}
	t.historyBySender[senderKey] = history

	offerIdx := findIntent(history, 0, TagServiceOffer, TagFreeOffer)
	payIdx := -1
	repIdx := -1
	if offerIdx >= 0 {
		payIdx = findIntent(history, offerIdx+1, TagPaymentUpfront)
		repIdx = findIntent(history, offerIdx+1, TagRepRequest)
	}
	redIdx := -1
	if repIdx >= 0 {
		redIdx = findIntent(history, repIdx+1, TagPlatformRedirect)
	}
	instIdx := -1
	if redIdx >= 0 {
		instIdx = findIntent(history, redIdx+1, TagInstructionInjection)
	}

	simpleRepRed := findIntentSequence(history, TagRepRequest, TagPlatformRedirect)
	simpleRedInst := findIntentSequence(history, TagPlatformRedirect, TagInstructionInjection)
	simpleOfferPay := -1
	if offerIdx >= 0 {
		simpleOfferPay = findIntent(history, offerIdx+1, TagPaymentUpfront)
	}

	stepIndex := 0
	if offerIdx >= 0 {
		stepIndex = 1
	}
	if repIdx >= 0 || payIdx >= 0 {
		stepIndex = 2
	}
	if redIdx >= 0 {
		stepIndex = 3
	}
	if instIdx >= 0 {
		stepIndex = 4
	}

	fullChain := instIdx >= 0
	partialChain := !fullChain && (simpleRepRed >= 0 || simpleRedInst >= 0 || simpleOfferPay >= 0)

	score := 0.0
	switch {
	case fullChain:
		score = float64(cfg.FullSequenceWeight)
	case partialChain:
		score = float64(cfg.PartialSequenceWeight)
		if simpleRepRed >= 0 && simpleRedInst >= 0 {
			score += 6.0
		}
	}

	return funnelSnapshot{stepIndex: stepIndex, score: score, fullChain: fullChain, partialChain: partialChain}
}

func (t *funnelContextTracker) reset() {
	t.historyBySender = make(map[string][]intentRecord)
}

func findIntent(history []intentRecord, fromIndex int, tags ...IntentTag) int {
	for i := max(0, fromIndex); i < len(history); i++ {
		record := history[i]
		if len(record.tags) == 0 {
			continue
		}
		for _, tag := range tags {
			if (tag == TagServiceOffer || tag == TagFreeOffer) && record.negativeOffer {
				continue
			}
			if record.tags.Has(tag) {
				return i
			}
		}
	}
	return -1
}

func findIntentSequence(history []intentRecord, seq ...IntentTag) int {
	from := 0
	last := -1
	for _, tag := range seq {
		last = findIntent(history, from, tag)
		if last < 0 {
			return -1
		}
		from = last + 1
	}
	return last
}

// signalHistogram counts already-collected signals per source for the
// model's context features.
type signalHistogram struct {
	ruleHits       int
	similarityHits int
	behaviorHits   int
	trendHits      int
	funnelHits     int
}

func histogramFrom(signals []Signal) signalHistogram {
	var h signalHistogram
	for _, signal := range signals {
		if signal.Source == SourceRule {
			h.ruleHits++
		}
		if signal.RuleID == rules.RuleSimilarityMatch {
			h.similarityHits++
		}
		if signal.Source == SourceBehavior {
			h.behaviorHits++
		}
		if signal.Source == SourceTrend {
			h.trendHits++
		}
		if signal.Source == SourceFunnel {
			h.funnelHits++
		}
	}
	return h
}

// AiSignalStage feeds the local model and emits up to two signals: the
// general risk head and the funnel head.
type AiSignalStage struct {
	ruleConfig rules.Config
	settings   ModelSettings
	scorer     *ai.Scorer

	funnelTracker          *funnelContextTracker
	lastTimestampBySpeaker map[string]int64
}

// NewAiSignalStage creates the stage.
func NewAiSignalStage(ruleConfig rules.Config, settings ModelSettings, scorer *ai.Scorer) *AiSignalStage {
	return &AiSignalStage{
		ruleConfig:             ruleConfig,
		settings:               settings,
		scorer:                 scorer,
		funnelTracker:          newFunnelContextTracker(ruleConfig),
		lastTimestampBySpeaker: make(map[string]int64),
	}
}

// CollectSignals scores the event with the local model. Returns nothing
// when the model is disabled or neither head triggers.
func (s *AiSignalStage) CollectSignals(event MessageEvent, analysis BehaviorAnalysis, tagging TaggingResult, existingSignals []Signal) []Signal {
	if !s.settings.LocalAiEnabled() {
		return nil
	}
	riskEnabled := s.ruleConfig.IsEnabled(rules.RuleLocalAiRisk)
	funnelEnabled := s.ruleConfig.IsEnabled(rules.RuleLocalAiFunnel)
	if !riskEnabled && !funnelEnabled {
		return nil
	}

	speakerKey := event.SenderKey()
	normalized := event.Normalized
	funnel := s.funnelTracker.update(speakerKey, event.TimestampMs, tagging)
	hits := histogramFrom(existingSignals)

	context := ai.BehaviorContext{
		Message: event.Normalized,
		Channel: string(event.Channel),
		DeltaMs: s.computeDeltaMillis(speakerKey, event.TimestampMs),

		PushesExternalPlatform:      analysis.PushesExternalPlatform,
		DemandsUpfrontPayment:       analysis.DemandsUpfrontPayment,
		RequestsSensitiveData:       analysis.RequestsSensitiveData,
		ClaimsMiddlemanWithoutProof: analysis.ClaimsMiddlemanWithoutProof,
		RepeatedContactAttempts:     analysis.RepeatedContactCount,

		TooGoodToBeTrue: containsAny(normalized, tooGoodCues),
		IsSpam:          containsAny(normalized, spamCues),
		AsksForStuff:    containsAny(normalized, asksForStuffCues),
		Advertising:     containsAny(normalized, advertisingCues),

		IntentOffer:           tagging.Tags.Has(TagServiceOffer) || tagging.Tags.Has(TagFreeOffer),
		IntentRep:             tagging.Tags.Has(TagRepRequest),
		IntentRedirect:        tagging.Tags.Has(TagPlatformRedirect),
		IntentInstruction:     tagging.Tags.Has(TagInstructionInjection),
		IntentPaymentUpfront:  tagging.Tags.Has(TagPaymentUpfront),
		IntentCommunityAnchor: tagging.Tags.Has(TagCommunityAnchor),

		FunnelStepIndex:     funnel.stepIndex,
		FunnelSequenceScore: funnel.score,
		FunnelFullChain:     funnel.fullChain,
		FunnelPartialChain:  funnel.partialChain,

		RuleHits:       hits.ruleHits,
		SimilarityHits: hits.similarityHits,
		BehaviorHits:   hits.behaviorHits,
		TrendHits:      hits.trendHits,
		FunnelHits:     hits.funnelHits,
	}

	var out []Signal

	if riskEnabled {
		trigger := s.settings.LocalAiTriggerProbability()
		result := s.scorer.Score(context, s.settings.LocalAiMaxScore(), trigger)
		if result.Triggered && result.Score > 0 {
			evidence := fmt.Sprintf("Local model probability=%.3f, threshold=%.3f (+%d)\n%s",
				result.Probability, trigger, result.Score, result.Explanation)
			out = append(out, NewSignal(SourceAI, float64(result.Score), evidence, rules.RuleLocalAiRisk, nil))
		}
	}

	if funnelEnabled && shouldEvaluateFunnelModel(context) {
		trigger := math.Min(0.98, s.settings.LocalAiTriggerProbability()+s.settings.LocalAiFunnelThresholdBonus())
		maxScore := min(s.settings.LocalAiMaxScore(), s.settings.LocalAiFunnelMaxScore())
		result := s.scorer.ScoreFunnelOnly(context, maxScore, trigger)
		if result.Triggered && result.Score > 0 {
			evidence := fmt.Sprintf("Funnel model probability=%.3f, threshold=%.3f (+%d), step=%d, sequence=%.1f, full=%t, partial=%t\n%s",
				result.Probability, trigger, result.Score,
				context.FunnelStepIndex, context.FunnelSequenceScore,
				context.FunnelFullChain, context.FunnelPartialChain, result.Explanation)
			out = append(out, NewSignal(SourceAI, float64(result.Score), evidence, rules.RuleLocalAiFunnel, nil))
		}
	}

	return out
}

// Reset clears the funnel context and inter-message timing state.
func (s *AiSignalStage) Reset() {
	s.funnelTracker.reset()
	s.lastTimestampBySpeaker = make(map[string]int64)
}

func (s *AiSignalStage) computeDeltaMillis(speakerKey string, timestampMs int64) int64 {
	if speakerKey == "" {
		return 0
	}
	previous, seen := s.lastTimestampBySpeaker[speakerKey]
	s.lastTimestampBySpeaker[speakerKey] = timestampMs
	if !seen || previous <= 0 || timestampMs <= previous {
		return 0
	}
	return timestampMs - previous
}

func shouldEvaluateFunnelModel(context ai.BehaviorContext) bool {
	if context.FunnelFullChain || context.FunnelPartialChain {
		return true
	}
	if context.FunnelStepIndex >= minFunnelStepForModel {
		return true
	}
	return context.FunnelHits > 0
}
