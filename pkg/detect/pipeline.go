package detect

import (
	"context"
	"log"

	"github.com/tango-sec/scamscreener/pkg/ai"
	"github.com/tango-sec/scamscreener/pkg/rules"
	"github.com/tango-sec/scamscreener/pkg/similarity"
)

// PipelineSettings is the full configuration capability the pipeline
// needs. config.RuleView satisfies it.
type PipelineSettings interface {
	AlertSettings
	ModelSettings
}

// EvaluationConsumer observes every scored event, warned or not. Used for
// feedback metrics and auto-capture handoff.
type EvaluationConsumer func(Evaluation)

// Pipeline runs every stage for one chat line at a time. It owns all
// per-sender rolling state; callers serialize Process per conversation
// stream.
type Pipeline struct {
	mute      *MuteFilter
	whitelist *Whitelist

	behaviorAnalyzer *BehaviorAnalyzer
	ruleStage        *RuleSignalStage
	similarityStage  *SimilaritySignalStage
	behaviorStage    *BehaviorSignalStage
	intentTagger     *IntentTagger
	trendStore       *TrendStore
	trendStage       *TrendSignalStage
	funnelStore      *FunnelStore
	funnelStage      *FunnelSignalStage
	aiStage          *AiSignalStage
	scoringStage     *ScoringStage
	decisionStage    *DecisionStage

	sinks      []OutputSink
	consumers  []EvaluationConsumer
	resetHooks []func()
}

// NewPipeline wires every stage. detector may be nil to disable similarity
// matching; mute and whitelist may be nil to disable those filters.
func NewPipeline(
	ruleConfig rules.Config,
	settings PipelineSettings,
	scorer *ai.Scorer,
	detector *similarity.Detector,
	mute *MuteFilter,
	whitelist *Whitelist,
) *Pipeline {
	trendStore := NewTrendStore()
	funnelStore := NewFunnelStore(ruleConfig)
	return &Pipeline{
		mute:      mute,
		whitelist: whitelist,

		behaviorAnalyzer: NewBehaviorAnalyzer(ruleConfig),
		ruleStage:        NewRuleSignalStage(ruleConfig),
		similarityStage:  NewSimilaritySignalStage(ruleConfig, detector),
		behaviorStage:    NewBehaviorSignalStage(ruleConfig),
		intentTagger:     NewIntentTagger(ruleConfig),
		trendStore:       trendStore,
		trendStage:       NewTrendSignalStage(ruleConfig, trendStore),
		funnelStore:      funnelStore,
		funnelStage:      NewFunnelSignalStage(ruleConfig, funnelStore),
		aiStage:          NewAiSignalStage(ruleConfig, settings, scorer),
		scoringStage:     NewScoringStage(settings),
		decisionStage:    NewDecisionStage(settings, NewWarningDeduplicator()),
	}
}

// AddOutputSink registers a sink receiving every warned event.
func (p *Pipeline) AddOutputSink(sink OutputSink) {
	if sink != nil {
		p.sinks = append(p.sinks, sink)
	}
}

// AddEvaluationConsumer registers a consumer receiving every scored event.
func (p *Pipeline) AddEvaluationConsumer(consumer EvaluationConsumer) {
	if consumer != nil {
		p.consumers = append(p.consumers, consumer)
	}
}

// AddResetHook registers extra state to clear on Reset, such as the
// feedback service session.
func (p *Pipeline) AddResetHook(hook func()) {
	if hook != nil {
		p.resetHooks = append(p.resetHooks, hook)
	}
}

// Mute returns the mute filter for runtime pattern management. May be nil.
func (p *Pipeline) Mute() *MuteFilter { return p.mute }

// Whitelist returns the trusted-sender set. May be nil.
func (p *Pipeline) Whitelist() *Whitelist { return p.whitelist }

// Process runs all stages for one event. The boolean is false when the
// event was muted or its sender whitelisted; such events produce no
// evaluation. A stage that panics contributes no signals for this event
// and the rest of the pipeline continues.
func (p *Pipeline) Process(ctx context.Context, event MessageEvent) (Evaluation, bool) {
	if p.mute != nil && p.mute.ShouldBlock(event.RawMessage) {
		if blocked, notify := p.mute.NotifySummary(event.TimestampMs); notify {
			log.Printf("mute filter dropped %d message(s) since last summary", blocked)
		}
		return Evaluation{}, false
	}
	if p.whitelist != nil && p.whitelist.Contains(event.SenderName) {
		return Evaluation{}, false
	}

	analysis := p.analyzeSafely(event)

	signals := collectStageSignals("rule", func() []Signal {
		return p.ruleStage.CollectSignals(event)
	})
	skipExternalPlatform := false
	for _, signal := range signals {
		if signal.RuleID == rules.RuleDiscordHandle {
			skipExternalPlatform = true
			break
		}
	}

	signals = append(signals, collectStageSignals("similarity", func() []Signal {
		return p.similarityStage.CollectSignals(ctx, event)
	})...)
	signals = append(signals, collectStageSignals("behavior", func() []Signal {
		return p.behaviorStage.CollectSignals(analysis, skipExternalPlatform)
	})...)

	tagging := p.tagSafely(event, signals)

	signals = append(signals, collectStageSignals("trend", func() []Signal {
		return p.trendStage.CollectSignals(event, signals)
	})...)
	signals = append(signals, collectStageSignals("funnel", func() []Signal {
		return p.funnelStage.CollectSignals(event, tagging)
	})...)
	signals = append(signals, collectStageSignals("ai", func() []Signal {
		return p.aiStage.CollectSignals(event, analysis, tagging, signals)
	})...)

	result := p.scoringStage.Score(event, signals)
	decision := p.decisionStage.Decide(event, result)
	evaluation := Evaluation{Event: event, Result: result, Decision: decision}

	for _, consumer := range p.consumers {
		runConsumerSafely(consumer, evaluation)
	}
	if decision.ShouldWarn {
		for _, sink := range p.sinks {
			sink.Publish(event, result)
		}
	}
	return evaluation, true
}

// Reset clears all per-session rolling state: behavior streaks, trend and
// funnel histories, model timing context, warned pairs and any registered
// hooks.
func (p *Pipeline) Reset() {
	p.behaviorAnalyzer.Reset()
	p.trendStore.Reset()
	p.funnelStore.Reset()
	p.aiStage.Reset()
	p.decisionStage.Reset()
	for _, hook := range p.resetHooks {
		hook()
	}
}

func (p *Pipeline) analyzeSafely(event MessageEvent) (analysis BehaviorAnalysis) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("behavior analyzer panicked, continuing without flags: %v", r)
			analysis = BehaviorAnalysis{}
		}
	}()
	return p.behaviorAnalyzer.Analyze(event)
}

func (p *Pipeline) tagSafely(event MessageEvent, signals []Signal) (tagging TaggingResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("intent tagger panicked, continuing without tags: %v", r)
			tagging = EmptyTaggingResult()
		}
	}()
	return p.intentTagger.Tag(event, signals)
}

func collectStageSignals(stage string, fn func() []Signal) (out []Signal) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("%s stage panicked, dropping its signals: %v", stage, r)
			out = nil
		}
	}()
	return fn()
}

func runConsumerSafely(consumer EvaluationConsumer, evaluation Evaluation) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("evaluation consumer panicked: %v", r)
		}
	}()
	consumer(evaluation)
}
