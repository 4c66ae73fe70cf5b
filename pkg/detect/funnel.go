package detect

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/tango-sec/scamscreener/pkg/rules"
)

const (
	funnelCleanupInterval   = 64
	funnelMaxSendersTracked = 1_024
)

type funnelRecord struct {
	timestampMs     int64
	channel         string
	message         string
	tags            TagSet
	negativeContext bool
}

type senderFunnelContext struct {
	records    []funnelRecord
	lastSeenMs int64
}

// FunnelEvaluation is the outcome of one funnel check. Triggered is false
// when no sequence was found.
type FunnelEvaluation struct {
	Triggered       bool
	BonusScore      int
	Detail          string
	RelatedMessages []string
}

// funnelStep is one slot in a sequence the store searches for. Offer steps
// skip records flagged as benign context (guild recruiting etc.).
type funnelStep struct {
	accepted            []IntentTag
	name                string
	ignoreNegativeOffer bool
}

func stepOf(tag IntentTag) funnelStep {
	return funnelStep{accepted: []IntentTag{tag}, name: stepName(tag)}
}

func stepOffer() funnelStep {
	return funnelStep{
		accepted:            []IntentTag{TagServiceOffer, TagFreeOffer},
		name:                "OFFER",
		ignoreNegativeOffer: true,
	}
}

func stepName(tag IntentTag) string {
	switch tag {
	case TagServiceOffer, TagFreeOffer:
		return "OFFER"
	case TagRepRequest:
		return "REP"
	case TagPlatformRedirect:
		return "REDIRECT"
	case TagInstructionInjection:
		return "INSTRUCTION"
	case TagPaymentUpfront:
		return "PAYMENT"
	default:
		return "ANCHOR"
	}
}

func (s funnelStep) matches(record funnelRecord) bool {
	if len(record.tags) == 0 {
		return false
	}
	if s.ignoreNegativeOffer && record.negativeContext {
		return false
	}
	for _, tag := range s.accepted {
		if record.tags.Has(tag) {
			return true
		}
	}
	return false
}

// FunnelStore tracks per-sender intent tags inside a sliding window and
// searches for funnel-shaped sequences: a hook, a reputation grab, a
// platform redirect and finally an instruction. Single-goroutine use.
type FunnelStore struct {
	ruleConfig              rules.Config
	contextBySender         map[string]*senderFunnelContext
	evaluationsSinceCleanup int
}

// NewFunnelStore creates an empty store reading tuning from the config on
// every evaluation.
func NewFunnelStore(ruleConfig rules.Config) *FunnelStore {
	return &FunnelStore{
		ruleConfig:      ruleConfig,
		contextBySender: make(map[string]*senderFunnelContext),
	}
}

// Evaluate records the event with its tags and reports whether a funnel
// sequence completed inside the window.
func (s *FunnelStore) Evaluate(event MessageEvent, tagging TaggingResult) FunnelEvaluation {
	if event.SenderName == "" {
		return FunnelEvaluation{}
	}

	config := s.ruleConfig.FunnelConfig()
	now := event.TimestampMs
	if now <= 0 {
		now = time.Now().UnixMilli()
	}

	key := event.SenderKey()
	_, existed := s.contextBySender[key]
	context := s.contextBySender[key]
	if context == nil {
		context = &senderFunnelContext{}
		s.contextBySender[key] = context
	}
	context.lastSeenMs = now
	context.records = pruneFunnelWindow(context.records, now, config.WindowMillis)
	context.records = append(context.records, funnelRecord{
		timestampMs:     now,
		channel:         safeFunnelChannel(event.Channel),
		message:         safeFunnelMessage(event.RawMessage),
		tags:            tagging.Tags,
		negativeContext: tagging.NegativeContext,
	})
	if len(context.records) > config.WindowSize {
		context.records = context.records[len(context.records)-config.WindowSize:]
	}

	s.runCleanupIfNeeded(now, config.WindowMillis, config.ContextTTLMillis, !existed)

	records := context.records
	full := findSequence(records, []funnelStep{
		stepOffer(), stepOf(TagRepRequest), stepOf(TagPlatformRedirect), stepOf(TagInstructionInjection),
	})
	repRedirect := findSequence(records, []funnelStep{stepOf(TagRepRequest), stepOf(TagPlatformRedirect)})
	redirectInstruction := findSequence(records, []funnelStep{stepOf(TagPlatformRedirect), stepOf(TagInstructionInjection)})
	offerPayment := findSequence(records, []funnelStep{stepOffer(), stepOf(TagPaymentUpfront)})

	if full == nil && repRedirect == nil && redirectInstruction == nil && offerPayment == nil {
		return FunnelEvaluation{}
	}

	var bonus int
	var steps []string
	var contributing []int
	switch {
	case full != nil:
		bonus = config.FullSequenceWeight
		steps = full.stepNames
		contributing = full.indexes
	case repRedirect != nil && redirectInstruction != nil:
		bonus = config.PartialSequenceWeight + 6
		steps = []string{"REP", "REDIRECT", "INSTRUCTION"}
		contributing = mergeIndexes(repRedirect.indexes, redirectInstruction.indexes)
	case repRedirect != nil:
		bonus = config.PartialSequenceWeight
		steps = repRedirect.stepNames
		contributing = repRedirect.indexes
	case redirectInstruction != nil:
		bonus = config.PartialSequenceWeight
		steps = redirectInstruction.stepNames
		contributing = redirectInstruction.indexes
	default:
		bonus = config.PartialSequenceWeight
		steps = offerPayment.stepNames
		contributing = offerPayment.indexes
	}

	var snippets []string
	var channelTrail []string
	for _, index := range contributing {
		if index < 0 || index >= len(records) {
			continue
		}
		record := records[index]
		if record.message != "" {
			snippets = append(snippets, record.message)
		}
		if record.channel != "" {
			channelTrail = append(channelTrail, record.channel)
		}
	}
	if len(snippets) > 4 {
		snippets = snippets[:4]
	}

	detail := fmt.Sprintf("Funnel sequence %s in %ds window (+%d)",
		strings.Join(steps, " -> "), maxInt64(1, config.WindowMillis/1000), bonus)
	if len(channelTrail) > 0 {
		detail += ", channels=" + strings.Join(channelTrail, ">")
	}

	return FunnelEvaluation{
		Triggered:       true,
		BonusScore:      bonus,
		Detail:          detail,
		RelatedMessages: snippets,
	}
}

// Reset drops all tracked contexts.
func (s *FunnelStore) Reset() {
	s.contextBySender = make(map[string]*senderFunnelContext)
	s.evaluationsSinceCleanup = 0
}

func (s *FunnelStore) runCleanupIfNeeded(now, windowMillis, ttlMillis int64, senderAdded bool) {
	s.evaluationsSinceCleanup++
	if !senderAdded && s.evaluationsSinceCleanup < funnelCleanupInterval {
		return
	}
	s.evaluationsSinceCleanup = 0

	for key, context := range s.contextBySender {
		context.records = pruneFunnelWindow(context.records, now, windowMillis)
		if len(context.records) == 0 || now-context.lastSeenMs > ttlMillis {
			delete(s.contextBySender, key)
		}
	}
	for len(s.contextBySender) > funnelMaxSendersTracked {
		oldestKey := ""
		oldestSeen := int64(math.MaxInt64)
		for key, context := range s.contextBySender {
			if oldestKey == "" || context.lastSeenMs < oldestSeen {
				oldestKey = key
				oldestSeen = context.lastSeenMs
			}
		}
		if oldestKey == "" {
			return
		}
		delete(s.contextBySender, oldestKey)
	}
}

func pruneFunnelWindow(records []funnelRecord, now, windowMillis int64) []funnelRecord {
	idx := 0
	for idx < len(records) && now-records[idx].timestampMs > windowMillis {
		idx++
	}
	return records[idx:]
}

type sequenceMatch struct {
	indexes   []int
	stepNames []string
}

// findSequence locates a strictly ordered subsequence of records matching
// the steps, each step after the previous match.
func findSequence(records []funnelRecord, steps []funnelStep) *sequenceMatch {
	if len(records) == 0 || len(steps) == 0 {
		return nil
	}
	match := &sequenceMatch{}
	fromIndex := 0
	for _, step := range steps {
		matched := -1
		for i := fromIndex; i < len(records); i++ {
			if step.matches(records[i]) {
				matched = i
				break
			}
		}
		if matched < 0 {
			return nil
		}
		match.indexes = append(match.indexes, matched)
		match.stepNames = append(match.stepNames, step.name)
		fromIndex = matched + 1
	}
	return match
}

// mergeIndexes unions two index lists preserving first-seen order.
func mergeIndexes(a, b []int) []int {
	seen := make(map[int]struct{}, len(a)+len(b))
	var out []int
	for _, idx := range append(append([]int{}, a...), b...) {
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		out = append(out, idx)
	}
	return out
}

func safeFunnelChannel(channel Channel) string {
	trimmed := strings.ToLower(strings.TrimSpace(string(channel)))
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}

func safeFunnelMessage(message string) string {
	replaced := strings.NewReplacer("\n", " ", "\r", " ").Replace(message)
	return strings.TrimSpace(replaced)
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// FunnelSignalStage wraps the funnel store as a pipeline stage.
type FunnelSignalStage struct {
	ruleConfig rules.Config
	store      *FunnelStore
}

// NewFunnelSignalStage creates the stage around a shared store.
func NewFunnelSignalStage(ruleConfig rules.Config, store *FunnelStore) *FunnelSignalStage {
	return &FunnelSignalStage{ruleConfig: ruleConfig, store: store}
}

// CollectSignals evaluates the funnel and emits at most one signal. The
// store keeps recording while the rule is disabled so history survives a
// toggle.
func (s *FunnelSignalStage) CollectSignals(event MessageEvent, tagging TaggingResult) []Signal {
	if !s.ruleConfig.IsEnabled(rules.RuleFunnelSequence) {
		s.store.Evaluate(event, tagging)
		return nil
	}
	evaluation := s.store.Evaluate(event, tagging)
	if !evaluation.Triggered {
		return nil
	}
	return []Signal{NewSignal(
		SourceFunnel, float64(evaluation.BonusScore), evaluation.Detail,
		rules.RuleFunnelSequence, evaluation.RelatedMessages,
	)}
}
