package detect

import (
	"fmt"
	"math"
	"time"

	"github.com/tango-sec/scamscreener/pkg/rules"
)

// Trend detection tuning. A sender needs a burst of rule-triggering
// messages inside the window before the bonus applies.
const (
	trendWindowMillis        = 45_000
	trendMinMessages         = 3
	trendMinTriggeredRecords = 2
	trendMinTotalScore       = 35
	trendHistoryTTLMillis    = 600_000
	trendCleanupInterval     = 64
	trendMaxSendersTracked   = 1_024
	trendMaxRecords          = 8
)

type trendRecord struct {
	timestampMs int64
	riskScore   int
	hadRules    bool
	message     string
}

type senderTrendHistory struct {
	records    []trendRecord
	lastSeenMs int64
}

// TrendEvaluation is the outcome of one trend check. Triggered is false
// when no bonus applies.
type TrendEvaluation struct {
	Triggered         bool
	BonusScore        int
	Detail            string
	EvaluatedMessages []string
}

// TrendStore tracks recent per-sender message scores inside a sliding
// window and awards a bonus when several already-suspicious messages pile
// up. Single-goroutine use; the pipeline owns it.
type TrendStore struct {
	historyBySender         map[string]*senderTrendHistory
	evaluationsSinceCleanup int
}

// NewTrendStore creates an empty store.
func NewTrendStore() *TrendStore {
	return &TrendStore{historyBySender: make(map[string]*senderTrendHistory)}
}

// Evaluate records the event and reports whether the trend bonus fires.
// existingSignals are the signals collected so far for this event; their
// summed weight becomes the record's score.
func (s *TrendStore) Evaluate(event MessageEvent, existingSignals []Signal) TrendEvaluation {
	if event.SenderName == "" {
		return TrendEvaluation{}
	}

	key := event.SenderKey()
	now := event.TimestampMs
	if now <= 0 {
		now = time.Now().UnixMilli()
	}
	_, existed := s.historyBySender[key]
	state := s.historyBySender[key]
	if state == nil {
		state = &senderTrendHistory{}
		s.historyBySender[key] = state
	}
	state.lastSeenMs = now
	state.records = trimTrendWindow(state.records, now)

	sum := 0.0
	hadRule := false
	for _, signal := range existingSignals {
		sum += signal.Weight
		if signal.HasRule() {
			hadRule = true
		}
	}
	state.records = append(state.records, trendRecord{
		timestampMs: now,
		riskScore:   int(math.Round(sum)),
		hadRules:    hadRule,
		message:     event.RawMessage,
	})
	if len(state.records) > trendMaxRecords {
		state.records = state.records[len(state.records)-trendMaxRecords:]
	}

	s.maybeCleanup(now, !existed)

	totalScore := 0
	triggered := 0
	var messages []string
	for _, record := range state.records {
		if record.riskScore > 0 {
			totalScore += record.riskScore
		}
		if record.hadRules {
			triggered++
		}
		if record.message != "" {
			messages = append(messages, record.message)
		}
	}

	if len(state.records) < trendMinMessages || triggered < trendMinTriggeredRecords || totalScore < trendMinTotalScore {
		return TrendEvaluation{}
	}

	detail := fmt.Sprintf("Conversation trend: %d messages in %ds, triggered messages=%d, cumulative score=%d (+%d)",
		len(state.records), trendWindowMillis/1000, triggered, totalScore, rules.WeightMultiMessageTrend)
	return TrendEvaluation{
		Triggered:         true,
		BonusScore:        rules.WeightMultiMessageTrend,
		Detail:            detail,
		EvaluatedMessages: messages,
	}
}

// Reset drops all tracked history.
func (s *TrendStore) Reset() {
	s.historyBySender = make(map[string]*senderTrendHistory)
	s.evaluationsSinceCleanup = 0
}

func (s *TrendStore) maybeCleanup(now int64, senderAdded bool) {
	s.evaluationsSinceCleanup++
	if !senderAdded && s.evaluationsSinceCleanup < trendCleanupInterval {
		return
	}
	s.evaluationsSinceCleanup = 0

	for key, state := range s.historyBySender {
		state.records = trimTrendWindow(state.records, now)
		if len(state.records) == 0 || now-state.lastSeenMs > trendHistoryTTLMillis {
			delete(s.historyBySender, key)
		}
	}
	for len(s.historyBySender) > trendMaxSendersTracked {
		oldestKey := ""
		oldestSeen := int64(math.MaxInt64)
		for key, state := range s.historyBySender {
			if oldestKey == "" || state.lastSeenMs < oldestSeen {
				oldestKey = key
				oldestSeen = state.lastSeenMs
			}
		}
		if oldestKey == "" {
			return
		}
		delete(s.historyBySender, oldestKey)
	}
}

func trimTrendWindow(records []trendRecord, now int64) []trendRecord {
	idx := 0
	for idx < len(records) && now-records[idx].timestampMs > trendWindowMillis {
		idx++
	}
	return records[idx:]
}

// TrendSignalStage wraps the trend store as a pipeline stage.
type TrendSignalStage struct {
	ruleConfig rules.Config
	store      *TrendStore
}

// NewTrendSignalStage creates the stage around a shared store.
func NewTrendSignalStage(ruleConfig rules.Config, store *TrendStore) *TrendSignalStage {
	return &TrendSignalStage{ruleConfig: ruleConfig, store: store}
}

// CollectSignals evaluates the trend and emits at most one bonus signal.
// The store is fed even while the rule is disabled so re-enabling it keeps
// the rolling history intact.
func (s *TrendSignalStage) CollectSignals(event MessageEvent, existingSignals []Signal) []Signal {
	if !s.ruleConfig.IsEnabled(rules.RuleMultiMessageTrend) {
		s.store.Evaluate(event, existingSignals)
		return nil
	}
	evaluation := s.store.Evaluate(event, existingSignals)
	if !evaluation.Triggered {
		return nil
	}
	return []Signal{NewSignal(
		SourceTrend, float64(evaluation.BonusScore), evaluation.Detail,
		rules.RuleMultiMessageTrend, evaluation.EvaluatedMessages,
	)}
}
