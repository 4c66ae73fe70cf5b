// Package feedback aggregates funnel-detection metrics and user feedback
// marks across a session. Counters are mutated from pipeline and API
// threads under a single mutex and persisted in batches, never per event.
package feedback

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tango-sec/scamscreener/pkg/detect"
	"github.com/tango-sec/scamscreener/pkg/rules"
	"github.com/tango-sec/scamscreener/pkg/textutil"
)

// Feedback labels. A mark pairs one pending funnel detection with a
// verdict from whoever saw the warning.
const (
	LabelLegit = 0
	LabelScam  = 1
)

const (
	feedbackMatchTTLMillis = 30 * 60 * 1000
	saveIntervalMillis     = 30_000
	saveAfterUpdates       = 32
	uncertainMargin        = 5.0
)

// AlertLevelSource supplies the configured minimum alert level, read per
// call so config reloads take effect immediately. config.RuleView
// satisfies it.
type AlertLevelSource interface {
	MinAlertRiskLevel() rules.RiskLevel
}

// State is the persisted counter set.
type State struct {
	EvaluatedMessages      int64 `json:"evaluated_messages"`
	FunnelDetections       int64 `json:"funnel_detections"`
	UncertainBoundaryCases int64 `json:"uncertain_boundary_cases"`
	UserMarkedSamples      int64 `json:"user_marked_samples"`
	UserMarkedLegit        int64 `json:"user_marked_legit"`
	UserMarkedScam         int64 `json:"user_marked_scam"`
}

// Snapshot is the derived read-only view handed to callers.
type Snapshot struct {
	SessionID              string  `json:"session_id"`
	EvaluatedMessages      int64   `json:"evaluated_messages"`
	FunnelDetections       int64   `json:"funnel_detections"`
	UncertainBoundaryCases int64   `json:"uncertain_boundary_cases"`
	UserMarkedSamples      int64   `json:"user_marked_samples"`
	UserMarkedLegit        int64   `json:"user_marked_legit"`
	UserMarkedScam         int64   `json:"user_marked_scam"`
	FunnelDetectionRate    float64 `json:"funnel_detection_rate"`
	FalsePositiveRate      float64 `json:"false_positive_rate"`
	AlertThreshold         float64 `json:"alert_threshold"`
	UncertainMargin        float64 `json:"uncertain_margin"`
}

// Persister stores the counter state between sessions. A nil persister
// keeps everything in memory.
type Persister interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, state State) error
}

// MetricsService tracks funnel detections and user marks. All methods are
// safe for concurrent use.
type MetricsService struct {
	mu sync.Mutex

	levels    AlertLevelSource
	persister Persister

	sessionID        string
	state            State
	pendingByMessage map[string][]int64
	unsavedChanges   int64
	lastSaveMillis   int64

	now func() int64
}

// NewMetricsService builds the service, restoring persisted counters when
// a persister is given. levels must not be nil.
func NewMetricsService(levels AlertLevelSource, persister Persister) *MetricsService {
	s := &MetricsService{
		levels:           levels,
		persister:        persister,
		sessionID:        uuid.NewString(),
		pendingByMessage: make(map[string][]int64),
		now:              func() int64 { return time.Now().UnixMilli() },
	}
	s.lastSaveMillis = s.now()
	if persister != nil {
		state, err := persister.Load(context.Background())
		if err != nil {
			log.Printf("feedback metrics load failed, starting fresh: %v", err)
		} else {
			s.state = normalizeState(state)
		}
	}
	return s
}

// SessionID returns the identifier minted for this service instance.
func (s *MetricsService) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// RecordEvaluation folds one pipeline evaluation into the counters. Funnel
// detections open pending feedback slots keyed by normalized message text.
func (s *MetricsService) RecordEvaluation(evaluation detect.Evaluation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.EvaluatedMessages = safeIncrement(s.state.EvaluatedMessages)
	result := evaluation.Result
	if hasFunnelDetection(result) {
		s.state.FunnelDetections = safeIncrement(s.state.FunnelDetections)
		threshold := s.alertThreshold()
		if threshold > 0 && math.Abs(result.TotalScore-threshold) <= uncertainMargin {
			s.state.UncertainBoundaryCases = safeIncrement(s.state.UncertainBoundaryCases)
		}
		now := s.now()
		for _, message := range relatedMessages(evaluation) {
			key := fingerprint(message)
			if key == "" {
				continue
			}
			s.pendingByMessage[key] = append(s.pendingByMessage[key], now)
		}
		s.cleanupPending(now)
	}
	s.markDirtyAndMaybeSave(false)
}

// RecordUserMark consumes one pending slot for the message and counts the
// verdict. Marks with no matching pending detection are dropped so random
// feedback cannot skew the rates.
func (s *MetricsService) RecordUserMark(message string, label int) {
	if label != LabelLegit && label != LabelScam {
		return
	}
	key := fingerprint(message)
	if key == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.cleanupPending(now)
	queue := s.pendingByMessage[key]
	if len(queue) == 0 {
		return
	}
	queue = queue[1:]
	if len(queue) == 0 {
		delete(s.pendingByMessage, key)
	} else {
		s.pendingByMessage[key] = queue
	}

	s.state.UserMarkedSamples = safeIncrement(s.state.UserMarkedSamples)
	if label == LabelLegit {
		s.state.UserMarkedLegit = safeIncrement(s.state.UserMarkedLegit)
	} else {
		s.state.UserMarkedScam = safeIncrement(s.state.UserMarkedScam)
	}
	s.markDirtyAndMaybeSave(true)
}

// Snapshot returns the current counters and derived rates.
func (s *MetricsService) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cleanupPending(s.now())
	state := normalizeState(s.state)

	detectionRate := 0.0
	if state.EvaluatedMessages > 0 {
		detectionRate = float64(state.FunnelDetections) / float64(state.EvaluatedMessages)
	}
	falsePositiveRate := 0.0
	if state.UserMarkedSamples > 0 {
		falsePositiveRate = float64(state.UserMarkedLegit) / float64(state.UserMarkedSamples)
	}

	return Snapshot{
		SessionID:              s.sessionID,
		EvaluatedMessages:      state.EvaluatedMessages,
		FunnelDetections:       state.FunnelDetections,
		UncertainBoundaryCases: state.UncertainBoundaryCases,
		UserMarkedSamples:      state.UserMarkedSamples,
		UserMarkedLegit:        state.UserMarkedLegit,
		UserMarkedScam:         state.UserMarkedScam,
		FunnelDetectionRate:    detectionRate,
		FalsePositiveRate:      falsePositiveRate,
		AlertThreshold:         s.alertThreshold(),
		UncertainMargin:        uncertainMargin,
	}
}

// ResetSession zeroes every counter, drops pending feedback slots and mints
// a fresh session id. The zeroed state is persisted immediately.
func (s *MetricsService) ResetSession() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = State{}
	s.pendingByMessage = make(map[string][]int64)
	s.sessionID = uuid.NewString()
	s.markDirtyAndMaybeSave(true)
}

func (s *MetricsService) markDirtyAndMaybeSave(force bool) {
	s.unsavedChanges = safeIncrement(s.unsavedChanges)
	now := s.now()
	intervalElapsed := now-s.lastSaveMillis >= saveIntervalMillis
	if !force && s.unsavedChanges < saveAfterUpdates && !intervalElapsed {
		return
	}
	if s.persister != nil {
		if err := s.persister.Save(context.Background(), s.state); err != nil {
			log.Printf("feedback metrics save failed: %v", err)
		}
	}
	s.unsavedChanges = 0
	s.lastSaveMillis = now
}

func (s *MetricsService) alertThreshold() float64 {
	switch s.levels.MinAlertRiskLevel() {
	case rules.LevelCritical:
		return 70.0
	case rules.LevelHigh:
		return 40.0
	case rules.LevelMedium:
		return 20.0
	default:
		return 0.0
	}
}

func (s *MetricsService) cleanupPending(nowMs int64) {
	for key, queue := range s.pendingByMessage {
		idx := 0
		for idx < len(queue) && nowMs-queue[idx] > feedbackMatchTTLMillis {
			idx++
		}
		queue = queue[idx:]
		if len(queue) == 0 {
			delete(s.pendingByMessage, key)
		} else {
			s.pendingByMessage[key] = queue
		}
	}
}

func hasFunnelDetection(result detect.DetectionResult) bool {
	for _, rule := range result.TriggeredRules() {
		if rule == rules.RuleFunnelSequence || rule == rules.RuleLocalAiFunnel {
			return true
		}
	}
	return false
}

func relatedMessages(evaluation detect.Evaluation) []string {
	if len(evaluation.Result.EvaluatedMessages) > 0 {
		return evaluation.Result.EvaluatedMessages
	}
	if evaluation.Event.RawMessage != "" {
		return []string{evaluation.Event.RawMessage}
	}
	return nil
}

func fingerprint(message string) string {
	return textutil.NormalizeForMatch(message)
}

func safeIncrement(value int64) int64 {
	if value == math.MaxInt64 {
		return value
	}
	return value + 1
}

func normalizeState(state State) State {
	clamp := func(v int64) int64 {
		if v < 0 {
			return 0
		}
		return v
	}
	return State{
		EvaluatedMessages:      clamp(state.EvaluatedMessages),
		FunnelDetections:       clamp(state.FunnelDetections),
		UncertainBoundaryCases: clamp(state.UncertainBoundaryCases),
		UserMarkedSamples:      clamp(state.UserMarkedSamples),
		UserMarkedLegit:        clamp(state.UserMarkedLegit),
		UserMarkedScam:         clamp(state.UserMarkedScam),
	}
}
