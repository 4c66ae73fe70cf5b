package feedback

import (
	"context"
	"testing"

	"github.com/tango-sec/scamscreener/pkg/detect"
	"github.com/tango-sec/scamscreener/pkg/rules"
)

type stubLevels struct {
	level rules.RiskLevel
}

func (s *stubLevels) MinAlertRiskLevel() rules.RiskLevel { return s.level }

type memPersister struct {
	state     State
	saveCalls int
}

func (p *memPersister) Load(context.Context) (State, error) { return p.state, nil }

func (p *memPersister) Save(_ context.Context, state State) error {
	p.state = state
	p.saveCalls++
	return nil
}

func newService(level rules.RiskLevel, persister Persister) *MetricsService {
	s := NewMetricsService(&stubLevels{level: level}, persister)
	clock := int64(1_000_000)
	s.now = func() int64 { return clock }
	return s
}

func funnelEvaluation(score float64, messages ...string) detect.Evaluation {
	return detect.Evaluation{
		Event: detect.NewMessageEvent("Funneler", "raw line", 1_000, detect.ChannelPublic),
		Result: detect.DetectionResult{
			TotalScore:        score,
			Level:             rules.MapLevel(score),
			Signals:           []detect.Signal{detect.NewSignal(detect.SourceFunnel, 14, "d", rules.RuleFunnelSequence, nil)},
			EvaluatedMessages: messages,
		},
	}
}

func plainEvaluation() detect.Evaluation {
	return detect.Evaluation{
		Event: detect.NewMessageEvent("Someone", "hello", 1_000, detect.ChannelPublic),
		Result: detect.DetectionResult{
			Signals: []detect.Signal{detect.NewSignal(detect.SourceRule, 20, "e", rules.RuleSuspiciousLink, nil)},
		},
	}
}

func TestRecordEvaluationCounters(t *testing.T) {
	s := newService(rules.LevelHigh, nil)

	s.RecordEvaluation(plainEvaluation())
	s.RecordEvaluation(funnelEvaluation(42, "pay first now"))
	s.RecordEvaluation(funnelEvaluation(90, "join my discord"))

	snap := s.Snapshot()
	if snap.EvaluatedMessages != 3 || snap.FunnelDetections != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}
	// 42 sits within the margin of the HIGH threshold 40; 90 does not.
	if snap.UncertainBoundaryCases != 1 {
		t.Fatalf("uncertain = %d, want 1", snap.UncertainBoundaryCases)
	}
	if snap.AlertThreshold != 40.0 || snap.UncertainMargin != uncertainMargin {
		t.Fatalf("thresholds = %+v", snap)
	}
	if snap.FunnelDetectionRate != 2.0/3.0 {
		t.Fatalf("detection rate = %v", snap.FunnelDetectionRate)
	}
	if snap.SessionID == "" {
		t.Fatalf("session id should be minted")
	}
}

func TestRecordUserMarkConsumesPendingSlot(t *testing.T) {
	s := newService(rules.LevelHigh, nil)
	s.RecordEvaluation(funnelEvaluation(50, "Pay First, NOW!"))

	// Matching runs over normalized text.
	s.RecordUserMark("pay first now", LabelScam)
	snap := s.Snapshot()
	if snap.UserMarkedSamples != 1 || snap.UserMarkedScam != 1 || snap.UserMarkedLegit != 0 {
		t.Fatalf("snapshot = %+v", snap)
	}

	// The one slot is spent; a repeat mark is dropped.
	s.RecordUserMark("pay first now", LabelScam)
	if got := s.Snapshot().UserMarkedSamples; got != 1 {
		t.Fatalf("repeat mark should be dropped, samples = %d", got)
	}
}

func TestRecordUserMarkDropsUnmatched(t *testing.T) {
	s := newService(rules.LevelHigh, nil)
	s.RecordEvaluation(funnelEvaluation(50, "pay first now"))

	s.RecordUserMark("something never warned about", LabelLegit)
	s.RecordUserMark("pay first now", 5)
	s.RecordUserMark("", LabelLegit)
	if got := s.Snapshot().UserMarkedSamples; got != 0 {
		t.Fatalf("unmatched or invalid marks must not count, samples = %d", got)
	}
}

func TestPendingSlotsExpire(t *testing.T) {
	s := NewMetricsService(&stubLevels{level: rules.LevelHigh}, nil)
	clock := int64(1_000_000)
	s.now = func() int64 { return clock }

	s.RecordEvaluation(funnelEvaluation(50, "pay first now"))
	clock += 31 * 60 * 1000
	s.RecordUserMark("pay first now", LabelScam)
	if got := s.Snapshot().UserMarkedSamples; got != 0 {
		t.Fatalf("marks after the 30min window must be dropped, samples = %d", got)
	}
}

func TestBatchedPersistence(t *testing.T) {
	persister := &memPersister{}
	s := newService(rules.LevelHigh, persister)
	s.lastSaveMillis = s.now()

	for i := 0; i < saveAfterUpdates-1; i++ {
		s.RecordEvaluation(plainEvaluation())
	}
	if persister.saveCalls != 0 {
		t.Fatalf("no save before the batch threshold, got %d", persister.saveCalls)
	}
	s.RecordEvaluation(plainEvaluation())
	if persister.saveCalls != 1 {
		t.Fatalf("batch threshold should flush once, got %d", persister.saveCalls)
	}
	if persister.state.EvaluatedMessages != int64(saveAfterUpdates) {
		t.Fatalf("persisted state = %+v", persister.state)
	}
}

func TestIntervalPersistence(t *testing.T) {
	persister := &memPersister{}
	s := NewMetricsService(&stubLevels{level: rules.LevelHigh}, persister)
	clock := int64(1_000_000)
	s.now = func() int64 { return clock }
	s.lastSaveMillis = clock

	s.RecordEvaluation(plainEvaluation())
	if persister.saveCalls != 0 {
		t.Fatalf("within the interval nothing flushes")
	}
	clock += saveIntervalMillis
	s.RecordEvaluation(plainEvaluation())
	if persister.saveCalls != 1 {
		t.Fatalf("elapsed interval should flush, got %d", persister.saveCalls)
	}
}

func TestResetSession(t *testing.T) {
	persister := &memPersister{}
	s := newService(rules.LevelHigh, persister)
	before := s.SessionID()

	s.RecordEvaluation(funnelEvaluation(50, "pay first now"))
	s.ResetSession()

	snap := s.Snapshot()
	if snap.EvaluatedMessages != 0 || snap.FunnelDetections != 0 {
		t.Fatalf("reset should zero the counters: %+v", snap)
	}
	if snap.SessionID == before {
		t.Fatalf("reset should mint a new session id")
	}
	if persister.saveCalls == 0 {
		t.Fatalf("reset persists immediately")
	}
	s.RecordUserMark("pay first now", LabelScam)
	if s.Snapshot().UserMarkedSamples != 0 {
		t.Fatalf("pending slots must not survive a reset")
	}
}

func TestNewMetricsServiceRestoresState(t *testing.T) {
	persister := &memPersister{state: State{EvaluatedMessages: 10, FunnelDetections: -4}}
	s := NewMetricsService(&stubLevels{level: rules.LevelMedium}, persister)

	snap := s.Snapshot()
	if snap.EvaluatedMessages != 10 {
		t.Fatalf("persisted counters should be restored: %+v", snap)
	}
	if snap.FunnelDetections != 0 {
		t.Fatalf("negative persisted values clamp to zero: %+v", snap)
	}
	if snap.AlertThreshold != 20.0 {
		t.Fatalf("MEDIUM maps to threshold 20, got %v", snap.AlertThreshold)
	}
}
