package detect

import (
	"fmt"
	"strings"
	"testing"

	"github.com/tango-sec/scamscreener/pkg/config"
	"github.com/tango-sec/scamscreener/pkg/rules"
)

func tagsOf(tags ...IntentTag) TaggingResult {
	set := TagSet{}
	for _, tag := range tags {
		set[tag] = struct{}{}
	}
	return TaggingResult{Tags: set}
}

func funnelEvent(message string, ts int64, channel Channel) MessageEvent {
	return NewMessageEvent("Funneler", message, ts, channel)
}

func TestFunnelStoreFullSequence(t *testing.T) {
	store := NewFunnelStore(newTestView(nil))

	store.Evaluate(funnelEvent("free carry anyone", 1_000, ChannelPublic), tagsOf(TagFreeOffer))
	store.Evaluate(funnelEvent("vouch me after", 2_000, ChannelPublic), tagsOf(TagRepRequest))
	store.Evaluate(funnelEvent("join my discord", 3_000, ChannelPM), tagsOf(TagPlatformRedirect))
	evaluation := store.Evaluate(funnelEvent("type this command", 4_000, ChannelPM), tagsOf(TagInstructionInjection))

	if !evaluation.Triggered {
		t.Fatalf("full chain should trigger")
	}
	if evaluation.BonusScore != rules.DefaultFunnelFullSequenceWeight {
		t.Errorf("bonus = %d, want %d", evaluation.BonusScore, rules.DefaultFunnelFullSequenceWeight)
	}
	if !strings.HasPrefix(evaluation.Detail, "Funnel sequence OFFER -> REP -> REDIRECT -> INSTRUCTION in 180s window (+28)") {
		t.Errorf("detail = %q", evaluation.Detail)
	}
	if !strings.Contains(evaluation.Detail, "channels=public>public>pm>pm") {
		t.Errorf("detail should carry the channel trail: %q", evaluation.Detail)
	}
	if len(evaluation.RelatedMessages) != 4 {
		t.Errorf("expected 4 snippets, got %v", evaluation.RelatedMessages)
	}
}

func TestFunnelStorePartialSequences(t *testing.T) {
	t.Run("rep then redirect", func(t *testing.T) {
		store := NewFunnelStore(newTestView(nil))
		store.Evaluate(funnelEvent("vouch me", 1_000, ChannelPublic), tagsOf(TagRepRequest))
		evaluation := store.Evaluate(funnelEvent("join vc", 2_000, ChannelPublic), tagsOf(TagPlatformRedirect))
		if !evaluation.Triggered || evaluation.BonusScore != rules.DefaultFunnelPartialSequenceWeight {
			t.Fatalf("expected partial bonus 14, got %+v", evaluation)
		}
		if !strings.Contains(evaluation.Detail, "REP -> REDIRECT") {
			t.Errorf("detail = %q", evaluation.Detail)
		}
	})

	t.Run("offer then payment", func(t *testing.T) {
		store := NewFunnelStore(newTestView(nil))
		store.Evaluate(funnelEvent("selling carries", 1_000, ChannelPublic), tagsOf(TagServiceOffer))
		evaluation := store.Evaluate(funnelEvent("pay first", 2_000, ChannelPublic), tagsOf(TagPaymentUpfront))
		if !evaluation.Triggered || evaluation.BonusScore != rules.DefaultFunnelPartialSequenceWeight {
			t.Fatalf("expected partial bonus 14, got %+v", evaluation)
		}
		if !strings.Contains(evaluation.Detail, "OFFER -> PAYMENT") {
			t.Errorf("detail = %q", evaluation.Detail)
		}
	})

	t.Run("both partials stack", func(t *testing.T) {
		store := NewFunnelStore(newTestView(nil))
		store.Evaluate(funnelEvent("vouch me", 1_000, ChannelPublic), tagsOf(TagRepRequest))
		store.Evaluate(funnelEvent("join my discord", 2_000, ChannelPublic), tagsOf(TagPlatformRedirect))
		evaluation := store.Evaluate(funnelEvent("type this", 3_000, ChannelPublic), tagsOf(TagInstructionInjection))
		if !evaluation.Triggered {
			t.Fatalf("two overlapping partials should trigger")
		}
		want := rules.DefaultFunnelPartialSequenceWeight + 6
		if evaluation.BonusScore != want {
			t.Errorf("bonus = %d, want %d", evaluation.BonusScore, want)
		}
		if !strings.Contains(evaluation.Detail, "REP -> REDIRECT -> INSTRUCTION") {
			t.Errorf("detail = %q", evaluation.Detail)
		}
		if len(evaluation.RelatedMessages) != 3 {
			t.Errorf("expected 3 merged snippets, got %v", evaluation.RelatedMessages)
		}
	})
}

func TestFunnelStoreNegativeContextExcludesOffer(t *testing.T) {
	store := NewFunnelStore(newTestView(nil))

	recruiting := tagsOf(TagServiceOffer)
	recruiting.NegativeContext = true
	store.Evaluate(funnelEvent("recruiting, we do free carries", 1_000, ChannelPublic), recruiting)
	evaluation := store.Evaluate(funnelEvent("pay first though", 2_000, ChannelPublic), tagsOf(TagPaymentUpfront))
	if evaluation.Triggered {
		t.Fatalf("offer flagged as benign context must not anchor a funnel: %+v", evaluation)
	}
}

func TestFunnelStoreWindowExpiry(t *testing.T) {
	store := NewFunnelStore(newTestView(nil))
	store.Evaluate(funnelEvent("free carry", 0, ChannelPublic), tagsOf(TagFreeOffer))
	store.Evaluate(funnelEvent("vouch me", 1_000, ChannelPublic), tagsOf(TagRepRequest))
	store.Evaluate(funnelEvent("join discord", 2_000, ChannelPublic), tagsOf(TagPlatformRedirect))
	// The default 180s window has long passed.
	evaluation := store.Evaluate(funnelEvent("type this", 400_000, ChannelPublic), tagsOf(TagInstructionInjection))
	if evaluation.Triggered {
		t.Fatalf("records outside the window must not chain: %+v", evaluation)
	}
}

func TestFunnelStoreSendersAreIndependent(t *testing.T) {
	store := NewFunnelStore(newTestView(nil))
	store.Evaluate(NewMessageEvent("AAA1", "vouch me", 1_000, ChannelPublic), tagsOf(TagRepRequest))
	evaluation := store.Evaluate(NewMessageEvent("BBB2", "join discord", 2_000, ChannelPublic), tagsOf(TagPlatformRedirect))
	if evaluation.Triggered {
		t.Fatalf("steps from different senders must not chain")
	}
}

func TestFunnelStoreReset(t *testing.T) {
	store := NewFunnelStore(newTestView(nil))
	store.Evaluate(funnelEvent("vouch me", 1_000, ChannelPublic), tagsOf(TagRepRequest))
	store.Reset()
	evaluation := store.Evaluate(funnelEvent("join discord", 2_000, ChannelPublic), tagsOf(TagPlatformRedirect))
	if evaluation.Triggered {
		t.Fatalf("reset should drop the context")
	}
}

func TestFunnelStageKeepsRecordingWhileDisabled(t *testing.T) {
	view := newTestView(&config.Config{DisabledRules: []string{"FUNNEL_SEQUENCE_PATTERN"}})
	store := NewFunnelStore(view)
	stage := NewFunnelSignalStage(view, store)

	// The first step lands while the rule is off.
	if signals := stage.CollectSignals(funnelEvent("vouch me", 1_000, ChannelPublic), tagsOf(TagRepRequest)); signals != nil {
		t.Fatalf("disabled stage should emit nothing, got %v", signals)
	}

	view.Reload(&config.Config{})
	signals := stage.CollectSignals(funnelEvent("join my discord", 2_000, ChannelPublic), tagsOf(TagPlatformRedirect))
	if len(signals) != 1 || signals[0].RuleID != rules.RuleFunnelSequence {
		t.Fatalf("expected a funnel signal after re-enable, got %v", signals)
	}
	if signals[0].Source != SourceFunnel || signals[0].Weight != 14 {
		t.Fatalf("unexpected funnel signal: %+v", signals[0])
	}
}

func TestFunnelStoreEvictsOldestSenders(t *testing.T) {
	store := NewFunnelStore(newTestView(nil))
	store.Evaluate(NewMessageEvent("Oldest", "vouch me", 1_000, ChannelPublic), tagsOf(TagRepRequest))

	for i := 0; i < funnelMaxSendersTracked; i++ {
		event := NewMessageEvent(fmt.Sprintf("Flood%d", i), "hello", 2_000+int64(i), ChannelPublic)
		store.Evaluate(event, tagsOf())
	}
	if len(store.contextBySender) != funnelMaxSendersTracked {
		t.Fatalf("tracked senders = %d, want %d", len(store.contextBySender), funnelMaxSendersTracked)
	}

	evaluation := store.Evaluate(NewMessageEvent("Oldest", "join discord", 10_000, ChannelPublic), tagsOf(TagPlatformRedirect))
	if evaluation.Triggered {
		t.Fatalf("evicted sender history must not chain: %+v", evaluation)
	}
}
