package detect

import "testing"

func TestMuteFilterAddRemove(t *testing.T) {
	f := NewMuteFilter(true, false, 30, nil)

	if err := f.Add("free coins"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := f.Add("FREE COINS"); err == nil {
		t.Fatalf("duplicate add should fail regardless of casing")
	}
	if err := f.Add("("); err == nil {
		t.Fatalf("invalid regex should be rejected")
	}
	if err := f.Add("   "); err == nil {
		t.Fatalf("blank pattern should be rejected")
	}

	if !f.Remove("Free Coins") {
		t.Fatalf("remove should match case-insensitively")
	}
	if f.Remove("free coins") {
		t.Fatalf("second remove should report absence")
	}
	if len(f.List()) != 0 {
		t.Fatalf("expected empty pattern list, got %v", f.List())
	}
}

func TestMuteFilterShouldBlock(t *testing.T) {
	f := NewMuteFilter(true, false, 30, []string{"visit my shop"})

	if !f.ShouldBlock("VISIT MY SHOP at spawn") {
		t.Fatalf("matching is case-insensitive")
	}
	if f.ShouldBlock("nothing to see") {
		t.Fatalf("non-matching line should pass")
	}
	if f.ShouldBlock("   ") {
		t.Fatalf("blank line should pass")
	}

	f.SetEnabled(false)
	if f.ShouldBlock("visit my shop") {
		t.Fatalf("disabled filter should pass everything")
	}
}

func TestMuteFilterSeedSkipsInvalid(t *testing.T) {
	f := NewMuteFilter(true, false, 30, []string{"ok-pattern", "(", ""})
	if got := len(f.List()); got != 1 {
		t.Fatalf("expected 1 surviving seed pattern, got %d: %v", got, f.List())
	}
}

func TestMuteFilterNotifySummary(t *testing.T) {
	f := NewMuteFilter(true, true, 30, []string{"spam"})

	if _, notify := f.NotifySummary(1_000); notify {
		t.Fatalf("nothing blocked yet, no summary expected")
	}

	f.ShouldBlock("spam spam")
	f.ShouldBlock("more spam")
	blocked, notify := f.NotifySummary(10_000)
	if !notify || blocked != 2 {
		t.Fatalf("expected first summary with 2 blocked, got (%d, %v)", blocked, notify)
	}

	// Counter resets; within the interval no second summary fires even
	// after more blocks.
	f.ShouldBlock("spam again")
	if _, notify := f.NotifySummary(20_000); notify {
		t.Fatalf("summary should be rate limited inside the interval")
	}
	blocked, notify = f.NotifySummary(41_000)
	if !notify || blocked != 1 {
		t.Fatalf("expected summary after the interval, got (%d, %v)", blocked, notify)
	}
}

func TestMuteFilterNotifyDisabled(t *testing.T) {
	f := NewMuteFilter(true, false, 30, []string{"spam"})
	f.ShouldBlock("spam")
	if _, notify := f.NotifySummary(100_000); notify {
		t.Fatalf("notifications are disabled")
	}
}
