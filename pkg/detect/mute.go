package detect

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// MuteFilter drops chat lines matching user-managed patterns before any
// detection work runs. Patterns compile case-insensitively; invalid or
// duplicate additions are rejected with an error instead of being stored.
type MuteFilter struct {
	mu sync.Mutex

	enabled           bool
	notifyEnabled     bool
	notifyIntervalSec int

	order    []string
	compiled map[string]*regexp.Regexp

	blockedSinceLastNotify int
	lastNotifyMs           int64
}

// NewMuteFilter builds a filter seeded with the given patterns. Seed
// entries that fail to compile are skipped silently; only interactive adds
// surface errors.
func NewMuteFilter(enabled, notifyEnabled bool, notifyIntervalSec int, seed []string) *MuteFilter {
	if notifyIntervalSec <= 0 {
		notifyIntervalSec = 30
	}
	f := &MuteFilter{
		enabled:           enabled,
		notifyEnabled:     notifyEnabled,
		notifyIntervalSec: notifyIntervalSec,
		compiled:          make(map[string]*regexp.Regexp),
	}
	for _, raw := range seed {
		_ = f.Add(raw)
	}
	return f
}

// Add registers a mute pattern. The pattern is trimmed and stored
// lowercase so add/remove round-trip regardless of input casing.
func (f *MuteFilter) Add(raw string) error {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return fmt.Errorf("mute pattern is empty")
	}
	compiled, err := regexp.Compile("(?i)" + normalized)
	if err != nil {
		return fmt.Errorf("mute pattern %q: %w", normalized, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, dup := f.compiled[normalized]; dup {
		return fmt.Errorf("mute pattern %q already present", normalized)
	}
	f.compiled[normalized] = compiled
	f.order = append(f.order, normalized)
	return nil
}

// Remove deletes a previously added pattern. Returns false when the
// pattern was not present.
func (f *MuteFilter) Remove(raw string) bool {
	normalized := strings.ToLower(strings.TrimSpace(raw))

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.compiled[normalized]; !ok {
		return false
	}
	delete(f.compiled, normalized)
	for i, p := range f.order {
		if p == normalized {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	return true
}

// List returns the current patterns sorted alphabetically.
func (f *MuteFilter) List() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.order))
	copy(out, f.order)
	sort.Strings(out)
	return out
}

// SetEnabled toggles the filter without touching the pattern set.
func (f *MuteFilter) SetEnabled(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = enabled
}

// ShouldBlock reports whether the raw message matches a mute pattern.
// Blocked lines are counted for the periodic notify summary.
func (f *MuteFilter) ShouldBlock(rawMessage string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.enabled || strings.TrimSpace(rawMessage) == "" {
		return false
	}
	for _, pattern := range f.order {
		if f.compiled[pattern].MatchString(rawMessage) {
			f.blockedSinceLastNotify++
			return true
		}
	}
	return false
}

// NotifySummary returns how many lines were muted since the last summary
// and resets the counter, but only once per notify interval. The boolean
// is false when notifications are disabled, nothing was blocked, or the
// interval has not elapsed yet.
func (f *MuteFilter) NotifySummary(nowMs int64) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.notifyEnabled || f.blockedSinceLastNotify == 0 {
		return 0, false
	}
	if f.lastNotifyMs != 0 && nowMs-f.lastNotifyMs < int64(f.notifyIntervalSec)*1000 {
		return 0, false
	}
	blocked := f.blockedSinceLastNotify
	f.blockedSinceLastNotify = 0
	f.lastNotifyMs = nowMs
	return blocked, true
}
