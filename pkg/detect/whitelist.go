package detect

import (
	"sort"
	"strings"
	"sync"
)

// Whitelist short-circuits detection for trusted senders. Names are stored
// trimmed and lowercased; lookups never allocate.
type Whitelist struct {
	mu      sync.RWMutex
	senders map[string]struct{}
}

// NewWhitelist builds a whitelist from the configured sender names.
func NewWhitelist(names []string) *Whitelist {
	w := &Whitelist{senders: make(map[string]struct{}, len(names))}
	for _, name := range names {
		w.Add(name)
	}
	return w
}

// Add registers a sender. Blank names are ignored.
func (w *Whitelist) Add(name string) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return
	}
	w.mu.Lock()
	w.senders[normalized] = struct{}{}
	w.mu.Unlock()
}

// Remove deletes a sender, returning false when it was not present.
func (w *Whitelist) Remove(name string) bool {
	normalized := strings.ToLower(strings.TrimSpace(name))
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.senders[normalized]; !ok {
		return false
	}
	delete(w.senders, normalized)
	return true
}

// Contains reports whether the sender is whitelisted. A blank sender is
// never whitelisted.
func (w *Whitelist) Contains(name string) bool {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return false
	}
	w.mu.RLock()
	_, ok := w.senders[normalized]
	w.mu.RUnlock()
	return ok
}

// List returns all whitelisted senders sorted alphabetically.
func (w *Whitelist) List() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, 0, len(w.senders))
	for name := range w.senders {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
