package rules

import (
	"regexp"
	"strings"
)

// regexEntryPrefix marks a word-list entry as a regex rather than a literal
// substring.
const regexEntryPrefix = "re:"

// KeywordMatcher is one parsed word-list entry: either a literal substring
// or a compiled regex. Entries are parsed once at construction instead of
// re-detecting the prefix on every match call.
type KeywordMatcher struct {
	literal string
	regex   *regexp.Regexp
}

// ParseKeyword builds a matcher from a raw word-list entry. A malformed
// regex entry degrades to literal containment on its pattern source.
func ParseKeyword(raw string) KeywordMatcher {
	if !strings.HasPrefix(raw, regexEntryPrefix) {
		return KeywordMatcher{literal: raw}
	}
	source := strings.TrimPrefix(raw, regexEntryPrefix)
	if source == "" {
		return KeywordMatcher{}
	}
	re, err := regexp.Compile(source)
	if err != nil {
		return KeywordMatcher{literal: source}
	}
	return KeywordMatcher{regex: re}
}

// ParseKeywords parses a whole word list.
func ParseKeywords(raw []string) []KeywordMatcher {
	out := make([]KeywordMatcher, 0, len(raw))
	for _, entry := range raw {
		out = append(out, ParseKeyword(entry))
	}
	return out
}

// Matches reports whether the matcher hits anywhere in text.
func (m KeywordMatcher) Matches(text string) bool {
	if m.regex != nil {
		return m.regex.MatchString(text)
	}
	if m.literal == "" {
		return false
	}
	return strings.Contains(text, m.literal)
}

// AnyMatch reports whether any matcher in the list hits.
func AnyMatch(matchers []KeywordMatcher, text string) bool {
	for _, m := range matchers {
		if m.Matches(text) {
			return true
		}
	}
	return false
}
