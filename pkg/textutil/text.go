// Package textutil holds the small text transforms shared by the detection
// stages: match normalization, speaker anonymization, leet-folding and
// token entropy.
package textutil

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonAlnumRun  = regexp.MustCompile(`[^a-z0-9]+`)
	tokenPattern = regexp.MustCompile(`[a-z0-9_]{3,24}`)

	// NFKD plus combining-mark removal, so "dïscörd" folds to "discord"
	// before the leet substitution pass.
	diacriticFold = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// NormalizeForMatch lowercases the input and collapses every non-alphanumeric
// run into a single space. All regex rule matching runs on this form.
func NormalizeForMatch(input string) string {
	if input == "" {
		return ""
	}
	lowered := strings.ToLower(input)
	return strings.TrimSpace(nonAlnumRun.ReplaceAllString(lowered, " "))
}

// NormalizeMessage is the lighter normalization stored on the event itself.
func NormalizeMessage(message string) string {
	return strings.ToLower(strings.TrimSpace(message))
}

// AnonymizedSpeakerKey derives the stable, non-reversible identity used to
// key all per-sender rolling state. Blank names share one sentinel key.
func AnonymizedSpeakerKey(senderName string) string {
	if strings.TrimSpace(senderName) == "" {
		return "speaker-unknown"
	}
	normalized := strings.ToLower(strings.TrimSpace(senderName))
	sum := sha256.Sum256([]byte(normalized))
	return "speaker-" + hex.EncodeToString(sum[:8])
}

// FoldCompact lowercases, strips diacritics, maps common digit/symbol
// substitutions back to letters and drops everything non-alphanumeric.
// Catches obfuscated platform mentions like "d1sc0rd".
func FoldCompact(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	if folded, _, err := transform.String(diacriticFold, text); err == nil {
		text = folded
	}
	var out strings.Builder
	out.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch r {
		case '0':
			r = 'o'
		case '1', '!':
			r = 'i'
		case '3':
			r = 'e'
		case '4', '@':
			r = 'a'
		case '5', '$':
			r = 's'
		case '7':
			r = 't'
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			out.WriteRune(r)
		}
	}
	return out.String()
}

// Tokenize returns the lowercase word tokens (3-24 alphanumeric chars)
// used by phrase scoring, entropy and the model token features.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// TokenEntropy computes the Shannon entropy (bits) over the token
// distribution of the message.
func TokenEntropy(tokens []string) float64 {
	if len(tokens) == 0 {
		return 0
	}
	counts := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		counts[tok]++
	}
	total := float64(len(tokens))
	entropy := 0.0
	for _, count := range counts {
		p := float64(count) / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// CompileOrDefault compiles candidate, falling back to fallback when the
// user-supplied pattern does not compile. fallback must be valid.
func CompileOrDefault(candidate, fallback string) *regexp.Regexp {
	if candidate != "" {
		if re, err := regexp.Compile(candidate); err == nil {
			return re
		}
	}
	return regexp.MustCompile(fallback)
}
