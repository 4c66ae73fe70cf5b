package ai

import (
	"math"
	"sort"

	"github.com/tango-sec/scamscreener/pkg/textutil"
)

// Token feature prefixes. Unigrams carry "kw:", bigrams "ng2:" and
// trigrams "ng3:"; model files written before the prefixes may still hold
// bare unigrams, which the scorer falls back to.
const (
	kwPrefix  = "kw:"
	biPrefix  = "ng2:"
	triPrefix = "ng3:"
)

// ExtractFeatureTokens returns the deduplicated token features of a
// message in first-appearance order.
func ExtractFeatureTokens(text string) []string {
	words := textutil.Tokenize(text)
	if len(words) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(words)*3)
	var features []string
	add := func(feature string) {
		if _, dup := seen[feature]; dup {
			return
		}
		seen[feature] = struct{}{}
		features = append(features, feature)
	}

	for i, unigram := range words {
		add(kwPrefix + unigram)
		if i+1 < len(words) {
			add(biPrefix + unigram + " " + words[i+1])
		}
		if i+2 < len(words) {
			add(triPrefix + unigram + " " + words[i+1] + " " + words[i+2])
		}
	}
	return features
}

// lookupTokenWeight resolves a token feature against the weight map,
// trying the bare unigram when the prefixed key is absent.
func lookupTokenWeight(weights map[string]float64, feature string) (float64, bool) {
	if w, ok := weights[feature]; ok {
		return w, true
	}
	if len(feature) > len(kwPrefix) && feature[:len(kwPrefix)] == kwPrefix {
		if w, ok := weights[feature[len(kwPrefix):]]; ok {
			return w, true
		}
	}
	return 0, false
}

// BuildVocab ranks token features by how strongly their positive rate
// deviates from the base rate, damped by log-count, and returns the top
// maxSize entries. Tokens appearing fewer than minCount times are skipped.
func BuildVocab(samples []Sample, maxSize, minCount int) []string {
	if len(samples) == 0 {
		return nil
	}

	type tokenStat struct {
		count         int
		positiveCount int
	}
	stats := make(map[string]*tokenStat)
	positives := 0
	for _, sample := range samples {
		if sample.Label == 1 {
			positives++
		}
		for _, token := range ExtractFeatureTokens(sample.Message) {
			stat := stats[token]
			if stat == nil {
				stat = &tokenStat{}
				stats[token] = stat
			}
			stat.count++
			if sample.Label == 1 {
				stat.positiveCount++
			}
		}
	}

	baseRate := float64(positives) / float64(len(samples))
	type tokenScore struct {
		token string
		score float64
		count int
	}
	var ranked []tokenScore
	for token, stat := range stats {
		if stat.count < minCount {
			continue
		}
		tokenRate := float64(stat.positiveCount) / float64(stat.count)
		score := math.Abs(tokenRate-baseRate) * math.Log1p(float64(stat.count))
		if score > 0 {
			ranked = append(ranked, tokenScore{token: token, score: score, count: stat.count})
		}
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].token < ranked[j].token
	})

	if len(ranked) > maxSize {
		ranked = ranked[:maxSize]
	}
	vocab := make([]string, len(ranked))
	for i, entry := range ranked {
		vocab[i] = entry.token
	}
	return vocab
}
