// Package similarity matches incoming chat lines against a corpus of known
// scam lines. Retrieval runs over hashed character/token n-gram vectors in
// an in-memory chromem collection; every retrieved candidate is confirmed
// with a Levenshtein ratio before it may produce a signal.
package similarity

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/tango-sec/scamscreener/pkg/textutil"
)

const (
	embeddingDim     = 256
	queryDepth       = 3
	minMessageLength = 6
	maxCompareLength = 160
)

// KnownLine is one corpus entry.
type KnownLine struct {
	Text     string
	Category string
}

// Match is a confirmed corpus hit.
type Match struct {
	KnownLine string
	Category  string
	Ratio     float64
}

// Detector retrieves nearest corpus lines and confirms them by edit
// distance. Safe for concurrent use once LoadCorpus has run.
type Detector struct {
	db         *chromem.DB
	collection *chromem.Collection
	threshold  float64
	mu         sync.RWMutex
	ready      bool
	count      int
}

// NewDetector creates an empty detector. threshold is the minimum
// Levenshtein ratio a candidate must reach.
func NewDetector(threshold float64) (*Detector, error) {
	db := chromem.NewDB()
	collection, err := db.CreateCollection("known-scam-lines", nil, hashedNgramEmbedding)
	if err != nil {
		return nil, fmt.Errorf("create similarity collection: %w", err)
	}
	return &Detector{
		db:         db,
		collection: collection,
		threshold:  threshold,
	}, nil
}

// LoadCorpus embeds and stores the given lines, falling back to the
// built-in corpus when lines is empty.
func (d *Detector) LoadCorpus(ctx context.Context, lines []KnownLine) error {
	if len(lines) == 0 {
		lines = builtinKnownLines()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	docs := make([]chromem.Document, 0, len(lines))
	for i, line := range lines {
		if strings.TrimSpace(line.Text) == "" {
			continue
		}
		docs = append(docs, chromem.Document{
			ID:      fmt.Sprintf("scam_line_%d", i),
			Content: line.Text,
			Metadata: map[string]string{
				"category": line.Category,
			},
		})
	}
	if err := d.collection.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("add known scam lines: %w", err)
	}
	d.count = len(docs)
	d.ready = true
	return nil
}

// AddLine embeds one additional corpus line at runtime, for confirmed
// scam samples fed back by operators.
func (d *Detector) AddLine(ctx context.Context, line KnownLine) error {
	if strings.TrimSpace(line.Text) == "" {
		return fmt.Errorf("empty scam line")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	doc := chromem.Document{
		ID:      fmt.Sprintf("scam_line_extra_%d", d.count),
		Content: line.Text,
		Metadata: map[string]string{
			"category": line.Category,
		},
	}
	if err := d.collection.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add known scam line: %w", err)
	}
	d.count++
	d.ready = true
	return nil
}

// SetThreshold updates the confirmation threshold.
func (d *Detector) SetThreshold(t float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.threshold = t
}

// IsReady reports whether a corpus has been loaded.
func (d *Detector) IsReady() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.ready
}

// Match queries the corpus for the message. Returns false when the message
// is too short, no corpus is loaded, or no retrieved candidate survives the
// Levenshtein confirmation.
func (d *Detector) Match(ctx context.Context, message string) (Match, bool, error) {
	normalized := textutil.NormalizeForMatch(message)
	if len(normalized) < minMessageLength {
		return Match{}, false, nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.ready || d.count == 0 {
		return Match{}, false, nil
	}

	depth := queryDepth
	if d.count < depth {
		depth = d.count
	}
	results, err := d.collection.Query(ctx, normalized, depth, nil, nil)
	if err != nil {
		return Match{}, false, fmt.Errorf("similarity query: %w", err)
	}

	var best Match
	found := false
	for _, r := range results {
		ratio := LevenshteinRatio(normalized, textutil.NormalizeForMatch(r.Content))
		if ratio < d.threshold {
			continue
		}
		if !found || ratio > best.Ratio {
			best = Match{
				KnownLine: r.Content,
				Category:  r.Metadata["category"],
				Ratio:     ratio,
			}
			found = true
		}
	}
	return best, found, nil
}

// hashedNgramEmbedding maps text to a fixed-size bag of hashed character
// trigrams (over the leet-folded form) and word tokens, L2-normalized.
// Deterministic and fully offline.
func hashedNgramEmbedding(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, embeddingDim)
	bump := func(key string) {
		h := fnv.New32a()
		h.Write([]byte(key))
		vec[h.Sum32()%embeddingDim]++
	}

	folded := textutil.FoldCompact(text)
	for i := 0; i+3 <= len(folded); i++ {
		bump("c3:" + folded[i:i+3])
	}
	for _, token := range textutil.Tokenize(text) {
		bump("w:" + token)
	}

	var sumSquares float64
	for _, v := range vec {
		sumSquares += float64(v) * float64(v)
	}
	if sumSquares == 0 {
		return nil, fmt.Errorf("no embeddable features in %q", text)
	}
	norm := float32(math.Sqrt(sumSquares))
	for i := range vec {
		vec[i] /= norm
	}
	return vec, nil
}

// LevenshteinRatio returns 1 - dist/maxLen over the rune forms of a and b,
// both capped at maxCompareLength runes. Two identical strings score 1.0.
func LevenshteinRatio(a, b string) float64 {
	ra := capRunes([]rune(a), maxCompareLength)
	rb := capRunes([]rune(b), maxCompareLength)
	if len(ra) == 0 && len(rb) == 0 {
		return 1.0
	}
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	dist := levenshtein(ra, rb)
	return 1.0 - float64(dist)/float64(longest)
}

func capRunes(runes []rune, limit int) []rune {
	if len(runes) > limit {
		return runes[:limit]
	}
	return runes
}

// levenshtein computes edit distance with the two-row dynamic program.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	previous := make([]int, len(b)+1)
	current := make([]int, len(b)+1)
	for j := range previous {
		previous[j] = j
	}
	for i := 1; i <= len(a); i++ {
		current[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			current[j] = minOf(
				previous[j]+1,
				current[j-1]+1,
				previous[j-1]+cost,
			)
		}
		previous, current = current, previous
	}
	return previous[len(b)]
}

func minOf(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

var (
	cachedKnownLines     []KnownLine
	cachedKnownLinesOnce sync.Once
)

// builtinKnownLines is the shipped corpus of verbatim scam lines observed
// in the wild. Categories group the dominant tactic of each line.
func builtinKnownLines() []KnownLine {
	cachedKnownLinesOnce.Do(func() {
		cachedKnownLines = []KnownLine{
			// Item duplication bait
			{"i found a dupe glitch i can duplicate your items just trade them to me first", "item_dupe"},
			{"give me your best items and i will dupe them back double", "item_dupe"},
			{"new duplication method works on any item trade me and watch", "item_dupe"},
			{"i can double any coins you give me its a glitch the admins dont know", "item_dupe"},

			// Fake middleman
			{"i know a trusted middleman he will hold the items while we trade", "middleman"},
			{"my friend is a staff member he can middleman this trade for us", "middleman"},
			{"use my middleman hes 100 percent legit has tons of vouches", "middleman"},

			// Phishing links
			{"free rank giveaway just log in here to claim your reward", "phishing_link"},
			{"click this link to get free coins limited time only", "phishing_link"},
			{"vote on this site with your account to enter the giveaway", "phishing_link"},
			{"check out this trading site you can sell your items for real money", "phishing_link"},

			// Account theft
			{"i need your password to transfer the items to your account", "account_theft"},
			{"give me the code they sent you so i can verify the trade", "account_theft"},
			{"log into my account and take whatever you want as payment", "account_theft"},

			// Upfront payment
			{"pay first and then i will give you the item i promise", "upfront_payment"},
			{"send the coins now and ill carry you all week trust me", "upfront_payment"},
			{"you have to pay half upfront or no deal everyone does it this way", "upfront_payment"},

			// External platform funnels
			{"add me on discord and ill show you how to make coins fast", "platform_funnel"},
			{"join my discord server for the giveaway link", "platform_funnel"},
			{"dm me on discord i cant explain it here", "platform_funnel"},

			// Too good to be true
			{"quitting the game giving away everything first come first serve", "giveaway_bait"},
			{"im rich i drop coins for free at my island come now", "giveaway_bait"},
			{"selling op items for half price today only going fast", "giveaway_bait"},
		}
	})
	return cachedKnownLines
}
