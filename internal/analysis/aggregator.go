// Package analysis aggregates scored records into a word cloud and a sentiment histogram.
package analysis

import (
	"fmt"
	"math/rand"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// DefaultWordCloudSize caps the number of word cloud entries.
const DefaultWordCloudSize = 20

// Score bands for the distribution.
const (
	PositiveAbove = 0.6
	NegativeBelow = 0.4
)

var (
	disallowed = regexp.MustCompile(`[^\x{4e00}-\x{9fa5}a-zA-Z0-9\s]`)
	rotations  = []int{-15, 0, 15}
	stopWords  = map[string]struct{}{}
)

func init() {
	for _, w := range strings.Fields("的 了 和 是 在 我 有 你 这 就 要 也 会 不 人 都 一个 上 中 到 说 可以 等 吧 啊 呀 呢 吗") {
		stopWords[w] = struct{}{}
	}
}

// WordCloudEntry is one ranked and positioned word.
type WordCloudEntry struct {
	Word     string  `json:"word"`
	Count    int     `json:"count"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	FontSize float64 `json:"font_size"`
	Rotation int     `json:"rotation_degrees"`
}

// SentimentDistribution buckets scores into positive, negative and neutral.
type SentimentDistribution struct {
	Positive        int    `json:"positive"`
	Negative        int    `json:"negative"`
	Neutral         int    `json:"neutral"`
	Total           int    `json:"total"`
	PositivePercent string `json:"positive_percent"`
}

// Config tunes the Aggregator.
type Config struct {
	WordCloudSize int
	// Seed for layout randomness; 0 seeds from the current time.
	Seed int64
}

// Aggregator is safe for concurrent use.
type Aggregator struct {
	size int
	mu   sync.Mutex
	rng  *rand.Rand
}

// New builds an Aggregator.
func New(cfg Config) *Aggregator {
	size := cfg.WordCloudSize
	if size <= 0 {
		size = DefaultWordCloudSize
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Aggregator{size: size, rng: rand.New(rand.NewSource(seed))}
}

// Tokenize splits a title into counted words.
// Characters outside CJK ideographs, ASCII letters and digits act as separators.
func Tokenize(title string) []string {
	cleaned := disallowed.ReplaceAllString(title, " ")
	var out []string
	for _, tok := range strings.Fields(cleaned) {
		if utf8.RuneCountInString(tok) <= 1 {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// WordCloud ranks the words of titles by frequency and lays them out.
// Ties keep first-seen order.
func (a *Aggregator) WordCloud(titles []string) []WordCloudEntry {
	counts := map[string]int{}
	var order []string
	for _, title := range titles {
		for _, tok := range Tokenize(title) {
			if counts[tok] == 0 {
				order = append(order, tok)
			}
			counts[tok]++
		}
	}
	if len(order) == 0 {
		return []WordCloudEntry{}
	}

	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > a.size {
		order = order[:a.size]
	}
	maxCount := float64(counts[order[0]])

	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]WordCloudEntry, 0, len(order))
	for _, word := range order {
		c := counts[word]
		out = append(out, WordCloudEntry{
			Word:     word,
			Count:    c,
			X:        a.rng.Float64()*0.8 + 0.1,
			Y:        a.rng.Float64()*0.8 + 0.1,
			FontSize: 12 + float64(c)/maxCount*12,
			Rotation: rotations[a.rng.Intn(len(rotations))],
		})
	}
	return out
}

// Distribution buckets scores: above 0.6 positive, below 0.4 negative, otherwise neutral.
func Distribution(scores []float64) SentimentDistribution {
	d := SentimentDistribution{Total: len(scores), PositivePercent: "0.0"}
	for _, s := range scores {
		switch {
		case s > PositiveAbove:
			d.Positive++
		case s < NegativeBelow:
			d.Negative++
		default:
			d.Neutral++
		}
	}
	if d.Total > 0 {
		d.PositivePercent = fmt.Sprintf("%.1f", float64(d.Positive)/float64(d.Total)*100)
	}
	return d
}

// Average is the arithmetic mean of scores, or 0.5 when there are none.
func Average(scores []float64) float64 {
	if len(scores) == 0 {
		return 0.5
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}

// FormatAverage renders Average with three decimals.
func FormatAverage(scores []float64) string {
	return fmt.Sprintf("%.3f", Average(scores))
}
