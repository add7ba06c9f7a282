// Package reconcile merges the microphone and system-audio segment streams
// into one ordered transcript and drops speech both channels picked up.
package reconcile

import (
	"sort"
	"strings"

	"recording-transcription-service/internal/models"
)

// Defaults for duplicate detection.
const (
	DefaultWindowSeconds       = 2.0
	DefaultSimilarityThreshold = 0.8
)

// Config tunes duplicate detection.
type Config struct {
	// WindowSeconds bounds how far back (by start time) a candidate is compared.
	WindowSeconds float64
	// SimilarityThreshold is exclusive: a candidate is dropped when the
	// Jaccard similarity with a neighbor is strictly greater.
	SimilarityThreshold float64
}

// DefaultConfig returns a 2.0s window and 0.8 threshold.
func DefaultConfig() Config {
	return Config{
		WindowSeconds:       DefaultWindowSeconds,
		SimilarityThreshold: DefaultSimilarityThreshold,
	}
}

// Reconciler merges tagged segment lists.
type Reconciler struct {
	cfg Config
}

// New creates a reconciler. Zero fields fall back to defaults.
func New(cfg Config) *Reconciler {
	if cfg.WindowSeconds <= 0 {
		cfg.WindowSeconds = DefaultWindowSeconds
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = DefaultSimilarityThreshold
	}
	return &Reconciler{cfg: cfg}
}

// Result is the merged output plus how many segments were dropped.
type Result struct {
	Segments []models.Segment
	Dropped  int
}

// Merge concatenates input then output, stable-sorts by start (so input wins
// ties) and drops any candidate that is near-identical to an already accepted
// segment starting within the window. Adjacent same-source segments are not
// merged.
func (r *Reconciler) Merge(input, output []models.Segment) Result {
	all := make([]models.Segment, 0, len(input)+len(output))
	all = append(all, input...)
	all = append(all, output...)

	sort.SliceStable(all, func(i, j int) bool { return all[i].Start < all[j].Start })

	accepted := make([]models.Segment, 0, len(all))
	accWords := make([]map[string]struct{}, 0, len(all))
	dropped := 0

	for _, cand := range all {
		words := wordSet(cand.Text)
		if r.isDuplicate(cand, words, accepted, accWords) {
			dropped++
			continue
		}
		accepted = append(accepted, cand)
		accWords = append(accWords, words)
	}

	return Result{Segments: accepted, Dropped: dropped}
}

func (r *Reconciler) isDuplicate(cand models.Segment, words map[string]struct{}, accepted []models.Segment, accWords []map[string]struct{}) bool {
	for i := len(accepted) - 1; i >= 0; i-- {
		if cand.Start-accepted[i].Start > r.cfg.WindowSeconds {
			break
		}
		if Similarity(words, accWords[i]) > r.cfg.SimilarityThreshold {
			return true
		}
	}
	return false
}

// Similarity is |a ∩ b| / |a ∪ b|. Two empty sets are identical: 1.
func Similarity(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// TextSimilarity computes Similarity over the lower-cased whitespace tokens of two strings.
func TextSimilarity(a, b string) float64 {
	return Similarity(wordSet(a), wordSet(b))
}

func wordSet(text string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
