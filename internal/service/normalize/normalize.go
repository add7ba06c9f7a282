// Package normalize converts raw engine output of any granularity into timed
// segments attributed to one channel.
package normalize

import (
	"regexp"
	"sort"
	"strings"

	"recording-transcription-service/internal/models"
	"recording-transcription-service/internal/service/stt"
)

// Word grouping rules.
const (
	MaxWordGapSeconds  = 1.0
	MaxWordsPerSegment = 20
)

// Fabricated timing for text-only results.
const (
	MinSentenceSeconds = 2.0
	CharsPerSecond     = 15.0
	SentenceGapSeconds = 0.5
	WordsPerSecond     = 2.5
)

var sentencePattern = regexp.MustCompile(`[^.!?]+[.!?]*`)

// Result is the normalized output for one channel.
type Result struct {
	Segments []models.Segment
	Duration float64
}

// Normalize dispatches on the result kind. Segments within the returned
// list are non-decreasing in Start and satisfy End >= Start.
func Normalize(raw *stt.RawResult, source models.Channel) Result {
	if raw == nil {
		return Result{Segments: []models.Segment{}}
	}

	var segs []models.Segment
	switch {
	case raw.Kind == stt.KindSegments && len(raw.Segments) > 0:
		segs = fromSegments(raw.Segments, source)
	case raw.Kind == stt.KindWords && len(raw.Words) > 0:
		segs = fromWords(raw.Words, source)
	default:
		segs = fromText(raw.Text, source)
		return Result{Segments: segs, Duration: textDuration(raw)}
	}

	sort.SliceStable(segs, func(i, j int) bool { return segs[i].Start < segs[j].Start })

	return Result{Segments: segs, Duration: maxEnd(segs)}
}

func fromSegments(in []stt.RawSegment, source models.Channel) []models.Segment {
	out := make([]models.Segment, 0, len(in))
	for _, s := range in {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		out = append(out, newSegment(s.Start, s.End, text, source))
	}
	return out
}

// fromWords drops spans with no text. It closes a segment after a word ending in terminal punctuation,
// before a silence longer than MaxWordGapSeconds, or at MaxWordsPerSegment.
func fromWords(words []stt.Word, source models.Channel) []models.Segment {
	var (
		out   = []models.Segment{}
		cur   []stt.Word
		texts []string
	)

	flush := func() {
		if len(texts) == 0 {
			cur = cur[:0]
			return
		}
		out = append(out, newSegment(cur[0].Start, cur[len(cur)-1].End, strings.Join(texts, " "), source))
		cur, texts = cur[:0], texts[:0]
	}

	for i, w := range words {
		text := strings.TrimSpace(w.Word)
		cur = append(cur, w)
		if text != "" {
			texts = append(texts, text)
		}

		boundary := endsSentence(text) ||
			(i+1 < len(words) && words[i+1].Start-w.End > MaxWordGapSeconds) ||
			len(cur) >= MaxWordsPerSegment
		if boundary {
			flush()
		}
	}
	flush()

	return out
}

// fromText fabricates timing: each sentence lasts max(MinSentenceSeconds,
// chars/CharsPerSecond), separated by SentenceGapSeconds.
func fromText(text string, source models.Channel) []models.Segment {
	out := []models.Segment{}
	cursor := 0.0
	for _, m := range sentencePattern.FindAllString(text, -1) {
		sentence := strings.TrimSpace(m)
		if sentence == "" {
			continue
		}
		d := float64(len([]rune(sentence))) / CharsPerSecond
		if d < MinSentenceSeconds {
			d = MinSentenceSeconds
		}
		out = append(out, newSegment(cursor, cursor+d, sentence, source))
		cursor += d + SentenceGapSeconds
	}
	return out
}

// textDuration prefers an engine-reported duration, then a speaking-rate
// estimate from the word count.
func textDuration(raw *stt.RawResult) float64 {
	if raw.Duration > 0 {
		return raw.Duration
	}
	return EstimateDuration(raw.Text)
}

// EstimateDuration assumes WordsPerSecond speech.
func EstimateDuration(text string) float64 {
	return float64(len(strings.Fields(text))) / WordsPerSecond
}

func newSegment(start, end float64, text string, source models.Channel) models.Segment {
	if end < start {
		end = start
	}
	return models.Segment{Start: start, End: end, Text: text, Source: source}
}

func endsSentence(word string) bool {
	return strings.HasSuffix(word, ".") || strings.HasSuffix(word, "!") || strings.HasSuffix(word, "?")
}

func maxEnd(segs []models.Segment) float64 {
	m := 0.0
	for _, s := range segs {
		if s.End > m {
			m = s.End
		}
	}
	return m
}
