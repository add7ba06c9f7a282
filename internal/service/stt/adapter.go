// Package stt defines the speech engine contract and the retrying transcriber
// that wraps it.
package stt

import (
	"context"
	"io"
)

// ResultKind tags which shape an engine returned.
type ResultKind int

const (
	// KindText is plain text with no timing information.
	KindText ResultKind = iota
	// KindWords carries word-level timestamps.
	KindWords
	// KindSegments carries sentence-level segments with timestamps.
	KindSegments
)

// String returns the string representation of the result kind.
func (k ResultKind) String() string {
	switch k {
	case KindSegments:
		return "segments"
	case KindWords:
		return "words"
	default:
		return "text"
	}
}

// RawSegment is a timed segment as reported by the engine.
type RawSegment struct {
	Start float64
	End   float64
	Text  string
}

// Word is a single recognized word with offsets in seconds.
type Word struct {
	Word  string
	Start float64
	End   float64
}

// RawResult is what an engine returns. Kind selects which of Segments or
// Words is meaningful; Text is always the full transcript text.
type RawResult struct {
	Kind     ResultKind
	Text     string
	Segments []RawSegment
	Words    []Word
	Duration float64 // engine-reported, 0 if unknown
	Language string
}

// Options are format and language hints passed to the engine.
type Options struct {
	Language string
	Filename string // original filename; some engines infer the format from it
	MimeType string
}

// Engine is a speech-to-text provider (OpenAI, Google, mock).
//
// Implementations must classify failures with internal/errs kinds:
// Auth, RateLimit, Transient or Engine. They must not close audio.
type Engine interface {
	// Name identifies the provider in logs and metrics.
	Name() string

	// Transcribe reads the whole audio stream and returns the recognized text.
	Transcribe(ctx context.Context, audio io.Reader, opts Options) (*RawResult, error)
}
