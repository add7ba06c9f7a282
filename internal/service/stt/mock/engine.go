// Package mock provides a deterministic speech engine for running without
// cloud credentials. It replays scripted utterances in the requested result
// shape and can be told to fail the first N calls.
package mock

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"recording-transcription-service/internal/service/stt"
)

// Utterance is one scripted span of speech.
type Utterance struct {
	Text  string
	Start float64
	End   float64
}

// DefaultUtterances provides sample speech for simulation.
var DefaultUtterances = []Utterance{
	{Text: "Thanks for joining the call today.", Start: 0.0, End: 2.4},
	{Text: "Can you walk me through the quarterly numbers?", Start: 2.9, End: 5.6},
	{Text: "Sure, revenue is up twelve percent.", Start: 6.3, End: 8.8},
	{Text: "That is great news for the team.", Start: 9.5, End: 11.7},
}

// Option configures the mock engine.
type Option func(*Engine)

// WithKind selects the result shape returned by Transcribe.
func WithKind(kind stt.ResultKind) Option {
	return func(e *Engine) { e.kind = kind }
}

// WithUtterances replaces the scripted speech.
func WithUtterances(u []Utterance) Option {
	return func(e *Engine) { e.utterances = u }
}

// WithFailures makes the first len(errs) calls return those errors in order.
func WithFailures(errs ...error) Option {
	return func(e *Engine) { e.failures = errs }
}

// WithLatency simulates engine processing time.
func WithLatency(d time.Duration) Option {
	return func(e *Engine) { e.latency = d }
}

// Engine implements stt.Engine with scripted responses.
type Engine struct {
	mu         sync.Mutex
	kind       stt.ResultKind
	utterances []Utterance
	failures   []error
	latency    time.Duration
	calls      int
}

// New creates a mock engine returning segment-level results.
func New(opts ...Option) *Engine {
	e := &Engine{
		kind:       stt.KindSegments,
		utterances: DefaultUtterances,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Name returns the provider name.
func (e *Engine) Name() string {
	return "mock"
}

// Calls returns how many times Transcribe was invoked.
func (e *Engine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Transcribe drains the audio and returns the script.
func (e *Engine) Transcribe(ctx context.Context, audio io.Reader, opts stt.Options) (*stt.RawResult, error) {
	if _, err := io.Copy(io.Discard, audio); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.calls++
	call := e.calls
	e.mu.Unlock()

	if e.latency > 0 {
		select {
		case <-time.After(e.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if call <= len(e.failures) {
		return nil, e.failures[call-1]
	}

	return e.result(opts.Language), nil
}

func (e *Engine) result(lang string) *stt.RawResult {
	if lang == "" {
		lang = "en"
	}
	res := &stt.RawResult{Kind: e.kind, Language: lang}

	texts := make([]string, 0, len(e.utterances))
	for _, u := range e.utterances {
		texts = append(texts, u.Text)
		if u.End > res.Duration {
			res.Duration = u.End
		}
	}
	res.Text = strings.Join(texts, " ")

	switch e.kind {
	case stt.KindSegments:
		for _, u := range e.utterances {
			res.Segments = append(res.Segments, stt.RawSegment{Start: u.Start, End: u.End, Text: u.Text})
		}
	case stt.KindWords:
		for _, u := range e.utterances {
			res.Words = append(res.Words, spreadWords(u)...)
		}
	default:
		res.Duration = 0
	}
	return res
}

// spreadWords divides an utterance's span evenly across its words.
func spreadWords(u Utterance) []stt.Word {
	fields := strings.Fields(u.Text)
	if len(fields) == 0 {
		return nil
	}
	step := (u.End - u.Start) / float64(len(fields))
	words := make([]stt.Word, len(fields))
	for i, f := range fields {
		words[i] = stt.Word{
			Word:  f,
			Start: u.Start + float64(i)*step,
			End:   u.Start + float64(i+1)*step,
		}
	}
	return words
}

var _ stt.Engine = (*Engine)(nil)
