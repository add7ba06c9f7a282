package stt

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/cenkalti/backoff/v5"

	"recording-transcription-service/internal/errs"
	"recording-transcription-service/internal/models"
	"recording-transcription-service/internal/observability/logging"
	"recording-transcription-service/internal/observability/metrics"
)

// Default retry policy.
const (
	DefaultMaxAttempts = 3
	DefaultBackoffBase = time.Second
)

// AudioSource opens stored audio artifacts by path.
// A missing artifact must be reported as errs.KindFileNotFound.
type AudioSource interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// RetryConfig controls the transcriber's retry policy.
type RetryConfig struct {
	MaxAttempts int
	BackoffBase time.Duration
}

// DefaultRetryConfig returns 3 attempts with delays of 2s then 4s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: DefaultMaxAttempts,
		BackoffBase: DefaultBackoffBase,
	}
}

// Transcriber runs an Engine against stored audio with retry and error
// classification. Safe for concurrent use.
type Transcriber struct {
	engine  Engine
	audio   AudioSource
	cfg     RetryConfig
	metrics *metrics.Metrics

	// notify observes each scheduled delay; tests hook it.
	notify func(attempt int, delay time.Duration, err error)
}

// NewTranscriber creates a transcriber.
func NewTranscriber(engine Engine, audio AudioSource, cfg RetryConfig) *Transcriber {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultBackoffBase
	}
	return &Transcriber{
		engine:  engine,
		audio:   audio,
		cfg:     cfg,
		metrics: metrics.DefaultMetrics,
	}
}

// Provider returns the wrapped engine's name.
func (t *Transcriber) Provider() string {
	return t.engine.Name()
}

// Transcribe transcribes one audio artifact.
//
// Auth, RateLimit, Engine and FileNotFound errors end the call after a single
// attempt. Transient errors are retried up to MaxAttempts with a delay of
// 2^attempt × BackoffBase after each failed attempt. The audio handle is
// opened per attempt and closed before the attempt returns.
func (t *Transcriber) Transcribe(ctx context.Context, recordingID string, file models.AudioFile, opts Options) (*RawResult, error) {
	logger := logging.WithChannel(recordingID, string(file.Channel), t.engine.Name())

	if opts.Filename == "" {
		opts.Filename = file.OriginalName
	}
	if opts.MimeType == "" {
		opts.MimeType = file.MimeType
	}

	attempt := 0
	op := func() (*RawResult, error) {
		attempt++
		res, err := t.attempt(ctx, file.Path, opts)
		if err == nil {
			return res, nil
		}
		logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Str("errorKind", errs.KindOf(err).String()).
			Msg("Transcription attempt failed")
		if !errs.IsRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	res, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(newSchedule(t.cfg.BackoffBase)),
		backoff.WithMaxTries(uint(t.cfg.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, delay time.Duration) {
			logger.Info().
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("Retrying transcription after transient error")
			t.metrics.RecordSTTRetryDelay(t.engine.Name(), delay.Seconds())
			if t.notify != nil {
				t.notify(attempt, delay, err)
			}
		}),
	)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		if errs.KindOf(err) == errs.KindUnknown {
			// context cancellation or an unclassified engine failure
			err = errs.New(errs.KindEngine, "stt.transcribe", err)
		}
		logger.Error().
			Err(err).
			Int("attempts", attempt).
			Msg("Transcription failed")
		return nil, err
	}

	logger.Info().
		Int("attempts", attempt).
		Str("resultKind", res.Kind.String()).
		Msg("Transcription succeeded")
	return res, nil
}

// attempt runs one engine call with a freshly opened audio handle.
func (t *Transcriber) attempt(ctx context.Context, path string, opts Options) (*RawResult, error) {
	rc, err := t.audio.Open(ctx, path)
	if err != nil {
		if errs.KindOf(err) == errs.KindUnknown {
			err = errs.New(errs.KindTransient, "stt.open", err)
		}
		return nil, err
	}
	defer rc.Close()

	start := time.Now()
	res, err := t.engine.Transcribe(ctx, rc, opts)
	t.metrics.RecordSTTAttempt(t.engine.Name(), err, time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &RawResult{Kind: KindText}
	}
	return res, nil
}

// Delay returns the wait after the given failed attempt (numbered from 1):
// 2^attempt × base.
func Delay(base time.Duration, attempt int) time.Duration {
	return base * time.Duration(1<<uint(attempt))
}

// schedule is a backoff.BackOff yielding Delay(base, 1), Delay(base, 2), ...
type schedule struct {
	base    time.Duration
	attempt int
}

func newSchedule(base time.Duration) *schedule {
	return &schedule{base: base}
}

func (s *schedule) NextBackOff() time.Duration {
	s.attempt++
	return Delay(s.base, s.attempt)
}

func (s *schedule) Reset() {
	s.attempt = 0
}
