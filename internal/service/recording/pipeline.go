package recording

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"recording-transcription-service/internal/errs"
	"recording-transcription-service/internal/models"
	"recording-transcription-service/internal/observability/logging"
	"recording-transcription-service/internal/service/normalize"
	"recording-transcription-service/internal/service/stt"
)

// outcome is the reconciled result of one processing attempt.
type outcome struct {
	Segments []models.Segment
	Duration float64
	Language string
	HasInput bool
	HasOut   bool
}

// Process runs the pipeline synchronously on a pending recording and returns
// it in its final state. A pipeline failure leaves the recording failed and
// is not returned as an error. Cancelling ctx after the claim does not abort
// the attempt.
func (m *Manager) Process(ctx context.Context, id string) (*models.Recording, error) {
	rec, err := m.claim(ctx, id)
	if err != nil {
		return nil, err
	}
	ctx, cancel := m.attemptContext(ctx)
	defer cancel()
	return m.run(ctx, rec, false)
}

// Submit claims a pending recording and runs the pipeline on the worker pool.
// The returned recording is in the processing state.
func (m *Manager) Submit(ctx context.Context, id string) (*models.Recording, error) {
	rec, err := m.claim(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec, m.dispatch(rec, false)
}

// Retry reopens a failed recording and runs the pipeline again synchronously.
// The recording must be failed and its audio must still exist. A successful
// retry creates a new transcript; earlier transcripts are never edited.
func (m *Manager) Retry(ctx context.Context, id string) (*models.Recording, error) {
	rec, err := m.reopen(ctx, id)
	if err != nil {
		return nil, err
	}
	ctx, cancel := m.attemptContext(ctx)
	defer cancel()
	return m.run(ctx, rec, true)
}

// SubmitRetry is Retry with the pipeline run on the worker pool.
func (m *Manager) SubmitRetry(ctx context.Context, id string) (*models.Recording, error) {
	rec, err := m.reopen(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec, m.dispatch(rec, true)
}

// claim moves pending -> processing.
func (m *Manager) claim(ctx context.Context, id string) (*models.Recording, error) {
	rec, err := m.store.UpdateRecording(ctx, id, func(r *models.Recording) error {
		if r.IsParentSession {
			return ErrParentSession
		}
		return r.Start()
	})
	if err != nil {
		return nil, err
	}
	m.metrics.RecordProcessingStart()
	logger := logging.WithRecording(rec.ID, rec.UserID)
	logger.Info().Msg("Recording processing started")
	return rec, nil
}

// reopen checks the retry preconditions and moves failed -> processing with a
// conditional update, so concurrent retries of one recording admit exactly one.
func (m *Manager) reopen(ctx context.Context, id string) (*models.Recording, error) {
	rec, err := m.store.GetRecording(ctx, id)
	if err != nil {
		return nil, err
	}
	logger := logging.WithRecording(rec.ID, rec.UserID)

	if rec.Status != models.StatusFailed {
		m.metrics.RecordRetry(false)
		logger.Warn().Str("status", string(rec.Status)).Msg("Retry rejected, recording is not failed")
		return nil, errs.New(errs.KindRetryPrecondition, "recording.retry", models.ErrNotFailed)
	}
	if err := m.checkArtifacts(ctx, rec); err != nil {
		m.metrics.RecordRetry(false)
		logger.Warn().Err(err).Msg("Retry rejected, audio artifacts missing")
		return nil, err
	}

	rec, err = m.store.UpdateRecording(ctx, id, func(r *models.Recording) error {
		return r.Reopen(m.now().UTC())
	})
	if err != nil {
		if errors.Is(err, models.ErrNotFailed) {
			m.metrics.RecordRetry(false)
			return nil, errs.New(errs.KindRetryPrecondition, "recording.retry", err)
		}
		return nil, err
	}

	m.metrics.RecordRetry(true)
	m.metrics.RecordProcessingStart()
	logger.Info().Int("retryCount", rec.RetryCount).Msg("Recording reopened for retry")
	return rec, nil
}

func (m *Manager) checkArtifacts(ctx context.Context, rec *models.Recording) error {
	if rec.AudioDeletedAt != nil || len(rec.AudioFiles) == 0 {
		return errs.Newf(errs.KindRetryPrecondition, "recording.retry", "audio artifacts for %s no longer exist", rec.ID)
	}
	for _, f := range rec.AudioFiles {
		ok, err := m.audio.Exists(ctx, f.Path)
		if err != nil {
			return fmt.Errorf("check audio artifact %s: %w", f.Path, err)
		}
		if !ok {
			return errs.Newf(errs.KindRetryPrecondition, "recording.retry", "audio artifact %s no longer exists", f.Path)
		}
	}
	return nil
}

// attemptContext detaches a claimed attempt from its caller: once claimed,
// an engine call is never cancelled mid-flight. Only ProcessTimeout bounds it.
func (m *Manager) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if m.cfg.ProcessTimeout > 0 {
		return context.WithTimeout(ctx, m.cfg.ProcessTimeout)
	}
	return ctx, func() {}
}

// dispatch runs a claimed recording on the worker pool, detached from the
// caller's context.
func (m *Manager) dispatch(rec *models.Recording, isRetry bool) error {
	err := m.pool.Submit(func() {
		ctx, cancel := m.attemptContext(context.Background())
		defer cancel()
		if _, err := m.run(ctx, rec, isRetry); err != nil {
			logger := logging.WithRecording(rec.ID, rec.UserID)
			logger.Error().Err(err).Msg("Background processing failed")
		}
	})
	if err != nil {
		cause := fmt.Errorf("dispatch: %w", err)
		if _, ferr := m.fail(context.Background(), rec, cause, time.Now()); ferr != nil {
			return errors.Join(cause, ferr)
		}
		return cause
	}
	return nil
}

// run executes one attempt on a recording already in the processing state
// and moves it to completed or failed.
func (m *Manager) run(ctx context.Context, rec *models.Recording, isRetry bool) (*models.Recording, error) {
	started := time.Now()

	out, err := m.transcribe(ctx, rec)
	if err != nil {
		return m.fail(ctx, rec, err, started)
	}

	content := Render(out.Segments)
	transcript := &models.Transcript{
		ID:          uuid.NewString(),
		RecordingID: rec.ID,
		UserID:      rec.UserID,
		Content:     content,
		Segments:    out.Segments,
		Metadata: models.TranscriptMetadata{
			Duration:       out.Duration,
			SegmentCount:   len(out.Segments),
			Sources:        sourcesOf(out.HasInput, out.HasOut),
			HasInputAudio:  out.HasInput,
			HasOutputAudio: out.HasOut,
			Language:       out.Language,
		},
		IsRetry: isRetry,
	}
	if isRetry {
		transcript.OriginalRecordingID = rec.ID
	}

	return m.complete(ctx, rec, transcript, started)
}

// complete persists the transcript and links it to the recording.
func (m *Manager) complete(ctx context.Context, rec *models.Recording, transcript *models.Transcript, started time.Time) (*models.Recording, error) {
	logger := logging.WithRecording(rec.ID, rec.UserID)
	ctx = context.WithoutCancel(ctx)

	if err := m.store.CreateTranscript(ctx, transcript); err != nil {
		err = fmt.Errorf("persist transcript: %w", err)
		if _, ferr := m.fail(ctx, rec, err, started); ferr != nil {
			logger.Error().Err(ferr).Msg("Failed to mark recording failed")
		}
		return nil, err
	}

	now := m.now().UTC()
	updated, err := m.store.UpdateRecording(ctx, rec.ID, func(r *models.Recording) error {
		if err := r.Complete(transcript.ID, now); err != nil {
			return err
		}
		r.Metadata.Duration = transcript.Metadata.Duration
		r.Metadata.SegmentCount = transcript.Metadata.SegmentCount
		if r.IsParentSession {
			r.Metadata.SessionEndTime = &now
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("complete recording: %w", err)
	}

	m.metrics.RecordProcessingEnd(nil, time.Since(started).Seconds())
	logger.Info().
		Str("transcriptId", transcript.ID).
		Int("segments", transcript.Metadata.SegmentCount).
		Float64("duration", transcript.Metadata.Duration).
		Bool("isRetry", transcript.IsRetry).
		Msg("Recording completed")

	m.publishCompleted(ctx, updated, transcript)
	return updated, nil
}

// fail stores cause on the recording. Storage errors are returned; the cause
// itself is not.
func (m *Manager) fail(ctx context.Context, rec *models.Recording, cause error, started time.Time) (*models.Recording, error) {
	logger := logging.WithRecording(rec.ID, rec.UserID)
	// the outcome must be stored even when the attempt's context is done
	ctx = context.WithoutCancel(ctx)

	updated, err := m.store.UpdateRecording(ctx, rec.ID, func(r *models.Recording) error {
		return r.Fail(cause.Error())
	})
	if err != nil {
		return nil, fmt.Errorf("fail recording: %w", err)
	}

	m.metrics.RecordProcessingEnd(cause, time.Since(started).Seconds())
	logger.Error().
		Err(cause).
		Str("errorKind", errs.KindOf(cause).String()).
		Int("retryCount", updated.RetryCount).
		Msg("Recording failed")

	m.publishFailed(ctx, updated, cause)
	return updated, nil
}

// transcribe runs the engine on every channel, normalizes each result and
// reconciles the two channels when both are present. Input is mandatory.
func (m *Manager) transcribe(ctx context.Context, rec *models.Recording) (*outcome, error) {
	input, ok := rec.AudioFiles.ByChannel(models.ChannelInput)
	if !ok {
		return nil, errs.Newf(errs.KindValidation, "recording.process", "recording %s has no input audio", rec.ID)
	}
	output, hasOut := rec.AudioFiles.ByChannel(models.ChannelOutput)
	opts := stt.Options{Language: m.cfg.Language}

	if !hasOut {
		res, raw, err := m.transcribeChannel(ctx, rec.ID, input, opts)
		if err != nil {
			return nil, err
		}
		return &outcome{
			Segments: res.Segments,
			Duration: res.Duration,
			Language: raw.Language,
			HasInput: true,
		}, nil
	}

	var (
		inRes, outRes normalize.Result
		inRaw         *stt.RawResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		inRes, inRaw, err = m.transcribeChannel(gctx, rec.ID, input, opts)
		if err != nil {
			return fmt.Errorf("%s channel: %w", models.ChannelInput, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		outRes, _, err = m.transcribeChannel(gctx, rec.ID, output, opts)
		if err != nil {
			return fmt.Errorf("%s channel: %w", models.ChannelOutput, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, errs.New(errs.KindReconciliation, "recording.reconcile", err)
	}

	merged := m.reconciler.Merge(inRes.Segments, outRes.Segments)
	m.metrics.RecordDuplicatesDropped(merged.Dropped)
	logger := logging.WithRecording(rec.ID, rec.UserID)
	logger.Debug().
		Int("input", len(inRes.Segments)).
		Int("output", len(outRes.Segments)).
		Int("dropped", merged.Dropped).
		Msg("Channels reconciled")

	return &outcome{
		Segments: merged.Segments,
		Duration: max(inRes.Duration, outRes.Duration),
		Language: inRaw.Language,
		HasInput: true,
		HasOut:   true,
	}, nil
}

func (m *Manager) transcribeChannel(ctx context.Context, recordingID string, file models.AudioFile, opts stt.Options) (normalize.Result, *stt.RawResult, error) {
	raw, err := m.transcriber.Transcribe(ctx, recordingID, file, opts)
	if err != nil {
		return normalize.Result{}, nil, err
	}
	res := normalize.Normalize(raw, file.Channel)
	m.metrics.RecordNormalized(raw.Kind.String(), len(res.Segments))
	return res, raw, nil
}

// Render formats segments as "<LABEL> [<start>s]: <text>" lines.
func Render(segs []models.Segment) string {
	var b strings.Builder
	for i, s := range segs {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s [%.1fs]: %s", s.Source.Label(), s.Start, s.Text)
	}
	return b.String()
}

func (m *Manager) publishCompleted(ctx context.Context, rec *models.Recording, t *models.Transcript) {
	if m.publisher == nil {
		return
	}
	err := m.publisher.PublishCompleted(ctx, models.RecordingCompleted{
		EventType:     models.EventRecordingCompleted,
		RecordingID:   rec.ID,
		UserID:        rec.UserID,
		SessionID:     rec.SessionID,
		TranscriptID:  t.ID,
		Timestamp:     m.now().UnixMilli(),
		SegmentCount:  t.Metadata.SegmentCount,
		Duration:      t.Metadata.Duration,
		IsRetry:       t.IsRetry,
		RetryCount:    rec.RetryCount,
		ParentSession: rec.IsParentSession,
	})
	if err != nil {
		logger := logging.WithRecording(rec.ID, rec.UserID)
		logger.Warn().Err(err).Msg("Failed to publish completed event")
	}
}

func (m *Manager) publishFailed(ctx context.Context, rec *models.Recording, cause error) {
	if m.publisher == nil {
		return
	}
	err := m.publisher.PublishFailed(ctx, models.RecordingFailed{
		EventType:   models.EventRecordingFailed,
		RecordingID: rec.ID,
		UserID:      rec.UserID,
		SessionID:   rec.SessionID,
		Timestamp:   m.now().UnixMilli(),
		ErrorKind:   errs.KindOf(cause).String(),
		Error:       rec.Error,
		RetryCount:  rec.RetryCount,
	})
	if err != nil {
		logger := logging.WithRecording(rec.ID, rec.UserID)
		logger.Warn().Err(err).Msg("Failed to publish failed event")
	}
}
