package recording

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"recording-transcription-service/internal/errs"
	"recording-transcription-service/internal/models"
	"recording-transcription-service/internal/observability/logging"
)

// FinalizeSession stitches the transcripts of a parent session's chunks into
// one parent transcript. Chunk segment times are offset by the accumulated
// duration of earlier chunks.
//
// Any chunk still pending or processing rejects with ErrSessionIncomplete and
// changes nothing. Any failed chunk fails the parent. A failed parent may be
// finalized again once its chunks have been retried.
func (m *Manager) FinalizeSession(ctx context.Context, sessionID string) (*models.Recording, error) {
	parent, err := m.store.FindParentBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	logger := logging.WithSession(sessionID, parent.UserID)

	if len(parent.ChunkRecordingIDs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoChunks, sessionID)
	}
	chunks, err := m.store.GetRecordingsByIDs(ctx, parent.ChunkRecordingIDs)
	if err != nil {
		return nil, err
	}
	for _, c := range chunks {
		if !c.Status.IsTerminal() {
			logger.Info().Str("chunkId", c.ID).Str("status", string(c.Status)).Msg("Session not ready to finalize")
			return nil, fmt.Errorf("%w: chunk %s is %s", ErrSessionIncomplete, c.ID, c.Status)
		}
	}

	isRetry := parent.Status == models.StatusFailed
	now := m.now().UTC()
	parent, err = m.store.UpdateRecording(ctx, parent.ID, func(r *models.Recording) error {
		if r.Status == models.StatusFailed {
			return r.Reopen(now)
		}
		return r.Start()
	})
	if err != nil {
		return nil, err
	}
	m.metrics.RecordProcessingStart()
	started := time.Now()

	for i, c := range chunks {
		if c.Status == models.StatusFailed {
			cause := errs.Newf(errs.KindReconciliation, "recording.finalize", "chunk %s (segment %d) failed: %s", c.ID, i+1, c.Error)
			failed, err := m.fail(ctx, parent, cause, started)
			if err == nil {
				m.metrics.RecordSessionFinalized(string(models.StatusFailed))
			}
			return failed, err
		}
	}

	segments := []models.Segment{}
	var (
		offset        float64
		hasIn, hasOut bool
		language      string
	)
	for _, c := range chunks {
		t, err := m.store.GetTranscript(ctx, c.TranscriptID)
		if err != nil {
			cause := fmt.Errorf("load transcript for chunk %s: %w", c.ID, err)
			if _, ferr := m.fail(ctx, parent, cause, started); ferr != nil {
				logger.Error().Err(ferr).Msg("Failed to mark session failed")
			}
			return nil, cause
		}
		for _, s := range t.Segments {
			s.Start += offset
			s.End += offset
			segments = append(segments, s)
		}
		offset += span(t)
		hasIn = hasIn || t.Metadata.HasInputAudio
		hasOut = hasOut || t.Metadata.HasOutputAudio
		if language == "" {
			language = t.Metadata.Language
		}
	}

	transcript := &models.Transcript{
		ID:          uuid.NewString(),
		RecordingID: parent.ID,
		UserID:      parent.UserID,
		Content:     Render(segments),
		Segments:    segments,
		Metadata: models.TranscriptMetadata{
			Duration:       offset,
			SegmentCount:   len(segments),
			Sources:        sourcesOf(hasIn, hasOut),
			HasInputAudio:  hasIn,
			HasOutputAudio: hasOut,
			Language:       language,
		},
		IsRetry: isRetry,
	}
	if isRetry {
		transcript.OriginalRecordingID = parent.ID
	}

	done, err := m.complete(ctx, parent, transcript, started)
	if err != nil {
		return nil, err
	}
	m.metrics.RecordSessionFinalized(string(done.Status))
	logger.Info().
		Int("chunks", len(chunks)).
		Float64("duration", offset).
		Msg("Session finalized")
	return done, nil
}

// span is how far a chunk's transcript reaches: its duration, or the latest
// segment end when fabricated text timings run past it.
func span(t *models.Transcript) float64 {
	d := t.Metadata.Duration
	for _, s := range t.Segments {
		d = max(d, s.End)
	}
	return d
}
