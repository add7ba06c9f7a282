// Package recording owns the recording lifecycle: creation, parent-session
// chunk aggregation, the transcription pipeline and the retry coordinator.
//
// Every status change goes through storage.Store.UpdateRecording so the
// state-machine check and the write are atomic. Pipeline failures are stored
// on the recording; only storage errors are returned to callers.
package recording

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog/log"

	"recording-transcription-service/internal/errs"
	"recording-transcription-service/internal/models"
	"recording-transcription-service/internal/observability/logging"
	"recording-transcription-service/internal/observability/metrics"
	"recording-transcription-service/internal/schema"
	"recording-transcription-service/internal/service/reconcile"
	"recording-transcription-service/internal/service/stt"
	"recording-transcription-service/internal/storage"
)

// Errors returned by session operations.
var (
	ErrSessionIncomplete = errors.New("session has chunks that are not finished")
	ErrSessionClosed     = errors.New("session is no longer accepting chunks")
	ErrSessionExists     = errors.New("session already exists")
	ErrNoChunks          = errors.New("session has no chunks")
	ErrParentSession     = errors.New("parent sessions are finalized, not processed")
)

// Transcriber transcribes one stored artifact with retry.
type Transcriber interface {
	Transcribe(ctx context.Context, recordingID string, file models.AudioFile, opts stt.Options) (*stt.RawResult, error)
	Provider() string
}

// AudioStore is the artifact store as seen by the manager.
type AudioStore interface {
	Exists(ctx context.Context, path string) (bool, error)
	Delete(ctx context.Context, path string) error
}

// EventPublisher receives lifecycle events.
type EventPublisher interface {
	PublishCompleted(ctx context.Context, event models.RecordingCompleted) error
	PublishFailed(ctx context.Context, event models.RecordingFailed) error
}

// Config tunes the manager.
type Config struct {
	Language       string
	Reconcile      reconcile.Config
	PoolSize       int
	ProcessTimeout time.Duration
}

// DefaultConfig returns the manager defaults.
func DefaultConfig() Config {
	return Config{
		Reconcile: reconcile.DefaultConfig(),
		PoolSize:  8,
	}
}

// Manager is the recording session manager. Safe for concurrent use.
type Manager struct {
	store       storage.Store
	audio       AudioStore
	transcriber Transcriber
	reconciler  *reconcile.Reconciler
	publisher   EventPublisher
	validator   *schema.Validator
	pool        *ants.Pool
	cfg         Config
	metrics     *metrics.Metrics
	now         func() time.Time
}

// New creates a manager and its worker pool. publisher may be nil.
func New(store storage.Store, audio AudioStore, transcriber Transcriber, publisher EventPublisher, cfg Config) (*Manager, error) {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultConfig().PoolSize
	}
	pool, err := ants.NewPool(cfg.PoolSize, ants.WithPanicHandler(func(p any) {
		log.Error().Interface("panic", p).Msg("Recording worker panicked")
	}))
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	return &Manager{
		store:       store,
		audio:       audio,
		transcriber: transcriber,
		reconciler:  reconcile.New(cfg.Reconcile),
		publisher:   publisher,
		validator:   schema.New(),
		pool:        pool,
		cfg:         cfg,
		metrics:     metrics.DefaultMetrics,
		now:         time.Now,
	}, nil
}

// CreateRequest describes newly accepted audio.
type CreateRequest struct {
	UserID           string             `json:"userId" validate:"required"`
	SessionID        string             `json:"sessionId"`
	Segmented        bool               `json:"segmented"`
	AudioFiles       []models.AudioFile `json:"audioFiles" validate:"dive"`
	SessionStartTime *time.Time         `json:"sessionStartTime,omitempty"`
}

// ChunkRequest describes one chunk of a segmented capture.
type ChunkRequest struct {
	UserID       string             `json:"userId"`
	SegmentIndex int                `json:"segmentIndex" validate:"gte=0"`
	AudioFiles   []models.AudioFile `json:"audioFiles" validate:"required,min=1,dive"`
}

// CreateRecording persists a new pending recording. Segmented requests
// create a parent session that aggregates chunks added later.
func (m *Manager) CreateRecording(ctx context.Context, req CreateRequest) (*models.Recording, error) {
	if err := m.validator.Validate(req); err != nil {
		return nil, err
	}
	if !req.Segmented {
		if _, ok := models.AudioFiles(req.AudioFiles).ByChannel(models.ChannelInput); !ok {
			return nil, errs.Newf(errs.KindValidation, "recording.create", "input audio is required")
		}
	}

	now := m.now().UTC()
	rec := &models.Recording{
		ID:              uuid.NewString(),
		UserID:          req.UserID,
		SessionID:       req.SessionID,
		IsParentSession: req.Segmented,
		Status:          models.StatusPending,
		AudioFiles:      stamp(req.AudioFiles, 0, now),
	}
	rec.Metadata = describeAudio(rec.AudioFiles)

	if req.Segmented {
		if rec.SessionID == "" {
			rec.SessionID = uuid.NewString()
		}
		if _, err := m.store.FindParentBySession(ctx, rec.SessionID); err == nil {
			return nil, fmt.Errorf("%w: %s", ErrSessionExists, rec.SessionID)
		} else if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		rec.Metadata.RecordingType = models.RecordingTypeSegmented
		start := now
		if req.SessionStartTime != nil {
			start = req.SessionStartTime.UTC()
		}
		rec.Metadata.SessionStartTime = &start
	}

	if err := m.store.CreateRecording(ctx, rec); err != nil {
		if rec.IsParentSession && errors.Is(err, storage.ErrConflict) {
			return nil, fmt.Errorf("%w: %s", ErrSessionExists, rec.SessionID)
		}
		return nil, fmt.Errorf("create recording: %w", err)
	}

	m.metrics.RecordRecordingCreated(string(rec.Metadata.RecordingType))
	logger := logging.WithRecording(rec.ID, rec.UserID)
	logger.Info().
		Str("sessionId", rec.SessionID).
		Bool("isParentSession", rec.IsParentSession).
		Int("audioFiles", len(rec.AudioFiles)).
		Msg("Recording created")
	return rec, nil
}

// AddChunk creates a chunk recording under the parent session and links it.
// After N calls the parent has N chunk ids and metadata.totalSegments == N.
func (m *Manager) AddChunk(ctx context.Context, parentSessionID string, req ChunkRequest) (*models.Recording, error) {
	if err := m.validator.Validate(req); err != nil {
		return nil, err
	}
	if _, ok := models.AudioFiles(req.AudioFiles).ByChannel(models.ChannelInput); !ok {
		return nil, errs.Newf(errs.KindValidation, "recording.chunk", "input audio is required")
	}

	parent, err := m.store.FindParentBySession(ctx, parentSessionID)
	if err != nil {
		return nil, fmt.Errorf("parent session %s: %w", parentSessionID, err)
	}
	if req.UserID != "" && req.UserID != parent.UserID {
		return nil, errs.Newf(errs.KindValidation, "recording.chunk", "chunk user does not own session %s", parentSessionID)
	}
	if parent.Status != models.StatusPending {
		return nil, fmt.Errorf("%w: %s is %s", ErrSessionClosed, parentSessionID, parent.Status)
	}

	now := m.now().UTC()
	chunk := &models.Recording{
		ID:                uuid.NewString(),
		UserID:            parent.UserID,
		SessionID:         parent.SessionID,
		ParentSessionID:   parentSessionID,
		ParentRecordingID: parent.ID,
		Status:            models.StatusPending,
		AudioFiles:        stamp(req.AudioFiles, req.SegmentIndex, now),
	}
	chunk.Metadata = describeAudio(chunk.AudioFiles)

	if err := m.store.CreateRecording(ctx, chunk); err != nil {
		return nil, fmt.Errorf("create chunk: %w", err)
	}

	size := chunk.AudioFiles.TotalSize()
	updated, err := m.store.UpdateRecording(ctx, parent.ID, func(p *models.Recording) error {
		if p.Status != models.StatusPending {
			return fmt.Errorf("%w: %s is %s", ErrSessionClosed, parentSessionID, p.Status)
		}
		p.ChunkRecordingIDs = append(p.ChunkRecordingIDs, chunk.ID)
		p.Metadata.TotalSegments = len(p.ChunkRecordingIDs)
		p.Metadata.CurrentSegment = len(p.ChunkRecordingIDs)
		p.Metadata.TotalFileSize += size
		p.Metadata.HasInputAudio = p.Metadata.HasInputAudio || chunk.Metadata.HasInputAudio
		p.Metadata.HasOutputAudio = p.Metadata.HasOutputAudio || chunk.Metadata.HasOutputAudio
		p.Metadata.Sources = sourcesOf(p.Metadata.HasInputAudio, p.Metadata.HasOutputAudio)
		return nil
	})
	if err != nil {
		if derr := m.store.DeleteRecording(ctx, chunk.ID); derr != nil {
			log.Error().Err(derr).Str("chunkId", chunk.ID).Msg("Failed to remove orphaned chunk")
		}
		return nil, fmt.Errorf("link chunk: %w", err)
	}

	m.metrics.RecordChunkAdded()
	logger := logging.WithSession(parentSessionID, parent.UserID)
	logger.Info().
		Str("chunkId", chunk.ID).
		Int("totalSegments", updated.Metadata.TotalSegments).
		Int64("totalFileSize", updated.Metadata.TotalFileSize).
		Msg("Chunk added")
	return chunk, nil
}

// Get returns a recording by id.
func (m *Manager) Get(ctx context.Context, id string) (*models.Recording, error) {
	return m.store.GetRecording(ctx, id)
}

// ListParentSessions returns the user's parent sessions, newest first.
func (m *Manager) ListParentSessions(ctx context.Context, userID string) ([]*models.Recording, error) {
	return m.store.ListParentSessions(ctx, userID)
}

// ListChunks returns the chunks of a parent session in the order they were added.
func (m *Manager) ListChunks(ctx context.Context, parentSessionID string) ([]*models.Recording, error) {
	parent, err := m.store.FindParentBySession(ctx, parentSessionID)
	if err != nil {
		return nil, err
	}
	return m.store.GetRecordingsByIDs(ctx, parent.ChunkRecordingIDs)
}

// GetTranscript returns a transcript by id.
func (m *Manager) GetTranscript(ctx context.Context, id string) (*models.Transcript, error) {
	return m.store.GetTranscript(ctx, id)
}

// ListTranscripts returns every transcript produced for a recording, oldest first.
func (m *Manager) ListTranscripts(ctx context.Context, recordingID string) ([]*models.Transcript, error) {
	if _, err := m.store.GetRecording(ctx, recordingID); err != nil {
		return nil, err
	}
	return m.store.ListTranscriptsByRecording(ctx, recordingID)
}

// DeleteRecording removes the recording, its audio and its transcripts.
// A parent session takes its chunks with it; a chunk is unlinked from its parent.
func (m *Manager) DeleteRecording(ctx context.Context, id string) error {
	rec, err := m.store.GetRecording(ctx, id)
	if err != nil {
		return err
	}
	logger := logging.WithRecording(rec.ID, rec.UserID)

	if rec.IsParentSession {
		for _, chunkID := range rec.ChunkRecordingIDs {
			chunk, err := m.store.GetRecording(ctx, chunkID)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if err := m.purge(ctx, chunk); err != nil {
				return err
			}
		}
	}

	if rec.IsChunk() && rec.ParentRecordingID != "" {
		size := rec.AudioFiles.TotalSize()
		_, err := m.store.UpdateRecording(ctx, rec.ParentRecordingID, func(p *models.Recording) error {
			p.ChunkRecordingIDs = without(p.ChunkRecordingIDs, rec.ID)
			p.Metadata.TotalSegments = len(p.ChunkRecordingIDs)
			p.Metadata.CurrentSegment = len(p.ChunkRecordingIDs)
			p.Metadata.TotalFileSize -= size
			if p.Metadata.TotalFileSize < 0 {
				p.Metadata.TotalFileSize = 0
			}
			return nil
		})
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("unlink chunk: %w", err)
		}
	}

	if err := m.purge(ctx, rec); err != nil {
		return err
	}
	logger.Info().Int("chunks", len(rec.ChunkRecordingIDs)).Msg("Recording deleted")
	return nil
}

// purge deletes one recording's artifacts, transcripts and record.
func (m *Manager) purge(ctx context.Context, rec *models.Recording) error {
	// artifacts already marked deleted are swept again; Delete ignores missing keys
	if err := m.deleteArtifacts(ctx, rec); err != nil {
		return err
	}
	if rec.AudioDeletedAt == nil {
		m.metrics.RecordAudioDeleted(len(rec.AudioFiles))
	}

	transcripts, err := m.store.ListTranscriptsByRecording(ctx, rec.ID)
	if err != nil {
		return err
	}
	for _, t := range transcripts {
		if err := m.store.DeleteTranscript(ctx, t.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
	}

	if err := m.store.DeleteRecording(ctx, rec.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return nil
}

// DeleteAudio removes a recording's audio artifacts and keeps its transcripts.
// A later retry fails its precondition.
func (m *Manager) DeleteAudio(ctx context.Context, id string) (*models.Recording, error) {
	now := m.now().UTC()
	var already bool
	rec, err := m.store.UpdateRecording(ctx, id, func(r *models.Recording) error {
		if r.Status == models.StatusProcessing {
			return models.ErrAlreadyProcessing
		}
		if r.AudioDeletedAt != nil {
			already = true
			return nil
		}
		r.AudioDeletedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	// retries are blocked by the stamp; repeating the call finishes a partial sweep
	if err := m.deleteArtifacts(ctx, rec); err != nil {
		return nil, err
	}
	if already {
		return rec, nil
	}
	m.metrics.RecordAudioDeleted(len(rec.AudioFiles))
	logger := logging.WithRecording(rec.ID, rec.UserID)
	logger.Info().
		Int("artifacts", len(rec.AudioFiles)).
		Msg("Audio artifacts deleted")
	return rec, nil
}

func (m *Manager) deleteArtifacts(ctx context.Context, rec *models.Recording) error {
	for _, f := range rec.AudioFiles {
		if err := m.audio.Delete(ctx, f.Path); err != nil {
			return fmt.Errorf("delete audio artifact %s: %w", f.Path, err)
		}
	}
	return nil
}

// Close waits for in-flight pipeline runs and releases the worker pool.
func (m *Manager) Close(timeout time.Duration) error {
	return m.pool.ReleaseTimeout(timeout)
}

func stamp(files []models.AudioFile, segmentIndex int, now time.Time) models.AudioFiles {
	out := make(models.AudioFiles, len(files))
	for i, f := range files {
		if f.UploadedAt.IsZero() {
			f.UploadedAt = now
		}
		if segmentIndex > 0 {
			f.SegmentIndex = segmentIndex
		}
		out[i] = f
	}
	return out
}

func describeAudio(files models.AudioFiles) models.RecordingMetadata {
	_, hasIn := files.ByChannel(models.ChannelInput)
	_, hasOut := files.ByChannel(models.ChannelOutput)
	md := models.RecordingMetadata{
		HasInputAudio:  hasIn,
		HasOutputAudio: hasOut,
		Sources:        sourcesOf(hasIn, hasOut),
		TotalFileSize:  files.TotalSize(),
		RecordingType:  models.RecordingTypeSingle,
	}
	if hasIn && hasOut {
		md.RecordingType = models.RecordingTypeDual
	}
	return md
}

func sourcesOf(hasIn, hasOut bool) []models.Channel {
	sources := []models.Channel{}
	if hasIn {
		sources = append(sources, models.ChannelInput)
	}
	if hasOut {
		sources = append(sources, models.ChannelOutput)
	}
	return sources
}

func without(ids models.StringList, id string) models.StringList {
	out := make(models.StringList, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
