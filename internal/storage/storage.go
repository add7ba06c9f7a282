// Package storage defines the persistence contract for recordings and
// transcripts. Implementations live in the memory and postgres subpackages.
package storage

import (
	"context"
	"errors"

	"recording-transcription-service/internal/models"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned when creating a record whose id already exists.
var ErrConflict = errors.New("record already exists")

// MutateFunc edits a recording in place. Returning an error aborts the
// update and leaves the stored record unchanged.
type MutateFunc func(r *models.Recording) error

// Store persists recordings and transcripts.
//
// Parent sessions reference chunks only through Recording.ChunkRecordingIDs;
// chunks are resolved with GetRecordingsByIDs.
type Store interface {
	// EnsureReady prepares schema and indexes. Idempotent; called once at startup.
	EnsureReady(ctx context.Context) error

	// CreateRecording returns ErrConflict when the id exists, or when r is a
	// parent session and its session id already has a parent.
	CreateRecording(ctx context.Context, r *models.Recording) error
	GetRecording(ctx context.Context, id string) (*models.Recording, error)

	// UpdateRecording runs fn against the current stored value and writes
	// the result atomically. No other update of the same id can interleave
	// between the read and the write, so a state check inside fn acts as a
	// compare-and-swap. Returns the updated record.
	UpdateRecording(ctx context.Context, id string, fn MutateFunc) (*models.Recording, error)

	DeleteRecording(ctx context.Context, id string) error

	// FindParentBySession returns the parent session recording for sessionID.
	FindParentBySession(ctx context.Context, sessionID string) (*models.Recording, error)
	// ListParentSessions returns a user's parent sessions, newest first.
	ListParentSessions(ctx context.Context, userID string) ([]*models.Recording, error)
	// GetRecordingsByIDs returns recordings in the order of ids, skipping missing ones.
	GetRecordingsByIDs(ctx context.Context, ids []string) ([]*models.Recording, error)

	CreateTranscript(ctx context.Context, t *models.Transcript) error
	GetTranscript(ctx context.Context, id string) (*models.Transcript, error)
	// ListTranscriptsByRecording returns every transcript produced for a recording, oldest first.
	ListTranscriptsByRecording(ctx context.Context, recordingID string) ([]*models.Transcript, error)
	DeleteTranscript(ctx context.Context, id string) error

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
	Close() error
}
