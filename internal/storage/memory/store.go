// Package memory provides an in-process Store for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"recording-transcription-service/internal/models"
	"recording-transcription-service/internal/storage"
)

// Store is a mutex-guarded map store. Values are cloned on the way in and
// out so callers never share memory with the store.
type Store struct {
	mu          sync.Mutex
	recordings  map[string]*models.Recording
	transcripts map[string]*models.Transcript
	order       map[string]int // transcript insertion order
	seq         int
	now         func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		recordings:  make(map[string]*models.Recording),
		transcripts: make(map[string]*models.Transcript),
		order:       make(map[string]int),
		now:         time.Now,
	}
}

// EnsureReady is a no-op.
func (s *Store) EnsureReady(ctx context.Context) error {
	return nil
}

func (s *Store) CreateRecording(ctx context.Context, r *models.Recording) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.recordings[r.ID]; ok {
		return storage.ErrConflict
	}
	if r.IsParentSession {
		for _, existing := range s.recordings {
			if existing.IsParentSession && existing.SessionID == r.SessionID {
				return storage.ErrConflict
			}
		}
	}
	now := s.now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	s.recordings[r.ID] = r.Clone()
	return nil
}

func (s *Store) GetRecording(ctx context.Context, id string) (*models.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.recordings[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return r.Clone(), nil
}

func (s *Store) UpdateRecording(ctx context.Context, id string, fn storage.MutateFunc) (*models.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.recordings[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = id
	next.UpdatedAt = s.now().UTC()
	s.recordings[id] = next
	return next.Clone(), nil
}

func (s *Store) DeleteRecording(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.recordings[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.recordings, id)
	return nil
}

func (s *Store) FindParentBySession(ctx context.Context, sessionID string) (*models.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.recordings {
		if r.IsParentSession && r.SessionID == sessionID {
			return r.Clone(), nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) ListParentSessions(ctx context.Context, userID string) ([]*models.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []*models.Recording{}
	for _, r := range s.recordings {
		if r.IsParentSession && r.UserID == userID {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) GetRecordingsByIDs(ctx context.Context, ids []string) ([]*models.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.Recording, 0, len(ids))
	for _, id := range ids {
		if r, ok := s.recordings[id]; ok {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (s *Store) CreateTranscript(ctx context.Context, t *models.Transcript) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.transcripts[t.ID]; ok {
		return storage.ErrConflict
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now().UTC()
	}
	s.seq++
	s.order[t.ID] = s.seq
	s.transcripts[t.ID] = cloneTranscript(t)
	return nil
}

func (s *Store) GetTranscript(ctx context.Context, id string) (*models.Transcript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transcripts[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneTranscript(t), nil
}

func (s *Store) ListTranscriptsByRecording(ctx context.Context, recordingID string) ([]*models.Transcript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []*models.Transcript{}
	for _, t := range s.transcripts {
		if t.RecordingID == recordingID {
			out = append(out, cloneTranscript(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.order[out[i].ID] < s.order[out[j].ID] })
	return out, nil
}

func (s *Store) DeleteTranscript(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.transcripts[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.transcripts, id)
	delete(s.order, id)
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

func cloneTranscript(t *models.Transcript) *models.Transcript {
	c := *t
	c.Segments = append(models.Segments(nil), t.Segments...)
	c.Metadata.Sources = append([]models.Channel(nil), t.Metadata.Sources...)
	return &c
}

var _ storage.Store = (*Store)(nil)
