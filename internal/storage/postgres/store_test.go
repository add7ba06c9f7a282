package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"recording-transcription-service/internal/models"
	"recording-transcription-service/internal/storage"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		in   error
		want error
	}{
		{gorm.ErrRecordNotFound, storage.ErrNotFound},
		{fmt.Errorf("wrapped: %w", gorm.ErrRecordNotFound), storage.ErrNotFound},
		{gorm.ErrDuplicatedKey, storage.ErrConflict},
	}
	for _, tt := range tests {
		if got := translate(tt.in); !errors.Is(got, tt.want) {
			t.Errorf("translate(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if translate(nil) != nil {
		t.Error("expected nil passthrough")
	}
	other := errors.New("connection refused")
	if translate(other) != other {
		t.Error("expected unrelated errors unchanged")
	}
}

func TestOrderByIDs(t *testing.T) {
	rs := []*models.Recording{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	got := orderByIDs(rs, []string{"c", "x", "a", "b"})
	if len(got) != 3 || got[0].ID != "c" || got[1].ID != "a" || got[2].ID != "b" {
		t.Errorf("unexpected order: %+v", got)
	}
}

// openTestStore connects to TEST_DATABASE_URL or skips.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	s, err := Open(dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.EnsureReady(context.Background()); err != nil {
		t.Fatalf("ensure ready: %v", err)
	}
	// idempotent
	if err := s.EnsureReady(context.Background()); err != nil {
		t.Fatalf("second ensure ready: %v", err)
	}
	return s
}

func TestStore_Integration_RecordingLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id := uuid.NewString()
	rec := &models.Recording{
		ID:     id,
		UserID: "u-" + id[:8],
		Status: models.StatusPending,
		AudioFiles: models.AudioFiles{{
			Path: id + "/input.webm", Channel: models.ChannelInput, Size: 42, UploadedAt: time.Now().UTC(),
		}},
		Metadata: models.RecordingMetadata{HasInputAudio: true, Sources: []models.Channel{models.ChannelInput}},
	}
	if err := s.CreateRecording(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	t.Cleanup(func() { s.DeleteRecording(ctx, id) })

	if err := s.CreateRecording(ctx, rec); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}

	got, err := s.GetRecording(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.AudioFiles) != 1 || got.AudioFiles[0].Size != 42 {
		t.Errorf("jsonb round trip failed: %+v", got.AudioFiles)
	}

	updated, err := s.UpdateRecording(ctx, id, func(r *models.Recording) error { return r.Start() })
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != models.StatusProcessing {
		t.Errorf("expected processing, got %s", updated.Status)
	}

	if _, err := s.UpdateRecording(ctx, id, func(r *models.Recording) error { return r.Start() }); !errors.Is(err, models.ErrAlreadyProcessing) {
		t.Errorf("expected ErrAlreadyProcessing, got %v", err)
	}

	if err := s.DeleteRecording(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetRecording(ctx, id); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_Integration_OneParentPerSession(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	session := "sess-" + uuid.NewString()[:8]
	parent := func() *models.Recording {
		return &models.Recording{
			ID: uuid.NewString(), UserID: "u1", SessionID: session,
			IsParentSession: true, Status: models.StatusPending,
		}
	}
	first := parent()
	if err := s.CreateRecording(ctx, first); err != nil {
		t.Fatalf("create parent: %v", err)
	}
	t.Cleanup(func() { s.DeleteRecording(ctx, first.ID) })

	second := parent()
	if err := s.CreateRecording(ctx, second); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("expected ErrConflict for second parent, got %v", err)
		s.DeleteRecording(ctx, second.ID)
	}
}
