package audio

import (
	"context"
	"io"
	"strings"
	"testing"

	"gocloud.dev/blob/memblob"

	"recording-transcription-service/internal/errs"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(memblob.OpenBucket(nil))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_PutOpenDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n, err := s.Put(ctx, "rec-1/input.webm", "audio/webm", strings.NewReader("opus-bytes"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if n != int64(len("opus-bytes")) {
		t.Errorf("expected %d bytes, got %d", len("opus-bytes"), n)
	}

	ok, err := s.Exists(ctx, "rec-1/input.webm")
	if err != nil || !ok {
		t.Fatalf("expected artifact to exist, got %v %v", ok, err)
	}

	rc, err := s.Open(ctx, "rec-1/input.webm")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "opus-bytes" {
		t.Errorf("unexpected content %q", data)
	}

	if err := s.Delete(ctx, "rec-1/input.webm"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := s.Exists(ctx, "rec-1/input.webm"); ok {
		t.Error("expected artifact gone after delete")
	}
	if err := s.Delete(ctx, "rec-1/input.webm"); err != nil {
		t.Errorf("expected idempotent delete, got %v", err)
	}
}

func TestStore_OpenMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Open(context.Background(), "nope.wav")
	if !errs.Is(err, errs.KindFileNotFound) {
		t.Errorf("expected file not found kind, got %v", err)
	}
}

func TestOpen_MemURL(t *testing.T) {
	s, err := Open(context.Background(), "mem://")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if ok, _ := s.Exists(context.Background(), "x"); ok {
		t.Error("expected empty bucket")
	}
}
