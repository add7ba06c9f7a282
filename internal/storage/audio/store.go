// Package audio stores uploaded audio artifacts in a blob bucket.
// Artifacts are written once and only ever read or deleted afterwards.
package audio

import (
	"context"
	"fmt"
	"io"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"

	"recording-transcription-service/internal/errs"
)

// Store wraps a bucket keyed by artifact path.
type Store struct {
	bucket *blob.Bucket
}

// Open opens the bucket at url (file:///dir, mem://).
func Open(ctx context.Context, url string) (*Store, error) {
	b, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open audio bucket %s: %w", url, err)
	}
	return New(b), nil
}

// New wraps an opened bucket.
func New(b *blob.Bucket) *Store {
	return &Store{bucket: b}
}

// Exists reports whether the artifact is present.
func (s *Store) Exists(ctx context.Context, path string) (bool, error) {
	return s.bucket.Exists(ctx, path)
}

// Open returns a reader for the artifact. The caller must close it.
// A missing artifact is errs.KindFileNotFound.
func (s *Store) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	r, err := s.bucket.NewReader(ctx, path, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, errs.Newf(errs.KindFileNotFound, "audio.open", "audio artifact %s not found", path)
		}
		return nil, fmt.Errorf("open audio artifact %s: %w", path, err)
	}
	return r, nil
}

// Put writes an artifact and returns the number of bytes stored.
func (s *Store) Put(ctx context.Context, path, contentType string, r io.Reader) (int64, error) {
	w, err := s.bucket.NewWriter(ctx, path, &blob.WriterOptions{ContentType: contentType})
	if err != nil {
		return 0, fmt.Errorf("create audio artifact %s: %w", path, err)
	}
	n, err := io.Copy(w, r)
	if err != nil {
		w.Close()
		return 0, fmt.Errorf("write audio artifact %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("commit audio artifact %s: %w", path, err)
	}
	return n, nil
}

// Delete removes the artifact. Deleting a missing artifact is not an error.
func (s *Store) Delete(ctx context.Context, path string) error {
	if err := s.bucket.Delete(ctx, path); err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return fmt.Errorf("delete audio artifact %s: %w", path, err)
	}
	return nil
}

// Close closes the bucket.
func (s *Store) Close() error {
	return s.bucket.Close()
}
