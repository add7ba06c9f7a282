package models

import (
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of a Recording.
type Status string

const (
	// StatusPending - audio accepted, not yet picked up.
	StatusPending Status = "pending"
	// StatusProcessing - an attempt is in flight.
	StatusProcessing Status = "processing"
	// StatusCompleted - transcript persisted. Terminal for the attempt.
	StatusCompleted Status = "completed"
	// StatusFailed - error stored. Can be reopened only by a retry.
	StatusFailed Status = "failed"
)

// IsTerminal returns true if no attempt is in flight (completed or failed).
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Errors for invalid state transitions.
var (
	ErrInvalidTransition = errors.New("invalid recording status transition")
	ErrNotFailed         = errors.New("only failed recordings can be retried")
	ErrAlreadyProcessing = errors.New("recording is already processing")
)

// Recording state transitions:
//
//	pending ──Start()──→ processing ──Complete()──→ completed
//	                         │
//	                         └──Fail()──→ failed ──Reopen()──→ processing
//
// Rules:
//   - Start only from pending
//   - Complete and Fail only from processing, exactly once per attempt
//   - Reopen only from failed (retry path); increments RetryCount
//
// These methods mutate the in-memory value. Storage applies them inside an
// atomic read-modify-write so the check and the write cannot interleave.

// Start moves a pending recording to processing.
func (r *Recording) Start() error {
	switch r.Status {
	case StatusPending:
		r.Status = StatusProcessing
		r.Error = ""
		return nil
	case StatusProcessing:
		return ErrAlreadyProcessing
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, StatusProcessing)
	}
}

// Complete links the transcript and moves processing to completed.
func (r *Recording) Complete(transcriptID string, now time.Time) error {
	if r.Status != StatusProcessing {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, StatusCompleted)
	}
	if transcriptID == "" {
		return fmt.Errorf("%w: completed recording requires a transcript", ErrInvalidTransition)
	}
	r.Status = StatusCompleted
	r.TranscriptID = transcriptID
	r.Error = ""
	r.CompletedAt = &now
	return nil
}

// Fail stores the error message and moves processing to failed.
func (r *Recording) Fail(msg string) error {
	if r.Status != StatusProcessing {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, StatusFailed)
	}
	if msg == "" {
		msg = "unknown error"
	}
	r.Status = StatusFailed
	r.Error = msg
	return nil
}

// Reopen moves a failed recording back to processing for a retry attempt.
// The previous transcript link, if any, is left in place until the new
// attempt completes.
func (r *Recording) Reopen(now time.Time) error {
	if r.Status != StatusFailed {
		return ErrNotFailed
	}
	r.Status = StatusProcessing
	r.RetryCount++
	r.LastRetryAt = &now
	return nil
}
