package models

import (
	"errors"
	"testing"
	"time"
)

func TestRecording_InitialState(t *testing.T) {
	rec := &Recording{ID: "rec-1", Status: StatusPending}

	if rec.Status.IsTerminal() {
		t.Error("expected pending to be non-terminal")
	}
	if rec.TranscriptID != "" {
		t.Errorf("expected no transcript, got %s", rec.TranscriptID)
	}
}

func TestRecording_Start_FromPending(t *testing.T) {
	rec := &Recording{Status: StatusPending}

	if err := rec.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Status != StatusProcessing {
		t.Errorf("expected processing, got %s", rec.Status)
	}
}

func TestRecording_Start_Rejected(t *testing.T) {
	tests := []struct {
		status Status
		want   error
	}{
		{StatusProcessing, ErrAlreadyProcessing},
		{StatusCompleted, ErrInvalidTransition},
		{StatusFailed, ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			rec := &Recording{Status: tt.status}
			if err := rec.Start(); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if rec.Status != tt.status {
				t.Errorf("status changed to %s", rec.Status)
			}
		})
	}
}

func TestRecording_Complete(t *testing.T) {
	rec := &Recording{Status: StatusProcessing, Error: "stale"}
	now := time.Now()

	if err := rec.Complete("tr-1", now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", rec.Status)
	}
	if rec.TranscriptID != "tr-1" {
		t.Errorf("expected tr-1, got %s", rec.TranscriptID)
	}
	if rec.Error != "" {
		t.Errorf("expected error cleared, got %s", rec.Error)
	}
	if rec.CompletedAt == nil || !rec.CompletedAt.Equal(now) {
		t.Error("expected completedAt set")
	}
}

func TestRecording_Complete_RequiresTranscript(t *testing.T) {
	rec := &Recording{Status: StatusProcessing}

	if err := rec.Complete("", time.Now()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if rec.Status != StatusProcessing {
		t.Errorf("expected processing, got %s", rec.Status)
	}
}

func TestRecording_Complete_OnlyFromProcessing(t *testing.T) {
	rec := &Recording{Status: StatusPending}

	if err := rec.Complete("tr-1", time.Now()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestRecording_Fail(t *testing.T) {
	rec := &Recording{Status: StatusProcessing}

	if err := rec.Fail("engine exploded"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Status != StatusFailed {
		t.Errorf("expected failed, got %s", rec.Status)
	}
	if rec.Error != "engine exploded" {
		t.Errorf("expected error message stored, got %q", rec.Error)
	}
}

func TestRecording_Fail_OnlyOncePerAttempt(t *testing.T) {
	rec := &Recording{Status: StatusProcessing}
	rec.Fail("first")

	if err := rec.Fail("second"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if rec.Error != "first" {
		t.Errorf("expected first error kept, got %q", rec.Error)
	}
}

func TestRecording_Reopen(t *testing.T) {
	rec := &Recording{Status: StatusFailed, Error: "boom", RetryCount: 1}
	now := time.Now()

	if err := rec.Reopen(now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Status != StatusProcessing {
		t.Errorf("expected processing, got %s", rec.Status)
	}
	if rec.RetryCount != 2 {
		t.Errorf("expected retryCount 2, got %d", rec.RetryCount)
	}
	if rec.LastRetryAt == nil || !rec.LastRetryAt.Equal(now) {
		t.Error("expected lastRetryAt set")
	}
}

func TestRecording_Reopen_OnlyFromFailed(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusProcessing, StatusCompleted} {
		rec := &Recording{Status: s}
		if err := rec.Reopen(time.Now()); !errors.Is(err, ErrNotFailed) {
			t.Errorf("%s: expected ErrNotFailed, got %v", s, err)
		}
		if rec.Status != s || rec.RetryCount != 0 || rec.LastRetryAt != nil {
			t.Errorf("%s: state mutated on rejected reopen", s)
		}
	}
}

func TestRecording_FullCycleWithRetry(t *testing.T) {
	rec := &Recording{Status: StatusPending}

	if err := rec.Start(); err != nil {
		t.Fatal(err)
	}
	if err := rec.Fail("timeout"); err != nil {
		t.Fatal(err)
	}
	if err := rec.Reopen(time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := rec.Complete("tr-2", time.Now()); err != nil {
		t.Fatal(err)
	}

	if rec.Status != StatusCompleted || rec.Error != "" || rec.RetryCount != 1 {
		t.Errorf("unexpected final state: %+v", rec)
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status     Status
		isTerminal bool
	}{
		{StatusPending, false},
		{StatusProcessing, false},
		{StatusCompleted, true},
		{StatusFailed, true},
	}

	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.isTerminal {
			t.Errorf("Status(%s).IsTerminal() = %v, want %v", tt.status, got, tt.isTerminal)
		}
	}
}

func TestChannel_Label(t *testing.T) {
	if ChannelInput.Label() != "MICROPHONE" {
		t.Errorf("unexpected input label %s", ChannelInput.Label())
	}
	if ChannelOutput.Label() != "SYSTEM" {
		t.Errorf("unexpected output label %s", ChannelOutput.Label())
	}
	if Channel("x").Valid() {
		t.Error("unknown channel should be invalid")
	}
}

func TestRecording_Clone_Independent(t *testing.T) {
	rec := &Recording{
		ID:                "p",
		ChunkRecordingIDs: StringList{"a"},
		AudioFiles:        AudioFiles{{Path: "x", Channel: ChannelInput}},
	}
	c := rec.Clone()
	c.ChunkRecordingIDs = append(c.ChunkRecordingIDs, "b")
	c.AudioFiles[0].Path = "y"

	if len(rec.ChunkRecordingIDs) != 1 {
		t.Error("clone shares chunk ids with original")
	}
	if rec.AudioFiles[0].Path != "x" {
		t.Error("clone shares audio files with original")
	}
}

func TestAudioFiles_Scan(t *testing.T) {
	var files AudioFiles
	if err := files.Scan([]byte(`[{"path":"a.wav","channel":"output","size":10}]`)); err != nil {
		t.Fatalf("scan: %v", err)
	}
	f, ok := files.ByChannel(ChannelOutput)
	if !ok || f.Path != "a.wav" {
		t.Errorf("expected output artifact a.wav, got %+v", files)
	}
	if files.TotalSize() != 10 {
		t.Errorf("expected total size 10, got %d", files.TotalSize())
	}
	if err := files.Scan(42); err == nil {
		t.Error("expected error for unsupported column type")
	}
}
