package errs

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind     Kind
		expected string
	}{
		{KindValidation, "validation"},
		{KindFileNotFound, "file_not_found"},
		{KindAuth, "auth"},
		{KindRateLimit, "rate_limit"},
		{KindTransient, "transient"},
		{KindEngine, "engine"},
		{KindReconciliation, "reconciliation"},
		{KindRetryPrecondition, "retry_precondition"},
		{KindUnknown, "unknown"},
		{Kind(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.expected {
			t.Errorf("Kind(%d).String() = %v, want %v", tt.kind, got, tt.expected)
		}
	}
}

func TestKindOf_Wrapped(t *testing.T) {
	base := New(KindAuth, "openai.transcribe", errors.New("invalid api key"))
	wrapped := fmt.Errorf("channel input: %w", base)

	if KindOf(wrapped) != KindAuth {
		t.Errorf("expected KindAuth, got %v", KindOf(wrapped))
	}
	if !Is(wrapped, KindAuth) {
		t.Error("expected Is(wrapped, KindAuth) to be true")
	}
	if IsRetryable(wrapped) {
		t.Error("auth errors must not be retryable")
	}
}

func TestKindOf_PlainError(t *testing.T) {
	if KindOf(errors.New("boom")) != KindUnknown {
		t.Error("expected KindUnknown for unclassified errors")
	}
	if IsPipelineFailure(errors.New("boom")) {
		t.Error("unclassified errors are not pipeline failures")
	}
	if Is(nil, KindUnknown) {
		t.Error("nil error should never match a kind")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		kind      Kind
		retryable bool
	}{
		{KindTransient, true},
		{KindAuth, false},
		{KindRateLimit, false},
		{KindEngine, false},
		{KindFileNotFound, false},
	}

	for _, tt := range tests {
		err := New(tt.kind, "op", errors.New("x"))
		if got := IsRetryable(err); got != tt.retryable {
			t.Errorf("IsRetryable(%s) = %v, want %v", tt.kind, got, tt.retryable)
		}
	}
}

func TestError_Message(t *testing.T) {
	err := Newf(KindRateLimit, "google.recognize", "quota exceeded")
	msg := err.Error()

	if !strings.HasPrefix(msg, "google.recognize: quota exceeded") {
		t.Errorf("unexpected message: %s", msg)
	}
	if !strings.Contains(msg, "try again later") {
		t.Errorf("rate limit message should carry retry-later hint, got %s", msg)
	}

	noOp := New(KindValidation, "", nil)
	if noOp.Error() != "validation" {
		t.Errorf("expected 'validation', got %s", noOp.Error())
	}
}
