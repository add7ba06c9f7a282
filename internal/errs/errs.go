// Package errs defines the failure taxonomy shared by the transcription pipeline.
// Every error that can end a recording attempt carries a Kind so the session
// manager can decide whether to retry, fail the recording, or reject the call.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind int

const (
	// KindUnknown is anything not produced by this package (storage, programmer errors).
	KindUnknown Kind = iota
	// KindValidation - bad or missing audio artifact, rejected before any engine call.
	KindValidation
	// KindFileNotFound - the artifact path does not resolve to stored audio.
	KindFileNotFound
	// KindAuth - the speech engine rejected our credentials.
	KindAuth
	// KindRateLimit - the speech engine throttled us. Try later.
	KindRateLimit
	// KindTransient - network failure, connection reset, timeout. Retried.
	KindTransient
	// KindEngine - any other engine rejection (bad request, unsupported format).
	KindEngine
	// KindReconciliation - one of two requested channels failed.
	KindReconciliation
	// KindRetryPrecondition - retry requested on a non-failed recording or one without audio.
	KindRetryPrecondition
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindFileNotFound:
		return "file_not_found"
	case KindAuth:
		return "auth"
	case KindRateLimit:
		return "rate_limit"
	case KindTransient:
		return "transient"
	case KindEngine:
		return "engine"
	case KindReconciliation:
		return "reconciliation"
	case KindRetryPrecondition:
		return "retry_precondition"
	default:
		return "unknown"
	}
}

// Error is a classified pipeline error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Kind == KindRateLimit {
		msg += " (rate limited, try again later)"
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with the given kind and operation.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf builds a classified error from a format string.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetryable reports whether err should be retried by the engine adapter.
func IsRetryable(err error) bool {
	return Is(err, KindTransient)
}

// IsPipelineFailure reports whether err belongs to the taxonomy and should be
// stored on the recording rather than propagated to the caller.
func IsPipelineFailure(err error) bool {
	return KindOf(err) != KindUnknown
}
