package pipeline

import (
	"errors"
	"fmt"
)

// Kind is the closed set of pipeline-level error kinds. NotFound and
// InvalidStatus are precondition failures and deterministic for a given
// request snapshot; SearchFailed and VerifyFailed are infrastructure failures
// left to the boundary layer to retry.
type Kind string

const (
	KindNotFound      Kind = "not_found"
	KindInvalidStatus Kind = "invalid_status"
	KindSearchFailed  Kind = "search_failed"
	KindVerifyFailed  Kind = "verify_failed"
	KindInternal      Kind = "internal"
)

// Error tags a failure with its kind and the correlation request id.
type Error struct {
	Kind      Kind
	RequestID string
	Err       error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: request %s", e.Kind, e.RequestID)
	}
	return fmt.Sprintf("%s: request %s: %v", e.Kind, e.RequestID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, requestID string, err error) *Error {
	return &Error{Kind: kind, RequestID: requestID, Err: err}
}

// KindOf extracts the pipeline kind from any error, defaulting to the
// unclassified catch-all.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}
