package shared

import "errors"

// Error kinds shared by every package. Domain packages declare their own
// sentinels on top of these with NewError so callers can branch on either.
var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists indicates a uniqueness conflict with a stored record.
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalidArgument indicates malformed caller input. Not retryable.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrPermissionDenied indicates a failed authorization check. Never retried.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrUnauthenticated indicates a missing or unverifiable identity.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrUnavailable indicates a backing store could not complete the call.
	ErrUnavailable = errors.New("unavailable")
)

type kindError struct {
	msg  string
	kind error
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

// NewError returns a sentinel with its own message that also matches kind
// under errors.Is.
func NewError(kind error, msg string) error {
	return &kindError{msg: msg, kind: kind}
}
