package types

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of failure categories surfaced to callers.
// Callers branch on the kind, never on the message text.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindNotFound
	KindStorage
	KindConflict
	KindUnavailable
	KindUnauthorized
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindStorage:
		return "storage"
	case KindConflict:
		return "conflict"
	case KindUnavailable:
		return "unavailable"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "internal"
	}
}

// Error carries a kind, a user-facing message and an optional cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind and message, so sentinel
// values below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == e.Message
}

func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func StorageError(message string, cause error) *Error {
	return &Error{Kind: KindStorage, Message: message, Err: cause}
}

func Unavailable(message string, cause error) *Error {
	return &Error{Kind: KindUnavailable, Message: message, Err: cause}
}

var (
	ErrJobNotFound      = &Error{Kind: KindNotFound, Message: "Job not found"}
	ErrEvidenceNotFound = &Error{Kind: KindNotFound, Message: "Evidence not found"}
	ErrReportNotFound   = &Error{Kind: KindNotFound, Message: "Report not found"}
	ErrObjectNotFound   = &Error{Kind: KindNotFound, Message: "Stored object not found"}
	ErrUploadConflict   = &Error{Kind: KindConflict, Message: "An object already exists at this path"}
	ErrMissingScope     = &Error{Kind: KindUnauthorized, Message: "Unauthorized"}
	ErrUnauthorized     = &Error{Kind: KindUnauthorized, Message: "Unauthorized"}
)

// KindOf reports the kind of the first *Error in err's chain. Errors that
// carry no kind are internal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// PublicMessage returns the message safe to show to the caller. Internal
// errors never leak their cause.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	return "Internal server error"
}
