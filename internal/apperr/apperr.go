package apperr

import "fmt"

type Kind string

const (
	KindValidation   Kind = "validation"
	KindPrecondition Kind = "precondition"
	KindUpstream     Kind = "upstream"
	KindNotFound     Kind = "not_found"
)

// Error is the single error shape surfaced across component boundaries.
// Kind drives retry/HTTP mapping; Details carry field-level context.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error {
	return newError(KindValidation, format, args...)
}

func Precondition(format string, args ...any) *Error {
	return newError(KindPrecondition, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return newError(KindNotFound, format, args...)
}

// Upstream wraps a failed external call. cause may be nil when the failure is
// an HTTP status rather than a transport error.
func Upstream(cause error, format string, args ...any) *Error {
	e := newError(KindUpstream, format, args...)
	e.cause = cause
	return e
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, else "".
func KindOf(err error) Kind {
	var e *Error
	for err != nil {
		if ok := asError(err, &e); ok {
			return e.Kind
		}
		err = unwrap(err)
	}
	return ""
}

func IsKind(err error, kind Kind) bool { return KindOf(err) == kind }

func asError(err error, target **Error) bool {
	e, ok := err.(*Error)
	if ok {
		*target = e
	}
	return ok
}

func unwrap(err error) error {
	u, ok := err.(interface{ Unwrap() error })
	if !ok {
		return nil
	}
	return u.Unwrap()
}
