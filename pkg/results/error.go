package results

import (
	"fmt"
)

// Error is an error tagged with a Reason, so that callers can tell an empty
// result caused by missing data from one caused by bad data without parsing
// messages.
type Error struct {
	reason  Reason
	message string
	wrapped error
}

func (e *Error) Error() string {
	return e.message
}

func (e *Error) Unwrap() error {
	return e.wrapped
}

// Is matches any Error, regardless of its reason.
func (e *Error) Is(target error) bool {
	_, ok := target.(*Error)
	return ok
}

// Reason is the reason this error was created with, ignoring its children.
func (e *Error) Reason() Reason {
	return e.reason
}

// Builder collects the reason and cause of an Error until Errorf
// finishes it:
//
//	if err := it.Next(&row); err != nil {
//	    return results.ForReason(results.ReasonQueryFailed).WithError(err).Errorf("could not read runtime row for workflow %s", id)
//	}
type Builder struct {
	reason  Reason
	wrapped error
}

func ForReason(reason Reason) *Builder {
	if reason == "" {
		reason = ReasonUnknown
	}
	return &Builder{reason: reason}
}

// WithError sets the lower-level failure the Error wraps.
func (b *Builder) WithError(err error) *Builder {
	return &Builder{reason: b.reason, wrapped: err}
}

func (b *Builder) Errorf(format string, args ...interface{}) error {
	return &Error{
		reason:  b.reason,
		message: fmt.Sprintf(format, args...),
		wrapped: b.wrapped,
	}
}
