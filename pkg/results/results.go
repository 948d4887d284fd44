package results

import (
	"errors"
	"strings"
)

type Reason string

const (
	// ReasonUnknown is default reason. Occurrences of this reason in
	// diagnostics indicate a bug, a failure to identify the reason for an
	// error somewhere.
	ReasonUnknown Reason = "unknown"

	// ReasonInvalidParameter marks malformed caller input. The call is
	// aborted and nothing is computed.
	ReasonInvalidParameter Reason = "invalid_parameter"
	// ReasonMissingTask marks a requested task with no rows. Other tasks in
	// the same call are still processed.
	ReasonMissingTask Reason = "missing_task"
	// ReasonEmptyInput marks a computation that had no rows to work on.
	ReasonEmptyInput Reason = "empty_input"
	// ReasonDataQuality marks values that were excluded because they were
	// NaN or missing.
	ReasonDataQuality Reason = "data_quality"

	ReasonQueryFailed   Reason = "query_failed"
	ReasonQueryTooLarge Reason = "query_too_large"
	ReasonSnapshot      Reason = "snapshot"
)

// FullReason returns the reason chain of the error, joined by colons.
// Errors that carry no reason are reported as unknown.
func FullReason(err error) string {
	reasons := Reasons(err)
	if len(reasons) == 0 {
		return string(ReasonUnknown)
	}
	return strings.Join(reasons, ":")
}

// Reasons lists the reason chains of the errors. Aggregated errors get a
// chain per child.
func Reasons(errs ...error) []string {
	var out []string
	for _, err := range errs {
		out = append(out, reasonChains(err)...)
	}
	return out
}

func reasonChains(err error) []string {
	switch err := err.(type) {
	case nil:
		return nil
	case *Error:
		children := reasonChains(err.wrapped)
		if len(children) == 0 {
			return []string{string(err.reason)}
		}
		chains := make([]string, 0, len(children))
		for _, child := range children {
			chains = append(chains, string(err.reason)+":"+child)
		}
		return chains
	case interface{ Errors() []error }:
		return Reasons(err.Errors()...)
	case interface{ Unwrap() []error }:
		return Reasons(err.Unwrap()...)
	case interface{ Unwrap() error }:
		return reasonChains(err.Unwrap())
	}
	return nil
}

// HasReason determines if any error in the chain carries the reason.
func HasReason(err error, reason Reason) bool {
	var e *Error
	for err != nil {
		if errors.As(err, &e) {
			if e.reason == reason {
				return true
			}
			err = e.wrapped
			continue
		}
		return false
	}
	return false
}

// Filter returns the errors that carry the reason.
func Filter(errs []error, reason Reason) []error {
	var out []error
	for _, err := range errs {
		if HasReason(err, reason) {
			out = append(out, err)
		}
	}
	return out
}
