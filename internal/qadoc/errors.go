package qadoc

import (
	"errors"
	"fmt"
)

// ErrorKind names one failure class from the pipeline taxonomy. The scheduler
// keys its retry decision on the kind, never on the message.
type ErrorKind string

// Failure kinds produced by the crawler, analyzer and rate limiter.
const (
	KindCrawlTimeout     ErrorKind = "crawl_timeout"
	KindCrawlAuth        ErrorKind = "crawl_auth_error"
	KindCrawlNavigation  ErrorKind = "crawl_navigation_error"
	KindAnalysisParse    ErrorKind = "analysis_parse_error"
	KindAnalysisProvider ErrorKind = "analysis_provider_error"
	KindRateLimitTimeout ErrorKind = "rate_limit_timeout"
	KindInternal         ErrorKind = "internal_error"
)

// Error is a pipeline failure tagged with its taxonomy kind.
type Error struct {
	Kind ErrorKind
	Err  error
}

// NewError wraps err with a kind.
func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Errorf builds a kinded error from a format string.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the taxonomy kind from err, or KindInternal when the error
// carries no kind.
func KindOf(err error) ErrorKind {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Kind
	}
	return KindInternal
}

// Normalize converts err into the (kind, message) pair persisted on a task.
func Normalize(err error) TaskError {
	var qe *Error
	if errors.As(err, &qe) {
		return TaskError{Kind: qe.Kind, Message: qe.Err.Error()}
	}
	return TaskError{Kind: KindInternal, Message: err.Error()}
}
