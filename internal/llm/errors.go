package llm

import (
	"context"
	"errors"
	"net/http"

	"github.com/desertthunder/mixtape/internal/shared"
	"github.com/sashabaranov/go-openai"
)

// TransientError represents a temporary error that may succeed on retry.
type TransientError struct {
	err error
}

func (e *TransientError) Error() string {
	return e.err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.err
}

// NewTransientError wraps an error as transient (retryable).
func NewTransientError(err error) error {
	return &TransientError{err: err}
}

// FatalError represents a permanent error that should not be retried.
type FatalError struct {
	err error
}

func (e *FatalError) Error() string {
	return e.err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.err
}

// NewFatalError wraps an error as fatal (non-retryable).
func NewFatalError(err error) error {
	return &FatalError{err: err}
}

// IsTransient returns true if the error is transient and should be retried.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// IsFatal returns true if the error is fatal and should not be retried.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

// classifyError maps a go-openai error onto [TransientError] or [FatalError].
//
// Status-bearing errors are converted to [shared.HTTPStatusError] so callers can
// inspect the code; 429 and 5xx are transient, other statuses fatal. Errors without
// a status are transport failures and transient, unless the context ended.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NewFatalError(err)
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if status == 0 {
		return NewTransientError(err)
	}

	statusErr := &shared.HTTPStatusError{StatusCode: status, Body: err.Error()}
	if status == http.StatusTooManyRequests || status >= 500 {
		return NewTransientError(statusErr)
	}
	return NewFatalError(statusErr)
}
