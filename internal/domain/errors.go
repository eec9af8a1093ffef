package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when a job cannot be found in the database
	ErrJobNotFound = errors.New("job not found")

	// ErrJobNotClaimable is returned when a job is already in a terminal state
	ErrJobNotClaimable = errors.New("job is not in QUEUED or RUNNING status")

	// ErrJobNotRunning is returned when a terminal update finds the job outside RUNNING
	ErrJobNotRunning = errors.New("job is not in RUNNING status")

	// ErrInvalidPayload is returned when a queue message is malformed
	ErrInvalidPayload = errors.New("invalid message payload")

	// ErrContentNotFound is returned when a content key does not exist
	ErrContentNotFound = errors.New("content not found")

	// ErrUnknownEventType is returned when a lifecycle event type is not supported
	ErrUnknownEventType = errors.New("unknown event type")

	// ErrWebhookConfigNotFound is returned when a tenant has never saved a webhook config
	ErrWebhookConfigNotFound = errors.New("webhook config not found")

	// ErrAPIKeyNotFound is returned when an API key is unknown or not active
	ErrAPIKeyNotFound = errors.New("api key not found")
)

// Kind classifies failures for transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindNotFound
	KindConflict
	KindQuotaExceeded
	KindContentFetch
	KindRenderFailed
	KindUpstreamDelivery
	KindConfiguration
)

// Code returns the machine-readable code for the kind.
func (k Kind) Code() string {
	switch k {
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindUnauthorized:
		return "UNAUTHORIZED"
	case KindNotFound:
		return "NOT_FOUND"
	case KindConflict:
		return "NOT_READY"
	case KindQuotaExceeded:
		return "QUOTA_EXCEEDED"
	case KindContentFetch:
		return ErrorCodeContentFetchFailed
	case KindRenderFailed:
		return ErrorCodeRenderFailed
	case KindUpstreamDelivery:
		return "UPSTREAM_DELIVERY_FAILED"
	case KindConfiguration:
		return "CONFIGURATION_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}

// Error is a classified failure carrying what an HTTP caller needs.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	JobID   string
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorCode returns the explicit code or the kind's default.
func (e *Error) ErrorCode() string {
	if e.Code != "" {
		return e.Code
	}
	return e.Kind.Code()
}

// NewError creates a classified error.
func NewError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// NewValidationError creates a 400-class error.
func NewValidationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// NewNotFoundError creates a 404-class error.
func NewNotFoundError(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// KindOf returns the kind of the first *Error in err's chain, KindInternal otherwise.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	if errors.Is(err, ErrJobNotFound) {
		return KindNotFound
	}
	return KindInternal
}

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err asks for redelivery.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}
