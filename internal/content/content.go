// Package content stores job inputs and rendered outputs and issues short-lived download URLs.
package content

import (
	"context"
	"errors"
	"time"
)

// Content types written by the services.
const (
	ContentTypeHTML = "text/html; charset=utf-8"
	ContentTypePDF  = "application/pdf"
)

var (
	ErrInvalidConfig      = errors.New("invalid content store configuration")
	ErrAccessDenied       = errors.New("content store access denied")
	ErrServiceUnavailable = errors.New("content store unavailable")
	ErrOperationTimeout   = errors.New("content store operation timed out")
	ErrOperationCanceled  = errors.New("content store operation canceled")
)

// Store is the object storage boundary.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}
