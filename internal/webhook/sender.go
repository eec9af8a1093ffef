package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

const maxResponseBody = 64 * 1024

var (
	ErrInvalidURL     = errors.New("invalid webhook URL")
	ErrDeliveryFailed = errors.New("webhook delivery failed")
	ErrTimeout        = errors.New("webhook request timeout")
)

// DeliveryResult is what the tenant endpoint answered.
type DeliveryResult struct {
	StatusCode int
	Body       string
	Duration   time.Duration
}

// OK reports a 2xx answer.
func (r DeliveryResult) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Sender POSTs signed payloads to tenant endpoints.
type Sender struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
}

// NewSender creates a sender on a pooled client.
func NewSender(timeout time.Duration, userAgent string) *Sender {
	return NewSenderWithClient(cleanhttp.DefaultPooledClient(), timeout, userAgent)
}

// NewSenderWithClient creates a sender on the given client.
func NewSenderWithClient(client *http.Client, timeout time.Duration, userAgent string) *Sender {
	return &Sender{client: client, timeout: timeout, userAgent: userAgent}
}

// Send makes one delivery attempt. A non-2xx answer is not an error; check result.OK.
// The signature header is set only when secret is non-empty.
func (s *Sender) Send(ctx context.Context, webhookURL, secret string, payload *Payload) (DeliveryResult, error) {
	var result DeliveryResult

	if err := validateURL(webhookURL); err != nil {
		return result, err
	}

	body, err := payload.encode()
	if err != nil {
		return result, fmt.Errorf("failed to encode payload: %w", err)
	}

	reqCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return result, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set(HeaderEventID, payload.ID)
	req.Header.Set(HeaderEventType, payload.Type)
	req.Header.Set(HeaderTimestamp, payload.CreatedAt)
	if secret != "" {
		req.Header.Set(HeaderSignature, Sign(secret, body))
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	result.Duration = time.Since(start)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return result, fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return result, fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	result.StatusCode = resp.StatusCode
	result.Body = string(respBody)
	return result, nil
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: URL is required", ErrInvalidURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: only http and https schemes are supported", ErrInvalidURL)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidURL)
	}
	return nil
}
