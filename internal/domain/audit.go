package domain

import "time"

// AuditEntry records one API request for the tenant-visible logs.
type AuditEntry struct {
	ID           int64
	TenantID     string
	APIKey       string
	Method       string
	Endpoint     string
	StatusCode   int
	LatencyMs    int64
	InputType    *string
	JobID        *string
	ErrorMessage *string
	IP           *string
	UserAgent    *string
	CreatedAt    time.Time
}

// APIKeyUsage is the request count recorded for one API key over a period.
type APIKeyUsage struct {
	APIKey   string
	Requests int64
}

// Principal is the caller resolved from an API credential.
type Principal struct {
	TenantID string
	APIKey   string
}
