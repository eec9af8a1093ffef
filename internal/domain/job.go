package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a render job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "QUEUED"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusSucceeded JobStatus = "SUCCEEDED"
	JobStatusFailed    JobStatus = "FAILED"
)

// IsTerminal reports whether no further transition is allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// CanTransitionTo reports whether s -> next is a forward transition.
// RUNNING -> RUNNING is allowed so a redelivered message can resume a crashed attempt.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusQueued:
		return next == JobStatusRunning
	case JobStatusRunning:
		return next == JobStatusRunning || next == JobStatusSucceeded || next == JobStatusFailed
	default:
		return false
	}
}

// InputType selects how the renderer obtains the document.
type InputType string

const (
	InputTypeHTML InputType = "HTML"
	InputTypeURL  InputType = "URL"
)

// Valid reports whether t is a supported input type.
func (t InputType) Valid() bool {
	return t == InputTypeHTML || t == InputTypeURL
}

// InlineInputRef marks an HTML job whose markup arrives in the request body.
const InlineInputRef = "INLINE"

// Job error codes stored on FAILED jobs.
const (
	ErrorCodeContentFetchFailed = "CONTENT_FETCH_FAILED"
	ErrorCodeRenderFailed       = "RENDER_FAILED"
	ErrorCodeOutputStoreFailed  = "OUTPUT_STORE_FAILED"
)

// Job is one render request tracked through QUEUED, RUNNING and a terminal state.
type Job struct {
	ID             string
	TenantID       string
	Status         JobStatus
	InputType      InputType
	InputRef       string
	Options        *RenderOptions
	ResultRef      *string
	ResultSize     *int64
	ErrorCode      *string
	ErrorMessage   *string
	IdempotencyKey *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	StartedAt      *time.Time
	FinishedAt     *time.Time
}

// NewJobID allocates a time-ordered job identifier.
func NewJobID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate job id: %w", err)
	}
	return id.String(), nil
}

// InputKey is where inline HTML for a job is stored.
func InputKey(tenantID, jobID string) string {
	return fmt.Sprintf("%s%s.html", InputPrefix(tenantID), jobID)
}

// InputPrefix is the content store prefix a tenant's HTML inputs live under.
func InputPrefix(tenantID string) string {
	return fmt.Sprintf("inputs/%s/", tenantID)
}

// OutputPrefix is the content store prefix a tenant's PDFs are written under.
func OutputPrefix(tenantID string) string {
	return fmt.Sprintf("outputs/%s/", tenantID)
}

// OutputKey is where the rendered PDF for a job is stored.
func OutputKey(tenantID, jobID string) string {
	return fmt.Sprintf("%s%s.pdf", OutputPrefix(tenantID), jobID)
}

// RenderRequest is the render queue message. It never carries raw HTML.
type RenderRequest struct {
	JobID        string         `json:"jobId"`
	TenantID     string         `json:"tenantId"`
	InputType    InputType      `json:"inputType"`
	InputRef     string         `json:"inputRef"`
	Options      *RenderOptions `json:"options,omitempty"`
	OutputPrefix string         `json:"outputPrefix"`
}

// NewRenderRequest builds the queue message for a persisted job.
func NewRenderRequest(job *Job) *RenderRequest {
	return &RenderRequest{
		JobID:        job.ID,
		TenantID:     job.TenantID,
		InputType:    job.InputType,
		InputRef:     job.InputRef,
		Options:      job.Options,
		OutputPrefix: OutputPrefix(job.TenantID),
	}
}

// Validate checks the fields a worker needs before touching the job store.
func (r *RenderRequest) Validate() error {
	if r.JobID == "" {
		return fmt.Errorf("%w: missing jobId", ErrInvalidPayload)
	}
	if r.TenantID == "" {
		return fmt.Errorf("%w: missing tenantId", ErrInvalidPayload)
	}
	if !r.InputType.Valid() {
		return fmt.Errorf("%w: unsupported inputType %q", ErrInvalidPayload, r.InputType)
	}
	if r.InputRef == "" || r.InputRef == InlineInputRef {
		return fmt.Errorf("%w: unresolved inputRef", ErrInvalidPayload)
	}
	return nil
}
