package dto

import (
	"encoding/json"
	"time"

	"github.com/cuongbtq/render-jobs/internal/domain"
)

type CreateJobRequest struct {
	InputType      string          `json:"inputType"`
	InputRef       string          `json:"inputRef"`
	InputHTML      string          `json:"inputHtml"`
	Options        json.RawMessage `json:"options"`
	IdempotencyKey string          `json:"idempotencyKey"`
}

type CreateJobQuery struct {
	Mode  string `form:"mode"`
	Async string `form:"async"`
}

type ListJobsRequest struct {
	Since  string `form:"since"`
	Limit  int    `form:"limit"`
	Cursor string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"nextCursor,omitempty"`
}

type JobResponse struct {
	Job         JobDTO `json:"job"`
	DownloadURL string `json:"downloadUrl,omitempty"`
}

type InProgressResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	JobID string `json:"jobId"`
}

type JobDTO struct {
	ID              string                `json:"id"`
	TenantID        string                `json:"tenantId"`
	Status          domain.JobStatus      `json:"status"`
	InputType       domain.InputType      `json:"inputType"`
	InputRef        string                `json:"inputRef"`
	Options         *domain.RenderOptions `json:"options"`
	ResultRef       *string               `json:"resultRef"`
	ResultSizeBytes *int64                `json:"resultSizeBytes"`
	ErrorCode       *string               `json:"errorCode"`
	ErrorMessage    *string               `json:"errorMessage"`
	IdempotencyKey  *string               `json:"idempotencyKey"`
	CreatedAt       time.Time             `json:"createdAt"`
	UpdatedAt       time.Time             `json:"updatedAt"`
	StartedAt       *time.Time            `json:"startedAt"`
	FinishedAt      *time.Time            `json:"finishedAt"`
}

func NewJobDTO(job *domain.Job) JobDTO {
	return JobDTO{
		ID:              job.ID,
		TenantID:        job.TenantID,
		Status:          job.Status,
		InputType:       job.InputType,
		InputRef:        job.InputRef,
		Options:         job.Options,
		ResultRef:       job.ResultRef,
		ResultSizeBytes: job.ResultSize,
		ErrorCode:       job.ErrorCode,
		ErrorMessage:    job.ErrorMessage,
		IdempotencyKey:  job.IdempotencyKey,
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
		StartedAt:       job.StartedAt,
		FinishedAt:      job.FinishedAt,
	}
}

// ErrorResponse is the body of every non-2xx JSON answer.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	JobID   string `json:"jobId,omitempty"`
	Details any    `json:"details,omitempty"`
}
