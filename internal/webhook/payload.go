package webhook

import (
	"encoding/json"
	"time"

	"github.com/cuongbtq/render-jobs/internal/content"
	"github.com/cuongbtq/render-jobs/internal/domain"
)

// TimestampFormat is the millisecond UTC layout used for createdAt and the timestamp header.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// Payload is the body POSTed to a tenant endpoint.
type Payload struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	CreatedAt string `json:"createdAt"`
	TenantID  string `json:"tenantId"`
	Data      any    `json:"data"`
}

// JobData is the data of job.* deliveries.
type JobData struct {
	JobID     string           `json:"jobId"`
	Status    domain.JobStatus `json:"status"`
	InputType domain.InputType `json:"inputType"`
	Result    *ResultData      `json:"result"`
	Error     *ErrorData       `json:"error"`
}

// ResultData describes the rendered PDF of a succeeded job. URL is null when presigning failed.
type ResultData struct {
	ResultRef   string  `json:"resultRef"`
	URL         *string `json:"url"`
	ContentType string  `json:"contentType"`
	SizeBytes   int64   `json:"sizeBytes"`
}

// ErrorData describes why a job failed.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}

// buildPayload maps a lifecycle event onto the outgoing body. downloadURL may be nil.
func buildPayload(event *domain.LifecycleEvent, downloadURL *string) *Payload {
	p := &Payload{
		ID:        event.ID,
		Type:      string(event.Type()),
		CreatedAt: formatTimestamp(event.CreatedAt),
		TenantID:  event.TenantID,
	}

	switch d := event.Payload.(type) {
	case domain.JobStarted:
		p.Data = JobData{JobID: d.JobID, Status: d.Status, InputType: d.InputType}
	case domain.JobSucceeded:
		p.Data = JobData{
			JobID:     d.JobID,
			Status:    d.Status,
			InputType: d.InputType,
			Result: &ResultData{
				ResultRef:   d.ResultRef,
				URL:         downloadURL,
				ContentType: content.ContentTypePDF,
				SizeBytes:   d.ResultSizeBytes,
			},
		}
	case domain.JobFailed:
		p.Data = JobData{
			JobID:     d.JobID,
			Status:    d.Status,
			InputType: d.InputType,
			Error:     &ErrorData{Code: d.ErrorCode, Message: d.ErrorMessage},
		}
	case domain.WebhookTest:
		p.Data = d
	}

	return p
}

func (p *Payload) encode() ([]byte, error) {
	return json.Marshal(p)
}
