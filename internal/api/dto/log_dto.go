package dto

import (
	"time"

	"github.com/cuongbtq/render-jobs/internal/audit"
	"github.com/cuongbtq/render-jobs/internal/domain"
)

type ListLogsResponse struct {
	Logs []AuditLogDTO `json:"logs"`
}

type AuditLogDTO struct {
	ID           int64     `json:"id"`
	APIKey       string    `json:"apiKey"`
	Method       string    `json:"method"`
	Endpoint     string    `json:"endpoint"`
	StatusCode   int       `json:"statusCode"`
	LatencyMs    int64     `json:"latencyMs"`
	InputType    *string   `json:"inputType"`
	JobID        *string   `json:"jobId"`
	ErrorMessage *string   `json:"errorMessage"`
	IP           *string   `json:"ip"`
	UserAgent    *string   `json:"userAgent"`
	CreatedAt    time.Time `json:"createdAt"`
}

func NewAuditLogDTO(e *domain.AuditEntry) AuditLogDTO {
	return AuditLogDTO{
		ID:           e.ID,
		APIKey:       e.APIKey,
		Method:       e.Method,
		Endpoint:     e.Endpoint,
		StatusCode:   e.StatusCode,
		LatencyMs:    e.LatencyMs,
		InputType:    e.InputType,
		JobID:        e.JobID,
		ErrorMessage: e.ErrorMessage,
		IP:           e.IP,
		UserAgent:    e.UserAgent,
		CreatedAt:    e.CreatedAt,
	}
}

type UsageResponse struct {
	MonthStart   string        `json:"monthStart"`
	Usage        []KeyUsageDTO `json:"usage"`
	CreditsToday int64         `json:"creditsToday"`
}

type KeyUsageDTO struct {
	APIKey   string `json:"apiKey"`
	Requests int64  `json:"count"`
}

func NewUsageResponse(r *audit.UsageReport) UsageResponse {
	usage := make([]KeyUsageDTO, len(r.Keys))
	for i, k := range r.Keys {
		usage[i] = KeyUsageDTO{APIKey: k.APIKey, Requests: k.Requests}
	}
	return UsageResponse{
		MonthStart:   r.MonthStart.Format(time.DateOnly),
		Usage:        usage,
		CreditsToday: r.CreditsToday,
	}
}
