package handler

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/render-jobs/internal/admission"
	"github.com/cuongbtq/render-jobs/internal/audit"
	"github.com/cuongbtq/render-jobs/internal/auth"
	"github.com/cuongbtq/render-jobs/internal/domain"
	"github.com/cuongbtq/render-jobs/internal/webhook"
)

// Context keys shared with the router middleware.
const (
	ContextKeyPrincipal    = "principal"
	ContextKeyJobID        = "audit.job_id"
	ContextKeyInputType    = "audit.input_type"
	ContextKeyErrorMessage = "audit.error_message"
)

// HealthCheck probes one backing dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger      *slog.Logger
	ServiceName string
	Admission   *admission.Service
	Webhooks    *webhook.ConfigService
	Dispatcher  *webhook.Dispatcher
	AuditLogs   audit.LogStore
	Usage       audit.UsageStore
	Recorder    *audit.Recorder
	Resolver    *auth.Resolver
	Checks      []HealthCheck
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger    *slog.Logger
	admission *admission.Service
	resolver  *auth.Resolver
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:    deps.Logger,
		admission: deps.Admission,
		resolver:  deps.Resolver,
	}
}

// PrincipalFrom returns the caller resolved by the auth middleware.
func PrincipalFrom(c *gin.Context) *domain.Principal {
	v, ok := c.Get(ContextKeyPrincipal)
	if !ok {
		return nil
	}
	p, _ := v.(*domain.Principal)
	return p
}

func tenantID(c *gin.Context) string {
	if p := PrincipalFrom(c); p != nil {
		return p.TenantID
	}
	return ""
}

// setAuditJob annotates the request log entry with the job it concerns.
func setAuditJob(c *gin.Context, jobID string, inputType domain.InputType) {
	if jobID != "" {
		c.Set(ContextKeyJobID, jobID)
	}
	if inputType != "" {
		c.Set(ContextKeyInputType, string(inputType))
	}
}
