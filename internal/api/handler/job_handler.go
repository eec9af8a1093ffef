package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/render-jobs/internal/admission"
	"github.com/cuongbtq/render-jobs/internal/api/dto"
	"github.com/cuongbtq/render-jobs/internal/content"
	"github.com/cuongbtq/render-jobs/internal/domain"
	"github.com/cuongbtq/render-jobs/internal/storage"
)

// modeFromAsyncFlag maps the legacy async query flag: true selects async,
// any other value selects the polling wait path.
func modeFromAsyncFlag(flag string) string {
	switch strings.ToLower(flag) {
	case "1", "true":
		return admission.ModeAsync
	default:
		return admission.ModeWait
	}
}

// CreateJob handles POST /v1/jobs
// Admits a render job in async, wait or direct mode
func (h *JobHandler) CreateJob(c *gin.Context) {
	var query dto.CreateJobQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		badRequest(c, "Invalid query parameters", nil)
		return
	}

	mode := strings.ToLower(query.Mode)
	if mode == "" && query.Async != "" {
		mode = modeFromAsyncFlag(query.Async)
	}

	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Debug("Invalid request body", slog.String("error", err.Error()))
		badRequest(c, "Invalid JSON body", nil)
		return
	}

	inputType := domain.InputType(req.InputType)
	setAuditJob(c, "", inputType)

	options, err := domain.DecodeRenderOptions(req.Options)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	principal := PrincipalFrom(c)
	h.resolver.RecordUsage(c.Request.Context(), principal)

	result, err := h.admission.Submit(c.Request.Context(), admission.SubmitRequest{
		TenantID:       principal.TenantID,
		InputType:      inputType,
		InputRef:       req.InputRef,
		InlineHTML:     req.InputHTML,
		Options:        options,
		IdempotencyKey: req.IdempotencyKey,
		Mode:           mode,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	if result.Job != nil {
		setAuditJob(c, result.Job.ID, result.Job.InputType)
	}

	switch {
	case result.InProgress:
		c.JSON(http.StatusAccepted, dto.InProgressResponse{
			Error: "Render in progress",
			Code:  admission.CodeInProgress,
			JobID: result.Job.ID,
		})
	case result.PDF != nil:
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="render-%d.pdf"`, time.Now().UnixMilli()))
		c.Data(http.StatusOK, content.ContentTypePDF, result.PDF)
	default:
		c.JSON(http.StatusCreated, dto.JobResponse{Job: dto.NewJobDTO(result.Job)})
	}
}

// GetJob handles GET /v1/jobs/:job_id
// Returns the job with a short-lived download URL once it succeeded
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")
	setAuditJob(c, jobID, "")

	view, err := h.admission.GetJob(c.Request.Context(), tenantID(c), jobID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	setAuditJob(c, jobID, view.Job.InputType)
	c.JSON(http.StatusOK, dto.JobResponse{
		Job:         dto.NewJobDTO(view.Job),
		DownloadURL: view.DownloadURL,
	})
}

// GetJobPDF handles GET /v1/jobs/:job_id/pdf
// Redirects to a short-lived URL of the rendered PDF
func (h *JobHandler) GetJobPDF(c *gin.Context) {
	jobID := c.Param("job_id")
	setAuditJob(c, jobID, "")

	url, err := h.admission.PDFURL(c.Request.Context(), tenantID(c), jobID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Redirect(http.StatusFound, url)
}

// ListJobs handles GET /v1/jobs
// Lists the tenant's jobs newest first with cursor pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, "Invalid query parameters", nil)
		return
	}

	var since *time.Time
	if req.Since != "" {
		t, err := time.Parse(time.RFC3339, req.Since)
		if err != nil {
			badRequest(c, "since must be an RFC3339 timestamp", nil)
			return
		}
		since = &t
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Debug("Invalid cursor", slog.String("error", err.Error()))
		badRequest(c, "Invalid cursor", nil)
		return
	}

	page, err := h.admission.ListJobs(c.Request.Context(), tenantID(c), since, cursor, req.Limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	jobs := make([]dto.JobDTO, len(page.Jobs))
	for i, job := range page.Jobs {
		jobs[i] = dto.NewJobDTO(job)
	}

	resp := dto.ListJobsResponse{Jobs: jobs}
	if page.HasMore && len(page.Jobs) > 0 {
		last := page.Jobs[len(page.Jobs)-1]
		resp.NextCursor = EncodeJobCursor(&storage.JobCursor{CreatedAt: last.CreatedAt, JobID: last.ID})
	}

	c.JSON(http.StatusOK, resp)
}
