package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/render-jobs/internal/api/dto"
	"github.com/cuongbtq/render-jobs/internal/audit"
)

// LogHandler serves the tenant-visible request log and key usage
type LogHandler struct {
	logger *slog.Logger
	store  audit.LogStore
	usage  audit.UsageStore
}

func NewLogHandler(deps *Dependencies) *LogHandler {
	return &LogHandler{logger: deps.Logger, store: deps.AuditLogs, usage: deps.Usage}
}

// ListLogs handles GET /v1/logs?limit=
func (h *LogHandler) ListLogs(c *gin.Context) {
	limit := audit.ParseLimit(c.Query("limit"))

	entries, err := audit.ListLogs(c.Request.Context(), h.store, tenantID(c), limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	logs := make([]dto.AuditLogDTO, len(entries))
	for i, e := range entries {
		logs[i] = dto.NewAuditLogDTO(e)
	}
	c.JSON(http.StatusOK, dto.ListLogsResponse{Logs: logs})
}

// GetUsage handles GET /v1/usage
func (h *LogHandler) GetUsage(c *gin.Context) {
	report, err := audit.Usage(c.Request.Context(), h.usage, tenantID(c), time.Now())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewUsageResponse(report))
}
