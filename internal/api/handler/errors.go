package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/render-jobs/internal/api/dto"
	"github.com/cuongbtq/render-jobs/internal/domain"
)

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindQuotaExceeded:
		return http.StatusTooManyRequests
	case domain.KindContentFetch, domain.KindRenderFailed, domain.KindUpstreamDelivery:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the error body and remembers the message for the request log.
// Internal details are logged, never returned.
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	body := dto.ErrorResponse{Error: "Internal server error", Code: domain.KindInternal.Code()}

	var de *domain.Error
	if errors.As(err, &de) {
		body.Error = de.Message
		body.Code = de.ErrorCode()
		body.JobID = de.JobID
		body.Details = de.Details
	} else if errors.Is(err, domain.ErrJobNotFound) {
		body.Error = "Not found"
		body.Code = domain.KindNotFound.Code()
	}

	status := StatusFor(domain.KindOf(err))
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", status),
			slog.Any("error", err),
		)
	}

	abortWithError(c, status, body)
}

func abortWithError(c *gin.Context, status int, body dto.ErrorResponse) {
	c.Set(ContextKeyErrorMessage, body.Error)
	if body.JobID != "" {
		c.Set(ContextKeyJobID, body.JobID)
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, message string, details any) {
	abortWithError(c, http.StatusBadRequest, dto.ErrorResponse{
		Error:   message,
		Code:    domain.KindValidation.Code(),
		Details: details,
	})
}
