package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/render-jobs/internal/api/dto"
	"github.com/cuongbtq/render-jobs/internal/api/handler"
	"github.com/cuongbtq/render-jobs/internal/audit"
	"github.com/cuongbtq/render-jobs/internal/auth"
	"github.com/cuongbtq/render-jobs/internal/domain"
)

// LoggerMiddleware logs HTTP requests with slog
func LoggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		attrs := []any{
			slog.Int("status", c.Writer.Status()),
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.String("ip", c.ClientIP()),
			slog.String("user_agent", c.Request.UserAgent()),
			slog.Duration("latency", time.Since(start)),
			slog.Int("body_size", c.Writer.Size()),
		}
		if p := handler.PrincipalFrom(c); p != nil {
			attrs = append(attrs, slog.String("tenant_id", p.TenantID))
		}
		logger.Info("HTTP Request", attrs...)

		for _, e := range c.Errors {
			logger.Error("Request error",
				slog.String("error", e.Error()),
				slog.Uint64("type", uint64(e.Type)),
			)
		}
	}
}

// CORSMiddleware handles Cross-Origin Resource Sharing
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-API-Key")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// AuthMiddleware resolves the caller's tenant from X-API-Key or a bearer token
func AuthMiddleware(resolver *auth.Resolver, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := resolver.Resolve(c.Request.Context(), auth.APIKeyFromRequest(c.Request))
		if err != nil {
			kind := domain.KindOf(err)
			if kind != domain.KindUnauthorized {
				logger.Error("Failed to resolve API key", slog.Any("error", err))
				c.AbortWithStatusJSON(http.StatusInternalServerError, dto.ErrorResponse{
					Error: "Internal server error",
					Code:  kind.Code(),
				})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{
				Error: "Unauthorized",
				Code:  kind.Code(),
			})
			return
		}

		c.Set(handler.ContextKeyPrincipal, principal)
		c.Next()
	}
}

// AuditMiddleware records every authenticated request in the tenant's request log
func AuditMiddleware(recorder *audit.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		principal := handler.PrincipalFrom(c)
		if principal == nil {
			return
		}

		recorder.Record(&domain.AuditEntry{
			TenantID:     principal.TenantID,
			APIKey:       principal.APIKey,
			Method:       c.Request.Method,
			Endpoint:     c.Request.URL.Path,
			StatusCode:   c.Writer.Status(),
			LatencyMs:    time.Since(start).Milliseconds(),
			InputType:    contextString(c, handler.ContextKeyInputType),
			JobID:        contextString(c, handler.ContextKeyJobID),
			ErrorMessage: contextString(c, handler.ContextKeyErrorMessage),
			IP:           optional(c.ClientIP()),
			UserAgent:    optional(c.Request.UserAgent()),
		})
	}
}

func contextString(c *gin.Context, key string) *string {
	return optional(c.GetString(key))
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
