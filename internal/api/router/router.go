package router

import (
	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/render-jobs/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	healthHandler := handler.NewHealthHandler(deps)
	r.GET("/health", healthHandler.Health)

	jobHandler := handler.NewJobHandler(deps)
	webhookHandler := handler.NewWebhookHandler(deps)
	logHandler := handler.NewLogHandler(deps)

	v1 := r.Group("/v1")
	v1.Use(AuthMiddleware(deps.Resolver, deps.Logger))
	{
		jobs := v1.Group("/jobs")
		jobs.Use(AuditMiddleware(deps.Recorder))
		{
			jobs.POST("", jobHandler.CreateJob)
			jobs.GET("", jobHandler.ListJobs)
			jobs.GET("/:job_id", jobHandler.GetJob)
			jobs.GET("/:job_id/pdf", jobHandler.GetJobPDF)
		}

		webhooks := v1.Group("/webhooks")
		{
			webhooks.GET("", webhookHandler.GetConfig)
			webhooks.PUT("", webhookHandler.PutConfig)
			webhooks.POST("/test", webhookHandler.TestDelivery)
		}

		v1.GET("/logs", logHandler.ListLogs)
		v1.GET("/usage", logHandler.GetUsage)
	}

	return r
}
