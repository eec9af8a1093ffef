package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/render-jobs/internal/api/dto"
	"github.com/cuongbtq/render-jobs/internal/webhook"
)

// WebhookHandler handles tenant webhook configuration and test delivery
type WebhookHandler struct {
	logger     *slog.Logger
	configs    *webhook.ConfigService
	dispatcher *webhook.Dispatcher
}

func NewWebhookHandler(deps *Dependencies) *WebhookHandler {
	return &WebhookHandler{
		logger:     deps.Logger,
		configs:    deps.Webhooks,
		dispatcher: deps.Dispatcher,
	}
}

// GetConfig handles GET /v1/webhooks
func (h *WebhookHandler) GetConfig(c *gin.Context) {
	view, err := h.configs.Get(c.Request.Context(), tenantID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// PutConfig handles PUT /v1/webhooks
// Omitted fields keep their stored values; null clears them
func (h *WebhookHandler) PutConfig(c *gin.Context) {
	var update webhook.ConfigUpdate
	if err := c.ShouldBindJSON(&update); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "Invalid JSON body", nil)
		return
	}

	view, err := h.configs.Put(c.Request.Context(), tenantID(c), update)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// TestDelivery handles POST /v1/webhooks/test
// Sends a signed webhook.test event to the configured endpoint right away
func (h *WebhookHandler) TestDelivery(c *gin.Context) {
	result, err := h.dispatcher.Test(c.Request.Context(), tenantID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	if !result.OK() {
		c.JSON(http.StatusBadGateway, dto.WebhookTestFailedResponse{
			Error:  "Webhook test failed",
			Status: result.StatusCode,
			Body:   result.Body,
		})
		return
	}

	c.JSON(http.StatusOK, dto.WebhookTestResponse{OK: true})
}
