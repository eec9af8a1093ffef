package domain

import (
	"slices"
	"time"
)

// TenantWebhookConfig is a tenant's webhook destination and subscription.
type TenantWebhookConfig struct {
	TenantID          string
	WebhookURL        *string
	WebhookSecret     *string
	EnabledEventTypes []EventType
	UpdatedAt         *time.Time
}

// DefaultWebhookConfig is what an absent config reads as.
func DefaultWebhookConfig(tenantID string) *TenantWebhookConfig {
	return &TenantWebhookConfig{TenantID: tenantID, EnabledEventTypes: []EventType{}}
}

// HasURL reports whether deliveries have a destination.
func (c *TenantWebhookConfig) HasURL() bool {
	return c.WebhookURL != nil && *c.WebhookURL != ""
}

// Secret returns the signing secret or "" when unset.
func (c *TenantWebhookConfig) Secret() string {
	if c.WebhookSecret == nil {
		return ""
	}
	return *c.WebhookSecret
}

// Accepts reports whether t should be delivered. An empty subscription accepts every type.
func (c *TenantWebhookConfig) Accepts(t EventType) bool {
	if len(c.EnabledEventTypes) == 0 {
		return true
	}
	return slices.Contains(c.EnabledEventTypes, t)
}
