package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/cuongbtq/render-jobs/internal/domain"
)

// Optional is a JSON field that distinguishes absent, null and a value.
type Optional[T any] struct {
	Set   bool
	Null  bool
	Value T
}

// UnmarshalJSON is only invoked for keys present in the document.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Null = true
		return nil
	}
	return json.Unmarshal(data, &o.Value)
}

// Some returns a present, non-null field.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

// Null returns a present null field.
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true, Null: true}
}

// ConfigUpdate is a partial webhook config write. Absent fields keep stored values.
type ConfigUpdate struct {
	WebhookURL        Optional[string]   `json:"webhookUrl"`
	WebhookSecret     Optional[string]   `json:"webhookSecret"`
	EnabledEventTypes Optional[[]string] `json:"enabledEventTypes"`
}

// ConfigView is the tenant-visible config. The secret itself is never exposed.
type ConfigView struct {
	TenantID          string             `json:"tenantId"`
	WebhookURL        *string            `json:"webhookUrl"`
	EnabledEventTypes []domain.EventType `json:"enabledEventTypes"`
	HasWebhookSecret  bool               `json:"hasWebhookSecret"`
	UpdatedAt         *time.Time         `json:"updatedAt"`
}

// ConfigService reads and updates tenant webhook configuration.
type ConfigService struct {
	store  ConfigStore
	logger *slog.Logger
	now    func() time.Time
}

func NewConfigService(store ConfigStore, logger *slog.Logger) *ConfigService {
	return &ConfigService{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the tenant's config, or defaults when none was saved.
func (s *ConfigService) Get(ctx context.Context, tenantID string) (*ConfigView, error) {
	cfg, err := s.load(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return newConfigView(cfg), nil
}

// Put applies update on top of the stored config. Any invalid field rejects the whole update.
func (s *ConfigService) Put(ctx context.Context, tenantID string, update ConfigUpdate) (*ConfigView, error) {
	cfg, err := s.load(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if update.WebhookURL.Set {
		if update.WebhookURL.Null {
			cfg.WebhookURL = nil
		} else {
			u := strings.TrimSpace(update.WebhookURL.Value)
			if !isHTTPSURL(u) {
				return nil, domain.NewValidationError("webhookUrl must be a valid https URL or null")
			}
			cfg.WebhookURL = &u
		}
	}

	if update.WebhookSecret.Set {
		if update.WebhookSecret.Null || update.WebhookSecret.Value == "" {
			cfg.WebhookSecret = nil
		} else {
			secret := update.WebhookSecret.Value
			cfg.WebhookSecret = &secret
		}
	}

	if update.EnabledEventTypes.Set {
		types, err := normalizeEventTypes(update.EnabledEventTypes)
		if err != nil {
			return nil, err
		}
		cfg.EnabledEventTypes = types
	}

	now := s.now()
	cfg.UpdatedAt = &now

	if err := s.store.PutWebhookConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to save webhook config: %w", err)
	}

	s.logger.Info("Webhook config updated",
		slog.String("tenant_id", tenantID),
		slog.Bool("has_url", cfg.HasURL()),
		slog.Int("enabled_event_types", len(cfg.EnabledEventTypes)),
	)

	return newConfigView(cfg), nil
}

func (s *ConfigService) load(ctx context.Context, tenantID string) (*domain.TenantWebhookConfig, error) {
	cfg, err := s.store.GetWebhookConfig(ctx, tenantID)
	if err != nil {
		if errors.Is(err, domain.ErrWebhookConfigNotFound) {
			return domain.DefaultWebhookConfig(tenantID), nil
		}
		return nil, fmt.Errorf("failed to load webhook config: %w", err)
	}
	return cfg, nil
}

func normalizeEventTypes(field Optional[[]string]) ([]domain.EventType, error) {
	if field.Null {
		return []domain.EventType{}, nil
	}

	types := make([]domain.EventType, 0, len(field.Value))
	seen := make(map[domain.EventType]struct{}, len(field.Value))
	for _, raw := range field.Value {
		t, ok := domain.ParseEventType(raw)
		if !ok {
			return nil, &domain.Error{
				Kind:    domain.KindValidation,
				Message: "enabledEventTypes is invalid",
				Details: map[string]any{"unsupported": raw, "supported": domain.SupportedEventTypes},
			}
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		types = append(types, t)
	}
	return types, nil
}

func isHTTPSURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	return err == nil && u.Scheme == "https" && u.Host != ""
}

func newConfigView(cfg *domain.TenantWebhookConfig) *ConfigView {
	types := cfg.EnabledEventTypes
	if types == nil {
		types = []domain.EventType{}
	}
	return &ConfigView{
		TenantID:          cfg.TenantID,
		WebhookURL:        cfg.WebhookURL,
		EnabledEventTypes: types,
		HasWebhookSecret:  cfg.Secret() != "",
		UpdatedAt:         cfg.UpdatedAt,
	}
}
