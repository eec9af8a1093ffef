package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/render-jobs/internal/domain"
	"github.com/cuongbtq/render-jobs/internal/storage/memstore"
	"github.com/cuongbtq/render-jobs/shared/logger"
)

func TestOptional_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want ConfigUpdate
	}{
		{name: "absent", raw: `{}`, want: ConfigUpdate{}},
		{
			name: "null",
			raw:  `{"webhookUrl":null,"enabledEventTypes":null}`,
			want: ConfigUpdate{WebhookURL: Null[string](), EnabledEventTypes: Null[[]string]()},
		},
		{
			name: "values",
			raw:  `{"webhookUrl":"https://example.com/hook","webhookSecret":"","enabledEventTypes":["job.failed"]}`,
			want: ConfigUpdate{
				WebhookURL:        Some("https://example.com/hook"),
				WebhookSecret:     Some(""),
				EnabledEventTypes: Some([]string{"job.failed"}),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got ConfigUpdate
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfigService_GetDefaults(t *testing.T) {
	svc := NewConfigService(memstore.New(), logger.NewNop())

	view, err := svc.Get(context.Background(), tenant)
	require.NoError(t, err)
	assert.Equal(t, tenant, view.TenantID)
	assert.Nil(t, view.WebhookURL)
	assert.Equal(t, []domain.EventType{}, view.EnabledEventTypes)
	assert.False(t, view.HasWebhookSecret)
	assert.Nil(t, view.UpdatedAt)

	raw, err := json.Marshal(view)
	require.NoError(t, err)
	assert.JSONEq(t, `{"tenantId":"tenant_a","webhookUrl":null,"enabledEventTypes":[],"hasWebhookSecret":false,"updatedAt":null}`, string(raw))
}

func TestConfigService_Put(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := NewConfigService(store, logger.NewNop())

	view, err := svc.Put(ctx, tenant, ConfigUpdate{
		WebhookURL:        Some("https://hooks.example.com/render"),
		WebhookSecret:     Some("s3cret"),
		EnabledEventTypes: Some([]string{"job.succeeded", "job.failed"}),
	})
	require.NoError(t, err)
	require.NotNil(t, view.WebhookURL)
	assert.Equal(t, "https://hooks.example.com/render", *view.WebhookURL)
	assert.True(t, view.HasWebhookSecret)
	assert.Equal(t, []domain.EventType{domain.EventJobSucceeded, domain.EventJobFailed}, view.EnabledEventTypes)
	assert.NotNil(t, view.UpdatedAt)

	raw, err := json.Marshal(view)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "s3cret")

	// Omitted fields keep stored values.
	view, err = svc.Put(ctx, tenant, ConfigUpdate{EnabledEventTypes: Null[[]string]()})
	require.NoError(t, err)
	assert.Equal(t, "https://hooks.example.com/render", *view.WebhookURL)
	assert.True(t, view.HasWebhookSecret)
	assert.Empty(t, view.EnabledEventTypes)

	view, err = svc.Put(ctx, tenant, ConfigUpdate{WebhookURL: Null[string](), WebhookSecret: Some("")})
	require.NoError(t, err)
	assert.Nil(t, view.WebhookURL)
	assert.False(t, view.HasWebhookSecret)

	stored, err := store.GetWebhookConfig(ctx, tenant)
	require.NoError(t, err)
	assert.False(t, stored.HasURL())
	assert.Nil(t, stored.WebhookSecret)
}

func TestConfigService_PutDeduplicatesEventTypes(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := NewConfigService(store, logger.NewNop())

	view, err := svc.Put(ctx, tenant, ConfigUpdate{
		EnabledEventTypes: Some([]string{"job.failed", "job.started", "job.failed", "job.failed"}),
	})
	require.NoError(t, err)
	assert.Equal(t, []domain.EventType{domain.EventJobFailed, domain.EventJobStarted}, view.EnabledEventTypes)

	stored, err := store.GetWebhookConfig(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, []domain.EventType{domain.EventJobFailed, domain.EventJobStarted}, stored.EnabledEventTypes)
}

func TestConfigService_PutRejects(t *testing.T) {
	tests := []struct {
		name   string
		update ConfigUpdate
	}{
		{name: "http url", update: ConfigUpdate{WebhookURL: Some("http://hooks.example.com")}},
		{name: "empty url", update: ConfigUpdate{WebhookURL: Some("  ")}},
		{name: "relative url", update: ConfigUpdate{WebhookURL: Some("/hooks")}},
		{
			name: "unknown event rejects whole update",
			update: ConfigUpdate{
				WebhookURL:        Some("https://hooks.example.com/new"),
				EnabledEventTypes: Some([]string{"job.succeeded", "job.deleted"}),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := memstore.New()
			svc := NewConfigService(store, logger.NewNop())

			original := "https://hooks.example.com/original"
			require.NoError(t, store.PutWebhookConfig(ctx, &domain.TenantWebhookConfig{TenantID: tenant, WebhookURL: &original}))

			_, err := svc.Put(ctx, tenant, tt.update)
			require.Error(t, err)
			assert.Equal(t, domain.KindValidation, domain.KindOf(err))

			stored, err := store.GetWebhookConfig(ctx, tenant)
			require.NoError(t, err)
			assert.Equal(t, original, *stored.WebhookURL)
			assert.Empty(t, stored.EnabledEventTypes)
		})
	}
}

func TestConfigService_StoreFailure(t *testing.T) {
	store := memstore.New()
	store.FailOn("PutWebhookConfig", errors.New("disk full"))
	svc := NewConfigService(store, logger.NewNop())

	_, err := svc.Put(context.Background(), tenant, ConfigUpdate{WebhookURL: Some("https://hooks.example.com")})
	require.Error(t, err)
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))
}
