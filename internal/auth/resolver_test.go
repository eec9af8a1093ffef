package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/render-jobs/internal/domain"
	"github.com/cuongbtq/render-jobs/internal/storage/memstore"
	"github.com/cuongbtq/render-jobs/shared/logger"
)

func TestAPIKeyFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{name: "x-api-key", headers: map[string]string{"x-api-key": "key_1"}, want: "key_1"},
		{name: "bearer", headers: map[string]string{"Authorization": "Bearer key_2"}, want: "key_2"},
		{name: "bearer lowercase", headers: map[string]string{"Authorization": "bearer  key_3 "}, want: "key_3"},
		{name: "x-api-key wins", headers: map[string]string{"X-API-Key": "key_1", "Authorization": "Bearer key_2"}, want: "key_1"},
		{name: "basic auth ignored", headers: map[string]string{"Authorization": "Basic dXNlcjpwYXNz"}, want: ""},
		{name: "none", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/v1/jobs", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, APIKeyFromRequest(req))
		})
	}
}

func TestResolver_Resolve(t *testing.T) {
	store := memstore.New()
	store.AddAPIKey("db_key", "tenant_db")

	resolver := NewResolver(Config{
		StaticKeys:  map[string]string{"static_key": "tenant_static"},
		Store:       store,
		DevAPIKey:   "dev_key",
		DevTenantID: "tenant_dev",
	}, logger.NewNop())

	tests := []struct {
		name       string
		apiKey     string
		wantTenant string
		wantKind   domain.Kind
	}{
		{name: "static map", apiKey: "static_key", wantTenant: "tenant_static"},
		{name: "key store", apiKey: "db_key", wantTenant: "tenant_db"},
		{name: "dev key", apiKey: "dev_key", wantTenant: "tenant_dev"},
		{name: "unknown", apiKey: "nope", wantKind: domain.KindUnauthorized},
		{name: "empty", apiKey: "", wantKind: domain.KindUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := resolver.Resolve(context.Background(), tt.apiKey)
			if tt.wantTenant == "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, domain.KindOf(err))
				assert.Nil(t, p)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTenant, p.TenantID)
			assert.Equal(t, tt.apiKey, p.APIKey)
		})
	}
}

func TestResolver_StoreFailure(t *testing.T) {
	store := memstore.New()
	store.FailOn("LookupAPIKey", errors.New("connection reset"))
	resolver := NewResolver(Config{Store: store}, logger.NewNop())

	_, err := resolver.Resolve(context.Background(), "any")
	require.Error(t, err)
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))
}

func TestResolver_RecordUsage(t *testing.T) {
	store := memstore.New()
	resolver := NewResolver(Config{Store: store}, logger.NewNop())
	p := &domain.Principal{TenantID: "t", APIKey: "k"}

	resolver.RecordUsage(context.Background(), p)
	resolver.RecordUsage(context.Background(), p)
	assert.EqualValues(t, 2, store.APIKeyUsage("k"))

	store.FailOn("RecordAPIKeyUsage", errors.New("down"))
	assert.NotPanics(t, func() { resolver.RecordUsage(context.Background(), p) })

	NewResolver(Config{}, logger.NewNop()).RecordUsage(context.Background(), p)
}
