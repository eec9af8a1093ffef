// Package auth resolves API credentials to tenants.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cuongbtq/render-jobs/internal/domain"
)

// HeaderAPIKey carries the tenant's API key. Authorization: Bearer is also accepted.
const HeaderAPIKey = "X-API-Key"

// KeyStore resolves persisted API keys and counts their usage.
type KeyStore interface {
	LookupAPIKey(ctx context.Context, apiKey string) (string, error)
	RecordAPIKeyUsage(ctx context.Context, apiKey, tenantID string) error
}

// Config selects the credential sources. Sources are tried in order:
// static keys, the key store, then the development key.
type Config struct {
	StaticKeys  map[string]string
	Store       KeyStore
	DevAPIKey   string
	DevTenantID string
}

// Resolver maps API keys to principals.
type Resolver struct {
	static      map[string]string
	store       KeyStore
	devAPIKey   string
	devTenantID string
	logger      *slog.Logger
}

func NewResolver(cfg Config, logger *slog.Logger) *Resolver {
	return &Resolver{
		static:      cfg.StaticKeys,
		store:       cfg.Store,
		devAPIKey:   cfg.DevAPIKey,
		devTenantID: cfg.DevTenantID,
		logger:      logger,
	}
}

// ErrUnauthorized is returned for missing or unknown credentials.
var ErrUnauthorized = domain.NewError(domain.KindUnauthorized, "Unauthorized", nil)

// APIKeyFromRequest returns the key from X-API-Key, falling back to a bearer token.
func APIKeyFromRequest(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(HeaderAPIKey)); key != "" {
		return key
	}
	authz := r.Header.Get("Authorization")
	if len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return ""
}

// Resolve returns the principal owning apiKey or ErrUnauthorized.
func (r *Resolver) Resolve(ctx context.Context, apiKey string) (*domain.Principal, error) {
	if apiKey == "" {
		return nil, ErrUnauthorized
	}

	if tenantID, ok := r.static[apiKey]; ok && tenantID != "" {
		return &domain.Principal{TenantID: tenantID, APIKey: apiKey}, nil
	}

	if r.store != nil {
		tenantID, err := r.store.LookupAPIKey(ctx, apiKey)
		switch {
		case err == nil:
			return &domain.Principal{TenantID: tenantID, APIKey: apiKey}, nil
		case !errors.Is(err, domain.ErrAPIKeyNotFound):
			return nil, domain.NewError(domain.KindInternal, "Failed to resolve API key", err)
		}
	}

	if r.devAPIKey != "" && r.devTenantID != "" && apiKey == r.devAPIKey {
		return &domain.Principal{TenantID: r.devTenantID, APIKey: apiKey}, nil
	}

	return nil, ErrUnauthorized
}

// RecordUsage counts a request against the key. Failures are logged, not returned.
func (r *Resolver) RecordUsage(ctx context.Context, p *domain.Principal) {
	if r.store == nil || p == nil {
		return
	}
	if err := r.store.RecordAPIKeyUsage(context.WithoutCancel(ctx), p.APIKey, p.TenantID); err != nil {
		r.logger.Warn("Failed to record API key usage",
			slog.String("tenant_id", p.TenantID),
			slog.Any("error", err),
		)
	}
}
