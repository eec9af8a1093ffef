package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/render-jobs/internal/domain"
	"github.com/cuongbtq/render-jobs/internal/storage/memstore"
)

func TestParseLimit(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{raw: "", want: 100},
		{raw: "abc", want: 100},
		{raw: "0", want: 1},
		{raw: "-5", want: 1},
		{raw: "25", want: 25},
		{raw: "500", want: 500},
		{raw: "501", want: 500},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLimit(tt.raw))
		})
	}
}

func TestListLogs(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	for _, endpoint := range []string{"/v1/jobs", "/v1/jobs/a", "/v1/jobs/b"} {
		require.NoError(t, store.InsertAuditEntry(ctx, &domain.AuditEntry{TenantID: "t1", Method: "GET", Endpoint: endpoint, StatusCode: 200}))
	}
	require.NoError(t, store.InsertAuditEntry(ctx, &domain.AuditEntry{TenantID: "t2", Method: "GET", Endpoint: "/v1/jobs", StatusCode: 200}))

	entries, err := ListLogs(ctx, store, "t1", 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "/v1/jobs/b", entries[0].Endpoint)
	assert.Equal(t, "/v1/jobs/a", entries[1].Endpoint)

	store.FailOn("ListAuditEntries", errors.New("timeout"))
	_, err = ListLogs(ctx, store, "t1", 10)
	assert.Error(t, err)
}
