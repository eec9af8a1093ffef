package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/render-jobs/internal/domain"
	"github.com/cuongbtq/render-jobs/internal/storage"
)

func TestStore_JobTransitions(t *testing.T) {
	s := New()
	ctx := context.Background()

	job := &domain.Job{ID: "j1", TenantID: "t", Status: domain.JobStatusQueued, CreatedAt: time.Now()}
	require.NoError(t, s.CreateJob(ctx, job))

	assert.ErrorIs(t, s.MarkJobSucceeded(ctx, "j1", "outputs/t/j1.pdf", 1), domain.ErrJobNotRunning)

	claimed, err := s.ClaimJob(ctx, "j1")
	require.NoError(t, err)
	require.NotNil(t, claimed.StartedAt)

	again, err := s.ClaimJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, *claimed.StartedAt, *again.StartedAt)

	require.NoError(t, s.MarkJobSucceeded(ctx, "j1", "outputs/t/j1.pdf", 1))

	_, err = s.ClaimJob(ctx, "j1")
	assert.ErrorIs(t, err, domain.ErrJobNotClaimable)

	_, err = s.ClaimJob(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestStore_ListJobsByTenant(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Now()

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.CreateJob(ctx, &domain.Job{ID: id, TenantID: "t", CreatedAt: base.Add(time.Duration(i) * time.Second)}))
	}
	require.NoError(t, s.CreateJob(ctx, &domain.Job{ID: "z", TenantID: "other", CreatedAt: base}))

	jobs, err := s.ListJobsByTenant(ctx, storage.JobFilter{TenantID: "t", PageSize: 1})
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "c", jobs[0].ID)

	rest, err := s.ListJobsByTenant(ctx, storage.JobFilter{
		TenantID: "t",
		PageSize: 10,
		Cursor:   &storage.JobCursor{CreatedAt: jobs[0].CreatedAt, JobID: jobs[0].ID},
	})
	require.NoError(t, err)
	assert.Len(t, rest, 2)
}

func TestStore_FailOn(t *testing.T) {
	s := New()
	boom := errors.New("boom")

	s.FailOn("GetJob", boom)
	_, err := s.GetJob(context.Background(), "x")
	assert.ErrorIs(t, err, boom)

	s.FailOn("GetJob", nil)
	_, err = s.GetJob(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestStore_AuditEntriesNewestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()

	for _, ep := range []string{"/v1/jobs", "/v1/webhooks", "/v1/jobs/1"} {
		require.NoError(t, s.InsertAuditEntry(ctx, &domain.AuditEntry{TenantID: "t", Endpoint: ep}))
	}

	entries, err := s.ListAuditEntries(ctx, "t", 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "/v1/jobs/1", entries[0].Endpoint)
}
