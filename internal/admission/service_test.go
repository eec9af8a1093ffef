package admission

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/render-jobs/internal/content"
	"github.com/cuongbtq/render-jobs/internal/domain"
	"github.com/cuongbtq/render-jobs/internal/queue"
	"github.com/cuongbtq/render-jobs/internal/quota"
	"github.com/cuongbtq/render-jobs/internal/renderer"
	"github.com/cuongbtq/render-jobs/internal/storage/memstore"
	"github.com/cuongbtq/render-jobs/shared/logger"
)

const tenant = "tenant_a"

type fixture struct {
	svc      *Service
	store    *memstore.Store
	content  *content.MemoryStore
	queue    *queue.MemoryQueue
	renderer *renderer.Fake
}

func newFixture(t *testing.T, dailyLimit int64) *fixture {
	t.Helper()

	f := &fixture{
		store:    memstore.New(),
		content:  content.NewMemoryStore("http://files.local"),
		queue:    queue.NewMemoryQueue(16),
		renderer: renderer.NewFake([]byte("%PDF-1.7 direct")),
	}
	log := logger.NewNop()
	f.svc = NewService(Deps{
		Jobs:      f.store,
		Content:   f.content,
		Publisher: f.queue,
		Quota:     quota.NewChecker(quota.NewMemoryCounter(), dailyLimit, "quota", log),
		Renderer:  f.renderer,
		Ledger:    f.store,
		Logger:    log,
	}, Config{
		PollInterval: 10 * time.Millisecond,
		PollTimeout:  300 * time.Millisecond,
	})
	return f
}

func inline(html string) SubmitRequest {
	return SubmitRequest{
		TenantID:   tenant,
		InputType:  domain.InputTypeHTML,
		InputRef:   domain.InlineInputRef,
		InlineHTML: html,
	}
}

func kindOf(t *testing.T, err error) domain.Kind {
	t.Helper()
	var de *domain.Error
	require.ErrorAs(t, err, &de)
	return de.Kind
}

func TestSubmit_AsyncInline(t *testing.T) {
	f := newFixture(t, 0)

	res, err := f.svc.Submit(context.Background(), inline("<h1>Hello</h1>"))
	require.NoError(t, err)
	require.NotNil(t, res.Job)
	assert.Equal(t, ModeAsync, res.Mode)

	job := res.Job
	assert.Equal(t, domain.JobStatusQueued, job.Status)
	assert.Equal(t, domain.InputKey(tenant, job.ID), job.InputRef)

	obj, ok := f.content.Object(job.InputRef)
	require.True(t, ok)
	assert.Equal(t, "<h1>Hello</h1>", string(obj.Data))
	assert.Equal(t, content.ContentTypeHTML, obj.ContentType)

	published := f.queue.Published()
	require.Len(t, published, 1)
	assert.NotContains(t, string(published[0]), "Hello")

	var msg domain.RenderRequest
	require.NoError(t, json.Unmarshal(published[0], &msg))
	assert.Equal(t, job.ID, msg.JobID)
	assert.Equal(t, job.InputRef, msg.InputRef)
	assert.Equal(t, "outputs/tenant_a/", msg.OutputPrefix)
	require.NoError(t, msg.Validate())

	stored, err := f.store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusQueued, stored.Status)
}

func TestSubmit_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  SubmitRequest
	}{
		{name: "inline without html", req: inline("")},
		{name: "bad input type", req: SubmitRequest{TenantID: tenant, InputType: "PDF", InputRef: "x"}},
		{name: "empty ref", req: SubmitRequest{TenantID: tenant, InputType: domain.InputTypeURL}},
		{name: "relative url", req: SubmitRequest{TenantID: tenant, InputType: domain.InputTypeURL, InputRef: "/page"}},
		{name: "ftp url", req: SubmitRequest{TenantID: tenant, InputType: domain.InputTypeURL, InputRef: "ftp://x.com/a"}},
		{name: "other tenant input", req: SubmitRequest{TenantID: tenant, InputType: domain.InputTypeHTML, InputRef: "inputs/tenant_b/x.html"}},
		{name: "bad mode", req: SubmitRequest{TenantID: tenant, InputType: domain.InputTypeURL, InputRef: "https://a.com", Mode: "later"}},
		{
			name: "cookie without url or domain",
			req: SubmitRequest{
				TenantID:  tenant,
				InputType: domain.InputTypeURL,
				InputRef:  "https://a.com",
				Options:   &domain.RenderOptions{Cookies: []domain.Cookie{{Name: "a", Value: "b"}}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 0)

			_, err := f.svc.Submit(context.Background(), tt.req)
			require.Error(t, err)
			assert.Equal(t, domain.KindValidation, kindOf(t, err))
			assert.Empty(t, f.store.Jobs())
			assert.Empty(t, f.queue.Published())
			assert.Zero(t, f.content.Len())
		})
	}
}

func TestSubmit_QuotaExceeded(t *testing.T) {
	f := newFixture(t, 5)
	req := SubmitRequest{TenantID: tenant, InputType: domain.InputTypeURL, InputRef: "https://example.com"}

	for i := 0; i < 5; i++ {
		_, err := f.svc.Submit(context.Background(), req)
		require.NoError(t, err)
	}

	_, err := f.svc.Submit(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, domain.KindQuotaExceeded, kindOf(t, err))
	assert.Len(t, f.store.Jobs(), 5)
	assert.Len(t, f.queue.Published(), 5)
}

func TestSubmit_PublishFailure(t *testing.T) {
	f := newFixture(t, 0)
	f.queue.Close()

	_, err := f.svc.Submit(context.Background(), SubmitRequest{TenantID: tenant, InputType: domain.InputTypeURL, InputRef: "https://example.com"})
	var de *domain.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, domain.KindInternal, de.Kind)
	assert.NotEmpty(t, de.JobID)
}

// completeNext plays the worker for the next queued render request.
func (f *fixture) completeNext(t *testing.T, fail bool) {
	t.Helper()
	go func() {
		var msg queue.Message
		deadline := time.Now().Add(time.Second)
		for msg == nil {
			if time.Now().After(deadline) {
				return
			}
			if m, ok := f.queue.Next(); ok {
				msg = m
				break
			}
			time.Sleep(5 * time.Millisecond)
		}

		var req domain.RenderRequest
		if err := json.Unmarshal(msg.Body(), &req); err != nil {
			return
		}
		ctx := context.Background()
		if _, err := f.store.ClaimJob(ctx, req.JobID); err != nil {
			return
		}
		if fail {
			_ = f.store.MarkJobFailed(ctx, req.JobID, domain.ErrorCodeRenderFailed, "net::ERR_CONNECTION_REFUSED")
		} else {
			key := domain.OutputKey(req.TenantID, req.JobID)
			_ = f.content.Put(ctx, key, []byte("%PDF-1.7 queued"), content.ContentTypePDF)
			_ = f.store.MarkJobSucceeded(ctx, req.JobID, key, 15)
		}
		_ = msg.Ack()
	}()
}

func TestSubmit_Wait(t *testing.T) {
	t.Run("succeeded returns the document", func(t *testing.T) {
		f := newFixture(t, 0)
		f.completeNext(t, false)

		req := inline("<p>x</p>")
		req.Mode = ModeWait
		res, err := f.svc.Submit(context.Background(), req)
		require.NoError(t, err)
		assert.False(t, res.InProgress)
		assert.Equal(t, "%PDF-1.7 queued", string(res.PDF))
		assert.Equal(t, domain.JobStatusSucceeded, res.Job.Status)
	})

	t.Run("failed surfaces the job error", func(t *testing.T) {
		f := newFixture(t, 0)
		f.completeNext(t, true)

		req := inline("<p>x</p>")
		req.Mode = ModeWait
		_, err := f.svc.Submit(context.Background(), req)

		var de *domain.Error
		require.ErrorAs(t, err, &de)
		assert.Equal(t, domain.KindRenderFailed, de.Kind)
		assert.Equal(t, domain.ErrorCodeRenderFailed, de.ErrorCode())
		assert.Equal(t, "net::ERR_CONNECTION_REFUSED", de.Message)
		assert.NotEmpty(t, de.JobID)
	})

	t.Run("deadline reports in progress", func(t *testing.T) {
		f := newFixture(t, 0)

		req := inline("<p>x</p>")
		req.Mode = ModeWait
		res, err := f.svc.Submit(context.Background(), req)
		require.NoError(t, err)
		assert.True(t, res.InProgress)
		require.NotNil(t, res.Job)
		assert.Equal(t, domain.JobStatusQueued, res.Job.Status)
	})
}

// slowPollStore answers a poll only once the poll deadline has passed.
type slowPollStore struct {
	*memstore.Store
}

func (s slowPollStore) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	<-ctx.Done()
	return s.Store.GetJob(context.Background(), jobID)
}

type ctxAwareContent struct {
	*content.MemoryStore
}

func (c ctxAwareContent) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.MemoryStore.Get(ctx, key)
}

func TestSubmit_WaitReadsOutputAfterPollDeadline(t *testing.T) {
	f := newFixture(t, 0)
	f.completeNext(t, false)

	log := logger.NewNop()
	svc := NewService(Deps{
		Jobs:      slowPollStore{f.store},
		Content:   ctxAwareContent{f.content},
		Publisher: f.queue,
		Renderer:  f.renderer,
		Ledger:    f.store,
		Logger:    log,
	}, Config{
		PollInterval: 5 * time.Millisecond,
		PollTimeout:  50 * time.Millisecond,
	})

	req := inline("<p>x</p>")
	req.Mode = ModeWait
	res, err := svc.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.InProgress)
	assert.Equal(t, "%PDF-1.7 queued", string(res.PDF))
}

func TestSubmit_Direct(t *testing.T) {
	t.Run("renders and charges credits", func(t *testing.T) {
		f := newFixture(t, 0)
		f.renderer.Output = make([]byte, 12*1024*1024)

		req := SubmitRequest{TenantID: tenant, InputType: domain.InputTypeURL, InputRef: "https://example.com", Mode: ModeDirect}
		res, err := f.svc.Submit(context.Background(), req)
		require.NoError(t, err)
		assert.Len(t, res.PDF, 12*1024*1024)
		assert.Nil(t, res.Job)

		assert.Empty(t, f.store.Jobs())
		assert.Empty(t, f.queue.Published())

		credits, err := f.store.CreditsUsedToday(context.Background(), tenant)
		require.NoError(t, err)
		assert.Equal(t, int64(3), credits)

		reqs := f.renderer.Requests()
		require.Len(t, reqs, 1)
		assert.Equal(t, "https://example.com", reqs[0].URL)
	})

	t.Run("stored html input is fetched", func(t *testing.T) {
		f := newFixture(t, 0)
		key := domain.InputKey(tenant, "prev")
		require.NoError(t, f.content.Put(context.Background(), key, []byte("<p>stored</p>"), content.ContentTypeHTML))

		_, err := f.svc.Submit(context.Background(), SubmitRequest{TenantID: tenant, InputType: domain.InputTypeHTML, InputRef: key, Mode: ModeDirect})
		require.NoError(t, err)
		assert.Equal(t, "<p>stored</p>", f.renderer.Requests()[0].HTML)
	})

	t.Run("ledger failure does not fail the render", func(t *testing.T) {
		f := newFixture(t, 0)
		f.store.FailOn("IncrementCredits", errors.New("db down"))

		req := inline("<p>x</p>")
		req.Mode = ModeDirect
		res, err := f.svc.Submit(context.Background(), req)
		require.NoError(t, err)
		assert.NotEmpty(t, res.PDF)
	})

	t.Run("renderer failure", func(t *testing.T) {
		f := newFixture(t, 0)
		f.renderer.SetError(errors.New("chromium crashed"))

		req := inline("<p>x</p>")
		req.Mode = ModeDirect
		_, err := f.svc.Submit(context.Background(), req)
		require.Error(t, err)
		assert.Equal(t, domain.KindRenderFailed, kindOf(t, err))
		assert.True(t, strings.Contains(err.Error(), "chromium crashed"))
	})
}

func TestGetJob_And_PDFURL(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	res, err := f.svc.Submit(ctx, inline("<p>x</p>"))
	require.NoError(t, err)
	jobID := res.Job.ID

	_, err = f.svc.GetJob(ctx, "tenant_b", jobID)
	assert.Equal(t, domain.KindNotFound, kindOf(t, err))

	_, err = f.svc.GetJob(ctx, tenant, "missing")
	assert.Equal(t, domain.KindNotFound, kindOf(t, err))

	view, err := f.svc.GetJob(ctx, tenant, jobID)
	require.NoError(t, err)
	assert.Empty(t, view.DownloadURL)

	_, err = f.svc.PDFURL(ctx, tenant, jobID)
	assert.Equal(t, domain.KindConflict, kindOf(t, err))

	key := domain.OutputKey(tenant, jobID)
	require.NoError(t, f.content.Put(ctx, key, []byte("%PDF"), content.ContentTypePDF))
	_, err = f.store.ClaimJob(ctx, jobID)
	require.NoError(t, err)
	require.NoError(t, f.store.MarkJobSucceeded(ctx, jobID, key, 4))

	view, err = f.svc.GetJob(ctx, tenant, jobID)
	require.NoError(t, err)
	assert.Contains(t, view.DownloadURL, key)

	url, err := f.svc.PDFURL(ctx, tenant, jobID)
	require.NoError(t, err)
	assert.Contains(t, url, key)
}

func TestListJobs(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.svc.Submit(ctx, SubmitRequest{TenantID: tenant, InputType: domain.InputTypeURL, InputRef: "https://example.com"})
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}
	_, err := f.svc.Submit(ctx, SubmitRequest{TenantID: "tenant_b", InputType: domain.InputTypeURL, InputRef: "https://example.com"})
	require.NoError(t, err)

	page, err := f.svc.ListJobs(ctx, tenant, nil, nil, 2)
	require.NoError(t, err)
	require.Len(t, page.Jobs, 2)
	assert.True(t, page.HasMore)
	assert.True(t, page.Jobs[0].CreatedAt.After(page.Jobs[1].CreatedAt) || page.Jobs[0].CreatedAt.Equal(page.Jobs[1].CreatedAt))
}
