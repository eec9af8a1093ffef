package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/render-jobs/internal/content"
	"github.com/cuongbtq/render-jobs/internal/domain"
	"github.com/cuongbtq/render-jobs/internal/events"
	"github.com/cuongbtq/render-jobs/internal/queue"
	"github.com/cuongbtq/render-jobs/internal/renderer"
	"github.com/cuongbtq/render-jobs/internal/storage/memstore"
	"github.com/cuongbtq/render-jobs/shared/logger"
)

const tenant = "tenant_a"

type fixture struct {
	worker   *Worker
	store    *memstore.Store
	content  *content.MemoryStore
	renderQ  *queue.MemoryQueue
	eventsQ  *queue.MemoryQueue
	renderer *renderer.Fake
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.NewNop()

	f := &fixture{
		store:    memstore.New(),
		content:  content.NewMemoryStore(""),
		renderQ:  queue.NewMemoryQueue(16),
		eventsQ:  queue.NewMemoryQueue(16),
		renderer: renderer.NewFake([]byte("%PDF-1.7 rendered")),
	}
	f.worker = NewWorker(&Config{
		Logger:          log,
		Jobs:            f.store,
		Content:         f.content,
		Renderer:        f.renderer,
		Ledger:          f.store,
		Emitter:         events.NewEmitter(f.eventsQ, log),
		Consumer:        f.renderQ,
		Concurrency:     2,
		JobTimeout:      time.Second,
		MaxDeliveries:   3,
		ShutdownTimeout: time.Second,
		ConsumerTag:     "test-worker",
	})
	return f
}

// seedJob stores a QUEUED job and returns its render request message.
func (f *fixture) seedJob(t *testing.T, inputType domain.InputType, inputRef string) (*domain.Job, queue.Message) {
	t.Helper()
	ctx := context.Background()

	id, err := domain.NewJobID()
	require.NoError(t, err)
	now := time.Now().UTC()
	job := &domain.Job{
		ID:        id,
		TenantID:  tenant,
		Status:    domain.JobStatusQueued,
		InputType: inputType,
		InputRef:  inputRef,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, f.store.CreateJob(ctx, job))

	body, err := json.Marshal(domain.NewRenderRequest(job))
	require.NoError(t, err)
	require.NoError(t, f.renderQ.Publish(ctx, body))

	msg, ok := f.renderQ.Next()
	require.True(t, ok)
	return job, msg
}

func (f *fixture) eventTypes(t *testing.T) []domain.EventType {
	t.Helper()
	var types []domain.EventType
	for _, body := range f.eventsQ.Published() {
		ev, err := domain.ParseLifecycleEvent(body)
		require.NoError(t, err)
		types = append(types, ev.Type())
	}
	return types
}

func TestHandleMessage_HTMLSucceeds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inputKey := domain.InputKey(tenant, "seed")
	require.NoError(t, f.content.Put(ctx, inputKey, []byte("<h1>Hi</h1>"), content.ContentTypeHTML))
	job, msg := f.seedJob(t, domain.InputTypeHTML, inputKey)

	require.NoError(t, f.worker.HandleMessage(ctx, msg))

	stored, err := f.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusSucceeded, stored.Status)
	require.NotNil(t, stored.ResultRef)
	assert.Equal(t, domain.OutputKey(tenant, job.ID), *stored.ResultRef)
	assert.Nil(t, stored.ErrorCode)
	assert.NotNil(t, stored.StartedAt)
	assert.NotNil(t, stored.FinishedAt)

	obj, ok := f.content.Object(*stored.ResultRef)
	require.True(t, ok)
	assert.Equal(t, content.ContentTypePDF, obj.ContentType)

	assert.Equal(t, "<h1>Hi</h1>", f.renderer.Requests()[0].HTML)
	assert.Equal(t, []domain.EventType{domain.EventJobStarted, domain.EventJobSucceeded}, f.eventTypes(t))

	credits, err := f.store.CreditsUsedToday(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, int64(1), credits)
}

func TestHandleMessage_Failures(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(f *fixture) (domain.InputType, string)
		wantCode string
	}{
		{
			name: "missing input",
			setup: func(f *fixture) (domain.InputType, string) {
				return domain.InputTypeHTML, domain.InputKey(tenant, "gone")
			},
			wantCode: domain.ErrorCodeContentFetchFailed,
		},
		{
			name: "renderer error",
			setup: func(f *fixture) (domain.InputType, string) {
				f.renderer.SetError(errors.New("net::ERR_NAME_NOT_RESOLVED"))
				return domain.InputTypeURL, "https://nope.invalid"
			},
			wantCode: domain.ErrorCodeRenderFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			inputType, ref := tt.setup(f)
			job, msg := f.seedJob(t, inputType, ref)

			require.NoError(t, f.worker.HandleMessage(ctx, msg))

			stored, err := f.store.GetJob(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.JobStatusFailed, stored.Status)
			require.NotNil(t, stored.ErrorCode)
			assert.Equal(t, tt.wantCode, *stored.ErrorCode)
			assert.Nil(t, stored.ResultRef)
			assert.Equal(t, []domain.EventType{domain.EventJobStarted, domain.EventJobFailed}, f.eventTypes(t))
		})
	}
}

func TestHandleMessage_RedeliveryOfFinishedJobIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job, msg := f.seedJob(t, domain.InputTypeURL, "https://example.com")

	require.NoError(t, f.worker.HandleMessage(ctx, msg))
	require.Len(t, f.renderer.Requests(), 1)
	eventsBefore := len(f.eventsQ.Published())

	require.NoError(t, f.worker.HandleMessage(ctx, msg))
	assert.Len(t, f.renderer.Requests(), 1)
	assert.Len(t, f.eventsQ.Published(), eventsBefore)

	credits, err := f.store.CreditsUsedToday(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, int64(1), credits)

	stored, err := f.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusSucceeded, stored.Status)
}

func TestHandleMessage_Errors(t *testing.T) {
	t.Run("malformed body", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.renderQ.Publish(context.Background(), []byte("{not json")))
		msg, _ := f.renderQ.Next()

		err := f.worker.HandleMessage(context.Background(), msg)
		assert.ErrorIs(t, err, domain.ErrInvalidPayload)
	})

	t.Run("unknown job is acknowledged", func(t *testing.T) {
		f := newFixture(t)
		body, _ := json.Marshal(domain.RenderRequest{JobID: "missing", TenantID: tenant, InputType: domain.InputTypeURL, InputRef: "https://x.com"})
		require.NoError(t, f.renderQ.Publish(context.Background(), body))
		msg, _ := f.renderQ.Next()

		assert.NoError(t, f.worker.HandleMessage(context.Background(), msg))
	})

	t.Run("store failure is retryable", func(t *testing.T) {
		f := newFixture(t)
		_, msg := f.seedJob(t, domain.InputTypeURL, "https://example.com")
		f.store.FailOn("ClaimJob", errors.New("connection reset"))

		err := f.worker.HandleMessage(context.Background(), msg)
		assert.True(t, domain.IsRetryable(err))
		assert.Empty(t, f.renderer.Requests())
	})

	t.Run("ledger failure does not fail the job", func(t *testing.T) {
		f := newFixture(t)
		job, msg := f.seedJob(t, domain.InputTypeURL, "https://example.com")
		f.store.FailOn("IncrementCredits", errors.New("db down"))

		require.NoError(t, f.worker.HandleMessage(context.Background(), msg))
		stored, _ := f.store.GetJob(context.Background(), job.ID)
		assert.Equal(t, domain.JobStatusSucceeded, stored.Status)
	})
}

func TestWorker_Start(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- f.worker.Start(ctx) }()

	id, err := domain.NewJobID()
	require.NoError(t, err)
	job := &domain.Job{ID: id, TenantID: tenant, Status: domain.JobStatusQueued, InputType: domain.InputTypeURL, InputRef: "https://example.com", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	require.NoError(t, f.store.CreateJob(ctx, job))
	body, _ := json.Marshal(domain.NewRenderRequest(job))
	require.NoError(t, f.renderQ.Publish(ctx, body))

	require.Eventually(t, func() bool { return len(f.renderQ.Acked()) == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-errCh)

	stored, err := f.store.GetJob(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusSucceeded, stored.Status)
}
