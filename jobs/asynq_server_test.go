package jobs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/bookledger/internal/ledger/ledgertest"
)

type recordingEnqueuer struct {
	tasks  []*asynq.Task
	opts   [][]asynq.Option
	closed bool
}

func (r *recordingEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	r.tasks = append(r.tasks, task)
	r.opts = append(r.opts, opts)
	return &asynq.TaskInfo{ID: "task-1", Queue: QueueDefault, Type: task.Type()}, nil
}

func (r *recordingEnqueuer) Close() error {
	r.closed = true
	return nil
}

func TestClientPeriodClosedEnqueuesScan(t *testing.T) {
	rec := &recordingEnqueuer{}
	client := NewClientWith(rec, ledgertest.DiscardLogger())

	require.NoError(t, client.PeriodClosed(context.Background(), 12))
	require.Len(t, rec.tasks, 1)
	assert.Equal(t, TaskLedgerIntegrityScan, rec.tasks[0].Type())

	var payload IntegrityScanPayload
	require.NoError(t, json.Unmarshal(rec.tasks[0].Payload(), &payload))
	assert.Equal(t, int64(12), payload.PeriodID)

	var hasTaskID bool
	for _, opt := range rec.opts[0] {
		if opt.Type() == asynq.TaskIDOpt {
			hasTaskID = true
			assert.NotEmpty(t, opt.Value())
		}
	}
	assert.True(t, hasTaskID)

	require.NoError(t, client.Close())
	assert.True(t, rec.closed)
}

func TestNilClientIsNoop(t *testing.T) {
	var client *Client
	require.NoError(t, client.PeriodClosed(context.Background(), 1))
	require.NoError(t, client.Close())
}

type fakeCleaner struct {
	olderThan time.Duration
}

func (f *fakeCleaner) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	f.olderThan = olderThan
	return 3, nil
}

func TestIdempotencyCleanupDefaultsRetention(t *testing.T) {
	cleaner := &fakeCleaner{}
	job := NewIdempotencyCleanupJob(cleaner, ledgertest.DiscardLogger(), nil)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	assert.Equal(t, 72*time.Hour, cleaner.olderThan)

	task, err := NewIdempotencyCleanupTask(24)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 24*time.Hour, cleaner.olderThan)
}

func TestJobsHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(nil, ledgertest.DiscardLogger()).MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"queue":"default","pending":0,"active":0,"retry":0}`, rec.Body.String())
}
