package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/folio/internal/common"
	"github.com/ternarybob/folio/internal/interfaces"
	"github.com/ternarybob/folio/internal/models"
)

func newTestDB(t *testing.T) *BadgerDB {
	t.Helper()
	logger := arbor.NewLogger()
	db, err := NewBadgerDB(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestJobStorage(t *testing.T) interfaces.JobStorage {
	t.Helper()
	return NewJobStorage(newTestDB(t), arbor.NewLogger())
}

func allKinds() []models.JobKind {
	return []models.JobKind{
		models.JobKindWorkbookIngest,
		models.JobKindFetchHoldingsOne,
		models.JobKindFetchHoldingsAll,
	}
}

func TestClaimOneExactlyOnce(t *testing.T) {
	storage := newTestJobStorage(t)
	ctx := context.Background()

	job := models.NewJob("job-1", models.JobKindWorkbookIngest, nil)
	require.NoError(t, storage.Insert(ctx, job))

	first, err := storage.ClaimOne(ctx, allKinds(), "worker-a", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, models.JobStatusRunning, first.Status)
	assert.Equal(t, "worker-a", first.WorkerID)
	assert.Equal(t, 1, first.Attempts)
	require.NotNil(t, first.StartedAt)
	require.NotNil(t, first.LeaseExpiresAt)
	assert.True(t, first.LeaseExpiresAt.After(*first.StartedAt))

	// A second worker finds nothing claimable
	second, err := storage.ClaimOne(ctx, allKinds(), "worker-b", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, second)
}

func TestClaimOrderIsFIFO(t *testing.T) {
	storage := newTestJobStorage(t)
	ctx := context.Background()

	older := models.NewJob("job-old", models.JobKindWorkbookIngest, nil)
	older.CreatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, storage.Insert(ctx, older))

	newer := models.NewJob("job-new", models.JobKindWorkbookIngest, nil)
	require.NoError(t, storage.Insert(ctx, newer))

	claimed, err := storage.ClaimOne(ctx, allKinds(), "worker-a", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, "job-old", claimed.ID)
}

func TestClaimReclaimsExpiredLease(t *testing.T) {
	storage := newTestJobStorage(t)
	ctx := context.Background()

	job := models.NewJob("job-1", models.JobKindFetchHoldingsOne, nil)
	require.NoError(t, storage.Insert(ctx, job))

	// First claim with a lease that expires immediately
	first, err := storage.ClaimOne(ctx, allKinds(), "worker-a", -time.Second)
	require.NoError(t, err)
	require.NotNil(t, first)

	// Second worker reclaims the expired running job
	second, err := storage.ClaimOne(ctx, allKinds(), "worker-b", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, "job-1", second.ID)
	assert.Equal(t, "worker-b", second.WorkerID)
	assert.Equal(t, 2, second.Attempts)
}

func TestHeartbeatRequiresOwnership(t *testing.T) {
	storage := newTestJobStorage(t)
	ctx := context.Background()

	job := models.NewJob("job-1", models.JobKindWorkbookIngest, nil)
	require.NoError(t, storage.Insert(ctx, job))

	_, err := storage.ClaimOne(ctx, allKinds(), "worker-a", time.Minute)
	require.NoError(t, err)

	require.NoError(t, storage.Heartbeat(ctx, "job-1", "worker-a", time.Minute))
	assert.ErrorIs(t, storage.Heartbeat(ctx, "job-1", "worker-b", time.Minute), ErrLeaseLost)
}

func TestFinalizeIsWriteOnce(t *testing.T) {
	storage := newTestJobStorage(t)
	ctx := context.Background()

	job := models.NewJob("job-1", models.JobKindWorkbookIngest, nil)
	require.NoError(t, storage.Insert(ctx, job))

	_, err := storage.ClaimOne(ctx, allKinds(), "worker-a", time.Minute)
	require.NoError(t, err)

	result := map[string]any{"parsed_sheets": 2}
	require.NoError(t, storage.Finalize(ctx, "job-1", "worker-a", models.JobStatusCompleted, result, nil))

	finalized, err := storage.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, finalized.Status)
	require.NotNil(t, finalized.CompletedAt)
	assert.Empty(t, finalized.WorkerID)
	assert.Nil(t, finalized.LeaseExpiresAt)

	// Any further terminal write is rejected
	err = storage.Finalize(ctx, "job-1", "worker-a", models.JobStatusFailed, nil,
		models.NewJobError(models.ErrKindValidation, "late failure"))
	assert.ErrorIs(t, err, ErrTerminalState)

	unchanged, err := storage.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, unchanged.Status)
	assert.Equal(t, *finalized.CompletedAt, *unchanged.CompletedAt)
}

func TestFinalizeRequiresLease(t *testing.T) {
	storage := newTestJobStorage(t)
	ctx := context.Background()

	job := models.NewJob("job-1", models.JobKindWorkbookIngest, nil)
	require.NoError(t, storage.Insert(ctx, job))

	_, err := storage.ClaimOne(ctx, allKinds(), "worker-a", time.Minute)
	require.NoError(t, err)

	err = storage.Finalize(ctx, "job-1", "worker-b", models.JobStatusCompleted, nil, nil)
	assert.ErrorIs(t, err, ErrLeaseLost)
}

func TestProgressIsMonotonic(t *testing.T) {
	storage := newTestJobStorage(t)
	ctx := context.Background()

	job := models.NewJob("job-1", models.JobKindFetchHoldingsAll, nil)
	require.NoError(t, storage.Insert(ctx, job))

	_, err := storage.ClaimOne(ctx, allKinds(), "worker-a", time.Minute)
	require.NoError(t, err)

	require.NoError(t, storage.UpdateProgress(ctx, "job-1", "worker-a", models.JobProgress{Total: 4, Completed: 2}))

	mid, err := storage.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, 50.0, mid.Progress.Percentage)

	// A lower raw percentage never regresses the stored one
	require.NoError(t, storage.UpdateProgress(ctx, "job-1", "worker-a", models.JobProgress{Total: 4, Completed: 1}))

	after, err := storage.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, 50.0, after.Progress.Percentage)
}

func TestCancelQueuedJob(t *testing.T) {
	storage := newTestJobStorage(t)
	ctx := context.Background()

	job := models.NewJob("job-1", models.JobKindWorkbookIngest, nil)
	require.NoError(t, storage.Insert(ctx, job))

	cancelled, err := storage.MarkCancelledIfQueued(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, cancelled)

	got, err := storage.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, got.Status)
	require.NotNil(t, got.CompletedAt)
	require.NotNil(t, got.Error)
	assert.Equal(t, models.ErrKindCancelled, got.Error.Kind)

	// A cancelled job is not claimable
	claimed, err := storage.ClaimOne(ctx, allKinds(), "worker-a", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestMarkCancelledSkipsRunning(t *testing.T) {
	storage := newTestJobStorage(t)
	ctx := context.Background()

	job := models.NewJob("job-1", models.JobKindWorkbookIngest, nil)
	require.NoError(t, storage.Insert(ctx, job))

	_, err := storage.ClaimOne(ctx, allKinds(), "worker-a", time.Minute)
	require.NoError(t, err)

	cancelled, err := storage.MarkCancelledIfQueued(ctx, "job-1")
	require.NoError(t, err)
	assert.False(t, cancelled)

	require.NoError(t, storage.RequestCancel(ctx, "job-1"))
	got, err := storage.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, got.CancelRequested)
	assert.Equal(t, models.JobStatusRunning, got.Status)
}

func TestRequeueExpiredIsIdempotent(t *testing.T) {
	storage := newTestJobStorage(t)
	ctx := context.Background()

	job := models.NewJob("job-1", models.JobKindWorkbookIngest, nil)
	require.NoError(t, storage.Insert(ctx, job))

	_, err := storage.ClaimOne(ctx, allKinds(), "worker-a", -time.Second)
	require.NoError(t, err)

	count, err := storage.RequeueExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	requeued, err := storage.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, requeued.Status)
	assert.Empty(t, requeued.WorkerID)
	assert.Nil(t, requeued.LeaseExpiresAt)
	assert.Equal(t, 1, requeued.Attempts)

	// Running it again with no new failures is a no-op
	count, err = storage.RequeueExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestForceFailRecordsOverride(t *testing.T) {
	storage := newTestJobStorage(t)
	ctx := context.Background()

	job := models.NewJob("job-1", models.JobKindFetchHoldingsAll, nil)
	require.NoError(t, storage.Insert(ctx, job))

	require.NoError(t, storage.ForceFail(ctx, "job-1", "stuck beyond max queue age"))

	got, err := storage.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, models.ErrKindManualOverride, got.Error.Kind)
}

func TestListFiltersByStatusAndKind(t *testing.T) {
	storage := newTestJobStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.Insert(ctx, models.NewJob("job-1", models.JobKindWorkbookIngest, nil)))
	require.NoError(t, storage.Insert(ctx, models.NewJob("job-2", models.JobKindFetchHoldingsOne, nil)))
	require.NoError(t, storage.Insert(ctx, models.NewJob("job-3", models.JobKindFetchHoldingsOne, nil)))

	_, err := storage.ClaimOne(ctx, []models.JobKind{models.JobKindWorkbookIngest}, "worker-a", time.Minute)
	require.NoError(t, err)

	queued, err := storage.List(ctx, &interfaces.JobListOptions{Status: models.JobStatusQueued})
	require.NoError(t, err)
	assert.Len(t, queued, 2)

	fetches, err := storage.List(ctx, &interfaces.JobListOptions{Kind: models.JobKindFetchHoldingsOne})
	require.NoError(t, err)
	assert.Len(t, fetches, 2)

	counts, err := storage.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.JobStatusRunning])
	assert.Equal(t, 2, counts[models.JobStatusQueued])
}
