package sqlstore

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"chatintent/domain/core"
	"chatintent/domain/run"
	"chatintent/internal/config"
	"chatintent/internal/errors"
	"chatintent/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepo(t *testing.T, name string) ports.RunRepository {
	t.Helper()
	db, err := Open(context.Background(), config.StorageConfig{
		Driver: "sqlite",
		DSN:    "file:" + name + "?mode=memory&cache=shared",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRunRepository(db)
}

func manifestAt(created time.Time) *run.Manifest {
	fp := run.NewFingerprint(core.HashFields("corpus"), core.HashFields("labels"), core.HashFields("cfg"), 42, "test")
	m := run.NewManifest(core.NewRunID(), fp)
	m.CreatedAt = created
	return m
}

func TestRunRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t, "lifecycle")

	m := manifestAt(time.Now().UTC())
	require.NoError(t, repo.Create(ctx, m))

	rec, err := repo.Get(ctx, m.RunID)
	require.NoError(t, err)
	assert.Equal(t, run.StatusRunning, rec.Status)
	assert.Equal(t, m.Fingerprint, rec.Manifest.Fingerprint)
	assert.Equal(t, m.CreatedAt.UnixMilli(), rec.Manifest.CreatedAt.UnixMilli())
	assert.Nil(t, rec.FinishedAt)
	assert.Empty(t, rec.Epochs)

	epochs := []run.Epoch{
		{Epoch: 2, Step: 20, TrainLoss: 0.4, EvalLoss: 0.5, Accuracy: 0.9, F1: 0.88, LearningRate: 1e-5},
		{Epoch: 1, Step: 10, TrainLoss: 1.2, EvalLoss: 1.0, Accuracy: 0.6, F1: 0.55, LearningRate: 2e-5},
	}
	require.NoError(t, repo.AddEpochs(ctx, m.RunID, epochs))
	require.NoError(t, repo.AddEpochs(ctx, m.RunID, nil))

	require.NoError(t, repo.Finish(ctx, m.RunID, run.Outcome{
		Status: run.StatusSucceeded, BestEpoch: 2, Accuracy: 0.9, F1: 0.88, BundleDir: "./chatbot_model",
	}))

	rec, err = repo.Get(ctx, m.RunID)
	require.NoError(t, err)
	assert.True(t, rec.Terminal())
	assert.Equal(t, 2, rec.BestEpoch)
	assert.InDelta(t, 0.88, rec.F1, 1e-12)
	assert.Equal(t, "./chatbot_model", rec.BundleDir)
	require.NotNil(t, rec.FinishedAt)
	require.Len(t, rec.Epochs, 2)
	assert.Equal(t, epochs[1], rec.Epochs[0])
	assert.Equal(t, epochs[0], rec.Epochs[1])
}

func TestRunRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t, "notfound")
	missing := core.NewRunID()

	_, err := repo.Get(ctx, missing)
	assert.True(t, stderrors.Is(err, errors.ErrNotFound))

	err = repo.Finish(ctx, missing, run.Outcome{Status: run.StatusFailed})
	assert.True(t, stderrors.Is(err, errors.ErrNotFound))
}

func TestRunRepository_CreateRejectsInvalidManifest(t *testing.T) {
	repo := newRepo(t, "invalid")
	m := manifestAt(time.Now())
	m.RunID = ""
	err := repo.Create(context.Background(), m)
	assert.True(t, stderrors.Is(err, errors.ErrConfiguration))
}

func TestRunRepository_DuplicateEpochIsDatabaseError(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t, "duplicate")
	m := manifestAt(time.Now())
	require.NoError(t, repo.Create(ctx, m))

	e := []run.Epoch{{Epoch: 1, Step: 5}}
	require.NoError(t, repo.AddEpochs(ctx, m.RunID, e))
	err := repo.AddEpochs(ctx, m.RunID, e)
	assert.True(t, errors.HasCode(err, errors.CodeDatabaseError))
}

func TestRunRepository_ListRecent(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t, "recent")
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var ids []core.RunID
	for i := 0; i < 3; i++ {
		m := manifestAt(base.Add(time.Duration(i) * time.Hour))
		require.NoError(t, repo.Create(ctx, m))
		ids = append(ids, m.RunID)
	}

	all, err := repo.ListRecent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID())
	assert.Equal(t, ids[0], all[2].ID())

	two, err := repo.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, two, 2)
	assert.Equal(t, ids[1], two[1].ID())
}

func TestOpen_RejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StorageConfig{Driver: "none"})
	assert.True(t, stderrors.Is(err, errors.ErrConfiguration))
}
