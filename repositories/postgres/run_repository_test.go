package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/workshop-crew/models"
	"github.com/upb/workshop-crew/repositories"
	"go.uber.org/zap"
)

var runRowColumns = []string{
	"id", "request_id", "topic", "status", "total_attempts", "winning_attempt",
	"output", "error_message", "created_at", "completed_at",
}

var attemptRowColumns = []string{
	"id", "run_id", "attempt_index", "provider", "model", "base_url",
	"overrides", "status", "latency_ms", "error_message", "created_at",
}

func newMockRepo(t *testing.T) (repositories.RunRepository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	return NewRunRepository(Wrap(sqlDB, zap.NewNop()), zap.NewNop()), mock
}

func TestRunRepository_CreateRun(t *testing.T) {
	repo, mock := newMockRepo(t)
	run := models.NewPipelineRun(uuid.New(), "agentic AI", 8)
	run.RequestID = "req-1"

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO pipeline_runs")).
		WithArgs(run.ID, "req-1", "agentic AI", models.RunStatusRunning, 8, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.CreateRun(context.Background(), run))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepository_CreateRunError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO pipeline_runs")).
		WillReturnError(errors.New("duplicate key"))

	err := repo.CreateRun(context.Background(), models.NewPipelineRun(uuid.New(), "go", 1))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert pipeline run")
}

func TestRunRepository_FinishRun(t *testing.T) {
	repo, mock := newMockRepo(t)
	run := models.NewPipelineRun(uuid.New(), "go", 8).MarkSucceeded(3, "final")

	mock.ExpectExec(regexp.QuoteMeta("UPDATE pipeline_runs")).
		WithArgs(run.ID, models.RunStatusSucceeded, 3, "final", nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.FinishRun(context.Background(), run))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepository_FinishRunNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	run := models.NewPipelineRun(uuid.New(), "go", 8).MarkFailed("boom")

	mock.ExpectExec(regexp.QuoteMeta("UPDATE pipeline_runs")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.FinishRun(context.Background(), run)

	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestRunRepository_InsertAttempt(t *testing.T) {
	repo, mock := newMockRepo(t)
	runID := uuid.New()
	attempt := models.NewRunAttempt(runID, 2, "openrouter", "m1", "B").
		WithOverrides(map[string]string{"base_url": "B"}).
		WithLatency(250 * time.Millisecond).
		WithError("upstream 502")

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO run_attempts")).
		WithArgs(attempt.ID, runID, 2, "openrouter", "m1", "B",
			[]byte(`{"base_url":"B"}`), models.AttemptStatusFailed, 250, "upstream 502", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.InsertAttempt(context.Background(), attempt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepository_GetRun(t *testing.T) {
	repo, mock := newMockRepo(t)
	runID := uuid.New()
	attemptID := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM pipeline_runs WHERE id = $1")).
		WithArgs(runID).
		WillReturnRows(sqlmock.NewRows(runRowColumns).
			AddRow(runID.String(), nil, "go", "succeeded", 8, 2, "final", nil, now, now))

	mock.ExpectQuery(regexp.QuoteMeta("FROM run_attempts")).
		WithArgs(runID).
		WillReturnRows(sqlmock.NewRows(attemptRowColumns).
			AddRow(attemptID.String(), runID.String(), 1, "openrouter", "m1", "A", nil, "failed", 120, "boom", now).
			AddRow(uuid.New().String(), runID.String(), 2, "openrouter", "m1", "B", []byte(`{"base_url":"B"}`), "succeeded", 300, nil, now))

	run, err := repo.GetRun(context.Background(), runID)
	require.NoError(t, err)

	assert.Equal(t, runID, run.ID)
	assert.Equal(t, "", run.RequestID)
	assert.Equal(t, models.RunStatusSucceeded, run.Status)
	require.NotNil(t, run.WinningAttempt)
	assert.Equal(t, 2, *run.WinningAttempt)
	require.NotNil(t, run.Output)
	assert.Equal(t, "final", *run.Output)
	assert.Nil(t, run.ErrorMessage)

	require.Len(t, run.Attempts, 2)
	assert.Equal(t, attemptID, run.Attempts[0].ID)
	assert.Equal(t, models.AttemptStatusFailed, run.Attempts[0].Status)
	require.NotNil(t, run.Attempts[0].ErrorMessage)
	assert.Equal(t, "boom", *run.Attempts[0].ErrorMessage)
	assert.JSONEq(t, `{"base_url":"B"}`, string(run.Attempts[1].Overrides))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepository_GetRunNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("FROM pipeline_runs WHERE id = $1")).
		WithArgs(id).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetRun(context.Background(), id)

	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestRunRepository_ListRuns(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM pipeline_runs ORDER BY created_at DESC")).
		WithArgs(10, 0).
		WillReturnRows(sqlmock.NewRows(runRowColumns).
			AddRow(uuid.New().String(), "req-2", "b", "failed", 2, nil, nil, "all failed", now, now).
			AddRow(uuid.New().String(), "req-1", "a", "running", 8, nil, nil, nil, now, nil))

	runs, err := repo.ListRuns(context.Background(), 10, 0)
	require.NoError(t, err)

	require.Len(t, runs, 2)
	assert.Equal(t, "req-2", runs[0].RequestID)
	assert.Equal(t, models.RunStatusFailed, runs[0].Status)
	assert.Nil(t, runs[1].CompletedAt)
	assert.Empty(t, runs[1].Attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepository_UsesTransactionFromContext(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db := Wrap(sqlDB, zap.NewNop())
	repo := NewRunRepository(db, zap.NewNop())
	tm := NewTransactionManager(db, zap.NewNop())
	run := models.NewPipelineRun(uuid.New(), "go", 1)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO pipeline_runs")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO run_attempts")).WillReturnError(errors.New("fk violation"))
	mock.ExpectRollback()

	err = tm.InTransaction(context.Background(), func(ctx context.Context, _ repositories.Transaction) error {
		if err := repo.CreateRun(ctx, run); err != nil {
			return err
		}
		return repo.InsertAttempt(ctx, models.NewRunAttempt(run.ID, 1, "openrouter", "m", "A"))
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "fk violation")
	assert.NoError(t, mock.ExpectationsWereMet())
}
