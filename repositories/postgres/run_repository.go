package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/upb/workshop-crew/models"
	"github.com/upb/workshop-crew/repositories"
	"go.uber.org/zap"
)

const runColumns = `id, request_id, topic, status, total_attempts, winning_attempt,
		       output, error_message, created_at, completed_at`

// RunRepository implements the repositories.RunRepository interface
type RunRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *DB, logger *zap.Logger) repositories.RunRepository {
	return &RunRepository{
		db:     db,
		logger: logger,
	}
}

// CreateRun inserts a new pipeline run
func (r *RunRepository) CreateRun(ctx context.Context, run *models.PipelineRun) error {
	query := `
		INSERT INTO pipeline_runs (
			id, request_id, topic, status, total_attempts, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		run.ID,
		run.RequestID,
		run.Topic,
		run.Status,
		run.TotalAttempts,
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert pipeline run: %w", err)
	}

	r.logger.Debug("pipeline run inserted", zap.String("run_id", run.ID.String()))
	return nil
}

// FinishRun stores the outcome of a run
func (r *RunRepository) FinishRun(ctx context.Context, run *models.PipelineRun) error {
	query := `
		UPDATE pipeline_runs
		SET status = $2, winning_attempt = $3, output = $4, error_message = $5, completed_at = $6
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query,
		run.ID,
		run.Status,
		run.WinningAttempt,
		run.Output,
		run.ErrorMessage,
		run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to finish pipeline run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: pipeline run %s", repositories.ErrNotFound, run.ID)
	}

	return nil
}

// InsertAttempt inserts one attempt of a run
func (r *RunRepository) InsertAttempt(ctx context.Context, attempt *models.RunAttempt) error {
	query := `
		INSERT INTO run_attempts (
			id, run_id, attempt_index, provider, model, base_url,
			overrides, status, latency_ms, error_message, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		attempt.ID,
		attempt.RunID,
		attempt.AttemptIndex,
		attempt.Provider,
		attempt.Model,
		attempt.BaseURL,
		[]byte(attempt.Overrides),
		attempt.Status,
		attempt.LatencyMs,
		attempt.ErrorMessage,
		attempt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run attempt: %w", err)
	}

	return nil
}

// GetRun retrieves a run with its attempts
func (r *RunRepository) GetRun(ctx context.Context, id uuid.UUID) (*models.PipelineRun, error) {
	query := `SELECT ` + runColumns + ` FROM pipeline_runs WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	run, err := scanRun(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: pipeline run %s", repositories.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get pipeline run: %w", err)
	}

	attempts, err := r.getAttempts(ctx, executor, id)
	if err != nil {
		return nil, err
	}
	run.Attempts = attempts

	return run, nil
}

// ListRuns retrieves the most recent runs
func (r *RunRepository) ListRuns(ctx context.Context, limit, offset int) ([]*models.PipelineRun, error) {
	query := `SELECT ` + runColumns + ` FROM pipeline_runs ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list pipeline runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.PipelineRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pipeline run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pipeline runs: %w", err)
	}

	return runs, nil
}

func (r *RunRepository) getAttempts(ctx context.Context, executor Executor, runID uuid.UUID) ([]*models.RunAttempt, error) {
	query := `
		SELECT id, run_id, attempt_index, provider, model, base_url,
		       overrides, status, latency_ms, error_message, created_at
		FROM run_attempts
		WHERE run_id = $1
		ORDER BY attempt_index
	`

	rows, err := executor.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*models.RunAttempt
	for rows.Next() {
		a := &models.RunAttempt{}
		var overrides []byte
		err := rows.Scan(
			&a.ID,
			&a.RunID,
			&a.AttemptIndex,
			&a.Provider,
			&a.Model,
			&a.BaseURL,
			&overrides,
			&a.Status,
			&a.LatencyMs,
			&a.ErrorMessage,
			&a.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run attempt: %w", err)
		}
		a.Overrides = overrides
		attempts = append(attempts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run attempts: %w", err)
	}

	return attempts, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*models.PipelineRun, error) {
	run := &models.PipelineRun{}
	var requestID sql.NullString
	err := row.Scan(
		&run.ID,
		&requestID,
		&run.Topic,
		&run.Status,
		&run.TotalAttempts,
		&run.WinningAttempt,
		&run.Output,
		&run.ErrorMessage,
		&run.CreatedAt,
		&run.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	run.RequestID = requestID.String
	return run, nil
}
