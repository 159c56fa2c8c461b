package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/upb/workshop-crew/models"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// RunRepository handles pipeline run and attempt data operations
type RunRepository interface {
	// CreateRun inserts a new pipeline run
	CreateRun(ctx context.Context, run *models.PipelineRun) error

	// FinishRun stores the terminal status, winning attempt, output and error of a run
	FinishRun(ctx context.Context, run *models.PipelineRun) error

	// InsertAttempt inserts one attempt of a run
	InsertAttempt(ctx context.Context, attempt *models.RunAttempt) error

	// GetRun retrieves a run with its attempts in attempt order
	GetRun(ctx context.Context, id uuid.UUID) (*models.PipelineRun, error)

	// ListRuns retrieves the most recent runs without attempts
	ListRuns(ctx context.Context, limit, offset int) ([]*models.PipelineRun, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Runs RunRepository
}
