package routing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrEmptyPlan is returned when Run is handed a plan without attempts.
	// BuildAttemptPlan never produces one, so this is a programming error.
	ErrEmptyPlan = errors.New("attempt plan is empty")

	// ErrNoExecutor is returned when the service was built without an executor
	ErrNoExecutor = errors.New("no executor configured")
)

// ExhaustedError is returned when every attempt of a plan failed.
// It carries only the last attempt's error; earlier ones are in the logs.
type ExhaustedError struct {
	Attempts int
	Last     error
}

// Error implements the error interface
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d llm attempts failed: %v", e.Attempts, e.Last)
}

// Unwrap implements error unwrapping
func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// IsExhausted checks if an error reports an exhausted attempt plan
func IsExhausted(err error) bool {
	var exhausted *ExhaustedError
	return errors.As(err, &exhausted)
}

// Task is the unit of work handed to the executor on every attempt
type Task struct {
	ID    string
	Topic string
}

// Executor runs a task against the backend an override points at
type Executor interface {
	Execute(ctx context.Context, task Task, override Override, snap Snapshot) (Result, error)
}

// ExecutorFunc adapts a function to the Executor interface
type ExecutorFunc func(ctx context.Context, task Task, override Override, snap Snapshot) (Result, error)

// Execute calls f
func (f ExecutorFunc) Execute(ctx context.Context, task Task, override Override, snap Snapshot) (Result, error) {
	return f(ctx, task, override, snap)
}

// AttemptRecord describes one finished attempt
type AttemptRecord struct {
	Task     Task
	Index    int
	Total    int
	Identity IdentityKey
	Override SanitizedOverride
	Err      error
	Latency  time.Duration
}

// Succeeded reports whether the attempt produced a result
func (r AttemptRecord) Succeeded() bool {
	return r.Err == nil
}

// RunReport summarizes a successful run
type RunReport struct {
	Output  string
	Attempt int
	Total   int
	Winner  Override
}

// Recorder observes runs and their attempts. Implementations must not block
// for long; they are called inline between attempts.
type Recorder interface {
	RunStarted(ctx context.Context, task Task, plan []Override)
	AttemptFinished(ctx context.Context, rec AttemptRecord)
	RunFinished(ctx context.Context, task Task, report *RunReport, err error)
}

// NopRecorder discards everything
type NopRecorder struct{}

func (NopRecorder) RunStarted(context.Context, Task, []Override)         {}
func (NopRecorder) AttemptFinished(context.Context, AttemptRecord)       {}
func (NopRecorder) RunFinished(context.Context, Task, *RunReport, error) {}

// RoutingService walks an attempt plan until one attempt succeeds
type RoutingService struct {
	snapshot Snapshot
	executor Executor
	recorder Recorder
	logger   *zap.Logger
}

// NewRoutingService creates a new routing service
func NewRoutingService(snapshot Snapshot, executor Executor, logger *zap.Logger) *RoutingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoutingService{
		snapshot: snapshot,
		executor: executor,
		recorder: NopRecorder{},
		logger:   logger,
	}
}

// WithRecorder sets the run observer and returns the service
func (s *RoutingService) WithRecorder(r Recorder) *RoutingService {
	if r == nil {
		r = NopRecorder{}
	}
	s.recorder = r
	return s
}

// Snapshot returns the configuration the service plans from
func (s *RoutingService) Snapshot() Snapshot {
	return s.snapshot
}

// Plan returns the attempt plan for the configured snapshot
func (s *RoutingService) Plan() []Override {
	return BuildAttemptPlan(s.snapshot)
}

// Execute plans attempts from the configured snapshot and runs them
func (s *RoutingService) Execute(ctx context.Context, task Task) (*RunReport, error) {
	return s.record(ctx, task, s.Plan(), s.snapshot)
}

// Run executes plan in order and returns the normalized output of the first
// successful attempt. If all attempts fail the returned *ExhaustedError wraps
// the last attempt's error.
func (s *RoutingService) Run(ctx context.Context, task Task, plan []Override, snap Snapshot) (string, error) {
	report, err := s.record(ctx, task, plan, snap)
	if err != nil {
		return "", err
	}
	return report.Output, nil
}

// record brackets a run with RunStarted and RunFinished so every attempt the
// recorder sees belongs to a run it will be told about.
func (s *RoutingService) record(ctx context.Context, task Task, plan []Override, snap Snapshot) (*RunReport, error) {
	s.recorder.RunStarted(ctx, task, plan)
	report, err := s.run(ctx, task, plan, snap)
	s.recorder.RunFinished(ctx, task, report, err)

	return report, err
}

func (s *RoutingService) run(ctx context.Context, task Task, plan []Override, snap Snapshot) (*RunReport, error) {
	if s.executor == nil {
		return nil, ErrNoExecutor
	}

	total := len(plan)
	if total == 0 {
		s.logger.Error("refusing to run empty attempt plan", zap.String("run_id", task.ID))
		return nil, ErrEmptyPlan
	}

	var lastErr error
	for i, override := range plan {
		index := i + 1
		sanitized := Sanitize(override)

		if !override.IsBaseline() {
			s.logger.Info("attempt using overrides",
				zap.String("run_id", task.ID),
				zap.Int("attempt", index),
				zap.Int("total", total),
				zap.Object("overrides", sanitized))
		}

		start := time.Now()
		result, err := s.executor.Execute(ctx, task, override, snap)

		s.recorder.AttemptFinished(ctx, AttemptRecord{
			Task:     task,
			Index:    index,
			Total:    total,
			Identity: override.Resolve(snap),
			Override: sanitized,
			Err:      err,
			Latency:  time.Since(start),
		})

		if err != nil {
			lastErr = err
			s.logger.Error("crew run failed",
				zap.String("run_id", task.ID),
				zap.Int("attempt", index),
				zap.Int("total", total),
				zap.Object("overrides", sanitized),
				zap.Error(err))
			continue
		}

		if index > 1 {
			s.logger.Info("fallback succeeded",
				zap.String("run_id", task.ID),
				zap.Int("attempt", index),
				zap.Int("total", total),
				zap.Object("overrides", sanitized))
		}

		output := NormalizeResult(result)
		s.logger.Info("crew completed",
			zap.String("run_id", task.ID),
			zap.Int("output_length", len(output)))

		return &RunReport{
			Output:  output,
			Attempt: index,
			Total:   total,
			Winner:  override,
		}, nil
	}

	return nil, &ExhaustedError{Attempts: total, Last: lastErr}
}
