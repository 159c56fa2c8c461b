package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/upb/workshop-crew/models"
	"github.com/upb/workshop-crew/repositories"
	"github.com/upb/workshop-crew/services/redact"
	"github.com/upb/workshop-crew/services/routing"
	"go.uber.org/zap"
)

// RunEvent is a finished run waiting to be persisted
type RunEvent struct {
	Run      *models.PipelineRun
	Attempts []*models.RunAttempt
}

// AuditService records pipeline runs asynchronously. It implements
// routing.Recorder: attempts are buffered in memory while a run is in
// flight and the whole run is queued for persistence when it finishes.
type AuditService struct {
	runs        repositories.RunRepository
	txManager   repositories.TransactionManager
	logger      *zap.Logger
	eventChan   chan *RunEvent
	workerCount int
	bufferSize  int
	timeout     time.Duration
	wg          sync.WaitGroup
	cancel      context.CancelFunc
	ctx         context.Context
	started     bool
	stopped     bool
	mu          sync.Mutex

	inflightMu sync.Mutex
	inflight   map[string]*RunEvent
}

var _ routing.Recorder = (*AuditService)(nil)

// Config holds configuration for the AuditService
type Config struct {
	BufferSize     int           // Size of the event buffer channel
	WorkerCount    int           // Number of concurrent workers
	PersistTimeout time.Duration // Deadline for persisting one run
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:     1000,
		WorkerCount:    2,
		PersistTimeout: 5 * time.Second,
	}
}

// NewAuditService creates a new AuditService instance
func NewAuditService(runs repositories.RunRepository, txManager repositories.TransactionManager, logger *zap.Logger, config Config) *AuditService {
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}
	if config.PersistTimeout <= 0 {
		config.PersistTimeout = DefaultConfig().PersistTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &AuditService{
		runs:        runs,
		txManager:   txManager,
		logger:      logger,
		eventChan:   make(chan *RunEvent, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
		timeout:     config.PersistTimeout,
		ctx:         ctx,
		cancel:      cancel,
		inflight:    make(map[string]*RunEvent),
	}
}

// Start starts the background workers
func (s *AuditService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit service already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started audit service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop gracefully stops the audit service
// Waits for all pending runs to be persisted
func (s *AuditService) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("audit service not started")
	}
	s.stopped = true
	close(s.eventChan)
	s.mu.Unlock()

	s.logger.Info("stopping audit service", zap.Int("pending_events", len(s.eventChan)))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped gracefully")
		s.cancel()
		return nil
	case <-time.After(timeout):
		s.cancel()
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// RunStarted opens an in-memory record for the run
func (s *AuditService) RunStarted(ctx context.Context, task routing.Task, plan []routing.Override) {
	run := models.NewPipelineRun(runID(task.ID), task.Topic, len(plan))
	run.RequestID = chimw.GetReqID(ctx)

	s.inflightMu.Lock()
	s.inflight[task.ID] = &RunEvent{Run: run}
	s.inflightMu.Unlock()
}

// AttemptFinished appends the attempt to the run's record. Attempts of a run
// that was never started are dropped.
func (s *AuditService) AttemptFinished(_ context.Context, rec routing.AttemptRecord) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()

	event, ok := s.inflight[rec.Task.ID]
	if !ok {
		s.logger.Debug("attempt for unknown run dropped",
			zap.String("task_id", rec.Task.ID),
			zap.Int("attempt", rec.Index))
		return
	}

	attempt := models.NewRunAttempt(event.Run.ID, rec.Index, rec.Identity.Provider, rec.Identity.Model, rec.Identity.BaseURL).
		WithOverrides(rec.Override).
		WithLatency(rec.Latency)
	if !rec.Succeeded() {
		attempt.WithError(redact.Error(rec.Err))
	}
	event.Attempts = append(event.Attempts, attempt)
}

// RunFinished closes the run's record and queues it for persistence.
// Recording never fails the run: a full buffer drops the event.
func (s *AuditService) RunFinished(ctx context.Context, task routing.Task, report *routing.RunReport, err error) {
	s.inflightMu.Lock()
	event, ok := s.inflight[task.ID]
	delete(s.inflight, task.ID)
	s.inflightMu.Unlock()

	if !ok {
		event = &RunEvent{Run: models.NewPipelineRun(runID(task.ID), task.Topic, 0)}
		event.Run.RequestID = chimw.GetReqID(ctx)
	}

	switch {
	case err != nil:
		event.Run.MarkFailed(redact.Error(err))
	case report != nil:
		event.Run.MarkSucceeded(report.Attempt, report.Output)
	default:
		event.Run.MarkFailed("run finished without a report")
	}

	if qErr := s.LogEvent(event); qErr != nil {
		s.logger.Warn("pipeline run not recorded",
			zap.String("run_id", event.Run.ID.String()),
			zap.Error(qErr))
	}
}

// LogEvent queues a finished run (non-blocking)
func (s *AuditService) LogEvent(event *RunEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.stopped {
		return fmt.Errorf("audit service not started")
	}

	select {
	case s.eventChan <- event:
		return nil
	default:
		return fmt.Errorf("audit event buffer full")
	}
}

// worker processes events from the channel
func (s *AuditService) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for event := range s.eventChan {
		if err := s.processEvent(event); err != nil {
			s.logger.Error("failed to persist pipeline run",
				zap.Int("worker_id", id),
				zap.String("run_id", event.Run.ID.String()),
				zap.Error(err))
		}
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

// processEvent writes a run and its attempts in one transaction
func (s *AuditService) processEvent(event *RunEvent) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	return s.txManager.InTransaction(ctx, func(ctx context.Context, _ repositories.Transaction) error {
		if err := s.runs.CreateRun(ctx, event.Run); err != nil {
			return err
		}
		for _, attempt := range event.Attempts {
			if err := s.runs.InsertAttempt(ctx, attempt); err != nil {
				return err
			}
		}
		return s.runs.FinishRun(ctx, event.Run)
	})
}

// GetStats returns statistics about the audit service
func (s *AuditService) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inflightMu.Lock()
	inflight := len(s.inflight)
	s.inflightMu.Unlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.eventChan),
		InflightRuns:  inflight,
		WorkerCount:   s.workerCount,
		Started:       s.started && !s.stopped,
	}
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize    int
	PendingEvents int
	InflightRuns  int
	WorkerCount   int
	Started       bool
}

// runID maps a task ID onto a run ID. Non-UUID task IDs get a stable
// name-based UUID.
func runID(taskID string) uuid.UUID {
	if id, err := uuid.Parse(taskID); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(taskID))
}
