package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/upb/workshop-crew/middleware"
	"github.com/upb/workshop-crew/models"
	"github.com/upb/workshop-crew/services"
	"github.com/upb/workshop-crew/services/routing"
	"github.com/upb/workshop-crew/utils"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// PipelineRunner executes a pipeline run for a task
type PipelineRunner interface {
	Execute(ctx context.Context, task routing.Task) (*routing.RunReport, error)
}

// RunStore reads persisted runs
type RunStore interface {
	GetRun(ctx context.Context, id uuid.UUID) (*models.PipelineRun, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*models.PipelineRun, error)
}

// RunRequest is the body of POST /api/v1/runs
type RunRequest struct {
	Topic string `json:"topic" validate:"required,max=2000"`
}

// RunResponse is returned after a successful run
type RunResponse struct {
	RunID    string `json:"run_id"`
	Output   string `json:"output"`
	Attempt  int    `json:"attempt"`
	Attempts int    `json:"attempts"`
}

// RunHandler handles pipeline run requests
type RunHandler struct {
	runner  PipelineRunner
	store   RunStore
	timeout time.Duration
	logger  *zap.Logger
}

// NewRunHandler creates a new RunHandler. store may be nil when run
// persistence is disabled; timeout <= 0 leaves runs bounded only by the
// request context.
func NewRunHandler(runner PipelineRunner, store RunStore, timeout time.Duration, logger *zap.Logger) *RunHandler {
	return &RunHandler{
		runner:  runner,
		store:   store,
		timeout: timeout,
		logger:  logger,
	}
}

// HandleCreateRun handles POST /api/v1/runs
func (h *RunHandler) HandleCreateRun(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestIDFromContext(r.Context())

	var req RunRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	task := routing.Task{ID: uuid.NewString(), Topic: req.Topic}
	h.logger.Info("pipeline run requested",
		zap.String("request_id", requestID),
		zap.String("run_id", task.ID),
		zap.Int("topic_length", len(req.Topic)))

	report, err := h.runner.Execute(ctx, task)
	if err != nil {
		if errors.Is(r.Context().Err(), context.Canceled) {
			h.logger.Warn("client went away during pipeline run",
				zap.String("request_id", requestID),
				zap.String("run_id", task.ID))
		}
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, RunResponse{
		RunID:    task.ID,
		Output:   report.Output,
		Attempt:  report.Attempt,
		Attempts: report.Total,
	})
}

// HandleGetRun handles GET /api/v1/runs/{id}
func (h *RunHandler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		HandleServiceError(w, services.ErrPersistenceDisabled, h.logger)
		return
	}

	id, err := utils.ParseUUID(chi.URLParam(r, "id"))
	if err != nil {
		HandleServiceError(w, services.ErrInvalidRunID, h.logger)
		return
	}

	run, err := h.store.GetRun(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, run)
}

// HandleListRuns handles GET /api/v1/runs
func (h *RunHandler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		HandleServiceError(w, services.ErrPersistenceDisabled, h.logger)
		return
	}

	limit, err := queryInt(r, "limit", defaultListLimit)
	if err != nil || limit < 1 || limit > maxListLimit {
		HandleServiceError(w, services.ErrInvalidInput.WithDetail("limit", "must be between 1 and 100"), h.logger)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		HandleServiceError(w, services.ErrInvalidInput.WithDetail("offset", "must be zero or positive"), h.logger)
		return
	}

	runs, err := h.store.ListRuns(r.Context(), limit, offset)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if runs == nil {
		runs = []*models.PipelineRun{}
	}

	_ = utils.WriteOK(w, runs)
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
