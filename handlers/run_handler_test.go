package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/workshop-crew/models"
	"github.com/upb/workshop-crew/repositories"
	"github.com/upb/workshop-crew/services/routing"
	"github.com/upb/workshop-crew/utils"
	"go.uber.org/zap"
)

// MockPipelineRunner is a mock implementation of PipelineRunner
type MockPipelineRunner struct {
	mock.Mock
}

func (m *MockPipelineRunner) Execute(ctx context.Context, task routing.Task) (*routing.RunReport, error) {
	args := m.Called(ctx, task)
	if report := args.Get(0); report != nil {
		return report.(*routing.RunReport), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockRunStore is a mock implementation of RunStore
type MockRunStore struct {
	mock.Mock
}

func (m *MockRunStore) GetRun(ctx context.Context, id uuid.UUID) (*models.PipelineRun, error) {
	args := m.Called(ctx, id)
	if run := args.Get(0); run != nil {
		return run.(*models.PipelineRun), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRunStore) ListRuns(ctx context.Context, limit, offset int) ([]*models.PipelineRun, error) {
	args := m.Called(ctx, limit, offset)
	if runs := args.Get(0); runs != nil {
		return runs.([]*models.PipelineRun), args.Error(1)
	}
	return nil, args.Error(1)
}

func newRunRouter(h *RunHandler) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/v1/runs", h.HandleCreateRun)
	r.Get("/api/v1/runs", h.HandleListRuns)
	r.Get("/api/v1/runs/{id}", h.HandleGetRun)
	return r
}

func postRun(t *testing.T, router http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleCreateRun_Success(t *testing.T) {
	runner := new(MockPipelineRunner)
	runner.On("Execute", mock.Anything, mock.MatchedBy(func(task routing.Task) bool {
		_, err := uuid.Parse(task.ID)
		return err == nil && task.Topic == "agentic AI"
	})).Return(&routing.RunReport{Output: "final article", Attempt: 3, Total: 8}, nil)

	router := newRunRouter(NewRunHandler(runner, nil, time.Minute, zap.NewNop()))

	w := postRun(t, router, `{"topic":"agentic AI"}`)

	require.Equal(t, http.StatusOK, w.Code)
	var response struct {
		Data RunResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "final article", response.Data.Output)
	assert.Equal(t, 3, response.Data.Attempt)
	assert.Equal(t, 8, response.Data.Attempts)
	_, err := uuid.Parse(response.Data.RunID)
	assert.NoError(t, err)

	runner.AssertExpectations(t)
}

func TestHandleCreateRun_AppliesTimeout(t *testing.T) {
	runner := new(MockPipelineRunner)
	runner.On("Execute", mock.MatchedBy(func(ctx context.Context) bool {
		deadline, ok := ctx.Deadline()
		return ok && time.Until(deadline) <= time.Minute
	}), mock.Anything).Return(&routing.RunReport{Output: "ok", Attempt: 1, Total: 1}, nil)

	router := newRunRouter(NewRunHandler(runner, nil, time.Minute, zap.NewNop()))

	w := postRun(t, router, `{"topic":"go"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	runner.AssertExpectations(t)
}

func TestHandleCreateRun_BadRequests(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{name: "empty body", body: ``, wantMsg: "request body is empty"},
		{name: "malformed json", body: `{"topic":`, wantMsg: "invalid request body"},
		{name: "unknown field", body: `{"topic":"go","model":"gpt"}`, wantMsg: "unknown field"},
		{name: "missing topic", body: `{}`, wantMsg: "Validation failed"},
		{name: "topic too long", body: fmt.Sprintf(`{"topic":%q}`, strings.Repeat("x", 2001)), wantMsg: "Validation failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := new(MockPipelineRunner)
			router := newRunRouter(NewRunHandler(runner, nil, 0, zap.NewNop()))

			w := postRun(t, router, tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantMsg)
			runner.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
		})
	}
}

func TestHandleCreateRun_Exhausted(t *testing.T) {
	runner := new(MockPipelineRunner)
	last := errors.New("openai: invalid api key sk-proj-0123456789abcdef0123")
	runner.On("Execute", mock.Anything, mock.Anything).Return(nil, &routing.ExhaustedError{Attempts: 8, Last: last})

	router := newRunRouter(NewRunHandler(runner, nil, 0, zap.NewNop()))

	w := postRun(t, router, `{"topic":"go"}`)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.NotContains(t, w.Body.String(), "sk-proj-")

	var response utils.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "bad_gateway", response.Error)
	assert.Equal(t, float64(8), response.Details["attempts"])
	assert.Equal(t, "openai: invalid api key [redacted]", response.Details["last_error"])
}

func TestHandleCreateRun_Timeout(t *testing.T) {
	runner := new(MockPipelineRunner)
	runner.On("Execute", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("researcher task: %w", context.DeadlineExceeded))

	router := newRunRouter(NewRunHandler(runner, nil, time.Second, zap.NewNop()))

	w := postRun(t, router, `{"topic":"go"}`)

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

func TestHandleCreateRun_CascadeHitsDeadline(t *testing.T) {
	executor := routing.ExecutorFunc(func(ctx context.Context, _ routing.Task, _ routing.Override, _ routing.Snapshot) (routing.Result, error) {
		<-ctx.Done()
		return routing.Result{}, ctx.Err()
	})
	runner := routing.NewRoutingService(routing.Snapshot{BaseURL: "A", Model: "m"}, executor, zap.NewNop())

	router := newRunRouter(NewRunHandler(runner, nil, 20*time.Millisecond, zap.NewNop()))

	w := postRun(t, router, `{"topic":"go"}`)

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)

	var response utils.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "gateway_timeout", response.Error)
	assert.Equal(t, float64(2), response.Details["attempts"])
}

func TestHandleGetRun(t *testing.T) {
	id := uuid.New()

	t.Run("returns run with attempts", func(t *testing.T) {
		store := new(MockRunStore)
		run := models.NewPipelineRun(id, "go", 8).MarkSucceeded(2, "final")
		run.Attempts = []*models.RunAttempt{
			models.NewRunAttempt(id, 1, "openrouter", "m1", "A").WithError("boom"),
			models.NewRunAttempt(id, 2, "openrouter", "m1", "B").WithOverrides(map[string]string{"base_url": "B"}),
		}
		store.On("GetRun", mock.Anything, id).Return(run, nil)

		router := newRunRouter(NewRunHandler(new(MockPipelineRunner), store, 0, zap.NewNop()))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+id.String(), nil))

		require.Equal(t, http.StatusOK, w.Code)
		data := decodeData(t, w)
		assert.Equal(t, id.String(), data["id"])
		assert.Equal(t, "succeeded", data["status"])
		assert.Equal(t, float64(2), data["winning_attempt"])
		attempts := data["attempts"].([]interface{})
		require.Len(t, attempts, 2)
		assert.Equal(t, "failed", attempts[0].(map[string]interface{})["status"])
		assert.Equal(t, map[string]interface{}{"base_url": "B"}, attempts[1].(map[string]interface{})["overrides"])
	})

	t.Run("unknown run is 404", func(t *testing.T) {
		store := new(MockRunStore)
		store.On("GetRun", mock.Anything, id).Return(nil, fmt.Errorf("%w: pipeline run %s", repositories.ErrNotFound, id))

		router := newRunRouter(NewRunHandler(new(MockPipelineRunner), store, 0, zap.NewNop()))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+id.String(), nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("malformed id is 400", func(t *testing.T) {
		store := new(MockRunStore)
		router := newRunRouter(NewRunHandler(new(MockPipelineRunner), store, 0, zap.NewNop()))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs/not-a-uuid", nil))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		store.AssertNotCalled(t, "GetRun", mock.Anything, mock.Anything)
	})

	t.Run("persistence disabled is 503", func(t *testing.T) {
		router := newRunRouter(NewRunHandler(new(MockPipelineRunner), nil, 0, zap.NewNop()))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+id.String(), nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestHandleListRuns(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		store := new(MockRunStore)
		store.On("ListRuns", mock.Anything, 20, 0).Return([]*models.PipelineRun{
			models.NewPipelineRun(uuid.New(), "go", 8),
		}, nil)

		router := newRunRouter(NewRunHandler(new(MockPipelineRunner), store, 0, zap.NewNop()))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil))

		require.Equal(t, http.StatusOK, w.Code)
		var response struct {
			Data []map[string]interface{} `json:"data"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		require.Len(t, response.Data, 1)
		assert.Equal(t, "running", response.Data[0]["status"])
		store.AssertExpectations(t)
	})

	t.Run("explicit paging and empty result", func(t *testing.T) {
		store := new(MockRunStore)
		store.On("ListRuns", mock.Anything, 5, 10).Return(nil, nil)

		router := newRunRouter(NewRunHandler(new(MockPipelineRunner), store, 0, zap.NewNop()))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs?limit=5&offset=10", nil))

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"data":[]}`, w.Body.String())
	})

	t.Run("invalid paging", func(t *testing.T) {
		for _, query := range []string{"limit=0", "limit=101", "limit=abc", "offset=-1"} {
			store := new(MockRunStore)
			router := newRunRouter(NewRunHandler(new(MockPipelineRunner), store, 0, zap.NewNop()))

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs?"+query, nil))

			assert.Equal(t, http.StatusBadRequest, w.Code, query)
			store.AssertNotCalled(t, "ListRuns", mock.Anything, mock.Anything, mock.Anything)
		}
	})

	t.Run("persistence disabled is 503", func(t *testing.T) {
		router := newRunRouter(NewRunHandler(new(MockPipelineRunner), nil, 0, zap.NewNop()))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}
