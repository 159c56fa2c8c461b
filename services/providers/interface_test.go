package providers

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockProvider is a test implementation of the Provider interface
type MockProvider struct {
	name   string
	config ProviderConfig
}

func (m *MockProvider) Name() string {
	return m.name
}

func (m *MockProvider) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	return &ChatResponse{
		ID:       "mock-response-123",
		Model:    req.Model,
		Provider: m.name,
		Choices: []Choice{
			{Message: Message{Role: "assistant", Content: "mock"}, FinishReason: "stop"},
		},
	}, nil
}

func TestProviderError(t *testing.T) {
	cause := errors.New("connection reset")

	tests := []struct {
		name      string
		err       *ProviderError
		wantMsg   string
		retryable bool
	}{
		{
			name:      "with cause",
			err:       NewProviderError("openrouter", "HTTP_ERROR", "HTTP request failed", 0, true, cause),
			wantMsg:   "openrouter: HTTP request failed: connection reset",
			retryable: true,
		},
		{
			name:      "without cause",
			err:       NewProviderError("openai", "invalid_request_error", "bad model", 400, false, nil),
			wantMsg:   "openai: bad model",
			retryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}

func TestProviderError_Unwrap(t *testing.T) {
	cause := context.DeadlineExceeded
	err := fmt.Errorf("attempt failed: %w", NewProviderError("openai", "HTTP_ERROR", "HTTP request failed", 0, true, cause))

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, IsRetryable(err), "retryable survives wrapping")
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestChatResponse_Content(t *testing.T) {
	var nilResp *ChatResponse
	assert.Equal(t, "", nilResp.Content())
	assert.Equal(t, "", (&ChatResponse{}).Content())

	resp := &ChatResponse{Choices: []Choice{
		{Message: Message{Content: "first"}},
		{Message: Message{Content: "second"}},
	}}
	assert.Equal(t, "first", resp.Content())
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	builder := func(cfg ProviderConfig) (Provider, error) {
		return &MockProvider{name: "mock", config: cfg}, nil
	}

	require.NoError(t, r.Register("mock", builder))
	assert.ErrorIs(t, r.Register("mock", builder), ErrProviderAlreadyRegistered)
	assert.Error(t, r.Register("", builder))
	assert.Error(t, r.Register("nil", nil))

	p, err := r.Build("mock", ProviderConfig{BaseURL: "http://example.test"})
	require.NoError(t, err)
	assert.Equal(t, "mock", p.Name())
	assert.Equal(t, "http://example.test", p.(*MockProvider).config.BaseURL)

	_, err = r.Build("missing", ProviderConfig{})
	assert.ErrorIs(t, err, ErrProviderNotFound)

	assert.True(t, r.Has("mock"))
	assert.False(t, r.Has("missing"))
}

func TestRegistry_BuildError(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("broken", func(ProviderConfig) (Provider, error) {
		return nil, errors.New("no api key")
	}))

	_, err := r.Build("broken", ProviderConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to build provider broken")
	assert.Contains(t, err.Error(), "no api key")
}

func TestRegistry_ListProviders(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"openrouter", "anthropic", "openai"} {
		n := name
		require.NoError(t, r.Register(n, func(ProviderConfig) (Provider, error) {
			return &MockProvider{name: n}, nil
		}))
	}

	assert.Equal(t, []string{"anthropic", "openai", "openrouter"}, r.ListProviders())
}

func TestDefaultProviderConfig(t *testing.T) {
	cfg := DefaultProviderConfig()
	assert.Positive(t, cfg.Timeout)
	assert.NotNil(t, cfg.DefaultHeaders)
}
