// Package providers defines the chat-completion client contract the crew
// talks through, and a registry of client builders keyed by provider name.
package providers

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Provider is one chat-completion backend bound to a base URL and key
type Provider interface {
	// Name is the registry name, "openrouter" or "openai"
	Name() string

	ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}

// ChatRequest is a single completion call made by a crew role
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
	User        string    `json:"user,omitempty"`

	// Metadata is echoed on the response and never sent upstream
	Metadata map[string]string `json:"metadata,omitempty"`

	// ExtraHeaders are sent with this request only
	ExtraHeaders map[string]string `json:"-"`
}

// Message is one chat turn. Role is system, user or assistant.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

type ChatResponse struct {
	ID       string            `json:"id"`
	Model    string            `json:"model"`
	Choices  []Choice          `json:"choices"`
	Usage    Usage             `json:"usage"`
	Provider string            `json:"provider"`
	Latency  time.Duration     `json:"latency"`
	Created  time.Time         `json:"created"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Content returns the message text of the first choice
func (r *ChatResponse) Content() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ProviderConfig is what a builder needs to reach one backend. Every attempt
// of a run gets its own config.
type ProviderConfig struct {
	APIKey  string
	BaseURL string

	// Timeout bounds a single HTTP call
	Timeout time.Duration

	DefaultHeaders map[string]string

	// SiteURL and AppName identify the caller to openrouter
	SiteURL string
	AppName string
}

// DefaultProviderConfig returns the fallback timeout and an empty header set
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Timeout:        120 * time.Second,
		DefaultHeaders: make(map[string]string),
	}
}

// ProviderError is a failed completion call. Retryable marks failures where
// another backend of the attempt plan may still succeed (transport errors,
// 429 and 5xx).
type ProviderError struct {
	Provider   string
	Code       string
	Message    string
	StatusCode int
	Retryable  bool
	Cause      error
}

func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

func NewProviderError(provider, code, message string, statusCode int, retryable bool, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  retryable,
		Cause:      cause,
	}
}

// IsRetryable reports whether err wraps a retryable ProviderError
func IsRetryable(err error) bool {
	var provErr *ProviderError
	return errors.As(err, &provErr) && provErr.Retryable
}
