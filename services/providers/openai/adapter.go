package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/upb/workshop-crew/services/providers"
)

const (
	// ProviderOpenAI talks to api.openai.com
	ProviderOpenAI = "openai"

	// ProviderOpenRouter talks to openrouter.ai with its attribution headers
	ProviderOpenRouter = "openrouter"

	defaultOpenAIBaseURL     = "https://api.openai.com/v1"
	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

	// maxErrorBody caps how much of an error response is kept
	maxErrorBody = 4096
)

// Adapter speaks the OpenAI chat-completions protocol against any
// compatible base URL. It never retries; the caller owns fallback.
type Adapter struct {
	name       string
	config     providers.ProviderConfig
	httpClient *http.Client
}

// NewAdapter creates an adapter reporting itself as name
func NewAdapter(name string, config providers.ProviderConfig) *Adapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL(name)
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	if config.Timeout == 0 {
		config.Timeout = providers.DefaultProviderConfig().Timeout
	}

	return &Adapter{
		name:   name,
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Register adds the openai and openrouter builders to a registry
func Register(r *providers.Registry) error {
	for _, name := range []string{ProviderOpenRouter, ProviderOpenAI} {
		n := name
		err := r.Register(n, func(config providers.ProviderConfig) (providers.Provider, error) {
			return NewAdapter(n, config), nil
		})
		if err != nil {
			return fmt.Errorf("register %s: %w", n, err)
		}
	}
	return nil
}

func defaultBaseURL(name string) string {
	if name == ProviderOpenRouter {
		return defaultOpenRouterBaseURL
	}
	return defaultOpenAIBaseURL
}

// Name returns the provider name
func (a *Adapter) Name() string {
	return a.name
}

// BaseURL returns the endpoint root requests are sent to
func (a *Adapter) BaseURL() string {
	return a.config.BaseURL
}

// ChatCompletion performs a single chat completion request
func (a *Adapter) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	startTime := time.Now()

	if req.Model == "" {
		return nil, providers.NewProviderError(a.Name(), "INVALID_MODEL", "model is required", 0, false, nil)
	}

	reqBody, err := json.Marshal(a.buildOpenAIRequest(req))
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "MARSHAL_ERROR", "Failed to marshal request", 0, false, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL()+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "REQUEST_ERROR", "Failed to create request", 0, false, err)
	}
	a.setHeaders(httpReq, req.ExtraHeaders)

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "HTTP_ERROR", "HTTP request failed", 0, true, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "READ_ERROR", "Failed to read response", httpResp.StatusCode, true, err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, a.handleErrorResponse(httpResp.StatusCode, respBody)
	}

	var openaiResp OpenAIChatResponse
	if err := json.Unmarshal(respBody, &openaiResp); err != nil {
		return nil, providers.NewProviderError(a.Name(), "UNMARSHAL_ERROR", "Failed to unmarshal response", httpResp.StatusCode, false, err)
	}

	// openrouter reports some upstream failures inside a 200
	if openaiResp.Error != nil {
		return nil, providers.NewProviderError(a.Name(), errorCode(openaiResp.Error), openaiResp.Error.Message, httpResp.StatusCode, true, nil)
	}

	if len(openaiResp.Choices) == 0 {
		return nil, providers.NewProviderError(a.Name(), "EMPTY_RESPONSE", "response contained no choices", httpResp.StatusCode, true, nil)
	}

	return a.convertToUnifiedResponse(&openaiResp, req, time.Since(startTime)), nil
}

func (a *Adapter) setHeaders(httpReq *http.Request, extra map[string]string) {
	httpReq.Header.Set("Content-Type", "application/json")
	if a.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	}

	if a.name == ProviderOpenRouter {
		if a.config.SiteURL != "" {
			httpReq.Header.Set("HTTP-Referer", a.config.SiteURL)
		}
		if a.config.AppName != "" {
			httpReq.Header.Set("X-Title", a.config.AppName)
		}
	}

	for k, v := range a.config.DefaultHeaders {
		httpReq.Header.Set(k, v)
	}
	for k, v := range extra {
		httpReq.Header.Set(k, v)
	}
}

// buildOpenAIRequest converts unified request to OpenAI format
func (a *Adapter) buildOpenAIRequest(req *providers.ChatRequest) *OpenAIChatRequest {
	openaiReq := &OpenAIChatRequest{
		Model:    req.Model,
		Messages: make([]OpenAIMessage, len(req.Messages)),
	}

	for i, msg := range req.Messages {
		openaiReq.Messages[i] = OpenAIMessage{
			Role:    msg.Role,
			Content: msg.Content,
			Name:    msg.Name,
		}
	}

	if req.MaxTokens > 0 {
		openaiReq.MaxTokens = &req.MaxTokens
	}
	if req.Temperature > 0 {
		openaiReq.Temperature = &req.Temperature
	}
	if len(req.Stop) > 0 {
		openaiReq.Stop = req.Stop
	}
	if req.User != "" {
		openaiReq.User = &req.User
	}

	return openaiReq
}

// convertToUnifiedResponse converts OpenAI response to unified format
func (a *Adapter) convertToUnifiedResponse(openaiResp *OpenAIChatResponse, req *providers.ChatRequest, latency time.Duration) *providers.ChatResponse {
	resp := &providers.ChatResponse{
		ID:       openaiResp.ID,
		Model:    openaiResp.Model,
		Provider: a.Name(),
		Choices:  make([]providers.Choice, len(openaiResp.Choices)),
		Usage: providers.Usage{
			PromptTokens:     openaiResp.Usage.PromptTokens,
			CompletionTokens: openaiResp.Usage.CompletionTokens,
			TotalTokens:      openaiResp.Usage.TotalTokens,
		},
		Latency:  latency,
		Created:  time.Unix(openaiResp.Created, 0),
		Metadata: req.Metadata,
	}

	for i, choice := range openaiResp.Choices {
		resp.Choices[i] = providers.Choice{
			Index: choice.Index,
			Message: providers.Message{
				Role:    choice.Message.Role,
				Content: choice.Message.Content,
				Name:    choice.Message.Name,
			},
			FinishReason: choice.FinishReason,
		}
	}

	return resp
}

// handleErrorResponse maps a non-2xx response to a ProviderError
func (a *Adapter) handleErrorResponse(statusCode int, body []byte) error {
	retryable := statusCode >= 500 || statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusRequestTimeout

	var errResp OpenAIErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == nil {
		msg := truncate(strings.TrimSpace(string(body)), maxErrorBody)
		if msg == "" {
			msg = http.StatusText(statusCode)
		}
		return providers.NewProviderError(a.Name(), "UNKNOWN_ERROR", msg, statusCode, retryable, nil)
	}

	return providers.NewProviderError(
		a.Name(),
		errorCode(errResp.Error),
		errResp.Error.Message,
		statusCode,
		retryable,
		errors.New(http.StatusText(statusCode)),
	)
}

// truncate cuts s to at most n bytes without splitting a rune
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func errorCode(e *OpenAIError) string {
	if e.Type != "" {
		return e.Type
	}
	if len(e.Code) > 0 {
		return strings.Trim(string(e.Code), `"`)
	}
	return "UNKNOWN_ERROR"
}

// OpenAI-specific request/response types

type OpenAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []OpenAIMessage `json:"messages"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	Stop        []string        `json:"stop,omitempty"`
	User        *string         `json:"user,omitempty"`
}

type OpenAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

type OpenAIChatResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []OpenAIChoice `json:"choices"`
	Usage   OpenAIUsage    `json:"usage"`
	Error   *OpenAIError   `json:"error,omitempty"`
}

type OpenAIChoice struct {
	Index        int           `json:"index"`
	Message      OpenAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type OpenAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type OpenAIErrorResponse struct {
	Error *OpenAIError `json:"error"`
}

// OpenAIError carries the error object. openrouter sends a numeric code,
// openai a string one, so Code stays raw.
type OpenAIError struct {
	Message string          `json:"message"`
	Type    string          `json:"type"`
	Code    json.RawMessage `json:"code,omitempty"`
}
