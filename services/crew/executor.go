package crew

import (
	"context"
	"fmt"
	"time"

	"github.com/upb/workshop-crew/services/providers"
	"github.com/upb/workshop-crew/services/routing"
	"go.uber.org/zap"
)

// defaultProviderLabel is logged when an attempt does not switch provider
const defaultProviderLabel = "openrouter-liteLLM"

// Config holds the completion parameters and credentials of the crew
type Config struct {
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration

	// APIKeys maps provider names to their key
	APIKeys map[string]string

	SiteURL string
	AppName string
}

// TaskOutput is the result of one role
type TaskOutput struct {
	Role    string          `json:"role"`
	Output  string          `json:"output"`
	Model   string          `json:"model"`
	Usage   providers.Usage `json:"usage"`
	Latency time.Duration   `json:"latency"`
}

// CrewOutput is the whole result of one kickoff
type CrewOutput struct {
	Topic string       `json:"topic"`
	Tasks []TaskOutput `json:"tasks"`
	Final string       `json:"final"`
}

// String returns the final output
func (o *CrewOutput) String() string {
	if o == nil {
		return ""
	}
	return o.Final
}

var _ routing.Executor = (*Executor)(nil)

// Executor runs the crew against the backend of one attempt.
// It implements routing.Executor.
type Executor struct {
	registry *providers.Registry
	roles    []Role
	config   Config
	logger   *zap.Logger
}

// NewExecutor creates a crew executor with the default roles
func NewExecutor(registry *providers.Registry, config Config, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		registry: registry,
		roles:    DefaultRoles(),
		config:   config,
		logger:   logger,
	}
}

// WithRoles replaces the crew roles
func (e *Executor) WithRoles(roles []Role) *Executor {
	e.roles = roles
	return e
}

// Roles returns the names of the crew roles in execution order
func (e *Executor) Roles() []string {
	names := make([]string, len(e.roles))
	for i, r := range e.roles {
		names[i] = r.Name
	}
	return names
}

// Execute kicks off the crew for task.Topic using the backend the override
// resolves to. Any failing role fails the attempt.
func (e *Executor) Execute(ctx context.Context, task routing.Task, override routing.Override, snap routing.Snapshot) (routing.Result, error) {
	identity := override.Resolve(snap)

	label := override.Provider
	if label == "" {
		label = defaultProviderLabel
	}

	provider, err := e.registry.Build(identity.Provider, e.providerConfig(identity, override, snap))
	if err != nil {
		return routing.Result{}, err
	}

	e.logger.Info("crew kickoff started",
		zap.String("run_id", task.ID),
		zap.String("topic", task.Topic),
		zap.String("provider", label),
		zap.String("model", identity.Model),
		zap.String("base_url", identity.BaseURL),
		zap.Strings("roles", e.Roles()))

	out := &CrewOutput{
		Topic: task.Topic,
		Tasks: make([]TaskOutput, 0, len(e.roles)),
	}

	for _, role := range e.roles {
		if err := ctx.Err(); err != nil {
			return routing.Result{}, err
		}

		req := &providers.ChatRequest{
			Model: identity.Model,
			Messages: []providers.Message{
				{Role: "system", Content: role.SystemPrompt},
				{Role: "user", Content: role.prompt(task.Topic, out.Tasks)},
			},
			MaxTokens:    e.config.MaxTokens,
			Temperature:  e.config.Temperature,
			Metadata:     map[string]string{"run_id": task.ID, "role": role.Name},
			ExtraHeaders: override.ExtraHeaders,
		}

		resp, err := provider.ChatCompletion(ctx, req)
		if err != nil {
			e.logger.Warn("crew task failed",
				zap.String("run_id", task.ID),
				zap.String("task", role.Name),
				zap.Bool("retryable", providers.IsRetryable(err)),
				zap.Error(err))
			return routing.Result{}, fmt.Errorf("%s task: %w", role.Name, err)
		}

		taskOut := TaskOutput{
			Role:    role.Name,
			Output:  resp.Content(),
			Model:   resp.Model,
			Usage:   resp.Usage,
			Latency: resp.Latency,
		}
		out.Tasks = append(out.Tasks, taskOut)

		e.logger.Info("task output",
			zap.String("run_id", task.ID),
			zap.String("task", role.Name),
			zap.Int("total_tokens", taskOut.Usage.TotalTokens),
			zap.String("output", taskOut.Output))
	}

	var writerOutput any
	for _, t := range out.Tasks {
		if t.Role == writerRole {
			writerOutput = t.Output
		}
	}

	if n := len(out.Tasks); n > 0 {
		out.Final = out.Tasks[n-1].Output
	}

	return routing.StructuredResult(out.Final, writerOutput, out), nil
}

func (e *Executor) providerConfig(identity routing.IdentityKey, override routing.Override, snap routing.Snapshot) providers.ProviderConfig {
	cfg := providers.ProviderConfig{
		APIKey:         override.APIKey,
		BaseURL:        identity.BaseURL,
		Timeout:        e.config.Timeout,
		DefaultHeaders: override.DefaultHeaders,
		SiteURL:        e.config.SiteURL,
		AppName:        e.config.AppName,
	}
	if cfg.APIKey == "" {
		cfg.APIKey = e.config.APIKeys[identity.Provider]
	}
	// the baseline backend still gets the configured headers
	if len(cfg.DefaultHeaders) == 0 && identity.Provider == routing.ProviderOpenRouter {
		cfg.DefaultHeaders = snap.Headers
	}
	return cfg
}
