package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/workshop-crew/auth"
	"github.com/upb/workshop-crew/config"
	"github.com/upb/workshop-crew/services/providers"
	"github.com/upb/workshop-crew/services/providers/openai"
	"github.com/upb/workshop-crew/services/routing"
	"go.uber.org/zap/zaptest"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	return &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		LLM: config.LLMConfig{
			BaseURL:          "https://openrouter.ai/api/v1",
			Model:            "openai/gpt-4o-mini",
			FallbackModels:   []string{"anthropic/claude-3-haiku"},
			OpenRouterAPIKey: "test-key",
			AppName:          "workshop-crew",
			Timeout:          10 * time.Second,
			Temperature:      0.2,
			MaxTokens:        256,
		},
		Observability: config.ObservabilityConfig{
			LogLevel:  "debug",
			LogFormat: "console",
		},
	}
}

func TestNewDependencies(t *testing.T) {
	t.Run("without database", func(t *testing.T) {
		ctx := context.Background()
		deps, err := NewDependencies(ctx, testConfig(t), zaptest.NewLogger(t))
		require.NoError(t, err)
		require.NotNil(t, deps)

		assert.Nil(t, deps.DB)
		assert.Nil(t, deps.Audit)
		assert.Nil(t, deps.HealthChecker())
		assert.Nil(t, deps.RunStore())
		assert.Nil(t, deps.AuthMiddleware)

		require.NotNil(t, deps.Providers)
		assert.True(t, deps.Providers.Has("openrouter"))
		assert.True(t, deps.Providers.Has("openai"))

		require.NotNil(t, deps.Crew)
		require.NotNil(t, deps.Routing)
		// two providers times two models
		assert.Len(t, deps.Routing.Plan(), 4)

		assert.NoError(t, deps.Close(ctx))
	})

	t.Run("auth enabled", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Auth.JWTSecret = "super-secret"

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		assert.NotNil(t, deps.AuthMiddleware)
	})

	t.Run("database connection failure", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Database = &config.DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     1,
			User:     "crew",
			Database: "crew",
			SSLMode:  "disable",
		}

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize database")
	})
}

func TestTokenValidatorAdapter(t *testing.T) {
	validator, err := auth.NewHMACValidator("super-secret", "crew")
	require.NoError(t, err)

	token, err := validator.Sign("user-1", time.Hour, "admin")
	require.NoError(t, err)

	adapter := &tokenValidatorAdapter{validator: validator}

	t.Run("maps claims", func(t *testing.T) {
		claims, err := adapter.ValidateToken(context.Background(), token)
		require.NoError(t, err)

		assert.Equal(t, "user-1", claims.Sub)
		assert.Equal(t, []string{"admin"}, claims.Roles)
		assert.Equal(t, "crew", claims.Iss)
		assert.Greater(t, claims.Exp, claims.Iat)
	})

	t.Run("rejects invalid token", func(t *testing.T) {
		claims, err := adapter.ValidateToken(context.Background(), "not-a-token")
		assert.Error(t, err)
		assert.Nil(t, claims)
	})
}

func TestCheckPlanProviders(t *testing.T) {
	snap := routing.Snapshot{BaseURL: "https://openrouter.ai/api/v1", Model: "m1"}
	plan := routing.BuildAttemptPlan(snap)

	t.Run("all providers registered", func(t *testing.T) {
		registry := providers.NewRegistry()
		require.NoError(t, openai.Register(registry))

		assert.NoError(t, checkPlanProviders(registry, snap, plan))
	})

	t.Run("missing provider", func(t *testing.T) {
		registry := providers.NewRegistry()
		require.NoError(t, registry.Register(routing.ProviderOpenRouter, func(cfg providers.ProviderConfig) (providers.Provider, error) {
			return openai.NewAdapter(routing.ProviderOpenRouter, cfg), nil
		}))

		err := checkPlanProviders(registry, snap, plan)
		require.Error(t, err)
		assert.ErrorIs(t, err, providers.ErrProviderNotFound)
		assert.Contains(t, err.Error(), "attempt 2")
		assert.Contains(t, err.Error(), "openai")
	})
}
