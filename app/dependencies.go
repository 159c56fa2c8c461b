package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/upb/workshop-crew/auth"
	"github.com/upb/workshop-crew/config"
	"github.com/upb/workshop-crew/middleware"
	"github.com/upb/workshop-crew/repositories"
	"github.com/upb/workshop-crew/repositories/postgres"
	"github.com/upb/workshop-crew/services/audit"
	"github.com/upb/workshop-crew/services/crew"
	"github.com/upb/workshop-crew/services/providers"
	"github.com/upb/workshop-crew/services/providers/openai"
	"github.com/upb/workshop-crew/services/routing"
	"go.uber.org/zap"
)

// Version is the build version reported by the status endpoint
var Version = "0.1.0"

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger

	// Persistence, nil when no database is configured
	RepoFactory *postgres.RepositoryFactory
	DB          *postgres.DB
	Runs        repositories.RunRepository
	TxManager   repositories.TransactionManager
	Audit       *audit.AuditService

	// Pipeline
	Providers *providers.Registry
	Crew      *crew.Executor
	Routing   *routing.RoutingService

	// Auth, nil when no JWT secret is configured
	AuthMiddleware *middleware.AuthMiddleware
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if cfg.PersistenceEnabled() {
		if err := deps.initDatabase(ctx, cfg); err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
	} else {
		logger.Warn("no database configured, run history disabled")
	}

	if err := deps.initProviders(); err != nil {
		deps.closeDatabase()
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	if err := deps.initPipeline(cfg); err != nil {
		deps.closeDatabase()
		return nil, fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	if err := deps.initAuth(cfg); err != nil {
		deps.closeDatabase()
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	logger.Info("all dependencies initialized successfully",
		zap.Bool("persistence", deps.DB != nil),
		zap.Bool("auth", deps.AuthMiddleware != nil),
		zap.Int("plan_size", len(deps.Routing.Plan())))
	return deps, nil
}

// initDatabase connects to PostgreSQL and starts the run recorder
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := postgres.NewRepositoryFactory(ctx, cfg.Database, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()

	repos := factory.NewRepositories()
	d.Runs = repos.Runs
	d.TxManager = factory.GetTransactionManager()

	d.Audit = audit.NewAuditService(d.Runs, d.TxManager, d.Logger, audit.DefaultConfig())
	if err := d.Audit.Start(); err != nil {
		_ = factory.Close()
		return fmt.Errorf("failed to start audit service: %w", err)
	}

	d.Logger.Info("repositories initialized")
	return nil
}

// initProviders registers the OpenAI compatible clients
func (d *Dependencies) initProviders() error {
	registry := providers.NewRegistry()
	if err := openai.Register(registry); err != nil {
		return err
	}

	d.Providers = registry
	d.Logger.Info("providers registered", zap.Strings("providers", registry.ListProviders()))
	return nil
}

// initPipeline wires the crew executor into the routing service
func (d *Dependencies) initPipeline(cfg *config.Config) error {
	if cfg.LLM.APIKeys()[routing.ProviderOpenRouter] == "" {
		d.Logger.Warn("no openrouter api key configured")
	}

	d.Crew = crew.NewExecutor(d.Providers, crew.Config{
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
		APIKeys:     cfg.LLM.APIKeys(),
		SiteURL:     cfg.LLM.SiteURL,
		AppName:     cfg.LLM.AppName,
	}, d.Logger)

	d.Routing = routing.NewRoutingService(cfg.LLM.Snapshot(), d.Crew, d.Logger)
	if d.Audit != nil {
		d.Routing.WithRecorder(d.Audit)
	}

	return checkPlanProviders(d.Providers, d.Routing.Snapshot(), d.Routing.Plan())
}

// checkPlanProviders fails when an attempt targets a provider nothing can build
func checkPlanProviders(registry *providers.Registry, snap routing.Snapshot, plan []routing.Override) error {
	for i, override := range plan {
		if name := override.Resolve(snap).Provider; !registry.Has(name) {
			return fmt.Errorf("attempt %d: %w: %s", i+1, providers.ErrProviderNotFound, name)
		}
	}
	return nil
}

// initAuth enables bearer auth when a JWT secret is configured
func (d *Dependencies) initAuth(cfg *config.Config) error {
	if !cfg.Auth.Enabled() {
		d.Logger.Warn("jwt secret not configured, run endpoints are unauthenticated")
		return nil
	}

	validator, err := auth.NewHMACValidator(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	if err != nil {
		return err
	}

	// Adapter converts auth.Claims to middleware.Claims for AuthMiddleware
	d.AuthMiddleware = middleware.NewAuthMiddleware(&tokenValidatorAdapter{validator: validator}, d.Logger)
	d.Logger.Info("auth middleware initialized")
	return nil
}

// tokenValidatorAdapter adapts auth.HMACValidator to middleware.TokenValidator
type tokenValidatorAdapter struct {
	validator *auth.HMACValidator
}

func (a *tokenValidatorAdapter) ValidateToken(ctx context.Context, token string) (*middleware.Claims, error) {
	parsed, err := a.validator.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}

	claims := &middleware.Claims{
		Sub:   parsed.Subject,
		Email: parsed.Email,
		Roles: parsed.Roles,
		Iss:   parsed.Issuer,
	}
	if parsed.ExpiresAt != nil {
		claims.Exp = parsed.ExpiresAt.Unix()
	}
	if parsed.IssuedAt != nil {
		claims.Iat = parsed.IssuedAt.Unix()
	}
	return claims, nil
}

// HealthChecker returns the database health check, or nil without a database
func (d *Dependencies) HealthChecker() interface {
	HealthCheck(ctx context.Context) error
} {
	if d.DB == nil {
		return nil
	}
	return d.DB
}

// RunStore returns the run repository, or nil without a database
func (d *Dependencies) RunStore() repositories.RunRepository {
	if d.Runs == nil {
		return nil
	}
	return d.Runs
}

func (d *Dependencies) closeDatabase() {
	if d.Audit != nil {
		_ = d.Audit.Stop(time.Second)
		d.Audit = nil
	}
	if d.RepoFactory != nil {
		_ = d.RepoFactory.Close()
		d.RepoFactory = nil
		d.DB = nil
	}
}

// Close gracefully shuts down all dependencies. Pending run records are
// flushed before the database is closed.
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Audit != nil {
		timeout := 10 * time.Second
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if err := d.Audit.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
		d.Audit = nil
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
		d.RepoFactory = nil
		d.DB = nil
	}

	_ = d.Logger.Sync()

	return errors.Join(errs...)
}
