package handlers

import (
	"net/http"

	"github.com/upb/workshop-crew/services/routing"
	"github.com/upb/workshop-crew/utils"
)

// PlanSource exposes the configured attempt plan
type PlanSource interface {
	Snapshot() routing.Snapshot
	Plan() []routing.Override
}

// PlannedAttempt is one entry of the sanitized attempt plan
type PlannedAttempt struct {
	Attempt   int                       `json:"attempt"`
	Provider  string                    `json:"provider"`
	Model     string                    `json:"model"`
	BaseURL   string                    `json:"base_url"`
	Overrides routing.SanitizedOverride `json:"overrides"`
}

// StatusResponse is the body of GET /api/v1/status
type StatusResponse struct {
	Version     string           `json:"version"`
	Environment string           `json:"environment"`
	Persistence bool             `json:"persistence"`
	PlanSize    int              `json:"plan_size"`
	Plan        []PlannedAttempt `json:"plan"`
}

// StatusHandler reports build and routing information
type StatusHandler struct {
	version     string
	environment string
	persistence bool
	plans       PlanSource
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(version, environment string, persistence bool, plans PlanSource) *StatusHandler {
	return &StatusHandler{
		version:     version,
		environment: environment,
		persistence: persistence,
		plans:       plans,
	}
}

// HandleStatus handles GET /api/v1/status
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	snap := h.plans.Snapshot()
	plan := h.plans.Plan()

	attempts := make([]PlannedAttempt, 0, len(plan))
	for i, override := range plan {
		identity := override.Resolve(snap)
		attempts = append(attempts, PlannedAttempt{
			Attempt:   i + 1,
			Provider:  identity.Provider,
			Model:     identity.Model,
			BaseURL:   identity.BaseURL,
			Overrides: routing.Sanitize(override),
		})
	}

	_ = utils.WriteOK(w, StatusResponse{
		Version:     h.version,
		Environment: h.environment,
		Persistence: h.persistence,
		PlanSize:    len(attempts),
		Plan:        attempts,
	})
}
