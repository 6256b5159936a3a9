package services

import (
	"context"

	"hound/internal/database"
	"hound/internal/entity"
)

// HealthImplementation implements the health service
type HealthImplementation struct {
	registry *entity.Registry
	db       *database.Database
}

// NewHealthService creates a new health service implementation.
// db may be nil when the journal is disabled.
func NewHealthService(registry *entity.Registry, db *database.Database) *HealthImplementation {
	return &HealthImplementation{registry: registry, db: db}
}

// Healthz implements the liveness check
func (h *HealthImplementation) Healthz(ctx context.Context) (*HealthStatus, error) {
	return &HealthStatus{Status: "ok", Entities: h.registry.Len()}, nil
}

// Readyz implements the readiness check: at least one entity and a
// reachable journal
func (h *HealthImplementation) Readyz(ctx context.Context) (*HealthStatus, error) {
	status := &HealthStatus{Status: "ok", Entities: h.registry.Len()}

	if status.Entities == 0 {
		return nil, &UnavailableError{Message: "no entities configured"}
	}

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			return nil, &UnavailableError{Message: "database unreachable: " + err.Error()}
		}
		status.Database = "ok"
	}
	return status, nil
}
