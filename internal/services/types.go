package services

import (
	"time"

	"hound/internal/camera"
	"hound/internal/entity"
	"hound/internal/pipeline"
)

// EntityInfo is the API view of an entity
type EntityInfo struct {
	EntityID          string           `json:"entity_id"`
	Name              string           `json:"name"`
	CameraEntity      string           `json:"camera_entity"`
	Category          string           `json:"category"`
	State             int              `json:"state"`
	UnitOfMeasurement string           `json:"unit_of_measurement"`
	Attributes        map[string]any   `json:"attributes"`
	LastStage         string           `json:"last_stage"`
	Events            []pipeline.Event `json:"events,omitempty"` // fired by the scan or upload
}

// CameraInfo is the API view of a snapshot source
type CameraInfo struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Device       string     `json:"device"`
	Status       string     `json:"status"`
	LastError    string     `json:"last_error,omitempty"`
	LastSnapshot *time.Time `json:"last_snapshot,omitempty"`
}

// EventInfo is the API view of a journaled event
type EventInfo struct {
	ID        string         `json:"id"`
	EntityID  string         `json:"entity_id"`
	EventType string         `json:"event_type"`
	TimeFired time.Time      `json:"time_fired"`
	Data      map[string]any `json:"data"`
}

// LoginPayload is the body of POST /api/auth/login
type LoginPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResult is returned on a successful login
type LoginResult struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

// AuthStatus reports whether auth is on and who the caller is
type AuthStatus struct {
	Enabled       bool    `json:"enabled"`
	Authenticated bool    `json:"authenticated"`
	Username      *string `json:"username,omitempty"`
}

// HealthStatus is returned by the health endpoints
type HealthStatus struct {
	Status   string `json:"status"`
	Entities int    `json:"entities"`
	Database string `json:"database,omitempty"`
}

func entityInfo(e *entity.DetectionEntity) *EntityInfo {
	return &EntityInfo{
		EntityID:          e.EntityID(),
		Name:              e.Name(),
		CameraEntity:      e.CameraEntity(),
		Category:          string(e.Category()),
		State:             e.State(),
		UnitOfMeasurement: e.UnitOfMeasurement(),
		Attributes:        e.Attributes(),
		LastStage:         e.LastStage().String(),
	}
}

func cameraInfo(c *camera.Camera) *CameraInfo {
	info := &CameraInfo{
		ID:     c.ID,
		Name:   c.Name,
		Device: c.Device,
		Status: c.GetStatus(),
	}
	if err := c.LastError(); err != nil {
		info.LastError = err.Error()
	}
	if at := c.LastSnapshot(); !at.IsZero() {
		info.LastSnapshot = &at
	}
	return info
}
