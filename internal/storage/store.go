package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/netneural/mqtt-ingest/internal/models"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrInvalidData  = errors.New("invalid data")
)

// Store defines the storage interface. The storage collaborator is a remote
// service accessed via independent, non-transactional calls.
type Store interface {
	// Integration methods (read-only; rows are managed by the config UI)
	ListActiveMQTTIntegrations(ctx context.Context) ([]*models.Integration, error)
	GetIntegration(ctx context.Context, id uuid.UUID) (*models.Integration, error)

	// Device methods
	GetDeviceByHardwareID(ctx context.Context, organizationID uuid.UUID, hardwareID string) (*models.Device, error)
	CreateDevice(ctx context.Context, device *models.Device) error
	UpdateDeviceStatus(ctx context.Context, id uuid.UUID, status models.DeviceStatus, seenAt time.Time) error

	// Telemetry methods (insert-only)
	CreateTelemetryRecord(ctx context.Context, record *models.TelemetryRecord) error

	// Activity log methods
	CreateActivityLog(ctx context.Context, entry *models.ActivityLogEntry) error
	ListActivityLogs(ctx context.Context, filters ActivityLogFilters, limit, offset int) ([]*models.ActivityLogEntry, int64, error)

	// Ping checks storage reachability
	Ping(ctx context.Context) error

	// Close the store
	Close() error
}

// ActivityLogFilters represents filters for activity log listings
type ActivityLogFilters struct {
	OrganizationID *uuid.UUID
	IntegrationID  *uuid.UUID
	Status         *models.ActivityStatus
	StartTime      *time.Time
	EndTime        *time.Time
}
