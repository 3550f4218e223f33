package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// DeviceStatus represents device connectivity status
type DeviceStatus string

const (
	DeviceStatusOnline  DeviceStatus = "online"
	DeviceStatusOffline DeviceStatus = "offline"
	DeviceStatusUnknown DeviceStatus = "unknown"
)

// Device represents an organization-scoped device identified by one or more
// hardware tokens. Tokens are matched only within the owning organization's
// device set.
type Device struct {
	OrganizationModel

	Name        string         `json:"name" db:"name"`
	DeviceType  string         `json:"deviceType" db:"device_type"`
	HardwareIDs pq.StringArray `json:"hardwareIds" db:"hardware_ids"`
	Status      DeviceStatus   `json:"status" db:"status"`
	LastSeenAt  *time.Time     `json:"lastSeenAt,omitempty" db:"last_seen_at"`

	// IntegrationID records the integration that first sighted an
	// auto-provisioned device.
	IntegrationID *uuid.UUID `json:"integrationId,omitempty" db:"integration_id"`

	Metadata Variables `json:"metadata,omitempty" db:"metadata"`
}

// TelemetryRecord is one timestamped observation set for a device.
// Append-only; never updated or deleted by the ingestion core.
type TelemetryRecord struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	DeviceID       uuid.UUID  `json:"deviceId" db:"device_id"`
	OrganizationID uuid.UUID  `json:"organizationId" db:"organization_id"`
	IntegrationID  *uuid.UUID `json:"integrationId,omitempty" db:"integration_id"`

	Telemetry Variables `json:"telemetry" db:"telemetry"`

	// ReportedAt is the device-reported timestamp, ReceivedAt the server
	// receipt time.
	ReportedAt time.Time `json:"reportedAt" db:"reported_at"`
	ReceivedAt time.Time `json:"receivedAt" db:"received_at"`
}
