package models

import (
	"time"

	"github.com/google/uuid"
)

// ActivityDirection represents the direction of an integration activity
type ActivityDirection string

const (
	ActivityIncoming ActivityDirection = "incoming"
	ActivityOutgoing ActivityDirection = "outgoing"
)

// ActivityStatus represents the outcome of one activity
type ActivityStatus string

const (
	ActivityStatusSuccess ActivityStatus = "success"
	ActivityStatusFailed  ActivityStatus = "failed"
	ActivityStatusError   ActivityStatus = "error"
)

// ActivityType represents activity types
type ActivityType string

const (
	ActivityTypeMessageReceived ActivityType = "mqtt_message_received"
)

// ActivityLogEntry is the audit record of one ingestion attempt. Exactly one
// entry is written per inbound message, success or failure.
type ActivityLogEntry struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	OrganizationID uuid.UUID `json:"organizationId" db:"organization_id"`
	IntegrationID  uuid.UUID `json:"integrationId" db:"integration_id"`

	Direction ActivityDirection `json:"direction" db:"direction"`
	Type      ActivityType      `json:"activityType" db:"activity_type"`
	Method    string            `json:"method" db:"method"`
	Endpoint  string            `json:"endpoint" db:"endpoint"`

	Status         ActivityStatus `json:"status" db:"status"`
	ResponseTimeMS int64          `json:"responseTimeMs" db:"response_time_ms"`

	Metadata     Variables `json:"metadata,omitempty" db:"metadata"`
	ErrorMessage *string   `json:"errorMessage,omitempty" db:"error_message"`
}
