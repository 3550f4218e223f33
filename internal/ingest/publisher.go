package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/netneural/mqtt-ingest/internal/models"
)

// Publisher forwards successfully processed canonical messages on the
// internal NATS bus for downstream consumers (rule evaluation, live
// dashboards). Publication is best-effort.
type Publisher struct {
	nc *nats.Conn
}

// NewPublisher creates a canonical message publisher
func NewPublisher(nc *nats.Conn) *Publisher {
	return &Publisher{nc: nc}
}

// PublishMessage publishes one canonical message on
// ingest.<organizationID>.device.<token>.rx
func (p *Publisher) PublishMessage(integration *models.Integration, msg *Message) error {
	event := struct {
		OrganizationID string              `json:"organizationId"`
		IntegrationID  string              `json:"integrationId"`
		DeviceToken    string              `json:"deviceToken"`
		Telemetry      models.Variables    `json:"telemetry,omitempty"`
		Status         models.DeviceStatus `json:"status,omitempty"`
		Timestamp      time.Time           `json:"timestamp"`
	}{
		OrganizationID: integration.OrganizationID.String(),
		IntegrationID:  integration.ID.String(),
		DeviceToken:    msg.DeviceToken,
		Telemetry:      msg.Telemetry,
		Status:         msg.Status,
		Timestamp:      msg.Timestamp,
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal canonical message: %w", err)
	}

	subject := fmt.Sprintf("ingest.%s.device.%s.rx", integration.OrganizationID, msg.DeviceToken)
	return p.nc.Publish(subject, data)
}
