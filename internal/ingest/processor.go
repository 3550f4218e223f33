package ingest

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/netneural/mqtt-ingest/internal/metrics"
	"github.com/netneural/mqtt-ingest/internal/models"
	"github.com/netneural/mqtt-ingest/internal/storage"
)

// rawPayloadAuditLimit bounds the payload excerpt retained in activity
// metadata.
const rawPayloadAuditLimit = 500

// Processor orchestrates parse, resolve, and write for one inbound message.
// Exactly one activity log entry is written per message, success or failure.
type Processor struct {
	store     storage.Store
	resolver  *Resolver
	writer    *Writer
	publisher *Publisher
}

// NewProcessor creates a message processor. publisher may be nil when the
// service runs without NATS.
func NewProcessor(store storage.Store, publisher *Publisher) *Processor {
	return &Processor{
		store:     store,
		resolver:  NewResolver(store),
		writer:    NewWriter(store),
		publisher: publisher,
	}
}

// Process handles one inbound message end-to-end. A nil Message with a nil
// error means the message was dropped (unparseable or no token); the drop is
// recorded in the activity log.
func (p *Processor) Process(ctx context.Context, integration *models.Integration, settings *models.IntegrationSettings, topic string, payload []byte) (*Message, error) {
	start := time.Now()

	msg, err := Parse(payload, topic, settings)
	if err != nil {
		metrics.IncParseFailure()
		metrics.IncMessageProcessed("dropped")
		log.Warn().
			Err(err).
			Str("topic", topic).
			Str("integration", integration.Name).
			Msg("Failed to parse message")

		p.logAttempt(ctx, integration, settings, topic, nil, payload, start, models.ActivityStatusFailed, err)
		return nil, nil
	}

	deviceID, err := p.resolver.Resolve(ctx, msg.DeviceToken, integration.OrganizationID, integration.ID)
	if err != nil {
		metrics.IncMessageProcessed("failed")
		log.Error().
			Err(err).
			Str("token", msg.DeviceToken).
			Str("integration", integration.Name).
			Msg("Failed to resolve device")

		p.logAttempt(ctx, integration, settings, topic, msg, payload, start, models.ActivityStatusFailed, err)
		return nil, err
	}

	if msg.Telemetry != nil {
		p.writer.WriteTelemetry(ctx, &models.TelemetryRecord{
			DeviceID:       deviceID,
			OrganizationID: integration.OrganizationID,
			IntegrationID:  &integration.ID,
			Telemetry:      msg.Telemetry,
			ReportedAt:     msg.Timestamp,
			ReceivedAt:     time.Now(),
		})
	}

	if msg.Status != "" {
		p.writer.UpdateDeviceStatus(ctx, deviceID, msg.Status)
	}

	if p.publisher != nil {
		if err := p.publisher.PublishMessage(integration, msg); err != nil {
			metrics.IncWriteFailure("publish")
			log.Error().
				Err(err).
				Str("token", msg.DeviceToken).
				Msg("Failed to publish canonical message")
		}
	}

	p.logAttempt(ctx, integration, settings, topic, msg, payload, start, models.ActivityStatusSuccess, nil)

	metrics.IncMessageProcessed("success")
	metrics.ObserveProcessLatency(time.Since(start))

	log.Debug().
		Str("token", msg.DeviceToken).
		Str("topic", topic).
		Str("integration", integration.Name).
		Msg("Message processed")

	return msg, nil
}

// logAttempt writes the single audit entry for one ingestion attempt
func (p *Processor) logAttempt(ctx context.Context, integration *models.Integration, settings *models.IntegrationSettings, topic string, msg *Message, payload []byte, start time.Time, status models.ActivityStatus, cause error) {
	metadata := models.Variables{
		"messageSize": len(payload),
		"rawPayload":  truncate(string(payload), rawPayloadAuditLimit),
		"parser":      string(settings.Parser),
	}
	if msg != nil {
		metadata["deviceToken"] = msg.DeviceToken
		metadata["telemetryKeys"] = telemetryKeys(msg.Telemetry)
	}

	entry := &models.ActivityLogEntry{
		OrganizationID: integration.OrganizationID,
		IntegrationID:  integration.ID,
		Direction:      models.ActivityIncoming,
		Type:           models.ActivityTypeMessageReceived,
		Method:         "SUBSCRIBE",
		Endpoint:       topic,
		Status:         status,
		ResponseTimeMS: time.Since(start).Milliseconds(),
		Metadata:       metadata,
	}

	if cause != nil {
		message := cause.Error()
		if errors.Is(cause, ErrNoDeviceToken) {
			message = ErrNoDeviceToken.Error()
		}
		entry.ErrorMessage = &message
	}

	p.writer.LogActivity(ctx, entry)
}

func telemetryKeys(telemetry models.Variables) []string {
	keys := make([]string, 0, len(telemetry))
	for key := range telemetry {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
