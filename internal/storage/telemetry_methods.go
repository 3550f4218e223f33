package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/netneural/mqtt-ingest/internal/models"
)

// CreateTelemetryRecord appends one telemetry record
func (s *PostgresStore) CreateTelemetryRecord(ctx context.Context, record *models.TelemetryRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	if record.ReceivedAt.IsZero() {
		record.ReceivedAt = time.Now()
	}

	query := `
        INSERT INTO device_telemetry_history (
            id, device_id, organization_id, integration_id,
            telemetry, reported_at, received_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.db.ExecContext(ctx, query,
		record.ID, record.DeviceID, record.OrganizationID,
		record.IntegrationID, record.Telemetry, record.ReportedAt,
		record.ReceivedAt,
	)

	return err
}
