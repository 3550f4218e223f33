package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/netneural/mqtt-ingest/internal/metrics"
	"github.com/netneural/mqtt-ingest/internal/models"
	"github.com/netneural/mqtt-ingest/internal/storage"
)

// Writer persists canonical messages and activity entries. All writes are
// independent and best-effort: failures are logged and counted, never
// retried, and never fail the caller.
type Writer struct {
	store storage.Store
}

// NewWriter creates a telemetry and activity writer
func NewWriter(store storage.Store) *Writer {
	return &Writer{store: store}
}

// WriteTelemetry appends one telemetry record
func (w *Writer) WriteTelemetry(ctx context.Context, record *models.TelemetryRecord) {
	if err := w.store.CreateTelemetryRecord(ctx, record); err != nil {
		metrics.IncWriteFailure("telemetry")
		log.Error().
			Err(err).
			Str("deviceID", record.DeviceID.String()).
			Msg("Failed to store telemetry")
	}
}

// UpdateDeviceStatus sets the device's status and last-seen timestamp to now
func (w *Writer) UpdateDeviceStatus(ctx context.Context, deviceID uuid.UUID, status models.DeviceStatus) {
	if err := w.store.UpdateDeviceStatus(ctx, deviceID, status, time.Now()); err != nil {
		metrics.IncWriteFailure("device_status")
		log.Error().
			Err(err).
			Str("deviceID", deviceID.String()).
			Str("status", string(status)).
			Msg("Failed to update device status")
	}
}

// LogActivity appends one activity log entry
func (w *Writer) LogActivity(ctx context.Context, entry *models.ActivityLogEntry) {
	if err := w.store.CreateActivityLog(ctx, entry); err != nil {
		metrics.IncWriteFailure("activity")
		log.Error().
			Err(err).
			Str("integrationID", entry.IntegrationID.String()).
			Msg("Failed to log activity")
	}
}
