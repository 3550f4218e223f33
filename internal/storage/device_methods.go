package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/netneural/mqtt-ingest/internal/models"
)

// GetDeviceByHardwareID gets the device within an organization whose
// hardware-identifier set contains the given token.
func (s *PostgresStore) GetDeviceByHardwareID(ctx context.Context, organizationID uuid.UUID, hardwareID string) (*models.Device, error) {
	query := `
        SELECT id, created_at, updated_at, organization_id, name, device_type,
               hardware_ids, status, last_seen_at, integration_id, metadata
        FROM devices
        WHERE organization_id = $1 AND $2 = ANY(hardware_ids)`

	device := &models.Device{}

	err := s.db.QueryRowContext(ctx, query, organizationID, hardwareID).Scan(
		&device.ID, &device.CreatedAt, &device.UpdatedAt,
		&device.OrganizationID, &device.Name, &device.DeviceType,
		&device.HardwareIDs, &device.Status, &device.LastSeenAt,
		&device.IntegrationID, &device.Metadata,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, err
	}

	return device, nil
}

// CreateDevice creates a new device. The devices table carries a unique
// index on (organization_id, hardware_ids[1]), so two racing first-sighting
// creations for the same token collapse onto one row: the loser gets
// ErrDuplicateKey and re-reads.
func (s *PostgresStore) CreateDevice(ctx context.Context, device *models.Device) error {
	if device.ID == uuid.Nil {
		device.ID = uuid.New()
	}

	now := time.Now()
	device.CreatedAt = now
	device.UpdatedAt = now

	query := `
        INSERT INTO devices (
            id, created_at, updated_at, organization_id, name, device_type,
            hardware_ids, status, integration_id, metadata
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10
        ) ON CONFLICT DO NOTHING`

	result, err := s.db.ExecContext(ctx, query,
		device.ID, device.CreatedAt, device.UpdatedAt, device.OrganizationID,
		device.Name, device.DeviceType, device.HardwareIDs, device.Status,
		device.IntegrationID, device.Metadata,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrDuplicateKey
		}
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrDuplicateKey
	}

	return nil
}

// UpdateDeviceStatus sets the device's connectivity status and last-seen
// timestamp.
func (s *PostgresStore) UpdateDeviceStatus(ctx context.Context, id uuid.UUID, status models.DeviceStatus, seenAt time.Time) error {
	query := `
        UPDATE devices SET
            updated_at = $2, status = $3, last_seen_at = $4
        WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query, id, time.Now(), status, seenAt)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrNotFound
	}

	return nil
}
