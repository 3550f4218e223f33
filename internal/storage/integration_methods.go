package storage

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/netneural/mqtt-ingest/internal/models"
)

// ListActiveMQTTIntegrations lists integrations with an active status and an
// MQTT transport kind.
func (s *PostgresStore) ListActiveMQTTIntegrations(ctx context.Context) ([]*models.Integration, error) {
	query := `
        SELECT id, created_at, updated_at, organization_id, name,
               integration_type, settings, status
        FROM device_integrations
        WHERE status = $1 AND integration_type = ANY($2)
        ORDER BY created_at`

	types := make([]string, 0, len(models.MQTTIntegrationTypes))
	for _, t := range models.MQTTIntegrationTypes {
		types = append(types, string(t))
	}

	rows, err := s.db.QueryContext(ctx, query, models.IntegrationStatusActive, pq.Array(types))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var integrations []*models.Integration
	for rows.Next() {
		integration := &models.Integration{}

		err := rows.Scan(
			&integration.ID, &integration.CreatedAt, &integration.UpdatedAt,
			&integration.OrganizationID, &integration.Name, &integration.Type,
			&integration.Settings, &integration.Status,
		)
		if err != nil {
			return nil, err
		}

		integrations = append(integrations, integration)
	}

	return integrations, rows.Err()
}

// GetIntegration gets an integration by id
func (s *PostgresStore) GetIntegration(ctx context.Context, id uuid.UUID) (*models.Integration, error) {
	query := `
        SELECT id, created_at, updated_at, organization_id, name,
               integration_type, settings, status
        FROM device_integrations
        WHERE id = $1`

	integration := &models.Integration{}

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&integration.ID, &integration.CreatedAt, &integration.UpdatedAt,
		&integration.OrganizationID, &integration.Name, &integration.Type,
		&integration.Settings, &integration.Status,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, err
	}

	return integration, nil
}
