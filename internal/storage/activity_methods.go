package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/netneural/mqtt-ingest/internal/models"
)

// CreateActivityLog appends one activity log entry
func (s *PostgresStore) CreateActivityLog(ctx context.Context, entry *models.ActivityLogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	query := `
        INSERT INTO integration_activity_log (
            id, created_at, organization_id, integration_id, direction,
            activity_type, method, endpoint, status, response_time_ms,
            metadata, error_message
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.db.ExecContext(ctx, query,
		entry.ID, entry.CreatedAt, entry.OrganizationID, entry.IntegrationID,
		entry.Direction, entry.Type, entry.Method, entry.Endpoint,
		entry.Status, entry.ResponseTimeMS, entry.Metadata, entry.ErrorMessage,
	)

	return err
}

// ListActivityLogs lists activity log entries with filters
func (s *PostgresStore) ListActivityLogs(ctx context.Context, filters ActivityLogFilters, limit, offset int) ([]*models.ActivityLogEntry, int64, error) {
	query := "SELECT COUNT(*) FROM integration_activity_log WHERE 1=1"
	args := []interface{}{}
	argCount := 0

	if filters.OrganizationID != nil {
		argCount++
		query += fmt.Sprintf(" AND organization_id = $%d", argCount)
		args = append(args, *filters.OrganizationID)
	}

	if filters.IntegrationID != nil {
		argCount++
		query += fmt.Sprintf(" AND integration_id = $%d", argCount)
		args = append(args, *filters.IntegrationID)
	}

	if filters.Status != nil {
		argCount++
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, *filters.Status)
	}

	if filters.StartTime != nil {
		argCount++
		query += fmt.Sprintf(" AND created_at >= $%d", argCount)
		args = append(args, *filters.StartTime)
	}

	if filters.EndTime != nil {
		argCount++
		query += fmt.Sprintf(" AND created_at <= $%d", argCount)
		args = append(args, *filters.EndTime)
	}

	var count int64
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	selectQuery := strings.Replace(query, "SELECT COUNT(*)",
		"SELECT id, created_at, organization_id, integration_id, direction, activity_type, method, endpoint, status, response_time_ms, metadata, error_message", 1)

	argCount++
	selectQuery += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", argCount)
	args = append(args, limit)

	argCount++
	selectQuery += fmt.Sprintf(" OFFSET $%d", argCount)
	args = append(args, offset)

	rows, err := s.db.QueryContext(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []*models.ActivityLogEntry
	for rows.Next() {
		entry := &models.ActivityLogEntry{}

		err := rows.Scan(
			&entry.ID, &entry.CreatedAt, &entry.OrganizationID,
			&entry.IntegrationID, &entry.Direction, &entry.Type,
			&entry.Method, &entry.Endpoint, &entry.Status,
			&entry.ResponseTimeMS, &entry.Metadata, &entry.ErrorMessage,
		)
		if err != nil {
			return nil, 0, err
		}

		entries = append(entries, entry)
	}

	return entries, count, rows.Err()
}
