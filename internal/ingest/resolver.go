package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/netneural/mqtt-ingest/internal/metrics"
	"github.com/netneural/mqtt-ingest/internal/models"
	"github.com/netneural/mqtt-ingest/internal/storage"
)

// Resolver maps an external device token to an internal device identity,
// auto-provisioning one on first sighting.
type Resolver struct {
	store storage.Store
}

// NewResolver creates a device resolver
func NewResolver(store storage.Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve looks up the device within the organization whose
// hardware-identifier set contains the token, creating one if absent.
// Creation races are resolved by the storage layer's uniqueness guarantee:
// a duplicate-key result means another first-sighting won, and the lookup is
// retried.
func (r *Resolver) Resolve(ctx context.Context, token string, organizationID, integrationID uuid.UUID) (uuid.UUID, error) {
	device, err := r.store.GetDeviceByHardwareID(ctx, organizationID, token)
	if err == nil {
		return device.ID, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return uuid.Nil, fmt.Errorf("lookup device %q: %w", token, err)
	}

	device = &models.Device{
		Name:          fmt.Sprintf("MQTT Device %s", token),
		DeviceType:    "mqtt_device",
		HardwareIDs:   pq.StringArray{token},
		Status:        models.DeviceStatusOnline,
		IntegrationID: &integrationID,
		Metadata: models.Variables{
			"auto_discovered": true,
			"discovered_at":   time.Now().UTC().Format(time.RFC3339),
			"integration_id":  integrationID.String(),
		},
	}
	device.OrganizationID = organizationID

	err = r.store.CreateDevice(ctx, device)
	if err == nil {
		metrics.IncDeviceProvisioned()
		log.Info().
			Str("token", token).
			Str("organizationID", organizationID.String()).
			Str("deviceID", device.ID.String()).
			Msg("Auto-discovered and created device")
		return device.ID, nil
	}

	if errors.Is(err, storage.ErrDuplicateKey) {
		existing, err := r.store.GetDeviceByHardwareID(ctx, organizationID, token)
		if err != nil {
			return uuid.Nil, fmt.Errorf("re-read device %q after create race: %w", token, err)
		}
		return existing.ID, nil
	}

	return uuid.Nil, fmt.Errorf("create device %q: %w", token, err)
}
