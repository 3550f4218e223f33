package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/netneural/mqtt-ingest/internal/models"
	"github.com/netneural/mqtt-ingest/internal/storage"
)

var errTest = errors.New("test failure")

type statusUpdate struct {
	deviceID uuid.UUID
	status   models.DeviceStatus
}

// fakeStore is an in-memory storage.Store for pipeline tests
type fakeStore struct {
	mu sync.Mutex

	integrations []*models.Integration
	listErr      error

	devices         map[string]*models.Device
	lookupErr       error
	lookupMisses    int
	createDeviceErr error

	telemetry     []*models.TelemetryRecord
	statusUpdates []statusUpdate
	activity      []*models.ActivityLogEntry

	telemetryErr error
	activityErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		devices: make(map[string]*models.Device),
	}
}

func (f *fakeStore) ListActiveMQTTIntegrations(ctx context.Context) ([]*models.Integration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]*models.Integration, len(f.integrations))
	copy(out, f.integrations)
	return out, nil
}

func (f *fakeStore) GetIntegration(ctx context.Context, id uuid.UUID) (*models.Integration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, integration := range f.integrations {
		if integration.ID == id {
			return integration, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStore) GetDeviceByHardwareID(ctx context.Context, organizationID uuid.UUID, hardwareID string) (*models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	if f.lookupMisses > 0 {
		f.lookupMisses--
		return nil, storage.ErrNotFound
	}
	device, ok := f.devices[hardwareID]
	if !ok || device.OrganizationID != organizationID {
		return nil, storage.ErrNotFound
	}
	return device, nil
}

func (f *fakeStore) CreateDevice(ctx context.Context, device *models.Device) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createDeviceErr != nil {
		return f.createDeviceErr
	}
	device.ID = uuid.New()
	device.CreatedAt = time.Now()
	device.UpdatedAt = device.CreatedAt
	for _, hardwareID := range device.HardwareIDs {
		f.devices[hardwareID] = device
	}
	return nil
}

func (f *fakeStore) UpdateDeviceStatus(ctx context.Context, id uuid.UUID, status models.DeviceStatus, seenAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusUpdates = append(f.statusUpdates, statusUpdate{deviceID: id, status: status})
	return nil
}

func (f *fakeStore) CreateTelemetryRecord(ctx context.Context, record *models.TelemetryRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.telemetryErr != nil {
		return f.telemetryErr
	}
	f.telemetry = append(f.telemetry, record)
	return nil
}

func (f *fakeStore) CreateActivityLog(ctx context.Context, entry *models.ActivityLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.activityErr != nil {
		return f.activityErr
	}
	f.activity = append(f.activity, entry)
	return nil
}

func (f *fakeStore) ListActivityLogs(ctx context.Context, filters storage.ActivityLogFilters, limit, offset int) ([]*models.ActivityLogEntry, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.ActivityLogEntry, len(f.activity))
	copy(out, f.activity)
	return out, int64(len(out)), nil
}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) activityEntries() []*models.ActivityLogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.ActivityLogEntry, len(f.activity))
	copy(out, f.activity)
	return out
}

func (f *fakeStore) telemetryRecords() []*models.TelemetryRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.TelemetryRecord, len(f.telemetry))
	copy(out, f.telemetry)
	return out
}

func (f *fakeStore) statusHistory() []statusUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]statusUpdate, len(f.statusUpdates))
	copy(out, f.statusUpdates)
	return out
}

func (f *fakeStore) setIntegrations(integrations ...*models.Integration) {
	f.mu.Lock()
	f.integrations = integrations
	f.mu.Unlock()
}
