package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/netneural/mqtt-ingest/internal/models"
)

func testIntegration() *models.Integration {
	integration := &models.Integration{
		Name:     "plant-floor",
		Type:     models.IntegrationTypeMQTT,
		Settings: models.Variables{"brokerUrl": "tcp://broker.local"},
		Status:   models.IntegrationStatusActive,
	}
	integration.ID = uuid.New()
	integration.OrganizationID = uuid.New()
	return integration
}

func TestProcessAutoProvisionAndTelemetry(t *testing.T) {
	store := newFakeStore()
	processor := NewProcessor(store, nil)
	integration := testIntegration()
	settings, err := integration.ParseSettings()
	if err != nil {
		t.Fatalf("ParseSettings() error = %v", err)
	}

	payload := []byte(`{"device":"d1","humidity":55}`)
	msg, err := processor.Process(context.Background(), integration, settings, "devices/d1/telemetry", payload)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if msg == nil {
		t.Fatal("Process() returned nil message")
	}

	device, ok := store.devices["d1"]
	if !ok {
		t.Fatal("device was not auto-provisioned")
	}
	if device.OrganizationID != integration.OrganizationID {
		t.Errorf("device organization = %v, want %v", device.OrganizationID, integration.OrganizationID)
	}
	if device.Metadata["auto_discovered"] != true {
		t.Errorf("device metadata missing auto_discovered flag: %v", device.Metadata)
	}

	records := store.telemetryRecords()
	if len(records) != 1 {
		t.Fatalf("telemetry records = %d, want 1", len(records))
	}
	if records[0].DeviceID != device.ID {
		t.Errorf("telemetry device = %v, want %v", records[0].DeviceID, device.ID)
	}
	if got := records[0].Telemetry["humidity"]; got != 55.0 {
		t.Errorf("telemetry humidity = %v, want 55", got)
	}

	entries := store.activityEntries()
	if len(entries) != 1 {
		t.Fatalf("activity entries = %d, want 1", len(entries))
	}
	if entries[0].Status != models.ActivityStatusSuccess {
		t.Errorf("activity status = %q, want success", entries[0].Status)
	}
	if entries[0].Metadata["deviceToken"] != "d1" {
		t.Errorf("activity deviceToken = %v, want d1", entries[0].Metadata["deviceToken"])
	}
	if entries[0].Endpoint != "devices/d1/telemetry" {
		t.Errorf("activity endpoint = %q", entries[0].Endpoint)
	}
}

func TestProcessStatusOnly(t *testing.T) {
	store := newFakeStore()
	processor := NewProcessor(store, nil)
	integration := testIntegration()
	settings, _ := integration.ParseSettings()

	payload := []byte(`{"status":"offline"}`)
	msg, err := processor.Process(context.Background(), integration, settings, "devices/d2/status", payload)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if msg.Status != models.DeviceStatusOffline {
		t.Errorf("Status = %q, want offline", msg.Status)
	}

	if len(store.telemetryRecords()) != 0 {
		t.Errorf("telemetry written for status-only message")
	}

	updates := store.statusHistory()
	if len(updates) != 1 {
		t.Fatalf("status updates = %d, want 1", len(updates))
	}
	if updates[0].status != models.DeviceStatusOffline {
		t.Errorf("status update = %q, want offline", updates[0].status)
	}
}

func TestProcessUnparseableDropsWithAudit(t *testing.T) {
	store := newFakeStore()
	processor := NewProcessor(store, nil)
	integration := testIntegration()
	settings, _ := integration.ParseSettings()

	msg, err := processor.Process(context.Background(), integration, settings, "rooms/kitchen", []byte("garbage"))
	if err != nil {
		t.Fatalf("Process() error = %v, want nil for dropped message", err)
	}
	if msg != nil {
		t.Fatalf("Process() message = %v, want nil", msg)
	}

	entries := store.activityEntries()
	if len(entries) != 1 {
		t.Fatalf("activity entries = %d, want 1", len(entries))
	}
	if entries[0].Status != models.ActivityStatusFailed {
		t.Errorf("activity status = %q, want failed", entries[0].Status)
	}
	if entries[0].ErrorMessage == nil {
		t.Error("activity ErrorMessage is nil")
	}
	if len(store.telemetryRecords()) != 0 {
		t.Errorf("telemetry written for dropped message")
	}
}

func TestProcessResolveFailure(t *testing.T) {
	store := newFakeStore()
	store.lookupErr = errors.New("connection refused")
	processor := NewProcessor(store, nil)
	integration := testIntegration()
	settings, _ := integration.ParseSettings()

	_, err := processor.Process(context.Background(), integration, settings, "devices/d3/telemetry", []byte(`{"humidity":40}`))
	if err == nil {
		t.Fatal("Process() error = nil, want resolve failure")
	}

	entries := store.activityEntries()
	if len(entries) != 1 {
		t.Fatalf("activity entries = %d, want 1", len(entries))
	}
	if entries[0].Status != models.ActivityStatusFailed {
		t.Errorf("activity status = %q, want failed", entries[0].Status)
	}
	if len(store.telemetryRecords()) != 0 {
		t.Errorf("telemetry written despite resolve failure")
	}
}

func TestProcessTruncatesAuditPayload(t *testing.T) {
	store := newFakeStore()
	processor := NewProcessor(store, nil)
	integration := testIntegration()
	settings, _ := integration.ParseSettings()

	big := make([]byte, 2000)
	for i := range big {
		big[i] = 'x'
	}
	payload := append([]byte(`{"device":"d4","note":"`), big...)
	payload = append(payload, []byte(`"}`)...)

	if _, err := processor.Process(context.Background(), integration, settings, "devices/d4/telemetry", payload); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	entries := store.activityEntries()
	if len(entries) != 1 {
		t.Fatalf("activity entries = %d, want 1", len(entries))
	}
	raw, _ := entries[0].Metadata["rawPayload"].(string)
	if len(raw) != rawPayloadAuditLimit {
		t.Errorf("rawPayload length = %d, want %d", len(raw), rawPayloadAuditLimit)
	}
	if entries[0].Metadata["messageSize"] != len(payload) {
		t.Errorf("messageSize = %v, want %d", entries[0].Metadata["messageSize"], len(payload))
	}
}
