package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/netneural/mqtt-ingest/internal/models"
)

type fakeClientFactory struct {
	mu      sync.Mutex
	clients []*fakeClient
}

func (f *fakeClientFactory) new(opts *mqtt.ClientOptions) mqtt.Client {
	client := &fakeClient{opts: opts}
	f.mu.Lock()
	f.clients = append(f.clients, client)
	f.mu.Unlock()
	return client
}

func (f *fakeClientFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func newTestSupervisor(store *fakeStore, cfg SupervisorConfig) (*Supervisor, *fakeClientFactory) {
	factory := &fakeClientFactory{}
	supervisor := NewSupervisor(store, &fakeSink{}, factory.new, cfg)
	return supervisor, factory
}

func TestSupervisorInitialLoadFailure(t *testing.T) {
	store := newFakeStore()
	store.listErr = errTest
	supervisor, _ := newTestSupervisor(store, SupervisorConfig{})

	err := supervisor.Run(context.Background())
	if err == nil {
		t.Fatal("Run() error = nil, want initial load failure")
	}
}

func TestSupervisorEmptyRetry(t *testing.T) {
	store := newFakeStore()
	supervisor, _ := newTestSupervisor(store, SupervisorConfig{
		EmptyRetryInterval: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- supervisor.Run(ctx) }()

	select {
	case err := <-done:
		t.Fatalf("Run() exited early with %v, want retry loop", err)
	case <-time.After(30 * time.Millisecond):
	}

	store.setIntegrations(testIntegration())
	waitFor(t, "session started after retry", func() bool { return supervisor.Registry().Len() == 1 })

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestSupervisorSkipsInvalidSettings(t *testing.T) {
	store := newFakeStore()

	broken := testIntegration()
	broken.Settings = models.Variables{}
	healthy := testIntegration()
	store.setIntegrations(broken, healthy)

	supervisor, factory := newTestSupervisor(store, SupervisorConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- supervisor.Run(ctx) }()

	waitFor(t, "healthy session started", func() bool { return supervisor.Registry().Len() == 1 })
	if supervisor.Registry().Get(broken.ID) != nil {
		t.Error("session started for integration with invalid settings")
	}
	if supervisor.Registry().Get(healthy.ID) == nil {
		t.Error("no session for healthy integration")
	}
	if factory.count() != 1 {
		t.Errorf("clients created = %d, want 1", factory.count())
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestSupervisorRefreshReconciles(t *testing.T) {
	store := newFakeStore()
	first := testIntegration()
	store.setIntegrations(first)

	supervisor, _ := newTestSupervisor(store, SupervisorConfig{
		RefreshInterval:    10 * time.Millisecond,
		EmptyRetryInterval: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- supervisor.Run(ctx) }()

	waitFor(t, "first session", func() bool { return supervisor.Registry().Get(first.ID) != nil })
	session := supervisor.Registry().Get(first.ID)

	// Swap the integration set and wait for the refresh to reconcile
	second := testIntegration()
	store.setIntegrations(second)

	waitFor(t, "second session", func() bool { return supervisor.Registry().Get(second.ID) != nil })
	waitFor(t, "first session removed", func() bool { return supervisor.Registry().Get(first.ID) == nil })
	waitFor(t, "first session stopped", func() bool { return session.State() == StateStopped })

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestSupervisorRefreshRestartsChangedIntegration(t *testing.T) {
	store := newFakeStore()
	integration := testIntegration()
	integration.UpdatedAt = time.Now()
	store.setIntegrations(integration)

	supervisor, factory := newTestSupervisor(store, SupervisorConfig{
		RefreshInterval: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- supervisor.Run(ctx) }()

	waitFor(t, "session started", func() bool { return supervisor.Registry().Len() == 1 })

	// An edit bumps the row's update time; the session must be replaced
	edited := *integration
	edited.UpdatedAt = time.Now().Add(time.Minute)
	store.setIntegrations(&edited)

	waitFor(t, "session replaced", func() bool { return factory.count() >= 2 })

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestSupervisorDrainsOnShutdown(t *testing.T) {
	store := newFakeStore()
	store.setIntegrations(testIntegration(), testIntegration())

	supervisor, factory := newTestSupervisor(store, SupervisorConfig{
		ShutdownTimeout: time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- supervisor.Run(ctx) }()

	waitFor(t, "both sessions", func() bool { return supervisor.Registry().Len() == 2 })

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if supervisor.Registry().Len() != 0 {
		t.Errorf("registry len after drain = %d, want 0", supervisor.Registry().Len())
	}

	factory.mu.Lock()
	defer factory.mu.Unlock()
	for _, client := range factory.clients {
		if client.IsConnected() {
			t.Error("client still connected after drain")
		}
	}
}
