package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/netneural/mqtt-ingest/internal/models"
	"github.com/netneural/mqtt-ingest/internal/storage"
)

// SupervisorConfig carries the supervisor timing knobs
type SupervisorConfig struct {
	RefreshInterval    time.Duration
	EmptyRetryInterval time.Duration
	ReconnectDelay     time.Duration
	ConnectTimeout     time.Duration
	ShutdownTimeout    time.Duration
}

// Supervisor owns the full set of broker sessions. It loads the active MQTT
// integrations, keeps one session per integration, reconciles the set on a
// periodic refresh, and drains every session on shutdown.
type Supervisor struct {
	store    storage.Store
	sink     MessageSink
	registry *Registry
	factory  ClientFactory
	cfg      SupervisorConfig
}

// NewSupervisor creates a session supervisor. factory may be nil to use the
// real paho client.
func NewSupervisor(store storage.Store, sink MessageSink, factory ClientFactory, cfg SupervisorConfig) *Supervisor {
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = 5 * time.Minute
	}
	if cfg.EmptyRetryInterval == 0 {
		cfg.EmptyRetryInterval = 60 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}

	return &Supervisor{
		store:    store,
		sink:     sink,
		registry: NewRegistry(),
		factory:  factory,
		cfg:      cfg,
	}
}

// Registry exposes the live session set
func (s *Supervisor) Registry() *Registry {
	return s.registry
}

// Run loads the integrations, starts their sessions, and reconciles until
// ctx is cancelled. A failed initial load is fatal; later refresh failures
// keep the current session set.
func (s *Supervisor) Run(ctx context.Context) error {
	integrations, err := s.store.ListActiveMQTTIntegrations(ctx)
	if err != nil {
		return fmt.Errorf("load integrations: %w", err)
	}

	log.Info().
		Int("count", len(integrations)).
		Msg("Loaded active MQTT integrations")

	for _, integration := range integrations {
		s.startSession(integration)
	}

	if s.registry.Len() == 0 {
		log.Warn().
			Dur("retryIn", s.cfg.EmptyRetryInterval).
			Msg("No active MQTT integrations found, will retry")
	}

	for {
		interval := s.cfg.RefreshInterval
		if s.registry.Len() == 0 {
			interval = s.cfg.EmptyRetryInterval
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.drain()
			return nil
		case <-timer.C:
			s.refresh(ctx)
		}
	}
}

// refresh reconciles running sessions against the current integration set:
// sessions for removed or stale integrations are stopped, new ones started.
func (s *Supervisor) refresh(ctx context.Context) {
	integrations, err := s.store.ListActiveMQTTIntegrations(ctx)
	if err != nil {
		log.Warn().
			Err(err).
			Msg("Integration refresh failed, keeping current sessions")
		return
	}

	desired := make(map[uuid.UUID]*models.Integration, len(integrations))
	for _, integration := range integrations {
		desired[integration.ID] = integration
	}

	for _, id := range s.registry.IDs() {
		integration, ok := desired[id]
		if ok && !s.stale(id, integration) {
			delete(desired, id)
			continue
		}

		session := s.registry.Remove(id)
		if session == nil {
			continue
		}

		reason := "removed"
		if ok {
			reason = "changed"
		}
		log.Info().
			Str("integrationID", id.String()).
			Str("reason", reason).
			Msg("Stopping session")

		stopCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		if err := session.Stop(stopCtx); err != nil {
			log.Warn().
				Err(err).
				Str("integrationID", id.String()).
				Msg("Session did not confirm shutdown")
		}
		cancel()
	}

	for _, integration := range integrations {
		if _, ok := desired[integration.ID]; ok {
			s.startSession(integration)
		}
	}
}

// stale reports whether the integration changed since its session started
func (s *Supervisor) stale(id uuid.UUID, fresh *models.Integration) bool {
	session := s.registry.Get(id)
	if session == nil {
		return false
	}
	return fresh.UpdatedAt.After(session.integration.UpdatedAt)
}

// startSession validates the integration's settings and starts its broker
// session. Invalid settings skip the integration without affecting others.
func (s *Supervisor) startSession(integration *models.Integration) {
	settings, err := integration.ParseSettings()
	if err != nil {
		log.Warn().
			Err(err).
			Str("integration", integration.Name).
			Str("integrationID", integration.ID.String()).
			Msg("Skipping integration with invalid settings")
		return
	}

	session := NewSession(integration, settings, s.sink, s.factory, SessionConfig{
		ReconnectDelay: s.cfg.ReconnectDelay,
		ConnectTimeout: s.cfg.ConnectTimeout,
	})

	s.registry.Add(integration.ID, session)
	session.Start()

	log.Info().
		Str("integration", integration.Name).
		Str("integrationID", integration.ID.String()).
		Msg("Started session")
}

// drain stops every session concurrently, bounded by the shutdown timeout.
// Sessions that fail to confirm are abandoned.
func (s *Supervisor) drain() {
	sessions := s.registry.All()
	if len(sessions) == 0 {
		return
	}

	log.Info().
		Int("count", len(sessions)).
		Msg("Stopping all sessions")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	var wg sync.WaitGroup
	for id, session := range sessions {
		wg.Add(1)
		go func(id uuid.UUID, session *Session) {
			defer wg.Done()
			if err := session.Stop(ctx); err != nil {
				log.Warn().
					Err(err).
					Str("integrationID", id.String()).
					Msg("Session did not confirm shutdown")
			}
			s.registry.Remove(id)
		}(id, session)
	}
	wg.Wait()

	log.Info().Msg("All sessions stopped")
}
