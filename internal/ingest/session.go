package ingest

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/netneural/mqtt-ingest/internal/metrics"
	"github.com/netneural/mqtt-ingest/internal/models"
)

// State represents a broker session's connection state
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateSubscribing  State = "subscribing"
	StateSubscribed   State = "subscribed"
	StateStopped      State = "stopped"
)

type sessionEvent int

const (
	evConnected sessionEvent = iota
	evConnectFailed
	evConnectionLost
	evSubscribed
	evSubscribeFailed
	evReconnect
	evStop
)

// MessageSink consumes raw inbound messages. Implemented by Processor.
type MessageSink interface {
	Process(ctx context.Context, integration *models.Integration, settings *models.IntegrationSettings, topic string, payload []byte) (*Message, error)
}

// ClientFactory builds an MQTT client from prepared options. Tests substitute
// a fake so state transitions run without a socket.
type ClientFactory func(opts *mqtt.ClientOptions) mqtt.Client

// SessionConfig carries the session timing knobs
type SessionConfig struct {
	ReconnectDelay time.Duration
	ConnectTimeout time.Duration
}

// Session owns one physical connection to one broker. Connection callbacks
// are translated into events consumed by a single run loop, which owns all
// state transitions and reconnect scheduling.
type Session struct {
	integration *models.Integration
	settings    *models.IntegrationSettings
	sink        MessageSink
	factory     ClientFactory
	cfg         SessionConfig

	client mqtt.Client
	events chan sessionEvent
	done   chan struct{}

	mu             sync.Mutex
	state          State
	stopping       bool
	reconnectTimer *time.Timer
}

// NewSession creates a broker session for one integration. factory may be
// nil to use the real paho client.
func NewSession(integration *models.Integration, settings *models.IntegrationSettings, sink MessageSink, factory ClientFactory, cfg SessionConfig) *Session {
	if factory == nil {
		factory = func(opts *mqtt.ClientOptions) mqtt.Client {
			return mqtt.NewClient(opts)
		}
	}
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = 10 * time.Second
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}

	return &Session{
		integration: integration,
		settings:    settings,
		sink:        sink,
		factory:     factory,
		cfg:         cfg,
		events:      make(chan sessionEvent, 16),
		done:        make(chan struct{}),
		state:       StateDisconnected,
	}
}

// Start begins connecting and runs the session until stopped
func (s *Session) Start() {
	go s.run()
}

// State returns the current connection state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stop tears the session down and waits for confirmation, bounded by ctx
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopping = true
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
	}
	s.mu.Unlock()

	select {
	case s.events <- evStop:
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) run() {
	defer close(s.done)

	s.connect()

	for ev := range s.events {
		if s.handle(ev) {
			return
		}
	}
}

// handle performs one state transition. Returns true when the session
// reached its terminal state.
func (s *Session) handle(ev sessionEvent) bool {
	switch ev {
	case evConnected:
		log.Info().
			Str("integration", s.integration.Name).
			Str("integrationID", s.integration.ID.String()).
			Msg("Connected to broker")
		s.setState(StateConnected)
		s.subscribe()

	case evSubscribed:
		s.setState(StateSubscribed)

	case evSubscribeFailed:
		// Stay connected; subscriptions are re-issued on the next connect
		// callback after the client cycles the connection.
		log.Error().
			Str("integration", s.integration.Name).
			Msg("Topic subscription failed")

	case evConnectionLost:
		// The client library auto-reconnects; the connect callback fires
		// again when it succeeds.
		s.setState(StateDisconnected)

	case evConnectFailed:
		s.setState(StateDisconnected)
		s.scheduleReconnect()

	case evReconnect:
		metrics.IncSessionReconnect()
		log.Info().
			Str("integration", s.integration.Name).
			Msg("Attempting to reconnect")
		s.connect()

	case evStop:
		if s.client != nil && s.client.IsConnected() {
			s.client.Disconnect(250)
		}
		s.setState(StateStopped)
		log.Info().
			Str("integration", s.integration.Name).
			Str("integrationID", s.integration.ID.String()).
			Msg("Session stopped")
		return true
	}

	return false
}

func (s *Session) connect() {
	s.setState(StateConnecting)

	if s.client == nil {
		s.client = s.factory(s.clientOptions())
	}

	log.Info().
		Str("integration", s.integration.Name).
		Str("broker", brokerAddr(s.settings)).
		Msg("Connecting to broker")

	go func(client mqtt.Client) {
		token := client.Connect()
		if token.Wait() && token.Error() != nil {
			log.Error().
				Err(token.Error()).
				Str("integration", s.integration.Name).
				Msg("Broker connect failed")
			s.push(evConnectFailed)
		}
	}(s.client)
}

func (s *Session) subscribe() {
	s.setState(StateSubscribing)

	topics := s.settings.TopicFilters()

	go func(client mqtt.Client) {
		for _, topic := range topics {
			token := client.Subscribe(topic, 1, s.handleMessage)
			if token.Wait() && token.Error() != nil {
				log.Error().
					Err(token.Error()).
					Str("integration", s.integration.Name).
					Str("topic", topic).
					Msg("Failed to subscribe to topic")
				s.push(evSubscribeFailed)
				return
			}
		}

		log.Info().
			Str("integration", s.integration.Name).
			Strs("topics", topics).
			Msg("Subscribed to topics")
		s.push(evSubscribed)
	}(s.client)
}

// handleMessage dispatches processing asynchronously so a slow write never
// blocks receipt of the next message on this session's socket.
func (s *Session) handleMessage(_ mqtt.Client, m mqtt.Message) {
	topic := m.Topic()
	payload := m.Payload()

	log.Debug().
		Str("integration", s.integration.Name).
		Str("topic", topic).
		Int("size", len(payload)).
		Msg("Received message")

	go func() {
		if _, err := s.sink.Process(context.Background(), s.integration, s.settings, topic, payload); err != nil {
			log.Error().
				Err(err).
				Str("topic", topic).
				Str("integration", s.integration.Name).
				Msg("Message processing failed")
		}
	}()
}

func (s *Session) scheduleReconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopping {
		return
	}

	s.reconnectTimer = time.AfterFunc(s.cfg.ReconnectDelay, func() {
		s.push(evReconnect)
	})
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) push(ev sessionEvent) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *Session) clientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerAddr(s.settings))
	opts.SetClientID(s.settings.ClientID)

	if s.settings.Username != "" {
		opts.SetUsername(s.settings.Username)
		opts.SetPassword(s.settings.Password)
	}

	if s.settings.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(5 * time.Second)
	opts.SetConnectTimeout(s.cfg.ConnectTimeout)
	opts.SetKeepAlive(30 * time.Second)

	opts.SetOnConnectHandler(func(mqtt.Client) {
		s.push(evConnected)
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().
			Err(err).
			Str("integration", s.integration.Name).
			Msg("Broker connection lost")
		s.push(evConnectionLost)
	})

	return opts
}

// brokerAddr appends the configured port when the broker URL carries none
func brokerAddr(settings *models.IntegrationSettings) string {
	addr := settings.BrokerURL

	rest := addr
	if i := strings.Index(addr, "://"); i >= 0 {
		rest = addr[i+3:]
	}

	if !strings.Contains(rest, ":") && settings.Port > 0 {
		addr = fmt.Sprintf("%s:%d", addr, settings.Port)
	}

	return addr
}
