package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/netneural/mqtt-ingest/internal/api"
	"github.com/netneural/mqtt-ingest/internal/config"
	"github.com/netneural/mqtt-ingest/internal/ingest"
	"github.com/netneural/mqtt-ingest/internal/metrics"
	"github.com/netneural/mqtt-ingest/internal/storage"
)

func main() {
	// Command line flags
	var configFile string
	flag.StringVar(&configFile, "config", "config/mqtt-ingest.yml", "Configuration file path")
	flag.Parse()

	// Local .env overrides, if present
	_ = godotenv.Load()

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load configuration
	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	metrics.Register()

	// Connect to database
	store, err := storage.NewPostgresStore(cfg.Database.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer store.Close()

	log.Info().Msg("Connected to database")

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional: connect to NATS for canonical message publication
	var publisher *ingest.Publisher
	if cfg.NATS.URL != "" {
		log.Info().Str("url", cfg.NATS.URL).Msg("Connecting to NATS...")

		nc, err := nats.Connect(cfg.NATS.URL,
			nats.Name(cfg.Server.Name),
			nats.UserInfo(cfg.NATS.Username, cfg.NATS.Password),
			nats.ReconnectWait(cfg.NATS.ReconnectInterval),
			nats.MaxReconnects(cfg.NATS.MaxReconnects),
			nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
				log.Warn().Err(err).Msg("Disconnected from NATS")
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				log.Info().Msg("Reconnected to NATS")
			}),
		)

		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to NATS, continuing without NATS support")
		} else {
			defer nc.Close()
			log.Info().Msg("Connected to NATS")
			publisher = ingest.NewPublisher(nc)
		}
	} else {
		log.Info().Msg("NATS not configured, running in standalone mode")
	}

	processor := ingest.NewProcessor(store, publisher)

	supervisor := ingest.NewSupervisor(store, processor, nil, ingest.SupervisorConfig{
		RefreshInterval:    cfg.Ingest.RefreshInterval,
		EmptyRetryInterval: cfg.Ingest.EmptyRetryInterval,
		ReconnectDelay:     cfg.Ingest.ReconnectDelay,
		ConnectTimeout:     cfg.Ingest.ConnectTimeout,
		ShutdownTimeout:    cfg.Ingest.ShutdownTimeout,
	})

	// Start operational HTTP server
	apiServer := api.NewServer(store, supervisor.Registry())
	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Metrics.Host, cfg.Metrics.Port)
		if err := apiServer.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Operational HTTP server failed")
		}
	}()

	// Run the supervisor
	errChan := make(chan error, 1)
	go func() {
		errChan <- supervisor.Run(ctx)
	}()

	// Wait for signal or fatal startup error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received signal, shutting down")
		cancel()
		if err := <-errChan; err != nil {
			log.Error().Err(err).Msg("Supervisor exited with error")
		}
	case err := <-errChan:
		if err != nil {
			log.Fatal().Err(err).Msg("Supervisor failed")
		}
	}

	// Shutdown API server
	if err := apiServer.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown API server gracefully")
	}

	log.Info().Msg("MQTT ingest stopped")
}
