package main

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/stefanh12/holfuy/internal/config"
	"github.com/stefanh12/holfuy/internal/health"
	"github.com/stefanh12/holfuy/internal/mqtt"
	"github.com/stefanh12/holfuy/internal/store"
	"github.com/stefanh12/holfuy/internal/weather"
	"github.com/stefanh12/holfuy/internal/weather/providers"
)

// components is the wired object graph shared by the commands.
type components struct {
	registry  *health.Registry
	store     *store.MemoryStore
	poller    *weather.Poller
	publisher *mqtt.Publisher
}

func loadConfig(cmd *cobra.Command) (*config.AppConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

// wire builds the engine and its sinks. The MQTT publisher is created only
// when withMQTT is set and a broker is configured; it is not connected yet.
func wire(cfg *config.AppConfig, logger *slog.Logger, withMQTT bool) *components {
	registry := health.NewRegistry(cfg.Group, logger)
	memStore := store.NewMemoryStore()

	fetcher := providers.NewHTTPFetcher(providers.HTTPClientConfig{
		Timeout: cfg.RequestTimeout,
		Backoff: providers.BackoffConfig{
			MaxRetries:      cfg.RequestRetries,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     2 * time.Second,
		},
		Logger: logger,
	})

	engine := weather.NewEngine(
		fetcher,
		providers.NewHolfuyURLs(cfg.APIURL),
		registry,
		logger,
		cfg.Engine(),
	)

	sinks := []weather.DataSink{memStore}
	var publisher *mqtt.Publisher
	if withMQTT && cfg.MQTT.Enabled() {
		publisher = mqtt.NewPublisher(cfg.MQTT, cfg.Units(), logger)
		sinks = append(sinks, publisher)
	}

	return &components{
		registry:  registry,
		store:     memStore,
		poller:    weather.NewPoller(engine, cfg.Query(), registry, logger, sinks...),
		publisher: publisher,
	}
}
