package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/stefanh12/holfuy/internal/config"
	"github.com/stefanh12/holfuy/internal/weather"
)

const publishTimeout = 5 * time.Second

var errNotConnected = errors.New("mqtt client not connected")

// State is the retained message published for every station.
type State struct {
	StationID string          `json:"station_id"`
	Name      string          `json:"name"`
	Timestamp time.Time       `json:"timestamp"`
	Units     weather.Units   `json:"units"`
	Reading   weather.Reading `json:"reading"`
	Raw       map[string]any  `json:"raw,omitempty"`
}

// Publisher is a weather.DataSink that publishes each station's reading to
// <prefix>/<station>/state, retained, QoS 1.
type Publisher struct {
	client paho.Client
	prefix string
	units  weather.Units
	logger *slog.Logger
}

// NewPublisher creates a Publisher connected through a new paho client.
// Call Connect before the first Publish.
func NewPublisher(cfg config.MQTTConfig, units weather.Units, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ paho.Client) {
		logger.Info("mqtt connected", "broker", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.Warn("mqtt connection lost", "err", err)
	})

	return NewPublisherWithClient(paho.NewClient(opts), cfg.TopicPrefix, units, logger)
}

// NewPublisherWithClient wraps an existing client.
func NewPublisherWithClient(client paho.Client, prefix string, units weather.Units, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client: client,
		prefix: strings.TrimSuffix(prefix, "/"),
		units:  units,
		logger: logger,
	}
}

// Connect waits for the initial broker connection, honoring ctx.
func (p *Publisher) Connect(ctx context.Context) error {
	if p.client.IsConnected() {
		return nil
	}
	token := p.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// Topic returns the state topic of a station.
func (p *Publisher) Topic(id weather.StationID) string {
	return fmt.Sprintf("%s/%s/state", p.prefix, id)
}

// Publish sends one retained state message per station. It keeps going
// after a failed station and returns the joined errors.
func (p *Publisher) Publish(ctx context.Context, snap weather.Snapshot) error {
	if !p.client.IsConnected() {
		return errNotConnected
	}

	var errs []error
	for id, data := range snap.Stations {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := p.publishStation(id, data, snap.Timestamp); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Publisher) publishStation(id weather.StationID, data weather.StationSnapshot, ts time.Time) error {
	topic := p.Topic(id)
	payload, err := json.Marshal(State{
		StationID: id.String(),
		Name:      weather.DisplayName(id, data),
		Timestamp: ts,
		Units:     p.units,
		Reading:   weather.Sensors(data),
		Raw:       data,
	})
	if err != nil {
		return fmt.Errorf("marshal state for %s: %w", id, err)
	}

	token := p.client.Publish(topic, 1, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		p.logger.Error("failed to publish station state", "topic", topic, "err", err)
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	p.logger.Debug("published station state", "topic", topic, "station", id)
	return nil
}

// Disconnect closes the broker connection.
func (p *Publisher) Disconnect() {
	p.client.Disconnect(250)
	p.logger.Info("mqtt disconnected")
}
