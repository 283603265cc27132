package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/stefanh12/holfuy/internal/weather"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakeClient implements the parts of paho.Client the publisher uses.
type fakeClient struct {
	paho.Client

	mu        sync.Mutex
	connected bool
	failTopic string
	messages  []published
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) Connect() paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	return &fakeToken{}
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if topic == c.failTopic {
		return &fakeToken{err: errors.New("broker rejected")}
	}
	c.messages = append(c.messages, published{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	return &fakeToken{}
}

func newTestPublisher(client *fakeClient) *Publisher {
	return NewPublisherWithClient(client, "weather/holfuy/", weather.DefaultUnits(),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestPublishRetainedStatePerStation(t *testing.T) {
	client := &fakeClient{}
	p := newTestPublisher(client)

	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	err := p.Publish(context.Background(), weather.Snapshot{
		Stations: weather.StationMap{
			"101": {"stationName": "Alpha", "wind": map[string]any{"speed": 3.5}},
		},
		Timestamp: ts,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(client.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(client.messages))
	}
	msg := client.messages[0]
	if msg.topic != "weather/holfuy/101/state" || msg.qos != 1 || !msg.retained {
		t.Fatalf("unexpected publish: %+v", msg)
	}

	var st State
	if err := json.Unmarshal(msg.payload, &st); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if st.StationID != "101" || st.Name != "Alpha" || !st.Timestamp.Equal(ts) {
		t.Fatalf("unexpected state: %+v", st)
	}
	if st.Reading.WindSpeed == nil || *st.Reading.WindSpeed != 3.5 {
		t.Fatalf("unexpected reading: %+v", st.Reading)
	}
}

func TestPublishContinuesAfterFailure(t *testing.T) {
	client := &fakeClient{connected: true, failTopic: "weather/holfuy/102/state"}
	p := newTestPublisher(client)

	err := p.Publish(context.Background(), weather.Snapshot{Stations: weather.StationMap{
		"101": {},
		"102": {},
		"103": {},
	}})
	if err == nil || !strings.Contains(err.Error(), "102") {
		t.Fatalf("expected error for station 102, got %v", err)
	}
	if len(client.messages) != 2 {
		t.Fatalf("expected the other stations to be published, got %d", len(client.messages))
	}
}

func TestPublishRequiresConnection(t *testing.T) {
	p := newTestPublisher(&fakeClient{})

	err := p.Publish(context.Background(), weather.Snapshot{Stations: weather.StationMap{"101": {}}})
	if !errors.Is(err, errNotConnected) {
		t.Fatalf("expected errNotConnected, got %v", err)
	}
}

func TestDisconnect(t *testing.T) {
	client := &fakeClient{connected: true}
	p := newTestPublisher(client)

	p.Disconnect()
	if client.IsConnected() {
		t.Fatal("expected client to be disconnected")
	}
}
