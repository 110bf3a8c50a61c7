// Package nats implements the broadcast port by publishing engine events
// to NATS JetStream.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const streamName = "CERES"

// Publisher implements broadcast.Broadcaster over NATS JetStream. Events
// are published under ceres.events.<type>.
type Publisher struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// Connect establishes a connection to NATS and ensures the event stream exists.
func Connect(ctx context.Context, url string) (*Publisher, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{"ceres.events.>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", url, "stream", streamName)
	return &Publisher{nc: nc, js: js}, nil
}

// envelope wraps every published event.
type envelope struct {
	Type      string    `json:"type"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// BroadcastEvent publishes one event. Publish failures are logged, not
// returned: eventing is observational and must never stall the engine.
func (p *Publisher) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(envelope{Type: eventType, Payload: payload, Timestamp: time.Now().UTC()})
	if err != nil {
		slog.Error("nats marshal event", "type", eventType, "error", err)
		return
	}

	subject := "ceres.events." + eventType
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		slog.Error("nats publish event", "subject", subject, "error", err)
	}
}

// Close drains and closes the underlying connection.
func (p *Publisher) Close() error {
	return p.nc.Drain()
}
