package pubsub

import (
	"context"
	"fmt"
	"sync"

	"github.com/VmalRaj-Dev/limetto/internal/config"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
)

// Publisher defines an interface for publishing messages.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, attrs map[string]string) (string, error)
}

// PubSubPublisher is an implementation of Publisher using Google Pub/Sub.
// Topic handles are cached so batching settings apply across calls.
type PubSubPublisher struct {
	client *pubsub.Client

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// EmulatorProjectID is used against the Pub/Sub emulator when no GCP project
// is configured.
const EmulatorProjectID = "limetto-local"

func projectID(cfg *config.Config) string {
	if cfg.GCPProjectID == "" && cfg.PubSubEmulatorHost != "" {
		return EmulatorProjectID
	}
	return cfg.GCPProjectID
}

// NewPublisher creates a new PubSubPublisher using the GCP project from config.
// PUBSUB_EMULATOR_HOST is honoured by the client library.
func NewPublisher(ctx context.Context, cfg *config.Config) (*PubSubPublisher, error) {
	project := projectID(cfg)
	if project == "" {
		return nil, fmt.Errorf("GCP project ID is required for Pub/Sub")
	}
	client, err := pubsub.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("failed to create Pub/Sub client: %w", err)
	}
	return &PubSubPublisher{client: client, topics: make(map[string]*pubsub.Topic)}, nil
}

// Publish sends the payload to the given Pub/Sub topic and returns the message ID.
func (p *PubSubPublisher) Publish(ctx context.Context, topic string, payload []byte, attrs map[string]string) (string, error) {
	result := p.topic(topic).Publish(ctx, &pubsub.Message{Data: payload, Attributes: attrs})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to publish message to topic %s: %w", topic, err)
	}
	return id, nil
}

func (p *PubSubPublisher) topic(name string) *pubsub.Topic {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.topics[name]
	if !ok {
		t = p.client.Topic(name)
		p.topics[name] = t
	}
	return t
}

// Close flushes pending messages and releases the client.
func (p *PubSubPublisher) Close() error {
	p.mu.Lock()
	for _, t := range p.topics {
		t.Stop()
	}
	p.mu.Unlock()
	return p.client.Close()
}

// LogPublisher writes messages to the log instead of a broker. It is used
// when no GCP project is configured.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With().Str("service", "LogPublisher").Logger()}
}

func (p *LogPublisher) Publish(_ context.Context, topic string, payload []byte, attrs map[string]string) (string, error) {
	ev := p.logger.Info().Str("topic", topic).RawJSON("payload", payload)
	for k, v := range attrs {
		ev = ev.Str(k, v)
	}
	ev.Msg("Notification not published, no broker configured")
	return "", nil
}

// Open returns a Pub/Sub publisher when a GCP project or the emulator is
// configured and a LogPublisher otherwise. The returned func flushes and releases the client.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (Publisher, func(), error) {
	if projectID(cfg) == "" {
		logger.Warn().Msg("GCP_PROJECT_ID not set; notifications will only be logged")
		return NewLogPublisher(logger), func() {}, nil
	}
	p, err := NewPublisher(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if cfg.PubSubEmulatorHost != "" {
		logger.Info().Str("emulator_host", cfg.PubSubEmulatorHost).Str("project", projectID(cfg)).Msg("Publishing to Pub/Sub emulator")
	}
	return p, func() {
		if err := p.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close Pub/Sub client")
		}
	}, nil
}
