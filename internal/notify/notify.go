// Package notify delivers appointment lifecycle messages to per-appointment
// topics.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/example/telescope-scheduler/internal/logging"
)

// Event names the lifecycle moment a message reports.
type Event string

const (
	EventStarting Event = "starting"
	EventFinished Event = "finished"
)

// Message is the payload published to an appointment topic.
type Message struct {
	Event         Event     `json:"event"`
	AppointmentID string    `json:"appointment_id"`
	UserID        string    `json:"user_id"`
	TelescopeID   string    `json:"telescope_id"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	SentAt        time.Time `json:"sent_at"`
}

// Publisher creates topics and publishes messages to them.
type Publisher interface {
	CreateTopic(ctx context.Context, name string) error
	Publish(ctx context.Context, topic string, msg Message) error
}

// DefaultTopicRegistry is the redis set that records every created topic.
const DefaultTopicRegistry = "telescope:topics"

// RedisPublisher publishes messages over redis PUBLISH and keeps the set of
// known topics in a registry set so subscribers can discover them.
type RedisPublisher struct {
	client   redis.UniversalClient
	registry string
}

// NewRedisClient builds a client for addr.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// NewRedisPublisher wraps client. An empty registry uses DefaultTopicRegistry.
func NewRedisPublisher(client redis.UniversalClient, registry string) *RedisPublisher {
	if registry == "" {
		registry = DefaultTopicRegistry
	}
	return &RedisPublisher{client: client, registry: registry}
}

func (p *RedisPublisher) CreateTopic(ctx context.Context, name string) error {
	if err := p.client.SAdd(ctx, p.registry, name).Err(); err != nil {
		return fmt.Errorf("register topic %s: %w", name, err)
	}
	return nil
}

func (p *RedisPublisher) Publish(ctx context.Context, topic string, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := p.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Ping checks connectivity.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// LogPublisher writes messages to the logger. It is used when no redis
// address is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) CreateTopic(ctx context.Context, name string) error {
	p.from(ctx).InfoContext(ctx, "topic created", "topic", name)
	return nil
}

func (p *LogPublisher) Publish(ctx context.Context, topic string, msg Message) error {
	p.from(ctx).InfoContext(ctx, "notification published",
		"topic", topic,
		"event", msg.Event,
		"appointment_id", msg.AppointmentID,
		"user_id", msg.UserID,
	)
	return nil
}

func (p *LogPublisher) from(ctx context.Context) *slog.Logger {
	if logger := logging.FromContext(ctx); logger != nil {
		return logger
	}
	return p.logger
}
