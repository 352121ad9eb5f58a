// Package notify publishes successful predictions to subscribers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/i474232898/air-quality-forecast/internal/aqi"
	"github.com/i474232898/air-quality-forecast/internal/metrics"
)

// Channel is the Redis pub/sub channel predictions are published on.
const Channel = "aqi:predictions"

// Publisher sends a prediction to whoever listens.
type Publisher interface {
	Publish(ctx context.Context, location string, res aqi.PredictionResult) error
	Close() error
}

// Message is the payload published for each prediction.
type Message struct {
	Location string `json:"location"`
	aqi.PredictionResult
}

// Nop drops every prediction.
type Nop struct{}

func (Nop) Publish(context.Context, string, aqi.PredictionResult) error { return nil }
func (Nop) Close() error                                                { return nil }

// RedisPublisher publishes predictions as JSON on Channel.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher connects to the Redis server at rawURL.
func NewRedisPublisher(ctx context.Context, rawURL string) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid publish url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	log.Printf("notify: publishing predictions on %s", Channel)
	return &RedisPublisher{client: client}, nil
}

// NewRedisPublisherFromClient wraps an existing client.
func NewRedisPublisherFromClient(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, location string, res aqi.PredictionResult) error {
	if !res.OK() {
		return nil
	}
	data, err := json.Marshal(Message{Location: location, PredictionResult: res})
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, Channel, data).Err(); err != nil {
		return fmt.Errorf("publish prediction: %w", err)
	}
	metrics.PredictionsPublished.Inc()
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
