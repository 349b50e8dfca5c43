// Package events fans application state snapshots out over Redis pub/sub.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/artl-app/artl-service/internal/logging"
	"github.com/artl-app/artl-service/internal/state"
)

// Event is the published message
type Event struct {
	Type  string         `json:"type"`
	At    time.Time      `json:"at"`
	State state.Snapshot `json:"state"`
}

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Publisher sends every state change to a Redis channel
type Publisher struct {
	client  publisher
	closer  func() error
	pinger  func(ctx context.Context) error
	channel string
	logger  *logging.Logger
}

// NewPublisher connects to Redis
func NewPublisher(ctx context.Context, redisURL, channel string, logger *logging.Logger) (*Publisher, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if logger == nil {
		logger = logging.NewLogger("Events")
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Publisher{
		client:  client,
		closer:  client.Close,
		pinger:  func(ctx context.Context) error { return client.Ping(ctx).Err() },
		channel: channel,
		logger:  logger,
	}, nil
}

// Channel returns the channel name
func (p *Publisher) Channel() string { return p.channel }

// Ping checks the connection
func (p *Publisher) Ping(ctx context.Context) error {
	if p.pinger == nil {
		return nil
	}
	return p.pinger(ctx)
}

// Close releases the connection
func (p *Publisher) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer()
}

// Encode builds the JSON payload for a snapshot
func Encode(snap state.Snapshot, at time.Time) ([]byte, error) {
	return json.Marshal(Event{Type: "state", At: at, State: snap})
}

// Publish sends one snapshot
func (p *Publisher) Publish(ctx context.Context, snap state.Snapshot) error {
	payload, err := Encode(snap, time.Now())
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channel, payload).Err()
}

// Run publishes the current state and then every change until ctx is done.
// Publish failures are logged; slow delivery skips to the latest snapshot.
func (p *Publisher) Run(ctx context.Context, st *state.AppState) {
	updates, cancel := st.Subscribe()
	defer cancel()

	if err := p.Publish(ctx, st.Snapshot()); err != nil {
		p.logger.Warn("failed to publish state", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := p.Publish(ctx, snap); err != nil && ctx.Err() == nil {
				p.logger.Warn("failed to publish state", "channel", p.channel, "error", err)
			}
		}
	}
}
