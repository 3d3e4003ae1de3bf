// Package broker delivers outbox messages to Redis pub/sub.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"foodledger/internal/config"
	"foodledger/internal/core/id"
	"foodledger/internal/infrastructure/storage/postgres"
	"foodledger/pkg/logger"
)

var _ postgres.OutboxHandler = (*RedisPublisher)(nil)

// Envelope is the message published for every outbox row.
type Envelope struct {
	ID            id.ID           `json:"id"`
	TenantID      string          `json:"tenantId"`
	AggregateType string          `json:"aggregateType"`
	AggregateID   id.ID           `json:"aggregateId"`
	EventType     string          `json:"eventType"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

// publisher is the subset of the Redis client used here.
type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher implements postgres.OutboxHandler.
type RedisPublisher struct {
	client  publisher
	channel string
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

// NewRedisPublisher creates a publisher writing to channel.
func NewRedisPublisher(client publisher, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

// Handle publishes msg. Having no subscriber is not an error; the outbox
// guarantees at-least-once hand-off to Redis, not to consumers.
func (p *RedisPublisher) Handle(ctx context.Context, msg *postgres.OutboxMessage) error {
	body, err := json.Marshal(Envelope{
		ID:            msg.ID,
		TenantID:      msg.TenantID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       json.RawMessage(msg.Payload),
		OccurredAt:    msg.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	receivers, err := p.client.Publish(ctx, p.channel, body).Result()
	if err != nil {
		return fmt.Errorf("publish %s: %w", msg.EventType, err)
	}
	logger.Debug(ctx, "event published",
		"event_type", msg.EventType, "message_id", msg.ID, "receivers", receivers)
	return nil
}
