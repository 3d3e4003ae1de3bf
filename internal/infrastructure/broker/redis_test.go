package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodledger/internal/core/id"
	"foodledger/internal/infrastructure/storage/postgres"
)

type fakeRedis struct {
	channel string
	body    []byte
	err     error
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	f.body, _ = message.([]byte)
	return redis.NewIntResult(0, f.err)
}

func testMessage() *postgres.OutboxMessage {
	return &postgres.OutboxMessage{
		ID:            id.New(),
		TenantID:      "tenant-1",
		AggregateType: "inventory",
		AggregateID:   id.New(),
		EventType:     "inventory.alert_raised",
		Payload:       []byte(`{"productSku":"MILK"}`),
		CreatedAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestRedisPublisher_Handle(t *testing.T) {
	client := &fakeRedis{}
	msg := testMessage()

	require.NoError(t, NewRedisPublisher(client, "inventory.events").Handle(context.Background(), msg))

	assert.Equal(t, "inventory.events", client.channel)
	var env Envelope
	require.NoError(t, json.Unmarshal(client.body, &env))
	assert.Equal(t, msg.ID, env.ID)
	assert.Equal(t, "tenant-1", env.TenantID)
	assert.Equal(t, "inventory.alert_raised", env.EventType)
	assert.JSONEq(t, `{"productSku":"MILK"}`, string(env.Payload))
}

func TestRedisPublisher_HandleError(t *testing.T) {
	client := &fakeRedis{err: errors.New("connection refused")}

	err := NewRedisPublisher(client, "inventory.events").Handle(context.Background(), testMessage())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "inventory.alert_raised")
}
