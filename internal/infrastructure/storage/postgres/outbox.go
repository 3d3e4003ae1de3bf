package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"

	"foodledger/internal/core/id"
	"foodledger/pkg/logger"
)

// OutboxStatus represents the state of an outbox message.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// MaxOutboxRetries is the number of failed deliveries after which a message
// is marked failed and becomes eligible for the dead letter queue.
const MaxOutboxRetries = 5

// OutboxMessage represents a message in the transactional outbox.
type OutboxMessage struct {
	ID            id.ID        `db:"id"`
	TenantID      string       `db:"tenant_id"`
	AggregateType string       `db:"aggregate_type"` // e.g. "inventory"
	AggregateID   id.ID        `db:"aggregate_id"`
	EventType     string       `db:"event_type"` // e.g. "inventory.alert_raised"
	Payload       []byte       `db:"payload"`
	Status        OutboxStatus `db:"status"`
	RetryCount    int          `db:"retry_count"`
	LastError     *string      `db:"last_error"`
	NextRetryAt   *time.Time   `db:"next_retry_at"`
	CreatedAt     time.Time    `db:"created_at"`
	PublishedAt   *time.Time   `db:"published_at"`
}

// DomainEvent represents an event to be published via outbox.
type DomainEvent struct {
	TenantID      string
	AggregateType string
	AggregateID   id.ID
	EventType     string
	Payload       any
}

const insertOutboxSQL = `
	INSERT INTO sys_outbox (id, tenant_id, aggregate_type, aggregate_id, event_type, payload, status, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// OutboxPublisher writes events to the outbox table.
type OutboxPublisher struct {
	txManager *TxManager
}

// NewOutboxPublisher creates a new outbox publisher.
func NewOutboxPublisher(txManager *TxManager) *OutboxPublisher {
	return &OutboxPublisher{txManager: txManager}
}

// Publish writes an event to the outbox within the current transaction.
// It must be called inside a transaction so the event commits together with
// the ledger change it describes.
func (p *OutboxPublisher) Publish(ctx context.Context, event DomainEvent) error {
	tx := p.txManager.GetTx(ctx)
	if tx == nil {
		return fmt.Errorf("outbox publish requires transaction context")
	}

	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	_, err = tx.Exec(ctx, insertOutboxSQL,
		id.New(), event.TenantID, event.AggregateType, event.AggregateID, event.EventType,
		payload, OutboxStatusPending, time.Now().UTC())
	if err != nil {
		return MapError(fmt.Errorf("insert outbox message: %w", err), "outbox", event.EventType)
	}
	return nil
}

// OutboxHandler delivers outbox messages to the broker.
type OutboxHandler interface {
	Handle(ctx context.Context, msg *OutboxMessage) error
}

// OutboxRelay reads pending messages and hands them to the handler.
// Several relays may run at once; SKIP LOCKED keeps them off each other's rows.
type OutboxRelay struct {
	txManager *TxManager
	batchSize int
	handler   OutboxHandler
	now       func() time.Time
}

// NewOutboxRelay creates a new outbox relay.
func NewOutboxRelay(txManager *TxManager, batchSize int, handler OutboxHandler) *OutboxRelay {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxRelay{
		txManager: txManager,
		batchSize: batchSize,
		handler:   handler,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ProcessBatch fetches and delivers one batch of pending messages. The row
// locks live as long as the surrounding transaction. Returns the number of
// delivered messages.
func (r *OutboxRelay) ProcessBatch(ctx context.Context) (int, error) {
	processed := 0
	err := r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		querier := r.txManager.GetQuerier(ctx)

		var messages []*OutboxMessage
		err := pgxscan.Select(ctx, querier, &messages, `
			SELECT id, tenant_id, aggregate_type, aggregate_id, event_type, payload, status,
			       retry_count, last_error, next_retry_at, created_at, published_at
			FROM sys_outbox
			WHERE status = $1
			  AND (next_retry_at IS NULL OR next_retry_at <= $2)
			ORDER BY created_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED`,
			OutboxStatusPending, r.now(), r.batchSize)
		if err != nil {
			return fmt.Errorf("fetch outbox messages: %w", err)
		}

		for _, msg := range messages {
			if err := r.processMessage(ctx, querier, msg); err != nil {
				logger.Warn(ctx, "outbox delivery failed",
					"message_id", msg.ID, "event_type", msg.EventType,
					"retry_count", msg.RetryCount+1, "error", err)
				continue
			}
			processed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return processed, nil
}

// processMessage delivers one message and records the outcome.
func (r *OutboxRelay) processMessage(ctx context.Context, querier Querier, msg *OutboxMessage) error {
	if err := r.handler.Handle(ctx, msg); err != nil {
		retries := msg.RetryCount + 1
		status := OutboxStatusPending
		if retries >= MaxOutboxRetries {
			status = OutboxStatusFailed
		}
		_, updateErr := querier.Exec(ctx, `
			UPDATE sys_outbox
			SET retry_count = $1, last_error = $2, next_retry_at = $3, status = $4
			WHERE id = $5`,
			retries, err.Error(), r.now().Add(retryDelay(retries)), status, msg.ID)
		if updateErr != nil {
			return fmt.Errorf("update failed message: %w", updateErr)
		}
		return err
	}

	_, err := querier.Exec(ctx, `
		UPDATE sys_outbox SET status = $1, published_at = $2 WHERE id = $3`,
		OutboxStatusPublished, r.now(), msg.ID)
	if err != nil {
		return fmt.Errorf("mark message published: %w", err)
	}
	return nil
}

// retryDelay grows linearly with the number of failed attempts.
func retryDelay(retries int) time.Duration {
	return time.Duration(retries) * time.Minute
}

// MoveToDLQ moves failed messages to the dead letter queue.
func (r *OutboxRelay) MoveToDLQ(ctx context.Context) (int64, error) {
	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, `
		WITH moved AS (
			DELETE FROM sys_outbox
			WHERE status = $1
			RETURNING *
		)
		INSERT INTO sys_outbox_dlq
		SELECT *, NOW() AS failed_at, last_error AS failure_reason FROM moved`,
		OutboxStatusFailed)
	if err != nil {
		return 0, fmt.Errorf("move to DLQ: %w", err)
	}
	return result.RowsAffected(), nil
}
