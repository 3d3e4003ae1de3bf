// Package events turns ledger callbacks into outbox events.
package events

import (
	"context"
	"time"

	"foodledger/internal/core/id"
	"foodledger/internal/core/types"
	"foodledger/internal/domain/inventory"
	"foodledger/internal/infrastructure/storage/postgres"
)

// Event types written to the outbox.
const (
	AlertRaised    = "inventory.alert_raised"
	MovementPosted = "inventory.movement_posted"
)

const aggregateType = "inventory"

var (
	_ inventory.AlertNotifier = (*LedgerEvents)(nil)
	_ inventory.CostPoster    = (*LedgerEvents)(nil)
)

// Publisher stores an event in the current transaction.
type Publisher interface {
	Publish(ctx context.Context, event postgres.DomainEvent) error
}

// AlertPayload is the body of inventory.alert_raised.
type AlertPayload struct {
	InventoryID       id.ID                `json:"inventoryId"`
	ProductID         id.ID                `json:"productId"`
	ProductSKU        string               `json:"productSku"`
	VariantSKU        *string              `json:"variantSku,omitempty"`
	Raised            inventory.AlertDelta `json:"raised"`
	Alerts            inventory.Alerts     `json:"alerts"`
	AvailableQuantity types.Quantity       `json:"availableQuantity"`
	TotalQuantity     types.Quantity       `json:"totalQuantity"`
}

// MovementPayload is the body of inventory.movement_posted, consumed by the
// accounting journal.
type MovementPayload struct {
	MovementID   id.ID                  `json:"movementId"`
	InventoryID  id.ID                  `json:"inventoryId"`
	ProductID    id.ID                  `json:"productId"`
	ProductSKU   string                 `json:"productSku"`
	MovementType inventory.MovementType `json:"movementType"`
	Quantity     types.Quantity         `json:"quantity"`
	UnitCost     types.Money            `json:"unitCost"`
	TotalCost    types.Money            `json:"totalCost"`
	AverageCost  types.Money            `json:"averageCost"`
	Reason       string                 `json:"reason"`
	Reference    *string                `json:"reference,omitempty"`
	OccurredAt   time.Time              `json:"occurredAt"`
}

// LedgerEvents implements the ledger's notifier and cost poster on top of
// the transactional outbox.
type LedgerEvents struct {
	publisher Publisher
}

// NewLedgerEvents creates the adapter.
func NewLedgerEvents(p Publisher) *LedgerEvents {
	return &LedgerEvents{publisher: p}
}

// AlertRaised publishes an alert transition.
func (e *LedgerEvents) AlertRaised(ctx context.Context, r *inventory.Record, delta inventory.AlertDelta) error {
	return e.publisher.Publish(ctx, postgres.DomainEvent{
		TenantID:      r.TenantID,
		AggregateType: aggregateType,
		AggregateID:   r.ID,
		EventType:     AlertRaised,
		Payload: AlertPayload{
			InventoryID:       r.ID,
			ProductID:         r.ProductID,
			ProductSKU:        r.ProductSKU,
			VariantSKU:        r.VariantSKU,
			Raised:            delta,
			Alerts:            r.Alerts,
			AvailableQuantity: r.AvailableQuantity,
			TotalQuantity:     r.TotalQuantity,
		},
	})
}

// MovementPosted publishes a cost-bearing movement.
func (e *LedgerEvents) MovementPosted(ctx context.Context, r *inventory.Record, m *inventory.Movement) error {
	return e.publisher.Publish(ctx, postgres.DomainEvent{
		TenantID:      r.TenantID,
		AggregateType: aggregateType,
		AggregateID:   r.ID,
		EventType:     MovementPosted,
		Payload: MovementPayload{
			MovementID:   m.ID,
			InventoryID:  m.InventoryID,
			ProductID:    m.ProductID,
			ProductSKU:   m.ProductSKU,
			MovementType: m.MovementType,
			Quantity:     m.Quantity,
			UnitCost:     m.UnitCost,
			TotalCost:    m.TotalCost,
			AverageCost:  r.AverageCostPrice,
			Reason:       m.Reason,
			Reference:    m.Reference,
			OccurredAt:   m.CreatedAt,
		},
	})
}
