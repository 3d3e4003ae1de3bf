// Package inventory implements the inventory ledger: per product/variant stock
// records with dated lots, reservations, weighted-average costing and an
// append-only movement log.
package inventory

import (
	"strings"
	"time"

	"foodledger/internal/core/apperror"
	"foodledger/internal/core/id"
	"foodledger/internal/core/types"
)

// Location is an opaque physical location descriptor.
type Location struct {
	Warehouse string `json:"warehouse,omitempty"`
	Zone      string `json:"zone,omitempty"`
	Aisle     string `json:"aisle,omitempty"`
	Shelf     string `json:"shelf,omitempty"`
	Bin       string `json:"bin,omitempty"`
}

// Alerts holds the derived alert flags. Never authoritative.
type Alerts struct {
	LowStock       bool       `json:"lowStock"`
	NearExpiration bool       `json:"nearExpiration"`
	Expired        bool       `json:"expired"`
	Overstock      bool       `json:"overstock"`
	LastAlertSent  *time.Time `json:"lastAlertSent,omitempty"`
}

// Metrics are advisory turnover statistics.
type Metrics struct {
	SoldQuantity      types.Quantity `json:"soldQuantity"`
	AverageDailySales float64        `json:"averageDailySales"`
	DaysOnHand        float64        `json:"daysOnHand"`
	TurnoverRate      float64        `json:"turnoverRate"`
	LastSaleAt        *time.Time     `json:"lastSaleAt,omitempty"`
	LastMovementAt    *time.Time     `json:"lastMovementAt,omitempty"`
}

// Balance is the quantity/cost snapshot stored on every movement.
type Balance struct {
	TotalQuantity     types.Quantity `json:"totalQuantity"`
	AvailableQuantity types.Quantity `json:"availableQuantity"`
	ReservedQuantity  types.Quantity `json:"reservedQuantity"`
	AverageCostPrice  types.Money    `json:"averageCostPrice"`
}

// Consistent reports whether total = available + reserved.
func (b Balance) Consistent() bool {
	return b.TotalQuantity == b.AvailableQuantity+b.ReservedQuantity
}

// SameQuantities compares the three quantity pools.
func (b Balance) SameQuantities(o Balance) bool {
	return b.TotalQuantity == o.TotalQuantity &&
		b.AvailableQuantity == o.AvailableQuantity &&
		b.ReservedQuantity == o.ReservedQuantity
}

// Record is the inventory aggregate for one (tenant, product, variant).
//
// Invariant: TotalQuantity == AvailableQuantity + ReservedQuantity.
// Lots are owned by the record and change only through its methods.
type Record struct {
	ID          id.ID   `db:"id" json:"id"`
	TenantID    string  `db:"tenant_id" json:"tenantId"`
	ProductID   id.ID   `db:"product_id" json:"productId"`
	ProductSKU  string  `db:"product_sku" json:"productSku"`
	ProductName string  `db:"product_name" json:"productName"`
	VariantID   *id.ID  `db:"variant_id" json:"variantId,omitempty"`
	VariantSKU  *string `db:"variant_sku" json:"variantSku,omitempty"`

	TotalQuantity     types.Quantity `db:"total_quantity" json:"totalQuantity"`
	AvailableQuantity types.Quantity `db:"available_quantity" json:"availableQuantity"`
	ReservedQuantity  types.Quantity `db:"reserved_quantity" json:"reservedQuantity"`
	CommittedQuantity types.Quantity `db:"committed_quantity" json:"committedQuantity"`

	AverageCostPrice types.Money `db:"average_cost_price" json:"averageCostPrice"`
	LastCostPrice    types.Money `db:"last_cost_price" json:"lastCostPrice"`

	Lots     Lots      `db:"lots" json:"lots"`
	Location *Location `db:"location" json:"location,omitempty"`
	Alerts   Alerts    `db:"alerts" json:"alerts"`
	Metrics  Metrics   `db:"metrics" json:"metrics"`

	IsActive  bool      `db:"is_active" json:"isActive"`
	Version   int       `db:"version" json:"version"`
	CreatedBy string    `db:"created_by" json:"createdBy"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Key is the natural identity of a record inside a tenant.
type Key struct {
	ProductSKU string
	VariantSKU *string
}

func (k Key) String() string {
	if k.VariantSKU != nil && *k.VariantSKU != "" {
		return k.ProductSKU + "/" + *k.VariantSKU
	}
	return k.ProductSKU
}

// Key returns the record's natural identity.
func (r *Record) Key() Key {
	return Key{ProductSKU: r.ProductSKU, VariantSKU: r.VariantSKU}
}

// SKU returns the most specific SKU of the record, used in messages.
func (r *Record) SKU() string {
	return r.Key().String()
}

// Snapshot returns the current balance.
func (r *Record) Snapshot() Balance {
	return Balance{
		TotalQuantity:     r.TotalQuantity,
		AvailableQuantity: r.AvailableQuantity,
		ReservedQuantity:  r.ReservedQuantity,
		AverageCostPrice:  r.AverageCostPrice,
	}
}

// Clone returns a deep copy. Lots and pointer fields are not shared.
func (r *Record) Clone() *Record {
	c := *r
	c.Lots = r.Lots.clone()
	if r.Location != nil {
		loc := *r.Location
		c.Location = &loc
	}
	if r.VariantID != nil {
		v := *r.VariantID
		c.VariantID = &v
	}
	if r.VariantSKU != nil {
		v := *r.VariantSKU
		c.VariantSKU = &v
	}
	c.Alerts.LastAlertSent = cloneTime(r.Alerts.LastAlertSent)
	c.Metrics.LastSaleAt = cloneTime(r.Metrics.LastSaleAt)
	c.Metrics.LastMovementAt = cloneTime(r.Metrics.LastMovementAt)
	return &c
}

// Value is total quantity valued at average cost.
func (r *Record) Value() types.Money {
	return r.TotalQuantity.MulMoney(r.AverageCostPrice)
}

// CreateInput describes a new record.
type CreateInput struct {
	ProductID     id.ID
	ProductSKU    string
	ProductName   string
	VariantID     *id.ID
	VariantSKU    *string
	TotalQuantity types.Quantity
	AverageCost   types.Money
	Lots          []LotInput
	Location      *Location
}

// Validate checks the input shape.
func (in CreateInput) Validate() error {
	if id.IsNil(in.ProductID) {
		return apperror.NewValidation("productId is required")
	}
	if strings.TrimSpace(in.ProductSKU) == "" {
		return apperror.NewValidation("productSku is required")
	}
	if strings.TrimSpace(in.ProductName) == "" {
		return apperror.NewValidation("productName is required")
	}
	if in.TotalQuantity.IsNegative() {
		return apperror.NewValidation("totalQuantity must be zero or positive")
	}
	if in.AverageCost.IsNegative() {
		return apperror.NewValidation("averageCostPrice must be zero or positive")
	}
	seen := make(map[string]struct{}, len(in.Lots))
	for _, l := range in.Lots {
		if err := l.Validate(); err != nil {
			return err
		}
		if _, dup := seen[l.LotNumber]; dup {
			return apperror.NewValidation("duplicate lot number " + l.LotNumber)
		}
		seen[l.LotNumber] = struct{}{}
	}
	return nil
}

// Key returns the natural identity the input targets.
func (in CreateInput) Key() Key {
	return Key{ProductSKU: in.ProductSKU, VariantSKU: in.VariantSKU}
}

// NewRecord builds an active record from the input.
func NewRecord(tenantID, createdBy string, in CreateInput, now time.Time) *Record {
	r := &Record{
		ID:        id.New(),
		TenantID:  tenantID,
		CreatedBy: createdBy,
		CreatedAt: now,
	}
	r.reset(in, now)
	return r
}

// reset overwrites identity, quantities, cost, lots and alerts with the input.
// Used for new records and for reactivation.
func (r *Record) reset(in CreateInput, now time.Time) {
	r.ProductID = in.ProductID
	r.ProductSKU = in.ProductSKU
	r.ProductName = in.ProductName
	r.VariantID = in.VariantID
	r.VariantSKU = in.VariantSKU
	r.TotalQuantity = in.TotalQuantity
	r.AvailableQuantity = in.TotalQuantity
	r.ReservedQuantity = 0
	r.CommittedQuantity = 0
	r.AverageCostPrice = types.RoundCost(in.AverageCost)
	r.LastCostPrice = r.AverageCostPrice
	r.Location = in.Location
	r.Alerts = Alerts{}
	r.Metrics = Metrics{}
	r.Lots = make(Lots, 0, len(in.Lots))
	for _, l := range in.Lots {
		r.Lots = append(r.Lots, l.toLot(now))
	}
	r.IsActive = true
	r.UpdatedAt = now
}

// zeroOut clears quantities ahead of a reactivation. Used so the movement log
// records the reset explicitly.
func (r *Record) zeroOut() {
	r.TotalQuantity = 0
	r.AvailableQuantity = 0
	r.ReservedQuantity = 0
}

// Deactivate soft-deletes the record. Reserved stock blocks deactivation.
func (r *Record) Deactivate(now time.Time) error {
	if !r.IsActive {
		return apperror.NewInvalidState("inventory record is already inactive")
	}
	if r.ReservedQuantity > 0 {
		return apperror.NewInvalidState("inventory record has reserved stock").
			WithDetail("inventory_id", r.ID.String()).
			WithDetail("reserved", r.ReservedQuantity)
	}
	r.IsActive = false
	r.UpdatedAt = now
	return nil
}

// touch records a movement for metrics and timestamps.
func (r *Record) touch(now time.Time) {
	r.UpdatedAt = now
	t := now
	r.Metrics.LastMovementAt = &t
}

// recordSale updates the advisory turnover metrics after stock leaves.
func (r *Record) recordSale(qty types.Quantity, now time.Time) {
	r.Metrics.SoldQuantity += qty
	t := now
	r.Metrics.LastSaleAt = &t

	days := now.Sub(r.CreatedAt).Hours() / 24
	if days < 1 {
		days = 1
	}
	r.Metrics.AverageDailySales = r.Metrics.SoldQuantity.Float64() / days
	if r.Metrics.AverageDailySales > 0 {
		r.Metrics.DaysOnHand = r.TotalQuantity.Float64() / r.Metrics.AverageDailySales
	}
	if r.TotalQuantity > 0 {
		r.Metrics.TurnoverRate = r.Metrics.SoldQuantity.Float64() / r.TotalQuantity.Float64()
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
