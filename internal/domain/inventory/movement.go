package inventory

import (
	"time"

	"foodledger/internal/core/apperror"
	"foodledger/internal/core/id"
	"foodledger/internal/core/types"
)

// MovementType classifies a movement.
type MovementType string

const (
	MovementIn          MovementType = "in"
	MovementOut         MovementType = "out"
	MovementAdjustment  MovementType = "adjustment"
	MovementTransfer    MovementType = "transfer"
	MovementReservation MovementType = "reservation"
	MovementRelease     MovementType = "release"
)

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	switch t {
	case MovementIn, MovementOut, MovementAdjustment, MovementTransfer, MovementReservation, MovementRelease:
		return true
	}
	return false
}

// Movement is an immutable ledger entry. It is written once, in the same
// transaction as the record change it describes, and never updated.
type Movement struct {
	ID           id.ID          `db:"id" json:"id"`
	TenantID     string         `db:"tenant_id" json:"tenantId"`
	InventoryID  id.ID          `db:"inventory_id" json:"inventoryId"`
	ProductID    id.ID          `db:"product_id" json:"productId"`
	ProductSKU   string         `db:"product_sku" json:"productSku"`
	LotNumber    *string        `db:"lot_number" json:"lotNumber,omitempty"`
	OrderID      *string        `db:"order_id" json:"orderId,omitempty"`
	SupplierID   *string        `db:"supplier_id" json:"supplierId,omitempty"`
	MovementType MovementType   `db:"movement_type" json:"movementType"`
	Quantity     types.Quantity `db:"quantity" json:"quantity"`
	UnitCost     types.Money    `db:"unit_cost" json:"unitCost"`
	TotalCost    types.Money    `db:"total_cost" json:"totalCost"`
	// FromReserved marks an "out" that consumed reserved stock (a commit).
	FromReserved bool       `db:"from_reserved" json:"fromReserved"`
	Reason       string     `db:"reason" json:"reason"`
	Reference    *string    `db:"reference" json:"reference,omitempty"`
	BalanceAfter Balance    `db:"balance_after" json:"balanceAfter"`
	ExpiresAt    *time.Time `db:"expires_at" json:"expiresAt,omitempty"`
	CreatedBy    string     `db:"created_by" json:"createdBy"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
}

// Entry is the payload of a single movement. It is one of In, Out, Transfer,
// Reservation, Release or Adjustment.
type Entry interface {
	Type() MovementType
	validate() error
}

// In receives stock at UnitCost, optionally into a lot.
type In struct {
	Quantity   types.Quantity
	UnitCost   types.Money
	Lot        *LotInput
	SupplierID string
}

// Out removes available stock. A zero UnitCost values it at average cost.
type Out struct {
	Quantity  types.Quantity
	UnitCost  types.Money
	LotNumber string
}

// Transfer sends available stock to another location.
type Transfer struct {
	Quantity    types.Quantity
	Destination string
}

// Reservation holds available stock for an order.
type Reservation struct {
	Quantity  types.Quantity
	LotNumber string
	OrderID   string
	ExpiresAt *time.Time
}

// Release returns reserved stock to the available pool.
type Release struct {
	Quantity  types.Quantity
	LotNumber string
	OrderID   string
}

// Adjustment sets the total to an absolute value.
type Adjustment struct {
	NewQuantity  types.Quantity
	NewCostPrice *types.Money
	LotNumber    string
}

func (In) Type() MovementType          { return MovementIn }
func (Out) Type() MovementType         { return MovementOut }
func (Transfer) Type() MovementType    { return MovementTransfer }
func (Reservation) Type() MovementType { return MovementReservation }
func (Release) Type() MovementType     { return MovementRelease }
func (Adjustment) Type() MovementType  { return MovementAdjustment }

func positive(q types.Quantity) error {
	if !q.IsPositive() {
		return apperror.NewValidation("quantity must be positive")
	}
	return nil
}

func (e In) validate() error {
	if err := positive(e.Quantity); err != nil {
		return err
	}
	if e.UnitCost.IsNegative() {
		return apperror.NewValidation("unitCost must be zero or positive")
	}
	return nil
}

func (e Out) validate() error {
	if err := positive(e.Quantity); err != nil {
		return err
	}
	if e.UnitCost.IsNegative() {
		return apperror.NewValidation("unitCost must be zero or positive")
	}
	return nil
}

func (e Transfer) validate() error    { return positive(e.Quantity) }
func (e Reservation) validate() error { return positive(e.Quantity) }
func (e Release) validate() error     { return positive(e.Quantity) }

func (e Adjustment) validate() error {
	if e.NewQuantity.IsNegative() {
		return apperror.NewValidation("newQuantity must be zero or positive")
	}
	return nil
}

// apply mutates the record for e and returns the movement describing it.
// Identity, tenant, reason and timestamps are filled in by the caller.
func (r *Record) apply(e Entry, now time.Time) (Movement, error) {
	if err := e.validate(); err != nil {
		return Movement{}, err
	}

	m := Movement{MovementType: e.Type(), UnitCost: r.AverageCostPrice}

	switch e := e.(type) {
	case In:
		if err := r.receive(e.Quantity, e.UnitCost, e.Lot, now); err != nil {
			return Movement{}, err
		}
		m.Quantity = e.Quantity
		m.UnitCost = e.UnitCost
		m.SupplierID = optional(e.SupplierID)
		if e.Lot != nil {
			m.LotNumber = optional(e.Lot.LotNumber)
		}
	case Out:
		cost := e.UnitCost
		if cost.IsZero() {
			cost = r.AverageCostPrice
		}
		if err := r.issue(e.Quantity, e.LotNumber, now); err != nil {
			return Movement{}, err
		}
		m.Quantity = e.Quantity
		m.UnitCost = cost
		m.LotNumber = optional(e.LotNumber)
	case Transfer:
		if err := r.issue(e.Quantity, "", now); err != nil {
			return Movement{}, err
		}
		m.Quantity = e.Quantity
		m.Reference = optional(e.Destination)
	case Reservation:
		if err := r.hold(e.Quantity, e.LotNumber, now); err != nil {
			return Movement{}, err
		}
		m.Quantity = e.Quantity
		m.LotNumber = optional(e.LotNumber)
		m.OrderID = optional(e.OrderID)
		m.ExpiresAt = e.ExpiresAt
	case Release:
		if err := r.unhold(e.Quantity, e.LotNumber, now); err != nil {
			return Movement{}, err
		}
		m.Quantity = e.Quantity
		m.LotNumber = optional(e.LotNumber)
		m.OrderID = optional(e.OrderID)
	case Adjustment:
		diff, err := r.adjustTo(e.NewQuantity, e.NewCostPrice, e.LotNumber, now)
		if err != nil {
			return Movement{}, err
		}
		m.Quantity = diff.Abs()
		m.UnitCost = r.AverageCostPrice
		m.LotNumber = optional(e.LotNumber)
	default:
		return Movement{}, apperror.NewValidation("unsupported movement entry")
	}

	m.BalanceAfter = r.Snapshot()
	return m, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
