package inventory

import (
	"context"
	"time"

	"foodledger/internal/core/id"
	"foodledger/internal/core/types"
	"foodledger/internal/domain"
)

// RecordRepository persists inventory records. Every method is scoped by
// tenantID; a record of another tenant is reported as not found.
type RecordRepository interface {
	// Insert stores a new record with version 1.
	Insert(ctx context.Context, r *Record) error

	// Update writes r if the stored version still equals r.Version and then
	// increments r.Version. A stale version yields a concurrent-modification error.
	Update(ctx context.Context, r *Record) error

	// Get returns an active or inactive record by id.
	Get(ctx context.Context, tenantID string, inventoryID id.ID) (*Record, error)

	// GetForUpdate is Get with a row lock held until the transaction ends.
	GetForUpdate(ctx context.Context, tenantID string, inventoryID id.ID) (*Record, error)

	// FindByKey returns the record for a SKU/variant, active or not.
	FindByKey(ctx context.Context, tenantID string, key Key) (*Record, error)

	// FindByKeyForUpdate is FindByKey with a row lock.
	FindByKeyForUpdate(ctx context.Context, tenantID string, key Key) (*Record, error)

	// List returns a filtered page of records.
	List(ctx context.Context, tenantID string, filter ListFilter) (domain.ListResult[Record], error)

	// Summary aggregates counters and stock value over active records.
	Summary(ctx context.Context, tenantID string) (Summary, error)

	// StockByProduct sums quantities per product across variants.
	StockByProduct(ctx context.Context, tenantID string, productIDs []id.ID) ([]ProductStock, error)
}

// MovementRepository is the append-only movement log.
type MovementRepository interface {
	// Append inserts movements in order.
	Append(ctx context.Context, ms []Movement) error

	// ByOrder returns every movement referencing orderID, oldest first.
	ByOrder(ctx context.Context, tenantID, orderID string) ([]Movement, error)

	// ByInventory returns the full history of one record, oldest first.
	ByInventory(ctx context.Context, tenantID string, inventoryID id.ID) ([]Movement, error)

	// List returns a filtered page, newest first.
	List(ctx context.Context, tenantID string, filter MovementFilter) (domain.ListResult[Movement], error)

	// ExpiredReservations finds orders holding reservations whose expiry is
	// before now and which have not been released or committed yet.
	ExpiredReservations(ctx context.Context, now time.Time, limit int) ([]OrderRef, error)
}

// ProductCatalog is the read-only product lookup.
type ProductCatalog interface {
	// Settings returns the product settings or a not-found error.
	Settings(ctx context.Context, tenantID string, productID id.ID) (ProductSettings, error)
}

// AlertNotifier receives alert transitions.
type AlertNotifier interface {
	AlertRaised(ctx context.Context, r *Record, delta AlertDelta) error
}

// CostPoster receives cost-relevant movements for journal posting.
type CostPoster interface {
	MovementPosted(ctx context.Context, r *Record, m *Movement) error
}

// AuditLogger records before/after states of manual corrections.
type AuditLogger interface {
	LogChange(ctx context.Context, action string, before, after *Record) error
}

// SortField is the sort key of a record query.
type SortField string

const (
	SortByProductName       SortField = "productName"
	SortByAvailableQuantity SortField = "availableQuantity"
	SortByLastUpdated       SortField = "lastUpdated"
)

// ListFilter filters record queries.
type ListFilter struct {
	Search          string
	Warehouse       string
	LowStock        bool
	NearExpiration  bool
	Expired         bool
	MinAvailable    *types.Quantity
	// ExpiringFrom/ExpiringTo select records holding an available lot that
	// expires inside the window.
	ExpiringFrom    *time.Time
	ExpiringTo      *time.Time
	IncludeInactive bool
	SortBy          SortField
	SortDesc        bool
	domain.Page
}

// MovementFilter filters movement queries.
type MovementFilter struct {
	InventoryID  *id.ID
	ProductSKU   string
	MovementType MovementType
	OrderID      string
	DateFrom     *time.Time
	DateTo       *time.Time
	domain.Page
}

// Summary is the tenant-wide stock overview.
type Summary struct {
	TotalProducts       int64       `json:"totalProducts" db:"total_products"`
	LowStockCount       int64       `json:"lowStockCount" db:"low_stock_count"`
	NearExpirationCount int64       `json:"nearExpirationCount" db:"near_expiration_count"`
	ExpiredCount        int64       `json:"expiredCount" db:"expired_count"`
	TotalValue          types.Money `json:"totalValue" db:"total_value"`
}

// ProductStock is the per-product total over its variants.
type ProductStock struct {
	ProductID         id.ID          `json:"productId" db:"product_id"`
	Records           int64          `json:"records" db:"records"`
	TotalQuantity     types.Quantity `json:"totalQuantity" db:"total_quantity"`
	AvailableQuantity types.Quantity `json:"availableQuantity" db:"available_quantity"`
	ReservedQuantity  types.Quantity `json:"reservedQuantity" db:"reserved_quantity"`
}

// OrderRef points at an order within a tenant.
type OrderRef struct {
	TenantID string `db:"tenant_id"`
	OrderID  string `db:"order_id"`
}
