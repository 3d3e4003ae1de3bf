package inventory_repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"foodledger/internal/core/id"
	"foodledger/internal/core/types"
	"foodledger/internal/domain"
	"foodledger/internal/domain/inventory"
	"foodledger/internal/infrastructure/storage/postgres"
)

const (
	movementsTable = "inv_movements"
	movementEntity = "inventory movement"

	// appendChunk keeps multi-row inserts below the 65535 bind parameter limit.
	appendChunk = 500
)

var _ inventory.MovementRepository = (*MovementRepo)(nil)

type movementRow struct {
	ID           id.ID                  `db:"id"`
	TenantID     string                 `db:"tenant_id"`
	InventoryID  id.ID                  `db:"inventory_id"`
	ProductID    id.ID                  `db:"product_id"`
	ProductSKU   string                 `db:"product_sku"`
	LotNumber    *string                `db:"lot_number"`
	OrderID      *string                `db:"order_id"`
	SupplierID   *string                `db:"supplier_id"`
	MovementType inventory.MovementType `db:"movement_type"`
	Quantity     types.Quantity         `db:"quantity"`
	UnitCost     types.Money            `db:"unit_cost"`
	TotalCost    types.Money            `db:"total_cost"`
	FromReserved bool                   `db:"from_reserved"`
	Reason       string                 `db:"reason"`
	Reference    *string                `db:"reference"`
	BalanceAfter []byte                 `db:"balance_after"`
	ExpiresAt    *time.Time             `db:"expires_at"`
	CreatedBy    string                 `db:"created_by"`
	CreatedAt    time.Time              `db:"created_at"`
}

var movementColumns = postgres.ExtractDBColumns[movementRow]()

func toMovementRow(m inventory.Movement) (movementRow, error) {
	balance, err := json.Marshal(m.BalanceAfter)
	if err != nil {
		return movementRow{}, fmt.Errorf("marshal balance: %w", err)
	}
	return movementRow{
		ID:           m.ID,
		TenantID:     m.TenantID,
		InventoryID:  m.InventoryID,
		ProductID:    m.ProductID,
		ProductSKU:   m.ProductSKU,
		LotNumber:    m.LotNumber,
		OrderID:      m.OrderID,
		SupplierID:   m.SupplierID,
		MovementType: m.MovementType,
		Quantity:     m.Quantity,
		UnitCost:     m.UnitCost,
		TotalCost:    m.TotalCost,
		FromReserved: m.FromReserved,
		Reason:       m.Reason,
		Reference:    m.Reference,
		BalanceAfter: balance,
		ExpiresAt:    m.ExpiresAt,
		CreatedBy:    m.CreatedBy,
		CreatedAt:    m.CreatedAt,
	}, nil
}

func (row movementRow) toMovement() (inventory.Movement, error) {
	m := inventory.Movement{
		ID:           row.ID,
		TenantID:     row.TenantID,
		InventoryID:  row.InventoryID,
		ProductID:    row.ProductID,
		ProductSKU:   row.ProductSKU,
		LotNumber:    row.LotNumber,
		OrderID:      row.OrderID,
		SupplierID:   row.SupplierID,
		MovementType: row.MovementType,
		Quantity:     row.Quantity,
		UnitCost:     row.UnitCost,
		TotalCost:    row.TotalCost,
		FromReserved: row.FromReserved,
		Reason:       row.Reason,
		Reference:    row.Reference,
		ExpiresAt:    row.ExpiresAt,
		CreatedBy:    row.CreatedBy,
		CreatedAt:    row.CreatedAt,
	}
	if len(row.BalanceAfter) > 0 {
		if err := json.Unmarshal(row.BalanceAfter, &m.BalanceAfter); err != nil {
			return m, fmt.Errorf("unmarshal balance of movement %s: %w", row.ID, err)
		}
	}
	return m, nil
}

// MovementRepo implements inventory.MovementRepository.
type MovementRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewMovementRepo creates a movement repository.
func NewMovementRepo(txm *postgres.TxManager) *MovementRepo {
	return &MovementRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *MovementRepo) appendQuery(ms []inventory.Movement) (squirrel.InsertBuilder, error) {
	q := r.builder.Insert(movementsTable).Columns(movementColumns...)
	for _, m := range ms {
		row, err := toMovementRow(m)
		if err != nil {
			return q, err
		}
		q = q.Values(postgres.StructValues(row, movementColumns)...)
	}
	return q, nil
}

// Append inserts movements in order. Inside a transaction the movements
// become visible together with the record change they describe.
func (r *MovementRepo) Append(ctx context.Context, ms []inventory.Movement) error {
	querier := r.txm.GetQuerier(ctx)
	for start := 0; start < len(ms); start += appendChunk {
		end := min(start+appendChunk, len(ms))

		q, err := r.appendQuery(ms[start:end])
		if err != nil {
			return err
		}
		sql, args, err := q.ToSql()
		if err != nil {
			return fmt.Errorf("build insert: %w", err)
		}
		if _, err := querier.Exec(ctx, sql, args...); err != nil {
			return postgres.MapError(fmt.Errorf("insert movements: %w", err), movementEntity, "")
		}
	}
	return nil
}

// ByOrder returns every movement referencing orderID, oldest first.
func (r *MovementRepo) ByOrder(ctx context.Context, tenantID, orderID string) ([]inventory.Movement, error) {
	q := r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{"tenant_id": tenantID, "order_id": orderID}).
		OrderBy("created_at", "id")
	return r.selectMovements(ctx, q)
}

// ByInventory returns the full history of one record, oldest first.
func (r *MovementRepo) ByInventory(ctx context.Context, tenantID string, inventoryID id.ID) ([]inventory.Movement, error) {
	q := r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{"tenant_id": tenantID, "inventory_id": inventoryID}).
		OrderBy("created_at", "id")
	return r.selectMovements(ctx, q)
}

func (r *MovementRepo) selectMovements(ctx context.Context, q squirrel.SelectBuilder) ([]inventory.Movement, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var rows []movementRow
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, postgres.MapError(fmt.Errorf("select movements: %w", err), movementEntity, "")
	}

	out := make([]inventory.Movement, 0, len(rows))
	for _, row := range rows {
		m, err := row.toMovement()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func movementConditions(tenantID string, f inventory.MovementFilter) squirrel.And {
	conds := squirrel.And{squirrel.Eq{"tenant_id": tenantID}}
	if f.InventoryID != nil {
		conds = append(conds, squirrel.Eq{"inventory_id": *f.InventoryID})
	}
	if f.ProductSKU != "" {
		conds = append(conds, squirrel.Eq{"product_sku": f.ProductSKU})
	}
	if f.MovementType != "" {
		conds = append(conds, squirrel.Eq{"movement_type": f.MovementType})
	}
	if f.OrderID != "" {
		conds = append(conds, squirrel.Eq{"order_id": f.OrderID})
	}
	if f.DateFrom != nil {
		conds = append(conds, squirrel.GtOrEq{"created_at": *f.DateFrom})
	}
	if f.DateTo != nil {
		conds = append(conds, squirrel.LtOrEq{"created_at": *f.DateTo})
	}
	return conds
}

// List returns a filtered page of movements, newest first.
func (r *MovementRepo) List(ctx context.Context, tenantID string, f inventory.MovementFilter) (domain.ListResult[inventory.Movement], error) {
	conds := movementConditions(tenantID, f)
	querier := r.txm.GetQuerier(ctx)

	sql, args, err := r.builder.Select("COUNT(*)").From(movementsTable).Where(conds).ToSql()
	if err != nil {
		return domain.ListResult[inventory.Movement]{}, fmt.Errorf("build count: %w", err)
	}
	var total int64
	if err := querier.QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return domain.ListResult[inventory.Movement]{}, postgres.MapError(fmt.Errorf("count movements: %w", err), movementEntity, "")
	}

	p := f.Page.Normalize()
	items, err := r.selectMovements(ctx, r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(conds).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(p.Limit)).
		Offset(uint64(f.Page.Offset())))
	if err != nil {
		return domain.ListResult[inventory.Movement]{}, err
	}

	return domain.ListResult[inventory.Movement]{
		Items:      items,
		TotalCount: total,
		Limit:      p.Limit,
		Offset:     f.Page.Offset(),
	}, nil
}

// expiredReservationsQuery finds orders whose reservations are still
// outstanding and whose latest hold expired before now. Outstanding means
// reserved minus released minus committed is positive.
func (r *MovementRepo) expiredReservationsQuery(now time.Time, limit int) squirrel.SelectBuilder {
	return r.builder.Select("tenant_id", "order_id").
		From(movementsTable).
		Where(squirrel.And{
			squirrel.NotEq{"order_id": nil},
			squirrel.Eq{"movement_type": []inventory.MovementType{
				inventory.MovementReservation, inventory.MovementRelease, inventory.MovementOut,
			}},
		}).
		GroupBy("tenant_id", "order_id").
		Having(`SUM(CASE
			WHEN movement_type = 'reservation' THEN quantity
			WHEN movement_type = 'release' OR from_reserved THEN -quantity
			ELSE 0 END) > 0`).
		Having("MAX(expires_at) < ?", now).
		OrderBy("MAX(expires_at)").
		Limit(uint64(limit))
}

// ExpiredReservations lists orders with lapsed holds across all tenants.
func (r *MovementRepo) ExpiredReservations(ctx context.Context, now time.Time, limit int) ([]inventory.OrderRef, error) {
	sql, args, err := r.expiredReservationsQuery(now, limit).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build expired reservations: %w", err)
	}

	var out []inventory.OrderRef
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, postgres.MapError(fmt.Errorf("expired reservations: %w", err), movementEntity, "")
	}
	return out, nil
}
