// Package inventory_repo provides the PostgreSQL implementation of the
// inventory ledger repositories. All tenants share one schema; every query
// is filtered by tenant_id.
package inventory_repo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"foodledger/internal/core/apperror"
	"foodledger/internal/core/id"
	"foodledger/internal/core/types"
	"foodledger/internal/domain"
	"foodledger/internal/domain/inventory"
	"foodledger/internal/infrastructure/storage/postgres"
)

const (
	recordsTable = "inv_records"
	recordEntity = "inventory"
)

var _ inventory.RecordRepository = (*RecordRepo)(nil)

// recordRow is the table shape of a record. Lots, location, alerts and
// metrics are stored as JSONB.
type recordRow struct {
	ID                id.ID          `db:"id"`
	TenantID          string         `db:"tenant_id"`
	ProductID         id.ID          `db:"product_id"`
	ProductSKU        string         `db:"product_sku"`
	ProductName       string         `db:"product_name"`
	VariantID         *id.ID         `db:"variant_id"`
	VariantSKU        *string        `db:"variant_sku"`
	TotalQuantity     types.Quantity `db:"total_quantity"`
	AvailableQuantity types.Quantity `db:"available_quantity"`
	ReservedQuantity  types.Quantity `db:"reserved_quantity"`
	CommittedQuantity types.Quantity `db:"committed_quantity"`
	AverageCostPrice  types.Money    `db:"average_cost_price"`
	LastCostPrice     types.Money    `db:"last_cost_price"`
	Lots              []byte         `db:"lots"`
	Location          []byte         `db:"location"`
	Alerts            []byte         `db:"alerts"`
	Metrics           []byte         `db:"metrics"`
	IsActive          bool           `db:"is_active"`
	Version           int            `db:"version"`
	CreatedBy         string         `db:"created_by"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
}

var recordColumns = postgres.ExtractDBColumns[recordRow]()

func toRecordRow(r *inventory.Record) (recordRow, error) {
	row := recordRow{
		ID:                r.ID,
		TenantID:          r.TenantID,
		ProductID:         r.ProductID,
		ProductSKU:        r.ProductSKU,
		ProductName:       r.ProductName,
		VariantID:         r.VariantID,
		VariantSKU:        r.VariantSKU,
		TotalQuantity:     r.TotalQuantity,
		AvailableQuantity: r.AvailableQuantity,
		ReservedQuantity:  r.ReservedQuantity,
		CommittedQuantity: r.CommittedQuantity,
		AverageCostPrice:  r.AverageCostPrice,
		LastCostPrice:     r.LastCostPrice,
		IsActive:          r.IsActive,
		Version:           r.Version,
		CreatedBy:         r.CreatedBy,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}

	lots := r.Lots
	if lots == nil {
		lots = inventory.Lots{}
	}
	var err error
	if row.Lots, err = json.Marshal(lots); err != nil {
		return row, fmt.Errorf("marshal lots: %w", err)
	}
	if r.Location != nil {
		if row.Location, err = json.Marshal(r.Location); err != nil {
			return row, fmt.Errorf("marshal location: %w", err)
		}
	}
	if row.Alerts, err = json.Marshal(r.Alerts); err != nil {
		return row, fmt.Errorf("marshal alerts: %w", err)
	}
	if row.Metrics, err = json.Marshal(r.Metrics); err != nil {
		return row, fmt.Errorf("marshal metrics: %w", err)
	}
	return row, nil
}

func (row recordRow) toRecord() (inventory.Record, error) {
	r := inventory.Record{
		ID:                row.ID,
		TenantID:          row.TenantID,
		ProductID:         row.ProductID,
		ProductSKU:        row.ProductSKU,
		ProductName:       row.ProductName,
		VariantID:         row.VariantID,
		VariantSKU:        row.VariantSKU,
		TotalQuantity:     row.TotalQuantity,
		AvailableQuantity: row.AvailableQuantity,
		ReservedQuantity:  row.ReservedQuantity,
		CommittedQuantity: row.CommittedQuantity,
		AverageCostPrice:  row.AverageCostPrice,
		LastCostPrice:     row.LastCostPrice,
		IsActive:          row.IsActive,
		Version:           row.Version,
		CreatedBy:         row.CreatedBy,
		CreatedAt:         row.CreatedAt,
		UpdatedAt:         row.UpdatedAt,
		Lots:              inventory.Lots{},
	}
	if len(row.Lots) > 0 {
		if err := json.Unmarshal(row.Lots, &r.Lots); err != nil {
			return r, fmt.Errorf("unmarshal lots of %s: %w", row.ID, err)
		}
	}
	if len(row.Location) > 0 && string(row.Location) != "null" {
		r.Location = &inventory.Location{}
		if err := json.Unmarshal(row.Location, r.Location); err != nil {
			return r, fmt.Errorf("unmarshal location of %s: %w", row.ID, err)
		}
	}
	if len(row.Alerts) > 0 {
		if err := json.Unmarshal(row.Alerts, &r.Alerts); err != nil {
			return r, fmt.Errorf("unmarshal alerts of %s: %w", row.ID, err)
		}
	}
	if len(row.Metrics) > 0 {
		if err := json.Unmarshal(row.Metrics, &r.Metrics); err != nil {
			return r, fmt.Errorf("unmarshal metrics of %s: %w", row.ID, err)
		}
	}
	return r, nil
}

// RecordRepo implements inventory.RecordRepository.
type RecordRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewRecordRepo creates a record repository.
func NewRecordRepo(txm *postgres.TxManager) *RecordRepo {
	return &RecordRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Insert stores a new record with version 1.
func (r *RecordRepo) Insert(ctx context.Context, rec *inventory.Record) error {
	rec.Version = 1
	row, err := toRecordRow(rec)
	if err != nil {
		return err
	}

	sql, args, err := r.builder.Insert(recordsTable).SetMap(postgres.StructToMap(row)).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return postgres.MapError(fmt.Errorf("insert inventory record: %w", err), recordEntity, rec.SKU())
	}
	return nil
}

// Update writes rec if its version is still current, then bumps rec.Version.
func (r *RecordRepo) Update(ctx context.Context, rec *inventory.Record) error {
	row, err := toRecordRow(rec)
	if err != nil {
		return err
	}

	set := postgres.StructToMap(row)
	for _, immutable := range []string{"id", "tenant_id", "created_by", "created_at", "version"} {
		delete(set, immutable)
	}

	sql, args, err := r.builder.Update(recordsTable).
		SetMap(set).
		Set("version", rec.Version+1).
		Where(squirrel.Eq{"id": rec.ID, "tenant_id": rec.TenantID, "version": rec.Version}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(fmt.Errorf("update inventory record: %w", err), recordEntity, rec.SKU())
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification(recordEntity, rec.ID.String())
	}
	rec.Version++
	return nil
}

// Get returns a record by id.
func (r *RecordRepo) Get(ctx context.Context, tenantID string, inventoryID id.ID) (*inventory.Record, error) {
	return r.getOne(ctx, r.byID(tenantID, inventoryID), inventoryID.String())
}

// GetForUpdate is Get with a row lock.
func (r *RecordRepo) GetForUpdate(ctx context.Context, tenantID string, inventoryID id.ID) (*inventory.Record, error) {
	return r.getOne(ctx, r.byID(tenantID, inventoryID).Suffix("FOR UPDATE"), inventoryID.String())
}

// FindByKey returns the record for a SKU/variant.
func (r *RecordRepo) FindByKey(ctx context.Context, tenantID string, key inventory.Key) (*inventory.Record, error) {
	return r.getOne(ctx, r.byKey(tenantID, key), key.String())
}

// FindByKeyForUpdate is FindByKey with a row lock.
func (r *RecordRepo) FindByKeyForUpdate(ctx context.Context, tenantID string, key inventory.Key) (*inventory.Record, error) {
	return r.getOne(ctx, r.byKey(tenantID, key).Suffix("FOR UPDATE"), key.String())
}

func (r *RecordRepo) byID(tenantID string, inventoryID id.ID) squirrel.SelectBuilder {
	return r.builder.Select(recordColumns...).
		From(recordsTable).
		Where(squirrel.Eq{"tenant_id": tenantID, "id": inventoryID})
}

func (r *RecordRepo) byKey(tenantID string, key inventory.Key) squirrel.SelectBuilder {
	variant := ""
	if key.VariantSKU != nil {
		variant = *key.VariantSKU
	}
	return r.builder.Select(recordColumns...).
		From(recordsTable).
		Where(squirrel.Eq{"tenant_id": tenantID, "product_sku": key.ProductSKU}).
		Where(squirrel.Expr("coalesce(variant_sku, '') = ?", variant))
}

func (r *RecordRepo) getOne(ctx context.Context, q squirrel.SelectBuilder, key string) (*inventory.Record, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var row recordRow
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(recordEntity, key)
		}
		return nil, postgres.MapError(fmt.Errorf("get inventory record: %w", err), recordEntity, key)
	}

	rec, err := row.toRecord()
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

var sortColumns = map[inventory.SortField]string{
	inventory.SortByProductName:       "product_name",
	inventory.SortByAvailableQuantity: "available_quantity",
	inventory.SortByLastUpdated:       "updated_at",
}

// recordConditions translates a list filter into WHERE conditions.
func recordConditions(tenantID string, f inventory.ListFilter) squirrel.And {
	conds := squirrel.And{squirrel.Eq{"tenant_id": tenantID}}
	if !f.IncludeInactive {
		conds = append(conds, squirrel.Eq{"is_active": true})
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		pattern := "%" + escapeLike(s) + "%"
		conds = append(conds, squirrel.Or{
			squirrel.ILike{"product_sku": pattern},
			squirrel.ILike{"product_name": pattern},
			squirrel.ILike{"variant_sku": pattern},
		})
	}
	if f.Warehouse != "" {
		conds = append(conds, squirrel.Expr("location->>'warehouse' = ?", f.Warehouse))
	}
	if f.LowStock {
		conds = append(conds, squirrel.Expr("(alerts->>'lowStock')::boolean"))
	}
	if f.NearExpiration {
		conds = append(conds, squirrel.Expr("(alerts->>'nearExpiration')::boolean"))
	}
	if f.Expired {
		conds = append(conds, squirrel.Expr("(alerts->>'expired')::boolean"))
	}
	if f.MinAvailable != nil {
		conds = append(conds, squirrel.GtOrEq{"available_quantity": f.MinAvailable.Int64Scaled()})
	}
	if f.ExpiringTo != nil {
		from := time.Time{}
		if f.ExpiringFrom != nil {
			from = *f.ExpiringFrom
		}
		conds = append(conds, squirrel.Expr(`EXISTS (
			SELECT 1 FROM jsonb_array_elements(lots) AS lot
			WHERE lot->>'status' = 'available'
			  AND (lot->>'availableQuantity')::numeric > 0
			  AND lot->>'expirationDate' IS NOT NULL
			  AND (lot->>'expirationDate')::timestamptz >= ?
			  AND (lot->>'expirationDate')::timestamptz <= ?)`, from, *f.ExpiringTo))
	}
	return conds
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *RecordRepo) listQueries(tenantID string, f inventory.ListFilter) (count, page squirrel.SelectBuilder) {
	conds := recordConditions(tenantID, f)
	count = r.builder.Select("COUNT(*)").From(recordsTable).Where(conds)

	col, ok := sortColumns[f.SortBy]
	if !ok {
		col = "updated_at"
	}
	dir := "ASC"
	if f.SortDesc {
		dir = "DESC"
	}
	p := f.Page.Normalize()
	page = r.builder.Select(recordColumns...).
		From(recordsTable).
		Where(conds).
		OrderBy(col+" "+dir, "id "+dir).
		Limit(uint64(p.Limit)).
		Offset(uint64(f.Page.Offset()))
	return count, page
}

// List returns a filtered page of records.
func (r *RecordRepo) List(ctx context.Context, tenantID string, f inventory.ListFilter) (domain.ListResult[inventory.Record], error) {
	countQ, pageQ := r.listQueries(tenantID, f)
	querier := r.txm.GetQuerier(ctx)

	sql, args, err := countQ.ToSql()
	if err != nil {
		return domain.ListResult[inventory.Record]{}, fmt.Errorf("build count: %w", err)
	}
	var total int64
	if err := querier.QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return domain.ListResult[inventory.Record]{}, postgres.MapError(fmt.Errorf("count inventory records: %w", err), recordEntity, "")
	}

	sql, args, err = pageQ.ToSql()
	if err != nil {
		return domain.ListResult[inventory.Record]{}, fmt.Errorf("build select: %w", err)
	}
	var rows []recordRow
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return domain.ListResult[inventory.Record]{}, postgres.MapError(fmt.Errorf("list inventory records: %w", err), recordEntity, "")
	}

	items := make([]inventory.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toRecord()
		if err != nil {
			return domain.ListResult[inventory.Record]{}, err
		}
		items = append(items, rec)
	}

	return domain.ListResult[inventory.Record]{
		Items:      items,
		TotalCount: total,
		Limit:      f.Page.Normalize().Limit,
		Offset:     f.Page.Offset(),
	}, nil
}

// summaryQuery aggregates counters and stock value over active records.
// total_quantity is stored scaled by QuantityScale.
func (r *RecordRepo) summaryQuery(tenantID string) squirrel.SelectBuilder {
	return r.builder.Select(
		"COUNT(*) AS total_products",
		"COUNT(*) FILTER (WHERE (alerts->>'lowStock')::boolean) AS low_stock_count",
		"COUNT(*) FILTER (WHERE (alerts->>'nearExpiration')::boolean) AS near_expiration_count",
		"COUNT(*) FILTER (WHERE (alerts->>'expired')::boolean) AS expired_count",
		fmt.Sprintf("COALESCE(SUM(total_quantity::numeric / %d * average_cost_price), 0) AS total_value", types.QuantityScale),
	).
		From(recordsTable).
		Where(squirrel.Eq{"tenant_id": tenantID, "is_active": true})
}

// Summary aggregates the tenant's active records.
func (r *RecordRepo) Summary(ctx context.Context, tenantID string) (inventory.Summary, error) {
	sql, args, err := r.summaryQuery(tenantID).ToSql()
	if err != nil {
		return inventory.Summary{}, fmt.Errorf("build summary: %w", err)
	}

	var sum inventory.Summary
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &sum, sql, args...); err != nil {
		return inventory.Summary{}, postgres.MapError(fmt.Errorf("inventory summary: %w", err), recordEntity, "")
	}
	sum.TotalValue = sum.TotalValue.Round(2)
	return sum, nil
}

func (r *RecordRepo) stockByProductQuery(tenantID string, productIDs []id.ID) squirrel.SelectBuilder {
	q := r.builder.Select(
		"product_id",
		"COUNT(*) AS records",
		"SUM(total_quantity)::bigint AS total_quantity",
		"SUM(available_quantity)::bigint AS available_quantity",
		"SUM(reserved_quantity)::bigint AS reserved_quantity",
	).
		From(recordsTable).
		Where(squirrel.Eq{"tenant_id": tenantID, "is_active": true}).
		GroupBy("product_id").
		OrderBy("product_id")
	if len(productIDs) > 0 {
		q = q.Where(squirrel.Eq{"product_id": productIDs})
	}
	return q
}

// StockByProduct sums quantities per product across variants.
func (r *RecordRepo) StockByProduct(ctx context.Context, tenantID string, productIDs []id.ID) ([]inventory.ProductStock, error) {
	sql, args, err := r.stockByProductQuery(tenantID, productIDs).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build stock by product: %w", err)
	}

	var out []inventory.ProductStock
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, postgres.MapError(fmt.Errorf("stock by product: %w", err), recordEntity, "")
	}
	return out, nil
}
