// Package catalog_repo reads catalog data the ledger depends on.
package catalog_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"foodledger/internal/core/apperror"
	"foodledger/internal/core/id"
	"foodledger/internal/core/types"
	"foodledger/internal/domain/inventory"
	"foodledger/internal/infrastructure/storage/postgres"
)

const productsTable = "cat_products"

var _ inventory.ProductCatalog = (*ProductRepo)(nil)

type productRow struct {
	ID              id.ID           `db:"id"`
	MinimumStock    types.Quantity  `db:"minimum_stock"`
	MaximumStock    *types.Quantity `db:"maximum_stock"`
	TrackExpiration bool            `db:"track_expiration"`
	ShelfLifeDays   int             `db:"shelf_life_days"`
	TrackLots       bool            `db:"track_lots"`
	IsPerishable    bool            `db:"is_perishable"`
	UnitOfMeasure   string          `db:"unit_of_measure"`
}

func (row productRow) settings() inventory.ProductSettings {
	return inventory.ProductSettings{
		ProductID: row.ID,
		Thresholds: inventory.Thresholds{
			MinimumStock:    row.MinimumStock,
			MaximumStock:    row.MaximumStock,
			TrackExpiration: row.TrackExpiration,
			ShelfLifeDays:   row.ShelfLifeDays,
		},
		TrackLots:     row.TrackLots,
		IsPerishable:  row.IsPerishable,
		UnitOfMeasure: row.UnitOfMeasure,
	}
}

// ProductRepo implements inventory.ProductCatalog over cat_products.
type ProductRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewProductRepo creates a product catalog reader.
func NewProductRepo(txm *postgres.TxManager) *ProductRepo {
	return &ProductRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *ProductRepo) settingsQuery(tenantID string, productID id.ID) squirrel.SelectBuilder {
	return r.builder.Select(postgres.ExtractDBColumns[productRow]()...).
		From(productsTable).
		Where(squirrel.Eq{"tenant_id": tenantID, "id": productID}).
		Where(squirrel.Eq{"deletion_mark": false})
}

// Settings returns the stock settings of a product.
func (r *ProductRepo) Settings(ctx context.Context, tenantID string, productID id.ID) (inventory.ProductSettings, error) {
	sql, args, err := r.settingsQuery(tenantID, productID).ToSql()
	if err != nil {
		return inventory.ProductSettings{}, fmt.Errorf("build select: %w", err)
	}

	var row productRow
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return inventory.ProductSettings{}, apperror.NewNotFound("product", productID.String())
		}
		return inventory.ProductSettings{}, postgres.MapError(fmt.Errorf("get product settings: %w", err), "product", productID.String())
	}
	return row.settings(), nil
}
