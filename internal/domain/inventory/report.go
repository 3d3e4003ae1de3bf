package inventory

import (
	"context"
	"fmt"
	"time"

	"foodledger/internal/core/apperror"
	"foodledger/internal/core/id"
	"foodledger/internal/domain"
)

// DefaultExpiringDays is the window used by Expiring when none is given.
const DefaultExpiringDays = 7

// List returns a page of records. Results default to the most recently
// updated first.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[Record], error) {
	c, err := callerFrom(ctx)
	if err != nil {
		return domain.ListResult[Record]{}, err
	}
	switch filter.SortBy {
	case "":
		filter.SortBy = SortByLastUpdated
		filter.SortDesc = true
	case SortByProductName, SortByAvailableQuantity, SortByLastUpdated:
	default:
		return domain.ListResult[Record]{}, apperror.NewValidation("unknown sortBy " + string(filter.SortBy))
	}
	filter.Page = filter.Page.Normalize()

	res, err := s.records.List(ctx, c.tenantID, filter)
	if err != nil {
		return domain.ListResult[Record]{}, normalizeErr(err)
	}
	return res, nil
}

// Movements returns a page of the movement log, newest first.
func (s *Service) Movements(ctx context.Context, filter MovementFilter) (domain.ListResult[Movement], error) {
	c, err := callerFrom(ctx)
	if err != nil {
		return domain.ListResult[Movement]{}, err
	}
	if filter.MovementType != "" && !filter.MovementType.Valid() {
		return domain.ListResult[Movement]{}, apperror.NewValidation("unknown movementType " + string(filter.MovementType))
	}
	if filter.DateFrom != nil && filter.DateTo != nil && filter.DateTo.Before(*filter.DateFrom) {
		return domain.ListResult[Movement]{}, apperror.NewValidation("dateTo is before dateFrom")
	}
	filter.Page = filter.Page.Normalize()

	res, err := s.movements.List(ctx, c.tenantID, filter)
	if err != nil {
		return domain.ListResult[Movement]{}, normalizeErr(err)
	}
	return res, nil
}

// LowStock lists active records flagged low on stock.
func (s *Service) LowStock(ctx context.Context, page domain.Page) (domain.ListResult[Record], error) {
	return s.List(ctx, ListFilter{
		LowStock: true,
		SortBy:   SortByAvailableQuantity,
		Page:     page,
	})
}

// Expiring lists active records holding an available lot that expires within
// days from now.
func (s *Service) Expiring(ctx context.Context, days int, page domain.Page) (domain.ListResult[Record], error) {
	if days <= 0 {
		days = DefaultExpiringDays
	}
	now := s.now()
	to := now.Add(time.Duration(days) * 24 * time.Hour)
	return s.List(ctx, ListFilter{
		ExpiringFrom: &now,
		ExpiringTo:   &to,
		SortBy:       SortByProductName,
		Page:         page,
	})
}

// Summary returns the tenant-wide stock overview.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	c, err := callerFrom(ctx)
	if err != nil {
		return Summary{}, err
	}
	sum, err := s.records.Summary(ctx, c.tenantID)
	if err != nil {
		return Summary{}, normalizeErr(err)
	}
	return sum, nil
}

// StockByProduct sums stock per product. No ids means every product.
func (s *Service) StockByProduct(ctx context.Context, productIDs []id.ID) ([]ProductStock, error) {
	c, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	out, err := s.records.StockByProduct(ctx, c.tenantID, productIDs)
	if err != nil {
		return nil, normalizeErr(err)
	}
	return out, nil
}

// Reconcile replays the movement log of a record and compares the result
// with the stored balance.
func (s *Service) Reconcile(ctx context.Context, inventoryID id.ID) (Reconciliation, error) {
	c, err := callerFrom(ctx)
	if err != nil {
		return Reconciliation{}, err
	}

	var out Reconciliation
	err = s.read(ctx, func(ctx context.Context) error {
		rec, err := s.records.Get(ctx, c.tenantID, inventoryID)
		if err != nil {
			return err
		}
		ms, err := s.movements.ByInventory(ctx, c.tenantID, inventoryID)
		if err != nil {
			return fmt.Errorf("load movements: %w", err)
		}
		replayed := Replay(ms)
		out = Reconciliation{
			InventoryID: rec.ID,
			Stored:      rec.Snapshot(),
			Replayed:    replayed,
			Movements:   len(ms),
			Consistent:  rec.Snapshot().SameQuantities(replayed),
		}
		return nil
	})
	return out, err
}
