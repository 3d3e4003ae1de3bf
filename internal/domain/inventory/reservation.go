package inventory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"foodledger/internal/core/apperror"
	appctx "foodledger/internal/core/context"
	"foodledger/internal/core/id"
	"foodledger/internal/core/types"
	"foodledger/pkg/logger"
)

const (
	DefaultReservationMinutes = 30
	MaxReservationMinutes     = 1440
)

// ReserveItem is one line of a reservation request.
type ReserveItem struct {
	ProductSKU string
	VariantSKU *string
	Quantity   types.Quantity
	UseFEFO    bool
}

// ReserveInput reserves stock for an order. ExpirationMinutes defaults to 30.
type ReserveInput struct {
	OrderID           string
	Items             []ReserveItem
	ExpirationMinutes int
}

func (in *ReserveInput) validate() error {
	if strings.TrimSpace(in.OrderID) == "" {
		return apperror.NewValidation("orderId is required")
	}
	if len(in.Items) == 0 {
		return apperror.NewValidation("at least one item is required")
	}
	if in.ExpirationMinutes == 0 {
		in.ExpirationMinutes = DefaultReservationMinutes
	}
	if in.ExpirationMinutes < 1 || in.ExpirationMinutes > MaxReservationMinutes {
		return apperror.NewValidation(fmt.Sprintf("expirationMinutes must be between 1 and %d", MaxReservationMinutes))
	}
	for i, item := range in.Items {
		if strings.TrimSpace(item.ProductSKU) == "" {
			return apperror.NewValidation(fmt.Sprintf("item %d: productSku is required", i))
		}
		if !item.Quantity.IsPositive() {
			return apperror.NewValidation(fmt.Sprintf("item %d: quantity must be positive", i))
		}
	}
	return nil
}

// ReservationResult describes what was reserved for one item.
type ReservationResult struct {
	InventoryID id.ID          `json:"inventoryId"`
	ProductSKU  string         `json:"productSku"`
	VariantSKU  *string        `json:"variantSku,omitempty"`
	Quantity    types.Quantity `json:"quantity"`
	Lots        []Allocation   `json:"lots"`
	ExpiresAt   time.Time      `json:"expiresAt"`
}

// Reserve holds stock for every item of an order. Either all items are
// reserved or none is. The expiry is informational; releasing expired
// reservations is up to the caller (see ReleaseExpired).
func (s *Service) Reserve(ctx context.Context, in ReserveInput) ([]ReservationResult, error) {
	c, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	var results []ReservationResult
	err = s.run(ctx, func(ctx context.Context) error {
		results = results[:0]
		now := s.now()
		expiresAt := now.Add(time.Duration(in.ExpirationMinutes) * time.Minute)

		for _, item := range in.Items {
			res, err := s.reserveItem(ctx, c, in.OrderID, item, now, expiresAt)
			if err != nil {
				return err
			}
			results = append(results, res)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "inventory reserved",
		"order_id", in.OrderID,
		"items", len(results),
	)
	return results, nil
}

func (s *Service) reserveItem(ctx context.Context, c caller, orderID string, item ReserveItem, now, expiresAt time.Time) (ReservationResult, error) {
	key := Key{ProductSKU: item.ProductSKU, VariantSKU: item.VariantSKU}
	rec, err := s.loadActiveByKey(ctx, c.tenantID, key)
	if err != nil {
		return ReservationResult{}, err
	}

	parts, err := rec.reserve(item.Quantity, item.UseFEFO, now)
	if err != nil {
		return ReservationResult{}, err
	}

	res := ReservationResult{
		InventoryID: rec.ID,
		ProductSKU:  rec.ProductSKU,
		VariantSKU:  rec.VariantSKU,
		Quantity:    item.Quantity,
		Lots:        []Allocation{},
		ExpiresAt:   expiresAt,
	}
	ms := make([]Movement, 0, len(parts))
	for _, p := range parts {
		exp := expiresAt
		ms = append(ms, s.stamp(rec, Movement{
			MovementType: MovementReservation,
			Quantity:     p.quantity,
			UnitCost:     rec.AverageCostPrice,
			LotNumber:    optional(p.lotNumber),
			OrderID:      optional(orderID),
			ExpiresAt:    &exp,
			BalanceAfter: p.after,
		}, c, ReasonReservation, orderID, now))

		if p.lotNumber != "" {
			lot, _ := rec.Lots.Find(p.lotNumber)
			res.Lots = append(res.Lots, Allocation{
				LotNumber:      p.lotNumber,
				Quantity:       p.quantity,
				ExpirationDate: lot.ExpirationDate,
			})
		}
	}

	ps, err := s.settings(ctx, c.tenantID, rec.ProductID)
	if err != nil {
		return ReservationResult{}, err
	}
	if err := s.refreshAlerts(ctx, rec, ps, now); err != nil {
		return ReservationResult{}, err
	}
	if err := s.save(ctx, rec, false, ms); err != nil {
		return ReservationResult{}, err
	}
	return res, nil
}

// --- release ---

// hold is the outstanding reserved quantity of an order on one lot of one
// record. An empty lot means stock held on the aggregate only.
type hold struct {
	inventoryID id.ID
	lotNumber   string
	unitCost    types.Money
	quantity    types.Quantity
}

// outstandingHolds nets an order's reservations against its releases and
// commits. Netting is done per record first so that a commit which drained a
// different lot than the one reserved still reduces what is left to release.
func outstandingHolds(ms []Movement, skus []string) []hold {
	type lotKey struct {
		inventoryID id.ID
		lot         string
	}
	var order []lotKey
	perLot := map[lotKey]*hold{}
	perRecord := map[id.ID]types.Quantity{}

	for i := range ms {
		m := &ms[i]
		if len(skus) > 0 && !slices.Contains(skus, m.ProductSKU) {
			continue
		}
		var sign types.Quantity
		switch {
		case m.MovementType == MovementReservation:
			sign = 1
		case m.MovementType == MovementRelease:
			sign = -1
		case m.MovementType == MovementOut && m.FromReserved:
			sign = -1
		default:
			continue
		}
		k := lotKey{m.InventoryID, deref(m.LotNumber)}
		h, ok := perLot[k]
		if !ok {
			h = &hold{inventoryID: m.InventoryID, lotNumber: k.lot, unitCost: m.UnitCost}
			perLot[k] = h
			order = append(order, k)
		}
		h.quantity += sign * m.Quantity
		perRecord[m.InventoryID] += sign * m.Quantity
	}

	var out []hold
	for _, k := range order {
		h := perLot[k]
		left := perRecord[k.inventoryID]
		if h.quantity <= 0 || left <= 0 {
			continue
		}
		h.quantity = types.MinQuantity(h.quantity, left)
		perRecord[k.inventoryID] = left - h.quantity
		out = append(out, *h)
	}
	return out
}

// Release undoes an order's outstanding reservations, optionally only for
// some SKUs. Nothing outstanding is a not-found error so that a second
// release of the same order is detectable.
func (s *Service) Release(ctx context.Context, orderID string, skus []string) error {
	c, err := callerFrom(ctx)
	if err != nil {
		return err
	}
	if strings.TrimSpace(orderID) == "" {
		return apperror.NewValidation("orderId is required")
	}

	var released types.Quantity
	err = s.run(ctx, func(ctx context.Context) error {
		released = 0
		ms, err := s.movements.ByOrder(ctx, c.tenantID, orderID)
		if err != nil {
			return fmt.Errorf("load order movements: %w", err)
		}
		holds := outstandingHolds(ms, skus)
		if len(holds) == 0 {
			return apperror.NewNotFound("reservation", orderID).WithDetail("order_id", orderID)
		}

		var recordOrder []id.ID
		byRecord := map[id.ID][]hold{}
		for _, h := range holds {
			if _, ok := byRecord[h.inventoryID]; !ok {
				recordOrder = append(recordOrder, h.inventoryID)
			}
			byRecord[h.inventoryID] = append(byRecord[h.inventoryID], h)
		}

		for _, inventoryID := range recordOrder {
			n, err := s.releaseRecord(ctx, c, orderID, inventoryID, byRecord[inventoryID])
			if err != nil {
				return err
			}
			released += n
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "inventory released",
		"order_id", orderID,
		"quantity", released,
	)
	return nil
}

func (s *Service) releaseRecord(ctx context.Context, c caller, orderID string, inventoryID id.ID, holds []hold) (types.Quantity, error) {
	rec, err := s.records.GetForUpdate(ctx, c.tenantID, inventoryID)
	if err != nil {
		return 0, err
	}

	now := s.now()
	var total types.Quantity
	ms := make([]Movement, 0, len(holds))
	for _, h := range holds {
		qty := types.MinQuantity(h.quantity, rec.ReservedQuantity)
		if qty <= 0 {
			logger.Warn(ctx, "reservation already consumed, nothing to release",
				"order_id", orderID,
				"inventory_id", inventoryID,
			)
			continue
		}
		lot := h.lotNumber
		if lot != "" && rec.Lots.index(lot) < 0 {
			lot = ""
		}
		draft, err := rec.apply(Release{Quantity: qty, LotNumber: lot, OrderID: orderID}, now)
		if err != nil {
			return 0, err
		}
		draft.UnitCost = h.unitCost
		ms = append(ms, s.stamp(rec, draft, c, ReasonRelease, orderID, now))
		total += qty
	}
	if len(ms) == 0 {
		return 0, nil
	}

	ps, err := s.settings(ctx, c.tenantID, rec.ProductID)
	if err != nil {
		return 0, err
	}
	if err := s.refreshAlerts(ctx, rec, ps, now); err != nil {
		return 0, err
	}
	if err := s.save(ctx, rec, false, ms); err != nil {
		return 0, err
	}
	return total, nil
}

// ReleaseExpired releases orders whose reservations passed their expiry.
// Each order is released in its own transaction under a system caller of the
// order's tenant. It returns how many orders were released.
func (s *Service) ReleaseExpired(ctx context.Context, limit int) (int, error) {
	refs, err := s.movements.ExpiredReservations(ctx, s.now(), limit)
	if err != nil {
		return 0, normalizeErr(fmt.Errorf("find expired reservations: %w", err))
	}

	released := 0
	for _, ref := range refs {
		tctx := appctx.WithSystemUser(ctx, ref.TenantID)
		err := s.Release(tctx, ref.OrderID, nil)
		switch {
		case err == nil:
			released++
		case apperror.IsNotFound(err):
			// Released or committed between the scan and now.
		default:
			logger.Error(tctx, "failed to release expired reservation",
				"order_id", ref.OrderID,
				"error", err,
			)
		}
	}
	return released, nil
}

// --- commit ---

// CommitItem is one fulfilled order line.
type CommitItem struct {
	ProductSKU string
	VariantSKU *string
	Quantity   types.Quantity
	UnitCost   types.Money
}

// CommitInput converts reservations of a fulfilled order into deductions.
type CommitInput struct {
	OrderID   string
	Reference string
	Items     []CommitItem
}

// Commit deducts reserved stock for fulfilled lines. It joins the caller's
// transaction when ctx already carries one, so sibling side effects commit
// or roll back together with the ledger.
func (s *Service) Commit(ctx context.Context, in CommitInput) error {
	c, err := callerFrom(ctx)
	if err != nil {
		return err
	}
	if len(in.Items) == 0 {
		return apperror.NewValidation("at least one item is required")
	}
	for i, item := range in.Items {
		if strings.TrimSpace(item.ProductSKU) == "" {
			return apperror.NewValidation(fmt.Sprintf("item %d: productSku is required", i))
		}
		if !item.Quantity.IsPositive() {
			return apperror.NewValidation(fmt.Sprintf("item %d: quantity must be positive", i))
		}
		if item.UnitCost.IsNegative() {
			return apperror.NewValidation(fmt.Sprintf("item %d: unitCost must be zero or positive", i))
		}
	}

	err = s.run(ctx, func(ctx context.Context) error {
		var holds []hold
		if in.OrderID != "" {
			ms, err := s.movements.ByOrder(ctx, c.tenantID, in.OrderID)
			if err != nil {
				return fmt.Errorf("load order movements: %w", err)
			}
			holds = outstandingHolds(ms, nil)
		}
		for _, item := range in.Items {
			if err := s.commitItem(ctx, c, in, item, holds); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "inventory committed",
		"order_id", in.OrderID,
		"items", len(in.Items),
	)
	return nil
}

func (s *Service) commitItem(ctx context.Context, c caller, in CommitInput, item CommitItem, holds []hold) error {
	rec, err := s.loadActiveByKey(ctx, c.tenantID, Key{ProductSKU: item.ProductSKU, VariantSKU: item.VariantSKU})
	if err != nil {
		return err
	}

	now := s.now()
	cost := item.UnitCost
	if cost.IsZero() {
		cost = rec.AverageCostPrice
	}

	parts, err := rec.consumeReserved(item.Quantity, holds, now)
	if err != nil {
		return err
	}

	reference := in.Reference
	if reference == "" {
		reference = in.OrderID
	}
	ms := make([]Movement, 0, len(parts))
	for _, p := range parts {
		ms = append(ms, s.stamp(rec, Movement{
			MovementType: MovementOut,
			Quantity:     p.quantity,
			UnitCost:     cost,
			LotNumber:    optional(p.lotNumber),
			OrderID:      optional(in.OrderID),
			FromReserved: true,
			BalanceAfter: p.after,
		}, c, ReasonCommit, reference, now))
	}

	ps, err := s.settings(ctx, c.tenantID, rec.ProductID)
	if err != nil {
		return err
	}
	if err := s.refreshAlerts(ctx, rec, ps, now); err != nil {
		return err
	}
	return s.save(ctx, rec, false, ms)
}
