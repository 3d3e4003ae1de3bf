package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"foodledger/internal/core/apperror"
	appctx "foodledger/internal/core/context"
	"foodledger/internal/core/id"
	"foodledger/internal/core/tx"
	"foodledger/internal/core/types"
	"foodledger/pkg/logger"
)

const entityName = "inventory"

// Movement reasons written by the ledger itself.
const (
	ReasonInitialInventory  = "initial inventory"
	ReasonReactivationReset = "reactivation reset"
	ReasonReservation       = "reservation for order"
	ReasonRelease           = "reservation released"
	ReasonCommit            = "order fulfillment"
	ReasonPurchase          = "purchase from supplier"
)

// Service is the ledger. Every mutating operation loads the records it
// touches under a row lock, mutates them, appends movements and persists
// everything inside one transaction.
type Service struct {
	records   RecordRepository
	movements MovementRepository
	catalog   ProductCatalog
	alerts    AlertNotifier
	costs     CostPoster
	audit     AuditLogger
	txManager tx.Manager
	evaluator *Evaluator
	now       func() time.Time
}

// Config wires the ledger. Alerts, Costs and Audit are optional.
type Config struct {
	Records   RecordRepository
	Movements MovementRepository
	Catalog   ProductCatalog
	Alerts    AlertNotifier
	Costs     CostPoster
	Audit     AuditLogger
	TxManager tx.Manager
	Evaluator *Evaluator
	Clock     func() time.Time
}

// NewService creates the ledger service.
func NewService(cfg Config) *Service {
	s := &Service{
		records:   cfg.Records,
		movements: cfg.Movements,
		catalog:   cfg.Catalog,
		alerts:    cfg.Alerts,
		costs:     cfg.Costs,
		audit:     cfg.Audit,
		txManager: cfg.TxManager,
		evaluator: cfg.Evaluator,
		now:       cfg.Clock,
	}
	if s.evaluator == nil {
		s.evaluator = NewEvaluator(0, 0)
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// --- plumbing ---

type caller struct {
	tenantID string
	userID   string
}

func callerFrom(ctx context.Context) (caller, error) {
	c := caller{tenantID: appctx.GetTenantID(ctx), userID: appctx.GetUserID(ctx)}
	if c.tenantID == "" {
		return c, apperror.NewUnauthorized("tenant context required")
	}
	return c, nil
}

// run executes fn in a transaction and maps infrastructure failures to
// Unavailable. Business errors pass through untouched.
func (s *Service) run(ctx context.Context, fn func(ctx context.Context) error) error {
	return normalizeErr(s.txManager.RunInTransaction(ctx, fn))
}

// read runs fn in a read-only transaction when the manager offers one.
func (s *Service) read(ctx context.Context, fn func(ctx context.Context) error) error {
	if ro, ok := s.txManager.(tx.ReadOnlyManager); ok {
		return normalizeErr(ro.ReadOnly(ctx, fn))
	}
	return s.run(ctx, fn)
}

func normalizeErr(err error) error {
	if err == nil || apperror.IsAppError(err) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return apperror.NewUnavailable(err).WithDetail("reason", "canceled")
	}
	return apperror.NewUnavailable(err)
}

// settings looks up product settings. An unknown product gets no thresholds.
func (s *Service) settings(ctx context.Context, tenantID string, productID id.ID) (ProductSettings, error) {
	ps, err := s.catalog.Settings(ctx, tenantID, productID)
	if err == nil {
		return ps, nil
	}
	if apperror.IsNotFound(err) {
		logger.Warn(ctx, "product settings not found, alerts use defaults", "product_id", productID)
		return ProductSettings{ProductID: productID, TrackLots: true}, nil
	}
	return ProductSettings{}, fmt.Errorf("load product settings: %w", err)
}

// loadActive locks a record by id. Inactive records are reported missing.
func (s *Service) loadActive(ctx context.Context, tenantID string, inventoryID id.ID) (*Record, error) {
	rec, err := s.records.GetForUpdate(ctx, tenantID, inventoryID)
	if err != nil {
		return nil, err
	}
	if !rec.IsActive {
		return nil, apperror.NewNotFound(entityName, inventoryID.String())
	}
	return rec, nil
}

// loadActiveByKey locks a record by SKU/variant. Inactive records are reported missing.
func (s *Service) loadActiveByKey(ctx context.Context, tenantID string, key Key) (*Record, error) {
	rec, err := s.records.FindByKeyForUpdate(ctx, tenantID, key)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound(entityName, key.String()).WithDetail("sku", key.String())
		}
		return nil, err
	}
	if !rec.IsActive {
		return nil, apperror.NewNotFound(entityName, key.String()).WithDetail("sku", key.String())
	}
	return rec, nil
}

// stamp completes a draft movement with identity and bookkeeping fields.
func (s *Service) stamp(rec *Record, draft Movement, c caller, reason, reference string, now time.Time) Movement {
	m := draft
	m.ID = id.New()
	m.TenantID = rec.TenantID
	m.InventoryID = rec.ID
	m.ProductID = rec.ProductID
	m.ProductSKU = rec.ProductSKU
	m.UnitCost = types.RoundCost(m.UnitCost)
	m.TotalCost = m.Quantity.MulMoney(m.UnitCost).Round(types.CostScale)
	m.Reason = reason
	if m.Reference == nil {
		m.Reference = optional(reference)
	}
	m.CreatedBy = c.userID
	m.CreatedAt = now
	return m
}

// refreshAlerts recomputes the flags on rec and notifies on newly raised ones.
func (s *Service) refreshAlerts(ctx context.Context, rec *Record, ps ProductSettings, now time.Time) error {
	next := s.evaluator.Evaluate(rec, ps.Thresholds, now)
	delta := Raised(rec.Alerts, next)
	if s.alerts != nil && s.evaluator.ShouldNotify(next, delta, now) {
		if err := s.alerts.AlertRaised(ctx, rec, delta); err != nil {
			return fmt.Errorf("notify alert: %w", err)
		}
		sent := now
		next.LastAlertSent = &sent
	}
	rec.Alerts = next
	return nil
}

// save persists the record and appends its movements. Movements carrying
// cost go to the accounting collaborator in the same transaction.
func (s *Service) save(ctx context.Context, rec *Record, isNew bool, ms []Movement) error {
	if isNew {
		if err := s.records.Insert(ctx, rec); err != nil {
			return fmt.Errorf("insert inventory: %w", err)
		}
	} else if err := s.records.Update(ctx, rec); err != nil {
		return fmt.Errorf("update inventory: %w", err)
	}
	if len(ms) == 0 {
		return nil
	}
	if err := s.movements.Append(ctx, ms); err != nil {
		return fmt.Errorf("append movements: %w", err)
	}
	if s.costs == nil {
		return nil
	}
	for i := range ms {
		if !costRelevant(&ms[i]) {
			continue
		}
		if err := s.costs.MovementPosted(ctx, rec, &ms[i]); err != nil {
			return fmt.Errorf("post movement cost: %w", err)
		}
	}
	return nil
}

func costRelevant(m *Movement) bool {
	switch m.MovementType {
	case MovementIn, MovementOut, MovementAdjustment, MovementTransfer:
		return m.Quantity > 0 && !m.TotalCost.IsZero()
	}
	return false
}

func (s *Service) logAudit(ctx context.Context, action string, before, after *Record) error {
	if s.audit == nil {
		return nil
	}
	if err := s.audit.LogChange(ctx, action, before, after); err != nil {
		return fmt.Errorf("audit %s: %w", action, err)
	}
	return nil
}

// --- create ---

// open returns the record for in's key, creating or reactivating it.
// An active record is returned as is with isNew=false and no movements.
func (s *Service) open(ctx context.Context, c caller, in CreateInput, now time.Time) (rec *Record, isNew, reactivated bool, ms []Movement, err error) {
	existing, err := s.records.FindByKeyForUpdate(ctx, c.tenantID, in.Key())
	switch {
	case err == nil && existing.IsActive:
		return existing, false, false, nil, nil
	case err == nil:
		rec = existing
		if rec.TotalQuantity != 0 {
			old := rec.TotalQuantity
			rec.zeroOut()
			ms = append(ms, s.stamp(rec, Movement{
				MovementType: MovementAdjustment,
				Quantity:     old.Abs(),
				UnitCost:     rec.AverageCostPrice,
				BalanceAfter: rec.Snapshot(),
			}, c, ReasonReactivationReset, "", now))
		}
		rec.reset(in, now)
		return rec, false, true, ms, nil
	case apperror.IsNotFound(err):
		return NewRecord(c.tenantID, c.userID, in, now), true, false, nil, nil
	default:
		return nil, false, false, nil, err
	}
}

// Create adds a record for a product/variant. An inactive record with the
// same key is reactivated with the new values.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Record, error) {
	c, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var out *Record
	err = s.run(ctx, func(ctx context.Context) error {
		now := s.now()
		rec, isNew, reactivated, ms, err := s.open(ctx, c, in, now)
		if err != nil {
			return err
		}
		if !isNew && !reactivated {
			return apperror.NewAlreadyExists(entityName, in.Key().String()).
				WithDetail("inventory_id", rec.ID.String())
		}

		if rec.TotalQuantity > 0 {
			ms = append(ms, s.stamp(rec, Movement{
				MovementType: MovementIn,
				Quantity:     rec.TotalQuantity,
				UnitCost:     rec.AverageCostPrice,
				BalanceAfter: rec.Snapshot(),
			}, c, ReasonInitialInventory, "", now))
		}

		ps, err := s.settings(ctx, c.tenantID, rec.ProductID)
		if err != nil {
			return err
		}
		if err := s.refreshAlerts(ctx, rec, ps, now); err != nil {
			return err
		}
		if err := s.save(ctx, rec, isNew, ms); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "inventory created",
		"inventory_id", out.ID,
		"sku", out.SKU(),
		"total_quantity", out.TotalQuantity,
	)
	return out, nil
}

// --- generic movement ---

// MovementInput is a single movement against a record.
type MovementInput struct {
	InventoryID id.ID
	Entry       Entry
	Reason      string
	Reference   string
}

// RecordMovement applies one movement. Adjustment entries follow the same
// rules as Adjust.
func (s *Service) RecordMovement(ctx context.Context, in MovementInput) (*Movement, error) {
	c, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	if in.Entry == nil {
		return nil, apperror.NewValidation("movement entry is required")
	}
	if strings.TrimSpace(in.Reason) == "" {
		return nil, apperror.NewValidation("reason is required")
	}

	var out *Movement
	err = s.run(ctx, func(ctx context.Context) error {
		m, _, err := s.applyOne(ctx, c, in)
		out = m
		return err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		logger.Info(ctx, "adjustment left quantity unchanged, no movement written",
			"inventory_id", in.InventoryID,
		)
		return nil, nil
	}

	logger.Info(ctx, "inventory movement recorded",
		"inventory_id", out.InventoryID,
		"movement_type", out.MovementType,
		"quantity", out.Quantity,
	)
	return out, nil
}

// applyOne runs inside a transaction: lock, mutate, evaluate, save.
func (s *Service) applyOne(ctx context.Context, c caller, in MovementInput) (*Movement, *Record, error) {
	rec, err := s.loadActive(ctx, c.tenantID, in.InventoryID)
	if err != nil {
		return nil, nil, err
	}
	m, err := s.applyEntry(ctx, c, rec, in.Entry, in.Reason, in.Reference)
	return m, rec, err
}

// applyEntry mutates rec and saves it with the resulting movement. An
// adjustment that leaves the total unchanged (a pure cost correction) writes
// no movement; the audit entry records it and nil is returned.
func (s *Service) applyEntry(ctx context.Context, c caller, rec *Record, e Entry, reason, reference string) (*Movement, error) {
	now := s.now()
	before := rec.Clone()

	draft, err := rec.apply(e, now)
	if err != nil {
		return nil, err
	}
	var m *Movement
	var ms []Movement
	if draft.Quantity.IsPositive() {
		stamped := s.stamp(rec, draft, c, reason, reference, now)
		m = &stamped
		ms = []Movement{stamped}
	}

	ps, err := s.settings(ctx, c.tenantID, rec.ProductID)
	if err != nil {
		return nil, err
	}
	if err := s.refreshAlerts(ctx, rec, ps, now); err != nil {
		return nil, err
	}
	if err := s.save(ctx, rec, false, ms); err != nil {
		return nil, err
	}
	if e.Type() == MovementAdjustment {
		if err := s.logAudit(ctx, "adjust", before, rec); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// --- adjust ---

// AdjustInput is a manual correction of a record's total.
type AdjustInput struct {
	InventoryID  id.ID
	NewQuantity  types.Quantity
	Reason       string
	LotNumber    string
	NewCostPrice *types.Money
}

// Adjust sets the record total to an absolute value. The difference lands on
// the available pool; going below the reserved quantity is rejected.
func (s *Service) Adjust(ctx context.Context, in AdjustInput) (*Record, error) {
	c, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Reason) == "" {
		return nil, apperror.NewValidation("reason is required")
	}

	var out *Record
	err = s.run(ctx, func(ctx context.Context) error {
		_, rec, err := s.applyOne(ctx, c, MovementInput{
			InventoryID: in.InventoryID,
			Entry: Adjustment{
				NewQuantity:  in.NewQuantity,
				NewCostPrice: in.NewCostPrice,
				LotNumber:    in.LotNumber,
			},
			Reason: in.Reason,
		})
		out = rec
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "inventory adjusted",
		"inventory_id", out.ID,
		"new_quantity", out.TotalQuantity,
		"reason", in.Reason,
	)
	return out, nil
}

// --- deactivate ---

// Deactivate soft-deletes a record. Records holding reservations stay active.
func (s *Service) Deactivate(ctx context.Context, inventoryID id.ID) error {
	c, err := callerFrom(ctx)
	if err != nil {
		return err
	}

	err = s.run(ctx, func(ctx context.Context) error {
		rec, err := s.loadActive(ctx, c.tenantID, inventoryID)
		if err != nil {
			return err
		}
		before := rec.Clone()
		if err := rec.Deactivate(s.now()); err != nil {
			return err
		}
		if err := s.records.Update(ctx, rec); err != nil {
			return fmt.Errorf("update inventory: %w", err)
		}
		return s.logAudit(ctx, "deactivate", before, rec)
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "inventory deactivated", "inventory_id", inventoryID)
	return nil
}

// --- reads ---

// Get returns an active record by id.
func (s *Service) Get(ctx context.Context, inventoryID id.ID) (*Record, error) {
	c, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := s.records.Get(ctx, c.tenantID, inventoryID)
	if err != nil {
		return nil, normalizeErr(err)
	}
	if !rec.IsActive {
		return nil, apperror.NewNotFound(entityName, inventoryID.String())
	}
	return rec, nil
}

// GetBySKU returns the active record for a SKU and optional variant.
func (s *Service) GetBySKU(ctx context.Context, key Key) (*Record, error) {
	c, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := s.records.FindByKey(ctx, c.tenantID, key)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound(entityName, key.String())
		}
		return nil, normalizeErr(err)
	}
	if !rec.IsActive {
		return nil, apperror.NewNotFound(entityName, key.String())
	}
	return rec, nil
}
