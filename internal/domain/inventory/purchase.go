package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"foodledger/internal/core/apperror"
	"foodledger/internal/core/id"
	"foodledger/internal/core/types"
	"foodledger/pkg/logger"
)

// PurchaseReceipt is one received purchase-order line.
type PurchaseReceipt struct {
	ProductID         id.ID
	ProductSKU        string
	ProductName       string
	VariantID         *id.ID
	VariantSKU        *string
	Quantity          types.Quantity
	UnitCost          types.Money
	LotNumber         string
	ExpirationDate    *time.Time
	ManufacturingDate *time.Time
	SupplierID        string
	SupplierInvoice   string
	// Reference is the purchase-order number.
	Reference string
}

func (p PurchaseReceipt) validate(ps ProductSettings) error {
	if id.IsNil(p.ProductID) {
		return apperror.NewValidation("productId is required")
	}
	if strings.TrimSpace(p.ProductSKU) == "" {
		return apperror.NewValidation("productSku is required")
	}
	if !p.Quantity.IsPositive() {
		return apperror.NewValidation("quantity must be positive")
	}
	if p.UnitCost.IsNegative() {
		return apperror.NewValidation("unitCost must be zero or positive")
	}
	if ps.IsPerishable && (p.LotNumber == "" || p.ExpirationDate == nil) {
		return apperror.NewValidation("perishable products require lotNumber and expirationDate").
			WithDetail("sku", p.ProductSKU)
	}
	return nil
}

func (p PurchaseReceipt) createInput() CreateInput {
	name := p.ProductName
	if strings.TrimSpace(name) == "" {
		name = p.ProductSKU
	}
	return CreateInput{
		ProductID:   p.ProductID,
		ProductSKU:  p.ProductSKU,
		ProductName: name,
		VariantID:   p.VariantID,
		VariantSKU:  p.VariantSKU,
	}
}

// ReceivePurchase books a supplier delivery. The record is created on first
// receipt. Lot data is kept only for products that track lots.
func (s *Service) ReceivePurchase(ctx context.Context, p PurchaseReceipt) (*Movement, error) {
	c, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}

	var out Movement
	err = s.run(ctx, func(ctx context.Context) error {
		ps, err := s.settings(ctx, c.tenantID, p.ProductID)
		if err != nil {
			return err
		}
		if err := p.validate(ps); err != nil {
			return err
		}

		now := s.now()
		rec, isNew, _, ms, err := s.open(ctx, c, p.createInput(), now)
		if err != nil {
			return err
		}

		entry := In{Quantity: p.Quantity, UnitCost: p.UnitCost, SupplierID: p.SupplierID}
		if ps.TrackLots && p.LotNumber != "" {
			entry.Lot = &LotInput{
				LotNumber:         p.LotNumber,
				ExpirationDate:    p.ExpirationDate,
				ManufacturingDate: p.ManufacturingDate,
				SupplierID:        optional(p.SupplierID),
				SupplierInvoice:   p.SupplierInvoice,
			}
		}
		draft, err := rec.apply(entry, now)
		if err != nil {
			return err
		}
		out = s.stamp(rec, draft, c, ReasonPurchase, p.Reference, now)
		ms = append(ms, out)

		if err := s.refreshAlerts(ctx, rec, ps, now); err != nil {
			return err
		}
		return s.save(ctx, rec, isNew, ms)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "purchase received",
		"inventory_id", out.InventoryID,
		"sku", out.ProductSKU,
		"quantity", out.Quantity,
		"reference", p.Reference,
	)
	return &out, nil
}

// BulkAdjustItem sets one record to an absolute quantity.
type BulkAdjustItem struct {
	ProductSKU  string
	VariantSKU  *string
	NewQuantity types.Quantity
	LotNumber   string
}

// BulkAdjustInput is a stock-take style batch sharing one reason.
type BulkAdjustInput struct {
	Items  []BulkAdjustItem
	Reason string
}

// BulkAdjustResult reports what the batch did.
type BulkAdjustResult struct {
	Adjusted int      `json:"adjusted"`
	Skipped  []string `json:"skipped"`
}

// BulkAdjust applies adjustments in one transaction. Unknown SKUs are skipped
// and reported; any other failure rolls the whole batch back.
func (s *Service) BulkAdjust(ctx context.Context, in BulkAdjustInput) (BulkAdjustResult, error) {
	c, err := callerFrom(ctx)
	if err != nil {
		return BulkAdjustResult{}, err
	}
	if strings.TrimSpace(in.Reason) == "" {
		return BulkAdjustResult{}, apperror.NewValidation("reason is required")
	}
	if len(in.Items) == 0 {
		return BulkAdjustResult{}, apperror.NewValidation("at least one item is required")
	}

	var res BulkAdjustResult
	err = s.run(ctx, func(ctx context.Context) error {
		res = BulkAdjustResult{Skipped: []string{}}
		for i, item := range in.Items {
			key := Key{ProductSKU: item.ProductSKU, VariantSKU: item.VariantSKU}
			rec, err := s.loadActiveByKey(ctx, c.tenantID, key)
			if apperror.IsNotFound(err) {
				res.Skipped = append(res.Skipped, key.String())
				continue
			}
			if err != nil {
				return err
			}
			entry := Adjustment{NewQuantity: item.NewQuantity, LotNumber: item.LotNumber}
			if _, err := s.applyEntry(ctx, c, rec, entry, in.Reason, ""); err != nil {
				if ae, ok := apperror.AsAppError(err); ok {
					return ae.WithDetail("item", i)
				}
				return fmt.Errorf("item %d: %w", i, err)
			}
			res.Adjusted++
		}
		return nil
	})
	if err != nil {
		return BulkAdjustResult{}, err
	}

	logger.Info(ctx, "bulk adjustment applied",
		"adjusted", res.Adjusted,
		"skipped", len(res.Skipped),
	)
	return res, nil
}
