package dto

import (
	"strings"
	"time"

	"foodledger/internal/core/apperror"
	"foodledger/internal/core/id"
	"foodledger/internal/core/types"
	"foodledger/internal/domain/inventory"
)

// --- Lots ---

type LotRequest struct {
	LotNumber         string                  `json:"lotNumber" binding:"required"`
	Quantity          types.Quantity          `json:"quantity"`
	CostPrice         types.Money             `json:"costPrice"`
	ReceivedDate      *time.Time              `json:"receivedDate,omitempty"`
	ExpirationDate    *time.Time              `json:"expirationDate,omitempty"`
	ManufacturingDate *time.Time              `json:"manufacturingDate,omitempty"`
	Status            inventory.LotStatus     `json:"status,omitempty"`
	SupplierID        *string                 `json:"supplierId,omitempty"`
	SupplierInvoice   string                  `json:"supplierInvoice,omitempty"`
	QualityCheck      *inventory.QualityCheck `json:"qualityCheck,omitempty"`
}

func (r LotRequest) ToInput() inventory.LotInput {
	in := inventory.LotInput{
		LotNumber:         r.LotNumber,
		Quantity:          r.Quantity,
		CostPrice:         r.CostPrice,
		ExpirationDate:    r.ExpirationDate,
		ManufacturingDate: r.ManufacturingDate,
		Status:            r.Status,
		SupplierID:        r.SupplierID,
		SupplierInvoice:   r.SupplierInvoice,
		QualityCheck:      r.QualityCheck,
	}
	if r.ReceivedDate != nil {
		in.ReceivedDate = *r.ReceivedDate
	}
	return in
}

// --- Create ---

type CreateInventoryRequest struct {
	ProductID        string              `json:"productId" binding:"required"`
	ProductSKU       string              `json:"productSku" binding:"required"`
	ProductName      string              `json:"productName" binding:"required"`
	VariantID        *string             `json:"variantId,omitempty"`
	VariantSKU       *string             `json:"variantSku,omitempty"`
	TotalQuantity    types.Quantity      `json:"totalQuantity"`
	AverageCostPrice types.Money         `json:"averageCostPrice"`
	Lots             []LotRequest        `json:"lots,omitempty"`
	Location         *inventory.Location `json:"location,omitempty"`
}

func (r *CreateInventoryRequest) ToInput() (inventory.CreateInput, error) {
	productID, err := parseID("productId", r.ProductID)
	if err != nil {
		return inventory.CreateInput{}, err
	}
	variantID, err := parseOptionalID("variantId", r.VariantID)
	if err != nil {
		return inventory.CreateInput{}, err
	}

	in := inventory.CreateInput{
		ProductID:     productID,
		ProductSKU:    r.ProductSKU,
		ProductName:   r.ProductName,
		VariantID:     variantID,
		VariantSKU:    r.VariantSKU,
		TotalQuantity: r.TotalQuantity,
		AverageCost:   r.AverageCostPrice,
		Location:      r.Location,
	}
	for _, l := range r.Lots {
		in.Lots = append(in.Lots, l.ToInput())
	}
	return in, nil
}

// --- Movements ---

// MovementRequest is the generic movement body. Which fields matter depends
// on movementType.
type MovementRequest struct {
	InventoryID  string                 `json:"inventoryId" binding:"required"`
	MovementType inventory.MovementType `json:"movementType" binding:"required"`
	Quantity     types.Quantity         `json:"quantity"`
	UnitCost     types.Money            `json:"unitCost"`
	LotNumber    string                 `json:"lotNumber,omitempty"`
	Lot          *LotRequest            `json:"lot,omitempty"`
	SupplierID   string                 `json:"supplierId,omitempty"`
	OrderID      string                 `json:"orderId,omitempty"`
	Destination  string                 `json:"destination,omitempty"`
	ExpiresAt    *time.Time             `json:"expiresAt,omitempty"`
	// Adjustment only.
	NewQuantity  *types.Quantity `json:"newQuantity,omitempty"`
	NewCostPrice *types.Money    `json:"newCostPrice,omitempty"`
	Reason       string          `json:"reason" binding:"required"`
	Reference    string          `json:"reference,omitempty"`
}

func (r *MovementRequest) ToInput() (inventory.MovementInput, error) {
	inventoryID, err := parseID("inventoryId", r.InventoryID)
	if err != nil {
		return inventory.MovementInput{}, err
	}

	var entry inventory.Entry
	switch r.MovementType {
	case inventory.MovementIn:
		in := inventory.In{Quantity: r.Quantity, UnitCost: r.UnitCost, SupplierID: r.SupplierID}
		if r.Lot != nil {
			lot := r.Lot.ToInput()
			if lot.Quantity.IsZero() {
				lot.Quantity = r.Quantity
			}
			in.Lot = &lot
		}
		entry = in
	case inventory.MovementOut:
		entry = inventory.Out{Quantity: r.Quantity, UnitCost: r.UnitCost, LotNumber: r.LotNumber}
	case inventory.MovementTransfer:
		entry = inventory.Transfer{Quantity: r.Quantity, Destination: r.Destination}
	case inventory.MovementReservation:
		entry = inventory.Reservation{
			Quantity:  r.Quantity,
			LotNumber: r.LotNumber,
			OrderID:   r.OrderID,
			ExpiresAt: r.ExpiresAt,
		}
	case inventory.MovementRelease:
		entry = inventory.Release{Quantity: r.Quantity, LotNumber: r.LotNumber, OrderID: r.OrderID}
	case inventory.MovementAdjustment:
		if r.NewQuantity == nil {
			return inventory.MovementInput{}, apperror.NewValidation("newQuantity is required for adjustments")
		}
		entry = inventory.Adjustment{
			NewQuantity:  *r.NewQuantity,
			NewCostPrice: r.NewCostPrice,
			LotNumber:    r.LotNumber,
		}
	default:
		return inventory.MovementInput{}, apperror.NewValidation("unknown movementType " + string(r.MovementType))
	}

	return inventory.MovementInput{
		InventoryID: inventoryID,
		Entry:       entry,
		Reason:      r.Reason,
		Reference:   r.Reference,
	}, nil
}

type MovementQuery struct {
	PageRequest
	InventoryID  string `form:"inventoryId"`
	ProductSKU   string `form:"productSku"`
	MovementType string `form:"movementType"`
	OrderID      string `form:"orderId"`
	DateFrom     string `form:"dateFrom"`
	DateTo       string `form:"dateTo"`
}

func (q *MovementQuery) ToFilter() (inventory.MovementFilter, error) {
	f := inventory.MovementFilter{
		ProductSKU:   q.ProductSKU,
		MovementType: inventory.MovementType(q.MovementType),
		OrderID:      q.OrderID,
		Page:         q.ToPage(),
	}
	var err error
	if q.InventoryID != "" {
		invID, err := parseID("inventoryId", q.InventoryID)
		if err != nil {
			return f, err
		}
		f.InventoryID = &invID
	}
	if f.DateFrom, err = parseOptionalTime("dateFrom", q.DateFrom); err != nil {
		return f, err
	}
	if f.DateTo, err = parseOptionalTime("dateTo", q.DateTo); err != nil {
		return f, err
	}
	return f, nil
}

// --- Queries ---

type ListInventoryQuery struct {
	PageRequest
	Search          string `form:"search"`
	Warehouse       string `form:"warehouse"`
	LowStock        bool   `form:"lowStock"`
	NearExpiration  bool   `form:"nearExpiration"`
	Expired         bool   `form:"expired"`
	MinAvailable    string `form:"minAvailable"`
	IncludeInactive bool   `form:"includeInactive"`
	SortBy          string `form:"sortBy"`
	SortOrder       string `form:"sortOrder" binding:"omitempty,oneof=asc desc"`
}

func (q *ListInventoryQuery) ToFilter() (inventory.ListFilter, error) {
	f := inventory.ListFilter{
		Search:          strings.TrimSpace(q.Search),
		Warehouse:       q.Warehouse,
		LowStock:        q.LowStock,
		NearExpiration:  q.NearExpiration,
		Expired:         q.Expired,
		IncludeInactive: q.IncludeInactive,
		SortBy:          inventory.SortField(q.SortBy),
		SortDesc:        q.SortOrder != "asc",
		Page:            q.ToPage(),
	}
	if q.MinAvailable != "" {
		minQty, err := types.ParseQuantity(q.MinAvailable)
		if err != nil {
			return f, apperror.NewValidation("minAvailable must be a number").WithDetail("minAvailable", q.MinAvailable)
		}
		f.MinAvailable = &minQty
	}
	return f, nil
}

type ExpiringQuery struct {
	PageRequest
	Days int `form:"days" binding:"omitempty,min=1,max=365"`
}

type StockByProductQuery struct {
	ProductIDs []string `form:"productId"`
}

func (q *StockByProductQuery) ToIDs() ([]id.ID, error) {
	out := make([]id.ID, 0, len(q.ProductIDs))
	for _, raw := range q.ProductIDs {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			v, err := parseID("productId", part)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
	}
	return out, nil
}

// --- Reservations ---

type ReserveItemRequest struct {
	ProductSKU string         `json:"productSku" binding:"required"`
	VariantSKU *string        `json:"variantSku,omitempty"`
	Quantity   types.Quantity `json:"quantity"`
	UseFEFO    bool           `json:"useFefo"`
}

type ReserveRequest struct {
	OrderID           string               `json:"orderId" binding:"required"`
	Items             []ReserveItemRequest `json:"items" binding:"required,min=1,dive"`
	ExpirationMinutes int                  `json:"expirationMinutes"`
}

func (r *ReserveRequest) ToInput() inventory.ReserveInput {
	in := inventory.ReserveInput{
		OrderID:           r.OrderID,
		ExpirationMinutes: r.ExpirationMinutes,
		Items:             make([]inventory.ReserveItem, 0, len(r.Items)),
	}
	for _, item := range r.Items {
		in.Items = append(in.Items, inventory.ReserveItem{
			ProductSKU: item.ProductSKU,
			VariantSKU: item.VariantSKU,
			Quantity:   item.Quantity,
			UseFEFO:    item.UseFEFO,
		})
	}
	return in
}

type ReserveResponse struct {
	OrderID      string                        `json:"orderId"`
	Reservations []inventory.ReservationResult `json:"reservations"`
}

type ReleaseRequest struct {
	OrderID     string   `json:"orderId" binding:"required"`
	ProductSKUs []string `json:"productSkus,omitempty"`
}

type CommitItemRequest struct {
	ProductSKU string         `json:"productSku" binding:"required"`
	VariantSKU *string        `json:"variantSku,omitempty"`
	Quantity   types.Quantity `json:"quantity"`
	UnitCost   types.Money    `json:"unitCost"`
}

type CommitRequest struct {
	OrderID   string              `json:"orderId,omitempty"`
	Reference string              `json:"reference,omitempty"`
	Items     []CommitItemRequest `json:"items" binding:"required,min=1,dive"`
}

func (r *CommitRequest) ToInput() inventory.CommitInput {
	in := inventory.CommitInput{
		OrderID:   r.OrderID,
		Reference: r.Reference,
		Items:     make([]inventory.CommitItem, 0, len(r.Items)),
	}
	for _, item := range r.Items {
		in.Items = append(in.Items, inventory.CommitItem{
			ProductSKU: item.ProductSKU,
			VariantSKU: item.VariantSKU,
			Quantity:   item.Quantity,
			UnitCost:   item.UnitCost,
		})
	}
	return in
}

// --- Adjustments ---

type AdjustRequest struct {
	InventoryID  string         `json:"inventoryId" binding:"required"`
	NewQuantity  types.Quantity `json:"newQuantity"`
	Reason       string         `json:"reason" binding:"required"`
	LotNumber    string         `json:"lotNumber,omitempty"`
	NewCostPrice *types.Money   `json:"newCostPrice,omitempty"`
}

func (r *AdjustRequest) ToInput() (inventory.AdjustInput, error) {
	inventoryID, err := parseID("inventoryId", r.InventoryID)
	if err != nil {
		return inventory.AdjustInput{}, err
	}
	return inventory.AdjustInput{
		InventoryID:  inventoryID,
		NewQuantity:  r.NewQuantity,
		Reason:       r.Reason,
		LotNumber:    r.LotNumber,
		NewCostPrice: r.NewCostPrice,
	}, nil
}

type BulkAdjustItemRequest struct {
	ProductSKU  string         `json:"productSku" binding:"required"`
	VariantSKU  *string        `json:"variantSku,omitempty"`
	NewQuantity types.Quantity `json:"newQuantity"`
	LotNumber   string         `json:"lotNumber,omitempty"`
}

type BulkAdjustRequest struct {
	Items  []BulkAdjustItemRequest `json:"items" binding:"required,min=1,dive"`
	Reason string                  `json:"reason" binding:"required"`
}

func (r *BulkAdjustRequest) ToInput() inventory.BulkAdjustInput {
	in := inventory.BulkAdjustInput{
		Reason: r.Reason,
		Items:  make([]inventory.BulkAdjustItem, 0, len(r.Items)),
	}
	for _, item := range r.Items {
		in.Items = append(in.Items, inventory.BulkAdjustItem{
			ProductSKU:  item.ProductSKU,
			VariantSKU:  item.VariantSKU,
			NewQuantity: item.NewQuantity,
			LotNumber:   item.LotNumber,
		})
	}
	return in
}

// --- Purchase receipts ---

type PurchaseReceiptRequest struct {
	ProductID         string         `json:"productId" binding:"required"`
	ProductSKU        string         `json:"productSku" binding:"required"`
	ProductName       string         `json:"productName,omitempty"`
	VariantID         *string        `json:"variantId,omitempty"`
	VariantSKU        *string        `json:"variantSku,omitempty"`
	Quantity          types.Quantity `json:"quantity"`
	UnitCost          types.Money    `json:"unitCost"`
	LotNumber         string         `json:"lotNumber,omitempty"`
	ExpirationDate    *time.Time     `json:"expirationDate,omitempty"`
	ManufacturingDate *time.Time     `json:"manufacturingDate,omitempty"`
	SupplierID        *string        `json:"supplierId,omitempty"`
	SupplierInvoice   string         `json:"supplierInvoice,omitempty"`
	PurchaseOrder     string         `json:"purchaseOrder,omitempty"`
}

func (r *PurchaseReceiptRequest) ToInput() (inventory.PurchaseReceipt, error) {
	productID, err := parseID("productId", r.ProductID)
	if err != nil {
		return inventory.PurchaseReceipt{}, err
	}
	variantID, err := parseOptionalID("variantId", r.VariantID)
	if err != nil {
		return inventory.PurchaseReceipt{}, err
	}
	return inventory.PurchaseReceipt{
		ProductID:         productID,
		ProductSKU:        r.ProductSKU,
		ProductName:       r.ProductName,
		VariantID:         variantID,
		VariantSKU:        r.VariantSKU,
		Quantity:          r.Quantity,
		UnitCost:          r.UnitCost,
		LotNumber:         r.LotNumber,
		ExpirationDate:    r.ExpirationDate,
		ManufacturingDate: r.ManufacturingDate,
		SupplierID:        optionalString(r.SupplierID),
		SupplierInvoice:   r.SupplierInvoice,
		Reference:         r.PurchaseOrder,
	}, nil
}
