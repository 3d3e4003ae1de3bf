package inventory

import (
	"strings"
	"time"

	"foodledger/internal/core/apperror"
	"foodledger/internal/core/types"
)

// LotStatus is advisory; the quantity fields are authoritative.
type LotStatus string

const (
	LotAvailable LotStatus = "available"
	LotReserved  LotStatus = "reserved"
	LotExpired   LotStatus = "expired"
	LotDamaged   LotStatus = "damaged"
	LotSold      LotStatus = "sold"
)

// Valid reports whether s is a known status.
func (s LotStatus) Valid() bool {
	switch s {
	case LotAvailable, LotReserved, LotExpired, LotDamaged, LotSold:
		return true
	}
	return false
}

// QualityCheck is the inspection captured when a lot is received.
type QualityCheck struct {
	Temperature      float64 `json:"temperature"`
	Humidity         float64 `json:"humidity"`
	VisualInspection string  `json:"visualInspection"`
	Approved         bool    `json:"approved"`
	Notes            string  `json:"notes,omitempty"`
}

// Lot is a dated, costed batch of stock inside a record.
//
// Invariant: AvailableQuantity + ReservedQuantity <= Quantity.
type Lot struct {
	LotNumber         string         `json:"lotNumber"`
	Quantity          types.Quantity `json:"quantity"`
	AvailableQuantity types.Quantity `json:"availableQuantity"`
	ReservedQuantity  types.Quantity `json:"reservedQuantity"`
	CostPrice         types.Money    `json:"costPrice"`
	ReceivedDate      time.Time      `json:"receivedDate"`
	ExpirationDate    *time.Time     `json:"expirationDate,omitempty"`
	ManufacturingDate *time.Time     `json:"manufacturingDate,omitempty"`
	Status            LotStatus      `json:"status"`
	SupplierID        *string        `json:"supplierId,omitempty"`
	SupplierInvoice   string         `json:"supplierInvoice,omitempty"`
	QualityCheck      *QualityCheck  `json:"qualityCheck,omitempty"`
}

// Remaining is the stock still physically held in the lot.
func (l *Lot) Remaining() types.Quantity {
	return l.AvailableQuantity + l.ReservedQuantity
}

// ExpiresBefore reports whether the lot has an expiration date before t.
func (l *Lot) ExpiresBefore(t time.Time) bool {
	return l.ExpirationDate != nil && l.ExpirationDate.Before(t)
}

// refreshStatus derives the status from quantities. Damaged and expired are
// set explicitly and are kept.
func (l *Lot) refreshStatus() {
	if l.Status == LotDamaged || l.Status == LotExpired {
		return
	}
	switch {
	case l.AvailableQuantity > 0:
		l.Status = LotAvailable
	case l.ReservedQuantity > 0:
		l.Status = LotReserved
	default:
		l.Status = LotSold
	}
}

// Lots is the ordered lot collection of a record.
type Lots []Lot

// Find returns a copy of the lot with the given number.
func (ls Lots) Find(lotNumber string) (Lot, bool) {
	if i := ls.index(lotNumber); i >= 0 {
		return ls[i], true
	}
	return Lot{}, false
}

// Remaining sums the stock still held across lots.
func (ls Lots) Remaining() types.Quantity {
	var sum types.Quantity
	for i := range ls {
		sum += ls[i].Remaining()
	}
	return sum
}

func (ls Lots) index(lotNumber string) int {
	for i := range ls {
		if ls[i].LotNumber == lotNumber {
			return i
		}
	}
	return -1
}

func (ls Lots) clone() Lots {
	if ls == nil {
		return nil
	}
	out := make(Lots, len(ls))
	for i, l := range ls {
		l.ExpirationDate = cloneTime(l.ExpirationDate)
		l.ManufacturingDate = cloneTime(l.ManufacturingDate)
		if l.SupplierID != nil {
			s := *l.SupplierID
			l.SupplierID = &s
		}
		if l.QualityCheck != nil {
			qc := *l.QualityCheck
			l.QualityCheck = &qc
		}
		out[i] = l
	}
	return out
}

// LotInput carries the data of a lot being received.
type LotInput struct {
	LotNumber         string
	Quantity          types.Quantity
	CostPrice         types.Money
	ReceivedDate      time.Time
	ExpirationDate    *time.Time
	ManufacturingDate *time.Time
	Status            LotStatus
	SupplierID        *string
	SupplierInvoice   string
	QualityCheck      *QualityCheck
}

// Validate checks the lot shape.
func (in LotInput) Validate() error {
	if strings.TrimSpace(in.LotNumber) == "" {
		return apperror.NewValidation("lotNumber is required")
	}
	if !in.Quantity.IsPositive() {
		return apperror.NewValidation("lot quantity must be positive").WithDetail("lot_number", in.LotNumber)
	}
	if in.CostPrice.IsNegative() {
		return apperror.NewValidation("lot costPrice must be zero or positive").WithDetail("lot_number", in.LotNumber)
	}
	if in.Status != "" && !in.Status.Valid() {
		return apperror.NewValidation("unknown lot status " + string(in.Status))
	}
	if in.ExpirationDate != nil && in.ManufacturingDate != nil && in.ExpirationDate.Before(*in.ManufacturingDate) {
		return apperror.NewValidation("lot expires before it was manufactured").WithDetail("lot_number", in.LotNumber)
	}
	return nil
}

func (in LotInput) toLot(now time.Time) Lot {
	received := in.ReceivedDate
	if received.IsZero() {
		received = now
	}
	status := in.Status
	if status == "" {
		status = LotAvailable
	}
	return Lot{
		LotNumber:         in.LotNumber,
		Quantity:          in.Quantity,
		AvailableQuantity: in.Quantity,
		CostPrice:         types.RoundCost(in.CostPrice),
		ReceivedDate:      received,
		ExpirationDate:    in.ExpirationDate,
		ManufacturingDate: in.ManufacturingDate,
		Status:            status,
		SupplierID:        in.SupplierID,
		SupplierInvoice:   in.SupplierInvoice,
		QualityCheck:      in.QualityCheck,
	}
}

func sameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
