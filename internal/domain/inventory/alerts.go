package inventory

import (
	"time"

	"foodledger/internal/core/id"
	"foodledger/internal/core/types"
)

// Thresholds are the product-level limits alerts are derived from.
type Thresholds struct {
	MinimumStock    types.Quantity
	MaximumStock    *types.Quantity
	TrackExpiration bool
	ShelfLifeDays   int
}

// ProductSettings is what the ledger needs to know about a product.
type ProductSettings struct {
	ProductID     id.ID
	Thresholds    Thresholds
	TrackLots     bool
	IsPerishable  bool
	UnitOfMeasure string
}

// AlertDelta lists the flags that went from false to true.
type AlertDelta struct {
	LowStock       bool `json:"lowStock"`
	NearExpiration bool `json:"nearExpiration"`
	Expired        bool `json:"expired"`
	Overstock      bool `json:"overstock"`
}

// Any reports whether at least one flag was raised.
func (d AlertDelta) Any() bool {
	return d.LowStock || d.NearExpiration || d.Expired || d.Overstock
}

// Raised computes the delta between two alert states.
func Raised(prev, next Alerts) AlertDelta {
	return AlertDelta{
		LowStock:       next.LowStock && !prev.LowStock,
		NearExpiration: next.NearExpiration && !prev.NearExpiration,
		Expired:        next.Expired && !prev.Expired,
		Overstock:      next.Overstock && !prev.Overstock,
	}
}

const (
	DefaultNearExpirationHorizon = 7 * 24 * time.Hour
	DefaultAlertThrottle         = 24 * time.Hour
)

// Evaluator derives alert flags. It holds configuration only.
type Evaluator struct {
	// Horizon applies when the product has no shelf life configured.
	Horizon time.Duration
	// Throttle is the minimum gap between two notifications for a record.
	Throttle time.Duration
}

// NewEvaluator returns an evaluator; zero durations take the defaults.
func NewEvaluator(horizon, throttle time.Duration) *Evaluator {
	if horizon <= 0 {
		horizon = DefaultNearExpirationHorizon
	}
	if throttle <= 0 {
		throttle = DefaultAlertThrottle
	}
	return &Evaluator{Horizon: horizon, Throttle: throttle}
}

// horizon is 20% of the shelf life when known.
func (e *Evaluator) horizon(th Thresholds) time.Duration {
	if th.ShelfLifeDays > 0 {
		return time.Duration(th.ShelfLifeDays) * 24 * time.Hour / 5
	}
	return e.Horizon
}

// Evaluate computes the alert flags for r at now. LastAlertSent is carried over.
func (e *Evaluator) Evaluate(r *Record, th Thresholds, now time.Time) Alerts {
	a := Alerts{
		LowStock:      r.AvailableQuantity <= th.MinimumStock,
		LastAlertSent: r.Alerts.LastAlertSent,
	}
	if th.MaximumStock != nil && *th.MaximumStock > 0 {
		a.Overstock = r.TotalQuantity >= *th.MaximumStock
	}
	if !th.TrackExpiration {
		return a
	}

	limit := now.Add(e.horizon(th))
	for i := range r.Lots {
		l := &r.Lots[i]
		if l.Status != LotAvailable || l.AvailableQuantity <= 0 || l.ExpirationDate == nil {
			continue
		}
		switch {
		case l.ExpirationDate.Before(now):
			a.Expired = true
		case !l.ExpirationDate.After(limit):
			a.NearExpiration = true
		}
	}
	return a
}

// ShouldNotify reports whether a delta may be dispatched given the last send.
func (e *Evaluator) ShouldNotify(a Alerts, delta AlertDelta, now time.Time) bool {
	if !delta.Any() {
		return false
	}
	return a.LastAlertSent == nil || now.Sub(*a.LastAlertSent) >= e.Throttle
}
