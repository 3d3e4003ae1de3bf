package inventory

import (
	"time"

	"foodledger/internal/core/apperror"
	"foodledger/internal/core/types"
)

// portion is one slice of a multi-lot operation together with the balance
// right after it was applied. Each portion becomes one movement.
type portion struct {
	lotNumber string
	quantity  types.Quantity
	after     Balance
}

func (r *Record) insufficient(requested, available types.Quantity) *apperror.AppError {
	return apperror.NewInsufficientStock(r.SKU(), requested, available).
		WithDetail("inventory_id", r.ID.String())
}

func (r *Record) lotIndex(lotNumber string) (int, error) {
	i := r.Lots.index(lotNumber)
	if i < 0 {
		return -1, apperror.NewNotFound("lot", lotNumber).WithDetail("inventory_id", r.ID.String())
	}
	return i, nil
}

// receive books incoming stock at unitCost. A lot with the same number is
// topped up; otherwise lot data starts a new lot.
func (r *Record) receive(qty types.Quantity, unitCost types.Money, lot *LotInput, now time.Time) error {
	if lot != nil {
		in := *lot
		in.Quantity = qty
		in.CostPrice = unitCost
		if in.ReceivedDate.IsZero() {
			in.ReceivedDate = now
		}
		if err := in.Validate(); err != nil {
			return err
		}
		if i := r.Lots.index(in.LotNumber); i >= 0 {
			l := &r.Lots[i]
			if !sameDate(l.ExpirationDate, in.ExpirationDate) {
				return apperror.NewValidation("lot already exists with a different expiration date").
					WithDetail("lot_number", in.LotNumber)
			}
			l.CostPrice = WeightedAverage(l.Remaining(), l.CostPrice, qty, unitCost)
			l.Quantity += qty
			l.AvailableQuantity += qty
			l.refreshStatus()
		} else {
			r.Lots = append(r.Lots, in.toLot(now))
		}
	}

	r.AverageCostPrice = WeightedAverage(r.TotalQuantity, r.AverageCostPrice, qty, unitCost)
	r.LastCostPrice = types.RoundCost(unitCost)
	r.TotalQuantity += qty
	r.AvailableQuantity += qty
	r.touch(now)
	return nil
}

// issue removes stock from the available pool. A named lot is drawn from
// directly; otherwise lots are consumed in FEFO order and whatever they
// cannot cover is taken from untracked stock.
func (r *Record) issue(qty types.Quantity, lotNumber string, now time.Time) error {
	if r.AvailableQuantity < qty {
		return r.insufficient(qty, r.AvailableQuantity)
	}

	if lotNumber != "" {
		i, err := r.lotIndex(lotNumber)
		if err != nil {
			return err
		}
		l := &r.Lots[i]
		if l.AvailableQuantity < qty {
			return r.insufficient(qty, l.AvailableQuantity).WithDetail("lot_number", lotNumber)
		}
		l.AvailableQuantity -= qty
		l.refreshStatus()
	} else {
		allocs, _ := planFEFO(r.Lots, qty, reservable)
		for _, a := range allocs {
			l := &r.Lots[r.Lots.index(a.LotNumber)]
			l.AvailableQuantity -= a.Quantity
			l.refreshStatus()
		}
	}

	r.TotalQuantity -= qty
	r.AvailableQuantity -= qty
	r.touch(now)
	r.recordSale(qty, now)
	return nil
}

// hold moves qty from available to reserved, optionally on one lot.
func (r *Record) hold(qty types.Quantity, lotNumber string, now time.Time) error {
	if r.AvailableQuantity < qty {
		return r.insufficient(qty, r.AvailableQuantity)
	}
	if lotNumber != "" {
		i, err := r.lotIndex(lotNumber)
		if err != nil {
			return err
		}
		l := &r.Lots[i]
		if l.AvailableQuantity < qty {
			return r.insufficient(qty, l.AvailableQuantity).WithDetail("lot_number", lotNumber)
		}
		l.AvailableQuantity -= qty
		l.ReservedQuantity += qty
		l.refreshStatus()
	}
	r.AvailableQuantity -= qty
	r.ReservedQuantity += qty
	r.touch(now)
	return nil
}

// unhold moves qty from reserved back to available, restoring the lot too.
func (r *Record) unhold(qty types.Quantity, lotNumber string, now time.Time) error {
	if r.ReservedQuantity < qty {
		return apperror.NewInvalidState("release exceeds reserved quantity").
			WithDetail("inventory_id", r.ID.String()).
			WithDetail("reserved", r.ReservedQuantity).
			WithDetail("requested", qty)
	}
	if lotNumber != "" {
		i, err := r.lotIndex(lotNumber)
		if err != nil {
			return err
		}
		l := &r.Lots[i]
		back := types.MinQuantity(qty, l.ReservedQuantity)
		l.ReservedQuantity -= back
		l.AvailableQuantity += back
		l.refreshStatus()
	}
	r.AvailableQuantity += qty
	r.ReservedQuantity -= qty
	r.touch(now)
	return nil
}

// reserve holds qty for an order. With useFEFO the hold is spread over lots
// in FEFO order; the part lots cannot cover is held on the aggregate only.
// Every slice is returned with the balance after it.
func (r *Record) reserve(qty types.Quantity, useFEFO bool, now time.Time) ([]portion, error) {
	if r.AvailableQuantity < qty {
		return nil, r.insufficient(qty, r.AvailableQuantity)
	}

	var allocs []Allocation
	rest := qty
	if useFEFO && len(r.Lots) > 0 {
		allocs, rest = planFEFO(r.Lots, qty, reservable)
	}

	parts := make([]portion, 0, len(allocs)+1)
	for _, a := range allocs {
		if err := r.hold(a.Quantity, a.LotNumber, now); err != nil {
			return nil, err
		}
		parts = append(parts, portion{lotNumber: a.LotNumber, quantity: a.Quantity, after: r.Snapshot()})
	}
	if rest > 0 {
		if err := r.hold(rest, "", now); err != nil {
			return nil, err
		}
		parts = append(parts, portion{quantity: rest, after: r.Snapshot()})
	}
	return parts, nil
}

// consumeReserved turns reserved stock into a permanent deduction. The
// order's own holds on this record are consumed first and decremented in
// place; whatever they do not cover is drawn from reserved lots in FEFO order,
// then from stock held on the aggregate only.
func (r *Record) consumeReserved(qty types.Quantity, holds []hold, now time.Time) ([]portion, error) {
	if r.ReservedQuantity < qty {
		return nil, r.insufficient(qty, r.ReservedQuantity).WithDetail("pool", "reserved")
	}

	var parts []portion
	left := qty
	take := func(lotNumber string, n types.Quantity) {
		if lotNumber != "" {
			l := &r.Lots[r.Lots.index(lotNumber)]
			l.ReservedQuantity -= n
			l.refreshStatus()
		}
		r.ReservedQuantity -= n
		r.TotalQuantity -= n
		left -= n
		parts = append(parts, portion{lotNumber: lotNumber, quantity: n, after: r.Snapshot()})
	}

	for i := range holds {
		h := &holds[i]
		if left <= 0 {
			break
		}
		if h.inventoryID != r.ID || h.quantity <= 0 {
			continue
		}
		var held types.Quantity
		switch j := r.Lots.index(h.lotNumber); {
		case h.lotNumber == "":
			held = r.unlottedReserved()
		case j >= 0:
			held = r.Lots[j].ReservedQuantity
		}
		n := types.MinQuantity(types.MinQuantity(h.quantity, held), left)
		if n <= 0 {
			continue
		}
		take(h.lotNumber, n)
		h.quantity -= n
	}

	if left > 0 {
		allocs, rest := planFEFO(r.Lots, left, reserved)
		for _, a := range allocs {
			take(a.LotNumber, a.Quantity)
		}
		if rest > 0 {
			take("", rest)
		}
	}

	r.touch(now)
	r.recordSale(qty, now)
	return parts, nil
}

// unlottedReserved is the reserved stock not attributed to any lot.
func (r *Record) unlottedReserved() types.Quantity {
	n := r.ReservedQuantity
	for i := range r.Lots {
		n -= r.Lots[i].ReservedQuantity
	}
	if n < 0 {
		return 0
	}
	return n
}

// adjustTo sets the total to newQty. The whole difference lands on the
// available pool, so newQty may not drop below what is reserved. A named lot
// takes the same difference on its available quantity.
func (r *Record) adjustTo(newQty types.Quantity, newCost *types.Money, lotNumber string, now time.Time) (types.Quantity, error) {
	if newQty.IsNegative() {
		return 0, apperror.NewValidation("newQuantity must be zero or positive")
	}
	if newQty < r.ReservedQuantity {
		return 0, apperror.NewInvalidAdjustment("new quantity is below the reserved quantity").
			WithDetail("inventory_id", r.ID.String()).
			WithDetail("reserved", r.ReservedQuantity).
			WithDetail("requested", newQty)
	}
	if newCost != nil && newCost.IsNegative() {
		return 0, apperror.NewValidation("newCostPrice must be zero or positive")
	}

	diff := newQty - r.TotalQuantity

	if lotNumber != "" {
		i, err := r.lotIndex(lotNumber)
		if err != nil {
			return 0, err
		}
		l := &r.Lots[i]
		if l.AvailableQuantity+diff < 0 {
			return 0, apperror.NewInvalidAdjustment("adjustment would take the lot below its reserved quantity").
				WithDetail("lot_number", lotNumber).
				WithDetail("lot_available", l.AvailableQuantity)
		}
		l.AvailableQuantity += diff
		l.Quantity += diff
		if l.Remaining() > l.Quantity {
			l.Quantity = l.Remaining()
		}
		l.refreshStatus()
	}

	r.TotalQuantity = newQty
	r.AvailableQuantity += diff
	if newCost != nil {
		r.AverageCostPrice = types.RoundCost(*newCost)
		r.LastCostPrice = r.AverageCostPrice
	}
	r.touch(now)
	return diff, nil
}
