package inventory

import (
	"sort"
	"time"

	"foodledger/internal/core/types"
)

// Allocation is the share of a request drawn from one lot.
type Allocation struct {
	LotNumber      string         `json:"lotNumber"`
	Quantity       types.Quantity `json:"quantity"`
	ExpirationDate *time.Time     `json:"expirationDate,omitempty"`
}

// fefoOrder returns the indexes of lots accepted by eligible, ordered by
// expiration date ascending with undated lots last. Ties fall back to the
// received date, then the lot number, so the order is deterministic.
func fefoOrder(ls Lots, eligible func(*Lot) bool) []int {
	idx := make([]int, 0, len(ls))
	for i := range ls {
		if eligible(&ls[i]) {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		la, lb := &ls[idx[a]], &ls[idx[b]]
		switch {
		case la.ExpirationDate == nil && lb.ExpirationDate != nil:
			return false
		case la.ExpirationDate != nil && lb.ExpirationDate == nil:
			return true
		case la.ExpirationDate != nil && !la.ExpirationDate.Equal(*lb.ExpirationDate):
			return la.ExpirationDate.Before(*lb.ExpirationDate)
		case !la.ReceivedDate.Equal(lb.ReceivedDate):
			return la.ReceivedDate.Before(lb.ReceivedDate)
		}
		return la.LotNumber < lb.LotNumber
	})
	return idx
}

// planFEFO greedily covers qty from lots in FEFO order. drawable says how much
// a lot can give; lots giving nothing are skipped. The returned remainder is
// the part no lot could cover. The lots are not modified.
func planFEFO(ls Lots, qty types.Quantity, drawable func(*Lot) types.Quantity) ([]Allocation, types.Quantity) {
	order := fefoOrder(ls, func(l *Lot) bool { return drawable(l) > 0 })

	var out []Allocation
	left := qty
	for _, i := range order {
		if left <= 0 {
			break
		}
		take := types.MinQuantity(drawable(&ls[i]), left)
		out = append(out, Allocation{
			LotNumber:      ls[i].LotNumber,
			Quantity:       take,
			ExpirationDate: ls[i].ExpirationDate,
		})
		left -= take
	}
	return out, left
}

// reservable is what FEFO may reserve from a lot. Lots marked expired or
// damaged are never drawn from.
func reservable(l *Lot) types.Quantity {
	if l.Status == LotExpired || l.Status == LotDamaged {
		return 0
	}
	return l.AvailableQuantity
}

func reserved(l *Lot) types.Quantity {
	return l.ReservedQuantity
}
