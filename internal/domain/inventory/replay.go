package inventory

import (
	"foodledger/internal/core/id"
)

// Replay rebuilds a balance from zero by applying movements in order.
//
// Adjustments only store |difference|, so their balanceAfter total and cost
// are taken as the new absolute values.
func Replay(ms []Movement) Balance {
	var b Balance
	for i := range ms {
		m := &ms[i]
		switch m.MovementType {
		case MovementIn:
			b.AverageCostPrice = WeightedAverage(b.TotalQuantity, b.AverageCostPrice, m.Quantity, m.UnitCost)
			b.TotalQuantity += m.Quantity
			b.AvailableQuantity += m.Quantity
		case MovementOut, MovementTransfer:
			if m.FromReserved {
				b.ReservedQuantity -= m.Quantity
			} else {
				b.AvailableQuantity -= m.Quantity
			}
			b.TotalQuantity -= m.Quantity
		case MovementReservation:
			b.AvailableQuantity -= m.Quantity
			b.ReservedQuantity += m.Quantity
		case MovementRelease:
			b.AvailableQuantity += m.Quantity
			b.ReservedQuantity -= m.Quantity
		case MovementAdjustment:
			diff := m.BalanceAfter.TotalQuantity - b.TotalQuantity
			b.TotalQuantity = m.BalanceAfter.TotalQuantity
			b.AvailableQuantity += diff
			b.AverageCostPrice = m.BalanceAfter.AverageCostPrice
		}
	}
	return b
}

// Reconciliation compares a stored balance with the one replayed from history.
// Consistent looks at quantities only: a record created empty keeps its
// opening cost without any movement to replay it from.
type Reconciliation struct {
	InventoryID id.ID   `json:"inventoryId"`
	Stored      Balance `json:"stored"`
	Replayed    Balance `json:"replayed"`
	Movements   int     `json:"movements"`
	Consistent  bool    `json:"consistent"`
}
