package inventory

import (
	"foodledger/internal/core/types"
)

// WeightedAverage blends the current average cost with an incoming receipt:
//
//	(totalBefore×avgBefore + qty×unitCost) / (totalBefore + qty)
//
// When nothing is on hand before or after the receipt, the incoming cost wins.
func WeightedAverage(totalBefore types.Quantity, avgBefore types.Money, qty types.Quantity, unitCost types.Money) types.Money {
	totalAfter := totalBefore + qty
	if totalBefore <= 0 || totalAfter <= 0 {
		return types.RoundCost(unitCost)
	}
	value := totalBefore.MulMoney(avgBefore).Add(qty.MulMoney(unitCost))
	return types.RoundCost(value.Div(totalAfter.Decimal()))
}
