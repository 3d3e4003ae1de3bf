package inventory

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodledger/internal/core/apperror"
	"foodledger/internal/core/id"
)

func reserveOne(sku string, qty float64, fefo bool) ReserveInput {
	return ReserveInput{
		OrderID: "order-1",
		Items:   []ReserveItem{{ProductSKU: sku, Quantity: q(qty), UseFEFO: fefo}},
	}
}

func twoLots() []LotInput {
	return []LotInput{
		{LotNumber: "L2", Quantity: q(5), ExpirationDate: days(10)},
		{LotNumber: "L1", Quantity: q(5), ExpirationDate: days(2)},
	}
}

func TestReserve_FEFODrawsEarliestLotFirst(t *testing.T) {
	h := newHarness(t)
	rec := h.create(t, "MILK", 10, "1", twoLots()...)

	res, err := h.svc.Reserve(tenantCtx(), reserveOne("MILK", 7, true))
	require.NoError(t, err)

	require.Len(t, res, 1)
	require.Len(t, res[0].Lots, 2)
	assert.Equal(t, "L1", res[0].Lots[0].LotNumber)
	assert.Equal(t, q(5), res[0].Lots[0].Quantity)
	assert.Equal(t, "L2", res[0].Lots[1].LotNumber)
	assert.Equal(t, q(2), res[0].Lots[1].Quantity)
	assert.Equal(t, testNow.Add(30*time.Minute), res[0].ExpiresAt)

	stored := h.stored(t, rec.ID)
	assert.Equal(t, q(3), stored.AvailableQuantity)
	assert.Equal(t, q(7), stored.ReservedQuantity)
	l1, _ := stored.Lots.Find("L1")
	l2, _ := stored.Lots.Find("L2")
	assert.Equal(t, q(0), l1.AvailableQuantity)
	assert.Equal(t, q(5), l1.ReservedQuantity)
	assert.Equal(t, LotReserved, l1.Status)
	assert.Equal(t, q(3), l2.AvailableQuantity)
	assert.Equal(t, q(2), l2.ReservedQuantity)

	ms := h.movements.all()
	require.Len(t, ms, 3)
	for _, m := range ms[1:] {
		assert.Equal(t, MovementReservation, m.MovementType)
		assert.Equal(t, "order-1", deref(m.OrderID))
		assert.Equal(t, ReasonReservation, m.Reason)
		require.NotNil(t, m.ExpiresAt)
	}
	assert.Equal(t, q(5), ms[1].BalanceAfter.ReservedQuantity)
	assert.Equal(t, q(7), ms[2].BalanceAfter.ReservedQuantity)
	h.assertInvariants(t)
}

func TestReserve_WithoutFEFOLeavesLotsAlone(t *testing.T) {
	h := newHarness(t)
	rec := h.create(t, "MILK", 10, "1", twoLots()...)

	res, err := h.svc.Reserve(tenantCtx(), reserveOne("MILK", 4, false))
	require.NoError(t, err)

	assert.Empty(t, res[0].Lots)
	stored := h.stored(t, rec.ID)
	assert.Equal(t, q(4), stored.ReservedQuantity)
	assert.Equal(t, q(10), stored.Lots.Remaining())
	l1, _ := stored.Lots.Find("L1")
	assert.Equal(t, q(0), l1.ReservedQuantity)
}

func TestReserve_Boundary(t *testing.T) {
	h := newHarness(t)
	full := h.create(t, "FULL", 10, "1")
	over := h.create(t, "OVER", 10, "1")

	_, err := h.svc.Reserve(tenantCtx(), reserveOne("FULL", 10, true))
	require.NoError(t, err)
	assert.Equal(t, q(0), h.stored(t, full.ID).AvailableQuantity)

	before := h.stored(t, over.ID)
	_, err = h.svc.Reserve(tenantCtx(), reserveOne("OVER", 11, true))
	require.True(t, apperror.IsInsufficientStock(err))
	assert.Contains(t, err.Error(), "available 10.0000, requested 11.0000")
	assert.Equal(t, before, h.stored(t, over.ID))
}

func TestReserve_BatchIsAtomic(t *testing.T) {
	h := newHarness(t)
	a := h.create(t, "A", 10, "1", LotInput{LotNumber: "LA", Quantity: q(10), ExpirationDate: days(5)})
	h.create(t, "B", 1, "1")
	before := h.stored(t, a.ID)
	movementsBefore := len(h.movements.all())

	_, err := h.svc.Reserve(tenantCtx(), ReserveInput{
		OrderID: "order-1",
		Items: []ReserveItem{
			{ProductSKU: "A", Quantity: q(5), UseFEFO: true},
			{ProductSKU: "B", Quantity: q(2)},
		},
	})

	require.True(t, apperror.IsInsufficientStock(err))
	assert.Equal(t, before, h.stored(t, a.ID))
	assert.Len(t, h.movements.all(), movementsBefore)
}

func TestReserve_UnknownSKU(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Reserve(tenantCtx(), reserveOne("NOPE", 1, false))

	require.True(t, apperror.IsNotFound(err))
	ae, _ := apperror.AsAppError(err)
	assert.Equal(t, "NOPE", ae.Details["sku"])
}

func TestReserve_Validation(t *testing.T) {
	h := newHarness(t)
	h.create(t, "A", 10, "1")

	tests := []struct {
		name string
		in   ReserveInput
	}{
		{"no order", ReserveInput{Items: []ReserveItem{{ProductSKU: "A", Quantity: q(1)}}}},
		{"no items", ReserveInput{OrderID: "o"}},
		{"window too long", ReserveInput{OrderID: "o", ExpirationMinutes: 1441, Items: []ReserveItem{{ProductSKU: "A", Quantity: q(1)}}}},
		{"zero quantity", ReserveInput{OrderID: "o", Items: []ReserveItem{{ProductSKU: "A"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Reserve(tenantCtx(), tt.in)
			assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
		})
	}
}

func TestReserve_ConcurrentRequestsNeverOversell(t *testing.T) {
	h := newHarness(t)
	rec := h.create(t, "A", 10, "1")

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.Reserve(tenantCtx(), reserveOne("A", 2, false))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	stored := h.stored(t, rec.ID)
	assert.Equal(t, q(0), stored.AvailableQuantity)
	assert.Equal(t, q(10), stored.ReservedQuantity)
}

func TestRelease_RestoresQuantitiesAndLotSplits(t *testing.T) {
	h := newHarness(t)
	rec := h.create(t, "MILK", 10, "1", twoLots()...)
	before := h.stored(t, rec.ID)

	_, err := h.svc.Reserve(tenantCtx(), reserveOne("MILK", 7, true))
	require.NoError(t, err)
	require.NoError(t, h.svc.Release(tenantCtx(), "order-1", nil))

	after := h.stored(t, rec.ID)
	assert.Equal(t, before.AvailableQuantity, after.AvailableQuantity)
	assert.Equal(t, before.ReservedQuantity, after.ReservedQuantity)
	for _, l := range before.Lots {
		got, _ := after.Lots.Find(l.LotNumber)
		assert.Equal(t, l.AvailableQuantity, got.AvailableQuantity, l.LotNumber)
		assert.Equal(t, l.ReservedQuantity, got.ReservedQuantity, l.LotNumber)
		assert.Equal(t, LotAvailable, got.Status, l.LotNumber)
	}

	releases := 0
	for _, m := range h.movements.all() {
		if m.MovementType == MovementRelease {
			releases++
			assert.Equal(t, "order-1", deref(m.OrderID))
		}
	}
	assert.Equal(t, 2, releases, "one release per reserved lot")
	h.assertInvariants(t)
}

func TestRelease_TwiceIsNotFound(t *testing.T) {
	h := newHarness(t)
	h.create(t, "A", 10, "1")
	_, err := h.svc.Reserve(tenantCtx(), reserveOne("A", 3, false))
	require.NoError(t, err)

	require.NoError(t, h.svc.Release(tenantCtx(), "order-1", nil))
	err = h.svc.Release(tenantCtx(), "order-1", nil)

	assert.True(t, apperror.IsNotFound(err))
	assert.True(t, apperror.IsNotFound(h.svc.Release(tenantCtx(), "never-reserved", nil)))
}

func TestRelease_SubsetOfSKUs(t *testing.T) {
	h := newHarness(t)
	a := h.create(t, "A", 10, "1")
	b := h.create(t, "B", 10, "1")
	_, err := h.svc.Reserve(tenantCtx(), ReserveInput{
		OrderID: "order-1",
		Items:   []ReserveItem{{ProductSKU: "A", Quantity: q(2)}, {ProductSKU: "B", Quantity: q(3)}},
	})
	require.NoError(t, err)

	require.NoError(t, h.svc.Release(tenantCtx(), "order-1", []string{"B"}))

	assert.Equal(t, q(2), h.stored(t, a.ID).ReservedQuantity)
	assert.Equal(t, q(0), h.stored(t, b.ID).ReservedQuantity)
}

func TestRelease_AfterPartialCommitReleasesRemainder(t *testing.T) {
	h := newHarness(t)
	rec := h.create(t, "A", 10, "1")
	_, err := h.svc.Reserve(tenantCtx(), reserveOne("A", 5, false))
	require.NoError(t, err)
	require.NoError(t, h.svc.Commit(tenantCtx(), CommitInput{OrderID: "order-1", Items: []CommitItem{{ProductSKU: "A", Quantity: q(3)}}}))

	require.NoError(t, h.svc.Release(tenantCtx(), "order-1", nil))

	stored := h.stored(t, rec.ID)
	assert.Equal(t, q(7), stored.TotalQuantity)
	assert.Equal(t, q(7), stored.AvailableQuantity)
	assert.Equal(t, q(0), stored.ReservedQuantity)
}

func TestRelease_FullyCommittedOrderIsNotFound(t *testing.T) {
	h := newHarness(t)
	h.create(t, "A", 10, "1")
	_, err := h.svc.Reserve(tenantCtx(), reserveOne("A", 5, false))
	require.NoError(t, err)
	require.NoError(t, h.svc.Commit(tenantCtx(), CommitInput{OrderID: "order-1", Items: []CommitItem{{ProductSKU: "A", Quantity: q(5)}}}))

	assert.True(t, apperror.IsNotFound(h.svc.Release(tenantCtx(), "order-1", nil)))
}

func TestCommit_ConsumesReservedLots(t *testing.T) {
	h := newHarness(t)
	rec := h.create(t, "MILK", 10, "2", twoLots()...)
	_, err := h.svc.Reserve(tenantCtx(), reserveOne("MILK", 7, true))
	require.NoError(t, err)

	err = h.svc.Commit(tenantCtx(), CommitInput{
		OrderID: "order-1",
		Items:   []CommitItem{{ProductSKU: "MILK", Quantity: q(6), UnitCost: money("2.5")}},
	})
	require.NoError(t, err)

	stored := h.stored(t, rec.ID)
	assert.Equal(t, q(4), stored.TotalQuantity)
	assert.Equal(t, q(3), stored.AvailableQuantity)
	assert.Equal(t, q(1), stored.ReservedQuantity)
	l1, _ := stored.Lots.Find("L1")
	assert.Equal(t, LotSold, l1.Status)
	assert.Equal(t, q(6), stored.Metrics.SoldQuantity)

	var outs []Movement
	for _, m := range h.movements.all() {
		if m.MovementType == MovementOut {
			outs = append(outs, m)
		}
	}
	require.Len(t, outs, 2)
	for _, m := range outs {
		assert.True(t, m.FromReserved)
		assert.Equal(t, ReasonCommit, m.Reason)
		assert.True(t, m.UnitCost.Equal(money("2.5")))
	}
	assert.Equal(t, "L1", deref(outs[0].LotNumber))
	assert.Equal(t, q(5), outs[0].Quantity)
	assert.Equal(t, "L2", deref(outs[1].LotNumber))
	assert.Equal(t, q(1), outs[1].Quantity)
	assert.Len(t, h.poster.posted, 3, "initial in and two outs")
	h.assertInvariants(t)
}

func TestCommit_DrawsOnlyTheOrdersOwnLots(t *testing.T) {
	h := newHarness(t)
	rec := h.create(t, "MILK", 10, "1", twoLots()...)

	orderA := reserveOne("MILK", 5, true)
	orderA.OrderID = "order-a"
	orderB := reserveOne("MILK", 3, true)
	orderB.OrderID = "order-b"
	_, err := h.svc.Reserve(tenantCtx(), orderA)
	require.NoError(t, err)
	_, err = h.svc.Reserve(tenantCtx(), orderB)
	require.NoError(t, err)

	require.NoError(t, h.svc.Commit(tenantCtx(), CommitInput{
		OrderID: "order-b",
		Items:   []CommitItem{{ProductSKU: "MILK", Quantity: q(3)}},
	}))

	stored := h.stored(t, rec.ID)
	l1, _ := stored.Lots.Find("L1")
	l2, _ := stored.Lots.Find("L2")
	assert.Equal(t, q(5), l1.ReservedQuantity, "order-a keeps its hold on L1")
	assert.Equal(t, q(0), l2.ReservedQuantity)

	require.NoError(t, h.svc.Release(tenantCtx(), "order-a", nil))

	stored = h.stored(t, rec.ID)
	assert.Equal(t, q(7), stored.TotalQuantity)
	assert.Equal(t, q(7), stored.AvailableQuantity)
	assert.Equal(t, q(0), stored.ReservedQuantity)
	for _, l := range stored.Lots {
		assert.Equal(t, q(0), l.ReservedQuantity, l.LotNumber)
	}
	l1, _ = stored.Lots.Find("L1")
	l2, _ = stored.Lots.Find("L2")
	assert.Equal(t, q(5), l1.AvailableQuantity)
	assert.Equal(t, q(2), l2.AvailableQuantity)
	h.assertInvariants(t)
}

func TestCommit_UnlottedHoldLeavesOtherOrdersLotsAlone(t *testing.T) {
	h := newHarness(t)
	rec := h.create(t, "MILK", 10, "1", twoLots()...)

	// order-1 holds stock on the aggregate only.
	_, err := h.svc.Reserve(tenantCtx(), reserveOne("MILK", 2, false))
	require.NoError(t, err)
	other := reserveOne("MILK", 4, true)
	other.OrderID = "order-2"
	_, err = h.svc.Reserve(tenantCtx(), other)
	require.NoError(t, err)

	require.NoError(t, h.svc.Commit(tenantCtx(), CommitInput{
		OrderID: "order-1",
		Items:   []CommitItem{{ProductSKU: "MILK", Quantity: q(2)}},
	}))

	stored := h.stored(t, rec.ID)
	assert.Equal(t, q(4), stored.ReservedQuantity)
	l1, _ := stored.Lots.Find("L1")
	assert.Equal(t, q(4), l1.ReservedQuantity, "order-2's lot hold is untouched")

	var outs []Movement
	for _, m := range h.movements.all() {
		if m.MovementType == MovementOut {
			outs = append(outs, m)
		}
	}
	require.Len(t, outs, 1)
	assert.Nil(t, outs[0].LotNumber)
	h.assertInvariants(t)
}

func TestCommit_Errors(t *testing.T) {
	h := newHarness(t)
	rec := h.create(t, "A", 10, "1")
	_, err := h.svc.Reserve(tenantCtx(), reserveOne("A", 2, false))
	require.NoError(t, err)
	before := h.stored(t, rec.ID)

	err = h.svc.Commit(tenantCtx(), CommitInput{Items: []CommitItem{{ProductSKU: "A", Quantity: q(3)}}})
	assert.True(t, apperror.IsInsufficientStock(err))

	err = h.svc.Commit(tenantCtx(), CommitInput{Items: []CommitItem{
		{ProductSKU: "A", Quantity: q(1)},
		{ProductSKU: "MISSING", Quantity: q(1)},
	}})
	assert.True(t, apperror.IsNotFound(err))
	assert.Equal(t, before, h.stored(t, rec.ID), "failed batch leaves no trace")
}

func TestReleaseExpired(t *testing.T) {
	h := newHarness(t)
	rec := h.create(t, "A", 10, "1")
	in := reserveOne("A", 4, false)
	in.ExpirationMinutes = 15
	_, err := h.svc.Reserve(tenantCtx(), in)
	require.NoError(t, err)

	n, err := h.svc.ReleaseExpired(tenantCtx(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "not expired yet")

	h.clock = h.clock.Add(16 * time.Minute)
	n, err = h.svc.ReleaseExpired(tenantCtx(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, q(0), h.stored(t, rec.ID).ReservedQuantity)

	ms := h.movements.all()
	last := ms[len(ms)-1]
	assert.Equal(t, MovementRelease, last.MovementType)
	assert.Equal(t, "system", last.CreatedBy)

	n, err = h.svc.ReleaseExpired(tenantCtx(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestOutstandingHolds(t *testing.T) {
	recA := Record{ID: id.New()}
	l1 := "L1"
	ms := []Movement{
		{InventoryID: recA.ID, ProductSKU: "A", MovementType: MovementReservation, Quantity: q(4), LotNumber: &l1},
		{InventoryID: recA.ID, ProductSKU: "A", MovementType: MovementReservation, Quantity: q(2)},
		{InventoryID: recA.ID, ProductSKU: "A", MovementType: MovementOut, FromReserved: true, Quantity: q(5), LotNumber: &l1},
		{InventoryID: recA.ID, ProductSKU: "A", MovementType: MovementOut, Quantity: q(9)},
	}

	holds := outstandingHolds(ms, nil)

	// L1 nets to -1, the aggregate hold of 2 is capped by the record net of 1.
	require.Len(t, holds, 1)
	assert.Equal(t, "", holds[0].lotNumber)
	assert.Equal(t, q(1), holds[0].quantity)
	assert.Empty(t, outstandingHolds(ms, []string{"B"}))
}
