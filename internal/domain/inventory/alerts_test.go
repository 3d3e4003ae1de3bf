package inventory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEvaluator_Evaluate(t *testing.T) {
	e := NewEvaluator(0, 0)
	maxStock := q(100)

	tests := []struct {
		name string
		rec  Record
		th   Thresholds
		want Alerts
	}{
		{
			name: "low stock at the minimum",
			rec:  Record{TotalQuantity: q(5), AvailableQuantity: q(5)},
			th:   Thresholds{MinimumStock: q(5)},
			want: Alerts{LowStock: true},
		},
		{
			name: "reserved stock does not count as available",
			rec:  Record{TotalQuantity: q(20), AvailableQuantity: q(2), ReservedQuantity: q(18)},
			th:   Thresholds{MinimumStock: q(5)},
			want: Alerts{LowStock: true},
		},
		{
			name: "overstock only when a maximum is set",
			rec:  Record{TotalQuantity: q(100), AvailableQuantity: q(100)},
			th:   Thresholds{MaximumStock: &maxStock},
			want: Alerts{Overstock: true},
		},
		{
			name: "no expiration flags without tracking",
			rec: Record{TotalQuantity: q(5), AvailableQuantity: q(5),
				Lots: Lots{lot("OLD", 5, ptr(-1))}},
			th:   Thresholds{},
			want: Alerts{},
		},
		{
			name: "expired and near expiration",
			rec: Record{TotalQuantity: q(10), AvailableQuantity: q(10),
				Lots: Lots{lot("OLD", 5, ptr(-1)), lot("SOON", 5, ptr(3))}},
			th:   Thresholds{TrackExpiration: true},
			want: Alerts{Expired: true, NearExpiration: true},
		},
		{
			name: "lots outside the horizon are fine",
			rec: Record{TotalQuantity: q(5), AvailableQuantity: q(5),
				Lots: Lots{lot("LATER", 5, ptr(30))}},
			th:   Thresholds{TrackExpiration: true},
			want: Alerts{},
		},
		{
			name: "reserved-only lots are ignored",
			rec: Record{TotalQuantity: q(10), ReservedQuantity: q(5), AvailableQuantity: q(5),
				Lots: Lots{{LotNumber: "HELD", Quantity: q(5), ReservedQuantity: q(5), Status: LotReserved, ExpirationDate: days(-1)}}},
			th:   Thresholds{TrackExpiration: true},
			want: Alerts{},
		},
		{
			name: "shelf life sets the horizon",
			rec: Record{TotalQuantity: q(5), AvailableQuantity: q(5),
				Lots: Lots{lot("SOON", 5, ptr(9))}},
			// 20% of 50 days is 10 days.
			th:   Thresholds{TrackExpiration: true, ShelfLifeDays: 50},
			want: Alerts{NearExpiration: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Evaluate(&tt.rec, tt.th, testNow)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRaised(t *testing.T) {
	prev := Alerts{LowStock: true}
	next := Alerts{LowStock: true, Expired: true}

	d := Raised(prev, next)

	assert.Equal(t, AlertDelta{Expired: true}, d)
	assert.True(t, d.Any())
	assert.False(t, Raised(next, prev).Any())
}

func TestEvaluator_ShouldNotify(t *testing.T) {
	e := NewEvaluator(0, 24*time.Hour)
	delta := AlertDelta{LowStock: true}
	recent := testNow.Add(-time.Hour)
	old := testNow.Add(-25 * time.Hour)

	assert.True(t, e.ShouldNotify(Alerts{}, delta, testNow))
	assert.False(t, e.ShouldNotify(Alerts{LastAlertSent: &recent}, delta, testNow))
	assert.True(t, e.ShouldNotify(Alerts{LastAlertSent: &old}, delta, testNow))
	assert.False(t, e.ShouldNotify(Alerts{}, AlertDelta{}, testNow))
}
