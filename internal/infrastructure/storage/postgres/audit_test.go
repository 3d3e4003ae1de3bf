package postgres

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodledger/internal/core/types"
	"foodledger/internal/domain/inventory"
)

func TestDiff(t *testing.T) {
	changes := Diff(
		map[string]any{"qty": 10.0, "name": "Flour", "gone": true},
		map[string]any{"qty": 8.0, "name": "Flour", "added": "x"},
	)

	assert.Len(t, changes, 3)
	assert.Equal(t, map[string]any{"old": 10.0, "new": 8.0}, changes["qty"])
	assert.Equal(t, map[string]any{"old": nil, "new": "x"}, changes["added"])
	assert.Equal(t, map[string]any{"old": true, "new": nil}, changes["gone"])
	assert.NotContains(t, changes, "name")
}

func TestStateOf_RecordChangesOnlyQuantities(t *testing.T) {
	before := &inventory.Record{ProductSKU: "FLOUR", TotalQuantity: types.Quantity(100_000), AvailableQuantity: types.Quantity(100_000)}
	after := before.Clone()
	after.TotalQuantity = types.Quantity(80_000)
	after.AvailableQuantity = types.Quantity(80_000)

	oldState, err := stateOf(before)
	require.NoError(t, err)
	newState, err := stateOf(after)
	require.NoError(t, err)
	changes := Diff(oldState, newState)

	assert.Len(t, changes, 2)
	assert.Contains(t, changes, "totalQuantity")
	assert.Contains(t, changes, "availableQuantity")

	empty, err := stateOf(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestAuditService_CompressesLargeChanges(t *testing.T) {
	s, err := NewAuditService(nil)
	require.NoError(t, err)
	s.compressThreshold = 16

	small := AuditEntry{Changes: []byte(`{"a":1}`)}
	s.compress(&small)
	assert.Equal(t, CompressionNone, small.CompressionAlgo)
	assert.Nil(t, small.ChangesCompressed)

	payload := bytes.Repeat([]byte(`{"lots":"xxxx"}`), 50)
	large := AuditEntry{Changes: payload}
	s.compress(&large)
	assert.Equal(t, CompressionZstd, large.CompressionAlgo)
	assert.Nil(t, large.Changes)

	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()
	out, err := dec.DecodeAll(large.ChangesCompressed, nil)
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}
