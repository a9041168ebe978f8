package product

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStockSnapshot(t *testing.T) {
	snap := NewStockSnapshot([]StockItem{
		{Code: "X", Amount: 5, CountCode: "kos", ExternalID: "mk-1"},
		{Code: "NEG", Amount: -3},
	})

	assert.Equal(t, 2, snap.Len())
	assert.Equal(t, int64(5), snap.Amount("X"))
	assert.Equal(t, int64(0), snap.Amount("unknown"))
	assert.Equal(t, int64(0), snap.Amount("NEG"))

	var empty *StockSnapshot
	assert.Equal(t, 0, empty.Len())
	assert.Equal(t, int64(0), empty.Amount("X"))
}

func TestStockSnapshot_RepeatedCodeKeepsFirstLine(t *testing.T) {
	snap := NewStockSnapshot([]StockItem{
		{Code: "X", Amount: 5},
		{Code: "X", Amount: 9},
	})

	assert.Equal(t, 1, snap.Len())
	assert.Equal(t, int64(5), snap.Amount("X"))
}
