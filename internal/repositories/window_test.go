package repositories

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWindow(t *testing.T) {
	tests := []struct {
		name          string
		offset, count int
		total         int
		lo, hi        int
	}{
		{"head", 0, 3, 10, 0, 3},
		{"middle", 4, 2, 10, 4, 6},
		{"past the end", 12, 3, 10, 0, 0},
		{"truncated tail", 8, 5, 10, 8, 10},
		{"last three", -3, 3, 10, 7, 10},
		{"last one", -1, 1, 10, 9, 10},
		{"from the end, short count", -5, 2, 10, 5, 7},
		{"before the start", -12, 4, 10, 0, 2},
		{"fully before the start", -20, 4, 10, 0, 0},
		{"zero count", 0, 0, 10, 0, 0},
		{"negative count", 2, -1, 10, 0, 0},
		{"empty sequence", 0, 5, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lo, hi := Window(tt.offset, tt.count, tt.total)
			assert.Equal(t, tt.lo, lo)
			assert.Equal(t, tt.hi, hi)
		})
	}
}

func TestWindowSliceSymmetry(t *testing.T) {
	for n := 1; n <= 6; n++ {
		lo1, hi1 := Window(0, n, n)
		lo2, hi2 := Window(-n, n, n)
		assert.Equal(t, lo1, lo2)
		assert.Equal(t, hi1, hi2)
	}
}
