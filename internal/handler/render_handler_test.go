package handler

import (
	"math"
	"testing"
)

func TestExceedsPixels(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		limit         int
		want          bool
	}{
		{"within", 100, 100, 10_000, false},
		{"one over", 101, 100, 10_000, true},
		{"unlimited", 1 << 20, 1 << 20, 0, false},
		{"side over limit", 20_000, 1, 10_000, true},
		{"huge sides", math.MaxInt, math.MaxInt, 512 * 512, true},
		{"product wraps", math.MaxInt / 2, 4, math.MaxInt, true},
		{"uneven", 3, 7, 20, true},
		{"uneven fits", 3, 6, 20, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exceedsPixels(tt.width, tt.height, tt.limit); got != tt.want {
				t.Errorf("exceedsPixels(%d, %d, %d) = %v, want %v", tt.width, tt.height, tt.limit, got, tt.want)
			}
		})
	}
}
