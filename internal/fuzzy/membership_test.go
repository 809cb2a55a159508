package fuzzy

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBell_RejectsInvalidParameters(t *testing.T) {
	tests := []struct {
		name                 string
		width, slope, center float64
	}{
		{"zero width", 0, 3, 10},
		{"negative width", -2, 3, 10},
		{"zero slope", 5, 0, 10},
		{"negative slope", 5, -1, 10},
		{"nan width", math.NaN(), 3, 10},
		{"infinite slope", 5, math.Inf(1), 10},
		{"infinite center", 5, 3, math.Inf(-1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBell(tt.width, tt.slope, tt.center)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidParameter), "got %v", err)
		})
	}
}

func TestBell_PeakAndHalfPoints(t *testing.T) {
	b, err := NewBell(10, 3, 50)
	require.NoError(t, err)

	assert.Equal(t, 1.0, b.Degree(50))
	assert.InDelta(t, 0.5, b.Degree(60), 1e-12)
	assert.InDelta(t, 0.5, b.Degree(40), 1e-12)
}

func TestBell_Symmetric(t *testing.T) {
	params := []Bell{
		{Width: 10, Slope: 3, Center: 50},
		{Width: 0.5, Slope: 1, Center: -4},
		{Width: 35000, Slope: 3, Center: 87200},
	}
	offsets := []float64{0, 0.25, 1, 2.5, 10, 37, 1000}

	for _, b := range params {
		for _, d := range offsets {
			assert.Equal(t, b.Degree(b.Center-d), b.Degree(b.Center+d),
				"bell %+v offset %v", b, d)
		}
	}
}

func TestBell_NonIncreasingAwayFromCenter(t *testing.T) {
	b := Bell{Width: 4, Slope: 2.5, Center: 10}

	prev := b.Degree(b.Center)
	for d := 0.1; d < 200; d += 0.1 {
		right := b.Degree(b.Center + d)
		left := b.Degree(b.Center - d)
		assert.LessOrEqual(t, right, prev)
		assert.LessOrEqual(t, left, prev)
		assert.GreaterOrEqual(t, right, 0.0)
		prev = math.Max(left, right)
	}
}

func TestBell_FarTailIsZero(t *testing.T) {
	b := Bell{Width: 10, Slope: 3, Center: 50}
	assert.Equal(t, 0.0, b.Degree(1e300))
}
