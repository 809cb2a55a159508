package fuzzy

import (
	"fmt"
	"math"
)

// Membership maps a crisp value to a degree in [0, 1].
type Membership interface {
	Degree(x float64) float64
}

// Bell is the generalized bell curve 1 / (1 + |(x-Center)/Width|^(2*Slope)).
type Bell struct {
	Width  float64 `json:"width" yaml:"width"`
	Slope  float64 `json:"slope" yaml:"slope"`
	Center float64 `json:"center" yaml:"center"`
}

// NewBell returns a bell curve. Width and slope must be positive and finite.
func NewBell(width, slope, center float64) (Bell, error) {
	b := Bell{Width: width, Slope: slope, Center: center}
	if err := b.Validate(); err != nil {
		return Bell{}, err
	}
	return b, nil
}

// Validate rejects the parameters that produce a division by zero or a step shape.
func (b Bell) Validate() error {
	if !(b.Width > 0) || math.IsInf(b.Width, 0) {
		return fmt.Errorf("%w: bell width must be positive and finite, got %g", ErrInvalidParameter, b.Width)
	}
	if !(b.Slope > 0) || math.IsInf(b.Slope, 0) {
		return fmt.Errorf("%w: bell slope must be positive and finite, got %g", ErrInvalidParameter, b.Slope)
	}
	if math.IsNaN(b.Center) || math.IsInf(b.Center, 0) {
		return fmt.Errorf("%w: bell center must be finite", ErrInvalidParameter)
	}
	return nil
}

// Degree evaluates the curve at x. Degree(Center) is exactly 1.
func (b Bell) Degree(x float64) float64 {
	d := math.Abs((x - b.Center) / b.Width)
	return 1 / (1 + math.Pow(d, 2*b.Slope))
}
