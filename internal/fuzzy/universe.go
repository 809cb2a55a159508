package fuzzy

import (
	"fmt"
	"math"
)

// Universe is the discretization grid of a variable. Points are
// Min + i*Step for i in [0, Len()); Max itself is excluded.
type Universe struct {
	Min  float64 `json:"min" yaml:"min"`
	Max  float64 `json:"max" yaml:"max"`
	Step float64 `json:"step" yaml:"step"`
}

// NewUniverse validates the bounds and returns the universe.
func NewUniverse(min, max, step float64) (Universe, error) {
	u := Universe{Min: min, Max: max, Step: step}
	if err := u.Validate(); err != nil {
		return Universe{}, err
	}
	return u, nil
}

// Validate reports whether the universe yields at least two grid points.
func (u Universe) Validate() error {
	for _, v := range []float64{u.Min, u.Max, u.Step} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: universe bounds must be finite", ErrInvalidParameter)
		}
	}
	if u.Min >= u.Max {
		return fmt.Errorf("%w: universe min %g must be below max %g", ErrInvalidParameter, u.Min, u.Max)
	}
	if u.Step <= 0 {
		return fmt.Errorf("%w: universe step must be positive, got %g", ErrInvalidParameter, u.Step)
	}
	if n := u.Len(); n < 2 {
		return fmt.Errorf("%w: universe [%g, %g) with step %g has %d points, need at least 2",
			ErrInvalidParameter, u.Min, u.Max, u.Step, n)
	}
	return nil
}

// Len returns the number of grid points, ceil((Max-Min)/Step).
func (u Universe) Len() int {
	if u.Step <= 0 || u.Max <= u.Min {
		return 0
	}
	return int(math.Ceil((u.Max - u.Min) / u.Step))
}

// At returns the i-th grid point.
func (u Universe) At(i int) float64 {
	return u.Min + float64(i)*u.Step
}

// Points returns a freshly allocated copy of the grid.
func (u Universe) Points() []float64 {
	pts := make([]float64, u.Len())
	for i := range pts {
		pts[i] = u.At(i)
	}
	return pts
}

// Clamp limits x to the closed range [Min, Max].
func (u Universe) Clamp(x float64) float64 {
	return math.Min(math.Max(x, u.Min), u.Max)
}

func (u Universe) String() string {
	return fmt.Sprintf("[%g, %g) step %g", u.Min, u.Max, u.Step)
}
