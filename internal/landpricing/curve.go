package landpricing

import (
	"errors"
	"fmt"

	"github.com/opensource-finance/fuzzyprice/internal/fuzzy"
)

// Evaluator is satisfied by *fuzzy.Model.
type Evaluator interface {
	Evaluate(a fuzzy.Assignment) (float64, error)
}

// CurvePoint is one sample of the area-to-price curve.
type CurvePoint struct {
	Area  float64 `json:"area"`
	Price float64 `json:"price"`
	// OK is false when no rule fired for this area.
	OK bool `json:"ok"`
}

// AreaCurve sweeps area from `from` to `to` (inclusive) at the average
// distances and returns the estimated price at each step.
func AreaCurve(m Evaluator, from, to, step float64) ([]CurvePoint, error) {
	if step <= 0 || to < from {
		return nil, fmt.Errorf("%w: sweep [%g, %g] with step %g", fuzzy.ErrInvalidParameter, from, to, step)
	}

	n := int((to-from)/step) + 1
	points := make([]CurvePoint, 0, n)
	for i := 0; i < n; i++ {
		area := from + float64(i)*step
		price, err := m.Evaluate(fuzzy.Assignment{
			Area:    area,
			DistAve: DistAveAverage,
			DistBch: DistBchAverage,
		})
		switch {
		case err == nil:
			points = append(points, CurvePoint{Area: area, Price: price, OK: true})
		case errors.Is(err, fuzzy.ErrDegenerateAggregate):
			points = append(points, CurvePoint{Area: area})
		default:
			return nil, err
		}
	}
	return points, nil
}

// DefaultAreaCurve sweeps the full surveyed area range in 1 m2 steps.
func DefaultAreaCurve(m Evaluator) ([]CurvePoint, error) {
	return AreaCurve(m, AreaBreakpoints[0], AreaBreakpoints[len(AreaBreakpoints)-1], 1)
}
