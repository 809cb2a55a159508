// Package landpricing defines the land price model: three inputs (plot area,
// distance to the main avenue, distance to the beach) and a price output, each
// partitioned into bell-shaped categories derived from percentile breakpoints.
package landpricing

import (
	"github.com/opensource-finance/fuzzyprice/internal/domain"
)

// Model identity.
const (
	ModelID      = "land-pricing"
	ModelVersion = "1.0.0"
)

// Variable names.
const (
	Area    = "area"
	DistAve = "dist_ave"
	DistBch = "dist_bch"
	Price   = "price"
)

// BellSlope is shared by every category.
const BellSlope = 3

// Area breakpoints in square meters.
var AreaBreakpoints = []float64{180, 250, 300, 320, 360, 455}

// Price breakpoints in BRL.
var PriceBreakpoints = []float64{42_400, 132_000, 160_000, 180_000, 238_600, 400_000}

// Distance breakpoints in kilometers.
var (
	DistAveBreakpoints = []float64{0.78, 1.80, 1.91, 5.35}
	DistBchBreakpoints = []float64{0.30, 1.46, 1.92, 6.90}
)

// Average distances of the surveyed plots, in kilometers.
const (
	DistAveAverage = 2.30
	DistBchAverage = 1.98
)

var (
	sizeLabels     = []string{"very_small", "small", "medium", "large", "very_large"}
	distanceLabels = []string{"close", "moderate", "far"}
	priceLabels    = []string{"very_low", "low", "medium", "high", "very_high"}
)

// DefaultSpec returns the land pricing model specification.
func DefaultSpec() *domain.ModelSpec {
	return &domain.ModelSpec{
		ID:          ModelID,
		Name:        "Land pricing",
		Description: "Plot price from area and distances to the avenue and the beach",
		Version:     ModelVersion,
		Enabled:     true,
		Variables: []domain.VariableSpec{
			breakpointVariable(Area, domain.VariableInput, "m2", domain.UniverseSpec{Min: 100, Max: 500, Step: 1}, AreaBreakpoints, sizeLabels),
			breakpointVariable(DistAve, domain.VariableInput, "km", domain.UniverseSpec{Min: 0.60, Max: 5.50, Step: 0.05}, DistAveBreakpoints, distanceLabels),
			breakpointVariable(DistBch, domain.VariableInput, "km", domain.UniverseSpec{Min: 0.20, Max: 7.00, Step: 0.05}, DistBchBreakpoints, distanceLabels),
			breakpointVariable(Price, domain.VariableOutput, "BRL", domain.UniverseSpec{Min: 20_000, Max: 500_000, Step: 1_000}, PriceBreakpoints, priceLabels),
		},
		Rules: []domain.RuleSpec{
			{
				ID:          "small-and-remote",
				Description: "very small plots far from the avenue or the beach are very cheap",
				When:        "area.very_small && (dist_ave.far || dist_bch.far)",
				Then:        domain.ConsequentSpec{Variable: Price, Category: "very_low"},
			},
			{
				ID:          "small-or-moderate",
				Description: "small plots, or plots at a moderate distance from the avenue, are cheap",
				When:        "area.small || dist_ave.moderate",
				Then:        domain.ConsequentSpec{Variable: Price, Category: "low"},
			},
			{
				ID:   "medium-or-close",
				When: "area.medium || dist_ave.close || dist_bch.close",
				Then: domain.ConsequentSpec{Variable: Price, Category: "medium"},
			},
			{
				ID:   "large-or-central",
				When: "area.large || dist_ave.close && dist_bch.close",
				Then: domain.ConsequentSpec{Variable: Price, Category: "high"},
			},
			{
				ID:          "large-and-central",
				Description: "very large plots close to both the avenue and the beach are the most expensive",
				When:        "area.very_large && (dist_ave.close && dist_bch.close)",
				Then:        domain.ConsequentSpec{Variable: Price, Category: "very_high"},
			},
		},
	}
}

func breakpointVariable(name, kind, unit string, u domain.UniverseSpec, points []float64, labels []string) domain.VariableSpec {
	return domain.VariableSpec{
		Name:     name,
		Kind:     kind,
		Unit:     unit,
		Universe: u,
		Breakpoints: &domain.BreakpointSpec{
			Points: append([]float64(nil), points...),
			Labels: append([]string(nil), labels...),
			Slope:  BellSlope,
		},
	}
}

// Center returns the bell center of category i of a breakpoint list.
func Center(points []float64, i int) float64 {
	return points[i] + (points[i+1]-points[i])/2
}
