package fuzzy

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// AggregateSet is the sampled union of clipped consequents of one output variable.
// It belongs to the query that produced it.
type AggregateSet struct {
	Variable string
	Universe Universe
	Degrees  []float64

	grid []float64
}

// Activation records how strongly one rule fired.
type Activation struct {
	Rule     string  `json:"rule"`
	Category string  `json:"category"`
	Strength float64 `json:"strength"`
}

// Result is the full outcome of one query.
type Result struct {
	// Value is the defuzzified crisp output.
	Value float64
	// Dominant is the output category with the highest implied strength.
	Dominant    string
	Activations []Activation
	// Implied maps each concluded category to the max strength of its rules.
	Implied   map[string]float64
	Aggregate *AggregateSet
}

// Evaluate runs inference and defuzzification and returns the crisp output.
func (m *Model) Evaluate(a Assignment) (float64, error) {
	res, err := m.Run(a)
	if err != nil {
		return 0, err
	}
	return res.Value, nil
}

// Run evaluates every rule, aggregates the clipped consequents and defuzzifies
// the result with the centroid method. When no rule fires the returned result
// still carries the activations, together with ErrDegenerateAggregate.
func (m *Model) Run(a Assignment) (*Result, error) {
	strengths, err := m.fire(a)
	if err != nil {
		return nil, err
	}

	fired := false
	for _, s := range strengths {
		if s != 0 {
			fired = true
			break
		}
	}

	implied, order := m.implied(strengths)
	set := m.aggregate(implied, order)

	res := &Result{
		Activations: make([]Activation, len(m.rules)),
		Implied:     make(map[string]float64, len(order)),
		Aggregate:   set,
	}
	best := -1.0
	for _, idx := range order {
		label := m.output.labels[idx]
		res.Implied[label] = implied[idx]
		if implied[idx] > best {
			best = implied[idx]
			res.Dominant = label
		}
	}
	for i, r := range m.rules {
		res.Activations[i] = Activation{Rule: r.Name, Category: r.Consequent.Category, Strength: strengths[i]}
	}

	if !fired {
		return res, fmt.Errorf("%w: no rule fired", ErrDegenerateAggregate)
	}
	res.Value, err = Centroid(set)
	if errors.Is(err, ErrDegenerateAggregate) {
		return res, fmt.Errorf("%w: rules fired but every fired consequent is zero on the %s grid",
			ErrDegenerateAggregate, m.output.name)
	}
	if err != nil {
		return res, err
	}
	return res, nil
}

// Infer returns the aggregate output set of every output variable.
func (m *Model) Infer(a Assignment) (map[string]*AggregateSet, error) {
	strengths, err := m.fire(a)
	if err != nil {
		return nil, err
	}
	implied, order := m.implied(strengths)
	return map[string]*AggregateSet{m.output.Name(): m.aggregate(implied, order)}, nil
}

// fire computes the strength of every rule against a private copy of the assignment.
func (m *Model) fire(a Assignment) ([]float64, error) {
	query := make(Assignment, len(m.inputs))
	for _, v := range m.inputs {
		x, ok := a[v.Name()]
		if !ok {
			continue
		}
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("%w: %s = %v", ErrInvalidInput, v.Name(), x)
		}
		if m.clip {
			x = v.Universe().Clamp(x)
		}
		query[v.Name()] = x
	}

	strengths := make([]float64, len(m.rules))
	for i, r := range m.rules {
		s, err := r.Antecedent.Fire(query)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", r.Name, err)
		}
		strengths[i] = s
	}
	return strengths, nil
}

// implied groups rule strengths by consequent category and keeps the maximum.
// order lists the concluded categories in first-concluded order.
func (m *Model) implied(strengths []float64) (implied []float64, order []int) {
	implied = make([]float64, len(m.output.labels))
	seen := make([]bool, len(m.output.labels))
	for i, s := range strengths {
		c := m.targets[i]
		if !seen[c] {
			seen[c] = true
			order = append(order, c)
		}
		implied[c] = math.Max(implied[c], s)
	}
	return implied, order
}

// aggregate clips each concluded category's sampled curve at its implied
// strength and unions the clipped curves with a pointwise max.
func (m *Model) aggregate(implied []float64, order []int) *AggregateSet {
	out := m.output
	degrees := make([]float64, len(out.grid))
	for _, c := range order {
		level := implied[c]
		if level == 0 {
			continue
		}
		for i, mu := range out.samples[c] {
			degrees[i] = math.Max(degrees[i], math.Min(mu, level))
		}
	}
	return &AggregateSet{
		Variable: out.Name(),
		Universe: out.Universe(),
		Degrees:  degrees,
		grid:     out.grid,
	}
}

// Centroid returns sum(x*mu(x)) / sum(mu(x)) over the set's grid.
func Centroid(set *AggregateSet) (float64, error) {
	if set == nil {
		return 0, fmt.Errorf("%w: nil aggregate", ErrInvalidParameter)
	}
	grid := set.grid
	if grid == nil {
		grid = set.Universe.Points()
	}
	if len(grid) != len(set.Degrees) {
		return 0, fmt.Errorf("%w: aggregate has %d degrees for %d grid points",
			ErrInvalidParameter, len(set.Degrees), len(grid))
	}

	den := floats.Sum(set.Degrees)
	if den == 0 {
		return 0, ErrDegenerateAggregate
	}
	return floats.Dot(grid, set.Degrees) / den, nil
}
