package fuzzy

import (
	"fmt"
	"slices"
)

// Kind tells whether a variable is read from the assignment or produced by inference.
type Kind int

const (
	// Input variables appear in rule antecedents.
	Input Kind = iota
	// Output variables appear in rule consequents.
	Output
)

func (k Kind) String() string {
	switch k {
	case Input:
		return "input"
	case Output:
		return "output"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Category is a labelled membership function of a variable.
type Category struct {
	Label      string
	Membership Membership
}

// Point is one sample of a membership curve.
type Point struct {
	X      float64 `json:"x"`
	Degree float64 `json:"degree"`
}

// Variable is a linguistic variable: a universe plus labelled membership
// functions. Curves are sampled over the grid once, at construction.
type Variable struct {
	name     string
	kind     Kind
	universe Universe
	grid     []float64

	labels  []string
	index   map[string]int
	funcs   []Membership
	samples [][]float64
}

// NewVariable builds a variable. Labels must be unique and non-empty, and
// bell memberships are validated before any curve is sampled.
func NewVariable(name string, kind Kind, universe Universe, categories ...Category) (*Variable, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: variable name is required", ErrInvalidParameter)
	}
	if kind != Input && kind != Output {
		return nil, fmt.Errorf("%w: variable %s has unsupported kind %v", ErrInvalidParameter, name, kind)
	}
	if err := universe.Validate(); err != nil {
		return nil, fmt.Errorf("variable %s: %w", name, err)
	}
	if len(categories) == 0 {
		return nil, fmt.Errorf("%w: variable %s needs at least one category", ErrInvalidParameter, name)
	}

	v := &Variable{
		name:     name,
		kind:     kind,
		universe: universe,
		grid:     universe.Points(),
		labels:   make([]string, 0, len(categories)),
		index:    make(map[string]int, len(categories)),
		funcs:    make([]Membership, 0, len(categories)),
		samples:  make([][]float64, 0, len(categories)),
	}

	for _, c := range categories {
		if c.Label == "" {
			return nil, fmt.Errorf("%w: variable %s has a category without label", ErrInvalidParameter, name)
		}
		if _, dup := v.index[c.Label]; dup {
			return nil, fmt.Errorf("%w: variable %s defines category %q twice", ErrInvalidParameter, name, c.Label)
		}
		if c.Membership == nil {
			return nil, fmt.Errorf("%w: category %s.%s has no membership function", ErrInvalidParameter, name, c.Label)
		}
		if b, ok := c.Membership.(Bell); ok {
			if err := b.Validate(); err != nil {
				return nil, fmt.Errorf("category %s.%s: %w", name, c.Label, err)
			}
		}

		curve := make([]float64, len(v.grid))
		for i, x := range v.grid {
			curve[i] = c.Membership.Degree(x)
		}

		v.index[c.Label] = len(v.labels)
		v.labels = append(v.labels, c.Label)
		v.funcs = append(v.funcs, c.Membership)
		v.samples = append(v.samples, curve)
	}

	return v, nil
}

// Name returns the variable name.
func (v *Variable) Name() string { return v.name }

// Kind returns whether the variable is an input or an output.
func (v *Variable) Kind() Kind { return v.kind }

// Universe returns the variable's grid definition.
func (v *Variable) Universe() Universe { return v.universe }

// Categories returns the labels in definition order.
func (v *Variable) Categories() []string { return slices.Clone(v.labels) }

// Has reports whether the category is defined.
func (v *Variable) Has(category string) bool {
	_, ok := v.index[category]
	return ok
}

// Membership returns the membership function of a category.
func (v *Variable) Membership(category string) (Membership, error) {
	i, err := v.lookup(category)
	if err != nil {
		return nil, err
	}
	return v.funcs[i], nil
}

// DegreeOf evaluates the category's membership at x.
func (v *Variable) DegreeOf(category string, x float64) (float64, error) {
	i, err := v.lookup(category)
	if err != nil {
		return 0, err
	}
	return v.funcs[i].Degree(x), nil
}

// Sample returns the category's curve over the universe grid.
func (v *Variable) Sample(category string) ([]Point, error) {
	i, err := v.lookup(category)
	if err != nil {
		return nil, err
	}
	pts := make([]Point, len(v.grid))
	for j, x := range v.grid {
		pts[j] = Point{X: x, Degree: v.samples[i][j]}
	}
	return pts, nil
}

func (v *Variable) lookup(category string) (int, error) {
	i, ok := v.index[category]
	if !ok {
		return 0, fmt.Errorf("%w: %s.%s", ErrUnknownCategory, v.name, category)
	}
	return i, nil
}
