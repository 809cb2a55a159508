package fuzzy

import (
	"fmt"
	"slices"
)

// Rule pairs an antecedent with the output category it concludes.
type Rule struct {
	Name       string
	Antecedent Expr
	Consequent Term
}

func (r Rule) String() string {
	return fmt.Sprintf("IF %s THEN %s", r.Antecedent, r.Consequent)
}

// Model is an immutable set of variables and rules with exactly one output variable.
type Model struct {
	inputs    []*Variable
	output    *Variable
	variables map[string]*Variable
	rules     []Rule
	// consequent category index of each rule
	targets []int
	clip    bool
}

// Option configures a Model at construction.
type Option func(*Model)

// WithInputClipping clamps every input value into its variable's universe
// before fuzzification.
func WithInputClipping() Option {
	return func(m *Model) { m.clip = true }
}

// NewModel validates the variable and rule graph and returns the model.
// Nothing is returned when any part of the graph is invalid.
func NewModel(variables []*Variable, rules []Rule, opts ...Option) (*Model, error) {
	m := &Model{
		variables: make(map[string]*Variable, len(variables)),
	}

	for _, v := range variables {
		if v == nil {
			return nil, fmt.Errorf("%w: nil variable", ErrInvalidParameter)
		}
		if _, dup := m.variables[v.Name()]; dup {
			return nil, fmt.Errorf("%w: variable %s defined twice", ErrInvalidParameter, v.Name())
		}
		m.variables[v.Name()] = v

		switch v.Kind() {
		case Input:
			m.inputs = append(m.inputs, v)
		case Output:
			if m.output != nil {
				return nil, fmt.Errorf("%w: model supports a single output variable, got %s and %s",
					ErrInvalidParameter, m.output.Name(), v.Name())
			}
			m.output = v
		}
	}
	if m.output == nil {
		return nil, fmt.Errorf("%w: model has no output variable", ErrInvalidParameter)
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("%w: model has no rules", ErrInvalidParameter)
	}

	m.rules = slices.Clone(rules)
	m.targets = make([]int, len(rules))
	for i, r := range m.rules {
		name := r.Name
		if name == "" {
			name = fmt.Sprintf("rule %d", i+1)
			m.rules[i].Name = name
		}

		err := walkTerms(r.Antecedent, func(t Term) error {
			return m.checkTerm(t, Input)
		})
		if err != nil {
			return nil, fmt.Errorf("%s antecedent: %w", name, err)
		}
		if err := m.checkTerm(r.Consequent, Output); err != nil {
			return nil, fmt.Errorf("%s consequent: %w", name, err)
		}
		m.targets[i], _ = m.output.lookup(r.Consequent.Category)
	}

	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Model) checkTerm(t Term, want Kind) error {
	if t.Variable == nil {
		return fmt.Errorf("%w: term %q has no variable", ErrInvalidParameter, t.Category)
	}
	registered, ok := m.variables[t.Variable.Name()]
	if !ok || registered != t.Variable {
		return fmt.Errorf("%w: %s", ErrUnknownVariable, t.Variable.Name())
	}
	if t.Variable.Kind() != want {
		return fmt.Errorf("%w: %s is an %v variable, expected %v", ErrInvalidParameter, t.Variable.Name(), t.Variable.Kind(), want)
	}
	if !t.Variable.Has(t.Category) {
		return fmt.Errorf("%w: %s.%s", ErrUnknownCategory, t.Variable.Name(), t.Category)
	}
	return nil
}

// Inputs returns the input variables in definition order.
func (m *Model) Inputs() []*Variable { return slices.Clone(m.inputs) }

// Output returns the output variable.
func (m *Model) Output() *Variable { return m.output }

// Variable looks up a variable by name.
func (m *Model) Variable(name string) (*Variable, bool) {
	v, ok := m.variables[name]
	return v, ok
}

// Rules returns the rules in definition order.
func (m *Model) Rules() []Rule { return slices.Clone(m.rules) }

// ClipsInputs reports whether inputs are clamped into their universes.
func (m *Model) ClipsInputs() bool { return m.clip }
