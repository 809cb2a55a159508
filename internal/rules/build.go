package rules

import (
	"errors"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/opensource-finance/fuzzyprice/internal/domain"
	"github.com/opensource-finance/fuzzyprice/internal/fuzzy"
)

// ErrInvalidCondition is returned for rule conditions that are not
// variable.category terms joined by && and ||.
var ErrInvalidCondition = errors.New("invalid rule condition")

// CompiledModel pairs a model specification with the immutable fuzzy model built from it.
type CompiledModel struct {
	Spec  *domain.ModelSpec
	Model *fuzzy.Model
}

// Key returns "id@version".
func (c *CompiledModel) Key() string {
	return c.Spec.ModelKey()
}

// Compiler turns model specifications into fuzzy models.
// It holds a parse-only CEL environment and is safe for concurrent use.
type Compiler struct {
	env *cel.Env
}

// NewCompiler creates a compiler.
func NewCompiler() (*Compiler, error) {
	env, err := cel.NewEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &Compiler{env: env}, nil
}

// Build is a convenience wrapper around NewCompiler and Compile.
func Build(spec *domain.ModelSpec) (*fuzzy.Model, error) {
	c, err := NewCompiler()
	if err != nil {
		return nil, err
	}
	compiled, err := c.Compile(spec)
	if err != nil {
		return nil, err
	}
	return compiled.Model, nil
}

// Compile builds every variable and rule of spec. Nothing is returned
// unless the whole model is valid.
func (c *Compiler) Compile(spec *domain.ModelSpec) (*CompiledModel, error) {
	if spec == nil {
		return nil, fmt.Errorf("%w: model spec is required", fuzzy.ErrInvalidParameter)
	}

	vars := make(map[string]*fuzzy.Variable, len(spec.Variables))
	ordered := make([]*fuzzy.Variable, 0, len(spec.Variables))
	for i := range spec.Variables {
		v, err := BuildVariable(&spec.Variables[i])
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", spec.ID, err)
		}
		if _, dup := vars[v.Name()]; dup {
			return nil, fmt.Errorf("model %s: %w: variable %s defined twice", spec.ID, fuzzy.ErrInvalidParameter, v.Name())
		}
		vars[v.Name()] = v
		ordered = append(ordered, v)
	}

	rules := make([]fuzzy.Rule, 0, len(spec.Rules))
	for i, rs := range spec.Rules {
		id := rs.ID
		if id == "" {
			id = fmt.Sprintf("rule-%d", i+1)
		}

		antecedent, err := lowerCondition(c.env, rs.When, vars)
		if err != nil {
			return nil, fmt.Errorf("model %s rule %s: %w", spec.ID, id, err)
		}

		out, ok := vars[rs.Then.Variable]
		if !ok {
			return nil, fmt.Errorf("model %s rule %s: %w: %s", spec.ID, id, fuzzy.ErrUnknownVariable, rs.Then.Variable)
		}

		rules = append(rules, fuzzy.Rule{
			Name:       id,
			Antecedent: antecedent,
			Consequent: fuzzy.Is(out, rs.Then.Category),
		})
	}

	var opts []fuzzy.Option
	if spec.ClipInputs {
		opts = append(opts, fuzzy.WithInputClipping())
	}
	model, err := fuzzy.NewModel(ordered, rules, opts...)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", spec.ID, err)
	}

	return &CompiledModel{Spec: spec, Model: model}, nil
}

// BuildVariable builds one linguistic variable from its specification.
func BuildVariable(vs *domain.VariableSpec) (*fuzzy.Variable, error) {
	var kind fuzzy.Kind
	switch vs.Kind {
	case domain.VariableInput:
		kind = fuzzy.Input
	case domain.VariableOutput:
		kind = fuzzy.Output
	default:
		return nil, fmt.Errorf("%w: variable %s has unknown kind %q", fuzzy.ErrInvalidParameter, vs.Name, vs.Kind)
	}

	universe, err := fuzzy.NewUniverse(vs.Universe.Min, vs.Universe.Max, vs.Universe.Step)
	if err != nil {
		return nil, fmt.Errorf("variable %s: %w", vs.Name, err)
	}

	var categories []fuzzy.Category
	switch {
	case vs.Breakpoints != nil && len(vs.Categories) > 0:
		return nil, fmt.Errorf("%w: variable %s sets both categories and breakpoints", fuzzy.ErrInvalidParameter, vs.Name)
	case vs.Breakpoints != nil:
		categories, err = DeriveCategories(vs.Breakpoints)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", vs.Name, err)
		}
	default:
		for _, cs := range vs.Categories {
			bell, err := fuzzy.NewBell(cs.Width, cs.Slope, cs.Center)
			if err != nil {
				return nil, fmt.Errorf("variable %s category %s: %w", vs.Name, cs.Label, err)
			}
			categories = append(categories, fuzzy.Category{Label: cs.Label, Membership: bell})
		}
	}

	return fuzzy.NewVariable(vs.Name, kind, universe, categories...)
}

// DeriveCategories turns N+1 breakpoints into N bell categories. Category i
// has width (P[i+1]-P[i])/2 and is centered halfway between P[i] and P[i+1].
func DeriveCategories(bp *domain.BreakpointSpec) ([]fuzzy.Category, error) {
	if len(bp.Labels) != len(bp.Points)-1 {
		return nil, fmt.Errorf("%w: %d breakpoints define %d categories, got %d labels",
			fuzzy.ErrInvalidParameter, len(bp.Points), len(bp.Points)-1, len(bp.Labels))
	}

	categories := make([]fuzzy.Category, len(bp.Labels))
	for i, label := range bp.Labels {
		width := (bp.Points[i+1] - bp.Points[i]) / 2
		bell, err := fuzzy.NewBell(width, bp.Slope, bp.Points[i]+width)
		if err != nil {
			return nil, fmt.Errorf("category %s: %w", label, err)
		}
		categories[i] = fuzzy.Category{Label: label, Membership: bell}
	}
	return categories, nil
}
