package domain

import "time"

// ModelSpec is the configuration data a fuzzy model is built from.
type ModelSpec struct {
	ID          string `json:"id" yaml:"id" validate:"required"`
	TenantID    string `json:"tenantId,omitempty" yaml:"-"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Version     string `json:"version" yaml:"version" validate:"required"`

	Variables []VariableSpec `json:"variables" yaml:"variables" validate:"required,min=2,dive"`
	Rules     []RuleSpec     `json:"rules" yaml:"rules" validate:"required,min=1,dive"`

	// ClipInputs clamps inputs into their universes before fuzzification.
	ClipInputs bool `json:"clipInputs,omitempty" yaml:"clipInputs,omitempty"`

	Enabled   bool      `json:"enabled" yaml:"enabled"`
	CreatedAt time.Time `json:"createdAt,omitempty" yaml:"-"`
	UpdatedAt time.Time `json:"updatedAt,omitempty" yaml:"-"`
}

// Variable kinds.
const (
	VariableInput  = "input"
	VariableOutput = "output"
)

// VariableSpec describes one linguistic variable.
// Categories are either listed explicitly or derived from Breakpoints.
type VariableSpec struct {
	Name        string          `json:"name" yaml:"name" validate:"required"`
	Kind        string          `json:"kind" yaml:"kind" validate:"required,oneof=input output"`
	Unit        string          `json:"unit,omitempty" yaml:"unit,omitempty"`
	Universe    UniverseSpec    `json:"universe" yaml:"universe"`
	Categories  []CategorySpec  `json:"categories,omitempty" yaml:"categories,omitempty" validate:"required_without=Breakpoints,dive"`
	Breakpoints *BreakpointSpec `json:"breakpoints,omitempty" yaml:"breakpoints,omitempty"`
}

// UniverseSpec is the sampling grid [Min, Max) with spacing Step.
type UniverseSpec struct {
	Min  float64 `json:"min" yaml:"min"`
	Max  float64 `json:"max" yaml:"max"`
	Step float64 `json:"step" yaml:"step"`
}

// CategorySpec is a bell-shaped category. Width and Slope are checked when
// the model is built, not here.
type CategorySpec struct {
	Label  string  `json:"label" yaml:"label" validate:"required"`
	Width  float64 `json:"width" yaml:"width"`
	Slope  float64 `json:"slope" yaml:"slope"`
	Center float64 `json:"center" yaml:"center"`
}

// BreakpointSpec derives consecutive categories from percentile breakpoints:
// category i spans Points[i]..Points[i+1] with its bell centered in the middle.
type BreakpointSpec struct {
	Points []float64 `json:"points" yaml:"points" validate:"required,min=2"`
	Labels []string  `json:"labels" yaml:"labels" validate:"required,min=1"`
	Slope  float64   `json:"slope" yaml:"slope"`
}

// RuleSpec is one IF-THEN rule. When is an expression over variable.category
// terms joined by && and ||, for example "area.small || dist_ave.moderate".
type RuleSpec struct {
	ID          string         `json:"id" yaml:"id"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	When        string         `json:"when" yaml:"when" validate:"required"`
	Then        ConsequentSpec `json:"then" yaml:"then"`
}

// ConsequentSpec names the output category a rule concludes.
type ConsequentSpec struct {
	Variable string `json:"variable" yaml:"variable" validate:"required"`
	Category string `json:"category" yaml:"category" validate:"required"`
}

// Inputs returns the names of the input variables in definition order.
func (s *ModelSpec) Inputs() []string {
	var names []string
	for _, v := range s.Variables {
		if v.Kind == VariableInput {
			names = append(names, v.Name)
		}
	}
	return names
}

// ModelKey identifies a model version, e.g. "land-pricing@1.0.0".
func (s *ModelSpec) ModelKey() string {
	return s.ID + "@" + s.Version
}
