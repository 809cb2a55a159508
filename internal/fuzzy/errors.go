// Package fuzzy implements a Mamdani fuzzy inference engine: generalized bell
// membership functions over discretized universes, min/max rule expressions,
// max aggregation of clipped consequents and centroid defuzzification.
//
// A Model is built once and is immutable afterwards. Every query owns its
// Assignment and its aggregate set, so a Model can be evaluated from any
// number of goroutines without locking.
package fuzzy

import "errors"

var (
	// ErrInvalidParameter is returned when a universe, membership function,
	// variable or model is constructed from unusable parameters.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrUnknownCategory is returned when a category label is not defined on its variable.
	ErrUnknownCategory = errors.New("unknown category")

	// ErrUnknownVariable is returned when a rule references a variable that is
	// not part of the model.
	ErrUnknownVariable = errors.New("unknown variable")

	// ErrMissingInput is returned when an assignment has no value for an input
	// referenced by a rule.
	ErrMissingInput = errors.New("missing input")

	// ErrInvalidInput is returned for NaN or infinite input values.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDegenerateAggregate is returned when the output set is zero over the
	// whole grid and has no centroid. The wrapped message names the cause.
	ErrDegenerateAggregate = errors.New("degenerate aggregate")
)
