package domain

import (
	"github.com/go-playground/validator/v10"
)

// validate is shared by every request and specification type.
var validate = validator.New()

// Validate checks the structure of a model specification. Numeric parameters
// such as bell widths are checked when the model is built.
func (s *ModelSpec) Validate() error {
	return validate.Struct(s)
}

// Validate checks an estimate request.
func (r *EstimateRequest) Validate() error {
	return validate.Struct(r)
}
