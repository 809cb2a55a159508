package rules

import (
	"fmt"

	"github.com/google/cel-go/cel"
	celast "github.com/google/cel-go/common/ast"
	"github.com/google/cel-go/common/operators"

	"github.com/opensource-finance/fuzzyprice/internal/fuzzy"
)

// lowerCondition parses a rule condition such as
// "area.very_small && (dist_ave.far || dist_bch.far)" and lowers it into a
// fuzzy expression tree. Only &&, || and variable.category selections are
// accepted; the condition is never evaluated by CEL itself.
func lowerCondition(env *cel.Env, text string, vars map[string]*fuzzy.Variable) (fuzzy.Expr, error) {
	parsed, issues := env.Parse(text)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCondition, issues.Err())
	}
	return lower(parsed.NativeRep().Expr(), vars)
}

func lower(e celast.Expr, vars map[string]*fuzzy.Variable) (fuzzy.Expr, error) {
	switch e.Kind() {
	case celast.SelectKind:
		sel := e.AsSelect()
		if sel.IsTestOnly() || sel.Operand().Kind() != celast.IdentKind {
			return nil, fmt.Errorf("%w: expected variable.category", ErrInvalidCondition)
		}
		name := sel.Operand().AsIdent()
		v, ok := vars[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", fuzzy.ErrUnknownVariable, name)
		}
		if !v.Has(sel.FieldName()) {
			return nil, fmt.Errorf("%w: %s.%s", fuzzy.ErrUnknownCategory, name, sel.FieldName())
		}
		return fuzzy.Is(v, sel.FieldName()), nil

	case celast.CallKind:
		call := e.AsCall()
		var join func(l, r fuzzy.Expr) fuzzy.Expr
		switch call.FunctionName() {
		case operators.LogicalAnd:
			join = fuzzy.And
		case operators.LogicalOr:
			join = fuzzy.Or
		default:
			return nil, fmt.Errorf("%w: operator %s is not supported", ErrInvalidCondition, displayOperator(call.FunctionName()))
		}

		args := call.Args()
		if len(args) < 2 {
			return nil, fmt.Errorf("%w: %s needs two operands", ErrInvalidCondition, displayOperator(call.FunctionName()))
		}
		acc, err := lower(args[0], vars)
		if err != nil {
			return nil, err
		}
		for _, arg := range args[1:] {
			next, err := lower(arg, vars)
			if err != nil {
				return nil, err
			}
			acc = join(acc, next)
		}
		return acc, nil

	case celast.IdentKind:
		return nil, fmt.Errorf("%w: %q needs a category, as in %s.<category>", ErrInvalidCondition, e.AsIdent(), e.AsIdent())

	default:
		return nil, fmt.Errorf("%w: unsupported expression", ErrInvalidCondition)
	}
}

func displayOperator(fn string) string {
	if op, ok := operators.FindReverse(fn); ok {
		return op
	}
	return fn
}
