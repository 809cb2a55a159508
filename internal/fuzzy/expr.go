package fuzzy

import (
	"fmt"
	"math"
)

// Assignment holds the crisp input values of one query, keyed by variable name.
type Assignment map[string]float64

// Expr is a node of a rule antecedent. Fire returns the firing strength in [0, 1].
// The set of node kinds is closed: Term, And and Or.
type Expr interface {
	Fire(a Assignment) (float64, error)
	String() string
	node()
}

// Term references one category of one variable.
type Term struct {
	Variable *Variable
	Category string
}

// Is returns the term "v is category".
func Is(v *Variable, category string) Term {
	return Term{Variable: v, Category: category}
}

// Fire returns the membership of the assigned value in the term's category.
func (t Term) Fire(a Assignment) (float64, error) {
	x, ok := a[t.Variable.Name()]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingInput, t.Variable.Name())
	}
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, fmt.Errorf("%w: %s = %v", ErrInvalidInput, t.Variable.Name(), x)
	}
	return t.Variable.DegreeOf(t.Category, x)
}

func (t Term) String() string {
	if t.Variable == nil {
		return "<nil>." + t.Category
	}
	return t.Variable.Name() + "." + t.Category
}

func (Term) node() {}

type binary struct {
	op          string
	left, right Expr
	combine     func(a, b float64) float64
}

// And is the Zadeh conjunction: the minimum of both sides.
func And(left, right Expr) Expr {
	return binary{op: "&&", left: left, right: right, combine: math.Min}
}

// Or is the Zadeh disjunction: the maximum of both sides.
func Or(left, right Expr) Expr {
	return binary{op: "||", left: left, right: right, combine: math.Max}
}

func (b binary) Fire(a Assignment) (float64, error) {
	l, err := b.left.Fire(a)
	if err != nil {
		return 0, err
	}
	r, err := b.right.Fire(a)
	if err != nil {
		return 0, err
	}
	return b.combine(l, r), nil
}

func (b binary) String() string {
	return "(" + b.left.String() + " " + b.op + " " + b.right.String() + ")"
}

func (binary) node() {}

// walkTerms visits every leaf of e. It fails on nil nodes.
func walkTerms(e Expr, visit func(Term) error) error {
	switch n := e.(type) {
	case nil:
		return fmt.Errorf("%w: empty expression", ErrInvalidParameter)
	case Term:
		return visit(n)
	case binary:
		if err := walkTerms(n.left, visit); err != nil {
			return err
		}
		return walkTerms(n.right, visit)
	default:
		return fmt.Errorf("%w: unsupported expression node %T", ErrInvalidParameter, e)
	}
}
