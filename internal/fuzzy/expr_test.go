package fuzzy

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exprFixture(t *testing.T) (a, b *Variable) {
	t.Helper()
	u := mustUniverse(t, 0, 100, 1)
	a, err := NewVariable("a", Input, u,
		Category{Label: "low", Membership: mustBell(t, 10, 3, 20)},
		Category{Label: "high", Membership: mustBell(t, 10, 3, 80)},
	)
	require.NoError(t, err)
	b, err = NewVariable("b", Input, u,
		Category{Label: "low", Membership: mustBell(t, 15, 2, 25)},
		Category{Label: "high", Membership: mustBell(t, 15, 2, 75)},
	)
	require.NoError(t, err)
	return a, b
}

func TestTerm_Fire(t *testing.T) {
	a, _ := exprFixture(t)

	got, err := Is(a, "low").Fire(Assignment{"a": 20})
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	_, err = Is(a, "low").Fire(Assignment{"b": 20})
	assert.True(t, errors.Is(err, ErrMissingInput))

	_, err = Is(a, "low").Fire(Assignment{"a": math.NaN()})
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = Is(a, "medium").Fire(Assignment{"a": 20})
	assert.True(t, errors.Is(err, ErrUnknownCategory))
}

func TestAndOr_MinMax(t *testing.T) {
	a, b := exprFixture(t)
	left, right := Is(a, "low"), Is(b, "high")

	values := []float64{0, 12.5, 20, 33, 50, 75, 99, 1e300}
	for _, x := range values {
		for _, y := range values {
			asg := Assignment{"a": x, "b": y}
			l, err := left.Fire(asg)
			require.NoError(t, err)
			r, err := right.Fire(asg)
			require.NoError(t, err)

			and, err := And(left, right).Fire(asg)
			require.NoError(t, err)
			or, err := Or(left, right).Fire(asg)
			require.NoError(t, err)

			assert.Equal(t, math.Min(l, r), and, "and at a=%v b=%v", x, y)
			assert.Equal(t, math.Max(l, r), or, "or at a=%v b=%v", x, y)
		}
	}
}

func TestAndOr_Boundaries(t *testing.T) {
	a, b := exprFixture(t)
	left, right := Is(a, "low"), Is(b, "high")

	tests := []struct {
		name    string
		asg     Assignment
		wantAnd float64
		wantOr  float64
	}{
		{"both one", Assignment{"a": 20, "b": 75}, 1, 1},
		{"both zero", Assignment{"a": 1e300, "b": -1e300}, 0, 0},
		{"one and zero", Assignment{"a": 20, "b": -1e300}, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			and, err := And(left, right).Fire(tt.asg)
			require.NoError(t, err)
			or, err := Or(left, right).Fire(tt.asg)
			require.NoError(t, err)
			assert.Equal(t, tt.wantAnd, and)
			assert.Equal(t, tt.wantOr, or)
		})
	}
}

func TestExpr_MissingInputPropagates(t *testing.T) {
	a, b := exprFixture(t)
	e := Or(Is(a, "low"), And(Is(a, "high"), Is(b, "low")))

	_, err := e.Fire(Assignment{"a": 20})
	assert.True(t, errors.Is(err, ErrMissingInput))
}

func TestExpr_String(t *testing.T) {
	a, b := exprFixture(t)
	e := And(Is(a, "low"), Or(Is(b, "low"), Is(b, "high")))
	assert.Equal(t, "(a.low && (b.low || b.high))", e.String())
}
