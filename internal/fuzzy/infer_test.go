package fuzzy

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func singleCategoryModel(t *testing.T, center float64) *Model {
	t.Helper()
	in, err := NewVariable("x", Input, mustUniverse(t, 0, 100, 1),
		Category{Label: "mid", Membership: mustBell(t, 10, 3, 50)})
	require.NoError(t, err)
	out, err := NewVariable("y", Output, mustUniverse(t, 0, 100, 1),
		Category{Label: "peak", Membership: mustBell(t, 10, 3, center)})
	require.NoError(t, err)

	m, err := NewModel([]*Variable{in, out}, []Rule{
		{Name: "only", Antecedent: Is(in, "mid"), Consequent: Is(out, "peak")},
	})
	require.NoError(t, err)
	return m
}

func TestCentroid_SymmetricCurveNearCenter(t *testing.T) {
	for _, center := range []float64{50, 42, 57.5} {
		m := singleCategoryModel(t, center)

		got, err := m.Evaluate(Assignment{"x": 50})
		require.NoError(t, err)
		assert.InDelta(t, center, got, 1.0, "center %v", center)
	}
}

func TestInfer_ClipsAtFiringStrength(t *testing.T) {
	m := singleCategoryModel(t, 50)

	// 60 sits at the half point of the input bell.
	sets, err := m.Infer(Assignment{"x": 60})
	require.NoError(t, err)
	require.Contains(t, sets, "y")

	set := sets["y"]
	assert.Equal(t, "y", set.Variable)
	require.Len(t, set.Degrees, 100)

	out := m.Output()
	for i, mu := range set.Degrees {
		want, err := out.DegreeOf("peak", out.Universe().At(i))
		require.NoError(t, err)
		if want > 0.5 {
			want = 0.5
		}
		assert.InDelta(t, want, mu, 1e-12)
	}
}

func TestRun_SameCategoryUsesMaxNotSum(t *testing.T) {
	f := newTipFixture(t)
	m, err := NewModel([]*Variable{f.service, f.food, f.tip}, []Rule{
		{Name: "a", Antecedent: Is(f.service, "good"), Consequent: Is(f.tip, "average")},
		{Name: "b", Antecedent: Is(f.food, "delicious"), Consequent: Is(f.tip, "average")},
	})
	require.NoError(t, err)

	res, err := m.Run(Assignment{"service": 5, "food": 9.9})
	require.NoError(t, err)

	assert.InDelta(t, 1.0, res.Implied["average"], 1e-12)
	for _, mu := range res.Aggregate.Degrees {
		assert.LessOrEqual(t, mu, 1.0)
	}
	assert.InDelta(t, 15, res.Value, 0.5)
}

func TestRun_Activations(t *testing.T) {
	f := newTipFixture(t)

	res, err := f.model.Run(Assignment{"service": 5, "food": 5})
	require.NoError(t, err)

	require.Len(t, res.Activations, 3)
	assert.Equal(t, "fair", res.Activations[1].Rule)
	assert.Equal(t, "average", res.Activations[1].Category)
	assert.Equal(t, 1.0, res.Activations[1].Strength)
	assert.Equal(t, "average", res.Dominant)
	assert.InDelta(t, 15, res.Value, 0.5)
}

func TestRun_UnconcludedCategoryContributesNothing(t *testing.T) {
	f := newTipFixture(t)
	m, err := NewModel([]*Variable{f.service, f.food, f.tip}, []Rule{
		{Name: "fair", Antecedent: Is(f.service, "good"), Consequent: Is(f.tip, "average")},
	})
	require.NoError(t, err)

	res, err := m.Run(Assignment{"service": 5})
	require.NoError(t, err)
	assert.NotContains(t, res.Implied, "cheap")
	assert.NotContains(t, res.Implied, "generous")
}

func TestRun_DegenerateOnlyWhenNothingFires(t *testing.T) {
	f := newTipFixture(t)

	t.Run("all strengths zero", func(t *testing.T) {
		res, err := f.model.Run(Assignment{"service": 1e300, "food": -1e300})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrDegenerateAggregate))
		for _, a := range res.Activations {
			assert.Equal(t, 0.0, a.Strength)
		}

		_, err = f.model.Evaluate(Assignment{"service": 1e300, "food": -1e300})
		assert.True(t, errors.Is(err, ErrDegenerateAggregate))
	})

	t.Run("tiny strength still yields a value", func(t *testing.T) {
		res, err := f.model.Run(Assignment{"service": 60, "food": -1e300})
		require.NoError(t, err)
		assert.Greater(t, res.Implied["generous"], 0.0)
		assert.GreaterOrEqual(t, res.Value, 0.0)
		assert.Less(t, res.Value, 30.0)
	})
}

func TestRun_MissingInput(t *testing.T) {
	f := newTipFixture(t)

	res, err := f.model.Run(Assignment{"service": 5})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, ErrMissingInput))

	// The model stays usable.
	_, err = f.model.Evaluate(Assignment{"service": 5, "food": 5})
	assert.NoError(t, err)
}

func TestRun_InputClipping(t *testing.T) {
	plain := newTipFixture(t)
	clipped := newTipFixture(t, WithInputClipping())
	asg := Assignment{"service": 1e300, "food": 1e300}

	_, err := plain.model.Evaluate(asg)
	assert.True(t, errors.Is(err, ErrDegenerateAggregate))

	got, err := clipped.model.Evaluate(asg)
	require.NoError(t, err)
	want, err := clipped.model.Evaluate(Assignment{"service": 10, "food": 10})
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// The caller's assignment is never modified.
	assert.Equal(t, 1e300, asg["service"])
}

func TestEvaluate_Idempotent(t *testing.T) {
	f := newTipFixture(t)
	asg := Assignment{"service": 3.3, "food": 7.1}

	first, err := f.model.Evaluate(asg)
	require.NoError(t, err)
	second, err := f.model.Evaluate(asg)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEvaluate_Concurrent(t *testing.T) {
	f := newTipFixture(t)
	inputs := []Assignment{
		{"service": 0, "food": 0},
		{"service": 5, "food": 5},
		{"service": 9, "food": 8},
		{"service": 2.5, "food": 9.5},
	}
	want := make([]float64, len(inputs))
	for i, asg := range inputs {
		v, err := f.model.Evaluate(asg)
		require.NoError(t, err)
		want[i] = v
	}

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i, asg := range inputs {
				v, err := f.model.Evaluate(asg)
				if err != nil {
					errs <- err
					return
				}
				if v != want[i] {
					errs <- errors.New("result differs across goroutines")
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestCentroid(t *testing.T) {
	u := mustUniverse(t, 0, 4, 1)

	got, err := Centroid(&AggregateSet{Universe: u, Degrees: []float64{0, 1, 1, 0}})
	require.NoError(t, err)
	assert.Equal(t, 1.5, got)

	_, err = Centroid(&AggregateSet{Universe: u, Degrees: []float64{0, 0, 0, 0}})
	assert.True(t, errors.Is(err, ErrDegenerateAggregate))

	_, err = Centroid(&AggregateSet{Universe: u, Degrees: []float64{1}})
	assert.True(t, errors.Is(err, ErrInvalidParameter))
}

func TestRun_FiredRuleWithEmptyConsequent(t *testing.T) {
	// The consequent peaks far outside the output grid, where the steep bell
	// underflows to exactly zero.
	in, err := NewVariable("x", Input, mustUniverse(t, 0, 100, 1),
		Category{Label: "mid", Membership: mustBell(t, 10, 3, 50)})
	require.NoError(t, err)
	out, err := NewVariable("y", Output, mustUniverse(t, 0, 100, 1),
		Category{Label: "far", Membership: mustBell(t, 1, 100, 1e6)})
	require.NoError(t, err)
	m, err := NewModel([]*Variable{in, out}, []Rule{
		{Name: "only", Antecedent: Is(in, "mid"), Consequent: Is(out, "far")},
	})
	require.NoError(t, err)

	res, err := m.Run(Assignment{"x": 50})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDegenerateAggregate))
	assert.Contains(t, err.Error(), "every fired consequent is zero")
	require.Len(t, res.Activations, 1)
	assert.Equal(t, 1.0, res.Activations[0].Strength)

	_, err = m.Run(Assignment{"x": 1e300})
	assert.Contains(t, err.Error(), "no rule fired")
}
