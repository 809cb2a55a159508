package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/fuzzyprice/internal/domain"
	"github.com/opensource-finance/fuzzyprice/internal/modelfile"
)

func TestInteract(t *testing.T) {
	a, err := newAppraiser("", nil)
	require.NoError(t, err)

	in := strings.NewReader(strings.Join([]string{
		"455", "0,78", "0.30", "300000",
		"abc", "300", "2", "1.5", "",
		"",
	}, "\n"))
	var out bytes.Buffer

	require.NoError(t, interact(context.Background(), a, in, &out))

	text := out.String()
	assert.Contains(t, text, "land-pricing@1.0.0")
	assert.Equal(t, 2, strings.Count(text, "Estimated price: R$ "))
	assert.Contains(t, text, "less than the real price")
	assert.Contains(t, text, "not a number: abc")
}

func TestInteractEndsOnEOF(t *testing.T) {
	a, err := newAppraiser("", nil)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, interact(context.Background(), a, strings.NewReader("455\n0.78"), &out))
	assert.NotContains(t, out.String(), "Estimated price")
}

func TestEstimateReportsNoInference(t *testing.T) {
	a, err := newAppraiser("", nil)
	require.NoError(t, err)

	est := a.estimate(context.Background(), map[string]float64{"area": 1e300, "dist_ave": 1e300, "dist_bch": 1e300}, 0)
	assert.Equal(t, domain.StatusNoInference, est.Status)

	var out bytes.Buffer
	printEstimate(&out, est, a.outputUnit())
	assert.Contains(t, out.String(), est.Message)
}

func TestClipOverride(t *testing.T) {
	clip := true
	a, err := newAppraiser("", &clip)
	require.NoError(t, err)
	assert.True(t, a.model.Model.ClipsInputs())

	est := a.estimate(context.Background(), map[string]float64{"area": 1e6, "dist_ave": 0.78, "dist_bch": 0.30}, 0)
	assert.Equal(t, domain.StatusEstimated, est.Status)
}

func TestParseAssignments(t *testing.T) {
	inputs, err := parseAssignments([]string{"area=455", "dist_ave=0,78"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"area": 455, "dist_ave": 0.78}, inputs)

	_, err = parseAssignments([]string{"area"})
	assert.Error(t, err)

	_, err = parseAssignments([]string{"area=big"})
	assert.Error(t, err)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "R$ 1.234,56", formatAmount(1234.56, "BRL"))
	assert.Equal(t, "12.50 km", formatAmount(12.5, "km"))
	assert.Equal(t, "3.00", formatAmount(3, ""))
}

func TestCommands(t *testing.T) {
	execute := func(t *testing.T, args ...string) string {
		t.Helper()
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetArgs(args)
		require.NoError(t, rootCmd.Execute())
		return out.String()
	}

	t.Run("OnceJSON", func(t *testing.T) {
		text := execute(t, "once", "area=455", "dist_ave=0.78", "dist_bch=0.30", "--reference", "300000", "--json")

		var est domain.Estimate
		require.NoError(t, json.Unmarshal([]byte(text), &est))
		assert.Equal(t, domain.StatusEstimated, est.Status)
		assert.InDelta(t, 290250, est.Price, 1250)
		require.NotNil(t, est.Comparison)
		assert.Equal(t, domain.DirectionBelow, est.Comparison.Direction)
	})

	t.Run("ModelExportRoundTrips", func(t *testing.T) {
		text := execute(t, "model", "export")

		spec, err := modelfile.Parse([]byte(text))
		require.NoError(t, err)
		assert.Equal(t, "land-pricing", spec.ID)
		assert.Len(t, spec.Rules, 5)
	})

	t.Run("Sample", func(t *testing.T) {
		text := execute(t, "sample", "area", "small")
		// 400 grid points, every tenth printed, plus the header.
		assert.Equal(t, 41, strings.Count(strings.TrimSpace(text), "\n")+1)
	})
}
