package rules

import (
	"errors"
	"strings"
	"testing"

	"github.com/opensource-finance/fuzzyprice/internal/domain"
	"github.com/opensource-finance/fuzzyprice/internal/fuzzy"
)

// testSpec is a small two-input model used across the package tests.
func testSpec() *domain.ModelSpec {
	unit := domain.UniverseSpec{Min: 0, Max: 10, Step: 0.1}
	return &domain.ModelSpec{
		ID:      "tips",
		Version: "1",
		Enabled: true,
		Variables: []domain.VariableSpec{
			{
				Name: "service", Kind: domain.VariableInput, Universe: unit,
				Categories: []domain.CategorySpec{
					{Label: "poor", Width: 2, Slope: 3, Center: 0},
					{Label: "good", Width: 2, Slope: 3, Center: 5},
					{Label: "excellent", Width: 2, Slope: 3, Center: 10},
				},
			},
			{
				Name: "food", Kind: domain.VariableInput, Universe: unit,
				Breakpoints: &domain.BreakpointSpec{
					Points: []float64{0, 5, 10},
					Labels: []string{"rancid", "delicious"},
					Slope:  3,
				},
			},
			{
				Name: "tip", Kind: domain.VariableOutput, Universe: domain.UniverseSpec{Min: 0, Max: 30, Step: 0.5},
				Categories: []domain.CategorySpec{
					{Label: "cheap", Width: 4, Slope: 3, Center: 5},
					{Label: "average", Width: 4, Slope: 3, Center: 15},
					{Label: "generous", Width: 4, Slope: 3, Center: 25},
				},
			},
		},
		Rules: []domain.RuleSpec{
			{ID: "stingy", When: "service.poor || food.rancid", Then: domain.ConsequentSpec{Variable: "tip", Category: "cheap"}},
			{ID: "fair", When: "service.good", Then: domain.ConsequentSpec{Variable: "tip", Category: "average"}},
			{ID: "lavish", When: "service.excellent || food.delicious", Then: domain.ConsequentSpec{Variable: "tip", Category: "generous"}},
		},
	}
}

func TestBuild(t *testing.T) {
	m, err := Build(testSpec())
	if err != nil {
		t.Fatalf("failed to build model: %v", err)
	}

	if m.Output().Name() != "tip" {
		t.Errorf("expected output tip, got %s", m.Output().Name())
	}
	if len(m.Rules()) != 3 {
		t.Errorf("expected 3 rules, got %d", len(m.Rules()))
	}
	if m.Rules()[1].Name != "fair" {
		t.Errorf("expected rule id to become rule name, got %s", m.Rules()[1].Name)
	}

	v, err := m.Evaluate(fuzzy.Assignment{"service": 5, "food": 5})
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}
	if v < 13 || v > 17 {
		t.Errorf("expected a tip near 15, got %.2f", v)
	}
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *domain.ModelSpec)
		wantErr error
	}{
		{"zero width", func(s *domain.ModelSpec) { s.Variables[0].Categories[1].Width = 0 }, fuzzy.ErrInvalidParameter},
		{"negative slope", func(s *domain.ModelSpec) { s.Variables[2].Categories[0].Slope = -3 }, fuzzy.ErrInvalidParameter},
		{"zero breakpoint slope", func(s *domain.ModelSpec) { s.Variables[1].Breakpoints.Slope = 0 }, fuzzy.ErrInvalidParameter},
		{"label count mismatch", func(s *domain.ModelSpec) { s.Variables[1].Breakpoints.Labels = []string{"rancid"} }, fuzzy.ErrInvalidParameter},
		{"both categories and breakpoints", func(s *domain.ModelSpec) {
			s.Variables[1].Categories = s.Variables[0].Categories
		}, fuzzy.ErrInvalidParameter},
		{"bad universe", func(s *domain.ModelSpec) { s.Variables[0].Universe.Step = 0 }, fuzzy.ErrInvalidParameter},
		{"bad kind", func(s *domain.ModelSpec) { s.Variables[0].Kind = "hidden" }, fuzzy.ErrInvalidParameter},
		{"duplicate variable", func(s *domain.ModelSpec) { s.Variables[1].Name = "service" }, fuzzy.ErrInvalidParameter},
		{"unknown condition category", func(s *domain.ModelSpec) { s.Rules[1].When = "service.great" }, fuzzy.ErrUnknownCategory},
		{"unknown consequent category", func(s *domain.ModelSpec) { s.Rules[1].Then.Category = "huge" }, fuzzy.ErrUnknownCategory},
		{"unknown condition variable", func(s *domain.ModelSpec) { s.Rules[0].When = "ambience.cozy" }, fuzzy.ErrUnknownVariable},
		{"unknown consequent variable", func(s *domain.ModelSpec) { s.Rules[0].Then.Variable = "rating" }, fuzzy.ErrUnknownVariable},
		{"output in condition", func(s *domain.ModelSpec) { s.Rules[0].When = "tip.cheap" }, fuzzy.ErrInvalidParameter},
		{"no rules", func(s *domain.ModelSpec) { s.Rules = nil }, fuzzy.ErrInvalidParameter},
		{"unsupported operator", func(s *domain.ModelSpec) { s.Rules[0].When = "!service.poor" }, ErrInvalidCondition},
		{"syntax error", func(s *domain.ModelSpec) { s.Rules[0].When = "service.poor &&" }, ErrInvalidCondition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := testSpec()
			tt.mutate(spec)

			m, err := Build(spec)
			if err == nil {
				t.Fatal("expected build to fail")
			}
			if m != nil {
				t.Error("expected no model on failure")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDeriveCategories(t *testing.T) {
	cats, err := DeriveCategories(&domain.BreakpointSpec{
		Points: []float64{180, 250, 300},
		Labels: []string{"very_small", "small"},
		Slope:  3,
	})
	if err != nil {
		t.Fatalf("failed to derive categories: %v", err)
	}
	if len(cats) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(cats))
	}

	bell, ok := cats[0].Membership.(fuzzy.Bell)
	if !ok {
		t.Fatalf("expected bell membership, got %T", cats[0].Membership)
	}
	if bell.Width != 35 || bell.Center != 215 || bell.Slope != 3 {
		t.Errorf("unexpected bell %+v", bell)
	}

	bell = cats[1].Membership.(fuzzy.Bell)
	if bell.Width != 25 || bell.Center != 275 {
		t.Errorf("unexpected bell %+v", bell)
	}
}

func TestBuild_ClipInputs(t *testing.T) {
	spec := testSpec()
	spec.ClipInputs = true

	m, err := Build(spec)
	if err != nil {
		t.Fatalf("failed to build model: %v", err)
	}
	if !m.ClipsInputs() {
		t.Error("expected input clipping to be enabled")
	}
}

func TestBuild_ErrorNamesRule(t *testing.T) {
	spec := testSpec()
	spec.Rules[2].When = "service.superb"

	_, err := Build(spec)
	if err == nil || !strings.Contains(err.Error(), "lavish") {
		t.Errorf("expected error to name rule lavish, got %v", err)
	}
}
