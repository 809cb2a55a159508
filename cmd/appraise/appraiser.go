package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/opensource-finance/fuzzyprice/internal/appraisal"
	"github.com/opensource-finance/fuzzyprice/internal/domain"
	"github.com/opensource-finance/fuzzyprice/internal/landpricing"
	"github.com/opensource-finance/fuzzyprice/internal/modelfile"
	"github.com/opensource-finance/fuzzyprice/internal/rules"
)

// appraiser evaluates queries in-process against one compiled model.
type appraiser struct {
	engine    *rules.Engine
	processor *appraisal.Processor
	model     *rules.CompiledModel
}

// newAppraiser loads the model file at path, or the built-in land pricing
// model when path is empty. clip overrides the model's input clipping.
func newAppraiser(path string, clip *bool) (*appraiser, error) {
	spec := landpricing.DefaultSpec()
	if path != "" {
		var err error
		if spec, err = modelfile.Load(path); err != nil {
			return nil, err
		}
	}
	if clip != nil {
		spec.ClipInputs = *clip
	}

	engine, err := rules.NewEngine(1)
	if err != nil {
		return nil, err
	}
	model, err := engine.LoadModel(spec)
	if err != nil {
		return nil, err
	}
	return &appraiser{engine: engine, processor: appraisal.NewProcessor(), model: model}, nil
}

func (a *appraiser) estimate(ctx context.Context, inputs map[string]float64, reference float64) *domain.Estimate {
	outcome, err := a.engine.Evaluate(ctx, inputs)
	return a.processor.Process(ctx, &appraisal.EstimateInput{
		Inputs:         inputs,
		ReferencePrice: reference,
		Model:          a.model,
		Outcome:        outcome,
		Err:            err,
	})
}

// printEstimate writes the human-readable report of est.
func printEstimate(w io.Writer, est *domain.Estimate, unit string) {
	if !est.OK() {
		fmt.Fprintln(w, styles.Warn.Render(est.Message))
		return
	}

	fmt.Fprintf(w, "Estimated price: %s", styles.Price.Render(formatAmount(est.Price, unit)))
	if est.Category != "" {
		fmt.Fprintf(w, " %s", styles.Muted.Render("("+strings.ReplaceAll(est.Category, "_", " ")+")"))
	}
	fmt.Fprintln(w)

	if est.Comparison != nil {
		fmt.Fprintln(w, appraisal.Describe(est.Comparison))
	}
}

// formatAmount renders BRL amounts in Brazilian notation and anything else plainly.
func formatAmount(v float64, unit string) string {
	if unit == "BRL" {
		return appraisal.FormatBRL(v)
	}
	return strings.TrimSpace(fmt.Sprintf("%.2f %s", v, unit))
}

// outputUnit returns the unit of the model's output variable.
func (a *appraiser) outputUnit() string {
	for _, v := range a.model.Spec.Variables {
		if v.Kind == domain.VariableOutput {
			return v.Unit
		}
	}
	return ""
}

func (a *appraiser) inputSpecs() []domain.VariableSpec {
	var out []domain.VariableSpec
	for _, v := range a.model.Spec.Variables {
		if v.Kind == domain.VariableInput {
			out = append(out, v)
		}
	}
	return out
}
