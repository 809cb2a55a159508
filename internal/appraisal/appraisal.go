// Package appraisal turns inference outcomes into estimate records: it
// classifies failures, reports rule activations and compares the estimated
// price with a known reference price.
package appraisal

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/fuzzyprice/internal/domain"
	"github.com/opensource-finance/fuzzyprice/internal/fuzzy"
	"github.com/opensource-finance/fuzzyprice/internal/metrics"
	"github.com/opensource-finance/fuzzyprice/internal/rules"
)

// EngineVersion is stamped on every estimate.
const EngineVersion = "fuzzyprice-1.0"

// MessageNoInference is shown when no rule applies to the inputs.
const MessageNoInference = "inputs too extreme for any rule to apply"

// Processor builds estimates from engine outcomes.
type Processor struct {
	// MinActivation hides rules that fired below this strength.
	MinActivation float64
}

// NewProcessor creates a processor with default settings.
func NewProcessor() *Processor {
	return &Processor{
		MinActivation: 0.001,
	}
}

// EstimateInput contains everything needed to build one estimate.
type EstimateInput struct {
	TenantID       string
	TraceID        string
	Inputs         map[string]float64
	ReferencePrice float64
	StartTime      time.Time

	// Exactly one of Outcome, Cached or Err describes the result. Outcome may
	// accompany fuzzy.ErrDegenerateAggregate.
	Model   *rules.CompiledModel
	Outcome *rules.Outcome
	Cached  *domain.CachedEstimate
	Err     error
}

// Process produces the estimate record for one query.
func (p *Processor) Process(ctx context.Context, in *EstimateInput) *domain.Estimate {
	est := &domain.Estimate{
		ID:        uuid.New().String(),
		TenantID:  in.TenantID,
		Inputs:    in.Inputs,
		Timestamp: time.Now().UTC(),
		Metadata: domain.EstimateMetadata{
			TraceID:       in.TraceID,
			EngineVersion: EngineVersion,
		},
	}

	model := in.Model
	if model == nil && in.Outcome != nil {
		model = in.Outcome.Model
	}
	if model != nil {
		est.ModelID = model.Spec.ID
		est.Version = model.Spec.Version
	}

	var inference time.Duration
	switch {
	case in.Err != nil:
		est.Status, est.Error, est.Message = Classify(in.Err)
		if in.Outcome != nil && in.Outcome.Result != nil {
			est.Activations = p.activations(in.Outcome.Result.Activations)
			inference = in.Outcome.Duration
		}

	case in.Cached != nil:
		est.Status = domain.StatusEstimated
		est.Price = in.Cached.Price
		est.Category = in.Cached.Category
		est.Activations = in.Cached.Activations
		est.Metadata.Cached = true

	case in.Outcome != nil:
		res := in.Outcome.Result
		est.Status = domain.StatusEstimated
		est.Price = res.Value
		est.Category = res.Dominant
		est.Activations = p.activations(res.Activations)
		inference = in.Outcome.Duration

	default:
		est.Status, est.Error, est.Message = Classify(rules.ErrNoModel)
	}

	if est.OK() {
		est.Comparison = Compare(est.Price, in.ReferencePrice)
	}

	est.Metadata.RulesFired = len(est.Activations)
	est.Metadata.InferenceMs = inference.Milliseconds()
	if !in.StartTime.IsZero() {
		est.Metadata.TotalMs = time.Since(in.StartTime).Milliseconds()
	}

	metrics.ObserveEstimate(est.Status, inference)
	return est
}

func (p *Processor) activations(acts []fuzzy.Activation) []domain.Activation {
	var out []domain.Activation
	for _, a := range acts {
		if a.Strength <= 0 || a.Strength < p.MinActivation {
			continue
		}
		out = append(out, domain.Activation{RuleID: a.Rule, Category: a.Category, Strength: a.Strength})
	}
	return out
}

// ToCache extracts the reusable part of a successful estimate.
func ToCache(est *domain.Estimate) *domain.CachedEstimate {
	if est == nil || !est.OK() {
		return nil
	}
	return &domain.CachedEstimate{
		ModelVersion: est.ModelID + "@" + est.Version,
		Price:        est.Price,
		Category:     est.Category,
		Activations:  est.Activations,
	}
}

// Classify maps an inference error to an estimate status, error code and message.
func Classify(err error) (status, code, message string) {
	switch {
	case errors.Is(err, fuzzy.ErrDegenerateAggregate):
		return domain.StatusNoInference, domain.ErrCodeNoInference, MessageNoInference
	case errors.Is(err, fuzzy.ErrMissingInput):
		return domain.StatusRejected, domain.ErrCodeMissingInput, err.Error()
	case errors.Is(err, fuzzy.ErrInvalidInput):
		return domain.StatusRejected, domain.ErrCodeInvalidInput, err.Error()
	default:
		return domain.StatusRejected, domain.ErrCodeInternal, err.Error()
	}
}
