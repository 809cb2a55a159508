// Package rules compiles model specifications into fuzzy models and serves
// inference against the active model.
package rules

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/fuzzyprice/internal/domain"
	"github.com/opensource-finance/fuzzyprice/internal/fuzzy"
)

// ErrNoModel is returned when no model has been loaded.
var ErrNoModel = errors.New("no model loaded")

var tracer = otel.Tracer("fuzzyprice-rules")

// Engine holds the active compiled model. Readers take the lock only to grab
// the current pointer; a reload swaps it without touching queries in flight.
type Engine struct {
	mu         sync.RWMutex
	compiler   *Compiler
	current    *CompiledModel
	maxWorkers int
}

// Outcome is the result of one evaluation together with the model that produced it.
type Outcome struct {
	Model    *CompiledModel
	Result   *fuzzy.Result
	Duration time.Duration
}

// BatchItem is one entry of a batch evaluation, in request order.
type BatchItem struct {
	Outcome *Outcome
	Err     error
}

// NewEngine creates a new inference engine.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	compiler, err := NewCompiler()
	if err != nil {
		return nil, err
	}

	return &Engine{
		compiler:   compiler,
		maxWorkers: maxWorkers,
	}, nil
}

// ValidateModel compiles a spec without replacing the active model.
func (e *Engine) ValidateModel(spec *domain.ModelSpec) error {
	if spec == nil {
		return fmt.Errorf("model spec is required")
	}
	_, err := e.compiler.Compile(spec)
	return err
}

// LoadModel compiles a spec and makes it the active model.
func (e *Engine) LoadModel(spec *domain.ModelSpec) (*CompiledModel, error) {
	compiled, err := e.compiler.Compile(spec)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.current = compiled
	e.mu.Unlock()

	return compiled, nil
}

// ReloadModels activates the most recently updated enabled spec.
// The active model is left untouched when nothing qualifies or compilation fails.
func (e *Engine) ReloadModels(specs []*domain.ModelSpec) (*CompiledModel, error) {
	var latest *domain.ModelSpec
	for _, spec := range specs {
		if spec == nil || !spec.Enabled {
			continue
		}
		if latest == nil || !spec.UpdatedAt.Before(latest.UpdatedAt) {
			latest = spec
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: no enabled model spec", ErrNoModel)
	}
	return e.LoadModel(latest)
}

// Current returns the active model.
func (e *Engine) Current() (*CompiledModel, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.current == nil {
		return nil, ErrNoModel
	}
	return e.current, nil
}

// Evaluate runs one query against the active model. On
// fuzzy.ErrDegenerateAggregate the outcome is returned alongside the error so
// callers can still report rule activations.
func (e *Engine) Evaluate(ctx context.Context, inputs map[string]float64) (*Outcome, error) {
	compiled, err := e.Current()
	if err != nil {
		return nil, err
	}
	return evaluate(ctx, compiled, inputs)
}

// EvaluateBatch evaluates queries concurrently against one snapshot of the
// active model. Results keep the order of queries.
func (e *Engine) EvaluateBatch(ctx context.Context, queries []map[string]float64) ([]BatchItem, error) {
	compiled, err := e.Current()
	if err != nil {
		return nil, err
	}

	results := make([]BatchItem, len(queries))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, e.maxWorkers)

	for i, q := range queries {
		wg.Add(1)
		go func(idx int, inputs map[string]float64) {
			defer wg.Done()

			select {
			case sem <- struct{}{}: // Acquire
			case <-ctx.Done():
				results[idx] = BatchItem{Err: ctx.Err()}
				return
			}
			defer func() { <-sem }() // Release

			outcome, err := evaluate(ctx, compiled, inputs)
			results[idx] = BatchItem{Outcome: outcome, Err: err}
		}(i, q)
	}

	wg.Wait()

	return results, nil
}

func evaluate(ctx context.Context, compiled *CompiledModel, inputs map[string]float64) (*Outcome, error) {
	_, span := tracer.Start(ctx, "fuzzy.evaluate",
		trace.WithAttributes(
			attribute.String("model.id", compiled.Spec.ID),
			attribute.String("model.version", compiled.Spec.Version),
			attribute.Int("model.rules", len(compiled.Spec.Rules)),
		),
	)
	defer span.End()

	start := time.Now()
	res, err := compiled.Model.Run(fuzzy.Assignment(inputs))
	outcome := &Outcome{Model: compiled, Result: res, Duration: time.Since(start)}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if res == nil {
			return nil, err
		}
		return outcome, err
	}

	span.SetAttributes(
		attribute.Float64("fuzzy.value", res.Value),
		attribute.String("fuzzy.dominant", res.Dominant),
	)
	return outcome, nil
}

// Variables returns the variables of the active model, inputs first.
func (e *Engine) Variables() ([]*fuzzy.Variable, error) {
	compiled, err := e.Current()
	if err != nil {
		return nil, err
	}
	return append(compiled.Model.Inputs(), compiled.Model.Output()), nil
}

// Sample returns a category's sampled curve from the active model.
func (e *Engine) Sample(variable, category string) ([]fuzzy.Point, error) {
	compiled, err := e.Current()
	if err != nil {
		return nil, err
	}
	v, ok := compiled.Model.Variable(variable)
	if !ok {
		return nil, fmt.Errorf("%w: %s", fuzzy.ErrUnknownVariable, variable)
	}
	return v.Sample(category)
}

// Close drops the active model.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = nil
	return nil
}
