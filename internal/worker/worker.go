// Package worker consumes estimate requests and model reload events from the
// event bus so several replicas can share the work behind one queue group.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/fuzzyprice/internal/appraisal"
	"github.com/opensource-finance/fuzzyprice/internal/domain"
	"github.com/opensource-finance/fuzzyprice/internal/metrics"
	"github.com/opensource-finance/fuzzyprice/internal/rules"
)

var (
	// ErrNoTenants is returned by Start when no tenant is configured.
	ErrNoTenants = errors.New("no tenants configured")

	errTenantMismatch = errors.New("request tenant does not match subject tenant")
)

// Config lists the tenants whose subjects the worker consumes.
type Config struct {
	TenantIDs []string
}

// Stats describes the live subscriptions.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// Worker estimates prices for requests published on the bus.
type Worker struct {
	bus       domain.EventBus
	repo      domain.Repository
	engine    *rules.Engine
	processor *appraisal.Processor

	ctx    context.Context
	cancel context.CancelFunc
	active sync.WaitGroup

	mu   sync.Mutex
	subs []domain.Subscription
}

// NewWorker returns an idle worker. A nil repo means estimates are only
// published and reload events are ignored.
func NewWorker(bus domain.EventBus, repo domain.Repository, engine *rules.Engine, processor *appraisal.Processor) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		repo:      repo,
		engine:    engine,
		processor: processor,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start subscribes every tenant to estimate requests, and the worker once to
// model reloads, which are published under domain.GlobalTenantID. A tenant
// that cannot subscribe is logged and skipped; Start fails only when no
// tenant could be subscribed.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return ErrNoTenants
	}

	var errs []error
	for _, tenantID := range cfg.TenantIDs {
		handler := func(ctx context.Context, msg *domain.Message) error {
			return w.handleRequest(ctx, tenantID, msg)
		}
		if err := w.subscribe(tenantID, domain.TopicEstimateRequested, handler); err != nil {
			slog.Error("worker subscription failed", "tenant_id", tenantID, "error", err)
			errs = append(errs, fmt.Errorf("tenant %s: %w", tenantID, err))
		}
	}
	if len(errs) == len(cfg.TenantIDs) {
		return errors.Join(errs...)
	}
	if err := w.subscribe(domain.GlobalTenantID, domain.TopicModelReloaded, w.handleReload); err != nil {
		slog.Error("model reload subscription failed", "error", err)
	}

	slog.Info("worker started",
		"tenants", len(cfg.TenantIDs)-len(errs),
		"subscriptions", w.GetStats().SubscriptionCount,
	)
	return nil
}

func (w *Worker) subscribe(tenantID, topic string, h domain.MessageHandler) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, topic, w.counted(h))
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	w.mu.Lock()
	w.subs = append(w.subs, sub)
	w.mu.Unlock()
	return nil
}

// counted registers each delivery with the active group Stop waits on.
func (w *Worker) counted(h domain.MessageHandler) domain.MessageHandler {
	return func(ctx context.Context, msg *domain.Message) error {
		w.active.Add(1)
		defer w.active.Done()
		return h(ctx, msg)
	}
}

// handleRequest evaluates one AsyncEstimateRequest, stores the estimate and
// announces it on the completed or failed topic.
func (w *Worker) handleRequest(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var req domain.AsyncEstimateRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		metrics.AsyncMessage("dropped")
		slog.Error("undecodable estimate request", "message_id", msg.ID, "error", err)
		return err
	}
	if req.TenantID != "" && req.TenantID != tenantID {
		metrics.AsyncMessage("dropped")
		slog.Warn("estimate request dropped",
			"message_id", msg.ID,
			"subject_tenant", tenantID,
			"request_tenant", req.TenantID,
		)
		return errTenantMismatch
	}

	traceID := firstNonEmpty(req.TraceID, msg.Metadata[domain.MetaTraceID], msg.ID)
	outcome, evalErr := w.engine.Evaluate(ctx, req.Inputs)
	est := w.processor.Process(ctx, &appraisal.EstimateInput{
		TenantID:       tenantID,
		TraceID:        traceID,
		Inputs:         req.Inputs,
		ReferencePrice: req.ReferencePrice,
		StartTime:      start,
		Outcome:        outcome,
		Err:            evalErr,
	})
	if req.RequestID != "" {
		est.ID = req.RequestID
	}

	w.deliver(ctx, tenantID, est)

	slog.Info("async estimate",
		"estimate_id", est.ID,
		"tenant_id", tenantID,
		"trace_id", traceID,
		"status", est.Status,
		"price", est.Price,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// deliver persists est when a repository is attached and publishes it.
// Both steps are attempted; failures are logged.
func (w *Worker) deliver(ctx context.Context, tenantID string, est *domain.Estimate) {
	if w.repo != nil {
		if err := w.repo.SaveEstimate(ctx, tenantID, est); err != nil {
			slog.Error("estimate not stored", "estimate_id", est.ID, "error", err)
		}
	}

	topic, result := domain.TopicEstimateCompleted, "completed"
	if !est.OK() {
		topic, result = domain.TopicEstimateFailed, "failed"
	}
	metrics.AsyncMessage(result)

	payload, err := json.Marshal(est)
	if err != nil {
		slog.Error("estimate not encodable", "estimate_id", est.ID, "error", err)
		return
	}
	if err := w.bus.Publish(ctx, tenantID, topic, payload); err != nil {
		slog.Error("estimate not published", "estimate_id", est.ID, "topic", topic, "error", err)
	}
}

// handleReload swaps in the stored models after another replica reloaded.
// An event naming the version already active is a no-op.
func (w *Worker) handleReload(ctx context.Context, msg *domain.Message) error {
	if w.repo == nil {
		return nil
	}

	var ev domain.ModelReloadedEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return fmt.Errorf("decode reload event: %w", err)
	}
	if current, err := w.engine.Current(); err == nil &&
		current.Spec.ID == ev.ModelID && current.Spec.Version == ev.Version {
		return nil
	}

	specs, err := w.repo.ListModelSpecs(ctx, domain.GlobalTenantID)
	if err == nil {
		var compiled *rules.CompiledModel
		compiled, err = w.engine.ReloadModels(specs)
		if err == nil {
			slog.Info("model reloaded from event", "model", compiled.Key(), "message_id", msg.ID)
		}
	}
	metrics.ModelReload(err)
	if err != nil {
		return fmt.Errorf("reload %s@%s: %w", ev.ModelID, ev.Version, err)
	}
	return nil
}

// Stop cancels the subscriptions and waits for deliveries in progress.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	subs := w.subs
	w.subs = nil
	w.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			errs = append(errs, fmt.Errorf("unsubscribe %s: %w", sub.Topic(), err))
		}
	}
	w.active.Wait()

	slog.Info("worker stopped", "subscriptions", len(subs))
	return errors.Join(errs...)
}

// GetStats reports the current subscriptions.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	stats := Stats{SubscriptionCount: len(w.subs), Topics: make([]string, 0, len(w.subs))}
	for _, sub := range w.subs {
		stats.Topics = append(stats.Topics, sub.Topic())
	}
	return stats
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
