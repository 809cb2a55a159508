package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/fuzzyprice/internal/appraisal"
	"github.com/opensource-finance/fuzzyprice/internal/cache"
	"github.com/opensource-finance/fuzzyprice/internal/domain"
	"github.com/opensource-finance/fuzzyprice/internal/fuzzy"
	"github.com/opensource-finance/fuzzyprice/internal/metrics"
	"github.com/opensource-finance/fuzzyprice/internal/repository"
	"github.com/opensource-finance/fuzzyprice/internal/rules"
)

// Error codes returned outside estimate bodies.
const (
	CodeInvalidRequest = "invalid_request"
	CodeInvalidModel   = "invalid_model"
	CodeNotFound       = "not_found"
	CodeConflict       = "conflict"
	CodeUnavailable    = "unavailable"
	CodeInternal       = "internal"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	engine    *rules.Engine
	processor *appraisal.Processor
	version   string

	cacheTTL     time.Duration
	maxBatchSize int
}

// NewHandler creates a new API handler. repo, cache and bus may be nil; the
// endpoints that need them then answer 503.
func NewHandler(cfg domain.EngineConfig, repo domain.Repository, c domain.Cache, bus domain.EventBus, engine *rules.Engine, processor *appraisal.Processor, version string) *Handler {
	maxBatch := cfg.MaxBatchSize
	if maxBatch <= 0 {
		maxBatch = 1000
	}
	return &Handler{
		repo:         repo,
		cache:        c,
		bus:          bus,
		engine:       engine,
		processor:    processor,
		version:      version,
		cacheTTL:     time.Duration(cfg.CacheTTL) * time.Second,
		maxBatchSize: maxBatch,
	}
}

// BatchRequest is the request body for POST /estimate/batch.
type BatchRequest struct {
	Queries []domain.EstimateRequest `json:"queries"`
}

// BatchResponse is the response for POST /estimate/batch.
type BatchResponse struct {
	Results   []*domain.Estimate `json:"results"`
	Count     int                `json:"count"`
	Estimated int                `json:"estimated"`
	TotalMs   int64              `json:"totalMs"`
}

// AsyncResponse is the response for POST /estimate/async.
type AsyncResponse struct {
	RequestID string `json:"requestId"`
	Status    string `json:"status"`
	Topic     string `json:"topic"`
}

// VariableView describes one linguistic variable of the active model.
type VariableView struct {
	Name       string         `json:"name"`
	Kind       string         `json:"kind"`
	Universe   fuzzy.Universe `json:"universe"`
	Categories []CategoryView `json:"categories"`
}

// CategoryView is one category and its membership parameters.
type CategoryView struct {
	Label      string           `json:"label"`
	Membership fuzzy.Membership `json:"membership"`
}

// Estimate handles POST /estimate requests.
func (h *Handler) Estimate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	var req domain.EstimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid JSON request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}

	est := h.estimate(ctx, GetTenantID(ctx), GetTraceID(ctx), &req, start)
	h.save(ctx, est)

	writeJSON(w, estimateStatus(est), est)
}

// estimate answers one query, from cache when an identical query against
// the same model version was answered before.
func (h *Handler) estimate(ctx context.Context, tenantID, traceID string, req *domain.EstimateRequest, start time.Time) *domain.Estimate {
	in := &appraisal.EstimateInput{
		TenantID:       tenantID,
		TraceID:        traceID,
		Inputs:         req.Inputs,
		ReferencePrice: req.ReferencePrice,
		StartTime:      start,
	}

	current, err := h.engine.Current()
	if err != nil {
		in.Err = err
		return h.processor.Process(ctx, in)
	}
	in.Model = current

	key := cache.EstimateKey(current.Key(), req.Inputs)
	if h.cache != nil && h.cacheTTL > 0 {
		cached, err := h.cache.GetEstimate(ctx, tenantID, key)
		if err != nil {
			slog.Warn("cache lookup failed", "error", err)
		}
		hit := cached != nil && cached.ModelVersion == current.Key()
		metrics.CacheLookup(hit)
		if hit {
			in.Cached = cached
			return h.processor.Process(ctx, in)
		}
	}

	in.Outcome, in.Err = h.engine.Evaluate(ctx, req.Inputs)
	est := h.processor.Process(ctx, in)

	if h.cache != nil && h.cacheTTL > 0 && in.Outcome != nil && in.Outcome.Model == current {
		if data := appraisal.ToCache(est); data != nil {
			if err := h.cache.SetEstimate(ctx, tenantID, key, data, h.cacheTTL); err != nil {
				slog.Warn("failed to cache estimate", "error", err)
			}
		}
	}
	return est
}

func (h *Handler) save(ctx context.Context, est *domain.Estimate) {
	if h.repo == nil {
		return
	}
	if err := h.repo.SaveEstimate(ctx, est.TenantID, est); err != nil {
		slog.Error("failed to save estimate", "estimate_id", est.ID, "error", err)
	}
}

// EstimateBatch handles POST /estimate/batch requests.
func (h *Handler) EstimateBatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid JSON request body")
		return
	}
	if len(req.Queries) == 0 {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "queries must not be empty")
		return
	}
	if len(req.Queries) > h.maxBatchSize {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "too many queries, maximum is "+strconv.Itoa(h.maxBatchSize))
		return
	}
	for i := range req.Queries {
		if err := req.Queries[i].Validate(); err != nil {
			writeError(w, http.StatusBadRequest, CodeInvalidRequest, "query "+strconv.Itoa(i)+": "+err.Error())
			return
		}
	}

	inputs := make([]map[string]float64, len(req.Queries))
	for i, q := range req.Queries {
		inputs[i] = q.Inputs
	}

	items, err := h.engine.EvaluateBatch(ctx, inputs)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, CodeUnavailable, err.Error())
		return
	}

	resp := BatchResponse{Results: make([]*domain.Estimate, len(items)), Count: len(items)}
	for i, item := range items {
		est := h.processor.Process(ctx, &appraisal.EstimateInput{
			TenantID:       tenantID,
			TraceID:        traceID,
			Inputs:         req.Queries[i].Inputs,
			ReferencePrice: req.Queries[i].ReferencePrice,
			Outcome:        item.Outcome,
			Err:            item.Err,
		})
		if est.OK() {
			resp.Estimated++
		}
		h.save(ctx, est)
		resp.Results[i] = est
	}
	resp.TotalMs = time.Since(start).Milliseconds()

	writeJSON(w, http.StatusOK, resp)
}

// EstimateAsync handles POST /estimate/async by publishing the query for the
// worker. The estimate is later available at GET /estimates/{requestId}.
func (h *Handler) EstimateAsync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.bus == nil {
		writeError(w, http.StatusServiceUnavailable, CodeUnavailable, "event bus not available")
		return
	}

	var req domain.EstimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid JSON request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}

	msg := domain.AsyncEstimateRequest{
		RequestID:      uuid.New().String(),
		TenantID:       tenantID,
		TraceID:        GetTraceID(ctx),
		Inputs:         req.Inputs,
		ReferencePrice: req.ReferencePrice,
		Timestamp:      time.Now().UnixNano(),
	}
	payload, _ := json.Marshal(msg)

	if err := h.bus.Publish(ctx, tenantID, domain.TopicEstimateRequested, payload); err != nil {
		slog.Error("failed to publish estimate request", "request_id", msg.RequestID, "error", err)
		writeError(w, http.StatusServiceUnavailable, CodeUnavailable, "failed to queue estimate")
		return
	}

	writeJSON(w, http.StatusAccepted, AsyncResponse{
		RequestID: msg.RequestID,
		Status:    "ACCEPTED",
		Topic:     domain.TopicEstimateRequested,
	})
}

// GetEstimate retrieves a stored estimate by ID.
func (h *Handler) GetEstimate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	estimateID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, CodeUnavailable, "repository not available")
		return
	}

	est, err := h.repo.GetEstimate(ctx, GetTenantID(ctx), estimateID)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, CodeNotFound, "estimate not found")
		return
	}
	if err != nil {
		slog.Error("failed to get estimate", "id", estimateID, "error", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to load estimate")
		return
	}

	writeJSON(w, http.StatusOK, est)
}

// ListEstimates returns the newest stored estimates of the tenant.
func (h *Handler) ListEstimates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, CodeUnavailable, "repository not available")
		return
	}

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, CodeInvalidRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	estimates, err := h.repo.ListEstimates(ctx, GetTenantID(ctx), limit)
	if err != nil {
		slog.Error("failed to list estimates", "error", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to list estimates")
		return
	}
	if estimates == nil {
		estimates = []*domain.Estimate{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"estimates": estimates,
		"count":     len(estimates),
	})
}

// GetModel returns the specification of the active model.
func (h *Handler) GetModel(w http.ResponseWriter, r *http.Request) {
	current, err := h.engine.Current()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, CodeUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, current.Spec)
}

// ListVariables returns the variables of the active model, inputs first.
func (h *Handler) ListVariables(w http.ResponseWriter, r *http.Request) {
	vars, err := h.engine.Variables()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, CodeUnavailable, err.Error())
		return
	}

	views := make([]VariableView, 0, len(vars))
	for _, v := range vars {
		view := VariableView{Name: v.Name(), Kind: v.Kind().String(), Universe: v.Universe()}
		for _, label := range v.Categories() {
			m, _ := v.Membership(label)
			view.Categories = append(view.Categories, CategoryView{Label: label, Membership: m})
		}
		views = append(views, view)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"variables": views,
		"count":     len(views),
	})
}

// SampleCategory returns the sampled membership curve of one category.
func (h *Handler) SampleCategory(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	category := r.URL.Query().Get("category")
	if category == "" {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "category query parameter is required")
		return
	}

	points, err := h.engine.Sample(name, category)
	switch {
	case errors.Is(err, rules.ErrNoModel):
		writeError(w, http.StatusServiceUnavailable, CodeUnavailable, err.Error())
		return
	case errors.Is(err, fuzzy.ErrUnknownVariable), errors.Is(err, fuzzy.ErrUnknownCategory):
		writeError(w, http.StatusNotFound, CodeNotFound, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"variable": name,
		"category": category,
		"points":   points,
	})
}

// CreateModel validates a model specification by building it and stores it.
// The stored model becomes active on the next reload. A stored (id, version)
// is never replaced; resubmitting one is a 409.
func (h *Handler) CreateModel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, CodeUnavailable, "repository not available")
		return
	}

	var spec domain.ModelSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid JSON request body")
		return
	}
	if err := spec.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidModel, err.Error())
		return
	}
	if err := h.engine.ValidateModel(&spec); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidModel, err.Error())
		return
	}

	err := h.repo.SaveModelSpec(ctx, domain.GlobalTenantID, &spec)
	if errors.Is(err, repository.ErrConflict) {
		writeError(w, http.StatusConflict, CodeConflict,
			fmt.Sprintf("model %s is already stored; publish changes under a new version", spec.ModelKey()))
		return
	}
	if err != nil {
		slog.Error("failed to save model spec", "model_id", spec.ID, "error", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to save model")
		return
	}

	slog.Info("model spec stored",
		"model", spec.ModelKey(),
		"tenant_id", GetTenantID(ctx),
		"enabled", spec.Enabled,
	)

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":      spec.ID,
		"version": spec.Version,
		"enabled": spec.Enabled,
		"message": "model stored; POST /model/reload to activate",
	})
}

// ReloadModel activates the most recently updated enabled model in the
// repository. The active model is kept when the stored one fails to build.
func (h *Handler) ReloadModel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, CodeUnavailable, "repository not available")
		return
	}

	specs, err := h.repo.ListModelSpecs(ctx, domain.GlobalTenantID)
	if err != nil {
		slog.Error("failed to list model specs", "error", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to load models from database")
		return
	}

	compiled, err := h.engine.ReloadModels(specs)
	metrics.ModelReload(err)
	if errors.Is(err, rules.ErrNoModel) {
		writeError(w, http.StatusNotFound, CodeNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidModel, err.Error())
		return
	}

	if h.bus != nil {
		payload, _ := json.Marshal(domain.ModelReloadedEvent{ModelID: compiled.Spec.ID, Version: compiled.Spec.Version})
		if err := h.bus.Publish(ctx, domain.GlobalTenantID, domain.TopicModelReloaded, payload); err != nil {
			slog.Warn("failed to publish model reload", "error", err)
		}
	}

	slog.Info("model reloaded", "model", compiled.Key(), "tenant_id", tenantID)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "model reloaded successfully",
		"id":      compiled.Spec.ID,
		"version": compiled.Spec.Version,
		"rules":   len(compiled.Spec.Rules),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	model := ""
	if current, err := h.engine.Current(); err == nil {
		model = current.Key()
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
		"model":   model,
	})
}

// Ready reports whether a model is loaded and estimates can be served.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if _, err := h.engine.Current(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"ready": "false",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// estimateStatus maps an estimate to its HTTP status code.
func estimateStatus(est *domain.Estimate) int {
	switch est.Error {
	case "":
		return http.StatusOK
	case domain.ErrCodeMissingInput, domain.ErrCodeInvalidInput, domain.ErrCodeNoInference:
		return http.StatusUnprocessableEntity
	}
	if est.Message == rules.ErrNoModel.Error() {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}
