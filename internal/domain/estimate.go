package domain

import "time"

// Estimate represents the persisted outcome of one price query.
type Estimate struct {
	ID        string             `json:"id"`
	TenantID  string             `json:"tenantId"`
	ModelID   string             `json:"modelId"`
	Version   string             `json:"modelVersion"`
	Status    string             `json:"status"`
	Inputs    map[string]float64 `json:"inputs"`
	Timestamp time.Time          `json:"timestamp"`

	// Populated when Status is StatusEstimated.
	Price    float64 `json:"price"`
	Category string  `json:"category,omitempty"`

	// Populated when Status is not StatusEstimated.
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`

	Activations []Activation     `json:"activations,omitempty"`
	Comparison  *PriceComparison `json:"comparison,omitempty"`
	Metadata    EstimateMetadata `json:"metadata"`
}

// Activation is the firing strength of one rule for one estimate.
type Activation struct {
	RuleID   string  `json:"ruleId"`
	Category string  `json:"category"`
	Strength float64 `json:"strength"`
}

// PriceComparison relates the estimate to a known reference price.
type PriceComparison struct {
	ReferencePrice float64 `json:"referencePrice"`
	Difference     float64 `json:"difference"` // reference - estimate
	Percent        float64 `json:"percent"`    // difference / reference * 100
	Direction      string  `json:"direction"`  // "below" or "above" the reference
}

// EstimateMetadata contains processing information.
type EstimateMetadata struct {
	TraceID       string `json:"traceId"`
	InferenceMs   int64  `json:"inferenceMs"`
	TotalMs       int64  `json:"totalMs"`
	RulesFired    int    `json:"rulesFired"`
	Cached        bool   `json:"cached,omitempty"`
	EngineVersion string `json:"engineVersion"`
}

// Estimate statuses.
const (
	StatusEstimated   = "ESTIMATED"
	StatusNoInference = "NO_INFERENCE"
	StatusRejected    = "REJECTED"
)

// Error codes carried by estimates that are not StatusEstimated.
const (
	ErrCodeMissingInput = "missing_input"
	ErrCodeInvalidInput = "invalid_input"
	ErrCodeNoInference  = "no_inference"
	ErrCodeInternal     = "internal"
)

// Comparison directions.
const (
	DirectionBelow = "below"
	DirectionAbove = "above"
)

// EstimateRequest is a price query.
type EstimateRequest struct {
	Inputs         map[string]float64 `json:"inputs" validate:"required,min=1"`
	ReferencePrice float64            `json:"referencePrice,omitempty" validate:"gte=0"`
}

// AsyncEstimateRequest is the bus payload of TopicEstimateRequested.
type AsyncEstimateRequest struct {
	RequestID      string             `json:"requestId"`
	TenantID       string             `json:"tenantId"`
	TraceID        string             `json:"traceId"`
	Inputs         map[string]float64 `json:"inputs"`
	ReferencePrice float64            `json:"referencePrice,omitempty"`
	Timestamp      int64              `json:"timestamp"`
}

// OK reports whether the estimate carries a price.
func (e *Estimate) OK() bool {
	return e.Status == StatusEstimated
}
