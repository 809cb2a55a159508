package domain

import "context"

// EventBus moves estimate requests and results between the API and workers.
// Topics are scoped by tenant; a subscriber only sees its own tenant's traffic.
type EventBus interface {
	Publish(ctx context.Context, tenantID string, topic string, payload []byte) error

	// Subscribe runs handler for each message until the returned
	// Subscription is cancelled.
	Subscribe(ctx context.Context, tenantID string, topic string, handler MessageHandler) (Subscription, error)

	Ping(ctx context.Context) error
	Close() error
}

// MessageHandler processes one delivered message. A returned error is logged
// by the bus; the message is not redelivered.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message is the envelope around a published payload.
type Message struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"` // unix nanoseconds
}

// MetaTraceID is the metadata key holding the publisher's trace ID.
const MetaTraceID = "trace_id"

// Subscription is a live registration on the bus.
type Subscription interface {
	Unsubscribe() error
	Topic() string
}

// EventBusConfig selects the bus implementation: "channel" for in-process
// delivery or "nats" for delivery across replicas.
type EventBusConfig struct {
	Type string `json:"type" yaml:"type" validate:"oneof=channel nats"`

	// ChannelBufferSize is each in-process subscriber's queue length.
	ChannelBufferSize int `json:"channelBufferSize" yaml:"channelBufferSize"`

	NATSUrl           string `json:"natsUrl" yaml:"natsUrl"`
	NATSToken         string `json:"-" yaml:"natsToken"`
	NATSMaxReconnects int    `json:"natsMaxReconnects" yaml:"natsMaxReconnects"`
	NATSReconnectWait int    `json:"natsReconnectWait" yaml:"natsReconnectWait"` // seconds

	// NATSQueueGroup shares each message among one member of the group.
	// Empty means every subscriber receives every message.
	NATSQueueGroup string `json:"natsQueueGroup" yaml:"natsQueueGroup"`
}

// Topics of the async estimate pipeline.
const (
	TopicEstimateRequested = "fuzzyprice.estimate.requested"
	TopicEstimateCompleted = "fuzzyprice.estimate.completed"
	TopicEstimateFailed    = "fuzzyprice.estimate.failed"
	TopicModelReloaded     = "fuzzyprice.model.reloaded"
)

// GlobalSubjectToken stands for GlobalTenantID in broker subjects, which
// cannot carry "*". No request tenant may use it.
const GlobalSubjectToken = "_global"

// ModelReloadedEvent is the payload of TopicModelReloaded. It is published
// under GlobalTenantID since models are shared by all tenants.
type ModelReloadedEvent struct {
	ModelID string `json:"modelId"`
	Version string `json:"version"`
}
