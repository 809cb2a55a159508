package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/opensource-finance/fuzzyprice/internal/domain"
)

// ErrInvalidSubject is returned for tenant IDs or topics that would break
// NATS subject matching.
var ErrInvalidSubject = errors.New("invalid subject")

const subjectRoot = "fuzzyprice"

// Envelope headers. The payload travels as the raw message body.
const (
	headerTenant    = "Fuzzyprice-Tenant"
	headerTopic     = "Fuzzyprice-Topic"
	headerTrace     = "Fuzzyprice-Trace"
	headerPublished = "Fuzzyprice-Published"
)

// NATSBus carries estimate events between API replicas and workers.
type NATSBus struct {
	conn       *nats.Conn
	queueGroup string
}

type natsSubscription struct {
	topic string
	sub   *nats.Subscription
}

// NewNATSBus connects to cfg.NATSUrl. The client keeps retrying in the
// background; the call fails if no connection is up after
// NATSMaxReconnects * NATSReconnectWait.
func NewNATSBus(cfg domain.EventBusConfig) (*NATSBus, error) {
	url := cfg.NATSUrl
	if url == "" {
		url = nats.DefaultURL
	}
	attempts := cfg.NATSMaxReconnects
	if attempts <= 0 {
		attempts = 10
	}
	wait := time.Duration(cfg.NATSReconnectWait) * time.Second
	if wait <= 0 {
		wait = 5 * time.Second
	}

	up := make(chan struct{}, 1)
	opts := natsOptions(cfg.NATSToken, attempts, wait)
	opts = append(opts,
		nats.RetryOnFailedConnect(true),
		nats.ConnectHandler(func(nc *nats.Conn) {
			select {
			case up <- struct{}{}:
			default:
			}
		}),
	)

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	if !conn.IsConnected() {
		select {
		case <-up:
		case <-time.After(time.Duration(attempts) * wait):
			conn.Close()
			return nil, fmt.Errorf("nats at %s unreachable after %d attempts", url, attempts)
		}
	}

	slog.Info("NATS connected",
		"url", conn.ConnectedUrl(),
		"server_id", conn.ConnectedServerId(),
		"queue_group", cfg.NATSQueueGroup,
	)
	return &NATSBus{conn: conn, queueGroup: cfg.NATSQueueGroup}, nil
}

func natsOptions(token string, attempts int, wait time.Duration) []nats.Option {
	opts := []nats.Option{
		nats.Name("fuzzyprice"),
		nats.MaxReconnects(attempts),
		nats.ReconnectWait(wait),
		nats.ReconnectBufSize(8 << 20),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			slog.Warn("NATS disconnected", "error", err, "will_reconnect", !nc.IsClosed())
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			var subject string
			if sub != nil {
				subject = sub.Subject
			}
			slog.Error("NATS async error", "error", err, "subject", subject)
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}
	return opts
}

// Publish sends payload to the tenant's subject for topic.
func (b *NATSBus) Publish(ctx context.Context, tenantID string, topic string, payload []byte) error {
	subject, err := makeSubject(tenantID, topic)
	if err != nil {
		return err
	}
	return b.conn.PublishMsg(toNATSMsg(subject, newMessage(ctx, tenantID, topic, payload)))
}

// Subscribe registers handler for the tenant's topic. With a queue group
// configured each message goes to one member of the group, except on
// broadcast topics.
func (b *NATSBus) Subscribe(ctx context.Context, tenantID string, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	subject, err := makeSubject(tenantID, topic)
	if err != nil {
		return nil, err
	}

	cb := func(m *nats.Msg) {
		msg, err := fromNATSMsg(m)
		if err != nil {
			slog.Error("dropping malformed NATS message", "subject", m.Subject, "error", err)
			return
		}
		if err := handler(ctx, msg); err != nil {
			slog.Error("handler error", "subject", m.Subject, "message_id", msg.ID, "error", err)
		}
	}

	var sub *nats.Subscription
	if queue := b.queueFor(topic); queue != "" {
		sub, err = b.conn.QueueSubscribe(subject, queue, cb)
	} else {
		sub, err = b.conn.Subscribe(subject, cb)
	}
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return &natsSubscription{topic: topic, sub: sub}, nil
}

// broadcastTopics reach every replica regardless of the queue group.
var broadcastTopics = map[string]bool{
	domain.TopicModelReloaded: true,
}

func (b *NATSBus) queueFor(topic string) string {
	if broadcastTopics[topic] {
		return ""
	}
	return b.queueGroup
}

// Ping round-trips to the server.
func (b *NATSBus) Ping(ctx context.Context) error {
	if !b.conn.IsConnected() {
		return fmt.Errorf("NATS not connected (status %s)", b.conn.Status())
	}
	return b.conn.FlushWithContext(ctx)
}

// Close lets in-flight messages finish, then closes the connection.
func (b *NATSBus) Close() error {
	if b.conn.IsClosed() {
		return nil
	}
	return b.conn.Drain()
}

// Stats returns NATS connection statistics.
func (b *NATSBus) Stats() nats.Statistics {
	return b.conn.Stats()
}

// makeSubject maps a tenant topic to "fuzzyprice.<tenant>.<topic>", dropping
// the topic's own "fuzzyprice." prefix. GlobalTenantID becomes
// GlobalSubjectToken.
func makeSubject(tenantID, topic string) (string, error) {
	if tenantID == "" {
		return "", fmt.Errorf("tenantID is required")
	}
	if tenantID == domain.GlobalTenantID {
		tenantID = domain.GlobalSubjectToken
	}
	if strings.ContainsAny(tenantID, ".*> \t") {
		return "", fmt.Errorf("%w: tenant %q", ErrInvalidSubject, tenantID)
	}
	topic = strings.TrimPrefix(topic, subjectRoot+".")
	if topic == "" || strings.ContainsAny(topic, "*> \t") {
		return "", fmt.Errorf("%w: topic %q", ErrInvalidSubject, topic)
	}
	return subjectRoot + "." + tenantID + "." + topic, nil
}

func toNATSMsg(subject string, msg *domain.Message) *nats.Msg {
	m := nats.NewMsg(subject)
	m.Data = msg.Payload
	m.Header.Set(nats.MsgIdHdr, msg.ID)
	m.Header.Set(headerTenant, msg.TenantID)
	m.Header.Set(headerTopic, msg.Topic)
	m.Header.Set(headerPublished, strconv.FormatInt(msg.Timestamp, 10))
	if trace := msg.Metadata[domain.MetaTraceID]; trace != "" {
		m.Header.Set(headerTrace, trace)
	}
	return m
}

func fromNATSMsg(m *nats.Msg) (*domain.Message, error) {
	tenantID := m.Header.Get(headerTenant)
	if tenantID == "" {
		return nil, fmt.Errorf("missing %s header", headerTenant)
	}
	published, err := strconv.ParseInt(m.Header.Get(headerPublished), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad %s header: %w", headerPublished, err)
	}

	msg := &domain.Message{
		ID:        m.Header.Get(nats.MsgIdHdr),
		TenantID:  tenantID,
		Topic:     m.Header.Get(headerTopic),
		Payload:   m.Data,
		Metadata:  map[string]string{},
		Timestamp: published,
	}
	if trace := m.Header.Get(headerTrace); trace != "" {
		msg.Metadata[domain.MetaTraceID] = trace
	}
	return msg, nil
}

func (s *natsSubscription) Unsubscribe() error { return s.sub.Unsubscribe() }

func (s *natsSubscription) Topic() string { return s.topic }
