package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/opensource-finance/fuzzyprice/internal/domain"
)

// ErrClosed is returned by operations on a closed bus.
var ErrClosed = errors.New("bus is closed")

// DefaultChannelBuffer is the per-subscriber queue length used when none is
// configured.
const DefaultChannelBuffer = 1000

type route struct {
	tenantID string
	topic    string
}

// ChannelBus delivers messages in process. Each subscriber owns a bounded
// queue drained by its own goroutine; a full queue drops the message.
type ChannelBus struct {
	queueLen int

	mu     sync.RWMutex
	routes map[route]map[*channelSubscription]struct{}
	closed bool

	handlers sync.WaitGroup
	dropped  atomic.Int64
}

type channelSubscription struct {
	bus   *ChannelBus
	route route
	queue chan *domain.Message
	stop  context.CancelFunc
	once  sync.Once
}

// NewChannelBus returns an in-process bus whose subscribers queue up to
// queueLen messages each.
func NewChannelBus(queueLen int) *ChannelBus {
	if queueLen <= 0 {
		queueLen = DefaultChannelBuffer
	}
	return &ChannelBus{
		queueLen: queueLen,
		routes:   make(map[route]map[*channelSubscription]struct{}),
	}
}

// Publish queues the message for every subscriber of the tenant's topic.
func (b *ChannelBus) Publish(ctx context.Context, tenantID string, topic string, payload []byte) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}
	msg := newMessage(ctx, tenantID, topic, payload)

	// Close takes the write lock, so no queue is abandoned mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	for sub := range b.routes[route{tenantID, topic}] {
		select {
		case sub.queue <- msg:
		default:
			b.dropped.Add(1)
			slog.Warn("subscriber queue full, message dropped",
				"tenant_id", tenantID,
				"topic", topic,
				"message_id", msg.ID,
			)
		}
	}
	return nil
}

// Subscribe starts a goroutine running handler for each message on the
// tenant's topic. It stops when the subscription, ctx or the bus is closed.
func (b *ChannelBus) Subscribe(ctx context.Context, tenantID string, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	runCtx, stop := context.WithCancel(ctx)
	sub := &channelSubscription{
		bus:   b,
		route: route{tenantID, topic},
		queue: make(chan *domain.Message, b.queueLen),
		stop:  stop,
	}

	set := b.routes[sub.route]
	if set == nil {
		set = make(map[*channelSubscription]struct{})
		b.routes[sub.route] = set
	}
	set[sub] = struct{}{}

	b.handlers.Add(1)
	go sub.run(runCtx, handler)
	return sub, nil
}

func (s *channelSubscription) run(ctx context.Context, handler domain.MessageHandler) {
	defer s.bus.handlers.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.queue:
			if err := handler(ctx, msg); err != nil {
				slog.Error("handler error",
					"topic", s.route.topic,
					"message_id", msg.ID,
					"error", err,
				)
			}
		}
	}
}

// Ping fails once the bus is closed.
func (b *ChannelBus) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}

// Close stops every subscription and waits for running handlers to return.
func (b *ChannelBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, set := range b.routes {
		for sub := range set {
			sub.stop()
		}
	}
	clear(b.routes)
	b.mu.Unlock()

	b.handlers.Wait()
	return nil
}

// Dropped counts deliveries skipped because a subscriber's queue was full.
func (b *ChannelBus) Dropped() int64 {
	return b.dropped.Load()
}

// subscribers reports how many subscriptions a route has.
func (b *ChannelBus) subscribers(tenantID, topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.routes[route{tenantID, topic}])
}

func (s *channelSubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.stop()
		b := s.bus
		b.mu.Lock()
		defer b.mu.Unlock()
		if set := b.routes[s.route]; set != nil {
			delete(set, s)
			if len(set) == 0 {
				delete(b.routes, s.route)
			}
		}
	})
	return nil
}

func (s *channelSubscription) Topic() string { return s.route.topic }
