package bus

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/goleak"

	"github.com/opensource-finance/fuzzyprice/internal/domain"
)

// inbox subscribes and returns the channel every delivery lands on.
func inbox(t *testing.T, b domain.EventBus, tenantID, topic string) (<-chan *domain.Message, domain.Subscription) {
	t.Helper()
	ch := make(chan *domain.Message, 100)
	sub, err := b.Subscribe(context.Background(), tenantID, topic, func(_ context.Context, msg *domain.Message) error {
		ch <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe %s/%s: %v", tenantID, topic, err)
	}
	return ch, sub
}

func receive(t *testing.T, ch <-chan *domain.Message) *domain.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

func expectSilence(t *testing.T, ch <-chan *domain.Message) {
	t.Helper()
	select {
	case msg := <-ch:
		t.Errorf("unexpected delivery %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestChannelBus(t *testing.T) {
	b := NewChannelBus(100)
	defer b.Close()
	ctx := context.Background()

	t.Run("Delivery", func(t *testing.T) {
		ch, _ := inbox(t, b, "tenant-001", domain.TopicEstimateRequested)

		if err := b.Publish(ctx, "tenant-001", domain.TopicEstimateRequested, []byte(`{"id":"req-001"}`)); err != nil {
			t.Fatalf("publish failed: %v", err)
		}

		msg := receive(t, ch)
		if string(msg.Payload) != `{"id":"req-001"}` {
			t.Errorf("unexpected payload %q", msg.Payload)
		}
		if msg.TenantID != "tenant-001" || msg.Topic != domain.TopicEstimateRequested {
			t.Errorf("unexpected envelope %+v", msg)
		}
		if msg.ID == "" || msg.Timestamp == 0 {
			t.Error("expected message ID and timestamp")
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		mine, _ := inbox(t, b, "tenant-001", domain.TopicEstimateCompleted)
		theirs, _ := inbox(t, b, "tenant-002", domain.TopicEstimateCompleted)

		_ = b.Publish(ctx, "tenant-001", domain.TopicEstimateCompleted, []byte("done"))

		receive(t, mine)
		expectSilence(t, theirs)
	})

	t.Run("TopicIsolation", func(t *testing.T) {
		failed, _ := inbox(t, b, "tenant-001", domain.TopicEstimateFailed)

		_ = b.Publish(ctx, "tenant-001", domain.TopicModelReloaded, []byte("{}"))
		expectSilence(t, failed)
	})

	t.Run("FanOut", func(t *testing.T) {
		first, _ := inbox(t, b, "tenant-003", domain.TopicModelReloaded)
		second, _ := inbox(t, b, "tenant-003", domain.TopicModelReloaded)

		_ = b.Publish(ctx, "tenant-003", domain.TopicModelReloaded, []byte(`{"modelId":"land-pricing"}`))

		receive(t, first)
		receive(t, second)
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		ch, sub := inbox(t, b, "tenant-004", domain.TopicEstimateRequested)

		_ = b.Publish(ctx, "tenant-004", domain.TopicEstimateRequested, []byte("1"))
		receive(t, ch)

		if err := sub.Unsubscribe(); err != nil {
			t.Fatalf("unsubscribe failed: %v", err)
		}
		_ = b.Publish(ctx, "tenant-004", domain.TopicEstimateRequested, []byte("2"))
		expectSilence(t, ch)

		if n := b.subscribers("tenant-004", domain.TopicEstimateRequested); n != 0 {
			t.Errorf("expected no subscriptions left, got %d", n)
		}
		if err := sub.Unsubscribe(); err != nil {
			t.Errorf("second unsubscribe failed: %v", err)
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		if err := b.Publish(ctx, "", domain.TopicEstimateRequested, nil); err == nil {
			t.Error("expected publish error for empty tenantID")
		}
		if _, err := b.Subscribe(ctx, "", domain.TopicEstimateRequested, nil); err == nil {
			t.Error("expected subscribe error for empty tenantID")
		}
	})

	t.Run("HandlerErrorKeepsSubscription", func(t *testing.T) {
		calls := make(chan struct{}, 2)
		_, err := b.Subscribe(ctx, "tenant-005", domain.TopicEstimateRequested, func(context.Context, *domain.Message) error {
			calls <- struct{}{}
			return errors.New("boom")
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		for i := 0; i < 2; i++ {
			_ = b.Publish(ctx, "tenant-005", domain.TopicEstimateRequested, []byte("x"))
			select {
			case <-calls:
			case <-time.After(time.Second):
				t.Fatalf("delivery %d not handled", i+1)
			}
		}
	})

	t.Run("SubscriptionTopic", func(t *testing.T) {
		_, sub := inbox(t, b, "tenant-001", "custom.topic")
		if sub.Topic() != "custom.topic" {
			t.Errorf("expected topic 'custom.topic', got %q", sub.Topic())
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := b.Ping(ctx); err != nil {
			t.Errorf("ping failed: %v", err)
		}
	})
}

func TestChannelBusSubscriptionContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewChannelBus(10)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	exited := make(chan struct{})
	_, err := b.Subscribe(ctx, "tenant-001", domain.TopicEstimateRequested, func(ctx context.Context, _ *domain.Message) error {
		<-ctx.Done()
		close(exited)
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	_ = b.Publish(context.Background(), "tenant-001", domain.TopicEstimateRequested, []byte("x"))
	cancel()

	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("handler did not observe cancellation")
	}
}

func TestChannelBusClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewChannelBus(100)
	ctx := context.Background()
	inbox(t, b, "tenant-001", domain.TopicEstimateRequested)

	if err := b.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("second close failed: %v", err)
	}

	if err := b.Publish(ctx, "tenant-001", domain.TopicEstimateRequested, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from publish, got %v", err)
	}
	if _, err := b.Subscribe(ctx, "tenant-001", domain.TopicEstimateRequested, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from subscribe, got %v", err)
	}
	if err := b.Ping(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from ping, got %v", err)
	}
}

func TestChannelBusBurst(t *testing.T) {
	b := NewChannelBus(1000)
	defer b.Close()

	const n = 200
	ch := make(chan *domain.Message, n)
	_, _ = b.Subscribe(context.Background(), "tenant-load", domain.TopicEstimateRequested, func(_ context.Context, msg *domain.Message) error {
		ch <- msg
		return nil
	})

	for i := 0; i < n; i++ {
		if err := b.Publish(context.Background(), "tenant-load", domain.TopicEstimateRequested, []byte("q")); err != nil {
			t.Fatalf("publish %d failed: %v", i, err)
		}
	}
	for i := 0; i < n; i++ {
		receive(t, ch)
	}
	if b.Dropped() != 0 {
		t.Errorf("expected no drops, got %d", b.Dropped())
	}
}

func TestChannelBusDropsWhenFull(t *testing.T) {
	b := NewChannelBus(1)
	defer b.Close()

	ctx := context.Background()
	release := make(chan struct{})
	started := make(chan struct{}, 1)

	_, _ = b.Subscribe(ctx, "tenant-001", domain.TopicEstimateRequested, func(ctx context.Context, _ *domain.Message) error {
		select {
		case started <- struct{}{}:
		default:
		}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})

	_ = b.Publish(ctx, "tenant-001", domain.TopicEstimateRequested, []byte("1"))
	<-started

	// The handler holds message 1, message 2 waits in the queue, 3 is dropped.
	_ = b.Publish(ctx, "tenant-001", domain.TopicEstimateRequested, []byte("2"))
	_ = b.Publish(ctx, "tenant-001", domain.TopicEstimateRequested, []byte("3"))

	if b.Dropped() != 1 {
		t.Errorf("expected 1 dropped message, got %d", b.Dropped())
	}
	close(release)
}

func TestPublishCarriesTraceID(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))

	ch, _ := inbox(t, b, "tenant-001", domain.TopicEstimateRequested)
	if err := b.Publish(ctx, "tenant-001", domain.TopicEstimateRequested, []byte("x")); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if got := receive(t, ch).Metadata[domain.MetaTraceID]; got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("expected trace id in metadata, got %q", got)
	}

	_ = b.Publish(context.Background(), "tenant-001", domain.TopicEstimateRequested, []byte("y"))
	if got, ok := receive(t, ch).Metadata[domain.MetaTraceID]; ok {
		t.Errorf("expected no trace id without a span, got %q", got)
	}
}

func TestNew(t *testing.T) {
	b, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 50})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer b.Close()

	cb, ok := b.(*ChannelBus)
	if !ok {
		t.Fatalf("expected *ChannelBus, got %T", b)
	}
	if cb.queueLen != 50 {
		t.Errorf("expected queue length 50, got %d", cb.queueLen)
	}
	if NewChannelBus(0).queueLen != DefaultChannelBuffer {
		t.Error("expected default queue length for zero size")
	}

	if _, err := New(domain.EventBusConfig{Type: "kafka"}); err == nil {
		t.Error("expected error for unsupported type")
	}
}

func TestMakeSubject(t *testing.T) {
	tests := []struct {
		tenant  string
		topic   string
		want    string
		wantErr bool
	}{
		{"tenant-001", domain.TopicEstimateRequested, "fuzzyprice.tenant-001.estimate.requested", false},
		{"tenant-001", domain.TopicModelReloaded, "fuzzyprice.tenant-001.model.reloaded", false},
		{"tenant-001", "custom.topic", "fuzzyprice.tenant-001.custom.topic", false},
		{"", domain.TopicEstimateRequested, "", true},
		{domain.GlobalTenantID, domain.TopicModelReloaded, "fuzzyprice._global.model.reloaded", false},
		{"*.x", domain.TopicEstimateRequested, "", true},
		{"a.b", domain.TopicEstimateRequested, "", true},
		{"tenant-001", "fuzzyprice.>", "", true},
		{"tenant-001", "fuzzyprice.", "", true},
	}

	for _, tt := range tests {
		got, err := makeSubject(tt.tenant, tt.topic)
		if (err != nil) != tt.wantErr {
			t.Errorf("makeSubject(%q, %q) error = %v, wantErr %v", tt.tenant, tt.topic, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("makeSubject(%q, %q) = %q, want %q", tt.tenant, tt.topic, got, tt.want)
		}
	}
}

func TestNATSQueueGroup(t *testing.T) {
	b := &NATSBus{queueGroup: "fuzzyprice-workers"}
	if got := b.queueFor(domain.TopicEstimateRequested); got != "fuzzyprice-workers" {
		t.Errorf("expected requests shared by the queue group, got %q", got)
	}
	if got := b.queueFor(domain.TopicModelReloaded); got != "" {
		t.Errorf("expected reloads delivered to every replica, got queue %q", got)
	}
}

func TestNATSEnvelope(t *testing.T) {
	msg := &domain.Message{
		ID:        "msg-001",
		TenantID:  "tenant-001",
		Topic:     domain.TopicEstimateRequested,
		Payload:   []byte(`{"id":"req-001"}`),
		Metadata:  map[string]string{domain.MetaTraceID: "4bf92f3577b34da6a3ce929d0e0e4736"},
		Timestamp: 1750000000000000000,
	}

	m := toNATSMsg("fuzzyprice.tenant-001.estimate.requested", msg)
	if string(m.Data) != `{"id":"req-001"}` {
		t.Errorf("payload should travel as the body, got %q", m.Data)
	}
	if m.Header.Get(nats.MsgIdHdr) != "msg-001" {
		t.Errorf("expected message ID header, got %q", m.Header.Get(nats.MsgIdHdr))
	}

	got, err := fromNATSMsg(m)
	if err != nil {
		t.Fatalf("fromNATSMsg failed: %v", err)
	}
	if got.ID != msg.ID || got.TenantID != msg.TenantID || got.Topic != msg.Topic || got.Timestamp != msg.Timestamp {
		t.Errorf("envelope mismatch: %+v", got)
	}
	if got.Metadata[domain.MetaTraceID] != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("expected trace ID to survive, got %v", got.Metadata)
	}

	untraced := toNATSMsg("s", &domain.Message{ID: "x", TenantID: "t", Topic: "a", Timestamp: 1})
	if v := untraced.Header.Get(headerTrace); v != "" {
		t.Errorf("expected no trace header, got %q", v)
	}

	foreign := nats.NewMsg("fuzzyprice.tenant-001.estimate.requested")
	foreign.Data = []byte("raw")
	if _, err := fromNATSMsg(foreign); err == nil {
		t.Error("expected error for message without envelope headers")
	}
}

// TestNATSBus runs against a live server named by FUZZYPRICE_TEST_NATS_URL.
func TestNATSBus(t *testing.T) {
	url := os.Getenv("FUZZYPRICE_TEST_NATS_URL")
	if url == "" {
		t.Skip("FUZZYPRICE_TEST_NATS_URL not set")
	}

	b, err := NewNATSBus(domain.EventBusConfig{NATSUrl: url, NATSMaxReconnects: 1, NATSReconnectWait: 1})
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer b.Close()

	ch, _ := inbox(t, b, "tenant-001", domain.TopicEstimateCompleted)
	if err := b.Ping(context.Background()); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
	if err := b.Publish(context.Background(), "tenant-001", domain.TopicEstimateCompleted, []byte("done")); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	msg := receive(t, ch)
	if string(msg.Payload) != "done" || msg.TenantID != "tenant-001" || msg.Topic != domain.TopicEstimateCompleted {
		t.Errorf("unexpected message %+v", msg)
	}
}
