package broker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestInMemoryBroker_PublishSubscribe(t *testing.T) {
	broker := NewInMemoryBroker()
	defer broker.Close()

	ctx := context.Background()
	topic := "can_messages"
	key := "192"
	value := []byte(`[{"time":1,"canId":192,"data":[1,2]}]`)

	msgChan, err := broker.Subscribe(ctx, topic, "test-group")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := broker.Publish(ctx, topic, key, value); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case msg := <-msgChan:
		if msg.Topic != topic {
			t.Errorf("Expected topic %s, got %s", topic, msg.Topic)
		}
		if msg.Key != key {
			t.Errorf("Expected key %s, got %s", key, msg.Key)
		}
		if string(msg.Value) != string(value) {
			t.Errorf("Expected value %s, got %s", string(value), string(msg.Value))
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for message")
	}
}

func TestInMemoryBroker_MultipleSubscribers(t *testing.T) {
	broker := NewInMemoryBroker()
	defer broker.Close()

	ctx := context.Background()
	topic := "can_messages"

	sub1, err := broker.Subscribe(ctx, topic, "group1")
	if err != nil {
		t.Fatalf("Subscribe 1 failed: %v", err)
	}

	sub2, err := broker.Subscribe(ctx, topic, "group2")
	if err != nil {
		t.Fatalf("Subscribe 2 failed: %v", err)
	}

	value := []byte("broadcast message")
	if err := broker.Publish(ctx, topic, "key", value); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	for i, sub := range []<-chan Message{sub1, sub2} {
		select {
		case msg := <-sub:
			if string(msg.Value) != string(value) {
				t.Errorf("Subscriber %d: expected value %s, got %s", i+1, string(value), string(msg.Value))
			}
		case <-time.After(1 * time.Second):
			t.Fatalf("Subscriber %d: timeout waiting for message", i+1)
		}
	}
}

func TestInMemoryBroker_TopicIsolation(t *testing.T) {
	broker := NewInMemoryBroker()
	defer broker.Close()

	ctx := context.Background()
	stats, err := broker.Subscribe(ctx, "system_stats", "g")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := broker.Publish(ctx, "can_messages", "", []byte("frames")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case msg := <-stats:
		t.Errorf("system_stats subscriber received %q", msg.Value)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestInMemoryBroker_OffsetsIncreasePerTopic(t *testing.T) {
	broker := NewInMemoryBroker()
	defer broker.Close()

	ctx := context.Background()
	ch, err := broker.Subscribe(ctx, "t", "g")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := broker.Publish(ctx, "t", "", []byte("x")); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}
	for want := int64(0); want < 3; want++ {
		msg := <-ch
		if msg.Offset != want {
			t.Errorf("Offset = %d, want %d", msg.Offset, want)
		}
	}
}

func TestInMemoryBroker_ContextCancelClosesChannel(t *testing.T) {
	broker := NewInMemoryBroker()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := broker.Subscribe(ctx, "t", "g")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel, got a message")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}

	// Publishing after the subscriber left must not panic.
	if err := broker.Publish(context.Background(), "t", "", []byte("x")); err != nil {
		t.Errorf("Publish after unsubscribe failed: %v", err)
	}
}

func TestInMemoryBroker_SlowSubscriberDropped(t *testing.T) {
	broker := NewInMemoryBroker()
	defer broker.Close()

	ctx := context.Background()
	if _, err := broker.Subscribe(ctx, "t", "g"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	for i := 0; i < subscriberBuffer+2; i++ {
		if err := broker.Publish(ctx, "t", "", []byte("x")); err != nil {
			t.Fatalf("Publish %d failed: %v", i, err)
		}
	}
	if got := broker.Dropped(); got != 2 {
		t.Errorf("Dropped() = %d, want 2", got)
	}
}

func TestInMemoryBroker_ClosedBroker(t *testing.T) {
	broker := NewInMemoryBroker()
	ctx := context.Background()
	ch, err := broker.Subscribe(ctx, "test", "group")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	broker.Close()

	if _, ok := <-ch; ok {
		t.Error("Expected subscriber channel to be closed")
	}

	err = broker.Publish(ctx, "test", "key", []byte("value"))
	if !errors.Is(err, ErrClosed) {
		t.Errorf("Publish error = %v, want ErrClosed", err)
	}

	_, err = broker.Subscribe(ctx, "test", "group")
	if !errors.Is(err, ErrClosed) {
		t.Errorf("Subscribe error = %v, want ErrClosed", err)
	}

	if err := broker.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestNewRedpandaBroker_RequiresAddress(t *testing.T) {
	if _, err := NewRedpandaBroker(nil, nil); err == nil {
		t.Error("expected error for empty broker list")
	}
}

func TestNewRedpandaBroker_Options(t *testing.T) {
	tests := []struct {
		name string
		opts []RedpandaOption
		want redpandaConfig
	}{
		{
			name: "defaults",
			want: redpandaConfig{clientID: "pecan", compressed: true},
		},
		{
			name: "all options",
			opts: []RedpandaOption{WithClientID("pecan-dashboard"), WithFromStart(), WithoutCompression()},
			want: redpandaConfig{clientID: "pecan-dashboard", fromStart: true},
		},
		{
			name: "empty client id keeps default",
			opts: []RedpandaOption{WithClientID("")},
			want: redpandaConfig{clientID: "pecan", compressed: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clients connect lazily, so no cluster is needed here.
			b, err := NewRedpandaBroker([]string{"127.0.0.1:1"}, nil, tt.opts...)
			if err != nil {
				t.Fatalf("NewRedpandaBroker() error = %v", err)
			}
			defer b.Close()

			if b.cfg != tt.want {
				t.Errorf("config = %+v, want %+v", b.cfg, tt.want)
			}
		})
	}
}

func TestRedpandaBroker_ClosedRejectsPublish(t *testing.T) {
	b, err := NewRedpandaBroker([]string{"127.0.0.1:1"}, nil)
	if err != nil {
		t.Fatalf("NewRedpandaBroker() error = %v", err)
	}
	b.Close()

	if err := b.Publish(context.Background(), "can_messages", "", []byte("x")); err != ErrClosed {
		t.Errorf("Publish after Close = %v, want ErrClosed", err)
	}
	if _, err := b.Subscribe(context.Background(), "can_messages", "g"); err != ErrClosed {
		t.Errorf("Subscribe after Close = %v, want ErrClosed", err)
	}
}
