package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"pecan-telemetry/src/logger"
)

const (
	defaultClientID = "pecan"
	// Frame batches from the car arrive every 50ms; a short linger lets a
	// burst of them share one produce request.
	defaultLinger  = 5 * time.Millisecond
	consumerBuffer = 100
)

// RedpandaOption configures a RedpandaBroker.
type RedpandaOption func(*redpandaConfig)

type redpandaConfig struct {
	clientID   string
	fromStart  bool
	compressed bool
}

// WithClientID sets the Kafka client id reported to the cluster.
func WithClientID(id string) RedpandaOption {
	return func(c *redpandaConfig) {
		if id != "" {
			c.clientID = id
		}
	}
}

// WithFromStart makes new consumer groups read a topic from its first
// retained record. The default starts at the end, since a live dashboard
// has no use for frames produced before it joined.
func WithFromStart() RedpandaOption {
	return func(c *redpandaConfig) {
		c.fromStart = true
	}
}

// WithoutCompression disables lz4 compression of produced batches.
func WithoutCompression() RedpandaOption {
	return func(c *redpandaConfig) {
		c.compressed = false
	}
}

// RedpandaBroker carries frame batches between the car-side relay and the
// base station over a Kafka-compatible cluster.
type RedpandaBroker struct {
	producer *kgo.Client
	seeds    []string
	cfg      redpandaConfig
	logger   logger.Logger

	mu        sync.RWMutex
	consumers map[consumerKey]*kgo.Client
	closed    bool
}

type consumerKey struct {
	topic string
	group string
}

// NewRedpandaBroker connects a producer to the given seed brokers, e.g.
// ["localhost:19092"]. Consumers are created per Subscribe.
func NewRedpandaBroker(seeds []string, log logger.Logger, opts ...RedpandaOption) (*RedpandaBroker, error) {
	if len(seeds) == 0 {
		return nil, errors.New("at least one broker address is required")
	}
	if log == nil {
		log = logger.NewSilentLogger()
	}

	cfg := redpandaConfig{clientID: defaultClientID, compressed: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	producerOpts := []kgo.Opt{
		kgo.SeedBrokers(seeds...),
		kgo.ClientID(cfg.clientID),
		kgo.AllowAutoTopicCreation(),
		kgo.ProducerLinger(defaultLinger),
	}
	if cfg.compressed {
		producerOpts = append(producerOpts, kgo.ProducerBatchCompression(kgo.Lz4Compression(), kgo.NoCompression()))
	}

	producer, err := kgo.NewClient(producerOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka client: %w", err)
	}

	return &RedpandaBroker{
		producer:  producer,
		seeds:     seeds,
		cfg:       cfg,
		logger:    log,
		consumers: make(map[consumerKey]*kgo.Client),
	}, nil
}

// Publish produces one record and waits for the cluster to acknowledge it.
func (b *RedpandaBroker) Publish(ctx context.Context, topic string, key string, value []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	record := &kgo.Record{Topic: topic, Value: value}
	if key != "" {
		record.Key = []byte(key)
	}
	if err := b.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to produce to %s: %w", topic, err)
	}
	return nil
}

// Subscribe joins groupID on topic. Each topic and group pair may be
// subscribed once per broker; the pair is released when ctx ends.
func (b *RedpandaBroker) Subscribe(ctx context.Context, topic string, groupID string) (<-chan Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	key := consumerKey{topic: topic, group: groupID}
	if _, exists := b.consumers[key]; exists {
		return nil, fmt.Errorf("consumer already exists for topic %s and group %s", topic, groupID)
	}

	start := kgo.NewOffset().AtEnd()
	if b.cfg.fromStart {
		start = kgo.NewOffset().AtStart()
	}
	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(b.seeds...),
		kgo.ClientID(b.cfg.clientID),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(start),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}
	b.consumers[key] = consumer

	out := make(chan Message, consumerBuffer)
	go b.consume(ctx, key, consumer, out)
	return out, nil
}

func (b *RedpandaBroker) consume(ctx context.Context, key consumerKey, consumer *kgo.Client, out chan<- Message) {
	defer close(out)
	defer b.release(key, consumer)

	for ctx.Err() == nil {
		fetches := consumer.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return
		}

		fetches.EachError(func(topic string, partition int32, err error) {
			if ctx.Err() == nil {
				b.logger.Error("[RedpandaBroker] Fetch error on %s[%d]: %v", topic, partition, err)
			}
		})

		iter := fetches.RecordIter()
		for !iter.Done() {
			select {
			case out <- toMessage(iter.Next()):
			case <-ctx.Done():
				return
			}
		}
	}
}

func toMessage(r *kgo.Record) Message {
	return Message{
		Topic:     r.Topic,
		Key:       string(r.Key),
		Value:     r.Value,
		Offset:    r.Offset,
		Partition: r.Partition,
		Timestamp: r.Timestamp.UnixMilli(),
	}
}

// release drops a consumer once its loop exits, unless Close already did.
func (b *RedpandaBroker) release(key consumerKey, consumer *kgo.Client) {
	b.mu.Lock()
	owned := b.consumers[key] == consumer
	if owned {
		delete(b.consumers, key)
	}
	b.mu.Unlock()
	if owned {
		consumer.Close()
	}
}

// Close shuts down the producer and every consumer. Safe to call twice.
func (b *RedpandaBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	for key, consumer := range b.consumers {
		consumer.Close()
		delete(b.consumers, key)
	}
	b.producer.Close()
	return nil
}
