// Package broker moves frame batches and ingest stats between processes.
// InMemoryBroker serves a single process; RedpandaBroker spans the car-side
// relay and any number of base-station consumers.
package broker

import (
	"context"
	"errors"
)

// ErrClosed is returned by Publish and Subscribe after Close.
var ErrClosed = errors.New("broker is closed")

// Broker publishes to and subscribes on named topics.
type Broker interface {
	// Publish sends value to topic. Redpanda partitions by key; the
	// in-memory broker only passes it through.
	Publish(ctx context.Context, topic string, key string, value []byte) error

	// Subscribe delivers messages published to topic after the call. The
	// channel is closed when ctx ends or the broker closes. Subscribers in
	// the same Redpanda group share the stream; the in-memory broker gives
	// every subscriber every message.
	Subscribe(ctx context.Context, topic string, groupID string) (<-chan Message, error)

	Close() error
}

// Message is one delivered record.
type Message struct {
	Topic     string
	Key       string
	Value     []byte
	Offset    int64
	Partition int32
	// Timestamp in milliseconds since the Unix epoch.
	Timestamp int64
}
