package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"pecan-telemetry/src/contracts"
	"pecan-telemetry/src/logger"
)

const (
	defaultMinBackoff = 500 * time.Millisecond
	defaultMaxBackoff = 10 * time.Second
)

// Publisher is the subset of broker.Broker a Source needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, key string, value []byte) error
}

// Source dials a remote WebSocket feed and republishes every frame batch it
// receives onto a broker topic. Stats records sharing the feed go to a
// separate topic. It reconnects until its context ends.
type Source struct {
	url        string
	topic      string
	statsTopic string
	publisher  Publisher
	logger     logger.Logger
	dialer     *websocket.Dialer
	minBackoff time.Duration
	maxBackoff time.Duration
}

// SourceOption configures a Source.
type SourceOption func(*Source)

// WithSourceTopic sets the topic frames are published to.
func WithSourceTopic(topic string) SourceOption {
	return func(s *Source) {
		if topic != "" {
			s.topic = topic
		}
	}
}

// WithStatsTopic sets the topic stats records are published to.
func WithStatsTopic(topic string) SourceOption {
	return func(s *Source) {
		if topic != "" {
			s.statsTopic = topic
		}
	}
}

// WithBackoff sets the reconnect delay bounds.
func WithBackoff(initial, limit time.Duration) SourceOption {
	return func(s *Source) {
		if initial > 0 && limit >= initial {
			s.minBackoff = initial
			s.maxBackoff = limit
		}
	}
}

// NewSource creates a Source for url.
func NewSource(url string, pub Publisher, log logger.Logger, opts ...SourceOption) *Source {
	s := &Source{
		url:        url,
		topic:      contracts.TopicCANMessages,
		statsTopic: contracts.TopicSystemStats,
		publisher:  pub,
		logger:     log,
		dialer:     websocket.DefaultDialer,
		minBackoff: defaultMinBackoff,
		maxBackoff: defaultMaxBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run connects and relays until ctx is cancelled. It only returns ctx.Err().
func (s *Source) Run(ctx context.Context) error {
	backoff := s.minBackoff

	for {
		conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error("[Bridge] Dial %s failed: %v (retry in %v)", s.url, err, backoff)
		} else {
			s.logger.Info("[Bridge] Connected to %s", s.url)
			backoff = s.minBackoff
			err := s.relay(ctx, conn)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error("[Bridge] Connection to %s lost: %v (retry in %v)", s.url, err, backoff)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff, s.maxBackoff)
	}
}

// relay reads frames until the connection fails or ctx ends.
func (s *Source) relay(ctx context.Context, conn *websocket.Conn) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()
	defer conn.Close()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		topic := s.topic
		if contracts.IsStatsRecord(data) {
			topic = s.statsTopic
		}
		if err := s.publisher.Publish(ctx, topic, "", data); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			return fmt.Errorf("failed to publish frame: %w", err)
		}
	}
}

// nextBackoff doubles d, capped at limit.
func nextBackoff(d, limit time.Duration) time.Duration {
	d *= 2
	if d > limit {
		return limit
	}
	return d
}
