// Package ingest provides the Ingest Agent, which feeds CAN frame batches
// from the broker through the decoder into the telemetry store.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pecan-telemetry/src/broker"
	"pecan-telemetry/src/contracts"
	"pecan-telemetry/src/logger"
	"pecan-telemetry/src/telemetry"
)

// DefaultGroupID is the consumer group used by ingest agents.
const DefaultGroupID = "pecan-ingest"

// FrameDecoder converts a raw frame into a telemetry message and reports
// whether the frame's ID was recognised.
type FrameDecoder interface {
	Decode(frame contracts.CANFrame) (telemetry.Message, bool)
}

// Sink receives decoded messages. *telemetry.Store satisfies it.
type Sink interface {
	Ingest(msg telemetry.Message)
}

// Agent consumes frame batches and ingests every frame.
type Agent struct {
	broker        broker.Broker
	decoder       FrameDecoder
	sink          Sink
	logger        logger.Logger
	topic         string
	groupID       string
	statsInterval time.Duration

	stats contracts.SystemStats
}

// Option configures an Agent.
type Option func(*Agent)

// WithTopic overrides the topic frames are read from.
func WithTopic(topic string) Option {
	return func(a *Agent) {
		if topic != "" {
			a.topic = topic
		}
	}
}

// WithGroupID overrides the consumer group.
func WithGroupID(groupID string) Option {
	return func(a *Agent) {
		if groupID != "" {
			a.groupID = groupID
		}
	}
}

// WithStatsInterval sets how often SystemStats are published. Zero disables
// stats publishing.
func WithStatsInterval(d time.Duration) Option {
	return func(a *Agent) {
		a.statsInterval = d
	}
}

// NewAgent creates a new ingest agent.
func NewAgent(brk broker.Broker, dec FrameDecoder, sink Sink, log logger.Logger, opts ...Option) *Agent {
	a := &Agent{
		broker:        brk,
		decoder:       dec,
		sink:          sink,
		logger:        log,
		topic:         contracts.TopicCANMessages,
		groupID:       DefaultGroupID,
		statsInterval: time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the agent's main loop. It returns nil when the broker closes
// the subscription and ctx.Err() when the context is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("[IngestAgent] Starting...")

	msgChan, err := a.broker.Subscribe(ctx, a.topic, a.groupID)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", a.topic, err)
	}

	a.logger.Info("[IngestAgent] Listening for frames on '%s' topic...", a.topic)

	var tick <-chan time.Time
	if a.statsInterval > 0 {
		ticker := time.NewTicker(a.statsInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	a.resetStats(time.Now())

	for {
		select {
		case msg, ok := <-msgChan:
			if !ok {
				a.logger.Info("[IngestAgent] Message channel closed, shutting down")
				return nil
			}

			if err := a.processBatch(msg); err != nil {
				a.stats.Malformed++
				a.logger.Error("[IngestAgent] Error processing batch at offset %d: %v", msg.Offset, err)
			}

		case now := <-tick:
			a.publishStats(ctx, now)

		case <-ctx.Done():
			a.logger.Info("[IngestAgent] Context cancelled, shutting down")
			return ctx.Err()
		}
	}
}

// processBatch decodes a JSON array of frames and ingests each one. A single
// frame object is accepted too.
func (a *Agent) processBatch(msg broker.Message) error {
	frames, err := ParseFrames(msg.Value)
	if err != nil {
		return err
	}

	for _, frame := range frames {
		decoded, known := a.decoder.Decode(frame)
		a.stats.Received++
		if known {
			a.stats.Decoded++
		} else {
			a.stats.Unknown++
		}
		a.sink.Ingest(decoded)
	}

	a.logger.Debug("[IngestAgent] Ingested %d frames", len(frames))
	return nil
}

// ParseFrames decodes a frame batch: a JSON array of frames or one frame object.
func ParseFrames(data []byte) ([]contracts.CANFrame, error) {
	var frames []contracts.CANFrame
	if err := json.Unmarshal(data, &frames); err == nil {
		return frames, nil
	}

	if contracts.IsStatsRecord(data) {
		return nil, errors.New("object is not a frame: missing canId")
	}
	var frame contracts.CANFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("failed to unmarshal frames: %w", err)
	}
	return []contracts.CANFrame{frame}, nil
}

// publishStats sends the counters for the interval that just ended and
// starts a new one.
func (a *Agent) publishStats(ctx context.Context, now time.Time) {
	data, err := json.Marshal(a.stats)
	if err != nil {
		a.logger.Error("[IngestAgent] Failed to marshal stats: %v", err)
		return
	}
	if err := a.broker.Publish(ctx, contracts.TopicSystemStats, "", data); err != nil {
		a.logger.Error("[IngestAgent] Failed to publish stats: %v", err)
	}
	a.resetStats(now)
}

func (a *Agent) resetStats(now time.Time) {
	a.stats = contracts.SystemStats{Time: now.UnixMilli()}
}
