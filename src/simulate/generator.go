// Package simulate produces CAN frame batches without a car: a synthetic
// generator driven by the decode catalog and a replayer for recorded CSV logs.
package simulate

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"time"

	"pecan-telemetry/src/contracts"
	"pecan-telemetry/src/decode"
	"pecan-telemetry/src/logger"
)

// Publisher is the subset of broker.Broker the simulators need.
type Publisher interface {
	Publish(ctx context.Context, topic string, key string, value []byte) error
}

// GeneratorConfig controls frame rate and batching.
type GeneratorConfig struct {
	// Frames per second across all messages.
	Rate int
	// Flush when this many frames are pending.
	BatchSize int
	// Flush at least this often when any frame is pending.
	BatchTimeout time.Duration
	Topic        string
	// Seed for the noise source. Zero picks a time-based seed.
	Seed int64
}

// DefaultGeneratorConfig matches the car-side relay: 100 Hz, batches of 20
// or every 50ms.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Rate:         100,
		BatchSize:    20,
		BatchTimeout: 50 * time.Millisecond,
		Topic:        contracts.TopicCANMessages,
	}
}

// Generator emits frames for every catalog message with slowly varying,
// in-range signal values.
type Generator struct {
	cfg       GeneratorConfig
	messages  []decode.MessageDef
	publisher Publisher
	logger    logger.Logger
	rng       *rand.Rand
	next      int
	start     time.Time
}

// NewGenerator creates a generator over the catalog's messages.
func NewGenerator(cat *decode.Catalog, pub Publisher, cfg GeneratorConfig, log logger.Logger) *Generator {
	def := DefaultGeneratorConfig()
	if cfg.Rate <= 0 {
		cfg.Rate = def.Rate
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = def.BatchTimeout
	}
	if cfg.Topic == "" {
		cfg.Topic = def.Topic
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{
		cfg:       cfg,
		messages:  cat.Messages,
		publisher: pub,
		logger:    log,
		rng:       rand.New(rand.NewSource(seed)),
		start:     time.Now(),
	}
}

// Run generates frames until ctx is cancelled. Publish failures are logged
// and the batch is dropped.
func (g *Generator) Run(ctx context.Context) error {
	if len(g.messages) == 0 {
		return fmt.Errorf("catalog has no messages to simulate")
	}

	g.logger.Info("[Generator] Publishing %d frames/s to '%s'", g.cfg.Rate, g.cfg.Topic)

	frameTicker := time.NewTicker(time.Second / time.Duration(g.cfg.Rate))
	defer frameTicker.Stop()
	flushTicker := time.NewTicker(g.cfg.BatchTimeout)
	defer flushTicker.Stop()

	batch := make([]contracts.CANFrame, 0, g.cfg.BatchSize)
	for {
		select {
		case now := <-frameTicker.C:
			batch = append(batch, g.Frame(now))
			if len(batch) >= g.cfg.BatchSize {
				g.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-flushTicker.C:
			if len(batch) > 0 {
				g.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Frame builds the next frame, cycling through the catalog's messages.
func (g *Generator) Frame(now time.Time) contracts.CANFrame {
	m := g.messages[g.next%len(g.messages)]
	g.next++

	data := make([]byte, 8)
	elapsed := now.Sub(g.start).Seconds()
	for i, s := range m.Signals {
		if s.Max <= s.Min {
			continue
		}
		mid := (s.Max + s.Min) / 2
		amp := (s.Max - s.Min) / 2
		period := 4 + float64(i)*1.5
		v := mid + 0.8*amp*math.Sin(2*math.Pi*elapsed/period+float64(m.ID%7))
		v += 0.05 * amp * (g.rng.Float64()*2 - 1)
		decode.Encode(data, s, math.Max(s.Min, math.Min(s.Max, v)))
	}
	if len(m.Signals) == 0 {
		g.rng.Read(data)
	}

	return contracts.CANFrame{Time: now.UnixMilli(), CANID: m.ID, Data: data}
}

func (g *Generator) flush(ctx context.Context, batch []contracts.CANFrame) {
	data, err := json.Marshal(batch)
	if err != nil {
		g.logger.Error("[Generator] Failed to marshal batch: %v", err)
		return
	}
	if err := g.publisher.Publish(ctx, g.cfg.Topic, "", data); err != nil && ctx.Err() == nil {
		g.logger.Error("[Generator] Failed to publish batch of %d: %v", len(batch), err)
	}
}
