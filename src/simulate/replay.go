package simulate

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"pecan-telemetry/src/contracts"
	"pecan-telemetry/src/logger"
)

// LoadCSV reads a recorded CAN log. Each row is
//
//	timestamp,CAN,canId,d1,d2,d3,d4,d5,d6,d7,d8
//
// Rows that are short, not tagged CAN, or hold non-numeric fields are
// skipped and counted.
func LoadCSV(r io.Reader) (frames []contracts.CANFrame, skipped int, err error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return frames, skipped, nil
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				skipped++
				continue
			}
			return nil, skipped, fmt.Errorf("failed to read CSV: %w", err)
		}

		frame, ok := parseRow(row)
		if !ok {
			skipped++
			continue
		}
		frames = append(frames, frame)
	}
}

// LoadCSVFile opens and parses a recorded log.
func LoadCSVFile(path string) ([]contracts.CANFrame, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open log: %w", err)
	}
	defer f.Close()
	return LoadCSV(f)
}

func parseRow(row []string) (contracts.CANFrame, bool) {
	if len(row) < 11 || strings.TrimSpace(row[1]) != "CAN" {
		return contracts.CANFrame{}, false
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(row[0]), 10, 64)
	if err != nil {
		return contracts.CANFrame{}, false
	}
	id, err := strconv.ParseUint(strings.TrimSpace(row[2]), 10, 32)
	if err != nil {
		return contracts.CANFrame{}, false
	}
	data := make([]byte, 8)
	for i := range data {
		v, err := strconv.ParseUint(strings.TrimSpace(row[3+i]), 10, 8)
		if err != nil {
			return contracts.CANFrame{}, false
		}
		data[i] = byte(v)
	}
	return contracts.CANFrame{Time: ts, CANID: uint32(id), Data: data}, true
}

// ReplayConfig controls replay pacing.
type ReplayConfig struct {
	BatchSize int
	Interval  time.Duration
	Topic     string
	// Loop wraps around to the start of the log instead of stopping.
	Loop bool
}

// DefaultReplayConfig sends batches of 100 frames at 5 Hz, looping.
func DefaultReplayConfig() ReplayConfig {
	return ReplayConfig{
		BatchSize: 100,
		Interval:  200 * time.Millisecond,
		Topic:     contracts.TopicCANMessages,
		Loop:      true,
	}
}

// Replayer publishes a recorded log in fixed-size batches. Recorded
// timestamps are sent unchanged; consumers decide what to do with stale ones.
type Replayer struct {
	frames    []contracts.CANFrame
	cfg       ReplayConfig
	publisher Publisher
	logger    logger.Logger
	index     int
}

// NewReplayer creates a replayer over frames.
func NewReplayer(frames []contracts.CANFrame, pub Publisher, cfg ReplayConfig, log logger.Logger) *Replayer {
	def := DefaultReplayConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Topic == "" {
		cfg.Topic = def.Topic
	}
	return &Replayer{frames: frames, cfg: cfg, publisher: pub, logger: log}
}

// NextBatch returns the next batch. When looping, a short tail is topped up
// from the start of the log. It returns nil once a non-looping replay is done.
func (r *Replayer) NextBatch() []contracts.CANFrame {
	n := len(r.frames)
	if n == 0 || (!r.cfg.Loop && r.index >= n) {
		return nil
	}

	end := r.index + r.cfg.BatchSize
	if end > n {
		end = n
	}
	batch := append([]contracts.CANFrame(nil), r.frames[r.index:end]...)

	if !r.cfg.Loop {
		r.index = end
		return batch
	}
	for len(batch) < r.cfg.BatchSize && len(batch) < n {
		need := r.cfg.BatchSize - len(batch)
		if need > n {
			need = n
		}
		batch = append(batch, r.frames[:need]...)
	}
	r.index = (r.index + r.cfg.BatchSize) % n
	return batch
}

// Run publishes one batch per interval until the log ends (when not
// looping) or ctx is cancelled.
func (r *Replayer) Run(ctx context.Context) error {
	if len(r.frames) == 0 {
		return fmt.Errorf("no frames to replay")
	}

	r.logger.Info("[Replayer] Replaying %d frames in batches of %d every %v", len(r.frames), r.cfg.BatchSize, r.cfg.Interval)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	sent := 0
	for {
		batch := r.NextBatch()
		if batch == nil {
			r.logger.Info("[Replayer] Finished after %d frames", sent)
			return nil
		}

		data, err := json.Marshal(batch)
		if err != nil {
			return fmt.Errorf("failed to marshal batch: %w", err)
		}
		if err := r.publisher.Publish(ctx, r.cfg.Topic, "", data); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Error("[Replayer] Failed to publish batch: %v", err)
		} else {
			sent += len(batch)
			r.logger.Debug("[Replayer] Sent %d frames", len(batch))
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
