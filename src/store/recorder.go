package store

import (
	"context"
	"sync/atomic"
	"time"

	"pecan-telemetry/src/logger"
	"pecan-telemetry/src/telemetry"
)

const (
	defaultQueueSize = 4096
	recordBatchSize  = 256
	recordFlushEvery = 500 * time.Millisecond
	// Time allowed to flush pending samples after the context ends.
	shutdownFlushTimeout = 2 * time.Second
)

// Recorder copies every newly ingested sample into a SampleStore.
//
// Observe is registered with the telemetry store's sample feed and only
// enqueues; Run
// writes batches in the background. When the queue is full new samples are
// dropped so that ingest never waits on the database.
type Recorder struct {
	sink   SampleStore
	logger logger.Logger
	queue  chan telemetry.Sample

	saved   atomic.Int64
	dropped atomic.Int64
}

// NewRecorder creates a recorder. queueSize <= 0 selects the default.
func NewRecorder(sink SampleStore, log logger.Logger, queueSize int) *Recorder {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Recorder{
		sink:   sink,
		logger: log,
		queue:  make(chan telemetry.Sample, queueSize),
	}
}

// Observe queues one ingested sample for archiving.
func (r *Recorder) Observe(sample telemetry.Sample) {
	select {
	case r.queue <- sample:
	default:
		r.dropped.Add(1)
	}
}

// Run writes queued samples until ctx ends, then flushes what is left.
func (r *Recorder) Run(ctx context.Context) error {
	r.logger.Info("[Recorder] Starting...")

	ticker := time.NewTicker(recordFlushEvery)
	defer ticker.Stop()

	batch := make([]telemetry.Sample, 0, recordBatchSize)
	for {
		select {
		case sample := <-r.queue:
			batch = append(batch, sample)
			if len(batch) >= recordBatchSize {
				batch = r.flush(ctx, batch)
			}

		case <-ticker.C:
			batch = r.flush(ctx, batch)

		case <-ctx.Done():
			r.drain(batch)
			r.logger.Info("[Recorder] Stopped (saved %d, dropped %d)", r.Saved(), r.Dropped())
			return ctx.Err()
		}
	}
}

// Saved reports how many samples were written.
func (r *Recorder) Saved() int64 { return r.saved.Load() }

// Dropped reports how many samples were discarded because the queue was full.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

func (r *Recorder) flush(ctx context.Context, batch []telemetry.Sample) []telemetry.Sample {
	if len(batch) == 0 {
		return batch
	}
	if err := r.sink.SaveSamples(ctx, batch); err != nil {
		r.logger.Error("[Recorder] Failed to save %d samples: %v", len(batch), err)
		r.dropped.Add(int64(len(batch)))
	} else {
		r.saved.Add(int64(len(batch)))
	}
	return batch[:0]
}

func (r *Recorder) drain(batch []telemetry.Sample) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
	defer cancel()

	for {
		select {
		case sample := <-r.queue:
			batch = append(batch, sample)
		default:
			r.flush(ctx, batch)
			return
		}
	}
}
