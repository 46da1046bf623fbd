package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pecan-telemetry/src/logger"
	"pecan-telemetry/src/telemetry"
)

func sample(id string, ts int64) telemetry.Sample {
	return telemetry.Sample{
		Timestamp:   ts,
		MessageID:   id,
		MessageName: "Msg" + id,
		Signals:     map[string]telemetry.Signal{"v": {Reading: float64(ts), Unit: "V"}},
	}
}

func TestMemoryStore_SaveAndGet(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	if err := store.SaveSamples(ctx, []telemetry.Sample{
		sample("192", 30), sample("192", 10), sample("256", 5), sample("192", 20),
	}); err != nil {
		t.Fatalf("SaveSamples failed: %v", err)
	}

	got, err := store.GetSamples(ctx, "192", 15, 0)
	if err != nil {
		t.Fatalf("GetSamples failed: %v", err)
	}
	if len(got) != 2 || got[0].Timestamp != 20 || got[1].Timestamp != 30 {
		t.Errorf("GetSamples(192, 15) = %+v, want timestamps 20, 30", got)
	}

	limited, err := store.GetSamples(ctx, "192", 0, 1)
	if err != nil {
		t.Fatalf("GetSamples failed: %v", err)
	}
	if len(limited) != 1 || limited[0].Timestamp != 10 {
		t.Errorf("GetSamples(limit 1) = %+v, want oldest sample", limited)
	}

	ids, err := store.MessageIDs(ctx)
	if err != nil {
		t.Fatalf("MessageIDs failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != "192" || ids[1] != "256" {
		t.Errorf("MessageIDs() = %v, want [192 256]", ids)
	}
}

func TestMemoryStore_UnknownMessage(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.GetSamples(context.Background(), "missing", 0, 0)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSamples error = %v, want ErrNotFound", err)
	}
}

type failingStore struct {
	MemoryStore
}

func (f *failingStore) SaveSamples(ctx context.Context, samples []telemetry.Sample) error {
	return errors.New("database down")
}

func TestRecorder_RecordsIngestedSamples(t *testing.T) {
	ts := telemetry.New()
	archive := NewMemoryStore()
	rec := NewRecorder(archive, logger.NewSilentLogger(), 0)
	ts.SubscribeSamples(rec.Observe)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rec.Run(ctx) }()

	now := time.Now().UnixMilli()
	for i := int64(0); i < 5; i++ {
		ts.Ingest(telemetry.Message{MessageID: "512", MessageName: "BMS", Timestamp: now + i})
	}
	ts.Clear()
	cancel()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("recorder did not stop")
	}

	got, err := archive.GetSamples(context.Background(), "512", 0, 0)
	if err != nil {
		t.Fatalf("GetSamples failed: %v", err)
	}
	if len(got) != 5 {
		t.Errorf("archived %d samples, want 5", len(got))
	}
	if rec.Saved() != 5 || rec.Dropped() != 0 {
		t.Errorf("Saved() = %d, Dropped() = %d; want 5, 0", rec.Saved(), rec.Dropped())
	}
}

func TestRecorder_SkipsSamplesOutsideRetention(t *testing.T) {
	now := time.Now()
	ts := telemetry.New(telemetry.WithClock(func() time.Time { return now }))
	archive := NewMemoryStore()
	rec := NewRecorder(archive, logger.NewSilentLogger(), 0)
	ts.SubscribeSamples(rec.Observe)

	ingests := []struct {
		age      time.Duration
		archived bool
	}{
		{30 * time.Second, true},
		{5 * time.Minute, false},
		{0, true},
		{10 * time.Minute, false},
	}
	var want []int64
	for _, in := range ingests {
		stamp := now.Add(-in.age).UnixMilli()
		ts.Ingest(telemetry.Message{MessageID: "512", MessageName: "BMS", Timestamp: stamp})
		if in.archived {
			want = append(want, stamp)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rec.Run(ctx) }()
	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("recorder did not stop")
	}

	got, err := archive.GetSamples(context.Background(), "512", 0, 0)
	if err != nil {
		t.Fatalf("GetSamples failed: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("archived %d samples, want %d", len(got), len(want))
	}
	for i, s := range got {
		if s.Timestamp != want[i] {
			t.Errorf("sample %d timestamp = %d, want %d", i, s.Timestamp, want[i])
		}
	}
}

func TestRecorder_DropsWhenQueueFull(t *testing.T) {
	ts := telemetry.New()
	rec := NewRecorder(NewMemoryStore(), logger.NewSilentLogger(), 2)
	ts.SubscribeSamples(rec.Observe)

	for i := 0; i < 5; i++ {
		ts.Ingest(telemetry.Message{MessageID: "1"})
	}
	if got := rec.Dropped(); got != 3 {
		t.Errorf("Dropped() = %d, want 3", got)
	}
}

func TestRecorder_CountsFailedWritesAsDropped(t *testing.T) {
	ts := telemetry.New()
	rec := NewRecorder(&failingStore{}, logger.NewSilentLogger(), 0)
	ts.SubscribeSamples(rec.Observe)
	ts.Ingest(telemetry.Message{MessageID: "1"})

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		rec.Run(ctx)
	}()
	cancel()
	wg.Wait()

	if rec.Saved() != 0 || rec.Dropped() != 1 {
		t.Errorf("Saved() = %d, Dropped() = %d; want 0, 1", rec.Saved(), rec.Dropped())
	}
}
