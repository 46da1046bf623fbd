package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"pecan-telemetry/src/broker"
	"pecan-telemetry/src/config"
	"pecan-telemetry/src/contracts"
	"pecan-telemetry/src/logger"
)

func TestDetectMode(t *testing.T) {
	tests := []struct {
		name     string
		config   *config.Config
		expected Mode
	}{
		{
			name:     "Local mode - no brokers",
			config:   &config.Config{RedpandaBrokers: []string{}},
			expected: LocalMode,
		},
		{
			name:     "Local mode - nil brokers",
			config:   &config.Config{RedpandaBrokers: nil, PostgresDSN: "postgres://x"},
			expected: LocalMode,
		},
		{
			name:     "Distributed mode - with brokers",
			config:   &config.Config{RedpandaBrokers: []string{"localhost:19092"}},
			expected: DistributedMode,
		},
		{
			name:     "Distributed mode - multiple brokers",
			config:   &config.Config{RedpandaBrokers: []string{"broker1:9092", "broker2:9092"}},
			expected: DistributedMode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode := DetectMode(tt.config)
			if mode != tt.expected {
				t.Errorf("Expected mode %v, got %v", tt.expected, mode)
			}
		})
	}
}

func TestNew_RecordRequiresDSN(t *testing.T) {
	_, err := New(context.Background(), config.Default(), logger.NewSilentLogger(), Options{Record: true})
	if !errors.Is(err, ErrNoArchive) {
		t.Fatalf("New() error = %v, want ErrNoArchive", err)
	}
}

func TestNew_BadCatalog(t *testing.T) {
	cfg := config.Default()
	cfg.CatalogPath = "/nonexistent/catalog.yaml"
	if _, err := New(context.Background(), cfg, logger.NewSilentLogger(), Options{}); err == nil {
		t.Fatal("expected error for missing catalog")
	}
}

func TestPipeline_LocalModeGeneratesTelemetry(t *testing.T) {
	cfg := config.Default()
	cfg.RetentionWindow = 5 * time.Second

	p, err := New(context.Background(), cfg, logger.NewSilentLogger(), Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer p.Close()

	if p.Mode != LocalMode {
		t.Fatalf("Mode = %v, want local", p.Mode)
	}
	if got := p.Store.RetentionWindow(); got != 5*time.Second {
		t.Errorf("RetentionWindow() = %v, want 5s", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	deadline := time.Now().Add(3 * time.Second)
	for len(p.Store.AllLatest()) < len(p.Catalog.Messages) {
		if time.Now().After(deadline) {
			t.Fatalf("only %d of %d messages ingested", len(p.Store.AllLatest()), len(p.Catalog.Messages))
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	p.Wait()
}

func TestPipeline_ExternalBroker(t *testing.T) {
	brk := broker.NewInMemoryBroker()
	p, err := New(context.Background(), config.Default(), logger.NewSilentLogger(), Options{Broker: brk})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	time.Sleep(20 * time.Millisecond)

	data, _ := json.Marshal([]contracts.CANFrame{{Time: time.Now().UnixMilli(), CANID: 256, Data: make([]byte, 8)}})
	if err := brk.Publish(ctx, contracts.TopicCANMessages, "", data); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := p.Store.Latest("256"); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("frame from external broker was not ingested")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if ids := p.Store.MessageIDs(); len(ids) != 1 {
		t.Errorf("MessageIDs() = %v, want only the published frame (no generator)", ids)
	}
}
