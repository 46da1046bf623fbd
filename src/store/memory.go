package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"pecan-telemetry/src/telemetry"
)

// MemoryStore is an in-memory implementation of SampleStore.
// Useful for testing and for recording without a database.
type MemoryStore struct {
	mu      sync.RWMutex
	samples map[string][]telemetry.Sample // messageID -> samples in save order
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		samples: make(map[string][]telemetry.Sample),
	}
}

// SaveSamples archives a batch of samples.
func (s *MemoryStore) SaveSamples(ctx context.Context, samples []telemetry.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sample := range samples {
		s.samples[sample.MessageID] = append(s.samples[sample.MessageID], sample)
	}
	return nil
}

// GetSamples returns samples for a message with timestamp >= since, oldest first.
func (s *MemoryStore) GetSamples(ctx context.Context, messageID string, since int64, limit int) ([]telemetry.Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all, exists := s.samples[messageID]
	if !exists {
		return nil, fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}

	var result []telemetry.Sample
	for _, sample := range all {
		if sample.Timestamp >= since {
			result = append(result, sample)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp < result[j].Timestamp
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// MessageIDs lists every message with archived samples, sorted.
func (s *MemoryStore) MessageIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.samples))
	for id := range s.samples {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close closes the store (no-op for memory store).
func (s *MemoryStore) Close() error {
	return nil
}
