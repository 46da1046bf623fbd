// Package store archives telemetry samples beyond the in-memory retention
// window.
package store

import (
	"context"
	"errors"

	"pecan-telemetry/src/telemetry"
)

var (
	// ErrNotFound is returned when a message has no archived samples.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable is returned when the archive database cannot be reached.
	ErrUnavailable = errors.New("archive unavailable")
)

// SampleStore defines the interface for persisting samples.
type SampleStore interface {
	// SaveSamples archives a batch of samples.
	SaveSamples(ctx context.Context, samples []telemetry.Sample) error

	// GetSamples returns up to limit samples for a message with
	// timestamp >= since, oldest first. A non-positive limit means no limit.
	GetSamples(ctx context.Context, messageID string, since int64, limit int) ([]telemetry.Sample, error)

	// MessageIDs lists every message with archived samples.
	MessageIDs(ctx context.Context) ([]string, error)

	// Close closes the store connection
	Close() error
}
