package telemetry

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidConfiguration is returned when a retention window is not a
// positive, finite duration of at least one millisecond.
var ErrInvalidConfiguration = errors.New("invalid configuration")

const (
	// DefaultRetentionWindow is the history kept per message when none is configured.
	DefaultRetentionWindow = 60 * time.Second

	// Timestamps older than this relative to ingest time are replaced with
	// the ingest time. Replayed logs and badly synced car clocks land here.
	staleAfter = time.Hour

	// Rough per-sample footprint used by Stats.
	assumedBytesPerSample = 500
)

// maxRetentionMillis keeps the conversion to time.Duration from overflowing.
const maxRetentionMillis = math.MaxInt64 / int64(time.Millisecond)

// ParseRetentionSeconds converts a user-supplied window in seconds into a
// retention window. Zero, negative, non-finite and sub-millisecond values are
// rejected with ErrInvalidConfiguration.
func ParseRetentionSeconds(seconds float64) (time.Duration, error) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return 0, fmt.Errorf("%w: retention window must be finite, got %v", ErrInvalidConfiguration, seconds)
	}
	if seconds <= 0 {
		return 0, fmt.Errorf("%w: retention window must be positive, got %v", ErrInvalidConfiguration, seconds)
	}
	ms := math.Round(seconds * 1000)
	if ms > float64(maxRetentionMillis) {
		return 0, fmt.Errorf("%w: retention window too large: %v seconds", ErrInvalidConfiguration, seconds)
	}
	if ms < 1 {
		return 0, fmt.Errorf("%w: retention window below 1ms: %v seconds", ErrInvalidConfiguration, seconds)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func validateRetention(window time.Duration) error {
	if window < time.Millisecond {
		return fmt.Errorf("%w: retention window must be at least 1ms, got %v", ErrInvalidConfiguration, window)
	}
	return nil
}

// roundReading rounds to 3 decimals. Values that cannot be scaled (NaN, Inf,
// or magnitudes that overflow) are returned unchanged.
func roundReading(v float64) float64 {
	scaled := v * 1000
	if math.IsNaN(scaled) || math.IsInf(scaled, 0) {
		return v
	}
	return math.Round(scaled) / 1000
}

func roundTo(v float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(v*p) / p
}
