// Package telemetry holds the in-memory telemetry store: a per-message rolling
// history of decoded CAN samples with point and range queries and change
// notification for dashboards.
package telemetry

// Signal is one decoded channel reading within a sample.
type Signal struct {
	// Reading is the scaled value, rounded to 3 decimals at ingest.
	Reading float64 `json:"reading"`
	// Unit of the reading (e.g. "V", "rpm"). May be empty.
	Unit string `json:"unit"`
	// RawValue is the undecoded integer as text, when the decoder provides it.
	RawValue string `json:"raw_value,omitempty"`
}

// Sample is one ingested message instance. Samples are never modified after
// ingest; the Signals map is shared between readers and must be treated as
// read-only.
type Sample struct {
	// Timestamp in milliseconds since the Unix epoch.
	Timestamp       int64             `json:"timestamp"`
	MessageID       string            `json:"message_id"`
	MessageName     string            `json:"message_name"`
	Signals         map[string]Signal `json:"signals"`
	RawBytesDisplay string            `json:"raw_bytes"`
}

// Message is the ingest input produced by a decoder.
type Message struct {
	MessageID       string
	MessageName     string
	Signals         map[string]Signal
	RawBytesDisplay string
	// Timestamp in milliseconds since the Unix epoch. Zero means absent, in
	// which case the ingest time is used.
	Timestamp int64
}

// Stats aggregates the store contents for operator dashboards.
type Stats struct {
	TotalMessages int `json:"total_messages"`
	TotalSamples  int `json:"total_samples"`
	// OldestSample and NewestSample are zero when no samples are retained.
	OldestSample     int64   `json:"oldest_sample,omitempty"`
	NewestSample     int64   `json:"newest_sample,omitempty"`
	MemoryEstimateMB float64 `json:"memory_estimate_mb"`
}

// MessageInfo summarizes one message buffer. Buffers outlive their samples, so
// a message keeps its name through data gaps.
type MessageInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	SampleCount int    `json:"sample_count"`
	// LastUpdated is the ingest time of the most recent sample, in ms.
	LastUpdated int64 `json:"last_updated"`
}
