// Package mcp exposes the live telemetry store to LLM clients over the
// Model Context Protocol.
package mcp

import (
	"pecan-telemetry/src/contracts"
	"pecan-telemetry/src/telemetry"
)

// MessageListResponse is returned by list_messages.
type MessageListResponse struct {
	RetentionSeconds float64                 `json:"retention_seconds"`
	Messages         []telemetry.MessageInfo `json:"messages"`
}

// HistoryResponse is returned by get_history. Samples may be downsampled;
// Summary always covers every retained sample in the window.
type HistoryResponse struct {
	MessageID     string                   `json:"message_id"`
	MessageName   string                   `json:"message_name"`
	WindowSeconds float64                  `json:"window_seconds,omitempty"`
	TotalSamples  int                      `json:"total_samples"`
	Returned      int                      `json:"returned"`
	Summary       map[string]SignalSummary `json:"summary"`
	Samples       []contracts.DecodedMessage `json:"samples"`
}

// SignalSummary aggregates one signal across a history.
type SignalSummary struct {
	Unit  string  `json:"unit"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	Last  float64 `json:"last"`
	Count int     `json:"count"`
}

// StatsResponse is returned by get_stats.
type StatsResponse struct {
	telemetry.Stats
	RetentionSeconds float64 `json:"retention_seconds"`
	MessageCount     int     `json:"message_count"`
}

// SignalResponse is returned by get_signal.
type SignalResponse struct {
	MessageID string  `json:"message_id"`
	Signal    string  `json:"signal"`
	Reading   float64 `json:"reading"`
	Unit      string  `json:"unit"`
	RawValue  string  `json:"raw_value,omitempty"`
	Timestamp int64   `json:"timestamp"`
}
