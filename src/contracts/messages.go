// Package contracts defines the wire types exchanged over the broker between
// the car, the base station and the telemetry consumers.
package contracts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"pecan-telemetry/src/telemetry"
)

// Topic names.
const (
	// TopicCANMessages carries JSON arrays of CANFrame.
	TopicCANMessages = "can_messages"
	// TopicSystemStats carries SystemStats, one per reporting interval.
	TopicSystemStats = "system_stats"
)

// CANFrame is one raw CAN frame as relayed from the car.
// Published to: can_messages (batched, as a JSON array)
type CANFrame struct {
	// Capture time in milliseconds since the Unix epoch.
	Time int64 `json:"time"`
	// 11-bit standard or 29-bit extended arbitration ID.
	CANID uint32 `json:"canId"`
	// Up to 8 payload bytes.
	Data Payload `json:"data"`
}

// Payload is a CAN data field. It travels as a JSON array of integers
// ([1,2,3]) rather than the base64 string encoding/json uses for []byte.
type Payload []byte

// MarshalJSON encodes the payload as an array of integers.
func (p Payload) MarshalJSON() ([]byte, error) {
	ints := make([]int, len(p))
	for i, b := range p {
		ints[i] = int(b)
	}
	return json.Marshal(ints)
}

// UnmarshalJSON decodes an array of integers in the range 0-255.
func (p *Payload) UnmarshalJSON(data []byte) error {
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return fmt.Errorf("payload must be an array of bytes: %w", err)
	}
	out := make(Payload, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return fmt.Errorf("payload byte %d out of range: %d", i, v)
		}
		out[i] = byte(v)
	}
	*p = out
	return nil
}

// DecodedSignal is the JSON form of one decoded signal.
type DecodedSignal struct {
	Reading  float64 `json:"reading"`
	Unit     string  `json:"unit"`
	RawValue string  `json:"raw_value,omitempty"`
}

// DecodedMessage is the JSON form of one decoded message sample.
type DecodedMessage struct {
	MessageID   string                   `json:"message_id"`
	MessageName string                   `json:"message_name"`
	Timestamp   int64                    `json:"timestamp"`
	RawBytes    string                   `json:"raw_bytes"`
	Signals     map[string]DecodedSignal `json:"signals"`
}

// FromSample converts a stored sample to its JSON form. Non-finite readings
// have no JSON encoding and are left out.
func FromSample(s telemetry.Sample) DecodedMessage {
	signals := make(map[string]DecodedSignal, len(s.Signals))
	for name, sig := range s.Signals {
		if math.IsNaN(sig.Reading) || math.IsInf(sig.Reading, 0) {
			continue
		}
		signals[name] = DecodedSignal{Reading: sig.Reading, Unit: sig.Unit, RawValue: sig.RawValue}
	}
	return DecodedMessage{
		MessageID:   s.MessageID,
		MessageName: s.MessageName,
		Timestamp:   s.Timestamp,
		RawBytes:    s.RawBytesDisplay,
		Signals:     signals,
	}
}

// ToSample converts the JSON form back into a sample.
func (m DecodedMessage) ToSample() telemetry.Sample {
	signals := make(map[string]telemetry.Signal, len(m.Signals))
	for name, sig := range m.Signals {
		signals[name] = telemetry.Signal{Reading: sig.Reading, Unit: sig.Unit, RawValue: sig.RawValue}
	}
	return telemetry.Sample{
		Timestamp:       m.Timestamp,
		MessageID:       m.MessageID,
		MessageName:     m.MessageName,
		Signals:         signals,
		RawBytesDisplay: m.RawBytes,
	}
}

// SystemStats reports ingest counters for one interval.
// Published to: system_stats
type SystemStats struct {
	// Start of the interval in milliseconds since the Unix epoch.
	Time int64 `json:"time"`
	// Frames received in the interval.
	Received int `json:"received"`
	// Frames that matched a catalog entry.
	Decoded int `json:"decoded"`
	// Frames with an ID missing from the catalog.
	Unknown int `json:"unknown"`
	// Batches that could not be parsed.
	Malformed int `json:"malformed"`
	// Sequence gaps and resent batches. Brokered transports deliver in
	// order, so these stay 0; they keep older stats readers working.
	Missing   int `json:"missing"`
	Recovered int `json:"recovered"`
}

// IsStatsRecord reports whether data is a single JSON object without a
// canId key, i.e. a stats record rather than a frame batch.
func IsStatsRecord(data []byte) bool {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return false
	}
	_, hasID := fields["canId"]
	return !hasID
}
