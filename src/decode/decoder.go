package decode

import (
	"math"
	"strconv"
	"strings"

	"pecan-telemetry/src/contracts"
	"pecan-telemetry/src/telemetry"
)

// UnknownMessageName is used for frames whose ID is not in the catalog.
const UnknownMessageName = "Unknown"

// Decoder maps CAN frames to telemetry messages.
type Decoder struct {
	byID map[uint32]MessageDef
}

// NewDecoder indexes a catalog for decoding.
func NewDecoder(c *Catalog) *Decoder {
	d := &Decoder{byID: make(map[uint32]MessageDef, len(c.Messages))}
	for _, m := range c.Messages {
		d.byID[m.ID] = m
	}
	return d
}

// Decode converts one frame. The message ID is the decimal CAN ID. Frames
// with unknown IDs decode to an "Unknown" message with no signals; the
// second return value reports whether the ID was known. Signals that extend
// past the end of a short frame are left out.
func (d *Decoder) Decode(frame contracts.CANFrame) (telemetry.Message, bool) {
	msg := telemetry.Message{
		MessageID:       strconv.FormatUint(uint64(frame.CANID), 10),
		MessageName:     UnknownMessageName,
		Signals:         map[string]telemetry.Signal{},
		RawBytesDisplay: FormatBytes(frame.Data),
		Timestamp:       frame.Time,
	}

	def, ok := d.byID[frame.CANID]
	if !ok {
		return msg, false
	}
	msg.MessageName = def.Name

	for _, s := range def.Signals {
		raw, ok := extract(frame.Data, s)
		if !ok {
			continue
		}
		msg.Signals[s.Name] = telemetry.Signal{
			Reading:  s.physical(raw),
			Unit:     s.Unit,
			RawValue: strconv.FormatInt(raw, 10),
		}
	}
	return msg, true
}

// FormatBytes renders a payload as space separated uppercase hex, e.g. "0A FF 00".
func FormatBytes(data []byte) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(data) * 3)
	for i, v := range data {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteByte(hex[v>>4])
		b.WriteByte(hex[v&0x0F])
	}
	return b.String()
}

// Encode writes value into data using the signal layout, clamping to the
// representable raw range. It is the inverse of decoding and is used by the
// simulator.
func Encode(data []byte, s SignalDef, value float64) {
	if s.StartByte+s.Length > len(data) {
		return
	}
	raw := math.Round((value - s.Offset) / s.scale())

	bits := uint(s.Length * 8)
	var lo, hi float64
	if s.Signed {
		lo = -math.Ldexp(1, int(bits)-1)
		hi = math.Ldexp(1, int(bits)-1) - 1
	} else {
		lo = 0
		hi = math.Ldexp(1, int(bits)) - 1
	}
	raw = math.Max(lo, math.Min(hi, raw))

	var u uint64
	if s.Signed {
		u = uint64(int64(raw))
	} else {
		u = uint64(raw)
	}
	for i := 0; i < s.Length; i++ {
		b := byte(u >> (8 * uint(i)))
		if s.BigEndian {
			data[s.StartByte+s.Length-1-i] = b
		} else {
			data[s.StartByte+i] = b
		}
	}
}

func extract(data []byte, s SignalDef) (int64, bool) {
	if s.StartByte+s.Length > len(data) {
		return 0, false
	}
	var u uint64
	for i := 0; i < s.Length; i++ {
		idx := s.StartByte + i
		if !s.BigEndian {
			idx = s.StartByte + s.Length - 1 - i
		}
		u = u<<8 | uint64(data[idx])
	}
	if s.Signed {
		shift := uint(64 - s.Length*8)
		return int64(u<<shift) >> shift, true
	}
	return int64(u), true
}

func (s SignalDef) physical(raw int64) float64 {
	return float64(raw)*s.scale() + s.Offset
}

func (s SignalDef) scale() float64 {
	if s.Scale == 0 {
		return 1
	}
	return s.Scale
}
