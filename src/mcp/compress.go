package mcp

import (
	"math"

	"pecan-telemetry/src/telemetry"
)

// DefaultMaxPoints bounds how many samples get_history returns. A minute of
// 100Hz data is 6000 samples, far more than an LLM needs to see a trend.
const DefaultMaxPoints = 200

// downsample keeps at most maxPoints samples, evenly strided. The first and
// last samples are always kept. maxPoints <= 0 disables downsampling.
func downsample(samples []telemetry.Sample, maxPoints int) []telemetry.Sample {
	if maxPoints <= 0 || len(samples) <= maxPoints {
		return samples
	}
	if maxPoints == 1 {
		return samples[len(samples)-1:]
	}

	out := make([]telemetry.Sample, 0, maxPoints)
	step := float64(len(samples)-1) / float64(maxPoints-1)
	for i := 0; i < maxPoints; i++ {
		idx := int(math.Round(float64(i) * step))
		out = append(out, samples[idx])
	}
	return out
}

// summarize computes per-signal aggregates over every sample.
func summarize(samples []telemetry.Sample) map[string]SignalSummary {
	out := make(map[string]SignalSummary)
	sums := make(map[string]float64)

	for _, sample := range samples {
		for name, sig := range sample.Signals {
			if math.IsNaN(sig.Reading) || math.IsInf(sig.Reading, 0) {
				continue
			}
			s, seen := out[name]
			if !seen {
				s = SignalSummary{Min: sig.Reading, Max: sig.Reading}
			}
			s.Unit = sig.Unit
			s.Min = math.Min(s.Min, sig.Reading)
			s.Max = math.Max(s.Max, sig.Reading)
			s.Last = sig.Reading
			s.Count++
			sums[name] += sig.Reading
			out[name] = s
		}
	}

	for name, s := range out {
		s.Mean = math.Round(sums[name]/float64(s.Count)*1000) / 1000
		out[name] = s
	}
	return out
}
