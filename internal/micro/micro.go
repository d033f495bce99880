// Package micro implements the Micro-Analyzer (§4.9): per-corner timing,
// speed, and input deltas against a reference lap, time-loss estimation,
// and pattern classification.
package micro

import (
	"math"
	"sort"
	"time"

	"github.com/psybedev/coachtrace/internal/model"
)

// Analyzer computes a MicroAnalysis for one corner occurrence.
type Analyzer struct {
	now func() time.Time
}

func New() *Analyzer {
	return &Analyzer{now: time.Now}
}

// Analyze computes deltas for one traversal of a corner segment.
// samples must be the driver's samples within [seg.StartFrac,
// seg.EndFrac) in order; ref is the comparator for this segment (may be
// zero-valued if no reference exists, in which case deltas are all
// reported relative to zero).
func (a *Analyzer) Analyze(cornerID string, seg model.TrackSegment, samples []model.TelemetrySample, ref model.SegmentReference) model.MicroAnalysis {
	if len(samples) == 0 {
		return model.MicroAnalysis{CornerID: cornerID, Timestamp: a.now()}
	}

	brakeIdx := firstIndexWhere(samples, func(s model.TelemetrySample) bool { return s.Brake >= 0.05 })
	apexIdx := minSpeedIndex(samples)
	throttleIdx := -1
	if apexIdx >= 0 {
		throttleIdx = firstIndexFrom(samples, apexIdx, func(s model.TelemetrySample) bool { return s.Throttle >= 0.5 })
	}

	brakeTimingDelta := pointDelta(samples, brakeIdx, ref.BrakePointS)
	throttleTimingDelta := pointDelta(samples, throttleIdx, ref.ThrottlePointS)

	entrySpeed := samples[0].SpeedKmh
	exitSpeed := samples[len(samples)-1].SpeedKmh
	apexSpeed := entrySpeed
	if apexIdx >= 0 {
		apexSpeed = samples[apexIdx].SpeedKmh
	}

	entryDelta := entrySpeed - ref.EntrySpeedKmh
	apexDelta := apexSpeed - ref.ApexSpeedKmh
	exitDelta := exitSpeed - ref.ExitSpeedKmh

	peakBrake, peakThrottle, peakSteer := peaks(samples)
	peakBrakeDelta := peakBrake // reference peak inputs are not modeled in SegmentReference; compare to 0 baseline
	peakThrottleDelta := peakThrottle
	peakSteerDeltaDeg := (peakSteer - ref.SteeringPeakRad) * 180 / math.Pi

	timeLoss := 0.1*math.Abs(brakeTimingDelta) + 0.1*math.Abs(throttleTimingDelta) +
		0.01*math.Abs(entryDelta) + 0.02*math.Abs(apexDelta) + 0.01*math.Abs(exitDelta)

	patterns, confidence := classifyPatterns(seg, samples, apexIdx, peakSteer)

	priority := priorityFor(timeLoss, patterns, entryDelta, exitDelta)

	return model.MicroAnalysis{
		CornerID:             cornerID,
		BrakeTimingDeltaS:    brakeTimingDelta,
		ThrottleTimingDeltaS: throttleTimingDelta,
		EntrySpeedDeltaKmh:   entryDelta,
		ApexSpeedDeltaKmh:    apexDelta,
		ExitSpeedDeltaKmh:    exitDelta,
		PeakBrakeDeltaPct:    peakBrakeDelta * 100,
		PeakThrottleDeltaPct: peakThrottleDelta * 100,
		PeakSteeringDeltaDeg: peakSteerDeltaDeg,
		TotalTimeLossS:       timeLoss,
		TimeLossBreakdown: map[string]float64{
			"brake_timing":    0.1 * math.Abs(brakeTimingDelta),
			"throttle_timing": 0.1 * math.Abs(throttleTimingDelta),
			"entry_speed":     0.01 * math.Abs(entryDelta),
			"apex_speed":      0.02 * math.Abs(apexDelta),
			"exit_speed":      0.01 * math.Abs(exitDelta),
		},
		Patterns:   patterns,
		Confidence: confidence,
		Priority:   priority,
		Timestamp:  a.now(),
	}
}

func firstIndexWhere(samples []model.TelemetrySample, pred func(model.TelemetrySample) bool) int {
	for i, s := range samples {
		if pred(s) {
			return i
		}
	}
	return -1
}

func firstIndexFrom(samples []model.TelemetrySample, from int, pred func(model.TelemetrySample) bool) int {
	for i := from; i < len(samples); i++ {
		if pred(samples[i]) {
			return i
		}
	}
	return -1
}

func minSpeedIndex(samples []model.TelemetrySample) int {
	idx := 0
	for i, s := range samples {
		if s.SpeedKmh < samples[idx].SpeedKmh {
			idx = i
		}
	}
	return idx
}

// pointDelta compares the driver's timestamp at idx (relative to the
// segment start) to the reference point, signed so positive = late.
func pointDelta(samples []model.TelemetrySample, idx int, refPointS float64) float64 {
	if idx < 0 {
		return 0
	}
	driverT := samples[idx].Timestamp - samples[0].Timestamp
	return driverT - refPointS
}

func peaks(samples []model.TelemetrySample) (brake, throttle, steer float64) {
	for _, s := range samples {
		if s.Brake > brake {
			brake = s.Brake
		}
		if s.Throttle > throttle {
			throttle = s.Throttle
		}
		if math.Abs(s.SteeringRad) > steer {
			steer = math.Abs(s.SteeringRad)
		}
	}
	return
}

// classifyPatterns applies the §4.9 threshold rules independently; more
// than one pattern may be emitted.
func classifyPatterns(seg model.TrackSegment, samples []model.TelemetrySample, apexIdx int, peakSteer float64) ([]model.PatternTag, map[model.PatternTag]float64) {
	var patterns []model.PatternTag
	confidence := make(map[model.PatternTag]float64)

	apexFrac := 0.5
	if apexIdx >= 0 && len(samples) > 1 {
		apexFrac = float64(apexIdx) / float64(len(samples)-1)
	}
	if apexFrac > 0.55 {
		patterns = append(patterns, model.PatternLateApex)
		confidence[model.PatternLateApex] = minConf((apexFrac-0.55)/0.45, 1)
	} else if apexFrac < 0.45 {
		patterns = append(patterns, model.PatternEarlyApex)
		confidence[model.PatternEarlyApex] = minConf((0.45-apexFrac)/0.45, 1)
	}

	median := medianLateralOverSteering(samples)
	for _, s := range samples {
		speed := s.SpeedKmh
		if speed <= 0 {
			continue
		}
		yawProxy := math.Abs(s.LatAccelMS2) / (speed * speed)
		if yawProxy > 0.002 && s.Throttle < 0.10 {
			patterns = appendOnce(patterns, model.PatternOffThrottleOversteer)
			confidence[model.PatternOffThrottleOversteer] = 0.6
		}
		if math.Abs(s.SteeringRad) > 0.9*peakSteer && peakSteer > 0 {
			ratio := math.Abs(s.LatAccelMS2) / math.Max(math.Abs(s.SteeringRad), 1e-6)
			if ratio < 0.5*median {
				patterns = appendOnce(patterns, model.PatternUndersteer)
				confidence[model.PatternUndersteer] = 0.55
			}
		}
	}

	trailBrakeDuration := 0.0
	for i := 1; i < len(samples); i++ {
		s := samples[i]
		if s.Brake > 0.10 && math.Abs(s.SteeringRad) > 0.20*peakSteer {
			trailBrakeDuration += s.Timestamp - samples[i-1].Timestamp
		}
	}
	if trailBrakeDuration >= 0.3 {
		patterns = appendOnce(patterns, model.PatternTrailBraking)
		confidence[model.PatternTrailBraking] = 0.7
	}

	for i, s := range samples {
		frac := 0.5
		if len(samples) > 1 {
			frac = float64(i) / float64(len(samples)-1)
		}
		if s.Throttle > 0.5 && frac < 0.55 {
			patterns = appendOnce(patterns, model.PatternEarlyThrottle)
			confidence[model.PatternEarlyThrottle] = 0.5
		}
		if s.Throttle < 0.3 && frac > 0.65 {
			patterns = appendOnce(patterns, model.PatternLateThrottle)
			confidence[model.PatternLateThrottle] = 0.5
		}
	}

	if inputStdDev(samples) > 0.25 {
		patterns = appendOnce(patterns, model.PatternInconsistentInputs)
		confidence[model.PatternInconsistentInputs] = 0.5
	}

	return patterns, confidence
}

func medianLateralOverSteering(samples []model.TelemetrySample) float64 {
	var ratios []float64
	for _, s := range samples {
		if math.Abs(s.SteeringRad) > 1e-3 {
			ratios = append(ratios, math.Abs(s.LatAccelMS2)/math.Abs(s.SteeringRad))
		}
	}
	if len(ratios) == 0 {
		return 1
	}
	sort.Float64s(ratios)
	n := len(ratios)
	if n%2 == 1 {
		return ratios[n/2]
	}
	return (ratios[n/2-1] + ratios[n/2]) / 2
}

func inputStdDev(samples []model.TelemetrySample) float64 {
	n := float64(len(samples))
	if n == 0 {
		return 0
	}
	var meanT, meanB float64
	for _, s := range samples {
		meanT += s.Throttle
		meanB += s.Brake
	}
	meanT /= n
	meanB /= n
	var varSum float64
	for _, s := range samples {
		dt := s.Throttle - meanT
		db := s.Brake - meanB
		varSum += dt*dt + db*db
	}
	return math.Sqrt(varSum / n)
}

func appendOnce(patterns []model.PatternTag, p model.PatternTag) []model.PatternTag {
	for _, existing := range patterns {
		if existing == p {
			return patterns
		}
	}
	return append(patterns, p)
}

func minConf(v, max float64) float64 {
	if v > max {
		return max
	}
	if v < 0 {
		return 0
	}
	return v
}

// priorityFor applies §4.9's priority thresholds: critical on large loss
// or a safety pattern with a large speed delta; else high/medium/low by
// total time loss.
func priorityFor(timeLoss float64, patterns []model.PatternTag, entryDelta, exitDelta float64) model.Priority {
	hasSafetyPattern := false
	for _, p := range patterns {
		if p == model.PatternUndersteer || p == model.PatternOffThrottleOversteer {
			hasSafetyPattern = true
		}
	}
	largeSpeedDelta := math.Abs(entryDelta) > 10 || math.Abs(exitDelta) > 10

	switch {
	case timeLoss >= 0.4 || (hasSafetyPattern && largeSpeedDelta):
		return model.PriorityCritical
	case timeLoss >= 0.2:
		return model.PriorityHigh
	case timeLoss >= 0.1:
		return model.PriorityMedium
	default:
		return model.PriorityLow
	}
}
