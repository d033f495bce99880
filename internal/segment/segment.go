// Package segment implements the Segment Analyzer (§4.7): buckets lap
// samples by TrackSegment and computes per-segment metrics plus a small
// set of cooldown-gated qualitative insights, in the teacher's
// single-purpose detector-method style.
package segment

import (
	"fmt"
	"math"
	"time"

	"github.com/psybedev/coachtrace/internal/model"
)

// Insight is a qualitative, human-readable observation about one segment.
type Insight struct {
	SegmentID string
	Category  model.Category
	Text      string
}

// Analyzer computes SegmentMetrics and insights for a completed lap.
type Analyzer struct {
	segments []model.TrackSegment
	cooldown time.Duration
	lastSeen map[string]time.Time // category -> last emission time
	now      func() time.Time
}

func New(segments []model.TrackSegment, cooldown time.Duration) *Analyzer {
	if len(segments) == 0 {
		segments = []model.TrackSegment{degenerateSegment()}
	}
	return &Analyzer{
		segments: segments,
		cooldown: cooldown,
		lastSeen: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Segments returns the track segments this Analyzer was built with,
// for callers (the Micro-Analyzer) that need to iterate corners rather
// than the full segment set.
func (a *Analyzer) Segments() []model.TrackSegment { return a.segments }

// degenerateSegment is used when the Track Metadata Store has no
// metadata for the current track, per §4.6's fail-soft contract.
func degenerateSegment() model.TrackSegment {
	return model.TrackSegment{ID: "full_lap", Name: "Full Lap", StartFrac: 0, EndFrac: 1, Kind: model.SegmentStraight}
}

// Analyze buckets samples by segment and computes metrics + insights.
func (a *Analyzer) Analyze(samples []model.TelemetrySample) (map[string]model.SegmentMetrics, []Insight) {
	metrics := make(map[string]model.SegmentMetrics, len(a.segments))
	var insights []Insight

	for _, seg := range a.segments {
		bucket := samplesInSegment(samples, seg)
		if len(bucket) == 0 {
			continue
		}
		m := computeMetrics(bucket)
		metrics[seg.ID] = m
		insights = append(insights, a.qualitativeInsights(seg, m)...)
	}

	return metrics, insights
}

// CornerReferences computes a SegmentReference comparator for each
// corner segment present in samples, for a lap being promoted to
// personal/session best. Mirrors the Micro-Analyzer's own brake/apex/
// throttle point detection so a promoted lap's reference is directly
// comparable to what the Micro-Analyzer measures on later laps.
func (a *Analyzer) CornerReferences(samples []model.TelemetrySample) map[string]model.SegmentReference {
	out := make(map[string]model.SegmentReference)
	for _, seg := range a.segments {
		if seg.Kind != model.SegmentCorner {
			continue
		}
		bucket := samplesInSegment(samples, seg)
		if len(bucket) == 0 {
			continue
		}
		out[seg.ID] = cornerReference(bucket)
	}
	return out
}

func cornerReference(samples []model.TelemetrySample) model.SegmentReference {
	brakeIdx := -1
	for i, s := range samples {
		if s.Brake >= 0.05 {
			brakeIdx = i
			break
		}
	}
	apexIdx := 0
	for i, s := range samples {
		if s.SpeedKmh < samples[apexIdx].SpeedKmh {
			apexIdx = i
		}
	}
	throttleIdx := -1
	for i := apexIdx; i < len(samples); i++ {
		if samples[i].Throttle >= 0.5 {
			throttleIdx = i
			break
		}
	}

	var peakSteer float64
	for _, s := range samples {
		if math.Abs(s.SteeringRad) > peakSteer {
			peakSteer = math.Abs(s.SteeringRad)
		}
	}

	var brakePointS, throttlePointS float64
	if brakeIdx >= 0 {
		brakePointS = samples[brakeIdx].Timestamp - samples[0].Timestamp
	}
	if throttleIdx >= 0 {
		throttlePointS = samples[throttleIdx].Timestamp - samples[0].Timestamp
	}

	return model.SegmentReference{
		EntrySpeedKmh:   samples[0].SpeedKmh,
		ApexSpeedKmh:    samples[apexIdx].SpeedKmh,
		ExitSpeedKmh:    samples[len(samples)-1].SpeedKmh,
		BrakePointS:     brakePointS,
		ThrottlePointS:  throttlePointS,
		ReferenceGear:   samples[apexIdx].Gear,
		SteeringPeakRad: peakSteer,
		CornerTimeS:     samples[len(samples)-1].Timestamp - samples[0].Timestamp,
	}
}

func samplesInSegment(samples []model.TelemetrySample, seg model.TrackSegment) []model.TelemetrySample {
	var out []model.TelemetrySample
	for _, s := range samples {
		if s.LapDistPct >= seg.StartFrac && s.LapDistPct < seg.EndFrac {
			out = append(out, s)
		}
	}
	return out
}

func computeMetrics(bucket []model.TelemetrySample) model.SegmentMetrics {
	n := float64(len(bucket))
	var sumThrottle, sumBrake, sumSpeed, maxSteer float64
	for _, s := range bucket {
		sumThrottle += s.Throttle
		sumBrake += s.Brake
		sumSpeed += s.SpeedKmh
		if math.Abs(s.SteeringRad) > maxSteer {
			maxSteer = math.Abs(s.SteeringRad)
		}
	}
	meanSpeed := sumSpeed / n
	var speedVarSum float64
	for _, s := range bucket {
		d := s.SpeedKmh - meanSpeed
		speedVarSum += d * d
	}

	return model.SegmentMetrics{
		EntrySpeedKmh:   bucket[0].SpeedKmh,
		ExitSpeedKmh:    bucket[len(bucket)-1].SpeedKmh,
		MeanThrottle:    sumThrottle / n,
		MeanBrake:       sumBrake / n,
		MaxAbsSteering:  maxSteer,
		SpeedVariance:   speedVarSum / n,
		InputSmoothness: inputSmoothness(bucket),
	}
}

// inputSmoothness is the running standard deviation of throttle and
// brake combined, lower is smoother.
func inputSmoothness(bucket []model.TelemetrySample) float64 {
	n := float64(len(bucket))
	var meanT, meanB float64
	for _, s := range bucket {
		meanT += s.Throttle
		meanB += s.Brake
	}
	meanT /= n
	meanB /= n
	var varSum float64
	for _, s := range bucket {
		dt := s.Throttle - meanT
		db := s.Brake - meanB
		varSum += dt*dt + db*db
	}
	return math.Sqrt(varSum / n)
}

// qualitativeInsights applies a handful of rule-based detectors in the
// teacher's style (small single-purpose analyze*/generate* methods),
// gated by a per-category cooldown.
func (a *Analyzer) qualitativeInsights(seg model.TrackSegment, m model.SegmentMetrics) []Insight {
	var out []Insight

	if seg.Kind == model.SegmentStraight && m.MeanThrottle < 0.9 {
		if i := a.emit(seg.ID, model.CategoryThrottle,
			fmt.Sprintf("Full throttle share low on %s (avg %.0f%%).", seg.Name, m.MeanThrottle*100)); i != nil {
			out = append(out, *i)
		}
	}
	if seg.Kind == model.SegmentChicane && m.InputSmoothness > 0.15 {
		if i := a.emit(seg.ID, model.CategoryConsistency,
			fmt.Sprintf("Brake/throttle modulation is choppy through %s.", seg.Name)); i != nil {
			out = append(out, *i)
		}
	}
	if seg.Kind == model.SegmentCorner && m.SpeedVariance > 400 {
		if i := a.emit(seg.ID, model.CategoryConsistency,
			fmt.Sprintf("Speed through %s varies a lot lap to lap.", seg.Name)); i != nil {
			out = append(out, *i)
		}
	}

	return out
}

func (a *Analyzer) emit(segID string, cat model.Category, text string) *Insight {
	key := string(cat)
	now := a.now()
	if last, ok := a.lastSeen[key]; ok && now.Sub(last) < a.cooldown {
		return nil
	}
	a.lastSeen[key] = now
	return &Insight{SegmentID: segID, Category: cat, Text: text}
}
