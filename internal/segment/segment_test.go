package segment

import (
	"testing"
	"time"

	"github.com/psybedev/coachtrace/internal/model"
	"github.com/stretchr/testify/require"
)

func TestNew_UsesDegenerateSegmentWhenNoneProvided(t *testing.T) {
	a := New(nil, time.Minute)
	require.Len(t, a.Segments(), 1)
	require.Equal(t, "full_lap", a.Segments()[0].ID)
}

func TestAnalyze_BucketsSamplesAndComputesMetrics(t *testing.T) {
	segs := []model.TrackSegment{
		{ID: "t1", Kind: model.SegmentCorner, StartFrac: 0, EndFrac: 0.5},
		{ID: "t2", Kind: model.SegmentStraight, StartFrac: 0.5, EndFrac: 1},
	}
	a := New(segs, time.Minute)

	samples := []model.TelemetrySample{
		{LapDistPct: 0.1, SpeedKmh: 100, Throttle: 1},
		{LapDistPct: 0.3, SpeedKmh: 110, Throttle: 1},
		{LapDistPct: 0.6, SpeedKmh: 200, Throttle: 1},
		{LapDistPct: 0.8, SpeedKmh: 220, Throttle: 1},
	}

	metrics, _ := a.Analyze(samples)
	require.Contains(t, metrics, "t1")
	require.Contains(t, metrics, "t2")
	require.Equal(t, 100.0, metrics["t1"].EntrySpeedKmh)
	require.Equal(t, 110.0, metrics["t1"].ExitSpeedKmh)
}

func TestAnalyze_EmitsStraightThrottleInsightBelowThreshold(t *testing.T) {
	segs := []model.TrackSegment{{ID: "s1", Name: "Back Straight", Kind: model.SegmentStraight, StartFrac: 0, EndFrac: 1}}
	a := New(segs, time.Minute)

	samples := []model.TelemetrySample{
		{LapDistPct: 0.1, Throttle: 0.5, SpeedKmh: 150},
		{LapDistPct: 0.5, Throttle: 0.6, SpeedKmh: 160},
	}
	_, insights := a.Analyze(samples)
	require.Len(t, insights, 1)
	require.Equal(t, model.CategoryThrottle, insights[0].Category)
}

func TestAnalyze_CooldownSuppressesRepeatedInsight(t *testing.T) {
	segs := []model.TrackSegment{{ID: "s1", Name: "Back Straight", Kind: model.SegmentStraight, StartFrac: 0, EndFrac: 1}}
	a := New(segs, time.Hour)

	samples := []model.TelemetrySample{{LapDistPct: 0.1, Throttle: 0.5, SpeedKmh: 150}}
	_, first := a.Analyze(samples)
	_, second := a.Analyze(samples)

	require.Len(t, first, 1)
	require.Empty(t, second, "cooldown should suppress the repeat within the window")
}

func TestCornerReferences_ComputesBrakeApexThrottlePoints(t *testing.T) {
	segs := []model.TrackSegment{
		{ID: "t1", Kind: model.SegmentCorner, StartFrac: 0, EndFrac: 1},
	}
	a := New(segs, time.Minute)

	samples := []model.TelemetrySample{
		{Timestamp: 0, LapDistPct: 0.1, SpeedKmh: 200, Brake: 0, Throttle: 1, Gear: 5, SteeringRad: 0.05},
		{Timestamp: 1, LapDistPct: 0.2, SpeedKmh: 150, Brake: 0.8, Throttle: 0, Gear: 3, SteeringRad: 0.2},
		{Timestamp: 2, LapDistPct: 0.3, SpeedKmh: 90, Brake: 0.1, Throttle: 0.6, Gear: 2, SteeringRad: 0.4},
		{Timestamp: 3, LapDistPct: 0.4, SpeedKmh: 140, Brake: 0, Throttle: 1, Gear: 3, SteeringRad: 0.1},
	}

	refs := a.CornerReferences(samples)
	require.Contains(t, refs, "t1")
	ref := refs["t1"]
	require.Equal(t, 200.0, ref.EntrySpeedKmh)
	require.Equal(t, 90.0, ref.ApexSpeedKmh)
	require.Equal(t, 140.0, ref.ExitSpeedKmh)
	require.Equal(t, 2, ref.ReferenceGear)
	require.Equal(t, 1.0, ref.BrakePointS)
	require.Equal(t, 2.0, ref.ThrottlePointS)
	require.InDelta(t, 0.4, ref.SteeringPeakRad, 1e-9)
	require.Equal(t, 3.0, ref.CornerTimeS)
}

func TestCornerReferences_SkipsNonCornerSegments(t *testing.T) {
	segs := []model.TrackSegment{{ID: "s1", Kind: model.SegmentStraight, StartFrac: 0, EndFrac: 1}}
	a := New(segs, time.Minute)
	refs := a.CornerReferences([]model.TelemetrySample{{LapDistPct: 0.1, SpeedKmh: 200}})
	require.Empty(t, refs)
}

func TestAnalyze_EmptySegmentProducesNoMetricsOrInsights(t *testing.T) {
	segs := []model.TrackSegment{{ID: "t1", Kind: model.SegmentCorner, StartFrac: 0, EndFrac: 0.2}}
	a := New(segs, time.Minute)
	metrics, insights := a.Analyze([]model.TelemetrySample{{LapDistPct: 0.9, SpeedKmh: 100}})
	require.Empty(t, metrics)
	require.Empty(t, insights)
}
