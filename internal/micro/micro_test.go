package micro

import (
	"testing"

	"github.com/psybedev/coachtrace/internal/model"
	"github.com/stretchr/testify/require"
)

func TestAnalyze_EmptySamplesReturnsZeroValue(t *testing.T) {
	a := New()
	out := a.Analyze("t1", model.TrackSegment{ID: "t1"}, nil, model.SegmentReference{})
	require.Equal(t, "t1", out.CornerID)
	require.Zero(t, out.TotalTimeLossS)
}

func TestAnalyze_ComputesSpeedDeltasAgainstReference(t *testing.T) {
	a := New()
	seg := model.TrackSegment{ID: "t1", Kind: model.SegmentCorner}
	samples := []model.TelemetrySample{
		{Timestamp: 0, SpeedKmh: 200, Throttle: 0, Brake: 0.5},
		{Timestamp: 1, SpeedKmh: 100, Throttle: 0, Brake: 0.8},
		{Timestamp: 2, SpeedKmh: 180, Throttle: 1, Brake: 0},
	}
	ref := model.SegmentReference{EntrySpeedKmh: 210, ApexSpeedKmh: 110, ExitSpeedKmh: 190}

	out := a.Analyze("t1", seg, samples, ref)
	require.Equal(t, -10.0, out.EntrySpeedDeltaKmh)
	require.Equal(t, -10.0, out.ApexSpeedDeltaKmh)
	require.Equal(t, -10.0, out.ExitSpeedDeltaKmh)
}

func TestAnalyze_FlagsLateApexWhenMinSpeedNearSegmentEnd(t *testing.T) {
	a := New()
	seg := model.TrackSegment{ID: "t1", Kind: model.SegmentCorner}
	samples := make([]model.TelemetrySample, 11)
	for i := range samples {
		samples[i] = model.TelemetrySample{Timestamp: float64(i), SpeedKmh: 150}
	}
	samples[9].SpeedKmh = 80 // minimum speed near the end -> late apex

	out := a.Analyze("t1", seg, samples, model.SegmentReference{})
	require.Contains(t, out.Patterns, model.PatternLateApex)
}

func TestPriorityFor_EscalatesWithTimeLoss(t *testing.T) {
	require.Equal(t, model.PriorityLow, priorityFor(0.01, nil, 0, 0))
	require.Equal(t, model.PriorityMedium, priorityFor(0.15, nil, 0, 0))
	require.Equal(t, model.PriorityHigh, priorityFor(0.25, nil, 0, 0))
	require.Equal(t, model.PriorityCritical, priorityFor(0.5, nil, 0, 0))
}
