package mistaketracker

import (
	"testing"
	"time"

	"github.com/psybedev/coachtrace/internal/model"
	"github.com/stretchr/testify/require"
)

func TestIngest_MapsPatternToMistakeEvent(t *testing.T) {
	tr := New(0)
	events := tr.Ingest(model.MicroAnalysis{
		CornerID:  "t1",
		Timestamp: time.Now(),
		Patterns:  []model.PatternTag{model.PatternLateApex},
		Confidence: map[model.PatternTag]float64{model.PatternLateApex: 0.8},
	})
	require.Len(t, events, 1)
	require.Equal(t, model.MistakeLateApex, events[0].Type)
	require.Equal(t, 0.8, events[0].Severity)
}

func TestIngest_LogsGenericMistakeWhenNoPatternButTimeLost(t *testing.T) {
	tr := New(0)
	events := tr.Ingest(model.MicroAnalysis{CornerID: "t1", Timestamp: time.Now(), TotalTimeLossS: 0.2})
	require.Len(t, events, 1)
	require.Equal(t, model.MistakeLapTimeVariance, events[0].Type)
}

func TestIngest_NoEventsWhenNoPatternsAndNoTimeLoss(t *testing.T) {
	tr := New(0)
	events := tr.Ingest(model.MicroAnalysis{CornerID: "t1", Timestamp: time.Now()})
	require.Empty(t, events)
}

func TestByCorner_AccumulatesFrequencyAndMeanLoss(t *testing.T) {
	tr := New(0)
	for i := 0; i < 3; i++ {
		tr.Ingest(model.MicroAnalysis{
			CornerID: "t1", Timestamp: time.Now(), TotalTimeLossS: 0.3,
			Patterns:   []model.PatternTag{model.PatternUndersteer},
			Confidence: map[model.PatternTag]float64{model.PatternUndersteer: 0.5},
		})
	}
	patterns := tr.ByCorner("t1")
	require.Len(t, patterns, 1)
	require.Equal(t, 3, patterns[0].Frequency)
	require.InDelta(t, 0.3, patterns[0].MeanTimeLossS, 0.001)
	require.Equal(t, 3, patterns[0].RecentFrequency, "all three events fall within the 600s recency window")
}

func TestByCorner_RecentFrequencyExcludesEventsOlderThan600s(t *testing.T) {
	tr := New(0)
	fixedNow := time.Now()
	tr.now = func() time.Time { return fixedNow }

	tr.Ingest(model.MicroAnalysis{
		CornerID: "t1", Timestamp: fixedNow.Add(-700 * time.Second), TotalTimeLossS: 0.3,
		Patterns:   []model.PatternTag{model.PatternUndersteer},
		Confidence: map[model.PatternTag]float64{model.PatternUndersteer: 0.5},
	})
	tr.Ingest(model.MicroAnalysis{
		CornerID: "t1", Timestamp: fixedNow, TotalTimeLossS: 0.3,
		Patterns:   []model.PatternTag{model.PatternUndersteer},
		Confidence: map[model.PatternTag]float64{model.PatternUndersteer: 0.5},
	})

	patterns := tr.ByCorner("t1")
	require.Len(t, patterns, 1)
	require.Equal(t, 2, patterns[0].Frequency)
	require.Equal(t, 1, patterns[0].RecentFrequency, "only the event within the trailing 600s should count")
}

func TestPersistentMistakes_FiltersBelowFrequencyTwo(t *testing.T) {
	tr := New(0)
	tr.Ingest(model.MicroAnalysis{
		CornerID: "t1", Timestamp: time.Now(),
		Patterns:   []model.PatternTag{model.PatternEarlyApex},
		Confidence: map[model.PatternTag]float64{model.PatternEarlyApex: 0.5},
	})
	require.Empty(t, tr.PersistentMistakes())

	tr.Ingest(model.MicroAnalysis{
		CornerID: "t1", Timestamp: time.Now(),
		Patterns:   []model.PatternTag{model.PatternEarlyApex},
		Confidence: map[model.PatternTag]float64{model.PatternEarlyApex: 0.5},
	})
	require.Len(t, tr.PersistentMistakes(), 1)
}

func TestSessionSummary_AggregatesTotalsAndFocusAreas(t *testing.T) {
	tr := New(0)
	tr.Ingest(model.MicroAnalysis{
		CornerID: "t1", Timestamp: time.Now(), TotalTimeLossS: 0.5,
		Patterns:   []model.PatternTag{model.PatternLateApex},
		Confidence: map[model.PatternTag]float64{model.PatternLateApex: 0.5},
	})
	summary := tr.SessionSummary()
	require.Equal(t, 1, summary.TotalEvents)
	require.InDelta(t, 0.5, summary.TotalTimeLossS, 0.001)
	require.NotNil(t, summary.MostFrequent)
}

func TestRecent_FiltersByWindow(t *testing.T) {
	tr := New(0)
	fixedNow := time.Now()
	tr.now = func() time.Time { return fixedNow }
	tr.Ingest(model.MicroAnalysis{CornerID: "t1", Timestamp: fixedNow.Add(-500 * time.Second), TotalTimeLossS: 0.1})
	tr.Ingest(model.MicroAnalysis{CornerID: "t1", Timestamp: fixedNow.Add(-5 * time.Second), TotalTimeLossS: 0.1})

	recent := tr.Recent(60)
	require.Len(t, recent, 1)
}

func TestAppendToLog_BoundsToCapacity(t *testing.T) {
	tr := New(2)
	for i := 0; i < 5; i++ {
		tr.Ingest(model.MicroAnalysis{CornerID: "t1", Timestamp: time.Now(), TotalTimeLossS: 0.1})
	}
	require.Len(t, tr.log, 2)
}
