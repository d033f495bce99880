package context

import (
	"testing"
	"time"

	"github.com/psybedev/coachtrace/internal/model"
	"github.com/stretchr/testify/require"
)

func TestIngest_EvictsSamplesOlderThanBufferDuration(t *testing.T) {
	b := New(10 * time.Second)
	b.Ingest(model.TelemetrySample{Timestamp: 0, SpeedKmh: 1})
	b.Ingest(model.TelemetrySample{Timestamp: 5, SpeedKmh: 2})
	b.Ingest(model.TelemetrySample{Timestamp: 20, SpeedKmh: 3})

	snap := b.Snapshot(time.Time{}, 100, 100, ReferenceSummary{})
	require.Len(t, snap.Samples, 1)
	require.Equal(t, 3.0, snap.Samples[0].SpeedKmh)
}

func TestNew_DefaultsDurationWhenNonPositive(t *testing.T) {
	b := New(0)
	require.Equal(t, DefaultBufferDuration, b.duration)
}

func TestRecordEvent_BoundsHistoryToMaxEvents(t *testing.T) {
	b := New(time.Minute)
	for i := 0; i < 60; i++ {
		b.RecordEvent(ClassifiedEvent{Kind: "x"})
	}
	snap := b.Snapshot(time.Time{}, 1000, 1000, ReferenceSummary{})
	require.Len(t, snap.Events, 50)
}

func TestSnapshot_CarriesSessionAndReference(t *testing.T) {
	b := New(time.Minute)
	b.SetSession(model.SessionDescriptor{TrackDisplayName: "Spa"})
	ref := ReferenceSummary{BestApexSpeedKmh: 180, DriverApexSpeedKmh: 160, SectorDeltaS: 0.4}

	snap := b.Snapshot(time.Time{}, 5, 5, ref)
	require.Equal(t, "Spa", snap.Session.TrackDisplayName)
	require.Equal(t, ref, snap.Reference)
}
