package sim

import (
	"context"
	"testing"
	"time"

	"github.com/psybedev/coachtrace/internal/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestAdapter_PollTelemetry_ReturnsRecordedSamples(t *testing.T) {
	conn := NewMockConnector([]model.TelemetrySample{{LapNumber: 1}, {LapNumber: 2}}, nil)
	a := NewAdapter(conn, zerolog.Nop())

	s1, err := a.PollTelemetry(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, s1.LapNumber)

	s2, err := a.PollTelemetry(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, s2.LapNumber)
}

func TestAdapter_PollTelemetry_ConnectsLazily(t *testing.T) {
	conn := NewMockConnector(nil, nil)
	a := NewAdapter(conn, zerolog.Nop())
	require.False(t, conn.IsConnected())

	_, err := a.PollTelemetry(context.Background())
	require.NoError(t, err)
	require.True(t, conn.IsConnected())
}

func TestMockConnector_ExhaustedReplayReturnsNil(t *testing.T) {
	conn := NewMockConnector([]model.TelemetrySample{{LapNumber: 1}}, nil)
	require.NoError(t, conn.Connect(context.Background()))
	s1, _ := conn.PollTelemetry(context.Background())
	require.NotNil(t, s1)
	s2, _ := conn.PollTelemetry(context.Background())
	require.Nil(t, s2)
}

func TestMockConnector_ResetRewindsCursor(t *testing.T) {
	conn := NewMockConnector([]model.TelemetrySample{{LapNumber: 1}}, nil)
	conn.PollTelemetry(context.Background())
	conn.Reset()
	s, _ := conn.PollTelemetry(context.Background())
	require.NotNil(t, s)
}

func TestPoller_InvokesTelemetrySinkOnEachTick(t *testing.T) {
	conn := NewMockConnector([]model.TelemetrySample{{LapNumber: 1}, {LapNumber: 2}, {LapNumber: 3}}, nil)
	a := NewAdapter(conn, zerolog.Nop())
	p := NewPoller(a, 2*time.Millisecond, time.Hour, zerolog.Nop())

	var received []int
	done := make(chan struct{})
	p.OnTelemetry(func(s model.TelemetrySample) {
		received = append(received, s.LapNumber)
		if len(received) == 3 {
			close(done)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive all telemetry samples in time")
	}
	require.Equal(t, []int{1, 2, 3}, received)
}

func TestPoller_SuppressesDuplicateSessionDescriptors(t *testing.T) {
	desc := model.SessionDescriptor{TrackDisplayName: "Spa"}
	conn := NewMockConnector(nil, &desc)
	a := NewAdapter(conn, zerolog.Nop())
	p := NewPoller(a, time.Hour, 2*time.Millisecond, zerolog.Nop())

	var count int
	p.OnSession(func(d model.SessionDescriptor) { count++ })

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)
	time.Sleep(20 * time.Millisecond)
	cancel()
	time.Sleep(5 * time.Millisecond)

	require.Equal(t, 1, count, "unchanged session descriptor should only fire once")
}
