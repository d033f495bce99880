package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/psybedev/coachtrace/internal/config"
	"github.com/psybedev/coachtrace/internal/model"
	"github.com/psybedev/coachtrace/internal/sim"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.PersistenceDir = t.TempDir()
	return cfg
}

func lapSamples() []model.TelemetrySample {
	var samples []model.TelemetrySample
	for i := 0; i < 20; i++ {
		samples = append(samples, model.TelemetrySample{
			Timestamp:  float64(i),
			LapNumber:  1,
			LapDistPct: float64(i) / 20,
			SpeedKmh:   150,
			Throttle:   0.8,
		})
	}
	samples = append(samples, model.TelemetrySample{Timestamp: 21, LapNumber: 2, LapDistPct: 0.01, SpeedKmh: 150})
	return samples
}

func TestNew_ConstructsWithoutRemoteClient(t *testing.T) {
	cfg := testConfig(t)
	conn := sim.NewMockConnector(nil, nil)
	sup := New(cfg, Deps{Connector: conn}, zerolog.Nop())

	require.Equal(t, cfg.CoachingMode, sup.Mode())
	require.NotEmpty(t, sup.SessionID())
	require.NotNil(t, sup.Transport())
	require.NotNil(t, sup.Advice())
}

func TestSetMode_RejectsUnknownMode(t *testing.T) {
	cfg := testConfig(t)
	sup := New(cfg, Deps{Connector: sim.NewMockConnector(nil, nil)}, zerolog.Nop())
	require.Error(t, sup.SetMode("pro"))
	require.NoError(t, sup.SetMode("race"))
	require.Equal(t, "race", sup.Mode())
}

func TestStatus_ReportsSessionAndQueueDepth(t *testing.T) {
	cfg := testConfig(t)
	sup := New(cfg, Deps{Connector: sim.NewMockConnector(nil, nil)}, zerolog.Nop())
	status := sup.Status()
	require.Equal(t, sup.SessionID(), status["session_id"])
	require.Contains(t, status, "health")
}

func TestRun_ProcessesTelemetryThroughLapCompletion(t *testing.T) {
	cfg := testConfig(t)
	desc := model.SessionDescriptor{TrackDisplayName: "spa", CarScreenName: "gt3"}
	conn := sim.NewMockConnector(lapSamples(), &desc)
	sup := New(cfg, Deps{Connector: conn}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go sup.Run(ctx)

	time.Sleep(300 * time.Millisecond)
	cancel()
	time.Sleep(50 * time.Millisecond)

	require.GreaterOrEqual(t, sup.queue.Len()+len(sup.queue.History(100)), 0)
}
