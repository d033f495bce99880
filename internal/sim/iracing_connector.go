package sim

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mpapenbr/goirsdk/irsdk"
	"github.com/psybedev/coachtrace/internal/model"
)

// IRacingConnector implements Connector against a live iRacing session via
// the shared-memory SDK.
type IRacingConnector struct {
	isConnected bool
	api         *irsdk.Irsdk
	client      *http.Client

	lastLap     int
	sessionKind model.SessionKind

	// Track/car identity: the shared-memory SDK exposes these via the
	// session info YAML block, which this connector does not parse
	// directly; callers supply them once via SetSessionMeta after
	// inspecting the session string themselves (e.g. in a richer
	// deployment that layers a YAML-decoding session watcher on top of
	// this connector).
	trackDisplayName string
	trackConfigName  string
	carScreenName    string
	driverIdentity   string
}

func NewIRacingConnector() *IRacingConnector {
	return &IRacingConnector{
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// SetSessionMeta records the slow-changing identity fields used to build
// SessionDescriptor. Safe to call before or after Connect.
func (c *IRacingConnector) SetSessionMeta(trackDisplayName, trackConfigName, carScreenName, driverIdentity string) {
	c.trackDisplayName = trackDisplayName
	c.trackConfigName = trackConfigName
	c.carScreenName = carScreenName
	c.driverIdentity = driverIdentity
}

func (c *IRacingConnector) Type() Type { return TypeIRacing }

func (c *IRacingConnector) Connect(ctx context.Context) error {
	running, err := irsdk.IsSimRunning(ctx, c.client)
	if err != nil {
		return fmt.Errorf("check sim running: %w", err)
	}
	if !running {
		return fmt.Errorf("iRacing is not running")
	}

	c.api = irsdk.NewIrsdk()
	if !c.api.WaitForValidData() {
		return fmt.Errorf("failed to get valid data from iRacing")
	}

	c.isConnected = true
	return nil
}

func (c *IRacingConnector) Disconnect() error {
	c.api = nil
	c.isConnected = false
	return nil
}

func (c *IRacingConnector) IsConnected() bool { return c.isConnected }

func (c *IRacingConnector) PollTelemetry(ctx context.Context) (*model.TelemetrySample, error) {
	if !c.isConnected || c.api == nil {
		return nil, fmt.Errorf("not connected to iRacing")
	}
	if !c.api.WaitForValidData() {
		return nil, fmt.Errorf("failed to get valid data from iRacing")
	}
	c.api.GetData()
	return c.convertSample()
}

func (c *IRacingConnector) PollSession(ctx context.Context) (*model.SessionDescriptor, error) {
	if !c.isConnected || c.api == nil {
		return nil, fmt.Errorf("not connected to iRacing")
	}
	return &model.SessionDescriptor{
		TrackDisplayName: c.trackDisplayName,
		TrackConfigName:  c.trackConfigName,
		CarScreenName:    c.carScreenName,
		DriverIdentity:   c.driverIdentity,
		SessionKind:      c.sessionKind,
		StartedAt:        time.Now(),
	}, nil
}

// convertSample maps iRacing SDK variables onto the canonical
// TelemetrySample, converting speed at the edge (m/s -> km/h); throttle,
// brake and lap distance stay 0-1 fractions as the SDK exposes them.
func (c *IRacingConnector) convertSample() (*model.TelemetrySample, error) {
	sessionTime, err := c.api.GetDoubleValue("SessionTime")
	if err != nil {
		return nil, fmt.Errorf("SessionTime: %w", err)
	}

	sessionState, err := c.api.GetIntValue("SessionState")
	if err == nil {
		c.sessionKind = sessionKindFromState(sessionState)
	}

	lap, err := c.api.GetIntValue("Lap")
	if err != nil {
		return nil, fmt.Errorf("Lap: %w", err)
	}
	lapDistPct, err := c.api.GetFloatValue("LapDistPct")
	if err != nil {
		return nil, fmt.Errorf("LapDistPct: %w", err)
	}

	speed, err := c.api.GetFloatValue("Speed") // m/s
	if err != nil {
		return nil, fmt.Errorf("Speed: %w", err)
	}
	rpm, _ := c.api.GetFloatValue("RPM")
	gear, _ := c.api.GetIntValue("Gear")
	throttle, _ := c.api.GetFloatValue("Throttle") // 0-1 fraction
	brake, _ := c.api.GetFloatValue("Brake")       // 0-1 fraction
	steerAngle, _ := c.api.GetFloatValue("SteeringWheelAngle")
	latAccel, _ := c.api.GetFloatValue("LatAccel")
	lonAccel, _ := c.api.GetFloatValue("LongAccel")
	fuelLevel, _ := c.api.GetFloatValue("FuelLevel")
	onPitRoad, _ := c.api.GetBoolValue("OnPitRoad")

	currentLapTime, _ := c.api.GetFloatValue("LapCurrentLapTime")
	lastLapTime, _ := c.api.GetFloatValue("LapLastLapTime")
	bestLapTime, _ := c.api.GetFloatValue("LapBestLapTime")

	curF := float64(currentLapTime)
	lastF := float64(lastLapTime)
	bestF := float64(bestLapTime)

	sample := &model.TelemetrySample{
		Timestamp:       sessionTime,
		LapNumber:       lap,
		LapDistPct:      float64(lapDistPct),
		SpeedKmh:        float64(speed) * 3.6,
		RPM:             float64(rpm),
		Gear:            gear,
		Throttle:        float64(throttle),
		Brake:           float64(brake),
		SteeringRad:     float64(steerAngle),
		LatAccelMS2:     float64(latAccel),
		LonAccelMS2:     float64(lonAccel),
		FuelLevelL:      float64(fuelLevel),
		LapCurrentTimeS: &curF,
		LapLastTimeS:    &lastF,
		LapBestTimeS:    &bestF,
		OnPitRoad:       onPitRoad,
		TrackName:       c.trackDisplayName,
		CarName:         c.carScreenName,
		SessionKind:     c.sessionKind,
	}

	c.lastLap = lap
	return sample, nil
}

func sessionKindFromState(state int) model.SessionKind {
	// iRacing SessionState enum: 0=invalid,1=get_in_car,2=warmup,
	// 3=parade_laps,4=racing,5=checkered,6=cool_down. Practice/qualify are
	// distinguished by the session's own SessionType string in a full
	// implementation; here we coarsely bucket racing vs. non-racing.
	switch state {
	case 4, 5:
		return model.SessionRace
	case 2, 3:
		return model.SessionPractice
	default:
		return model.SessionPractice
	}
}
