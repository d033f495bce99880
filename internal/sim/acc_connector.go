package sim

import (
	"context"
	"fmt"
	"time"
	"unsafe"

	"github.com/psybedev/coachtrace/internal/model"
	"golang.org/x/sys/windows"
)

// ACCConnector implements Connector for Assetto Corsa Competizione by
// reading its three shared-memory blocks directly (physics, graphics,
// static). This mirrors ACC's own SDK layout; gitlab.com/turn1de/acc_client
// is not used here because it is never exercised by any component in
// this pipeline beyond what raw shared-memory access already covers (see
// DESIGN.md). openSharedMemory does not open any mapping: it always
// returns an error, so Connect always fails and no ACC data is read.
type ACCConnector struct {
	isConnected    bool
	physicsHandle  windows.Handle
	graphicsHandle windows.Handle
	staticHandle   windows.Handle

	lastCompletedLaps int
}

func NewACCConnector() *ACCConnector { return &ACCConnector{} }

func (c *ACCConnector) Type() Type { return TypeACC }

// ACCPhysics mirrors ACC's acpmf_physics shared-memory layout.
type ACCPhysics struct {
	PacketID       int32
	Gas            float32
	Brake          float32
	Fuel           float32
	Gear           int32
	RPM            int32
	SteerAngle     float32
	SpeedKMH       float32
	Velocity       [3]float32
	AccG           [3]float32
	WheelSlip      [4]float32
	WheelLoad      [4]float32
	WheelsPressure [4]float32
	TyreWear       [4]float32
	TyreDirtyLevel [4]float32
	TyreTempI      [4]float32
	Clutch         float32
	AirTemp        float32
	RoadTemp       float32
}

// ACCGraphics mirrors ACC's acpmf_graphics shared-memory layout (fields
// used by this connector only; the real block carries many more).
type ACCGraphics struct {
	ACSessionType         int32
	_                     [56]byte // unused leading fields in the real layout
	CompletedLaps         int32
	Position              int32
	ICurrentTime          int32
	ILastTime             int32
	IBestTime             int32
	SessionTimeLeft       float32
	IsInPit               int32
	NumberOfLaps          int32
	NormalizedCarPosition float32
	Flag                  int32
	FuelXLap              float32
	IsInPitLane           int32
	FuelEstimatedLaps     float32
	Clock                 float32
	GlobalYellow          int32
	GlobalWhite           int32
	GlobalGreen           int32
	GlobalChequered       int32
	GlobalRed             int32
}

// ACCStatic mirrors ACC's acpmf_static shared-memory layout.
type ACCStatic struct {
	Track             [33]uint16
	PlayerName        [33]uint16
	MaxFuel           float32
	IsTimedRace       int32
	TrackSPlineLength float32
}

func (c *ACCConnector) Connect(ctx context.Context) error {
	var err error
	c.physicsHandle, err = c.openSharedMemory("Local\\acpmf_physics")
	if err != nil {
		return fmt.Errorf("open physics shared memory: %w", err)
	}
	c.graphicsHandle, err = c.openSharedMemory("Local\\acpmf_graphics")
	if err != nil {
		windows.CloseHandle(c.physicsHandle)
		return fmt.Errorf("open graphics shared memory: %w", err)
	}
	c.staticHandle, err = c.openSharedMemory("Local\\acpmf_static")
	if err != nil {
		windows.CloseHandle(c.physicsHandle)
		windows.CloseHandle(c.graphicsHandle)
		return fmt.Errorf("open static shared memory: %w", err)
	}

	c.isConnected = true
	return nil
}

func (c *ACCConnector) Disconnect() error {
	if c.isConnected {
		windows.CloseHandle(c.physicsHandle)
		windows.CloseHandle(c.graphicsHandle)
		windows.CloseHandle(c.staticHandle)
		c.isConnected = false
	}
	return nil
}

func (c *ACCConnector) IsConnected() bool { return c.isConnected }

func (c *ACCConnector) PollTelemetry(ctx context.Context) (*model.TelemetrySample, error) {
	if !c.isConnected {
		return nil, fmt.Errorf("not connected to ACC")
	}
	physics, err := c.readPhysics()
	if err != nil {
		return nil, fmt.Errorf("read physics: %w", err)
	}
	graphics, err := c.readGraphics()
	if err != nil {
		return nil, fmt.Errorf("read graphics: %w", err)
	}

	lap := int(graphics.CompletedLaps + 1) // ACC reports completed laps; current lap is +1
	c.lastCompletedLaps = int(graphics.CompletedLaps)

	cur := float64(graphics.ICurrentTime) / 1000.0
	last := float64(graphics.ILastTime) / 1000.0
	best := float64(graphics.IBestTime) / 1000.0

	return &model.TelemetrySample{
		Timestamp:       float64(graphics.Clock),
		LapNumber:       lap,
		LapDistPct:      float64(graphics.NormalizedCarPosition),
		SpeedKmh:        float64(physics.SpeedKMH),
		RPM:             float64(physics.RPM),
		Gear:            int(physics.Gear) - 1, // ACC: 0=reverse,1=neutral -> shift to spec's -1..N
		Throttle:        float64(physics.Gas),
		Brake:           float64(physics.Brake),
		SteeringRad:     float64(physics.SteerAngle),
		LatAccelMS2:     float64(physics.AccG[0]) * 9.81,
		LonAccelMS2:     float64(physics.AccG[2]) * 9.81,
		FuelLevelL:      float64(physics.Fuel),
		LapCurrentTimeS: &cur,
		LapLastTimeS:    &last,
		LapBestTimeS:    &best,
		OnPitRoad:       graphics.IsInPitLane == 1,
		SessionKind:     accSessionKind(graphics.ACSessionType),
	}, nil
}

func (c *ACCConnector) PollSession(ctx context.Context) (*model.SessionDescriptor, error) {
	if !c.isConnected {
		return nil, fmt.Errorf("not connected to ACC")
	}
	static, err := c.readStatic()
	if err != nil {
		return nil, fmt.Errorf("read static: %w", err)
	}
	graphics, err := c.readGraphics()
	if err != nil {
		return nil, fmt.Errorf("read graphics: %w", err)
	}

	return &model.SessionDescriptor{
		TrackDisplayName: utf16ToString(static.Track[:]),
		CarScreenName:    "",
		DriverIdentity:   utf16ToString(static.PlayerName[:]),
		SessionKind:      accSessionKind(graphics.ACSessionType),
		StartedAt:        time.Now(),
	}, nil
}

func accSessionKind(accSessionType int32) model.SessionKind {
	switch accSessionType {
	case 0:
		return model.SessionPractice
	case 1:
		return model.SessionQualify
	case 2:
		return model.SessionRace
	default:
		return model.SessionTest
	}
}

func (c *ACCConnector) openSharedMemory(name string) (windows.Handle, error) {
	return 0, fmt.Errorf("ACC shared memory not available: %s", name)
}

func (c *ACCConnector) readPhysics() (*ACCPhysics, error) {
	ptr, err := windows.MapViewOfFile(c.physicsHandle, windows.FILE_MAP_READ, 0, 0, unsafe.Sizeof(ACCPhysics{}))
	if err != nil {
		return nil, err
	}
	defer windows.UnmapViewOfFile(ptr)
	p := (*ACCPhysics)(unsafe.Pointer(ptr))
	cp := *p
	return &cp, nil
}

func (c *ACCConnector) readGraphics() (*ACCGraphics, error) {
	ptr, err := windows.MapViewOfFile(c.graphicsHandle, windows.FILE_MAP_READ, 0, 0, unsafe.Sizeof(ACCGraphics{}))
	if err != nil {
		return nil, err
	}
	defer windows.UnmapViewOfFile(ptr)
	g := (*ACCGraphics)(unsafe.Pointer(ptr))
	cp := *g
	return &cp, nil
}

func (c *ACCConnector) readStatic() (*ACCStatic, error) {
	ptr, err := windows.MapViewOfFile(c.staticHandle, windows.FILE_MAP_READ, 0, 0, unsafe.Sizeof(ACCStatic{}))
	if err != nil {
		return nil, err
	}
	defer windows.UnmapViewOfFile(ptr)
	s := (*ACCStatic)(unsafe.Pointer(ptr))
	cp := *s
	return &cp, nil
}

func utf16ToString(data []uint16) string {
	length := len(data)
	for i, v := range data {
		if v == 0 {
			length = i
			break
		}
	}
	return windows.UTF16ToString(data[:length])
}
