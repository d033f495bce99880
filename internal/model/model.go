// Package model defines the shared data types that flow through the
// coaching pipeline: telemetry samples, laps, references, analyses,
// mistakes, and coaching messages.
package model

import "time"

// SessionKind is the closed set of simulator session types.
type SessionKind string

const (
	SessionPractice SessionKind = "practice"
	SessionQualify  SessionKind = "qualify"
	SessionRace     SessionKind = "race"
	SessionTest     SessionKind = "test"
)

// TelemetrySample is an immutable record of a single simulator tick.
// Produced by the Simulator Adapter; retained only by fan-out buffers and
// downstream windowed buffers. Has no global identity.
type TelemetrySample struct {
	Timestamp       float64 // monotonic seconds within a connection
	LapNumber       int
	LapDistPct      float64 // 0.0-1.0, wraps at lap end
	SpeedKmh        float64
	RPM             float64
	Gear            int // -1..N
	Throttle        float64 // 0-1
	Brake           float64 // 0-1
	SteeringRad     float64 // signed
	LatAccelMS2     float64
	LonAccelMS2     float64
	FuelLevelL      float64
	LapCurrentTimeS *float64
	LapLastTimeS    *float64
	LapBestTimeS    *float64
	OnPitRoad       bool
	TrackName       string
	CarName         string
	SessionKind     SessionKind
	TirePressures   map[string]float64 // corner name -> kPa
	TireTemps       map[string]float64 // corner name -> degC
}

// SessionDescriptor is slow-changing session metadata. Replaced, never
// mutated in place; downstream components treat identity change (by
// StartedAt/TrackConfigName/CarScreenName) as a session change.
type SessionDescriptor struct {
	TrackDisplayName string
	TrackConfigName  string
	CarScreenName    string
	DriverIdentity   string
	SessionKind      SessionKind
	Weather          string
	StartedAt        time.Time
}

// SegmentKind is the closed set of TrackSegment kinds.
type SegmentKind string

const (
	SegmentCorner   SegmentKind = "corner"
	SegmentStraight SegmentKind = "straight"
	SegmentChicane  SegmentKind = "chicane"
)

// TrackSegment is a named portion of a track lap, loaded once per track
// from the Track Metadata Store and treated as immutable thereafter.
type TrackSegment struct {
	ID          string
	Name        string
	StartFrac   float64
	EndFrac     float64
	Kind        SegmentKind
	Description string
}

// SegmentMetrics is the per-segment measurement produced by the Segment
// Analyzer at lap completion.
type SegmentMetrics struct {
	EntrySpeedKmh   float64
	ExitSpeedKmh    float64
	MeanThrottle    float64
	MeanBrake       float64
	MaxAbsSteering  float64
	SpeedVariance   float64
	InputSmoothness float64
}

// LapRecord is a completed lap with per-segment metrics and validity.
type LapRecord struct {
	LapNumber    int
	Track        string
	Car          string
	TotalTimeS   float64
	SectorTimesS []float64
	PerSegment   map[string]SegmentMetrics
	Valid        bool
	Outlier      bool
	CreatedAt    time.Time
	Samples      []TelemetrySample
}

// ReferenceRole is the closed set of ReferenceLap roles.
type ReferenceRole string

const (
	RolePersonalBest ReferenceRole = "personal_best"
	RoleSessionBest  ReferenceRole = "session_best"
	RoleOptimal      ReferenceRole = "optimal"
	RoleEngineer     ReferenceRole = "engineer"
)

// SegmentReference holds the comparator metrics for one segment within a
// ReferenceLap.
type SegmentReference struct {
	EntrySpeedKmh      float64
	ApexSpeedKmh       float64
	ExitSpeedKmh       float64
	BrakePointS        float64 // time within lap at brake point
	ThrottlePointS     float64
	ReferenceGear      int
	SteeringPeakRad    float64
	CornerTimeS        float64
}

// ReferenceLap is the canonical comparator for a (track, car, role).
type ReferenceLap struct {
	Track        string
	Car          string
	Role         ReferenceRole
	LapTimeS     float64
	SectorTimesS []float64
	PerSegment   map[string]SegmentReference
	SourceLapID  string
	UpdatedAt    time.Time
}

// Priority is the closed ordinal set used by MicroAnalysis and
// CoachingInsight/Message.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// PatternTag is the fixed set of driving-pattern classifications the
// Micro-Analyzer may emit.
type PatternTag string

const (
	PatternLateApex             PatternTag = "late_apex"
	PatternEarlyApex            PatternTag = "early_apex"
	PatternOffThrottleOversteer PatternTag = "off_throttle_oversteer"
	PatternUndersteer           PatternTag = "understeer"
	PatternTrailBraking         PatternTag = "trail_braking"
	PatternEarlyThrottle        PatternTag = "early_throttle"
	PatternLateThrottle         PatternTag = "late_throttle"
	PatternInconsistentInputs   PatternTag = "inconsistent_inputs"
)

// MicroAnalysis is the output of analyzing one corner occurrence.
type MicroAnalysis struct {
	CornerID           string
	BrakeTimingDeltaS  float64
	ThrottleTimingDeltaS float64
	EntrySpeedDeltaKmh float64
	ApexSpeedDeltaKmh  float64
	ExitSpeedDeltaKmh  float64
	PeakBrakeDeltaPct  float64
	PeakThrottleDeltaPct float64
	PeakSteeringDeltaDeg float64
	TotalTimeLossS     float64
	TimeLossBreakdown  map[string]float64
	Patterns           []PatternTag
	Confidence         map[PatternTag]float64
	Priority           Priority
	Feedback           []string
	Timestamp          time.Time
}

// MistakeType is the fixed mistake-type set from the specification.
type MistakeType string

const (
	MistakeLateBrake             MistakeType = "late_brake"
	MistakeEarlyBrake            MistakeType = "early_brake"
	MistakeLateThrottle          MistakeType = "late_throttle"
	MistakeEarlyThrottle         MistakeType = "early_throttle"
	MistakeLowEntrySpeed         MistakeType = "low_entry_speed"
	MistakeHighEntrySpeed        MistakeType = "high_entry_speed"
	MistakeLowApexSpeed          MistakeType = "low_apex_speed"
	MistakeHighApexSpeed         MistakeType = "high_apex_speed"
	MistakeLowExitSpeed          MistakeType = "low_exit_speed"
	MistakeUndersteer            MistakeType = "understeer"
	MistakeOversteer             MistakeType = "oversteer"
	MistakeOffThrottleOversteer  MistakeType = "off_throttle_oversteer"
	MistakeTrailBrakingPoor      MistakeType = "trail_braking_poor"
	MistakeInconsistentInputs    MistakeType = "inconsistent_inputs"
	MistakeEarlyApex             MistakeType = "early_apex"
	MistakeLateApex              MistakeType = "late_apex"
	MistakePoorRacingLine        MistakeType = "poor_racing_line"
	MistakeLineDeviation         MistakeType = "line_deviation"
	MistakeLapTimeVariance       MistakeType = "lap_time_variance"
	MistakeSectorTimeVariance    MistakeType = "sector_time_variance"
	MistakeInputVariance         MistakeType = "input_variance"
	MistakePoorGearSelection     MistakeType = "poor_gear_selection"
)

// MistakeEvent is a single classified fault, derived from a MicroAnalysis.
type MistakeEvent struct {
	ID          string
	Timestamp   time.Time
	CornerID    string
	Type        MistakeType
	Severity    float64 // 0-1
	TimeLossS   float64
	Context     map[string]interface{}
}

// Trend is the closed set of MistakePattern trend values.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendWorsening Trend = "worsening"
)

// MistakePattern is the aggregate over a (corner, mistake-type) pair.
type MistakePattern struct {
	CornerID        string
	Type            MistakeType
	Frequency       int
	RecentFrequency int // last 600s
	TotalTimeLossS  float64
	MeanTimeLossS   float64
	LastOccurrence  time.Time
	Trend           Trend
	Priority        Priority
	Description     string
}

// Category is the closed set of coaching categories.
type Category string

const (
	CategoryBraking     Category = "braking"
	CategoryThrottle    Category = "throttle"
	CategoryCornering   Category = "cornering"
	CategoryRacingLine  Category = "racing_line"
	CategoryConsistency Category = "consistency"
	CategoryTires       Category = "tires"
	CategoryFuel        Category = "fuel"
	CategoryStrategy    Category = "strategy"
	CategorySafety      Category = "safety"
	CategoryBaseline    Category = "baseline"
	CategoryTechnique   Category = "technique"
	CategoryGeneral     Category = "general"
)

// InsightSource records which layer produced a CoachingInsight's text.
type InsightSource string

const (
	SourceLocalML  InsightSource = "local_ml"
	SourceRemote   InsightSource = "remote"
	SourceCombined InsightSource = "combined"
)

// CoachingInsight is a candidate message produced by analyzers before
// queue admission.
type CoachingInsight struct {
	Text       string
	Category   Category
	Priority   int // 1..10
	Confidence float64
	Importance float64
	Source     InsightSource
	Context    interface{} // opaque context snapshot, e.g. *contextpkg.Snapshot
}

// SecondaryMessage is a combined message's secondary text+category.
type SecondaryMessage struct {
	Text     string
	Category Category
}

// CoachingMessage is a delivered coaching event.
type CoachingMessage struct {
	ID                  string
	Text                string
	Category            Category
	Priority            int
	Confidence          float64
	Secondary           []SecondaryMessage
	ImprovementPotentialS *float64
	Timestamp           time.Time
	Audio               []byte
}
