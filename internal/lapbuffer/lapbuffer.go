// Package lapbuffer implements the Lap/Sector Buffer Manager (§4.4):
// sector and lap boundary detection, LapRecord assembly, validity and
// outlier classification, and reference promotion.
package lapbuffer

import (
	"sort"

	"github.com/psybedev/coachtrace/internal/model"
	"github.com/psybedev/coachtrace/internal/refstore"
	"github.com/psybedev/coachtrace/internal/segment"
)

// LapCompletedEvent is emitted whenever a lap is assembled.
type LapCompletedEvent struct {
	Lap           model.LapRecord
	IsPB          bool
	IsSessionBest bool
	Insights      []segment.Insight
}

// SectorCompletedEvent is emitted when the car crosses a sector boundary
// within a lap. The lap's final sector, which ends at the lap wrap, emits
// no event; its time appears only in LapRecord.SectorTimesS.
type SectorCompletedEvent struct {
	SectorIdx int
	TimeS     float64
}

// Manager tracks in-progress lap state and assembles LapRecords at
// completion, grounded on the teacher's simulator_connector lap/session
// types generalized to lap-distance-fraction wrap detection.
type Manager struct {
	track string
	car   string

	sectorBoundaries []float64
	store            *refstore.Store
	segAnalyzer      *segment.Analyzer

	prevSample  *model.TelemetrySample
	held        []model.TelemetrySample
	lapNumber   int
	sectorIdx   int
	sectorStart float64   // timestamp at current sector's start
	sectorTimes []float64 // sector times completed so far this lap

	recentLapTimes []float64 // rolling window of last valid laps, bounded to 5

	onLapCompleted    func(LapCompletedEvent)
	onSectorCompleted func(SectorCompletedEvent)

	personalBest *model.ReferenceLap
	sessionBest  *model.ReferenceLap
}

// New constructs a Manager for one (track, car) pair. segAnalyzer, if
// non-nil, is used to compute per-segment metrics and corner references
// before a lap is assembled and promoted, so the promoted reference
// carries real segment data rather than being backfilled afterward.
func New(track, car string, sectorBoundaries []float64, store *refstore.Store, segAnalyzer *segment.Analyzer) *Manager {
	m := &Manager{
		track:            track,
		car:              car,
		sectorBoundaries: sectorBoundaries,
		store:            store,
		segAnalyzer:      segAnalyzer,
	}
	refs, err := store.Load(track, car)
	if err == nil {
		if pb, ok := refs[model.RolePersonalBest]; ok {
			pbCopy := pb
			m.personalBest = &pbCopy
		}
	}
	return m
}

func (m *Manager) OnLapCompleted(f func(LapCompletedEvent))       { m.onLapCompleted = f }
func (m *Manager) OnSectorCompleted(f func(SectorCompletedEvent)) { m.onSectorCompleted = f }

// SegmentReference returns the best available comparator (personal best,
// falling back to session best) for segID, or the zero value if neither
// reference has that segment yet.
func (m *Manager) SegmentReference(segID string) model.SegmentReference {
	if m.personalBest != nil {
		if ref, ok := m.personalBest.PerSegment[segID]; ok {
			return ref
		}
	}
	if m.sessionBest != nil {
		if ref, ok := m.sessionBest.PerSegment[segID]; ok {
			return ref
		}
	}
	return model.SegmentReference{}
}

// Ingest consumes one canonical telemetry sample, detecting sector and
// lap boundaries. Must be called in timestamp order within a connection.
func (m *Manager) Ingest(sample model.TelemetrySample) {
	m.held = append(m.held, sample)

	if m.prevSample == nil {
		m.sectorStart = sample.Timestamp
	} else {
		m.detectSectorCrossing(*m.prevSample, sample)
		if m.detectLapCompletion(*m.prevSample, sample) {
			m.completeLap(sample)
		}
	}
	m.prevSample = &sample
}

// detectSectorCrossing fires sector_completed when distance crosses a
// configured boundary fraction between prev and cur, interpolating the
// crossing timestamp linearly within the inter-sample gap.
func (m *Manager) detectSectorCrossing(prev, cur model.TelemetrySample) {
	// sectorBoundaries[0] is the lap-start marker (always 0.0), never
	// crossed mid-lap; the sector currently in progress (m.sectorIdx)
	// ends when the car crosses the START of the NEXT sector.
	if len(m.sectorBoundaries) <= 1 {
		return
	}
	next := m.sectorBoundaries[(m.sectorIdx+1)%len(m.sectorBoundaries)]
	if cur.LapDistPct < prev.LapDistPct {
		return // lap wrapped; handled by detectLapCompletion instead
	}
	if prev.LapDistPct < next && cur.LapDistPct >= next {
		frac := 0.0
		if cur.LapDistPct != prev.LapDistPct {
			frac = (next - prev.LapDistPct) / (cur.LapDistPct - prev.LapDistPct)
		}
		crossTime := prev.Timestamp + frac*(cur.Timestamp-prev.Timestamp)
		sectorTime := crossTime - m.sectorStart
		m.sectorTimes = append(m.sectorTimes, sectorTime)
		if m.onSectorCompleted != nil {
			m.onSectorCompleted(SectorCompletedEvent{SectorIdx: m.sectorIdx, TimeS: sectorTime})
		}
		m.sectorStart = crossTime
		m.sectorIdx++
	}
}

// detectLapCompletion implements §4.4's two detection rules: explicit
// lap-number increment, or a wrap in lap distance without one.
func (m *Manager) detectLapCompletion(prev, cur model.TelemetrySample) bool {
	if cur.LapNumber > prev.LapNumber {
		return true
	}
	if prev.LapDistPct >= 0.95 && cur.LapDistPct <= 0.05 {
		return true
	}
	return false
}

func (m *Manager) completeLap(firstSampleOfNextLap model.TelemetrySample) {
	samples := m.held
	m.held = []model.TelemetrySample{firstSampleOfNextLap}

	if len(samples) == 0 {
		m.sectorIdx = 0
		m.sectorTimes = nil
		m.sectorStart = firstSampleOfNextLap.Timestamp
		return
	}

	// close out the lap's final sector (from the last boundary crossing
	// to the wrap, which detectSectorCrossing never sees) before
	// resetting sector state for the next lap.
	var sectorTimes []float64
	if len(m.sectorBoundaries) > 1 {
		sectorTimes = append(append([]float64{}, m.sectorTimes...),
			samples[len(samples)-1].Timestamp-m.sectorStart)
	}
	m.sectorTimes = nil
	m.sectorIdx = 0
	m.sectorStart = firstSampleOfNextLap.Timestamp

	lapNumber := samples[0].LapNumber
	if firstSampleOfNextLap.LapNumber <= lapNumber {
		lapNumber = m.lapNumber + 1 // synthesized, per §4.4(b)
	}
	m.lapNumber = lapNumber

	totalTime := samples[len(samples)-1].Timestamp - samples[0].Timestamp

	valid := totalTime > 0
	if valid {
		tenPct := int(float64(len(samples)) * 0.1)
		for i := tenPct; i < len(samples); i++ {
			if samples[i].OnPitRoad {
				valid = false
				break
			}
		}
	}

	outlier := false
	if valid && len(m.recentLapTimes) > 0 {
		median := rollingMedian(m.recentLapTimes)
		if totalTime > 1.5*median {
			outlier = true
		}
	}

	// per-segment metrics must be computed before the lap is assembled
	// and promoted, so a promoted reference carries real segment data
	// rather than the zero value.
	var metrics map[string]model.SegmentMetrics
	var insights []segment.Insight
	if m.segAnalyzer != nil {
		metrics, insights = m.segAnalyzer.Analyze(samples)
	}

	lap := model.LapRecord{
		LapNumber:    lapNumber,
		Track:        m.track,
		Car:          m.car,
		TotalTimeS:   totalTime,
		SectorTimesS: sectorTimes,
		PerSegment:   metrics,
		Valid:        valid,
		Outlier:      outlier,
		Samples:      samples,
	}

	if valid && !outlier {
		m.recentLapTimes = append(m.recentLapTimes, totalTime)
		if len(m.recentLapTimes) > 5 {
			m.recentLapTimes = m.recentLapTimes[1:]
		}
	}

	isPB, isSessionBest := m.maybePromote(lap)

	if m.onLapCompleted != nil {
		m.onLapCompleted(LapCompletedEvent{Lap: lap, IsPB: isPB, IsSessionBest: isSessionBest, Insights: insights})
	}
}

func (m *Manager) maybePromote(lap model.LapRecord) (isPB, isSessionBest bool) {
	if !lap.Valid || lap.Outlier {
		return false, false
	}

	var cornerRefs map[string]model.SegmentReference
	if m.segAnalyzer != nil {
		cornerRefs = m.segAnalyzer.CornerReferences(lap.Samples)
	}

	if m.sessionBest == nil || lap.TotalTimeS < m.sessionBest.LapTimeS {
		ref := referenceFromLap(lap, model.RoleSessionBest, cornerRefs)
		m.sessionBest = &ref
		isSessionBest = true
		_ = m.store.Save(m.track, m.car, ref)
	}

	if m.personalBest == nil || lap.TotalTimeS < m.personalBest.LapTimeS {
		ref := referenceFromLap(lap, model.RolePersonalBest, cornerRefs)
		m.personalBest = &ref
		isPB = true
		_ = m.store.Save(m.track, m.car, ref)
	}

	return isPB, isSessionBest
}

func referenceFromLap(lap model.LapRecord, role model.ReferenceRole, perSegment map[string]model.SegmentReference) model.ReferenceLap {
	return model.ReferenceLap{
		Track:        lap.Track,
		Car:          lap.Car,
		Role:         role,
		LapTimeS:     lap.TotalTimeS,
		SectorTimesS: append([]float64{}, lap.SectorTimesS...),
		PerSegment:   perSegment,
	}
}

func rollingMedian(values []float64) float64 {
	sorted := append([]float64{}, values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
