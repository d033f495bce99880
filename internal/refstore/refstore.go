// Package refstore implements the Reference Lap Store (§4.5, §6.2):
// per-(track,car) JSON persistence with atomic write-temp+rename publish
// and quarantine-on-corrupt reads.
package refstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/psybedev/coachtrace/internal/coacherr"
	"github.com/psybedev/coachtrace/internal/model"
)

const formatVersion = 1

// document is the §6.2 on-disk schema. Unknown top-level keys (from a
// newer schema version written by a different build) are preserved
// across a read-modify-write cycle rather than silently dropped.
type document struct {
	Version int                        `json:"version"`
	Track   string                     `json:"track"`
	Car     string                     `json:"car"`
	Laps    map[string]lapPayload      `json:"laps"`
	Unknown map[string]json.RawMessage `json:"-"`
}

var documentFields = map[string]bool{"version": true, "track": true, "car": true, "laps": true}

func (d *document) UnmarshalJSON(data []byte) error {
	type alias document
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*d = document(a)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d.Unknown = make(map[string]json.RawMessage)
	for k, v := range raw {
		if !documentFields[k] {
			d.Unknown[k] = v
		}
	}
	return nil
}

func (d document) MarshalJSON() ([]byte, error) {
	type alias document
	base, err := json.Marshal(alias(d))
	if err != nil {
		return nil, err
	}
	if len(d.Unknown) == 0 {
		return base, nil
	}
	merged := make(map[string]json.RawMessage)
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range d.Unknown {
		merged[k] = v
	}
	return json.Marshal(merged)
}

type lapPayload struct {
	LapTime     float64                    `json:"lap_time"`
	SectorTimes []float64                  `json:"sector_times"`
	PerSegment  map[string]segmentPayload  `json:"per_segment"`
	SourceLap   string                     `json:"source_lap"`
	UpdatedAt   int64                      `json:"updated_at"`
}

type segmentPayload struct {
	EntrySpeedKmh   float64 `json:"entry_speed_kmh"`
	ApexSpeedKmh    float64 `json:"apex_speed_kmh"`
	ExitSpeedKmh    float64 `json:"exit_speed_kmh"`
	BrakePointS     float64 `json:"brake_point_s"`
	ThrottlePointS  float64 `json:"throttle_point_s"`
	ReferenceGear   int     `json:"reference_gear"`
	SteeringPeakRad float64 `json:"steering_peak_rad"`
	CornerTimeS     float64 `json:"corner_time_s"`
}

// Store persists ReferenceLaps under dir, one file per (track, car).
type Store struct {
	dir string
	mu  sync.Mutex
}

func New(dir string) *Store { return &Store{dir: dir} }

func (s *Store) path(track, car string) string {
	return filepath.Join(s.dir, sanitizeKey(track)+"__"+sanitizeKey(car)+".json")
}

func sanitizeKey(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// Load returns the reference laps on file for (track, car). A missing
// file is not an error: it returns an empty map. A corrupt file is
// quarantined (renamed aside) and treated as empty.
func (s *Store) Load(track, car string) (map[model.ReferenceRole]model.ReferenceLap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(track, car)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[model.ReferenceRole]model.ReferenceLap{}, nil
	}
	if err != nil {
		return nil, coacherr.New(coacherr.KindTransientIO, "refstore.read", err.Error())
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.quarantine(path)
		return map[model.ReferenceRole]model.ReferenceLap{}, nil
	}

	out := make(map[model.ReferenceRole]model.ReferenceLap, len(doc.Laps))
	for roleStr, payload := range doc.Laps {
		role := model.ReferenceRole(roleStr)
		segs := make(map[string]model.SegmentReference, len(payload.PerSegment))
		for id, sp := range payload.PerSegment {
			segs[id] = model.SegmentReference{
				EntrySpeedKmh:   sp.EntrySpeedKmh,
				ApexSpeedKmh:    sp.ApexSpeedKmh,
				ExitSpeedKmh:    sp.ExitSpeedKmh,
				BrakePointS:     sp.BrakePointS,
				ThrottlePointS:  sp.ThrottlePointS,
				ReferenceGear:   sp.ReferenceGear,
				SteeringPeakRad: sp.SteeringPeakRad,
				CornerTimeS:     sp.CornerTimeS,
			}
		}
		out[role] = model.ReferenceLap{
			Track:        track,
			Car:          car,
			Role:         role,
			LapTimeS:     payload.LapTime,
			SectorTimesS: payload.SectorTimes,
			PerSegment:   segs,
			SourceLapID:  payload.SourceLap,
			UpdatedAt:    time.Unix(payload.UpdatedAt, 0),
		}
	}
	return out, nil
}

// quarantine moves a corrupt file aside so a fresh store can be started;
// failures to quarantine are non-fatal (best effort).
func (s *Store) quarantine(path string) {
	_ = os.Rename(path, path+".corrupt."+fmt.Sprintf("%d", time.Now().UnixNano()))
}

// Save writes ref atomically into the (track, car) document named by its
// arguments (ref.Track and ref.Car are not consulted),
// preserving any unrelated roles already on file.
func (s *Store) Save(track, car string, ref model.ReferenceLap) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, _ := s.loadRaw(track, car)
	if existing.Laps == nil {
		existing.Laps = make(map[string]lapPayload)
	}
	existing.Version = formatVersion
	existing.Track = track
	existing.Car = car

	segs := make(map[string]segmentPayload, len(ref.PerSegment))
	for id, sr := range ref.PerSegment {
		segs[id] = segmentPayload{
			EntrySpeedKmh:   sr.EntrySpeedKmh,
			ApexSpeedKmh:    sr.ApexSpeedKmh,
			ExitSpeedKmh:    sr.ExitSpeedKmh,
			BrakePointS:     sr.BrakePointS,
			ThrottlePointS:  sr.ThrottlePointS,
			ReferenceGear:   sr.ReferenceGear,
			SteeringPeakRad: sr.SteeringPeakRad,
			CornerTimeS:     sr.CornerTimeS,
		}
	}
	existing.Laps[string(ref.Role)] = lapPayload{
		LapTime:     ref.LapTimeS,
		SectorTimes: ref.SectorTimesS,
		PerSegment:  segs,
		SourceLap:   ref.SourceLapID,
		UpdatedAt:   time.Now().Unix(),
	}

	return s.writeAtomic(s.path(track, car), existing)
}

func (s *Store) loadRaw(track, car string) (document, error) {
	path := s.path(track, car)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return document{Laps: make(map[string]lapPayload)}, nil
	}
	if err != nil {
		return document{Laps: make(map[string]lapPayload)}, err
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.quarantine(path)
		return document{Laps: make(map[string]lapPayload)}, nil
	}
	return doc, nil
}

func (s *Store) writeAtomic(path string, doc document) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return coacherr.New(coacherr.KindFatal, "refstore.mkdir", err.Error())
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return coacherr.New(coacherr.KindDataIntegrity, "refstore.marshal", err.Error())
	}

	tmp, err := os.CreateTemp(s.dir, ".refstore-*.tmp")
	if err != nil {
		return coacherr.New(coacherr.KindTransientIO, "refstore.createtemp", err.Error())
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return coacherr.New(coacherr.KindTransientIO, "refstore.write", err.Error())
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return coacherr.New(coacherr.KindTransientIO, "refstore.close", err.Error())
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return coacherr.New(coacherr.KindTransientIO, "refstore.rename", err.Error())
	}
	return nil
}

// List returns every (track, car) pair with a reference file on disk.
func (s *Store) List() ([][2]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, coacherr.New(coacherr.KindTransientIO, "refstore.list", err.Error())
	}
	var out [][2]string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		var doc document
		if err := json.Unmarshal(data, &doc); err != nil {
			continue
		}
		out = append(out, [2]string{doc.Track, doc.Car})
	}
	return out, nil
}
