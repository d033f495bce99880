// Package trackstore implements the Track Metadata Store (§4.6): a
// three-tier lookup (in-memory, on-disk, optional remote) for a track's
// TrackSegments, with background refresh of stale in-memory entries
// grounded on the teacher's StrategyCache.GetWithRefresh shape.
package trackstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/psybedev/coachtrace/internal/model"
	"github.com/rs/zerolog"
)

// RemoteGenerator is the optional tier-3 source — typically backed by the
// Remote NL Coach Adapter's LLM client — producing TrackSegments for a
// track it has no local knowledge of.
type RemoteGenerator interface {
	GenerateSegments(ctx context.Context, track string) ([]model.TrackSegment, error)
}

type entry struct {
	segments  []model.TrackSegment
	fetchedAt time.Time
}

// Store is the three-tier Track Metadata Store.
type Store struct {
	mu    sync.RWMutex
	mem   map[string]entry
	dir   string
	ttl   time.Duration
	gen   RemoteGenerator
	log   zerolog.Logger
	refreshing map[string]bool
}

func New(dir string, ttl time.Duration, gen RemoteGenerator, log zerolog.Logger) *Store {
	return &Store{
		mem:        make(map[string]entry),
		dir:        dir,
		ttl:        ttl,
		gen:        gen,
		log:        log.With().Str("component", "trackstore").Logger(),
		refreshing: make(map[string]bool),
	}
}

// Segments resolves a track's segments through the three tiers. On a
// stale-but-present in-memory hit, a background refresh from disk is
// kicked off while the stale value is returned immediately, mirroring
// the teacher's GetWithRefresh rather than blocking the caller.
func (s *Store) Segments(ctx context.Context, track string) ([]model.TrackSegment, error) {
	s.mu.RLock()
	e, ok := s.mem[track]
	s.mu.RUnlock()

	if ok {
		if time.Since(e.fetchedAt) > s.ttl {
			go s.backgroundRefresh(track)
		}
		return e.segments, nil
	}

	if segs, err := s.loadFromDisk(track); err == nil && len(segs) > 0 {
		s.store(track, segs)
		return segs, nil
	}

	if s.gen != nil {
		segs, err := s.gen.GenerateSegments(ctx, track)
		if err == nil {
			valid := filterValid(segs)
			if len(valid) > 0 {
				s.store(track, valid)
				s.persistToDisk(track, valid)
				return valid, nil
			}
		}
		s.log.Warn().Err(err).Str("track", track).Msg("remote track segment generation failed")
	}

	// Fails soft: Segment Analyzer is expected to treat nil as a
	// degenerate single-segment track.
	return nil, nil
}

func (s *Store) backgroundRefresh(track string) {
	s.mu.Lock()
	if s.refreshing[track] {
		s.mu.Unlock()
		return
	}
	s.refreshing[track] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.refreshing, track)
		s.mu.Unlock()
	}()

	segs, err := s.loadFromDisk(track)
	if err != nil || len(segs) == 0 {
		return
	}
	s.store(track, segs)
}

func (s *Store) store(track string, segs []model.TrackSegment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mem[track] = entry{segments: segs, fetchedAt: time.Now()}
}

func (s *Store) diskPath(track string) string {
	return filepath.Join(s.dir, "tracks", sanitizeTrack(track)+".json")
}

func (s *Store) loadFromDisk(track string) ([]model.TrackSegment, error) {
	data, err := os.ReadFile(s.diskPath(track))
	if err != nil {
		return nil, err
	}
	var segs []model.TrackSegment
	if err := json.Unmarshal(data, &segs); err != nil {
		return nil, err
	}
	return filterValid(segs), nil
}

func (s *Store) persistToDisk(track string, segs []model.TrackSegment) {
	path := s.diskPath(track)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return
	}
	data, err := json.MarshalIndent(segs, "", "  ")
	if err != nil {
		return
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".trackstore-*.tmp")
	if err != nil {
		return
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return
	}
	tmp.Close()
	_ = os.Rename(tmpName, path)
}

// filterValid enforces the TrackSegment invariants before caching remote
// or on-disk output: fractions within [0,1], start < end, known kind.
func filterValid(segs []model.TrackSegment) []model.TrackSegment {
	var out []model.TrackSegment
	for _, seg := range segs {
		if seg.StartFrac < 0 || seg.EndFrac > 1 || seg.StartFrac >= seg.EndFrac {
			continue
		}
		switch seg.Kind {
		case model.SegmentCorner, model.SegmentStraight, model.SegmentChicane:
		default:
			continue
		}
		out = append(out, seg)
	}
	return out
}

func sanitizeTrack(track string) string {
	var b []byte
	for _, r := range track {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			b = append(b, byte(r))
		} else {
			b = append(b, '_')
		}
	}
	if len(b) == 0 {
		return "unknown"
	}
	return string(b)
}
