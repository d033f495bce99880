package trackstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/psybedev/coachtrace/internal/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	segs []model.TrackSegment
	err  error
	hits int
}

func (f *fakeGenerator) GenerateSegments(ctx context.Context, track string) ([]model.TrackSegment, error) {
	f.hits++
	return f.segs, f.err
}

func TestSegments_FallsThroughToRemoteGeneratorWhenDiskEmpty(t *testing.T) {
	gen := &fakeGenerator{segs: []model.TrackSegment{
		{ID: "t1", Kind: model.SegmentCorner, StartFrac: 0, EndFrac: 0.1},
	}}
	s := New(t.TempDir(), time.Hour, gen, zerolog.Nop())

	segs, err := s.Segments(context.Background(), "spa")
	require.NoError(t, err)
	require.Len(t, segs, 1)
	require.Equal(t, 1, gen.hits)
}

func TestSegments_FiltersInvalidSegmentsFromGenerator(t *testing.T) {
	gen := &fakeGenerator{segs: []model.TrackSegment{
		{ID: "bad", Kind: model.SegmentCorner, StartFrac: 0.5, EndFrac: 0.1},
		{ID: "good", Kind: model.SegmentStraight, StartFrac: 0, EndFrac: 0.5},
	}}
	s := New(t.TempDir(), time.Hour, gen, zerolog.Nop())

	segs, err := s.Segments(context.Background(), "monza")
	require.NoError(t, err)
	require.Len(t, segs, 1)
	require.Equal(t, "good", segs[0].ID)
}

func TestSegments_ReturnsNilWhenNoSourceAvailable(t *testing.T) {
	s := New(t.TempDir(), time.Hour, nil, zerolog.Nop())
	segs, err := s.Segments(context.Background(), "unknown")
	require.NoError(t, err)
	require.Nil(t, segs)
}

func TestSegments_CachesResultAcrossCalls(t *testing.T) {
	gen := &fakeGenerator{segs: []model.TrackSegment{
		{ID: "t1", Kind: model.SegmentCorner, StartFrac: 0, EndFrac: 0.1},
	}}
	s := New(t.TempDir(), time.Hour, gen, zerolog.Nop())

	_, err := s.Segments(context.Background(), "spa")
	require.NoError(t, err)
	_, err = s.Segments(context.Background(), "spa")
	require.NoError(t, err)
	require.Equal(t, 1, gen.hits, "second call should be served from memory, not regenerate")
}

func TestSegments_RemoteErrorFailsSoftToNil(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("boom")}
	s := New(t.TempDir(), time.Hour, gen, zerolog.Nop())
	segs, err := s.Segments(context.Background(), "spa")
	require.NoError(t, err)
	require.Nil(t, segs)
}
