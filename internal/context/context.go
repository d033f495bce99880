// Package context implements the Enhanced Context Builder (§4.8): a
// fixed-duration ring buffer of telemetry samples plus recent classified
// events, exposed via snapshot() for the Remote NL Coach Adapter.
//
// Named "context" per the package-layout §D; callers should alias the
// import (e.g. ctxbuilder) to avoid colliding with the stdlib context
// package in the same file.
package context

import (
	"sync"
	"time"

	"github.com/psybedev/coachtrace/internal/model"
)

// DefaultBufferDuration matches §4.8's 30s default.
const DefaultBufferDuration = 30 * time.Second

// ClassifiedEvent is one entry in the recent-event history exposed in a
// snapshot (e.g. a MistakeEvent or lap/sector completion).
type ClassifiedEvent struct {
	Timestamp time.Time
	Kind      string
	Detail    string
}

// ReferenceSummary is the small reference comparison carried in a
// snapshot: best apex speed vs driver apex speed, sector delta.
type ReferenceSummary struct {
	BestApexSpeedKmh   float64
	DriverApexSpeedKmh float64
	SectorDeltaS       float64
}

// Snapshot is the fixed schema handed to the Remote NL Coach Adapter.
type Snapshot struct {
	EventTime   time.Time
	Session     model.SessionDescriptor
	Samples     []model.TelemetrySample
	Events      []ClassifiedEvent
	Reference   ReferenceSummary
}

// Builder maintains the ring buffer and event history.
type Builder struct {
	mu       sync.Mutex
	duration time.Duration
	session  model.SessionDescriptor
	samples  []model.TelemetrySample
	events   []ClassifiedEvent
	maxEvents int
}

func New(duration time.Duration) *Builder {
	if duration <= 0 {
		duration = DefaultBufferDuration
	}
	return &Builder{duration: duration, maxEvents: 50}
}

// SetSession replaces the session header used by snapshots.
func (b *Builder) SetSession(desc model.SessionDescriptor) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.session = desc
}

// Ingest appends a sample, evicting samples older than the buffer
// duration relative to the newest one.
func (b *Builder) Ingest(sample model.TelemetrySample) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples = append(b.samples, sample)
	cutoff := sample.Timestamp - b.duration.Seconds()
	i := 0
	for ; i < len(b.samples); i++ {
		if b.samples[i].Timestamp >= cutoff {
			break
		}
	}
	if i > 0 {
		b.samples = b.samples[i:]
	}
}

// RecordEvent appends a classified event, bounding the history to
// maxEvents (last N).
func (b *Builder) RecordEvent(e ClassifiedEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
	if len(b.events) > b.maxEvents {
		b.events = b.events[len(b.events)-b.maxEvents:]
	}
}

// Snapshot returns a structured view covering [t-preS, t+postS], where t
// is the Timestamp of the newest buffered sample; eventTime does not
// select the window and is only copied into the result's EventTime. The
// recent event history and reference summary are
// attached verbatim (reference summary is supplied by the caller, who
// has access to per-segment reference data the builder itself does not
// hold).
func (b *Builder) Snapshot(eventTime time.Time, preS, postS float64, ref ReferenceSummary) Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Samples carry connection-relative timestamps, not wall-clock; the
	// window is selected around the latest sample's own timestamp field,
	// which is how event times are keyed along the data path.
	lo, hi := windowBounds(b.samples, preS, postS)

	out := make([]model.TelemetrySample, len(b.samples[lo:hi]))
	copy(out, b.samples[lo:hi])

	events := make([]ClassifiedEvent, len(b.events))
	copy(events, b.events)

	return Snapshot{
		EventTime: eventTime,
		Session:   b.session,
		Samples:   out,
		Events:    events,
		Reference: ref,
	}
}

func windowBounds(samples []model.TelemetrySample, preS, postS float64) (int, int) {
	if len(samples) == 0 {
		return 0, 0
	}
	center := samples[len(samples)-1].Timestamp
	lo, hi := 0, len(samples)
	for i, s := range samples {
		if s.Timestamp >= center-preS {
			lo = i
			break
		}
	}
	for i := len(samples) - 1; i >= 0; i-- {
		if samples[i].Timestamp <= center+postS {
			hi = i + 1
			break
		}
	}
	if lo > hi {
		lo = hi
	}
	return lo, hi
}
