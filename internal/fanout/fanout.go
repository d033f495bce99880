// Package fanout implements the Telemetry Fan-out: two independent
// multi-producer/multi-subscriber channels (high-frequency telemetry,
// low-frequency session metadata). Telemetry publishing never blocks the
// producer; session publishing never drops, and blocks the producer while
// a session subscriber's bounded buffer is full.
package fanout

import (
	"sync"

	"github.com/psybedev/coachtrace/internal/model"
)

const (
	// DefaultTelemetryQueueDepth is the per-subscriber buffer depth for
	// the telemetry channel (§5 resource policy: 256 per subscriber).
	DefaultTelemetryQueueDepth = 256
	// DefaultSessionQueueDepth is generous because session events are
	// rare and must never be dropped.
	DefaultSessionQueueDepth = 32
)

type telemetrySub struct {
	ch       chan model.TelemetrySample
	drops    int
	mu       sync.Mutex
}

type sessionSub struct {
	ch chan model.SessionDescriptor
}

// Fanout owns the active subscriber lists for both streams.
type Fanout struct {
	mu            sync.RWMutex
	telemetrySubs map[int]*telemetrySub
	sessionSubs   map[int]*sessionSub
	nextID        int
}

func New() *Fanout {
	return &Fanout{
		telemetrySubs: make(map[int]*telemetrySub),
		sessionSubs:   make(map[int]*sessionSub),
	}
}

// SubscribeTelemetry registers a bounded telemetry subscriber with
// drop-oldest-on-overflow semantics: real-time freshness beats
// completeness. Returns the channel and an unsubscribe func.
func (f *Fanout) SubscribeTelemetry() (<-chan model.TelemetrySample, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	sub := &telemetrySub{ch: make(chan model.TelemetrySample, DefaultTelemetryQueueDepth)}
	f.telemetrySubs[id] = sub

	unsub := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if s, ok := f.telemetrySubs[id]; ok {
			close(s.ch)
			delete(f.telemetrySubs, id)
		}
	}
	return sub.ch, unsub
}

// SubscribeSession registers a no-drop session subscriber whose buffer is
// bounded at DefaultSessionQueueDepth descriptors.
func (f *Fanout) SubscribeSession() (<-chan model.SessionDescriptor, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	sub := &sessionSub{ch: make(chan model.SessionDescriptor, DefaultSessionQueueDepth)}
	f.sessionSubs[id] = sub

	unsub := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if s, ok := f.sessionSubs[id]; ok {
			close(s.ch)
			delete(f.sessionSubs, id)
		}
	}
	return sub.ch, unsub
}

// PublishTelemetry delivers sample to every telemetry subscriber,
// dropping the oldest queued sample for any subscriber whose queue is
// full rather than blocking the producer.
func (f *Fanout) PublishTelemetry(sample model.TelemetrySample) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, sub := range f.telemetrySubs {
		select {
		case sub.ch <- sample:
		default:
			// drop-oldest: make room by discarding one queued sample, then retry once.
			select {
			case <-sub.ch:
				sub.mu.Lock()
				sub.drops++
				sub.mu.Unlock()
			default:
			}
			select {
			case sub.ch <- sample:
			default:
			}
		}
	}
}

// PublishSession delivers desc to every session subscriber without
// dropping. If a subscriber's buffer is full, the call blocks until that
// subscriber receives.
func (f *Fanout) PublishSession(desc model.SessionDescriptor) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, sub := range f.sessionSubs {
		select {
		case sub.ch <- desc:
		default:
			// buffer full despite the generous size: subscriber is stalled.
			// Wait for it to receive rather than silently drop a rare event.
			sub.ch <- desc
		}
	}
}

// TelemetrySubscriberCount reports active telemetry subscribers, for
// metrics.
func (f *Fanout) TelemetrySubscriberCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.telemetrySubs)
}
