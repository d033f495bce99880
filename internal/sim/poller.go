package sim

import (
	"context"
	"time"

	"github.com/psybedev/coachtrace/internal/model"
	"github.com/rs/zerolog"
)

// TelemetrySink receives each successfully polled telemetry sample.
type TelemetrySink func(model.TelemetrySample)

// SessionSink receives each session descriptor change.
type SessionSink func(model.SessionDescriptor)

// Poller drives an Adapter on two independent tickers (telemetry at a high
// rate, session metadata at a low rate) and pushes results to sinks. It owns
// no downstream fan-out logic itself — that is the Telemetry Fan-out's job.
type Poller struct {
	adapter           *Adapter
	telemetryInterval time.Duration
	sessionInterval   time.Duration
	log               zerolog.Logger

	onTelemetry TelemetrySink
	onSession   SessionSink

	lastSession *model.SessionDescriptor
}

// NewPoller builds a Poller with the spec-default intervals
// (60Hz telemetry, 5s session). Intervals of zero fall back to the
// defaults.
func NewPoller(adapter *Adapter, telemetryInterval, sessionInterval time.Duration, log zerolog.Logger) *Poller {
	if telemetryInterval <= 0 {
		telemetryInterval = DefaultTelemetryInterval
	}
	if sessionInterval <= 0 {
		sessionInterval = DefaultSessionInterval
	}
	return &Poller{
		adapter:           adapter,
		telemetryInterval: telemetryInterval,
		sessionInterval:   sessionInterval,
		log:               log.With().Str("component", "sim.poller").Logger(),
	}
}

// OnTelemetry registers the sink invoked for every non-nil polled sample.
func (p *Poller) OnTelemetry(sink TelemetrySink) { p.onTelemetry = sink }

// OnSession registers the sink invoked whenever the session descriptor
// changes (by value).
func (p *Poller) OnSession(sink SessionSink) { p.onSession = sink }

// Run blocks, polling on both tickers until ctx is cancelled. Poll errors
// are logged and do not stop the loop — the underlying Adapter already
// retries/reconnects via its circuit breaker.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.adapter.Connect(ctx); err != nil {
		p.log.Warn().Err(err).Msg("initial connect failed, will retry on poll")
	}

	telemetryTicker := time.NewTicker(p.telemetryInterval)
	sessionTicker := time.NewTicker(p.sessionInterval)
	defer telemetryTicker.Stop()
	defer sessionTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return p.adapter.Disconnect()
		case <-telemetryTicker.C:
			p.pollTelemetry(ctx)
		case <-sessionTicker.C:
			p.pollSession(ctx)
		}
	}
}

func (p *Poller) pollTelemetry(ctx context.Context) {
	sample, err := p.adapter.PollTelemetry(ctx)
	if err != nil {
		p.log.Debug().Err(err).Msg("telemetry poll failed")
		return
	}
	if sample == nil {
		return
	}
	if p.onTelemetry != nil {
		p.onTelemetry(*sample)
	}
}

func (p *Poller) pollSession(ctx context.Context) {
	desc, err := p.adapter.PollSession(ctx)
	if err != nil {
		p.log.Debug().Err(err).Msg("session poll failed")
		return
	}
	if desc == nil {
		return
	}
	if p.lastSession != nil && *p.lastSession == *desc {
		return
	}
	d := *desc
	p.lastSession = &d
	if p.onSession != nil {
		p.onSession(*desc)
	}
}
