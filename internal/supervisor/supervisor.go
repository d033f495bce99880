// Package supervisor implements the Process Supervisor (§2): constructs
// every component in dependency order, wires the data-flow graph
// (Simulator Adapter -> Fan-out -> analyzers -> Decision Engine ->
// Message Queue -> UI Transport), and propagates shutdown. Grounded on
// the teacher's top-level wiring in sims/example_integration.go and the
// Close()-propagation shape of strategy/manager.go.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/psybedev/coachtrace/internal/advice"
	"github.com/psybedev/coachtrace/internal/circuitbreaker"
	"github.com/psybedev/coachtrace/internal/coacherr"
	"github.com/psybedev/coachtrace/internal/config"
	contextbuilder "github.com/psybedev/coachtrace/internal/context"
	"github.com/psybedev/coachtrace/internal/decision"
	"github.com/psybedev/coachtrace/internal/fanout"
	"github.com/psybedev/coachtrace/internal/lapbuffer"
	"github.com/psybedev/coachtrace/internal/localcoach"
	"github.com/psybedev/coachtrace/internal/messagequeue"
	"github.com/psybedev/coachtrace/internal/micro"
	"github.com/psybedev/coachtrace/internal/mistaketracker"
	"github.com/psybedev/coachtrace/internal/model"
	"github.com/psybedev/coachtrace/internal/ratelimit"
	"github.com/psybedev/coachtrace/internal/refstore"
	"github.com/psybedev/coachtrace/internal/remotecoach"
	"github.com/psybedev/coachtrace/internal/segment"
	"github.com/psybedev/coachtrace/internal/sim"
	"github.com/psybedev/coachtrace/internal/trackstore"
	"github.com/psybedev/coachtrace/internal/uitransport"
	"github.com/psybedev/coachtrace/internal/validator"
	"github.com/rs/zerolog"
)

// GracePeriod is the §5 default shutdown grace period before a task is
// abandoned.
const GracePeriod = 2 * time.Second

// Supervisor owns every component's lifecycle for one simulator session.
type Supervisor struct {
	cfg *config.Config
	log zerolog.Logger

	fan         *fanout.Fanout
	poller      *sim.Poller
	validator   *validator.Validator
	lapMgr      *lapbuffer.Manager
	refStore    *refstore.Store
	trackStore  *trackstore.Store
	segAnalyzer *segment.Analyzer
	ctxBuilder  *contextbuilder.Builder
	microAn     *micro.Analyzer
	mistakes    *mistaketracker.Tracker
	coach       *localcoach.Coach
	decisionEng *decision.Engine
	remote      *remotecoach.Adapter
	queue       *messagequeue.Queue
	transport   *uitransport.Transport
	advice      *advice.Server
	health      *circuitbreaker.HealthMonitor

	sessionID string
	startedAt time.Time
	mode      string
	modeMu    sync.RWMutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Deps bundles the externally-supplied collaborators a Supervisor cannot
// construct itself (the live connector, optional remote client).
type Deps struct {
	Connector      sim.Connector
	RemoteClient   remotecoach.Client // nil disables remote enrichment
	TrackGenerator trackstore.RemoteGenerator
}

func New(cfg *config.Config, deps Deps, log zerolog.Logger) *Supervisor {
	health := circuitbreaker.NewHealthMonitor()
	health.Register("simulator", circuitbreaker.DefaultConfig(), circuitbreaker.DefaultRetryConfig())
	health.Register("remote_coach", circuitbreaker.DefaultConfig(), circuitbreaker.DefaultRetryConfig())

	refStore := refstore.New(cfg.PersistenceDir)
	trackStore := trackstore.New(cfg.PersistenceDir, cfg.TrackCacheTTL, deps.TrackGenerator, log)

	adapter := sim.NewAdapter(deps.Connector, log)
	poller := sim.NewPoller(adapter, telemetryInterval(cfg), sessionInterval(cfg), log)

	decisionLimiter := ratelimit.NewPerMinute(cfg.RateLimitPerMinRemote, cfg.RateLimitPerMinRemote)
	dispatchLimiter := ratelimit.New(cfg.DispatchPerWindow, cfg.DispatchBurst, cfg.DispatchWindow)

	var remote *remotecoach.Adapter
	if deps.RemoteClient != nil {
		remote = remotecoach.New(deps.RemoteClient, cfg.RequestTimeout, log)
	}

	mistakes := mistaketracker.New(cfg.MistakeEventLogCap)
	queue := messagequeue.New(cfg.QueueCapacity, dispatchLimiter)

	s := &Supervisor{
		cfg:         cfg,
		log:         log.With().Str("component", "supervisor").Logger(),
		fan:         fanout.New(),
		poller:      poller,
		validator:   validator.New(validator.DefaultLimits()),
		refStore:    refStore,
		trackStore:  trackStore,
		ctxBuilder:  contextbuilder.New(time.Duration(cfg.BufferDurationS) * time.Second),
		microAn:     micro.New(),
		mistakes:    mistakes,
		coach:       localcoach.New(time.Duration(cfg.MessageCooldownS) * time.Second),
		decisionEng: decision.New(decisionLimiter),
		remote:      remote,
		queue:       queue,
		health:      health,
		sessionID:   uuid.NewString(),
		startedAt:   time.Now(),
		mode:        cfg.CoachingMode,
	}
	s.transport = uitransport.New(s, s, s.queue, log)
	s.advice = advice.New(mistakes, s)
	return s
}

// SessionID implements advice.SessionInfo.
func (s *Supervisor) SessionID() string { return s.sessionID }

// StartedAt implements advice.SessionInfo.
func (s *Supervisor) StartedAt() time.Time { return s.startedAt }

// Advice exposes the Advice Query Interface handler for the process
// entrypoint to mount on an HTTP server.
func (s *Supervisor) Advice() *advice.Server { return s.advice }

func telemetryInterval(cfg *config.Config) time.Duration {
	if cfg.TelemetryPollHz <= 0 {
		return sim.DefaultTelemetryInterval
	}
	return time.Second / time.Duration(cfg.TelemetryPollHz)
}

func sessionInterval(cfg *config.Config) time.Duration {
	if cfg.SessionPollS <= 0 {
		return sim.DefaultSessionInterval
	}
	return time.Duration(cfg.SessionPollS) * time.Second
}

// Transport exposes the UI Transport handler for the process entrypoint
// to mount on an HTTP server.
func (s *Supervisor) Transport() *uitransport.Transport { return s.transport }

// Run starts every component's task and blocks until ctx is cancelled,
// then propagates shutdown within GracePeriod.
func (s *Supervisor) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.poller.OnTelemetry(s.handleTelemetry)
	s.poller.OnSession(s.handleSession)

	s.segAnalyzer = segment.New(nil, time.Duration(s.cfg.MessageCooldownS)*time.Second)

	s.lapMgr = lapbuffer.New("", "", s.cfg.SectorBoundariesFor(""), s.refStore, s.segAnalyzer)
	s.lapMgr.OnLapCompleted(s.handleLapCompleted)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.poller.Run(runCtx); err != nil {
			s.log.Warn().Err(err).Msg("poller exited")
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.dispatchLoop(runCtx)
	}()

	<-runCtx.Done()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(GracePeriod):
		s.log.Warn().Msg("shutdown grace period exceeded, abandoning remaining tasks")
	}
	return nil
}

// Shutdown requests a cooperative stop.
func (s *Supervisor) Shutdown() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Supervisor) handleTelemetry(sample model.TelemetrySample) {
	errs := s.validator.Validate(sample)
	for _, err := range errs {
		s.log.Debug().Err(err).Msg("telemetry validation issue, sanitizing")
	}
	sanitized := s.validator.Sanitize(sample)

	s.fan.PublishTelemetry(sanitized)
	s.ctxBuilder.Ingest(sanitized)
	if s.lapMgr != nil {
		s.lapMgr.Ingest(sanitized)
	}

	var delta *float64
	s.transport.BroadcastTelemetry(sanitized, delta)
}

func (s *Supervisor) handleSession(desc model.SessionDescriptor) {
	s.fan.PublishSession(desc)
	s.ctxBuilder.SetSession(desc)
	s.transport.BroadcastSession(desc)

	segs, err := s.trackStore.Segments(context.Background(), desc.TrackDisplayName)
	if err != nil {
		s.log.Debug().Err(err).Msg("track segment lookup failed")
	}
	s.segAnalyzer = segment.New(segs, time.Duration(s.cfg.MessageCooldownS)*time.Second)

	s.lapMgr = lapbuffer.New(desc.TrackDisplayName, desc.CarScreenName,
		s.cfg.SectorBoundariesFor(desc.TrackDisplayName), s.refStore, s.segAnalyzer)
	s.lapMgr.OnLapCompleted(s.handleLapCompleted)
}

func (s *Supervisor) handleLapCompleted(ev lapbuffer.LapCompletedEvent) {
	for _, insight := range ev.Insights {
		if ci := s.coach.FromSegmentInsight(insight); ci != nil {
			s.routeInsight(*ci)
		}
	}

	corners := cornersFrom(s.segAnalyzer)
	for _, corner := range corners {
		cornerSamples := samplesForCorner(ev.Lap.Samples, corner)
		if len(cornerSamples) == 0 {
			continue
		}
		ref := s.lapMgr.SegmentReference(corner.ID)
		ma := s.microAn.Analyze(corner.ID, corner, cornerSamples, ref)
		s.mistakes.Ingest(ma)
		if ci := s.coach.FromMicroAnalysis(ma); ci != nil {
			s.routeInsight(*ci)
		}
	}
}

func cornersFrom(a *segment.Analyzer) []model.TrackSegment {
	var corners []model.TrackSegment
	for _, seg := range a.Segments() {
		if seg.Kind == model.SegmentCorner {
			corners = append(corners, seg)
		}
	}
	return corners
}

func samplesForCorner(samples []model.TelemetrySample, seg model.TrackSegment) []model.TelemetrySample {
	var out []model.TelemetrySample
	for _, smp := range samples {
		if smp.LapDistPct >= seg.StartFrac && smp.LapDistPct < seg.EndFrac {
			out = append(out, smp)
		}
	}
	return out
}

func (s *Supervisor) routeInsight(insight model.CoachingInsight) {
	route := s.decisionEng.Decide(insight)
	if route == decision.RouteRemoteEnrich && s.remote != nil {
		go func() {
			snap := s.ctxBuilder.Snapshot(time.Now(), 5, 2, contextbuilder.ReferenceSummary{})
			enriched := s.remote.Enrich(context.Background(), insight, snap, s.Mode())
			insight.Text = enriched.Text
			s.queue.Enqueue(insight)
		}()
		return
	}
	s.queue.Enqueue(insight)
}

func (s *Supervisor) dispatchLoop(ctx context.Context) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if msg, ok := s.queue.Dispatch(); ok {
				s.transport.BroadcastCoaching(msg)
			}
		}
	}
}

// Status implements uitransport.StatusReporter.
func (s *Supervisor) Status() map[string]interface{} {
	return map[string]interface{}{
		"session_id":   s.sessionID,
		"mode":         s.Mode(),
		"health":       s.health.Snapshot(),
		"queue_depth":  s.queue.Len(),
		"remote_stats": s.decisionEng.Stats(),
	}
}

// SetMode implements uitransport.ModeSetter.
func (s *Supervisor) SetMode(mode string) error {
	switch mode {
	case "beginner", "intermediate", "advanced", "race":
		s.modeMu.Lock()
		s.mode = mode
		s.modeMu.Unlock()
		return nil
	default:
		return coacherr.New(coacherr.KindDataIntegrity, "supervisor.set_mode", "unknown coaching mode: "+mode)
	}
}

func (s *Supervisor) Mode() string {
	s.modeMu.RLock()
	defer s.modeMu.RUnlock()
	return s.mode
}
