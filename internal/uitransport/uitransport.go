// Package uitransport implements the UI Transport (§4.15, §6.3): a
// duplex websocket stream delivering telemetry/session_info/coaching/
// history frames and accepting get_history/set_mode/get_status requests.
// gorilla/websocket is promoted here from a wails-transitive indirect
// dependency to direct use, since this pipeline's "UI" is the wire
// protocol itself.
package uitransport

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/psybedev/coachtrace/internal/circuitbreaker"
	"github.com/psybedev/coachtrace/internal/model"
	"github.com/rs/zerolog"
)

const telemetryQueueDepth = 256

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Frame is the self-describing envelope every message carries, per §6.3.
type Frame struct {
	Type      string      `json:"type"`
	Timestamp float64     `json:"timestamp"`
	ID        string      `json:"id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Messages  []Frame     `json:"messages,omitempty"`
}

// TelemetryFrameData is the §6.3 reduced per-sample projection.
type TelemetryFrameData struct {
	Speed          float64  `json:"speed"`
	RPM            float64  `json:"rpm"`
	Gear           int      `json:"gear"`
	Throttle       float64  `json:"throttle"`
	Brake          float64  `json:"brake"`
	Steering       float64  `json:"steering"`
	Lap            int      `json:"lap"`
	LapDistancePct float64  `json:"lap_distance_pct"`
	FuelLevel      float64  `json:"fuel_level"`
	DeltaToBest    *float64 `json:"delta_to_best,omitempty"`
	OnPitRoad      bool     `json:"on_pit_road"`
}

// CoachingFrameData is the §6.3 coaching payload.
type CoachingFrameData struct {
	Message               string                  `json:"message"`
	Category              model.Category          `json:"category"`
	Priority              int                     `json:"priority"`
	Confidence            float64                 `json:"confidence"`
	SecondaryMessages     []model.SecondaryMessage `json:"secondary_messages,omitempty"`
	ImprovementPotential  *float64                `json:"improvement_potential,omitempty"`
	Audio                 []byte                  `json:"audio,omitempty"`
}

// StatusReporter supplies the get_status() response; implemented by the
// Process Supervisor, which aggregates circuitbreaker.HealthMonitor
// snapshots and queue depths.
type StatusReporter interface {
	Status() map[string]interface{}
}

// ModeSetter applies a UI-requested coaching mode change.
type ModeSetter interface {
	SetMode(mode string) error
}

// HistoryProvider returns the last count dispatched coaching messages.
type HistoryProvider interface {
	History(count int) []model.CoachingMessage
}

type subscriber struct {
	conn      *websocket.Conn
	telemetry chan Frame
	coaching  chan Frame
	done      chan struct{}
	writeMu   sync.Mutex
}

// Transport owns all active UI subscribers.
type Transport struct {
	mu          sync.RWMutex
	subs        map[*subscriber]struct{}
	status      StatusReporter
	modes       ModeSetter
	history     HistoryProvider
	log         zerolog.Logger
	healthMon   *circuitbreaker.HealthMonitor
}

func New(status StatusReporter, modes ModeSetter, history HistoryProvider, log zerolog.Logger) *Transport {
	return &Transport{
		subs:    make(map[*subscriber]struct{}),
		status:  status,
		modes:   modes,
		history: history,
		log:     log.With().Str("component", "uitransport").Logger(),
	}
}

// ServeHTTP upgrades the connection and runs the subscriber's read/write
// loops until it disconnects.
func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	sub := &subscriber{
		conn:      conn,
		telemetry: make(chan Frame, telemetryQueueDepth),
		coaching:  make(chan Frame, telemetryQueueDepth),
		done:      make(chan struct{}),
	}

	t.mu.Lock()
	t.subs[sub] = struct{}{}
	t.mu.Unlock()

	go t.writeLoop(sub)
	t.readLoop(sub)

	t.mu.Lock()
	delete(t.subs, sub)
	t.mu.Unlock()
	close(sub.done)
	conn.Close()
}

func (t *Transport) writeLoop(sub *subscriber) {
	for {
		select {
		case <-sub.done:
			return
		case f := <-sub.telemetry:
			t.send(sub, f)
		case f := <-sub.coaching:
			t.send(sub, f)
		}
	}
}

func (t *Transport) send(sub *subscriber, f Frame) {
	sub.writeMu.Lock()
	defer sub.writeMu.Unlock()
	_ = sub.conn.WriteJSON(f)
}

func (t *Transport) readLoop(sub *subscriber) {
	for {
		var req Frame
		if err := sub.conn.ReadJSON(&req); err != nil {
			return
		}
		t.handleRequest(sub, req)
	}
}

func (t *Transport) handleRequest(sub *subscriber, req Frame) {
	switch req.Type {
	case "get_history":
		count := 20
		if data, ok := req.Data.(map[string]interface{}); ok {
			if c, ok := data["count"].(float64); ok {
				count = int(c)
			}
		}
		var msgs []model.CoachingMessage
		if t.history != nil {
			msgs = t.history.History(count)
		}
		frames := make([]Frame, len(msgs))
		for i, m := range msgs {
			frames[i] = coachingFrame(m)
		}
		t.send(sub, Frame{Type: "history", Timestamp: nowEpoch(), Messages: frames})
	case "set_mode":
		if data, ok := req.Data.(map[string]interface{}); ok {
			if mode, ok := data["mode"].(string); ok && t.modes != nil {
				_ = t.modes.SetMode(mode)
			}
		}
	case "get_status":
		var status map[string]interface{}
		if t.status != nil {
			status = t.status.Status()
		}
		t.send(sub, Frame{Type: "status", Timestamp: nowEpoch(), Data: status})
	}
}

// BroadcastTelemetry delivers a reduced telemetry projection to every
// subscriber, dropping the oldest queued frame on overflow (per §5,
// telemetry frames are drop-oldest).
func (t *Transport) BroadcastTelemetry(sample model.TelemetrySample, deltaToBest *float64) {
	data := TelemetryFrameData{
		Speed: sample.SpeedKmh, RPM: sample.RPM, Gear: sample.Gear,
		Throttle: sample.Throttle, Brake: sample.Brake, Steering: sample.SteeringRad,
		Lap: sample.LapNumber, LapDistancePct: sample.LapDistPct, FuelLevel: sample.FuelLevelL,
		DeltaToBest: deltaToBest, OnPitRoad: sample.OnPitRoad,
	}
	frame := Frame{Type: "telemetry", Timestamp: sample.Timestamp, Data: data}

	t.mu.RLock()
	defer t.mu.RUnlock()
	for sub := range t.subs {
		select {
		case sub.telemetry <- frame:
		default:
			select {
			case <-sub.telemetry:
			default:
			}
			select {
			case sub.telemetry <- frame:
			default:
			}
		}
	}
}

// BroadcastSession delivers a session_info frame without dropping (rare
// events per §4.2/§5).
func (t *Transport) BroadcastSession(desc model.SessionDescriptor) {
	frame := Frame{Type: "session_info", Timestamp: nowEpoch(), Data: desc}
	t.mu.RLock()
	defer t.mu.RUnlock()
	for sub := range t.subs {
		sub.coaching <- frame
	}
}

// BroadcastCoaching delivers a dispatched coaching message; no-drop per
// §5's ordering guarantee (coaching messages never drop silently).
func (t *Transport) BroadcastCoaching(msg model.CoachingMessage) {
	frame := coachingFrame(msg)
	t.mu.RLock()
	defer t.mu.RUnlock()
	for sub := range t.subs {
		sub.coaching <- frame
	}
}

func coachingFrame(msg model.CoachingMessage) Frame {
	return Frame{
		Type:      "coaching",
		ID:        msg.ID,
		Timestamp: float64(msg.Timestamp.Unix()),
		Data: CoachingFrameData{
			Message: msg.Text, Category: msg.Category, Priority: msg.Priority,
			Confidence: msg.Confidence * 100, SecondaryMessages: msg.Secondary,
			ImprovementPotential: msg.ImprovementPotentialS, Audio: msg.Audio,
		},
	}
}

func nowEpoch() float64 { return float64(time.Now().UnixNano()) / 1e9 }
