// Package mistaketracker implements the Mistake Tracker (§4.13):
// classifies MicroAnalyses into MistakeEvents, maintains per-(corner,
// type) pattern aggregates and trend, and serves read-only queries.
// Grounded on the teacher's aggregate-over-time accessor style in
// strategy/pit_calculator.go, using samber/lo for the grouping/sorting
// the teacher hand-rolls there.
package mistaketracker

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/psybedev/coachtrace/internal/model"
	"github.com/samber/lo"
)

const (
	// DefaultLogCap is the §4.13 default bounded event log size.
	DefaultLogCap = 10000
	trendWindow   = 600 * time.Second
)

// patternToMistake maps each classified pattern to exactly one type of the
// closed MistakeType set; a pattern with no entry (trail braking) yields
// no MistakeEvent.
var patternToMistake = map[model.PatternTag]model.MistakeType{
	model.PatternLateApex:             model.MistakeLateApex,
	model.PatternEarlyApex:            model.MistakeEarlyApex,
	model.PatternOffThrottleOversteer: model.MistakeOffThrottleOversteer,
	model.PatternUndersteer:           model.MistakeUndersteer,
	model.PatternEarlyThrottle:        model.MistakeEarlyThrottle,
	model.PatternLateThrottle:         model.MistakeLateThrottle,
	model.PatternInconsistentInputs:   model.MistakeInconsistentInputs,
}

// Tracker owns all mistake state; per §5 it is accessed via a single
// owning task that serializes mutations (the mutex here stands in for
// that single-task discipline when called from multiple goroutines).
type Tracker struct {
	mu       sync.Mutex
	log      []model.MistakeEvent
	logCap   int
	byCorner map[string]map[model.MistakeType]*model.MistakePattern
	now      func() time.Time
	newID    func() string
}

func New(logCap int) *Tracker {
	if logCap <= 0 {
		logCap = DefaultLogCap
	}
	return &Tracker{
		logCap:   logCap,
		byCorner: make(map[string]map[model.MistakeType]*model.MistakePattern),
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
}

// Ingest derives zero or more MistakeEvents from a MicroAnalysis and
// folds them into the pattern aggregates.
func (t *Tracker) Ingest(ma model.MicroAnalysis) []model.MistakeEvent {
	t.mu.Lock()
	defer t.mu.Unlock()

	var events []model.MistakeEvent
	for _, p := range ma.Patterns {
		mt, ok := patternToMistake[p]
		if !ok {
			continue
		}
		ev := model.MistakeEvent{
			ID:        t.newID(),
			Timestamp: ma.Timestamp,
			CornerID:  ma.CornerID,
			Type:      mt,
			Severity:  ma.Confidence[p],
			TimeLossS: ma.TotalTimeLossS,
			Context:   map[string]interface{}{"patterns": ma.Patterns},
		}
		events = append(events, ev)
		t.appendToLog(ev)
		t.updatePattern(ev)
	}

	if len(ma.Patterns) == 0 && ma.TotalTimeLossS > 0 {
		// no specific pattern classified, but time was still lost: log a
		// generic consistency mistake so the loss is not invisible to
		// session_summary().
		ev := model.MistakeEvent{
			ID:        t.newID(),
			Timestamp: ma.Timestamp,
			CornerID:  ma.CornerID,
			Type:      model.MistakeLapTimeVariance,
			Severity:  0.3,
			TimeLossS: ma.TotalTimeLossS,
		}
		events = append(events, ev)
		t.appendToLog(ev)
		t.updatePattern(ev)
	}

	return events
}

func (t *Tracker) appendToLog(ev model.MistakeEvent) {
	t.log = append(t.log, ev)
	if len(t.log) > t.logCap {
		t.log = t.log[len(t.log)-t.logCap:]
	}
}

func (t *Tracker) updatePattern(ev model.MistakeEvent) {
	byType, ok := t.byCorner[ev.CornerID]
	if !ok {
		byType = make(map[model.MistakeType]*model.MistakePattern)
		t.byCorner[ev.CornerID] = byType
	}
	p, ok := byType[ev.Type]
	if !ok {
		p = &model.MistakePattern{CornerID: ev.CornerID, Type: ev.Type}
		byType[ev.Type] = p
	}
	p.Frequency++
	p.TotalTimeLossS += ev.TimeLossS
	p.MeanTimeLossS = p.TotalTimeLossS / float64(p.Frequency)
	p.LastOccurrence = ev.Timestamp
	lastWindow, priorWindow := t.windowCounts(ev.CornerID, ev.Type)
	p.RecentFrequency = lastWindow
	p.Trend = trendFromCounts(lastWindow, priorWindow)
	p.Priority = priorityForPattern(*p)
	p.Description = describe(*p)
}

// windowCounts counts this (corner, type) pair's events in the last 600s
// and in the 600s before that, per §4.13's trend/recent-frequency basis.
func (t *Tracker) windowCounts(cornerID string, mt model.MistakeType) (lastWindow, priorWindow int) {
	now := t.now()
	for _, ev := range t.log {
		if ev.CornerID != cornerID || ev.Type != mt {
			continue
		}
		age := now.Sub(ev.Timestamp)
		switch {
		case age <= trendWindow:
			lastWindow++
		case age <= 2*trendWindow:
			priorWindow++
		}
	}
	return lastWindow, priorWindow
}

func trendFromCounts(lastWindow, priorWindow int) model.Trend {
	lastRate := float64(lastWindow) / (trendWindow.Minutes())
	priorRate := float64(priorWindow) / (trendWindow.Minutes())
	if priorRate == 0 {
		return model.TrendStable
	}
	switch {
	case lastRate < priorRate*0.8:
		return model.TrendImproving
	case lastRate > priorRate*1.2:
		return model.TrendWorsening
	default:
		return model.TrendStable
	}
}

func priorityForPattern(p model.MistakePattern) model.Priority {
	switch {
	case p.Frequency >= 5 && p.MeanTimeLossS >= 0.3:
		return model.PriorityCritical
	case p.Frequency >= 3 && p.MeanTimeLossS >= 0.2:
		return model.PriorityHigh
	case p.Frequency >= 2:
		return model.PriorityMedium
	default:
		return model.PriorityLow
	}
}

func describe(p model.MistakePattern) string {
	return string(p.Type) + " at " + p.CornerID
}

// SessionSummary is the §6.4 session_summary() response shape.
type SessionSummary struct {
	TotalEvents       int
	TotalTimeLossS    float64
	MostFrequent      *model.MistakePattern
	MostCostly        *model.MistakePattern
	TopFocusAreas     []model.MistakePattern
}

func (t *Tracker) SessionSummary() SessionSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	all := t.allPatternsLocked()
	summary := SessionSummary{TotalEvents: len(t.log)}
	for _, ev := range t.log {
		summary.TotalTimeLossS += ev.TimeLossS
	}
	if len(all) > 0 {
		mostFreq := lo.MaxBy(all, func(a, b model.MistakePattern) bool { return a.Frequency > b.Frequency })
		mostCostly := lo.MaxBy(all, func(a, b model.MistakePattern) bool { return a.TotalTimeLossS > b.TotalTimeLossS })
		summary.MostFrequent = &mostFreq
		summary.MostCostly = &mostCostly
	}
	summary.TopFocusAreas = t.persistentMistakesLocked()
	if len(summary.TopFocusAreas) > 5 {
		summary.TopFocusAreas = summary.TopFocusAreas[:5]
	}
	return summary
}

// PersistentMistakes returns patterns with frequency >= 2, sorted by
// (priority desc, total time loss desc).
func (t *Tracker) PersistentMistakes() []model.MistakePattern {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.persistentMistakesLocked()
}

func (t *Tracker) persistentMistakesLocked() []model.MistakePattern {
	all := lo.Filter(t.allPatternsLocked(), func(p model.MistakePattern, _ int) bool { return p.Frequency >= 2 })
	sort.Slice(all, func(i, j int) bool {
		pi, pj := priorityRank(all[i].Priority), priorityRank(all[j].Priority)
		if pi != pj {
			return pi > pj
		}
		return all[i].TotalTimeLossS > all[j].TotalTimeLossS
	})
	return all
}

func priorityRank(p model.Priority) int {
	switch p {
	case model.PriorityCritical:
		return 3
	case model.PriorityHigh:
		return 2
	case model.PriorityMedium:
		return 1
	default:
		return 0
	}
}

// Recent returns events within the trailing window.
func (t *Tracker) Recent(windowS float64) []model.MistakeEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	return lo.Filter(t.log, func(ev model.MistakeEvent, _ int) bool {
		return now.Sub(ev.Timestamp).Seconds() <= windowS
	})
}

// ByCorner returns the pattern list for the given corner.
func (t *Tracker) ByCorner(cornerID string) []model.MistakePattern {
	t.mu.Lock()
	defer t.mu.Unlock()
	byType, ok := t.byCorner[cornerID]
	if !ok {
		return nil
	}
	out := make([]model.MistakePattern, 0, len(byType))
	for _, p := range byType {
		out = append(out, *p)
	}
	return out
}

func (t *Tracker) allPatternsLocked() []model.MistakePattern {
	var out []model.MistakePattern
	for _, byType := range t.byCorner {
		for _, p := range byType {
			out = append(out, *p)
		}
	}
	return out
}
