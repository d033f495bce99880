// Package advice implements the Advice Query Interface (§4.16, §6.4):
// read-only, concurrency-safe HTTP endpoints aggregating views from the
// Mistake Tracker plus the session's id and start time; no endpoint reads
// Lap Buffer data. Served via net/http per a small router
// rather than a full web framework (see DESIGN.md for why echo was
// dropped).
package advice

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/psybedev/coachtrace/internal/mistaketracker"
	"github.com/psybedev/coachtrace/internal/model"
)

// SessionInfo supplies session-scoped facts the tracker itself does not
// hold (start time, id).
type SessionInfo interface {
	SessionID() string
	StartedAt() time.Time
}

// Server implements http.Handler for the §6.4 endpoints.
type Server struct {
	tracker *mistaketracker.Tracker
	session SessionInfo
	mux     *http.ServeMux
}

func New(tracker *mistaketracker.Tracker, session SessionInfo) *Server {
	s := &Server{tracker: tracker, session: session, mux: http.NewServeMux()}
	s.mux.HandleFunc("/advice/session_summary", s.handleSessionSummary)
	s.mux.HandleFunc("/advice/persistent_mistakes", s.handlePersistentMistakes)
	s.mux.HandleFunc("/advice/focus_areas", s.handleFocusAreas)
	s.mux.HandleFunc("/advice/recent_mistakes", s.handleRecentMistakes)
	s.mux.HandleFunc("/advice/corner/", s.handleCorner)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type sessionSummaryResponse struct {
	SessionID           string                     `json:"session_id"`
	DurationS           float64                    `json:"duration_s"`
	TotalMistakes       int                        `json:"total_mistakes"`
	TotalTimeLostS      float64                    `json:"total_time_lost_s"`
	SessionScore        float64                    `json:"session_score"`
	MostCommonMistakes  []model.MistakePattern     `json:"most_common_mistakes"`
	MostCostlyMistakes  []model.MistakePattern     `json:"most_costly_mistakes"`
	ImprovementAreas    []model.MistakePattern     `json:"improvement_areas"`
	Recommendations     []string                   `json:"recommendations"`
}

func (s *Server) handleSessionSummary(w http.ResponseWriter, r *http.Request) {
	sum := s.tracker.SessionSummary()

	duration := 0.0
	sid := ""
	if s.session != nil {
		duration = time.Since(s.session.StartedAt()).Seconds()
		sid = s.session.SessionID()
	}

	score := sessionScore(sum)

	resp := sessionSummaryResponse{
		SessionID:      sid,
		DurationS:      duration,
		TotalMistakes:  sum.TotalEvents,
		TotalTimeLostS: sum.TotalTimeLossS,
		SessionScore:   score,
		Recommendations: recommendationsFor(sum.TopFocusAreas),
	}
	if sum.MostFrequent != nil {
		resp.MostCommonMistakes = []model.MistakePattern{*sum.MostFrequent}
	}
	if sum.MostCostly != nil {
		resp.MostCostlyMistakes = []model.MistakePattern{*sum.MostCostly}
	}
	resp.ImprovementAreas = sum.TopFocusAreas

	writeJSON(w, resp)
}

func (s *Server) handlePersistentMistakes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.tracker.PersistentMistakes())
}

type focusAreasResponse struct {
	CriticalFocusAreas []model.MistakePattern `json:"critical_focus_areas"`
	HighPriorityAreas  []model.MistakePattern `json:"high_priority_areas"`
	SessionScore       float64                `json:"session_score"`
	TotalTimeLostS     float64                `json:"total_time_lost_s"`
	Recommendations    []string               `json:"recommendations"`
}

func (s *Server) handleFocusAreas(w http.ResponseWriter, r *http.Request) {
	patterns := s.tracker.PersistentMistakes()
	sum := s.tracker.SessionSummary()

	var critical, high []model.MistakePattern
	for _, p := range patterns {
		switch p.Priority {
		case model.PriorityCritical:
			critical = append(critical, p)
		case model.PriorityHigh:
			high = append(high, p)
		}
	}

	writeJSON(w, focusAreasResponse{
		CriticalFocusAreas: critical,
		HighPriorityAreas:  high,
		SessionScore:       sessionScore(sum),
		TotalTimeLostS:     sum.TotalTimeLossS,
		Recommendations:    recommendationsFor(patterns),
	})
}

func (s *Server) handleCorner(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/advice/corner/")
	if id == "" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, s.tracker.ByCorner(id))
}

func (s *Server) handleRecentMistakes(w http.ResponseWriter, r *http.Request) {
	windowS := 60.0
	if v := r.URL.Query().Get("window_s"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			windowS = parsed
		}
	}
	writeJSON(w, s.tracker.Recent(windowS))
}

// sessionScore collapses total time lost into a 0-1 score: every 0.1s
// lost per event reduces the score, floored at 0.
func sessionScore(sum mistaketracker.SessionSummary) float64 {
	if sum.TotalEvents == 0 {
		return 1.0
	}
	penalty := sum.TotalTimeLossS / float64(sum.TotalEvents) * 0.5
	score := 1.0 - penalty
	if score < 0 {
		score = 0
	}
	return score
}

func recommendationsFor(patterns []model.MistakePattern) []string {
	var out []string
	for _, p := range patterns {
		if len(out) >= 3 {
			break
		}
		out = append(out, "Focus on "+string(p.Type)+" at "+p.CornerID)
	}
	return out
}
