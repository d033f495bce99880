// Package localcoach implements the Local Heuristic Coach (§4.10):
// converts MicroAnalyses and Segment Analyzer insights into
// CoachingInsights, with per-category cooldowns, grounded on the
// teacher's RecommendationEngine rule-generation style.
package localcoach

import (
	"fmt"
	"sync"
	"time"

	"github.com/psybedev/coachtrace/internal/model"
	"github.com/psybedev/coachtrace/internal/segment"
)

// DefaultCooldown is the §4.10 default category-level cooldown.
const DefaultCooldown = 8 * time.Second

// Coach converts analyzer output into CoachingInsights.
type Coach struct {
	mu       sync.Mutex
	cooldown time.Duration
	lastSeen map[model.Category]time.Time
	recentFreq map[model.PatternTag]int
	now      func() time.Time
}

func New(cooldown time.Duration) *Coach {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Coach{
		cooldown:   cooldown,
		lastSeen:   make(map[model.Category]time.Time),
		recentFreq: make(map[model.PatternTag]int),
		now:        time.Now,
	}
}

// FromMicroAnalysis converts a MicroAnalysis into zero or one
// CoachingInsight (the feedback for the first pattern in ma.Patterns),
// subject to category cooldown.
func (c *Coach) FromMicroAnalysis(ma model.MicroAnalysis) *model.CoachingInsight {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(ma.Patterns) == 0 {
		return nil
	}

	pattern := ma.Patterns[0]
	cat := categoryFor(pattern)
	if !c.allow(cat) {
		return nil
	}

	c.recentFreq[pattern]++
	confidence := confidenceFor(ma, pattern, c.recentFreq[pattern])
	importance := importanceFor(ma)

	return &model.CoachingInsight{
		Text:       textFor(pattern, ma),
		Category:   cat,
		Priority:   priorityToInt(ma.Priority),
		Confidence: confidence,
		Importance: importance,
		Source:     model.SourceLocalML,
	}
}

// FromSegmentInsight converts a Segment Analyzer insight into a
// CoachingInsight, subject to category cooldown.
func (c *Coach) FromSegmentInsight(si segment.Insight) *model.CoachingInsight {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.allow(si.Category) {
		return nil
	}
	return &model.CoachingInsight{
		Text:       si.Text,
		Category:   si.Category,
		Priority:   4,
		Confidence: 0.6,
		Importance: 0.4,
		Source:     model.SourceLocalML,
	}
}

func (c *Coach) allow(cat model.Category) bool {
	now := c.now()
	if last, ok := c.lastSeen[cat]; ok && now.Sub(last) < c.cooldown {
		return false
	}
	c.lastSeen[cat] = now
	return true
}

func categoryFor(p model.PatternTag) model.Category {
	switch p {
	case model.PatternLateApex, model.PatternEarlyApex:
		return model.CategoryRacingLine
	case model.PatternOffThrottleOversteer, model.PatternUndersteer:
		return model.CategorySafety
	case model.PatternTrailBraking:
		return model.CategoryBraking
	case model.PatternEarlyThrottle, model.PatternLateThrottle:
		return model.CategoryThrottle
	case model.PatternInconsistentInputs:
		return model.CategoryConsistency
	default:
		return model.CategoryGeneral
	}
}

func textFor(p model.PatternTag, ma model.MicroAnalysis) string {
	switch p {
	case model.PatternLateApex:
		return fmt.Sprintf("You're hitting the apex late at %s, costing time on exit.", ma.CornerID)
	case model.PatternEarlyApex:
		return fmt.Sprintf("You're clipping the apex early at %s — try rotating the car later.", ma.CornerID)
	case model.PatternOffThrottleOversteer:
		return fmt.Sprintf("The rear steps out off-throttle at %s — ease off the brake more progressively.", ma.CornerID)
	case model.PatternUndersteer:
		return fmt.Sprintf("Significant understeer at %s — carry a touch less entry speed.", ma.CornerID)
	case model.PatternTrailBraking:
		return fmt.Sprintf("Good trail braking through %s — keep that up.", ma.CornerID)
	case model.PatternEarlyThrottle:
		return fmt.Sprintf("Throttle application at %s is early for the car's rotation.", ma.CornerID)
	case model.PatternLateThrottle:
		return fmt.Sprintf("You're leaving time on the table getting back to throttle at %s.", ma.CornerID)
	case model.PatternInconsistentInputs:
		return fmt.Sprintf("Inputs through %s are inconsistent lap to lap.", ma.CornerID)
	default:
		return fmt.Sprintf("Notable deviation from reference at %s.", ma.CornerID)
	}
}

// confidenceFor derives confidence from the analysis's own classifier
// confidence plus recent pattern frequency, per §4.10.
func confidenceFor(ma model.MicroAnalysis, p model.PatternTag, freq int) float64 {
	base := ma.Confidence[p]
	if base == 0 {
		base = 0.5
	}
	freqBoost := float64(freq) * 0.02
	if freqBoost > 0.2 {
		freqBoost = 0.2
	}
	c := base + freqBoost
	if c > 1 {
		c = 1
	}
	return c
}

func importanceFor(ma model.MicroAnalysis) float64 {
	switch ma.Priority {
	case model.PriorityCritical:
		return 0.95
	case model.PriorityHigh:
		return 0.75
	case model.PriorityMedium:
		return 0.5
	default:
		return 0.25
	}
}

func priorityToInt(p model.Priority) int {
	switch p {
	case model.PriorityCritical:
		return 9
	case model.PriorityHigh:
		return 7
	case model.PriorityMedium:
		return 5
	default:
		return 3
	}
}
