package localcoach

import (
	"testing"

	"github.com/psybedev/coachtrace/internal/model"
	"github.com/psybedev/coachtrace/internal/segment"
	"github.com/stretchr/testify/require"
)

func TestFromMicroAnalysis_NoPatternsReturnsNil(t *testing.T) {
	c := New(0)
	require.Nil(t, c.FromMicroAnalysis(model.MicroAnalysis{}))
}

func TestFromMicroAnalysis_ConvertsHighestPriorityPattern(t *testing.T) {
	c := New(0)
	ma := model.MicroAnalysis{
		CornerID:   "t1",
		Patterns:   []model.PatternTag{model.PatternLateApex},
		Confidence: map[model.PatternTag]float64{model.PatternLateApex: 0.7},
		Priority:   model.PriorityHigh,
	}
	insight := c.FromMicroAnalysis(ma)
	require.NotNil(t, insight)
	require.Equal(t, model.CategoryRacingLine, insight.Category)
	require.Equal(t, model.SourceLocalML, insight.Source)
	require.Equal(t, 7, insight.Priority)
}

func TestFromMicroAnalysis_CooldownSuppressesSameCategory(t *testing.T) {
	c := New(0) // default cooldown, nonzero
	ma := model.MicroAnalysis{
		CornerID:   "t1",
		Patterns:   []model.PatternTag{model.PatternLateApex},
		Confidence: map[model.PatternTag]float64{model.PatternLateApex: 0.7},
		Priority:   model.PriorityHigh,
	}
	first := c.FromMicroAnalysis(ma)
	second := c.FromMicroAnalysis(ma)
	require.NotNil(t, first)
	require.Nil(t, second)
}

func TestFromSegmentInsight_RespectsCooldown(t *testing.T) {
	c := New(0)
	si := segment.Insight{SegmentID: "s1", Category: model.CategoryThrottle, Text: "low throttle"}
	first := c.FromSegmentInsight(si)
	second := c.FromSegmentInsight(si)
	require.NotNil(t, first)
	require.Nil(t, second)
}

func TestConfidenceFor_IncreasesWithFrequencyUpToCap(t *testing.T) {
	ma := model.MicroAnalysis{Confidence: map[model.PatternTag]float64{model.PatternLateApex: 0.5}}
	low := confidenceFor(ma, model.PatternLateApex, 1)
	high := confidenceFor(ma, model.PatternLateApex, 50)
	require.Less(t, low, high)
	require.LessOrEqual(t, high, 1.0)
}
