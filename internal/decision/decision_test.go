package decision

import (
	"testing"
	"time"

	"github.com/psybedev/coachtrace/internal/model"
	"github.com/psybedev/coachtrace/internal/ratelimit"
	"github.com/stretchr/testify/require"
)

func TestDecide_HighConfidenceLowImportanceStaysLocal(t *testing.T) {
	e := New(ratelimit.NewPerMinute(5, 5))
	route := e.Decide(model.CoachingInsight{Confidence: 0.9, Importance: 0.3})
	require.Equal(t, RouteLocalOnly, route)
}

func TestDecide_HighImportanceRoutesRemoteWhenBudgetAvailable(t *testing.T) {
	e := New(ratelimit.NewPerMinute(5, 5))
	route := e.Decide(model.CoachingInsight{Confidence: 0.5, Importance: 0.8})
	require.Equal(t, RouteRemoteEnrich, route)
}

func TestDecide_FailsSoftToLocalWhenBudgetExhausted(t *testing.T) {
	e := New(ratelimit.New(60, 1, time.Minute))
	first := e.Decide(model.CoachingInsight{Confidence: 0.5, Importance: 0.8})
	second := e.Decide(model.CoachingInsight{Confidence: 0.5, Importance: 0.8})
	require.Equal(t, RouteRemoteEnrich, first)
	require.Equal(t, RouteLocalOnly, second)
}

func TestDecide_MidRangeStaysLocal(t *testing.T) {
	e := New(ratelimit.NewPerMinute(5, 5))
	route := e.Decide(model.CoachingInsight{Confidence: 0.65, Importance: 0.65})
	require.Equal(t, RouteLocalOnly, route)
}
