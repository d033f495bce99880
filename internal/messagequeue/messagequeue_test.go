package messagequeue

import (
	"testing"
	"time"

	"github.com/psybedev/coachtrace/internal/model"
	"github.com/psybedev/coachtrace/internal/ratelimit"
	"github.com/stretchr/testify/require"
)

func newQueue(capacity int) *Queue {
	return New(capacity, ratelimit.New(1000, 1000, time.Second))
}

func TestEnqueue_RejectsUnknownCategoryOrEmptyText(t *testing.T) {
	q := newQueue(0)
	require.False(t, q.Enqueue(model.CoachingInsight{Text: "", Category: model.CategoryBraking}))
	require.False(t, q.Enqueue(model.CoachingInsight{Text: "hi", Category: "unknown"}))
}

func TestEnqueue_AdmitsValidInsight(t *testing.T) {
	q := newQueue(0)
	ok := q.Enqueue(model.CoachingInsight{Text: "brake later", Category: model.CategoryBraking, Priority: 5})
	require.True(t, ok)
	require.Equal(t, 1, q.Len())
}

func TestEnqueue_DedupsRepeatedTextWithinWindow(t *testing.T) {
	q := newQueue(0)
	q.Enqueue(model.CoachingInsight{Text: "brake later", Category: model.CategoryBraking, Priority: 5})
	q.Dispatch()
	ok := q.Enqueue(model.CoachingInsight{Text: "brake later", Category: model.CategoryBraking, Priority: 5})
	require.False(t, ok)
}

func TestEnqueue_CriticalBypassesDedup(t *testing.T) {
	q := newQueue(0)
	q.Enqueue(model.CoachingInsight{Text: "spin risk", Category: model.CategorySafety, Priority: CriticalPriorityThreshold})
	q.Dispatch()
	ok := q.Enqueue(model.CoachingInsight{Text: "spin risk", Category: model.CategorySafety, Priority: CriticalPriorityThreshold})
	require.True(t, ok)
}

func TestAdmit_EvictsWorstWhenAtCapacity(t *testing.T) {
	q := newQueue(2)
	q.Enqueue(model.CoachingInsight{Text: "a", Category: model.CategoryBraking, Priority: 1})
	q.Enqueue(model.CoachingInsight{Text: "b", Category: model.CategoryCornering, Priority: 2})
	q.Enqueue(model.CoachingInsight{Text: "c", Category: model.CategoryFuel, Priority: 9})
	require.Equal(t, 2, q.Len())
}

func TestDispatch_PopsHighestPriorityFirst(t *testing.T) {
	q := newQueue(0)
	q.Enqueue(model.CoachingInsight{Text: "low", Category: model.CategoryBraking, Priority: 1})
	q.Enqueue(model.CoachingInsight{Text: "high", Category: model.CategoryCornering, Priority: 9})

	msg, ok := q.Dispatch()
	require.True(t, ok)
	require.Equal(t, "high", msg.Text)
}

func TestDispatch_EmptyQueueReturnsFalse(t *testing.T) {
	q := newQueue(0)
	_, ok := q.Dispatch()
	require.False(t, ok)
}

func TestHistory_ReturnsMostRecentDispatched(t *testing.T) {
	q := newQueue(0)
	q.Enqueue(model.CoachingInsight{Text: "a", Category: model.CategoryBraking, Priority: 1})
	q.Dispatch()
	hist := q.History(10)
	require.Len(t, hist, 1)
	require.Equal(t, "a", hist[0].Text)
}

func TestEnqueue_CombinesThrottleMessagesEachWithOwnTwoKeywords(t *testing.T) {
	q := newQueue(0)
	q.Enqueue(model.CoachingInsight{
		Text:     "Focus on getting the car rotated before getting back on the throttle.",
		Category: model.CategoryThrottle, Priority: 3, Confidence: 0.6,
	})
	q.Enqueue(model.CoachingInsight{
		Text:     "Wait longer before applying throttle in corners for better balance.",
		Category: model.CategoryThrottle, Priority: 5, Confidence: 0.8,
	})
	q.Enqueue(model.CoachingInsight{
		Text:     "Patience with throttle application will improve your corner exit speed.",
		Category: model.CategoryThrottle, Priority: 4, Confidence: 0.7,
	})

	require.Equal(t, 1, q.Len(), "the three messages should have folded into a single combined message")

	msg, ok := q.Dispatch()
	require.True(t, ok)
	require.Equal(t, 5, msg.Priority, "combined priority is the max of inputs")
	require.Contains(t, msg.Text, "throttle timing")
}

func TestDrain_ClearsPendingMessages(t *testing.T) {
	q := newQueue(0)
	q.Enqueue(model.CoachingInsight{Text: "a", Category: model.CategoryBraking, Priority: 1})
	q.Drain()
	require.Equal(t, 0, q.Len())
}
