package coacherr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClassify_NilErrorReturnsNil(t *testing.T) {
	c := NewClassifier()
	require.Nil(t, c.Classify(nil, nil))
}

func TestClassify_ContextDeadlineIsRetryableTransientIO(t *testing.T) {
	c := NewClassifier()
	ce := c.Classify(context.DeadlineExceeded, nil)
	require.Equal(t, KindTransientIO, ce.Kind)
	require.True(t, ce.Retryable)
}

func TestClassify_RateLimitMessageMapsToBudgetExhausted(t *testing.T) {
	c := NewClassifier()
	ce := c.Classify(errors.New("429: rate limit exceeded"), nil)
	require.Equal(t, KindBudgetExhausted, ce.Kind)
	require.False(t, ce.Retryable)
}

func TestClassify_SchemaMessageMapsToDataIntegrity(t *testing.T) {
	c := NewClassifier()
	ce := c.Classify(errors.New("json unmarshal failed: out of range"), nil)
	require.Equal(t, KindDataIntegrity, ce.Kind)
}

func TestGetRetryAfter_DefaultsByKindWhenUnset(t *testing.T) {
	e := &CoachError{Kind: KindBudgetExhausted}
	require.Equal(t, 60*time.Second, e.GetRetryAfter())

	e2 := &CoachError{Kind: KindBudgetExhausted, RetryAfter: 5 * time.Second}
	require.Equal(t, 5*time.Second, e2.GetRetryAfter())
}

func TestShouldRetry_RespectsMaxAttemptsAndRetryableKinds(t *testing.T) {
	p := DefaultRetryPolicy()
	e := &CoachError{Kind: KindTransientIO}
	require.True(t, p.ShouldRetry(e, 0))
	require.False(t, p.ShouldRetry(e, 5))

	fatal := &CoachError{Kind: KindFatal}
	require.False(t, p.ShouldRetry(fatal, 0))
}

func TestCalculateBackoff_CapsAtTenSeconds(t *testing.T) {
	p := DefaultRetryPolicy()
	e := &CoachError{Kind: KindTransientIO, RetryAfter: 5 * time.Second}
	delay := p.CalculateBackoff(e, 10, func() float64 { return 0.5 })
	require.LessOrEqual(t, delay, 10*time.Second)
}

func TestReporter_TracksCountsAndBoundsRecent(t *testing.T) {
	r := NewReporter(2)
	r.Report(New(KindTransientIO, "a", "x"))
	r.Report(New(KindTransientIO, "b", "y"))
	r.Report(New(KindFatal, "c", "z"))

	stats := r.Stats()
	require.Equal(t, 2, stats[KindTransientIO])
	require.Equal(t, 1, stats[KindFatal])
	require.Len(t, r.Recent(10), 2)
}
