// Package decision implements the Decision Engine (§4.11): per-insight
// local-vs-remote routing against confidence/importance thresholds and a
// token-bucket remote budget. Grounded on the teacher's
// StrategyManager.analysisWorker async-dispatch pattern, generalized
// from "always call remote" to "decide per insight".
package decision

import (
	"context"

	"github.com/psybedev/coachtrace/internal/model"
	"github.com/psybedev/coachtrace/internal/ratelimit"
)

// Route is the Decision Engine's verdict for one insight.
type Route int

const (
	RouteLocalOnly Route = iota
	RouteRemoteEnrich
)

// Engine applies the §4.11 thresholds.
type Engine struct {
	limiter *ratelimit.Limiter
}

// DefaultRemotePerMinute is the §4.11 default remote budget.
const DefaultRemotePerMinute = 5

func New(limiter *ratelimit.Limiter) *Engine {
	if limiter == nil {
		limiter = ratelimit.NewPerMinute(DefaultRemotePerMinute, DefaultRemotePerMinute)
	}
	return &Engine{limiter: limiter}
}

// Decide returns the route for insight. When the remote budget is
// exhausted it always returns RouteLocalOnly — the insight is passed
// through unchanged rather than blocked.
func (e *Engine) Decide(insight model.CoachingInsight) Route {
	if insight.Confidence >= 0.8 && insight.Importance < 0.7 {
		return RouteLocalOnly
	}
	if insight.Importance >= 0.7 || insight.Confidence < 0.6 {
		if e.limiter.Allow() {
			return RouteRemoteEnrich
		}
		return RouteLocalOnly
	}
	return RouteLocalOnly
}

// Wait blocks (bounded by ctx) for remote budget, for callers that want
// to enforce the bucket rather than fail open to local-only. The Decide
// path above never blocks the data path per §4.11/§4.12's contract;
// this is exposed for components (tests, batch re-analysis) that can
// tolerate waiting.
func (e *Engine) Wait(ctx context.Context) error {
	return e.limiter.Wait(ctx)
}

// Stats exposes the underlying limiter's bucket stats for status
// reporting.
func (e *Engine) Stats() ratelimit.Stats {
	return e.limiter.Stats()
}
