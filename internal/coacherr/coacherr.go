// Package coacherr implements the error taxonomy from the coaching
// pipeline's error handling design: transient_io, data_integrity,
// invariant_violation, budget_exhausted, and fatal. The data path never
// propagates these as control flow; components classify and report them
// to an observability channel (the configured zerolog.Logger) instead.
package coacherr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Kind is one of the five error kinds named in the error handling design.
type Kind int

const (
	KindUnknown Kind = iota
	KindTransientIO
	KindDataIntegrity
	KindInvariantViolation
	KindBudgetExhausted
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindTransientIO:
		return "transient_io"
	case KindDataIntegrity:
		return "data_integrity"
	case KindInvariantViolation:
		return "invariant_violation"
	case KindBudgetExhausted:
		return "budget_exhausted"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// CoachError is a classified error carrying retry guidance and context.
type CoachError struct {
	Kind       Kind
	Code       string
	Message    string
	Cause      error
	Retryable  bool
	RetryAfter time.Duration
	Context    map[string]interface{}
	Timestamp  time.Time
}

func (e *CoachError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s [caused by: %v]", e.Kind, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Message)
}

func (e *CoachError) Unwrap() error { return e.Cause }

func (e *CoachError) IsRetryable() bool { return e.Retryable }

// GetRetryAfter returns the suggested delay before retrying, falling back
// to a kind-specific default when none was set explicitly.
func (e *CoachError) GetRetryAfter() time.Duration {
	if e.RetryAfter > 0 {
		return e.RetryAfter
	}
	switch e.Kind {
	case KindBudgetExhausted:
		return 60 * time.Second
	case KindTransientIO:
		return 1 * time.Second
	default:
		return 1 * time.Second
	}
}

// New constructs a CoachError of the given kind without classification.
func New(kind Kind, code, message string) *CoachError {
	return &CoachError{Kind: kind, Code: code, Message: message, Timestamp: time.Now()}
}

// Classifier inspects raw errors and produces a CoachError.
type Classifier struct{}

func NewClassifier() *Classifier { return &Classifier{} }

// Classify analyzes err and returns a CoachError with an appropriate kind.
// A nil err classifies to nil.
func (c *Classifier) Classify(err error, ctx map[string]interface{}) *CoachError {
	if err == nil {
		return nil
	}

	ce := &CoachError{
		Kind:      KindUnknown,
		Message:   err.Error(),
		Cause:     err,
		Context:   ctx,
		Timestamp: time.Now(),
	}

	if errors.Is(err, context.Canceled) {
		ce.Kind = KindTransientIO
		ce.Code = "CONTEXT_CANCELED"
		ce.Message = "operation was cancelled"
		return ce
	}
	if errors.Is(err, context.DeadlineExceeded) {
		ce.Kind = KindTransientIO
		ce.Code = "TIMEOUT"
		ce.Message = "operation timed out"
		ce.Retryable = true
		ce.RetryAfter = 5 * time.Second
		return ce
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		ce.Kind = KindTransientIO
		ce.Retryable = true
		ce.RetryAfter = 1 * time.Second
		if netErr.Timeout() {
			ce.Code = "NETWORK_TIMEOUT"
			ce.Message = "network request timed out"
		} else {
			ce.Code = "NETWORK_ERROR"
			ce.Message = "network connectivity issue"
		}
		return ce
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "quota") || strings.Contains(msg, "429"):
		ce.Kind = KindBudgetExhausted
		ce.Code = "BUDGET_EXHAUSTED"
		ce.Message = "remote budget exhausted"
		ce.Retryable = false
		return ce
	case strings.Contains(msg, "corrupt") || strings.Contains(msg, "quarantine"):
		ce.Kind = KindFatal
		ce.Code = "STORAGE_CORRUPT"
		ce.Retryable = false
		return ce
	case strings.Contains(msg, "invariant") || strings.Contains(msg, "sector sum") || strings.Contains(msg, "negative time"):
		ce.Kind = KindInvariantViolation
		ce.Code = "INVARIANT_VIOLATION"
		ce.Retryable = false
		return ce
	case strings.Contains(msg, "schema") || strings.Contains(msg, "out of range") || strings.Contains(msg, "non-monotonic") ||
		strings.Contains(msg, "unknown field") || strings.Contains(msg, "json") || strings.Contains(msg, "unmarshal"):
		ce.Kind = KindDataIntegrity
		ce.Code = "DATA_INTEGRITY"
		ce.Retryable = false
		return ce
	case strings.Contains(msg, "connection") || strings.Contains(msg, "eof") || strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "lock"):
		ce.Kind = KindTransientIO
		ce.Code = "TRANSIENT_IO"
		ce.Retryable = true
		ce.RetryAfter = 1 * time.Second
		return ce
	}

	return ce
}

// BackoffStrategy selects how retry delays grow across attempts.
type BackoffStrategy int

const (
	BackoffFixed BackoffStrategy = iota
	BackoffLinear
	BackoffExponential
	BackoffExponentialJitter
)

// RetryPolicy bounds attempts and computes backoff per kind.
type RetryPolicy struct {
	MaxAttempts     map[Kind]int
	BackoffStrategy BackoffStrategy
	RetryableKinds  map[Kind]bool
	// Now is overridable for deterministic tests; defaults to time.Now.
	Now func() time.Time
}

// DefaultRetryPolicy mirrors the simulator reconnect policy: bounded
// attempts, exponential backoff with jitter, base 1s cap 10s.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts: map[Kind]int{
			KindTransientIO: 5,
			KindUnknown:     1,
		},
		BackoffStrategy: BackoffExponentialJitter,
		RetryableKinds: map[Kind]bool{
			KindTransientIO:        true,
			KindDataIntegrity:      false,
			KindInvariantViolation: false,
			KindBudgetExhausted:    false,
			KindFatal:              false,
			KindUnknown:            false,
		},
		Now: time.Now,
	}
}

func (p *RetryPolicy) ShouldRetry(e *CoachError, attempt int) bool {
	if e == nil {
		return false
	}
	if !p.RetryableKinds[e.Kind] {
		return false
	}
	max, ok := p.MaxAttempts[e.Kind]
	if !ok {
		max = 1
	}
	return attempt < max
}

// CalculateBackoff computes the delay before the next attempt, capped at
// 10s per the specification's bounded-backoff contract.
func (p *RetryPolicy) CalculateBackoff(e *CoachError, attempt int, jitter func() float64) time.Duration {
	const cap = 10 * time.Second
	base := e.GetRetryAfter()
	var delay time.Duration
	switch p.BackoffStrategy {
	case BackoffFixed:
		delay = base
	case BackoffLinear:
		delay = base * time.Duration(attempt+1)
	case BackoffExponential, BackoffExponentialJitter:
		mult := 1 << uint(attempt)
		delay = base * time.Duration(mult)
		if p.BackoffStrategy == BackoffExponentialJitter {
			j := 0.5
			if jitter != nil {
				j = jitter()
			}
			delta := time.Duration(float64(delay) * 0.25 * (2*j - 1))
			delay += delta
		}
	}
	if delay > cap {
		delay = cap
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}

// Reporter accumulates error counts and recent history for observability.
type Reporter struct {
	counts  map[Kind]int
	recent  []*CoachError
	maxKept int
}

func NewReporter(maxKept int) *Reporter {
	return &Reporter{counts: make(map[Kind]int), recent: make([]*CoachError, 0, maxKept), maxKept: maxKept}
}

func (r *Reporter) Report(e *CoachError) {
	if e == nil {
		return
	}
	r.counts[e.Kind]++
	r.recent = append(r.recent, e)
	if len(r.recent) > r.maxKept {
		r.recent = r.recent[1:]
	}
}

func (r *Reporter) Stats() map[Kind]int {
	out := make(map[Kind]int, len(r.counts))
	for k, v := range r.counts {
		out[k] = v
	}
	return out
}

func (r *Reporter) Recent(limit int) []*CoachError {
	if limit <= 0 || limit > len(r.recent) {
		limit = len(r.recent)
	}
	start := len(r.recent) - limit
	out := make([]*CoachError, limit)
	copy(out, r.recent[start:])
	return out
}
