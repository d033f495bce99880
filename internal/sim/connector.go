// Package sim implements the Simulator Adapter: it polls a simulator for
// telemetry samples and session descriptors, normalizes units, and
// reconnects with bounded, jittered backoff on failure.
package sim

import (
	"context"
	"time"

	"github.com/psybedev/coachtrace/internal/circuitbreaker"
	"github.com/psybedev/coachtrace/internal/model"
	"github.com/rs/zerolog"
)

// Type identifies which simulator a Connector talks to.
type Type string

const (
	TypeIRacing Type = "iracing"
	TypeACC     Type = "acc"
	TypeMock    Type = "mock"
)

// Connector is the capability interface consumed by the Adapter: two
// operations that either return new data or report "no new data" via a
// nil return.
type Connector interface {
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool
	Type() Type

	PollTelemetry(ctx context.Context) (*model.TelemetrySample, error)
	PollSession(ctx context.Context) (*model.SessionDescriptor, error)
}

// Adapter owns one Connector's lifecycle, applying circuit-breaker
// protected reconnection with bounded backoff (base 1s, cap 10s,
// jittered) per §4.1.
type Adapter struct {
	connector Connector
	breaker   *circuitbreaker.Breaker
	retry     *circuitbreaker.RetryHandler
	log       zerolog.Logger
}

func NewAdapter(connector Connector, log zerolog.Logger) *Adapter {
	return &Adapter{
		connector: connector,
		breaker:   circuitbreaker.New(circuitbreaker.DefaultConfig()),
		retry:     circuitbreaker.NewRetryHandler(circuitbreaker.DefaultRetryConfig()),
		log:       log.With().Str("component", "sim_adapter").Str("sim_type", string(connector.Type())).Logger(),
	}
}

// Connect establishes the underlying connection under circuit-breaker and
// retry protection.
func (a *Adapter) Connect(ctx context.Context) error {
	err := a.breaker.Execute(func() error {
		return a.retry.Retry(ctx, func() error {
			return a.connector.Connect(ctx)
		})
	})
	if err != nil {
		a.log.Warn().Err(err).Msg("simulator connect failed")
	}
	return err
}

func (a *Adapter) Disconnect() error { return a.connector.Disconnect() }

func (a *Adapter) IsConnected() bool { return a.connector.IsConnected() }

// PollTelemetry fetches the next sample, reconnecting transparently on
// connection loss. Returns (nil, nil) when there is no new data.
func (a *Adapter) PollTelemetry(ctx context.Context) (*model.TelemetrySample, error) {
	if !a.connector.IsConnected() {
		if err := a.Connect(ctx); err != nil {
			return nil, err
		}
	}
	sample, err := a.connector.PollTelemetry(ctx)
	if err != nil {
		a.log.Debug().Err(err).Msg("telemetry poll failed")
		return nil, err
	}
	return sample, nil
}

func (a *Adapter) PollSession(ctx context.Context) (*model.SessionDescriptor, error) {
	if !a.connector.IsConnected() {
		if err := a.Connect(ctx); err != nil {
			return nil, err
		}
	}
	return a.connector.PollSession(ctx)
}

// DefaultTelemetryInterval is the specification's 60 Hz default.
const DefaultTelemetryInterval = time.Second / 60

// DefaultSessionInterval is the specification's 5s session poll default.
const DefaultSessionInterval = 5 * time.Second
