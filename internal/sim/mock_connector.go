package sim

import (
	"context"
	"sync"

	"github.com/psybedev/coachtrace/internal/model"
)

// MockConnector replays a recorded sample slice, as required by the
// specification's §6.1 test contract. Safe for use in tests without a
// real simulator running.
type MockConnector struct {
	mu        sync.Mutex
	samples   []model.TelemetrySample
	session   *model.SessionDescriptor
	cursor    int
	connected bool
}

func NewMockConnector(samples []model.TelemetrySample, session *model.SessionDescriptor) *MockConnector {
	return &MockConnector{samples: samples, session: session}
}

func (m *MockConnector) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	return nil
}

func (m *MockConnector) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

func (m *MockConnector) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockConnector) Type() Type { return TypeMock }

// PollTelemetry returns the next recorded sample, or (nil, nil) once the
// recording is exhausted.
func (m *MockConnector) PollTelemetry(ctx context.Context) (*model.TelemetrySample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cursor >= len(m.samples) {
		return nil, nil
	}
	s := m.samples[m.cursor]
	m.cursor++
	return &s, nil
}

func (m *MockConnector) PollSession(ctx context.Context) (*model.SessionDescriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session, nil
}

// Reset rewinds the replay cursor to the beginning, useful for simulating
// a reconnect within a single test.
func (m *MockConnector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursor = 0
}
