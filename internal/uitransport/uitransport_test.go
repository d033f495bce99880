package uitransport

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/psybedev/coachtrace/internal/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeStatus struct{ status map[string]interface{} }

func (f *fakeStatus) Status() map[string]interface{} { return f.status }

type fakeModes struct{ last string }

func (f *fakeModes) SetMode(mode string) error { f.last = mode; return nil }

type fakeHistory struct{ msgs []model.CoachingMessage }

func (f *fakeHistory) History(count int) []model.CoachingMessage {
	if count > len(f.msgs) {
		count = len(f.msgs)
	}
	return f.msgs[:count]
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(url, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	return conn
}

func TestBroadcastTelemetry_ReachesSubscriber(t *testing.T) {
	transport := New(&fakeStatus{}, &fakeModes{}, &fakeHistory{}, zerolog.Nop())
	srv := httptest.NewServer(transport)
	defer srv.Close()

	conn := dial(t, srv.URL)
	defer conn.Close()
	time.Sleep(20 * time.Millisecond)

	transport.BroadcastTelemetry(model.TelemetrySample{SpeedKmh: 123, LapNumber: 2}, nil)

	var frame Frame
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&frame))
	require.Equal(t, "telemetry", frame.Type)
}

func TestHandleRequest_GetStatusRoundTrips(t *testing.T) {
	status := &fakeStatus{status: map[string]interface{}{"mode": "race"}}
	transport := New(status, &fakeModes{}, &fakeHistory{}, zerolog.Nop())
	srv := httptest.NewServer(transport)
	defer srv.Close()

	conn := dial(t, srv.URL)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(Frame{Type: "get_status"}))

	var frame Frame
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&frame))
	require.Equal(t, "status", frame.Type)
}

func TestHandleRequest_SetModeInvokesModeSetter(t *testing.T) {
	modes := &fakeModes{}
	transport := New(&fakeStatus{}, modes, &fakeHistory{}, zerolog.Nop())
	srv := httptest.NewServer(transport)
	defer srv.Close()

	conn := dial(t, srv.URL)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(Frame{Type: "set_mode", Data: map[string]interface{}{"mode": "qualifying"}}))
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, "qualifying", modes.last)
}

func TestCoachingFrame_ConvertsConfidenceToPercent(t *testing.T) {
	f := coachingFrame(model.CoachingMessage{Text: "x", Confidence: 0.42})
	data := f.Data.(CoachingFrameData)
	require.InDelta(t, 42.0, data.Confidence, 0.001)
}
