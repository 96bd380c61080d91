package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stonecode/pickmyroute/server/internal/lib/navigation"
	"github.com/stonecode/pickmyroute/server/internal/lib/route"
)

type mockConn struct {
	mock.Mock
}

func (m *mockConn) Publish(subject string, data []byte) error {
	return m.Called(subject, data).Error(0)
}

func (m *mockConn) Drain() error { return m.Called().Error(0) }

func (m *mockConn) Close() { m.Called() }

type mockMetrics struct {
	mock.Mock
}

func (m *mockMetrics) NATSPublishedInc()              { m.Called() }
func (m *mockMetrics) NATSPublishErrInc()             { m.Called() }
func (m *mockMetrics) PublishObserve(d time.Duration) { m.Called(d) }
func (m *mockMetrics) NATSSetConnected(b bool)        { m.Called(b) }

func TestSubjectToken(t *testing.T) {
	assert.Equal(t, "abc", subjectToken("abc"))
	assert.Equal(t, "a_b_c_d", subjectToken(" a.b>c*d "))
	assert.Equal(t, "x_y", subjectToken("x/y"))
	assert.Equal(t, "_", subjectToken("  "))
}

func TestNewProgressMessage(t *testing.T) {
	step, leg := 3, 1
	remaining, total, off := 83.0, 1520.0, 52.5
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.FixedZone("PDT", -7*3600))

	msg := NewProgressMessage("s1", navigation.Progress{
		Navigating:           true,
		StepIndex:            &step,
		LegIndex:             &leg,
		RemainingMeters:      &remaining,
		RouteRemainingMeters: &total,
		Instruction:          "Turn left onto Elm St",
		Maneuver:             route.ManeuverTurnLeft,
		OffRoute:             true,
		OffRouteMeters:       &off,
	}, at)

	assert.Equal(t, "s1", msg.SessionID)
	assert.True(t, msg.Navigating)
	assert.Equal(t, time.UTC, msg.Timestamp.Location())
	assert.Equal(t, "turn-left", msg.Maneuver)
	assert.Equal(t, "85 m", msg.RemainingText)
	assert.Equal(t, 3, *msg.StepIndex)
	assert.Equal(t, 52.5, *msg.OffRouteMeters)

	empty := NewProgressMessage("s2", navigation.Progress{}, at)
	assert.False(t, empty.Navigating)
	assert.Empty(t, empty.RemainingText)
	assert.Nil(t, empty.StepIndex)
}

func TestNATSPublisher_Publish(t *testing.T) {
	nc := &mockConn{}
	m := &mockMetrics{}
	p := newPublisher(nc, Options{SubjectPrefix: "nav.progress."}, m)
	p.now = func() time.Time { return time.Unix(1700000000, 0) }

	var payload []byte
	nc.On("Publish", "nav.progress.session_1", mock.Anything).Run(func(args mock.Arguments) {
		payload = args.Get(1).([]byte)
	}).Return(nil).Once()
	m.On("PublishObserve", mock.AnythingOfType("time.Duration")).Return()
	m.On("NATSPublishedInc").Return().Once()

	step := 0
	err := p.Publish(context.Background(), "session.1", navigation.Progress{Navigating: true, StepIndex: &step})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, "session.1", decoded["sessionId"])
	assert.Equal(t, true, decoded["navigating"])
	assert.Equal(t, 0.0, decoded["stepIndex"])
	assert.Nil(t, decoded["remainingMeters"])
	assert.Equal(t, "unknown", decoded["maneuver"])

	nc.AssertExpectations(t)
	m.AssertExpectations(t)
}

func TestNATSPublisher_PublishError(t *testing.T) {
	nc := &mockConn{}
	m := &mockMetrics{}
	p := newPublisher(nc, Options{}, m)

	nc.On("Publish", "navigation.progress.s", mock.Anything).Return(errors.New("nats: connection closed"))
	m.On("PublishObserve", mock.AnythingOfType("time.Duration")).Return()
	m.On("NATSPublishErrInc").Return().Once()

	err := p.Publish(context.Background(), "s", navigation.Progress{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "navigation.progress.s")

	m.AssertExpectations(t)
}

func TestNATSPublisher_Close(t *testing.T) {
	nc := &mockConn{}
	nc.On("Drain").Return(nil).Once()
	nc.On("Close").Return().Once()

	newPublisher(nc, Options{}, nil).Close()
	nc.AssertExpectations(t)
}

func TestNewNATSPublisher_Unreachable(t *testing.T) {
	_, err := NewNATSPublisher(Options{URL: "nats://127.0.0.1:1", ClientName: "test"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to nats")
}

func TestConnEvents(t *testing.T) {
	m := &mockMetrics{}
	m.On("NATSSetConnected", false).Return().Twice()
	m.On("NATSSetConnected", true).Return().Once()

	events := connEvents{metrics: m}
	events.disconnected(errors.New("nats: stale connection"))
	events.reconnected()
	events.closed()
	m.AssertExpectations(t)

	assert.NotPanics(t, func() {
		noMetrics := connEvents{}
		noMetrics.disconnected(nil)
		noMetrics.reconnected()
		noMetrics.closed()
	})
}

func TestProgressMessage_StoppedSession(t *testing.T) {
	nc := &mockConn{}
	p := newPublisher(nc, Options{SubjectPrefix: "nav", LogSubjects: true}, nil)

	var payload []byte
	nc.On("Publish", "nav.s1", mock.Anything).Run(func(args mock.Arguments) {
		payload = args.Get(1).([]byte)
	}).Return(nil).Once()

	require.NoError(t, p.Publish(context.Background(), "s1", navigation.Progress{}))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, false, decoded["navigating"])
	nc.AssertExpectations(t)
}
