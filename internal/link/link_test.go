package link

import (
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mithilesh5957/nidar/internal/config"
	"github.com/Mithilesh5957/nidar/internal/mavlink"
	"github.com/Mithilesh5957/nidar/internal/model"
)

func testLinkConfig() config.LinkConfig {
	return config.LinkConfig{
		HeartbeatTimeout: 2 * time.Second,
		ReadTimeout:      50 * time.Millisecond,
		RetryBackoff:     20 * time.Millisecond,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startTestLink(t *testing.T) (*Link, chan model.Event) {
	t.Helper()
	events := make(chan model.Event, 64)
	l := NewLink(
		config.VehicleConfig{ID: "scout", Name: "Scout", Listen: "127.0.0.1:0"},
		testLinkConfig(),
		testLogger(),
		func(e model.Event) { events <- e },
	)
	require.NoError(t, l.Start())
	t.Cleanup(l.Stop)
	return l, events
}

// dialVehicle connects into the slot the way an autopilot in the field would.
func dialVehicle(t *testing.T, l *Link) mavlink.Conn {
	t.Helper()
	nc, err := net.Dial("tcp", l.Addr())
	require.NoError(t, err)
	vc := mavlink.NewVehicleConn(nc, 1, 1)
	t.Cleanup(func() { vc.Close() })
	return vc
}

func waitEvent(t *testing.T, events chan model.Event, topic string) model.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-events:
			if e.Topic == topic {
				return e
			}
		case <-deadline:
			t.Fatalf("no %s event", topic)
		}
	}
}

func connectVehicle(t *testing.T, l *Link, events chan model.Event) mavlink.Conn {
	t.Helper()
	vc := dialVehicle(t, l)
	require.NoError(t, vc.WriteMessage(&mavlink.Heartbeat{Type: 2, SystemStatus: 4}))
	waitEvent(t, events, model.TopicHeartbeat)
	return vc
}

func TestLinkDiscoversVehicleAndClassifies(t *testing.T) {
	l, events := startTestLink(t)

	assert.Equal(t, "scout", l.ID())

	vc := connectVehicle(t, l, events)
	assert.Equal(t, model.LinkConnected, l.State())

	sysID, compID, ok := l.Identity()
	require.True(t, ok)
	assert.Equal(t, uint8(1), sysID)
	assert.Equal(t, uint8(1), compID)

	require.NoError(t, vc.WriteMessage(&mavlink.GlobalPositionInt{
		Lat:         mavlink.DegreesToE7(28.6139),
		Lon:         mavlink.DegreesToE7(77.2090),
		RelativeAlt: 60000,
	}))
	e := waitEvent(t, events, model.TopicTelemetry)
	sample, ok := e.Payload.(model.TelemetrySample)
	require.True(t, ok)
	assert.InDelta(t, 28.6139, sample.Lat, 1e-6)
	assert.InDelta(t, 77.2090, sample.Lon, 1e-6)
	assert.InDelta(t, 60.0, sample.Alt, 1e-9)

	require.NoError(t, vc.WriteMessage(&mavlink.SysStatus{BatteryRemaining: 87}))
	e = waitEvent(t, events, model.TopicBattery)
	assert.Equal(t, model.BatteryPayload{Remaining: 87}, e.Payload)

	require.NoError(t, vc.WriteMessage(&mavlink.StatusText{Severity: 6, Text: "Reached WP 3"}))
	e = waitEvent(t, events, model.TopicStatusText)
	assert.Equal(t, model.StatusTextPayload{Severity: 6, Text: "Reached WP 3"}, e.Payload)

	require.NoError(t, vc.WriteMessage(&mavlink.MissionCurrent{Seq: 3}))
	e = waitEvent(t, events, model.TopicMissionCurrent)
	assert.Equal(t, model.MissionCurrentPayload{Seq: 3}, e.Payload)
}

func TestLeaseRoutesExclusively(t *testing.T) {
	l, events := startTestLink(t)
	vc := connectVehicle(t, l, events)

	lease, err := l.Acquire(mavlink.MsgIDMissionCount)
	require.NoError(t, err)

	// Leased ids go to the holder; everything else still flows to the
	// classifier.
	require.NoError(t, vc.WriteMessage(&mavlink.MissionCount{Count: 5}))
	require.NoError(t, vc.WriteMessage(&mavlink.GlobalPositionInt{Lat: 1, Lon: 2}))

	frame, err := lease.Recv(time.Now().Add(2 * time.Second))
	require.NoError(t, err)
	mc, ok := frame.Message.(*mavlink.MissionCount)
	require.True(t, ok)
	assert.Equal(t, uint16(5), mc.Count)

	waitEvent(t, events, model.TopicTelemetry)

	// Only one lease at a time.
	_, err = l.Acquire(mavlink.MsgIDMissionAck)
	assert.ErrorIs(t, err, ErrLinkUnavailable)

	l.Release(lease)
	second, err := l.Acquire(mavlink.MsgIDMissionAck)
	require.NoError(t, err)
	l.Release(second)
}

func TestLeaseRecvTimeout(t *testing.T) {
	l, events := startTestLink(t)
	connectVehicle(t, l, events)

	lease, err := l.Acquire(mavlink.MsgIDMissionAck)
	require.NoError(t, err)
	defer l.Release(lease)

	_, err = lease.Recv(time.Now().Add(50 * time.Millisecond))
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestLeaseSendWritesToVehicle(t *testing.T) {
	l, events := startTestLink(t)
	vc := connectVehicle(t, l, events)

	lease, err := l.Acquire(mavlink.MsgIDMissionCount)
	require.NoError(t, err)
	defer l.Release(lease)

	require.NoError(t, lease.Send(&mavlink.MissionRequestList{TargetSystem: 1, TargetComponent: 1}))

	frame, err := vc.ReadMessage(time.Second)
	require.NoError(t, err)
	_, ok := frame.Message.(*mavlink.MissionRequestList)
	assert.True(t, ok)
	assert.Equal(t, mavlink.GCSSystemID, frame.SystemID)
}

func TestSecondConnectionRefusedWhileServing(t *testing.T) {
	l, events := startTestLink(t)
	connectVehicle(t, l, events)

	// A second vehicle connecting into an occupied slot is closed without
	// ever being read.
	nc, err := net.Dial("tcp", l.Addr())
	require.NoError(t, err)
	defer nc.Close()

	require.NoError(t, nc.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = nc.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)

	// The first session is untouched.
	assert.Equal(t, model.LinkConnected, l.State())
}

func TestDisconnectInvalidatesLeaseAndReconnects(t *testing.T) {
	l, events := startTestLink(t)
	vc := connectVehicle(t, l, events)

	lease, err := l.Acquire(mavlink.MsgIDMissionCount)
	require.NoError(t, err)

	vc.Close()
	waitEvent(t, events, model.TopicDisconnect)

	_, err = lease.Recv(time.Now().Add(2 * time.Second))
	assert.ErrorIs(t, err, ErrTransportFailure)
	l.Release(lease)

	// The slot keeps listening and rediscovers the vehicle when it
	// connects back in.
	vc2 := dialVehicle(t, l)
	require.NoError(t, vc2.WriteMessage(&mavlink.Heartbeat{Type: 2}))
	waitEvent(t, events, model.TopicHeartbeat)
	assert.Equal(t, model.LinkConnected, l.State())
}

func TestAcquireRequiresConnection(t *testing.T) {
	l := NewLink(
		config.VehicleConfig{ID: "scout", Listen: "127.0.0.1:0"},
		testLinkConfig(),
		testLogger(),
		func(model.Event) {},
	)

	_, err := l.Acquire(mavlink.MsgIDMissionCount)
	assert.ErrorIs(t, err, ErrLinkUnavailable)
}

func TestManagerValidation(t *testing.T) {
	lc := testLinkConfig()
	publish := func(model.Event) {}

	_, err := NewManager([]config.VehicleConfig{
		{ID: "scout", Listen: ":5762"},
		{ID: "scout", Listen: ":5772"},
	}, lc, testLogger(), publish)
	assert.ErrorContains(t, err, "duplicate vehicle id")

	_, err = NewManager([]config.VehicleConfig{{ID: "", Listen: ":5762"}}, lc, testLogger(), publish)
	assert.ErrorContains(t, err, "needs id and listen address")

	m, err := NewManager([]config.VehicleConfig{
		{ID: "scout", Listen: ":5762"},
		{ID: "delivery", Listen: ":5772"},
	}, lc, testLogger(), publish)
	require.NoError(t, err)

	_, err = m.Link("nobody")
	assert.ErrorIs(t, err, ErrLinkUnavailable)

	states := m.States()
	assert.Equal(t, model.LinkDisconnected, states["scout"])
	assert.Equal(t, model.LinkDisconnected, states["delivery"])
	assert.Equal(t, 0, m.ConnectedCount())
}

func TestManagerStartReleasesSlotsOnFailure(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	m, err := NewManager([]config.VehicleConfig{
		{ID: "scout", Listen: "127.0.0.1:0"},
		{ID: "delivery", Listen: taken.Addr().String()},
	}, testLinkConfig(), testLogger(), func(model.Event) {})
	require.NoError(t, err)

	err = m.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delivery")

	// The slot that did start was torn down again.
	scout, err := m.Link("scout")
	require.NoError(t, err)
	_, err = net.Dial("tcp", scout.Addr())
	assert.Error(t, err)
}
