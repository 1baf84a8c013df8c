package wsserver

import (
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mithilesh5957/nidar/internal/model"
	"github.com/Mithilesh5957/nidar/internal/telemetry"
)

type fakeMissions struct {
	plan      []model.MissionItem
	planErr   error
	missionID uint
	uploadErr error

	approvedDetection uint
	approvedVehicle   string
}

func (f *fakeMissions) RequestMission(vehicleID string) ([]model.MissionItem, error) {
	return f.plan, f.planErr
}

func (f *fakeMissions) UploadMission(vehicleID string, items []model.MissionItem) (uint, error) {
	return f.missionID, f.uploadErr
}

func (f *fakeMissions) ApproveAndDeliver(detectionID uint, deliveryVehicleID string) (uint, error) {
	f.approvedDetection = detectionID
	f.approvedVehicle = deliveryVehicleID
	return f.missionID, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setup(t *testing.T) (*telemetry.Hub, *fakeMissions, *websocket.Conn) {
	t.Helper()

	hub := telemetry.NewHub(testLogger())
	t.Cleanup(hub.Close)
	missions := &fakeMissions{}

	srv := NewServer(":0", hub, missions, testLogger())
	ts := httptest.NewServer(srv.httpSrv.Handler)
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/scout"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return hub, missions, conn
}

func readMsg(t *testing.T, conn *websocket.Conn) outbound {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg outbound
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestClientReceivesHistoryThenLiveEvents(t *testing.T) {
	hub, _, conn := setup(t)

	// History precedes the connection in the hub.
	hub.Record("scout", model.TelemetrySample{Ts: 1, Lat: 28.6, Lon: 77.2, Alt: 10})

	// But the history snapshot is taken at connect time, so wait for it.
	msg := readMsg(t, conn)
	assert.Equal(t, "history", msg.Type)

	hub.Publish(model.Event{Topic: model.TopicTelemetry, VehicleID: "scout", Ts: 2,
		Payload: map[string]any{"lat": 28.7}})

	msg = readMsg(t, conn)
	require.Equal(t, "event", msg.Type)
	require.NotNil(t, msg.Event)
	assert.Equal(t, model.TopicTelemetry, msg.Event.Topic)
	assert.Equal(t, "scout", msg.Event.VehicleID)
}

func TestClientDoesNotSeeOtherVehicles(t *testing.T) {
	hub, _, conn := setup(t)
	readMsg(t, conn) // history

	hub.Publish(model.Event{Topic: model.TopicTelemetry, VehicleID: "delivery", Ts: 1})

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var msg outbound
	err := conn.ReadJSON(&msg)
	assert.Error(t, err, "event for another vehicle must not be delivered")
}

func TestFetchMissionCommand(t *testing.T) {
	_, missions, conn := setup(t)
	readMsg(t, conn) // history

	missions.plan = []model.MissionItem{{Seq: 0, Command: model.CmdNavWaypoint, X: 28.6, Y: 77.2, Z: 50}}

	require.NoError(t, conn.WriteJSON(command{Action: "fetch_mission"}))

	msg := readMsg(t, conn)
	require.Equal(t, "mission_plan", msg.Type)
	require.Len(t, msg.Items, 1)
	assert.Equal(t, uint16(model.CmdNavWaypoint), msg.Items[0].Command)
}

func TestFetchMissionErrorReply(t *testing.T) {
	_, missions, conn := setup(t)
	readMsg(t, conn)

	missions.planErr = errors.New("link unavailable")
	require.NoError(t, conn.WriteJSON(command{Action: "fetch_mission"}))

	msg := readMsg(t, conn)
	assert.Equal(t, "error", msg.Type)
	assert.Contains(t, msg.Error, "link unavailable")
}

func TestUploadMissionCommand(t *testing.T) {
	_, missions, conn := setup(t)
	readMsg(t, conn)

	missions.missionID = 12
	require.NoError(t, conn.WriteJSON(command{
		Action: "upload_mission",
		Items:  []model.MissionItem{{Seq: 0, Command: model.CmdNavTakeoff, Z: 60}},
	}))

	msg := readMsg(t, conn)
	assert.Equal(t, "mission_uploaded", msg.Type)
	assert.Equal(t, uint(12), msg.MissionID)
}

func TestApproveCommandTargetsDeliveryVehicle(t *testing.T) {
	_, missions, conn := setup(t)
	readMsg(t, conn)

	missions.missionID = 3
	require.NoError(t, conn.WriteJSON(command{Action: "approve", DetectionID: 7, Vehicle: "delivery"}))

	msg := readMsg(t, conn)
	assert.Equal(t, "delivery_approved", msg.Type)
	assert.Equal(t, uint(3), msg.MissionID)
	assert.Equal(t, uint(7), missions.approvedDetection)
	assert.Equal(t, "delivery", missions.approvedVehicle)
}

func TestUnknownActionGetsErrorReply(t *testing.T) {
	_, _, conn := setup(t)
	readMsg(t, conn)

	require.NoError(t, conn.WriteJSON(command{Action: "self_destruct"}))

	msg := readMsg(t, conn)
	assert.Equal(t, "error", msg.Type)
	assert.Contains(t, msg.Error, "unknown action")
}
