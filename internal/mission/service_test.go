package mission

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mithilesh5957/nidar/internal/link"
	"github.com/Mithilesh5957/nidar/internal/model"
)

type fakeTransfer struct {
	downloaded  []model.MissionItem
	downloadErr error
	uploadErr   error

	uploadedTo    string
	uploadedItems []model.MissionItem
}

func (f *fakeTransfer) Download(vehicleID string) ([]model.MissionItem, error) {
	return f.downloaded, f.downloadErr
}

func (f *fakeTransfer) Upload(vehicleID string, items []model.MissionItem) error {
	f.uploadedTo = vehicleID
	f.uploadedItems = items
	return f.uploadErr
}

type fakeStore struct {
	nextMissionID uint
	missions      map[uint]string // id -> status
	logs          []string
	detections    map[uint]model.Coordinate
	approved      map[uint]uint // detection -> mission
	createErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nextMissionID: 1,
		missions:      make(map[uint]string),
		detections:    make(map[uint]model.Coordinate),
		approved:      make(map[uint]uint),
	}
}

func (f *fakeStore) CreateMission(vehicleID string, items []model.MissionItem, status string) (uint, error) {
	if f.createErr != nil {
		return 0, f.createErr
	}
	id := f.nextMissionID
	f.nextMissionID++
	f.missions[id] = status
	return id, nil
}

func (f *fakeStore) SetMissionStatus(missionID uint, status string) error {
	f.missions[missionID] = status
	return nil
}

func (f *fakeStore) AppendMissionLog(missionID uint, step, details string) error {
	f.logs = append(f.logs, step)
	return nil
}

func (f *fakeStore) DetectionCoordinate(detectionID uint) (model.Coordinate, error) {
	if _, done := f.approved[detectionID]; done {
		return model.Coordinate{}, errors.New("already approved")
	}
	c, ok := f.detections[detectionID]
	if !ok {
		return model.Coordinate{}, errors.New("no such detection")
	}
	return c, nil
}

func (f *fakeStore) ApproveDetection(detectionID, missionID uint) error {
	f.approved[detectionID] = missionID
	return nil
}

func setupService() (*Service, *fakeTransfer, *fakeStore, *[]model.Event) {
	transfer := &fakeTransfer{}
	store := newFakeStore()
	events := &[]model.Event{}
	svc := NewService(transfer, store, func(e model.Event) {
		*events = append(*events, e)
	}, testLogger())
	return svc, transfer, store, events
}

func TestRequestMissionRecordsAndBroadcasts(t *testing.T) {
	svc, transfer, store, events := setupService()
	transfer.downloaded = sampleItems(3)

	items, err := svc.RequestMission("scout")
	require.NoError(t, err)
	assert.Len(t, items, 3)

	assert.Equal(t, model.MissionStatusDownloaded, store.missions[1])
	assert.Contains(t, store.logs, "downloaded")

	require.Len(t, *events, 1)
	assert.Equal(t, model.TopicMissionPlan, (*events)[0].Topic)
	assert.Equal(t, "scout", (*events)[0].VehicleID)
}

func TestRequestMissionTransferFailure(t *testing.T) {
	svc, transfer, store, events := setupService()
	transfer.downloadErr = link.ErrTimeout

	_, err := svc.RequestMission("scout")
	assert.ErrorIs(t, err, link.ErrTimeout)
	assert.Empty(t, store.missions)
	assert.Empty(t, *events)
}

func TestRequestMissionSurvivesStoreFailure(t *testing.T) {
	svc, transfer, store, events := setupService()
	transfer.downloaded = sampleItems(2)
	store.createErr = errors.New("db down")

	items, err := svc.RequestMission("scout")
	require.NoError(t, err, "persistence trouble must not hide the plan")
	assert.Len(t, items, 2)
	require.Len(t, *events, 1)
}

func TestUploadMissionRecordsAndBroadcasts(t *testing.T) {
	svc, transfer, store, events := setupService()
	items := sampleItems(4)

	missionID, err := svc.UploadMission("delivery", items)
	require.NoError(t, err)
	assert.Equal(t, uint(1), missionID)

	assert.Equal(t, "delivery", transfer.uploadedTo)
	assert.Len(t, transfer.uploadedItems, 4)
	assert.Equal(t, model.MissionStatusUploaded, store.missions[1])

	require.Len(t, *events, 1)
	assert.Equal(t, model.TopicMissionUploaded, (*events)[0].Topic)
}

func TestUploadMissionTransferFailure(t *testing.T) {
	svc, transfer, store, events := setupService()
	transfer.uploadErr = link.ErrProtocolViolation

	_, err := svc.UploadMission("delivery", sampleItems(1))
	assert.ErrorIs(t, err, link.ErrProtocolViolation)
	assert.Empty(t, store.missions)
	assert.Empty(t, *events)
}

func TestApproveAndDeliver(t *testing.T) {
	svc, transfer, store, events := setupService()
	store.detections[7] = model.Coordinate{Lat: 28.6139, Lon: 77.2090}

	missionID, err := svc.ApproveAndDeliver(7, "delivery")
	require.NoError(t, err)
	assert.Equal(t, uint(1), missionID)

	assert.Equal(t, "delivery", transfer.uploadedTo)
	require.Len(t, transfer.uploadedItems, 6)
	assert.Equal(t, uint16(model.CmdDoSetServo), transfer.uploadedItems[3].Command)

	assert.Equal(t, missionID, store.approved[7])

	var topics []string
	for _, e := range *events {
		topics = append(topics, e.Topic)
	}
	assert.Equal(t, []string{model.TopicMissionUploaded, model.TopicDetectionApproved}, topics)
}

func TestApproveAndDeliverRefusesDoubleApproval(t *testing.T) {
	svc, _, store, _ := setupService()
	store.detections[7] = model.Coordinate{Lat: 28.6, Lon: 77.2}

	_, err := svc.ApproveAndDeliver(7, "delivery")
	require.NoError(t, err)

	_, err = svc.ApproveAndDeliver(7, "delivery")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already approved")
}

func TestApproveAndDeliverUnknownDetection(t *testing.T) {
	svc, transfer, _, events := setupService()

	_, err := svc.ApproveAndDeliver(99, "delivery")
	require.Error(t, err)
	assert.Empty(t, transfer.uploadedTo)
	assert.Empty(t, *events)
}

func TestApproveAndDeliverUploadFailure(t *testing.T) {
	svc, transfer, store, _ := setupService()
	store.detections[7] = model.Coordinate{Lat: 28.6, Lon: 77.2}
	transfer.uploadErr = link.ErrLinkUnavailable

	_, err := svc.ApproveAndDeliver(7, "delivery")
	assert.ErrorIs(t, err, link.ErrLinkUnavailable)
	assert.Empty(t, store.approved)
}
