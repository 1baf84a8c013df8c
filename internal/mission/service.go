package mission

import (
	"fmt"
	"log/slog"

	"github.com/Mithilesh5957/nidar/internal/model"
	"github.com/Mithilesh5957/nidar/internal/util"
)

// Transfer runs blocking mission handshakes. Implemented by Engine.
type Transfer interface {
	Download(vehicleID string) ([]model.MissionItem, error)
	Upload(vehicleID string, items []model.MissionItem) error
}

// Persistence is the storage the service records mission activity in.
type Persistence interface {
	CreateMission(vehicleID string, items []model.MissionItem, status string) (uint, error)
	SetMissionStatus(missionID uint, status string) error
	AppendMissionLog(missionID uint, step, details string) error
	DetectionCoordinate(detectionID uint) (model.Coordinate, error)
	ApproveDetection(detectionID, missionID uint) error
}

// PublishFunc forwards service events to the broadcast path.
type PublishFunc func(model.Event)

// Service exposes the mission operations the dashboard triggers.
type Service struct {
	transfer Transfer
	store    Persistence
	publish  PublishFunc
	logger   *slog.Logger
}

// NewService wires the mission operations together.
func NewService(transfer Transfer, store Persistence, publish PublishFunc, logger *slog.Logger) *Service {
	return &Service{transfer: transfer, store: store, publish: publish, logger: logger}
}

// RequestMission downloads the vehicle's current mission, records it, and
// broadcasts the plan.
func (s *Service) RequestMission(vehicleID string) ([]model.MissionItem, error) {
	items, err := s.transfer.Download(vehicleID)
	if err != nil {
		return nil, fmt.Errorf("requesting mission from %s: %w", vehicleID, err)
	}

	missionID, err := s.store.CreateMission(vehicleID, items, model.MissionStatusDownloaded)
	if err != nil {
		// The download succeeded; persistence trouble must not hide the plan.
		s.logger.Error("failed to record downloaded mission", "vehicle", vehicleID, "error", err)
	} else {
		_ = s.store.AppendMissionLog(missionID, "downloaded", fmt.Sprintf("%d items", len(items)))
	}

	s.publish(model.Event{
		Topic:     model.TopicMissionPlan,
		VehicleID: vehicleID,
		Ts:        util.NowMs(),
		Payload:   items,
	})
	return items, nil
}

// UploadMission validates and pushes a mission to the vehicle, records it,
// and broadcasts the result. Returns the stored mission id.
func (s *Service) UploadMission(vehicleID string, items []model.MissionItem) (uint, error) {
	if err := s.transfer.Upload(vehicleID, items); err != nil {
		return 0, fmt.Errorf("uploading mission to %s: %w", vehicleID, err)
	}

	missionID, err := s.store.CreateMission(vehicleID, items, model.MissionStatusUploaded)
	if err != nil {
		s.logger.Error("failed to record uploaded mission", "vehicle", vehicleID, "error", err)
	} else {
		_ = s.store.AppendMissionLog(missionID, "uploaded", fmt.Sprintf("%d items", len(items)))
	}

	s.publish(model.Event{
		Topic:     model.TopicMissionUploaded,
		VehicleID: vehicleID,
		Ts:        util.NowMs(),
		Payload:   items,
	})
	return missionID, nil
}

// ApproveAndDeliver approves a detection, synthesizes the delivery mission
// for its coordinate, and uploads it to the delivery vehicle.
func (s *Service) ApproveAndDeliver(detectionID uint, deliveryVehicleID string) (uint, error) {
	target, err := s.store.DetectionCoordinate(detectionID)
	if err != nil {
		return 0, fmt.Errorf("loading detection %d: %w", detectionID, err)
	}
	if err := model.ValidateCoordinate(target.Lat, target.Lon); err != nil {
		return 0, fmt.Errorf("detection %d: %w", detectionID, err)
	}

	items := NewDeliveryMission(target)
	missionID, err := s.UploadMission(deliveryVehicleID, items)
	if err != nil {
		return 0, err
	}

	if err := s.store.ApproveDetection(detectionID, missionID); err != nil {
		s.logger.Error("failed to mark detection approved", "detection", detectionID, "error", err)
	}

	s.publish(model.Event{
		Topic:     model.TopicDetectionApproved,
		VehicleID: deliveryVehicleID,
		Ts:        util.NowMs(),
		Payload: map[string]any{
			"detectionId": detectionID,
			"missionId":   missionID,
			"target":      target,
		},
	})
	s.logger.Info("delivery approved", "detection", detectionID, "mission", missionID, "vehicle", deliveryVehicleID)
	return missionID, nil
}
