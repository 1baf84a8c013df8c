package store

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm/clause"

	"github.com/Mithilesh5957/nidar/internal/config"
	"github.com/Mithilesh5957/nidar/internal/model"
	"github.com/Mithilesh5957/nidar/internal/util"
)

// SeedVehicles upserts one VehicleRecord per configured slot so the
// dashboard sees every vehicle before its first connection.
func (m *Manager) SeedVehicles(vehicles []config.VehicleConfig) error {
	for _, vc := range vehicles {
		rec := model.VehicleRecord{
			VehicleID:  vc.ID,
			Name:       vc.Name,
			ListenAddr: vc.Listen,
			Status:     model.LinkDisconnected.String(),
		}
		err := m.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "vehicle_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "listen_addr"}),
		}).Create(&rec).Error
		if err != nil {
			return fmt.Errorf("seeding vehicle %s: %w", vc.ID, err)
		}
	}
	m.logger.Info().Int("vehicles", len(vehicles)).Msg("vehicle slots seeded")
	return nil
}

// HandleEvent updates the vehicle row from a broadcast event. Registered as
// a dispatcher sink.
func (m *Manager) HandleEvent(e model.Event) error {
	updates := map[string]any{"last_seen": e.Ts}

	switch e.Topic {
	case model.TopicHeartbeat:
		if hb, ok := e.Payload.(model.HeartbeatPayload); ok {
			updates["system_id"] = hb.SystemID
			updates["comp_id"] = hb.ComponentID
		}
		updates["status"] = model.LinkConnected.String()

	case model.TopicTelemetry:
		sample, ok := e.Payload.(model.TelemetrySample)
		if !ok {
			return fmt.Errorf("telemetry event without sample payload")
		}
		updates["last_lat"] = sample.Lat
		updates["last_lon"] = sample.Lon
		updates["last_alt"] = sample.Alt

	case model.TopicBattery:
		if b, ok := e.Payload.(model.BatteryPayload); ok {
			updates["battery"] = b.Remaining
		}

	case model.TopicDisconnect:
		updates["status"] = model.LinkDisconnected.String()

	default:
		return nil
	}

	return m.db.Model(&model.VehicleRecord{}).
		Where("vehicle_id = ?", e.VehicleID).
		Updates(updates).Error
}

// Vehicles returns all vehicle rows.
func (m *Manager) Vehicles() ([]model.VehicleRecord, error) {
	var out []model.VehicleRecord
	err := m.db.Order("vehicle_id").Find(&out).Error
	return out, err
}

// SaveDetection records a detection uploaded by a scout vehicle.
func (m *Manager) SaveDetection(vehicleID string, lat, lon, confidence float64, imagePath string) (uint, error) {
	rec := model.DetectionRecord{
		VehicleID:  vehicleID,
		Lat:        util.Ptr(lat),
		Lon:        util.Ptr(lon),
		Confidence: util.Ptr(confidence),
		ImagePath:  imagePath,
		Ts:         util.NowMs(),
	}
	if err := m.db.Create(&rec).Error; err != nil {
		return 0, fmt.Errorf("saving detection: %w", err)
	}
	return rec.ID, nil
}

// PendingDetections returns detections awaiting approval, newest first.
func (m *Manager) PendingDetections() ([]model.DetectionRecord, error) {
	var out []model.DetectionRecord
	err := m.db.Where("approved = ?", false).Order("ts desc").Find(&out).Error
	return out, err
}

// DetectionCoordinate loads a detection's location for delivery planning.
// An already approved detection is refused so a target cannot be served
// twice.
func (m *Manager) DetectionCoordinate(detectionID uint) (model.Coordinate, error) {
	var rec model.DetectionRecord
	if err := m.db.First(&rec, detectionID).Error; err != nil {
		return model.Coordinate{}, fmt.Errorf("loading detection %d: %w", detectionID, err)
	}
	if rec.Approved {
		return model.Coordinate{}, fmt.Errorf("detection %d already approved", detectionID)
	}
	if rec.Lat == nil || rec.Lon == nil {
		return model.Coordinate{}, fmt.Errorf("detection %d has no coordinate", detectionID)
	}
	return model.Coordinate{Lat: *rec.Lat, Lon: *rec.Lon}, nil
}

// ApproveDetection marks a detection approved and links its delivery mission.
func (m *Manager) ApproveDetection(detectionID, missionID uint) error {
	res := m.db.Model(&model.DetectionRecord{}).
		Where("id = ?", detectionID).
		Updates(map[string]any{"approved": true, "mission_id": missionID})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("no detection with id %d", detectionID)
	}
	return nil
}

// CreateMission stores a mission with its items serialized as JSON.
func (m *Manager) CreateMission(vehicleID string, items []model.MissionItem, status string) (uint, error) {
	blob, err := json.Marshal(items)
	if err != nil {
		return 0, fmt.Errorf("encoding mission items: %w", err)
	}
	rec := model.MissionRecord{
		VehicleID: vehicleID,
		Items:     datatypes.JSON(blob),
		Status:    status,
		CreatedTs: util.NowMs(),
	}
	if err := m.db.Create(&rec).Error; err != nil {
		return 0, fmt.Errorf("saving mission: %w", err)
	}
	return rec.ID, nil
}

// MissionItems decodes a stored mission's items.
func (m *Manager) MissionItems(missionID uint) ([]model.MissionItem, error) {
	var rec model.MissionRecord
	if err := m.db.First(&rec, missionID).Error; err != nil {
		return nil, fmt.Errorf("loading mission %d: %w", missionID, err)
	}
	var items []model.MissionItem
	if err := json.Unmarshal(rec.Items, &items); err != nil {
		return nil, fmt.Errorf("decoding mission %d items: %w", missionID, err)
	}
	return items, nil
}

// SetMissionStatus advances a mission's lifecycle, stamping start and
// finish times.
func (m *Manager) SetMissionStatus(missionID uint, status string) error {
	updates := map[string]any{"status": status}
	switch status {
	case model.MissionStatusActive:
		updates["started_ts"] = util.NowMs()
	case model.MissionStatusCompleted, model.MissionStatusAborted:
		updates["finished_ts"] = util.NowMs()
	}

	res := m.db.Model(&model.MissionRecord{}).Where("id = ?", missionID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("no mission with id %d", missionID)
	}
	return nil
}

// AppendMissionLog records one step of a mission's execution history.
func (m *Manager) AppendMissionLog(missionID uint, step, details string) error {
	return m.db.Create(&model.MissionLogRecord{
		MissionID: missionID,
		Ts:        util.NowMs(),
		Step:      step,
		Details:   details,
	}).Error
}

// MissionLogs returns a mission's history, oldest first.
func (m *Manager) MissionLogs(missionID uint) ([]model.MissionLogRecord, error) {
	var out []model.MissionLogRecord
	err := m.db.Where("mission_id = ?", missionID).Order("ts").Find(&out).Error
	return out, err
}
