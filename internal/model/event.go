package model

// Broadcast topics published by the link manager and mission service.
const (
	TopicHeartbeat         = "heartbeat"
	TopicTelemetry         = "telemetry"
	TopicStatusText        = "statustext"
	TopicMissionCurrent    = "mission_current"
	TopicBattery           = "battery"
	TopicDisconnect        = "disconnect"
	TopicMissionPlan       = "mission_plan"
	TopicMissionUploaded   = "mission_uploaded"
	TopicDetection         = "detection"
	TopicDetectionApproved = "detection_approved"
)

// Event is the envelope delivered to every subscriber of a vehicle's
// broadcast stream and forwarded verbatim to outward sinks.
type Event struct {
	Topic     string `json:"topic"`
	VehicleID string `json:"vehicleId"`
	Ts        int64  `json:"ts"` // ms since epoch
	Payload   any    `json:"payload,omitempty"`
}

// StatusTextPayload carries a free-text status message from the vehicle.
type StatusTextPayload struct {
	Severity uint8  `json:"severity"`
	Text     string `json:"text"`
}

// HeartbeatPayload carries the identity discovered from the first heartbeat.
type HeartbeatPayload struct {
	SystemID    uint8 `json:"sysid"`
	ComponentID uint8 `json:"compid"`
}

// MissionCurrentPayload reports the item index the vehicle is executing.
type MissionCurrentPayload struct {
	Seq uint16 `json:"seq"`
}

// BatteryPayload reports remaining battery percentage, -1 when unknown.
type BatteryPayload struct {
	Remaining int8 `json:"remaining"`
}
