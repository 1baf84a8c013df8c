// Package model holds the domain types shared across the ground link:
// wire-level mission items, decoded telemetry, broadcast events and the
// persisted record schema.
package model

import "fmt"

// LinkState describes the lifecycle of a vehicle link slot.
type LinkState int

const (
	LinkDisconnected LinkState = iota
	LinkAwaitingHeartbeat
	LinkConnected
)

func (s LinkState) String() string {
	switch s {
	case LinkDisconnected:
		return "disconnected"
	case LinkAwaitingHeartbeat:
		return "awaiting_heartbeat"
	case LinkConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// MAV_CMD ids used by the delivery mission template.
const (
	CmdNavWaypoint       = 16
	CmdNavReturnToLaunch = 20
	CmdNavTakeoff        = 22
	CmdDoSetServo        = 183
)

// MissionItem is one planned waypoint or action. X and Y are decimal
// degrees (or raw units depending on Frame), Z is meters.
type MissionItem struct {
	Seq     uint16  `json:"seq"`
	Frame   uint8   `json:"frame"`
	Command uint16  `json:"command"`
	Param1  float32 `json:"param1"`
	Param2  float32 `json:"param2"`
	Param3  float32 `json:"param3"`
	Param4  float32 `json:"param4"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Z       float32 `json:"z"`
}

// TelemetrySample is one decoded position report. Immutable once created.
type TelemetrySample struct {
	Ts  int64   `json:"ts"` // ms since epoch
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	Alt float64 `json:"alt"` // meters
}

// Coordinate is a detection location used as mission synthesis input.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

const (
	// MaxMissionItems bounds a single upload, matching the dashboard's
	// mission editor limit.
	MaxMissionItems = 100

	// MaxAltitudeMeters bounds item Z values.
	MaxAltitudeMeters = 1000
)

// ValidateCoordinate checks decimal-degree bounds.
func ValidateCoordinate(lat, lon float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]", lat)
	}
	if lon < -180 || lon > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", lon)
	}
	return nil
}

// ValidateMissionItems checks a mission list before upload: bounded size,
// dense 0-based sequence numbers in order, coordinates and altitudes in range.
func ValidateMissionItems(items []MissionItem) error {
	if len(items) > MaxMissionItems {
		return fmt.Errorf("mission has %d items, max %d", len(items), MaxMissionItems)
	}
	for i, item := range items {
		if int(item.Seq) != i {
			return fmt.Errorf("item %d has sequence %d, want dense 0-based ordering", i, item.Seq)
		}
		if item.Z < 0 || item.Z > MaxAltitudeMeters {
			return fmt.Errorf("item %d altitude %v out of range [0, %d]", i, item.Z, MaxAltitudeMeters)
		}
		// Action items (servo, RTL) legitimately carry zero coordinates.
		if item.X == 0 && item.Y == 0 {
			continue
		}
		if err := ValidateCoordinate(item.X, item.Y); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}
	return nil
}
