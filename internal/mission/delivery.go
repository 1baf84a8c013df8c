package mission

import "github.com/Mithilesh5957/nidar/internal/model"

// Delivery mission template parameters.
const (
	// frameGlobalRelativeAlt is MAV_FRAME_GLOBAL_RELATIVE_ALT_INT.
	frameGlobalRelativeAlt = 3

	DeliveryCruiseAlt   float32 = 60 // meters, transit to and from the drop
	DeliveryApproachAlt float32 = 25 // meters, slow descent start
	DeliveryDropAlt     float32 = 5  // meters, payload release height

	DeliveryServoChannel float32 = 9
	DeliveryServoPWM     float32 = 1500
)

// DeliveryAltitudes parametrizes the delivery profile, meters above home.
type DeliveryAltitudes struct {
	Takeoff  float32
	Approach float32
	Drop     float32
	Climb    float32
}

// DefaultDeliveryAltitudes is the standard 60/25/5/60 profile.
func DefaultDeliveryAltitudes() DeliveryAltitudes {
	return DeliveryAltitudes{
		Takeoff:  DeliveryCruiseAlt,
		Approach: DeliveryApproachAlt,
		Drop:     DeliveryDropAlt,
		Climb:    DeliveryCruiseAlt,
	}
}

// NewDeliveryMission synthesizes the six-item payload drop mission for a
// target coordinate with the default altitude profile.
func NewDeliveryMission(target model.Coordinate) []model.MissionItem {
	return NewDeliveryMissionWithAltitudes(target, DefaultDeliveryAltitudes())
}

// NewDeliveryMissionWithAltitudes builds the drop mission: climb out, fly
// to the target, descend, release via servo, climb back and return to
// launch.
func NewDeliveryMissionWithAltitudes(target model.Coordinate, alts DeliveryAltitudes) []model.MissionItem {
	return []model.MissionItem{
		{
			Seq:     0,
			Frame:   frameGlobalRelativeAlt,
			Command: model.CmdNavTakeoff,
			X:       target.Lat,
			Y:       target.Lon,
			Z:       alts.Takeoff,
		},
		{
			Seq:     1,
			Frame:   frameGlobalRelativeAlt,
			Command: model.CmdNavWaypoint,
			X:       target.Lat,
			Y:       target.Lon,
			Z:       alts.Approach,
		},
		{
			Seq:     2,
			Frame:   frameGlobalRelativeAlt,
			Command: model.CmdNavWaypoint,
			X:       target.Lat,
			Y:       target.Lon,
			Z:       alts.Drop,
		},
		{
			Seq:     3,
			Frame:   frameGlobalRelativeAlt,
			Command: model.CmdDoSetServo,
			Param1:  DeliveryServoChannel,
			Param2:  DeliveryServoPWM,
		},
		{
			Seq:     4,
			Frame:   frameGlobalRelativeAlt,
			Command: model.CmdNavWaypoint,
			X:       target.Lat,
			Y:       target.Lon,
			Z:       alts.Climb,
		},
		{
			Seq:     5,
			Frame:   frameGlobalRelativeAlt,
			Command: model.CmdNavReturnToLaunch,
		},
	}
}
