package model

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DatabaseModels is a list of all the structs exported here which represent
// tables in the database schema.
var DatabaseModels = []interface{}{
	&VehicleRecord{},
	&DetectionRecord{},
	&MissionRecord{},
	&MissionLogRecord{},
}

// VehicleRecord is one row per configured vehicle slot. Identity, position,
// battery and connectivity fields are refreshed by the link manager as
// messages arrive.
type VehicleRecord struct {
	gorm.Model
	VehicleID  string `json:"vehicleId" gorm:"size:50;uniqueIndex"`
	Name       string `json:"name" gorm:"size:100"`
	SystemID   *uint8 `json:"sysid"`
	CompID     *uint8 `json:"compid"`
	ListenAddr string `json:"listenAddr" gorm:"size:100"`
	LastSeen   int64  `json:"lastSeen"` // ms since epoch
	LastLat    *float64
	LastLon    *float64
	LastAlt    *float64
	Battery    *int8  `json:"battery"`
	Status     string `json:"status" gorm:"size:50"`
}

// DetectionRecord is an object detection uploaded by a scout vehicle.
type DetectionRecord struct {
	gorm.Model
	VehicleID  string   `json:"vehicleId" gorm:"size:50;index"`
	Lat        *float64 `json:"lat"`
	Lon        *float64 `json:"lon"`
	Confidence *float64 `json:"conf"`
	ImagePath  string   `json:"img" gorm:"size:500"`
	Ts         int64    `json:"ts"`
	Approved   bool     `json:"approved"`
	Delivered  bool     `json:"delivered"`
	MissionID  *uint    `json:"missionId"` // delivery mission created on approval
}

// Mission lifecycle statuses.
const (
	MissionStatusDownloaded = "downloaded"
	MissionStatusUploaded   = "uploaded"
	MissionStatusActive     = "active"
	MissionStatusCompleted  = "completed"
	MissionStatusAborted    = "aborted"
)

// MissionRecord stores an uploaded mission with its items as JSON.
type MissionRecord struct {
	gorm.Model
	VehicleID  string         `json:"vehicleId" gorm:"size:50;index"`
	Items      datatypes.JSON `json:"items"`
	Status     string         `json:"status" gorm:"size:50"` // uploaded, active, completed, aborted
	CreatedTs  int64          `json:"createdTs"`
	StartedTs  int64          `json:"startedTs"`
	FinishedTs int64          `json:"finishedTs"`
}

// MissionLogRecord is one step in a mission's execution history.
type MissionLogRecord struct {
	gorm.Model
	MissionID uint   `json:"missionId" gorm:"index"`
	Ts        int64  `json:"ts"`
	Step      string `json:"step" gorm:"size:50"`
	Details   string `json:"details"`
}
