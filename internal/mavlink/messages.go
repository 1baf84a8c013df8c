// Package mavlink implements the subset of the MAVLink v1 wire protocol the
// ground link needs: message construction/parsing, TCP framing, and blocking
// receive with timeout. Only the common-dialect messages used by the link
// manager and the mission transfer handshakes are defined.
package mavlink

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Message ids (common dialect).
const (
	MsgIDHeartbeat          uint8 = 0
	MsgIDSysStatus          uint8 = 1
	MsgIDGlobalPositionInt  uint8 = 33
	MsgIDMissionCurrent     uint8 = 42
	MsgIDMissionRequestList uint8 = 43
	MsgIDMissionCount       uint8 = 44
	MsgIDMissionAck         uint8 = 47
	MsgIDMissionRequestInt  uint8 = 51
	MsgIDMissionItemInt     uint8 = 73
	MsgIDStatusText         uint8 = 253
)

// MissionAcceptedResult is the MISSION_ACK result code for a successful
// upload (MAV_MISSION_ACCEPTED).
const MissionAcceptedResult uint8 = 0

// Message is a decoded MAVLink payload.
type Message interface {
	// ID returns the message id.
	ID() uint8
	// marshal renders the payload in wire order (little-endian,
	// fields sorted per the MAVLink specification).
	marshal() []byte
}

// Fixed-point scaling helpers: latitudes/longitudes travel as degrees*1e7,
// altitudes as millimeters.

func DegreesToE7(deg float64) int32 {
	return int32(math.Round(deg * 1e7))
}

func E7ToDegrees(v int32) float64 {
	return float64(v) / 1e7
}

func MillimetersToMeters(mm int32) float64 {
	return float64(mm) / 1e3
}

// crcExtra is the per-message checksum seed derived from the message
// definition, keyed by message id.
var crcExtra = map[uint8]byte{
	MsgIDHeartbeat:          50,
	MsgIDSysStatus:          124,
	MsgIDGlobalPositionInt:  104,
	MsgIDMissionCurrent:     28,
	MsgIDMissionRequestList: 132,
	MsgIDMissionCount:       221,
	MsgIDMissionAck:         153,
	MsgIDMissionRequestInt:  196,
	MsgIDMissionItemInt:     38,
	MsgIDStatusText:         83,
}

// payloadLen is the expected v1 payload length per message id.
var payloadLen = map[uint8]int{
	MsgIDHeartbeat:          9,
	MsgIDSysStatus:          31,
	MsgIDGlobalPositionInt:  28,
	MsgIDMissionCurrent:     2,
	MsgIDMissionRequestList: 2,
	MsgIDMissionCount:       4,
	MsgIDMissionAck:         3,
	MsgIDMissionRequestInt:  4,
	MsgIDMissionItemInt:     37,
	MsgIDStatusText:         51,
}

// Heartbeat carries the sender's type and state; the source system and
// component ids live in the frame header.
type Heartbeat struct {
	CustomMode     uint32
	Type           uint8
	Autopilot      uint8
	BaseMode       uint8
	SystemStatus   uint8
	MavlinkVersion uint8
}

func (m *Heartbeat) ID() uint8 { return MsgIDHeartbeat }

func (m *Heartbeat) marshal() []byte {
	p := make([]byte, 9)
	binary.LittleEndian.PutUint32(p[0:], m.CustomMode)
	p[4] = m.Type
	p[5] = m.Autopilot
	p[6] = m.BaseMode
	p[7] = m.SystemStatus
	p[8] = m.MavlinkVersion
	return p
}

func unmarshalHeartbeat(p []byte) Message {
	return &Heartbeat{
		CustomMode:     binary.LittleEndian.Uint32(p[0:]),
		Type:           p[4],
		Autopilot:      p[5],
		BaseMode:       p[6],
		SystemStatus:   p[7],
		MavlinkVersion: p[8],
	}
}

// SysStatus reports system health; only BatteryRemaining is consumed here.
type SysStatus struct {
	SensorsPresent   uint32
	SensorsEnabled   uint32
	SensorsHealth    uint32
	Load             uint16
	VoltageBattery   uint16
	CurrentBattery   int16
	DropRateComm     uint16
	ErrorsComm       uint16
	ErrorsCount1     uint16
	ErrorsCount2     uint16
	ErrorsCount3     uint16
	ErrorsCount4     uint16
	BatteryRemaining int8
}

func (m *SysStatus) ID() uint8 { return MsgIDSysStatus }

func (m *SysStatus) marshal() []byte {
	p := make([]byte, 31)
	binary.LittleEndian.PutUint32(p[0:], m.SensorsPresent)
	binary.LittleEndian.PutUint32(p[4:], m.SensorsEnabled)
	binary.LittleEndian.PutUint32(p[8:], m.SensorsHealth)
	binary.LittleEndian.PutUint16(p[12:], m.Load)
	binary.LittleEndian.PutUint16(p[14:], m.VoltageBattery)
	binary.LittleEndian.PutUint16(p[16:], uint16(m.CurrentBattery))
	binary.LittleEndian.PutUint16(p[18:], m.DropRateComm)
	binary.LittleEndian.PutUint16(p[20:], m.ErrorsComm)
	binary.LittleEndian.PutUint16(p[22:], m.ErrorsCount1)
	binary.LittleEndian.PutUint16(p[24:], m.ErrorsCount2)
	binary.LittleEndian.PutUint16(p[26:], m.ErrorsCount3)
	binary.LittleEndian.PutUint16(p[28:], m.ErrorsCount4)
	p[30] = byte(m.BatteryRemaining)
	return p
}

func unmarshalSysStatus(p []byte) Message {
	return &SysStatus{
		SensorsPresent:   binary.LittleEndian.Uint32(p[0:]),
		SensorsEnabled:   binary.LittleEndian.Uint32(p[4:]),
		SensorsHealth:    binary.LittleEndian.Uint32(p[8:]),
		Load:             binary.LittleEndian.Uint16(p[12:]),
		VoltageBattery:   binary.LittleEndian.Uint16(p[14:]),
		CurrentBattery:   int16(binary.LittleEndian.Uint16(p[16:])),
		DropRateComm:     binary.LittleEndian.Uint16(p[18:]),
		ErrorsComm:       binary.LittleEndian.Uint16(p[20:]),
		ErrorsCount1:     binary.LittleEndian.Uint16(p[22:]),
		ErrorsCount2:     binary.LittleEndian.Uint16(p[24:]),
		ErrorsCount3:     binary.LittleEndian.Uint16(p[26:]),
		ErrorsCount4:     binary.LittleEndian.Uint16(p[28:]),
		BatteryRemaining: int8(p[30]),
	}
}

// GlobalPositionInt is the fused position report. Lat/Lon are degrees*1e7,
// Alt and RelativeAlt are millimeters.
type GlobalPositionInt struct {
	TimeBootMs  uint32
	Lat         int32
	Lon         int32
	Alt         int32
	RelativeAlt int32
	Vx          int16
	Vy          int16
	Vz          int16
	Hdg         uint16
}

func (m *GlobalPositionInt) ID() uint8 { return MsgIDGlobalPositionInt }

func (m *GlobalPositionInt) marshal() []byte {
	p := make([]byte, 28)
	binary.LittleEndian.PutUint32(p[0:], m.TimeBootMs)
	binary.LittleEndian.PutUint32(p[4:], uint32(m.Lat))
	binary.LittleEndian.PutUint32(p[8:], uint32(m.Lon))
	binary.LittleEndian.PutUint32(p[12:], uint32(m.Alt))
	binary.LittleEndian.PutUint32(p[16:], uint32(m.RelativeAlt))
	binary.LittleEndian.PutUint16(p[20:], uint16(m.Vx))
	binary.LittleEndian.PutUint16(p[22:], uint16(m.Vy))
	binary.LittleEndian.PutUint16(p[24:], uint16(m.Vz))
	binary.LittleEndian.PutUint16(p[26:], m.Hdg)
	return p
}

func unmarshalGlobalPositionInt(p []byte) Message {
	return &GlobalPositionInt{
		TimeBootMs:  binary.LittleEndian.Uint32(p[0:]),
		Lat:         int32(binary.LittleEndian.Uint32(p[4:])),
		Lon:         int32(binary.LittleEndian.Uint32(p[8:])),
		Alt:         int32(binary.LittleEndian.Uint32(p[12:])),
		RelativeAlt: int32(binary.LittleEndian.Uint32(p[16:])),
		Vx:          int16(binary.LittleEndian.Uint16(p[20:])),
		Vy:          int16(binary.LittleEndian.Uint16(p[22:])),
		Vz:          int16(binary.LittleEndian.Uint16(p[24:])),
		Hdg:         binary.LittleEndian.Uint16(p[26:]),
	}
}

// MissionCurrent reports the sequence number the vehicle is executing.
type MissionCurrent struct {
	Seq uint16
}

func (m *MissionCurrent) ID() uint8 { return MsgIDMissionCurrent }

func (m *MissionCurrent) marshal() []byte {
	p := make([]byte, 2)
	binary.LittleEndian.PutUint16(p, m.Seq)
	return p
}

func unmarshalMissionCurrent(p []byte) Message {
	return &MissionCurrent{Seq: binary.LittleEndian.Uint16(p)}
}

// MissionRequestList asks the target to start a mission download.
type MissionRequestList struct {
	TargetSystem    uint8
	TargetComponent uint8
}

func (m *MissionRequestList) ID() uint8 { return MsgIDMissionRequestList }

func (m *MissionRequestList) marshal() []byte {
	return []byte{m.TargetSystem, m.TargetComponent}
}

func unmarshalMissionRequestList(p []byte) Message {
	return &MissionRequestList{TargetSystem: p[0], TargetComponent: p[1]}
}

// MissionCount announces how many items a mission transfer will carry.
type MissionCount struct {
	Count           uint16
	TargetSystem    uint8
	TargetComponent uint8
}

func (m *MissionCount) ID() uint8 { return MsgIDMissionCount }

func (m *MissionCount) marshal() []byte {
	p := make([]byte, 4)
	binary.LittleEndian.PutUint16(p, m.Count)
	p[2] = m.TargetSystem
	p[3] = m.TargetComponent
	return p
}

func unmarshalMissionCount(p []byte) Message {
	return &MissionCount{
		Count:           binary.LittleEndian.Uint16(p),
		TargetSystem:    p[2],
		TargetComponent: p[3],
	}
}

// MissionAck closes a mission transfer; Type 0 means accepted.
type MissionAck struct {
	TargetSystem    uint8
	TargetComponent uint8
	Type            uint8
}

func (m *MissionAck) ID() uint8 { return MsgIDMissionAck }

func (m *MissionAck) marshal() []byte {
	return []byte{m.TargetSystem, m.TargetComponent, m.Type}
}

func unmarshalMissionAck(p []byte) Message {
	return &MissionAck{TargetSystem: p[0], TargetComponent: p[1], Type: p[2]}
}

// MissionRequestInt requests one mission item by sequence number.
type MissionRequestInt struct {
	Seq             uint16
	TargetSystem    uint8
	TargetComponent uint8
}

func (m *MissionRequestInt) ID() uint8 { return MsgIDMissionRequestInt }

func (m *MissionRequestInt) marshal() []byte {
	p := make([]byte, 4)
	binary.LittleEndian.PutUint16(p, m.Seq)
	p[2] = m.TargetSystem
	p[3] = m.TargetComponent
	return p
}

func unmarshalMissionRequestInt(p []byte) Message {
	return &MissionRequestInt{
		Seq:             binary.LittleEndian.Uint16(p),
		TargetSystem:    p[2],
		TargetComponent: p[3],
	}
}

// MissionItemInt is one waypoint/action with scaled integer coordinates.
type MissionItemInt struct {
	Param1          float32
	Param2          float32
	Param3          float32
	Param4          float32
	X               int32 // degrees * 1e7 (or raw, depending on Frame)
	Y               int32
	Z               float32 // meters
	Seq             uint16
	Command         uint16
	TargetSystem    uint8
	TargetComponent uint8
	Frame           uint8
	Current         uint8
	Autocontinue    uint8
}

func (m *MissionItemInt) ID() uint8 { return MsgIDMissionItemInt }

func (m *MissionItemInt) marshal() []byte {
	p := make([]byte, 37)
	binary.LittleEndian.PutUint32(p[0:], math.Float32bits(m.Param1))
	binary.LittleEndian.PutUint32(p[4:], math.Float32bits(m.Param2))
	binary.LittleEndian.PutUint32(p[8:], math.Float32bits(m.Param3))
	binary.LittleEndian.PutUint32(p[12:], math.Float32bits(m.Param4))
	binary.LittleEndian.PutUint32(p[16:], uint32(m.X))
	binary.LittleEndian.PutUint32(p[20:], uint32(m.Y))
	binary.LittleEndian.PutUint32(p[24:], math.Float32bits(m.Z))
	binary.LittleEndian.PutUint16(p[28:], m.Seq)
	binary.LittleEndian.PutUint16(p[30:], m.Command)
	p[32] = m.TargetSystem
	p[33] = m.TargetComponent
	p[34] = m.Frame
	p[35] = m.Current
	p[36] = m.Autocontinue
	return p
}

func unmarshalMissionItemInt(p []byte) Message {
	return &MissionItemInt{
		Param1:          math.Float32frombits(binary.LittleEndian.Uint32(p[0:])),
		Param2:          math.Float32frombits(binary.LittleEndian.Uint32(p[4:])),
		Param3:          math.Float32frombits(binary.LittleEndian.Uint32(p[8:])),
		Param4:          math.Float32frombits(binary.LittleEndian.Uint32(p[12:])),
		X:               int32(binary.LittleEndian.Uint32(p[16:])),
		Y:               int32(binary.LittleEndian.Uint32(p[20:])),
		Z:               math.Float32frombits(binary.LittleEndian.Uint32(p[24:])),
		Seq:             binary.LittleEndian.Uint16(p[28:]),
		Command:         binary.LittleEndian.Uint16(p[30:]),
		TargetSystem:    p[32],
		TargetComponent: p[33],
		Frame:           p[34],
		Current:         p[35],
		Autocontinue:    p[36],
	}
}

// StatusText is a free-text status message, NUL-padded to 50 bytes on the wire.
type StatusText struct {
	Severity uint8
	Text     string
}

func (m *StatusText) ID() uint8 { return MsgIDStatusText }

func (m *StatusText) marshal() []byte {
	p := make([]byte, 51)
	p[0] = m.Severity
	copy(p[1:], m.Text)
	return p
}

func unmarshalStatusText(p []byte) Message {
	text := p[1:]
	for i, b := range text {
		if b == 0 {
			text = text[:i]
			break
		}
	}
	return &StatusText{Severity: p[0], Text: string(text)}
}

var unmarshalers = map[uint8]func([]byte) Message{
	MsgIDHeartbeat:          unmarshalHeartbeat,
	MsgIDSysStatus:          unmarshalSysStatus,
	MsgIDGlobalPositionInt:  unmarshalGlobalPositionInt,
	MsgIDMissionCurrent:     unmarshalMissionCurrent,
	MsgIDMissionRequestList: unmarshalMissionRequestList,
	MsgIDMissionCount:       unmarshalMissionCount,
	MsgIDMissionAck:         unmarshalMissionAck,
	MsgIDMissionRequestInt:  unmarshalMissionRequestInt,
	MsgIDMissionItemInt:     unmarshalMissionItemInt,
	MsgIDStatusText:         unmarshalStatusText,
}

// unmarshalMessage decodes a payload for a known message id. The payload
// must be at least the nominal length (v1 frames are never truncated).
func unmarshalMessage(id uint8, p []byte) (Message, error) {
	fn, ok := unmarshalers[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownMessage, id)
	}
	want := payloadLen[id]
	if len(p) < want {
		return nil, fmt.Errorf("message %d payload too short: %d < %d", id, len(p), want)
	}
	return fn(p[:want]), nil
}
