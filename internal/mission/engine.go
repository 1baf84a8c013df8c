// Package mission implements the mission transfer handshakes (download and
// upload), delivery mission synthesis, and the service operations the
// dashboard triggers.
package mission

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Mithilesh5957/nidar/internal/config"
	"github.com/Mithilesh5957/nidar/internal/link"
	"github.com/Mithilesh5957/nidar/internal/mavlink"
	"github.com/Mithilesh5957/nidar/internal/model"
)

// Engine runs blocking mission transfers over leased vehicle links. Each
// transfer holds the link's lease for its duration, so at most one transfer
// runs per vehicle at a time.
type Engine struct {
	links  *link.Manager
	cfg    config.MissionConfig
	logger *slog.Logger
}

// NewEngine creates a transfer engine over the given link manager.
func NewEngine(links *link.Manager, cfg config.MissionConfig, logger *slog.Logger) *Engine {
	return &Engine{links: links, cfg: cfg, logger: logger}
}

func itemToWire(item model.MissionItem, sysID, compID uint8) *mavlink.MissionItemInt {
	return &mavlink.MissionItemInt{
		Param1:          item.Param1,
		Param2:          item.Param2,
		Param3:          item.Param3,
		Param4:          item.Param4,
		X:               mavlink.DegreesToE7(item.X),
		Y:               mavlink.DegreesToE7(item.Y),
		Z:               item.Z,
		Seq:             item.Seq,
		Command:         item.Command,
		TargetSystem:    sysID,
		TargetComponent: compID,
		Frame:           item.Frame,
		Autocontinue:    1,
	}
}

func wireToItem(msg *mavlink.MissionItemInt) model.MissionItem {
	return model.MissionItem{
		Seq:     msg.Seq,
		Frame:   msg.Frame,
		Command: msg.Command,
		Param1:  msg.Param1,
		Param2:  msg.Param2,
		Param3:  msg.Param3,
		Param4:  msg.Param4,
		X:       mavlink.E7ToDegrees(msg.X),
		Y:       mavlink.E7ToDegrees(msg.Y),
		Z:       msg.Z,
	}
}

func (e *Engine) target(vehicleID string) (*link.Link, uint8, uint8, error) {
	l, err := e.links.Link(vehicleID)
	if err != nil {
		return nil, 0, 0, err
	}
	sysID, compID, ok := l.Identity()
	if !ok {
		return nil, 0, 0, fmt.Errorf("%s: %w: vehicle not discovered", vehicleID, link.ErrLinkUnavailable)
	}
	return l, sysID, compID, nil
}

// Download pulls the vehicle's current mission. Blocks until the handshake
// completes or the download deadline passes.
func (e *Engine) Download(vehicleID string) ([]model.MissionItem, error) {
	l, sysID, compID, err := e.target(vehicleID)
	if err != nil {
		return nil, err
	}

	lease, err := l.Acquire(mavlink.MsgIDMissionCount, mavlink.MsgIDMissionItemInt)
	if err != nil {
		return nil, err
	}
	defer l.Release(lease)

	deadline := time.Now().Add(e.cfg.DownloadTimeout)
	logger := e.logger.With("vehicle", vehicleID, "op", "download")

	if err := lease.Send(&mavlink.MissionRequestList{TargetSystem: sysID, TargetComponent: compID}); err != nil {
		return nil, err
	}

	count, err := e.awaitCount(lease, deadline)
	if err != nil {
		return nil, err
	}
	logger.Info("mission download started", "count", count)

	items := make([]model.MissionItem, 0, count)
	for seq := uint16(0); seq < count; seq++ {
		req := &mavlink.MissionRequestInt{Seq: seq, TargetSystem: sysID, TargetComponent: compID}
		if err := lease.Send(req); err != nil {
			return nil, err
		}

		item, err := e.awaitItem(lease, deadline, seq, count)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	ack := &mavlink.MissionAck{TargetSystem: sysID, TargetComponent: compID, Type: mavlink.MissionAcceptedResult}
	if err := lease.Send(ack); err != nil {
		return nil, err
	}

	logger.Info("mission download complete", "items", len(items))
	return items, nil
}

func (e *Engine) awaitCount(lease *link.Lease, deadline time.Time) (uint16, error) {
	for {
		frame, err := lease.Recv(deadline)
		if err != nil {
			return 0, err
		}
		switch msg := frame.Message.(type) {
		case *mavlink.MissionCount:
			return msg.Count, nil
		case *mavlink.MissionItemInt:
			// Stale item from an earlier aborted transfer.
			continue
		default:
			return 0, fmt.Errorf("%w: unexpected %T before MISSION_COUNT", link.ErrProtocolViolation, msg)
		}
	}
}

func (e *Engine) awaitItem(lease *link.Lease, deadline time.Time, seq, count uint16) (model.MissionItem, error) {
	for {
		frame, err := lease.Recv(deadline)
		if err != nil {
			return model.MissionItem{}, err
		}
		switch msg := frame.Message.(type) {
		case *mavlink.MissionItemInt:
			if msg.Seq < seq {
				// Retransmission of an item already stored, harmless.
				continue
			}
			if msg.Seq > seq {
				return model.MissionItem{}, fmt.Errorf(
					"%w: item sequence %d, expected %d", link.ErrProtocolViolation, msg.Seq, seq)
			}
			return wireToItem(msg), nil
		case *mavlink.MissionCount:
			if msg.Count == count {
				// Count retransmission, harmless.
				continue
			}
			return model.MissionItem{}, fmt.Errorf(
				"%w: count changed mid-transfer from %d to %d", link.ErrProtocolViolation, count, msg.Count)
		default:
			return model.MissionItem{}, fmt.Errorf("%w: unexpected %T during download", link.ErrProtocolViolation, msg)
		}
	}
}

// Upload pushes a mission to the vehicle. Items are validated before any
// traffic is sent. Blocks until the vehicle acknowledges or the upload
// deadline passes.
func (e *Engine) Upload(vehicleID string, items []model.MissionItem) error {
	if err := model.ValidateMissionItems(items); err != nil {
		return fmt.Errorf("invalid mission: %w", err)
	}

	l, sysID, compID, err := e.target(vehicleID)
	if err != nil {
		return err
	}

	lease, err := l.Acquire(mavlink.MsgIDMissionRequestInt, mavlink.MsgIDMissionAck)
	if err != nil {
		return err
	}
	defer l.Release(lease)

	deadline := time.Now().Add(e.cfg.UploadTimeout)
	logger := e.logger.With("vehicle", vehicleID, "op", "upload")
	count := uint16(len(items))

	mc := &mavlink.MissionCount{Count: count, TargetSystem: sysID, TargetComponent: compID}
	if err := lease.Send(mc); err != nil {
		return err
	}
	logger.Info("mission upload started", "count", count)

	for {
		frame, err := lease.Recv(deadline)
		if err != nil {
			return err
		}

		switch msg := frame.Message.(type) {
		case *mavlink.MissionRequestInt:
			if msg.Seq >= count {
				return fmt.Errorf("%w: requested item %d of %d", link.ErrProtocolViolation, msg.Seq, count)
			}
			if err := lease.Send(itemToWire(items[msg.Seq], sysID, compID)); err != nil {
				return err
			}

		case *mavlink.MissionAck:
			if msg.Type != mavlink.MissionAcceptedResult {
				return fmt.Errorf("%w: mission rejected with ack type %d", link.ErrProtocolViolation, msg.Type)
			}
			logger.Info("mission upload complete", "items", count)
			return nil

		default:
			return fmt.Errorf("%w: unexpected %T during upload", link.ErrProtocolViolation, msg)
		}
	}
}
