// Package link maintains one connection per configured vehicle: a listening
// slot the vehicle connects into, heartbeat discovery, the single read loop
// that demultiplexes incoming frames, and the lease mechanism that grants
// mission transfers exclusive receipt of their handshake messages.
package link

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/Mithilesh5957/nidar/internal/config"
	"github.com/Mithilesh5957/nidar/internal/mavlink"
	"github.com/Mithilesh5957/nidar/internal/model"
	"github.com/Mithilesh5957/nidar/internal/util"
)

// PublishFunc receives every event a link emits.
type PublishFunc func(model.Event)

// Link is one vehicle slot. It listens on the slot's address and the vehicle
// connects in, so fielded autopilots behind NAT can reach the ground station.
// A background goroutine owns the live connection and is the only reader on
// it; everything else observes state through the accessors or receives routed
// frames through a Lease.
type Link struct {
	id      string
	name    string
	addr    string
	cfg     config.LinkConfig
	logger  *slog.Logger
	publish PublishFunc

	// incoming hands accepted connections to the session loop. Capacity 1:
	// one vehicle may wait out the reconnect backoff while the previous
	// session drains.
	incoming chan net.Conn

	mu     sync.Mutex
	ln     net.Listener
	state  model.LinkState
	conn   mavlink.Conn
	sysID  uint8
	compID uint8
	ident  bool
	lease  *Lease

	stop chan struct{}
	done chan struct{}
}

// NewLink creates a link slot. Call Start to begin listening.
func NewLink(vc config.VehicleConfig, lc config.LinkConfig, logger *slog.Logger, publish PublishFunc) *Link {
	return &Link{
		id:       vc.ID,
		name:     vc.Name,
		addr:     vc.Listen,
		cfg:      lc,
		logger:   logger.With("vehicle", vc.ID),
		publish:  publish,
		incoming: make(chan net.Conn, 1),
		state:    model.LinkDisconnected,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// ID returns the vehicle id this slot serves.
func (l *Link) ID() string { return l.id }

// State returns the slot's connection state.
func (l *Link) State() model.LinkState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Identity returns the system and component ids discovered from the first
// heartbeat, if any heartbeat has been seen on the current connection.
func (l *Link) Identity() (sysID, compID uint8, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sysID, l.compID, l.ident
}

// Start opens the slot's listener and launches the accept and session
// goroutines. The vehicle is expected to connect in.
func (l *Link) Start() error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("%s: listening on %s: %w", l.id, l.addr, err)
	}
	l.mu.Lock()
	l.ln = ln
	l.mu.Unlock()
	l.logger.Info("slot listening", "addr", ln.Addr().String())

	go l.acceptLoop(ln)
	go l.run()
	return nil
}

// Addr returns the listener's bound address. Useful when the slot was
// configured with port 0.
func (l *Link) Addr() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return l.addr
	}
	return l.ln.Addr().String()
}

// Stop tears the link down and waits for the goroutines to exit. Harmless on
// a slot that never started.
func (l *Link) Stop() {
	close(l.stop)
	l.mu.Lock()
	started := l.ln != nil
	if l.ln != nil {
		l.ln.Close()
	}
	if l.conn != nil {
		l.conn.Close()
	}
	l.mu.Unlock()
	if started {
		<-l.done
	}
}

// Acquire grants exclusive receipt of the given message ids. Fails with
// ErrLinkUnavailable when the link is not connected or another lease is
// already held.
func (l *Link) Acquire(ids ...uint8) (*Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != model.LinkConnected || l.conn == nil {
		return nil, fmt.Errorf("%s: %w: not connected", l.id, ErrLinkUnavailable)
	}
	if l.lease != nil {
		return nil, fmt.Errorf("%s: %w: transfer already in progress", l.id, ErrLinkUnavailable)
	}

	lease := newLease(l, ids)
	l.lease = lease
	return lease, nil
}

// Release ends a lease. Harmless if the lease was already invalidated by a
// disconnect.
func (l *Link) Release(lease *Lease) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lease == lease {
		l.lease = nil
	}
}

func (l *Link) currentConn() mavlink.Conn {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn
}

func (l *Link) stopped() bool {
	select {
	case <-l.stop:
		return true
	default:
		return false
	}
}

// sleepBackoff waits out the retry backoff; false means the link is stopping.
func (l *Link) sleepBackoff() bool {
	timer := time.NewTimer(l.cfg.RetryBackoff)
	defer timer.Stop()
	select {
	case <-l.stop:
		return false
	case <-timer.C:
		return true
	}
}

// acceptLoop takes connections off the listener. While a session is live the
// slot refuses newcomers, keeping at most one vehicle per slot.
func (l *Link) acceptLoop(ln net.Listener) {
	for {
		nc, err := ln.Accept()
		if err != nil {
			if l.stopped() || errors.Is(err, net.ErrClosed) {
				return
			}
			l.logger.Warn("accept failed", "error", err)
			if !l.sleepBackoff() {
				return
			}
			continue
		}

		l.mu.Lock()
		busy := l.conn != nil
		l.mu.Unlock()
		if busy {
			l.logger.Warn("refusing second connection", "remote", nc.RemoteAddr().String())
			nc.Close()
			continue
		}

		select {
		case l.incoming <- nc:
		default:
			// A connection is already waiting for the session loop.
			l.logger.Warn("refusing second connection", "remote", nc.RemoteAddr().String())
			nc.Close()
		}
	}
}

func (l *Link) run() {
	defer close(l.done)
	defer l.drainIncoming()

	for {
		var nc net.Conn
		select {
		case <-l.stop:
			return
		case nc = <-l.incoming:
		}

		conn := mavlink.NewConn(nc)
		l.mu.Lock()
		l.conn = conn
		l.state = model.LinkAwaitingHeartbeat
		l.ident = false
		l.mu.Unlock()
		l.logger.Info("transport up, awaiting heartbeat", "remote", nc.RemoteAddr().String())

		if l.awaitHeartbeat(conn) {
			l.readLoop(conn)
		}

		l.teardown(conn)
		if l.stopped() {
			return
		}
		if !l.sleepBackoff() {
			return
		}
	}
}

// drainIncoming closes a connection the accept loop parked after the session
// loop decided to exit.
func (l *Link) drainIncoming() {
	select {
	case nc := <-l.incoming:
		nc.Close()
	default:
	}
}

// awaitHeartbeat reads until the first heartbeat identifies the vehicle or
// the discovery window closes. Non-heartbeat traffic before discovery is
// ignored.
func (l *Link) awaitHeartbeat(conn mavlink.Conn) bool {
	deadline := time.Now().Add(l.cfg.HeartbeatTimeout)

	for time.Now().Before(deadline) {
		if l.stopped() {
			return false
		}

		frame, err := conn.ReadMessage(l.cfg.ReadTimeout)
		if err != nil {
			if err == mavlink.ErrReceiveTimeout {
				continue
			}
			l.logger.Debug("read failed during discovery", "error", err)
			return false
		}

		if _, ok := frame.Message.(*mavlink.Heartbeat); !ok {
			continue
		}

		l.mu.Lock()
		l.sysID = frame.SystemID
		l.compID = frame.ComponentID
		l.ident = true
		l.state = model.LinkConnected
		l.mu.Unlock()

		l.logger.Info("vehicle connected", "sysid", frame.SystemID, "compid", frame.ComponentID)
		l.publish(model.Event{
			Topic:     model.TopicHeartbeat,
			VehicleID: l.id,
			Ts:        util.NowMs(),
			Payload:   model.HeartbeatPayload{SystemID: frame.SystemID, ComponentID: frame.ComponentID},
		})
		return true
	}

	l.logger.Warn("no heartbeat within discovery window", "window", l.cfg.HeartbeatTimeout)
	return false
}

// readLoop is the sole reader on the connection. Leased message ids go to
// the lease holder; everything else is classified into broadcast events.
func (l *Link) readLoop(conn mavlink.Conn) {
	for {
		if l.stopped() {
			return
		}

		frame, err := conn.ReadMessage(l.cfg.ReadTimeout)
		if err != nil {
			if err == mavlink.ErrReceiveTimeout {
				continue
			}
			l.logger.Info("connection lost", "error", err)
			return
		}

		if l.routeToLease(frame) {
			continue
		}
		l.classify(frame)
	}
}

func (l *Link) routeToLease(frame mavlink.Frame) bool {
	l.mu.Lock()
	lease := l.lease
	l.mu.Unlock()

	if lease == nil || !lease.wants(frame.Message.ID()) {
		return false
	}

	select {
	case lease.frames <- frame:
	default:
		l.logger.Warn("lease buffer full, dropping frame", "msgid", frame.Message.ID())
	}
	return true
}

func (l *Link) classify(frame mavlink.Frame) {
	now := util.NowMs()

	switch msg := frame.Message.(type) {
	case *mavlink.Heartbeat:
		l.publish(model.Event{
			Topic:     model.TopicHeartbeat,
			VehicleID: l.id,
			Ts:        now,
			Payload:   model.HeartbeatPayload{SystemID: frame.SystemID, ComponentID: frame.ComponentID},
		})

	case *mavlink.GlobalPositionInt:
		sample := model.TelemetrySample{
			Ts:  now,
			Lat: mavlink.E7ToDegrees(msg.Lat),
			Lon: mavlink.E7ToDegrees(msg.Lon),
			Alt: mavlink.MillimetersToMeters(msg.RelativeAlt),
		}
		l.publish(model.Event{
			Topic:     model.TopicTelemetry,
			VehicleID: l.id,
			Ts:        now,
			Payload:   sample,
		})

	case *mavlink.SysStatus:
		l.publish(model.Event{
			Topic:     model.TopicBattery,
			VehicleID: l.id,
			Ts:        now,
			Payload:   model.BatteryPayload{Remaining: msg.BatteryRemaining},
		})

	case *mavlink.StatusText:
		l.publish(model.Event{
			Topic:     model.TopicStatusText,
			VehicleID: l.id,
			Ts:        now,
			Payload:   model.StatusTextPayload{Severity: msg.Severity, Text: msg.Text},
		})

	case *mavlink.MissionCurrent:
		l.publish(model.Event{
			Topic:     model.TopicMissionCurrent,
			VehicleID: l.id,
			Ts:        now,
			Payload:   model.MissionCurrentPayload{Seq: msg.Seq},
		})

	default:
		// Unhandled but well-formed traffic is dropped silently.
	}
}

// teardown closes the connection, invalidates any held lease, and emits a
// disconnect event if the vehicle had been discovered.
func (l *Link) teardown(conn mavlink.Conn) {
	conn.Close()

	l.mu.Lock()
	wasConnected := l.state == model.LinkConnected
	l.state = model.LinkDisconnected
	l.conn = nil
	l.ident = false
	lease := l.lease
	l.lease = nil
	l.mu.Unlock()

	if lease != nil {
		close(lease.lost)
	}
	if wasConnected {
		l.publish(model.Event{
			Topic:     model.TopicDisconnect,
			VehicleID: l.id,
			Ts:        util.NowMs(),
		})
	}
}
