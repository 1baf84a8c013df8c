package mavlink

import (
	"bufio"
	"errors"
	"net"
	"sync"
	"time"
)

// ErrReceiveTimeout is returned by ReadMessage when no frame arrives within
// the requested window. Callers distinguish it from transport failures.
var ErrReceiveTimeout = errors.New("receive timed out")

// Conn is a framed MAVLink endpoint. WriteMessage is safe for concurrent
// use; ReadMessage must only be called from a single goroutine.
type Conn interface {
	// WriteMessage sends one message stamped with this side's system and
	// component ids and the next sequence number.
	WriteMessage(msg Message) error
	// ReadMessage blocks until the next well-formed, known frame arrives
	// or the timeout elapses. Frames with bad checksums or unknown message
	// ids are skipped without consuming the timeout budget restarting.
	ReadMessage(timeout time.Duration) (Frame, error)
	// Close tears down the underlying transport. Any blocked ReadMessage
	// returns an error.
	Close() error
}

type conn struct {
	nc net.Conn
	br *bufio.Reader

	writeMu sync.Mutex
	seq     uint8

	sysID  uint8
	compID uint8
}

// NewConn wraps an established transport, typically a connection accepted
// from a vehicle, in a framed connection. Outgoing frames are stamped with
// the ground-station identity.
func NewConn(nc net.Conn) Conn {
	return &conn{
		nc:     nc,
		br:     bufio.NewReaderSize(nc, 4096),
		sysID:  GCSSystemID,
		compID: GCSComponentID,
	}
}

// NewVehicleConn wraps a transport in a connection that sends with the given
// vehicle identity. Used by simulated vehicles in tests.
func NewVehicleConn(nc net.Conn, sysID, compID uint8) Conn {
	return &conn{
		nc:     nc,
		br:     bufio.NewReaderSize(nc, 4096),
		sysID:  sysID,
		compID: compID,
	}
}

func (c *conn) WriteMessage(msg Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	raw := encodeFrame(c.seq, c.sysID, c.compID, msg)
	c.seq++
	if _, err := c.nc.Write(raw); err != nil {
		return err
	}
	return nil
}

func (c *conn) ReadMessage(timeout time.Duration) (Frame, error) {
	deadline := time.Now().Add(timeout)
	if err := c.nc.SetReadDeadline(deadline); err != nil {
		return Frame{}, err
	}
	for {
		frame, err := readFrame(c.br)
		if err == nil {
			return frame, nil
		}
		// Resync past corrupt or unsupported frames within the same window.
		if errors.Is(err, ErrBadChecksum) || errors.Is(err, ErrUnknownMessage) {
			continue
		}
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return Frame{}, ErrReceiveTimeout
		}
		return Frame{}, err
	}
}

func (c *conn) Close() error {
	return c.nc.Close()
}
